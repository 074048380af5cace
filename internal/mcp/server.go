// Package mcp serves the findings assistant as MCP tools over stdio.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/auditq/internal/classifier"
	"github.com/ziadkadry99/auditq/internal/extractor"
	"github.com/ziadkadry99/auditq/internal/findings"
	"github.com/ziadkadry99/auditq/internal/router"
	"github.com/ziadkadry99/auditq/internal/schema"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Pipeline answers queries.
type Pipeline interface {
	Handle(ctx context.Context, req router.Request) (*router.Result, error)
	Classify(query string) (string, classifier.Result, []extractor.Warning)
}

// FindingLookup fetches one finding.
type FindingLookup interface {
	Get(ctx context.Context, id string) (findings.Finding, error)
}

// Server wraps an MCP server that exposes the findings tools.
type Server struct {
	pipeline Pipeline
	findings FindingLookup
	registry *schema.Registry
	mcp      *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(pipeline Pipeline, lookup FindingLookup, registry *schema.Registry) *Server {
	s := &Server{
		pipeline: pipeline,
		findings: lookup,
		registry: registry,
	}

	s.mcp = server.NewMCPServer(
		"auditq",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(askFindingsTool, s.handleAskFindings)
	s.mcp.AddTool(classifyQueryTool, s.handleClassifyQuery)
	s.mcp.AddTool(describeSchemaTool, s.handleDescribeSchema)
	s.mcp.AddTool(getFindingTool, s.handleGetFinding)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
