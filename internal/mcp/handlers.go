package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/auditq/internal/findings"
	"github.com/ziadkadry99/auditq/internal/router"
)

// handleAskFindings runs the full pipeline for one question.
func (s *Server) handleAskFindings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	res, err := s.pipeline.Handle(ctx, router.Request{
		Query:     query,
		SessionID: request.GetString("session_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatResult(res)), nil
}

// handleClassifyQuery reports the route and filters for a question.
func (s *Server) handleClassifyQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	masked, cls, warnings := s.pipeline.Classify(query)
	filters, err := json.Marshal(cls.Filters)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding filters: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Masked query: %s\n", masked)
	fmt.Fprintf(&sb, "Route: %s (confidence %.2f, branch %s)\n", cls.RouteType, cls.Confidence, cls.Branch)
	fmt.Fprintf(&sb, "Scores: simple %.2f, complex %.2f, hybrid %.2f\n", cls.Scores.Simple, cls.Scores.Complex, cls.Scores.Hybrid)
	fmt.Fprintf(&sb, "Filters: %s\n", filters)
	for _, w := range warnings {
		fmt.Fprintf(&sb, "Dropped: %s\n", w.Error())
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// handleDescribeSchema lists the registry fields.
func (s *Server) handleDescribeSchema(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Entity: %s\n", s.registry.Entity())
	for _, f := range s.registry.Fields() {
		fmt.Fprintf(&sb, "\n- %s (%s)", f.Name, f.Type)
		if f.Description != "" {
			fmt.Fprintf(&sb, ": %s", f.Description)
		}
		sb.WriteString("\n")
		if len(f.AllowedValues) > 0 {
			fmt.Fprintf(&sb, "  values: %s\n", strings.Join(f.AllowedValues, ", "))
		}
		if len(f.Aliases) > 0 {
			fmt.Fprintf(&sb, "  aliases: %s\n", strings.Join(f.Aliases, ", "))
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// handleGetFinding returns one finding as JSON.
func (s *Server) handleGetFinding(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	f, err := s.findings.Get(ctx, id)
	if errors.Is(err, findings.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("No finding with id %q.", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}

	body, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding finding: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

// formatResult renders a pipeline result for agent consumption.
func formatResult(res *router.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Route: %s (confidence %.2f)\n", res.RouteType, res.Decision.Confidence)
	fmt.Fprintf(&sb, "Session: %s\n", res.SessionID)
	for _, n := range res.Notices {
		fmt.Fprintf(&sb, "Notice: %s\n", n.Message)
	}
	if res.Listing != "" {
		sb.WriteString("\n")
		sb.WriteString(res.Listing)
		sb.WriteString("\n")
	}
	if res.Narrative != "" {
		sb.WriteString("\n--- Analysis ---\n")
		sb.WriteString(res.Narrative)
		sb.WriteString("\n")
	}
	return sb.String()
}
