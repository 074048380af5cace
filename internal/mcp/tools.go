package mcp

import "github.com/mark3labs/mcp-go/mcp"

// askFindingsTool defines the ask_findings MCP tool.
var askFindingsTool = mcp.NewTool("ask_findings",
	mcp.WithDescription("Ask a free-form question about audit findings. Returns a filtered listing, an analytical narrative, or both."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language question"),
	),
	mcp.WithString("session_id",
		mcp.Description("Conversation id; pseudonyms stay stable within a session"),
	),
)

// classifyQueryTool defines the classify_query MCP tool.
var classifyQueryTool = mcp.NewTool("classify_query",
	mcp.WithDescription("Show how a question would be routed and which filters would apply, without querying data or calling a model."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language question"),
	),
)

// describeSchemaTool defines the describe_schema MCP tool.
var describeSchemaTool = mcp.NewTool("describe_schema",
	mcp.WithDescription("List the filterable finding fields with their types, aliases and allowed values."),
)

// getFindingTool defines the get_finding MCP tool.
var getFindingTool = mcp.NewTool("get_finding",
	mcp.WithDescription("Get one finding by id."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Finding id"),
	),
)
