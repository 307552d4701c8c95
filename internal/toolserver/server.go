// Package toolserver exposes the content spec pipeline as MCP tools over stdio.
package toolserver

import (
	"context"

	"github.com/agentic-research/cspec/api"
	"github.com/agentic-research/cspec/internal/pipeline"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Tool is one registered MCP tool.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New builds the MCP server with every content spec tool registered.
func New(opts pipeline.Options, backend api.Backend) *server.MCPServer {
	s := server.NewMCPServer(
		"cspec",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, t := range Tools(opts, backend) {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

// Tools returns the tool set without a server, for callers that embed them.
func Tools(opts pipeline.Options, backend api.Backend) []Tool {
	return []Tool{
		&ValidateTool{opts: opts, backend: backend},
		&ProcessTool{opts: opts, backend: backend},
	}
}

// Serve runs s on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `Content specs describe a book as chapters and sections of topic references.
Use validate_spec to check a spec without changing anything, and process_spec to
create the new and cloned topics it declares and get back the resolved text.`
