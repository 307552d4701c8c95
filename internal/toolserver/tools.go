package toolserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentic-research/cspec/api"
	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/pipeline"
	"github.com/mark3labs/mcp-go/mcp"
)

// ValidateTool parses and validates a spec without writing.
type ValidateTool struct {
	opts    pipeline.Options
	backend api.Backend
}

func (t *ValidateTool) Definition() mcp.Tool {
	return mcp.NewTool("validate_spec",
		mcp.WithDescription("Parse a content spec and run the structural and referential checks. Nothing is written."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The content spec text.")),
		mcp.WithBoolean("permissive", mcp.Description("Report unresolved relationship targets as warnings and keep validating after parse errors.")),
	)
}

func (t *ValidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p := pipeline.New(withPermissive(t.opts, req), t.backend, nil)

	res, err := p.Validate(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(report(err, res)), nil
	}
	if res.Log.Len() == 0 {
		return mcp.NewToolResultText("valid"), nil
	}
	return mcp.NewToolResultText("valid\n" + formatLog(res.Log)), nil
}

// ProcessTool runs the full pipeline and returns the resolved text.
type ProcessTool struct {
	opts    pipeline.Options
	backend api.Backend
}

func (t *ProcessTool) Definition() mcp.Tool {
	return mcp.NewTool("process_spec",
		mcp.WithDescription("Validate a content spec, create or update the topics it declares, and return the resolved text with its CHECKSUM line."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The content spec text.")),
		mcp.WithBoolean("permissive", mcp.Description("Report unresolved relationship targets as warnings.")),
	)
}

func (t *ProcessTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p := pipeline.NewWithBackend(withPermissive(t.opts, req), t.backend)

	res, err := p.Process(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(report(err, res)), nil
	}
	return mcp.NewToolResultText(res.Text), nil
}

func withPermissive(opts pipeline.Options, req mcp.CallToolRequest) pipeline.Options {
	opts.Validation.Permissive = req.GetBool("permissive", opts.Validation.Permissive)
	return opts
}

func report(err error, res *pipeline.Result) string {
	var b strings.Builder
	b.WriteString(err.Error())
	if res != nil && res.Log.Len() > 0 {
		b.WriteByte('\n')
		b.WriteString(formatLog(res.Log))
	}
	return b.String()
}

func formatLog(log *diag.Log) string {
	entries := log.Entries()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s [%s]", e, e.Kind))
	}
	return strings.Join(lines, "\n")
}
