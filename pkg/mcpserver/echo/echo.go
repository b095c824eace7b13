// Package echo provides an MCP server with echo and sleep tools.
package echo

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with the echo and sleep tools.
func NewServer() *server.MCPServer {
	s := server.NewMCPServer(
		"echo",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	echoTool := mcp.NewTool("echo",
		mcp.WithDescription("Returns the given text unchanged"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to echo back"),
		),
	)
	s.AddTool(echoTool, echoHandler)

	sleepTool := mcp.NewTool("sleep",
		mcp.WithDescription("Waits the given number of milliseconds before replying"),
		mcp.WithNumber("ms",
			mcp.Required(),
			mcp.Description("Milliseconds to wait"),
		),
	)
	s.AddTool(sleepTool, sleepHandler)

	return s
}

// echoHandler handles the echo tool call.
func echoHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	textArg, ok := args["text"]
	if !ok {
		return mcp.NewToolResultError("text argument is required"), nil
	}
	text, ok := textArg.(string)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("text must be a string, got %T", textArg)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// sleepHandler handles the sleep tool call. The wait is cut short when
// the request context is cancelled.
func sleepHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	msArg, ok := args["ms"]
	if !ok {
		return mcp.NewToolResultError("ms argument is required"), nil
	}
	ms, err := toMilliseconds(msArg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid ms: %v", err)), nil
	}
	if ms < 0 {
		return mcp.NewToolResultError("ms must not be negative"), nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(ms) * time.Millisecond):
	}
	return mcp.NewToolResultText(fmt.Sprintf("slept %dms", ms)), nil
}

// toMilliseconds converts an interface{} to a millisecond count.
// JSON numbers arrive as float64; fractions are truncated.
func toMilliseconds(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
