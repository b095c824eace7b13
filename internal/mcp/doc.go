// Package mcp implements a Model Context Protocol (MCP) client over
// newline-delimited JSON-RPC 2.0.
//
// Each configured server gets one Client, which owns the transport, the
// initialize handshake, tool discovery, and a health monitor that
// restarts dead connections with exponential backoff. A Registry
// aggregates many clients and exposes their tools under
// server-prefixed names.
//
// Three transports are supported:
//
//	stdio - subprocess speaking frames on stdin/stdout
//	sse   - Server-Sent Events stream for responses, HTTP POST for requests
//	http  - plain HTTP POST per request
//
// Every connection has exactly one receive goroutine; responses are
// matched to in-flight calls by request id through a locked pending
// table. Timeouts abandon the local wait without tearing the
// connection down, and late responses are logged and dropped.
//
// # Basic usage
//
//	cfg := mcp.ServerConfig{
//		Name:      "search",
//		Transport: mcp.TransportStdio,
//		Command:   []string{"search-server", "--stdio"},
//	}
//	client := mcp.NewClient(cfg)
//	if err := client.ConnectWithRetry(ctx); err != nil {
//		return err
//	}
//	defer client.Disconnect()
//
//	tools, err := client.DiscoverTools(ctx)
//	...
//	res, err := client.CallTool(ctx, "search", args)
package mcp
