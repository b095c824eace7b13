// Package mcp provides Model Context Protocol (MCP) client functionality.
package mcp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProtocolVersion is the MCP protocol version.
const ProtocolVersion = "2024-11-05"

// clientName and clientVersion identify this client in the initialize handshake.
const (
	clientName    = "waveline"
	clientVersion = "0.1.0"
)

// TransportKind selects the wire mechanism for a server connection.
// It is bound once when the server configuration is parsed; nothing
// dispatches on the raw config string after that.
type TransportKind int

const (
	TransportStdio TransportKind = iota
	TransportSSE
	TransportHTTP
)

// ParseTransportKind parses a config-level transport name.
func ParseTransportKind(s string) (TransportKind, error) {
	switch s {
	case "stdio":
		return TransportStdio, nil
	case "sse":
		return TransportSSE, nil
	case "http":
		return TransportHTTP, nil
	default:
		return 0, fmt.Errorf("unknown transport type: %q", s)
	}
}

func (k TransportKind) String() string {
	switch k {
	case TransportStdio:
		return "stdio"
	case TransportSSE:
		return "sse"
	case TransportHTTP:
		return "http"
	default:
		return fmt.Sprintf("transport(%d)", int(k))
	}
}

// ServerConfig is the fully-resolved configuration for one MCP server.
// All variable substitution and credential resolution happens in the
// config subsystem before a ServerConfig reaches this package.
type ServerConfig struct {
	Name      string
	Transport TransportKind

	// Stdio
	Command []string
	Env     map[string]string

	// SSE / HTTP
	URL     string
	Headers map[string]string
	// PostURL pins the outbound endpoint for SSE servers. When empty,
	// connect waits for the server's endpoint announcement.
	PostURL string
	// HealthURL, when set, is probed with a GET by the health monitor
	// instead of relying on stream liveness.
	HealthURL string

	// Disabled servers are registered but never connected.
	Disabled bool

	// Timeout is the default per-call deadline. Zero means 30s.
	Timeout time.Duration
	// ConnectTimeout bounds the transport connect plus handshake. Zero means 10s.
	ConnectTimeout time.Duration
	// MaxRestarts bounds consecutive failed restart attempts before the
	// client enters the failed state. Zero means 3.
	MaxRestarts int
	// HealthInterval is the liveness probe period. Zero means 60s; a
	// negative value disables the monitor.
	HealthInterval time.Duration

	Retry RetryPolicy
}

const (
	defaultCallTimeout    = 30 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultMaxRestarts    = 3
	defaultHealthInterval = 60 * time.Second
)

func (c ServerConfig) callTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultCallTimeout
}

func (c ServerConfig) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return defaultConnectTimeout
}

func (c ServerConfig) maxRestarts() int {
	if c.MaxRestarts > 0 {
		return c.MaxRestarts
	}
	return defaultMaxRestarts
}

// State represents the client-visible connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// Tool describes a tool exposed by an MCP server. The snapshot is valid
// only for the connection that produced it; a restart invalidates it.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolResult is the outcome of a single tools/call invocation. It is
// returned to the caller and never persisted here.
type ToolResult struct {
	Content  []Content     `json:"content"`
	IsError  bool          `json:"isError,omitempty"`
	Duration time.Duration `json:"-"`
}

// Text concatenates the text parts of the result content.
func (r *ToolResult) Text() string {
	var out string
	for _, c := range r.Content {
		if c.Type == "text" {
			out += c.Text
		}
	}
	return out
}

// Content represents one element of tool result content.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// ServerInfo identifies a connected MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerStatus is a registry-level snapshot of one server.
type ServerStatus struct {
	Name      string `json:"name"`
	State     State  `json:"state"`
	ToolCount int    `json:"toolCount"`
	Disabled  bool   `json:"disabled,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ClientInfo identifies this client to the server.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities declares what this client supports.
type ClientCapabilities struct {
	Tools map[string]any `json:"tools,omitempty"`
}

// ServerCapabilities declares what a server supports.
type ServerCapabilities struct {
	Tools     *ToolCapability     `json:"tools,omitempty"`
	Resources *ResourceCapability `json:"resources,omitempty"`
	Prompts   *PromptCapability   `json:"prompts,omitempty"`
}

// ToolCapability describes server tool support.
type ToolCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourceCapability describes server resource support.
type ResourceCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptCapability describes server prompt support.
type PromptCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeRequest is the params object of the initialize request.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ClientInfo         `json:"clientInfo"`
}

// InitializeResponse is the result object of the initialize request.
type InitializeResponse struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

// ListToolsResponse is the result object of tools/list.
type ListToolsResponse struct {
	Tools []Tool `json:"tools"`
}

// CallToolRequest is the params object of tools/call.
type CallToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResponse is the result object of tools/call.
type CallToolResponse struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// JSONRPCError is the error object of a JSON-RPC 2.0 response.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}
