package mcp

import (
	"context"
	"fmt"
)

// Transport moves opaque JSON-RPC frames between the client and one MCP
// server. Implementations differ in I/O model but share one contract:
//
//   - Connect establishes the byte pipe. A transport instance backs at
//     most one connection; reconnecting means building a new instance.
//   - Send writes one complete frame. Implementations guarantee frames
//     are never interleaved on the wire.
//   - Receive blocks until a full inbound frame is available. Exactly
//     one goroutine per connection calls Receive; it is the sole reader.
//   - HealthCheck probes liveness without going through the RPC layer.
//   - Close releases the pipe and unblocks a pending Receive. Idempotent.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, frame []byte) error
	Receive() ([]byte, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// NewTransport builds the transport variant selected at config parse
// time. This is the only place the transport kind is inspected.
func NewTransport(cfg ServerConfig) (Transport, error) {
	switch cfg.Transport {
	case TransportStdio:
		return newStdioTransport(cfg)
	case TransportSSE:
		return newSSETransport(cfg)
	case TransportHTTP:
		return newHTTPTransport(cfg)
	default:
		return nil, fmt.Errorf("server %s: unknown transport kind %d", cfg.Name, int(cfg.Transport))
	}
}
