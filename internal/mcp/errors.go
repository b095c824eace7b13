package mcp

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the client's failure taxonomy. Callers classify
// failures with errors.Is; the concrete cause is wrapped alongside.
var (
	// ErrTransportUnavailable marks connect-time failures: process spawn
	// or socket-open failed. Transient; eligible for retry.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrTransportClosed marks I/O attempted on a dead or closed pipe.
	// Pending calls fail with this when a connection dies.
	ErrTransportClosed = errors.New("transport closed")

	// ErrProtocolViolation marks malformed frames, unknown response ids,
	// and tool catalog entries that break the MCP contract.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrToolCallTimeout marks a client-side deadline expiry. The server
	// may still be working; only the local wait is abandoned.
	ErrToolCallTimeout = errors.New("tool call timeout")

	// ErrServerUnavailable marks operations on a client whose restart
	// budget is exhausted. No transport I/O is attempted.
	ErrServerUnavailable = errors.New("server unavailable")

	// ErrUnknownTool marks a namespaced tool name whose prefix matches
	// no registered server.
	ErrUnknownTool = errors.New("no server found for tool")
)

// MCPError is a JSON-RPC error response from the server, passed through
// with code, message, and data verbatim. It is never retried: the server
// answered, and retrying cannot change the answer.
type MCPError struct {
	Code    int
	Message string
	Data    []byte
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

func rpcError(e *JSONRPCError) *MCPError {
	return &MCPError{Code: e.Code, Message: e.Message, Data: e.Data}
}

// isTransient reports whether an error is a transport-level fault worth
// retrying. JSON-RPC error responses never qualify.
func isTransient(err error) bool {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return false
	}
	return errors.Is(err, ErrTransportUnavailable) || errors.Is(err, ErrToolCallTimeout)
}
