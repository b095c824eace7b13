package mcp

import (
	"encoding/json"
	"fmt"
)

// jsonrpcVersion is the only framing version this client speaks.
const jsonrpcVersion = "2.0"

// rpcRequest is the outbound JSON-RPC frame. ID is a pointer so that
// notifications omit the field entirely rather than sending id:0.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcMessage is any inbound JSON-RPC frame: a response (id + result or
// error), a server notification (method, no id), or a server-initiated
// request (method + id), which this client does not support.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

func (m *rpcMessage) isResponse() bool {
	return m.ID != nil && m.Method == ""
}

func (m *rpcMessage) isNotification() bool {
	return m.ID == nil && m.Method != ""
}

// encodeRequest produces one id-bearing request frame.
func encodeRequest(id int64, method string, params any) ([]byte, error) {
	req := rpcRequest{JSONRPC: jsonrpcVersion, ID: &id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	return data, nil
}

// encodeNotification produces one fire-and-forget frame without an id.
func encodeNotification(method string, params any) ([]byte, error) {
	req := rpcRequest{JSONRPC: jsonrpcVersion, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s notification: %w", method, err)
	}
	return data, nil
}

// decodeMessage parses and validates one inbound frame. Violations of the
// JSON-RPC 2.0 contract are reported as ErrProtocolViolation; the caller
// logs and drops such frames without killing the connection.
func decodeMessage(frame []byte) (*rpcMessage, error) {
	var msg rpcMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrProtocolViolation, err)
	}
	if msg.JSONRPC != jsonrpcVersion {
		return nil, fmt.Errorf("%w: jsonrpc version %q", ErrProtocolViolation, msg.JSONRPC)
	}
	if msg.Result != nil && msg.Error != nil {
		return nil, fmt.Errorf("%w: frame carries both result and error", ErrProtocolViolation)
	}
	if msg.ID == nil && msg.Method == "" {
		return nil, fmt.Errorf("%w: frame has neither id nor method", ErrProtocolViolation)
	}
	if msg.isResponse() && msg.Result == nil && msg.Error == nil {
		return nil, fmt.Errorf("%w: response %d has neither result nor error", ErrProtocolViolation, *msg.ID)
	}
	return &msg, nil
}
