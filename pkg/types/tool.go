package types

import "encoding/json"

// ToolDescriptor is the catalog form of an MCP tool as served by the
// API: Name carries the owning server prefix ("files_read_file").
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Server      string          `json:"server"`
}
