// Package types provides the core data types shared by the waveline
// CLI, server, and internal services.
package types

import (
	"encoding/json"
	"time"
)

// Session describes one recorded conversation transcript.
type Session struct {
	ID          string      `json:"id"`          // uuid4
	ProjectPath string      `json:"projectPath"` // absolute path the session belongs to
	ProjectHash string      `json:"projectHash"` // base64url(sha256(projectPath))[:20]
	Time        SessionTime `json:"time"`
	Entries     int         `json:"entries"`
	Usage       TokenUsage  `json:"usage"`
}

// SessionTime contains timestamps for a session, in Unix milliseconds.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// Entry kinds persisted to session files.
const (
	EntryUser       = "user"
	EntryAssistant  = "assistant"
	EntryToolCall   = "tool_call"
	EntryToolResult = "tool_result"
)

// ValidEntryKind reports whether k names a persisted entry kind.
func ValidEntryKind(k string) bool {
	switch k {
	case EntryUser, EntryAssistant, EntryToolCall, EntryToolResult:
		return true
	}
	return false
}

// Entry is one line of a session transcript file.
type Entry struct {
	Type      string `json:"type"` // "user" | "assistant" | "tool_call" | "tool_result"
	ID        string `json:"id"`   // ulid
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"` // ISO 8601 UTC, millisecond precision

	// User and assistant entries
	Role    string `json:"role,omitempty"` // mirrors Type for user/assistant lines
	Content string `json:"content,omitempty"`

	// Assistant entries
	Model      string      `json:"model,omitempty"`
	StopReason string      `json:"stopReason,omitempty"`
	Usage      *TokenUsage `json:"usage,omitempty"`

	// Tool call and result entries. Results themselves are not
	// persisted, only the call metadata.
	Tool       string          `json:"tool,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"` // tool arguments as written
	ToolCallID string          `json:"toolCallId,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
}

// TokenUsage contains token counters for an assistant entry, and the
// summed totals for a session.
type TokenUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.CacheReadTokens += other.CacheReadTokens
}

// Total returns the sum of all counters.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheCreationTokens + u.CacheReadTokens
}

// TimestampLayout is the entry timestamp format: UTC with millisecond
// precision and a literal Z suffix, e.g. "2025-11-16T10:30:00.000Z".
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t as an entry timestamp.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses an entry timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
