package session

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/waveline-ai/waveline/internal/event"
	"github.com/waveline-ai/waveline/internal/storage"
	"github.com/waveline-ai/waveline/pkg/types"
)

// Writer appends entries to one session's transcript. Entries written
// on the same day land in the same daily file; a long-lived session
// rolls over at midnight. Writers are safe for concurrent use.
type Writer struct {
	dir         string
	sessionID   string
	projectPath string
	projectHash string

	mu      sync.Mutex
	entries int
	usage   types.TokenUsage
	created int64
	updated int64
}

// SessionID returns the session's uuid.
func (w *Writer) SessionID() string {
	return w.sessionID
}

// AppendUser writes a user message.
func (w *Writer) AppendUser(content string) error {
	return w.append(&types.Entry{
		Type:    types.EntryUser,
		Role:    "user",
		Content: content,
	})
}

// AppendAssistant writes an assistant message with its token usage.
func (w *Writer) AppendAssistant(content, model, stopReason string, usage types.TokenUsage) error {
	return w.append(&types.Entry{
		Type:       types.EntryAssistant,
		Role:       "assistant",
		Content:    content,
		Model:      model,
		StopReason: stopReason,
		Usage:      &usage,
	})
}

// AppendToolCall writes a tool invocation. Arguments may be any
// JSON-serializable value and are stored as written.
func (w *Writer) AppendToolCall(tool string, arguments any, toolCallID string) error {
	var raw json.RawMessage
	if arguments != nil {
		data, err := json.Marshal(arguments)
		if err != nil {
			return fmt.Errorf("failed to marshal tool arguments: %w", err)
		}
		raw = data
	}

	return w.append(&types.Entry{
		Type:       types.EntryToolCall,
		Tool:       tool,
		Arguments:  raw,
		ToolCallID: toolCallID,
	})
}

// AppendToolResult writes the outcome of a tool invocation: error and
// duration only, never the result payload.
func (w *Writer) AppendToolResult(tool, toolErr string, duration time.Duration, toolCallID string) error {
	return w.append(&types.Entry{
		Type:       types.EntryToolResult,
		Tool:       tool,
		Error:      toolErr,
		DurationMS: duration.Milliseconds(),
		ToolCallID: toolCallID,
	})
}

func (w *Writer) append(e *types.Entry) error {
	now := time.Now()
	e.ID = ulid.Make().String()
	e.SessionID = w.sessionID
	e.Timestamp = types.Timestamp(now)

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	file := filepath.Join(w.dir, now.Format("2006-01-02")+".jsonl")
	if err := storage.AppendLine(file, line); err != nil {
		return err
	}

	w.mu.Lock()
	w.entries++
	if e.Usage != nil {
		w.usage.Add(*e.Usage)
	}
	w.updated = now.UnixMilli()
	info := w.snapshotLocked()
	w.mu.Unlock()

	event.Publish(event.Event{
		Type: event.SessionUpdated,
		Data: event.SessionUpdatedData{Info: info},
	})

	return nil
}

// snapshotLocked builds a Session view from the writer's running
// totals. Callers must hold w.mu.
func (w *Writer) snapshotLocked() *types.Session {
	return &types.Session{
		ID:          w.sessionID,
		ProjectPath: w.projectPath,
		ProjectHash: w.projectHash,
		Time: types.SessionTime{
			Created: w.created,
			Updated: w.updated,
		},
		Entries: w.entries,
		Usage:   w.usage,
	}
}
