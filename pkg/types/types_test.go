package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEntry_JSON(t *testing.T) {
	entry := Entry{
		Type:      EntryAssistant,
		ID:        "01JCW0XK3V8Q9R2T4Y6Z8A0C2E",
		SessionID: "f47ac10b-58cc-4372-a567-0e02b2c3d479",
		Timestamp: "2025-11-16T10:30:00.000Z",
		Role:      "assistant",
		Content:   "done",
		Model:     "waveline-worker",
		Usage: &TokenUsage{
			InputTokens:     1200,
			OutputTokens:    340,
			CacheReadTokens: 90,
		},
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Entry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Type != EntryAssistant {
		t.Errorf("Type mismatch: got %s, want %s", decoded.Type, EntryAssistant)
	}
	if decoded.Usage == nil || decoded.Usage.InputTokens != 1200 {
		t.Errorf("Usage not preserved: %+v", decoded.Usage)
	}

	// Usage counters serialize under their snake_case wire names.
	var raw map[string]any
	json.Unmarshal(data, &raw)
	usage, ok := raw["usage"].(map[string]any)
	if !ok {
		t.Fatal("usage object missing")
	}
	if _, ok := usage["input_tokens"]; !ok {
		t.Error("input_tokens key missing from usage")
	}
}

func TestEntry_OptionalFields(t *testing.T) {
	entry := Entry{
		Type:      EntryToolCall,
		ID:        "01JCW0XK3V8Q9R2T4Y6Z8A0C2E",
		SessionID: "f47ac10b-58cc-4372-a567-0e02b2c3d479",
		Timestamp: "2025-11-16T10:30:00.000Z",
		Tool:      "files_read_file",
		Arguments: json.RawMessage(`{"path":"README.md"}`),
	}

	data, _ := json.Marshal(entry)
	var raw map[string]any
	json.Unmarshal(data, &raw)

	if _, ok := raw["usage"]; ok {
		t.Error("usage should be omitted for tool_call entries")
	}
	if _, ok := raw["content"]; ok {
		t.Error("content should be omitted when empty")
	}
	if raw["tool"] != "files_read_file" {
		t.Errorf("tool mismatch: got %v", raw["tool"])
	}

	// Arguments stay a nested object on the wire, not a quoted string.
	if _, ok := raw["arguments"].(map[string]any); !ok {
		t.Errorf("arguments should serialize as an object, got %T", raw["arguments"])
	}
}

func TestValidEntryKind(t *testing.T) {
	for _, k := range []string{EntryUser, EntryAssistant, EntryToolCall, EntryToolResult} {
		if !ValidEntryKind(k) {
			t.Errorf("ValidEntryKind(%q) = false, want true", k)
		}
	}
	for _, k := range []string{"", "system", "summary", "USER"} {
		if ValidEntryKind(k) {
			t.Errorf("ValidEntryKind(%q) = true, want false", k)
		}
	}
}

func TestTokenUsage_Add(t *testing.T) {
	var total TokenUsage
	total.Add(TokenUsage{InputTokens: 10, OutputTokens: 5})
	total.Add(TokenUsage{InputTokens: 3, CacheCreationTokens: 7, CacheReadTokens: 2})

	if total.InputTokens != 13 {
		t.Errorf("InputTokens = %d, want 13", total.InputTokens)
	}
	if total.OutputTokens != 5 {
		t.Errorf("OutputTokens = %d, want 5", total.OutputTokens)
	}
	if total.Total() != 27 {
		t.Errorf("Total() = %d, want 27", total.Total())
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2025, 11, 16, 10, 30, 0, 123_000_000, time.UTC)

	s := Timestamp(ts)
	if s != "2025-11-16T10:30:00.123Z" {
		t.Errorf("Timestamp = %q", s)
	}

	parsed, err := ParseTimestamp(s)
	if err != nil {
		t.Fatalf("ParseTimestamp failed: %v", err)
	}
	if !parsed.Equal(ts) {
		t.Errorf("round trip mismatch: got %v, want %v", parsed, ts)
	}
}

func TestTimestamp_NormalizesZone(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2025, 11, 16, 12, 30, 0, 0, zone)

	if s := Timestamp(ts); s != "2025-11-16T10:30:00.000Z" {
		t.Errorf("Timestamp = %q, want UTC-normalized form", s)
	}
}

func TestTaskResult_JSON(t *testing.T) {
	result := TaskResult{
		TaskID:     "wave1.task2",
		Status:     TaskCompleted,
		Result:     "ok",
		DurationMS: 412,
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded TaskResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Status != TaskCompleted {
		t.Errorf("Status mismatch: got %s", decoded.Status)
	}
	if decoded.DurationMS != 412 {
		t.Errorf("DurationMS mismatch: got %d", decoded.DurationMS)
	}
}

func TestConfig_JSON(t *testing.T) {
	doc := `{
		"logLevel": "debug",
		"mcpServers": {
			"files": {"type": "stdio", "command": "mcp-files", "args": ["--root", "/tmp"]},
			"search": {"type": "sse", "url": "https://search.example/events"}
		},
		"hooks": {
			"preToolUse": [
				{"matcher": "Bash(git push:*)", "hooks": [{"command": "lint.sh", "timeout": 30}]}
			]
		},
		"gates": {
			"test": {"command": "go", "args": ["test", "./..."], "required": true}
		}
	}`

	var cfg Config
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if got := cfg.MCPServers["files"].Type; got != "stdio" {
		t.Errorf("files type = %q", got)
	}
	if got := cfg.MCPServers["search"].URL; got != "https://search.example/events" {
		t.Errorf("search url = %q", got)
	}

	rules := cfg.Hooks["preToolUse"]
	if len(rules) != 1 || rules[0].Matcher != "Bash(git push:*)" {
		t.Fatalf("hook rules = %+v", rules)
	}
	if rules[0].Hooks[0].Timeout != 30 {
		t.Errorf("hook timeout = %d", rules[0].Hooks[0].Timeout)
	}

	if !cfg.Gates["test"].Required {
		t.Error("test gate should be required")
	}
}
