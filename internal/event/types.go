package event

import "github.com/waveline-ai/waveline/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Info *types.Session `json:"info"`
}

// SessionUpdatedData is the data for session.updated events.
type SessionUpdatedData struct {
	Info *types.Session `json:"info"`
}

// MCPServerStateData is the data for mcp.server.state events, published
// on every connection state transition.
type MCPServerStateData struct {
	Server string `json:"server"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// HookCompletedData is the data for hook.completed events. Decision is
// "allow", "block", or "warn".
type HookCompletedData struct {
	Event    string `json:"event"`
	Tool     string `json:"tool,omitempty"`
	Matcher  string `json:"matcher"`
	Command  string `json:"command"`
	Decision string `json:"decision"`
	ExitCode int    `json:"exitCode"`
	Reason   string `json:"reason,omitempty"`
}

// GateResolvedData is the data for gate.resolved events.
type GateResolvedData struct {
	Gate     string `json:"gate"`
	Passed   bool   `json:"passed"`
	Required bool   `json:"required"`
}

// WaveStartedData is the data for wave.started events.
type WaveStartedData struct {
	RunID string `json:"runID"`
	Wave  string `json:"wave"`
	Index int    `json:"index"`
	Total int    `json:"total"`
}

// WaveCompletedData is the data for wave.completed events.
type WaveCompletedData struct {
	RunID  string `json:"runID"`
	Wave   string `json:"wave"`
	Status string `json:"status"`
}

// TaskCompletedData is the data for task.completed events.
type TaskCompletedData struct {
	RunID      string `json:"runID"`
	Wave       string `json:"wave"`
	TaskID     string `json:"taskID"`
	Status     string `json:"status"`
	DurationMS int64  `json:"durationMS"`
}

// RunCompletedData is the data for run.completed events.
type RunCompletedData struct {
	RunID    string `json:"runID"`
	Playbook string `json:"playbook"`
	Status   string `json:"status"`
}

// SyncCompletedData is the data for sync.completed events.
type SyncCompletedData struct {
	Op     string `json:"op"`
	Repos  int    `json:"repos"`
	Failed int    `json:"failed"`
}

// ConfigReloadedData is the data for config.reloaded events.
type ConfigReloadedData struct {
	Path string `json:"path"`
}
