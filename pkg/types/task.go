package types

// TaskStatus is the terminal state of a wave task.
type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskTimeout   TaskStatus = "timeout"
)

// TaskResult is the outcome of a single task within a wave.
type TaskResult struct {
	TaskID     string     `json:"taskId"`
	Status     TaskStatus `json:"status"`
	Result     string     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMS int64      `json:"durationMs"`
}

// GateResult is the outcome of a validation gate run.
type GateResult struct {
	Gate       string `json:"gate"`
	Passed     bool   `json:"passed"`
	Required   bool   `json:"required"`
	ExitCode   int    `json:"exitCode"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"durationMs"`
}
