// Package wave orchestrates playbook runs: waves of concurrent MCP
// tool invocations separated by validation gates. Waves run in order;
// the tasks inside a wave run in parallel under a concurrency bound. A
// failing task never cancels its siblings, but a failing required gate
// aborts the remaining waves.
package wave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/waveline-ai/waveline/internal/event"
	"github.com/waveline-ai/waveline/internal/gate"
	"github.com/waveline-ai/waveline/internal/hook"
	"github.com/waveline-ai/waveline/internal/mcp"
	"github.com/waveline-ai/waveline/internal/session"
	"github.com/waveline-ai/waveline/internal/storage"
	"github.com/waveline-ai/waveline/pkg/types"
)

const (
	defaultMaxConcurrent = 10
	defaultTaskTimeout   = 300 * time.Second
)

// Run statuses recorded on the run and its waves.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusAborted   = "aborted"
)

// ToolCaller invokes a namespaced MCP tool. *mcp.Registry implements it.
type ToolCaller interface {
	CallTool(ctx context.Context, tool string, args json.RawMessage) (*mcp.ToolResult, error)
}

// Options configures the optional collaborators of a Runner. Zero
// values disable the corresponding behavior.
type Options struct {
	Hooks         *hook.Engine    // preToolUse/postToolUse around each task
	Gates         *gate.Runner    // required when a playbook names gates
	Store         *storage.Storage // run record persistence
	Session       *session.Writer // transcript entries per task
	MaxConcurrent int             // tasks in flight per wave, default 10
	TaskTimeout   time.Duration   // per task, default 5m
}

// Runner executes playbooks against an MCP registry.
type Runner struct {
	caller        ToolCaller
	hooks         *hook.Engine
	gates         *gate.Runner
	store         *storage.Storage
	session       *session.Writer
	maxConcurrent int
	taskTimeout   time.Duration
}

// NewRunner creates a runner over the given tool caller.
func NewRunner(caller ToolCaller, opts Options) *Runner {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = defaultTaskTimeout
	}
	return &Runner{
		caller:        caller,
		hooks:         opts.Hooks,
		gates:         opts.Gates,
		store:         opts.Store,
		session:       opts.Session,
		maxConcurrent: opts.MaxConcurrent,
		taskTimeout:   opts.TaskTimeout,
	}
}

// RunRecord is the persisted outcome of a playbook run.
type RunRecord struct {
	ID         string       `json:"id"`
	Playbook   string       `json:"playbook"`
	Status     string       `json:"status"`
	StartedAt  string       `json:"startedAt"`
	DurationMS int64        `json:"durationMs"`
	Waves      []WaveResult `json:"waves"`
}

// WaveResult is the outcome of one wave within a run.
type WaveResult struct {
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	Tasks      []types.TaskResult `json:"tasks"`
	Gates      []types.GateResult `json:"gates,omitempty"`
	DurationMS int64              `json:"durationMs"`
}

// Run executes the playbook wave by wave and returns the run record.
// The record is also persisted under runs/<id> when a store is
// configured. The error reports setup problems (an unknown gate name,
// a cancelled context); task and gate failures live in the record.
func (r *Runner) Run(ctx context.Context, pb *Playbook) (*RunRecord, error) {
	for _, w := range pb.Waves {
		for _, g := range w.Gates {
			if r.gates == nil || !r.gates.Has(g) {
				return nil, fmt.Errorf("wave %q references unknown gate %q", w.Name, g)
			}
		}
	}

	runID := ulid.Make().String()
	start := time.Now()
	record := &RunRecord{
		ID:        runID,
		Playbook:  pb.Name,
		Status:    StatusCompleted,
		StartedAt: types.Timestamp(start.UTC()),
	}

	log.Info().
		Str("run", runID).
		Str("playbook", pb.Name).
		Int("waves", len(pb.Waves)).
		Msg("run started")

	for i, w := range pb.Waves {
		if err := ctx.Err(); err != nil {
			record.Status = StatusAborted
			r.finish(ctx, record, start)
			return record, err
		}

		event.Publish(event.Event{Type: event.WaveStarted, Data: event.WaveStartedData{
			RunID: runID,
			Wave:  w.Name,
			Index: i,
			Total: len(pb.Waves),
		}})

		wr := r.runWave(ctx, runID, w)

		aborted := false
		for _, g := range w.Gates {
			res, err := r.gates.Run(ctx, g)
			if err != nil {
				record.Status = StatusAborted
				r.finish(ctx, record, start)
				return record, err
			}
			wr.Gates = append(wr.Gates, res)
			if !res.Passed && res.Required {
				aborted = true
				break
			}
		}

		record.Waves = append(record.Waves, wr)
		if wr.Status == StatusFailed {
			record.Status = StatusFailed
		}

		event.Publish(event.Event{Type: event.WaveCompleted, Data: event.WaveCompletedData{
			RunID:  runID,
			Wave:   w.Name,
			Status: wr.Status,
		}})

		if aborted {
			log.Warn().
				Str("run", runID).
				Str("wave", w.Name).
				Int("remaining", len(pb.Waves)-i-1).
				Msg("required gate failed, aborting run")
			record.Status = StatusAborted
			break
		}
	}

	r.finish(ctx, record, start)
	return record, nil
}

func (r *Runner) finish(ctx context.Context, record *RunRecord, start time.Time) {
	record.DurationMS = time.Since(start).Milliseconds()

	if r.store != nil {
		if err := r.store.Put(ctx, []string{"runs", record.ID}, record); err != nil {
			log.Warn().Str("run", record.ID).Err(err).Msg("failed to persist run record")
		}
	}

	log.Info().
		Str("run", record.ID).
		Str("status", record.Status).
		Int64("durationMs", record.DurationMS).
		Msg("run completed")

	event.Publish(event.Event{Type: event.RunCompleted, Data: event.RunCompletedData{
		RunID:    record.ID,
		Playbook: record.Playbook,
		Status:   record.Status,
	}})
}

func (r *Runner) runWave(ctx context.Context, runID string, w Wave) WaveResult {
	start := time.Now()
	results := make([]types.TaskResult, len(w.Tasks))

	sem := make(chan struct{}, r.maxConcurrent)
	var wg sync.WaitGroup
	for i, t := range w.Tasks {
		wg.Add(1)
		go func(i int, t Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = r.runTask(ctx, runID, w.Name, t)
		}(i, t)
	}
	wg.Wait()

	wr := WaveResult{
		Name:       w.Name,
		Status:     StatusCompleted,
		Tasks:      results,
		DurationMS: time.Since(start).Milliseconds(),
	}
	for _, res := range results {
		if res.Status != types.TaskCompleted {
			wr.Status = StatusFailed
			break
		}
	}
	return wr
}

func (r *Runner) runTask(parent context.Context, runID, wave string, t Task) types.TaskResult {
	timeout := r.taskTimeout
	if t.Timeout > 0 {
		timeout = time.Duration(t.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := time.Now()
	result := types.TaskResult{TaskID: t.ID}

	defer func() {
		result.DurationMS = time.Since(start).Milliseconds()
		log.Info().
			Str("run", runID).
			Str("wave", wave).
			Str("task", t.ID).
			Str("status", string(result.Status)).
			Int64("durationMs", result.DurationMS).
			Msg("task finished")
		event.Publish(event.Event{Type: event.TaskCompleted, Data: event.TaskCompletedData{
			RunID:      runID,
			Wave:       wave,
			TaskID:     t.ID,
			Status:     string(result.Status),
			DurationMS: result.DurationMS,
		}})
	}()

	if r.hooks != nil {
		hr := r.hooks.Run(ctx, hook.EventPreToolUse, t.Tool, t.Args)
		if hr.Decision == hook.Block {
			result.Status = types.TaskFailed
			result.Error = "blocked by hook: " + hr.Reason
			return result
		}
	}

	args := json.RawMessage("{}")
	if t.Args != nil {
		data, err := json.Marshal(t.Args)
		if err != nil {
			result.Status = types.TaskFailed
			result.Error = fmt.Sprintf("failed to encode task args: %v", err)
			return result
		}
		args = data
	}

	if r.session != nil {
		if err := r.session.AppendToolCall(t.Tool, t.Args, t.ID); err != nil {
			log.Warn().Str("task", t.ID).Err(err).Msg("failed to record tool call")
		}
	}

	res, err := r.caller.CallTool(ctx, t.Tool, args)

	switch {
	case errors.Is(err, mcp.ErrToolCallTimeout) || ctx.Err() == context.DeadlineExceeded:
		result.Status = types.TaskTimeout
		result.Error = fmt.Sprintf("task exceeded timeout of %s", timeout)
	case err != nil:
		result.Status = types.TaskFailed
		result.Error = err.Error()
	case res.IsError:
		result.Status = types.TaskFailed
		result.Error = res.Text()
	default:
		result.Status = types.TaskCompleted
		result.Result = res.Text()
	}

	if r.session != nil {
		if err := r.session.AppendToolResult(t.Tool, result.Error, time.Since(start), t.ID); err != nil {
			log.Warn().Str("task", t.ID).Err(err).Msg("failed to record tool result")
		}
	}

	// Post hooks observe the outcome; they run against the parent so an
	// expired task deadline does not starve them.
	if r.hooks != nil {
		r.hooks.Run(parent, hook.EventPostToolUse, t.Tool, t.Args)
	}

	return result
}
