// Package gate runs validation gates: named checkpoint commands
// executed between waves. A gate passes when its command exits 0;
// anything else, including a timeout, fails. Required gates halt the
// run when they fail, advisory gates just report.
package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/waveline-ai/waveline/internal/event"
	"github.com/waveline-ai/waveline/pkg/types"
)

const defaultTimeout = 60 * time.Second

// Runner executes the gates declared in config.
type Runner struct {
	gates map[string]types.GateConfig
}

// NewRunner creates a runner over the config's gate declarations.
func NewRunner(gates map[string]types.GateConfig) *Runner {
	return &Runner{gates: gates}
}

// Has reports whether a gate with the given name is declared.
func (r *Runner) Has(name string) bool {
	_, ok := r.gates[name]
	return ok
}

// Run executes the named gate and reports its outcome. An unknown gate
// name is an error; a failing gate is a result, not an error.
func (r *Runner) Run(ctx context.Context, name string) (types.GateResult, error) {
	cfg, ok := r.gates[name]
	if !ok {
		return types.GateResult{}, fmt.Errorf("unknown gate: %s", name)
	}

	result := runGate(ctx, name, cfg)

	evt := log.Info()
	if !result.Passed {
		evt = log.Warn()
	}
	evt.Str("gate", name).
		Bool("passed", result.Passed).
		Bool("required", result.Required).
		Int("exitCode", result.ExitCode).
		Int64("durationMs", result.DurationMS).
		Msg("gate resolved")

	event.Publish(event.Event{Type: event.GateResolved, Data: event.GateResolvedData{
		Gate:     name,
		Passed:   result.Passed,
		Required: result.Required,
	}})

	return result, nil
}

func runGate(ctx context.Context, name string, cfg types.GateConfig) types.GateResult {
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := types.GateResult{Gate: name, Required: cfg.Required}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	result.DurationMS = time.Since(start).Milliseconds()
	result.Output = strings.TrimSpace(output.String())

	if ctx.Err() == context.DeadlineExceeded {
		result.ExitCode = -1
		result.Error = fmt.Sprintf("gate timed out after %s", timeout)
		return result
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			result.Error = fmt.Sprintf("gate failed with exit code %d", result.ExitCode)
		} else {
			result.ExitCode = -1
			result.Error = err.Error()
		}
		return result
	}

	result.Passed = true
	return result
}

// Summary aggregates the outcomes of a gate pipeline.
type Summary struct {
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"successRate"`
}

// Summarize counts passes and failures across gate results.
func Summarize(results []types.GateResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Passed) / float64(s.Total)
	}
	return s
}
