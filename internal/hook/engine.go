// Package hook runs lifecycle hook commands around tool invocations.
//
// Config declares hooks per event ("preToolUse", "postToolUse"); each
// rule carries a matcher pattern selecting the tools it applies to and
// the commands to run. A hook's exit code decides the outcome: 0
// allows, 2 blocks with stderr as the reason, anything else is a hook
// error that is logged and does not block. The first blocking hook
// ends the run.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/waveline-ai/waveline/internal/event"
	"github.com/waveline-ai/waveline/pkg/types"
)

// Hook events declared in config.
const (
	EventPreToolUse  = "preToolUse"
	EventPostToolUse = "postToolUse"
)

const defaultTimeout = 60 * time.Second

// Decision is the aggregate outcome of a hook run.
type Decision string

const (
	Allow Decision = "allow"
	Block Decision = "block"
	Warn  Decision = "warn" // a hook errored; the invocation proceeds
)

// Result reports the outcome of running one event's hooks.
type Result struct {
	Decision Decision
	Reason   string // stderr of the blocking hook
	ExitCode int
	Stdout   string
	Stderr   string
}

// Context carries the tool invocation hooks run against.
type Context struct {
	Tool string
	Args map[string]any
}

// Engine executes the hooks declared in config.
type Engine struct {
	hooks map[string][]types.HookRule
}

// NewEngine creates an engine over the config's hook rules.
func NewEngine(hooks map[string][]types.HookRule) *Engine {
	return &Engine{hooks: hooks}
}

// Run executes every hook declared for hookEvent whose matcher applies
// to the tool invocation, in declaration order. The first blocking
// hook wins. A hook error warns and, unless the hook sets
// continueOnError, stops the remaining hooks.
func (e *Engine) Run(ctx context.Context, hookEvent, tool string, args map[string]any) Result {
	warned := false

	for _, rule := range e.hooks[hookEvent] {
		if !Matches(rule.Matcher, tool, args) {
			continue
		}

		for _, h := range rule.Hooks {
			out := runHook(ctx, h, Context{Tool: tool, Args: args})
			decision := decide(out)
			publishOutcome(hookEvent, tool, rule.Matcher, h.Command, decision, out)

			switch decision {
			case Block:
				reason := strings.TrimSpace(out.stderr)
				log.Warn().
					Str("event", hookEvent).
					Str("tool", tool).
					Str("command", h.Command).
					Str("reason", reason).
					Msg("hook blocked tool invocation")
				return Result{
					Decision: Block,
					Reason:   reason,
					ExitCode: out.exitCode,
					Stdout:   out.stdout,
					Stderr:   out.stderr,
				}

			case Warn:
				log.Warn().
					Str("event", hookEvent).
					Str("tool", tool).
					Str("command", h.Command).
					Int("exitCode", out.exitCode).
					AnErr("error", out.err).
					Msg("hook failed, allowing invocation")
				warned = true
				if !h.ContinueOnError {
					return Result{
						Decision: Warn,
						ExitCode: out.exitCode,
						Stdout:   out.stdout,
						Stderr:   out.stderr,
					}
				}
			}
		}
	}

	if warned {
		return Result{Decision: Warn}
	}
	return Result{Decision: Allow}
}

type outcome struct {
	exitCode int
	stdout   string
	stderr   string
	err      error // spawn failure or timeout
}

func decide(out outcome) Decision {
	switch {
	case out.err != nil:
		return Warn
	case out.exitCode == 0:
		return Allow
	case out.exitCode == 2:
		return Block
	default:
		return Warn
	}
}

// runHook executes one hook command with the context variables
// substituted into its command line and exported in its environment.
// Hooks run without a shell.
func runHook(ctx context.Context, h types.HookCommand, hctx Context) outcome {
	timeout := defaultTimeout
	if h.Timeout > 0 {
		timeout = time.Duration(h.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vars := contextVars(hctx)

	name := substitute(h.Command, vars)
	args := make([]string, len(h.Args))
	for i, a := range h.Args {
		args[i] = substitute(a, vars)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	env := os.Environ()
	for k, v := range h.Env {
		env = append(env, k+"="+substitute(v, vars))
	}
	for _, k := range varOrder {
		env = append(env, k+"="+vars[k])
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := outcome{stdout: stdout.String(), stderr: stderr.String()}

	if ctx.Err() == context.DeadlineExceeded {
		out.exitCode = -1
		out.err = fmt.Errorf("hook timed out after %s", timeout)
		return out
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.exitCode = exitErr.ExitCode()
		} else {
			out.exitCode = -1
			out.err = err
		}
	}

	return out
}

// varOrder fixes substitution order so nested placeholders in values
// resolve deterministically.
var varOrder = []string{"TOOL_NAME", "FILE_PATH", "COMMAND", "ARGS"}

func contextVars(hctx Context) map[string]string {
	argsJSON := []byte("{}")
	if hctx.Args != nil {
		if data, err := json.Marshal(hctx.Args); err == nil {
			argsJSON = data
		}
	}

	return map[string]string{
		"TOOL_NAME": hctx.Tool,
		"FILE_PATH": stringArg(hctx.Args, "file_path"),
		"COMMAND":   stringArg(hctx.Args, "command"),
		"ARGS":      string(argsJSON),
	}
}

func substitute(s string, vars map[string]string) string {
	for _, k := range varOrder {
		s = strings.ReplaceAll(s, "${"+k+"}", vars[k])
	}
	return s
}

func stringArg(args map[string]any, key string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return ""
}

func publishOutcome(hookEvent, tool, matcher, command string, decision Decision, out outcome) {
	data := event.HookCompletedData{
		Event:    hookEvent,
		Tool:     tool,
		Matcher:  matcher,
		Command:  command,
		Decision: string(decision),
		ExitCode: out.exitCode,
	}
	if decision == Block {
		data.Reason = strings.TrimSpace(out.stderr)
	}
	event.Publish(event.Event{Type: event.HookCompleted, Data: data})
}
