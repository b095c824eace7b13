package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// Scanner sizing for newline-delimited JSON frames.
	stdioInitialBuffer = 64 * 1024
	stdioMaxFrame      = 1024 * 1024

	// How long Close waits after SIGTERM before resorting to SIGKILL.
	stdioShutdownGrace = 5 * time.Second
)

// stdioTransport speaks newline-delimited JSON with a spawned subprocess:
// frames go to the child's stdin, responses come from its stdout. Stderr
// is captured for diagnostics only and never parsed as protocol.
type stdioTransport struct {
	name    string
	command []string
	env     map[string]string

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
	stderr  *tailBuffer

	writeMu sync.Mutex // serializes frames onto stdin

	mu     sync.Mutex
	closed bool
	dead   bool // reader hit EOF or a read error
}

func newStdioTransport(cfg ServerConfig) (*stdioTransport, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("server %s: stdio transport requires a command", cfg.Name)
	}
	return &stdioTransport{
		name:    cfg.Name,
		command: cfg.Command,
		env:     cfg.Env,
		stderr:  &tailBuffer{limit: 8 * 1024},
	}, nil
}

// Connect spawns the server subprocess with the configured environment
// on top of the parent environment. The context is unused: spawning does
// not block, and the process must outlive the connect call.
func (t *stdioTransport) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.cmd != nil {
		return fmt.Errorf("server %s: transport already connected", t.name)
	}

	cmd := exec.Command(t.command[0], t.command[1:]...)
	cmd.Env = os.Environ()
	for k, v := range t.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Stderr = t.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrTransportUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrTransportUnavailable, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: spawn %s: %v", ErrTransportUnavailable, t.command[0], err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, stdioInitialBuffer), stdioMaxFrame)

	t.cmd = cmd
	t.stdin = stdin
	t.scanner = scanner
	return nil
}

// Send writes one frame followed by a newline. The write lock keeps
// concurrent frames from interleaving on the shared pipe.
func (t *stdioTransport) Send(_ context.Context, frame []byte) error {
	t.mu.Lock()
	if t.closed || t.dead {
		t.mu.Unlock()
		return t.closedErr()
	}
	stdin := t.stdin
	t.mu.Unlock()

	if stdin == nil {
		return ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := stdin.Write(append(frame, '\n')); err != nil {
		return fmt.Errorf("%w: write to %s: %v", ErrTransportClosed, t.name, err)
	}
	return nil
}

// Receive blocks until the child emits a complete line. Blank lines are
// skipped. EOF means the process exited or closed stdout; either way the
// connection is dead and the captured stderr is attached for diagnosis.
func (t *stdioTransport) Receive() ([]byte, error) {
	t.mu.Lock()
	if t.closed || t.dead {
		t.mu.Unlock()
		return nil, t.closedErr()
	}
	scanner := t.scanner
	t.mu.Unlock()

	if scanner == nil {
		return nil, ErrTransportClosed
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		return frame, nil
	}

	t.mu.Lock()
	t.dead = true
	t.mu.Unlock()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read from %s: %v", ErrTransportClosed, t.name, err)
	}
	return nil, t.closedErr()
}

// HealthCheck reports healthy while the process is running and its
// stdout has not hit EOF.
func (t *stdioTransport) HealthCheck(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.cmd == nil {
		return fmt.Errorf("%w: not connected", ErrTransportUnavailable)
	}
	if t.dead {
		return fmt.Errorf("server %s process exited: %s", t.name, t.stderrTail())
	}
	return nil
}

// Close terminates the child: close stdin, SIGTERM, bounded wait, then
// SIGKILL. Killing the process closes stdout and unblocks Receive.
func (t *stdioTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cmd := t.cmd
	stdin := t.stdin
	t.mu.Unlock()

	if cmd == nil {
		return nil
	}

	if stdin != nil {
		stdin.Close()
	}
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(stdioShutdownGrace):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	}
	return nil
}

func (t *stdioTransport) closedErr() error {
	if tail := t.stderrTail(); tail != "" {
		return fmt.Errorf("%w: %s", ErrTransportClosed, tail)
	}
	return ErrTransportClosed
}

func (t *stdioTransport) stderrTail() string {
	return strings.TrimSpace(t.stderr.String())
}

// tailBuffer is an io.Writer keeping the last limit bytes written. The
// subprocess writes stderr from its own copier goroutine, so access is
// locked.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf.Write(p)
	if b.limit > 0 && b.buf.Len() > b.limit {
		data := b.buf.Bytes()
		trimmed := make([]byte, b.limit)
		copy(trimmed, data[len(data)-b.limit:])
		b.buf.Reset()
		b.buf.Write(trimmed)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
