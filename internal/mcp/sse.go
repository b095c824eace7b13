package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// sseTransport receives frames over a long-lived streaming GET carrying
// Server-Sent Events and sends frames via POST. The channel is
// asymmetric: the stream pushes responses, a separate request path
// carries calls. Servers following the HTTP+SSE flavor of the protocol
// announce their POST endpoint in an "endpoint" event as the first thing
// on the stream; connect waits for that announcement unless the config
// pins an explicit PostURL.
type sseTransport struct {
	name       string
	url        string
	headers    map[string]string
	healthURL  string
	client     *http.Client
	postPinned bool

	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc

	mu      sync.Mutex
	postURL string
	closed  bool
	dead    bool
}

func newSSETransport(cfg ServerConfig) (*sseTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("server %s: sse transport requires a url", cfg.Name)
	}
	return &sseTransport{
		name:       cfg.Name,
		url:        cfg.URL,
		postURL:    cfg.PostURL,
		postPinned: cfg.PostURL != "",
		headers:    cfg.Headers,
		healthURL:  cfg.HealthURL,
		client:     &http.Client{},
	}, nil
}

// Connect opens the event stream. The stream must outlive the connect
// call, so it runs under its own cancel context; the caller's context
// only bounds the wait for response headers.
func (t *sseTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	if t.body != nil {
		t.mu.Unlock()
		return fmt.Errorf("server %s: transport already connected", t.name)
	}
	t.mu.Unlock()

	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.url, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	// Abort the dial if the caller gives up before headers arrive.
	headers := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-headers:
		}
	}()

	resp, err := t.client.Do(req)
	close(headers)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: open stream %s: %v", ErrTransportUnavailable, t.url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("%w: stream %s returned %s", ErrTransportUnavailable, t.url, resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, stdioInitialBuffer), stdioMaxFrame)

	// Before the first request nothing but the endpoint announcement and
	// heartbeats may arrive, so consuming the stream here cannot drop
	// frames. Receive takes over as sole reader once connect returns.
	if !t.postPinned {
		if err := t.awaitEndpoint(ctx, scanner, cancel); err != nil {
			resp.Body.Close()
			cancel()
			return err
		}
	}

	t.mu.Lock()
	t.body = resp.Body
	t.scanner = scanner
	t.cancel = cancel
	t.mu.Unlock()
	return nil
}

// awaitEndpoint reads the stream until the server announces its POST
// endpoint. The caller's context bounds the wait by cancelling the
// stream, which errors the scanner.
func (t *sseTransport) awaitEndpoint(ctx context.Context, scanner *bufio.Scanner, cancel context.CancelFunc) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	eventName := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			eventName = ""
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if eventName == "endpoint" && data != "" {
				t.setPostURL(data)
				return nil
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: stream %s: %v", ErrTransportUnavailable, t.name, err)
	}
	return fmt.Errorf("%w: stream %s ended before endpoint announcement", ErrTransportUnavailable, t.name)
}

// Send POSTs one frame to the outbound endpoint. Each POST is an
// independent HTTP request, so frames cannot interleave.
func (t *sseTransport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	if t.closed || t.dead {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	target := t.postURL
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post %s: %v", ErrTransportUnavailable, target, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: post %s returned %s", ErrTransportUnavailable, target, resp.Status)
	}
	return nil
}

// Receive blocks until the stream carries the next data line. Comment
// lines (heartbeats) are skipped. An "endpoint" event retargets the POST
// path instead of surfacing as a frame.
func (t *sseTransport) Receive() ([]byte, error) {
	t.mu.Lock()
	if t.closed || t.dead {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	scanner := t.scanner
	t.mu.Unlock()

	if scanner == nil {
		return nil, ErrTransportClosed
	}

	eventName := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			eventName = ""
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if eventName == "endpoint" {
				t.setPostURL(data)
				continue
			}
			return []byte(data), nil
		}
	}

	t.mu.Lock()
	t.dead = true
	t.mu.Unlock()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: stream %s: %v", ErrTransportClosed, t.name, err)
	}
	return nil, fmt.Errorf("%w: stream %s ended", ErrTransportClosed, t.name)
}

// setPostURL adopts a server-announced outbound endpoint, resolving
// relative references against the stream URL.
func (t *sseTransport) setPostURL(endpoint string) {
	base, err := url.Parse(t.url)
	if err != nil {
		return
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return
	}
	t.mu.Lock()
	t.postURL = base.ResolveReference(ref).String()
	t.mu.Unlock()
}

// HealthCheck probes the configured health endpoint when one is set; any
// non-2xx is unhealthy. Without one it falls back to stream liveness.
func (t *sseTransport) HealthCheck(ctx context.Context) error {
	t.mu.Lock()
	closed, dead := t.closed, t.dead
	t.mu.Unlock()

	if closed {
		return ErrTransportClosed
	}

	if t.healthURL == "" {
		if dead {
			return fmt.Errorf("server %s: stream dead", t.name)
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.healthURL, nil)
	if err != nil {
		return err
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("health probe %s: %w", t.healthURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health probe %s returned %s", t.healthURL, resp.Status)
	}
	return nil
}

// Close cancels the stream context, which closes the body and unblocks a
// pending Receive.
func (t *sseTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancel := t.cancel
	body := t.body
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		body.Close()
	}
	return nil
}
