package mcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// httpInboxSize bounds responses parked between Send and the receive
// loop picking them up.
const httpInboxSize = 32

// httpTransport carries each frame as its own POST; the HTTP response
// body is the JSON-RPC response. There is no persistent connection and
// no push channel, so every call opens an ephemeral request. Inbound
// bodies are parked in an inbox so the connection's single receive loop
// remains the one path that resolves pending calls, same as the
// streaming transports.
type httpTransport struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client

	inbox chan []byte
	quit  chan struct{}

	mu        sync.Mutex
	closed    bool
	connected bool
}

func newHTTPTransport(cfg ServerConfig) (*httpTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("server %s: http transport requires a url", cfg.Name)
	}
	return &httpTransport{
		name:    cfg.Name,
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{},
		inbox:   make(chan []byte, httpInboxSize),
		quit:    make(chan struct{}),
	}, nil
}

// Connect verifies the endpoint is reachable. Any HTTP response counts;
// only a network-level failure is fatal, since RPC endpoints routinely
// reject non-POST methods.
func (t *httpTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	if t.connected {
		t.mu.Unlock()
		return fmt.Errorf("server %s: transport already connected", t.name)
	}
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, t.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: reach %s: %v", ErrTransportUnavailable, t.url, err)
	}
	resp.Body.Close()

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

// Send POSTs one frame. A non-empty response body is parked in the inbox
// for the receive loop; notifications typically come back empty.
func (t *httpTransport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post %s: %v", ErrTransportUnavailable, t.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: post %s returned %s: %s", ErrTransportUnavailable, t.url, resp.Status, bytes.TrimSpace(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransportClosed, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}

	select {
	case t.inbox <- body:
		return nil
	case <-t.quit:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until Send parks the next response body.
func (t *httpTransport) Receive() ([]byte, error) {
	select {
	case frame := <-t.inbox:
		return frame, nil
	case <-t.quit:
		return nil, ErrTransportClosed
	}
}

// HealthCheck reports reachable iff the endpoint answers at all.
func (t *httpTransport) HealthCheck(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, t.url, nil)
	if err != nil {
		return err
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("health probe %s: %w", t.url, err)
	}
	resp.Body.Close()
	return nil
}

// Close unblocks Receive and rejects further sends.
func (t *httpTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.quit)
	return nil
}
