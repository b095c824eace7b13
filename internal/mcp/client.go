package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/waveline-ai/waveline/internal/event"
	"github.com/waveline-ai/waveline/internal/logging"
)

// Client manages one MCP server connection: transport lifecycle, the
// initialize handshake, tool discovery and invocation, and the
// disconnected/connecting/connected/failed state machine.
//
// Exactly one background goroutine per connection reads the transport
// and resolves pending calls through the correlator; senders and that
// loop share nothing but the correlator's locked table.
type Client struct {
	cfg              ServerConfig
	transportFactory func(ServerConfig) (Transport, error)

	// lifeMu serializes lifecycle operations (Connect, Disconnect,
	// restart), which span multiple I/O steps. mu guards the fields
	// below and is never held across I/O.
	lifeMu sync.Mutex
	mu     sync.Mutex

	state        State
	transport    Transport
	corr         *correlator
	dispatchDone chan struct{}
	serverInfo   *ServerInfo
	caps         *ServerCapabilities
	tools        []Tool
	toolsValid   bool
	restarts     int // consecutive failed restart attempts
	lastErr      string
	monitor      *healthMonitor
}

// NewClient builds a client for one server. The configuration must
// already be fully resolved; no substitution happens here.
func NewClient(cfg ServerConfig) *Client {
	return &Client{
		cfg:              cfg,
		transportFactory: NewTransport,
		state:            StateDisconnected,
	}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.cfg.Name }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Healthy reports whether the client is connected. Dashboards watch
// this together with StateChange events on the bus.
func (c *Client) Healthy() bool { return c.State() == StateConnected }

// LastError returns the most recent connection-level failure message.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ServerInfo returns the server identity from the initialize handshake,
// or nil before the first successful connect.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.serverInfo == nil {
		return nil
	}
	info := *c.serverInfo
	return &info
}

// Tools returns the cached tool catalog from the last discovery on the
// current connection. Empty after a restart until rediscovery.
func (c *Client) Tools() []Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.toolsValid {
		return nil
	}
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Connect opens the transport and performs the initialize handshake:
// send initialize, await the response, then send the initialized
// notification. Success lands in Connected; failure lands in Failed and
// is not retried here; callers own the retry decision, typically via
// ConnectWithRetry. Connecting an already-connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	from := c.state
	c.state = StateConnecting
	c.restarts = 0
	c.mu.Unlock()
	c.publishState(from, StateConnecting)

	start := time.Now()
	if err := c.connectOnce(ctx); err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.lastErr = err.Error()
		c.mu.Unlock()
		c.publishState(StateConnecting, StateFailed)
		logging.Error().Err(err).
			Str("server", c.cfg.Name).
			Int("attempt", 1).
			Dur("elapsed", time.Since(start)).
			Msg("mcp connect failed")
		return err
	}

	c.mu.Lock()
	c.state = StateConnected
	c.lastErr = ""
	if c.monitor == nil && c.cfg.HealthInterval >= 0 {
		interval := c.cfg.HealthInterval
		if interval == 0 {
			interval = defaultHealthInterval
		}
		c.monitor = newHealthMonitor(c, interval)
		c.monitor.start()
	}
	info := c.serverInfo
	c.mu.Unlock()
	c.publishState(StateConnecting, StateConnected)

	ev := logging.Info().
		Str("server", c.cfg.Name).
		Str("transport", c.cfg.Transport.String()).
		Dur("elapsed", time.Since(start))
	if info != nil {
		ev = ev.Str("serverName", info.Name).Str("serverVersion", info.Version)
	}
	ev.Msg("mcp server connected")
	return nil
}

// ConnectWithRetry wraps Connect with the configured retry policy.
// Only transient transport failures are retried.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	return c.cfg.Retry.Execute(ctx, func() error {
		return c.Connect(ctx)
	})
}

// connectOnce performs a single transport connect plus handshake and
// installs the new connection. Callers hold lifeMu.
func (c *Client) connectOnce(ctx context.Context) error {
	t, err := c.transportFactory(c.cfg)
	if err != nil {
		return err
	}

	hctx, cancel := context.WithTimeout(ctx, c.cfg.connectTimeout())
	defer cancel()

	if err := t.Connect(hctx); err != nil {
		return err
	}

	corr := newCorrelator()
	done := make(chan struct{})
	c.mu.Lock()
	c.transport = t
	c.corr = corr
	c.dispatchDone = done
	c.tools = nil
	c.toolsValid = false
	c.mu.Unlock()
	go c.dispatchLoop(t, corr, done)

	initParams := InitializeRequest{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{Tools: map[string]any{}},
		ClientInfo:      ClientInfo{Name: clientName, Version: clientVersion},
	}
	result, err := c.roundTrip(hctx, t, corr, "initialize", initParams, c.cfg.connectTimeout())
	if err != nil {
		c.teardown(t, corr, done)
		return fmt.Errorf("initialize handshake: %w", err)
	}

	var init InitializeResponse
	if err := json.Unmarshal(result, &init); err != nil {
		c.teardown(t, corr, done)
		return fmt.Errorf("%w: initialize result: %v", ErrProtocolViolation, err)
	}
	if init.ProtocolVersion != ProtocolVersion {
		logging.Debug().
			Str("server", c.cfg.Name).
			Str("theirs", init.ProtocolVersion).
			Str("ours", ProtocolVersion).
			Msg("protocol version differs")
	}

	frame, err := encodeNotification("notifications/initialized", nil)
	if err == nil {
		err = t.Send(hctx, frame)
	}
	if err != nil {
		c.teardown(t, corr, done)
		return fmt.Errorf("initialized notification: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = &init.ServerInfo
	c.caps = &init.Capabilities
	c.mu.Unlock()
	return nil
}

// teardown dismantles a half-built connection after a handshake
// failure. Callers hold lifeMu.
func (c *Client) teardown(t Transport, corr *correlator, done chan struct{}) {
	t.Close()
	corr.failAll(ErrTransportClosed)
	<-done

	c.mu.Lock()
	if c.transport == t {
		c.transport = nil
		c.corr = nil
		c.dispatchDone = nil
	}
	c.mu.Unlock()
}

// dispatchLoop is the sole reader of one connection. It decodes frames
// and routes responses to their pending calls; everything else is noise
// to log. When the transport dies, all pending calls fail together.
func (c *Client) dispatchLoop(t Transport, corr *correlator, done chan struct{}) {
	defer close(done)

	for {
		frame, err := t.Receive()
		if err != nil {
			corr.failAll(err)
			c.connectionLost(t, err)
			return
		}

		msg, derr := decodeMessage(frame)
		if derr != nil {
			logging.Warn().Err(derr).Str("server", c.cfg.Name).Msg("dropping malformed frame")
			continue
		}

		switch {
		case msg.isResponse():
			if !corr.resolve(*msg.ID, msg) {
				logging.Warn().
					Str("server", c.cfg.Name).
					Int64("id", *msg.ID).
					Msg("dropping response with unknown id")
			}
		case msg.isNotification():
			logging.Debug().
				Str("server", c.cfg.Name).
				Str("method", msg.Method).
				Msg("server notification")
		default:
			// Server-initiated requests are not supported.
			logging.Warn().
				Str("server", c.cfg.Name).
				Str("method", msg.Method).
				Msg("dropping server request")
		}
	}
}

// connectionLost marks an unexpected transport death. Intentional
// teardown clears the transport ref first, so this only fires for the
// connection that is still current.
func (c *Client) connectionLost(t Transport, err error) {
	c.mu.Lock()
	if c.transport != t || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.lastErr = err.Error()
	c.mu.Unlock()
	c.publishState(StateConnected, StateDisconnected)

	logging.Warn().Err(err).Str("server", c.cfg.Name).Msg("mcp connection lost")
}

// roundTrip sends one request and waits for its response, racing a
// client-side deadline. On timeout the pending entry is removed; a late
// response then surfaces as an unknown id, not a leak.
func (c *Client) roundTrip(ctx context.Context, t Transport, corr *correlator, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id, ch, err := corr.register()
	if err != nil {
		return nil, err
	}

	frame, err := encodeRequest(id, method, params)
	if err != nil {
		corr.cancel(id)
		return nil, err
	}
	if err := t.Send(ctx, frame); err != nil {
		corr.cancel(id)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		if msg == nil {
			// failAll closed the channel
			if terr := corr.terminal(); terr != nil {
				return nil, terr
			}
			return nil, ErrTransportClosed
		}
		if msg.Error != nil {
			return nil, rpcError(msg.Error)
		}
		return msg.Result, nil
	case <-timer.C:
		corr.cancel(id)
		return nil, fmt.Errorf("%w: %s after %s", ErrToolCallTimeout, method, timeout)
	case <-ctx.Done():
		corr.cancel(id)
		return nil, ctx.Err()
	}
}

// DiscoverTools fetches and validates the server's tool catalog. Every
// entry must carry a non-empty name and description and an inputSchema;
// one malformed entry fails the whole call, because a partial catalog
// would hide a server-side contract defect from the caller.
func (c *Client) DiscoverTools(ctx context.Context) ([]Tool, error) {
	t, corr, err := c.connected()
	if err != nil {
		return nil, err
	}

	result, err := c.roundTrip(ctx, t, corr, "tools/list", nil, c.cfg.callTimeout())
	if err != nil {
		return nil, err
	}

	var list ListToolsResponse
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, fmt.Errorf("%w: tools/list result: %v", ErrProtocolViolation, err)
	}
	if err := validateTools(list.Tools); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.transport == t {
		c.tools = list.Tools
		c.toolsValid = true
	}
	c.mu.Unlock()

	logging.Debug().
		Str("server", c.cfg.Name).
		Int("tools", len(list.Tools)).
		Msg("discovered tools")

	out := make([]Tool, len(list.Tools))
	copy(out, list.Tools)
	return out, nil
}

func validateTools(tools []Tool) error {
	for i, tool := range tools {
		switch {
		case tool.Name == "":
			return fmt.Errorf("%w: tools[%d]: empty name", ErrProtocolViolation, i)
		case tool.Description == "":
			return fmt.Errorf("%w: tool %q: empty description", ErrProtocolViolation, tool.Name)
		case missingSchema(tool.InputSchema):
			return fmt.Errorf("%w: tool %q: missing inputSchema", ErrProtocolViolation, tool.Name)
		}
	}
	return nil
}

func missingSchema(schema json.RawMessage) bool {
	trimmed := bytes.TrimSpace(schema)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// CallTool invokes a tool with the configured default timeout.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*ToolResult, error) {
	return c.CallToolWithTimeout(ctx, name, args, c.cfg.callTimeout())
}

// CallToolWithTimeout invokes a tool, racing the response against a
// client-side deadline. Timeout abandons the local wait only; the
// server may keep working. Server error responses pass through with
// code, message, and data untouched.
func (c *Client) CallToolWithTimeout(ctx context.Context, name string, args json.RawMessage, timeout time.Duration) (*ToolResult, error) {
	t, corr, err := c.connected()
	if err != nil {
		return nil, err
	}

	// A restart invalidated the catalog snapshot: rediscover first.
	c.mu.Lock()
	valid := c.toolsValid
	c.mu.Unlock()
	if !valid {
		if _, err := c.DiscoverTools(ctx); err != nil {
			return nil, fmt.Errorf("rediscover tools: %w", err)
		}
	}

	start := time.Now()
	params := CallToolRequest{Name: name, Arguments: args}
	result, err := c.roundTrip(ctx, t, corr, "tools/call", params, timeout)
	if err != nil {
		logging.Warn().Err(err).
			Str("server", c.cfg.Name).
			Str("tool", name).
			Dur("elapsed", time.Since(start)).
			Msg("tool call failed")
		return nil, err
	}

	var resp CallToolResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("%w: tools/call result: %v", ErrProtocolViolation, err)
	}

	return &ToolResult{
		Content:  resp.Content,
		IsError:  resp.IsError,
		Duration: time.Since(start),
	}, nil
}

// connected returns the live transport and correlator, or the reason
// calls are not possible. In the failed state this short-circuits
// without touching the transport at all.
func (c *Client) connected() (Transport, *correlator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnected:
		return c.transport, c.corr, nil
	case StateFailed:
		return nil, nil, fmt.Errorf("%w: server %s", ErrServerUnavailable, c.cfg.Name)
	default:
		return nil, nil, fmt.Errorf("server %s is %s", c.cfg.Name, c.state)
	}
}

// Disconnect shuts the connection down: best-effort shutdown
// notification, transport close, pending calls failed. Idempotent, and
// always leaves the client in Disconnected, reconnectable later.
func (c *Client) Disconnect() error {
	// Stop the monitor first so no restart runs behind our back.
	c.mu.Lock()
	monitor := c.monitor
	c.monitor = nil
	c.mu.Unlock()
	if monitor != nil {
		monitor.stop()
	}

	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	from := c.state
	t, corr, done := c.transport, c.corr, c.dispatchDone
	c.transport, c.corr, c.dispatchDone = nil, nil, nil
	c.tools = nil
	c.toolsValid = false
	c.state = StateDisconnected
	c.mu.Unlock()

	if t != nil {
		if from == StateConnected {
			if frame, err := encodeNotification("shutdown", nil); err == nil {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				_ = t.Send(ctx, frame)
				cancel()
			}
		}
		t.Close()
		if corr != nil {
			corr.failAll(ErrTransportClosed)
		}
		if done != nil {
			<-done
		}
	}

	if from != StateDisconnected {
		c.publishState(from, StateDisconnected)
		logging.Info().Str("server", c.cfg.Name).Msg("mcp server disconnected")
	}
	return nil
}

// restart tears down the current connection and tries to bring up a new
// one, spacing consecutive attempts with the retry policy's backoff.
// After maxRestarts consecutive failures the client enters Failed and
// every later call fails fast with ErrServerUnavailable.
func (c *Client) restart(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.mu.Lock()
	prior := c.restarts
	budget := c.cfg.maxRestarts()
	from := c.state
	t, corr, done := c.transport, c.corr, c.dispatchDone
	c.transport, c.corr, c.dispatchDone = nil, nil, nil
	c.tools = nil
	c.toolsValid = false
	c.state = StateConnecting
	c.mu.Unlock()
	c.publishState(from, StateConnecting)

	if t != nil {
		t.Close()
		if corr != nil {
			corr.failAll(ErrTransportClosed)
		}
		if done != nil {
			<-done
		}
	}

	// First restart goes immediately; later ones back off.
	if prior > 0 {
		select {
		case <-time.After(c.cfg.Retry.Delay(prior - 1)):
		case <-ctx.Done():
			c.mu.Lock()
			c.state = StateDisconnected
			c.mu.Unlock()
			c.publishState(StateConnecting, StateDisconnected)
			return ctx.Err()
		}
	}

	start := time.Now()
	err := c.connectOnce(ctx)
	if err == nil {
		c.mu.Lock()
		c.restarts = 0
		c.state = StateConnected
		c.lastErr = ""
		c.mu.Unlock()
		c.publishState(StateConnecting, StateConnected)
		logging.Info().
			Str("server", c.cfg.Name).
			Int("attempt", prior+1).
			Dur("elapsed", time.Since(start)).
			Msg("mcp server restarted")
		return nil
	}

	c.mu.Lock()
	c.restarts++
	n := c.restarts
	c.lastErr = err.Error()
	if n >= budget {
		c.state = StateFailed
		c.mu.Unlock()
		c.publishState(StateConnecting, StateFailed)
		logging.Error().Err(err).
			Str("server", c.cfg.Name).
			Int("attempt", n).
			Dur("elapsed", time.Since(start)).
			Msg("mcp restart budget exhausted")
		return fmt.Errorf("%w: server %s after %d restarts: %v", ErrServerUnavailable, c.cfg.Name, n, err)
	}
	c.state = StateDisconnected
	c.mu.Unlock()
	c.publishState(StateConnecting, StateDisconnected)
	logging.Warn().Err(err).
		Str("server", c.cfg.Name).
		Int("attempt", n).
		Dur("elapsed", time.Since(start)).
		Msg("mcp restart failed")
	return err
}

// healthCheck probes the live transport. Any state other than Connected
// is unhealthy so the monitor keeps driving recovery.
func (c *Client) healthCheck(ctx context.Context) error {
	c.mu.Lock()
	st, t := c.state, c.transport
	c.mu.Unlock()

	switch {
	case st == StateFailed:
		return fmt.Errorf("%w: server %s", ErrServerUnavailable, c.cfg.Name)
	case st != StateConnected || t == nil:
		return fmt.Errorf("server %s is %s", c.cfg.Name, st)
	}
	return t.HealthCheck(ctx)
}

// pendingCalls reports the size of the in-flight request table.
func (c *Client) pendingCalls() int {
	c.mu.Lock()
	corr := c.corr
	c.mu.Unlock()
	if corr == nil {
		return 0
	}
	return corr.size()
}

func (c *Client) publishState(from, to State) {
	if from == to {
		return
	}
	event.Publish(event.Event{
		Type: event.MCPServerStateChanged,
		Data: event.MCPServerStateData{
			Server: c.cfg.Name,
			From:   string(from),
			To:     string(to),
		},
	})
}
