package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeToolName(t *testing.T) {
	assert.Equal(t, "my_server", sanitizeToolName("my-server"))
	assert.Equal(t, "read_file", sanitizeToolName("read.file"))
	assert.Equal(t, "abc123", sanitizeToolName("abc123"))
	assert.Equal(t, "a_b_c", sanitizeToolName("a b/c"))
	assert.Equal(t, "", sanitizeToolName(""))
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewRegistry()

	cfg := testConfig()
	cfg.Name = "alpha"
	_, err := reg.Register(cfg)
	require.NoError(t, err)

	_, err = reg.Register(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_RegisterRequiresName(t *testing.T) {
	reg := NewRegistry()

	cfg := testConfig()
	cfg.Name = ""
	_, err := reg.Register(cfg)
	require.Error(t, err)
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		cfg := testConfig()
		cfg.Name = name
		_, err := reg.Register(cfg)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())
}

// registerFake registers a server backed by a fake transport factory
// serving the given tools.
func registerFake(t *testing.T, reg *Registry, name string, tools []Tool) (*Client, *fakeFactory) {
	t.Helper()

	cfg := testConfig()
	cfg.Name = name
	c, err := reg.Register(cfg)
	require.NoError(t, err)

	ff := &fakeFactory{setup: func(ft *fakeTransport) {
		ft.responder = serverResponder(tools, map[string]func(*fakeTransport, sentRequest){
			// Reply with the tool name the server received, so routing
			// tests can assert the original name came through.
			"tools/call": func(f *fakeTransport, req sentRequest) {
				var call CallToolRequest
				_ = json.Unmarshal(req.Params, &call)
				f.pushResult(*req.ID, CallToolResponse{
					Content: []Content{{Type: "text", Text: call.Name}},
				})
			},
		})
	}}
	c.transportFactory = ff.new
	return c, ff
}

func TestRegistry_AllToolsNamespaced(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)
	reg := NewRegistry()
	registerFake(t, reg, "alpha", []Tool{
		{Name: "echo", Description: "d", InputSchema: schema},
	})
	registerFake(t, reg, "my-server", []Tool{
		{Name: "echo", Description: "d", InputSchema: schema},
		{Name: "read-file", Description: "d", InputSchema: schema},
	})

	require.NoError(t, reg.ConnectAll(context.Background()))
	defer reg.DisconnectAll()

	var names []string
	for _, tool := range reg.AllTools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"alpha_echo", "my_server_echo", "my_server_read_file"}, names)
}

func TestRegistry_ServerTools(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)
	reg := NewRegistry()
	registerFake(t, reg, "my-server", []Tool{
		{Name: "read-file", Description: "d", InputSchema: schema},
		{Name: "echo", Description: "d", InputSchema: schema},
	})

	require.NoError(t, reg.ConnectAll(context.Background()))
	defer reg.DisconnectAll()

	tools, ok := reg.ServerTools("my-server")
	require.True(t, ok)
	require.Len(t, tools, 2)
	assert.Equal(t, "my_server_echo", tools[0].Name)
	assert.Equal(t, "my_server_read_file", tools[1].Name)

	_, ok = reg.ServerTools("ghost")
	assert.False(t, ok)
}

func TestRegistry_CallToolRoutes(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)
	reg := NewRegistry()
	registerFake(t, reg, "alpha", []Tool{
		{Name: "echo", Description: "d", InputSchema: schema},
	})
	registerFake(t, reg, "my-server", []Tool{
		{Name: "read-file", Description: "d", InputSchema: schema},
	})

	require.NoError(t, reg.ConnectAll(context.Background()))
	defer reg.DisconnectAll()

	// The sanitized prefix routes to the right server, and the original
	// tool name is restored before the wire call.
	res, err := reg.CallTool(context.Background(), "my_server_read_file", nil)
	require.NoError(t, err)
	assert.Equal(t, "read-file", res.Text())

	res, err = reg.CallTool(context.Background(), "alpha_echo", nil)
	require.NoError(t, err)
	assert.Equal(t, "echo", res.Text())

	_, err = reg.CallTool(context.Background(), "nobody_home", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no server found")
}

func TestRegistry_ConnectAllPartialFailure(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)
	reg := NewRegistry()
	good, _ := registerFake(t, reg, "good", []Tool{
		{Name: "echo", Description: "d", InputSchema: schema},
	})

	cfg := testConfig()
	cfg.Name = "bad"
	bad, err := reg.Register(cfg)
	require.NoError(t, err)
	badFF := &fakeFactory{setup: func(ft *fakeTransport) {
		ft.connectErr = fmt.Errorf("%w: no such command", ErrTransportUnavailable)
	}}
	bad.transportFactory = badFF.new

	err = reg.ConnectAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	defer reg.DisconnectAll()

	// The good server connected and discovered despite the failure.
	assert.Equal(t, StateConnected, good.State())
	assert.NotEmpty(t, good.Tools())
	assert.Equal(t, StateFailed, bad.State())
}

func TestRegistry_DisabledSkipped(t *testing.T) {
	reg := NewRegistry()

	cfg := testConfig()
	cfg.Name = "off"
	cfg.Disabled = true
	c, err := reg.Register(cfg)
	require.NoError(t, err)
	ff := healthyFactory()
	c.transportFactory = ff.new

	require.NoError(t, reg.ConnectAll(context.Background()))
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 0, ff.count())

	statuses := reg.Status()
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Disabled)
}

func TestRegistry_Status(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)
	reg := NewRegistry()
	registerFake(t, reg, "beta", []Tool{
		{Name: "echo", Description: "d", InputSchema: schema},
		{Name: "other", Description: "d", InputSchema: schema},
	})
	registerFake(t, reg, "alpha", []Tool{
		{Name: "echo", Description: "d", InputSchema: schema},
	})

	require.NoError(t, reg.ConnectAll(context.Background()))
	defer reg.DisconnectAll()

	statuses := reg.Status()
	require.Len(t, statuses, 2)
	assert.Equal(t, "alpha", statuses[0].Name)
	assert.Equal(t, StateConnected, statuses[0].State)
	assert.Equal(t, 1, statuses[0].ToolCount)
	assert.Equal(t, "beta", statuses[1].Name)
	assert.Equal(t, 2, statuses[1].ToolCount)
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Get("nope")
	assert.False(t, ok)
}
