package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseTestServer simulates an HTTP+SSE MCP server: a streaming GET at
// /events that announces its POST endpoint, and /rpc accepting frames.
type sseTestServer struct {
	*httptest.Server
	stream    chan string
	posts     chan []byte
	announce  bool
	failPosts atomic.Bool
	healthy   atomic.Bool
}

func newSSETestServer(t *testing.T, announce bool) *sseTestServer {
	t.Helper()
	s := &sseTestServer{
		stream:   make(chan string, 32),
		posts:    make(chan []byte, 32),
		announce: announce,
	}
	s.healthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if s.announce {
			fmt.Fprint(w, "event: endpoint\ndata: /rpc\n\n")
		}
		flusher.Flush()
		for {
			select {
			case block := <-s.stream:
				fmt.Fprint(w, block)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		if s.failPosts.Load() {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.posts <- body
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !s.healthy.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

func (s *sseTestServer) pushData(frame string) {
	s.stream <- "data: " + frame + "\n\n"
}

func (s *sseTestServer) pushComment() {
	s.stream <- ": keepalive\n\n"
}

// respond answers POSTed requests like a minimal MCP server, pushing
// responses onto the event stream.
func (s *sseTestServer) respond() {
	go func() {
		for frame := range s.posts {
			req := decodeSent(frame)
			if req.ID == nil {
				continue
			}
			var result any
			switch req.Method {
			case "initialize":
				result = InitializeResponse{
					ProtocolVersion: ProtocolVersion,
					ServerInfo:      ServerInfo{Name: "sse-server", Version: "0.1"},
				}
			case "tools/list":
				result = ListToolsResponse{Tools: testTools()}
			case "tools/call":
				var call CallToolRequest
				_ = json.Unmarshal(req.Params, &call)
				result = CallToolResponse{
					Content: []Content{{Type: "text", Text: string(call.Arguments)}},
				}
			default:
				result = map[string]any{}
			}
			raw, _ := json.Marshal(map[string]any{
				"jsonrpc": "2.0",
				"id":      *req.ID,
				"result":  result,
			})
			s.pushData(string(raw))
		}
	}()
}

func TestSSETransport_RequiresURL(t *testing.T) {
	_, err := newSSETransport(ServerConfig{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a url")
}

func TestSSETransport_ConnectNon200(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tr, err := newSSETransport(ServerConfig{Name: "x", URL: srv.URL + "/events"})
	require.NoError(t, err)
	err = tr.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}

func TestSSETransport_ConnectWaitsForEndpoint(t *testing.T) {
	s := newSSETestServer(t, false) // never announces

	tr, err := newSSETransport(ServerConfig{Name: "sse", URL: s.URL + "/events"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err = tr.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}

func TestSSETransport_PinnedPostURLSkipsAnnouncement(t *testing.T) {
	s := newSSETestServer(t, false)

	tr, err := newSSETransport(ServerConfig{
		Name:    "sse",
		URL:     s.URL + "/events",
		PostURL: s.URL + "/rpc",
	})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	require.NoError(t, tr.Send(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	select {
	case frame := <-s.posts:
		assert.Contains(t, string(frame), `"ping"`)
	case <-time.After(time.Second):
		t.Fatal("frame never reached the POST endpoint")
	}
}

func TestSSETransport_EndpointAnnouncementRoutesSends(t *testing.T) {
	s := newSSETestServer(t, true)

	tr, err := newSSETransport(ServerConfig{Name: "sse", URL: s.URL + "/events"})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	// The relative announcement resolved against the stream URL.
	tr.mu.Lock()
	post := tr.postURL
	tr.mu.Unlock()
	assert.Equal(t, s.URL+"/rpc", post)

	require.NoError(t, tr.Send(context.Background(), []byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}`)))
	select {
	case frame := <-s.posts:
		assert.Contains(t, string(frame), `"id":7`)
	case <-time.After(time.Second):
		t.Fatal("frame never reached the announced endpoint")
	}
}

func TestSSETransport_ReceiveSkipsHeartbeats(t *testing.T) {
	s := newSSETestServer(t, true)

	tr, err := newSSETransport(ServerConfig{Name: "sse", URL: s.URL + "/events"})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	s.pushComment()
	s.pushComment()
	s.pushData(`{"jsonrpc":"2.0","id":1,"result":{}}`)

	frame, err := tr.Receive()
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, string(frame))
}

func TestSSETransport_SendErrorStatus(t *testing.T) {
	s := newSSETestServer(t, true)

	tr, err := newSSETransport(ServerConfig{Name: "sse", URL: s.URL + "/events"})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	s.failPosts.Store(true)
	err = tr.Send(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}

func TestSSETransport_CloseUnblocksReceive(t *testing.T) {
	s := newSSETestServer(t, true)

	tr, err := newSSETransport(ServerConfig{Name: "sse", URL: s.URL + "/events"})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))

	received := make(chan error, 1)
	go func() {
		_, err := tr.Receive()
		received <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, tr.Close())

	select {
	case err := <-received:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not unblock after Close")
	}
	require.NoError(t, tr.Close())
}

func TestSSETransport_HealthURL(t *testing.T) {
	s := newSSETestServer(t, true)

	tr, err := newSSETransport(ServerConfig{
		Name:      "sse",
		URL:       s.URL + "/events",
		HealthURL: s.URL + "/health",
	})
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	require.NoError(t, tr.HealthCheck(context.Background()))

	s.healthy.Store(false)
	err = tr.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSSETransport_EndToEnd(t *testing.T) {
	s := newSSETestServer(t, true)
	s.respond()

	cfg := ServerConfig{
		Name:           "sse",
		Transport:      TransportSSE,
		URL:            s.URL + "/events",
		HealthInterval: -1,
	}
	c := NewClient(cfg)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	require.NotNil(t, c.ServerInfo())
	assert.Equal(t, "sse-server", c.ServerInfo().Name)

	tools, err := c.DiscoverTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 2)

	res, err := c.CallTool(context.Background(), "echo", json.RawMessage(`{"n":42}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":42}`, res.Content[0].Text)
}
