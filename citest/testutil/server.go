// Package testutil boots an in-process waveline API server with a real
// stdio MCP fixture for the citest suites.
package testutil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/waveline-ai/waveline/internal/mcp"
	"github.com/waveline-ai/waveline/internal/server"
	"github.com/waveline-ai/waveline/internal/session"
)

// TestServer wraps a server instance for testing.
type TestServer struct {
	Server   *server.Server
	BaseURL  string
	Registry *mcp.Registry
	Sessions *session.Service
	DataDir  string
	port     int
}

// TestServerOption configures TestServer.
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	extraServers []mcp.ServerConfig
	withoutMCP   bool
}

// WithMCPServer registers an additional MCP server besides the echo
// fixture.
func WithMCPServer(cfg mcp.ServerConfig) TestServerOption {
	return func(c *testServerConfig) {
		c.extraServers = append(c.extraServers, cfg)
	}
}

// WithoutMCP skips the echo fixture, leaving the registry empty.
func WithoutMCP() TestServerOption {
	return func(c *testServerConfig) {
		c.withoutMCP = true
	}
}

// StartTestServer creates and starts a test server. Unless disabled, a
// real stdio MCP server named "echo" is registered and connected; its
// catalog carries one tool, namespaced "echo_echo".
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	dataDir, err := os.MkdirTemp("", "waveline-citest-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	registry := mcp.NewRegistry()

	if !cfg.withoutMCP {
		script, err := writeFixtureServer(dataDir)
		if err != nil {
			os.RemoveAll(dataDir)
			return nil, err
		}
		_, err = registry.Register(mcp.ServerConfig{
			Name:      "echo",
			Transport: mcp.TransportStdio,
			Command:   []string{"go", "run", script},
			// The first go run may compile.
			ConnectTimeout: 60 * time.Second,
			Timeout:        30 * time.Second,
			HealthInterval: -1,
		})
		if err != nil {
			os.RemoveAll(dataDir)
			return nil, fmt.Errorf("failed to register echo fixture: %w", err)
		}
	}
	for _, sc := range cfg.extraServers {
		if _, err := registry.Register(sc); err != nil {
			os.RemoveAll(dataDir)
			return nil, fmt.Errorf("failed to register %s: %w", sc.Name, err)
		}
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	if err := registry.ConnectAll(connectCtx); err != nil {
		registry.DisconnectAll()
		os.RemoveAll(dataDir)
		return nil, fmt.Errorf("failed to connect mcp servers: %w", err)
	}

	sessions := session.NewService(dataDir)

	port, err := findAvailablePort()
	if err != nil {
		registry.DisconnectAll()
		os.RemoveAll(dataDir)
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	serverCfg := server.DefaultConfig()
	serverCfg.Port = port

	srv := server.New(serverCfg, registry, sessions)
	go func() {
		_ = srv.Start()
	}()

	ts := &TestServer{
		Server:   srv,
		BaseURL:  fmt.Sprintf("http://127.0.0.1:%d", port),
		Registry: registry,
		Sessions: sessions,
		DataDir:  dataDir,
		port:     port,
	}

	if err := ts.waitForReady(10 * time.Second); err != nil {
		ts.Stop()
		return nil, err
	}
	return ts, nil
}

// Client returns an HTTP client bound to the server's base URL.
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// Stop shuts the server down and removes the data directory.
func (ts *TestServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ts.Server.Shutdown(ctx)
	ts.Registry.DisconnectAll()
	os.RemoveAll(ts.DataDir)
}

// waitForReady polls /health until the server answers.
func (ts *TestServer) waitForReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: time.Second}
	for time.Now().Before(deadline) {
		resp, err := client.Get(ts.BaseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("server did not become ready within %v", timeout)
}

// findAvailablePort asks the kernel for a free TCP port.
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// HasCommand reports whether name is on PATH. Suites that spawn the go
// toolchain for the MCP fixture skip when it is absent.
func HasCommand(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// writeFixtureServer writes a small Go program acting as an MCP echo
// server: newline-delimited JSON-RPC on stdin/stdout, stdlib only so
// `go run` needs no module context. The echo tool replies with the raw
// arguments JSON.
func writeFixtureServer(dir string) (string, error) {
	script := filepath.Join(dir, "echo_server.go")
	src := `package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

type request struct {
	JSONRPC string          ` + "`json:\"jsonrpc\"`" + `
	ID      *int            ` + "`json:\"id,omitempty\"`" + `
	Method  string          ` + "`json:\"method\"`" + `
	Params  json.RawMessage ` + "`json:\"params,omitempty\"`" + `
}

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		if req.ID == nil {
			continue
		}

		var result string
		switch req.Method {
		case "initialize":
			result = ` + "`" + `{"protocolVersion":"2024-11-05","capabilities":{"tools":{}},"serverInfo":{"name":"echo","version":"1.0"}}` + "`" + `
		case "tools/list":
			result = ` + "`" + `{"tools":[{"name":"echo","description":"Echoes input","inputSchema":{"type":"object"}}]}` + "`" + `
		case "tools/call":
			var call struct {
				Arguments json.RawMessage ` + "`json:\"arguments\"`" + `
			}
			json.Unmarshal(req.Params, &call)
			text, _ := json.Marshal(string(call.Arguments))
			result = fmt.Sprintf(` + "`" + `{"content":[{"type":"text","text":%s}],"isError":false}` + "`" + `, text)
		default:
			result = "{}"
		}
		fmt.Printf("{\"jsonrpc\":\"2.0\",\"id\":%d,\"result\":%s}\n", *req.ID, result)
	}
}
`
	if err := os.WriteFile(script, []byte(src), 0o644); err != nil {
		return "", fmt.Errorf("failed to write fixture server: %w", err)
	}
	return script, nil
}
