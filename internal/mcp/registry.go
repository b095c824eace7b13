package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/waveline-ai/waveline/internal/logging"
)

// Registry holds the clients for every configured MCP server and
// presents their tools as one namespaced catalog. Tool names are
// exposed as <server>_<tool> so that two servers exporting the same
// tool never collide.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register creates a client for the given server configuration.
// Server names are unique within a registry.
func (r *Registry) Register(cfg ServerConfig) (*Client, error) {
	if cfg.Name == "" {
		return nil, errors.New("mcp server name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[cfg.Name]; ok {
		return nil, fmt.Errorf("mcp server %q already registered", cfg.Name)
	}
	c := NewClient(cfg)
	r.clients[cfg.Name] = c
	return c, nil
}

// Get returns the client for a server name.
func (r *Registry) Get(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// Names returns the registered server names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConnectAll connects every enabled server in parallel and then
// discovers their tools. One server failing does not stop the others;
// the joined error reports every failure.
func (r *Registry) ConnectAll(ctx context.Context) error {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for _, c := range clients {
		if c.cfg.Disabled {
			logging.Debug().Str("server", c.Name()).Msg("mcp server disabled, skipping")
			continue
		}
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if err := c.ConnectWithRetry(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("server %s: %w", c.Name(), err))
				errMu.Unlock()
				return
			}
			if _, err := c.DiscoverTools(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("server %s: discover tools: %w", c.Name(), err))
				errMu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// DisconnectAll shuts every client down.
func (r *Registry) DisconnectAll() {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, c := range clients {
		c.Disconnect()
	}
}

// Status snapshots every server's connection state, sorted by name.
func (r *Registry) Status() []ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ServerStatus, 0, len(r.clients))
	for name, c := range r.clients {
		out = append(out, ServerStatus{
			Name:      name,
			State:     c.State(),
			ToolCount: len(c.Tools()),
			Disabled:  c.cfg.Disabled,
			Error:     c.LastError(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AllTools returns every connected server's catalog with tool names
// prefixed by their sanitized server name.
func (r *Registry) AllTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []Tool
	for name, c := range r.clients {
		for _, tool := range c.Tools() {
			all = append(all, Tool{
				Name:        sanitizeToolName(name) + "_" + sanitizeToolName(tool.Name),
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// ServerTools returns one server's catalog in the same namespaced form
// as AllTools. The second return is false for an unknown server.
func (r *Registry) ServerTools(name string) ([]Tool, bool) {
	r.mu.RLock()
	c, ok := r.clients[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	prefix := sanitizeToolName(name) + "_"
	tools := c.Tools()
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, Tool{
			Name:        prefix + sanitizeToolName(t.Name),
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, true
}

// CallTool routes a namespaced tool name to its server and invokes it.
// The prefix is matched against sanitized server names and the original
// tool name is recovered from the server's catalog, since sanitizing is
// lossy.
func (r *Registry) CallTool(ctx context.Context, toolName string, args json.RawMessage) (*ToolResult, error) {
	r.mu.RLock()
	var (
		target   *Client
		original string
	)
	for name, c := range r.clients {
		prefix := sanitizeToolName(name) + "_"
		if !strings.HasPrefix(toolName, prefix) {
			continue
		}
		target = c
		original = strings.TrimPrefix(toolName, prefix)
		for _, t := range c.Tools() {
			if sanitizeToolName(t.Name) == original {
				original = t.Name
				break
			}
		}
		break
	}
	r.mu.RUnlock()

	if target == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownTool, toolName)
	}
	return target.CallTool(ctx, original, args)
}

// sanitizeToolName replaces non-alphanumeric chars with underscore.
func sanitizeToolName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}
	return result.String()
}
