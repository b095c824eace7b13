package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/waveline-ai/waveline/internal/mcp"
	"github.com/waveline-ai/waveline/internal/storage"
	"github.com/waveline-ai/waveline/pkg/types"
)

// health reports process liveness.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listServers returns the connection snapshot of every registered MCP
// server.
func (s *Server) listServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Status())
}

// serverTools returns one server's tool catalog in namespaced form.
func (s *Server) serverTools(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	tools, ok := s.registry.ServerTools(name)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("unknown mcp server %q", name))
		return
	}

	out := make([]types.ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		out = append(out, types.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			Server:      name,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// CallToolRequest is the body of POST /api/servers/{name}/call. Tool
// takes the namespaced catalog name as returned by the tools listing.
type CallToolRequest struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResponse carries a tool invocation result.
type CallToolResponse struct {
	Content    []mcp.Content `json:"content"`
	IsError    bool          `json:"isError"`
	DurationMS int64         `json:"durationMs"`
}

// callTool invokes a tool. The namespaced tool name carries the
// routing; {name} in the path is checked for existence so callers get
// a clean 404 for typo'd servers.
func (s *Server) callTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if _, ok := s.registry.Get(name); !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("unknown mcp server %q", name))
		return
	}

	var req CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Tool == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "tool is required")
		return
	}

	args := req.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	res, err := s.registry.CallTool(r.Context(), req.Tool, args)
	if err != nil {
		switch {
		case errors.Is(err, mcp.ErrUnknownTool):
			writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		case errors.Is(err, mcp.ErrServerUnavailable):
			writeError(w, http.StatusServiceUnavailable, ErrCodeServerUnavailable, err.Error())
		case errors.Is(err, mcp.ErrToolCallTimeout):
			writeError(w, http.StatusGatewayTimeout, ErrCodeToolTimeout, err.Error())
		default:
			writeError(w, http.StatusBadGateway, ErrCodeToolError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, CallToolResponse{
		Content:    res.Content,
		IsError:    res.IsError,
		DurationMS: res.Duration.Milliseconds(),
	})
}

// listSessions returns every recorded session with its usage totals.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*types.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// sessionUsage returns the token totals for one session.
func (s *Server) sessionUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	usage, err := s.sessions.Usage(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("unknown session %q", id))
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, usage)
}
