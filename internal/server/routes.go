package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		// MCP servers
		r.Route("/servers", func(r chi.Router) {
			r.Get("/", s.listServers)
			r.Get("/{name}/tools", s.serverTools)
			r.Post("/{name}/call", s.callTool)
		})

		// Sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Get("/{sessionID}/usage", s.sessionUsage)
		})
	})

	// Event streaming (SSE)
	r.Get("/events", s.events)
}
