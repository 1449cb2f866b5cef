package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/clientdesk/internal/mailer"
)

// SandboxServer exposes messages captured by the sandbox provider
type SandboxServer struct {
	sandbox *mailer.Sandbox
}

// NewSandboxServer creates a new sandbox server
func NewSandboxServer(sb *mailer.Sandbox) *SandboxServer {
	return &SandboxServer{sandbox: sb}
}

// RegisterRoutes registers sandbox API routes
func (s *SandboxServer) RegisterRoutes(r chi.Router) {
	r.Route("/sandbox", func(r chi.Router) {
		r.Get("/messages", s.handleList)
		r.Get("/messages/{id}", s.handleGet)
		r.Delete("/messages", s.handleClear)
	})
}

// SandboxListResponse is the response for GET /api/v1/sandbox/messages
type SandboxListResponse struct {
	Messages []mailer.Captured `json:"messages"`
	Total    int               `json:"total"`
}

// handleList handles GET /api/v1/sandbox/messages
func (s *SandboxServer) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			limit = min(l, 1000)
		}
	}

	messages, err := s.sandbox.List(r.Context(), limit)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	if messages == nil {
		messages = []mailer.Captured{}
	}

	sendJSON(w, http.StatusOK, SandboxListResponse{Messages: messages, Total: len(messages)})
}

// handleGet handles GET /api/v1/sandbox/messages/{id}
func (s *SandboxServer) handleGet(w http.ResponseWriter, r *http.Request) {
	msg, err := s.sandbox.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, http.StatusNotFound, "Message not found")
		return
	}
	sendJSON(w, http.StatusOK, msg)
}

// handleClear handles DELETE /api/v1/sandbox/messages
func (s *SandboxServer) handleClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.sandbox.Clear(r.Context())
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to clear messages")
		return
	}
	sendJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
