package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/repository"
)

// ClientListResponse is the response for GET /api/v1/clients
type ClientListResponse struct {
	Clients []models.Client `json:"clients"`
	Total   int             `json:"total"`
}

func clientFilter(r *http.Request) models.ClientFilter {
	q := r.URL.Query()
	return models.ClientFilter{
		Status:          q.Get("status"),
		OnboardingStage: q.Get("stage"),
		ProjectType:     q.Get("project_type"),
		Search:          q.Get("q"),
	}
}

// handleListClients handles GET /api/v1/clients
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.deps.Clients.List(r.Context(), currentUser(r).ID, clientFilter(r))
	if err != nil {
		s.sendStoreError(w, err, "client")
		return
	}
	sendJSON(w, http.StatusOK, ClientListResponse{Clients: clients, Total: len(clients)})
}

// handleCreateClient handles POST /api/v1/clients
func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var c models.Client
	if !decodeJSON(w, r, &c) {
		return
	}

	if err := s.deps.Clients.Create(r.Context(), currentUser(r).ID, &c); err != nil {
		s.sendStoreError(w, err, "client")
		return
	}

	s.logger.Info("client created", "client_id", c.ID, "owner_id", c.OwnerID)
	sendJSON(w, http.StatusCreated, c)
}

// handleGetClient handles GET /api/v1/clients/{id}
func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Clients.Get(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.sendStoreError(w, err, "client")
		return
	}
	sendJSON(w, http.StatusOK, c)
}

// handleUpdateClient handles PUT /api/v1/clients/{id}
func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	var u repository.ClientUpdate
	if !decodeJSON(w, r, &u) {
		return
	}

	c, err := s.deps.Clients.Update(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"), u)
	if err != nil {
		s.sendStoreError(w, err, "client")
		return
	}
	sendJSON(w, http.StatusOK, c)
}

// handleDeleteClient handles DELETE /api/v1/clients/{id}
func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Clients.Delete(r.Context(), currentUser(r).ID, id); err != nil {
		s.sendStoreError(w, err, "client")
		return
	}

	s.logger.Info("client deleted", "client_id", id)
	w.WriteHeader(http.StatusNoContent)
}
