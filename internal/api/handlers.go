package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/repository"
	"github.com/foxzi/clientdesk/internal/store"
)

const maxBodyBytes = 1 << 20

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleMe handles GET /api/v1/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, currentUser(r).Public())
}

// handleUpdateBrand handles PUT /api/v1/me/brand
func (s *Server) handleUpdateBrand(w http.ResponseWriter, r *http.Request) {
	var brand models.BrandSettings
	if !decodeJSON(w, r, &brand) {
		return
	}

	user, err := s.deps.Users.UpdateBrand(r.Context(), currentUser(r).ID, brand)
	if err != nil {
		s.sendStoreError(w, err, "user")
		return
	}
	sendJSON(w, http.StatusOK, user.Public())
}

// decodeJSON reads the request body into v, answering 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// sendStoreError maps repository and store errors to responses
func (s *Server) sendStoreError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		sendError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, repository.ErrValidation):
		sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrExists):
		sendError(w, http.StatusConflict, what+" already exists")
	default:
		s.logger.Error("storage error", "entity", what, "error", err)
		sendError(w, http.StatusInternalServerError, "Internal error")
	}
}

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, ErrorResponse{Error: message})
}
