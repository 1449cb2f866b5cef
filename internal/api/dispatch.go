package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/clientdesk/internal/dispatch"
	"github.com/foxzi/clientdesk/internal/models"
)

// DispatchRequest is the request body for POST /api/v1/dispatch.
// Recipients are the listed clients, or every client matching Filter
// when ClientIDs is empty.
type DispatchRequest struct {
	TemplateID      string            `json:"template_id,omitempty"`
	Subject         string            `json:"subject,omitempty"`
	Content         string            `json:"content,omitempty"`
	ClientIDs       []string          `json:"client_ids,omitempty"`
	Filter          *DispatchFilter   `json:"filter,omitempty"`
	CustomVariables map[string]string `json:"custom_variables,omitempty"`
}

// DispatchFilter selects recipients by client attributes
type DispatchFilter struct {
	Status          string `json:"status,omitempty"`
	OnboardingStage string `json:"onboarding_stage,omitempty"`
	ProjectType     string `json:"project_type,omitempty"`
	Search          string `json:"search,omitempty"`
}

// RunResponse is a run snapshot with its summary
type RunResponse struct {
	dispatch.Run
	Summary dispatch.Summary `json:"summary"`
}

// RunListResponse is the response for GET /api/v1/runs
type RunListResponse struct {
	Runs  []RunResponse `json:"runs"`
	Total int           `json:"total"`
}

func runResponse(run dispatch.Run) RunResponse {
	return RunResponse{Run: run, Summary: dispatch.Summarize(run)}
}

// handleDispatch handles POST /api/v1/dispatch
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user := currentUser(r)
	if req.TemplateID != "" {
		t, err := s.deps.Templates.Get(r.Context(), user.ID, req.TemplateID)
		if err != nil {
			s.sendStoreError(w, err, "template")
			return
		}
		if req.Subject == "" {
			req.Subject = t.Subject
		}
		if req.Content == "" {
			req.Content = t.Body
		}
	}

	recipients, err := s.recipients(r.Context(), user.ID, &req)
	if err != nil {
		s.sendStoreError(w, err, "client")
		return
	}
	if len(recipients) == 0 {
		sendError(w, http.StatusBadRequest, "no recipients")
		return
	}

	dreq := dispatch.Request{
		Recipients:      recipients,
		Sender:          user,
		Subject:         req.Subject,
		Content:         req.Content,
		CustomVariables: req.CustomVariables,
	}
	run, err := s.deps.Dispatcher.Prepare(dreq)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, dispatch.ErrNoSender) {
			status = http.StatusServiceUnavailable
		}
		sendError(w, status, err.Error())
		return
	}

	s.deps.Tracker.Launch(s.deps.RunContext, *run, func(ctx context.Context) {
		s.deps.Dispatcher.Execute(ctx, dreq, run)
	})

	s.logger.Info("dispatch accepted", "run_id", run.ID, "owner_id", user.ID, "recipients", len(recipients))
	sendJSON(w, http.StatusAccepted, runResponse(*run))
}

func (s *Server) recipients(ctx context.Context, ownerID string, req *DispatchRequest) ([]models.Client, error) {
	if len(req.ClientIDs) > 0 {
		return s.deps.Clients.GetMany(ctx, ownerID, req.ClientIDs)
	}

	var filter models.ClientFilter
	if req.Filter != nil {
		filter = models.ClientFilter{
			Status:          req.Filter.Status,
			OnboardingStage: req.Filter.OnboardingStage,
			ProjectType:     req.Filter.ProjectType,
			Search:          req.Filter.Search,
		}
	}
	return s.deps.Clients.List(ctx, ownerID, filter)
}

// handleListRuns handles GET /api/v1/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.deps.Tracker.List(currentUser(r).ID)

	resp := RunListResponse{
		Runs:  make([]RunResponse, len(runs)),
		Total: len(runs),
	}
	for i, run := range runs {
		resp.Runs[i] = runResponse(run)
	}
	sendJSON(w, http.StatusOK, resp)
}

// handleGetRun handles GET /api/v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Tracker.Get(chi.URLParam(r, "id"), currentUser(r).ID)
	if err != nil {
		sendError(w, http.StatusNotFound, "run not found")
		return
	}
	sendJSON(w, http.StatusOK, runResponse(run))
}

// handleCancelRun handles POST /api/v1/runs/{id}/cancel
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.deps.Tracker.Cancel(id, currentUser(r).ID)
	switch {
	case errors.Is(err, dispatch.ErrRunNotFound):
		sendError(w, http.StatusNotFound, "run not found")
		return
	case errors.Is(err, dispatch.ErrRunFinished):
		sendError(w, http.StatusConflict, err.Error())
		return
	}

	s.logger.Info("dispatch cancel requested", "run_id", id)
	sendJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}
