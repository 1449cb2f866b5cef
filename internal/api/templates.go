package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/clientdesk/internal/content"
	"github.com/foxzi/clientdesk/internal/generate"
	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/repository"
	"github.com/foxzi/clientdesk/internal/variables"
)

// TemplateListResponse is the response for GET /api/v1/templates
type TemplateListResponse struct {
	Templates []models.Template `json:"templates"`
	Total     int               `json:"total"`
}

// RenderRequest selects the context used to resolve variables
type RenderRequest struct {
	ClientID        string            `json:"client_id,omitempty"`
	ProjectType     string            `json:"project_type,omitempty"`
	CustomVariables map[string]string `json:"custom_variables,omitempty"`
}

// ValidateRequest is the request body for POST /api/v1/templates/validate
type ValidateRequest struct {
	RenderRequest
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
}

// PreviewResponse is the response for POST /api/v1/templates/{id}/preview
type PreviewResponse struct {
	Subject    string               `json:"subject"`
	HTML       string               `json:"html"`
	Text       string               `json:"text"`
	Validation variables.Validation `json:"validation"`
}

// VariablesResponse is the response for GET /api/v1/variables
type VariablesResponse struct {
	Catalog []variables.Definition `json:"catalog"`
	Values  variables.Map          `json:"values"`
}

// GenerateRequest is the request body for POST /api/v1/templates/generate
type GenerateRequest struct {
	generate.Request
	ClientID     string `json:"client_id,omitempty"`
	FallbackBody string `json:"fallback_body,omitempty"`

	// Save stores the generated body as a new template
	Save    bool   `json:"save,omitempty"`
	Name    string `json:"name,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// GenerateResponse is the response for POST /api/v1/templates/generate
type GenerateResponse struct {
	Body     string           `json:"body"`
	Template *models.Template `json:"template,omitempty"`
}

// GenerateErrorResponse keeps the caller's fallback body on failure
type GenerateErrorResponse struct {
	Error        string `json:"error"`
	FallbackBody string `json:"fallback_body"`
}

// handleListTemplates handles GET /api/v1/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.deps.Templates.List(r.Context(), currentUser(r).ID, r.URL.Query().Get("type"))
	if err != nil {
		s.sendStoreError(w, err, "template")
		return
	}
	sendJSON(w, http.StatusOK, TemplateListResponse{Templates: templates, Total: len(templates)})
}

// handleCreateTemplate handles POST /api/v1/templates
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t models.Template
	if !decodeJSON(w, r, &t) {
		return
	}

	if err := s.deps.Templates.Create(r.Context(), currentUser(r).ID, &t); err != nil {
		s.sendStoreError(w, err, "template")
		return
	}

	s.logger.Info("template created", "template_id", t.ID, "name", t.Name)
	sendJSON(w, http.StatusCreated, t)
}

// handleGetTemplate handles GET /api/v1/templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Templates.Get(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.sendStoreError(w, err, "template")
		return
	}
	sendJSON(w, http.StatusOK, t)
}

// handleUpdateTemplate handles PUT /api/v1/templates/{id}
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var u repository.TemplateUpdate
	if !decodeJSON(w, r, &u) {
		return
	}

	t, err := s.deps.Templates.Update(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"), u)
	if err != nil {
		s.sendStoreError(w, err, "template")
		return
	}
	sendJSON(w, http.StatusOK, t)
}

// handleDeleteTemplate handles DELETE /api/v1/templates/{id}
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Templates.Delete(r.Context(), currentUser(r).ID, chi.URLParam(r, "id")); err != nil {
		s.sendStoreError(w, err, "template")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePreviewTemplate handles POST /api/v1/templates/{id}/preview
func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	t, err := s.deps.Templates.Get(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.sendStoreError(w, err, "template")
		return
	}

	vctx, ok := s.variableContext(w, r, req)
	if !ok {
		return
	}

	vars := s.deps.Engine.AvailableVariables(vctx)
	htmlBody, textBody, err := content.Render(t.Body, s.deps.Engine.Fill(vars))
	if err != nil {
		sendError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	sendJSON(w, http.StatusOK, PreviewResponse{
		Subject:    s.deps.Engine.Substitute(t.Subject, vars),
		HTML:       htmlBody,
		Text:       textBody,
		Validation: s.deps.Engine.Validate(t.Subject+"\n"+t.Body, vars),
	})
}

// handleValidateTemplate handles POST /api/v1/templates/validate
func (s *Server) handleValidateTemplate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" && strings.TrimSpace(req.Subject) == "" {
		sendError(w, http.StatusBadRequest, "content is required")
		return
	}

	vctx, ok := s.variableContext(w, r, req.RenderRequest)
	if !ok {
		return
	}

	text := req.Content
	if req.Subject != "" {
		text = req.Subject + "\n" + text
	}
	sendJSON(w, http.StatusOK, s.deps.Engine.ValidateTemplate(text, vctx))
}

// handleVariables handles GET /api/v1/variables
func (s *Server) handleVariables(w http.ResponseWriter, r *http.Request) {
	vctx, ok := s.variableContext(w, r, RenderRequest{
		ClientID:    r.URL.Query().Get("client_id"),
		ProjectType: r.URL.Query().Get("project_type"),
	})
	if !ok {
		return
	}

	sendJSON(w, http.StatusOK, VariablesResponse{
		Catalog: variables.Catalog(),
		Values:  s.deps.Engine.AvailableVariables(vctx),
	})
}

// handleGenerateTemplate handles POST /api/v1/templates/generate
func (s *Server) handleGenerateTemplate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user := currentUser(r)
	genReq := req.Request
	if genReq.FreelancerName == "" {
		genReq.FreelancerName = user.Name
	}
	if genReq.BrandName == "" {
		genReq.BrandName = user.Brand.CompanyName
	}
	if req.ClientID != "" {
		client, err := s.deps.Clients.Get(r.Context(), user.ID, req.ClientID)
		if err != nil {
			s.sendStoreError(w, err, "client")
			return
		}
		fillClient(&genReq, client)
	}

	body, err := s.deps.Generator.Generate(r.Context(), genReq)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, generate.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Warn("template generation failed", "owner_id", user.ID, "error", err)
		sendJSON(w, status, GenerateErrorResponse{
			Error:        err.Error(),
			FallbackBody: req.FallbackBody,
		})
		return
	}

	resp := GenerateResponse{Body: body}
	if req.Save {
		t := &models.Template{
			Name:        req.Name,
			Type:        genReq.Type,
			Tone:        genReq.Tone,
			Subject:     req.Subject,
			Body:        body,
			AIGenerated: true,
		}
		if t.Name == "" {
			t.Name = "Generated " + strings.ReplaceAll(genReq.Type, "_", " ")
		}
		if err := s.deps.Templates.Create(r.Context(), user.ID, t); err != nil {
			s.sendStoreError(w, err, "template")
			return
		}
		resp.Template = t
	}

	sendJSON(w, http.StatusOK, resp)
}

func fillClient(req *generate.Request, c *models.Client) {
	if req.ClientName == "" {
		req.ClientName = c.Name
	}
	if req.ClientEmail == "" {
		req.ClientEmail = c.Email
	}
	if req.ClientCompany == "" {
		req.ClientCompany = c.Company
	}
	if req.ProjectType == "" {
		req.ProjectType = c.ProjectType
	}
}

// variableContext builds the variable context for the current user,
// answering 404 when the referenced client does not exist
func (s *Server) variableContext(w http.ResponseWriter, r *http.Request, req RenderRequest) (variables.Context, bool) {
	vctx := variables.Context{
		User:            currentUser(r),
		ProjectType:     req.ProjectType,
		CustomVariables: req.CustomVariables,
	}

	if req.ClientID != "" {
		client, err := s.deps.Clients.Get(r.Context(), vctx.User.ID, req.ClientID)
		if err != nil {
			s.sendStoreError(w, err, "client")
			return vctx, false
		}
		vctx.Client = client
		if vctx.ProjectType == "" {
			vctx.ProjectType = client.ProjectType
		}
	}
	return vctx, true
}
