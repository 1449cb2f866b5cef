// Package generate drafts email template bodies with a language model.
package generate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/foxzi/clientdesk/internal/config"
)

var (
	// ErrUnavailable is returned when no generation backend is configured
	ErrUnavailable = errors.New("template generation is not configured")
	// ErrEmptyResponse is returned when the model produced no usable text
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// Tones
const (
	ToneProfessional = "professional"
	ToneFriendly     = "friendly"
	ToneCasual       = "casual"
	ToneFormal       = "formal"
)

// Request describes the template to draft
type Request struct {
	Type           string `json:"type"`
	ClientName     string `json:"client_name,omitempty"`
	ClientEmail    string `json:"client_email,omitempty"`
	ClientCompany  string `json:"client_company,omitempty"`
	ProjectType    string `json:"project_type,omitempty"`
	BusinessType   string `json:"business_type,omitempty"`
	Tone           string `json:"tone,omitempty"`
	BrandName      string `json:"brand_name,omitempty"`
	FreelancerName string `json:"freelancer_name,omitempty"`
	UseClientData  bool   `json:"use_client_data"`
}

// Generator drafts a template body
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Unavailable is the Generator used when generation is disabled
type Unavailable struct{}

// Generate always fails with ErrUnavailable
func (Unavailable) Generate(context.Context, Request) (string, error) {
	return "", ErrUnavailable
}

// New builds the configured generator, or Unavailable when disabled
func New(cfg config.GenerationConfig, logger *slog.Logger) Generator {
	if !cfg.Enabled || cfg.BaseURL == "" {
		return Unavailable{}
	}

	client := NewClient(cfg, logger)
	return NewDrafter(client, cfg.CacheTTL, logger)
}
