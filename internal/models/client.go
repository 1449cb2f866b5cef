package models

import (
	"strings"
	"time"
)

// Client statuses
const (
	ClientStatusLead     = "lead"
	ClientStatusActive   = "active"
	ClientStatusInactive = "inactive"
	ClientStatusArchived = "archived"
)

// Onboarding stages
const (
	StageDiscovery  = "discovery"
	StageProposal   = "proposal"
	StageContract   = "contract"
	StageOnboarding = "onboarding"
	StageActive     = "active"
	StageCompleted  = "completed"
)

// Client represents a customer of the freelancer
type Client struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Company         string    `json:"company,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	ProjectType     string    `json:"project_type,omitempty"`
	OnboardingStage string    `json:"onboarding_stage,omitempty"`
	Status          string    `json:"status,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ClientFilter narrows a client list
type ClientFilter struct {
	Status          string
	OnboardingStage string
	ProjectType     string
	Search          string
}

// Match reports whether the client passes the filter
func (f ClientFilter) Match(c *Client) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.OnboardingStage != "" && c.OnboardingStage != f.OnboardingStage {
		return false
	}
	if f.ProjectType != "" && c.ProjectType != f.ProjectType {
		return false
	}
	if f.Search != "" {
		search := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Email), search) &&
			!strings.Contains(strings.ToLower(c.Company), search) {
			return false
		}
	}
	return true
}
