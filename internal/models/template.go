package models

import "time"

// Template types
const (
	TemplateWelcome    = "welcome"
	TemplateFollowUp   = "follow_up"
	TemplateProposal   = "proposal"
	TemplateInvoice    = "invoice"
	TemplateReminder   = "reminder"
	TemplateThankYou   = "thank_you"
	TemplateNewsletter = "newsletter"
	TemplateCustom     = "custom"
)

// Template is a reusable email body with variable placeholders
type Template struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Type        string    `json:"type,omitempty"`
	Tone        string    `json:"tone,omitempty"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	AIGenerated bool      `json:"ai_generated,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
