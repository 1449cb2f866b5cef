package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/store"
)

// Templates stores email templates
type Templates struct {
	store store.Store
}

// NewTemplates creates a template repository
func NewTemplates(s store.Store) *Templates {
	return &Templates{store: s}
}

// TemplateUpdate holds the fields to change, nil fields are kept
type TemplateUpdate struct {
	Name        *string `json:"name"`
	Type        *string `json:"type"`
	Tone        *string `json:"tone"`
	Subject     *string `json:"subject"`
	Body        *string `json:"body"`
	AIGenerated *bool   `json:"ai_generated"`
}

// List returns the owner's templates, optionally of one type
func (r *Templates) List(ctx context.Context, ownerID, templateType string) ([]models.Template, error) {
	all, err := store.GetAll[models.Template](ctx, r.store, store.CollectionTemplates, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	if templateType == "" {
		return all, nil
	}

	var filtered []models.Template
	for _, t := range all {
		if t.Type == templateType {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// Get returns one template of the owner
func (r *Templates) Get(ctx context.Context, ownerID, id string) (*models.Template, error) {
	return getOwned[models.Template](ctx, r.store, store.CollectionTemplates, ownerID, id)
}

// Create validates and stores a new template
func (r *Templates) Create(ctx context.Context, ownerID string, t *models.Template) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return invalid("template name is required")
	}
	if strings.TrimSpace(t.Body) == "" {
		return invalid("template body is required")
	}
	if t.Type == "" {
		t.Type = models.TemplateCustom
	}

	now := time.Now().UTC()
	t.ID = store.NewID()
	t.OwnerID = ownerID
	t.CreatedAt = now
	t.UpdatedAt = now

	if _, err := store.CreateDoc(ctx, r.store, store.CollectionTemplates, ownerID, t.ID, t); err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// Update applies a partial update and returns the stored template
func (r *Templates) Update(ctx context.Context, ownerID, id string, u TemplateUpdate) (*models.Template, error) {
	current, err := r.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	p := patch{}
	p.str("name", u.Name)
	p.str("type", u.Type)
	p.str("tone", u.Tone)
	p.str("subject", u.Subject)
	p.str("body", u.Body)
	if u.AIGenerated != nil {
		p["ai_generated"] = *u.AIGenerated
	}
	if len(p) == 0 {
		return current, nil
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, invalid("template name is required")
	}
	if u.Body != nil && strings.TrimSpace(*u.Body) == "" {
		return nil, invalid("template body is required")
	}

	p["updated_at"] = time.Now().UTC()
	if err := r.store.Update(ctx, store.CollectionTemplates, id, p); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}
	return r.Get(ctx, ownerID, id)
}

// Delete removes a template of the owner
func (r *Templates) Delete(ctx context.Context, ownerID, id string) error {
	return r.store.Delete(ctx, store.CollectionTemplates, id, ownerID)
}
