package repository

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/store"
)

// Clients stores the freelancer's clients
type Clients struct {
	store store.Store
}

// NewClients creates a client repository
func NewClients(s store.Store) *Clients {
	return &Clients{store: s}
}

// ClientUpdate holds the fields to change, nil fields are kept
type ClientUpdate struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	Company         *string `json:"company"`
	Phone           *string `json:"phone"`
	ProjectType     *string `json:"project_type"`
	OnboardingStage *string `json:"onboarding_stage"`
	Status          *string `json:"status"`
	Notes           *string `json:"notes"`
}

// List returns the owner's clients passing the filter
func (r *Clients) List(ctx context.Context, ownerID string, filter models.ClientFilter) ([]models.Client, error) {
	all, err := store.GetAll[models.Client](ctx, r.store, store.CollectionClients, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	clients := make([]models.Client, 0, len(all))
	for i := range all {
		if filter.Match(&all[i]) {
			clients = append(clients, all[i])
		}
	}
	return clients, nil
}

// Get returns one client of the owner
func (r *Clients) Get(ctx context.Context, ownerID, id string) (*models.Client, error) {
	return getOwned[models.Client](ctx, r.store, store.CollectionClients, ownerID, id)
}

// GetMany returns the owner's clients with the given ids, in that order
func (r *Clients) GetMany(ctx context.Context, ownerID string, ids []string) ([]models.Client, error) {
	clients := make([]models.Client, 0, len(ids))
	for _, id := range ids {
		c, err := r.Get(ctx, ownerID, id)
		if err != nil {
			return nil, fmt.Errorf("client %s: %w", id, err)
		}
		clients = append(clients, *c)
	}
	return clients, nil
}

// Create validates and stores a new client
func (r *Clients) Create(ctx context.Context, ownerID string, c *models.Client) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	if err := validateClient(c); err != nil {
		return err
	}
	if c.Status == "" {
		c.Status = models.ClientStatusLead
	}
	if c.OnboardingStage == "" {
		c.OnboardingStage = models.StageDiscovery
	}

	now := time.Now().UTC()
	c.ID = store.NewID()
	c.OwnerID = ownerID
	c.CreatedAt = now
	c.UpdatedAt = now

	if _, err := store.CreateDoc(ctx, r.store, store.CollectionClients, ownerID, c.ID, c); err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// Update applies a partial update and returns the stored client
func (r *Clients) Update(ctx context.Context, ownerID, id string, u ClientUpdate) (*models.Client, error) {
	current, err := r.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	u.Name = trimmed(u.Name)
	u.Email = trimmed(u.Email)

	p := patch{}
	p.str("name", u.Name)
	p.str("email", u.Email)
	p.str("company", u.Company)
	p.str("phone", u.Phone)
	p.str("project_type", u.ProjectType)
	p.str("onboarding_stage", u.OnboardingStage)
	p.str("status", u.Status)
	p.str("notes", u.Notes)
	if len(p) == 0 {
		return current, nil
	}

	next := *current
	applyClient(&next, u)
	if err := validateClient(&next); err != nil {
		return nil, err
	}

	p["updated_at"] = time.Now().UTC()
	if err := r.store.Update(ctx, store.CollectionClients, id, p); err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	return r.Get(ctx, ownerID, id)
}

// Delete removes a client of the owner
func (r *Clients) Delete(ctx context.Context, ownerID, id string) error {
	return r.store.Delete(ctx, store.CollectionClients, id, ownerID)
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

func applyClient(c *models.Client, u ClientUpdate) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Name, u.Name)
	set(&c.Email, u.Email)
	set(&c.Company, u.Company)
	set(&c.Phone, u.Phone)
	set(&c.ProjectType, u.ProjectType)
	set(&c.OnboardingStage, u.OnboardingStage)
	set(&c.Status, u.Status)
	set(&c.Notes, u.Notes)
}

func validateClient(c *models.Client) error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("client name is required")
	}
	if c.Email == "" {
		return invalid("client email is required")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return invalid("invalid client email %q", c.Email)
	}
	switch c.Status {
	case "", models.ClientStatusLead, models.ClientStatusActive, models.ClientStatusInactive, models.ClientStatusArchived:
	default:
		return invalid("unknown client status %q", c.Status)
	}
	return nil
}
