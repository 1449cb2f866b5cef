package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/store"
)

// Invoices stores invoices issued to clients
type Invoices struct {
	store   store.Store
	clients *Clients
}

// NewInvoices creates an invoice repository
func NewInvoices(s store.Store, clients *Clients) *Invoices {
	return &Invoices{store: s, clients: clients}
}

// InvoiceUpdate holds the fields to change, nil fields are kept
type InvoiceUpdate struct {
	Number   *string            `json:"number"`
	Items    *[]models.LineItem `json:"items"`
	Currency *string            `json:"currency"`
	Status   *string            `json:"status"`
	Notes    *string            `json:"notes"`
	DueAt    *time.Time         `json:"due_at"`
}

// List returns the owner's invoices, optionally for one client
func (r *Invoices) List(ctx context.Context, ownerID, clientID string) ([]models.Invoice, error) {
	all, err := store.GetAll[models.Invoice](ctx, r.store, store.CollectionInvoices, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	if clientID == "" {
		return all, nil
	}

	var filtered []models.Invoice
	for _, inv := range all {
		if inv.ClientID == clientID {
			filtered = append(filtered, inv)
		}
	}
	return filtered, nil
}

// Get returns one invoice of the owner
func (r *Invoices) Get(ctx context.Context, ownerID, id string) (*models.Invoice, error) {
	return getOwned[models.Invoice](ctx, r.store, store.CollectionInvoices, ownerID, id)
}

// Create validates and stores a new invoice. A number is assigned when missing.
func (r *Invoices) Create(ctx context.Context, ownerID string, inv *models.Invoice) error {
	if inv.ClientID == "" {
		return invalid("invoice client_id is required")
	}
	if _, err := r.clients.Get(ctx, ownerID, inv.ClientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalid("client %s not found", inv.ClientID)
		}
		return err
	}
	if err := validateItems(inv.Items); err != nil {
		return err
	}
	if inv.Status == "" {
		inv.Status = models.InvoiceDraft
	}
	if err := validateInvoiceStatus(inv.Status); err != nil {
		return err
	}

	now := time.Now().UTC()
	if inv.Number == "" {
		existing, err := store.GetAll[models.Invoice](ctx, r.store, store.CollectionInvoices, ownerID)
		if err != nil {
			return fmt.Errorf("failed to number invoice: %w", err)
		}
		inv.Number = fmt.Sprintf("INV-%d-%04d", now.Year(), len(existing)+1)
	}
	if inv.IssuedAt.IsZero() {
		inv.IssuedAt = now
	}
	inv.Currency = strings.ToUpper(inv.Currency)
	inv.ID = store.NewID()
	inv.OwnerID = ownerID
	inv.CreatedAt = now
	inv.UpdatedAt = now

	if _, err := store.CreateDoc(ctx, r.store, store.CollectionInvoices, ownerID, inv.ID, inv); err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// Update applies a partial update and returns the stored invoice
func (r *Invoices) Update(ctx context.Context, ownerID, id string, u InvoiceUpdate) (*models.Invoice, error) {
	current, err := r.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	p := patch{}
	p.str("number", u.Number)
	p.str("notes", u.Notes)
	if u.Currency != nil {
		p["currency"] = strings.ToUpper(*u.Currency)
	}
	if u.Status != nil {
		if err := validateInvoiceStatus(*u.Status); err != nil {
			return nil, err
		}
		p["status"] = *u.Status
	}
	if u.Items != nil {
		if err := validateItems(*u.Items); err != nil {
			return nil, err
		}
		p["items"] = *u.Items
	}
	if u.DueAt != nil {
		p["due_at"] = *u.DueAt
	}
	if len(p) == 0 {
		return current, nil
	}

	p["updated_at"] = time.Now().UTC()
	if err := r.store.Update(ctx, store.CollectionInvoices, id, p); err != nil {
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}
	return r.Get(ctx, ownerID, id)
}

// Delete removes an invoice of the owner
func (r *Invoices) Delete(ctx context.Context, ownerID, id string) error {
	return r.store.Delete(ctx, store.CollectionInvoices, id, ownerID)
}

func validateItems(items []models.LineItem) error {
	for i, item := range items {
		if strings.TrimSpace(item.Description) == "" {
			return invalid("item %d: description is required", i+1)
		}
		if item.Quantity < 0 || item.UnitPrice < 0 {
			return invalid("item %d: quantity and unit price must not be negative", i+1)
		}
	}
	return nil
}

func validateInvoiceStatus(status string) error {
	switch status {
	case models.InvoiceDraft, models.InvoiceSent, models.InvoicePaid:
		return nil
	}
	return invalid("unknown invoice status %q", status)
}
