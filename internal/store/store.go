// Package store defines the document persistence interface used by the
// repositories. Documents are JSON objects grouped in named collections and
// tagged with the id of the user that owns them.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a document does not exist or belongs to another owner
	ErrNotFound = errors.New("document not found")

	// ErrExists is returned when creating a document with an id already in use
	ErrExists = errors.New("document already exists")

	// ErrInvalidCollection is returned for an empty collection name
	ErrInvalidCollection = errors.New("collection name is required")
)

// Collection names
const (
	CollectionUsers      = "users"
	CollectionClients    = "clients"
	CollectionTemplates  = "templates"
	CollectionInvoices   = "invoices"
	CollectionRateLimits = "rate_limits"
	CollectionSandbox    = "sandbox"
)

// Collections lists every collection the application uses
var Collections = []string{
	CollectionUsers,
	CollectionClients,
	CollectionTemplates,
	CollectionInvoices,
	CollectionRateLimits,
	CollectionSandbox,
}

// Document is a stored record with its metadata
type Document struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id,omitempty"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is a generic document database
type Store interface {
	// All returns every document of the collection owned by ownerID.
	// An empty ownerID returns documents of all owners.
	All(ctx context.Context, collection, ownerID string) ([]Document, error)

	// Get returns a single document by id.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Create stores data as a new document and returns its id.
	// An id is generated when none is given.
	Create(ctx context.Context, collection, ownerID, id string, data []byte) (string, error)

	// Update merges the partial fields into the stored JSON object.
	Update(ctx context.Context, collection, id string, partial map[string]any) error

	// Delete removes a document. When ownerID is set the document must belong to it.
	Delete(ctx context.Context, collection, id, ownerID string) error

	// Close releases the underlying database
	Close() error
}

// NewID returns a fresh document id
func NewID() string {
	return uuid.New().String()
}

// Merge overlays partial onto the JSON object in data
func Merge(data []byte, partial map[string]any) ([]byte, error) {
	obj := make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
	}
	for k, v := range partial {
		obj[k] = v
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return out, nil
}

// GetAll decodes every document of the collection owned by ownerID into T
func GetAll[T any](ctx context.Context, s Store, collection, ownerID string) ([]T, error) {
	docs, err := s.All(ctx, collection, ownerID)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, doc.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// GetOne decodes a single document into T
func GetOne[T any](ctx context.Context, s Store, collection, id string) (*T, error) {
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return &v, nil
}

// CreateDoc encodes v and stores it as a new document
func CreateDoc[T any](ctx context.Context, s Store, collection, ownerID, id string, v T) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", collection, err)
	}
	return s.Create(ctx, collection, ownerID, id, data)
}
