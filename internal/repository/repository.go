// Package repository provides typed access to the documents kept in a store.Store.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxzi/clientdesk/internal/store"
)

// ErrValidation wraps input errors reported by repositories
var ErrValidation = errors.New("validation failed")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// getOwned loads a document and checks it belongs to ownerID
func getOwned[T any](ctx context.Context, s store.Store, collection, ownerID, id string) (*T, error) {
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && doc.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return store.GetOne[T](ctx, s, collection, id)
}

// patch collects the fields of a partial update
type patch map[string]any

func (p patch) str(key string, v *string) {
	if v != nil {
		p[key] = *v
	}
}
