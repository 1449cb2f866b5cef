// Package bolt implements store.Store on top of bbolt with one bucket per collection.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/clientdesk/internal/store"
)

// Store is a bbolt backed document store
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file and ensures all collection buckets exist
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the buckets for every known collection
func (s *Store) Migrate() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range store.Collections {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create buckets: %w", err)
	}
	return nil
}

// All returns documents of a collection, optionally limited to one owner
func (s *Store) All(ctx context.Context, collection, ownerID string) ([]store.Document, error) {
	if collection == "" {
		return nil, store.ErrInvalidCollection
	}

	var docs []store.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var doc store.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return nil // Skip invalid entries
			}
			if ownerID != "" && doc.OwnerID != ownerID {
				return nil
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortByCreated(docs)
	return docs, nil
}

// Get returns a document by id
func (s *Store) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	if collection == "" {
		return nil, store.ErrInvalidCollection
	}

	var doc *store.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return nil
		}
		doc = &store.Document{}
		return json.Unmarshal(data, doc)
	})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

// Create stores a new document
func (s *Store) Create(ctx context.Context, collection, ownerID, id string, data []byte) (string, error) {
	if collection == "" {
		return "", store.ErrInvalidCollection
	}
	if id == "" {
		id = store.NewID()
	}

	now := time.Now().UTC()
	doc := store.Document{
		ID:        id,
		OwnerID:   ownerID,
		Data:      json.RawMessage(data),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		if bucket.Get([]byte(id)) != nil {
			return store.ErrExists
		}

		encoded, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		return bucket.Put([]byte(id), encoded)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update merges partial fields into a document
func (s *Store) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	if collection == "" {
		return store.ErrInvalidCollection
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return store.ErrNotFound
		}
		existing := bucket.Get([]byte(id))
		if existing == nil {
			return store.ErrNotFound
		}

		var doc store.Document
		if err := json.Unmarshal(existing, &doc); err != nil {
			return err
		}

		merged, err := store.Merge(doc.Data, partial)
		if err != nil {
			return err
		}
		doc.Data = merged
		doc.UpdatedAt = time.Now().UTC()

		encoded, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		return bucket.Put([]byte(id), encoded)
	})
}

// Delete removes a document
func (s *Store) Delete(ctx context.Context, collection, id, ownerID string) error {
	if collection == "" {
		return store.ErrInvalidCollection
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return store.ErrNotFound
		}
		existing := bucket.Get([]byte(id))
		if existing == nil {
			return store.ErrNotFound
		}

		if ownerID != "" {
			var doc store.Document
			if err := json.Unmarshal(existing, &doc); err != nil {
				return err
			}
			if doc.OwnerID != ownerID {
				return store.ErrNotFound
			}
		}

		return bucket.Delete([]byte(id))
	})
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Size returns the database file size in bytes
func (s *Store) Size() int64 {
	var size int64
	s.db.View(func(tx *bolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return size
}

func sortByCreated(docs []store.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
}
