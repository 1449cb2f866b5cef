package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/store"
)

// ErrInvalidKey is returned when an API key does not match any user
var ErrInvalidKey = errors.New("invalid api key")

const (
	keyPrefix    = "cd_"
	keyPrefixLen = len(keyPrefix) + 8
)

// Users stores freelancer accounts and their API keys
type Users struct {
	store store.Store
}

// NewUsers creates a user repository
func NewUsers(s store.Store) *Users {
	return &Users{store: s}
}

// List returns all users with key hashes cleared
func (r *Users) List(ctx context.Context) ([]models.User, error) {
	users, err := store.GetAll[models.User](ctx, r.store, store.CollectionUsers, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	for i := range users {
		users[i] = users[i].Public()
	}
	return users, nil
}

// Get returns a user by id
func (r *Users) Get(ctx context.Context, id string) (*models.User, error) {
	return store.GetOne[models.User](ctx, r.store, store.CollectionUsers, id)
}

// GetByEmail returns a user by email address
func (r *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	users, err := store.GetAll[models.User](ctx, r.store, store.CollectionUsers, "")
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			return &users[i], nil
		}
	}
	return nil, store.ErrNotFound
}

// Create stores a new user and returns its API key. The key is only available here.
func (r *Users) Create(ctx context.Context, u *models.User) (string, error) {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(u.Email)
	if u.Name == "" {
		return "", invalid("user name is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return "", invalid("invalid user email %q", u.Email)
	}
	if _, err := r.GetByEmail(ctx, u.Email); err == nil {
		return "", invalid("user %s already exists", u.Email)
	}

	key, hash, err := generateKey()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	u.ID = store.NewID()
	u.APIKeyHash = hash
	u.APIKeyPrefix = key[:keyPrefixLen]
	u.CreatedAt = now
	u.UpdatedAt = now

	// Users own themselves so per-owner listings work uniformly
	if _, err := store.CreateDoc(ctx, r.store, store.CollectionUsers, u.ID, u.ID, u); err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}
	return key, nil
}

// RotateKey replaces the user's API key and returns the new one
func (r *Users) RotateKey(ctx context.Context, id string) (string, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return "", err
	}

	key, hash, err := generateKey()
	if err != nil {
		return "", err
	}

	err = r.store.Update(ctx, store.CollectionUsers, id, map[string]any{
		"api_key_hash":   hash,
		"api_key_prefix": key[:keyPrefixLen],
		"updated_at":     time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to rotate key: %w", err)
	}
	return key, nil
}

// Authenticate resolves the user owning an API key
func (r *Users) Authenticate(ctx context.Context, key string) (*models.User, error) {
	if len(key) <= keyPrefixLen || !strings.HasPrefix(key, keyPrefix) {
		return nil, ErrInvalidKey
	}
	prefix := key[:keyPrefixLen]

	users, err := store.GetAll[models.User](ctx, r.store, store.CollectionUsers, "")
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].APIKeyPrefix != prefix {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(users[i].APIKeyHash), []byte(key)) == nil {
			return &users[i], nil
		}
	}
	return nil, ErrInvalidKey
}

// UpdateBrand replaces the user's brand settings
func (r *Users) UpdateBrand(ctx context.Context, id string, brand models.BrandSettings) (*models.User, error) {
	err := r.store.Update(ctx, store.CollectionUsers, id, map[string]any{
		"brand":      brand,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func generateKey() (key, hash string, err error) {
	keyBytes := make([]byte, 24)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}
	key = keyPrefix + hex.EncodeToString(keyBytes)

	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash key: %w", err)
	}
	return key, string(hashed), nil
}
