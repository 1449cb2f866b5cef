package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/repository"
)

type contextKey int

const userKey contextKey = iota

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware resolves the API key to its user
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check Authorization header
		auth := r.Header.Get("Authorization")
		if auth == "" {
			// Also check X-API-Key header
			auth = r.Header.Get("X-API-Key")
		}
		auth = strings.TrimPrefix(auth, "Bearer ")

		if auth == "" {
			sendError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		user, err := s.authenticate(r.Context(), auth)
		if err != nil {
			if !errors.Is(err, repository.ErrInvalidKey) {
				s.logger.Error("failed to authenticate", "error", err)
			}
			s.logger.Warn("unauthorized API request",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			sendError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves a key. Successful lookups are cached by key hash.
func (s *Server) authenticate(ctx context.Context, key string) (*models.User, error) {
	sum := sha256.Sum256([]byte(key))
	cacheKey := hex.EncodeToString(sum[:])

	if id, ok := s.authCache.Get(cacheKey); ok {
		user, err := s.deps.Users.Get(ctx, id.(string))
		if err == nil {
			return user, nil
		}
		s.authCache.Delete(cacheKey)
	}

	user, err := s.deps.Users.Authenticate(ctx, key)
	if err != nil {
		return nil, err
	}
	s.authCache.SetDefault(cacheKey, user.ID)
	return user, nil
}

// currentUser returns the authenticated user
func currentUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(userKey).(*models.User)
	return user
}
