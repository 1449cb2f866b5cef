package generate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/foxzi/clientdesk/internal/content"
	"github.com/foxzi/clientdesk/internal/metrics"
)

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*?)\\n?```$")

// Drafter is the Generator backed by a Completer
type Drafter struct {
	completer Completer
	cache     *gocache.Cache
	logger    *slog.Logger
}

// NewDrafter creates a Drafter. A zero ttl disables caching.
func NewDrafter(completer Completer, ttl time.Duration, logger *slog.Logger) *Drafter {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Drafter{
		completer: completer,
		logger:    logger.With("component", "generate"),
	}
	if ttl > 0 {
		d.cache = gocache.New(ttl, 2*ttl)
	}
	return d
}

// Generate implements Generator
func (d *Drafter) Generate(ctx context.Context, req Request) (string, error) {
	key := cacheKey(req)
	if d.cache != nil {
		if v, ok := d.cache.Get(key); ok {
			metrics.ObserveGeneration("cached", 0)
			return v.(string), nil
		}
	}

	start := time.Now()
	raw, err := d.completer.Complete(ctx, BuildPrompt(req))
	if err != nil {
		metrics.ObserveGeneration("error", time.Since(start).Seconds())
		d.logger.Error("template generation failed", "type", req.Type, "error", err)
		return "", fmt.Errorf("failed to generate template: %w", err)
	}

	body := Cleanup(raw)
	if body == "" {
		metrics.ObserveGeneration("error", time.Since(start).Seconds())
		return "", ErrEmptyResponse
	}

	metrics.ObserveGeneration("success", time.Since(start).Seconds())
	d.logger.Info("template generated", "type", req.Type, "tone", req.Tone, "duration", time.Since(start))

	if d.cache != nil {
		d.cache.SetDefault(key, body)
	}
	return body, nil
}

// Cleanup strips code fences from model output and sanitizes HTML
func Cleanup(raw string) string {
	body := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if content.IsHTML(body) {
		body = strings.TrimSpace(content.SanitizeTemplate(body))
	}
	return body
}

func cacheKey(req Request) string {
	data, _ := json.Marshal(req)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
