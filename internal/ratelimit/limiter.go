// Package ratelimit enforces hourly and daily send quotas.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/clientdesk/internal/config"
	"github.com/foxzi/clientdesk/internal/metrics"
	"github.com/foxzi/clientdesk/internal/store"
)

// Level represents the level of rate limiting
type Level string

const (
	LevelGlobal Level = "global"
	LevelOwner  Level = "owner"
)

const defaultFlushInterval = 10 * time.Second

// Counter tracks rate limit counters
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

func (c *Counter) fields() map[string]any {
	return map[string]any{
		"hourly_count": c.HourlyCount,
		"daily_count":  c.DailyCount,
		"hour_start":   c.HourStart,
		"day_start":    c.DayStart,
	}
}

// Result contains the rate limit check result
type Result struct {
	Allowed    bool          `json:"allowed"`
	DeniedBy   Level         `json:"denied_by,omitempty"`
	DeniedKey  string        `json:"denied_key,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Error describes a denial as an error
func (r *Result) Error() string {
	return fmt.Sprintf("%s send quota exceeded, retry in %s", r.DeniedBy, r.RetryAfter.Round(time.Second))
}

// Stats contains rate limit statistics
type Stats struct {
	Level       Level     `json:"level"`
	Key         string    `json:"key"`
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start,omitempty"`
	DayStart    time.Time `json:"day_start,omitempty"`
}

// Limiter implements rate limiting at global and per-owner level.
// Counters live in memory and are flushed to the store periodically.
type Limiter struct {
	store  store.Store
	cfg    config.RateLimitConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*Counter
	dirty    map[string]bool
}

// NewLimiter creates a rate limiter and loads persisted counters
func NewLimiter(ctx context.Context, s store.Store, cfg config.RateLimitConfig, logger *slog.Logger) (*Limiter, error) {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Limiter{
		store:    s,
		cfg:      cfg,
		logger:   logger.With("component", "ratelimit"),
		now:      time.Now,
		counters: make(map[string]*Counter),
		dirty:    make(map[string]bool),
	}

	if err := l.load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}
	return l, nil
}

// Allow checks the quotas for ownerID and increments the counters when allowed
func (l *Limiter) Allow(ctx context.Context, ownerID string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	checks := l.checks(ownerID)

	for _, check := range checks {
		counter := l.counter(check.key, now)
		resetExpired(counter, now)

		if denied := deny(check, counter, counter.HourlyCount, counter.DailyCount, now); denied != nil {
			metrics.IncRateLimitExceeded(string(check.level))
			l.logger.Warn("send quota exceeded", "level", check.level, "key", check.key, "retry_after", denied.RetryAfter)
			return denied, nil
		}
	}

	for _, check := range checks {
		counter := l.counters[check.key]
		counter.HourlyCount++
		counter.DailyCount++
		l.dirty[check.key] = true
	}

	return &Result{Allowed: true}, nil
}

// Check reports whether a send would be allowed without counting it
func (l *Limiter) Check(ctx context.Context, ownerID string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, check := range l.checks(ownerID) {
		counter, ok := l.counters[check.key]
		if !ok {
			continue
		}

		hourly, daily := counter.HourlyCount, counter.DailyCount
		if now.Sub(counter.HourStart) >= time.Hour {
			hourly = 0
		}
		if now.Sub(counter.DayStart) >= 24*time.Hour {
			daily = 0
		}
		if denied := deny(check, counter, hourly, daily, now); denied != nil {
			return denied, nil
		}
	}

	return &Result{Allowed: true}, nil
}

// Stats returns the current counters for a level and key
func (l *Limiter) Stats(level Level, key string) *Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := &Stats{Level: level, Key: key}
	counter, ok := l.counters[makeKey(level, key)]
	if !ok {
		return stats
	}

	now := l.now()
	stats.HourStart = counter.HourStart
	stats.DayStart = counter.DayStart
	if now.Sub(counter.HourStart) < time.Hour {
		stats.HourlyCount = counter.HourlyCount
	}
	if now.Sub(counter.DayStart) < 24*time.Hour {
		stats.DailyCount = counter.DailyCount
	}
	return stats
}

// Run flushes counters every flush interval until ctx is done
func (l *Limiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush with a fresh context
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return l.Flush(flushCtx)
		case <-ticker.C:
			if err := l.Flush(ctx); err != nil {
				l.logger.Error("failed to flush counters", "error", err)
			}
		}
	}
}

// Flush persists counters changed since the last flush
func (l *Limiter) Flush(ctx context.Context) error {
	l.mu.Lock()
	pending := make(map[string]Counter, len(l.dirty))
	for key := range l.dirty {
		pending[key] = *l.counters[key]
	}
	l.dirty = make(map[string]bool)
	l.mu.Unlock()

	var errs []error
	for key, counter := range pending {
		if err := l.save(ctx, key, &counter); err != nil {
			errs = append(errs, err)
			l.mu.Lock()
			l.dirty[key] = true
			l.mu.Unlock()
		}
	}
	return errors.Join(errs...)
}

func (l *Limiter) save(ctx context.Context, key string, counter *Counter) error {
	err := l.store.Update(ctx, store.CollectionRateLimits, key, counter.fields())
	if errors.Is(err, store.ErrNotFound) {
		_, err = store.CreateDoc(ctx, l.store, store.CollectionRateLimits, "", key, counter)
	}
	if err != nil {
		return fmt.Errorf("failed to save counter %s: %w", key, err)
	}
	return nil
}

func (l *Limiter) load(ctx context.Context) error {
	docs, err := l.store.All(ctx, store.CollectionRateLimits, "")
	if err != nil {
		return err
	}

	for _, doc := range docs {
		var counter Counter
		if err := json.Unmarshal(doc.Data, &counter); err != nil {
			l.logger.Warn("skipping invalid counter", "key", doc.ID, "error", err)
			continue
		}
		l.counters[doc.ID] = &counter
	}
	return nil
}

type limitCheck struct {
	level Level
	key   string
	limit *config.LimitValues
}

func (l *Limiter) checks(ownerID string) []limitCheck {
	var checks []limitCheck

	if l.cfg.Global != nil {
		checks = append(checks, limitCheck{
			level: LevelGlobal,
			key:   makeKey(LevelGlobal, "global"),
			limit: l.cfg.Global,
		})
	}

	if ownerID != "" && l.cfg.DefaultOwner != nil {
		checks = append(checks, limitCheck{
			level: LevelOwner,
			key:   makeKey(LevelOwner, ownerID),
			limit: l.cfg.DefaultOwner,
		})
	}

	return checks
}

func (l *Limiter) counter(key string, now time.Time) *Counter {
	counter, ok := l.counters[key]
	if !ok {
		counter = &Counter{HourStart: now, DayStart: now}
		l.counters[key] = counter
	}
	return counter
}

func deny(check limitCheck, counter *Counter, hourly, daily int, now time.Time) *Result {
	if check.limit.MessagesPerHour > 0 && hourly >= check.limit.MessagesPerHour {
		return &Result{
			DeniedBy:   check.level,
			DeniedKey:  check.key,
			RetryAfter: counter.HourStart.Add(time.Hour).Sub(now),
		}
	}
	if check.limit.MessagesPerDay > 0 && daily >= check.limit.MessagesPerDay {
		return &Result{
			DeniedBy:   check.level,
			DeniedKey:  check.key,
			RetryAfter: counter.DayStart.Add(24 * time.Hour).Sub(now),
		}
	}
	return nil
}

func resetExpired(counter *Counter, now time.Time) {
	if now.Sub(counter.HourStart) >= time.Hour {
		counter.HourlyCount = 0
		counter.HourStart = now
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		counter.DailyCount = 0
		counter.DayStart = now
	}
}

func makeKey(level Level, key string) string {
	return string(level) + ":" + key
}
