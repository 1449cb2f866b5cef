package metrics

import (
	"context"
	"log/slog"
	"time"
)

// SizeFunc reports the current database size in bytes
type SizeFunc func() int64

// Collector refreshes gauges that are sampled rather than counted
type Collector struct {
	metrics   *Metrics
	size      SizeFunc
	interval  time.Duration
	startTime time.Time
	logger    *slog.Logger
}

// NewCollector creates a gauge collector. size may be nil.
func NewCollector(m *Metrics, size SizeFunc, interval time.Duration, logger *slog.Logger) *Collector {
	if interval == 0 {
		interval = 10 * time.Second
	}
	return &Collector{
		metrics:   m,
		size:      size,
		interval:  interval,
		startTime: time.Now(),
		logger:    logger.With("component", "metrics"),
	}
}

// Run updates the gauges until ctx is cancelled
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("metrics collector stopped")
			return nil
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	if c.size != nil {
		c.metrics.StorageUsedBytes.Set(float64(c.size()))
	}
}
