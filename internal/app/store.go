package app

import (
	"fmt"
	"os"

	"github.com/foxzi/clientdesk/internal/config"
	"github.com/foxzi/clientdesk/internal/metrics"
	"github.com/foxzi/clientdesk/internal/store"
	"github.com/foxzi/clientdesk/internal/store/bolt"
	"github.com/foxzi/clientdesk/internal/store/sqlite"
)

// OpenStore opens the configured document store and applies its migrations.
// The returned func reports the database size for the metrics collector.
func OpenStore(cfg config.DatabaseConfig) (store.Store, metrics.SizeFunc, error) {
	switch cfg.Driver {
	case config.DriverBolt, "":
		s, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Size, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, fileSize(cfg.Path), nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

func fileSize(path string) metrics.SizeFunc {
	return func() int64 {
		info, err := os.Stat(path)
		if err != nil {
			return 0
		}
		return info.Size()
	}
}
