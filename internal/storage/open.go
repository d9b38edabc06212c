package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"tgsender/pkg/logx"
)

// Open initializes the configured store and applies the retention policy.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	var (
		st  Store
		err error
	)
	switch driver {
	case "file":
		st, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		st, err = openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Retention > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n, perr := st.Prune(ctx, time.Now().Add(-cfg.Retention))
		cancel()
		if perr != nil {
			log.Warn("history prune failed", logx.Err(perr))
		} else if n > 0 {
			log.Info("history pruned", logx.Int64("rows", n))
		}
	}
	return st, nil
}
