package storage

import (
	"context"
	"errors"
	"time"

	"tgsender/internal/dispatch"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the send-history store.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retention prunes rows older than this on Open. 0 keeps everything.
	Retention time.Duration
}

// Store persists per-send audit records.
type Store interface {
	Append(ctx context.Context, rec dispatch.SendRecord) error
	// Recent returns the newest records, most recent first. An empty group
	// matches all groups.
	Recent(ctx context.Context, group string, limit int) ([]dispatch.SendRecord, error)
	// Prune removes records older than cutoff and reports how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
