package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tgsender/internal/dispatch"
	"tgsender/pkg/logx"
)

// fileStore is the dependency-free backend: one append-only JSON Lines
// file. Prune rewrites the file in place; fine for the volumes a sender
// produces, use sqlite for anything bigger.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, f: f, w: bufio.NewWriter(f)}, nil
}

func (s *fileStore) Append(ctx context.Context, rec dispatch.SendRecord) error {
	if s == nil {
		return ErrDisabled
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrDisabled
	}
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return err
	}
	// Flush per record: the process may be killed mid-run and each line is
	// an independent audit fact.
	return s.w.Flush()
}

func (s *fileStore) Recent(ctx context.Context, group string, limit int) ([]dispatch.SendRecord, error) {
	if s == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAllLocked()
	if err != nil {
		return nil, err
	}

	out := make([]dispatch.SendRecord, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if group != "" && all[i].Group != group {
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (s *fileStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil {
		return 0, ErrDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAllLocked()
	if err != nil {
		return 0, err
	}

	kept := all[:0]
	var removed int64
	for _, rec := range all {
		if rec.At.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	if removed == 0 {
		return 0, nil
	}

	tmp := s.path + ".tmp"
	tf, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	tw := bufio.NewWriter(tf)
	for _, rec := range kept {
		b, err := json.Marshal(rec)
		if err != nil {
			_ = tf.Close()
			return 0, err
		}
		if _, err := tw.Write(append(b, '\n')); err != nil {
			_ = tf.Close()
			return 0, err
		}
	}
	if err := tw.Flush(); err != nil {
		_ = tf.Close()
		return 0, err
	}
	if err := tf.Close(); err != nil {
		return 0, err
	}

	_ = s.w.Flush()
	_ = s.f.Close()
	if err := os.Rename(tmp, s.path); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.f, s.w = nil, nil
		return removed, err
	}
	s.f = f
	s.w = bufio.NewWriter(f)
	return removed, nil
}

func (s *fileStore) readAllLocked() ([]dispatch.SendRecord, error) {
	if err := s.w.Flush(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []dispatch.SendRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec dispatch.SendRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Torn last line after a crash; skip it.
			s.log.Warn("history line unreadable, skipping", logx.Err(err))
			continue
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

func (s *fileStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.w.Flush()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f, s.w = nil, nil
	return err
}
