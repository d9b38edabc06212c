// Package cleaner sweeps session directories: every artifact is connected,
// classified, and revoked ones are evicted. One sweep per directory, run
// once, on a cron schedule, or whenever the directory changes.
package cleaner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"tgsender/internal/session"
	"tgsender/pkg/logx"
)

// Options configures a cleaner run.
type Options struct {
	Dirs []string
	// Schedule is a cron expression; empty means a single sweep.
	Schedule string
	// Watch re-sweeps a directory when session files change in it.
	Watch bool
}

// Result aggregates one sweep across all directories.
type Result struct {
	Dirs    int
	Summary session.Summary
}

type Cleaner struct {
	opts      Options
	connector *session.Connector
	log       logx.Logger

	// sweepMu serializes sweeps; cron ticks and watch events may overlap.
	sweepMu sync.Mutex
}

func New(opts Options, connector *session.Connector, log logx.Logger) (*Cleaner, error) {
	if len(opts.Dirs) == 0 {
		return nil, fmt.Errorf("no session directories to clean")
	}
	return &Cleaner{opts: opts, connector: connector, log: log}, nil
}

// Sweep validates every directory once and evicts revoked sessions.
func (c *Cleaner) Sweep(ctx context.Context) (Result, error) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	var res Result
	for _, dir := range c.opts.Dirs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sum, err := c.sweepDir(ctx, dir)
		if err != nil {
			c.log.Error("sweep failed", logx.String("dir", dir), logx.Err(err))
			continue
		}
		res.Dirs++
		res.Summary.Checked += sum.Checked
		res.Summary.Authorized += sum.Authorized
		res.Summary.Evicted += sum.Evicted
		res.Summary.Transient += sum.Transient
	}
	c.log.Info("sweep finished",
		logx.Int("dirs", res.Dirs),
		logx.Int("checked", res.Summary.Checked),
		logx.Int("authorized", res.Summary.Authorized),
		logx.Int("evicted", res.Summary.Evicted),
		logx.Int("transient", res.Summary.Transient))
	return res, nil
}

func (c *Cleaner) sweepDir(ctx context.Context, dir string) (session.Summary, error) {
	pool, err := session.Load(dir, c.connector, c.log)
	if err != nil {
		return session.Summary{}, err
	}
	defer pool.ReleaseAll()

	c.log.Info("sweeping sessions", logx.String("dir", dir), logx.Int("count", pool.Len()))
	return pool.ValidateAll(ctx), nil
}

// Run blocks until ctx is cancelled, sweeping per Options: an immediate
// sweep, then cron ticks and/or watch-triggered re-sweeps. With neither
// schedule nor watch it returns after the initial sweep.
func (c *Cleaner) Run(ctx context.Context) error {
	if _, err := c.Sweep(ctx); err != nil {
		return err
	}
	if c.opts.Schedule == "" && !c.opts.Watch {
		return nil
	}

	var cr *cron.Cron
	if c.opts.Schedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		cr = cron.New(cron.WithParser(parser))
		_, err := cr.AddFunc(c.opts.Schedule, func() {
			if _, err := c.Sweep(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn("scheduled sweep aborted", logx.Err(err))
			}
		})
		if err != nil {
			return fmt.Errorf("cleaner schedule: %w", err)
		}
		cr.Start()
		defer cr.Stop()
		c.log.Info("sweep schedule active", logx.String("cron", c.opts.Schedule))
	}

	if c.opts.Watch {
		if err := c.watch(ctx); err != nil {
			return err
		}
		return nil
	}

	<-ctx.Done()
	return nil
}

// watch re-sweeps when session artifacts appear or change. Events are
// debounced so an unpacked batch of files triggers one sweep, not dozens.
func (c *Cleaner) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, dir := range c.opts.Dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	c.log.Info("watching session directories", logx.Int("dirs", len(c.opts.Dirs)))

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(2*time.Second, func() {
			if _, err := c.Sweep(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn("watch sweep aborted", logx.Err(err))
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(strings.ToLower(ev.Name), session.ArtifactExt) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				c.log.Warn("session watch error", logx.Err(err))
			}
		}
	}
}
