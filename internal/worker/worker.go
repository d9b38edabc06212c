// Package worker ties one configured group to a full dispatch run: script
// loading, pool validation, channel membership, and the send loop.
package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"tgsender/internal/config"
	"tgsender/internal/dispatch"
	"tgsender/internal/script"
	"tgsender/internal/session"
	"tgsender/pkg/logx"
)

// Overrides are CLI-level knobs that take precedence over the group config.
type Overrides struct {
	// Loop forces loop mode on when set.
	Loop bool
	// MaxMessages caps messages per cycle when > 0.
	MaxMessages int
}

type Worker struct {
	key       string
	group     config.GroupConfig
	defaults  config.Defaults
	overrides Overrides

	connector *session.Connector
	history   dispatch.History
	log       logx.Logger
}

func New(key string, group config.GroupConfig, defaults config.Defaults, ov Overrides,
	connector *session.Connector, history dispatch.History, log logx.Logger) *Worker {
	return &Worker{
		key:       key,
		group:     group,
		defaults:  defaults,
		overrides: ov,
		connector: connector,
		history:   history,
		log:       log.With(logx.String("group", key)),
	}
}

// Run executes the group end to end. A drained pool surfaces as
// dispatch.ErrPoolExhausted; the caller decides whether that stops
// anything beyond this group.
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := script.LoadCSV(w.group.CSVFile)
	if err != nil {
		return fmt.Errorf("group %s: script: %w", w.key, err)
	}
	if len(msgs) == 0 {
		return fmt.Errorf("group %s: script %s has no messages", w.key, w.group.CSVFile)
	}

	pool, err := session.Load(w.group.SessionFolder, w.connector, w.log)
	if err != nil {
		return fmt.Errorf("group %s: sessions: %w", w.key, err)
	}
	sum := pool.ValidateAll(ctx)
	w.log.Info("pool validated",
		logx.Int("checked", sum.Checked),
		logx.Int("authorized", sum.Authorized),
		logx.Int("evicted", sum.Evicted),
		logx.Int("transient", sum.Transient))
	if err := ctx.Err(); err != nil {
		pool.ReleaseAll()
		return err
	}

	w.joinAll(ctx, pool)

	cfg, err := w.dispatchConfig(msgs)
	if err != nil {
		pool.ReleaseAll()
		return fmt.Errorf("group %s: %w", w.key, err)
	}

	opts := []dispatch.Option{}
	if w.history != nil {
		opts = append(opts, dispatch.WithHistory(w.history))
	}
	if w.defaults.RatePerMin > 0 {
		lim := rate.NewLimiter(rate.Limit(float64(w.defaults.RatePerMin)/60.0), 1)
		opts = append(opts, dispatch.WithRateLimit(lim))
	}

	eng := dispatch.New(cfg, pool, msgs, w.log, opts...)
	return eng.Run(ctx)
}

// joinAll makes a best-effort join of the destination for every authorized
// session. "Already a member" responses are expected and fine; anything
// else is logged and the session stays in the pool.
func (w *Worker) joinAll(ctx context.Context, pool *session.Pool) {
	for _, rec := range pool.Connected() {
		if ctx.Err() != nil {
			return
		}
		if err := rec.Client().JoinChannel(ctx, w.group.GroupLink); err != nil {
			if alreadyMember(err) {
				continue
			}
			w.log.Warn("join failed",
				logx.String("session", rec.Label()),
				logx.Err(err))
		}
	}
}

func alreadyMember(err error) bool {
	if err == nil {
		return true
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "USER_ALREADY_PARTICIPANT") ||
		strings.Contains(msg, "ALREADY A PARTICIPANT")
}

func (w *Worker) dispatchConfig(msgs []script.Message) (dispatch.Config, error) {
	min, max, err := w.group.Intervals(w.defaults)
	if err != nil {
		return dispatch.Config{}, err
	}
	cyclePause, err := config.ParseDurationField("defaults.cycle_pause", w.defaults.CyclePause)
	if err != nil {
		return dispatch.Config{}, err
	}

	maxMessages := w.group.MaxMessages
	if w.overrides.MaxMessages > 0 {
		maxMessages = w.overrides.MaxMessages
	}

	return dispatch.Config{
		GroupKey:    w.key,
		Dest:        w.group.GroupLink,
		ThreadID:    w.group.TopicID,
		MinInterval: min,
		MaxInterval: max,
		Loop:        w.group.Loop || w.overrides.Loop,
		MaxMessages: maxMessages,
		MediaRoot:   w.group.MediaBaseDir,
		BaseDir:     filepath.Dir(w.group.CSVFile),
		CyclePause:  cyclePause,
	}, nil
}
