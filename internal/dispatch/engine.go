// Package dispatch runs the rate-limited send loop for one destination:
// session selection, payload resolution, failure handling, and the
// randomized pacing between sends.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"tgsender/internal/metrics"
	"tgsender/internal/script"
	"tgsender/internal/session"
	"tgsender/internal/telegram"
	"tgsender/pkg/logx"
)

// ErrPoolExhausted reports that no session was left to send with. Fatal for
// the owning worker; other workers are unaffected.
var ErrPoolExhausted = errors.New("no usable sessions in pool")

// Rand is the injected randomness source for session selection and interval
// draws. *rand.Rand from math/rand/v2 satisfies it; tests use a fixed seed
// or a scripted fake.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

// Sleeper pauses for d or until ctx is cancelled. Injected so tests run
// without wall-clock waits.
type Sleeper func(ctx context.Context, d time.Duration) error

// SendRecord is one dispatch result handed to the optional history sink.
type SendRecord struct {
	Group     string
	MessageID string
	Kind      string
	Phone     string
	OK        bool
	Err       string
	At        time.Time
}

// History receives per-send audit records. Implementations must not block
// the dispatch path for long; failures are their own concern.
type History interface {
	Record(ctx context.Context, rec SendRecord)
}

// Config is the static plan for one engine run.
type Config struct {
	GroupKey string
	Dest     string
	ThreadID int32

	MinInterval time.Duration
	MaxInterval time.Duration
	Loop        bool
	MaxMessages int

	// MediaRoot and BaseDir anchor relative media references.
	MediaRoot string
	BaseDir   string

	// CyclePause separates cycles in loop mode.
	CyclePause time.Duration
	// IdleReleaseAfter: waits longer than this release the session's
	// connection first; intermediaries kill idle connections anyway.
	IdleReleaseAfter time.Duration
}

const (
	defaultCyclePause       = 5 * time.Second
	defaultIdleReleaseAfter = 30 * time.Second
)

// Engine replays a message sequence against one destination, drawing a
// session per message from the pool. Sends are strictly sequential: one
// message's send and post-success wait complete before the next selection.
type Engine struct {
	cfg  Config
	pool *session.Pool
	msgs []script.Message
	log  logx.Logger

	rng     Rand
	sleep   Sleeper
	limiter *rate.Limiter
	history History
}

type Option func(*Engine)

// WithRand replaces the randomness source.
func WithRand(r Rand) Option { return func(e *Engine) { e.rng = r } }

// WithSleeper replaces the pacing sleeper.
func WithSleeper(s Sleeper) Option { return func(e *Engine) { e.sleep = s } }

// WithHistory attaches a per-send audit sink.
func WithHistory(h History) Option { return func(e *Engine) { e.history = h } }

// WithRateLimit caps overall send throughput on top of the randomized
// intervals. A hard ceiling against misconfigured interval bounds.
func WithRateLimit(l *rate.Limiter) Option { return func(e *Engine) { e.limiter = l } }

func New(cfg Config, pool *session.Pool, msgs []script.Message, log logx.Logger, opts ...Option) *Engine {
	if cfg.CyclePause <= 0 {
		cfg.CyclePause = defaultCyclePause
	}
	if cfg.IdleReleaseAfter <= 0 {
		cfg.IdleReleaseAfter = defaultIdleReleaseAfter
	}
	e := &Engine{
		cfg:   cfg,
		pool:  pool,
		msgs:  msgs,
		log:   log,
		sleep: sleepCtx,
	}
	for _, o := range opts {
		o(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return e
}

// Run drives cycles until the sequence completes (loop off), or until ctx is
// cancelled (loop on). All connections are released on every exit path.
func (e *Engine) Run(ctx context.Context) error {
	defer e.pool.ReleaseAll()

	for cycle := 1; ; cycle++ {
		if err := e.runCycle(ctx, cycle); err != nil {
			return err
		}
		metrics.CyclesTotal.WithLabelValues(e.cfg.GroupKey).Inc()
		if !e.cfg.Loop {
			return nil
		}
		e.log.Info("cycle finished, restarting", logx.Int("cycle", cycle))
		if err := e.sleep(ctx, e.cfg.CyclePause); err != nil {
			return err
		}
	}
}

func (e *Engine) runCycle(ctx context.Context, cycle int) error {
	msgs := e.msgs
	if e.cfg.MaxMessages > 0 && e.cfg.MaxMessages < len(msgs) {
		msgs = msgs[:e.cfg.MaxMessages]
	}

	anyLive := false
	for i, m := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}

		candidates := e.pool.Selectable()
		if len(candidates) == 0 {
			return fmt.Errorf("%w (group %s)", ErrPoolExhausted, e.cfg.GroupKey)
		}
		rec := candidates[e.rng.IntN(len(candidates))]

		if err := e.pool.EnsureConnected(ctx, rec); err != nil {
			// Skip this message, no delay; the record heals (or is
			// evicted) on a later selection.
			e.log.Warn("reconnect failed, skipping message",
				logx.String("session", rec.Label()),
				logx.String("msg", m.ID),
				logx.Err(err))
			metrics.SendsSkipped.WithLabelValues(e.cfg.GroupKey).Inc()
			continue
		}
		anyLive = true

		ok, sent := e.sendOne(ctx, rec, m)
		if !sent {
			continue // payload skipped; not a send, no delay
		}
		if !ok {
			continue // failed send; proceed immediately
		}

		wait := e.drawInterval()
		e.log.Info("message sent",
			logx.Int("cycle", cycle),
			logx.Int("index", i),
			logx.String("msg", m.ID),
			logx.String("session", rec.Label()),
			logx.Duration("wait", wait))
		if wait > e.cfg.IdleReleaseAfter {
			rec.IdleRelease()
		}
		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}

	// Every selection this cycle failed to reconnect: the remaining records
	// are all stuck unreachable, and another pass would only repeat the same
	// skips. Treat it like an empty pool rather than spinning.
	if len(msgs) > 0 && !anyLive {
		return fmt.Errorf("%w (group %s): no session reachable for a full cycle", ErrPoolExhausted, e.cfg.GroupKey)
	}
	return nil
}

// sendOne resolves the payload and executes the send. The first return value
// is success; the second reports whether a send was actually attempted
// (payload problems skip the message without touching session state).
func (e *Engine) sendOne(ctx context.Context, rec *session.Record, m script.Message) (ok, sent bool) {
	opt := &telegram.SendOptions{ThreadID: e.cfg.ThreadID}

	var send func(telegram.Client) error
	switch {
	case m.Kind == script.KindText:
		if m.Text == "" {
			e.log.Warn("text row has no content, skipping", logx.String("msg", m.ID))
			metrics.SendsSkipped.WithLabelValues(e.cfg.GroupKey).Inc()
			return false, false
		}
		text := m.Text
		send = func(c telegram.Client) error {
			return c.SendText(ctx, e.cfg.Dest, text, opt)
		}
	case m.Kind.IsMedia():
		path, err := script.ResolveMedia(m.MediaRef, e.cfg.MediaRoot, e.cfg.BaseDir)
		if err != nil {
			e.log.Warn("media unavailable, skipping", logx.String("msg", m.ID), logx.Err(err))
			metrics.SendsSkipped.WithLabelValues(e.cfg.GroupKey).Inc()
			return false, false
		}
		media := telegram.Media{Path: path, Caption: m.Text}
		send = func(c telegram.Client) error {
			return c.SendMedia(ctx, e.cfg.Dest, media, opt)
		}
	default:
		e.log.Warn("unsupported message type, skipping",
			logx.String("msg", m.ID),
			logx.String("type", string(m.Kind)))
		metrics.SendsSkipped.WithLabelValues(e.cfg.GroupKey).Inc()
		return false, false
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return false, false
		}
	}

	err := send(rec.Client())
	e.record(ctx, rec, m, err)
	if err != nil {
		metrics.SendFailures.WithLabelValues(e.cfg.GroupKey).Inc()
		if telegram.IsAuthError(err) {
			reason, _ := telegram.RevokedReason(err)
			e.log.Warn("send hit revocation signal, evicting session",
				logx.String("session", rec.Label()),
				logx.String("reason", string(reason)),
				logx.Err(err))
			e.pool.Evict(rec)
		} else {
			e.log.Warn("send failed",
				logx.String("session", rec.Label()),
				logx.String("msg", m.ID),
				logx.Err(err))
			rec.Fail(err)
		}
		return false, true
	}

	metrics.SendsTotal.WithLabelValues(e.cfg.GroupKey).Inc()
	return true, true
}

func (e *Engine) record(ctx context.Context, rec *session.Record, m script.Message, sendErr error) {
	if e.history == nil {
		return
	}
	sr := SendRecord{
		Group:     e.cfg.GroupKey,
		MessageID: m.ID,
		Kind:      string(m.Kind),
		Phone:     rec.Credential.Phone,
		OK:        sendErr == nil,
		At:        time.Now(),
	}
	if sendErr != nil {
		sr.Err = sendErr.Error()
	}
	e.history.Record(ctx, sr)
}

// drawInterval picks a uniform wait in [MinInterval, MaxInterval].
func (e *Engine) drawInterval() time.Duration {
	min, max := e.cfg.MinInterval, e.cfg.MaxInterval
	if max <= min {
		return min
	}
	return min + time.Duration(e.rng.Float64()*float64(max-min))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
