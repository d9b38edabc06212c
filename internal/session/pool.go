package session

import (
	"context"
	"fmt"
	"sort"

	"tgsender/internal/metrics"
	"tgsender/internal/telegram"
	"tgsender/pkg/logx"
)

// Outcome is the result classification of one validation attempt.
type Outcome int

const (
	OutcomeAuthorized Outcome = iota
	OutcomeInvalid
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthorized:
		return "authorized"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Summary aggregates a full validation pass.
type Summary struct {
	Checked    int
	Authorized int
	Evicted    int
	Transient  int
}

// Pool is the set of records for one credential directory. It owns record
// creation, validation, and eviction. Not safe for concurrent use; see the
// package comment.
type Pool struct {
	store     *Store
	connector *Connector
	records   map[string]*Record // keyed by credential path
	log       logx.Logger
}

// Load enumerates the credential artifacts in dir and creates one Unconnected
// record per artifact. No connections are made.
func Load(dir string, connector *Connector, log logx.Logger) (*Pool, error) {
	store := NewStore(dir)
	creds, err := store.List()
	if err != nil {
		return nil, err
	}
	p := &Pool{
		store:     store,
		connector: connector,
		records:   make(map[string]*Record, len(creds)),
		log:       log,
	}
	for _, c := range creds {
		p.records[c.Path] = newRecord(c)
	}
	metrics.PoolSize.WithLabelValues(dir).Set(float64(len(p.records)))
	return p, nil
}

func (p *Pool) Dir() string { return p.store.Dir() }

func (p *Pool) Len() int { return len(p.records) }

// Records returns all records sorted by phone for deterministic iteration.
func (p *Pool) Records() []*Record {
	out := make([]*Record, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Credential.Phone < out[j].Credential.Phone
	})
	return out
}

// Connected returns the records currently in the Authorized state.
func (p *Pool) Connected() []*Record {
	var out []*Record
	for _, r := range p.Records() {
		if r.State() == Authorized {
			out = append(out, r)
		}
	}
	return out
}

// Selectable returns the records dispatch may pick from: currently Authorized
// ones plus TransientError ones, which heal through EnsureConnected when
// selected. Invalid records are already gone and Unconnected ones have not
// passed validation yet.
func (p *Pool) Selectable() []*Record {
	var out []*Record
	for _, r := range p.Records() {
		if s := r.State(); s == Authorized || s == TransientError {
			out = append(out, r)
		}
	}
	return out
}

// Validate drives one record through a connect + authorization check and
// classifies the result. Already-Authorized records are left untouched
// (no reconnect, no state change). Records classified Invalid are evicted
// before Validate returns.
func (p *Pool) Validate(ctx context.Context, r *Record) Outcome {
	if r.State() == Authorized {
		return OutcomeAuthorized
	}
	return p.connect(ctx, r)
}

// EnsureConnected makes sure the record holds a live connection, reconnecting
// if the previous one was released or died. A revocation signal during the
// reconnect evicts the record (a dead credential must not be retried forever).
func (p *Pool) EnsureConnected(ctx context.Context, r *Record) error {
	if r.Live() {
		return nil
	}
	if p.connect(ctx, r) != OutcomeAuthorized {
		return fmt.Errorf("reconnect %s: %w", r.Credential.Phone, r.LastErr())
	}
	return nil
}

func (p *Pool) connect(ctx context.Context, r *Record) Outcome {
	r.releaseClient()
	r.state = Connecting

	client, id, err := p.connector.Connect(ctx, r.Credential)
	if err == nil {
		r.bind(client, id)
		return OutcomeAuthorized
	}

	if telegram.IsAuthError(err) {
		reason, _ := telegram.RevokedReason(err)
		if reason == "" {
			reason = "not_authorized"
		}
		r.state = Invalid
		r.lastErr = err
		p.log.Warn("session invalid, evicting",
			logx.String("phone", r.Credential.Phone),
			logx.String("reason", string(reason)))
		p.Evict(r)
		return OutcomeInvalid
	}

	r.Fail(err)
	p.log.Debug("session validation deferred",
		logx.String("phone", r.Credential.Phone),
		logx.Err(err))
	return OutcomeTransient
}

// Evict releases the record's connection, deletes the credential artifact,
// and removes the record from the pool. A failed artifact delete is logged
// and left for a later sweep; the record is still removed so it can never be
// selected for dispatch again.
func (p *Pool) Evict(r *Record) {
	r.releaseClient()
	if err := p.store.Delete(r.Credential); err != nil {
		p.log.Error("credential delete failed", logx.Err(err))
	}
	delete(p.records, r.Credential.Path)
	metrics.SessionsEvicted.Inc()
	metrics.PoolSize.WithLabelValues(p.Dir()).Set(float64(len(p.records)))
}

// ValidateAll runs Validate over every record and aggregates the outcomes.
func (p *Pool) ValidateAll(ctx context.Context) Summary {
	var sum Summary
	for _, r := range p.Records() {
		if err := ctx.Err(); err != nil {
			return sum
		}
		sum.Checked++
		switch p.Validate(ctx, r) {
		case OutcomeAuthorized:
			sum.Authorized++
		case OutcomeInvalid:
			sum.Evicted++
		case OutcomeTransient:
			sum.Transient++
		}
	}
	return sum
}

// ReleaseAll drops every open connection. Called on worker shutdown and at
// the end of a non-looping dispatch run.
func (p *Pool) ReleaseAll() {
	for _, r := range p.records {
		r.IdleRelease()
	}
}
