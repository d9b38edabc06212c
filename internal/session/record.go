package session

import (
	"tgsender/internal/telegram"
)

// State is the liveness classification of one credential.
type State int

const (
	// Unconnected: loaded from disk, never dialed.
	Unconnected State = iota
	// Connecting: a connect attempt is in flight.
	Connecting
	// Authorized: the credential passed its authorization check. The bound
	// connection may have been proactively released; see Record.Live.
	Authorized
	// Invalid: the remote service definitively rejected the credential.
	// Terminal; the record is evicted and never retried.
	Invalid
	// TransientError: the last attempt failed for a retryable reason
	// (network, proxy exhaustion, send failure). Eligible for reconnect.
	TransientError
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connecting:
		return "connecting"
	case Authorized:
		return "authorized"
	case Invalid:
		return "invalid"
	case TransientError:
		return "transient-error"
	default:
		return "unknown"
	}
}

// Record tracks one credential's runtime state. It exclusively owns its
// connection while one is bound; every transition out of Authorized releases
// the connection first.
type Record struct {
	Credential Credential

	state  State
	client telegram.Client

	identity    telegram.Identity
	hasIdentity bool

	lastErr error
}

func newRecord(c Credential) *Record {
	return &Record{Credential: c, state: Unconnected}
}

func (r *Record) State() State            { return r.state }
func (r *Record) LastErr() error          { return r.lastErr }
func (r *Record) Client() telegram.Client { return r.client }

// Identity returns the cached remote identity. Valid only after the record
// has been Authorized at least once.
func (r *Record) Identity() telegram.Identity { return r.identity }

// Label is the record's log identity: the cached remote identity when known,
// otherwise the phone from the artifact name.
func (r *Record) Label() string {
	if r.hasIdentity {
		return r.identity.Label()
	}
	return r.Credential.Phone
}

// Live reports whether the record currently holds a usable connection.
func (r *Record) Live() bool {
	return r.state == Authorized && r.client != nil && r.client.Connected()
}

// IdleRelease drops the connection without changing liveness state. Used
// before long inter-send waits; intermediaries terminate idle connections,
// so the next use reconnects fresh.
func (r *Record) IdleRelease() {
	r.releaseClient()
}

// Fail records a send/connection failure: the connection is released and the
// record downgrades to TransientError so the next use reconnects.
func (r *Record) Fail(err error) {
	r.releaseClient()
	r.state = TransientError
	r.lastErr = err
}

func (r *Record) releaseClient() {
	if r.client != nil {
		_ = r.client.Close()
		r.client = nil
	}
}

func (r *Record) bind(c telegram.Client, id telegram.Identity) {
	r.releaseClient()
	r.client = c
	r.state = Authorized
	r.lastErr = nil
	if !r.hasIdentity {
		r.identity = id
		r.hasIdentity = true
	}
}
