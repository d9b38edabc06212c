package telegram

import (
	"errors"
	"fmt"
	"testing"
)

func TestRevokedReason(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		err    error
		reason RevokeReason
		ok     bool
	}{
		{name: "duplicated key", err: errors.New("rpc error: AUTH_KEY_DUPLICATED (406)"), reason: RevokeDuplicatedKey, ok: true},
		{name: "deactivated", err: errors.New("USER_DEACTIVATED (401)"), reason: RevokeDeactivated, ok: true},
		{name: "deactivated ban", err: errors.New("USER_DEACTIVATED_BAN"), reason: RevokeDeactivated, ok: true},
		{name: "revoked", err: errors.New("SESSION_REVOKED (401)"), reason: RevokeSessionDead, ok: true},
		{name: "unregistered", err: errors.New("auth_key_unregistered"), reason: RevokeUnregistered, ok: true},
		{name: "wrapped", err: fmt.Errorf("get me: %w", errors.New("SESSION_EXPIRED")), reason: RevokeSessionDead, ok: true},
		{name: "flood wait", err: errors.New("FLOOD_WAIT_42"), ok: false},
		{name: "network", err: errors.New("dial tcp: i/o timeout"), ok: false},
		{name: "nil", err: nil, ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reason, ok := RevokedReason(tt.err)
			if ok != tt.ok || reason != tt.reason {
				t.Fatalf("RevokedReason(%v) = (%q, %v), want (%q, %v)", tt.err, reason, ok, tt.reason, tt.ok)
			}
		})
	}
}

func TestIsAuthError(t *testing.T) {
	t.Parallel()
	if !IsAuthError(ErrNotAuthorized) {
		t.Fatal("ErrNotAuthorized should be an auth error")
	}
	if !IsAuthError(fmt.Errorf("check: %w", ErrNotAuthorized)) {
		t.Fatal("wrapped ErrNotAuthorized should be an auth error")
	}
	if !IsAuthError(errors.New("SESSION_REVOKED")) {
		t.Fatal("revocation signal should be an auth error")
	}
	if IsAuthError(errors.New("proxy refused connection")) {
		t.Fatal("transport error is not an auth error")
	}
}

func TestIdentityLabel(t *testing.T) {
	t.Parallel()
	id := Identity{ID: 42, Username: "alice", FirstName: "Alice", LastName: "A"}
	if got := id.Label(); got != "Alice A (@alice id:42)" {
		t.Fatalf("Label() = %q", got)
	}
	empty := Identity{ID: 7}
	if got := empty.Label(); got != "unknown (@ id:7)" {
		t.Fatalf("Label() = %q", got)
	}
}
