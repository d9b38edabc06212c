package telegram

import (
	"errors"
	"strings"
)

// ErrNotAuthorized reports that the credential behind a connection is no
// longer signed in. Terminal for the credential, independent of the proxy.
var ErrNotAuthorized = errors.New("session not authorized")

// RevokeReason names the definitive revocation signals the remote service
// emits. They all lead to eviction; the reason is kept for logging.
type RevokeReason string

const (
	RevokeDuplicatedKey RevokeReason = "auth_key_duplicated"
	RevokeDeactivated   RevokeReason = "user_deactivated"
	RevokeSessionDead   RevokeReason = "session_revoked"
	RevokeUnregistered  RevokeReason = "auth_key_unregistered"
)

// revokeMarkers maps RPC error substrings to revocation reasons. The MTProto
// server reports these as upper-snake strings inside the error text.
var revokeMarkers = []struct {
	marker string
	reason RevokeReason
}{
	{"AUTH_KEY_DUPLICATED", RevokeDuplicatedKey},
	{"USER_DEACTIVATED_BAN", RevokeDeactivated},
	{"USER_DEACTIVATED", RevokeDeactivated},
	{"SESSION_REVOKED", RevokeSessionDead},
	{"SESSION_EXPIRED", RevokeSessionDead},
	{"AUTH_KEY_UNREGISTERED", RevokeUnregistered},
}

// RevokedReason classifies err as a definitive credential revocation.
// Returns ok=false for transient transport/protocol errors.
func RevokedReason(err error) (RevokeReason, bool) {
	if err == nil {
		return "", false
	}
	msg := strings.ToUpper(err.Error())
	for _, m := range revokeMarkers {
		if strings.Contains(msg, m.marker) {
			return m.reason, true
		}
	}
	return "", false
}

// IsAuthError reports whether err means the credential itself is dead:
// either an explicit not-authorized result or any revocation signal.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrNotAuthorized) {
		return true
	}
	_, ok := RevokedReason(err)
	return ok
}
