// Package telegram defines the narrow client surface the rest of the program
// consumes. The MTProto wire protocol lives behind the Client and Dialer
// interfaces; gogram.go holds the only concrete implementation.
package telegram

import (
	"context"
	"fmt"

	"tgsender/internal/proxy"
)

// Identity is the remote-assigned identity of an authorized session, fetched
// once after authorization and cached for the lifetime of the record.
type Identity struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
}

// Label renders the identity for log lines.
func (id Identity) Label() string {
	name := id.FirstName
	if id.LastName != "" {
		name += " " + id.LastName
	}
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("%s (@%s id:%d)", name, id.Username, id.ID)
}

// SendOptions carries per-send knobs. ThreadID targets a forum topic inside
// the destination group; zero means the main thread.
type SendOptions struct {
	ThreadID int32
}

// Media references a local file to upload, with an optional caption.
type Media struct {
	Path    string
	Caption string
}

// Client is one live, proxied connection bound to a single credential.
type Client interface {
	// Me checks whether the credential behind this connection is currently
	// authorized and returns the account identity. Authorization failures are
	// reported as classified errors (see errors.go).
	Me(ctx context.Context) (Identity, error)

	SendText(ctx context.Context, dest string, text string, opt *SendOptions) error
	SendMedia(ctx context.Context, dest string, media Media, opt *SendOptions) error

	// JoinChannel makes the session a member of dest. Callers treat
	// already-a-member responses as success.
	JoinChannel(ctx context.Context, dest string) error

	Connected() bool

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Dialer establishes a transport-level connection for one credential artifact
// through one proxy. A transport failure returns a nil Client; authorization
// is not checked here (that is Client.Me).
type Dialer interface {
	Dial(ctx context.Context, credentialPath string, via proxy.Descriptor) (Client, error)
}
