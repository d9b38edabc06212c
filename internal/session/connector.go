package session

import (
	"context"
	"errors"
	"fmt"

	"tgsender/internal/proxy"
	"tgsender/internal/telegram"
	"tgsender/pkg/logx"
)

// ErrProxiesExhausted reports that every proxy failed at the transport or
// protocol level. Retryable; says nothing about the credential itself.
var ErrProxiesExhausted = errors.New("all proxies exhausted")

// Connector establishes an authorized connection for one credential by
// walking the proxy list in its fixed order.
type Connector struct {
	dialer  telegram.Dialer
	proxies []proxy.Descriptor
	log     logx.Logger
}

func NewConnector(dialer telegram.Dialer, proxies []proxy.Descriptor, log logx.Logger) *Connector {
	return &Connector{dialer: dialer, proxies: proxies, log: log}
}

// Connect tries each proxy in order and returns the first connection whose
// credential passes the authorization check, together with the account
// identity fetched during that check.
//
// A transport/protocol failure moves on to the next proxy after releasing the
// broken connection. An authorization failure stops immediately: being signed
// out is a property of the credential, not the proxy, so probing further
// proxies would only waste attempts. The classified auth error is returned.
func (c *Connector) Connect(ctx context.Context, cred Credential) (telegram.Client, telegram.Identity, error) {
	if len(c.proxies) == 0 {
		return nil, telegram.Identity{}, fmt.Errorf("%w: no proxies configured", ErrProxiesExhausted)
	}

	var lastErr error
	for _, p := range c.proxies {
		if err := ctx.Err(); err != nil {
			return nil, telegram.Identity{}, err
		}

		client, err := c.dialer.Dial(ctx, cred.Path, p)
		if err != nil {
			lastErr = err
			c.log.Debug("proxy attempt failed",
				logx.String("phone", cred.Phone),
				logx.String("proxy", p.Label()),
				logx.Err(err))
			continue
		}

		id, err := client.Me(ctx)
		if err == nil {
			return client, id, nil
		}
		_ = client.Close()

		if telegram.IsAuthError(err) {
			return nil, telegram.Identity{}, err
		}
		lastErr = err
		c.log.Debug("authorization check failed",
			logx.String("phone", cred.Phone),
			logx.String("proxy", p.Label()),
			logx.Err(err))
	}

	return nil, telegram.Identity{}, fmt.Errorf("%w: last error: %v", ErrProxiesExhausted, lastErr)
}
