package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	tg "github.com/amarnathcjd/gogram/telegram"

	"tgsender/internal/proxy"
)

// GogramDialer dials MTProto through gogram. One Dial produces one
// exclusively-owned connection; the caller releases it via Client.Close.
type GogramDialer struct {
	AppID   int32
	AppHash string

	// Timeout bounds a single connect attempt. A hanging proxy must fail
	// closed within this ceiling so it cannot stall a whole pool.
	Timeout time.Duration
}

const defaultDialTimeout = 30 * time.Second

func (d *GogramDialer) Dial(ctx context.Context, credentialPath string, via proxy.Descriptor) (Client, error) {
	c, err := tg.NewClient(tg.ClientConfig{
		AppID:     d.AppID,
		AppHash:   d.AppHash,
		Session:   credentialPath,
		Proxy:     via.URL(),
		NoUpdates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("client init: %w", err)
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	if err := connectWithin(ctx, c, timeout); err != nil {
		return nil, err
	}
	return &gogramClient{c: c}, nil
}

// connectWithin runs the blocking connect under a deadline. On timeout or
// cancellation the half-open client is disconnected so no handle leaks.
func connectWithin(ctx context.Context, c *tg.Client, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- c.Connect() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			_ = c.Disconnect()
			return fmt.Errorf("connect: %w", err)
		}
		return nil
	case <-timer.C:
		go func() {
			<-done
			_ = c.Disconnect()
		}()
		return fmt.Errorf("connect: timed out after %s", timeout)
	case <-ctx.Done():
		go func() {
			<-done
			_ = c.Disconnect()
		}()
		return ctx.Err()
	}
}

type gogramClient struct {
	c *tg.Client

	closeOnce sync.Once
	closeErr  error
}

func (g *gogramClient) Me(ctx context.Context) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	me, err := g.c.GetMe()
	if err != nil {
		if reason, ok := RevokedReason(err); ok {
			return Identity{}, fmt.Errorf("%s: %w", reason, err)
		}
		return Identity{}, err
	}
	if me == nil {
		return Identity{}, ErrNotAuthorized
	}
	return Identity{
		ID:        me.ID,
		Username:  me.Username,
		FirstName: me.FirstName,
		LastName:  me.LastName,
		Phone:     me.Phone,
	}, nil
}

func (g *gogramClient) SendText(ctx context.Context, dest string, text string, opt *SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := g.c.SendMessage(dest, text, sendOptions(opt))
	return err
}

func (g *gogramClient) SendMedia(ctx context.Context, dest string, media Media, opt *SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mo := &tg.MediaOptions{Caption: media.Caption}
	if opt != nil && opt.ThreadID != 0 {
		mo.ReplyID = opt.ThreadID
	}
	_, err := g.c.SendMedia(dest, media.Path, mo)
	return err
}

func (g *gogramClient) JoinChannel(ctx context.Context, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := g.c.JoinChannel(dest)
	return err
}

func (g *gogramClient) Connected() bool {
	return g.c.IsConnected()
}

func (g *gogramClient) Close() error {
	g.closeOnce.Do(func() {
		g.closeErr = g.c.Disconnect()
	})
	return g.closeErr
}

func sendOptions(opt *SendOptions) *tg.SendOptions {
	so := &tg.SendOptions{}
	if opt != nil && opt.ThreadID != 0 {
		so.ReplyID = opt.ThreadID
	}
	return so
}
