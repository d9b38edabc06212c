package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"tgsender/internal/config"
	"tgsender/internal/dispatch"
	"tgsender/internal/proxy"
	"tgsender/internal/session"
	"tgsender/internal/telegram"
	"tgsender/pkg/logx"
)

type sentItem struct {
	dest     string
	text     string
	threadID int32
}

type fakeClient struct {
	mu      sync.Mutex
	d       *fakeDialer
	joinErr error
	open    bool
}

func (c *fakeClient) Me(ctx context.Context) (telegram.Identity, error) {
	return telegram.Identity{ID: 4, FirstName: "W"}, nil
}

func (c *fakeClient) SendText(ctx context.Context, dest, text string, opt *telegram.SendOptions) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	var tid int32
	if opt != nil {
		tid = opt.ThreadID
	}
	c.d.sent = append(c.d.sent, sentItem{dest: dest, text: text, threadID: tid})
	return nil
}

func (c *fakeClient) SendMedia(ctx context.Context, dest string, media telegram.Media, opt *telegram.SendOptions) error {
	return c.SendText(ctx, dest, media.Path, opt)
}

func (c *fakeClient) JoinChannel(ctx context.Context, dest string) error {
	c.d.mu.Lock()
	c.d.joins = append(c.d.joins, dest)
	c.d.mu.Unlock()
	return c.joinErr
}

func (c *fakeClient) Connected() bool { return c.open }
func (c *fakeClient) Close() error    { c.open = false; return nil }

type fakeDialer struct {
	mu      sync.Mutex
	joinErr error
	sent    []sentItem
	joins   []string
}

func (d *fakeDialer) Dial(ctx context.Context, path string, via proxy.Descriptor) (telegram.Client, error) {
	return &fakeClient{d: d, joinErr: d.joinErr, open: true}, nil
}

func (d *fakeDialer) sentTexts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.sent))
	for i, s := range d.sent {
		out[i] = s.text
	}
	return out
}

func writeSessions(t *testing.T, phones ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, p := range phones {
		if err := os.WriteFile(filepath.Join(dir, p+session.ArtifactExt), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func writeCSV(t *testing.T, rows string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "script.csv")
	if err := os.WriteFile(p, []byte(rows), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func connectorFor(d *fakeDialer) *session.Connector {
	proxies := []proxy.Descriptor{{Scheme: "socks5", Addr: "10.0.0.1", Port: 1080}}
	return session.NewConnector(d, proxies, logx.Nop())
}

func fastGroup(t *testing.T, d *fakeDialer) config.GroupConfig {
	t.Helper()
	return config.GroupConfig{
		GroupLink:     "https://t.me/target",
		TopicID:       42,
		SessionFolder: writeSessions(t, "+1555"),
		CSVFile:       writeCSV(t, "message,type\nhello,text\nworld,text\n"),
		MinInterval:   "1ms",
		MaxInterval:   "2ms",
	}
}

func TestWorkerRunSendsScript(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	g := fastGroup(t, d)

	w := New("g1", g, config.Defaults{}, Overrides{}, connectorFor(d), nil, logx.Nop())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := d.sentTexts(); len(got) != 2 || got[0] != "hello" || got[1] != "world" {
		t.Fatalf("sent = %v", got)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sent {
		if s.dest != g.GroupLink || s.threadID != 42 {
			t.Fatalf("send target = %+v", s)
		}
	}
	if len(d.joins) != 1 || d.joins[0] != g.GroupLink {
		t.Fatalf("joins = %v", d.joins)
	}
}

func TestWorkerToleratesAlreadyParticipant(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{joinErr: errors.New("USER_ALREADY_PARTICIPANT (400)")}
	g := fastGroup(t, d)

	w := New("g1", g, config.Defaults{}, Overrides{}, connectorFor(d), nil, logx.Nop())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := d.sentTexts(); len(got) != 2 {
		t.Fatalf("sent = %v", got)
	}
}

func TestWorkerMaxMessagesOverride(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	g := fastGroup(t, d)

	w := New("g1", g, config.Defaults{}, Overrides{MaxMessages: 1}, connectorFor(d), nil, logx.Nop())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := d.sentTexts(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("sent = %v", got)
	}
}

func TestWorkerEmptyScript(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	g := fastGroup(t, d)
	g.CSVFile = writeCSV(t, "message,type\n")

	w := New("g1", g, config.Defaults{}, Overrides{}, connectorFor(d), nil, logx.Nop())
	if err := w.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "no messages") {
		t.Fatalf("Run = %v", err)
	}
}

func TestWorkerHistoryWired(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	g := fastGroup(t, d)

	var mu sync.Mutex
	var recs []dispatch.SendRecord
	hist := historyFunc(func(ctx context.Context, rec dispatch.SendRecord) {
		mu.Lock()
		recs = append(recs, rec)
		mu.Unlock()
	})

	w := New("g1", g, config.Defaults{}, Overrides{}, connectorFor(d), hist, logx.Nop())
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(recs) != 2 || !recs[0].OK || recs[0].Group != "g1" {
		t.Fatalf("history = %+v", recs)
	}
}

type historyFunc func(ctx context.Context, rec dispatch.SendRecord)

func (f historyFunc) Record(ctx context.Context, rec dispatch.SendRecord) { f(ctx, rec) }

func TestRunnerUnknownGroup(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	cfg := &config.Config{Groups: map[string]config.GroupConfig{"a": fastGroup(t, d)}}

	r := NewRunner(cfg, connectorFor(d), nil, Overrides{}, logx.Nop())
	if err := r.Run(context.Background(), []string{"missing"}); err == nil || !strings.Contains(err.Error(), "unknown group") {
		t.Fatalf("Run = %v", err)
	}
}

func TestRunnerIsolatesGroupFailure(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	good := fastGroup(t, d)
	bad := fastGroup(t, d)
	bad.SessionFolder = t.TempDir() // no artifacts: pool exhausted

	cfg := &config.Config{Groups: map[string]config.GroupConfig{"good": good, "bad": bad}}
	r := NewRunner(cfg, connectorFor(d), nil, Overrides{}, logx.Nop())

	err := r.Run(context.Background(), nil)
	if !errors.Is(err, dispatch.ErrPoolExhausted) {
		t.Fatalf("Run = %v", err)
	}
	// The exhausted group did not stop the healthy one.
	if got := d.sentTexts(); len(got) != 2 {
		t.Fatalf("good group sent = %v", got)
	}
}
