package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

// notifier is a zerolog LevelWriter that forwards selected log lines to a
// Telegram chat through a Bot API token. Sends happen on a dedicated worker
// goroutine; the zerolog hot path never blocks on the network.
type notifier struct {
	bot *tele.Bot

	mu       sync.Mutex
	chatID   int64
	threadID int
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue  chan string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newNotifier(cfg NotifyConfig) (*notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("notify token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("notify chat_id is not set")
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("telebot init: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &notifier{
		bot:    bot,
		queue:  make(chan string, 128),
		cancel: cancel,
	}
	n.apply(cfg)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.run(ctx)
	}()
	return n, nil
}

func (n *notifier) apply(cfg NotifyConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chatID = cfg.ChatID
	n.threadID = cfg.ThreadID
	n.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	n.limiter = rate.NewLimiter(rate.Limit(rps), rps)
}

func (n *notifier) close() {
	n.cancel()
	n.wg.Wait()
}

func (n *notifier) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			n.mu.Lock()
			chatID := n.chatID
			threadID := n.threadID
			n.mu.Unlock()
			_, _ = n.bot.Send(tele.ChatID(chatID), msg, &tele.SendOptions{
				ThreadID:              threadID,
				DisableWebPagePreview: true,
			})
		}
	}
}

func (n *notifier) Write(p []byte) (int, error) {
	return n.WriteLevel(zerolog.InfoLevel, p)
}

func (n *notifier) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	n.mu.Lock()
	min := n.minLevel
	lim := n.limiter
	n.mu.Unlock()

	if level < min || lim == nil {
		return len(p), nil
	}
	if !lim.Allow() {
		return len(p), nil
	}

	msg := formatNotifyLine(p)
	if msg == "" {
		return len(p), nil
	}
	// Never block core logging: drop when the queue is full.
	select {
	case n.queue <- msg:
	default:
	}
	return len(p), nil
}

// formatNotifyLine renders a zerolog JSON line as a compact human message.
func formatNotifyLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), 3500)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[")
		b.WriteString(strings.ToUpper(lvl))
		b.WriteString("] ")
	}
	b.WriteString(msg)

	for k, v := range m {
		switch k {
		case "time", "level", "message", "caller":
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(truncate(fmt.Sprint(v), 600))
	}
	return truncate(b.String(), 3500)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
