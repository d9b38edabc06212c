package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tgsender/internal/proxy"
)

// Config is the full tgsender configuration. Accepted as JSON or YAML;
// unknown keys are rejected so typos surface immediately instead of
// silently disabling a section.
//
// All durations are Go duration strings (e.g. "30s", "2m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Cleaner  CleanerConfig  `json:"cleaner,omitempty"`

	// Proxies are tried in listed order when connecting a session.
	Proxies []proxy.Descriptor `json:"proxies"`

	// Defaults apply to every group that leaves the matching field unset.
	Defaults Defaults `json:"defaults,omitempty"`

	// Groups maps a group key (any label, used in logs and metrics) to
	// its dispatch plan. Each group runs on its own worker.
	Groups map[string]GroupConfig `json:"groups"`
}

// TelegramConfig holds the MTProto application credentials. These identify
// the application, not an account; accounts come from session artifacts.
type TelegramConfig struct {
	AppID   int32  `json:"app_id"`
	AppHash string `json:"app_hash"`
	// ConnectTimeout bounds a single connect+authorize attempt.
	ConnectTimeout string `json:"connect_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Notify  Notify      `json:"notify"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Notify forwards WARN+ log lines to a Telegram chat via a bot. This is a
// plain Bot API bot, separate from the MTProto sessions doing the sending.
type Notify struct {
	Enabled    bool   `json:"enabled"`
	BotToken   string `json:"bot_token"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9090"
}

// StorageConfig controls the optional send-history store.
type StorageConfig struct {
	Driver      string `json:"driver"` // "sqlite", "file" or "none"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	// Retention prunes history rows older than this on open. "0s" keeps all.
	Retention string `json:"retention,omitempty"`
}

// CleanerConfig drives the clean subcommand: validation sweeps over session
// directories, optionally on a cron schedule or on filesystem changes.
type CleanerConfig struct {
	// Dirs lists session directories to sweep. Empty means the union of
	// all group session folders.
	Dirs []string `json:"dirs,omitempty"`
	// Schedule is a cron expression ("0 */6 * * *"). Empty: single sweep.
	Schedule string `json:"schedule,omitempty"`
	// Watch re-validates a directory when session files appear in it.
	Watch bool `json:"watch,omitempty"`
}

// Defaults are group-level fallbacks.
type Defaults struct {
	MinInterval string `json:"min_interval,omitempty"` // default "30s"
	MaxInterval string `json:"max_interval,omitempty"` // default "2m"
	CyclePause  string `json:"cycle_pause,omitempty"`
	// RatePerMin is a hard ceiling on sends across a group, on top of the
	// randomized intervals. 0 disables the ceiling.
	RatePerMin int `json:"rate_per_min,omitempty"`
}

type GroupConfig struct {
	GroupLink     string `json:"group_link"`
	TopicID       int32  `json:"topic_id,omitempty"`
	SessionFolder string `json:"session_folder"`
	CSVFile       string `json:"csv_file"`
	MediaBaseDir  string `json:"media_base_dir,omitempty"`
	MinInterval   string `json:"min_interval,omitempty"`
	MaxInterval   string `json:"max_interval,omitempty"`
	Loop          bool   `json:"loop,omitempty"`
	MaxMessages   int    `json:"max_messages,omitempty"`
}

const (
	defaultMinInterval = 30 * time.Second
	defaultMaxInterval = 2 * time.Minute
)

// Validate checks the static shape of the config. Duration strings are
// parsed here so a bad value fails at startup, not mid-run.
func (c *Config) Validate() error {
	if c.Telegram.AppID == 0 {
		return fmt.Errorf("telegram.app_id is required")
	}
	if strings.TrimSpace(c.Telegram.AppHash) == "" {
		return fmt.Errorf("telegram.app_hash is required")
	}
	if _, err := ParseDurationField("telegram.connect_timeout", c.Telegram.ConnectTimeout); err != nil {
		return err
	}
	if err := proxy.ValidateList(c.Proxies); err != nil {
		return fmt.Errorf("proxies: %w", err)
	}
	if c.Storage != nil {
		switch c.Storage.Driver {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(c.Storage.Path) == "" {
				return fmt.Errorf("storage.path is required for driver %s", c.Storage.Driver)
			}
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		for _, f := range []struct{ name, raw string }{
			{"storage.busy_timeout", c.Storage.BusyTimeout},
			{"storage.retention", c.Storage.Retention},
		} {
			if _, err := ParseDurationField(f.name, f.raw); err != nil {
				return err
			}
		}
	}
	if _, err := ParseDurationField("defaults.min_interval", c.Defaults.MinInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("defaults.max_interval", c.Defaults.MaxInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("defaults.cycle_pause", c.Defaults.CyclePause); err != nil {
		return err
	}
	for key, g := range c.Groups {
		if err := g.validate("groups."+key, c.Defaults); err != nil {
			return err
		}
	}
	return nil
}

func (g GroupConfig) validate(path string, def Defaults) error {
	if strings.TrimSpace(g.GroupLink) == "" {
		return fmt.Errorf("%s.group_link is required", path)
	}
	if strings.TrimSpace(g.SessionFolder) == "" {
		return fmt.Errorf("%s.session_folder is required", path)
	}
	if strings.TrimSpace(g.CSVFile) == "" {
		return fmt.Errorf("%s.csv_file is required", path)
	}
	if g.MaxMessages < 0 {
		return fmt.Errorf("%s.max_messages must be >= 0", path)
	}
	min, max, err := g.Intervals(def)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if max < min {
		return fmt.Errorf("%s: max_interval %v is below min_interval %v", path, max, min)
	}
	return nil
}

// Intervals resolves the group's send interval bounds, falling back to the
// defaults block, then to the built-in 30s..2m window.
func (g GroupConfig) Intervals(def Defaults) (min, max time.Duration, err error) {
	min, err = firstDuration("min_interval", defaultMinInterval, g.MinInterval, def.MinInterval)
	if err != nil {
		return 0, 0, err
	}
	max, err = firstDuration("max_interval", defaultMaxInterval, g.MaxInterval, def.MaxInterval)
	if err != nil {
		return 0, 0, err
	}
	return min, max, nil
}

func firstDuration(name string, fallback time.Duration, raws ...string) (time.Duration, error) {
	for _, raw := range raws {
		d, err := ParseDurationField(name, raw)
		if err != nil {
			return 0, err
		}
		if d > 0 {
			return d, nil
		}
	}
	return fallback, nil
}

// GroupKeys returns the configured group keys in stable order.
func (c *Config) GroupKeys() []string {
	keys := make([]string, 0, len(c.Groups))
	for k := range c.Groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CleanDirs resolves the directories the cleaner sweeps: the explicit list
// if set, otherwise the deduplicated union of group session folders.
func (c *Config) CleanDirs() []string {
	if len(c.Cleaner.Dirs) > 0 {
		return c.Cleaner.Dirs
	}
	seen := make(map[string]struct{}, len(c.Groups))
	var dirs []string
	for _, g := range c.Groups {
		if _, ok := seen[g.SessionFolder]; ok {
			continue
		}
		seen[g.SessionFolder] = struct{}{}
		dirs = append(dirs, g.SessionFolder)
	}
	sort.Strings(dirs)
	return dirs
}
