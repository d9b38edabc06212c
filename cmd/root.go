// Package cmd is the tgsender command surface.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tgsender/internal/config"
	"tgsender/internal/session"
	"tgsender/internal/telegram"
	"tgsender/pkg/logx"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "tgsender",
	Short:        "Session-pool Telegram dispatcher",
	Long:         "tgsender drives a pool of proxied user sessions through CSV message scripts, with liveness sweeps and dead-session eviction.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config file (yaml or json)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

// app is everything a subcommand needs after boot.
type app struct {
	cfg     *config.Config
	logSvc  *logx.Service
	log     logx.Logger
	dialer  *telegram.GogramDialer
	connect *session.Connector
}

func boot() (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Notify: logx.NotifyConfig{
			Enabled:    cfg.Logging.Notify.Enabled,
			Token:      cfg.Logging.Notify.BotToken,
			ChatID:     cfg.Logging.Notify.ChatID,
			ThreadID:   cfg.Logging.Notify.ThreadID,
			MinLevel:   cfg.Logging.Notify.MinLevel,
			RatePerSec: cfg.Logging.Notify.RatePerSec,
		},
	})

	timeout, err := config.ParseDurationField("telegram.connect_timeout", cfg.Telegram.ConnectTimeout)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	dialer := &telegram.GogramDialer{
		AppID:   cfg.Telegram.AppID,
		AppHash: cfg.Telegram.AppHash,
		Timeout: timeout,
	}

	return &app{
		cfg:     cfg,
		logSvc:  logSvc,
		log:     log,
		dialer:  dialer,
		connect: session.NewConnector(dialer, cfg.Proxies, log),
	}, nil
}

func (a *app) close() {
	// Give the notify sink a moment to drain before the process exits.
	time.Sleep(100 * time.Millisecond)
	_ = a.logSvc.Close()
}
