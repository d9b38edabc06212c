package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"tgsender/internal/cleaner"
)

var (
	cleanDirs     []string
	cleanSchedule string
	cleanWatch    bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Validate session directories and evict revoked sessions",
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().StringSliceVar(&cleanDirs, "dirs", nil, "session directories to sweep (default: from config)")
	cleanCmd.Flags().StringVar(&cleanSchedule, "schedule", "", "cron expression for repeated sweeps")
	cleanCmd.Flags().BoolVar(&cleanWatch, "watch", false, "re-sweep when session files change")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := cleaner.Options{
		Dirs:     a.cfg.CleanDirs(),
		Schedule: a.cfg.Cleaner.Schedule,
		Watch:    a.cfg.Cleaner.Watch,
	}
	if len(cleanDirs) > 0 {
		opts.Dirs = cleanDirs
	}
	if cleanSchedule != "" {
		opts.Schedule = cleanSchedule
	}
	if cleanWatch {
		opts.Watch = true
	}

	c, err := cleaner.New(opts, a.connect, a.log)
	if err != nil {
		return err
	}

	if opts.Schedule != "" || opts.Watch {
		_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
		defer func() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }()
	}
	return c.Run(ctx)
}
