package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"tgsender/internal/config"
	"tgsender/internal/dispatch"
	"tgsender/internal/metrics"
	"tgsender/internal/storage"
	"tgsender/internal/worker"
	"tgsender/pkg/logx"
)

var (
	sendGroups      []string
	sendLoop        bool
	sendMaxMessages int
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Run the dispatch workers for the configured groups",
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringSliceVar(&sendGroups, "groups", nil, "group keys to run (default: all)")
	sendCmd.Flags().BoolVar(&sendLoop, "loop", false, "force loop mode for all selected groups")
	sendCmd.Flags().IntVar(&sendMaxMessages, "max-messages", 0, "cap messages per cycle (0 = full script)")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Metrics.Enabled {
		addr := a.cfg.Metrics.Addr
		if addr == "" {
			addr = "127.0.0.1:9090"
		}
		go metrics.Serve(ctx, addr, a.log)
	}

	var history dispatch.History
	if a.cfg.Storage != nil {
		busy, _ := config.ParseDurationField("storage.busy_timeout", a.cfg.Storage.BusyTimeout)
		retention, _ := config.ParseDurationField("storage.retention", a.cfg.Storage.Retention)
		st, err := storage.Open(storage.Config{
			Driver:      a.cfg.Storage.Driver,
			Path:        a.cfg.Storage.Path,
			BusyTimeout: busy,
			Retention:   retention,
		}, a.log)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
			history = storage.Sink(st, a.log)
		}
	}

	runner := worker.NewRunner(a.cfg, a.connect, history,
		worker.Overrides{Loop: sendLoop, MaxMessages: sendMaxMessages}, a.log)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	defer func() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }()

	a.log.Info("dispatch starting",
		logx.Int("groups", len(sendGroups)),
		logx.Bool("loop", sendLoop))
	return runner.Run(ctx, sendGroups)
}
