package worker

import (
	"context"
	"fmt"
	"sort"

	"tgsender/internal/config"
	"tgsender/internal/dispatch"
	"tgsender/internal/runtime/supervisor"
	"tgsender/internal/session"
	"tgsender/pkg/logx"
)

// Runner fans the selected groups out to concurrent workers. Each group is
// isolated: one group running out of sessions does not stop the others.
type Runner struct {
	cfg       *config.Config
	connector *session.Connector
	history   dispatch.History
	overrides Overrides
	log       logx.Logger
}

func NewRunner(cfg *config.Config, connector *session.Connector, history dispatch.History,
	ov Overrides, log logx.Logger) *Runner {
	return &Runner{cfg: cfg, connector: connector, history: history, overrides: ov, log: log}
}

// Run starts one worker per selected group and blocks until all finish or
// ctx is cancelled. An empty keys slice selects every configured group.
// The first worker error is returned after all workers have stopped.
func (r *Runner) Run(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		keys = r.cfg.GroupKeys()
	} else {
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := r.cfg.Groups[k]; !ok {
				return fmt.Errorf("unknown group %q", k)
			}
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("no groups configured")
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(r.log))
	for _, key := range keys {
		w := New(key, r.cfg.Groups[key], r.cfg.Defaults, r.overrides,
			r.connector, r.history, r.log)
		sup.Go("worker."+key, w.Run)
	}
	r.log.Info("workers started", logx.Int("groups", len(keys)))
	return sup.Wait(ctx)
}
