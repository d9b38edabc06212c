// Package metrics exposes the process-wide Prometheus collectors and an
// optional HTTP listener for scraping them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tgsender/pkg/logx"
)

var (
	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgsender_sends_total",
		Help: "Messages successfully dispatched, per group key.",
	}, []string{"group"})

	SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgsender_send_failures_total",
		Help: "Message sends that failed, per group key.",
	}, []string{"group"})

	SendsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgsender_sends_skipped_total",
		Help: "Messages skipped (empty text, missing media, no reconnect), per group key.",
	}, []string{"group"})

	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgsender_cycles_total",
		Help: "Completed dispatch cycles, per group key.",
	}, []string{"group"})

	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tgsender_sessions_evicted_total",
		Help: "Session records evicted after a revocation signal.",
	})

	PoolSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tgsender_pool_size",
		Help: "Records currently held per credential directory.",
	}, []string{"dir"})
)

// Serve runs the /metrics listener until ctx is cancelled. Errors other than
// a clean shutdown are logged, never fatal: scraping is best-effort.
func Serve(ctx context.Context, addr string, log logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listener started", logx.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics listener failed", logx.Err(err))
	}
}
