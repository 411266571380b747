// Package metrics exposes session statistics the way the teacher's
// profiler/metrics.go exposes per-sample labels: a Prometheus registry
// served over /metrics. Where the teacher counted individual stack
// positions, this package counts the session-level outcomes from
// sampling.EbpfStats, since a sampling session has no long-lived process
// to scrape continuously — the registry exists mainly so a sidecar or the
// k8s operator driving this core can scrape a final snapshot before the
// process exits.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cropsey/goflame/internal/sampling"
)

// Registry bundles the profiler's Prometheus collectors.
type Registry struct {
	reg *prometheus.Registry
	log zerolog.Logger

	samplesDropped  prometheus.Counter
	stackMapFull    prometheus.Counter
	countsMapFull   prometheus.Counter
	unwindFailures  prometheus.Counter
	symbolFailures  prometheus.Counter
	sessionDuration prometheus.Histogram
	samplesTotal    prometheus.Counter
}

// New builds a fresh Registry using log for its own diagnostics (e.g. the
// /metrics server's failure path), matching the rest of the tree's
// explicit-logger convention rather than the teacher's stdlib log.Printf.
// Unlike the teacher's package-level promauto.NewCounterVec, every
// collector here lives on a value owned by the caller — no package-global
// registry, so two sessions in the same process (e.g. under test) never
// collide.
func New(log zerolog.Logger) *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		log: log,
		samplesDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "goflame_samples_dropped_total",
			Help: "Samples dropped due to kernel-side failures.",
		}),
		stackMapFull: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "goflame_stack_map_full_total",
			Help: "Stack-trace map insertions rejected because the map was at capacity.",
		}),
		countsMapFull: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "goflame_counts_map_full_total",
			Help: "Counts map insertions rejected because the map was at capacity.",
		}),
		unwindFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "goflame_unwind_failures_total",
			Help: "Per-sample stack walks that failed and were rendered as [unwind_failed].",
		}),
		symbolFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "goflame_symbol_lookup_failures_total",
			Help: "Per-PC symbol lookups that failed and were rendered as [unknown:0xADDR].",
		}),
		sessionDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "goflame_session_duration_seconds",
			Help:    "Wall-clock duration of completed profiling sessions.",
			Buckets: prometheus.DefBuckets,
		}),
		samplesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "goflame_samples_total",
			Help: "Total aggregated sample count across all drained keys.",
		}),
	}
	return r
}

// Observe records one completed session's outcome.
func (r *Registry) Observe(stats sampling.EbpfStats, totalSamples uint64, duration time.Duration) {
	r.samplesDropped.Add(float64(stats.SamplesDropped))
	r.stackMapFull.Add(float64(stats.StackMapFull))
	r.countsMapFull.Add(float64(stats.CountsMapFull))
	r.unwindFailures.Add(float64(stats.UnwindFailures))
	r.symbolFailures.Add(float64(stats.SymbolLookupFailures))
	r.sessionDuration.Observe(duration.Seconds())
	r.samplesTotal.Add(float64(totalSamples))
}

// Serve starts an HTTP server exposing /metrics on addr, matching the
// teacher's runPrometheus. It returns immediately; call the returned
// shutdown function to stop the server.
func (r *Registry) Serve(addr string) (shutdown func(context.Context) error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	return srv.Shutdown
}
