// Package metrics exposes a /metrics Prometheus endpoint for the worker
// binaries, grounded on the pack's promauto-free registration pattern (a
// package-level variable block plus an explicit MustRegister call) rather
// than a generated SDK, since the catalog and object store are first-party
// collaborators with no metrics client of their own.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ternarybob/arbor"
)

var (
	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dorch_jobs_processed_total", Help: "Jobs acknowledged successfully, by worker kind"},
		[]string{"kind"},
	)
	JobsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dorch_jobs_failed_total", Help: "Jobs that failed, by worker kind and error class"},
		[]string{"kind", "class"},
	)
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "dorch_job_duration_seconds", Help: "Per-job handler duration, by worker kind", Buckets: prometheus.DefBuckets},
		[]string{"kind"},
	)
	FetchTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dorch_fetch_timeouts_total", Help: "Pull-consumer fetches that returned with no messages"},
		[]string{"kind"},
	)
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dorch_cache_result_total", Help: "Cache sidecar lookups, by outcome"},
		[]string{"outcome"},
	)
	DispatchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dorch_dispatched_total", Help: "Job envelopes published by the dispatcher"},
	)
)

func init() {
	prometheus.MustRegister(JobsProcessed, JobsFailed, JobDuration, FetchTimeouts, CacheHits, DispatchedTotal)
}

// Server is the optional background /metrics listener a worker binds.
type Server struct {
	http *http.Server
}

// Serve starts the listener in the background if enabled is true; the
// caller is responsible for calling Shutdown during graceful exit.
func Serve(enabled bool, addr string, port int, logger arbor.ILogger) *Server {
	if !enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	listenAddr := fmt.Sprintf("%s:%d", addr, port)
	srv := &http.Server{Addr: listenAddr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Str("addr", listenAddr).Msg("metrics listener stopped")
		}
	}()

	logger.Info().Str("addr", listenAddr).Msg("metrics listener started")
	return &Server{http: srv}
}

// Shutdown stops the listener, if one was started.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
