// Package metrics exposes the Prometheus registry used by catalog-ingest,
// the run-level collectors, and an optional /metrics HTTP server.
//
// Per-request metrics are defined next to the code that records them
// (pkg/client, pkg/cache) and registered through promauto on the default
// registry.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by catalog-ingest.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Run-level metrics, set once per completed run.
var (
	RunPagesFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_run_pages_failed",
		Help: "Pages that ended in terminal failure during the last run",
	})

	RunRowsExported = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_run_rows_exported",
		Help: "Rows counted in the artifact of the last run",
	})

	RunVerified = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_run_verified",
		Help: "1 if the last run's artifact passed the integrity check, else 0",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_run_duration_seconds",
		Help:    "Wall time of complete runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

// RecordRun publishes the outcome of a run.
func RecordRun(pagesFailed, rowsExported int, verified bool, duration time.Duration) {
	RunPagesFailed.Set(float64(pagesFailed))
	RunRowsExported.Set(float64(rowsExported))
	if verified {
		RunVerified.Set(1)
	} else {
		RunVerified.Set(0)
	}
	RunDuration.Observe(duration.Seconds())
}

// Handler returns the /metrics handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves /metrics until Shutdown is called.
type Server struct {
	srv *http.Server
}

// Start launches a metrics server on addr in the background.
func Start(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	s := &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("Metrics server enabled")
	return s
}

// Shutdown stops the server, waiting at most five seconds.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - catalog_requests_total{status} (Counter): Page requests by HTTP status ("error" for transport failures)
//   - catalog_request_duration_seconds (Histogram): Duration of single attempts
//   - catalog_fetch_errors_total{class} (Counter): Failed attempts by class (timeout, network, status, decode)
//
// Retry Metrics (pkg/client):
//   - catalog_retries_total{error_class} (Counter): Retries scheduled by error class
//   - catalog_retry_exhausted_total (Counter): Pages that failed every attempt
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total (Counter): Pages served from Redis
//   - catalog_cache_misses_total (Counter): Cache lookups that fell through to the network
//   - catalog_cache_stored_bytes_total (Counter): Bytes written to the cache
//   - catalog_cache_errors_total{operation} (Counter): Cache operation errors
//
// Run Metrics (this package):
//   - catalog_run_pages_failed (Gauge)
//   - catalog_run_rows_exported (Gauge)
//   - catalog_run_verified (Gauge)
//   - catalog_run_duration_seconds (Histogram)
//
// Example Prometheus Queries:
//
//   # Attempt failure rate by class
//   sum by (class) (rate(catalog_fetch_errors_total[5m]))
//
//   # P95 attempt latency
//   histogram_quantile(0.95, rate(catalog_request_duration_seconds_bucket[5m]))
//
//   # Cache hit rate
//   sum(rate(catalog_cache_hits_total[5m])) /
//   (sum(rate(catalog_cache_hits_total[5m])) + sum(rate(catalog_cache_misses_total[5m])))
