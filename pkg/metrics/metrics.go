// Package metrics exposes the crawler's Prometheus metrics over HTTP.
//
// Metrics are registered via promauto in the packages that own them:
//
// Lanes (pkg/lanes):
//   - twtracker_lanes_available (Gauge)
//   - twtracker_lanes_in_use (Gauge)
//
// Platform (pkg/ratelimit):
//   - twtracker_rate_limit_remaining{resource} (Gauge)
//
// Pagination (pkg/crawler):
//   - twtracker_pages_total, twtracker_records_total (Counter)
//   - twtracker_api_calls_total{kind} (Counter)
//   - twtracker_retries_total{reason} (Counter)
//   - twtracker_runs_total{outcome} (Counter)
//
// Dispatcher (internal/dispatcher):
//   - twtracker_units_in_flight (Gauge)
//   - twtracker_completions_total{outcome} (Counter)
//   - twtracker_unit_duration_seconds (Histogram)
//   - twtracker_dispatcher_restarts_total (Counter)
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/XinsongDu/Twitter-Tracker/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// Handler serves /metrics and a /health probe
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Serve listens on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, log logger.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoWithFields("Metrics server listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	}
}
