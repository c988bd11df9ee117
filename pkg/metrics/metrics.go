// Package metrics exposes the Prometheus metrics of the scroll engine.
// The collectors are defined in their respective packages (scroll, client,
// checkpoint) and registered there via promauto, so importing this package
// never creates a cycle.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry the collectors register with.
var Registry = prometheus.DefaultRegisterer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes Handler on addr under /metrics until ctx is done.
// It returns nil after a clean shutdown.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Debug().Str("addr", addr).Msg("Metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Metrics Documentation
//
// Run Metrics (pkg/scroll):
//   - es_scroll_pages_total (Counter): Pages fetched
//   - es_scroll_hits_total (Counter): Hits delivered to consumers
//   - es_scroll_page_hits (Histogram): Hits per page
//   - es_scroll_page_duration_seconds (Histogram): Fetch plus parse time per page
//   - es_scroll_errors_total{kind} (Counter): Failed runs by kind (transport, status, parse, protocol, canceled, other)
//   - es_scroll_protocol_anomalies_total{kind} (Counter): Tolerated protocol anomalies (missing_token)
//   - es_scroll_runs_total{result} (Counter): Finished runs by result (completed, failed)
//
// Request Metrics (pkg/client):
//   - es_requests_total{endpoint, status} (Counter): Requests by endpoint (search, scroll, clear_scroll) and HTTP status
//   - es_request_duration_seconds{endpoint} (Histogram): Time to response headers
//   - es_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - es_retries_total{error_class} (Counter): Retry attempts by error class
//   - es_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - es_retry_exhausted_total{error_class} (Counter): Requests that exhausted max attempts
//
// Checkpoint Metrics (pkg/checkpoint):
//   - es_checkpoint_saves_total (Counter): Checkpoints written
//   - es_checkpoint_loads_total{result} (Counter): Checkpoint lookups by result (hit, miss)
//   - es_checkpoint_errors_total{operation} (Counter): Checkpoint store errors
//
// Example Prometheus Queries:
//
//   # Hit Throughput
//   rate(es_scroll_hits_total[5m])
//
//   # Run Failure Ratio
//   sum(rate(es_scroll_runs_total{result="failed"}[1h])) / sum(rate(es_scroll_runs_total[1h]))
//
//   # P95 Page Latency
//   histogram_quantile(0.95, rate(es_scroll_page_duration_seconds_bucket[5m]))
//
//   # Rejected Scrolls (expired context shows up as 404)
//   rate(es_requests_total{endpoint="scroll", status="404"}[5m])
