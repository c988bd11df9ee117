package client

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	esRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "es_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	esRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "es_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	esRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "es_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first request.
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (r RetryConfig) validate() error {
	if r.MaxAttempts < 1 {
		return errors.New("retry max_attempts must be >= 1")
	}
	if r.InitialBackoff < 0 || r.MaxBackoff < 0 {
		return errors.New("retry backoff must not be negative")
	}
	if r.BackoffMultiplier != 0 && r.BackoffMultiplier < 1 {
		return errors.New("retry backoff_multiplier must be >= 1")
	}
	return nil
}

// policy returns the backoff schedule for one request. Jitter is ±20%.
func (r RetryConfig) policy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialBackoff
	b.MaxInterval = r.MaxBackoff
	if r.BackoffMultiplier > 0 {
		b.Multiplier = r.BackoffMultiplier
	}
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.MaxAttempts-1)), ctx)
}

// notifyRetry records a failed attempt that is about to be retried.
func (c *Client) notifyRetry(err error, wait time.Duration) {
	class := classOf(err)
	esRetriesTotal.WithLabelValues(string(class)).Inc()
	esRetryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

	c.logger.Debug().
		Err(err).
		Str("error_class", string(class)).
		Dur("backoff", wait).
		Msg("Retrying request after backoff")
}

func classOf(err error) ErrorClass {
	var esErr *ESError
	if errors.As(err, &esErr) {
		return esErr.ErrorClass
	}
	return ErrorClassNetwork
}
