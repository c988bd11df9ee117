// Package client provides the Elasticsearch scroll transport: it opens a
// scroll search, fetches follow-up pages by scroll id and retries transient
// failures. Client.Fetch is a scroll.ProducerFactory.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/es-scroll-stream/pkg/response"
	"github.com/Sternrassler/es-scroll-stream/pkg/scroll"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Elasticsearch requests.
var (
	esRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "es_requests_total",
		Help: "Total Elasticsearch requests by endpoint and status",
	}, []string{"endpoint", "status"})

	esRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "es_request_duration_seconds",
		Help:    "Time until response headers arrived, by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	esErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "es_errors_total",
		Help: "Total Elasticsearch errors by class",
	}, []string{"class"})
)

// Endpoint labels.
const (
	endpointSearch = "search"
	endpointScroll = "scroll"
	endpointClear  = "clear_scroll"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL names the index or index pattern to scroll, for example
	// http://localhost:9200/logs-*. A trailing /_search and a scroll query
	// parameter are accepted; nothing else may follow the path.
	BaseURL string

	// Scroll is the scroll context keep-alive, for example "30s" or "1m".
	// Empty means the base URL's scroll parameter, or DefaultScroll.
	Scroll string

	// Params are merged into the body of the initial search request, on top
	// of {"sort": ["_doc"]}. They are not sent with follow-up requests.
	Params map[string]any

	// Headers are set on every request after the defaults
	// (Content-Type and Accept: application/json) and may override them.
	Headers map[string]string

	// Timeout bounds the wait for response headers of a single attempt.
	// The body is streamed without a deadline. Zero disables it.
	Timeout time.Duration

	Retry RetryConfig
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
		Retry:   DefaultRetryConfig(),
	}
}

// Client issues Elasticsearch scroll requests.
type Client struct {
	httpClient *http.Client
	config     Config
	endpoints  endpoints
	searchBody []byte
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	ep, err := resolveEndpoints(cfg.BaseURL, cfg.Scroll)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative (got %s)", cfg.Timeout)
	}
	if err := cfg.Retry.validate(); err != nil {
		return nil, err
	}

	body, err := searchBody(cfg.Params)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	cfg.Scroll = ep.keepAlive

	return &Client{
		httpClient: &http.Client{Transport: transport},
		config:     cfg,
		endpoints:  ep,
		searchBody: body,
		logger:     log.With().Str("component", "es-client").Logger(),
	}, nil
}

// searchBody encodes the initial request body. Params override the default sort.
func searchBody(params map[string]any) ([]byte, error) {
	body := map[string]any{"sort": []string{"_doc"}}
	for k, v := range params {
		body[k] = v
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode search params: %w", err)
	}
	return data, nil
}

type scrollRequest struct {
	Scroll   string `json:"scroll"`
	ScrollID string `json:"scroll_id"`
}

type clearRequest struct {
	ScrollID []string `json:"scroll_id"`
}

// KeepAlive returns the scroll keep-alive sent with every request.
func (c *Client) KeepAlive() string {
	return c.endpoints.keepAlive
}

// Fetch requests one page. An empty token opens the scroll with the initial
// search; any other token continues it. Non-2xx responses are returned as
// pages once retries are exhausted or not applicable, so that the caller sees
// the final status. Fetch implements scroll.ProducerFactory.
func (c *Client) Fetch(ctx context.Context, token string) (*response.Page, error) {
	if token == "" {
		return c.do(ctx, http.MethodPost, c.endpoints.search, c.searchBody, endpointSearch)
	}

	body, err := json.Marshal(scrollRequest{Scroll: c.endpoints.keepAlive, ScrollID: token})
	if err != nil {
		return nil, fmt.Errorf("encode scroll request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.endpoints.scroll, body, endpointScroll)
}

// Search streams every hit of the configured search.
func (c *Client) Search(ctx context.Context, cfg scroll.Config) *scroll.Output {
	return scroll.Start(ctx, c.Fetch, cfg)
}

// Clear releases the server-side scroll context of token. A context that
// already expired is not an error.
func (c *Client) Clear(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	body, err := json.Marshal(clearRequest{ScrollID: []string{token}})
	if err != nil {
		return fmt.Errorf("encode clear request: %w", err)
	}

	page, err := c.do(ctx, http.MethodDelete, c.endpoints.scroll, body, endpointClear)
	if err != nil {
		return err
	}
	defer page.Close()

	if !page.Success() && page.StatusCode != http.StatusNotFound {
		return &ESError{
			StatusCode: page.StatusCode,
			ErrorClass: classifyStatus(page.StatusCode),
			Message:    "clear scroll failed",
		}
	}
	return nil
}

// do sends one request with retries. Network failures, 5xx and 429 are
// retried. The last attempt returns its response whatever the status.
func (c *Client) do(ctx context.Context, method, target string, body []byte, endpoint string) (*response.Page, error) {
	var (
		resp     *http.Response
		attempts int
		fatal    error
	)

	operation := func() error {
		attempts++

		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			fatal = fmt.Errorf("create request: %w", err)
			return backoff.Permanent(fatal)
		}
		c.setHeaders(req)

		start := time.Now()
		r, err := c.httpClient.Do(req)
		esRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

		if err != nil {
			esErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			esRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempts).Msg("Request failed")
			return &ESError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
		}

		esRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()

		class := classifyStatus(r.StatusCode)
		if class == "" {
			resp = r
			return nil
		}

		esErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", r.StatusCode).
			Str("error_class", string(class)).
			Int("attempt", attempts).
			Msg("Elasticsearch request error")

		if shouldRetry(class) && attempts < c.config.Retry.MaxAttempts {
			r.Body.Close()
			return &ESError{StatusCode: r.StatusCode, ErrorClass: class, Message: r.Status}
		}

		// Let the caller report the final status.
		resp = r
		return nil
	}

	err := backoff.RetryNotify(operation, c.config.Retry.policy(ctx), c.notifyRetry)
	switch {
	case err == nil:
		if attempts > 1 {
			c.logger.Info().
				Str("endpoint", endpoint).
				Int("attempt", attempts).
				Msg("Request succeeded after retry")
		}
		return response.FromHTTP(resp), nil
	case fatal != nil:
		return nil, fatal
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}

	class := classOf(err)
	esRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
	c.logger.Warn().
		Str("endpoint", endpoint).
		Str("error_class", string(class)).
		Int("attempts", attempts).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, err)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
