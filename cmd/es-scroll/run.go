package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/Sternrassler/es-scroll-stream/internal/config"
	"github.com/Sternrassler/es-scroll-stream/pkg/checkpoint"
	"github.com/Sternrassler/es-scroll-stream/pkg/client"
	"github.com/Sternrassler/es-scroll-stream/pkg/logging"
	"github.com/Sternrassler/es-scroll-stream/pkg/metrics"
	"github.com/Sternrassler/es-scroll-stream/pkg/scroll"
)

const clearTimeout = 10 * time.Second

// scrollIDs remembers the most recent scroll id of a run.
type scrollIDs struct {
	mu   sync.Mutex
	last string
}

func (s *scrollIDs) observe(page scroll.PageResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case page.ScrollID != "":
		s.last = page.ScrollID
	case page.Token != "":
		s.last = page.Token
	}
}

func (s *scrollIDs) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// run executes one scroll and writes the hits to stdout.
func run(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	runID := cfg.Redis.RunID
	if runID == "" {
		runID = checkpoint.NewRunID()
	}

	logging.Setup(cfg.LoggingSetup(runID))
	logger := logging.NewLogger("cli")

	if cfg.Metrics.Addr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("Metrics server failed")
			}
		}()
	}

	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		return err
	}
	esClient, err := client.New(clientCfg)
	if err != nil {
		return err
	}

	scrollCfg := scroll.DefaultConfig()
	scrollCfg.StrictContinuation = cfg.Scroll.Strict
	scrollCfg.RunID = runID

	var store *checkpoint.Store
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis at %s: %w", cfg.Redis.Addr, err)
		}
		store = checkpoint.NewStore(redisClient)

		base, err := startingPoint(ctx, store, cfg, runID)
		if err != nil {
			return err
		}
		if base.Token != "" {
			scrollCfg.StartToken = base.Token
			logger.Info().
				Int("pages", base.Pages).
				Int("hits", base.Hits).
				Dur("ttl", base.TTL()).
				Msg("Resuming run from checkpoint")
		}

		keepAlive, err := client.ParseKeepAlive(esClient.KeepAlive())
		if err != nil {
			return err
		}
		scrollCfg.OnPage = store.Recorder(ctx, base, keepAlive)
	}

	ids := &scrollIDs{}
	record := scrollCfg.OnPage
	scrollCfg.OnPage = func(page scroll.PageResult) error {
		ids.observe(page)
		if record != nil {
			return record(page)
		}
		return nil
	}

	out := esClient.Search(ctx, scrollCfg)

	w := bufio.NewWriter(stdout)
	n, runErr := scroll.WriteArrayFunc(w, out, projection(cfg.Scroll.Select))
	if err := w.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("flush output: %w", err)
	}
	if runErr == nil {
		if _, err := io.WriteString(stdout, "\n"); err != nil {
			runErr = fmt.Errorf("write output: %w", err)
		}
	}

	// A failed run keeps its scroll context while a checkpoint can resume it.
	if cfg.Scroll.Clear && (runErr == nil || store == nil) {
		clearScroll(esClient, ids.get(), logger)
	}

	if runErr != nil {
		logger.Warn().
			Err(runErr).
			Int("pages", out.Pages()).
			Int("hits", n).
			Msg("Scroll export failed")
		return runErr
	}

	logger.Info().
		Int("pages", out.Pages()).
		Int("hits", n).
		Msg("Scroll export completed")
	return nil
}

// startingPoint returns the checkpoint to record on top of: the stored one
// when resuming, a fresh one otherwise.
func startingPoint(ctx context.Context, store *checkpoint.Store, cfg config.Config, runID string) (checkpoint.Checkpoint, error) {
	fresh := checkpoint.Checkpoint{RunID: runID, BaseURL: cfg.Elasticsearch.URL}
	if !cfg.Redis.Resume {
		return fresh, nil
	}

	cp, err := store.Get(ctx, checkpoint.Key{RunID: runID})
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return fresh, fmt.Errorf("resume run %s: no live checkpoint: %w", runID, err)
		}
		return fresh, fmt.Errorf("resume run %s: %w", runID, err)
	}
	if cp.BaseURL != cfg.Elasticsearch.URL {
		return fresh, fmt.Errorf("resume run %s: checkpoint belongs to %s, not %s", runID, cp.BaseURL, cfg.Elasticsearch.URL)
	}
	return *cp, nil
}

// projection returns the --select transform, nil when no path is set.
// Hits without the path are written as null.
func projection(path string) func(scroll.Hit) scroll.Hit {
	if path == "" {
		return nil
	}
	return func(hit scroll.Hit) scroll.Hit {
		res := gjson.GetBytes(hit, path)
		if !res.Exists() {
			return scroll.Hit("null")
		}
		return scroll.Hit(res.Raw)
	}
}

func clearScroll(c *client.Client, scrollID string, logger zerolog.Logger) {
	if scrollID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), clearTimeout)
	defer cancel()

	if err := c.Clear(ctx, scrollID); err != nil {
		logger.Warn().Err(err).Msg("Failed to clear scroll context")
		return
	}
	logger.Debug().Msg("Scroll context cleared")
}
