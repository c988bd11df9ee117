package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/es-scroll-stream/pkg/scroll"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound indicates there is no live checkpoint for a run.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrInvalidCheckpoint indicates the stored checkpoint is corrupted.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
)

// Store keeps checkpoints in Redis. Each checkpoint expires together with the
// scroll context it points into.
type Store struct {
	redis *redis.Client
}

// NewStore creates a checkpoint store with Redis backend.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{
		redis: redisClient,
	}
}

// Get retrieves the checkpoint of a run.
// Returns ErrNotFound if it doesn't exist or its scroll context expired.
func (s *Store) Get(ctx context.Context, key Key) (*Checkpoint, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			Loads.WithLabelValues("miss").Inc()
			return nil, ErrNotFound
		}
		Errors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		Errors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}

	if cp.IsExpired() {
		_ = s.Delete(ctx, key)
		Loads.WithLabelValues("miss").Inc()
		return nil, ErrNotFound
	}

	Loads.WithLabelValues("hit").Inc()
	return &cp, nil
}

// Save stores a checkpoint until its ExpiresAt. An already expired
// checkpoint removes the stored one instead.
func (s *Store) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if cp.RunID == "" {
		return fmt.Errorf("checkpoint run id is required")
	}

	key := Key{RunID: cp.RunID}

	ttl := cp.TTL()
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}

	data, err := json.Marshal(cp)
	if err != nil {
		Errors.WithLabelValues("save").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		Errors.WithLabelValues("save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	Saves.Inc()
	return nil
}

// Delete removes a checkpoint.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		Errors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Recorder returns a scroll.Config.OnPage hook that saves a checkpoint after
// every page that scheduled a successor and deletes it once the run ended.
// base carries the run id, the base URL and, when resuming, the totals
// delivered before this process started.
func (s *Store) Recorder(ctx context.Context, base Checkpoint, keepAlive time.Duration) func(scroll.PageResult) error {
	cp := base
	return func(page scroll.PageResult) error {
		cp.Pages++
		cp.Hits += page.Hits

		if page.Next == "" {
			return s.Delete(ctx, Key{RunID: cp.RunID})
		}

		now := time.Now()
		cp.Token = page.Next
		cp.UpdatedAt = now
		cp.ExpiresAt = now.Add(keepAlive)

		saved := cp
		return s.Save(ctx, &saved)
	}
}
