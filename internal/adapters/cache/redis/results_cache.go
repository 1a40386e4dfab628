package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vncsmyrnk/ballot/internal/core/domain"
)

const (
	resultsKeyPrefix = "results:"
	maxSetAttempts   = 3

	// DefaultTTL matches the refresh interval of clients polling for live results.
	DefaultTTL = 2 * time.Second
)

// ResultsCache stores public result summaries as JSON with a short expiry.
// Creator views never pass through it.
type ResultsCache struct {
	client *redis.Client
	ttl    time.Duration
}

type ResultsCacheOption func(*ResultsCache)

func WithTTL(ttl time.Duration) ResultsCacheOption {
	return func(c *ResultsCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func NewResultsCache(client *redis.Client, opts ...ResultsCacheOption) *ResultsCache {
	c := &ResultsCache{
		client: client,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *ResultsCache) Get(ctx context.Context, pollID uuid.UUID) (*domain.ResultSummary, error) {
	raw, err := c.client.Get(ctx, key(pollID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached results: %w", err)
	}

	var summary domain.ResultSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode cached results: %w", err)
	}
	return &summary, nil
}

// Set writes summary inside a WATCH transaction and leaves a cached entry
// with more voters in place.
func (c *ResultsCache) Set(ctx context.Context, summary *domain.ResultSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	k := key(summary.PollID)

	write := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var cached domain.ResultSummary
			if json.Unmarshal(current, &cached) == nil && !summary.Supersedes(cached) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, raw, c.ttl)
			return nil
		})
		return err
	}

	for range maxSetAttempts {
		err = c.client.Watch(ctx, write, k)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to cache results: %w", err)
	}
	return nil
}

func (c *ResultsCache) Invalidate(ctx context.Context, pollID uuid.UUID) error {
	if err := c.client.Del(ctx, key(pollID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate results: %w", err)
	}
	return nil
}

func key(pollID uuid.UUID) string {
	return resultsKeyPrefix + pollID.String()
}
