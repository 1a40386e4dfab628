package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vncsmyrnk/ballot/internal/core/domain"
)

// clock is a settable time source for WithClock.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeCache is an in-process ResultsCache that counts its calls. Like the
// Redis cache it keeps the entry with more voters.
type fakeCache struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]domain.ResultSummary
	gets        int
	sets        int
	invalidated []uuid.UUID
	failSets    bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[uuid.UUID]domain.ResultSummary)}
}

func (c *fakeCache) Get(_ context.Context, pollID uuid.UUID) (*domain.ResultSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	s, ok := c.entries[pollID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (c *fakeCache) Set(_ context.Context, summary *domain.ResultSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.failSets {
		return errors.New("cache unavailable")
	}
	if cached, ok := c.entries[summary.PollID]; ok && !summary.Supersedes(cached) {
		return nil
	}
	c.entries[summary.PollID] = *summary
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, pollID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, pollID)
	c.invalidated = append(c.invalidated, pollID)
	return nil
}
