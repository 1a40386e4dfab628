package services

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/vncsmyrnk/ballot/internal/core/domain"
	"github.com/vncsmyrnk/ballot/internal/core/ports"
	"github.com/vncsmyrnk/ballot/internal/metrics"
)

const (
	audiencePublic  = "public"
	audienceCreator = "creator"
)

type resultsService struct {
	polls    ports.PollRepository
	comments ports.CommentRepository
	users    ports.UserRepository
	cache    ports.ResultsCache
	group    singleflight.Group
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewResultsService wires the results projector. cache may be nil.
func NewResultsService(polls ports.PollRepository, comments ports.CommentRepository, users ports.UserRepository, cache ports.ResultsCache, opts ...Option) ports.ResultsService {
	o := newOptions(opts)
	return &resultsService{
		polls:    polls,
		comments: comments,
		users:    users,
		cache:    cache,
		metrics:  o.metrics,
		logger:   o.logger,
		now:      o.now,
	}
}

// GetResults never refuses a read: the creator gets CreatorResults, every
// other requester (including anonymous ones) gets a ResultSummary.
func (s *resultsService) GetResults(ctx context.Context, pollID uuid.UUID, requester *uuid.UUID) (domain.ResultView, error) {
	if requester == nil {
		return s.publicResults(ctx, pollID, nil)
	}

	poll, err := s.polls.GetByID(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if *requester == poll.CreatorID {
		return s.creatorResults(ctx, poll)
	}
	return s.publicResults(ctx, pollID, poll)
}

// publicResults serves the aggregate view, from the cache when possible.
// loaded is an already fetched copy of the poll, or nil.
func (s *resultsService) publicResults(ctx context.Context, pollID uuid.UUID, loaded *domain.Poll) (domain.ResultView, error) {
	now := s.now()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, pollID)
		if err != nil {
			s.logger.WarnContext(ctx, "results cache read failed", "poll_id", pollID, "error", err)
		}
		if cached != nil {
			s.metrics.IncResultsServed(audiencePublic, "cache")
			cached.Closed = cached.ExpiresAt != nil && !now.Before(*cached.ExpiresAt)
			return *cached, nil
		}
	}

	v, err, _ := s.group.Do(pollID.String(), func() (any, error) {
		// The load is shared by every coalesced caller, so it must not end
		// when the first caller's request does.
		ctx := context.WithoutCancel(ctx)
		poll := loaded
		if poll == nil {
			var err error
			if poll, err = s.polls.GetByID(ctx, pollID); err != nil {
				return nil, err
			}
		}
		summary := domain.SummarizePoll(poll, now)
		if s.cache != nil {
			if err := s.cache.Set(ctx, &summary); err != nil {
				s.logger.WarnContext(ctx, "results cache write failed", "poll_id", pollID, "error", err)
			}
		}
		return summary, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncResultsServed(audiencePublic, "store")
	return v.(domain.ResultSummary), nil
}

func (s *resultsService) creatorResults(ctx context.Context, poll *domain.Poll) (domain.ResultView, error) {
	voterIDs := poll.Voters.IDs()
	users, err := s.users.GetByIDs(ctx, voterIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve voters: %w", err)
	}

	voters := make([]domain.Voter, 0, len(voterIDs))
	for _, id := range voterIDs {
		name := id.String()
		if u, ok := users[id]; ok && u != nil {
			name = u.DisplayName()
		}
		voters = append(voters, domain.Voter{ID: id, Name: name})
	}
	slices.SortFunc(voters, func(a, b domain.Voter) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID.String(), b.ID.String()))
	})

	comments, err := s.comments.ListComments(ctx, poll.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}

	s.metrics.IncResultsServed(audienceCreator, "store")
	return domain.CreatorResults{
		ResultSummary: domain.SummarizePoll(poll, s.now()),
		Voters:        voters,
		Comments:      domain.NewestFirst(comments),
	}, nil
}
