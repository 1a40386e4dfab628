package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/vncsmyrnk/ballot/internal/core/domain"
	"github.com/vncsmyrnk/ballot/internal/core/ports"
	"github.com/vncsmyrnk/ballot/internal/metrics"
)

const maxVoteAttempts = 5

type voteService struct {
	pollRepo ports.PollRepository
	voteRepo ports.VoteRepository
	cache    ports.ResultsCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewVoteService wires the vote ledger. cache may be nil.
func NewVoteService(pollRepo ports.PollRepository, voteRepo ports.VoteRepository, cache ports.ResultsCache, opts ...Option) ports.VoteService {
	o := newOptions(opts)
	return &voteService{
		pollRepo: pollRepo,
		voteRepo: voteRepo,
		cache:    cache,
		metrics:  o.metrics,
		logger:   o.logger,
		now:      o.now,
	}
}

func (s *voteService) CastVote(ctx context.Context, input ports.VoteInput) (*domain.Poll, error) {
	poll, err := s.pollRepo.GetByID(ctx, input.PollID)
	if err != nil {
		return nil, s.reject(ctx, input, err)
	}

	now := s.now()
	if poll.IsClosedAt(now) {
		return nil, s.reject(ctx, input, domain.ErrPollClosed)
	}

	if poll.Voters.Has(input.VoterID) {
		return nil, s.reject(ctx, input, domain.ErrDuplicateVote)
	}

	selection, err := normalizeSelection(poll, input.OptionIDs)
	if err != nil {
		return nil, s.reject(ctx, input, err)
	}

	ballot := domain.BallotInput{
		PollID:    poll.ID,
		VoterID:   input.VoterID,
		OptionIDs: selection,
		At:        now,
	}
	if err := s.apply(ctx, ballot); err != nil {
		return nil, s.reject(ctx, input, err)
	}

	s.metrics.IncVotesAccepted()
	s.logger.DebugContext(ctx, "vote accepted", "poll_id", poll.ID, "voter_id", input.VoterID, "options", len(selection))

	updated, err := s.pollRepo.GetByID(ctx, poll.ID)
	if err != nil {
		s.invalidate(ctx, poll.ID)
		return nil, fmt.Errorf("failed to reload poll: %w", err)
	}
	updated.Closed = updated.IsClosedAt(s.now())
	s.refreshCache(ctx, updated)
	return updated, nil
}

// refreshCache writes the post-vote summary. The cache keeps whichever entry
// counts more voters, so an older concurrent read cannot replace it.
func (s *voteService) refreshCache(ctx context.Context, poll *domain.Poll) {
	if s.cache == nil {
		return
	}
	summary := domain.SummarizePoll(poll, s.now())
	if err := s.cache.Set(ctx, &summary); err != nil {
		s.logger.WarnContext(ctx, "failed to refresh cached results", "poll_id", poll.ID, "error", err)
		s.invalidate(ctx, poll.ID)
	}
}

func (s *voteService) invalidate(ctx context.Context, pollID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, pollID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate cached results", "poll_id", pollID, "error", err)
	}
}

// apply runs ApplyVote, retrying the whole unit while the store reports a
// transient conflict. Any other error ends the attempt immediately.
func (s *voteService) apply(ctx context.Context, ballot domain.BallotInput) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 10 * time.Millisecond
	exp.MaxInterval = 200 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, maxVoteAttempts-1), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		if attempt > 1 {
			s.metrics.IncVoteRetries()
		}
		err := s.voteRepo.ApplyVote(ctx, ballot)
		if err == nil || errors.Is(err, domain.ErrStorageConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (s *voteService) reject(ctx context.Context, input ports.VoteInput, err error) error {
	reason := metrics.ReasonError
	switch {
	case errors.Is(err, domain.ErrPollNotFound):
		reason = metrics.ReasonNotFound
	case errors.Is(err, domain.ErrPollClosed):
		reason = metrics.ReasonClosed
	case errors.Is(err, domain.ErrDuplicateVote):
		reason = metrics.ReasonDuplicate
	case errors.Is(err, domain.ErrInvalidSelection):
		reason = metrics.ReasonInvalidSelection
	}
	s.metrics.IncVotesRejected(reason)

	if reason == metrics.ReasonError {
		s.logger.ErrorContext(ctx, "vote failed", "poll_id", input.PollID, "voter_id", input.VoterID, "error", err)
		return fmt.Errorf("failed to cast vote: %w", err)
	}
	s.logger.DebugContext(ctx, "vote rejected", "poll_id", input.PollID, "voter_id", input.VoterID, "reason", reason)
	return err
}

// normalizeSelection applies set semantics to the requested option ids and
// checks them against the poll's options and answer policy.
func normalizeSelection(poll *domain.Poll, optionIDs []uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{}, len(optionIDs))
	selection := make([]uuid.UUID, 0, len(optionIDs))
	for _, id := range optionIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		if !poll.HasOption(id) {
			return nil, fmt.Errorf("%w: option %s does not belong to poll", domain.ErrInvalidSelection, id)
		}
		seen[id] = struct{}{}
		selection = append(selection, id)
	}

	switch {
	case len(selection) == 0:
		return nil, fmt.Errorf("%w: at least one option must be selected", domain.ErrInvalidSelection)
	case !poll.MultipleAnswers && len(selection) > 1:
		return nil, fmt.Errorf("%w: poll accepts a single answer", domain.ErrInvalidSelection)
	}
	return selection, nil
}
