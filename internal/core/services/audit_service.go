package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vncsmyrnk/ballot/internal/core/domain"
	"github.com/vncsmyrnk/ballot/internal/core/ports"
)

const auditConcurrency = 8

type auditService struct {
	pollRepo  ports.PollRepository
	tallyRepo ports.TallyRepository
	logger    *slog.Logger
}

func NewAuditService(pollRepo ports.PollRepository, tallyRepo ports.TallyRepository, opts ...Option) ports.AuditService {
	o := newOptions(opts)
	return &auditService{
		pollRepo:  pollRepo,
		tallyRepo: tallyRepo,
		logger:    o.logger,
	}
}

// AuditAll recounts the recorded ballots of every poll and reports the polls
// whose stored tallies disagree with them.
func (s *auditService) AuditAll(ctx context.Context) ([]domain.TallyDrift, error) {
	ids, err := s.pollRepo.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch all polls: %w", err)
	}

	var (
		mu     sync.Mutex
		drifts []domain.TallyDrift
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(auditConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			drift, err := s.auditPoll(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to audit poll %s: %w", id, err)
			}
			if drift != nil {
				mu.Lock()
				drifts = append(drifts, *drift)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tally audit finished", "polls", len(ids), "drifts", len(drifts))
	return drifts, nil
}

func (s *auditService) auditPoll(ctx context.Context, pollID uuid.UUID) (*domain.TallyDrift, error) {
	snap, err := s.tallyRepo.TallySnapshot(ctx, pollID)
	if err != nil {
		return nil, err
	}

	var (
		reason string
		total  int64
	)
	for _, id := range snap.OptionIDs {
		total += snap.Stored[id]
		if snap.Stored[id] != snap.Recounted[id] && reason == "" {
			reason = fmt.Sprintf("option %s has %d votes but %d recorded selections", id, snap.Stored[id], snap.Recounted[id])
		}
	}

	voters := int64(snap.VoterCount)
	switch {
	case reason != "":
	case !snap.MultipleAnswers && total != voters:
		reason = fmt.Sprintf("single-answer poll has %d votes from %d voters", total, voters)
	case snap.MultipleAnswers && total < voters:
		reason = fmt.Sprintf("multiple-answer poll has %d votes from %d voters", total, voters)
	}
	if reason == "" {
		return nil, nil
	}

	s.logger.WarnContext(ctx, "tally drift detected", "poll_id", pollID, "reason", reason)
	return &domain.TallyDrift{
		PollID:     pollID,
		Stored:     snap.Stored,
		Recounted:  snap.Recounted,
		VoterCount: snap.VoterCount,
		Reason:     reason,
	}, nil
}
