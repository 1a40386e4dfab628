package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/vncsmyrnk/ballot/internal/core/domain"
)

// Store keeps polls in process memory. The map is guarded by mu; each poll
// record carries its own lock so votes on different polls never contend.
// Readers always receive deep copies.
type Store struct {
	mu    sync.RWMutex
	polls map[uuid.UUID]*pollRecord
	order []uuid.UUID
}

type pollRecord struct {
	mu       sync.Mutex
	poll     *domain.Poll
	ballots  map[uuid.UUID][]uuid.UUID
	comments []domain.Comment
}

func NewStore() *Store {
	return &Store{polls: make(map[uuid.UUID]*pollRecord)}
}

func (s *Store) record(id uuid.UUID) (*pollRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.polls[id]
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	return rec, nil
}

func (s *Store) Save(_ context.Context, poll *domain.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.polls[poll.ID]; exists {
		return fmt.Errorf("poll with ID %s already exists", poll.ID)
	}

	stored := poll.Clone()
	if stored.Voters == nil {
		stored.Voters = domain.NewVoterSet()
	}
	s.polls[poll.ID] = &pollRecord{poll: stored, ballots: make(map[uuid.UUID][]uuid.UUID)}
	s.order = append(s.order, poll.ID)
	return nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*domain.Poll, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.poll.Clone(), nil
}

// List returns summaries newest first.
func (s *Store) List(_ context.Context, limit, offset int) ([]domain.PollSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := []domain.PollSummary{}
	if offset < 0 || offset >= len(s.order) {
		return summaries, nil
	}
	for i := len(s.order) - 1 - offset; i >= 0 && len(summaries) < limit; i-- {
		p := s.polls[s.order[i]].poll
		summary := domain.PollSummary{
			ID:        p.ID,
			Question:  p.Question,
			CreatorID: p.CreatorID,
			CreatedAt: p.CreatedAt,
		}
		if p.ExpiresAt != nil {
			e := *p.ExpiresAt
			summary.ExpiresAt = &e
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *Store) ListIDs(_ context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order), nil
}

func (s *Store) ApplyVote(_ context.Context, ballot domain.BallotInput) error {
	rec, err := s.record(ballot.PollID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	poll := rec.poll
	if poll.IsClosedAt(ballot.At) {
		return domain.ErrPollClosed
	}
	if poll.Voters.Has(ballot.VoterID) {
		return domain.ErrDuplicateVote
	}

	positions := make([]int, 0, len(ballot.OptionIDs))
	for _, optID := range ballot.OptionIDs {
		idx := slices.IndexFunc(poll.Options, func(o domain.Option) bool { return o.ID == optID })
		if idx < 0 || slices.Contains(positions, idx) {
			return domain.ErrInvalidSelection
		}
		positions = append(positions, idx)
	}
	if len(positions) == 0 || (!poll.MultipleAnswers && len(positions) != 1) {
		return domain.ErrInvalidSelection
	}

	for _, idx := range positions {
		poll.Options[idx].Votes++
	}
	poll.Voters.Add(ballot.VoterID)
	rec.ballots[ballot.VoterID] = slices.Clone(ballot.OptionIDs)
	return nil
}

func (s *Store) TallySnapshot(_ context.Context, pollID uuid.UUID) (*domain.TallySnapshot, error) {
	rec, err := s.record(pollID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	snap := &domain.TallySnapshot{
		PollID:          pollID,
		MultipleAnswers: rec.poll.MultipleAnswers,
		Stored:          make(map[uuid.UUID]int64, len(rec.poll.Options)),
		Recounted:       make(map[uuid.UUID]int64),
		VoterCount:      rec.poll.Voters.Len(),
	}
	for _, opt := range rec.poll.Options {
		snap.OptionIDs = append(snap.OptionIDs, opt.ID)
		snap.Stored[opt.ID] = opt.Votes
	}
	for _, selection := range rec.ballots {
		for _, optID := range selection {
			snap.Recounted[optID]++
		}
	}
	return snap, nil
}

func (s *Store) AppendComment(_ context.Context, comment *domain.Comment) error {
	rec, err := s.record(comment.PollID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.comments = append(rec.comments, *comment)
	return nil
}

func (s *Store) ListComments(_ context.Context, pollID uuid.UUID) ([]domain.Comment, error) {
	rec, err := s.record(pollID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return slices.Clone(rec.comments), nil
}
