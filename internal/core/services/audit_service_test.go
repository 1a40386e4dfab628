package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncsmyrnk/ballot/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/ballot/internal/core/domain"
	"github.com/vncsmyrnk/ballot/internal/core/ports"
)

// skewedTally reports one extra selection for a chosen option.
type skewedTally struct {
	ports.TallyRepository
	option uuid.UUID
}

func (s skewedTally) TallySnapshot(ctx context.Context, pollID uuid.UUID) (*domain.TallySnapshot, error) {
	snap, err := s.TallyRepository.TallySnapshot(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Recounted[s.option]; ok {
		snap.Recounted[s.option]++
	}
	return snap, nil
}

func seedVotes(t *testing.T, store *memory.Store, n int) []*domain.Poll {
	t.Helper()
	ctx := context.Background()
	polls := NewPollService(store, store, memory.NewUserStore())
	votes := NewVoteService(store, store, nil)

	var created []*domain.Poll
	for i := 0; i < n; i++ {
		p, err := polls.Create(ctx, ports.CreatePollInput{
			Question:        "Q",
			Options:         []string{"A", "B", "C"},
			CreatorID:       uuid.New(),
			MultipleAnswers: i%2 == 1,
		})
		require.NoError(t, err)
		selection := []uuid.UUID{p.Options[0].ID}
		if p.MultipleAnswers {
			selection = append(selection, p.Options[2].ID)
		}
		for j := 0; j < 3; j++ {
			_, err := votes.CastVote(ctx, ports.VoteInput{PollID: p.ID, VoterID: uuid.New(), OptionIDs: selection})
			require.NoError(t, err)
		}
		created = append(created, p)
	}
	return created
}

func TestAuditService_Consistent(t *testing.T) {
	store := memory.NewStore()
	seedVotes(t, store, 20)

	drifts, err := NewAuditService(store, store).AuditAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestAuditService_ReportsDrift(t *testing.T) {
	store := memory.NewStore()
	polls := seedVotes(t, store, 4)
	target := polls[2]

	audit := NewAuditService(store, skewedTally{TallyRepository: store, option: target.Options[0].ID})
	drifts, err := audit.AuditAll(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)

	drift := drifts[0]
	assert.Equal(t, target.ID, drift.PollID)
	assert.Equal(t, int64(3), drift.Stored[target.Options[0].ID])
	assert.Equal(t, int64(4), drift.Recounted[target.Options[0].ID])
	assert.Equal(t, 3, drift.VoterCount)
	assert.NotEmpty(t, drift.Reason)
}

func TestAuditService_ConcurrentVotesNeverDrift(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	polls := seedVotes(t, store, 4)
	votes := NewVoteService(store, store, nil)
	audit := NewAuditService(store, store)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			p := polls[i%len(polls)]
			selection := []uuid.UUID{p.Options[1].ID}
			if p.MultipleAnswers {
				selection = append(selection, p.Options[2].ID)
			}
			_, err := votes.CastVote(ctx, ports.VoteInput{PollID: p.ID, VoterID: uuid.New(), OptionIDs: selection})
			assert.NoError(t, err)
		}
	}()

	for i := 0; i < 50; i++ {
		drifts, err := audit.AuditAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, drifts, "votes landing during an audit are never reported as drift")
	}
	wg.Wait()
}
