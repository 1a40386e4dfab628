package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncsmyrnk/ballot/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/ballot/internal/core/domain"
	"github.com/vncsmyrnk/ballot/internal/core/ports"
	"github.com/vncsmyrnk/ballot/internal/metrics"
)

type voteFixture struct {
	store   *memory.Store
	polls   ports.PollService
	votes   ports.VoteService
	results ports.ResultsService
	clock   *clock
	cache   *fakeCache
	metrics *metrics.Metrics
}

func newVoteFixture(t *testing.T) *voteFixture {
	t.Helper()
	f := &voteFixture{
		store:   memory.NewStore(),
		clock:   newClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
		cache:   newFakeCache(),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	users := memory.NewUserStore()
	opts := []Option{WithClock(f.clock.Now), WithMetrics(f.metrics)}
	f.polls = NewPollService(f.store, f.store, users, opts...)
	f.votes = NewVoteService(f.store, f.store, f.cache, opts...)
	f.results = NewResultsService(f.store, f.store, users, f.cache, opts...)
	return f
}

func (f *voteFixture) create(t *testing.T, input ports.CreatePollInput) *domain.Poll {
	t.Helper()
	if input.CreatorID == uuid.Nil {
		input.CreatorID = uuid.New()
	}
	poll, err := f.polls.Create(context.Background(), input)
	require.NoError(t, err)
	return poll
}

func TestVoteService_TeaOrCoffee(t *testing.T) {
	f := newVoteFixture(t)
	ctx := context.Background()
	poll := f.create(t, ports.CreatePollInput{Question: "Tea or coffee?", Options: []string{"Tea", "Coffee"}})
	tea, coffee := poll.Options[0].ID, poll.Options[1].ID
	voterA, voterB := uuid.New(), uuid.New()

	_, err := f.votes.CastVote(ctx, ports.VoteInput{PollID: poll.ID, VoterID: voterA, OptionIDs: []uuid.UUID{tea}})
	require.NoError(t, err)
	_, err = f.votes.CastVote(ctx, ports.VoteInput{PollID: poll.ID, VoterID: voterB, OptionIDs: []uuid.UUID{coffee}})
	require.NoError(t, err)

	_, err = f.votes.CastVote(ctx, ports.VoteInput{PollID: poll.ID, VoterID: voterA, OptionIDs: []uuid.UUID{coffee}})
	assert.ErrorIs(t, err, domain.ErrDuplicateVote)

	view, err := f.results.GetResults(ctx, poll.ID, nil)
	require.NoError(t, err)
	summary := view.Summary()
	assert.Equal(t, int64(2), summary.TotalVotes)
	assert.Equal(t, int64(1), summary.Options[0].Votes)
	assert.Equal(t, 50.0, summary.Options[0].Percentage)
	assert.Equal(t, int64(1), summary.Options[1].Votes)
	assert.Equal(t, 50.0, summary.Options[1].Percentage)

	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.VotesAccepted))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.VotesRejected.WithLabelValues(metrics.ReasonDuplicate)))
}

func TestVoteService_Expiration(t *testing.T) {
	f := newVoteFixture(t)
	ctx := context.Background()

	past := f.clock.Now().Add(-time.Second)
	_, err := f.polls.Create(ctx, ports.CreatePollInput{Question: "Q", Options: []string{"A", "B"}, CreatorID: uuid.New(), ExpiresAt: &past})
	assert.ErrorIs(t, err, domain.ErrValidation)

	future := f.clock.Now().Add(time.Minute)
	poll := f.create(t, ports.CreatePollInput{Question: "Q", Options: []string{"A", "B"}, ExpiresAt: &future})

	_, err = f.votes.CastVote(ctx, ports.VoteInput{PollID: poll.ID, VoterID: uuid.New(), OptionIDs: []uuid.UUID{poll.Options[0].ID}})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	late := uuid.New()
	_, err = f.votes.CastVote(ctx, ports.VoteInput{PollID: poll.ID, VoterID: late, OptionIDs: []uuid.UUID{poll.Options[1].ID}})
	assert.ErrorIs(t, err, domain.ErrPollClosed)

	got, err := f.polls.GetPoll(ctx, poll.ID.String())
	require.NoError(t, err)
	assert.True(t, got.Closed)
	assert.Equal(t, int64(1), got.TotalVotes())
	assert.False(t, got.Voters.Has(late))
}

func TestVoteService_MultipleAnswers(t *testing.T) {
	f := newVoteFixture(t)
	ctx := context.Background()
	poll := f.create(t, ports.CreatePollInput{Question: "Pick any", Options: []string{"Zero", "One", "Two"}, MultipleAnswers: true})
	voter := uuid.New()

	updated, err := f.votes.CastVote(ctx, ports.VoteInput{
		PollID:    poll.ID,
		VoterID:   voter,
		OptionIDs: []uuid.UUID{poll.Options[0].ID, poll.Options[2].ID},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Options[0].Votes)
	assert.Equal(t, int64(0), updated.Options[1].Votes)
	assert.Equal(t, int64(1), updated.Options[2].Votes)
	assert.True(t, updated.Voters.Has(voter))

	_, err = f.votes.CastVote(ctx, ports.VoteInput{PollID: poll.ID, VoterID: voter, OptionIDs: []uuid.UUID{poll.Options[0].ID}})
	assert.ErrorIs(t, err, domain.ErrDuplicateVote)
}

func TestVoteService_Rejections(t *testing.T) {
	f := newVoteFixture(t)
	ctx := context.Background()
	single := f.create(t, ports.CreatePollInput{Question: "Q", Options: []string{"A", "B"}})
	multi := f.create(t, ports.CreatePollInput{Question: "Q", Options: []string{"A", "B"}, MultipleAnswers: true})

	tests := []struct {
		name    string
		input   ports.VoteInput
		wantErr error
	}{
		{"unknown poll", ports.VoteInput{PollID: uuid.New(), VoterID: uuid.New(), OptionIDs: []uuid.UUID{single.Options[0].ID}}, domain.ErrPollNotFound},
		{"empty selection", ports.VoteInput{PollID: single.ID, VoterID: uuid.New()}, domain.ErrInvalidSelection},
		{"foreign option", ports.VoteInput{PollID: single.ID, VoterID: uuid.New(), OptionIDs: []uuid.UUID{multi.Options[0].ID}}, domain.ErrInvalidSelection},
		{"two options on single answer poll", ports.VoteInput{PollID: single.ID, VoterID: uuid.New(), OptionIDs: []uuid.UUID{single.Options[0].ID, single.Options[1].ID}}, domain.ErrInvalidSelection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.votes.CastVote(ctx, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	for _, id := range []uuid.UUID{single.ID, multi.ID} {
		got, err := f.store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, got.TotalVotes())
		assert.Zero(t, got.Voters.Len())
	}
}

func TestVoteService_DuplicateIDsCollapse(t *testing.T) {
	f := newVoteFixture(t)
	ctx := context.Background()
	poll := f.create(t, ports.CreatePollInput{Question: "Q", Options: []string{"A", "B"}})

	updated, err := f.votes.CastVote(ctx, ports.VoteInput{
		PollID:    poll.ID,
		VoterID:   uuid.New(),
		OptionIDs: []uuid.UUID{poll.Options[1].ID, poll.Options[1].ID},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Options[1].Votes)
	assert.Equal(t, int64(1), updated.TotalVotes())
}

func TestVoteService_RefreshesCache(t *testing.T) {
	f := newVoteFixture(t)
	ctx := context.Background()
	poll := f.create(t, ports.CreatePollInput{Question: "Q", Options: []string{"A", "B"}})

	_, err := f.results.GetResults(ctx, poll.ID, nil)
	require.NoError(t, err)

	_, err = f.votes.CastVote(ctx, ports.VoteInput{PollID: poll.ID, VoterID: uuid.New(), OptionIDs: []uuid.UUID{poll.Options[0].ID}})
	require.NoError(t, err)
	cached, err := f.cache.Get(ctx, poll.ID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, int64(1), cached.TotalVotes, "the vote writes the post-vote summary")
	assert.Empty(t, f.cache.invalidated)

	view, err := f.results.GetResults(ctx, poll.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Summary().TotalVotes, "a vote is visible on the next read")
}

func TestVoteService_InvalidatesWhenRefreshFails(t *testing.T) {
	f := newVoteFixture(t)
	ctx := context.Background()
	poll := f.create(t, ports.CreatePollInput{Question: "Q", Options: []string{"A", "B"}})

	_, err := f.results.GetResults(ctx, poll.ID, nil)
	require.NoError(t, err)

	f.cache.mu.Lock()
	f.cache.failSets = true
	f.cache.mu.Unlock()

	_, err = f.votes.CastVote(ctx, ports.VoteInput{PollID: poll.ID, VoterID: uuid.New(), OptionIDs: []uuid.UUID{poll.Options[0].ID}})
	require.NoError(t, err, "a cache failure never fails the vote")
	assert.Contains(t, f.cache.invalidated, poll.ID)

	cached, err := f.cache.Get(ctx, poll.ID)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestVoteService_ConcurrentDistinctVoters(t *testing.T) {
	f := newVoteFixture(t)
	ctx := context.Background()
	poll := f.create(t, ports.CreatePollInput{Question: "Q", Options: []string{"A", "B", "C"}})

	const voters = 90
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.votes.CastVote(ctx, ports.VoteInput{
				PollID:    poll.ID,
				VoterID:   uuid.New(),
				OptionIDs: []uuid.UUID{poll.Options[i%3].ID},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := f.store.GetByID(ctx, poll.ID)
	require.NoError(t, err)
	for _, opt := range got.Options {
		assert.Equal(t, int64(voters/3), opt.Votes)
	}
	assert.Equal(t, voters, got.Voters.Len())
	assert.Equal(t, int64(got.Voters.Len()), got.TotalVotes())
}

func TestVoteService_ConcurrentSameVoter(t *testing.T) {
	f := newVoteFixture(t)
	ctx := context.Background()
	poll := f.create(t, ports.CreatePollInput{Question: "Q", Options: []string{"A", "B"}})
	voter := uuid.New()

	const attempts = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.votes.CastVote(ctx, ports.VoteInput{PollID: poll.ID, VoterID: voter, OptionIDs: []uuid.UUID{poll.Options[i%2].ID}})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrDuplicateVote)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	got, err := f.store.GetByID(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.TotalVotes())
}

// flakyVotes fails ApplyVote with a storage conflict a fixed number of times
// before delegating.
type flakyVotes struct {
	ports.VoteRepository
	mu       sync.Mutex
	failures int
	calls    int
	err      error
}

func (r *flakyVotes) ApplyVote(ctx context.Context, ballot domain.BallotInput) error {
	r.mu.Lock()
	r.calls++
	fail := r.calls <= r.failures
	r.mu.Unlock()
	if fail {
		return r.err
	}
	return r.VoteRepository.ApplyVote(ctx, ballot)
}

func TestVoteService_RetriesStorageConflicts(t *testing.T) {
	store := memory.NewStore()
	m := metrics.New(prometheus.NewRegistry())
	flaky := &flakyVotes{VoteRepository: store, failures: 2, err: domain.ErrStorageConflict}
	polls := NewPollService(store, store, memory.NewUserStore())
	votes := NewVoteService(store, flaky, nil, WithMetrics(m))
	ctx := context.Background()

	poll, err := polls.Create(ctx, ports.CreatePollInput{Question: "Q", Options: []string{"A", "B"}, CreatorID: uuid.New()})
	require.NoError(t, err)

	updated, err := votes.CastVote(ctx, ports.VoteInput{PollID: poll.ID, VoterID: uuid.New(), OptionIDs: []uuid.UUID{poll.Options[0].ID}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.TotalVotes())
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.VoteRetries))
}

func TestVoteService_GivesUpOnPersistentConflict(t *testing.T) {
	store := memory.NewStore()
	flaky := &flakyVotes{VoteRepository: store, failures: 100, err: domain.ErrStorageConflict}
	polls := NewPollService(store, store, memory.NewUserStore())
	votes := NewVoteService(store, flaky, nil)
	ctx := context.Background()

	poll, err := polls.Create(ctx, ports.CreatePollInput{Question: "Q", Options: []string{"A", "B"}, CreatorID: uuid.New()})
	require.NoError(t, err)

	_, err = votes.CastVote(ctx, ports.VoteInput{PollID: poll.ID, VoterID: uuid.New(), OptionIDs: []uuid.UUID{poll.Options[0].ID}})
	assert.ErrorIs(t, err, domain.ErrStorageConflict)
	assert.Equal(t, maxVoteAttempts, flaky.calls)
}

func TestVoteService_DoesNotRetryOtherErrors(t *testing.T) {
	store := memory.NewStore()
	boom := errors.New("connection reset")
	flaky := &flakyVotes{VoteRepository: store, failures: 100, err: boom}
	polls := NewPollService(store, store, memory.NewUserStore())
	votes := NewVoteService(store, flaky, nil)
	ctx := context.Background()

	poll, err := polls.Create(ctx, ports.CreatePollInput{Question: "Q", Options: []string{"A", "B"}, CreatorID: uuid.New()})
	require.NoError(t, err)

	_, err = votes.CastVote(ctx, ports.VoteInput{PollID: poll.ID, VoterID: uuid.New(), OptionIDs: []uuid.UUID{poll.Options[0].ID}})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, flaky.calls)
}
