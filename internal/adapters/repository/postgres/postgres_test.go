package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vncsmyrnk/ballot/internal/core/domain"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(ctx, db))
	return db
}

func newPoll(multiple bool, expiresAt *time.Time, options ...string) *domain.Poll {
	p := &domain.Poll{
		ID:              uuid.New(),
		Question:        "Which one?",
		CreatorID:       uuid.New(),
		MultipleAnswers: multiple,
		ExpiresAt:       expiresAt,
		Voters:          domain.NewVoterSet(),
		CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}
	for _, text := range options {
		p.Options = append(p.Options, domain.Option{ID: uuid.New(), Text: text})
	}
	return p
}

func TestPostgresStore(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	polls := NewPollRepository(db)
	votes := NewVoteRepository(db)
	comments := NewCommentRepository(db)

	t.Run("save and load keeps option order", func(t *testing.T) {
		p := newPoll(false, nil, "Tea", "Coffee", "Water")
		require.NoError(t, polls.Save(ctx, p))

		got, err := polls.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.Question, got.Question)
		require.Len(t, got.Options, 3)
		for i := range p.Options {
			assert.Equal(t, p.Options[i].ID, got.Options[i].ID)
			assert.Equal(t, p.Options[i].Text, got.Options[i].Text)
			assert.Zero(t, got.Options[i].Votes)
		}
		assert.Equal(t, 0, got.Voters.Len())
	})

	t.Run("unknown poll", func(t *testing.T) {
		_, err := polls.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrPollNotFound)

		err = votes.ApplyVote(ctx, domain.BallotInput{PollID: uuid.New(), VoterID: uuid.New(), OptionIDs: []uuid.UUID{uuid.New()}, At: time.Now()})
		assert.ErrorIs(t, err, domain.ErrPollNotFound)
	})

	t.Run("vote then duplicate", func(t *testing.T) {
		p := newPoll(false, nil, "Tea", "Coffee")
		require.NoError(t, polls.Save(ctx, p))
		voter := uuid.New()

		ballot := domain.BallotInput{PollID: p.ID, VoterID: voter, OptionIDs: []uuid.UUID{p.Options[0].ID}, At: time.Now()}
		require.NoError(t, votes.ApplyVote(ctx, ballot))

		ballot.OptionIDs = []uuid.UUID{p.Options[1].ID}
		assert.ErrorIs(t, votes.ApplyVote(ctx, ballot), domain.ErrDuplicateVote)

		got, err := polls.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Options[0].Votes)
		assert.Equal(t, int64(0), got.Options[1].Votes)
		assert.True(t, got.Voters.Has(voter))
	})

	t.Run("closed poll rejects", func(t *testing.T) {
		expires := time.Now().Add(time.Hour)
		p := newPoll(false, &expires, "Yes", "No")
		require.NoError(t, polls.Save(ctx, p))

		err := votes.ApplyVote(ctx, domain.BallotInput{PollID: p.ID, VoterID: uuid.New(), OptionIDs: []uuid.UUID{p.Options[0].ID}, At: expires})
		assert.ErrorIs(t, err, domain.ErrPollClosed)
	})

	t.Run("invalid selections leave no trace", func(t *testing.T) {
		p := newPoll(false, nil, "Yes", "No")
		require.NoError(t, polls.Save(ctx, p))
		voter := uuid.New()

		err := votes.ApplyVote(ctx, domain.BallotInput{PollID: p.ID, VoterID: voter, OptionIDs: []uuid.UUID{p.Options[0].ID, p.Options[1].ID}, At: time.Now()})
		assert.ErrorIs(t, err, domain.ErrInvalidSelection)

		err = votes.ApplyVote(ctx, domain.BallotInput{PollID: p.ID, VoterID: voter, OptionIDs: []uuid.UUID{uuid.New()}, At: time.Now()})
		assert.ErrorIs(t, err, domain.ErrInvalidSelection)

		got, err := polls.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.TotalVotes())
		assert.False(t, got.Voters.Has(voter))
	})

	t.Run("multiple answers and recount", func(t *testing.T) {
		p := newPoll(true, nil, "A", "B", "C")
		require.NoError(t, polls.Save(ctx, p))

		require.NoError(t, votes.ApplyVote(ctx, domain.BallotInput{PollID: p.ID, VoterID: uuid.New(), OptionIDs: []uuid.UUID{p.Options[0].ID, p.Options[2].ID}, At: time.Now()}))
		require.NoError(t, votes.ApplyVote(ctx, domain.BallotInput{PollID: p.ID, VoterID: uuid.New(), OptionIDs: []uuid.UUID{p.Options[2].ID}, At: time.Now()}))

		snap, err := votes.TallySnapshot(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, snap.MultipleAnswers)
		assert.Equal(t, 2, snap.VoterCount)
		assert.Equal(t, []uuid.UUID{p.Options[0].ID, p.Options[1].ID, p.Options[2].ID}, snap.OptionIDs)
		assert.Equal(t, int64(1), snap.Recounted[p.Options[0].ID])
		assert.Equal(t, int64(0), snap.Recounted[p.Options[1].ID])
		assert.Equal(t, int64(2), snap.Recounted[p.Options[2].ID])
		assert.Equal(t, snap.Stored[p.Options[2].ID], snap.Recounted[p.Options[2].ID])

		_, err = votes.TallySnapshot(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrPollNotFound)
	})

	t.Run("concurrent voters are all counted", func(t *testing.T) {
		p := newPoll(true, nil, "A", "B")
		require.NoError(t, polls.Save(ctx, p))

		const voters = 20
		var wg sync.WaitGroup
		errs := make(chan error, voters)
		for i := 0; i < voters; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- votes.ApplyVote(ctx, domain.BallotInput{
					PollID:    p.ID,
					VoterID:   uuid.New(),
					OptionIDs: []uuid.UUID{p.Options[1].ID, p.Options[0].ID},
					At:        time.Now(),
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := polls.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(voters), got.Options[0].Votes)
		assert.Equal(t, int64(voters), got.Options[1].Votes)
		assert.Equal(t, voters, got.Voters.Len())
	})

	t.Run("same voter racing counts once", func(t *testing.T) {
		p := newPoll(false, nil, "A", "B")
		require.NoError(t, polls.Save(ctx, p))
		voter := uuid.New()

		const attempts = 10
		var wg sync.WaitGroup
		results := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results <- votes.ApplyVote(ctx, domain.BallotInput{
					PollID:    p.ID,
					VoterID:   voter,
					OptionIDs: []uuid.UUID{p.Options[i%2].ID},
					At:        time.Now(),
				})
			}(i)
		}
		wg.Wait()
		close(results)

		accepted := 0
		for err := range results {
			if err == nil {
				accepted++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrDuplicateVote)
		}
		assert.Equal(t, 1, accepted)

		got, err := polls.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.TotalVotes())
	})

	t.Run("comments keep insertion order", func(t *testing.T) {
		p := newPoll(false, nil, "A", "B")
		require.NoError(t, polls.Save(ctx, p))

		for i := 0; i < 3; i++ {
			require.NoError(t, comments.AppendComment(ctx, &domain.Comment{
				ID:         uuid.New(),
				PollID:     p.ID,
				AuthorID:   uuid.New(),
				AuthorName: fmt.Sprintf("user %d", i),
				Text:       fmt.Sprintf("comment %d", i),
				PostedAt:   time.Now(),
			}))
		}

		list, err := comments.ListComments(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "comment 0", list[0].Text)
		assert.Equal(t, "comment 2", list[2].Text)

		err = comments.AppendComment(ctx, &domain.Comment{ID: uuid.New(), PollID: uuid.New(), AuthorID: uuid.New(), Text: "x", PostedAt: time.Now()})
		assert.ErrorIs(t, err, domain.ErrPollNotFound)

		_, err = comments.ListComments(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrPollNotFound)
	})

	t.Run("list is newest first", func(t *testing.T) {
		older := newPoll(false, nil, "A", "B")
		older.CreatedAt = time.Now().Add(time.Hour).UTC()
		newer := newPoll(false, nil, "A", "B")
		newer.CreatedAt = time.Now().Add(2 * time.Hour).UTC()
		require.NoError(t, polls.Save(ctx, older))
		require.NoError(t, polls.Save(ctx, newer))

		summaries, err := polls.List(ctx, 2, 0)
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, newer.ID, summaries[0].ID)
		assert.Equal(t, older.ID, summaries[1].ID)

		ids, err := polls.ListIDs(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, older.ID)
	})
}

func TestUserAndAuthRepositories(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	users := NewUserRepository(db)
	auth := NewAuthRepository(db)

	alice := &domain.User{Email: "alice@example.com", Name: "Alice"}
	require.NoError(t, users.Create(ctx, alice))
	require.NotEqual(t, uuid.Nil, alice.ID)

	got, err := users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice.ID, got.ID)

	missing, err := users.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	found, err := users.GetByIDs(ctx, []uuid.UUID{alice.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Alice", found[alice.ID].Name)

	rt := &domain.RefreshToken{UserID: alice.ID, TokenHash: "hash", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, auth.StoreRefreshToken(ctx, rt))

	stored, err := auth.GetRefreshTokenByHash(ctx, "hash")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Revoked)

	require.NoError(t, auth.RevokeRefreshToken(ctx, stored.ID))
	stored, err = auth.GetRefreshTokenByHash(ctx, "hash")
	require.NoError(t, err)
	assert.True(t, stored.Revoked)
	const logins = 10
	ids := make(chan uuid.UUID, logins)
	var wg sync.WaitGroup
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := &domain.User{Email: "erin@example.com", Name: "Erin"}
			if assert.NoError(t, users.UpsertByEmail(ctx, u)) {
				ids <- u.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uuid.UUID]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1, "one row per email however many first logins race")

	existing := &domain.User{Email: "alice@example.com", Name: "Someone else"}
	require.NoError(t, users.UpsertByEmail(ctx, existing))
	assert.Equal(t, alice.ID, existing.ID)
	assert.Equal(t, "Alice", existing.Name, "an existing user keeps their name")
}
