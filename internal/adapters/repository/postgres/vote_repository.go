package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/ballot/internal/core/domain"
)

// VoteRepository applies ballots and recounts them. It implements both
// ports.VoteRepository and ports.TallyRepository.
type VoteRepository struct {
	db *sql.DB
}

func NewVoteRepository(db *sql.DB) *VoteRepository {
	return &VoteRepository{
		db: db,
	}
}

// ApplyVote runs the whole check-and-increment sequence in one transaction.
// The voter row insert is the conditional step: ON CONFLICT DO NOTHING makes
// a concurrent second ballot from the same voter wait for the first to commit
// and then affect zero rows. Options are incremented in id order so two
// multi-answer ballots never lock the same rows in opposite order.
func (r *VoteRepository) ApplyVote(ctx context.Context, ballot domain.BallotInput) error {
	optionIDs := slices.Clone(ballot.OptionIDs)
	slices.SortFunc(optionIDs, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	if len(optionIDs) == 0 || len(slices.Compact(slices.Clone(optionIDs))) != len(optionIDs) {
		return domain.ErrInvalidSelection
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	var multiple bool
	var expiresAt sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT multiple_answers, expires_at FROM polls WHERE id = $1 FOR SHARE`,
		ballot.PollID,
	).Scan(&multiple, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPollNotFound
		}
		return fmt.Errorf("failed to lock poll: %w", mapError(err))
	}
	if expiresAt.Valid && !ballot.At.Before(expiresAt.Time) {
		return domain.ErrPollClosed
	}
	if !multiple && len(optionIDs) != 1 {
		return domain.ErrInvalidSelection
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO poll_voters (poll_id, voter_id, voted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (poll_id, voter_id) DO NOTHING
	`, ballot.PollID, ballot.VoterID, ballot.At)
	if err != nil {
		return fmt.Errorf("failed to record voter: %w", mapError(err))
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to record voter: %w", err)
	} else if n == 0 {
		return domain.ErrDuplicateVote
	}

	for _, optionID := range optionIDs {
		res, err := tx.ExecContext(ctx,
			`UPDATE poll_options SET votes = votes + 1 WHERE poll_id = $1 AND id = $2`,
			ballot.PollID, optionID,
		)
		if err != nil {
			return fmt.Errorf("failed to increment option: %w", mapError(err))
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to increment option: %w", err)
		} else if n == 0 {
			return domain.ErrInvalidSelection
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO ballot_selections (poll_id, voter_id, option_id) VALUES ($1, $2, $3)`,
			ballot.PollID, ballot.VoterID, optionID,
		)
		if err != nil {
			return fmt.Errorf("failed to record selection: %w", mapError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vote: %w", mapError(err))
	}
	return nil
}

// TallySnapshot reads everything inside one read-only repeatable-read
// transaction, so a vote committed meanwhile is either fully counted or absent.
func (r *VoteRepository) TallySnapshot(ctx context.Context, pollID uuid.UUID) (*domain.TallySnapshot, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	snap := &domain.TallySnapshot{
		PollID:    pollID,
		Stored:    make(map[uuid.UUID]int64),
		Recounted: make(map[uuid.UUID]int64),
	}

	queryPoll := `
		SELECT multiple_answers, (SELECT COUNT(*) FROM poll_voters WHERE poll_id = $1)
		FROM polls
		WHERE id = $1
	`
	if err := tx.QueryRowContext(ctx, queryPoll, pollID).Scan(&snap.MultipleAnswers, &snap.VoterCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPollNotFound
		}
		return nil, fmt.Errorf("failed to get poll %s: %w", pollID, err)
	}

	options, err := fetchOptions(ctx, tx, pollID)
	if err != nil {
		return nil, err
	}
	for _, opt := range options {
		snap.OptionIDs = append(snap.OptionIDs, opt.ID)
		snap.Stored[opt.ID] = opt.Votes
	}

	queryRecount := `
		SELECT option_id, COUNT(*)
		FROM ballot_selections
		WHERE poll_id = $1
		GROUP BY option_id
	`
	rows, err := tx.QueryContext(ctx, queryRecount, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to recount ballots for poll %s: %w", pollID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var optionID uuid.UUID
		var count int64
		if err := rows.Scan(&optionID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan recount: %w", err)
		}
		snap.Recounted[optionID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recount: %w", err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit read transaction: %w", err)
	}
	return snap, nil
}
