package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/ballot/internal/core/domain"
	"github.com/vncsmyrnk/ballot/internal/core/ports"
)

type pollRepository struct {
	db *sql.DB
}

func NewPollRepository(db *sql.DB) ports.PollRepository {
	return &pollRepository{
		db: db,
	}
}

func (r *pollRepository) Save(ctx context.Context, poll *domain.Poll) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	queryPoll := `
		INSERT INTO polls (id, question, creator_id, multiple_answers, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.ExecContext(ctx, queryPoll, poll.ID, poll.Question, poll.CreatorID, poll.MultipleAnswers, poll.ExpiresAt, poll.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert poll: %w", err)
	}

	queryOption := `
		INSERT INTO poll_options (id, poll_id, position, text, votes)
		VALUES ($1, $2, $3, $4, 0)
	`
	stmt, err := tx.PrepareContext(ctx, queryOption)
	if err != nil {
		return fmt.Errorf("failed to prepare option statement: %w", err)
	}
	defer stmt.Close()

	for i, opt := range poll.Options {
		if _, err = stmt.ExecContext(ctx, opt.ID, poll.ID, i, opt.Text); err != nil {
			return fmt.Errorf("failed to insert option: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByID reads the poll, its options and voters inside one
// read-only repeatable-read transaction, so a concurrently applied vote is
// seen either entirely or not at all.
func (r *pollRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	queryPoll := `
		SELECT id, question, creator_id, multiple_answers, expires_at, created_at
		FROM polls
		WHERE id = $1
	`

	var poll domain.Poll
	var expiresAt sql.NullTime
	err = tx.QueryRowContext(ctx, queryPoll, id).Scan(
		&poll.ID, &poll.Question, &poll.CreatorID, &poll.MultipleAnswers, &expiresAt, &poll.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPollNotFound
		}
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		poll.ExpiresAt = &t
	}

	if poll.Options, err = fetchOptions(ctx, tx, poll.ID); err != nil {
		return nil, err
	}
	if poll.Voters, err = fetchVoters(ctx, tx, poll.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit read transaction: %w", err)
	}
	return &poll, nil
}

func (r *pollRepository) List(ctx context.Context, limit, offset int) ([]domain.PollSummary, error) {
	query := `
		SELECT id, question, creator_id, expires_at, created_at
		FROM polls
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list polls: %w", err)
	}
	defer rows.Close()

	summaries := []domain.PollSummary{}
	for rows.Next() {
		var s domain.PollSummary
		var expiresAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.Question, &s.CreatorID, &expiresAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}
		if expiresAt.Valid {
			t := expiresAt.Time.UTC()
			s.ExpiresAt = &t
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating polls: %w", err)
	}
	return summaries, nil
}

func (r *pollRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM polls ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all polls: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan poll id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating polls: %w", err)
	}
	return ids, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func fetchOptions(ctx context.Context, q querier, pollID uuid.UUID) ([]domain.Option, error) {
	queryOptions := `
		SELECT id, text, votes
		FROM poll_options
		WHERE poll_id = $1
		ORDER BY position
	`
	rows, err := q.QueryContext(ctx, queryOptions, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to get poll options: %w", err)
	}
	defer rows.Close()

	var options []domain.Option
	for rows.Next() {
		var opt domain.Option
		if err := rows.Scan(&opt.ID, &opt.Text, &opt.Votes); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating options: %w", err)
	}
	return options, nil
}

func fetchVoters(ctx context.Context, q querier, pollID uuid.UUID) (domain.VoterSet, error) {
	rows, err := q.QueryContext(ctx, `SELECT voter_id FROM poll_voters WHERE poll_id = $1`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to get poll voters: %w", err)
	}
	defer rows.Close()

	voters := domain.NewVoterSet()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan voter: %w", err)
		}
		voters.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating voters: %w", err)
	}
	return voters, nil
}
