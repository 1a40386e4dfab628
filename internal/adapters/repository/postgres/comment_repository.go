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

type commentRepository struct {
	db *sql.DB
}

func NewCommentRepository(db *sql.DB) ports.CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) AppendComment(ctx context.Context, comment *domain.Comment) error {
	query := `
		INSERT INTO poll_comments (id, poll_id, author_id, author_name, text, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, comment.ID, comment.PollID, comment.AuthorID, comment.AuthorName, comment.Text, comment.PostedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrPollNotFound
		}
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// ListComments returns comments in insertion order.
func (r *commentRepository) ListComments(ctx context.Context, pollID uuid.UUID) ([]domain.Comment, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM polls WHERE id = $1)`, pollID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check poll: %w", err)
	}
	if !exists {
		return nil, domain.ErrPollNotFound
	}
	return fetchComments(ctx, r.db, pollID)
}

func fetchComments(ctx context.Context, q querier, pollID uuid.UUID) ([]domain.Comment, error) {
	query := `
		SELECT id, poll_id, author_id, author_name, text, posted_at
		FROM poll_comments
		WHERE poll_id = $1
		ORDER BY seq
	`
	rows, err := q.QueryContext(ctx, query, pollID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get comments: %w", err)
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.PollID, &c.AuthorID, &c.AuthorName, &c.Text, &c.PostedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}
	return comments, nil
}
