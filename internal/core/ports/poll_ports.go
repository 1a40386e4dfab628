package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/ballot/internal/core/domain"
)

type PollRepository interface {
	Save(ctx context.Context, poll *domain.Poll) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error)
	List(ctx context.Context, limit, offset int) ([]domain.PollSummary, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

type CommentRepository interface {
	AppendComment(ctx context.Context, comment *domain.Comment) error
	ListComments(ctx context.Context, pollID uuid.UUID) ([]domain.Comment, error)
}

type CreatePollInput struct {
	Question        string
	Options         []string
	CreatorID       uuid.UUID
	MultipleAnswers bool
	ExpiresAt       *time.Time
}

type ListPollsInput struct {
	Page     int
	PageSize int
}

type AddCommentInput struct {
	PollID   uuid.UUID
	AuthorID uuid.UUID
	Text     string
}

type PollService interface {
	Create(ctx context.Context, input CreatePollInput) (*domain.Poll, error)
	GetPoll(ctx context.Context, id string) (*domain.Poll, error)
	ListPolls(ctx context.Context, input ListPollsInput) ([]domain.PollSummary, error)
	AddComment(ctx context.Context, input AddCommentInput) (*domain.Comment, []domain.Comment, error)
	ListComments(ctx context.Context, pollID uuid.UUID) ([]domain.Comment, error)
}
