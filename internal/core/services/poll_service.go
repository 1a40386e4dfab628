package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/ballot/internal/core/domain"
	"github.com/vncsmyrnk/ballot/internal/core/ports"
	"github.com/vncsmyrnk/ballot/internal/metrics"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

type pollService struct {
	repo     ports.PollRepository
	comments ports.CommentRepository
	users    ports.UserRepository
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewPollService(repo ports.PollRepository, comments ports.CommentRepository, users ports.UserRepository, opts ...Option) ports.PollService {
	o := newOptions(opts)
	return &pollService{
		repo:     repo,
		comments: comments,
		users:    users,
		metrics:  o.metrics,
		logger:   o.logger,
		now:      o.now,
	}
}

func (s *pollService) Create(ctx context.Context, input ports.CreatePollInput) (*domain.Poll, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrValidation)
	}
	if input.CreatorID == uuid.Nil {
		return nil, fmt.Errorf("%w: creator is required", domain.ErrValidation)
	}

	now := s.now()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiration must be in the future", domain.ErrValidation)
	}

	poll := &domain.Poll{
		ID:              uuid.New(),
		Question:        question,
		CreatorID:       input.CreatorID,
		MultipleAnswers: input.MultipleAnswers,
		Voters:          domain.NewVoterSet(),
		CreatedAt:       now,
	}
	if input.ExpiresAt != nil {
		expiresAt := input.ExpiresAt.UTC()
		poll.ExpiresAt = &expiresAt
	}

	for _, optText := range input.Options {
		optText = strings.TrimSpace(optText)
		if optText == "" {
			continue
		}
		poll.Options = append(poll.Options, domain.Option{
			ID:   uuid.New(),
			Text: optText,
		})
	}

	if len(poll.Options) < 2 {
		return nil, fmt.Errorf("%w: at least two non-empty options are required", domain.ErrValidation)
	}

	if err := s.repo.Save(ctx, poll); err != nil {
		return nil, fmt.Errorf("failed to save poll: %w", err)
	}

	s.metrics.IncPollsCreated()
	s.logger.InfoContext(ctx, "poll created",
		"poll_id", poll.ID,
		"creator_id", poll.CreatorID,
		"options", len(poll.Options),
		"multiple_answers", poll.MultipleAnswers,
	)

	return poll, nil
}

func (s *pollService) GetPoll(ctx context.Context, id string) (*domain.Poll, error) {
	pollID, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrInvalidPollID
	}

	poll, err := s.repo.GetByID(ctx, pollID)
	if err != nil {
		return nil, err
	}
	poll.Closed = poll.IsClosedAt(s.now())
	return poll, nil
}

func (s *pollService) ListPolls(ctx context.Context, input ports.ListPollsInput) ([]domain.PollSummary, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	size := input.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	// Pages past the largest representable offset are simply empty.
	if page-1 > math.MaxInt/size {
		return []domain.PollSummary{}, nil
	}

	summaries, err := s.repo.List(ctx, size, (page-1)*size)
	if err != nil {
		return nil, fmt.Errorf("failed to list polls: %w", err)
	}

	now := s.now()
	for i := range summaries {
		summaries[i].Closed = summaries[i].ExpiresAt != nil && !now.Before(*summaries[i].ExpiresAt)
	}
	return summaries, nil
}

func (s *pollService) AddComment(ctx context.Context, input ports.AddCommentInput) (*domain.Comment, []domain.Comment, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, nil, fmt.Errorf("%w: comment text is required", domain.ErrValidation)
	}

	comment := &domain.Comment{
		ID:         uuid.New(),
		PollID:     input.PollID,
		AuthorID:   input.AuthorID,
		AuthorName: s.authorName(ctx, input.AuthorID),
		Text:       text,
		PostedAt:   s.now(),
	}

	if err := s.comments.AppendComment(ctx, comment); err != nil {
		return nil, nil, err
	}
	s.metrics.IncCommentsAdded()

	all, err := s.ListComments(ctx, input.PollID)
	if err != nil {
		return nil, nil, err
	}
	return comment, all, nil
}

func (s *pollService) ListComments(ctx context.Context, pollID uuid.UUID) ([]domain.Comment, error) {
	comments, err := s.comments.ListComments(ctx, pollID)
	if err != nil {
		return nil, err
	}
	return domain.NewestFirst(comments), nil
}

func (s *pollService) authorName(ctx context.Context, id uuid.UUID) string {
	user, err := s.users.GetByID(ctx, id)
	if err != nil || user == nil {
		if err != nil {
			s.logger.WarnContext(ctx, "failed to resolve comment author", "author_id", id, "error", err)
		}
		return id.String()
	}
	return user.DisplayName()
}
