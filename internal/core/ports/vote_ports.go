package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/ballot/internal/core/domain"
)

type VoteRepository interface {
	// ApplyVote records the voter and increments every selected option as one
	// unit. It re-checks existence, closure at ballot.At and voter membership,
	// returning ErrPollNotFound, ErrPollClosed, ErrDuplicateVote or
	// ErrInvalidSelection without changing anything.
	ApplyVote(ctx context.Context, ballot domain.BallotInput) error
}

type VoteInput struct {
	PollID    uuid.UUID
	VoterID   uuid.UUID
	OptionIDs []uuid.UUID
}

type VoteService interface {
	CastVote(ctx context.Context, input VoteInput) (*domain.Poll, error)
}
