package domain

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrPollNotFound     = errors.New("poll not found")
	ErrInvalidPollID    = errors.New("invalid poll id")
	ErrInvalidSelection = errors.New("invalid selection for this poll")
	ErrDuplicateVote    = errors.New("user has already voted")
	ErrPollClosed       = errors.New("poll is closed")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrUserNotFound     = errors.New("user not found")

	// ErrStorageConflict marks a transient failure of an atomic storage unit
	// (serialization failure, deadlock). The whole unit may be retried.
	ErrStorageConflict = errors.New("storage conflict")
)
