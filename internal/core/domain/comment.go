package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type Comment struct {
	ID         uuid.UUID `json:"id"`
	PollID     uuid.UUID `json:"poll_id"`
	AuthorID   uuid.UUID `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	PostedAt   time.Time `json:"posted_at"`
}

// NewestFirst returns a copy of comments ordered by PostedAt descending.
// Comments posted at the same instant keep the reverse of their insertion order.
func NewestFirst(comments []Comment) []Comment {
	out := slices.Clone(comments)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b Comment) int {
		return b.PostedAt.Compare(a.PostedAt)
	})
	if out == nil {
		out = []Comment{}
	}
	return out
}
