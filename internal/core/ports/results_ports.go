package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/ballot/internal/core/domain"
)

// ResultsCache holds public result summaries for a short time.
// A miss is reported as (nil, nil).
type ResultsCache interface {
	Get(ctx context.Context, pollID uuid.UUID) (*domain.ResultSummary, error)
	// Set stores summary unless the cached entry already counts more voters,
	// so a reader that loaded the poll before a vote cannot overwrite the
	// summary written after it.
	Set(ctx context.Context, summary *domain.ResultSummary) error
	Invalidate(ctx context.Context, pollID uuid.UUID) error
}

type ResultsService interface {
	GetResults(ctx context.Context, pollID uuid.UUID, requester *uuid.UUID) (domain.ResultView, error)
}

type TallyRepository interface {
	// TallySnapshot reads the stored tallies, the voter count and a per-option
	// recount of ballot selections from one consistent view of the poll.
	TallySnapshot(ctx context.Context, pollID uuid.UUID) (*domain.TallySnapshot, error)
}

type AuditService interface {
	AuditAll(ctx context.Context) ([]domain.TallyDrift, error)
}
