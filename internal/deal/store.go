package deal

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows deal listings.
type ListFilter struct {
	Status    *Status
	CompanyID *uuid.UUID
	Limit     int
	Offset    int
}

// Store is the persistence collaborator for deals. Update must write every
// derived financial field in one statement; the recompute invariant spans all
// of them at once and a partial write would leave the record inconsistent.
// NextQuoteSeq must be atomic so concurrent creations never share a sequence.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (Deal, error)
	List(ctx context.Context, filter ListFilter) ([]Deal, int, error)
	Create(ctx context.Context, d Deal) (Deal, error)
	Update(ctx context.Context, d Deal) (Deal, error)
	NextQuoteSeq(ctx context.Context) (int64, error)
}
