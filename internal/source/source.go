package source

import (
	"context"

	"github.com/citypulse/streamd/internal/entity"
)

// Source is the upstream source of truth for tracked entity collections.
// Implementations must return coded errors (ierr) so the aggregator can
// tell a timeout from an upstream outage from a malformed response.
type Source interface {
	FetchEntities(ctx context.Context, sourceType string) ([]entity.Entity, error)
}
