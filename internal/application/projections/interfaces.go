package projections

import (
	"context"

	"coursedesk/internal/domain/record"
)

// RecordLister fetches whole collections.
type RecordLister interface {
	List(ctx context.Context, appID string) ([]record.Record, error)
}
