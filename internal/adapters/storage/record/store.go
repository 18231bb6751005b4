package record

import (
	"context"
	"errors"

	domain "coursedesk/internal/domain/record"
)

// ErrNotFound is returned for an unknown (app, id) pair.
var ErrNotFound = errors.New("record not found")

// Store persists records grouped by app id.
type Store interface {
	List(ctx context.Context, appID string) ([]domain.Record, error)
	GetByID(ctx context.Context, appID, id string) (domain.Record, error)
	Insert(ctx context.Context, appID string, fields domain.Fields) (domain.Record, error)
	Merge(ctx context.Context, appID, id string, fields domain.Fields) (domain.Record, error)
	Delete(ctx context.Context, appID, id string) error
}
