package audit

import "context"

// Store is the append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByValidation(ctx context.Context, validationID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
