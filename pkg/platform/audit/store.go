package audit

import "context"

// Appender persists records. Implementations must be safe for concurrent
// use; the recorder calls Append from several workers.
type Appender interface {
	Append(ctx context.Context, record Record) error
}

// Store is an append-only record store that can also answer queries. There
// are no update or delete operations.
type Store interface {
	Appender
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, filter Filter, page Page) ([]Record, int, error)
}
