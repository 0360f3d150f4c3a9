package telemetry

import "context"

// ReadingSink persists scored readings in arrival order.
type ReadingSink interface {
	Store(ctx context.Context, reading ScoredReading) error
}

// ReadingQuery loads persisted readings for a machine, newest first.
type ReadingQuery interface {
	ListRecent(ctx context.Context, machineID, limit int) ([]ScoredReading, error)
}

// Source returns the messages that became available since the previous poll.
type Source interface {
	Poll(ctx context.Context) ([]RawMessage, error)
}
