package memory

import (
	"context"
	"errors"
	"sync"

	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

// ErrDuplicateRecord is returned when a record id is stored twice.
var ErrDuplicateRecord = errors.New("memory sink: duplicate record id")

// ReadingRepository is an in-memory sink for demo/testing. It keeps rows in
// insertion order and also serves history queries.
type ReadingRepository struct {
	mu   sync.RWMutex
	rows []telemetry.ScoredReading
	ids  map[string]struct{}
}

// NewReadingRepository constructs a repository.
func NewReadingRepository() *ReadingRepository {
	return &ReadingRepository{ids: make(map[string]struct{})}
}

// Store appends a scored reading.
func (r *ReadingRepository) Store(ctx context.Context, reading telemetry.ScoredReading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if reading.RecordID != "" {
		if _, ok := r.ids[reading.RecordID]; ok {
			return ErrDuplicateRecord
		}
		r.ids[reading.RecordID] = struct{}{}
	}
	r.rows = append(r.rows, reading)
	return nil
}

// ListRecent returns up to limit rows for a machine, newest first.
func (r *ReadingRepository) ListRecent(ctx context.Context, machineID, limit int) ([]telemetry.ScoredReading, error) {
	_ = ctx
	if limit <= 0 {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]telemetry.ScoredReading, 0, limit)
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if r.rows[i].MachineID == machineID {
			out = append(out, r.rows[i])
		}
	}
	return out, nil
}

// Rows returns a copy of every stored row in insertion order.
func (r *ReadingRepository) Rows() []telemetry.ScoredReading {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]telemetry.ScoredReading, len(r.rows))
	copy(out, r.rows)
	return out
}

// Len returns the number of stored rows.
func (r *ReadingRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}
