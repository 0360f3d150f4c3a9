package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

const maxRetryBackoff = 30 * time.Second

// RetryingSink retries failed writes with exponential backoff.
type RetryingSink struct {
	next     telemetry.ReadingSink
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

// NewRetryingSink wraps next. attempts counts the first try.
func NewRetryingSink(next telemetry.ReadingSink, attempts int, backoff time.Duration, logger *zap.Logger) (*RetryingSink, error) {
	if next == nil {
		return nil, errors.New("retrying sink: nil sink")
	}
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingSink{next: next, attempts: attempts, backoff: backoff, logger: logger}, nil
}

// Store writes reading, retrying until success, attempts run out or ctx ends.
func (s *RetryingSink) Store(ctx context.Context, reading telemetry.ScoredReading) error {
	delay := s.backoff
	for attempt := 1; ; attempt++ {
		err := s.next.Store(ctx, reading)
		if err == nil {
			return nil
		}
		if attempt >= s.attempts {
			return fmt.Errorf("retrying sink: giving up after %d attempts: %w", attempt, err)
		}
		s.logger.Warn("sink write retry",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.String("record_id", reading.RecordID),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retrying sink: %w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
		delay *= 2
		if delay > maxRetryBackoff {
			delay = maxRetryBackoff
		}
	}
}
