package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ericmeyer1/buzzline-06-meyer/internal/observability/metrics"
	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

// DefaultPollInterval is the idle delay after an empty poll.
const DefaultPollInterval = 2 * time.Second

// ErrLoopPanic wraps a panic recovered while processing.
var ErrLoopPanic = errors.New("ingest loop: recovered panic")

// Loop polls a source and feeds the engine until its context is cancelled.
type Loop struct {
	engine   *Engine
	source   telemetry.Source
	interval time.Duration
	logger   *zap.Logger
}

// NewLoop constructs a loop.
func NewLoop(engine *Engine, source telemetry.Source, interval time.Duration, logger *zap.Logger) (*Loop, error) {
	if engine == nil {
		return nil, errors.New("ingest loop: nil engine")
	}
	if source == nil {
		return nil, errors.New("ingest loop: nil source")
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{engine: engine, source: source, interval: interval, logger: logger}, nil
}

// Run blocks until ctx is cancelled or processing panics. The final summary
// is returned in both cases; cancellation is not an error.
func (l *Loop) Run(ctx context.Context) (summary Summary, err error) {
	l.logger.Info("ingest loop started", zap.Duration("poll_interval", l.interval))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrLoopPanic, r)
			l.logger.Error("ingest loop aborted", zap.Any("panic", r))
		}
		summary = l.engine.Summary()
		l.logger.Info("ingest loop stopped",
			zap.Int64("anomalies", summary.AnomalyCount),
			zap.Int("machines", summary.Machines),
			zap.Int64("processed", summary.Processed),
			zap.Int64("duplicates", summary.Duplicates),
			zap.Int64("malformed", summary.Malformed),
			zap.Int64("sink_failures", summary.SinkFailures),
		)
	}()

	for {
		if ctx.Err() != nil {
			return summary, nil
		}
		batch, pollErr := l.source.Poll(ctx)
		if len(batch) > 0 || pollErr == nil {
			metrics.ObservePollBatch(len(batch))
		}
		// Messages delivered alongside an error were already taken from the
		// source and are not offered again.
		if len(batch) > 0 {
			l.engine.ProcessBatch(ctx, batch)
		}
		if pollErr != nil {
			if ctx.Err() != nil {
				return summary, nil
			}
			metrics.IncPollError()
			l.logger.Warn("transport unavailable, retrying",
				zap.Int("delivered", len(batch)),
				zap.Error(pollErr),
			)
			if !l.wait(ctx) {
				return summary, nil
			}
			continue
		}
		if len(batch) == 0 {
			l.logger.Info("waiting for new sensor data")
			if !l.wait(ctx) {
				return summary, nil
			}
		}
	}
}

func (l *Loop) wait(ctx context.Context) bool {
	timer := time.NewTimer(l.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
