package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Publisher receives every rendered frame.
type Publisher interface {
	PublishFrame(frame Frame)
}

// Refresher renders frames on a fixed interval. It only reads engine state.
type Refresher struct {
	state     StateReader
	publisher Publisher
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewRefresher constructs a refresher.
func NewRefresher(state StateReader, publisher Publisher, interval time.Duration, logger *zap.Logger) (*Refresher, error) {
	if state == nil {
		return nil, errors.New("dashboard refresher: nil state")
	}
	if publisher == nil {
		return nil, errors.New("dashboard refresher: nil publisher")
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{state: state, publisher: publisher, interval: interval, logger: logger, now: time.Now}, nil
}

// Run publishes a frame immediately and then on every tick until ctx ends.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("dashboard refresher started", zap.Duration("interval", r.interval))
	r.refresh()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.refresh()
		}
	}
}

func (r *Refresher) refresh() {
	frame := BuildFrame(r.state, r.now())
	r.publisher.PublishFrame(frame)
	r.logger.Debug("dashboard frame published",
		zap.Int("machines", len(frame.Machines)),
		zap.Int64("anomalies", frame.Summary.AnomalyCount),
	)
}
