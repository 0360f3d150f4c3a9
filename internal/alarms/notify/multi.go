package notify

import (
	"context"
	"errors"

	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

// AnomalyNotifier receives anomalous readings.
type AnomalyNotifier interface {
	NotifyAnomaly(ctx context.Context, reading telemetry.ScoredReading) error
}

// MultiNotifier dispatches anomalies to multiple notifiers.
type MultiNotifier struct {
	notifiers []AnomalyNotifier
}

// NewMultiNotifier constructs a MultiNotifier. Nil notifiers are skipped.
func NewMultiNotifier(notifiers ...AnomalyNotifier) *MultiNotifier {
	kept := make([]AnomalyNotifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return &MultiNotifier{notifiers: kept}
}

// NotifyAnomaly forwards to every notifier and joins their errors.
func (m *MultiNotifier) NotifyAnomaly(ctx context.Context, reading telemetry.ScoredReading) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.NotifyAnomaly(ctx, reading); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
