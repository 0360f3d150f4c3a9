package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	alarms "github.com/ericmeyer1/buzzline-06-meyer/internal/alarms/domain"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/observability/metrics"
	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

// LogNotifier writes an operator alert line for every anomaly.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// NotifyAnomaly logs the alarm at error level.
func (n *LogNotifier) NotifyAnomaly(_ context.Context, reading telemetry.ScoredReading) error {
	alarm, err := alarms.NewAnomalyAlarm(reading)
	if err != nil {
		return err
	}
	n.logger.Error("ANOMALY ALERT",
		zap.Int("machine_id", alarm.MachineID),
		zap.String("mode", strings.ToUpper(string(alarm.Mode))),
		zap.Float64("temperature", alarm.Temperature),
		zap.Float64("vibration", alarm.Vibration),
		zap.Float64("score", alarm.Score),
		zap.String("severity", alarm.Severity),
		zap.Strings("reasons", alarm.Reasons),
	)
	metrics.IncAlert("log", metrics.ResultSuccess)
	return nil
}
