package alarms

import (
	"fmt"
	"time"

	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

// Severity levels of an anomaly alarm.
const (
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

const coldTemperatureThreshold = 30.0

// AnomalyAlarm describes one anomalous reading for operators.
type AnomalyAlarm struct {
	RecordID    string         `json:"record_id"`
	MachineID   int            `json:"machine_id"`
	Mode        telemetry.Mode `json:"mode"`
	Temperature float64        `json:"temperature"`
	Vibration   float64        `json:"vibration"`
	Score       float64        `json:"efficiency_score"`
	Timestamp   string         `json:"timestamp"`
	Severity    string         `json:"severity"`
	Reasons     []string       `json:"reasons"`
	DetectedAt  time.Time      `json:"detected_at"`
}

// NewAnomalyAlarm explains why reading was flagged. More than one reason, or
// an offline machine, makes the alarm critical.
func NewAnomalyAlarm(reading telemetry.ScoredReading) (AnomalyAlarm, error) {
	if !reading.IsAnomaly {
		return AnomalyAlarm{}, ErrNotAnomalous
	}
	reasons := Reasons(reading.SensorReading)
	severity := SeverityHigh
	if len(reasons) > 1 || reading.Mode == telemetry.ModeOffline {
		severity = SeverityCritical
	}
	detectedAt := reading.ProcessedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now().UTC()
	}
	return AnomalyAlarm{
		RecordID:    reading.RecordID,
		MachineID:   reading.MachineID,
		Mode:        reading.Mode,
		Temperature: reading.Temperature,
		Vibration:   reading.Vibration,
		Score:       reading.EfficiencyScore,
		Timestamp:   reading.Timestamp,
		Severity:    severity,
		Reasons:     reasons,
		DetectedAt:  detectedAt,
	}, nil
}

// Reasons lists the conditions that make a reading anomalous.
func Reasons(reading telemetry.SensorReading) []string {
	if reading.Mode == telemetry.ModeOffline {
		return []string{"machine offline"}
	}
	if reading.Mode == telemetry.ModeMaintenance {
		return nil
	}
	var reasons []string
	if reading.Temperature > telemetry.HighTemperatureThreshold {
		reasons = append(reasons, fmt.Sprintf("temperature %.1f°C above %.0f°C", reading.Temperature, telemetry.HighTemperatureThreshold))
	}
	if reading.Temperature < coldTemperatureThreshold {
		reasons = append(reasons, fmt.Sprintf("temperature %.1f°C below %.0f°C", reading.Temperature, coldTemperatureThreshold))
	}
	if reading.Vibration > telemetry.HighVibrationThreshold {
		reasons = append(reasons, fmt.Sprintf("vibration %.2fHz above %.1fHz", reading.Vibration, telemetry.HighVibrationThreshold))
	}
	return reasons
}
