package application

import (
	"sort"
	"time"

	"github.com/ericmeyer1/buzzline-06-meyer/internal/analytics/domain/statistic"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/analytics/domain/window"
	ingest "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/application"
	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

// Band is the colour band of an average efficiency.
type Band string

const (
	BandGood Band = "good"
	BandFair Band = "fair"
	BandPoor Band = "poor"
)

// BandFor classifies an efficiency average: at least 80 is good, at least 60
// is fair, anything lower is poor.
func BandFor(average float64) Band {
	switch {
	case average >= 80:
		return BandGood
	case average >= 60:
		return BandFair
	default:
		return BandPoor
	}
}

// Scatter point categories.
const (
	PointAnomaly = "anomaly"
	PointActive  = "active"
	PointIdle    = "idle"
	PointOther   = "other"
)

// StateReader exposes the read side of the ingestion engine.
type StateReader interface {
	Windows() *window.Store
	Accountant() *statistic.Accountant
	Summary() ingest.Summary
}

// MachineView is one machine's latest status with its efficiency trend.
type MachineView struct {
	MachineID  int                  `json:"machine_id"`
	Status     window.MachineStatus `json:"status"`
	Band       Band                 `json:"band"`
	Efficiency []float64            `json:"efficiency"`
}

// ModeView is the efficiency summary of one operating mode.
type ModeView struct {
	Mode      telemetry.Mode `json:"mode"`
	Average   float64        `json:"average"`
	Count     int            `json:"count"`
	Anomalies int            `json:"anomalies"`
	Band      Band           `json:"band"`
}

// ScatterPoint places a machine's latest reading on the temperature and
// vibration plane.
type ScatterPoint struct {
	MachineID   int     `json:"machine_id"`
	Temperature float64 `json:"temperature"`
	Vibration   float64 `json:"vibration"`
	Category    string  `json:"category"`
}

// Thresholds are the alert lines drawn on the scatter plot.
type Thresholds struct {
	Temperature float64 `json:"temperature"`
	Vibration   float64 `json:"vibration"`
}

// Frame is one complete dashboard render.
type Frame struct {
	GeneratedAt        time.Time              `json:"generated_at"`
	Summary            ingest.Summary         `json:"summary"`
	Machines           []MachineView          `json:"machines"`
	Modes              []ModeView             `json:"modes"`
	StatusDistribution map[telemetry.Mode]int `json:"status_distribution"`
	Scatter            []ScatterPoint         `json:"scatter"`
	Thresholds         Thresholds             `json:"thresholds"`
}

// BuildFrame assembles a frame from copies of the engine state.
func BuildFrame(state StateReader, now time.Time) Frame {
	windows := state.Windows()
	statuses := windows.SnapshotAll()

	ids := make([]int, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	frame := Frame{
		GeneratedAt:        now.UTC(),
		Summary:            state.Summary(),
		Machines:           make([]MachineView, 0, len(ids)),
		StatusDistribution: make(map[telemetry.Mode]int),
		Scatter:            make([]ScatterPoint, 0, len(ids)),
		Thresholds: Thresholds{
			Temperature: telemetry.HighTemperatureThreshold,
			Vibration:   telemetry.HighVibrationThreshold,
		},
	}
	for _, id := range ids {
		status := statuses[id]
		view := MachineView{MachineID: id, Status: status, Band: BandFor(status.Efficiency)}
		if history, ok := windows.History(id); ok {
			view.Efficiency = history.Efficiency
		}
		frame.Machines = append(frame.Machines, view)
		frame.StatusDistribution[status.Mode]++
		frame.Scatter = append(frame.Scatter, ScatterPoint{
			MachineID:   id,
			Temperature: status.Temperature,
			Vibration:   status.Vibration,
			Category:    pointCategory(status),
		})
	}

	summaries := state.Accountant().Summaries()
	frame.Modes = make([]ModeView, 0, len(summaries))
	for _, s := range summaries {
		frame.Modes = append(frame.Modes, ModeView{
			Mode:      s.Mode,
			Average:   s.Average,
			Count:     s.Count,
			Anomalies: s.Anomalies,
			Band:      BandFor(s.Average),
		})
	}
	return frame
}

func pointCategory(status window.MachineStatus) string {
	switch {
	case status.IsAnomaly:
		return PointAnomaly
	case status.Mode == telemetry.ModeActive:
		return PointActive
	case status.Mode == telemetry.ModeIdle:
		return PointIdle
	default:
		return PointOther
	}
}
