package telemetry

import "math"

// Alert thresholds drawn on the operator dashboard.
const (
	HighTemperatureThreshold = 90.0
	HighVibrationThreshold   = 3.5
)

const (
	maxScore         = 100.0
	maintenanceScore = 20.0
	idleBase         = 60.0
)

// Score maps a reading to an efficiency score in [0, 100] with one decimal
// place and reports whether the reading is anomalous.
//
// Offline and maintenance modes are terminal. Otherwise the mode base (60 for
// idle, 100 for anything else) is scaled by a temperature and a vibration
// modifier; the range boundaries below are part of the contract.
func Score(temperature, vibration float64, mode Mode) (float64, bool) {
	base := maxScore
	switch mode {
	case ModeOffline:
		return 0.0, true
	case ModeMaintenance:
		return maintenanceScore, false
	case ModeIdle:
		base = idleBase
	}

	anomaly := false

	var tempModifier float64
	switch {
	case temperature >= 40 && temperature <= 75:
		tempModifier = 1.0
	case temperature > 90:
		tempModifier = 0.5
		anomaly = true
	case temperature > 80:
		tempModifier = 0.7
	case temperature < 30:
		tempModifier = 0.8
		anomaly = true
	default:
		tempModifier = 0.9
	}

	var vibModifier float64
	switch {
	case vibration <= 1.5:
		vibModifier = 1.0
	case vibration <= 2.5:
		vibModifier = 0.9
	case vibration <= 3.5:
		vibModifier = 0.7
	default:
		vibModifier = 0.4
		anomaly = true
	}

	score := math.Min(maxScore, base*tempModifier*vibModifier)
	return clampScore(roundOneDecimal(score)), anomaly
}

func roundOneDecimal(v float64) float64 {
	return math.Round(v*10) / 10
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > maxScore {
		return maxScore
	}
	return v
}
