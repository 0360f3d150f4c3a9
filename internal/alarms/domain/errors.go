package alarms

import "errors"

// ErrNotAnomalous is returned when an alarm is built from a normal reading.
var ErrNotAnomalous = errors.New("alarm: reading is not anomalous")
