package telemetry

import (
	"fmt"
	"strconv"
	"strings"
)

// Body markers understood by Extract.
const (
	machineLabel     = "Machine "
	temperatureLabel = "Temp: "
	temperatureUnit  = "°C"
	vibrationLabel   = "Vib: "
	vibrationUnit    = "Hz"
)

// Extract decodes the tagged sensor fields of a message body. The body must
// hold "Machine <int>", "Temp: <decimal>°C" and "Vib: <decimal>Hz" in any
// order; a missing or unparseable field fails the whole extraction.
func Extract(msg RawMessage) (SensorReading, error) {
	machineText, ok := scanTagged(msg.Body, machineLabel, "", isDigit)
	if !ok {
		return SensorReading{}, fmt.Errorf("%w: missing machine id", ErrMalformedBody)
	}
	tempText, ok := scanTagged(msg.Body, temperatureLabel, temperatureUnit, isDecimal)
	if !ok {
		return SensorReading{}, fmt.Errorf("%w: missing temperature", ErrMalformedBody)
	}
	vibText, ok := scanTagged(msg.Body, vibrationLabel, vibrationUnit, isDecimal)
	if !ok {
		return SensorReading{}, fmt.Errorf("%w: missing vibration", ErrMalformedBody)
	}

	machineID, err := strconv.Atoi(machineText)
	if err != nil || machineID <= 0 {
		return SensorReading{}, fmt.Errorf("%w: %q", ErrInvalidMachineID, machineText)
	}
	temperature, err := strconv.ParseFloat(tempText, 64)
	if err != nil {
		return SensorReading{}, fmt.Errorf("%w: temperature %q", ErrMalformedBody, tempText)
	}
	vibration, err := strconv.ParseFloat(vibText, 64)
	if err != nil {
		return SensorReading{}, fmt.Errorf("%w: vibration %q", ErrMalformedBody, vibText)
	}

	return SensorReading{
		MachineID:   machineID,
		Temperature: temperature,
		Vibration:   vibration,
		Mode:        ParseMode(msg.Category),
		Timestamp:   msg.Timestamp,
		Author:      msg.Author,
	}, nil
}

// scanTagged returns the first run of accepted bytes that directly follows
// label and is directly followed by unit. Occurrences of label that do not
// satisfy both conditions are skipped.
func scanTagged(body, label, unit string, accept func(byte) bool) (string, bool) {
	for from := 0; from < len(body); {
		rel := strings.Index(body[from:], label)
		if rel < 0 {
			return "", false
		}
		idx := from + rel
		start := idx + len(label)
		end := start
		for end < len(body) && accept(body[end]) {
			end++
		}
		if end > start && strings.HasPrefix(body[end:], unit) {
			return body[start:end], true
		}
		from = idx + 1
	}
	return "", false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isDecimal(b byte) bool {
	return isDigit(b) || b == '.'
}
