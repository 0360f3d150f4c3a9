package telemetry

import "errors"

var (
	// ErrMalformedBody indicates a message body without the required tagged fields.
	ErrMalformedBody = errors.New("telemetry: malformed message body")
	// ErrInvalidMachineID indicates a machine identifier that is not a positive integer.
	ErrInvalidMachineID = errors.New("telemetry: invalid machine id")
)
