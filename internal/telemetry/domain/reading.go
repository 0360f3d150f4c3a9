package telemetry

import (
	"encoding/json"
	"strings"
	"time"
)

// Mode is the operating state reported for a machine.
type Mode string

const (
	ModeActive      Mode = "active"
	ModeIdle        Mode = "idle"
	ModeMaintenance Mode = "maintenance"
	ModeOffline     Mode = "offline"
	ModeUnknown     Mode = "unknown"
)

// DefaultEfficiencyLevel is stored when a message carries no efficiency label.
const DefaultEfficiencyLevel = "Unknown"

// ParseMode lower-cases a category and maps it to a known mode.
func ParseMode(category string) Mode {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(category))); mode {
	case ModeActive, ModeIdle, ModeMaintenance, ModeOffline:
		return mode
	default:
		return ModeUnknown
	}
}

// RawMessage is one telemetry record as delivered by a transport.
type RawMessage struct {
	Body      string `json:"message"`
	Author    string `json:"author"`
	Timestamp string `json:"timestamp"`
	Category  string `json:"category"`
	Keyword   string `json:"keyword_mentioned"`
}

// IdentityKey identifies a message for deduplication.
func (m RawMessage) IdentityKey() string {
	return m.Author + "_" + m.Timestamp
}

// DecodeRawMessage decodes one JSON record. Unknown fields are ignored.
func DecodeRawMessage(data []byte) (RawMessage, error) {
	var msg RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return RawMessage{}, err
	}
	return msg, nil
}

// SensorReading is a decoded observation for one machine.
type SensorReading struct {
	MachineID   int
	Temperature float64
	Vibration   float64
	Mode        Mode
	Timestamp   string
	Author      string
}

// ScoredReading is the unit handed to storage sinks.
type ScoredReading struct {
	SensorReading

	RecordID        string
	EfficiencyScore float64
	IsAnomaly       bool
	EfficiencyLevel string
	ProcessedAt     time.Time
}
