package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	alarms "github.com/ericmeyer1/buzzline-06-meyer/internal/alarms/domain"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/observability/metrics"
	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

// Clock provides time for cooldown tracking.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders anomalies through a template and sends them on a channel,
// at most once per machine within the cooldown.
type Notifier struct {
	channel        Channel
	channelName    string
	template       *Template
	clock          Clock
	mu             sync.Mutex
	sent           map[int]sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	dashboardURL   string
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithRequestTimeout bounds a single channel send.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same machine.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithDashboardURL adds a dashboard link to notifications.
func WithDashboardURL(url string) Option {
	return func(n *Notifier) {
		n.dashboardURL = url
	}
}

// WithChannelName labels alert metrics.
func WithChannelName(name string) Option {
	return func(n *Notifier) {
		if name != "" {
			n.channelName = name
		}
	}
}

// NewNotifier constructs an anomaly notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("anomaly notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		channelName:    "webhook",
		template:       template,
		clock:          systemClock{},
		sent:           make(map[int]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// NotifyAnomaly renders and sends one anomaly. A notification held back by
// the cooldown or dedupe window is not an error.
func (n *Notifier) NotifyAnomaly(ctx context.Context, reading telemetry.ScoredReading) error {
	if n == nil || n.channel == nil {
		return nil
	}
	alarm, err := alarms.NewAnomalyAlarm(reading)
	if err != nil {
		return err
	}
	content, err := n.template.Render(buildTemplateData(alarm, n.dashboardURL))
	if err != nil {
		return fmt.Errorf("anomaly notifier: render: %w", err)
	}
	if !n.shouldSend(alarm.MachineID, content) {
		metrics.IncAlert(n.channelName, "suppressed")
		return nil
	}

	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}
	if err := n.send(ctx, alarm, content); err != nil {
		metrics.IncAlert(n.channelName, metrics.ResultError)
		return err
	}
	n.markSent(alarm.MachineID, content)
	metrics.IncAlert(n.channelName, metrics.ResultSuccess)
	return nil
}

func (n *Notifier) send(ctx context.Context, alarm alarms.AnomalyAlarm, content string) error {
	if ch, ok := n.channel.(AlarmChannel); ok {
		return ch.SendAlarm(ctx, alarm, content)
	}
	return n.channel.Send(ctx, content)
}

func buildTemplateData(alarm alarms.AnomalyAlarm, dashboardURL string) TemplateData {
	return TemplateData{
		Machine:       fmt.Sprintf("Machine %d", alarm.MachineID),
		MachineID:     alarm.MachineID,
		Mode:          strings.ToUpper(string(alarm.Mode)),
		Temperature:   fmt.Sprintf("%.1f°C", alarm.Temperature),
		Vibration:     fmt.Sprintf("%.2fHz", alarm.Vibration),
		Efficiency:    fmt.Sprintf("%.1f%%", alarm.Score),
		Timestamp:     alarm.Timestamp,
		Severity:      alarm.Severity,
		SeverityLabel: severityLabel(alarm.Severity),
		Reasons:       strings.Join(alarm.Reasons, "; "),
		Suggestion:    suggestionFor(alarm),
		DashboardURL:  dashboardURL,
	}
}

func severityLabel(severity string) string {
	switch severity {
	case alarms.SeverityCritical:
		return "Critical"
	case alarms.SeverityHigh:
		return "High"
	default:
		return severity
	}
}

func suggestionFor(alarm alarms.AnomalyAlarm) string {
	switch {
	case alarm.Mode == telemetry.ModeOffline:
		return "Confirm whether the machine stop was planned."
	case alarm.Severity == alarms.SeverityCritical:
		return "Stop the machine and inspect immediately."
	case alarm.Temperature > telemetry.HighTemperatureThreshold:
		return "Check cooling and reduce load."
	case alarm.Vibration > telemetry.HighVibrationThreshold:
		return "Inspect bearings, mounts and balance."
	default:
		return "Verify the sensor and the operating conditions."
	}
}

func (n *Notifier) shouldSend(machineID int, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	now := n.clock.Now().UTC()

	n.mu.Lock()
	record, ok := n.sent[machineID]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hashContent(content) && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(machineID int, content string) {
	n.mu.Lock()
	n.sent[machineID] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
