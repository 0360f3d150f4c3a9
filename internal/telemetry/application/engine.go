package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ericmeyer1/buzzline-06-meyer/internal/analytics/domain/statistic"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/analytics/domain/window"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/eventing"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/observability/metrics"
	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

const defaultSinkTimeout = 5 * time.Second

var (
	// ErrPreparePanic marks a message whose extraction or scoring panicked.
	ErrPreparePanic = errors.New("ingest engine: panic while preparing message")
	// ErrSinkPanic marks a sink write that panicked.
	ErrSinkPanic = errors.New("ingest engine: sink panicked")
)

// Clock provides time for the engine.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// AnomalyNotifier receives anomalous readings as soon as they are scored.
type AnomalyNotifier interface {
	NotifyAnomaly(ctx context.Context, reading telemetry.ScoredReading) error
}

// Status classifies the handling of one message.
type Status int

const (
	StatusProcessed Status = iota
	StatusDuplicate
	StatusMalformed
)

func (s Status) String() string {
	switch s {
	case StatusProcessed:
		return metrics.IngestProcessed
	case StatusDuplicate:
		return metrics.IngestDuplicate
	case StatusMalformed:
		return metrics.IngestMalformed
	default:
		return "unknown"
	}
}

// Outcome describes what happened to one message. Err holds the extraction
// error of a malformed message or the sink error of a processed one.
type Outcome struct {
	Status  Status
	Reading telemetry.ScoredReading
	Err     error
}

// Summary reports the engine counters.
type Summary struct {
	AnomalyCount int64 `json:"anomaly_count"`
	Machines     int   `json:"machines"`
	Processed    int64 `json:"processed"`
	Duplicates   int64 `json:"duplicates"`
	Malformed    int64 `json:"malformed"`
	SinkFailures int64 `json:"sink_failures"`
}

// Engine owns all ingestion state: the dedup set, the per-machine windows and
// the anomaly accountant. Process and ProcessBatch must be called from a
// single goroutine; the snapshot accessors are safe from any goroutine.
type Engine struct {
	sink        telemetry.ReadingSink
	sinkName    string
	sinkTimeout time.Duration
	dedup       *eventing.Deduplicator
	windows     *window.Store
	accountant  *statistic.Accountant
	notifier    AnomalyNotifier
	logger      *zap.Logger
	clock       Clock
	newID       func() string
	workers     int
	extract     func(telemetry.RawMessage) (telemetry.SensorReading, error)

	processed    atomic.Int64
	duplicates   atomic.Int64
	malformed    atomic.Int64
	sinkFailures atomic.Int64
}

// Option configures the engine.
type Option func(*Engine)

// WithDeduplicator overrides the default unbounded dedup set.
func WithDeduplicator(dedup *eventing.Deduplicator) Option {
	return func(e *Engine) {
		if dedup != nil {
			e.dedup = dedup
		}
	}
}

// WithWindowCapacity sets the per-machine history length.
func WithWindowCapacity(capacity int) Option {
	return func(e *Engine) {
		if capacity > 0 {
			e.windows = window.NewStore(capacity)
		}
	}
}

// WithNotifier sets the anomaly notifier.
func WithNotifier(notifier AnomalyNotifier) Option {
	return func(e *Engine) {
		e.notifier = notifier
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the processing clock.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithSinkName labels sink metrics.
func WithSinkName(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.sinkName = name
		}
	}
}

// WithSinkTimeout bounds a single sink write.
func WithSinkTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.sinkTimeout = timeout
		}
	}
}

// WithWorkers sets how many goroutines extract and score a batch.
func WithWorkers(workers int) Option {
	return func(e *Engine) {
		if workers > 0 {
			e.workers = workers
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine constructs an engine writing to sink.
func NewEngine(sink telemetry.ReadingSink, opts ...Option) (*Engine, error) {
	if sink == nil {
		return nil, errors.New("ingest engine: nil sink")
	}
	e := &Engine{
		sink:        sink,
		sinkName:    "sink",
		sinkTimeout: defaultSinkTimeout,
		dedup:       eventing.NewDeduplicator(0),
		windows:     window.NewStore(window.DefaultCapacity),
		accountant:  statistic.NewAccountant(),
		logger:      zap.NewNop(),
		clock:       systemClock{},
		newID:       eventing.NewRecordID,
		workers:     1,
		extract:     telemetry.Extract,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Windows exposes the rolling window store for readers.
func (e *Engine) Windows() *window.Store { return e.windows }

// Accountant exposes the anomaly accountant for readers.
func (e *Engine) Accountant() *statistic.Accountant { return e.accountant }

// Summary returns the current counters.
func (e *Engine) Summary() Summary {
	return Summary{
		AnomalyCount: e.accountant.AnomalyCount(),
		Machines:     e.windows.Len(),
		Processed:    e.processed.Load(),
		Duplicates:   e.duplicates.Load(),
		Malformed:    e.malformed.Load(),
		SinkFailures: e.sinkFailures.Load(),
	}
}

type prepared struct {
	key     string
	reading telemetry.SensorReading
	score   float64
	anomaly bool
	err     error
}

// prepare may run on a worker goroutine; a panic becomes a malformed outcome.
func (e *Engine) prepare(msg telemetry.RawMessage) (p prepared) {
	p.key = msg.IdentityKey()
	defer func() {
		if r := recover(); r != nil {
			p = prepared{key: p.key, err: fmt.Errorf("%w: %v", ErrPreparePanic, r)}
		}
	}()
	reading, err := e.extract(msg)
	if err != nil {
		p.err = err
		return p
	}
	p.reading = reading
	p.score, p.anomaly = telemetry.Score(reading.Temperature, reading.Vibration, reading.Mode)
	return p
}

// Process runs one message through dedup, extraction, scoring, the windows,
// the accountant, alerting and the sink.
func (e *Engine) Process(ctx context.Context, msg telemetry.RawMessage) Outcome {
	return e.apply(ctx, msg, e.prepare(msg))
}

// ProcessBatch handles messages in arrival order. With more than one worker
// extraction and scoring run concurrently, but state is still applied in
// order. Cancellation stops the batch between messages.
func (e *Engine) ProcessBatch(ctx context.Context, msgs []telemetry.RawMessage) []Outcome {
	if len(msgs) == 0 {
		return nil
	}
	preps := make([]prepared, len(msgs))
	if e.workers > 1 && len(msgs) > 1 {
		var g errgroup.Group
		g.SetLimit(e.workers)
		for i := range msgs {
			i := i
			g.Go(func() error {
				preps[i] = e.prepare(msgs[i])
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range msgs {
			preps[i] = e.prepare(msgs[i])
		}
	}

	outcomes := make([]Outcome, 0, len(msgs))
	for i := range msgs {
		if ctx.Err() != nil {
			break
		}
		outcomes = append(outcomes, e.apply(ctx, msgs[i], preps[i]))
	}
	return outcomes
}

func (e *Engine) apply(ctx context.Context, msg telemetry.RawMessage, p prepared) Outcome {
	if !e.dedup.IsNew(p.key) {
		e.duplicates.Add(1)
		metrics.IncIngest(metrics.IngestDuplicate)
		e.logger.Debug("duplicate message skipped", zap.String("key", p.key))
		return Outcome{Status: StatusDuplicate}
	}
	if p.err != nil {
		e.malformed.Add(1)
		metrics.IncIngest(metrics.IngestMalformed)
		e.logger.Warn("malformed message skipped",
			zap.String("key", p.key),
			zap.String("body", msg.Body),
			zap.Error(p.err),
		)
		return Outcome{Status: StatusMalformed, Err: p.err}
	}

	level := strings.TrimSpace(msg.Keyword)
	if level == "" {
		level = telemetry.DefaultEfficiencyLevel
	}
	scored := telemetry.ScoredReading{
		SensorReading:   p.reading,
		RecordID:        e.newID(),
		EfficiencyScore: p.score,
		IsAnomaly:       p.anomaly,
		EfficiencyLevel: level,
		ProcessedAt:     e.clock.Now().UTC(),
	}

	e.windows.Update(scored)
	e.accountant.Record(scored.Mode, scored.EfficiencyScore, scored.IsAnomaly)
	e.processed.Add(1)
	metrics.IncIngest(metrics.IngestProcessed)
	metrics.SetMachinesTracked(e.windows.Len())

	e.logger.Info("reading scored",
		zap.Int("machine_id", scored.MachineID),
		zap.String("mode", strings.ToUpper(string(scored.Mode))),
		zap.Float64("score", scored.EfficiencyScore),
		zap.Float64("temperature", scored.Temperature),
		zap.Float64("vibration", scored.Vibration),
	)
	if scored.IsAnomaly {
		e.alert(ctx, scored)
	}

	err := e.store(ctx, scored)
	return Outcome{Status: StatusProcessed, Reading: scored, Err: err}
}

func (e *Engine) alert(ctx context.Context, reading telemetry.ScoredReading) {
	metrics.IncAnomaly(string(reading.Mode))
	e.logger.Warn("anomaly detected",
		zap.Int("machine_id", reading.MachineID),
		zap.String("mode", string(reading.Mode)),
		zap.Float64("temperature", reading.Temperature),
		zap.Float64("vibration", reading.Vibration),
		zap.Float64("score", reading.EfficiencyScore),
	)
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyAnomaly(context.WithoutCancel(ctx), reading); err != nil {
		e.logger.Warn("anomaly notify failed", zap.Int("machine_id", reading.MachineID), zap.Error(err))
	}
}

// store writes on a context detached from cancellation so shutdown never
// leaves a half-written row; the sink timeout still applies.
func (e *Engine) store(ctx context.Context, reading telemetry.ScoredReading) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sinkTimeout)
	defer cancel()

	start := time.Now()
	err := e.write(writeCtx, reading)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		e.sinkFailures.Add(1)
		e.logger.Error("sink write failed",
			zap.String("sink", e.sinkName),
			zap.String("record_id", reading.RecordID),
			zap.Int("machine_id", reading.MachineID),
			zap.Error(err),
		)
	}
	metrics.ObserveSinkWrite(e.sinkName, result, time.Since(start))
	return err
}

// write reports a panicking sink as a failed write.
func (e *Engine) write(ctx context.Context, reading telemetry.ScoredReading) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSinkPanic, r)
		}
	}()
	return e.sink.Store(ctx, reading)
}
