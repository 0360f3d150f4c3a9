package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ericmeyer1/buzzline-06-meyer/internal/eventing"
	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/infrastructure/memory"
)

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time { return c.now }

type recordingNotifier struct {
	mu       sync.Mutex
	readings []telemetry.ScoredReading
	err      error
}

func (n *recordingNotifier) NotifyAnomaly(_ context.Context, reading telemetry.ScoredReading) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.readings = append(n.readings, reading)
	return n.err
}

type failingSink struct {
	calls int
	err   error
	ctxOK bool
}

func (s *failingSink) Store(ctx context.Context, _ telemetry.ScoredReading) error {
	s.calls++
	s.ctxOK = ctx.Err() == nil
	return s.err
}

func sensorMessage(machineID int, mode string, temp, vib float64, ts string) telemetry.RawMessage {
	return telemetry.RawMessage{
		Body:      fmt.Sprintf("Machine %d in Mode %s. Temp: %.2f°C, Vib: %.2fHz.", machineID, mode, temp, vib),
		Author:    fmt.Sprintf("Sensor-%d", machineID),
		Timestamp: ts,
		Category:  mode,
		Keyword:   "Medium",
	}
}

func newTestEngine(t *testing.T, sink telemetry.ReadingSink, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithClock(fakeClock{now: time.Date(2025, time.February, 10, 12, 0, 0, 0, time.UTC)}),
	}
	engine, err := NewEngine(sink, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestEngineMachineSevenScenario(t *testing.T) {
	sink := memory.NewReadingRepository()
	notifier := &recordingNotifier{}
	engine := newTestEngine(t, sink, WithNotifier(notifier))

	first := sensorMessage(7, "active", 44.28, 2.08, "2025-02-10 12:00:00")
	hot := sensorMessage(7, "active", 96.0, 0.5, "2025-02-10 12:00:05")
	repeat := sensorMessage(7, "active", 44.28, 2.08, "2025-02-10 12:00:00")

	outcomes := engine.ProcessBatch(context.Background(), []telemetry.RawMessage{first, hot, repeat})
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[2].Status != StatusDuplicate {
		t.Fatalf("third message status: %v", outcomes[2].Status)
	}

	rows := sink.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 stored rows, got %d", len(rows))
	}
	if rows[0].EfficiencyScore != 90 || rows[0].IsAnomaly {
		t.Fatalf("first row: score=%v anomaly=%v", rows[0].EfficiencyScore, rows[0].IsAnomaly)
	}
	if rows[1].EfficiencyScore != 50 || !rows[1].IsAnomaly {
		t.Fatalf("second row: score=%v anomaly=%v", rows[1].EfficiencyScore, rows[1].IsAnomaly)
	}
	if rows[0].RecordID == "" || rows[0].RecordID == rows[1].RecordID {
		t.Fatalf("record ids should be unique: %q %q", rows[0].RecordID, rows[1].RecordID)
	}
	if rows[0].EfficiencyLevel != "Medium" || rows[0].ProcessedAt.IsZero() {
		t.Fatalf("unexpected row metadata: %+v", rows[0])
	}

	summary := engine.Summary()
	if summary.AnomalyCount != 1 || summary.Machines != 1 || summary.Processed != 2 || summary.Duplicates != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	history, ok := engine.Windows().History(7)
	if !ok || len(history.Temperature) != 2 || len(history.Vibration) != 2 || len(history.Efficiency) != 2 {
		t.Fatalf("expected window length 2, got %+v", history)
	}
	if len(notifier.readings) != 1 || notifier.readings[0].Temperature != 96 {
		t.Fatalf("expected one anomaly notification, got %d", len(notifier.readings))
	}
}

func TestEngineDuplicateLeavesStateUnchanged(t *testing.T) {
	sink := memory.NewReadingRepository()
	engine := newTestEngine(t, sink)
	msg := sensorMessage(3, "idle", 85, 3, "2025-02-10 12:00:00")

	if out := engine.Process(context.Background(), msg); out.Status != StatusProcessed {
		t.Fatalf("first status: %v", out.Status)
	}
	before := engine.Summary()
	beforeHistory, _ := engine.Windows().History(3)
	beforeAverages := engine.Accountant().AverageByMode()

	if out := engine.Process(context.Background(), msg); out.Status != StatusDuplicate {
		t.Fatalf("second status: %v", out.Status)
	}
	after := engine.Summary()
	afterHistory, _ := engine.Windows().History(3)
	if after.Processed != before.Processed || after.AnomalyCount != before.AnomalyCount || after.Duplicates != before.Duplicates+1 {
		t.Fatalf("summary changed: before=%+v after=%+v", before, after)
	}
	if len(afterHistory.Efficiency) != len(beforeHistory.Efficiency) {
		t.Fatalf("window grew on duplicate")
	}
	if engine.Accountant().AverageByMode()[telemetry.ModeIdle] != beforeAverages[telemetry.ModeIdle] {
		t.Fatalf("accountant changed on duplicate")
	}
	if sink.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", sink.Len())
	}
}

func TestEngineMalformedMessageSkipped(t *testing.T) {
	sink := memory.NewReadingRepository()
	engine := newTestEngine(t, sink)
	msg := telemetry.RawMessage{Body: "Machine 4 in Mode active. Temp: 70°C.", Author: "Sensor-4", Timestamp: "t1", Category: "active"}

	out := engine.Process(context.Background(), msg)
	if out.Status != StatusMalformed || !errors.Is(out.Err, telemetry.ErrMalformedBody) {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	summary := engine.Summary()
	if summary.Malformed != 1 || summary.Processed != 0 || summary.Machines != 0 || sink.Len() != 0 {
		t.Fatalf("malformed message changed state: %+v", summary)
	}
	if out := engine.Process(context.Background(), msg); out.Status != StatusDuplicate {
		t.Fatalf("redelivered malformed message should be a duplicate, got %v", out.Status)
	}
}

func TestEngineSinkFailureKeepsInMemoryState(t *testing.T) {
	sink := &failingSink{err: errors.New("connection refused")}
	notifier := &recordingNotifier{}
	engine := newTestEngine(t, sink, WithNotifier(notifier))

	out := engine.Process(context.Background(), sensorMessage(9, "offline", 20, 0, "t1"))
	if out.Status != StatusProcessed || out.Err == nil {
		t.Fatalf("expected processed with sink error, got %+v", out)
	}
	summary := engine.Summary()
	if summary.SinkFailures != 1 || summary.Processed != 1 || summary.AnomalyCount != 1 || summary.Machines != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(notifier.readings) != 1 {
		t.Fatalf("anomaly should be alerted regardless of sink result")
	}
}

func TestEngineSinkWriteSurvivesCancellation(t *testing.T) {
	sink := &failingSink{}
	engine := newTestEngine(t, sink)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine.Process(ctx, sensorMessage(1, "active", 60, 1, "t1"))
	if sink.calls != 1 || !sink.ctxOK {
		t.Fatalf("sink should receive a live context, calls=%d ok=%v", sink.calls, sink.ctxOK)
	}
}

func TestEngineBatchStopsWhenCancelled(t *testing.T) {
	sink := memory.NewReadingRepository()
	engine := newTestEngine(t, sink)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := engine.ProcessBatch(ctx, []telemetry.RawMessage{
		sensorMessage(1, "active", 60, 1, "t1"),
		sensorMessage(2, "active", 60, 1, "t2"),
	})
	if len(outcomes) != 0 || sink.Len() != 0 {
		t.Fatalf("expected nothing applied, got %d outcomes", len(outcomes))
	}
}

func TestEngineParallelBatchKeepsArrivalOrder(t *testing.T) {
	msgs := make([]telemetry.RawMessage, 0, 60)
	for i := 0; i < 60; i++ {
		machine := i%4 + 1
		msgs = append(msgs, sensorMessage(machine, "active", float64(30+i), float64(i%5), fmt.Sprintf("t%d", i)))
	}
	msgs = append(msgs, msgs[10])

	sequentialSink := memory.NewReadingRepository()
	sequential := newTestEngine(t, sequentialSink)
	sequential.ProcessBatch(context.Background(), msgs)

	parallelSink := memory.NewReadingRepository()
	parallel := newTestEngine(t, parallelSink, WithWorkers(8))
	parallel.ProcessBatch(context.Background(), msgs)

	a, b := sequentialSink.Rows(), parallelSink.Rows()
	if len(a) != 60 || len(b) != 60 {
		t.Fatalf("row counts: %d %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Timestamp != b[i].Timestamp || a[i].EfficiencyScore != b[i].EfficiencyScore {
			t.Fatalf("row %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
	if sequential.Summary() != parallel.Summary() {
		t.Fatalf("summaries differ: %+v vs %+v", sequential.Summary(), parallel.Summary())
	}
}

func TestEngineParallelPreparePanicBecomesMalformed(t *testing.T) {
	sink := memory.NewReadingRepository()
	engine := newTestEngine(t, sink, WithWorkers(4))
	engine.extract = func(msg telemetry.RawMessage) (telemetry.SensorReading, error) {
		if msg.Timestamp == "t2" {
			panic("tokenizer index out of range")
		}
		return telemetry.Extract(msg)
	}

	outcomes := engine.ProcessBatch(context.Background(), []telemetry.RawMessage{
		sensorMessage(1, "active", 60, 1, "t1"),
		sensorMessage(2, "active", 60, 1, "t2"),
		sensorMessage(3, "active", 60, 1, "t3"),
	})
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[1].Status != StatusMalformed || !errors.Is(outcomes[1].Err, ErrPreparePanic) {
		t.Fatalf("expected malformed outcome for the panicking message, got %+v", outcomes[1])
	}
	summary := engine.Summary()
	if summary.Processed != 2 || summary.Malformed != 1 || sink.Len() != 2 {
		t.Fatalf("unexpected summary: %+v rows=%d", summary, sink.Len())
	}
}

type panickingSink struct {
	calls int
}

func (s *panickingSink) Store(context.Context, telemetry.ScoredReading) error {
	s.calls++
	if s.calls == 1 {
		panic("driver bug")
	}
	return nil
}

func TestEngineSinkPanicCountsAsFailure(t *testing.T) {
	sink := &panickingSink{}
	engine := newTestEngine(t, sink)

	out := engine.Process(context.Background(), sensorMessage(7, "active", 96, 0.5, "t1"))
	if out.Status != StatusProcessed || !errors.Is(out.Err, ErrSinkPanic) {
		t.Fatalf("expected processed with sink panic error, got %+v", out)
	}
	out = engine.Process(context.Background(), sensorMessage(7, "active", 60, 1, "t2"))
	if out.Err != nil {
		t.Fatalf("second write: %v", out.Err)
	}

	summary := engine.Summary()
	if summary.Processed != 2 || summary.SinkFailures != 1 || summary.AnomalyCount != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if sink.calls != 2 {
		t.Fatalf("expected 2 sink calls, got %d", sink.calls)
	}
}

func TestEngineDefaultsAndOptions(t *testing.T) {
	if _, err := NewEngine(nil); err == nil {
		t.Fatalf("expected nil sink error")
	}
	sink := memory.NewReadingRepository()
	engine := newTestEngine(t, sink,
		WithWindowCapacity(2),
		WithDeduplicator(eventing.NewDeduplicator(1)),
		WithIDGenerator(func() string { return "" }),
	)
	for i := 0; i < 3; i++ {
		engine.Process(context.Background(), sensorMessage(5, "unknown", 50, 1, fmt.Sprintf("t%d", i)))
	}
	history, _ := engine.Windows().History(5)
	if len(history.Efficiency) != 2 {
		t.Fatalf("expected capacity 2, got %d", len(history.Efficiency))
	}
	if out := engine.Process(context.Background(), sensorMessage(5, "unknown", 50, 1, "t0")); out.Status != StatusProcessed {
		t.Fatalf("evicted key should be processed again, got %v", out.Status)
	}

	msg := sensorMessage(6, "active", 50, 1, "t9")
	msg.Keyword = ""
	out := engine.Process(context.Background(), msg)
	if out.Reading.EfficiencyLevel != telemetry.DefaultEfficiencyLevel {
		t.Fatalf("efficiency level: %q", out.Reading.EfficiencyLevel)
	}
}
