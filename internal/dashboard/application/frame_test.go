package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	ingest "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/application"
	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/infrastructure/memory"
)

func seededEngine(t *testing.T) *ingest.Engine {
	t.Helper()
	engine, err := ingest.NewEngine(memory.NewReadingRepository())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	readings := []struct {
		machine int
		mode    string
		temp    float64
		vib     float64
	}{
		{1, "active", 60, 1},
		{2, "active", 96, 1},
		{3, "idle", 50, 1},
		{4, "maintenance", 70, 2},
		{1, "active", 70, 2},
	}
	for i, r := range readings {
		engine.Process(context.Background(), telemetry.RawMessage{
			Body:      fmt.Sprintf("Machine %d in Mode %s. Temp: %.1f°C, Vib: %.2fHz.", r.machine, r.mode, r.temp, r.vib),
			Author:    fmt.Sprintf("Sensor-%d", r.machine),
			Timestamp: fmt.Sprintf("2025-02-10 12:00:%02d", i),
			Category:  r.mode,
		})
	}
	return engine
}

func TestBandFor(t *testing.T) {
	cases := map[float64]Band{100: BandGood, 80: BandGood, 79.9: BandFair, 60: BandFair, 59.9: BandPoor, 0: BandPoor}
	for avg, want := range cases {
		if got := BandFor(avg); got != want {
			t.Fatalf("BandFor(%v) = %s, want %s", avg, got, want)
		}
	}
}

func TestBuildFrame(t *testing.T) {
	engine := seededEngine(t)
	now := time.Date(2025, 2, 10, 12, 1, 0, 0, time.UTC)
	frame := BuildFrame(engine, now)

	if !frame.GeneratedAt.Equal(now) {
		t.Fatalf("generated at: %v", frame.GeneratedAt)
	}
	if len(frame.Machines) != 4 || frame.Machines[0].MachineID != 1 || frame.Machines[3].MachineID != 4 {
		t.Fatalf("machines not sorted: %+v", frame.Machines)
	}
	if got := frame.Machines[0].Efficiency; len(got) != 2 || got[0] != 100 || got[1] != 90 {
		t.Fatalf("machine 1 trend: %v", got)
	}
	if frame.StatusDistribution[telemetry.ModeActive] != 2 || frame.StatusDistribution[telemetry.ModeIdle] != 1 {
		t.Fatalf("distribution: %v", frame.StatusDistribution)
	}
	if frame.Scatter[1].Category != PointAnomaly || frame.Scatter[2].Category != PointIdle || frame.Scatter[3].Category != PointOther {
		t.Fatalf("scatter categories: %+v", frame.Scatter)
	}
	if frame.Thresholds.Temperature != 90 || frame.Thresholds.Vibration != 3.5 {
		t.Fatalf("thresholds: %+v", frame.Thresholds)
	}
	if len(frame.Modes) != 3 || frame.Modes[0].Mode != telemetry.ModeActive {
		t.Fatalf("modes: %+v", frame.Modes)
	}
	// active scores: 100, 50, 90
	if frame.Modes[0].Count != 3 || frame.Modes[0].Anomalies != 1 || frame.Modes[0].Band != BandGood {
		t.Fatalf("active mode view: %+v", frame.Modes[0])
	}
	if frame.Summary.AnomalyCount != 1 || frame.Summary.Machines != 4 {
		t.Fatalf("summary: %+v", frame.Summary)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	frames []Frame
	cancel context.CancelFunc
	stopAt int
}

func (p *recordingPublisher) PublishFrame(frame Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, frame)
	if len(p.frames) == p.stopAt {
		p.cancel()
	}
}

func TestRefresherPublishesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	publisher := &recordingPublisher{cancel: cancel, stopAt: 3}
	refresher, err := NewRefresher(seededEngine(t), publisher, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("new refresher: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- refresher.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("refresher did not stop")
	}
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.frames) < 3 {
		t.Fatalf("expected at least 3 frames, got %d", len(publisher.frames))
	}
}

func TestNewRefresherValidation(t *testing.T) {
	if _, err := NewRefresher(nil, &recordingPublisher{}, time.Second, nil); err == nil {
		t.Fatalf("expected nil state error")
	}
	if _, err := NewRefresher(seededEngine(t), nil, time.Second, nil); err == nil {
		t.Fatalf("expected nil publisher error")
	}
}
