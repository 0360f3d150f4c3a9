package statistic

import (
	"math"
	"testing"

	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

func TestAccountantAveragesAndAnomalies(t *testing.T) {
	acc := NewAccountant()
	acc.Record(telemetry.ModeActive, 100, false)
	acc.Record(telemetry.ModeActive, 85, true)
	acc.Record(telemetry.ModeOffline, 0, true)
	acc.Record(telemetry.ModeIdle, 60, false)

	if got := acc.AnomalyCount(); got != 2 {
		t.Fatalf("anomaly count: %d", got)
	}
	averages := acc.AverageByMode()
	if math.Abs(averages[telemetry.ModeActive]-92.5) > 1e-9 {
		t.Fatalf("active average: %v", averages[telemetry.ModeActive])
	}
	if averages[telemetry.ModeOffline] != 0 {
		t.Fatalf("offline average: %v", averages[telemetry.ModeOffline])
	}
	if _, ok := averages[telemetry.ModeMaintenance]; ok {
		t.Fatalf("unseen mode should be absent")
	}
	if acc.AverageFor(telemetry.ModeMaintenance) != 0 {
		t.Fatalf("unseen mode average should be 0")
	}
	if counts := acc.ModeCounts(); counts[telemetry.ModeActive] != 2 || counts[telemetry.ModeIdle] != 1 {
		t.Fatalf("counts: %v", counts)
	}
}

func TestAccountantSummariesKeepFirstSeenOrder(t *testing.T) {
	acc := NewAccountant()
	acc.Record(telemetry.ModeIdle, 50, false)
	acc.Record(telemetry.ModeActive, 90, false)
	acc.Record(telemetry.ModeIdle, 70, true)

	summaries := acc.Summaries()
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].Mode != telemetry.ModeIdle || summaries[0].Count != 2 || summaries[0].Anomalies != 1 || summaries[0].Average != 60 {
		t.Fatalf("idle summary: %+v", summaries[0])
	}
	if summaries[1].Mode != telemetry.ModeActive {
		t.Fatalf("second summary: %+v", summaries[1])
	}
}

func TestAccountantEmpty(t *testing.T) {
	acc := NewAccountant()
	if acc.AnomalyCount() != 0 || len(acc.AverageByMode()) != 0 || len(acc.Summaries()) != 0 {
		t.Fatalf("expected empty accountant")
	}
}
