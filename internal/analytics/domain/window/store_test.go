package window

import (
	"testing"

	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

func scored(machineID int, temp, vib, score float64) telemetry.ScoredReading {
	return telemetry.ScoredReading{
		SensorReading: telemetry.SensorReading{
			MachineID:   machineID,
			Temperature: temp,
			Vibration:   vib,
			Mode:        telemetry.ModeActive,
		},
		EfficiencyScore: score,
	}
}

func TestStoreKeepsLastTwentyInOrder(t *testing.T) {
	store := NewStore(DefaultCapacity)
	for i := 1; i <= 25; i++ {
		store.Update(scored(3, float64(i), float64(i)/10, float64(i)))
	}

	history, ok := store.History(3)
	if !ok {
		t.Fatalf("expected history for machine 3")
	}
	for name, series := range map[string][]float64{
		"temperature": history.Temperature,
		"vibration":   history.Vibration,
		"efficiency":  history.Efficiency,
	} {
		if len(series) != DefaultCapacity {
			t.Fatalf("%s length: %d", name, len(series))
		}
	}
	if history.Temperature[0] != 6 || history.Temperature[19] != 25 {
		t.Fatalf("expected readings 6..25, got first=%v last=%v", history.Temperature[0], history.Temperature[19])
	}
}

func TestStoreSnapshotReflectsLatestReading(t *testing.T) {
	store := NewStore(0)
	store.Update(scored(1, 70, 2, 100))
	hot := scored(1, 95, 2, 85)
	hot.IsAnomaly = true
	hot.Mode = telemetry.ModeIdle
	store.Update(hot)
	store.Update(scored(2, 50, 1, 100))

	snapshot := store.SnapshotAll()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 machines, got %d", len(snapshot))
	}
	status := snapshot[1]
	if status.Temperature != 95 || status.Efficiency != 85 || !status.IsAnomaly || status.Mode != telemetry.ModeIdle {
		t.Fatalf("unexpected status: %+v", status)
	}
	if got := store.Machines(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("machines: %v", got)
	}
	if store.Len() != 2 {
		t.Fatalf("len: %d", store.Len())
	}
}

func TestStoreUnknownMachine(t *testing.T) {
	store := NewStore(5)
	if _, ok := store.History(42); ok {
		t.Fatalf("expected no history")
	}
	if _, ok := store.Status(42); ok {
		t.Fatalf("expected no status")
	}
	if len(store.SnapshotAll()) != 0 {
		t.Fatalf("expected empty snapshot")
	}
}
