package statistic

import (
	"sync"

	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

// ModeSummary aggregates the scores observed for one operating mode.
type ModeSummary struct {
	Mode      telemetry.Mode `json:"mode"`
	Count     int            `json:"count"`
	Anomalies int            `json:"anomalies"`
	Average   float64        `json:"average"`
}

type modeTally struct {
	count     int
	anomalies int
	sum       float64
}

// Accountant tracks the total anomaly count and per-mode efficiency scores.
// Scores are kept as a running sum and count, which is all averaging needs.
type Accountant struct {
	mu        sync.RWMutex
	anomalies int64
	modes     map[telemetry.Mode]*modeTally
	order     []telemetry.Mode
}

// NewAccountant constructs an empty accountant.
func NewAccountant() *Accountant {
	return &Accountant{modes: make(map[telemetry.Mode]*modeTally)}
}

// Record adds one scored reading.
func (a *Accountant) Record(mode telemetry.Mode, score float64, anomaly bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tally := a.modes[mode]
	if tally == nil {
		tally = &modeTally{}
		a.modes[mode] = tally
		a.order = append(a.order, mode)
	}
	tally.count++
	tally.sum += score
	if anomaly {
		tally.anomalies++
		a.anomalies++
	}
}

// AnomalyCount returns the number of anomalous readings recorded.
func (a *Accountant) AnomalyCount() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.anomalies
}

// AverageByMode returns the arithmetic mean score per observed mode.
func (a *Accountant) AverageByMode() map[telemetry.Mode]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[telemetry.Mode]float64, len(a.modes))
	for mode, tally := range a.modes {
		out[mode] = tally.average()
	}
	return out
}

// AverageFor returns the mean score of one mode, 0 when nothing was recorded.
func (a *Accountant) AverageFor(mode telemetry.Mode) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tally := a.modes[mode]
	if tally == nil {
		return 0
	}
	return tally.average()
}

// ModeCounts returns the number of readings recorded per mode.
func (a *Accountant) ModeCounts() map[telemetry.Mode]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[telemetry.Mode]int, len(a.modes))
	for mode, tally := range a.modes {
		out[mode] = tally.count
	}
	return out
}

// Summaries returns per-mode aggregates in first-seen order.
func (a *Accountant) Summaries() []ModeSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ModeSummary, 0, len(a.order))
	for _, mode := range a.order {
		tally := a.modes[mode]
		out = append(out, ModeSummary{
			Mode:      mode,
			Count:     tally.count,
			Anomalies: tally.anomalies,
			Average:   tally.average(),
		})
	}
	return out
}

func (t *modeTally) average() float64 {
	if t == nil || t.count == 0 {
		return 0
	}
	return t.sum / float64(t.count)
}
