package window

import (
	"sort"
	"sync"

	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

// DefaultCapacity is the number of readings kept per machine series.
const DefaultCapacity = 20

// MachineStatus is the latest observed state of a machine.
type MachineStatus struct {
	Mode        telemetry.Mode `json:"mode"`
	Temperature float64        `json:"temperature"`
	Vibration   float64        `json:"vibration"`
	Efficiency  float64        `json:"efficiency"`
	IsAnomaly   bool           `json:"is_anomaly"`
	Timestamp   string         `json:"timestamp"`
}

// History holds copies of a machine's rolling series, oldest first.
type History struct {
	Temperature []float64 `json:"temperature"`
	Vibration   []float64 `json:"vibration"`
	Efficiency  []float64 `json:"efficiency"`
}

type machineWindow struct {
	temperature *Ring
	vibration   *Ring
	efficiency  *Ring
	status      MachineStatus
}

// Store keeps bounded per-machine history and the latest status snapshot.
// It expects a single writer; readers receive copies.
type Store struct {
	mu       sync.RWMutex
	capacity int
	machines map[int]*machineWindow
}

// NewStore constructs a store with the given per-series capacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity, machines: make(map[int]*machineWindow)}
}

// Capacity returns the per-series capacity.
func (s *Store) Capacity() int { return s.capacity }

// Update appends a scored reading to its machine's series and replaces the
// machine status. The window is created on first use.
func (s *Store) Update(reading telemetry.ScoredReading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.machines[reading.MachineID]
	if w == nil {
		w = &machineWindow{
			temperature: NewRing(s.capacity),
			vibration:   NewRing(s.capacity),
			efficiency:  NewRing(s.capacity),
		}
		s.machines[reading.MachineID] = w
	}
	w.temperature.Push(reading.Temperature)
	w.vibration.Push(reading.Vibration)
	w.efficiency.Push(reading.EfficiencyScore)
	w.status = MachineStatus{
		Mode:        reading.Mode,
		Temperature: reading.Temperature,
		Vibration:   reading.Vibration,
		Efficiency:  reading.EfficiencyScore,
		IsAnomaly:   reading.IsAnomaly,
		Timestamp:   reading.Timestamp,
	}
}

// SnapshotAll returns the latest status of every machine seen so far.
func (s *Store) SnapshotAll() map[int]MachineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]MachineStatus, len(s.machines))
	for id, w := range s.machines {
		out[id] = w.status
	}
	return out
}

// Status returns the latest status of one machine.
func (s *Store) Status(machineID int) (MachineStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.machines[machineID]
	if !ok {
		return MachineStatus{}, false
	}
	return w.status, true
}

// History returns copies of a machine's rolling series.
func (s *Store) History(machineID int) (History, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.machines[machineID]
	if !ok {
		return History{}, false
	}
	return History{
		Temperature: w.temperature.Values(),
		Vibration:   w.vibration.Values(),
		Efficiency:  w.efficiency.Values(),
	}, true
}

// Machines returns the known machine ids in ascending order.
func (s *Store) Machines() []int {
	s.mu.RLock()
	ids := make([]int, 0, len(s.machines))
	for id := range s.machines {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// Len returns the number of distinct machines observed.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.machines)
}
