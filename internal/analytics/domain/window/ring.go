package window

// Ring is a fixed-capacity FIFO of float64 values backed by a single array.
// Pushing onto a full ring overwrites the oldest value.
type Ring struct {
	buf   []float64
	head  int // index of the oldest value
	count int
}

// NewRing allocates a ring holding at most capacity values.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends v. When the ring is full the oldest value is evicted and
// returned with ok set.
func (r *Ring) Push(v float64) (evicted float64, ok bool) {
	capacity := len(r.buf)
	if r.count < capacity {
		r.buf[(r.head+r.count)%capacity] = v
		r.count++
		return 0, false
	}
	evicted = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % capacity
	return evicted, true
}

// Len returns the number of stored values.
func (r *Ring) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// At returns the i-th value, 0 being the oldest.
func (r *Ring) At(i int) float64 {
	if i < 0 || i >= r.count {
		panic("window: ring index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the newest value.
func (r *Ring) Last() (float64, bool) {
	if r.count == 0 {
		return 0, false
	}
	return r.At(r.count - 1), true
}

// Values copies the stored values, oldest first.
func (r *Ring) Values() []float64 {
	out := make([]float64, r.count)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
