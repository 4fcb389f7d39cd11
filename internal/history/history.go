// Package history keeps bounded, chronologically ordered series.
package history

// DefaultCapacity is the default number of samples retained per series.
const DefaultCapacity = 30

// Ring is a fixed-capacity FIFO buffer. Appending to a full ring evicts the
// oldest value. The zero value is unusable; call NewRing. A Ring is not safe
// for concurrent use.
type Ring[T any] struct {
	data  []T
	head  int
	count int
}

// NewRing creates a ring holding at most capacity values. A non-positive
// capacity falls back to DefaultCapacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring[T]{data: make([]T, capacity)}
}

// Push appends v, evicting the oldest value when full.
func (r *Ring[T]) Push(v T) {
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// Len is the number of values currently held.
func (r *Ring[T]) Len() int { return r.count }

// Cap is the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.data) }

// Values returns a copy of the held values, oldest first.
func (r *Ring[T]) Values() []T {
	return r.Last(r.count)
}

// Last returns up to n most recent values, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n <= 0 || r.count == 0 {
		return []T{}
	}
	if n > r.count {
		n = r.count
	}

	size := len(r.data)
	out := make([]T, n)
	// head is the next write slot, so the newest value sits at head-1.
	start := (r.head - n + size) % size
	for i := 0; i < n; i++ {
		out[i] = r.data[(start+i)%size]
	}
	return out
}

// Latest returns the newest value and whether one exists.
func (r *Ring[T]) Latest() (T, bool) {
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.data[(r.head-1+len(r.data))%len(r.data)], true
}

// Resized returns a new ring of the given capacity holding the most recent
// values of r that fit.
func (r *Ring[T]) Resized(capacity int) *Ring[T] {
	next := NewRing[T](capacity)
	for _, v := range r.Last(next.Cap()) {
		next.Push(v)
	}
	return next
}

// Reset drops all values.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.head = 0
	r.count = 0
}
