package audio

import "sync/atomic"

// Ring is a fixed-capacity single-producer/single-consumer queue of mono
// samples. Push and Pop never block and never allocate, so both are safe
// to call from the hardware audio callback. head and tail grow
// monotonically; their difference is the occupancy.
//
// Exactly one goroutine may push and one may pop. No other concurrency
// mode is supported.
type Ring struct {
	buf  []float32
	head atomic.Int64 // next index to pop
	tail atomic.Int64 // next index to push
}

// NewRing creates a ring holding up to capacity samples. capacity must be
// positive.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Push appends one sample. It returns false and drops the sample when the
// ring is full (overrun); it never blocks the caller.
func (r *Ring) Push(v float32) bool {
	t := r.tail.Load()
	if t-r.head.Load() >= int64(len(r.buf)) {
		return false
	}
	r.buf[t%int64(len(r.buf))] = v
	r.tail.Store(t + 1)
	return true
}

// Pop copies up to len(dst) samples into dst in FIFO order and returns the
// number copied.
func (r *Ring) Pop(dst []float32) int {
	h := r.head.Load()
	n := int(r.tail.Load() - h)
	if n > len(dst) {
		n = len(dst)
	}
	size := int64(len(r.buf))
	for i := 0; i < n; i++ {
		dst[i] = r.buf[(h+int64(i))%size]
	}
	r.head.Store(h + int64(n))
	return n
}

// Len reports the number of samples currently buffered.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap reports the fixed capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}
