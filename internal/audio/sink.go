package audio

import (
	"sync"
	"sync/atomic"
)

// Subscription receives converted output chunks from a Bus. Every
// subscriber sees the same chunk slice, so receivers must treat it as
// read-only. After Cancel no further chunks arrive; C is left open so a
// concurrent Publish can never send on a closed channel.
type Subscription struct {
	C      <-chan []int16
	cancel func()
}

// Cancel detaches the subscription. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Bus fans output chunks out to every subscriber. Publish is wait-free:
// the subscriber set is an immutable snapshot swapped under Bus.mu, so the
// audio callback only loads a pointer and performs non-blocking channel
// sends. A subscriber that cannot keep up loses its own chunks; nobody
// else stalls.
type Bus struct {
	mu   sync.Mutex
	subs atomic.Value // []chan []int16
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	b := &Bus{}
	b.subs.Store([]chan []int16(nil))
	return b
}

// Subscribe registers a new subscriber with the given channel buffer.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan []int16, buffer)

	b.mu.Lock()
	cur := b.subs.Load().([]chan []int16)
	next := make([]chan []int16, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = ch
	b.subs.Store(next)
	b.mu.Unlock()

	var once sync.Once
	return &Subscription{
		C: ch,
		cancel: func() {
			once.Do(func() { b.remove(ch) })
		},
	}
}

func (b *Bus) remove(ch chan []int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.subs.Load().([]chan []int16)
	next := make([]chan []int16, 0, len(cur))
	for _, c := range cur {
		if c != ch {
			next = append(next, c)
		}
	}
	b.subs.Store(next)
}

// Publish delivers chunk to every subscriber without blocking. The same
// slice is handed to all of them: receivers must not modify it and the
// caller must not reuse it after publishing.
func (b *Bus) Publish(chunk []int16) {
	for _, ch := range b.subs.Load().([]chan []int16) {
		select {
		case ch <- chunk:
		default:
			// Subscriber lagging; drop rather than stall the audio thread.
		}
	}
}

// Subscribers reports the current subscriber count.
func (b *Bus) Subscribers() int {
	return len(b.subs.Load().([]chan []int16))
}
