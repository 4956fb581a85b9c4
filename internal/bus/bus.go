// Package bus provides a typed, multi-subscriber broadcast channel whose
// publishers never block.
//
// Every subscriber owns a buffered channel. [Bus.Publish] attempts a
// non-blocking send to each subscriber; a subscriber whose buffer is full
// misses that value and the drop is counted. Subscribers join and leave at
// any time.
package bus

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is used by [Bus.Subscribe] when a non-positive buffer size
// is requested.
const DefaultBuffer = 16

// Bus broadcasts values of type T to all current subscribers.
// The zero value is not usable; create one with [New].
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[uint64]chan T
	nextID uint64
	closed bool

	dropped atomic.Int64
}

// New creates an empty Bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[uint64]chan T)}
}

// Subscribe registers a new subscriber with the given buffer size and returns
// its receive channel plus a cancel function. Calling cancel removes the
// subscriber and closes its channel; it is safe to call more than once.
// Subscribing to a closed Bus returns an already-closed channel.
func (b *Bus[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan T, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers v to every subscriber that has buffer space and returns
// the number of subscribers that received it. It never blocks.
func (b *Bus[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- v:
			delivered++
		default:
			b.dropped.Add(1)
		}
	}
	return delivered
}

// Len returns the current number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the total number of values not delivered because a
// subscriber's buffer was full.
func (b *Bus[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Subsequent publishes are no-ops.
// It is safe to call Close more than once.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
