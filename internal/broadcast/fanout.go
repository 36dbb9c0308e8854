// Package broadcast delivers snapshots from the single processing goroutine to
// any number of consumers without ever blocking the producer.
package broadcast

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/linuxmatters/jivewave/internal/features"
)

// Fanout copies each offered snapshot to every subscriber. A subscriber whose
// buffer is full misses that snapshot; the producer never waits.
//
// Offer and Close belong to the producer goroutine. Subscribe and the
// unsubscribe functions may run anywhere; they replace the subscriber list
// instead of editing it, so Offer reads it without locking.
type Fanout struct {
	mu     sync.Mutex // Serialises list replacement
	subs   atomic.Pointer[[]chan features.Snapshot]
	closed atomic.Bool

	offered atomic.Uint64
	dropped atomic.Uint64
}

// NewFanout returns an empty Fanout.
func NewFanout() *Fanout {
	f := &Fanout{}
	f.subs.Store(&[]chan features.Snapshot{})
	return f
}

// Subscribe registers a consumer with the given buffer (minimum 1). The
// returned function removes it and is safe to call more than once; the
// channel stays open afterwards, since the caller has stopped reading, and
// is closed only by Close. Subscribing to a closed Fanout yields a closed
// channel.
func (f *Fanout) Subscribe(buffer int) (<-chan features.Snapshot, func()) {
	ch := make(chan features.Snapshot, max(buffer, 1))

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed.Load() {
		close(ch)
		return ch, func() {}
	}
	old := *f.subs.Load()
	next := make([]chan features.Snapshot, len(old), len(old)+1)
	copy(next, old)
	next = append(next, ch)
	f.subs.Store(&next)

	var once sync.Once
	return ch, func() {
		once.Do(func() { f.remove(ch) })
	}
}

func (f *Fanout) remove(ch chan features.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old := *f.subs.Load()
	i := slices.Index(old, ch)
	if i < 0 {
		return
	}
	next := make([]chan features.Snapshot, 0, len(old)-1)
	next = append(next, old[:i]...)
	next = append(next, old[i+1:]...)
	f.subs.Store(&next)
}

// Offer hands s to every subscriber that has room.
func (f *Fanout) Offer(s features.Snapshot) {
	f.offered.Add(1)
	for _, ch := range *f.subs.Load() {
		select {
		case ch <- s:
		default:
			f.dropped.Add(1)
		}
	}
}

// Subscribers is the current number of consumers.
func (f *Fanout) Subscribers() int { return len(*f.subs.Load()) }

// Offered counts calls to Offer.
func (f *Fanout) Offered() uint64 { return f.offered.Load() }

// Dropped counts per-subscriber deliveries skipped because a buffer was full.
func (f *Fanout) Dropped() uint64 { return f.dropped.Load() }

// Close closes every current subscriber channel. Later offers are ignored.
// Call it from the producer goroutine once it has made its last Offer.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed.Swap(true) {
		return
	}
	for _, ch := range *f.subs.Load() {
		close(ch)
	}
	f.subs.Store(&[]chan features.Snapshot{})
}
