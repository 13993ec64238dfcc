// Package bridge converts multi-fire partner callback interfaces into
// single-resolution results.
//
// Partner SDKs are observed to fire terminal callbacks more than once for
// what should be a single logical event, to fire them concurrently with
// caller cancellation, and occasionally to report "not ready" synchronously
// with no asynchronous callback ever following. The Slot in this package
// absorbs all of that: the first terminal outcome wins, every later one is
// a silent no-op, and an abandoned awaiter leaves nothing for a late
// callback to break.
package bridge

import (
	"context"
	"sync"

	"github.com/admeshlabs/mediation-bridge/internal/mediation"
)

// Slot is a single-assignment container for the eventual outcome of one
// load or show attempt. At most one resolution ever takes effect;
// subsequent attempts are absorbed. Safe for concurrent use.
type Slot struct {
	mu        sync.Mutex
	resolved  bool
	abandoned bool
	absorbed  int
	done      chan error
}

// NewSlot creates an unset resolution slot
func NewSlot() *Slot {
	return &Slot{
		done: make(chan error, 1),
	}
}

// Resolve sets the slot outcome if and only if it is unset. A nil err is
// a success outcome. Returns true when this call took effect; a false
// return means an earlier resolution or an abandonment already consumed
// the slot and this outcome was dropped.
func (s *Slot) Resolve(err error) bool {
	s.mu.Lock()
	if s.resolved {
		s.absorbed++
		s.mu.Unlock()
		return false
	}
	s.resolved = true
	s.mu.Unlock()

	// done is buffered with capacity 1 and only the winning Resolve
	// reaches this send, so it never blocks.
	s.done <- err
	return true
}

// Await suspends until the slot resolves or ctx is done. On cancellation
// the slot is marked consumed so any later terminal callback is provably
// inert, and the context error is surfaced as a structured cancellation.
// Each slot has exactly one awaiter; Await must not be called twice.
func (s *Slot) Await(ctx context.Context) error {
	select {
	case err := <-s.done:
		return err
	case <-ctx.Done():
	}

	// A resolution may have landed in the window between ctx firing and
	// the abandon below. First resolution wins, including against
	// cancellation.
	if s.abandon() {
		return mediation.NewCancelledError(ctx.Err())
	}

	// The slot was already consumed by a winning Resolve; its send to the
	// buffered channel is guaranteed, so this receive cannot block long.
	return <-s.done
}

// abandon consumes the slot on behalf of a cancelled awaiter. Returns
// true when the slot was still unset.
func (s *Slot) abandon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return false
	}
	s.resolved = true
	s.abandoned = true
	return true
}

// Resolved reports whether the slot has been consumed, either by a
// terminal outcome or by abandonment
func (s *Slot) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

// Abandoned reports whether the slot was consumed by a cancelled awaiter
func (s *Slot) Abandoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abandoned
}

// Absorbed returns the number of terminal outcomes dropped after the
// slot was consumed. Duplicate firings are expected partner behavior,
// not an error; the count exists for observability.
func (s *Slot) Absorbed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.absorbed
}
