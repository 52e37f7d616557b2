// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package semaphore

import (
	"context"
	"runtime"
	"sync/atomic"
)

// Counting is a spin-wait semaphore that counts releases.
type Counting struct {
	count atomic.Uint64
}

// Release increments the counter.
func (s *Counting) Release() {
	s.count.Add(1)
}

// Acquire spins until the counter equals target, then resets it to zero.
//
// Releases that arrive after the reset start the next count, so the
// caller must not release more than target times per round.
func (s *Counting) Acquire(target uint64) {
	for !s.TryAcquire(target) {
		runtime.Gosched()
	}
}

// AcquireContext is Acquire that gives up when ctx is done.
func (s *Counting) AcquireContext(ctx context.Context, target uint64) error {
	for !s.TryAcquire(target) {
		if err := ctx.Err(); err != nil {
			return err
		}
		runtime.Gosched()
	}
	return nil
}

// TryAcquire resets the counter and returns true if it equals target.
// Otherwise the counter is unchanged and TryAcquire returns false.
func (s *Counting) TryAcquire(target uint64) bool {
	return s.count.CompareAndSwap(target, 0)
}

// Count returns the current counter value.
func (s *Counting) Count() uint64 {
	return s.count.Load()
}
