// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package semaphore

import (
	"context"
	"runtime"
	"sync/atomic"
)

// Binary is a spin-wait semaphore holding a single released flag.
type Binary struct {
	released atomic.Bool
}

// Release marks the semaphore released. Releasing an already released
// semaphore has no further effect.
func (s *Binary) Release() {
	s.released.Store(true)
}

// Acquire spins until the semaphore is released, then resets it.
func (s *Binary) Acquire() {
	for !s.TryAcquire() {
		runtime.Gosched()
	}
}

// AcquireContext is Acquire that gives up when ctx is done.
// On cancellation the semaphore state is left untouched.
func (s *Binary) AcquireContext(ctx context.Context) error {
	for !s.TryAcquire() {
		if err := ctx.Err(); err != nil {
			return err
		}
		runtime.Gosched()
	}
	return nil
}

// TryAcquire consumes a pending release and reports whether there was one.
func (s *Binary) TryAcquire() bool {
	return s.released.CompareAndSwap(true, false)
}

// IsReleased reports whether a release is pending.
func (s *Binary) IsReleased() bool {
	return s.released.Load()
}
