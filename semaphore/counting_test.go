// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package semaphore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCounting_AcquireResets(t *testing.T) {
	var s Counting

	for range 3 {
		s.Release()
	}

	done := make(chan struct{})
	go func() {
		s.Acquire(3)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire(3) did not return after three releases")
	}

	if got := s.Count(); got != 0 {
		t.Errorf("Count() after Acquire = %d, want 0", got)
	}
	if s.TryAcquire(3) {
		t.Error("TryAcquire(3) on reset semaphore = true, want false")
	}
}

func TestCounting_TryAcquireBelowTarget(t *testing.T) {
	var s Counting
	s.Release()
	s.Release()

	if s.TryAcquire(3) {
		t.Fatal("TryAcquire(3) with count 2 = true")
	}
	if got := s.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2 (failed TryAcquire must not reset)", got)
	}

	s.Release()
	if !s.TryAcquire(3) {
		t.Error("TryAcquire(3) with count 3 = false")
	}
}

func TestCounting_ConcurrentReleases(t *testing.T) {
	const workers = 8
	var s Counting

	for round := range 50 {
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Release()
			}()
		}
		s.Acquire(workers)
		wg.Wait()

		if got := s.Count(); got != 0 {
			t.Fatalf("round %d: Count() = %d after Acquire, want 0", round, got)
		}
	}
}

func TestCounting_AcquireContext(t *testing.T) {
	var s Counting
	s.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := s.AcquireContext(ctx, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("AcquireContext() error = %v, want DeadlineExceeded", err)
	}
	if got := s.Count(); got != 1 {
		t.Errorf("Count() = %d after canceled acquire, want 1", got)
	}
}
