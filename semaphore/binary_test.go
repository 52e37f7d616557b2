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

func TestBinary_TryAcquireOnce(t *testing.T) {
	var s Binary

	if s.TryAcquire() {
		t.Fatal("TryAcquire() on fresh semaphore = true, want false")
	}

	s.Release()
	if !s.TryAcquire() {
		t.Fatal("TryAcquire() after Release = false, want true")
	}
	if s.TryAcquire() {
		t.Error("second TryAcquire() = true, want false")
	}
}

func TestBinary_ReleaseIsNotCounted(t *testing.T) {
	var s Binary

	s.Release()
	s.Release()

	if !s.TryAcquire() {
		t.Fatal("TryAcquire() = false after two releases")
	}
	if s.TryAcquire() {
		t.Error("binary semaphore kept more than one release")
	}
}

func TestBinary_AcquireBlocksUntilRelease(t *testing.T) {
	var s Binary
	acquired := make(chan struct{})

	go func() {
		s.Acquire()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire returned before Release")
	case <-time.After(20 * time.Millisecond):
	}

	s.Release()

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire did not return after Release")
	}
	if s.IsReleased() {
		t.Error("IsReleased() = true after Acquire consumed the release")
	}
}

func TestBinary_ReleaseBeforeAcquireNotLost(t *testing.T) {
	var s Binary
	s.Release()

	done := make(chan struct{})
	go func() {
		s.Acquire()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("release issued before Acquire was lost")
	}
}

func TestBinary_AcquireContextCanceled(t *testing.T) {
	var s Binary
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.AcquireContext(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("AcquireContext() error = %v, want DeadlineExceeded", err)
	}

	s.Release()
	if err := s.AcquireContext(context.Background()); err != nil {
		t.Errorf("AcquireContext() after Release error = %v", err)
	}
}

func TestBinary_ConcurrentSingleWinner(t *testing.T) {
	var s Binary
	s.Release()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryAcquire() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want 1", winners)
	}
}
