// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package semaphore provides the spin-wait primitives that render targets use
// to hand frames between the submitting goroutine and recording workers.
//
// A [Binary] semaphore is a single released/acquired flag. A worker parks on
// its own Binary semaphore between frames and the main goroutine releases it
// when the next frame may be recorded.
//
// A [Counting] semaphore accumulates releases. Each worker releases it once
// when its recording is done, and the main goroutine acquires it with the
// worker count as target, which resets the counter for the next frame.
//
// Both types poll instead of parking the goroutine in the scheduler, yielding
// the processor between polls. A release that happens before the matching
// acquire is never lost: the flag or counter keeps it until consumed.
//
// The zero value of either type is ready to use. Neither may be copied after
// first use.
package semaphore
