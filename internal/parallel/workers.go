package parallel

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/flint/semaphore"
)

// Task describes the work a fixed worker set runs.
//
// Setup runs once on each worker goroutine before it reports ready.
// Record runs once per ReleaseAll. Teardown runs when the worker exits,
// only if Setup succeeded. Setup and Teardown may be nil.
type Task struct {
	Setup    func(id int) error
	Record   func(id int)
	Teardown func(id int)
}

// Workers is a fixed set of goroutines gated by semaphores.
//
// Each worker owns one binary semaphore. ReleaseAll releases every worker
// for one round of Record; each worker releases the shared counting
// semaphore when its round is done, and AcquireAll waits for all of them.
// Work assigned to worker i always runs on worker i.
//
// ReleaseAll and AcquireAll must be called from one goroutine, alternating.
type Workers struct {
	// n is the number of worker goroutines.
	n int

	// gates holds one start signal per worker.
	gates []semaphore.Binary

	// done counts workers that finished the current round.
	done semaphore.Counting

	// running is observed at the top of every worker loop.
	running atomic.Bool

	// setupErrs holds per-worker Setup failures.
	setupErrs []error

	group errgroup.Group
}

// StartWorkers starts n workers running task and waits until every worker
// has finished Setup. If any Setup fails, the started workers are stopped
// and the first Setup error is returned.
func StartWorkers(n int, task Task) (*Workers, error) {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}

	w := &Workers{
		n:         n,
		gates:     make([]semaphore.Binary, n),
		setupErrs: make([]error, n),
	}
	w.running.Store(true)

	for id := range n {
		w.group.Go(func() error {
			return w.loop(id, task)
		})
	}

	w.done.Acquire(uint64(n))

	for _, err := range w.setupErrs {
		if err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	return w, nil
}

// loop is the main loop of one worker goroutine.
func (w *Workers) loop(id int, task Task) error {
	if task.Setup != nil {
		if err := task.Setup(id); err != nil {
			w.setupErrs[id] = err
			w.done.Release()
			return err
		}
	}
	if task.Teardown != nil {
		defer task.Teardown(id)
	}

	w.done.Release()

	gate := &w.gates[id]
	for w.running.Load() {
		if !gate.TryAcquire() {
			runtime.Gosched()
			continue
		}
		task.Record(id)
		w.done.Release()
	}
	return nil
}

// ReleaseAll lets every worker run one round of Record.
func (w *Workers) ReleaseAll() {
	for i := range w.gates {
		w.gates[i].Release()
	}
}

// AcquireAll blocks until every worker finished the current round.
func (w *Workers) AcquireAll() {
	w.done.Acquire(uint64(w.n))
}

// AcquireAllContext is AcquireAll that gives up when ctx is done.
// A canceled wait leaves the round outstanding; call AcquireAll before
// the next ReleaseAll.
func (w *Workers) AcquireAllContext(ctx context.Context) error {
	return w.done.AcquireContext(ctx, uint64(w.n))
}

// Close stops the workers after their current round and waits for them.
// Close is safe to call multiple times.
func (w *Workers) Close() error {
	if !w.running.CompareAndSwap(true, false) {
		return nil
	}
	return w.group.Wait()
}

// Count returns the number of workers.
func (w *Workers) Count() int {
	return w.n
}

// IsRunning reports whether the workers have not been closed.
func (w *Workers) IsRunning() bool {
	return w.running.Load()
}
