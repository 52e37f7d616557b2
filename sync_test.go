package flint

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestHostSync(t *testing.T) {
	d := newTestDevice(t)
	s, err := d.CreateHostSync()
	if err != nil {
		t.Fatal(err)
	}
	terminate(t, s)

	if !s.IsSignaled() {
		t.Error("new host sync is not signaled")
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("Wait on a fresh sync = %v", err)
	}

	idx, err := d.submit(nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Track(idx)
	if s.Submission() != idx {
		t.Errorf("Submission() = %d, want %d", s.Submission(), idx)
	}
	// The noop queue completes submissions immediately.
	if !s.IsSignaled() {
		t.Error("completed submission not signaled")
	}
}

func TestHostSync_WaitHonorsContext(t *testing.T) {
	d := newTestDevice(t)
	s, err := d.CreateHostSync()
	if err != nil {
		t.Fatal(err)
	}
	terminate(t, s)

	s.Track(d.completed() + 100)
	if s.IsSignaled() {
		t.Fatal("future submission reported signaled")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want context.DeadlineExceeded", err)
	}
}

func TestHostSync_Terminated(t *testing.T) {
	d := newTestDevice(t)
	s, err := d.CreateHostSync()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Terminate(); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(context.Background()); !errors.Is(err, ErrTerminated) {
		t.Errorf("Wait after Terminate = %v, want ErrTerminated", err)
	}
}

func TestDeviceSync(t *testing.T) {
	d := newTestDevice(t)
	s, err := d.CreateDeviceSync()
	if err != nil {
		t.Fatal(err)
	}
	terminate(t, s)

	if s.IsSignaled() {
		t.Error("new device sync is signaled")
	}

	first, _ := d.submit(nil)
	second, _ := d.submit(nil)
	s.Signal(second)
	s.Signal(first)
	if s.Value() != second {
		t.Errorf("Value() = %d, want %d; older signals must be ignored", s.Value(), second)
	}
	if !s.IsSignaled() {
		t.Error("device sync not signaled after its submission completed")
	}

	s.Signal(d.completed() + 5)
	if s.IsSignaled() {
		t.Error("device sync signaled ahead of the queue")
	}
}

func TestSync_NilDevice(t *testing.T) {
	var d *Device
	if _, err := d.CreateHostSync(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("CreateHostSync on nil device = %v", err)
	}
	if _, err := d.CreateDeviceSync(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("CreateDeviceSync on nil device = %v", err)
	}
}
