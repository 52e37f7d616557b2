package flint

import (
	"context"
	"sync/atomic"
)

// HostSync lets the host wait for a queue submission to complete.
type HostSync struct {
	deviceObject

	submission atomic.Uint64
}

// CreateHostSync returns a host sync that is already signaled.
func (d *Device) CreateHostSync() (*HostSync, error) {
	if err := checkDevice(d, "host sync"); err != nil {
		return nil, err
	}
	s := &HostSync{deviceObject: deviceObject{device: d, kind: "host sync"}}
	d.track(&s.deviceObject, s)
	return s, nil
}

// Track makes the sync wait for submission idx.
func (s *HostSync) Track(idx uint64) { s.submission.Store(idx) }

// Submission returns the tracked submission index.
func (s *HostSync) Submission() uint64 { return s.submission.Load() }

// IsSignaled reports whether the tracked submission completed.
func (s *HostSync) IsSignaled() bool {
	return s.device.completed() >= s.submission.Load()
}

// Wait blocks until the tracked submission completed or ctx is done.
func (s *HostSync) Wait(ctx context.Context) error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	return s.device.waitSubmission(ctx, s.submission.Load())
}

// Terminate releases the sync.
func (s *HostSync) Terminate() error {
	s.beginTerminate()
	return nil
}

// DeviceSync orders GPU work: submissions made after Signal observe the
// results of the signaled submission. The queue executes in submission
// order, so the value doubles as a timeline point that can be polled.
type DeviceSync struct {
	deviceObject

	value atomic.Uint64
}

// CreateDeviceSync returns an unsignaled device sync.
func (d *Device) CreateDeviceSync() (*DeviceSync, error) {
	if err := checkDevice(d, "device sync"); err != nil {
		return nil, err
	}
	s := &DeviceSync{deviceObject: deviceObject{device: d, kind: "device sync"}}
	d.track(&s.deviceObject, s)
	return s, nil
}

// Signal records submission idx as the dependency point. Older values are
// ignored.
func (s *DeviceSync) Signal(idx uint64) {
	for {
		cur := s.value.Load()
		if idx <= cur || s.value.CompareAndSwap(cur, idx) {
			return
		}
	}
}

// Value returns the recorded submission index.
func (s *DeviceSync) Value() uint64 { return s.value.Load() }

// IsSignaled reports whether the GPU reached the recorded submission.
func (s *DeviceSync) IsSignaled() bool {
	v := s.value.Load()
	return v != 0 && s.device.completed() >= v
}

// Terminate releases the sync.
func (s *DeviceSync) Terminate() error {
	s.beginTerminate()
	return nil
}
