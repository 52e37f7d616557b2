package flint

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle is the opaque identity of a device-bound object in its device's
// resource table.
type Handle uuid.UUID

// String returns the canonical UUID form of h.
func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// IsNil reports whether h is the zero handle.
func (h Handle) IsNil() bool {
	return uuid.UUID(h) == uuid.Nil
}

// DeviceBoundObject is implemented by every object created from a Device.
type DeviceBoundObject interface {
	// Device returns the device that created the object.
	Device() *Device

	// Handle returns the object's entry in the device resource table.
	Handle() Handle

	// IsTerminated reports whether Terminate has been called.
	IsTerminated() bool

	// Terminate releases the object's GPU resources. Calling it again is a
	// no-op that returns nil.
	Terminate() error
}

// deviceObject carries the state shared by all device-bound objects.
// Embedders register with the device once fully constructed.
type deviceObject struct {
	device     *Device
	handle     Handle
	kind       string
	terminated atomic.Bool
}

// checkDevice validates the device reference every device-bound object needs.
func checkDevice(device *Device, kind string) error {
	if device == nil {
		return invalidArgument("flint: %s: device is nil", kind)
	}
	if device.IsTerminated() {
		return terminatedError("device")
	}
	return nil
}

// Device returns the device that created the object.
func (o *deviceObject) Device() *Device { return o.device }

// Handle returns the object's resource table handle.
func (o *deviceObject) Handle() Handle { return o.handle }

// IsTerminated reports whether Terminate has been called.
func (o *deviceObject) IsTerminated() bool { return o.terminated.Load() }

// Kind names the object type in logs and errors.
func (o *deviceObject) Kind() string { return o.kind }

// beginTerminate flips the terminated flag and unregisters the object.
// It returns false when the object was already terminated, in which case
// the caller must not release anything.
func (o *deviceObject) beginTerminate() bool {
	if !o.terminated.CompareAndSwap(false, true) {
		return false
	}
	o.device.untrack(o.handle)
	return true
}

// checkAlive returns ErrTerminated for a terminated object.
func (o *deviceObject) checkAlive() error {
	if o.terminated.Load() {
		return terminatedError(o.kind)
	}
	return nil
}
