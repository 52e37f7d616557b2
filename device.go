package flint

import (
	"context"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/gogpu/flint/internal/cache"
	"github.com/gogpu/flint/internal/registry"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Device is a logical GPU connection and the factory for every device-bound
// object. It owns the resource table that tracks those objects by handle.
type Device struct {
	id       uuid.UUID
	instance *Instance
	display  *Display
	adapter  hal.Adapter
	info     gputypes.AdapterInfo
	hal      hal.Device
	queue    hal.Queue

	// queueMu serializes queue submissions and immediate writes.
	queueMu sync.Mutex

	resources *registry.Table[DeviceBoundObject]

	// pipelineBlobs caches pipeline cache files by path.
	pipelineBlobs *cache.Cache[string, []byte]

	terminated atomic.Bool
}

var _ gpucontext.DeviceProvider = (*Device)(nil)

func newDevice(inst *Instance, exposed hal.ExposedAdapter, open hal.OpenDevice, display *Display) *Device {
	return &Device{
		id:            uuid.New(),
		instance:      inst,
		display:       display,
		adapter:       exposed.Adapter,
		info:          exposed.Info,
		hal:           open.Device,
		queue:         open.Queue,
		resources:     registry.New[DeviceBoundObject](),
		pipelineBlobs: cache.New[string, []byte](inst.cfg.CacheEntries),
	}
}

// ID returns the device identity used in logs.
func (d *Device) ID() uuid.UUID { return d.id }

// Instance returns the instance that created the device.
func (d *Device) Instance() *Instance { return d.instance }

// Config returns the configuration of the owning instance.
func (d *Device) Config() Config { return d.instance.cfg }

// Info returns the adapter description.
func (d *Device) Info() gputypes.AdapterInfo { return d.info }

// IsTerminated reports whether Terminate has been called.
func (d *Device) IsTerminated() bool { return d.terminated.Load() }

// Device returns the HAL device. It implements gpucontext.DeviceProvider.
func (d *Device) Device() gpucontext.Device { return d.hal }

// Queue returns the HAL queue. It implements gpucontext.DeviceProvider.
func (d *Device) Queue() gpucontext.Queue { return d.queue }

// Adapter returns the HAL adapter. It implements gpucontext.DeviceProvider.
func (d *Device) Adapter() gpucontext.Adapter { return d.adapter }

// AdapterInfo implements gpucontext.DeviceProvider.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo {
	t := gpucontext.AdapterTypeUnknown
	switch d.info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		t = gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		t = gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		t = gpucontext.AdapterTypeSoftware
	}
	return gpucontext.AdapterInfo{Name: d.info.Name, Type: t}
}

// SurfaceFormat returns the preferred presentation format of the display the
// device was created for, or BGRA8Unorm when there is none.
// It implements gpucontext.DeviceProvider.
func (d *Device) SurfaceFormat() gputypes.TextureFormat {
	if d.display != nil {
		if caps := d.adapter.SurfaceCapabilities(d.display.surface); caps != nil && len(caps.Formats) > 0 {
			for _, f := range caps.Formats {
				if f == gputypes.TextureFormatBGRA8Unorm {
					return f
				}
			}
			return caps.Formats[0]
		}
	}
	return gputypes.TextureFormatBGRA8Unorm
}

// track registers a fully constructed object and stores its handle.
func (d *Device) track(o *deviceObject, obj DeviceBoundObject) {
	o.handle = Handle(d.resources.Insert(obj))
	Logger().Debug("flint: created", "kind", o.kind, "handle", o.handle.String())
}

// untrack removes a terminated object from the resource table.
func (d *Device) untrack(h Handle) {
	d.resources.Remove(uuid.UUID(h))
}

// Lookup returns the live object registered under h.
func (d *Device) Lookup(h Handle) (DeviceBoundObject, bool) {
	return d.resources.Get(uuid.UUID(h))
}

// LiveObjects returns the number of objects not yet terminated.
func (d *Device) LiveObjects() int {
	return d.resources.Len()
}

// WaitIdle blocks until the GPU finished all submitted work.
func (d *Device) WaitIdle() error {
	if err := d.hal.WaitIdle(); err != nil {
		return backendError(err, "flint: wait idle")
	}
	return nil
}

// submit sends command buffers to the queue and returns the submission index.
func (d *Device) submit(buffers []hal.CommandBuffer) (uint64, error) {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	idx, err := d.queue.Submit(buffers)
	if err != nil {
		return 0, backendError(err, "flint: queue submit")
	}
	return idx, nil
}

// completed returns the highest submission index the GPU has finished.
func (d *Device) completed() uint64 {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	return d.queue.PollCompleted()
}

// waitSubmission spins until submission idx completed or ctx is done.
func (d *Device) waitSubmission(ctx context.Context, idx uint64) error {
	for d.completed() < idx {
		if err := ctx.Err(); err != nil {
			return err
		}
		runtime.Gosched()
	}
	return nil
}

// writeBuffer uploads data through the queue.
func (d *Device) writeBuffer(buf hal.Buffer, offset uint64, data []byte) error {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	if err := d.queue.WriteBuffer(buf, offset, data); err != nil {
		return backendError(err, "flint: write buffer")
	}
	return nil
}

// writeTexture uploads texel data through the queue.
func (d *Device) writeTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D) error {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	if err := d.queue.WriteTexture(dst, data, layout, size); err != nil {
		return backendError(err, "flint: write texture")
	}
	return nil
}

// present hands an acquired surface texture back to the compositor.
func (d *Device) present(surface hal.Surface, tex hal.SurfaceTexture) error {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	if err := d.queue.Present(surface, tex, nil); err != nil {
		return backendError(err, "flint: present")
	}
	return nil
}

// runOnce records a one-off command buffer, submits it and waits for it.
func (d *Device) runOnce(label string, record func(enc hal.CommandEncoder)) error {
	enc, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return backendError(err, "flint: create command encoder")
	}
	defer enc.Destroy()

	if err := enc.BeginEncoding(label); err != nil {
		return backendError(err, "flint: begin encoding %s", label)
	}
	record(enc)
	cmd, err := enc.EndEncoding()
	if err != nil {
		return backendError(err, "flint: end encoding %s", label)
	}
	defer d.hal.FreeCommandBuffer(cmd)

	idx, err := d.submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return err
	}
	return d.waitSubmission(context.Background(), idx)
}

// Terminate closes the device. It fails with ErrDependentsAlive while any
// object created from the device is still alive.
func (d *Device) Terminate() error {
	if d.terminated.Load() {
		return nil
	}
	if n := d.resources.Len(); n > 0 {
		kinds := make(map[string]int)
		d.resources.Range(func(_ uuid.UUID, obj DeviceBoundObject) bool {
			if k, ok := obj.(interface{ Kind() string }); ok {
				kinds[k.Kind()]++
			}
			return true
		})
		parts := make([]string, 0, len(kinds))
		for k, c := range kinds {
			parts = append(parts, k+"="+strconv.Itoa(c))
		}
		sort.Strings(parts)
		return errors.Wrapf(ErrDependentsAlive, "flint: %d objects alive (%s)", n, strings.Join(parts, " "))
	}
	if !d.terminated.CompareAndSwap(false, true) {
		return nil
	}

	if err := d.hal.WaitIdle(); err != nil {
		Logger().Warn("flint: wait idle before device destroy", "err", err)
	}
	d.hal.Destroy()
	st := d.pipelineBlobs.Stats()
	Logger().Debug("flint: pipeline cache stats",
		"entries", st.Len, "hits", st.Hits, "misses", st.Misses, "evictions", st.Evictions)
	d.pipelineBlobs.Clear()
	d.instance.devices.Add(-1)

	Logger().Info("flint: device terminated", "adapter", d.info.Name)
	return nil
}
