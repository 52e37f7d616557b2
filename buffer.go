package flint

import (
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// BufferType selects what a buffer is used for.
type BufferType uint8

const (
	BufferTypeUndefined BufferType = iota
	BufferTypeStaging
	BufferTypeVertex
	BufferTypeIndex
	BufferTypeUniform
	BufferTypeStorage
)

// String returns the buffer type name.
func (t BufferType) String() string {
	switch t {
	case BufferTypeStaging:
		return "Staging"
	case BufferTypeVertex:
		return "Vertex"
	case BufferTypeIndex:
		return "Index"
	case BufferTypeUniform:
		return "Uniform"
	case BufferTypeStorage:
		return "Storage"
	default:
		return "Undefined"
	}
}

// BufferMemoryProfile selects where buffer memory lives.
type BufferMemoryProfile uint8

const (
	// BufferMemoryAutomatic lets the buffer type decide.
	BufferMemoryAutomatic BufferMemoryProfile = iota

	// BufferMemoryCPUOnly keeps the buffer host visible.
	BufferMemoryCPUOnly

	// BufferMemoryDeviceOnly keeps the buffer in device memory. It cannot be mapped.
	BufferMemoryDeviceOnly

	// BufferMemoryTransferFriendly is host visible and a copy source and destination.
	BufferMemoryTransferFriendly
)

// String returns the profile name.
func (p BufferMemoryProfile) String() string {
	switch p {
	case BufferMemoryCPUOnly:
		return "CPUOnly"
	case BufferMemoryDeviceOnly:
		return "DeviceOnly"
	case BufferMemoryTransferFriendly:
		return "TransferFriendly"
	default:
		return "Automatic"
	}
}

// resolve turns Automatic into a concrete profile for the buffer type.
func (p BufferMemoryProfile) resolve(t BufferType) BufferMemoryProfile {
	if p != BufferMemoryAutomatic {
		return p
	}
	switch t {
	case BufferTypeStaging:
		return BufferMemoryCPUOnly
	case BufferTypeUniform:
		return BufferMemoryTransferFriendly
	default:
		return BufferMemoryDeviceOnly
	}
}

func bufferUsage(t BufferType, p BufferMemoryProfile) gputypes.BufferUsage {
	usage := gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	switch t {
	case BufferTypeVertex:
		usage |= gputypes.BufferUsageVertex
	case BufferTypeIndex:
		usage |= gputypes.BufferUsageIndex
	case BufferTypeUniform:
		usage |= gputypes.BufferUsageUniform
	case BufferTypeStorage:
		usage |= gputypes.BufferUsageStorage | gputypes.BufferUsageIndirect
	}
	if p != BufferMemoryDeviceOnly {
		usage |= gputypes.BufferUsageMapWrite
		if t == BufferTypeStaging {
			usage |= gputypes.BufferUsageMapRead
		}
	}
	return usage
}

// Buffer is a linear block of GPU memory.
type Buffer struct {
	deviceObject

	typ     BufferType
	profile BufferMemoryProfile
	size    uint64
	buf     hal.Buffer
	mapped  bool
}

// CreateBuffer allocates a buffer of size bytes.
//
// A zero size or an undefined type is rejected before anything is allocated.
//
// Example:
//
//	vb, err := device.CreateBuffer(1024, flint.BufferTypeVertex, flint.BufferMemoryAutomatic)
//	if err != nil {
//	    return err
//	}
//	defer vb.Terminate()
func (d *Device) CreateBuffer(size uint64, typ BufferType, profile BufferMemoryProfile) (*Buffer, error) {
	if err := checkDevice(d, "buffer"); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, invalidArgument("flint: buffer size is zero")
	}
	if typ == BufferTypeUndefined || typ > BufferTypeStorage {
		return nil, invalidArgument("flint: buffer type %d is not valid", typ)
	}
	if profile > BufferMemoryTransferFriendly {
		return nil, invalidArgument("flint: buffer memory profile %d is not valid", profile)
	}

	b := &Buffer{deviceObject: deviceObject{device: d, kind: "buffer"}, typ: typ, profile: profile.resolve(typ), size: size}
	buf, err := d.allocBuffer(typ, b.profile, size)
	if err != nil {
		return nil, err
	}
	b.buf = buf
	d.track(&b.deviceObject, b)
	return b, nil
}

func (d *Device) allocBuffer(typ BufferType, profile BufferMemoryProfile, size uint64) (hal.Buffer, error) {
	buf, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: "flint." + typ.String(),
		Size:  size,
		Usage: bufferUsage(typ, profile),
	})
	if err != nil {
		return nil, backendError(err, "flint: create %s buffer of %d bytes", typ, size)
	}
	return buf, nil
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Type returns the buffer type.
func (b *Buffer) Type() BufferType { return b.typ }

// Profile returns the resolved memory profile.
func (b *Buffer) Profile() BufferMemoryProfile { return b.profile }

// HostVisible reports whether the buffer can be mapped.
func (b *Buffer) HostVisible() bool { return b.profile != BufferMemoryDeviceOnly }

// outOfRange reports whether [offset, offset+size) leaves [0, limit).
// It never computes offset+size, so huge offsets cannot wrap around.
func outOfRange(offset, size, limit uint64) bool {
	return offset > limit || size > limit-offset
}

// Map returns a writable view of size bytes starting at offset.
// The slice is valid until Unmap. A size of zero maps the rest of the buffer.
func (b *Buffer) Map(offset, size uint64) ([]byte, error) {
	if err := b.checkAlive(); err != nil {
		return nil, err
	}
	if !b.HostVisible() {
		return nil, invalidArgument("flint: buffer with %s profile cannot be mapped", b.profile)
	}
	if size == 0 && offset < b.size {
		size = b.size - offset
	}
	if size == 0 || outOfRange(offset, size, b.size) {
		return nil, invalidArgument("flint: map of %d bytes at %d outside buffer of %d bytes", size, offset, b.size)
	}

	m, err := b.device.hal.MapBuffer(b.buf, offset, size)
	if err != nil {
		return nil, backendError(err, "flint: map buffer")
	}
	b.mapped = true
	return unsafe.Slice((*byte)(m.Ptr), size), nil
}

// Unmap ends a mapping started by Map.
func (b *Buffer) Unmap() error {
	if err := b.checkAlive(); err != nil {
		return err
	}
	if !b.mapped {
		return nil
	}
	b.mapped = false
	if err := b.device.hal.UnmapBuffer(b.buf); err != nil {
		return backendError(err, "flint: unmap buffer")
	}
	return nil
}

// Write copies data into the buffer at offset.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if err := b.checkAlive(); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if outOfRange(offset, uint64(len(data)), b.size) {
		return invalidArgument("flint: write of %d bytes at %d overflows buffer of %d bytes", len(data), offset, b.size)
	}
	if b.HostVisible() {
		dst, err := b.Map(offset, uint64(len(data)))
		if err != nil {
			return err
		}
		copy(dst, data)
		return b.Unmap()
	}
	return b.device.writeBuffer(b.buf, offset, data)
}

// CopyFrom copies size bytes from src at srcOffset to b at dstOffset.
func (b *Buffer) CopyFrom(src *Buffer, srcOffset, dstOffset, size uint64) error {
	if err := b.checkAlive(); err != nil {
		return err
	}
	if src == nil {
		return invalidArgument("flint: copy source buffer is nil")
	}
	if err := src.checkAlive(); err != nil {
		return err
	}
	if src.device != b.device {
		return invalidArgument("flint: copy between buffers of different devices")
	}
	if size == 0 {
		return nil
	}
	if outOfRange(srcOffset, size, src.size) || outOfRange(dstOffset, size, b.size) {
		return invalidArgument("flint: copy of %d bytes out of range (src %d/%d, dst %d/%d)",
			size, srcOffset, src.size, dstOffset, b.size)
	}

	if src.HostVisible() && b.HostVisible() {
		return b.copyMapped(src, srcOffset, dstOffset, size)
	}
	return b.device.runOnce("flint.copy", func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(src.buf, b.buf, []hal.BufferCopy{{
			SrcOffset: srcOffset, DstOffset: dstOffset, Size: size,
		}})
	})
}

func (b *Buffer) copyMapped(src *Buffer, srcOffset, dstOffset, size uint64) error {
	from, err := src.Map(srcOffset, size)
	if err != nil {
		return err
	}
	tmp := make([]byte, size)
	copy(tmp, from)
	if err := src.Unmap(); err != nil {
		return err
	}
	return b.Write(dstOffset, tmp)
}

// Resize reallocates the buffer with newSize bytes, keeping the first
// min(old, new) bytes. The handle stays the same.
func (b *Buffer) Resize(newSize uint64) error {
	if err := b.checkAlive(); err != nil {
		return err
	}
	if newSize == 0 {
		return invalidArgument("flint: resize to zero bytes")
	}
	if newSize == b.size {
		return nil
	}

	d := b.device
	buf, err := d.allocBuffer(b.typ, b.profile, newSize)
	if err != nil {
		return err
	}
	keep := min(b.size, newSize)

	old := b.buf
	if b.HostVisible() {
		err = b.moveMapped(old, buf, keep)
	} else {
		err = d.runOnce("flint.resize", func(enc hal.CommandEncoder) {
			enc.CopyBufferToBuffer(old, buf, []hal.BufferCopy{{Size: keep}})
		})
	}
	if err != nil {
		d.hal.DestroyBuffer(buf)
		return err
	}

	d.hal.DestroyBuffer(old)
	b.buf = buf
	b.size = newSize
	b.mapped = false
	return nil
}

func (b *Buffer) moveMapped(from, to hal.Buffer, n uint64) error {
	d := b.device
	src, err := d.hal.MapBuffer(from, 0, n)
	if err != nil {
		return backendError(err, "flint: map buffer for resize")
	}
	defer func() { _ = d.hal.UnmapBuffer(from) }()

	dst, err := d.hal.MapBuffer(to, 0, n)
	if err != nil {
		return backendError(err, "flint: map buffer for resize")
	}
	copy(unsafe.Slice((*byte)(dst.Ptr), n), unsafe.Slice((*byte)(src.Ptr), n))
	if err := d.hal.UnmapBuffer(to); err != nil {
		return backendError(err, "flint: unmap buffer after resize")
	}
	return nil
}

// Terminate releases the GPU buffer. Calling it again is a no-op.
func (b *Buffer) Terminate() error {
	if !b.beginTerminate() {
		return nil
	}
	if b.mapped {
		_ = b.device.hal.UnmapBuffer(b.buf)
	}
	b.device.hal.DestroyBuffer(b.buf)
	b.buf = nil
	return nil
}

// binding returns the HAL buffer for bind groups and draw calls.
func (b *Buffer) binding() hal.Buffer { return b.buf }
