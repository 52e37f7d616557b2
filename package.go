package flint

import (
	"cmp"
	"slices"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// BufferBinding is a buffer bound at a byte offset.
type BufferBinding struct {
	Buffer *Buffer
	Offset uint64
}

// ImageBinding is an image bound through an optional view and sampler.
type ImageBinding struct {
	Image   *Image
	View    *ImageView
	Sampler *ImageSampler
	Usage   ImageUsage
}

// ResourcePackage holds the resources bound to one bind group of a
// pipeline. Every binding holds an ordered list so binding arrays can be
// expressed; the bind group uses the first entry of each list.
//
// The package is dirty after every successful bind or clear. The render
// target rebuilds the bind group of dirty packages before recording.
type ResourcePackage struct {
	deviceObject

	packager *ResourcePackager
	set      uint32

	buffers map[uint32][]BufferBinding
	images  map[uint32][]ImageBinding

	dirty atomic.Bool
	group hal.BindGroup
}

func newPackage(rp *ResourcePackager, buffers, images []uint32) (*ResourcePackage, error) {
	d := rp.pipeline.device
	if err := checkDevice(d, "resource package"); err != nil {
		return nil, err
	}
	pkg := &ResourcePackage{
		deviceObject: deviceObject{device: d, kind: "resource package"},
		packager:     rp,
		set:          rp.set,
		buffers:      make(map[uint32][]BufferBinding, len(buffers)),
		images:       make(map[uint32][]ImageBinding, len(images)),
	}
	for _, b := range buffers {
		pkg.buffers[b] = nil
	}
	for _, b := range images {
		pkg.images[b] = nil
	}
	d.track(&pkg.deviceObject, pkg)
	return pkg, nil
}

// Packager returns the packager that issued the package.
func (pkg *ResourcePackage) Packager() *ResourcePackager { return pkg.packager }

// Set returns the bind group set index.
func (pkg *ResourcePackage) Set() uint32 { return pkg.set }

// IsDirty reports whether the bind group must be rebuilt.
func (pkg *ResourcePackage) IsDirty() bool { return pkg.dirty.Load() }

// BindBuffer appends buf at offset to binding.
func (pkg *ResourcePackage) BindBuffer(binding uint32, buf *Buffer, offset uint64) error {
	if err := pkg.checkAlive(); err != nil {
		return err
	}
	list, ok := pkg.buffers[binding]
	if !ok {
		return invalidArgument("flint: set %d binding %d is not a buffer binding of this package", pkg.set, binding)
	}
	if buf == nil {
		return invalidArgument("flint: set %d binding %d: buffer is nil", pkg.set, binding)
	}
	if err := buf.checkAlive(); err != nil {
		return err
	}
	if buf.device != pkg.device {
		return invalidArgument("flint: buffer belongs to a different device")
	}
	if offset >= buf.Size() {
		return invalidArgument("flint: binding offset %d outside buffer of %d bytes", offset, buf.Size())
	}

	pkg.buffers[binding] = append(list, BufferBinding{Buffer: buf, Offset: offset})
	pkg.dirty.Store(true)
	return nil
}

// BindImage appends an image binding to binding. view and sampler may be nil
// when the declared resource type does not need them.
func (pkg *ResourcePackage) BindImage(binding uint32, img *Image, view *ImageView, sampler *ImageSampler, usage ImageUsage) error {
	if err := pkg.checkAlive(); err != nil {
		return err
	}
	list, ok := pkg.images[binding]
	if !ok {
		return invalidArgument("flint: set %d binding %d is not an image binding of this package", pkg.set, binding)
	}
	typ := pkg.packager.types[binding]
	switch typ {
	case ShaderResourceSampler:
		if sampler == nil {
			return invalidArgument("flint: set %d binding %d needs a sampler", pkg.set, binding)
		}
	case ShaderResourceCombinedImageSampler:
		if img == nil || sampler == nil {
			return invalidArgument("flint: set %d binding %d needs an image and a sampler", pkg.set, binding)
		}
	default:
		if img == nil {
			return invalidArgument("flint: set %d binding %d needs an image", pkg.set, binding)
		}
	}
	for _, obj := range []*deviceObject{objectOf(img), objectOf(view), objectOf(sampler)} {
		if obj == nil {
			continue
		}
		if err := obj.checkAlive(); err != nil {
			return err
		}
		if obj.device != pkg.device {
			return invalidArgument("flint: %s belongs to a different device", obj.kind)
		}
	}
	if view != nil && view.image != img {
		return invalidArgument("flint: image view does not belong to the bound image")
	}

	pkg.images[binding] = append(list, ImageBinding{Image: img, View: view, Sampler: sampler, Usage: usage})
	pkg.dirty.Store(true)
	return nil
}

// objectOf returns the embedded deviceObject of a resource, or nil.
func objectOf[T interface {
	*Image | *ImageView | *ImageSampler
}](v T) *deviceObject {
	switch r := any(v).(type) {
	case *Image:
		if r != nil {
			return &r.deviceObject
		}
	case *ImageView:
		if r != nil {
			return &r.deviceObject
		}
	case *ImageSampler:
		if r != nil {
			return &r.deviceObject
		}
	}
	return nil
}

// ClearBufferResources empties every buffer binding list, keeping the
// declared bindings.
func (pkg *ResourcePackage) ClearBufferResources() {
	for b := range pkg.buffers {
		pkg.buffers[b] = nil
	}
	pkg.dirty.Store(true)
}

// ClearImageResources empties every image binding list, keeping the
// declared bindings.
func (pkg *ResourcePackage) ClearImageResources() {
	for b := range pkg.images {
		pkg.images[b] = nil
	}
	pkg.dirty.Store(true)
}

// BufferBindings returns the ordered list bound at binding.
func (pkg *ResourcePackage) BufferBindings(binding uint32) ([]BufferBinding, error) {
	list, ok := pkg.buffers[binding]
	if !ok {
		return nil, invalidArgument("flint: set %d binding %d is not a buffer binding of this package", pkg.set, binding)
	}
	return slices.Clone(list), nil
}

// ImageBindings returns the ordered list bound at binding.
func (pkg *ResourcePackage) ImageBindings(binding uint32) ([]ImageBinding, error) {
	list, ok := pkg.images[binding]
	if !ok {
		return nil, invalidArgument("flint: set %d binding %d is not an image binding of this package", pkg.set, binding)
	}
	return slices.Clone(list), nil
}

// PrepareIfNecessary rebuilds the bind group when the package is dirty and
// clears the dirty flag. Every binding of the set must have a resource.
func (pkg *ResourcePackage) PrepareIfNecessary() error {
	if err := pkg.checkAlive(); err != nil {
		return err
	}
	if !pkg.dirty.Load() && pkg.group != nil {
		return nil
	}

	rp := pkg.packager
	entries := make([]gputypes.BindGroupEntry, 0, len(rp.types))
	for _, b := range rp.buffers {
		list, declared := pkg.buffers[b]
		if !declared {
			return invalidArgument("flint: set %d binding %d is not part of this package; a bind group needs every binding of the set", pkg.set, b)
		}
		if len(list) == 0 {
			return invalidArgument("flint: set %d buffer binding %d has no resource", pkg.set, b)
		}
		bb := list[0]
		if err := bb.Buffer.checkAlive(); err != nil {
			return err
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: b,
			Resource: gputypes.BufferBinding{
				Buffer: bb.Buffer.binding().NativeHandle(),
				Offset: bb.Offset,
				Size:   bb.Buffer.Size() - bb.Offset,
			},
		})
	}
	for _, b := range rp.images {
		list, declared := pkg.images[b]
		if !declared {
			return invalidArgument("flint: set %d binding %d is not part of this package; a bind group needs every binding of the set", pkg.set, b)
		}
		if len(list) == 0 {
			return invalidArgument("flint: set %d image binding %d has no resource", pkg.set, b)
		}
		entry, err := imageEntry(b, rp.types[b], list[0])
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b gputypes.BindGroupEntry) int { return cmp.Compare(a.Binding, b.Binding) })

	d := pkg.device
	group, err := d.hal.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   pkg.packager.pipeline.label("group"),
		Layout:  pkg.packager.pipeline.groupLayout(pkg.set),
		Entries: entries,
	})
	if err != nil {
		return backendError(err, "flint: create bind group for set %d", pkg.set)
	}
	if pkg.group != nil {
		d.hal.DestroyBindGroup(pkg.group)
	}
	pkg.group = group
	pkg.dirty.Store(false)
	return nil
}

func imageEntry(binding uint32, typ ShaderResourceType, ib ImageBinding) (gputypes.BindGroupEntry, error) {
	for _, obj := range []*deviceObject{objectOf(ib.Image), objectOf(ib.View), objectOf(ib.Sampler)} {
		if obj != nil {
			if err := obj.checkAlive(); err != nil {
				return gputypes.BindGroupEntry{}, err
			}
		}
	}
	if typ == ShaderResourceSampler {
		return gputypes.BindGroupEntry{
			Binding:  binding,
			Resource: gputypes.SamplerBinding{Sampler: ib.Sampler.sampler.NativeHandle()},
		}, nil
	}
	view := ib.Image.view
	if ib.View != nil {
		view = ib.View.view
	}
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()},
	}, nil
}

// Terminate releases the bind group. Bound resources are not affected.
func (pkg *ResourcePackage) Terminate() error {
	if !pkg.beginTerminate() {
		return nil
	}
	if pkg.group != nil {
		pkg.device.hal.DestroyBindGroup(pkg.group)
		pkg.group = nil
	}
	return nil
}
