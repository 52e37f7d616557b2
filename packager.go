package flint

import (
	"slices"
)

// ResourcePackager issues ResourcePackages for one bind group set of a
// pipeline. It splits the set's declared bindings into buffer bindings and
// image bindings.
type ResourcePackager struct {
	set      uint32
	pipeline *pipelineBase
	types    map[uint32]ShaderResourceType
	buffers  []uint32
	images   []uint32
}

// NewResourcePackager creates a packager for set of pipeline.
// Pipeline.CreateResourcePackager returns a shared packager per set and is
// usually preferred.
func NewResourcePackager(set uint32, pipeline Pipeline) (*ResourcePackager, error) {
	base, err := pipelineOf(pipeline)
	if err != nil {
		return nil, err
	}
	if err := base.checkAlive(); err != nil {
		return nil, err
	}
	return newPackager(set, base)
}

// pipelineOf unwraps a Pipeline, rejecting nil interfaces and typed nil
// pointers alike.
func pipelineOf(p Pipeline) (*pipelineBase, error) {
	switch v := p.(type) {
	case nil:
		return nil, invalidArgument("flint: resource packager pipeline is nil")
	case *GraphicsPipeline:
		if v == nil {
			return nil, invalidArgument("flint: resource packager pipeline is nil")
		}
	case *ComputePipeline:
		if v == nil {
			return nil, invalidArgument("flint: resource packager pipeline is nil")
		}
	}
	return p.base(), nil
}

func newPackager(set uint32, p *pipelineBase) (*ResourcePackager, error) {
	declared, ok := p.resources[set]
	if !ok {
		return nil, invalidArgument("flint: pipeline %q declares no bindings in set %d", p.name, set)
	}

	rp := &ResourcePackager{
		set:      set,
		pipeline: p,
		types:    make(map[uint32]ShaderResourceType, len(declared)),
	}
	for binding, typ := range declared {
		rp.types[binding] = typ
		if typ.IsImage() {
			rp.images = append(rp.images, binding)
		} else {
			rp.buffers = append(rp.buffers, binding)
		}
	}
	slices.Sort(rp.buffers)
	slices.Sort(rp.images)
	return rp, nil
}

// Set returns the bind group set index.
func (rp *ResourcePackager) Set() uint32 { return rp.set }

// Pipeline returns the owning pipeline.
func (rp *ResourcePackager) Pipeline() Pipeline { return rp.pipeline.self }

// BufferBindings returns the declared buffer binding indices.
func (rp *ResourcePackager) BufferBindings() []uint32 { return slices.Clone(rp.buffers) }

// ImageBindings returns the declared image binding indices.
func (rp *ResourcePackager) ImageBindings() []uint32 { return slices.Clone(rp.images) }

// ResourceType returns the declared type of binding.
func (rp *ResourcePackager) ResourceType(binding uint32) (ShaderResourceType, bool) {
	t, ok := rp.types[binding]
	return t, ok
}

// CreatePackage returns a package with an empty list for every declared
// binding.
func (rp *ResourcePackager) CreatePackage() (*ResourcePackage, error) {
	return rp.CreatePackageWith(rp.buffers, rp.images)
}

// CreatePackageWith returns a package declaring only the given buffer and
// image bindings. Each must be declared by the pipeline with the matching
// kind.
//
// A bind group needs every binding of the set, so PrepareIfNecessary fails
// on a package that leaves some out. Such packages only collect bindings.
func (rp *ResourcePackager) CreatePackageWith(buffers, images []uint32) (*ResourcePackage, error) {
	p := rp.pipeline
	if err := p.checkAlive(); err != nil {
		return nil, err
	}
	for _, b := range buffers {
		if t, ok := rp.types[b]; !ok || t.IsImage() {
			return nil, invalidArgument("flint: set %d binding %d is not a declared buffer binding", rp.set, b)
		}
	}
	for _, b := range images {
		if t, ok := rp.types[b]; !ok || !t.IsImage() {
			return nil, invalidArgument("flint: set %d binding %d is not a declared image binding", rp.set, b)
		}
	}
	return newPackage(rp, buffers, images)
}
