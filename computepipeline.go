package flint

import (
	"slices"
	"sync"

	"github.com/gogpu/wgpu/hal"
)

// ComputeInstance is one dispatch issued by a compute pipeline.
type ComputeInstance struct {
	Packages []*ResourcePackage
	Groups   [3]uint32
}

type computeEntry struct {
	id       uint64
	instance ComputeInstance
}

// ComputePipeline dispatches a compute shader. Its instances run in the
// primary command buffer of the render target before any graphics work.
type ComputePipeline struct {
	pipelineBase

	shader   *Shader
	pipeline hal.ComputePipeline

	mu        sync.RWMutex
	instances []computeEntry
}

var _ Pipeline = (*ComputePipeline)(nil)

// CreateComputePipeline builds a compute pipeline. An empty name disables
// the pipeline cache file.
func (d *Device) CreateComputePipeline(name string, target RenderTarget, shader *Shader) (*ComputePipeline, error) {
	if shader == nil {
		return nil, invalidArgument("flint: compute pipeline %q needs a compute shader", name)
	}
	if shader.Type() != ShaderTypeCompute {
		return nil, invalidArgument("flint: compute pipeline %q given a %s shader", name, shader.Type())
	}

	p := &ComputePipeline{shader: shader}
	p.self = p
	if err := p.init(d, "compute pipeline", name, target, []*Shader{shader}); err != nil {
		return nil, err
	}
	p.loadCache()
	if err := p.createLayouts(); err != nil {
		return nil, err
	}

	pipeline, err := d.hal.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  p.label("compute"),
		Layout: p.layout,
		Compute: hal.ComputeState{
			Module:     shader.module,
			EntryPoint: shader.EntryPoint(),
		},
	})
	if err != nil {
		p.destroyLayouts()
		return nil, backendError(err, "flint: create compute pipeline %q", name)
	}
	p.pipeline = pipeline
	d.track(&p.deviceObject, p)
	return p, nil
}

// Shader returns the compute shader.
func (p *ComputePipeline) Shader() *Shader { return p.shader }

// AddInstance registers a dispatch of groups workgroups and returns its
// identifier.
func (p *ComputePipeline) AddInstance(groups [3]uint32, packages ...*ResourcePackage) (uint64, error) {
	if err := p.checkAlive(); err != nil {
		return 0, err
	}
	if groups[0] == 0 || groups[1] == 0 || groups[2] == 0 {
		return 0, invalidArgument("flint: compute instance of %q has a zero group count %v", p.name, groups)
	}
	for _, pkg := range packages {
		if pkg == nil {
			return 0, invalidArgument("flint: compute instance of %q has a nil package", p.name)
		}
		if pkg.packager.pipeline != &p.pipelineBase {
			return 0, invalidArgument("flint: package was issued by another pipeline")
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.allocID()
	p.instances = append(p.instances, computeEntry{
		id:       id,
		instance: ComputeInstance{Packages: slices.Clone(packages), Groups: groups},
	})
	return id, nil
}

// RemoveInstance removes the dispatch id. It reports whether it existed.
func (p *ComputePipeline) RemoveInstance(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.instances {
		if e.id == id {
			p.instances = slices.Delete(p.instances, i, i+1)
			return true
		}
	}
	return false
}

// ClearInstances removes all dispatches.
func (p *ComputePipeline) ClearInstances() {
	p.mu.Lock()
	p.instances = nil
	p.mu.Unlock()
}

// InstanceCount returns the number of registered dispatches.
func (p *ComputePipeline) InstanceCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.instances)
}

func (p *ComputePipeline) packages(fn func(*ResourcePackage) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.instances {
		for _, pkg := range e.instance.Packages {
			if err := fn(pkg); err != nil {
				return err
			}
		}
	}
	return nil
}

// record dispatches every instance and returns how many were recorded.
func (p *ComputePipeline) record(pass hal.ComputePassEncoder) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.instances) == 0 {
		return 0
	}
	pass.SetPipeline(p.pipeline)
	for _, e := range p.instances {
		for _, pkg := range e.instance.Packages {
			pass.SetBindGroup(pkg.set, pkg.group, nil)
		}
		g := e.instance.Groups
		pass.Dispatch(g[0], g[1], g[2])
	}
	return len(p.instances)
}

// Terminate writes the cache file, removes the pipeline from its render
// target and releases it.
func (p *ComputePipeline) Terminate() error {
	if !p.beginTerminate() {
		return nil
	}
	p.target.base().forgetCompute(p)
	err := p.terminate()
	p.device.hal.DestroyComputePipeline(p.pipeline)
	p.pipeline = nil
	return err
}
