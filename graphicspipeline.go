package flint

import (
	"cmp"
	"math"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// PolygonMode selects how triangles are rasterized.
type PolygonMode uint8

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
	PolygonModePoint
)

// GraphicsShaders is the shader set of a graphics pipeline. Vertex and
// Fragment are required.
type GraphicsShaders struct {
	Vertex                 *Shader
	TessellationControl    *Shader
	TessellationEvaluation *Shader
	Geometry               *Shader
	Fragment               *Shader
}

func (s GraphicsShaders) list() []*Shader {
	out := make([]*Shader, 0, 5)
	for _, sh := range []*Shader{s.Vertex, s.TessellationControl, s.TessellationEvaluation, s.Geometry, s.Fragment} {
		if sh != nil {
			out = append(out, sh)
		}
	}
	return out
}

// GraphicsPipelineSpecification is the fixed-function state of a graphics
// pipeline.
type GraphicsPipelineSpecification struct {
	Topology    gputypes.PrimitiveTopology
	CullMode    gputypes.CullMode
	FrontFace   gputypes.FrontFace
	PolygonMode PolygonMode

	BlendEnable    bool
	Blend          gputypes.BlendState
	BlendConstants [4]float32
	ColorWriteMask gputypes.ColorWriteMask

	DepthTest    bool
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction
	DepthBias    DepthBias

	// SampleCount must match the render target; zero means 1.
	SampleCount uint32

	DynamicStates DynamicStateFlags
}

// DefaultGraphicsPipelineSpecification returns back-face culled, depth
// tested triangle lists with dynamic viewport and scissor.
func DefaultGraphicsPipelineSpecification() GraphicsPipelineSpecification {
	return GraphicsPipelineSpecification{
		Topology:       gputypes.PrimitiveTopologyTriangleList,
		CullMode:       gputypes.CullModeBack,
		FrontFace:      gputypes.FrontFaceCCW,
		PolygonMode:    PolygonModeFill,
		Blend:          gputypes.BlendStateAlpha(),
		ColorWriteMask: gputypes.ColorWriteMaskAll,
		DepthTest:      true,
		DepthWrite:     true,
		DepthCompare:   gputypes.CompareFunctionLess,
		SampleCount:    1,
		DynamicStates:  DynamicStateViewport | DynamicStateScissor,
	}
}

// DrawData is one draw call issued by a graphics pipeline.
type DrawData struct {
	// Packages are bound at their packager's set index before drawing.
	Packages []*ResourcePackage

	// DynamicStates may be nil.
	DynamicStates *DynamicStateContainer

	VertexOffset uint64
	VertexCount  uint64

	// IndexCount of zero draws non-indexed.
	IndexOffset uint64
	IndexCount  uint64
}

type drawEntry struct {
	id   uint64
	data DrawData
}

// GraphicsPipeline draws geometry into a render target.
type GraphicsPipeline struct {
	pipelineBase

	stages GraphicsShaders
	spec   GraphicsPipelineSpecification
	vertex gputypes.VertexBufferLayout

	pipeline hal.RenderPipeline

	drawMu sync.RWMutex
	draws  []drawEntry
}

var _ Pipeline = (*GraphicsPipeline)(nil)

// CreateGraphicsPipeline builds a graphics pipeline for target.
//
// An empty name disables the pipeline cache file. Tessellation and geometry
// stages and non-fill polygon modes fail with ErrBackend: the HAL has no
// equivalent for them.
func (d *Device) CreateGraphicsPipeline(name string, target RenderTarget, shaders GraphicsShaders, spec GraphicsPipelineSpecification) (*GraphicsPipeline, error) {
	if shaders.Vertex == nil || shaders.Fragment == nil {
		return nil, invalidArgument("flint: graphics pipeline %q needs vertex and fragment shaders", name)
	}
	for _, s := range []struct {
		sh   *Shader
		want ShaderType
	}{
		{shaders.Vertex, ShaderTypeVertex},
		{shaders.TessellationControl, ShaderTypeTessellationControl},
		{shaders.TessellationEvaluation, ShaderTypeTessellationEvaluation},
		{shaders.Geometry, ShaderTypeGeometry},
		{shaders.Fragment, ShaderTypeFragment},
	} {
		if s.sh != nil && s.sh.Type() != s.want {
			return nil, invalidArgument("flint: %s shader given in the %s slot", s.sh.Type(), s.want)
		}
	}
	if spec.SampleCount == 0 {
		spec.SampleCount = 1
	}

	p := &GraphicsPipeline{stages: shaders, spec: spec}
	p.self = p
	if err := p.init(d, "graphics pipeline", name, target, shaders.list()); err != nil {
		return nil, err
	}
	rt := target.base()
	if spec.SampleCount != rt.samples {
		return nil, invalidArgument("flint: pipeline sample count %d does not match render target (%d)", spec.SampleCount, rt.samples)
	}
	if shaders.TessellationControl != nil || shaders.TessellationEvaluation != nil || shaders.Geometry != nil {
		return nil, backendError(nil, "flint: pipeline %q: tessellation and geometry stages are not supported by the backend", name)
	}
	if spec.PolygonMode != PolygonModeFill {
		return nil, backendError(nil, "flint: pipeline %q: polygon mode %d is not supported by the backend", name, spec.PolygonMode)
	}

	inputs := slices.Clone(shaders.Vertex.desc.Inputs)
	slices.SortFunc(inputs, func(a, b ShaderAttribute) int { return cmp.Compare(a.Location, b.Location) })
	if len(inputs) > 0 {
		layout, err := vertexLayout(inputs)
		if err != nil {
			return nil, err
		}
		p.vertex = layout
	}

	p.loadCache()
	if err := p.createLayouts(); err != nil {
		return nil, err
	}
	if err := p.build(rt); err != nil {
		p.destroyLayouts()
		return nil, err
	}
	d.track(&p.deviceObject, p)
	return p, nil
}

func (p *GraphicsPipeline) build(rt *renderTarget) error {
	spec := p.spec
	target := gputypes.ColorTargetState{
		Format:    rt.colorFormat,
		WriteMask: spec.ColorWriteMask,
	}
	if spec.BlendEnable {
		blend := spec.Blend
		target.Blend = &blend
	}

	var depth *hal.DepthStencilState
	if rt.depthFormat != PixelFormatUndefined {
		compare := spec.DepthCompare
		if !spec.DepthTest {
			compare = gputypes.CompareFunctionAlways
		}
		depth = &hal.DepthStencilState{
			Format:              rt.depthFormat.TextureFormat(),
			DepthWriteEnabled:   spec.DepthTest && spec.DepthWrite,
			DepthCompare:        compare,
			StencilFront:        hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
			StencilBack:         hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
			DepthBias:           int32(spec.DepthBias.Constant),
			DepthBiasSlopeScale: spec.DepthBias.Slope,
			DepthBiasClamp:      spec.DepthBias.Clamp,
		}
	}

	var buffers []gputypes.VertexBufferLayout
	if len(p.vertex.Attributes) > 0 {
		buffers = []gputypes.VertexBufferLayout{p.vertex}
	}

	ms := gputypes.DefaultMultisampleState()
	ms.Count = spec.SampleCount

	pipeline, err := p.device.hal.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  p.label("render"),
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     p.stages.Vertex.module,
			EntryPoint: p.stages.Vertex.EntryPoint(),
			Buffers:    buffers,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  spec.Topology,
			FrontFace: spec.FrontFace,
			CullMode:  spec.CullMode,
		},
		DepthStencil: depth,
		Multisample:  ms,
		Fragment: &hal.FragmentState{
			Module:     p.stages.Fragment.module,
			EntryPoint: p.stages.Fragment.EntryPoint(),
			Targets:    []gputypes.ColorTargetState{target},
		},
	})
	if err != nil {
		return backendError(err, "flint: create render pipeline %q", p.name)
	}
	p.pipeline = pipeline
	return nil
}

// Specification returns the fixed-function state.
func (p *GraphicsPipeline) Specification() GraphicsPipelineSpecification { return p.spec }

// VertexLayout returns the layout derived from the vertex shader inputs.
func (p *GraphicsPipeline) VertexLayout() gputypes.VertexBufferLayout { return p.vertex }

// AddDrawData registers a draw call and returns its identifier.
func (p *GraphicsPipeline) AddDrawData(data DrawData) (uint64, error) {
	if err := p.checkAlive(); err != nil {
		return 0, err
	}
	if data.VertexCount == 0 && data.IndexCount == 0 {
		return 0, invalidArgument("flint: draw data of %q has no vertices or indices", p.name)
	}
	if data.VertexCount > math.MaxUint32 || data.IndexCount > math.MaxUint32 || data.IndexOffset > math.MaxUint32 {
		return 0, invalidArgument("flint: draw data of %q does not fit 32-bit draw arguments", p.name)
	}
	// Indexed draws take the vertex offset as a signed base vertex.
	maxVertexOffset := uint64(math.MaxUint32)
	if data.IndexCount > 0 {
		maxVertexOffset = math.MaxInt32
	}
	if data.VertexOffset > maxVertexOffset {
		return 0, invalidArgument("flint: draw data of %q has vertex offset %d above %d", p.name, data.VertexOffset, maxVertexOffset)
	}
	for _, pkg := range data.Packages {
		if pkg == nil {
			return 0, invalidArgument("flint: draw data of %q has a nil package", p.name)
		}
		if pkg.packager.pipeline != &p.pipelineBase {
			return 0, invalidArgument("flint: package was issued by another pipeline")
		}
	}
	data.Packages = slices.Clone(data.Packages)

	p.drawMu.Lock()
	defer p.drawMu.Unlock()
	id := p.allocID()
	p.draws = append(p.draws, drawEntry{id: id, data: data})
	return id, nil
}

// RemoveDrawData removes the draw call id. It reports whether it existed.
func (p *GraphicsPipeline) RemoveDrawData(id uint64) bool {
	p.drawMu.Lock()
	defer p.drawMu.Unlock()
	for i, e := range p.draws {
		if e.id == id {
			p.draws = slices.Delete(p.draws, i, i+1)
			return true
		}
	}
	return false
}

// ClearDrawData removes all draw calls.
func (p *GraphicsPipeline) ClearDrawData() {
	p.drawMu.Lock()
	p.draws = nil
	p.drawMu.Unlock()
}

// DrawDataCount returns the number of registered draw calls.
func (p *GraphicsPipeline) DrawDataCount() int {
	p.drawMu.RLock()
	defer p.drawMu.RUnlock()
	return len(p.draws)
}

// packages calls fn for every package referenced by the draw calls.
func (p *GraphicsPipeline) packages(fn func(*ResourcePackage) error) error {
	p.drawMu.RLock()
	defer p.drawMu.RUnlock()
	for _, e := range p.draws {
		for _, pkg := range e.data.Packages {
			if err := fn(pkg); err != nil {
				return err
			}
		}
	}
	return nil
}

// record draws every registered call with geometry from store and returns
// the number of draw calls recorded.
func (p *GraphicsPipeline) record(pass hal.RenderPassEncoder, store *GeometryStore) int {
	p.drawMu.RLock()
	defer p.drawMu.RUnlock()
	if len(p.draws) == 0 {
		return 0
	}

	pass.SetPipeline(p.pipeline)
	if p.spec.BlendEnable && p.spec.DynamicStates&DynamicStateBlendConstants == 0 {
		c := p.spec.BlendConstants
		pass.SetBlendConstant(&gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])})
	}
	store.bind(pass)

	for _, e := range p.draws {
		for _, pkg := range e.data.Packages {
			pass.SetBindGroup(pkg.set, pkg.group, nil)
		}
		e.data.DynamicStates.apply(pass, p.spec.DynamicStates)

		d := e.data
		if d.IndexCount > 0 {
			pass.DrawIndexed(uint32(d.IndexCount), 1, uint32(d.IndexOffset), int32(d.VertexOffset), 0)
		} else {
			pass.Draw(uint32(d.VertexCount), 1, uint32(d.VertexOffset), 0)
		}
	}
	return len(p.draws)
}

// Terminate writes the cache file, removes the pipeline from its render
// target and releases it. The cache write error, if any, is returned after
// everything is released.
func (p *GraphicsPipeline) Terminate() error {
	if !p.beginTerminate() {
		return nil
	}
	p.target.base().forgetPipeline(p)
	err := p.terminate()
	p.device.hal.DestroyRenderPipeline(p.pipeline)
	p.pipeline = nil
	return err
}
