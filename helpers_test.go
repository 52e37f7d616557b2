package flint

import (
	"testing"

	_ "github.com/gogpu/wgpu/hal/noop"
)

// spirvMagic is a stand-in shader body. The noop backend accepts any code.
var spirvMagic = []uint32{0x07230203, 0x00010300, 0, 1, 0}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Backend = "empty"
	cfg.CacheDirectory = t.TempDir()
	return cfg
}

func newTestInstance(t *testing.T) *Instance {
	t.Helper()
	inst, err := NewInstance(testConfig(t))
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	t.Cleanup(func() {
		if err := inst.Terminate(); err != nil {
			t.Errorf("Instance.Terminate: %v", err)
		}
	})
	return inst
}

// newTestDevice opens a device on the noop backend. Objects created later
// in the test must be terminated by their own cleanups, which run first.
func newTestDevice(t *testing.T) *Device {
	t.Helper()
	inst := newTestInstance(t)
	d, err := inst.CreateDevice()
	if err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Terminate(); err != nil {
			t.Errorf("Device.Terminate: %v", err)
		}
	})
	return d
}

// terminate registers obj.Terminate as a test cleanup.
func terminate(t *testing.T, obj DeviceBoundObject) {
	t.Helper()
	t.Cleanup(func() {
		if err := obj.Terminate(); err != nil {
			t.Errorf("%T.Terminate: %v", obj, err)
		}
	})
}

func newTestShader(t *testing.T, d *Device, typ ShaderType, res ShaderResources, inputs ...ShaderAttribute) *Shader {
	t.Helper()
	s, err := d.CreateShader(ShaderDescriptor{
		Label:     typ.String(),
		Type:      typ,
		Code:      spirvMagic,
		Resources: res,
		Inputs:    inputs,
	})
	if err != nil {
		t.Fatalf("CreateShader(%s): %v", typ, err)
	}
	terminate(t, s)
	return s
}

func newTestTarget(t *testing.T, d *Device, extent Extent2D, buffers uint32, threads int, opts ...RenderTargetOption) *OffScreenRenderTarget {
	t.Helper()
	cmds, err := d.CreateCommandBufferList(buffers)
	if err != nil {
		t.Fatalf("CreateCommandBufferList: %v", err)
	}
	terminate(t, cmds)
	rt, err := d.CreateOffScreenRenderTarget(extent, buffers, cmds, threads, opts...)
	if err != nil {
		t.Fatalf("CreateOffScreenRenderTarget: %v", err)
	}
	terminate(t, rt)
	return rt
}

var testAttributes = []ShaderAttribute{
	{Name: "position", Location: 0, Size: 12},
	{Name: "uv", Location: 1, Size: 8},
}

// uniformAndTexture declares a uniform buffer at binding 0 and a sampled
// image plus sampler at bindings 1 and 2 of set 0.
var uniformAndTexture = ShaderResources{
	0: {
		0: ShaderResourceUniformBuffer,
		1: ShaderResourceSampledImage,
		2: ShaderResourceSampler,
	},
}

func newTestPipeline(t *testing.T, d *Device, name string, rt RenderTarget) *GraphicsPipeline {
	t.Helper()
	vs := newTestShader(t, d, ShaderTypeVertex, uniformAndTexture, testAttributes...)
	fs := newTestShader(t, d, ShaderTypeFragment, ShaderResources{0: {1: ShaderResourceSampledImage, 2: ShaderResourceSampler}})
	p, err := d.CreateGraphicsPipeline(name, rt, GraphicsShaders{Vertex: vs, Fragment: fs}, DefaultGraphicsPipelineSpecification())
	if err != nil {
		t.Fatalf("CreateGraphicsPipeline(%q): %v", name, err)
	}
	terminate(t, p)
	return p
}

func newTestStore(t *testing.T, d *Device) *GeometryStore {
	t.Helper()
	g, err := d.CreateGeometryStore(testAttributes, 4, BufferMemoryAutomatic)
	if err != nil {
		t.Fatalf("CreateGeometryStore: %v", err)
	}
	terminate(t, g)
	return g
}
