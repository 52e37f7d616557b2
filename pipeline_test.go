package flint

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
)

// newDeviceWithConfig opens a noop device from cfg.
func newDeviceWithConfig(t *testing.T, cfg Config) *Device {
	t.Helper()
	inst, err := NewInstance(cfg)
	if err != nil {
		t.Fatal(err)
	}
	d, err := inst.CreateDevice()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := d.Terminate(); err != nil {
			t.Errorf("Device.Terminate: %v", err)
		}
		if err := inst.Terminate(); err != nil {
			t.Errorf("Instance.Terminate: %v", err)
		}
	})
	return d
}

func TestPipelineCache_RoundTrip(t *testing.T) {
	d := newTestDevice(t)
	rt := newTestTarget(t, d, extent800x600, 1, 1)
	p := newTestPipeline(t, d, "roundtrip", rt)

	want := filepath.Join(d.Config().CacheDirectory, "roundtrip."+DefaultCacheExtension)
	if p.CachePath() != want {
		t.Fatalf("CachePath() = %q, want %q", p.CachePath(), want)
	}

	got, err := p.ReadCache()
	if err != nil || got != nil {
		t.Fatalf("ReadCache() before write = %v, %v; want nil, nil", got, err)
	}

	if err := p.WriteCache([]byte("first blob")); err != nil {
		t.Fatalf("WriteCache: %v", err)
	}
	if err := p.WriteCache([]byte("second")); err != nil {
		t.Fatalf("WriteCache: %v", err)
	}
	got, err = p.ReadCache()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("ReadCache() = %q, want the truncated second write", got)
	}
	if n := d.pipelineBlobs.Len(); n != 1 {
		t.Errorf("blob cache holds %d versions, want only the latest", n)
	}
	if st := d.pipelineBlobs.Stats(); st.Hits != 1 || st.Misses != 0 {
		t.Errorf("blob cache stats = %+v, want one hit and no misses", st)
	}

	// The caller owns the returned slice.
	got[0] = 'X'
	again, _ := p.ReadCache()
	if string(again) != "second" {
		t.Errorf("ReadCache() after caller mutation = %q", again)
	}

	// A file changed behind the pipeline is reread.
	if err := os.WriteFile(p.CachePath(), []byte("external edit"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = p.ReadCache()
	if err != nil || string(got) != "external edit" {
		t.Errorf("ReadCache() after external write = %q, %v", got, err)
	}
}

func TestPipelineCache_WrittenOnTerminate(t *testing.T) {
	d := newTestDevice(t)
	rt := newTestTarget(t, d, extent800x600, 1, 1)
	vs := newTestShader(t, d, ShaderTypeVertex, nil, testAttributes...)
	fs := newTestShader(t, d, ShaderTypeFragment, nil)

	p, err := d.CreateGraphicsPipeline("persisted", rt, GraphicsShaders{Vertex: vs, Fragment: fs}, DefaultGraphicsPipelineSpecification())
	if err != nil {
		t.Fatal(err)
	}
	path := p.CachePath()
	if err := p.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cache file missing after Terminate: %v", err)
	}
	if !bytes.Equal(data, p.cacheBlob()) {
		t.Errorf("cache file holds %d bytes, want the %d byte shader blob", len(data), len(p.cacheBlob()))
	}
	if len(data) != 2*len(spirvMagic)*4 {
		t.Errorf("cache blob is %d bytes, want %d", len(data), 2*len(spirvMagic)*4)
	}
}

func TestPipelineCache_Unnamed(t *testing.T) {
	d := newTestDevice(t)
	rt := newTestTarget(t, d, extent800x600, 1, 1)
	p := newTestPipeline(t, d, "", rt)

	if p.CachePath() != "" {
		t.Errorf("CachePath() = %q, want empty", p.CachePath())
	}
	if err := p.WriteCache([]byte("ignored")); err != nil {
		t.Errorf("WriteCache() = %v", err)
	}
	if data, err := p.ReadCache(); data != nil || err != nil {
		t.Errorf("ReadCache() = %v, %v", data, err)
	}
	entries, err := os.ReadDir(d.Config().CacheDirectory)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("unnamed pipeline wrote %d files", len(entries))
	}
}

func TestPipelineCache_OpenFailure(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.CacheDirectory, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.CacheDirectory = filepath.Join(blocker, "pipelines")
	d := newDeviceWithConfig(t, cfg)
	rt := newTestTarget(t, d, extent800x600, 1, 1)

	vs := newTestShader(t, d, ShaderTypeVertex, nil, testAttributes...)
	fs := newTestShader(t, d, ShaderTypeFragment, nil)
	p, err := d.CreateGraphicsPipeline("blocked", rt, GraphicsShaders{Vertex: vs, Fragment: fs}, DefaultGraphicsPipelineSpecification())
	if err != nil {
		t.Fatalf("CreateGraphicsPipeline with an unusable cache directory: %v", err)
	}

	if err := p.WriteCache([]byte("x")); err == nil {
		t.Error("WriteCache() succeeded under a regular file")
	}
	if err := p.Terminate(); err == nil {
		t.Error("Terminate() did not report the cache write failure")
	}
	if !p.IsTerminated() {
		t.Error("pipeline not terminated after a cache write failure")
	}
}

func TestCreateGraphicsPipeline_Validation(t *testing.T) {
	d := newTestDevice(t)
	rt := newTestTarget(t, d, extent800x600, 1, 1)
	vs := newTestShader(t, d, ShaderTypeVertex, nil, testAttributes...)
	fs := newTestShader(t, d, ShaderTypeFragment, nil)
	gs := newTestShader(t, d, ShaderTypeGeometry, nil)
	spec := DefaultGraphicsPipelineSpecification()
	multisampled := func(s GraphicsPipelineSpecification) GraphicsPipelineSpecification {
		s.SampleCount = 4
		return s
	}
	linePolygons := func(s GraphicsPipelineSpecification) GraphicsPipelineSpecification {
		s.PolygonMode = PolygonModeLine
		return s
	}

	tests := []struct {
		name    string
		pname   string
		target  RenderTarget
		shaders GraphicsShaders
		spec    func(GraphicsPipelineSpecification) GraphicsPipelineSpecification
		want    error
	}{
		{"no fragment", "a", rt, GraphicsShaders{Vertex: vs}, nil, ErrInvalidArgument},
		{"swapped stages", "a", rt, GraphicsShaders{Vertex: fs, Fragment: vs}, nil, ErrInvalidArgument},
		{"no target", "a", nil, GraphicsShaders{Vertex: vs, Fragment: fs}, nil, ErrInvalidArgument},
		{"path in name", "dir/name", rt, GraphicsShaders{Vertex: vs, Fragment: fs}, nil, ErrInvalidArgument},
		{"dot name", "..", rt, GraphicsShaders{Vertex: vs, Fragment: fs}, nil, ErrInvalidArgument},
		{"sample mismatch", "a", rt, GraphicsShaders{Vertex: vs, Fragment: fs}, multisampled, ErrInvalidArgument},
		{"geometry stage", "a", rt, GraphicsShaders{Vertex: vs, Geometry: gs, Fragment: fs}, nil, ErrBackend},
		{"line polygons", "a", rt, GraphicsShaders{Vertex: vs, Fragment: fs}, linePolygons, ErrBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := spec
			if tt.spec != nil {
				s = tt.spec(s)
			}
			before := d.LiveObjects()
			_, err := d.CreateGraphicsPipeline(tt.pname, tt.target, tt.shaders, s)
			if !errors.Is(err, tt.want) {
				t.Fatalf("CreateGraphicsPipeline() = %v, want %v", err, tt.want)
			}
			if d.LiveObjects() != before {
				t.Errorf("LiveObjects() = %d, want %d", d.LiveObjects(), before)
			}
		})
	}
}

func TestCreateGraphicsPipeline_ResourceConflict(t *testing.T) {
	d := newTestDevice(t)
	rt := newTestTarget(t, d, extent800x600, 1, 1)
	vs := newTestShader(t, d, ShaderTypeVertex, ShaderResources{0: {0: ShaderResourceUniformBuffer}}, testAttributes...)
	fs := newTestShader(t, d, ShaderTypeFragment, ShaderResources{0: {0: ShaderResourceStorageBuffer}})

	_, err := d.CreateGraphicsPipeline("conflict", rt, GraphicsShaders{Vertex: vs, Fragment: fs}, DefaultGraphicsPipelineSpecification())
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("conflicting binding types = %v, want ErrInvalidArgument", err)
	}
}

func TestGraphicsPipeline_MergedResources(t *testing.T) {
	d := newTestDevice(t)
	rt := newTestTarget(t, d, extent800x600, 1, 1)
	p := newTestPipeline(t, d, "merged", rt)

	res := p.Resources()
	if len(res[0]) != 3 {
		t.Fatalf("set 0 has %d bindings, want 3", len(res[0]))
	}
	if p.visibility[0][1] != ShaderTypeVertex.stage()|ShaderTypeFragment.stage() {
		t.Errorf("binding 1 visibility = %v, want vertex|fragment", p.visibility[0][1])
	}
	if p.visibility[0][0] != ShaderTypeVertex.stage() {
		t.Errorf("binding 0 visibility = %v, want vertex", p.visibility[0][0])
	}
	if got := p.VertexLayout().ArrayStride; got != 20 {
		t.Errorf("vertex stride = %d, want 20", got)
	}

	res[0][0] = ShaderResourceSampler
	if p.Resources()[0][0] != ShaderResourceUniformBuffer {
		t.Error("Resources() exposed internal state")
	}
}

func TestGraphicsPipeline_DrawData(t *testing.T) {
	d := newTestDevice(t)
	rt := newTestTarget(t, d, extent800x600, 1, 1)
	p := newTestPipeline(t, d, "draws", rt)
	other := newTestPipeline(t, d, "other", rt)

	id, err := p.AddDrawData(DrawData{VertexCount: 3})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.AddDrawData(DrawData{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty draw = %v", err)
	}
	if _, err := p.AddDrawData(DrawData{VertexCount: 3, Packages: []*ResourcePackage{nil}}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil package = %v", err)
	}
	wide := []struct {
		name string
		data DrawData
	}{
		{"vertex count", DrawData{VertexCount: math.MaxUint32 + 1}},
		{"index count", DrawData{IndexCount: math.MaxUint32 + 1}},
		{"index offset", DrawData{IndexCount: 3, IndexOffset: math.MaxUint32 + 1}},
		{"first vertex", DrawData{VertexCount: 3, VertexOffset: math.MaxUint32 + 1}},
		{"base vertex", DrawData{IndexCount: 3, VertexOffset: math.MaxInt32 + 1}},
	}
	for _, tt := range wide {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.AddDrawData(tt.data); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("AddDrawData(%+v) = %v, want ErrInvalidArgument", tt.data, err)
			}
		})
	}
	if _, err := p.AddDrawData(DrawData{VertexCount: 3, VertexOffset: math.MaxInt32 + 1}); err != nil {
		t.Errorf("non-indexed draw with a first vertex above MaxInt32 = %v", err)
	}
	foreign := newBoundPackage(t, d, other)
	if _, err := p.AddDrawData(DrawData{VertexCount: 3, Packages: []*ResourcePackage{foreign}}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("package of another pipeline = %v", err)
	}

	if p.DrawDataCount() != 2 {
		t.Errorf("DrawDataCount() = %d, want 2", p.DrawDataCount())
	}
	if !p.RemoveDrawData(id) || p.RemoveDrawData(id) {
		t.Error("RemoveDrawData does not report existence")
	}
	_, _ = p.AddDrawData(DrawData{IndexCount: 6})
	_, _ = p.AddDrawData(DrawData{IndexCount: 6})
	p.ClearDrawData()
	if p.DrawDataCount() != 0 {
		t.Errorf("DrawDataCount() after clear = %d", p.DrawDataCount())
	}
}

func TestComputePipeline(t *testing.T) {
	d := newTestDevice(t)
	rt := newTestTarget(t, d, extent800x600, 1, 1)
	cs := newTestShader(t, d, ShaderTypeCompute, ShaderResources{0: {0: ShaderResourceStorageBuffer, 1: ShaderResourceStorageImage}})

	if _, err := d.CreateComputePipeline("c", rt, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil shader = %v", err)
	}
	vs := newTestShader(t, d, ShaderTypeVertex, nil)
	if _, err := d.CreateComputePipeline("c", rt, vs); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("vertex shader = %v", err)
	}

	p, err := d.CreateComputePipeline("particles", rt, cs)
	if err != nil {
		t.Fatal(err)
	}
	terminate(t, p)

	rp, err := p.CreateResourcePackager(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rp.BufferBindings()) != 1 || len(rp.ImageBindings()) != 1 {
		t.Errorf("packager split = %v / %v", rp.BufferBindings(), rp.ImageBindings())
	}

	if _, err := p.AddInstance([3]uint32{1, 0, 1}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero group count = %v", err)
	}
	id, err := p.AddInstance([3]uint32{8, 8, 1})
	if err != nil {
		t.Fatal(err)
	}
	if p.InstanceCount() != 1 {
		t.Errorf("InstanceCount() = %d", p.InstanceCount())
	}
	if !p.RemoveInstance(id) || p.InstanceCount() != 0 {
		t.Error("RemoveInstance failed")
	}
}
