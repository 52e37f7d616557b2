package flint

import (
	"bytes"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
)

// vertexBytes returns n vertices of the test layout, each filled with its
// own index.
func vertexBytes(n int, first byte) []byte {
	out := make([]byte, 0, n*20)
	for i := range n {
		out = append(out, bytes.Repeat([]byte{first + byte(i)}, 20)...)
	}
	return out
}

func TestCreateGeometryStore_Validation(t *testing.T) {
	d := newTestDevice(t)

	if _, err := d.CreateGeometryStore(nil, 4, BufferMemoryAutomatic); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("no attributes = %v", err)
	}
	if _, err := d.CreateGeometryStore(testAttributes, 3, BufferMemoryAutomatic); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("index size 3 = %v", err)
	}
	odd := []ShaderAttribute{{Name: "weird", Location: 0, Size: 6}}
	if _, err := d.CreateGeometryStore(odd, 4, BufferMemoryAutomatic); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("6 byte attribute = %v", err)
	}
}

func TestGeometryStore_Layout(t *testing.T) {
	d := newTestDevice(t)
	g := newTestStore(t, d)

	if g.VertexSize() != 20 {
		t.Errorf("VertexSize() = %d, want 20", g.VertexSize())
	}
	if g.IndexFormat() != gputypes.IndexFormatUint32 {
		t.Errorf("IndexFormat() = %v", g.IndexFormat())
	}
	l := g.VertexLayout()
	if len(l.Attributes) != 2 || l.Attributes[1].Offset != 12 || l.Attributes[1].Format != gputypes.VertexFormatFloat32x2 {
		t.Errorf("layout = %+v", l)
	}

	short, err := d.CreateGeometryStore(testAttributes, 2, BufferMemoryAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	terminate(t, short)
	if short.IndexFormat() != gputypes.IndexFormatUint16 {
		t.Errorf("IndexFormat() = %v, want Uint16", short.IndexFormat())
	}
}

func TestGeometryStore_AddGrowsAndReturnsOffsets(t *testing.T) {
	d := newTestDevice(t)
	g, err := d.CreateGeometryStore(testAttributes, 2, BufferMemoryCPUOnly)
	if err != nil {
		t.Fatal(err)
	}
	terminate(t, g)

	v0, i0, err := g.AddGeometry(vertexBytes(3, 0), []byte{0, 0, 1, 0, 2, 0})
	if err != nil {
		t.Fatalf("AddGeometry: %v", err)
	}
	if v0 != 0 || i0 != 0 {
		t.Errorf("first offsets = %d, %d", v0, i0)
	}

	// Past the initial capacity of 64 vertices.
	v1, i1, err := g.AddGeometry(vertexBytes(100, 3), nil)
	if err != nil {
		t.Fatalf("AddGeometry(100): %v", err)
	}
	if v1 != 3 || i1 != 3 {
		t.Errorf("second offsets = %d, %d; want 3, 3", v1, i1)
	}
	if g.VertexCount() != 103 || g.IndexCount() != 3 {
		t.Errorf("counts = %d, %d", g.VertexCount(), g.IndexCount())
	}

	mem, err := g.MapVertexBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(mem[:60], vertexBytes(3, 0)) || mem[102*20] != 102 {
		t.Error("vertex contents lost across growth")
	}
	if err := g.UnmapVertexBuffer(); err != nil {
		t.Fatal(err)
	}

	if _, _, err := g.AddGeometry(nil, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty vertices = %v", err)
	}
	if _, _, err := g.AddGeometry(make([]byte, 21), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("partial vertex = %v", err)
	}
	if _, _, err := g.AddGeometry(vertexBytes(1, 0), []byte{1}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("partial index = %v", err)
	}
}

func TestGeometryStore_RemoveCompacts(t *testing.T) {
	d := newTestDevice(t)
	g, err := d.CreateGeometryStore(testAttributes, 2, BufferMemoryCPUOnly)
	if err != nil {
		t.Fatal(err)
	}
	terminate(t, g)

	if _, _, err := g.AddGeometry(vertexBytes(4, 10), []byte{0, 0, 1, 0, 2, 0, 3, 0}); err != nil {
		t.Fatal(err)
	}
	if err := g.RemoveGeometry(1, 2, 0, 2); err != nil {
		t.Fatalf("RemoveGeometry: %v", err)
	}
	if g.VertexCount() != 2 || g.IndexCount() != 2 {
		t.Fatalf("counts = %d, %d; want 2, 2", g.VertexCount(), g.IndexCount())
	}

	mem, err := g.MapVertexBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if mem[0] != 10 || mem[20] != 13 {
		t.Errorf("vertices after removal start with %d and %d, want 10 and 13", mem[0], mem[20])
	}
	_ = g.UnmapVertexBuffer()

	idx, err := g.MapIndexBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(idx, []byte{2, 0, 3, 0}) {
		t.Errorf("indices after removal = %v", idx)
	}
	_ = g.UnmapIndexBuffer()

	bad := []struct {
		name                   string
		vOff, vCount, iOff, iN uint64
	}{
		{"vertices past end", 1, 2, 0, 0},
		{"indices past end", 0, 0, 1, 2},
		{"huge vertex offset", math.MaxUint64, 2, 0, 0},
		{"huge vertex count", 1, math.MaxUint64, 0, 0},
		{"huge index offset", 0, 0, math.MaxUint64 - 1, 2},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.RemoveGeometry(tt.vOff, tt.vCount, tt.iOff, tt.iN); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("RemoveGeometry = %v, want ErrInvalidArgument", err)
			}
		})
	}
	if g.VertexCount() != 2 || g.IndexCount() != 2 {
		t.Errorf("rejected removals changed counts to %d, %d", g.VertexCount(), g.IndexCount())
	}
}

func TestGeometryStore_DeviceOnlyRemove(t *testing.T) {
	d := newTestDevice(t)
	g := newTestStore(t, d)

	if _, _, err := g.AddGeometry(vertexBytes(4, 0), make([]byte, 24)); err != nil {
		t.Fatal(err)
	}
	if err := g.RemoveGeometry(0, 1, 3, 3); err != nil {
		t.Fatalf("RemoveGeometry on device memory: %v", err)
	}
	if g.VertexCount() != 3 || g.IndexCount() != 3 {
		t.Errorf("counts = %d, %d", g.VertexCount(), g.IndexCount())
	}
	if _, err := g.MapVertexBuffer(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("mapping device memory = %v, want ErrInvalidArgument", err)
	}
}

func TestGeometryStore_TerminateReleasesBuffers(t *testing.T) {
	d := newTestDevice(t)
	before := d.LiveObjects()

	g, err := d.CreateGeometryStore(testAttributes, 4, BufferMemoryAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	if got := d.LiveObjects() - before; got != 3 {
		t.Errorf("store registered %d objects, want 3", got)
	}
	if err := g.Terminate(); err != nil {
		t.Fatal(err)
	}
	if d.LiveObjects() != before {
		t.Errorf("LiveObjects() = %d after Terminate, want %d", d.LiveObjects(), before)
	}
	if _, _, err := g.AddGeometry(vertexBytes(1, 0), nil); !errors.Is(err, ErrTerminated) {
		t.Errorf("AddGeometry after Terminate = %v", err)
	}
}
