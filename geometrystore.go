package flint

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

const initialGeometryCapacity = 64

// GeometryStore packs the vertices and indices of many meshes into one
// growable vertex buffer and one growable index buffer.
//
// Offsets and counts are in elements: vertices for the vertex buffer and
// indices for the index buffer.
type GeometryStore struct {
	deviceObject

	attributes []ShaderAttribute
	layout     gputypes.VertexBufferLayout
	vertexSize uint64
	indexSize  uint64
	profile    BufferMemoryProfile

	vertices    *Buffer
	indices     *Buffer
	vertexCount uint64
	indexCount  uint64
}

// CreateGeometryStore creates an empty store for vertices described by attrs.
// indexSize is 2 for 16-bit indices and 4 for 32-bit indices.
func (d *Device) CreateGeometryStore(attrs []ShaderAttribute, indexSize uint64, profile BufferMemoryProfile) (*GeometryStore, error) {
	if err := checkDevice(d, "geometry store"); err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, invalidArgument("flint: geometry store needs at least one vertex attribute")
	}
	if indexSize != 2 && indexSize != 4 {
		return nil, invalidArgument("flint: index size must be 2 or 4, got %d", indexSize)
	}
	layout, err := vertexLayout(attrs)
	if err != nil {
		return nil, err
	}

	g := &GeometryStore{
		deviceObject: deviceObject{device: d, kind: "geometry store"},
		attributes:   append([]ShaderAttribute(nil), attrs...),
		layout:       layout,
		vertexSize:   layout.ArrayStride,
		indexSize:    indexSize,
		profile:      profile,
	}
	g.vertices, err = d.CreateBuffer(initialGeometryCapacity*g.vertexSize, BufferTypeVertex, profile)
	if err != nil {
		return nil, err
	}
	g.indices, err = d.CreateBuffer(initialGeometryCapacity*indexSize, BufferTypeIndex, profile)
	if err != nil {
		_ = g.vertices.Terminate()
		return nil, err
	}
	d.track(&g.deviceObject, g)
	return g, nil
}

// vertexLayout builds an interleaved layout from attribute sizes, placing
// attributes in the given order.
func vertexLayout(attrs []ShaderAttribute) (gputypes.VertexBufferLayout, error) {
	var offset uint64
	out := make([]gputypes.VertexAttribute, 0, len(attrs))
	for _, a := range attrs {
		var format gputypes.VertexFormat
		switch a.Size {
		case 4:
			format = gputypes.VertexFormatFloat32
		case 8:
			format = gputypes.VertexFormatFloat32x2
		case 12:
			format = gputypes.VertexFormatFloat32x3
		case 16:
			format = gputypes.VertexFormatFloat32x4
		default:
			return gputypes.VertexBufferLayout{}, invalidArgument("flint: vertex attribute %q has unsupported size %d", a.Name, a.Size)
		}
		out = append(out, gputypes.VertexAttribute{
			Format:         format,
			Offset:         offset,
			ShaderLocation: a.Location,
		})
		offset += uint64(a.Size)
	}
	return gputypes.VertexBufferLayout{
		ArrayStride: offset,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  out,
	}, nil
}

// Attributes returns the vertex attributes.
func (g *GeometryStore) Attributes() []ShaderAttribute {
	return append([]ShaderAttribute(nil), g.attributes...)
}

// VertexSize returns the size of one vertex in bytes.
func (g *GeometryStore) VertexSize() uint64 { return g.vertexSize }

// IndexSize returns the size of one index in bytes.
func (g *GeometryStore) IndexSize() uint64 { return g.indexSize }

// VertexCount returns the number of stored vertices.
func (g *GeometryStore) VertexCount() uint64 { return g.vertexCount }

// IndexCount returns the number of stored indices.
func (g *GeometryStore) IndexCount() uint64 { return g.indexCount }

// IndexFormat returns the HAL index format.
func (g *GeometryStore) IndexFormat() gputypes.IndexFormat {
	if g.indexSize == 2 {
		return gputypes.IndexFormatUint16
	}
	return gputypes.IndexFormatUint32
}

// VertexLayout returns the vertex buffer layout used by pipelines.
func (g *GeometryStore) VertexLayout() gputypes.VertexBufferLayout { return g.layout }

// AddGeometry appends vertex and index data and returns where they start.
// Index values are stored as given; they are relative to vertexOffset when
// drawn with that base vertex.
func (g *GeometryStore) AddGeometry(vertexData, indexData []byte) (vertexOffset, indexOffset uint64, err error) {
	if err := g.checkAlive(); err != nil {
		return 0, 0, err
	}
	if len(vertexData) == 0 {
		return 0, 0, invalidArgument("flint: geometry has no vertex data")
	}
	if uint64(len(vertexData))%g.vertexSize != 0 {
		return 0, 0, invalidArgument("flint: vertex data of %d bytes is not a multiple of vertex size %d", len(vertexData), g.vertexSize)
	}
	if uint64(len(indexData))%g.indexSize != 0 {
		return 0, 0, invalidArgument("flint: index data of %d bytes is not a multiple of index size %d", len(indexData), g.indexSize)
	}

	vertexOffset, indexOffset = g.vertexCount, g.indexCount
	if err := appendElements(g.vertices, g.vertexSize, g.vertexCount, vertexData); err != nil {
		return 0, 0, err
	}
	if err := appendElements(g.indices, g.indexSize, g.indexCount, indexData); err != nil {
		return 0, 0, err
	}
	g.vertexCount += uint64(len(vertexData)) / g.vertexSize
	g.indexCount += uint64(len(indexData)) / g.indexSize
	return vertexOffset, indexOffset, nil
}

func appendElements(b *Buffer, elem, count uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	used := elem * count
	need := used + uint64(len(data))
	if need > b.Size() {
		size := b.Size()
		for size < need {
			size *= 2
		}
		if err := b.Resize(size); err != nil {
			return err
		}
	}
	return b.Write(used, data)
}

// RemoveGeometry removes a range of vertices and indices, moving everything
// after each range down. Offsets of geometry added later shift accordingly.
func (g *GeometryStore) RemoveGeometry(vertexOffset, vertexCount, indexOffset, indexCount uint64) error {
	if err := g.checkAlive(); err != nil {
		return err
	}
	if outOfRange(vertexOffset, vertexCount, g.vertexCount) || outOfRange(indexOffset, indexCount, g.indexCount) {
		return invalidArgument("flint: geometry range (v %d+%d, i %d+%d) outside store (v %d, i %d)",
			vertexOffset, vertexCount, indexOffset, indexCount, g.vertexCount, g.indexCount)
	}
	if err := removeElements(g.vertices, g.vertexSize, g.vertexCount, vertexOffset, vertexCount); err != nil {
		return err
	}
	if err := removeElements(g.indices, g.indexSize, g.indexCount, indexOffset, indexCount); err != nil {
		return err
	}
	g.vertexCount -= vertexCount
	g.indexCount -= indexCount
	return nil
}

func removeElements(b *Buffer, elem, count, offset, n uint64) error {
	if n == 0 {
		return nil
	}
	tail := (count - offset - n) * elem
	if tail == 0 {
		return nil
	}
	dst, src := offset*elem, (offset+n)*elem

	if b.HostVisible() {
		mem, err := b.Map(0, count*elem)
		if err != nil {
			return err
		}
		copy(mem[dst:], mem[src:src+tail])
		return b.Unmap()
	}

	// Device memory cannot overlap a copy with itself; rebuild into a new buffer.
	d := b.device
	fresh, err := d.allocBuffer(b.typ, b.profile, b.size)
	if err != nil {
		return err
	}
	regions := []hal.BufferCopy{{SrcOffset: src, DstOffset: dst, Size: tail}}
	if dst > 0 {
		regions = append(regions, hal.BufferCopy{Size: dst})
	}
	old := b.buf
	if err := d.runOnce("flint.geometry.compact", func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(old, fresh, regions)
	}); err != nil {
		d.hal.DestroyBuffer(fresh)
		return err
	}
	d.hal.DestroyBuffer(old)
	b.buf = fresh
	return nil
}

// MapVertexBuffer maps the used part of the vertex buffer.
func (g *GeometryStore) MapVertexBuffer() ([]byte, error) {
	if err := g.checkAlive(); err != nil {
		return nil, err
	}
	if g.vertexCount == 0 {
		return nil, nil
	}
	return g.vertices.Map(0, g.vertexCount*g.vertexSize)
}

// UnmapVertexBuffer ends a MapVertexBuffer mapping.
func (g *GeometryStore) UnmapVertexBuffer() error { return g.vertices.Unmap() }

// MapIndexBuffer maps the used part of the index buffer.
func (g *GeometryStore) MapIndexBuffer() ([]byte, error) {
	if err := g.checkAlive(); err != nil {
		return nil, err
	}
	if g.indexCount == 0 {
		return nil, nil
	}
	return g.indices.Map(0, g.indexCount*g.indexSize)
}

// UnmapIndexBuffer ends a MapIndexBuffer mapping.
func (g *GeometryStore) UnmapIndexBuffer() error { return g.indices.Unmap() }

// bind sets the store's buffers on a render pass.
func (g *GeometryStore) bind(pass hal.RenderPassEncoder) {
	pass.SetVertexBuffer(0, g.vertices.binding(), 0)
	if g.indexCount > 0 {
		pass.SetIndexBuffer(g.indices.binding(), g.IndexFormat(), 0)
	}
}

// Terminate releases both buffers.
func (g *GeometryStore) Terminate() error {
	if !g.beginTerminate() {
		return nil
	}
	verr := g.vertices.Terminate()
	ierr := g.indices.Terminate()
	if verr != nil {
		return verr
	}
	return ierr
}
