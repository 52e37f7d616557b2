package flint

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DynamicStateFlags selects which pipeline state is supplied per draw.
type DynamicStateFlags uint8

const (
	DynamicStateViewport DynamicStateFlags = 1 << iota
	DynamicStateScissor
	DynamicStateLineWidth
	DynamicStateDepthBias
	DynamicStateBlendConstants
	DynamicStateDepthBounds
)

// Viewport is a render area in framebuffer coordinates.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Scissor is a clip rectangle in framebuffer coordinates.
type Scissor struct {
	X, Y          uint32
	Width, Height uint32
}

// DepthBias holds the depth bias factors.
type DepthBias struct {
	Constant float32
	Clamp    float32
	Slope    float32
}

// DynamicStateContainer holds per-draw state for a pipeline created with the
// matching DynamicStateFlags. Unset values are not applied.
//
// The HAL has no dynamic line width, depth bias or depth bounds; those values
// are kept for inspection and ignored when recording.
type DynamicStateContainer struct {
	set DynamicStateFlags

	viewport       Viewport
	scissor        Scissor
	lineWidth      float32
	depthBias      DepthBias
	blendConstants [4]float32
	depthBounds    [2]float32
}

// NewDynamicStateContainer returns an empty container.
func NewDynamicStateContainer() *DynamicStateContainer {
	return &DynamicStateContainer{}
}

// SetViewport sets the viewport.
func (c *DynamicStateContainer) SetViewport(v Viewport) {
	c.viewport = v
	c.set |= DynamicStateViewport
}

// SetScissor sets the scissor rectangle.
func (c *DynamicStateContainer) SetScissor(s Scissor) {
	c.scissor = s
	c.set |= DynamicStateScissor
}

// SetLineWidth sets the rasterized line width.
func (c *DynamicStateContainer) SetLineWidth(w float32) {
	c.lineWidth = w
	c.set |= DynamicStateLineWidth
}

// SetDepthBias sets the depth bias factors.
func (c *DynamicStateContainer) SetDepthBias(b DepthBias) {
	c.depthBias = b
	c.set |= DynamicStateDepthBias
}

// SetBlendConstants sets the RGBA blend constants.
func (c *DynamicStateContainer) SetBlendConstants(rgba [4]float32) {
	c.blendConstants = rgba
	c.set |= DynamicStateBlendConstants
}

// SetDepthBounds sets the depth bounds test range.
func (c *DynamicStateContainer) SetDepthBounds(lo, hi float32) {
	c.depthBounds = [2]float32{lo, hi}
	c.set |= DynamicStateDepthBounds
}

// Flags returns which states have been set.
func (c *DynamicStateContainer) Flags() DynamicStateFlags { return c.set }

// Viewport returns the viewport and whether it was set.
func (c *DynamicStateContainer) Viewport() (Viewport, bool) {
	return c.viewport, c.set&DynamicStateViewport != 0
}

// Scissor returns the scissor and whether it was set.
func (c *DynamicStateContainer) Scissor() (Scissor, bool) {
	return c.scissor, c.set&DynamicStateScissor != 0
}

// apply records the states that are both set and enabled on the pipeline.
func (c *DynamicStateContainer) apply(pass hal.RenderPassEncoder, enabled DynamicStateFlags) {
	if c == nil {
		return
	}
	active := c.set & enabled
	if active&DynamicStateViewport != 0 {
		v := c.viewport
		pass.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
	}
	if active&DynamicStateScissor != 0 {
		s := c.scissor
		pass.SetScissorRect(s.X, s.Y, s.Width, s.Height)
	}
	if active&DynamicStateBlendConstants != 0 {
		b := c.blendConstants
		pass.SetBlendConstant(&gputypes.Color{R: float64(b[0]), G: float64(b[1]), B: float64(b[2]), A: float64(b[3])})
	}
}
