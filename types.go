package flint

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"
)

// Extent2D is a width and height in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Extent3D is a width, height and depth in texels.
type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

// IsZero reports whether any dimension is zero.
func (e Extent3D) IsZero() bool {
	return e.Width == 0 || e.Height == 0 || e.Depth == 0
}

func (e Extent3D) String() string {
	return fmt.Sprintf("%dx%dx%d", e.Width, e.Height, e.Depth)
}

// MaxMipLevels returns the length of the full mip chain for e.
func (e Extent3D) MaxMipLevels() uint32 {
	m := max(e.Width, e.Height, e.Depth)
	if m == 0 {
		return 0
	}
	return uint32(bits.Len32(m))
}

// PixelFormat is the texel format of an image.
type PixelFormat uint8

// Pixel formats.
const (
	PixelFormatUndefined PixelFormat = iota
	PixelFormatR8Unorm
	PixelFormatR8G8Unorm
	PixelFormatR8G8B8A8Unorm
	PixelFormatR8G8B8A8SRGB
	PixelFormatB8G8R8A8Unorm
	PixelFormatB8G8R8A8SRGB
	PixelFormatR16SFloat
	PixelFormatR16G16B16A16SFloat
	PixelFormatR32SFloat
	PixelFormatR32G32B32A32SFloat
	PixelFormatD16Unorm
	PixelFormatD24UnormS8Uint
	PixelFormatD32SFloat
	PixelFormatD32SFloatS8Uint
)

var pixelFormats = [...]struct {
	name   string
	format gputypes.TextureFormat
	size   uint32
}{
	PixelFormatUndefined:          {"Undefined", gputypes.TextureFormatUndefined, 0},
	PixelFormatR8Unorm:            {"R8Unorm", gputypes.TextureFormatR8Unorm, 1},
	PixelFormatR8G8Unorm:          {"R8G8Unorm", gputypes.TextureFormatRG8Unorm, 2},
	PixelFormatR8G8B8A8Unorm:      {"R8G8B8A8Unorm", gputypes.TextureFormatRGBA8Unorm, 4},
	PixelFormatR8G8B8A8SRGB:       {"R8G8B8A8SRGB", gputypes.TextureFormatRGBA8UnormSrgb, 4},
	PixelFormatB8G8R8A8Unorm:      {"B8G8R8A8Unorm", gputypes.TextureFormatBGRA8Unorm, 4},
	PixelFormatB8G8R8A8SRGB:       {"B8G8R8A8SRGB", gputypes.TextureFormatBGRA8UnormSrgb, 4},
	PixelFormatR16SFloat:          {"R16SFloat", gputypes.TextureFormatR16Float, 2},
	PixelFormatR16G16B16A16SFloat: {"R16G16B16A16SFloat", gputypes.TextureFormatRGBA16Float, 8},
	PixelFormatR32SFloat:          {"R32SFloat", gputypes.TextureFormatR32Float, 4},
	PixelFormatR32G32B32A32SFloat: {"R32G32B32A32SFloat", gputypes.TextureFormatRGBA32Float, 16},
	PixelFormatD16Unorm:           {"D16Unorm", gputypes.TextureFormatDepth16Unorm, 2},
	PixelFormatD24UnormS8Uint:     {"D24UnormS8Uint", gputypes.TextureFormatDepth24PlusStencil8, 4},
	PixelFormatD32SFloat:          {"D32SFloat", gputypes.TextureFormatDepth32Float, 4},
	PixelFormatD32SFloatS8Uint:    {"D32SFloatS8Uint", gputypes.TextureFormatDepth32FloatStencil8, 8},
}

func (f PixelFormat) valid() bool {
	return f > PixelFormatUndefined && int(f) < len(pixelFormats)
}

// TextureFormat returns the HAL format for f.
func (f PixelFormat) TextureFormat() gputypes.TextureFormat {
	if int(f) >= len(pixelFormats) {
		return gputypes.TextureFormatUndefined
	}
	return pixelFormats[f].format
}

// Size returns the size of one texel in bytes.
func (f PixelFormat) Size() uint32 {
	if int(f) >= len(pixelFormats) {
		return 0
	}
	return pixelFormats[f].size
}

// IsDepth reports whether f is a depth or depth-stencil format.
func (f PixelFormat) IsDepth() bool {
	return f.TextureFormat().IsDepthStencil()
}

func (f PixelFormat) String() string {
	if int(f) >= len(pixelFormats) {
		return fmt.Sprintf("PixelFormat(%d)", uint8(f))
	}
	return pixelFormats[f].name
}

// PixelFormatFromTexture maps a HAL format back to a PixelFormat.
// Formats without a counterpart map to PixelFormatUndefined.
func PixelFormatFromTexture(tf gputypes.TextureFormat) PixelFormat {
	for i, pf := range pixelFormats {
		if i > 0 && pf.format == tf {
			return PixelFormat(i)
		}
	}
	return PixelFormatUndefined
}
