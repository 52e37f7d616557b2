package flint

import (
	"github.com/gogpu/gputypes"
)

// RenderTargetOption configures a render target during creation.
// Use functional options to customize render target behavior.
//
// Example:
//
//	// Off-screen target with a black background and no depth buffer
//	rt, err := device.CreateOffScreenRenderTarget(extent, 2, cmds, 4,
//		flint.WithClearColor(0, 0, 0, 1),
//		flint.WithDepthFormat(flint.PixelFormatUndefined))
type RenderTargetOption func(*renderTargetOptions)

// renderTargetOptions holds optional configuration for render target creation.
type renderTargetOptions struct {
	label       string
	clearColor  gputypes.Color
	clearDepth  float32
	colorFormat PixelFormat
	depthFormat PixelFormat
	vsync       *bool
}

// defaultRenderTargetOptions returns the default render target options.
func defaultRenderTargetOptions() renderTargetOptions {
	return renderTargetOptions{
		label:       "flint.target",
		clearColor:  gputypes.Color{A: 1},
		clearDepth:  1,
		colorFormat: PixelFormatUndefined, // picked by the target kind
		depthFormat: PixelFormatD32SFloat,
	}
}

// WithLabel sets the debug label prefix of the target's GPU objects.
func WithLabel(label string) RenderTargetOption {
	return func(o *renderTargetOptions) {
		o.label = label
	}
}

// WithClearColor sets the color every frame starts from.
func WithClearColor(r, g, b, a float64) RenderTargetOption {
	return func(o *renderTargetOptions) {
		o.clearColor = gputypes.Color{R: r, G: g, B: b, A: a}
	}
}

// WithClearDepth sets the depth every frame starts from.
func WithClearDepth(depth float32) RenderTargetOption {
	return func(o *renderTargetOptions) {
		o.clearDepth = depth
	}
}

// WithColorFormat sets the color attachment format.
//
// Off-screen targets default to R8G8B8A8Unorm. Screen bound targets default
// to the display's preferred format and fall back to it when the requested
// format cannot be presented.
func WithColorFormat(f PixelFormat) RenderTargetOption {
	return func(o *renderTargetOptions) {
		o.colorFormat = f
	}
}

// WithDepthFormat sets the depth attachment format. PixelFormatUndefined
// disables the depth attachment.
func WithDepthFormat(f PixelFormat) RenderTargetOption {
	return func(o *renderTargetOptions) {
		o.depthFormat = f
	}
}

// WithVSync overrides Config.VSync for a screen bound target.
func WithVSync(on bool) RenderTargetOption {
	return func(o *renderTargetOptions) {
		o.vsync = &on
	}
}

func (o *renderTargetOptions) validate() error {
	if o.colorFormat != PixelFormatUndefined && (!o.colorFormat.valid() || o.colorFormat.IsDepth()) {
		return invalidArgument("flint: %s is not a color format", o.colorFormat)
	}
	if o.depthFormat != PixelFormatUndefined && (!o.depthFormat.valid() || !o.depthFormat.IsDepth()) {
		return invalidArgument("flint: %s is not a depth format", o.depthFormat)
	}
	return nil
}
