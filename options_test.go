package flint

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
)

func TestRenderTargetOptions_Defaults(t *testing.T) {
	o := defaultRenderTargetOptions()
	if o.label != "flint.target" {
		t.Errorf("label = %q", o.label)
	}
	if o.clearColor != (gputypes.Color{A: 1}) {
		t.Errorf("clearColor = %+v, want opaque black", o.clearColor)
	}
	if o.clearDepth != 1 {
		t.Errorf("clearDepth = %g, want 1", o.clearDepth)
	}
	if o.colorFormat != PixelFormatUndefined || o.depthFormat != PixelFormatD32SFloat {
		t.Errorf("formats = %s / %s", o.colorFormat, o.depthFormat)
	}
	if o.vsync != nil {
		t.Error("vsync override set by default")
	}
	if err := o.validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestRenderTargetOptions_Apply(t *testing.T) {
	o := defaultRenderTargetOptions()
	for _, opt := range []RenderTargetOption{
		WithLabel("hud"),
		WithClearColor(0.1, 0.2, 0.3, 0.4),
		WithClearDepth(0),
		WithColorFormat(PixelFormatR16G16B16A16SFloat),
		WithDepthFormat(PixelFormatD24UnormS8Uint),
		WithVSync(false),
	} {
		opt(&o)
	}

	if o.label != "hud" {
		t.Errorf("label = %q", o.label)
	}
	if o.clearColor != (gputypes.Color{R: 0.1, G: 0.2, B: 0.3, A: 0.4}) {
		t.Errorf("clearColor = %+v", o.clearColor)
	}
	if o.clearDepth != 0 {
		t.Errorf("clearDepth = %g", o.clearDepth)
	}
	if o.colorFormat != PixelFormatR16G16B16A16SFloat || o.depthFormat != PixelFormatD24UnormS8Uint {
		t.Errorf("formats = %s / %s", o.colorFormat, o.depthFormat)
	}
	if o.vsync == nil || *o.vsync {
		t.Error("WithVSync(false) not applied")
	}
}

func TestRenderTargetOptions_Validate(t *testing.T) {
	tests := []struct {
		name string
		opt  RenderTargetOption
		ok   bool
	}{
		{"color as depth", WithDepthFormat(PixelFormatR8G8B8A8Unorm), false},
		{"depth as color", WithColorFormat(PixelFormatD16Unorm), false},
		{"unknown color", WithColorFormat(PixelFormat(200)), false},
		{"no depth", WithDepthFormat(PixelFormatUndefined), true},
		{"srgb color", WithColorFormat(PixelFormatB8G8R8A8SRGB), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultRenderTargetOptions()
			tt.opt(&o)
			err := o.validate()
			if tt.ok && err != nil {
				t.Errorf("validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("validate() = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestRenderTarget_OptionsReachAttachments(t *testing.T) {
	d := newTestDevice(t)

	rt := newTestTarget(t, d, extent800x600, 2, 1,
		WithColorFormat(PixelFormatB8G8R8A8Unorm),
		WithDepthFormat(PixelFormatUndefined))
	if rt.ColorFormat() != PixelFormatB8G8R8A8Unorm {
		t.Errorf("ColorFormat() = %s", rt.ColorFormat())
	}
	if rt.DepthImage() != nil || rt.DepthFormat() != PixelFormatUndefined {
		t.Error("depth attachment created although disabled")
	}
	if img := rt.ColorImage(1); img == nil || img.Format() != PixelFormatB8G8R8A8Unorm {
		t.Errorf("ColorImage(1) = %v", img)
	}
	if rt.ColorImage(2) != nil {
		t.Error("ColorImage(2) out of range returned an image")
	}

	cmds, err := d.CreateCommandBufferList(1)
	if err != nil {
		t.Fatal(err)
	}
	terminate(t, cmds)
	before := d.LiveObjects()
	if _, err := d.CreateOffScreenRenderTarget(extent800x600, 1, cmds, 1, WithDepthFormat(PixelFormatR8Unorm)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("invalid depth option = %v", err)
	}
	if d.LiveObjects() != before {
		t.Errorf("failed creation leaked %d objects", d.LiveObjects()-before)
	}
}
