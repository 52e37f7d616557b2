package flint

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ScreenBoundRenderTarget renders into the swapchain of a Display and
// presents every frame.
type ScreenBoundRenderTarget struct {
	renderTarget

	display     *Display
	presentMode gputypes.PresentMode
	alphaMode   gputypes.CompositeAlphaMode

	// acquired[slot] is the surface texture a slot renders into until it is
	// presented. views[slot] lives until the slot is reused.
	acquired []hal.SurfaceTexture
	views    []hal.TextureView
}

var _ RenderTarget = (*ScreenBoundRenderTarget)(nil)

// CreateScreenBoundRenderTarget creates a target presenting to display.
// The color format defaults to the display's preferred format.
func (d *Device) CreateScreenBoundRenderTarget(display *Display, extent Extent2D, bufferCount uint32, cmds *CommandBufferList, threads int, opts ...RenderTargetOption) (*ScreenBoundRenderTarget, error) {
	if display == nil {
		return nil, invalidArgument("flint: screen bound render target display is nil")
	}
	if display.IsTerminated() {
		return nil, terminatedError("display")
	}
	if d != nil && display.instance != d.instance {
		return nil, invalidArgument("flint: display belongs to a different instance")
	}

	t := &ScreenBoundRenderTarget{display: display}
	if err := t.init(d, "screen bound render target", extent, bufferCount, cmds, threads, opts); err != nil {
		return nil, err
	}
	t.attach = t
	t.acquired = make([]hal.SurfaceTexture, bufferCount)
	t.views = make([]hal.TextureView, bufferCount)

	if err := t.configure(); err != nil {
		t.release()
		return nil, err
	}

	d.track(&t.deviceObject, t)
	Logger().Info("flint: screen bound render target created",
		"extent", extent.String(),
		"buffers", bufferCount,
		"threads", threads,
		"format", t.ColorFormat().String(),
		"present", t.presentMode.String())
	return t, nil
}

// configure picks the surface format and present mode from the display's
// capabilities and (re)configures the surface at the current extent.
func (t *ScreenBoundRenderTarget) configure() error {
	caps := t.device.adapter.SurfaceCapabilities(t.display.surface)
	if caps == nil || len(caps.Formats) == 0 {
		return backendError(nil, "flint: adapter cannot present to the display")
	}

	format := caps.Formats[0]
	if want := t.opts.colorFormat; want != PixelFormatUndefined {
		if slices.Contains(caps.Formats, want.TextureFormat()) {
			format = want.TextureFormat()
		} else {
			Logger().Warn("flint: color format not presentable, using display format",
				"requested", want.String(), "format", PixelFormatFromTexture(format).String())
		}
	} else if slices.Contains(caps.Formats, gputypes.TextureFormatBGRA8Unorm) {
		format = gputypes.TextureFormatBGRA8Unorm
	}

	vsync := t.device.Config().VSync
	if t.opts.vsync != nil {
		vsync = *t.opts.vsync
	}
	mode := gputypes.PresentModeFifo
	if !vsync {
		for _, m := range []gputypes.PresentMode{gputypes.PresentModeMailbox, gputypes.PresentModeImmediate} {
			if slices.Contains(caps.PresentModes, m) {
				mode = m
				break
			}
		}
	}

	alpha := gputypes.CompositeAlphaModeOpaque
	if len(caps.AlphaModes) > 0 && !slices.Contains(caps.AlphaModes, alpha) {
		alpha = caps.AlphaModes[0]
	}

	err := t.display.surface.Configure(t.device.hal, &hal.SurfaceConfiguration{
		Width:       t.extent.Width,
		Height:      t.extent.Height,
		Format:      format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: mode,
		AlphaMode:   alpha,
	})
	if err != nil {
		return backendError(err, "flint: configure surface %s", t.extent)
	}
	t.colorFormat = format
	t.presentMode = mode
	t.alphaMode = alpha
	return nil
}

// Display returns the display the target presents to.
func (t *ScreenBoundRenderTarget) Display() *Display { return t.display }

// PresentMode returns the configured present mode.
func (t *ScreenBoundRenderTarget) PresentMode() gputypes.PresentMode { return t.presentMode }

// Resize waits for in-flight frames, reconfigures the surface at extent
// and recreates the depth attachment.
func (t *ScreenBoundRenderTarget) Resize(ctx context.Context, extent Extent2D) error {
	if err := t.checkAlive(); err != nil {
		return err
	}
	if extent.IsZero() {
		return invalidArgument("flint: resize to %s", extent)
	}
	if extent == t.extent {
		return nil
	}
	for _, s := range t.syncs {
		if err := s.Wait(ctx); err != nil {
			return err
		}
	}
	if t.depth != nil {
		_ = t.depth.Terminate()
		t.depth = nil
	}
	t.extent = extent
	if err := t.configure(); err != nil {
		return err
	}
	return t.createDepth()
}

func (t *ScreenBoundRenderTarget) acquire(slot uint32) (hal.TextureView, error) {
	if t.display.IsTerminated() {
		return nil, terminatedError("display")
	}
	t.dropView(slot)
	acq, err := t.display.surface.AcquireTexture(nil)
	if err != nil {
		if errors.Is(err, hal.ErrSurfaceOutdated) {
			return nil, errors.Wrap(err, "flint: surface outdated, resize the render target")
		}
		return nil, backendError(err, "flint: acquire surface texture")
	}
	if acq.Suboptimal {
		Logger().Warn("flint: surface texture is suboptimal", "extent", t.extent.String())
	}
	view, err := t.device.hal.CreateTextureView(acq.Texture, &hal.TextureViewDescriptor{
		Label:           t.opts.label + ".swapchain",
		Format:          t.colorFormat,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		t.display.surface.DiscardTexture(acq.Texture)
		return nil, backendError(err, "flint: create swapchain view")
	}
	t.acquired[slot] = acq.Texture
	t.views[slot] = view
	return view, nil
}

func (t *ScreenBoundRenderTarget) present(slot uint32) error {
	tex := t.acquired[slot]
	if tex == nil {
		return nil
	}
	t.acquired[slot] = nil
	return t.device.present(t.display.surface, tex)
}

func (t *ScreenBoundRenderTarget) abandon(slot uint32) {
	if tex := t.acquired[slot]; tex != nil {
		t.display.surface.DiscardTexture(tex)
		t.acquired[slot] = nil
	}
	t.dropView(slot)
}

func (t *ScreenBoundRenderTarget) dropView(slot uint32) {
	if v := t.views[slot]; v != nil {
		t.device.hal.DestroyTextureView(v)
		t.views[slot] = nil
	}
}

// Terminate stops the workers, waits for in-flight frames and unconfigures
// the surface. The display stays usable.
func (t *ScreenBoundRenderTarget) Terminate() error {
	if !t.beginTerminate() {
		return nil
	}
	err := t.terminate()
	for slot := range t.views {
		t.dropView(uint32(slot))
	}
	if !t.display.IsTerminated() {
		t.display.surface.Unconfigure(t.device.hal)
	}
	return err
}
