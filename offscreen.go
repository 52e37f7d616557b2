package flint

import (
	"context"

	"github.com/gogpu/wgpu/hal"
)

// OffScreenRenderTarget renders into device images, one color image per
// frame buffer.
type OffScreenRenderTarget struct {
	renderTarget

	colors []*Image
}

var _ RenderTarget = (*OffScreenRenderTarget)(nil)

// CreateOffScreenRenderTarget creates a target of extent with bufferCount
// frames in flight recorded by threads workers. cmds must have bufferCount
// slots.
func (d *Device) CreateOffScreenRenderTarget(extent Extent2D, bufferCount uint32, cmds *CommandBufferList, threads int, opts ...RenderTargetOption) (*OffScreenRenderTarget, error) {
	t := &OffScreenRenderTarget{}
	if err := t.init(d, "off-screen render target", extent, bufferCount, cmds, threads, opts); err != nil {
		return nil, err
	}
	t.attach = t

	format := t.opts.colorFormat
	if format == PixelFormatUndefined {
		format = PixelFormatR8G8B8A8Unorm
	}
	t.colorFormat = format.TextureFormat()
	if err := t.createColors(); err != nil {
		t.release()
		return nil, err
	}

	d.track(&t.deviceObject, t)
	Logger().Debug("flint: off-screen render target created",
		"extent", extent.String(), "buffers", bufferCount, "threads", threads, "format", format.String())
	return t, nil
}

func (t *OffScreenRenderTarget) createColors() error {
	ext := Extent3D{Width: t.extent.Width, Height: t.extent.Height, Depth: 1}
	format := PixelFormatFromTexture(t.colorFormat)
	for range t.bufferCount {
		img, err := t.device.CreateImage(ImageType2D, ImageUsageColor|ImageUsageGraphics, ext, format, 1, 1)
		if err != nil {
			t.releaseColors()
			return err
		}
		t.colors = append(t.colors, img)
	}
	return nil
}

func (t *OffScreenRenderTarget) releaseColors() {
	for _, img := range t.colors {
		_ = img.Terminate()
	}
	t.colors = nil
}

// ColorImage returns the color attachment of frame slot, or nil when slot
// is out of range.
func (t *OffScreenRenderTarget) ColorImage(slot uint32) *Image {
	if int(slot) >= len(t.colors) {
		return nil
	}
	return t.colors[slot]
}

// Resize waits for in-flight frames and recreates the attachments at
// extent. Draw instances are kept.
func (t *OffScreenRenderTarget) Resize(ctx context.Context, extent Extent2D) error {
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

	t.releaseColors()
	if t.depth != nil {
		_ = t.depth.Terminate()
		t.depth = nil
	}
	t.extent = extent
	if err := t.createDepth(); err != nil {
		return err
	}
	return t.createColors()
}

func (t *OffScreenRenderTarget) acquire(slot uint32) (hal.TextureView, error) {
	img := t.colors[slot]
	if err := img.checkAlive(); err != nil {
		return nil, err
	}
	return img.view, nil
}

func (t *OffScreenRenderTarget) present(uint32) error { return nil }

func (t *OffScreenRenderTarget) abandon(uint32) {}

// Terminate stops the workers, waits for in-flight frames and releases the
// attachments.
func (t *OffScreenRenderTarget) Terminate() error {
	if !t.beginTerminate() {
		return nil
	}
	err := t.terminate()
	t.releaseColors()
	return err
}
