package flint

import (
	"github.com/gogpu/wgpu/hal"
)

// ImageViewSpecification selects the subresource range of an ImageView.
// Zero counts cover the rest of the image from the base.
type ImageViewSpecification struct {
	BaseMipLevel uint32
	MipLevels    uint32
	BaseLayer    uint32
	Layers       uint32
}

// ImageView is a view over a range of mip levels and layers of an Image.
type ImageView struct {
	deviceObject

	image *Image
	spec  ImageViewSpecification
	view  hal.TextureView
}

// CreateImageView creates a view of img.
func (d *Device) CreateImageView(img *Image, spec ImageViewSpecification) (*ImageView, error) {
	if err := checkDevice(d, "image view"); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, invalidArgument("flint: image view source is nil")
	}
	if err := img.checkAlive(); err != nil {
		return nil, err
	}
	if img.device != d {
		return nil, invalidArgument("flint: image belongs to a different device")
	}
	if spec.BaseMipLevel >= img.mips || spec.BaseLayer >= img.layers {
		return nil, invalidArgument("flint: view base (mip %d, layer %d) outside image (%d mips, %d layers)",
			spec.BaseMipLevel, spec.BaseLayer, img.mips, img.layers)
	}
	if spec.MipLevels == 0 {
		spec.MipLevels = img.mips - spec.BaseMipLevel
	}
	if spec.Layers == 0 {
		spec.Layers = img.layers - spec.BaseLayer
	}
	if spec.MipLevels > img.mips-spec.BaseMipLevel || spec.Layers > img.layers-spec.BaseLayer {
		return nil, invalidArgument("flint: view range exceeds image")
	}

	dim := img.typ.viewDimension()
	if img.typ.isCube() && spec.Layers%6 != 0 {
		dim = img.typ.flat().viewDimension()
	}
	view, err := d.hal.CreateTextureView(img.tex, &hal.TextureViewDescriptor{
		Label:           "flint.view",
		Format:          img.format.TextureFormat(),
		Dimension:       dim,
		Aspect:          img.aspect(),
		BaseMipLevel:    spec.BaseMipLevel,
		MipLevelCount:   spec.MipLevels,
		BaseArrayLayer:  spec.BaseLayer,
		ArrayLayerCount: spec.Layers,
	})
	if err != nil {
		return nil, backendError(err, "flint: create image view")
	}

	v := &ImageView{deviceObject: deviceObject{device: d, kind: "image view"}, image: img, spec: spec, view: view}
	d.track(&v.deviceObject, v)
	return v, nil
}

// flat returns the non-cube type used for partial cube views.
func (t ImageType) flat() ImageType {
	if t.isCube() {
		return ImageType2DArray
	}
	return t
}

// Image returns the viewed image.
func (v *ImageView) Image() *Image { return v.image }

// Specification returns the resolved subresource range.
func (v *ImageView) Specification() ImageViewSpecification { return v.spec }

// Terminate releases the view. The image is not affected.
func (v *ImageView) Terminate() error {
	if !v.beginTerminate() {
		return nil
	}
	v.device.hal.DestroyTextureView(v.view)
	v.view = nil
	return nil
}
