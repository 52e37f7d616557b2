package flint

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ImageType selects the dimensionality and layout of an image.
type ImageType uint8

const (
	ImageType1D ImageType = iota
	ImageType2D
	ImageType3D
	ImageTypeCubeMap
	ImageType1DArray
	ImageType2DArray
	ImageTypeCubeMapArray
)

var imageTypeNames = [...]string{"1D", "2D", "3D", "CubeMap", "1DArray", "2DArray", "CubeMapArray"}

// String returns the image type name.
func (t ImageType) String() string {
	if int(t) < len(imageTypeNames) {
		return imageTypeNames[t]
	}
	return "Unknown"
}

func (t ImageType) dimension() gputypes.TextureDimension {
	switch t {
	case ImageType1D, ImageType1DArray:
		return gputypes.TextureDimension1D
	case ImageType3D:
		return gputypes.TextureDimension3D
	default:
		return gputypes.TextureDimension2D
	}
}

func (t ImageType) viewDimension() gputypes.TextureViewDimension {
	switch t {
	case ImageType1D, ImageType1DArray:
		return gputypes.TextureViewDimension1D
	case ImageType3D:
		return gputypes.TextureViewDimension3D
	case ImageTypeCubeMap:
		return gputypes.TextureViewDimensionCube
	case ImageTypeCubeMapArray:
		return gputypes.TextureViewDimensionCubeArray
	case ImageType2DArray:
		return gputypes.TextureViewDimension2DArray
	default:
		return gputypes.TextureViewDimension2D
	}
}

func (t ImageType) isCube() bool {
	return t == ImageTypeCubeMap || t == ImageTypeCubeMapArray
}

// ImageUsage is a set of ways an image is accessed.
type ImageUsage uint8

const (
	// ImageUsageGraphics allows sampling in shaders.
	ImageUsageGraphics ImageUsage = 1 << iota
	// ImageUsageStorage allows storage image access.
	ImageUsageStorage
	// ImageUsageDepth makes the image a depth attachment.
	ImageUsageDepth
	// ImageUsageColor makes the image a color attachment.
	ImageUsageColor
)

// Has reports whether all bits of other are set.
func (u ImageUsage) Has(other ImageUsage) bool { return u&other == other }

func (u ImageUsage) textureUsage() gputypes.TextureUsage {
	usage := gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc
	if u.Has(ImageUsageGraphics) {
		usage |= gputypes.TextureUsageTextureBinding
	}
	if u.Has(ImageUsageStorage) {
		usage |= gputypes.TextureUsageStorageBinding
	}
	if u&(ImageUsageDepth|ImageUsageColor) != 0 {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	return usage
}

// Image is a GPU texture together with a default view over all of it.
type Image struct {
	deviceObject

	typ    ImageType
	usage  ImageUsage
	extent Extent3D
	format PixelFormat
	layers uint32
	mips   uint32

	tex  hal.Texture
	view hal.TextureView
}

// CreateImage allocates an image. A mips value of zero requests the full
// mip chain for the extent.
//
// Zero extents, zero layers, an undefined format and mismatched cube layer
// counts are rejected before anything is allocated.
func (d *Device) CreateImage(typ ImageType, usage ImageUsage, extent Extent3D, format PixelFormat, layers, mips uint32) (*Image, error) {
	if err := checkDevice(d, "image"); err != nil {
		return nil, err
	}
	if err := validateImage(typ, usage, extent, format, layers); err != nil {
		return nil, err
	}
	if mips == 0 {
		mips = extent.MaxMipLevels()
	}
	if mips > extent.MaxMipLevels() {
		return nil, invalidArgument("flint: %d mip levels exceed %d for extent %s", mips, extent.MaxMipLevels(), extent)
	}

	img := &Image{
		deviceObject: deviceObject{device: d, kind: "image"},
		typ:          typ,
		usage:        usage,
		extent:       extent,
		format:       format,
		layers:       layers,
		mips:         mips,
	}
	if err := img.allocate(); err != nil {
		return nil, err
	}
	d.track(&img.deviceObject, img)
	return img, nil
}

func validateImage(typ ImageType, usage ImageUsage, extent Extent3D, format PixelFormat, layers uint32) error {
	switch {
	case typ > ImageTypeCubeMapArray:
		return invalidArgument("flint: image type %d is not valid", typ)
	case extent.IsZero():
		return invalidArgument("flint: image extent %s has a zero dimension", extent)
	case layers == 0:
		return invalidArgument("flint: image layer count is zero")
	case !format.valid() || format == PixelFormatUndefined:
		return invalidArgument("flint: image format %s is not valid", format)
	case usage == 0:
		return invalidArgument("flint: image usage is empty")
	case usage.Has(ImageUsageDepth) && !format.IsDepth():
		return invalidArgument("flint: depth usage needs a depth format, got %s", format)
	case typ.isCube() && (layers%6 != 0 || extent.Width != extent.Height):
		return invalidArgument("flint: cube image needs square faces and a multiple of 6 layers, got %s with %d layers", extent, layers)
	case typ != ImageType3D && extent.Depth != 1:
		return invalidArgument("flint: %s image must have depth 1, got %d", typ, extent.Depth)
	case (typ == ImageType1D || typ == ImageType1DArray) && extent.Height != 1:
		return invalidArgument("flint: 1D image must have height 1, got %d", extent.Height)
	case typ == ImageType3D && layers != 1:
		return invalidArgument("flint: 3D image cannot have %d layers", layers)
	}
	return nil
}

func (img *Image) allocate() error {
	d := img.device
	depth := img.layers
	if img.typ == ImageType3D {
		depth = img.extent.Depth
	}
	tex, err := d.hal.CreateTexture(&hal.TextureDescriptor{
		Label:         "flint.image." + img.typ.String(),
		Size:          hal.Extent3D{Width: img.extent.Width, Height: img.extent.Height, DepthOrArrayLayers: depth},
		MipLevelCount: img.mips,
		SampleCount:   1,
		Dimension:     img.typ.dimension(),
		Format:        img.format.TextureFormat(),
		Usage:         img.usage.textureUsage(),
	})
	if err != nil {
		return backendError(err, "flint: create %s image %s", img.typ, img.extent)
	}

	view, err := d.hal.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           "flint.image.view",
		Format:          img.format.TextureFormat(),
		Dimension:       img.typ.viewDimension(),
		Aspect:          img.aspect(),
		MipLevelCount:   img.mips,
		ArrayLayerCount: img.layers,
	})
	if err != nil {
		d.hal.DestroyTexture(tex)
		return backendError(err, "flint: create image view")
	}
	img.tex, img.view = tex, view
	return nil
}

func (img *Image) aspect() gputypes.TextureAspect {
	if img.usage.Has(ImageUsageDepth) {
		return gputypes.TextureAspectDepthOnly
	}
	return gputypes.TextureAspectAll
}

// Type returns the image type.
func (img *Image) Type() ImageType { return img.typ }

// Usage returns the usage bits.
func (img *Image) Usage() ImageUsage { return img.usage }

// Extent returns the size of mip level 0.
func (img *Image) Extent() Extent3D { return img.extent }

// Format returns the pixel format.
func (img *Image) Format() PixelFormat { return img.format }

// Layers returns the array layer count.
func (img *Image) Layers() uint32 { return img.layers }

// MipLevels returns the mip level count.
func (img *Image) MipLevels() uint32 { return img.mips }

// MipExtent returns the extent of mip level level.
func (img *Image) MipExtent(level uint32) Extent3D {
	return Extent3D{
		Width:  max(img.extent.Width>>level, 1),
		Height: max(img.extent.Height>>level, 1),
		Depth:  max(img.extent.Depth>>level, 1),
	}
}

// Write replaces mip level 0 of every layer with data, laid out tightly
// row by row and layer after layer.
func (img *Image) Write(data []byte) error {
	if err := img.checkAlive(); err != nil {
		return err
	}
	want := uint64(img.extent.Width) * uint64(img.extent.Height) * uint64(img.extent.Depth) *
		uint64(img.layers) * uint64(img.format.Size())
	if uint64(len(data)) != want {
		return invalidArgument("flint: image write needs %d bytes, got %d", want, len(data))
	}
	return img.writeLevel(0, img.extent, img.layers, data)
}

func (img *Image) writeLevel(level uint32, ext Extent3D, layers uint32, data []byte) error {
	depth := layers
	if img.typ == ImageType3D {
		depth = ext.Depth
	}
	return img.device.writeTexture(
		&hal.ImageCopyTexture{Texture: img.tex, MipLevel: level, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: ext.Width * img.format.Size(), RowsPerImage: ext.Height},
		&hal.Extent3D{Width: ext.Width, Height: ext.Height, DepthOrArrayLayers: depth},
	)
}

// Upload writes src into layer 0, scaling it to the image extent, and fills
// the remaining mip levels with downscaled copies.
//
// Only 2D images with an 8-bit RGBA or BGRA format can be uploaded.
func (img *Image) Upload(src image.Image) error {
	if err := img.checkAlive(); err != nil {
		return err
	}
	if src == nil {
		return invalidArgument("flint: upload source image is nil")
	}
	if img.typ != ImageType2D {
		return invalidArgument("flint: upload needs a 2D image, got %s", img.typ)
	}
	bgra := false
	switch img.format {
	case PixelFormatR8G8B8A8Unorm, PixelFormatR8G8B8A8SRGB:
	case PixelFormatB8G8R8A8Unorm, PixelFormatB8G8R8A8SRGB:
		bgra = true
	default:
		return invalidArgument("flint: upload does not support format %s", img.format)
	}

	level := image.NewRGBA(image.Rect(0, 0, int(img.extent.Width), int(img.extent.Height)))
	if src.Bounds().Size() == level.Bounds().Size() {
		draw.Draw(level, level.Bounds(), src, src.Bounds().Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(level, level.Bounds(), src, src.Bounds(), draw.Src, nil)
	}

	for mip := uint32(0); mip < img.mips; mip++ {
		if mip > 0 {
			ext := img.MipExtent(mip)
			next := image.NewRGBA(image.Rect(0, 0, int(ext.Width), int(ext.Height)))
			draw.BiLinear.Scale(next, next.Bounds(), level, level.Bounds(), draw.Src, nil)
			level = next
		}
		if err := img.writeLevel(mip, img.MipExtent(mip), 1, pixelBytes(level, bgra)); err != nil {
			return err
		}
	}
	return nil
}

// pixelBytes returns the tightly packed pixels of m, swapping red and blue
// when bgra is set.
func pixelBytes(m *image.RGBA, bgra bool) []byte {
	w, h := m.Bounds().Dx(), m.Bounds().Dy()
	out := make([]byte, 0, w*h*4)
	for y := 0; y < h; y++ {
		row := m.Pix[y*m.Stride : y*m.Stride+w*4]
		out = append(out, row...)
	}
	if bgra {
		for i := 0; i < len(out); i += 4 {
			out[i], out[i+2] = out[i+2], out[i]
		}
	}
	return out
}

// Fill writes a uniform color into mip level 0 of every layer.
func (img *Image) Fill(c color.Color) error {
	if img.format.Size() != 4 || img.format.IsDepth() {
		return invalidArgument("flint: fill does not support format %s", img.format)
	}
	r, g, b, a := c.RGBA()
	px := [4]byte{byte(r >> 8), byte(g >> 8), byte(b >> 8), byte(a >> 8)}
	if img.format == PixelFormatB8G8R8A8Unorm || img.format == PixelFormatB8G8R8A8SRGB {
		px[0], px[2] = px[2], px[0]
	}
	n := int(img.extent.Width) * int(img.extent.Height) * int(img.extent.Depth) * int(img.layers)
	data := make([]byte, 0, n*4)
	for i := 0; i < n; i++ {
		data = append(data, px[:]...)
	}
	return img.Write(data)
}

// Terminate releases the texture and its default view.
func (img *Image) Terminate() error {
	if !img.beginTerminate() {
		return nil
	}
	img.device.hal.DestroyTextureView(img.view)
	img.device.hal.DestroyTexture(img.tex)
	img.view, img.tex = nil, nil
	return nil
}
