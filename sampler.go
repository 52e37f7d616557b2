package flint

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// SamplerSpecification describes how an ImageSampler filters and addresses
// texels.
type SamplerSpecification struct {
	MagFilter    gputypes.FilterMode
	MinFilter    gputypes.FilterMode
	MipmapFilter gputypes.FilterMode

	AddressModeU gputypes.AddressMode
	AddressModeV gputypes.AddressMode
	AddressModeW gputypes.AddressMode

	MinLOD float32
	MaxLOD float32

	// MaxAnisotropy is 1 when anisotropic filtering is off. At most 16.
	MaxAnisotropy uint16

	// Compare enables depth comparison when not CompareFunctionUndefined.
	Compare gputypes.CompareFunction
}

// DefaultSamplerSpecification returns linear filtering with repeat addressing.
func DefaultSamplerSpecification() SamplerSpecification {
	return SamplerSpecification{
		MagFilter:     gputypes.FilterModeLinear,
		MinFilter:     gputypes.FilterModeLinear,
		MipmapFilter:  gputypes.FilterModeLinear,
		AddressModeU:  gputypes.AddressModeRepeat,
		AddressModeV:  gputypes.AddressModeRepeat,
		AddressModeW:  gputypes.AddressModeRepeat,
		MaxLOD:        32,
		MaxAnisotropy: 1,
	}
}

// ImageSampler is a GPU sampler object.
type ImageSampler struct {
	deviceObject

	spec    SamplerSpecification
	sampler hal.Sampler
}

// CreateImageSampler creates a sampler from spec.
func (d *Device) CreateImageSampler(spec SamplerSpecification) (*ImageSampler, error) {
	if err := checkDevice(d, "image sampler"); err != nil {
		return nil, err
	}
	if spec.MaxAnisotropy == 0 {
		spec.MaxAnisotropy = 1
	}
	if spec.MaxAnisotropy > 16 {
		return nil, invalidArgument("flint: sampler anisotropy %d exceeds 16", spec.MaxAnisotropy)
	}
	if spec.MinLOD < 0 || spec.MaxLOD < spec.MinLOD {
		return nil, invalidArgument("flint: sampler lod range [%g, %g] is not valid", spec.MinLOD, spec.MaxLOD)
	}

	s, err := d.hal.CreateSampler(&hal.SamplerDescriptor{
		Label:        "flint.sampler",
		AddressModeU: spec.AddressModeU,
		AddressModeV: spec.AddressModeV,
		AddressModeW: spec.AddressModeW,
		MagFilter:    spec.MagFilter,
		MinFilter:    spec.MinFilter,
		MipmapFilter: spec.MipmapFilter,
		LodMinClamp:  spec.MinLOD,
		LodMaxClamp:  spec.MaxLOD,
		Compare:      spec.Compare,
		Anisotropy:   spec.MaxAnisotropy,
	})
	if err != nil {
		return nil, backendError(err, "flint: create sampler")
	}

	smp := &ImageSampler{deviceObject: deviceObject{device: d, kind: "image sampler"}, spec: spec, sampler: s}
	d.track(&smp.deviceObject, smp)
	return smp, nil
}

// Specification returns the sampler parameters.
func (s *ImageSampler) Specification() SamplerSpecification { return s.spec }

// IsComparison reports whether the sampler compares depth values.
func (s *ImageSampler) IsComparison() bool {
	return s.spec.Compare != gputypes.CompareFunctionUndefined
}

// Terminate releases the sampler.
func (s *ImageSampler) Terminate() error {
	if !s.beginTerminate() {
		return nil
	}
	s.device.hal.DestroySampler(s.sampler)
	s.sampler = nil
	return nil
}
