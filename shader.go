package flint

import (
	"maps"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ShaderType is the pipeline stage a shader runs in.
type ShaderType uint8

const (
	ShaderTypeUndefined ShaderType = iota
	ShaderTypeVertex
	ShaderTypeTessellationControl
	ShaderTypeTessellationEvaluation
	ShaderTypeGeometry
	ShaderTypeFragment
	ShaderTypeCompute
)

var shaderTypeNames = [...]string{
	"Undefined", "Vertex", "TessellationControl", "TessellationEvaluation",
	"Geometry", "Fragment", "Compute",
}

// String returns the stage name.
func (t ShaderType) String() string {
	if int(t) < len(shaderTypeNames) {
		return shaderTypeNames[t]
	}
	return "Unknown"
}

// stage maps the shader type onto HAL stage bits. Stages the HAL has no
// equivalent for return zero.
func (t ShaderType) stage() gputypes.ShaderStages {
	switch t {
	case ShaderTypeVertex:
		return gputypes.ShaderStageVertex
	case ShaderTypeFragment:
		return gputypes.ShaderStageFragment
	case ShaderTypeCompute:
		return gputypes.ShaderStageCompute
	default:
		return 0
	}
}

// ShaderResourceType is the kind of resource bound at a shader binding.
type ShaderResourceType uint8

const (
	ShaderResourceSampler ShaderResourceType = iota
	ShaderResourceCombinedImageSampler
	ShaderResourceSampledImage
	ShaderResourceStorageImage
	ShaderResourceUniformTexelBuffer
	ShaderResourceStorageTexelBuffer
	ShaderResourceUniformBuffer
	ShaderResourceStorageBuffer
	ShaderResourceUniformBufferDynamic
	ShaderResourceStorageBufferDynamic
	ShaderResourceInputAttachment
	ShaderResourceAccelerationStructure
)

var shaderResourceNames = [...]string{
	"Sampler", "CombinedImageSampler", "SampledImage", "StorageImage",
	"UniformTexelBuffer", "StorageTexelBuffer", "UniformBuffer", "StorageBuffer",
	"UniformBufferDynamic", "StorageBufferDynamic", "InputAttachment",
	"AccelerationStructure",
}

// String returns the resource type name.
func (t ShaderResourceType) String() string {
	if int(t) < len(shaderResourceNames) {
		return shaderResourceNames[t]
	}
	return "Unknown"
}

// IsImage reports whether the resource is bound through an image binding.
func (t ShaderResourceType) IsImage() bool {
	switch t {
	case ShaderResourceSampler, ShaderResourceCombinedImageSampler,
		ShaderResourceSampledImage, ShaderResourceStorageImage:
		return true
	default:
		return false
	}
}

// ShaderAttribute is one vertex input or stage output.
type ShaderAttribute struct {
	Name     string
	Location uint32
	// Size is the attribute size in bytes.
	Size uint32
}

// ShaderResources maps set index to binding index to resource type.
type ShaderResources map[uint32]map[uint32]ShaderResourceType

// Clone returns a deep copy.
func (r ShaderResources) Clone() ShaderResources {
	out := make(ShaderResources, len(r))
	for set, bindings := range r {
		out[set] = maps.Clone(bindings)
	}
	return out
}

// Sets returns the declared set indices in ascending order.
func (r ShaderResources) Sets() []uint32 {
	return slices.Sorted(maps.Keys(r))
}

// ShaderDescriptor carries compiled shader code and its reflection data.
type ShaderDescriptor struct {
	Label string
	Type  ShaderType

	// Code is SPIR-V bytecode.
	Code []uint32

	// WGSL optionally carries the source for backends that consume WGSL.
	WGSL string

	// EntryPoint defaults to "main".
	EntryPoint string

	Resources ShaderResources
	Inputs    []ShaderAttribute
	Outputs   []ShaderAttribute

	// Workgroup is the compute workgroup size, informational only.
	Workgroup [3]uint32
}

// Shader is a compiled shader module with its reflected interface.
type Shader struct {
	deviceObject

	desc   ShaderDescriptor
	module hal.ShaderModule
}

// CreateShader creates a shader module from compiled code.
func (d *Device) CreateShader(desc ShaderDescriptor) (*Shader, error) {
	if err := checkDevice(d, "shader"); err != nil {
		return nil, err
	}
	if desc.Type == ShaderTypeUndefined || desc.Type > ShaderTypeCompute {
		return nil, invalidArgument("flint: shader type %d is not valid", desc.Type)
	}
	if len(desc.Code) == 0 && desc.WGSL == "" {
		return nil, invalidArgument("flint: %s shader has no code", desc.Type)
	}
	if desc.EntryPoint == "" {
		desc.EntryPoint = "main"
	}
	desc.Code = slices.Clone(desc.Code)
	desc.Resources = desc.Resources.Clone()
	desc.Inputs = slices.Clone(desc.Inputs)
	desc.Outputs = slices.Clone(desc.Outputs)

	module, err := d.hal.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{WGSL: desc.WGSL, SPIRV: desc.Code},
	})
	if err != nil {
		return nil, backendError(err, "flint: create %s shader %q", desc.Type, desc.Label)
	}

	s := &Shader{deviceObject: deviceObject{device: d, kind: "shader"}, desc: desc, module: module}
	d.track(&s.deviceObject, s)
	return s, nil
}

// Type returns the shader stage.
func (s *Shader) Type() ShaderType { return s.desc.Type }

// Label returns the debug label.
func (s *Shader) Label() string { return s.desc.Label }

// EntryPoint returns the entry point name.
func (s *Shader) EntryPoint() string { return s.desc.EntryPoint }

// Code returns the SPIR-V words. The slice must not be modified.
func (s *Shader) Code() []uint32 { return s.desc.Code }

// Resources returns a copy of the reflected resource map.
func (s *Shader) Resources() ShaderResources { return s.desc.Resources.Clone() }

// Inputs returns the stage inputs ordered by location.
func (s *Shader) Inputs() []ShaderAttribute { return slices.Clone(s.desc.Inputs) }

// Outputs returns the stage outputs ordered by location.
func (s *Shader) Outputs() []ShaderAttribute { return slices.Clone(s.desc.Outputs) }

// Terminate releases the shader module.
func (s *Shader) Terminate() error {
	if !s.beginTerminate() {
		return nil
	}
	s.device.hal.DestroyShaderModule(s.module)
	s.module = nil
	return nil
}
