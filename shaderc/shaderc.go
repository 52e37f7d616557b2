// Package shaderc compiles WGSL into shader descriptors for flint.
//
// Compilation goes through naga: the source is parsed, lowered to naga IR,
// validated and emitted as SPIR-V. The same IR is walked to reflect the
// resource bindings and stage interface, so descriptors never have to be
// written by hand.
//
//	mod, err := shaderc.CompileWGSL("quad.vert", source, flint.ShaderTypeVertex)
//	if err != nil {
//		return err
//	}
//	vs, err := device.CreateShader(mod.Descriptor())
package shaderc

import (
	"cmp"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"

	"github.com/gogpu/flint"
)

// Module is a compiled shader stage with its reflected interface.
type Module struct {
	Label      string
	Type       flint.ShaderType
	EntryPoint string

	// Code is SPIR-V bytecode.
	Code []uint32

	Resources flint.ShaderResources
	Inputs    []flint.ShaderAttribute
	Outputs   []flint.ShaderAttribute
	Workgroup [3]uint32
}

// Descriptor returns the descriptor flint.Device.CreateShader expects.
func (m *Module) Descriptor() flint.ShaderDescriptor {
	return flint.ShaderDescriptor{
		Label:      m.Label,
		Type:       m.Type,
		Code:       m.Code,
		EntryPoint: m.EntryPoint,
		Resources:  m.Resources,
		Inputs:     m.Inputs,
		Outputs:    m.Outputs,
		Workgroup:  m.Workgroup,
	}
}

// Options configures compilation.
type Options struct {
	// EntryPoint selects the entry point by name. Empty picks the first
	// entry point of the requested stage.
	EntryPoint string

	// Debug emits SPIR-V debug names.
	Debug bool
}

// CompileWGSL compiles source for stage with default options.
func CompileWGSL(label, source string, stage flint.ShaderType) (*Module, error) {
	return CompileWGSLWithOptions(label, source, stage, Options{})
}

// CompileWGSLWithOptions compiles source for stage. Source errors are
// marked with flint.ErrInvalidArgument.
func CompileWGSLWithOptions(label, source string, stage flint.ShaderType, opts Options) (*Module, error) {
	want, ok := irStage(stage)
	if !ok {
		return nil, errors.Mark(errors.Newf("shaderc: %s: WGSL has no %s stage", label, stage), flint.ErrInvalidArgument)
	}

	ast, err := naga.Parse(source)
	if err != nil {
		return nil, sourceError(err, label)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, sourceError(err, label)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, sourceError(err, label)
	}
	if len(verrs) > 0 {
		return nil, sourceError(&verrs[0], label)
	}

	ep, err := findEntryPoint(module, want, opts.EntryPoint)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "shaderc: %s", label), flint.ErrInvalidArgument)
	}

	bin, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3, Debug: opts.Debug})
	if err != nil {
		return nil, errors.Wrapf(err, "shaderc: %s: generate SPIR-V", label)
	}
	code, err := words(bin)
	if err != nil {
		return nil, errors.Wrapf(err, "shaderc: %s", label)
	}

	res, err := reflectResources(module)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "shaderc: %s", label), flint.ErrInvalidArgument)
	}

	m := &Module{
		Label:      label,
		Type:       stage,
		EntryPoint: ep.Name,
		Code:       code,
		Resources:  res,
		Workgroup:  ep.Workgroup,
	}
	for _, arg := range ep.Function.Arguments {
		m.Inputs = appendAttributes(m.Inputs, module, arg.Name, arg.Type, arg.Binding)
	}
	if r := ep.Function.Result; r != nil {
		m.Outputs = appendAttributes(m.Outputs, module, "", r.Type, r.Binding)
	}
	byLocation := func(a, b flint.ShaderAttribute) int { return cmp.Compare(a.Location, b.Location) }
	slices.SortFunc(m.Inputs, byLocation)
	slices.SortFunc(m.Outputs, byLocation)

	flint.Logger().Debug("shaderc: compiled",
		"label", label,
		"stage", stage.String(),
		"entry", ep.Name,
		"words", len(code),
		"sets", len(res))
	return m, nil
}

// CreateShader compiles source and creates the shader on device.
func CreateShader(device *flint.Device, label, source string, stage flint.ShaderType) (*flint.Shader, error) {
	m, err := CompileWGSL(label, source, stage)
	if err != nil {
		return nil, err
	}
	return device.CreateShader(m.Descriptor())
}

func sourceError(err error, label string) error {
	return errors.Mark(errors.Wrapf(err, "shaderc: %s", label), flint.ErrInvalidArgument)
}

func irStage(t flint.ShaderType) (ir.ShaderStage, bool) {
	switch t {
	case flint.ShaderTypeVertex:
		return ir.StageVertex, true
	case flint.ShaderTypeFragment:
		return ir.StageFragment, true
	case flint.ShaderTypeCompute:
		return ir.StageCompute, true
	default:
		return 0, false
	}
}

func findEntryPoint(m *ir.Module, stage ir.ShaderStage, name string) (*ir.EntryPoint, error) {
	for i := range m.EntryPoints {
		ep := &m.EntryPoints[i]
		if ep.Stage != stage {
			continue
		}
		if name == "" || ep.Name == name {
			return ep, nil
		}
	}
	if name != "" {
		return nil, errors.Newf("no entry point %q for the requested stage", name)
	}
	return nil, errors.New("no entry point for the requested stage")
}

// words converts little-endian SPIR-V bytes into 32-bit words.
func words(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, errors.Newf("SPIR-V length %d is not a multiple of 4", len(b))
	}
	code := make([]uint32, len(b)/4)
	for i := range code {
		code[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return code, nil
}
