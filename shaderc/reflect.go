package shaderc

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/flint"
)

// reflectResources collects every module-scope variable with a
// @group/@binding pair.
func reflectResources(m *ir.Module) (flint.ShaderResources, error) {
	res := make(flint.ShaderResources)
	for _, gv := range m.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		typ, err := resourceType(m, gv)
		if err != nil {
			return nil, errors.Wrapf(err, "@group(%d) @binding(%d) %s", gv.Binding.Group, gv.Binding.Binding, gv.Name)
		}
		set := res[gv.Binding.Group]
		if set == nil {
			set = make(map[uint32]flint.ShaderResourceType)
			res[gv.Binding.Group] = set
		}
		set[gv.Binding.Binding] = typ
	}
	return res, nil
}

func resourceType(m *ir.Module, gv ir.GlobalVariable) (flint.ShaderResourceType, error) {
	switch gv.Space {
	case ir.SpaceUniform:
		return flint.ShaderResourceUniformBuffer, nil
	case ir.SpaceStorage:
		return flint.ShaderResourceStorageBuffer, nil
	}

	inner := innerType(m, gv.Type)
	if arr, ok := inner.(ir.BindingArrayType); ok {
		inner = innerType(m, arr.Base)
	}
	switch t := inner.(type) {
	case ir.SamplerType:
		return flint.ShaderResourceSampler, nil
	case ir.ImageType:
		if t.Class == ir.ImageClassStorage {
			return flint.ShaderResourceStorageImage, nil
		}
		return flint.ShaderResourceSampledImage, nil
	case ir.AccelerationStructureType:
		return flint.ShaderResourceAccelerationStructure, nil
	}
	return 0, errors.New("unsupported resource type")
}

func innerType(m *ir.Module, h ir.TypeHandle) ir.TypeInner {
	if int(h) >= len(m.Types) {
		return nil
	}
	return m.Types[h].Inner
}

// appendAttributes appends the @location values carried by a stage
// argument or result. Struct values contribute one attribute per member
// with a location; builtins are skipped.
func appendAttributes(dst []flint.ShaderAttribute, m *ir.Module, name string, h ir.TypeHandle, binding *ir.Binding) []flint.ShaderAttribute {
	if binding != nil {
		if loc, ok := (*binding).(ir.LocationBinding); ok {
			dst = append(dst, flint.ShaderAttribute{Name: name, Location: loc.Location, Size: sizeOf(m, h)})
		}
		return dst
	}
	st, ok := innerType(m, h).(ir.StructType)
	if !ok {
		return dst
	}
	for _, mem := range st.Members {
		dst = appendAttributes(dst, m, mem.Name, mem.Type, mem.Binding)
	}
	return dst
}

// sizeOf returns the byte size of scalar, vector and matrix types.
func sizeOf(m *ir.Module, h ir.TypeHandle) uint32 {
	switch t := innerType(m, h).(type) {
	case ir.ScalarType:
		return uint32(t.Width)
	case ir.VectorType:
		return uint32(t.Size) * uint32(t.Scalar.Width)
	case ir.MatrixType:
		return uint32(t.Columns) * uint32(t.Rows) * uint32(t.Scalar.Width)
	case ir.StructType:
		return t.Span
	}
	return 0
}
