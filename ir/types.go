package ir

import (
	"strconv"
	"strings"
	"sync"
)

// TypeLookup resolves type handles. Both TypeRegistry and Types implement it.
type TypeLookup interface {
	Lookup(handle TypeHandle) (Type, bool)
}

// Types is a shader's type arena.
type Types []Type

// Lookup finds a type by its handle.
func (t Types) Lookup(handle TypeHandle) (Type, bool) {
	if int(handle) >= len(t) {
		return Type{}, false
	}
	return t[handle], true
}

// Inner returns the inner type for a handle, or nil if the handle is invalid.
func Inner(types TypeLookup, handle TypeHandle) TypeInner {
	typ, ok := types.Lookup(handle)
	if !ok {
		return nil
	}
	return typ.Inner
}

// IsOpaque reports whether values of the type live outside buffer memory.
func IsOpaque(inner TypeInner) bool {
	switch inner.(type) {
	case SamplerType, ImageType, AtomicCounterType, SubroutineType:
		return true
	}
	return false
}

// IsBlock reports whether the handle names an interface block, possibly an
// array of one.
func IsBlock(types TypeLookup, handle TypeHandle) bool {
	base, _ := StripArrays(types, handle)
	_, ok := Inner(types, base).(InterfaceType)
	return ok
}

// ComponentCount returns the number of scalar components of a scalar,
// vector or matrix type, and 0 for anything else.
func ComponentCount(inner TypeInner) uint32 {
	switch t := inner.(type) {
	case ScalarType:
		return 1
	case VectorType:
		return uint32(t.Size)
	case MatrixType:
		return uint32(t.Columns) * uint32(t.Rows)
	}
	return 0
}

// ScalarOf returns the scalar type underlying a scalar, vector or matrix.
func ScalarOf(inner TypeInner) (ScalarType, bool) {
	switch t := inner.(type) {
	case ScalarType:
		return t, true
	case VectorType:
		return t.Scalar, true
	case MatrixType:
		return t.Scalar, true
	}
	return ScalarType{}, false
}

// StripArrays peels every array level off a type. dims lists the lengths,
// outermost first; 0 marks an unsized dimension.
func StripArrays(types TypeLookup, handle TypeHandle) (base TypeHandle, dims []uint32) {
	base = handle
	for i := 0; i <= MaxTypeDepth; i++ {
		arr, ok := Inner(types, base).(ArrayType)
		if !ok {
			break
		}
		dims = append(dims, arr.Size.Len())
		base = arr.Base
	}
	return base, dims
}

// TypeString renders a type in GLSL syntax for diagnostics.
func TypeString(types TypeLookup, handle TypeHandle) string {
	base, dims := StripArrays(types, handle)
	var sb strings.Builder
	typ, ok := types.Lookup(base)
	if !ok {
		return "<invalid>"
	}
	sb.WriteString(innerString(typ))
	for _, d := range dims {
		sb.WriteByte('[')
		if d != 0 {
			sb.WriteString(strconv.FormatUint(uint64(d), 10))
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

func innerString(typ Type) string {
	switch t := typ.Inner.(type) {
	case ScalarType:
		return scalarName(t)
	case VectorType:
		return vectorPrefix(t.Scalar) + "vec" + strconv.Itoa(int(t.Size))
	case MatrixType:
		prefix := ""
		if t.Scalar.Is64Bit() {
			prefix = "d"
		}
		if t.Columns == t.Rows {
			return prefix + "mat" + strconv.Itoa(int(t.Columns))
		}
		return prefix + "mat" + strconv.Itoa(int(t.Columns)) + "x" + strconv.Itoa(int(t.Rows))
	case SamplerType:
		name := kindPrefix(t.Kind) + "sampler" + dimName(t.Dim)
		if t.Arrayed {
			name += "Array"
		}
		if t.Shadow {
			name += "Shadow"
		}
		return name
	case ImageType:
		name := kindPrefix(t.Kind) + "image" + dimName(t.Dim)
		if t.Multisampled {
			name += "MS"
		}
		if t.Arrayed {
			name += "Array"
		}
		return name
	case AtomicCounterType:
		return "atomic_uint"
	case SubroutineType:
		return t.Name
	case StructType, InterfaceType:
		return typ.Name
	}
	return "<unknown>"
}

func scalarName(s ScalarType) string {
	switch s.Kind {
	case ScalarSint:
		if s.Is64Bit() {
			return "int64_t"
		}
		return "int"
	case ScalarUint:
		if s.Is64Bit() {
			return "uint64_t"
		}
		return "uint"
	case ScalarBool:
		return "bool"
	default:
		if s.Is64Bit() {
			return "double"
		}
		return "float"
	}
}

func vectorPrefix(s ScalarType) string {
	switch s.Kind {
	case ScalarSint:
		if s.Is64Bit() {
			return "i64"
		}
		return "i"
	case ScalarUint:
		if s.Is64Bit() {
			return "u64"
		}
		return "u"
	case ScalarBool:
		return "b"
	default:
		if s.Is64Bit() {
			return "d"
		}
		return ""
	}
}

func kindPrefix(k ScalarKind) string {
	switch k {
	case ScalarSint:
		return "i"
	case ScalarUint:
		return "u"
	}
	return ""
}

func dimName(d ImageDimension) string {
	switch d {
	case Dim1D:
		return "1D"
	case Dim3D:
		return "3D"
	case DimCube:
		return "Cube"
	case DimRect:
		return "2DRect"
	case DimBuffer:
		return "Buffer"
	}
	return "2D"
}

// BuiltinType returns the inner type of a GLSL built-in type name such as
// "vec3", "dmat4x3", "usampler2DArray" or "atomic_uint". The accepted
// names are exactly the ones TypeString produces, plus "matNxN" for square
// matrices.
func BuiltinType(name string) (TypeInner, bool) {
	t, ok := builtinTypes()[name]
	return t, ok
}

var builtinTypes = sync.OnceValue(func() map[string]TypeInner {
	m := make(map[string]TypeInner)
	add := func(t TypeInner) {
		m[innerString(Type{Inner: t})] = t
	}

	scalars := []ScalarType{
		{Kind: ScalarFloat, Width: 4},
		{Kind: ScalarFloat, Width: 8},
		{Kind: ScalarSint, Width: 4},
		{Kind: ScalarSint, Width: 8},
		{Kind: ScalarUint, Width: 4},
		{Kind: ScalarUint, Width: 8},
		{Kind: ScalarBool, Width: 4},
	}
	for _, s := range scalars {
		add(s)
		for n := Vec2; n <= Vec4; n++ {
			add(VectorType{Size: n, Scalar: s})
		}
	}
	for _, s := range scalars[:2] {
		for c := Vec2; c <= Vec4; c++ {
			for r := Vec2; r <= Vec4; r++ {
				add(MatrixType{Columns: c, Rows: r, Scalar: s})
			}
			prefix := ""
			if s.Is64Bit() {
				prefix = "d"
			}
			m[prefix+"mat"+strconv.Itoa(int(c))+"x"+strconv.Itoa(int(c))] = MatrixType{Columns: c, Rows: c, Scalar: s}
		}
	}

	for _, kind := range []ScalarKind{ScalarFloat, ScalarSint, ScalarUint} {
		for dim := Dim1D; dim <= DimBuffer; dim++ {
			for _, arrayed := range []bool{false, true} {
				if arrayed && (dim == Dim3D || dim == DimRect || dim == DimBuffer) {
					continue
				}
				add(SamplerType{Dim: dim, Arrayed: arrayed, Kind: kind})
				if kind == ScalarFloat && dim != Dim3D && dim != DimBuffer {
					add(SamplerType{Dim: dim, Arrayed: arrayed, Shadow: true, Kind: kind})
				}
				add(ImageType{Dim: dim, Arrayed: arrayed, Kind: kind})
				if dim == Dim2D {
					add(ImageType{Dim: dim, Arrayed: arrayed, Multisampled: true, Kind: kind})
				}
			}
		}
	}
	add(AtomicCounterType{})
	return m
})
