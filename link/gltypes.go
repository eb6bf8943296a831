// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import "github.com/gogpu/glslink/ir"

// GL type enums reported by the Type property.
const (
	glFloat          = 0x1406
	glFloatVec2      = 0x8B50
	glInt            = 0x1404
	glIntVec2        = 0x8B53
	glUnsignedInt    = 0x1405
	glUnsignedVec2   = 0x8DC6
	glBool           = 0x8B56
	glBoolVec2       = 0x8B57
	glDouble         = 0x140A
	glDoubleVec2     = 0x8FFC
	glInt64          = 0x140E
	glInt64Vec2      = 0x8FE9
	glUnsignedInt64  = 0x140F
	glUnsigned64Vec2 = 0x8FF5
	glAtomicUint     = 0x92DB

	glImage1D         = 0x904C
	glIntImage1D      = 0x9057
	glUnsignedImage1D = 0x9062
)

// floatMatrices and doubleMatrices are indexed by [columns-2][rows-2].
var floatMatrices = [3][3]uint32{
	{0x8B5A, 0x8B65, 0x8B66}, // mat2, mat2x3, mat2x4
	{0x8B67, 0x8B5B, 0x8B68}, // mat3x2, mat3, mat3x4
	{0x8B69, 0x8B6A, 0x8B5C}, // mat4x2, mat4x3, mat4
}

var doubleMatrices = [3][3]uint32{
	{0x8F46, 0x8F49, 0x8F4A},
	{0x8F4B, 0x8F47, 0x8F4C},
	{0x8F4D, 0x8F4E, 0x8F48},
}

// GLType returns the GL type enum of a uniform, block member or I/O leaf
// type, or 0 for types without one (structs, blocks, subroutines).
func GLType(types ir.TypeLookup, h ir.TypeHandle) uint32 {
	switch t := ir.Inner(types, h).(type) {
	case ir.ScalarType:
		return scalarEnum(t)
	case ir.VectorType:
		// The vecN enums of each scalar type are consecutive.
		base := vectorEnum(t.Scalar)
		if base == 0 {
			return 0
		}
		return base + uint32(t.Size) - 2
	case ir.MatrixType:
		if t.Columns < 2 || t.Columns > 4 || t.Rows < 2 || t.Rows > 4 {
			return 0
		}
		if t.Scalar.Is64Bit() {
			return doubleMatrices[t.Columns-2][t.Rows-2]
		}
		return floatMatrices[t.Columns-2][t.Rows-2]
	case ir.SamplerType:
		return samplerEnum(t)
	case ir.ImageType:
		return imageEnum(t)
	case ir.AtomicCounterType:
		return glAtomicUint
	}
	return 0
}

func scalarEnum(s ir.ScalarType) uint32 {
	switch s.Kind {
	case ir.ScalarSint:
		if s.Is64Bit() {
			return glInt64
		}
		return glInt
	case ir.ScalarUint:
		if s.Is64Bit() {
			return glUnsignedInt64
		}
		return glUnsignedInt
	case ir.ScalarBool:
		return glBool
	case ir.ScalarFloat:
		if s.Is64Bit() {
			return glDouble
		}
		return glFloat
	}
	return 0
}

func vectorEnum(s ir.ScalarType) uint32 {
	switch s.Kind {
	case ir.ScalarSint:
		if s.Is64Bit() {
			return glInt64Vec2
		}
		return glIntVec2
	case ir.ScalarUint:
		if s.Is64Bit() {
			return glUnsigned64Vec2
		}
		return glUnsignedVec2
	case ir.ScalarBool:
		return glBoolVec2
	case ir.ScalarFloat:
		if s.Is64Bit() {
			return glDoubleVec2
		}
		return glFloatVec2
	}
	return 0
}

func samplerEnum(t ir.SamplerType) uint32 {
	if t.Shadow {
		switch {
		case t.Dim == ir.Dim1D && t.Arrayed:
			return 0x8DC3
		case t.Dim == ir.Dim1D:
			return 0x8B61
		case t.Dim == ir.Dim2D && t.Arrayed:
			return 0x8DC4
		case t.Dim == ir.Dim2D:
			return 0x8B62
		case t.Dim == ir.DimRect:
			return 0x8B64
		case t.Dim == ir.DimCube && t.Arrayed:
			return 0x900D
		case t.Dim == ir.DimCube:
			return 0x8DC5
		}
		return 0
	}

	switch t.Kind {
	case ir.ScalarSint:
		return pick(t, 0x8DC9, 0x8DCA, 0x8DCB, 0x8DCC, 0x8DCD, 0x8DD0, 0x8DCE, 0x8DCF, 0x900E)
	case ir.ScalarUint:
		return pick(t, 0x8DD1, 0x8DD2, 0x8DD3, 0x8DD4, 0x8DD5, 0x8DD8, 0x8DD6, 0x8DD7, 0x900F)
	}
	return pick(t, 0x8B5D, 0x8B5E, 0x8B5F, 0x8B60, 0x8B63, 0x8DC2, 0x8DC0, 0x8DC1, 0x900C)
}

// pick selects a sampler enum by dimension and arrayness.
func pick(t ir.SamplerType, d1, d2, d3, cube, rect, buffer, d1Array, d2Array, cubeArray uint32) uint32 {
	switch t.Dim {
	case ir.Dim1D:
		if t.Arrayed {
			return d1Array
		}
		return d1
	case ir.Dim2D:
		if t.Arrayed {
			return d2Array
		}
		return d2
	case ir.Dim3D:
		return d3
	case ir.DimCube:
		if t.Arrayed {
			return cubeArray
		}
		return cube
	case ir.DimRect:
		return rect
	case ir.DimBuffer:
		return buffer
	}
	return 0
}

// imageEnum follows the GL image enum order: 1D, 2D, 3D, 2DRect, Cube,
// Buffer, 1DArray, 2DArray, CubeArray, 2DMS, 2DMSArray.
func imageEnum(t ir.ImageType) uint32 {
	var n uint32
	switch {
	case t.Dim == ir.Dim1D && t.Arrayed:
		n = 6
	case t.Dim == ir.Dim1D:
		n = 0
	case t.Dim == ir.Dim2D && t.Multisampled && t.Arrayed:
		n = 10
	case t.Dim == ir.Dim2D && t.Multisampled:
		n = 9
	case t.Dim == ir.Dim2D && t.Arrayed:
		n = 7
	case t.Dim == ir.Dim2D:
		n = 1
	case t.Dim == ir.Dim3D:
		n = 2
	case t.Dim == ir.DimRect:
		n = 3
	case t.Dim == ir.DimCube && t.Arrayed:
		n = 8
	case t.Dim == ir.DimCube:
		n = 4
	case t.Dim == ir.DimBuffer:
		n = 5
	default:
		return 0
	}
	switch t.Kind {
	case ir.ScalarSint:
		return glIntImage1D + n
	case ir.ScalarUint:
		return glUnsignedImage1D + n
	}
	return glImage1D + n
}
