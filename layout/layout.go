// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package layout

import (
	"github.com/gogpu/glslink/ir"
)

// Rules selects the alignment table used for a block.
type Rules uint8

const (
	// Std140 rounds array strides and struct alignment up to 16 bytes.
	Std140 Rules = iota
	// Std430 uses the natural alignment of array elements and structs.
	Std430
)

// RulesFor maps a packing qualifier to its alignment table. shared and
// packed are laid out as std140.
func RulesFor(p ir.Packing) Rules {
	if p == ir.PackingStd430 {
		return Std430
	}
	return Std140
}

// vec4Align is the std140 rounding unit.
const vec4Align = 16

// Layout is the size and base alignment of a type.
type Layout struct {
	Size  uint32
	Align uint32
}

// Member describes where one struct or block member lives.
type Member struct {
	Offset       uint32
	Size         uint32
	Align        uint32
	RowMajor     bool
	ArrayStride  uint32
	MatrixStride uint32
}

// Calculator computes std140/std430 layouts over a type arena.
//
// When Explicit is set (SPIR-V sourced input) member offsets, array strides
// and matrix strides present on the types are used verbatim; anything
// missing falls back to the packing rules.
type Calculator struct {
	types    ir.TypeLookup
	rules    Rules
	explicit bool
}

// New creates a calculator for the given packing.
func New(types ir.TypeLookup, packing ir.Packing, explicit bool) *Calculator {
	return &Calculator{
		types:    types,
		rules:    RulesFor(packing),
		explicit: explicit,
	}
}

// Rules returns the alignment table in use.
func (c *Calculator) Rules() Rules {
	return c.rules
}

// ComputeLayout returns the size and base alignment of a type. Unsized
// arrays have size zero.
func (c *Calculator) ComputeLayout(handle ir.TypeHandle, rowMajor bool) Layout {
	return Layout{
		Size:  c.size(handle, rowMajor, false, 0),
		Align: c.align(handle, rowMajor, 0),
	}
}

// ComputeFieldOffset returns the offset of member fieldIndex of a struct or
// block, given the running offset just past the previous member.
func (c *Calculator) ComputeFieldOffset(parent ir.TypeHandle, fieldIndex int, running uint32, rowMajor bool) uint32 {
	members := c.membersOf(parent)
	if fieldIndex < 0 || fieldIndex >= len(members) {
		return running
	}
	m := members[fieldIndex]
	memberRowMajor := resolveRowMajor(m.Layout, rowMajor)
	if c.explicit && m.Offset != nil {
		return *m.Offset
	}
	a := c.align(m.Type, memberRowMajor, 0)
	if m.Align != nil && *m.Align > a {
		a = *m.Align
	}
	if m.Offset != nil && *m.Offset > running {
		running = *m.Offset
	}
	return alignTo(running, a)
}

// Members lays out every member of a struct or block.
func (c *Calculator) Members(parent ir.TypeHandle, rowMajor bool) []Member {
	members := c.membersOf(parent)
	out := make([]Member, len(members))
	var running uint32
	for i, m := range members {
		memberRowMajor := resolveRowMajor(m.Layout, rowMajor)
		offset := c.ComputeFieldOffset(parent, i, running, rowMajor)
		size := c.size(m.Type, memberRowMajor, false, 0)
		out[i] = Member{
			Offset:       offset,
			Size:         size,
			Align:        c.align(m.Type, memberRowMajor, 0),
			RowMajor:     memberRowMajor,
			ArrayStride:  c.ArrayStride(m.Type, memberRowMajor),
			MatrixStride: c.memberMatrixStride(m, memberRowMajor),
		}
		running = offset + size
	}
	return out
}

// BlockSize returns the minimum buffer size of a block: the end of its last
// member, with a trailing unsized array counted as one element, rounded up
// to 16 bytes.
func (c *Calculator) BlockSize(block ir.TypeHandle, rowMajor bool) uint32 {
	return alignTo(c.structEnd(block, rowMajor, true, 0), vec4Align)
}

// ArrayStride returns the stride between elements of an array type, or 0
// for non-arrays.
func (c *Calculator) ArrayStride(handle ir.TypeHandle, rowMajor bool) uint32 {
	arr, ok := ir.Inner(c.types, handle).(ir.ArrayType)
	if !ok {
		return 0
	}
	return c.arrayStride(arr, rowMajor, 0)
}

// MatrixStride returns the stride between columns (or rows when row-major)
// of a matrix or array of matrices, or 0 for anything else.
func (c *Calculator) MatrixStride(handle ir.TypeHandle, rowMajor bool) uint32 {
	base, _ := ir.StripArrays(c.types, handle)
	m, ok := ir.Inner(c.types, base).(ir.MatrixType)
	if !ok {
		return 0
	}
	return c.matrixStride(m, rowMajor)
}

func (c *Calculator) memberMatrixStride(m ir.StructMember, rowMajor bool) uint32 {
	stride := c.MatrixStride(m.Type, rowMajor)
	if stride != 0 && c.explicit && m.MatrixStride != nil {
		return *m.MatrixStride
	}
	return stride
}

func (c *Calculator) membersOf(handle ir.TypeHandle) []ir.StructMember {
	switch t := ir.Inner(c.types, handle).(type) {
	case ir.StructType:
		return t.Members
	case ir.InterfaceType:
		return t.Members
	}
	return nil
}

// align returns the base alignment of a type.
func (c *Calculator) align(handle ir.TypeHandle, rowMajor bool, depth int) uint32 {
	if depth > ir.MaxTypeDepth {
		return 0
	}
	switch t := ir.Inner(c.types, handle).(type) {
	case ir.ScalarType:
		return scalarSize(t)
	case ir.VectorType:
		return vectorAlign(t.Size, t.Scalar)
	case ir.MatrixType:
		// A matrix is laid out as an array of its column (or row) vectors.
		return c.roundArrayAlign(vectorAlign(matrixVectorSize(t, rowMajor), t.Scalar))
	case ir.ArrayType:
		return c.roundArrayAlign(c.align(t.Base, rowMajor, depth+1))
	case ir.StructType:
		return c.structAlign(t.Members, rowMajor, depth)
	case ir.InterfaceType:
		return c.structAlign(t.Members, rowMajor, depth)
	case ir.SamplerType, ir.ImageType:
		// Bindless handles are stored as 64-bit values.
		return 8
	}
	return 4
}

func (c *Calculator) structAlign(members []ir.StructMember, rowMajor bool, depth int) uint32 {
	maxAlign := uint32(1)
	for _, m := range members {
		a := c.align(m.Type, resolveRowMajor(m.Layout, rowMajor), depth+1)
		if m.Align != nil && *m.Align > a {
			a = *m.Align
		}
		if a > maxAlign {
			maxAlign = a
		}
	}
	if c.rules == Std140 {
		maxAlign = alignTo(maxAlign, vec4Align)
	}
	return maxAlign
}

// roundArrayAlign applies the std140 vec4 rounding to array-like alignment.
func (c *Calculator) roundArrayAlign(a uint32) uint32 {
	if c.rules == Std140 {
		return alignTo(a, vec4Align)
	}
	return a
}

// size returns the size of a type. With unsizedAsOne, unsized arrays count
// as a single element.
func (c *Calculator) size(handle ir.TypeHandle, rowMajor, unsizedAsOne bool, depth int) uint32 {
	if depth > ir.MaxTypeDepth {
		return 0
	}
	switch t := ir.Inner(c.types, handle).(type) {
	case ir.ScalarType:
		return scalarSize(t)
	case ir.VectorType:
		return uint32(t.Size) * scalarSize(t.Scalar)
	case ir.MatrixType:
		return uint32(matrixVectorCount(t, rowMajor)) * c.matrixStride(t, rowMajor)
	case ir.ArrayType:
		n := t.Size.Len()
		if n == 0 && unsizedAsOne {
			n = 1
		}
		return n * c.arrayStride(t, rowMajor, depth)
	case ir.StructType:
		end := c.structEnd(handle, rowMajor, unsizedAsOne, depth)
		if c.explicit && c.hasExplicitOffsets(t.Members) {
			return end
		}
		return alignTo(end, c.structAlign(t.Members, rowMajor, depth))
	case ir.InterfaceType:
		return c.structEnd(handle, rowMajor, unsizedAsOne, depth)
	case ir.SamplerType, ir.ImageType:
		return 8
	}
	return 4
}

func (c *Calculator) hasExplicitOffsets(members []ir.StructMember) bool {
	for _, m := range members {
		if m.Offset == nil {
			return false
		}
	}
	return len(members) > 0
}

// structEnd returns the offset just past the last member.
func (c *Calculator) structEnd(handle ir.TypeHandle, rowMajor, unsizedAsOne bool, depth int) uint32 {
	members := c.membersOf(handle)
	var running, end uint32
	for i, m := range members {
		memberRowMajor := resolveRowMajor(m.Layout, rowMajor)
		offset := c.ComputeFieldOffset(handle, i, running, rowMajor)
		running = offset + c.size(m.Type, memberRowMajor, unsizedAsOne, depth+1)
		if running > end {
			end = running
		}
	}
	return end
}

func (c *Calculator) arrayStride(arr ir.ArrayType, rowMajor bool, depth int) uint32 {
	if c.explicit && arr.Stride != 0 {
		return arr.Stride
	}
	elemSize := c.size(arr.Base, rowMajor, false, depth+1)
	elemAlign := c.roundArrayAlign(c.align(arr.Base, rowMajor, depth+1))
	return alignTo(elemSize, elemAlign)
}

func (c *Calculator) matrixStride(m ir.MatrixType, rowMajor bool) uint32 {
	return c.roundArrayAlign(vectorAlign(matrixVectorSize(m, rowMajor), m.Scalar))
}

// matrixVectorSize is the component count of each stored vector: rows for
// column-major, columns for row-major.
func matrixVectorSize(m ir.MatrixType, rowMajor bool) ir.VectorSize {
	if rowMajor {
		return m.Columns
	}
	return m.Rows
}

func matrixVectorCount(m ir.MatrixType, rowMajor bool) ir.VectorSize {
	if rowMajor {
		return m.Rows
	}
	return m.Columns
}

func scalarSize(s ir.ScalarType) uint32 {
	if s.Width == 8 {
		return 8
	}
	// bool occupies a full 32-bit word in buffer memory
	return 4
}

func vectorAlign(n ir.VectorSize, s ir.ScalarType) uint32 {
	if n == ir.Vec2 {
		return 2 * scalarSize(s)
	}
	return 4 * scalarSize(s)
}

func resolveRowMajor(l ir.MatrixLayout, inherited bool) bool {
	switch l {
	case ir.MatrixRowMajor:
		return true
	case ir.MatrixColumnMajor:
		return false
	}
	return inherited
}

// alignTo rounds offset up to a multiple of alignment.
func alignTo(offset, alignment uint32) uint32 {
	if alignment == 0 {
		return offset
	}
	return (offset + alignment - 1) / alignment * alignment
}

// AlignTo rounds offset up to a multiple of alignment.
func AlignTo(offset, alignment uint32) uint32 {
	return alignTo(offset, alignment)
}
