// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import (
	"strconv"

	"github.com/gogpu/glslink/ir"
	"github.com/gogpu/glslink/layout"
)

// leaf is one flattened uniform, block member or I/O variable.
type leaf struct {
	name     string
	elem     ir.TypeHandle
	elements uint32
	unsized  bool
	node     *typeTreeEntry

	offset       uint32
	arrayStride  uint32
	matrixStride uint32
	rowMajor     bool

	topLevelSize   uint32
	topLevelStride uint32
}

// topLevel carries the outermost array of a storage block member down the
// walk.
type topLevel struct {
	size   uint32
	stride uint32
}

// flattener expands structs and arrays of aggregates into leaves. Arrays of
// scalars, vectors, matrices and opaque types stay whole. With a nil
// calculator no offsets or strides are computed.
type flattener struct {
	types   ir.TypeLookup
	calc    *layout.Calculator
	storage bool
	leaves  []leaf
	tooDeep bool
}

func newFlattener(types ir.TypeLookup, calc *layout.Calculator, storage bool) *flattener {
	return &flattener{types: types, calc: calc, storage: storage}
}

// walkVariable flattens a whole variable.
func (f *flattener) walkVariable(name string, h ir.TypeHandle, root *typeTreeEntry) {
	f.walk(name, h, root, 0, false, 0, false, topLevel{}, 0)
}

// walkBlock flattens the members of a block, each with its own type tree.
// Members of shader storage blocks record their top-level array, and a
// top-level array of aggregates is expanded for its first element only.
func (f *flattener) walkBlock(prefix string, block ir.TypeHandle, rowMajor bool) {
	members := blockMembers(f.types, block)
	laid := f.calc.Members(block, rowMajor)
	for i, m := range members {
		var top topLevel
		firstOnly := false
		if f.storage {
			top = topLevel{size: 1}
			if arr, ok := ir.Inner(f.types, m.Type).(ir.ArrayType); ok {
				top = topLevel{size: arr.Size.Len(), stride: laid[i].ArrayStride}
				firstOnly = isAggregate(ir.Inner(f.types, arr.Base))
			}
		}
		f.walk(prefix+m.Name, m.Type, buildTypeTree(f.types, m.Type), laid[i].Offset, laid[i].RowMajor, laid[i].MatrixStride, firstOnly, top, 1)
	}
}

func (f *flattener) walk(name string, h ir.TypeHandle, node *typeTreeEntry, offset uint32, rowMajor bool,
	matStride uint32, firstOnly bool, top topLevel, depth int) {
	if depth > ir.MaxTypeDepth {
		f.tooDeep = true
		return
	}

	switch t := ir.Inner(f.types, h).(type) {
	case ir.StructType:
		var laid []layout.Member
		if f.calc != nil {
			laid = f.calc.Members(h, rowMajor)
		}
		for i, m := range t.Members {
			var memberOffset, memberStride uint32
			memberRowMajor := rowMajor
			if laid != nil {
				memberOffset = laid[i].Offset
				memberStride = laid[i].MatrixStride
				memberRowMajor = laid[i].RowMajor
			}
			f.walk(name+"."+m.Name, m.Type, node.child(i), offset+memberOffset, memberRowMajor,
				memberStride, false, top, depth+1)
		}

	case ir.ArrayType:
		if !isAggregate(ir.Inner(f.types, t.Base)) {
			f.addLeaf(name, h, node, offset, rowMajor, matStride, top)
			return
		}
		count := t.Size.Len()
		if firstOnly || count == 0 {
			count = 1
		}
		var stride uint32
		if f.calc != nil {
			stride = f.calc.ArrayStride(h, rowMajor)
		}
		for i := uint32(0); i < count; i++ {
			f.walk(name+"["+strconv.FormatUint(uint64(i), 10)+"]", t.Base, node, offset+i*stride, rowMajor,
				matStride, false, top, depth+1)
		}

	default:
		f.addLeaf(name, h, node, offset, rowMajor, matStride, top)
	}
}

func (f *flattener) addLeaf(name string, h ir.TypeHandle, node *typeTreeEntry, offset uint32, rowMajor bool,
	matStride uint32, top topLevel) {
	lf := leaf{
		name:           name,
		elem:           h,
		node:           node,
		offset:         offset,
		rowMajor:       rowMajor,
		topLevelSize:   top.size,
		topLevelStride: top.stride,
	}
	if arr, ok := ir.Inner(f.types, h).(ir.ArrayType); ok {
		lf.elem = arr.Base
		lf.elements = arr.Size.Len()
		lf.unsized = arr.Size.Constant == nil
	}
	if f.calc != nil {
		lf.arrayStride = f.calc.ArrayStride(h, rowMajor)
		lf.matrixStride = matStride
		if lf.matrixStride == 0 {
			lf.matrixStride = f.calc.MatrixStride(h, rowMajor)
		}
	}
	f.leaves = append(f.leaves, lf)
}

// isAggregate reports whether the walk recurses into a type.
func isAggregate(inner ir.TypeInner) bool {
	switch inner.(type) {
	case ir.StructType, ir.ArrayType:
		return true
	}
	return false
}

func blockMembers(types ir.TypeLookup, h ir.TypeHandle) []ir.StructMember {
	switch t := ir.Inner(types, h).(type) {
	case ir.InterfaceType:
		return t.Members
	case ir.StructType:
		return t.Members
	}
	return nil
}
