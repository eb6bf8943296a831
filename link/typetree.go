// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import "github.com/gogpu/glslink/ir"

// unsetIndex marks a type tree entry that has not reserved indices yet.
const unsetIndex = ^uint32(0)

// typeTreeEntry mirrors one level of a uniform's struct nesting. All array
// dimensions at a level fold into arraySize, so every element of an array of
// structs shares the same entries.
//
// The first leaf visit of an entry reserves indices for every element of
// every enclosing array. Later visits hand out the next slice of that range,
// which keeps the indices of one member contiguous across array elements.
type typeTreeEntry struct {
	arraySize uint32
	nextIndex uint32
	parent    *typeTreeEntry
	children  []*typeTreeEntry
}

// buildTypeTree builds the tree for a type. Nesting past ir.MaxTypeDepth
// is cut off; the flattening walk reports it.
func buildTypeTree(types ir.TypeLookup, h ir.TypeHandle) *typeTreeEntry {
	return buildTypeTreeEntry(types, h, nil, 0)
}

func buildTypeTreeEntry(types ir.TypeLookup, h ir.TypeHandle, parent *typeTreeEntry, depth int) *typeTreeEntry {
	e := &typeTreeEntry{arraySize: 1, nextIndex: unsetIndex, parent: parent}
	if depth > ir.MaxTypeDepth {
		return e
	}
	base, dims := ir.StripArrays(types, h)
	for _, d := range dims {
		e.arraySize *= max(d, 1)
	}
	if st, ok := ir.Inner(types, base).(ir.StructType); ok {
		e.children = make([]*typeTreeEntry, len(st.Members))
		for i, m := range st.Members {
			e.children[i] = buildTypeTreeEntry(types, m.Type, e, depth+1)
		}
	}
	return e
}

// child returns the entry for member i. A nil entry has nil children.
func (e *typeTreeEntry) child(i int) *typeTreeEntry {
	if e == nil || i >= len(e.children) {
		return nil
	}
	return e.children[i]
}

// nextOpaqueIndex returns the index for the next visit of a leaf with the
// given array length, reserving a range from counter on the first visit.
func (e *typeTreeEntry) nextOpaqueIndex(elements uint32, counter *uint32) uint32 {
	if e.nextIndex == unsetIndex {
		size := uint32(1)
		for p := e; p != nil; p = p.parent {
			size *= p.arraySize
		}
		e.nextIndex = *counter
		*counter += size
	}
	index := e.nextIndex
	e.nextIndex += max(elements, 1)
	return index
}
