// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import (
	"cmp"
	"slices"

	"github.com/gogpu/glslink/ir"
)

// AtomicBuffer is one atomic counter buffer binding.
type AtomicBuffer struct {
	Binding uint32

	// MinimumSize is the end of the last counter in bytes.
	MinimumSize uint32

	// Uniforms lists the Program.Uniforms entries of the counters.
	Uniforms []int

	StageRefs ir.StageMask
}

// atomicRef is one stage's use of an atomic counter uniform.
type atomicRef struct {
	uniform int
	binding uint32
	offset  uint32
	size    uint32
}

// atomicCounters returns the number of counters the stage declares.
func (st *stageState) atomicCounters() uint32 {
	var n uint32
	for _, a := range st.atomics {
		n += a.size / 4
	}
	return n
}

// atomicBufferCount returns the number of distinct bindings the stage uses.
func (st *stageState) atomicBufferCount() uint32 {
	seen := make(map[uint32]bool)
	for _, a := range st.atomics {
		seen[a.binding] = true
	}
	return uint32(len(seen))
}

// checkAtomicQualifiers validates the binding and offset of an atomic
// counter declaration.
func (l *linker) checkAtomicQualifiers(st *stageState, gv *ir.GlobalVariable) bool {
	q := gv.Qualifiers
	if q.Binding == nil {
		l.errs.Addf(ErrMalformedStorageQualifier, st.stage,
			"atomic counter %q requires a binding", displayName(gv))
		return false
	}
	if *q.Binding >= l.limits.MaxAtomicCounterBufferBindings {
		l.errs.Addf(ErrResourceLimitExceeded, st.stage,
			"atomic counter %q: binding %d exceeds the maximum of %d",
			displayName(gv), *q.Binding, l.limits.MaxAtomicCounterBufferBindings)
		return false
	}
	if q.Offset != nil && *q.Offset%4 != 0 {
		l.errs.Addf(ErrMalformedStorageQualifier, st.stage,
			"atomic counter %q: offset %d is not a multiple of 4", displayName(gv), *q.Offset)
		return false
	}
	return true
}

// assignAtomicBuffers groups the atomic counters of all stages by binding
// and rejects counters that overlap within one buffer.
func (l *linker) assignAtomicBuffers() {
	// Unique counters across stages, ordered by binding then offset.
	var refs []atomicRef
	seen := make(map[int]bool)
	for _, st := range l.stages {
		for _, a := range st.atomics {
			if !seen[a.uniform] {
				seen[a.uniform] = true
				refs = append(refs, a)
			}
		}
	}
	slices.SortStableFunc(refs, func(a, b atomicRef) int {
		if c := cmp.Compare(a.binding, b.binding); c != 0 {
			return c
		}
		return cmp.Compare(a.offset, b.offset)
	})

	for i, a := range refs {
		if i > 0 {
			prev := refs[i-1]
			if prev.binding == a.binding && prev.offset+prev.size > a.offset {
				pu, au := &l.prog.Uniforms[prev.uniform], &l.prog.Uniforms[a.uniform]
				l.errs.Addf(ErrExplicitBindingCollision, firstStage(au.ActiveStages),
					"atomic counter %q (offset %d) overlaps %q (offset %d) in binding %d",
					au.Name, a.offset, pu.Name, prev.offset, a.binding)
			}
		}

		if n := len(l.prog.AtomicBuffers); n == 0 || l.prog.AtomicBuffers[n-1].Binding != a.binding {
			l.prog.AtomicBuffers = append(l.prog.AtomicBuffers, AtomicBuffer{Binding: a.binding})
		}
		bi := len(l.prog.AtomicBuffers) - 1
		buf := &l.prog.AtomicBuffers[bi]
		u := &l.prog.Uniforms[a.uniform]
		buf.Uniforms = append(buf.Uniforms, a.uniform)
		buf.MinimumSize = max(buf.MinimumSize, a.offset+a.size)
		buf.StageRefs |= u.ActiveStages
		u.AtomicBufferIndex = bi
	}

	// Keep each buffer's counters in uniform order.
	for i := range l.prog.AtomicBuffers {
		slices.Sort(l.prog.AtomicBuffers[i].Uniforms)
	}
}

// firstStage returns the lowest stage in a mask, or NoStage.
func firstStage(m ir.StageMask) ir.ShaderStage {
	for s := ir.ShaderStage(0); s < ir.StageCount; s++ {
		if m.Has(s) {
			return s
		}
	}
	return NoStage
}
