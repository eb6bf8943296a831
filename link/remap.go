// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import (
	"cmp"
	"slices"

	"github.com/gogpu/glslink/ir"
)

// hasLocation reports whether a uniform takes part in the main remap table:
// default-block, non-subroutine, non-atomic, non-built-in uniforms.
func (l *linker) hasLocation(u *Uniform) bool {
	if u.BlockIndex >= 0 || u.Builtin {
		return false
	}
	switch ir.Inner(l.prog.Types, u.Type).(type) {
	case ir.SubroutineType, ir.AtomicCounterType:
		return false
	}
	return true
}

// buildRemapTable assigns locations: explicit locations first, then hidden
// uniforms, then everything else, each preferring gaps before appending.
func (l *linker) buildRemapTable() {
	var table []int
	maxLocations := int(l.limits.MaxUserAssignableUniformLocations)

	for i := range l.prog.Uniforms {
		u := &l.prog.Uniforms[i]
		if !u.ExplicitLocation || !l.hasLocation(u) {
			continue
		}
		n := int(max(u.ArrayElements, 1))
		if u.Location+n > maxLocations {
			l.errs.Addf(ErrResourceLimitExceeded, firstStage(u.ActiveStages),
				"uniform %q: explicit location %d exceeds the maximum of %d", u.Name, u.Location, maxLocations)
			continue
		}
		table = growTable(table, u.Location+n)
		for j := u.Location; j < u.Location+n; j++ {
			if owner := table[j]; owner != Unmapped && owner != i {
				l.errs.Addf(ErrExplicitLocationCollision, firstStage(u.ActiveStages),
					"location %d of uniform %q overlaps previously used location of %q",
					j, u.Name, l.prog.Uniforms[owner].Name)
				break
			}
			table[j] = i
		}
	}

	place := func(hidden bool) {
		for i := range l.prog.Uniforms {
			u := &l.prog.Uniforms[i]
			if u.ExplicitLocation || u.Hidden != hidden || !l.hasLocation(u) {
				continue
			}
			n := int(max(u.ArrayElements, 1))
			loc := findEmptyRun(table, n)
			table = growTable(table, loc+n)
			for j := loc; j < loc+n; j++ {
				table[j] = i
			}
			u.Location = loc
		}
	}
	place(true)
	place(false)

	if len(table) > maxLocations {
		l.errs.Addf(ErrResourceLimitExceeded, NoStage,
			"too many user-assignable uniform locations (%d > %d)", len(table), maxLocations)
	}
	l.prog.RemapTable = table

	l.buildSubroutineRemap()
}

// buildSubroutineRemap gives each stage's subroutine uniforms their own
// location space, explicit locations first.
func (l *linker) buildSubroutineRemap() {
	for _, st := range l.stages {
		var table []int
		var members []int
		for i := range l.prog.Uniforms {
			u := &l.prog.Uniforms[i]
			if u.ActiveStages.Has(st.stage) && u.IsSubroutine(l.prog.Types) {
				members = append(members, i)
			}
		}

		for _, i := range members {
			u := &l.prog.Uniforms[i]
			if !u.ExplicitLocation {
				continue
			}
			n := int(max(u.ArrayElements, 1))
			table = growTable(table, u.Location+n)
			for j := u.Location; j < u.Location+n; j++ {
				if owner := table[j]; owner != Unmapped && owner != i {
					l.errs.Addf(ErrExplicitLocationCollision, st.stage,
						"subroutine uniform location %d of %q overlaps %q",
						j, u.Name, l.prog.Uniforms[owner].Name)
					break
				}
				table[j] = i
			}
		}
		for _, i := range members {
			u := &l.prog.Uniforms[i]
			if u.ExplicitLocation {
				continue
			}
			n := int(max(u.ArrayElements, 1))
			loc := findEmptyRun(table, n)
			table = growTable(table, loc+n)
			for j := loc; j < loc+n; j++ {
				table[j] = i
			}
			u.Location = loc
		}

		if limit := int(l.limits.MaxSubroutineUniformLocations); len(table) > limit {
			l.errs.Addf(ErrResourceLimitExceeded, st.stage,
				"too many subroutine uniform locations in the %s shader (%d > %d)", st.stage, len(table), limit)
		}
		l.prog.SubroutineRemap[st.stage] = table
	}
}

// assignSubroutines gives every subroutine function a per-stage index:
// explicit indices first, then the lowest free ones.
func (l *linker) assignSubroutines() {
	for _, st := range l.stages {
		funcs := st.shader.SubroutineFunctions
		if len(funcs) == 0 {
			continue
		}
		used := make(map[uint32]string)
		out := make([]Subroutine, 0, len(funcs))
		for _, fn := range funcs {
			if fn.Index == nil {
				continue
			}
			if other, dup := used[*fn.Index]; dup {
				l.errs.Addf(ErrDuplicateSubroutineIndex, st.stage,
					"subroutine functions %q and %q both use index %d", other, fn.Name, *fn.Index)
				continue
			}
			used[*fn.Index] = fn.Name
			out = append(out, Subroutine{Name: fn.Name, Index: *fn.Index, Types: fn.Types})
		}

		var next uint32
		for _, fn := range funcs {
			if fn.Index != nil {
				continue
			}
			for {
				if _, taken := used[next]; !taken {
					break
				}
				next++
			}
			used[next] = fn.Name
			out = append(out, Subroutine{Name: fn.Name, Index: next, Types: fn.Types})
		}

		slices.SortFunc(out, func(a, b Subroutine) int { return cmp.Compare(a.Index, b.Index) })
		if limit := l.limits.MaxSubroutines; uint32(len(out)) > limit {
			l.errs.Addf(ErrResourceLimitExceeded, st.stage,
				"too many subroutine functions in the %s shader (%d > %d)", st.stage, len(out), limit)
		}
		for _, fn := range out {
			if fn.Index >= l.limits.MaxSubroutines {
				l.errs.Addf(ErrResourceLimitExceeded, st.stage,
					"subroutine %q: index %d exceeds the maximum of %d", fn.Name, fn.Index, l.limits.MaxSubroutines)
			}
		}
		l.prog.Subroutines[st.stage] = out
	}
}

// assignDataSlots lays out the default-block backing store. Each uniform
// takes its component count per element, doubled for 64-bit types. Unless
// the driver packs uniform storage, 64-bit uniforms start on an even slot.
func (l *linker) assignDataSlots() {
	var next uint32
	for i := range l.prog.Uniforms {
		u := &l.prog.Uniforms[i]
		if u.BlockIndex >= 0 {
			continue
		}
		per, wide := l.slotsPerElement(u)
		if per == 0 {
			continue
		}
		if wide && !l.limits.PackedDriverUniformStorage {
			next += next & 1
		}
		u.DataSlot = next
		u.DataSlots = per * max(u.ArrayElements, 1)
		next += u.DataSlots
	}
	l.prog.NumDataSlots = next
}

// slotsPerElement returns the data slots one element of a uniform takes
// and whether it holds 64-bit values.
func (l *linker) slotsPerElement(u *Uniform) (uint32, bool) {
	switch t := ir.Inner(l.prog.Types, u.Type).(type) {
	case ir.SamplerType, ir.ImageType:
		if u.IsBindless {
			return 2, true
		}
		return 1, false
	case ir.SubroutineType:
		return 1, false
	case ir.AtomicCounterType:
		return 0, false
	default:
		n := ir.ComponentCount(t)
		if s, ok := ir.ScalarOf(t); ok && s.Is64Bit() {
			return 2 * n, true
		}
		return n, false
	}
}

// findEmptyRun returns the first location where n consecutive slots are
// free. Slots past the end of the table are free.
func findEmptyRun(table []int, n int) int {
	for start := 0; start < len(table); start++ {
		free := true
		for j := start; j < start+n && j < len(table); j++ {
			if table[j] != Unmapped {
				free = false
				start = j
				break
			}
		}
		if free {
			return start
		}
	}
	return len(table)
}

// growTable extends the table with Unmapped slots up to length n.
func growTable(table []int, n int) []int {
	for len(table) < n {
		table = append(table, Unmapped)
	}
	return table
}
