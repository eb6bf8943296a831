// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import (
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/glslink/ir"
)

// Property is a resource property for ResourceProperty.
type Property uint8

const (
	PropType Property = iota
	PropArraySize
	PropOffset
	PropBlockIndex
	PropArrayStride
	PropMatrixStride
	PropIsRowMajor
	PropLocation
	PropBufferBinding
	PropBufferDataSize
	PropNumActiveVariables
	PropTopLevelArraySize
	PropTopLevelArrayStride
	PropAtomicCounterBufferIndex
	PropNameLength
	PropNumCompatibleSubroutines
	PropTransformFeedbackBufferIndex
	PropTransformFeedbackBufferStride

	// propReferencedBy is followed by one property per stage.
	propReferencedBy
)

// PropReferencedBy returns the property reporting whether a stage
// references a resource.
func PropReferencedBy(stage ir.ShaderStage) Property {
	return propReferencedBy + Property(stage)
}

// InterfaceInfo summarizes one program interface.
type InterfaceInfo struct {
	ActiveResources             int
	MaxNameLength               int
	MaxNumActiveVariables       int
	MaxNumCompatibleSubroutines int
}

// resourceIndex maps names and table indices to per-interface resource
// indices. A resource's index is the number of earlier resources of the
// same interface.
type resourceIndex struct {
	// entries holds positions into Program.Resources per interface.
	entries [InterfaceCount][]int
	names   [InterfaceCount]map[string]int
	// data maps a table index (ProgramResource.Data) to a resource index.
	data [InterfaceCount]map[int]int
}

func newResourceIndex(resources []ProgramResource) resourceIndex {
	var idx resourceIndex
	for i := range idx.names {
		idx.names[i] = make(map[string]int)
		idx.data[i] = make(map[int]int)
	}
	for pos, r := range resources {
		n := len(idx.entries[r.Interface])
		idx.entries[r.Interface] = append(idx.entries[r.Interface], pos)
		idx.data[r.Interface][r.Data] = n
		if r.Name == "" {
			continue
		}
		if _, dup := idx.names[r.Interface][r.Name]; !dup {
			idx.names[r.Interface][r.Name] = n
		}
		// "a[0]" is also found as "a".
		if base, ok := strings.CutSuffix(r.Name, "[0]"); ok {
			if _, dup := idx.names[r.Interface][base]; !dup {
				idx.names[r.Interface][base] = n
			}
		}
	}
	return idx
}

// resource returns the resource at an interface index.
func (p *Program) resource(iface Interface, index int) (*ProgramResource, bool) {
	if !p.linked || iface >= InterfaceCount || index < 0 || index >= len(p.index.entries[iface]) {
		return nil, false
	}
	return &p.Resources[p.index.entries[iface][index]], true
}

// ResourceIndex returns the index of the named resource within an
// interface. Arrays are found both as "a" and "a[0]".
func (p *Program) ResourceIndex(iface Interface, name string) (int, bool) {
	if !p.linked || iface >= InterfaceCount {
		return 0, false
	}
	idx, ok := p.index.names[iface][name]
	return idx, ok
}

// ResourceName returns the name of a resource.
func (p *Program) ResourceName(iface Interface, index int) (string, bool) {
	r, ok := p.resource(iface, index)
	if !ok {
		return "", false
	}
	return r.Name, true
}

// InterfaceInfo returns the summary of an interface.
func (p *Program) InterfaceInfo(iface Interface) InterfaceInfo {
	var info InterfaceInfo
	if !p.linked || iface >= InterfaceCount {
		return info
	}
	entries := p.index.entries[iface]
	info.ActiveResources = len(entries)
	for i := range entries {
		r := &p.Resources[entries[i]]
		if r.Name != "" {
			info.MaxNameLength = max(info.MaxNameLength, len(r.Name)+1)
		}
		if vars := p.activeVariables(r); vars != nil {
			if _, uniforms, ok := iface.subroutineStage(); ok && uniforms {
				info.MaxNumCompatibleSubroutines = max(info.MaxNumCompatibleSubroutines, len(vars))
			} else {
				info.MaxNumActiveVariables = max(info.MaxNumActiveVariables, len(vars))
			}
		}
	}
	return info
}

// ActiveVariables returns the member resources of a block, atomic counter
// buffer or transform feedback buffer, as indices into the member
// interface. For a subroutine uniform it returns the indices of the
// compatible subroutines.
func (p *Program) ActiveVariables(iface Interface, index int) ([]int, bool) {
	r, ok := p.resource(iface, index)
	if !ok {
		return nil, false
	}
	vars := p.activeVariables(r)
	return vars, vars != nil
}

func (p *Program) activeVariables(r *ProgramResource) []int {
	members := func(member Interface, data []int) []int {
		out := make([]int, 0, len(data))
		for _, d := range data {
			if idx, ok := p.index.data[member][d]; ok {
				out = append(out, idx)
			}
		}
		return out
	}

	switch r.Interface {
	case InterfaceUniformBlock:
		return members(InterfaceUniform, p.UniformBlocks[r.Data].Uniforms)
	case InterfaceShaderStorageBlock:
		return members(InterfaceBufferVariable, p.ShaderStorageBlocks[r.Data].Uniforms)
	case InterfaceAtomicCounterBuffer:
		return members(InterfaceUniform, p.AtomicBuffers[r.Data].Uniforms)
	case InterfaceTransformFeedbackBuffer:
		return members(InterfaceTransformFeedbackVarying, p.XfbBuffers[r.Data].Varyings)
	}

	if stage, uniforms, ok := r.Interface.subroutineStage(); ok && uniforms {
		return p.compatibleSubroutines(stage, &p.Uniforms[r.Data])
	}
	return nil
}

// compatibleSubroutines lists the indices of the stage's subroutine
// functions usable with a subroutine uniform.
func (p *Program) compatibleSubroutines(stage ir.ShaderStage, u *Uniform) []int {
	st, ok := ir.Inner(p.Types, u.Type).(ir.SubroutineType)
	if !ok {
		return nil
	}
	out := []int{}
	for _, fn := range p.Subroutines[stage] {
		if slices.Contains(fn.Types, st.Name) {
			out = append(out, int(fn.Index))
		}
	}
	return out
}

// ResourceProperty returns one property of a resource. ok is false when
// the resource does not exist or the property does not apply to its
// interface.
func (p *Program) ResourceProperty(iface Interface, index int, prop Property) (int, bool) {
	r, ok := p.resource(iface, index)
	if !ok {
		return 0, false
	}

	if prop >= propReferencedBy {
		stage := ir.ShaderStage(prop - propReferencedBy)
		if stage >= ir.StageCount {
			return 0, false
		}
		return boolInt(r.StageRefs.Has(stage)), true
	}
	if prop == PropNameLength {
		if r.Name == "" {
			return 0, true
		}
		return len(r.Name) + 1, true
	}

	switch r.Interface {
	case InterfaceUniform, InterfaceBufferVariable:
		return p.uniformProperty(&p.Uniforms[r.Data], prop)
	case InterfaceUniformBlock:
		return p.blockProperty(r, &p.UniformBlocks[r.Data], prop)
	case InterfaceShaderStorageBlock:
		return p.blockProperty(r, &p.ShaderStorageBlocks[r.Data], prop)
	case InterfaceAtomicCounterBuffer:
		buf := &p.AtomicBuffers[r.Data]
		switch prop {
		case PropBufferBinding:
			return int(buf.Binding), true
		case PropBufferDataSize:
			return int(buf.MinimumSize), true
		case PropNumActiveVariables:
			return len(buf.Uniforms), true
		}
	case InterfaceProgramInput, InterfaceProgramOutput:
		v := &p.Inputs
		if r.Interface == InterfaceProgramOutput {
			v = &p.Outputs
		}
		io := &(*v)[r.Data]
		switch prop {
		case PropType:
			return int(GLType(p.Types, io.Type)), true
		case PropArraySize:
			return int(max(io.ArrayElements, 1)), true
		case PropLocation:
			return io.Location, true
		}
	case InterfaceTransformFeedbackVarying:
		v := &p.XfbVaryings[r.Data]
		switch prop {
		case PropType:
			return int(GLType(p.Types, v.Type)), true
		case PropArraySize:
			return int(max(v.ArrayElements, 1)), true
		case PropOffset:
			return int(v.Offset), true
		case PropTransformFeedbackBufferIndex:
			return v.Buffer, true
		}
	case InterfaceTransformFeedbackBuffer:
		buf := &p.XfbBuffers[r.Data]
		switch prop {
		case PropBufferBinding:
			return int(buf.Binding), true
		case PropTransformFeedbackBufferStride:
			return int(buf.Stride), true
		case PropNumActiveVariables:
			return len(buf.Varyings), true
		}
	default:
		stage, uniforms, _ := r.Interface.subroutineStage()
		if !uniforms {
			return 0, false
		}
		u := &p.Uniforms[r.Data]
		switch prop {
		case PropArraySize:
			return int(max(u.ArrayElements, 1)), true
		case PropLocation:
			return u.Location, true
		case PropNumCompatibleSubroutines:
			return len(p.compatibleSubroutines(stage, u)), true
		}
	}
	return 0, false
}

func (p *Program) uniformProperty(u *Uniform, prop Property) (int, bool) {
	member := u.BlockIndex >= 0
	_, atomic := ir.Inner(p.Types, u.Type).(ir.AtomicCounterType)

	switch prop {
	case PropType:
		return int(GLType(p.Types, u.Type)), true
	case PropArraySize:
		if u.UnsizedArray {
			return 0, true
		}
		return int(max(u.ArrayElements, 1)), true
	case PropOffset:
		if member || atomic {
			return int(u.Offset), true
		}
		return -1, true
	case PropBlockIndex:
		if member {
			return u.BlockIndex, true
		}
		return -1, true
	case PropArrayStride:
		if member || atomic {
			return int(u.ArrayStride), true
		}
		return -1, true
	case PropMatrixStride:
		if member {
			return int(u.MatrixStride), true
		}
		return -1, true
	case PropIsRowMajor:
		return boolInt(member && u.RowMajor), true
	case PropLocation:
		if member || atomic {
			return -1, true
		}
		return u.Location, true
	case PropAtomicCounterBufferIndex:
		return u.AtomicBufferIndex, true
	case PropTopLevelArraySize:
		if !u.IsShaderStorage {
			return 0, false
		}
		return int(u.TopLevelArraySize), true
	case PropTopLevelArrayStride:
		if !u.IsShaderStorage {
			return 0, false
		}
		return int(u.TopLevelArrayStride), true
	}
	return 0, false
}

func (p *Program) blockProperty(r *ProgramResource, b *BlockDescriptor, prop Property) (int, bool) {
	switch prop {
	case PropBufferBinding:
		// Unassigned bindings read back as 0.
		return max(b.Binding, 0), true
	case PropBufferDataSize:
		return int(b.DataSize), true
	case PropNumActiveVariables:
		return len(p.activeVariables(r)), true
	}
	return 0, false
}

// UniformLocation returns the location of a default-block uniform, or -1.
// Arrays accept "a", "a[0]" and "a[N]". Built-ins, block members, atomic
// counters and subroutine uniforms have no location.
func (p *Program) UniformLocation(name string) int {
	if !p.linked || strings.HasPrefix(name, "gl_") {
		return -1
	}
	if idx, ok := p.index.names[InterfaceUniform][name]; ok {
		return p.uniformLocation(idx, 0, false)
	}
	base, element, ok := splitSubscript(name)
	if !ok {
		return -1
	}
	idx, ok := p.index.names[InterfaceUniform][base]
	if !ok {
		return -1
	}
	return p.uniformLocation(idx, element, true)
}

func (p *Program) uniformLocation(index int, element uint32, subscript bool) int {
	r, ok := p.resource(InterfaceUniform, index)
	if !ok {
		return -1
	}
	u := &p.Uniforms[r.Data]
	if u.BlockIndex >= 0 || u.Location == Unmapped {
		return -1
	}
	if subscript && element >= u.ArrayElements {
		return -1
	}
	return u.Location + int(element)
}

// SubroutineUniformLocation returns the location of a subroutine uniform
// in a stage, or -1.
func (p *Program) SubroutineUniformLocation(stage ir.ShaderStage, name string) int {
	if stage >= ir.StageCount {
		return -1
	}
	iface := SubroutineUniformInterface(stage)
	idx, ok := p.ResourceIndex(iface, name)
	var element uint32
	if !ok {
		var base string
		if base, element, ok = splitSubscript(name); !ok {
			return -1
		}
		if idx, ok = p.ResourceIndex(iface, base); !ok {
			return -1
		}
	}
	r, _ := p.resource(iface, idx)
	u := &p.Uniforms[r.Data]
	if element > 0 && element >= u.ArrayElements {
		return -1
	}
	return u.Location + int(element)
}

// SubroutineIndex returns the index of a subroutine function in a stage.
func (p *Program) SubroutineIndex(stage ir.ShaderStage, name string) (uint32, bool) {
	if stage >= ir.StageCount {
		return 0, false
	}
	idx, ok := p.ResourceIndex(SubroutineInterface(stage), name)
	if !ok {
		return 0, false
	}
	r, _ := p.resource(SubroutineInterface(stage), idx)
	return p.Subroutines[stage][r.Data].Index, true
}

// splitSubscript splits "name[N]" into "name" and N.
func splitSubscript(name string) (string, uint32, bool) {
	if !strings.HasSuffix(name, "]") {
		return "", 0, false
	}
	open := strings.LastIndexByte(name, '[')
	if open <= 0 {
		return "", 0, false
	}
	n, err := strconv.ParseUint(name[open+1:len(name)-1], 10, 32)
	if err != nil {
		return "", 0, false
	}
	return name[:open], uint32(n), true
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
