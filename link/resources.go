// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import (
	"cmp"
	"slices"

	"github.com/gogpu/glslink/ir"
)

// Interface is a program interface of the resource list.
type Interface uint8

const (
	InterfaceUniform Interface = iota
	InterfaceUniformBlock
	InterfaceAtomicCounterBuffer
	InterfaceProgramInput
	InterfaceProgramOutput
	InterfaceTransformFeedbackVarying
	InterfaceTransformFeedbackBuffer
	InterfaceBufferVariable
	InterfaceShaderStorageBlock

	// interfaceSubroutine is followed by one subroutine interface per
	// stage, then one subroutine uniform interface per stage.
	interfaceSubroutine

	// InterfaceCount is the number of interfaces.
	InterfaceCount = interfaceSubroutine + 2*Interface(ir.StageCount)
)

// SubroutineInterface returns the subroutine function interface of a stage.
func SubroutineInterface(stage ir.ShaderStage) Interface {
	return interfaceSubroutine + Interface(stage)
}

// SubroutineUniformInterface returns the subroutine uniform interface of a
// stage.
func SubroutineUniformInterface(stage ir.ShaderStage) Interface {
	return interfaceSubroutine + Interface(ir.StageCount) + Interface(stage)
}

// subroutineStage returns the stage of a per-stage interface and whether
// the interface lists subroutine uniforms rather than functions.
func (i Interface) subroutineStage() (stage ir.ShaderStage, uniforms, ok bool) {
	if i < interfaceSubroutine || i >= InterfaceCount {
		return 0, false, false
	}
	n := int(i - interfaceSubroutine)
	if n >= int(ir.StageCount) {
		return ir.ShaderStage(n - int(ir.StageCount)), true, true
	}
	return ir.ShaderStage(n), false, true
}

// String returns the interface name.
func (i Interface) String() string {
	switch i {
	case InterfaceUniform:
		return "uniform"
	case InterfaceUniformBlock:
		return "uniform block"
	case InterfaceAtomicCounterBuffer:
		return "atomic counter buffer"
	case InterfaceProgramInput:
		return "program input"
	case InterfaceProgramOutput:
		return "program output"
	case InterfaceTransformFeedbackVarying:
		return "transform feedback varying"
	case InterfaceTransformFeedbackBuffer:
		return "transform feedback buffer"
	case InterfaceBufferVariable:
		return "buffer variable"
	case InterfaceShaderStorageBlock:
		return "shader storage block"
	}
	if stage, uniforms, ok := i.subroutineStage(); ok {
		if uniforms {
			return stage.String() + " subroutine uniform"
		}
		return stage.String() + " subroutine"
	}
	return "unknown"
}

// ProgramResource is one entry of the resource list.
type ProgramResource struct {
	Interface Interface
	Name      string

	// Data indexes the table behind the interface: Uniforms for uniforms,
	// buffer variables and subroutine uniforms, the block lists, Inputs,
	// Outputs, AtomicBuffers, XfbVaryings, XfbBuffers, or the stage's
	// Subroutines.
	Data int

	StageRefs ir.StageMask
}

// IOVariable is one flattened active input or output of the program.
type IOVariable struct {
	Name          string
	Type          ir.TypeHandle
	ArrayElements uint32

	// Location is the explicit location plus the leaf's position, or
	// Unmapped for built-ins and variables without a location.
	Location int
	Builtin  bool
	Stage    ir.ShaderStage
}

// XfbVarying is one captured transform feedback varying.
type XfbVarying struct {
	Name          string
	Type          ir.TypeHandle
	ArrayElements uint32
	Offset        uint32
	// Buffer indexes XfbBuffers.
	Buffer int
	Stage  ir.ShaderStage
}

// XfbBuffer is one transform feedback buffer binding.
type XfbBuffer struct {
	Binding uint32
	Stride  uint32
	// Varyings lists the XfbVaryings entries captured into the buffer.
	Varyings []int
}

// buildResourceList fills the I/O and transform feedback tables and the
// interface-ordered resource list.
func (l *linker) buildResourceList() {
	l.collectIO()
	l.collectXfb()

	p := l.prog
	add := func(iface Interface, name string, data int, refs ir.StageMask) {
		p.Resources = append(p.Resources, ProgramResource{Interface: iface, Name: name, Data: data, StageRefs: refs})
	}

	for i, v := range p.Inputs {
		add(InterfaceProgramInput, v.Name, i, v.Stage.Bit())
	}
	for i, v := range p.Outputs {
		add(InterfaceProgramOutput, v.Name, i, v.Stage.Bit())
	}

	for i := range p.Uniforms {
		u := &p.Uniforms[i]
		if u.Hidden || u.IsShaderStorage || u.IsSubroutine(p.Types) {
			continue
		}
		add(InterfaceUniform, resourceName(u.Name, u.ArrayElements, u.UnsizedArray), i, u.ActiveStages)
	}
	for i := range p.UniformBlocks {
		b := &p.UniformBlocks[i]
		add(InterfaceUniformBlock, b.Name, i, b.StageRefs)
	}
	for i := range p.Uniforms {
		u := &p.Uniforms[i]
		if !u.IsShaderStorage {
			continue
		}
		add(InterfaceBufferVariable, resourceName(u.Name, u.ArrayElements, u.UnsizedArray), i, u.ActiveStages)
	}
	for i := range p.ShaderStorageBlocks {
		b := &p.ShaderStorageBlocks[i]
		add(InterfaceShaderStorageBlock, b.Name, i, b.StageRefs)
	}
	for i := range p.AtomicBuffers {
		add(InterfaceAtomicCounterBuffer, "", i, p.AtomicBuffers[i].StageRefs)
	}

	var xfbStage ir.StageMask
	for i, v := range p.XfbVaryings {
		xfbStage = v.Stage.Bit()
		add(InterfaceTransformFeedbackVarying, resourceName(v.Name, v.ArrayElements, false), i, xfbStage)
	}
	for i := range p.XfbBuffers {
		add(InterfaceTransformFeedbackBuffer, "", i, xfbStage)
	}

	for _, st := range l.stages {
		uniforms := SubroutineUniformInterface(st.stage)
		for i := range p.Uniforms {
			u := &p.Uniforms[i]
			if u.IsSubroutine(p.Types) && u.ActiveStages.Has(st.stage) {
				add(uniforms, resourceName(u.Name, u.ArrayElements, false), i, st.stage.Bit())
			}
		}
		for i, fn := range p.Subroutines[st.stage] {
			add(SubroutineInterface(st.stage), fn.Name, i, st.stage.Bit())
		}
	}

	p.index = newResourceIndex(p.Resources)
}

// resourceName appends "[0]" to the names of arrays, as reflection reports
// them.
func resourceName(name string, elements uint32, unsized bool) string {
	if elements > 0 || unsized {
		return name + "[0]"
	}
	return name
}

// collectIO flattens the inputs of the first stage and the outputs of the
// last stage.
func (l *linker) collectIO() {
	if len(l.stages) == 0 {
		return
	}
	l.prog.Inputs = l.ioVariables(l.stages[0], ir.SpaceInput)
	l.prog.Outputs = l.ioVariables(l.stages[len(l.stages)-1], ir.SpaceOutput)
}

func (l *linker) ioVariables(st *stageState, space ir.AddressSpace) []IOVariable {
	var out []IOVariable
	for gi := range st.shader.GlobalVariables {
		gv := &st.shader.GlobalVariables[gi]
		if gv.Space != space || (gv.Usage != nil && !gv.Usage.Referenced) {
			continue
		}
		h, err := st.importType(gv.Type)
		if err != nil {
			continue
		}
		f := newFlattener(l.prog.Types, nil, false)
		f.walkVariable(gv.Name, h, nil)

		var next uint32
		for _, lf := range f.leaves {
			v := IOVariable{
				Name:          lf.name,
				Type:          lf.elem,
				ArrayElements: lf.elements,
				Location:      Unmapped,
				Builtin:       gv.Builtin,
				Stage:         st.stage,
			}
			if gv.Qualifiers.Location != nil && !gv.Builtin {
				v.Location = int(*gv.Qualifiers.Location + next)
			}
			next += ioLocations(ir.Inner(l.prog.Types, lf.elem)) * max(lf.elements, 1)
			out = append(out, v)
		}
	}
	return out
}

// ioLocations returns the locations one element of an I/O leaf consumes.
func ioLocations(inner ir.TypeInner) uint32 {
	switch t := inner.(type) {
	case ir.MatrixType:
		n := uint32(t.Columns)
		if t.Scalar.Is64Bit() && t.Rows > 2 {
			n *= 2
		}
		return n
	case ir.VectorType:
		if t.Scalar.Is64Bit() && t.Size > 2 {
			return 2
		}
	}
	return 1
}

// collectXfb gathers the captured varyings of the last vertex processing
// stage and groups them into buffers.
func (l *linker) collectXfb() {
	var st *stageState
	for _, s := range l.stages {
		switch s.stage {
		case ir.StageVertex, ir.StageTessEval, ir.StageGeometry:
			st = s
		}
	}
	if st == nil || len(st.shader.XfbOutputs) == 0 {
		return
	}

	outputs := slices.Clone(st.shader.XfbOutputs)
	slices.SortStableFunc(outputs, func(a, b ir.XfbOutput) int {
		if c := cmp.Compare(a.Buffer, b.Buffer); c != 0 {
			return c
		}
		return cmp.Compare(a.Offset, b.Offset)
	})

	p := l.prog
	for _, out := range outputs {
		h, err := st.importType(out.Type)
		if err != nil {
			continue
		}
		elem, elements := h, uint32(0)
		if arr, ok := ir.Inner(p.Types, h).(ir.ArrayType); ok {
			elem, elements = arr.Base, arr.Size.Len()
		}

		if n := len(p.XfbBuffers); n == 0 || p.XfbBuffers[n-1].Binding != out.Buffer {
			p.XfbBuffers = append(p.XfbBuffers, XfbBuffer{Binding: out.Buffer})
		}
		bi := len(p.XfbBuffers) - 1
		buf := &p.XfbBuffers[bi]

		inner := ir.Inner(p.Types, elem)
		size := 4 * ir.ComponentCount(inner) * max(elements, 1)
		align := uint32(4)
		if s, ok := ir.ScalarOf(inner); ok && s.Is64Bit() {
			size *= 2
			align = 8
		}
		buf.Stride = max(buf.Stride, out.Offset+size)
		buf.Stride = (buf.Stride + align - 1) &^ (align - 1)
		buf.Varyings = append(buf.Varyings, len(p.XfbVaryings))

		p.XfbVaryings = append(p.XfbVaryings, XfbVarying{
			Name:          out.Name,
			Type:          elem,
			ArrayElements: elements,
			Offset:        out.Offset,
			Buffer:        bi,
			Stage:         st.stage,
		})
	}
}
