// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/gogpu/glslink/ir"
	"github.com/gogpu/glslink/layout"
)

// blockKind selects uniform blocks or shader storage blocks.
type blockKind uint8

const (
	kindUniformBlock blockKind = iota
	kindStorageBlock
)

func (k blockKind) String() string {
	if k == kindStorageBlock {
		return "shader storage block"
	}
	return "uniform block"
}

// BufferVariable is one flattened member of a block.
type BufferVariable struct {
	Name          string
	Type          ir.TypeHandle
	ArrayElements uint32
	UnsizedArray  bool
	Offset        uint32
	ArrayStride   uint32
	MatrixStride  uint32
	RowMajor      bool

	TopLevelArraySize   uint32
	TopLevelArrayStride uint32

	// Block is the index of the owning descriptor.
	Block int
}

// BlockDescriptor is one uniform block or shader storage block, or one
// active element of a block array.
type BlockDescriptor struct {
	// Name is the block name with the element subscript of block arrays,
	// such as "Lights[2]". Empty for nameless SPIR-V blocks.
	Name string

	// InstanceName is the declared instance name, empty for blocks whose
	// members are visible at global scope.
	InstanceName string

	// Binding is the buffer binding point, -1 when unassigned.
	Binding int

	Packing         ir.Packing
	RowMajor        bool
	IsShaderStorage bool
	Bindless        bool

	// Type is the block's interface type.
	Type ir.TypeHandle

	Variables []BufferVariable

	// DataSize is the minimum buffer size in bytes.
	DataSize uint32

	StageRefs ir.StageMask

	// LinearizedArrayIndex is the element's position in the flattened
	// block array, 0 for non-arrays.
	LinearizedArrayIndex uint32

	// Uniforms lists the Program.Uniforms entries of the members.
	Uniforms []int
}

// blockDecl is one stage's declaration of a block or block array.
type blockDecl struct {
	global   *ir.GlobalVariable
	kind     blockKind
	vars     []BufferVariable
	bindless bool
	// nodes holds the type tree entry of each of vars.
	nodes []*typeTreeEntry
	// elements holds the descriptor indices of the active elements.
	elements []int
}

// blockElement is one element of a possibly arrayed block.
type blockElement struct {
	suffix string
	linear uint32
}

func (l *linker) blocks(kind blockKind) *[]BlockDescriptor {
	if kind == kindStorageBlock {
		return &l.prog.ShaderStorageBlocks
	}
	return &l.prog.UniformBlocks
}

// resolvePacking applies the default packing to blocks without a qualifier.
func (l *linker) resolvePacking(p ir.Packing) ir.Packing {
	if p != ir.PackingDefault {
		return p
	}
	if l.limits.UseSTD430AsDefaultPacking {
		return ir.PackingStd430
	}
	return ir.PackingShared
}

// collectBlocks gathers a stage's uniform and storage blocks and merges
// them into the program's descriptor lists.
func (l *linker) collectBlocks(st *stageState) {
	st.blockDecls = make(map[int]*blockDecl)
	for gi := range st.shader.GlobalVariables {
		gv := &st.shader.GlobalVariables[gi]
		if gv.Space != ir.SpaceUniformBlock && gv.Space != ir.SpaceStorageBlock {
			continue
		}
		if decl := l.declareBlock(st, gv); decl != nil {
			st.blockDecls[gi] = decl
			if decl.kind == kindStorageBlock {
				st.storageBlocks += uint32(len(decl.elements))
			} else {
				st.uniformBlocks += uint32(len(decl.elements))
			}
		}
	}
	l.log.Debug("blocks collected", "stage", st.stage.String(),
		"uniform_blocks", st.uniformBlocks, "storage_blocks", st.storageBlocks)
}

// declareBlock lays out one block declaration and merges its active
// elements. It returns nil when the declaration is unusable.
func (l *linker) declareBlock(st *stageState, gv *ir.GlobalVariable) *blockDecl {
	full, err := st.importType(gv.Type)
	if err != nil {
		l.typeError(st.stage, fmt.Sprintf("block %q", displayName(gv)), err)
		return nil
	}
	types := l.prog.Types
	base, dims := ir.StripArrays(types, full)
	typ, _ := types.Lookup(base)
	members := blockMembers(types, base)

	kind := kindUniformBlock
	if gv.Space == ir.SpaceStorageBlock {
		kind = kindStorageBlock
	}
	what := fmt.Sprintf("%s %q", kind, typ.Name)

	if l.opts.Source == SourceLocation && gv.Qualifiers.Binding == nil {
		l.errs.Addf(ErrMalformedStorageQualifier, st.stage, "%s has no binding", what)
		return nil
	}
	if !l.checkBlockMembers(st, what, kind, members, dims) {
		return nil
	}

	packing := l.resolvePacking(gv.Qualifiers.Packing)
	rowMajor := gv.Qualifiers.Layout == ir.MatrixRowMajor
	calc := layout.New(types, packing, l.opts.Source == SourceLocation)

	if l.opts.Source == SourceNamed && !l.checkMemberOffsets(st, what, calc, base, rowMajor) {
		return nil
	}

	prefix := ""
	if gv.Name != "" && typ.Name != "" {
		prefix = typ.Name + "."
	}
	f := newFlattener(types, calc, kind == kindStorageBlock)
	f.walkBlock(prefix, base, rowMajor)
	if f.tooDeep {
		l.errs.Addf(ErrRecursionLimitExceeded, st.stage, "%s nests deeper than %d levels", what, ir.MaxTypeDepth)
		return nil
	}

	decl := &blockDecl{global: gv, kind: kind, bindless: gv.Qualifiers.Bindless}
	for _, lf := range f.leaves {
		if ir.IsOpaque(ir.Inner(types, lf.elem)) && !decl.bindless {
			l.errs.Addf(ErrMalformedStorageQualifier, st.stage,
				"%s member %q: opaque types in blocks must be bindless", what, lf.name)
			return nil
		}
		v := BufferVariable{
			Name:          lf.name,
			Type:          lf.elem,
			ArrayElements: lf.elements,
			UnsizedArray:  lf.unsized,
			Offset:        lf.offset,
			ArrayStride:   lf.arrayStride,
			MatrixStride:  lf.matrixStride,
			RowMajor:      lf.rowMajor,
		}
		if kind == kindStorageBlock {
			v.TopLevelArraySize = lf.topLevelSize
			v.TopLevelArrayStride = lf.topLevelStride
		}
		decl.vars = append(decl.vars, v)
		decl.nodes = append(decl.nodes, lf.node)
	}

	dataSize := calc.BlockSize(base, rowMajor)
	limit := l.limits.MaxUniformBlockSize
	if kind == kindStorageBlock {
		limit = l.limits.MaxShaderStorageBlockSize
	}
	if limit != 0 && dataSize > limit {
		l.errs.Addf(ErrResourceLimitExceeded, st.stage, "%s is %d bytes, larger than the maximum of %d",
			what, dataSize, limit)
	}

	binding := -1
	if gv.Qualifiers.Binding != nil {
		binding = int(*gv.Qualifiers.Binding)
	}
	active := activeElements(packing, gv.Usage, dims)
	if len(active) == 0 {
		if binding >= 0 {
			l.log.Warn("explicit binding on inactive block", "stage", st.stage.String(),
				"block", typ.Name, "binding", binding)
		}
		return decl
	}

	for _, el := range active {
		desc := BlockDescriptor{
			Binding:              -1,
			InstanceName:         gv.Name,
			Packing:              packing,
			RowMajor:             rowMajor,
			IsShaderStorage:      kind == kindStorageBlock,
			Bindless:             decl.bindless,
			Type:                 base,
			Variables:            slices.Clone(decl.vars),
			DataSize:             dataSize,
			StageRefs:            st.stage.Bit(),
			LinearizedArrayIndex: el.linear,
		}
		if typ.Name != "" {
			desc.Name = typ.Name + el.suffix
		}
		if binding >= 0 {
			desc.Binding = binding + int(el.linear)
		}
		idx, ok := l.mergeBlock(st, kind, desc)
		if !ok {
			continue
		}
		decl.elements = append(decl.elements, idx)
	}
	return decl
}

// checkBlockMembers rejects unsized arrays anywhere but the last member of
// a storage block, and unsized block arrays.
func (l *linker) checkBlockMembers(st *stageState, what string, kind blockKind, members []ir.StructMember, dims []uint32) bool {
	ok := true
	if slices.Contains(dims, 0) {
		l.errs.Addf(ErrMalformedStorageQualifier, st.stage, "%s: block arrays must be explicitly sized", what)
		ok = false
	}
	for i, m := range members {
		_, mdims := ir.StripArrays(l.prog.Types, m.Type)
		if len(mdims) == 0 {
			continue
		}
		if slices.Contains(mdims[1:], 0) {
			l.errs.Addf(ErrMalformedStorageQualifier, st.stage,
				"%s member %q: only the outermost array dimension may be unsized", what, m.Name)
			ok = false
		}
		if mdims[0] != 0 {
			continue
		}
		switch {
		case kind == kindUniformBlock:
			l.errs.Addf(ErrMalformedStorageQualifier, st.stage,
				"%s member %q: unsized arrays are only allowed in shader storage blocks", what, m.Name)
			ok = false
		case i != len(members)-1:
			l.errs.Addf(ErrMalformedStorageQualifier, st.stage,
				"%s member %q: an unsized array must be the last member of the block", what, m.Name)
			ok = false
		}
	}
	return ok
}

// checkMemberOffsets rejects layout(offset=N) qualifiers that overlap the
// previous member or break the member's alignment.
func (l *linker) checkMemberOffsets(st *stageState, what string, calc *layout.Calculator, block ir.TypeHandle, rowMajor bool) bool {
	members := blockMembers(l.prog.Types, block)
	laid := calc.Members(block, rowMajor)
	ok := true
	var running uint32
	for i, m := range members {
		if m.Offset != nil {
			switch {
			case *m.Offset < running:
				l.errs.Addf(ErrMalformedStorageQualifier, st.stage,
					"%s member %q: offset %d overlaps the previous member", what, m.Name, *m.Offset)
				ok = false
			case *m.Offset%laid[i].Align != 0:
				l.errs.Addf(ErrMalformedStorageQualifier, st.stage,
					"%s member %q: offset %d is not a multiple of the base alignment %d",
					what, m.Name, *m.Offset, laid[i].Align)
				ok = false
			}
		}
		running = laid[i].Offset + laid[i].Size
	}
	return ok
}

// activeElements lists the active elements of a block, outermost index
// first. Packed blocks keep only the statically used elements; the other
// layouts keep every element.
func activeElements(packing ir.Packing, usage *ir.Usage, dims []uint32) []blockElement {
	trim := packing == ir.PackingPacked && usage != nil
	if trim && !usage.Referenced {
		return nil
	}

	perDim := make([][]uint32, len(dims))
	for d, n := range dims {
		if trim && d < len(usage.Dims) && !usage.Dims[d].Dynamic {
			for _, idx := range usage.Dims[d].Indices {
				if idx < n {
					perDim[d] = append(perDim[d], idx)
				}
			}
			continue
		}
		for i := uint32(0); i < n; i++ {
			perDim[d] = append(perDim[d], i)
		}
	}

	elements := []blockElement{{}}
	for d, indices := range perDim {
		stride := uint32(1)
		for _, n := range dims[d+1:] {
			stride *= n
		}
		next := make([]blockElement, 0, len(elements)*len(indices))
		for _, el := range elements {
			for _, idx := range indices {
				next = append(next, blockElement{
					suffix: el.suffix + "[" + strconv.FormatUint(uint64(idx), 10) + "]",
					linear: el.linear + idx*stride,
				})
			}
		}
		elements = next
	}
	return elements
}

// blockKey identifies a block across stages.
func (l *linker) blockKey(desc *BlockDescriptor) string {
	if l.opts.Source == SourceLocation || desc.Name == "" {
		return "binding:" + strconv.Itoa(desc.Binding)
	}
	return desc.Name
}

// mergeBlock adds a descriptor or merges it into an existing declaration
// of the same block.
func (l *linker) mergeBlock(st *stageState, kind blockKind, desc BlockDescriptor) (int, bool) {
	list := l.blocks(kind)
	key := l.blockKey(&desc)
	if idx, ok := l.blockKeys[kind][key]; ok {
		existing := &(*list)[idx]
		if msg := l.blockMismatch(existing, &desc); msg != "" {
			l.errs.Addf(ErrIncompatibleBlockDefinition, st.stage, "%s %s differs from an earlier stage: %s",
				kind, describeBlock(existing), msg)
			return 0, false
		}
		if existing.Binding < 0 {
			existing.Binding = desc.Binding
		}
		existing.StageRefs |= desc.StageRefs
		return idx, true
	}

	idx := len(*list)
	for i := range desc.Variables {
		desc.Variables[i].Block = idx
	}
	*list = append(*list, desc)
	l.blockKeys[kind][key] = idx
	return idx, true
}

func describeBlock(d *BlockDescriptor) string {
	name := d.Name
	if name == "" {
		name = "<unnamed>"
	}
	if d.Binding < 0 {
		return fmt.Sprintf("%q (no binding)", name)
	}
	return fmt.Sprintf("%q (binding %d)", name, d.Binding)
}

// blockMismatch explains why two declarations of a block cannot merge, or
// returns "" when they match. Names only take part for SourceNamed input.
func (l *linker) blockMismatch(a, b *BlockDescriptor) string {
	if a.Binding >= 0 && b.Binding >= 0 && a.Binding != b.Binding {
		return fmt.Sprintf("binding %d vs %d", a.Binding, b.Binding)
	}
	if a.Packing != b.Packing {
		return fmt.Sprintf("packing %s vs %s", a.Packing, b.Packing)
	}
	if a.RowMajor != b.RowMajor {
		return "default matrix layout differs"
	}
	if a.Type == b.Type {
		return ""
	}

	types := l.prog.Types
	am, bm := blockMembers(types, a.Type), blockMembers(types, b.Type)
	if len(am) != len(bm) {
		return fmt.Sprintf("member count %d vs %d", len(am), len(bm))
	}
	for i := range am {
		x, y := am[i], bm[i]
		switch {
		case x.Name != y.Name && l.opts.Source == SourceNamed:
			return fmt.Sprintf("member %d is %q vs %q", i, x.Name, y.Name)
		case x.Type != y.Type:
			return fmt.Sprintf("member %q has type %s vs %s", x.Name, l.typeName(x.Type), l.typeName(y.Type))
		case x.Layout != y.Layout:
			return fmt.Sprintf("member %q matrix layout differs", x.Name)
		case !equalOpt(x.Offset, y.Offset) || !equalOpt(x.Align, y.Align) || !equalOpt(x.MatrixStride, y.MatrixStride):
			return fmt.Sprintf("member %q layout qualifiers differ", x.Name)
		}
	}
	return ""
}

func equalOpt(a, b *uint32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
