// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/glslink/ir"
)

// varDecl is the first declaration of a default-block variable, kept to
// check redeclarations in later stages against.
type varDecl struct {
	stage    ir.ShaderStage
	typ      ir.TypeHandle
	location *uint32
	binding  *uint32
	offset   *uint32
	bindless bool
}

// varKey identifies a default-block variable across stages. Subroutine
// uniforms live in a per-stage namespace.
func (l *linker) varKey(st *stageState, gv *ir.GlobalVariable, subroutine bool) string {
	var key string
	switch {
	case l.opts.Source == SourceNamed:
		key = "name:" + gv.Name
	case gv.Qualifiers.Location != nil:
		key = "location:" + strconv.FormatUint(uint64(*gv.Qualifiers.Location), 10)
	case gv.Qualifiers.Binding != nil && gv.Qualifiers.Offset != nil:
		key = fmt.Sprintf("atomic:%d:%d", *gv.Qualifiers.Binding, *gv.Qualifiers.Offset)
	case gv.Qualifiers.Binding != nil:
		key = "binding:" + strconv.FormatUint(uint64(*gv.Qualifiers.Binding), 10)
	case gv.Name != "":
		key = "name:" + gv.Name
	default:
		key = fmt.Sprintf("anonymous:%d:%p", st.stage, gv)
	}
	if subroutine {
		key = "subroutine:" + strconv.Itoa(int(st.stage)) + ":" + key
	}
	return key
}

// resolveImplicitSizes sizes default-block arrays declared without a length
// from the largest constant index any stage uses.
func (l *linker) resolveImplicitSizes() {
	for _, st := range l.stages {
		types := ir.Types(st.shader.Types)
		for gi := range st.shader.GlobalVariables {
			gv := &st.shader.GlobalVariables[gi]
			if gv.Space != ir.SpaceUniform {
				continue
			}
			arr, ok := ir.Inner(types, gv.Type).(ir.ArrayType)
			if !ok || arr.Size.Constant != nil {
				continue
			}
			key := l.varKey(st, gv, false)
			size := max(l.implicitSizes[key], 1)
			if gv.Usage != nil && gv.Usage.MaxIndex >= 0 {
				size = max(size, uint32(gv.Usage.MaxIndex)+1)
			}
			l.implicitSizes[key] = size
		}
	}
}

// applyImplicitSize replaces an unsized outermost dimension by its resolved
// length.
func (l *linker) applyImplicitSize(st *stageState, gv *ir.GlobalVariable, h ir.TypeHandle) ir.TypeHandle {
	typ, ok := l.prog.Types.Lookup(h)
	if !ok {
		return h
	}
	arr, ok := typ.Inner.(ir.ArrayType)
	if !ok || arr.Size.Constant != nil {
		return h
	}
	n := max(l.implicitSizes[l.varKey(st, gv, false)], 1)
	arr.Size = ir.ArraySize{Constant: &n}
	return l.prog.Types.GetOrCreate(typ.Name, arr)
}

// linkStageUniforms walks a stage's globals in declaration order and
// creates or merges their uniform entries.
func (l *linker) linkStageUniforms(st *stageState) {
	for gi := range st.shader.GlobalVariables {
		gv := &st.shader.GlobalVariables[gi]
		switch gv.Space {
		case ir.SpaceUniform:
			l.linkDefaultUniform(st, gv)
		case ir.SpaceUniformBlock, ir.SpaceStorageBlock:
			if decl := st.blockDecls[gi]; decl != nil {
				l.linkBlockMembers(st, decl)
			}
		}
	}
	l.log.Debug("stage uniforms linked", "stage", st.stage.String(),
		"samplers", st.samplers, "images", st.images,
		"components", st.uniformComponents, "subroutine_uniforms", st.subroutines)
}

// checkRedeclaration compares a variable with its first declaration.
func (l *linker) checkRedeclaration(st *stageState, gv *ir.GlobalVariable, key string, h ir.TypeHandle) bool {
	prev, ok := l.varDecls[key]
	if !ok {
		l.varDecls[key] = &varDecl{
			stage:    st.stage,
			typ:      h,
			location: gv.Qualifiers.Location,
			binding:  gv.Qualifiers.Binding,
			offset:   gv.Qualifiers.Offset,
			bindless: gv.Qualifiers.Bindless,
		}
		return true
	}

	name := displayName(gv)
	switch {
	case prev.typ != h:
		l.errs.Addf(ErrUniformRedeclarationMismatch, st.stage,
			"uniform %q is declared as %s here but as %s in the %s shader",
			name, l.typeName(h), l.typeName(prev.typ), prev.stage)
		return false
	case prev.location != nil && gv.Qualifiers.Location != nil && *prev.location != *gv.Qualifiers.Location:
		l.errs.Addf(ErrUniformRedeclarationMismatch, st.stage,
			"uniform %q has explicit location %d here but %d in the %s shader",
			name, *gv.Qualifiers.Location, *prev.location, prev.stage)
		return false
	case prev.binding != nil && gv.Qualifiers.Binding != nil && *prev.binding != *gv.Qualifiers.Binding:
		l.errs.Addf(ErrExplicitBindingCollision, st.stage,
			"uniform %q has binding %d here but %d in the %s shader",
			name, *gv.Qualifiers.Binding, *prev.binding, prev.stage)
		return false
	case prev.offset != nil && gv.Qualifiers.Offset != nil && *prev.offset != *gv.Qualifiers.Offset:
		l.errs.Addf(ErrUniformRedeclarationMismatch, st.stage,
			"atomic counter %q has offset %d here but %d in the %s shader",
			name, *gv.Qualifiers.Offset, *prev.offset, prev.stage)
		return false
	case prev.bindless != gv.Qualifiers.Bindless:
		l.errs.Addf(ErrUniformRedeclarationMismatch, st.stage,
			"uniform %q is %s here but %s in the %s shader",
			name, bindlessName(gv.Qualifiers.Bindless), bindlessName(prev.bindless), prev.stage)
		return false
	}
	return true
}

func bindlessName(bindless bool) string {
	if bindless {
		return "bindless"
	}
	return "bound"
}

// claim records that gv owns key within its stage. A second variable of
// the same stage with the same identity collides with the first.
func (l *linker) claim(st *stageState, gv *ir.GlobalVariable, key string) bool {
	prev, ok := st.claims[key]
	if !ok {
		st.claims[key] = gv
		return true
	}
	if prev == gv {
		return true
	}
	q := gv.Qualifiers
	switch {
	case q.Location != nil:
		l.errs.Addf(ErrExplicitLocationCollision, st.stage,
			"uniforms %q and %q both use explicit location %d", displayName(prev), displayName(gv), *q.Location)
	case q.Binding != nil:
		l.errs.Addf(ErrExplicitBindingCollision, st.stage,
			"uniforms %q and %q both use binding %d", displayName(prev), displayName(gv), *q.Binding)
	default:
		l.errs.Addf(ErrUniformRedeclarationMismatch, st.stage,
			"uniform %q is declared twice", displayName(gv))
	}
	return false
}

// claimName binds a global-scope name to a uniform entry. The name may
// belong to one entry only: a default-block uniform and a block member, or
// members of two different blocks, cannot share it.
func (l *linker) claimName(st *stageState, name string, idx int) bool {
	if l.opts.Source != SourceNamed || name == "" {
		return true
	}
	prev, ok := l.globalNames[name]
	if !ok {
		l.globalNames[name] = idx
		return true
	}
	if prev == idx {
		return true
	}
	l.errs.Addf(ErrUniformRedeclarationMismatch, st.stage,
		"uniform %q is declared %s and %s", name, l.scopeName(prev), l.scopeName(idx))
	return false
}

// scopeName describes where a uniform entry is declared.
func (l *linker) scopeName(idx int) string {
	u := &l.prog.Uniforms[idx]
	if u.BlockIndex < 0 {
		return "in the default uniform block"
	}
	kind := kindUniformBlock
	if u.IsShaderStorage {
		kind = kindStorageBlock
	}
	return fmt.Sprintf("in %s %q", kind, (*l.blocks(kind))[u.BlockIndex].Name)
}

// linkDefaultUniform flattens one default-block uniform.
func (l *linker) linkDefaultUniform(st *stageState, gv *ir.GlobalVariable) {
	if gv.Usage != nil && !gv.Usage.Referenced && !gv.Hidden {
		return
	}
	h, err := st.importType(gv.Type)
	if err != nil {
		l.typeError(st.stage, fmt.Sprintf("uniform %q", displayName(gv)), err)
		return
	}
	h = l.applyImplicitSize(st, gv, h)

	types := l.prog.Types
	base, dims := ir.StripArrays(types, h)
	if slices.Contains(dims, 0) {
		l.errs.Addf(ErrMalformedStorageQualifier, st.stage,
			"uniform %q: only the outermost array dimension may be implicitly sized", displayName(gv))
		return
	}
	baseInner := ir.Inner(types, base)
	_, subroutine := baseInner.(ir.SubroutineType)
	_, atomic := baseInner.(ir.AtomicCounterType)

	key := l.varKey(st, gv, subroutine)
	if !l.claim(st, gv, key) {
		return
	}
	if !subroutine && !l.checkRedeclaration(st, gv, key, h) {
		return
	}

	tree := buildTypeTree(types, h)
	f := newFlattener(types, nil, false)
	f.walkVariable(gv.Name, h, tree)
	if f.tooDeep {
		l.errs.Addf(ErrRecursionLimitExceeded, st.stage, "uniform %q nests deeper than %d levels",
			displayName(gv), ir.MaxTypeDepth)
		return
	}

	if atomic && !l.checkAtomicQualifiers(st, gv) {
		return
	}

	// Bindless samplers and images draw from their own index space.
	samplers, images := &st.samplers, &st.images
	if gv.Qualifiers.Bindless {
		samplers, images = &st.bindlessSamplers, &st.bindlessImages
	}
	// Counter values at the start of the variable, for per-leaf bindings.
	startSamplers, startImages := *samplers, *images
	var atomicBase uint32
	if atomic {
		binding := *gv.Qualifiers.Binding
		atomicBase = st.atomicOffsets[binding]
		if gv.Qualifiers.Offset != nil {
			atomicBase = *gv.Qualifiers.Offset
		}
	}

	var locations, atomicBytes uint32
	for i, lf := range f.leaves {
		leafKey := l.leafKey(key, lf, i, len(f.leaves))
		idx, created, ok := l.uniformFor(st, leafKey, gv, lf)
		if !ok {
			continue
		}
		if !subroutine && !l.claimName(st, lf.name, idx) {
			continue
		}
		u := &l.prog.Uniforms[idx]
		if gv.Qualifiers.Location != nil {
			u.Location = int(*gv.Qualifiers.Location + locations)
			u.ExplicitLocation = true
		}
		locations += max(lf.elements, 1)

		inner := ir.Inner(types, lf.elem)
		switch t := inner.(type) {
		case ir.SamplerType:
			index := lf.node.nextOpaqueIndex(lf.elements, samplers)
			u.Opaque[st.stage] = OpaqueIndex{Index: index, Active: true}
			if gv.Qualifiers.Binding != nil {
				u.Binding = int(*gv.Qualifiers.Binding + index - startSamplers)
			}
		case ir.ImageType:
			index := lf.node.nextOpaqueIndex(lf.elements, images)
			u.Opaque[st.stage] = OpaqueIndex{Index: index, Active: true}
			if gv.Qualifiers.Binding != nil {
				u.Binding = int(*gv.Qualifiers.Binding + index - startImages)
			}
		case ir.SubroutineType:
			index := lf.node.nextOpaqueIndex(lf.elements, &st.subroutines)
			u.Opaque[st.stage] = OpaqueIndex{Index: index, Active: true}
		case ir.AtomicCounterType:
			size := 4 * max(lf.elements, 1)
			offset := atomicBase + atomicBytes
			atomicBytes += size
			if !created && u.Offset != offset {
				l.errs.Addf(ErrUniformRedeclarationMismatch, st.stage,
					"atomic counter %q is at offset %d here but at offset %d in another stage",
					lf.name, offset, u.Offset)
				continue
			}
			u.Binding = int(*gv.Qualifiers.Binding)
			u.Offset = offset
			if lf.elements > 0 {
				u.ArrayStride = 4
			}
			st.atomics = append(st.atomics, atomicRef{
				uniform: idx,
				binding: *gv.Qualifiers.Binding,
				offset:  offset,
				size:    size,
			})
		default:
			if !gv.Builtin {
				n := ir.ComponentCount(t) * max(lf.elements, 1)
				if s, ok := ir.ScalarOf(t); ok && s.Is64Bit() {
					n *= 2
				}
				st.uniformComponents += n
			}
		}
	}

	if atomic {
		st.atomicOffsets[*gv.Qualifiers.Binding] = atomicBase + atomicBytes
	}
}

// leafKey identifies one leaf of a variable. A variable with a single leaf
// uses the variable's own key.
func (l *linker) leafKey(varKey string, lf leaf, i, leaves int) string {
	if leaves == 1 {
		return varKey
	}
	if l.opts.Source == SourceNamed {
		return varKey + "/" + lf.name
	}
	return varKey + "/" + strconv.Itoa(i)
}

// uniformFor returns the index of the entry for a default-block leaf,
// creating it on first sight and marking the stage active. ok is false
// when the leaf conflicts with an existing entry.
func (l *linker) uniformFor(st *stageState, key string, gv *ir.GlobalVariable, lf leaf) (idx int, created, ok bool) {
	if idx, exists := l.uniformKeys[key]; exists {
		u := &l.prog.Uniforms[idx]
		if u.Type != lf.elem || u.ArrayElements != lf.elements {
			l.errs.Addf(ErrUniformRedeclarationMismatch, st.stage,
				"uniform %q does not match its declaration in another stage", lf.name)
			return 0, false, false
		}
		u.ActiveStages |= st.stage.Bit()
		return idx, false, true
	}

	idx = len(l.prog.Uniforms)
	l.uniformKeys[key] = idx
	l.prog.Uniforms = append(l.prog.Uniforms, Uniform{
		Name:              lf.name,
		Type:              lf.elem,
		ArrayElements:     lf.elements,
		Location:          Unmapped,
		BlockIndex:        -1,
		IsBindless:        gv.Qualifiers.Bindless,
		ActiveStages:      st.stage.Bit(),
		Hidden:            gv.Hidden,
		Builtin:           gv.Builtin || strings.HasPrefix(lf.name, "gl_"),
		Binding:           -1,
		AtomicBufferIndex: -1,
	})
	return idx, true, true
}

// linkBlockMembers creates the member entries of a block declaration. A
// block array shares one set of entries, owned by its first active element.
// Opaque members of bindless blocks take indices from the stage's bindless
// counters.
func (l *linker) linkBlockMembers(st *stageState, decl *blockDecl) {
	if len(decl.elements) == 0 {
		return
	}
	blocks := *l.blocks(decl.kind)
	first := decl.elements[0]
	storage := decl.kind == kindStorageBlock
	flat := blocks[first].InstanceName == ""

	indices := make([]int, 0, len(decl.vars))
	for i, v := range decl.vars {
		key := l.blockMemberKey(decl.kind, &blocks[first], v)
		idx, ok := l.uniformKeys[key]
		if !ok {
			idx = len(l.prog.Uniforms)
			l.uniformKeys[key] = idx
			l.prog.Uniforms = append(l.prog.Uniforms, Uniform{
				Name:                v.Name,
				Type:                v.Type,
				ArrayElements:       v.ArrayElements,
				UnsizedArray:        v.UnsizedArray,
				Location:            Unmapped,
				BlockIndex:          first,
				IsShaderStorage:     storage,
				Offset:              v.Offset,
				ArrayStride:         v.ArrayStride,
				MatrixStride:        v.MatrixStride,
				RowMajor:            v.RowMajor,
				IsBindless:          decl.bindless && ir.IsOpaque(ir.Inner(l.prog.Types, v.Type)),
				TopLevelArraySize:   v.TopLevelArraySize,
				TopLevelArrayStride: v.TopLevelArrayStride,
				Binding:             -1,
				AtomicBufferIndex:   -1,
			})
		}
		u := &l.prog.Uniforms[idx]
		if u.BlockIndex < 0 || u.IsShaderStorage != storage ||
			u.Type != v.Type || u.ArrayElements != v.ArrayElements || u.UnsizedArray != v.UnsizedArray {
			l.errs.Addf(ErrUniformRedeclarationMismatch, st.stage,
				"%s member %q does not match its declaration in another stage", decl.kind, v.Name)
			continue
		}
		if flat && !l.claimName(st, v.Name, idx) {
			continue
		}
		u.ActiveStages |= st.stage.Bit()
		if u.IsBindless {
			l.bindlessMember(st, u, decl.nodes[i])
		}
		indices = append(indices, idx)
	}

	for _, el := range decl.elements {
		if blocks[el].Uniforms == nil {
			blocks[el].Uniforms = indices
		}
	}
}

// bindlessMember assigns the stage's opaque index of a sampler or image
// member of a bindless block.
func (l *linker) bindlessMember(st *stageState, u *Uniform, node *typeTreeEntry) {
	if node == nil {
		node = &typeTreeEntry{arraySize: 1, nextIndex: unsetIndex}
	}
	var counter *uint32
	switch ir.Inner(l.prog.Types, u.Type).(type) {
	case ir.SamplerType:
		counter = &st.bindlessSamplers
	case ir.ImageType:
		counter = &st.bindlessImages
	default:
		return
	}
	index := node.nextOpaqueIndex(u.ArrayElements, counter)
	u.Opaque[st.stage] = OpaqueIndex{Index: index, Active: true}
}

// blockMemberKey identifies a block member across stages: by block and
// member name, or by block binding and byte offset for SPIR-V input.
func (l *linker) blockMemberKey(kind blockKind, block *BlockDescriptor, v BufferVariable) string {
	if l.opts.Source == SourceLocation {
		return fmt.Sprintf("block:%d:%d:%d", kind, block.Binding, v.Offset)
	}
	typ, _ := l.prog.Types.Lookup(block.Type)
	return fmt.Sprintf("block:%d:%s:%s", kind, typ.Name, v.Name)
}

// checkStageLimits compares a stage's counters with its limits. It runs
// after the stage is fully processed so partial tables stay inspectable.
func (l *linker) checkStageLimits(st *stageState) {
	lim := l.limits.Stages[st.stage]
	check := func(what string, n, limit uint32) {
		if n > limit {
			l.errs.Addf(ErrResourceLimitExceeded, st.stage,
				"too many %s in the %s shader (%d > %d)", what, st.stage, n, limit)
		}
	}
	check("sampler uniforms", st.samplers, lim.MaxTextureImageUnits)
	check("image uniforms", st.images, lim.MaxImageUniforms)
	check("uniform components", st.uniformComponents, lim.MaxUniformComponents)
	check("uniform blocks", st.uniformBlocks, lim.MaxUniformBlocks)
	check("shader storage blocks", st.storageBlocks, lim.MaxShaderStorageBlocks)
	check("atomic counters", st.atomicCounters(), lim.MaxAtomicCounters)
	check("atomic counter buffers", st.atomicBufferCount(), lim.MaxAtomicCounterBuffers)
}

// checkCombinedLimits compares the sums over all stages with the combined
// limits. The message names every contributing stage.
func (l *linker) checkCombinedLimits() {
	l.checkCombined("texture image units", l.limits.MaxCombinedTextureImageUnits,
		func(st *stageState) uint32 { return st.samplers })
	l.checkCombined("image uniforms", l.limits.MaxCombinedImageUniforms,
		func(st *stageState) uint32 { return st.images })
	l.checkCombined("uniform blocks", l.limits.MaxCombinedUniformBlocks,
		func(st *stageState) uint32 { return st.uniformBlocks })
	l.checkCombined("shader storage blocks", l.limits.MaxCombinedShaderStorageBlocks,
		func(st *stageState) uint32 { return st.storageBlocks })
	l.checkCombined("atomic counters", l.limits.MaxCombinedAtomicCounters,
		func(st *stageState) uint32 { return st.atomicCounters() })

	if n := uint32(len(l.prog.AtomicBuffers)); n > l.limits.MaxCombinedAtomicBuffers {
		var users []string
		stage := NoStage
		for _, st := range l.stages {
			if st.atomicBufferCount() > 0 {
				users = append(users, st.stage.String())
				if stage == NoStage {
					stage = st.stage
				}
			}
		}
		l.errs.Addf(ErrResourceLimitExceeded, stage, "too many combined atomic counter buffers (%d > %d), used by %s",
			n, l.limits.MaxCombinedAtomicBuffers, strings.Join(users, ", "))
	}
}

func (l *linker) checkCombined(what string, limit uint32, count func(*stageState) uint32) {
	var total uint32
	var users []string
	exceeded := NoStage
	for _, st := range l.stages {
		n := count(st)
		if n == 0 {
			continue
		}
		total += n
		users = append(users, st.stage.String())
		if total > limit && exceeded == NoStage {
			exceeded = st.stage
		}
	}
	if total > limit {
		l.errs.Addf(ErrResourceLimitExceeded, exceeded, "too many combined %s (%d > %d), used by %s",
			what, total, limit, strings.Join(users, ", "))
	}
}
