// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/gogpu/glslink/ir"
)

// Source selects how declarations are identified across stages.
type Source uint8

const (
	// SourceNamed matches uniforms by flattened name and blocks by block
	// name, as GLSL source requires.
	SourceNamed Source = iota

	// SourceLocation matches uniforms by explicit location or binding and
	// blocks by binding, as SPIR-V input requires. Names are optional and
	// explicit offsets and strides are trusted.
	SourceLocation
)

// String returns the source mode name.
func (s Source) String() string {
	switch s {
	case SourceNamed:
		return "named"
	case SourceLocation:
		return "location"
	default:
		return "unknown"
	}
}

// Options configures a link.
type Options struct {
	// Source selects the identity rules. The zero value is SourceNamed.
	Source Source

	// Limits is the constants table. Nil means DefaultLimits.
	Limits *Limits

	// Logger receives per-phase debug output. Nil discards it.
	Logger *slog.Logger
}

// Unmapped marks a uniform without a location.
const Unmapped = -1

// OpaqueIndex is the per-stage index of a sampler, image or subroutine
// uniform.
type OpaqueIndex struct {
	Index  uint32
	Active bool
}

// Uniform is one flattened leaf uniform: a default-block uniform or a block
// member. Arrays of scalars, vectors and matrices are a single entry.
type Uniform struct {
	// Name is the flattened name, such as "lights[2].color".
	Name string

	// Type is the element type of the leaf.
	Type ir.TypeHandle

	// ArrayElements is the leaf array length, 0 for non-arrays.
	ArrayElements uint32
	// UnsizedArray marks the runtime-sized last member of a storage block.
	UnsizedArray bool

	// Location is the remap location, or Unmapped. For subroutine uniforms
	// it indexes the stage's subroutine remap table.
	Location         int
	ExplicitLocation bool

	// BlockIndex indexes UniformBlocks or ShaderStorageBlocks, -1 for the
	// default block.
	BlockIndex      int
	IsShaderStorage bool

	// Offset, ArrayStride and MatrixStride describe block members.
	Offset       uint32
	ArrayStride  uint32
	MatrixStride uint32
	RowMajor     bool

	IsBindless bool
	Opaque     [ir.StageCount]OpaqueIndex

	// ActiveStages has one bit per stage that uses the uniform.
	ActiveStages ir.StageMask

	Hidden  bool
	Builtin bool

	// TopLevelArraySize and TopLevelArrayStride describe the outermost
	// array of a shader storage block member.
	TopLevelArraySize   uint32
	TopLevelArrayStride uint32

	// Binding is the explicit binding of an opaque uniform or the buffer
	// binding of an atomic counter, -1 when unset.
	Binding int

	// AtomicBufferIndex indexes AtomicBuffers, -1 for other uniforms.
	AtomicBufferIndex int

	// DataSlot is the first slot of the uniform in the backing store and
	// DataSlots the number of slots it covers.
	DataSlot  uint32
	DataSlots uint32
}

// IsSubroutine reports whether the uniform is a subroutine uniform.
func (u *Uniform) IsSubroutine(types ir.TypeLookup) bool {
	_, ok := ir.Inner(types, u.Type).(ir.SubroutineType)
	return ok
}

// Subroutine is a subroutine function with its final index.
type Subroutine struct {
	Name  string
	Index uint32
	Types []string
}

// Program is the result of one link.
//
// Tables stay populated after a failed link for diagnostics, but the
// resource list is empty and every query reports "not found".
type Program struct {
	// Types holds every type of every stage, deduplicated.
	Types *ir.TypeRegistry

	// Stages is the set of linked stages.
	Stages ir.StageMask

	UniformBlocks       []BlockDescriptor
	ShaderStorageBlocks []BlockDescriptor
	Uniforms            []Uniform
	AtomicBuffers       []AtomicBuffer

	// RemapTable maps a location to an index into Uniforms, or Unmapped.
	RemapTable []int

	// SubroutineRemap is the per-stage subroutine uniform remap table.
	SubroutineRemap [ir.StageCount][]int

	// Subroutines lists each stage's subroutine functions.
	Subroutines [ir.StageCount][]Subroutine

	// NumDataSlots is the size of the uniform backing store.
	NumDataSlots uint32

	Inputs      []IOVariable
	Outputs     []IOVariable
	XfbVaryings []XfbVarying
	XfbBuffers  []XfbBuffer

	// Resources is the interface-ordered resource list.
	Resources []ProgramResource

	errors Errors
	linked bool
	index  resourceIndex
}

// LinkStatus reports whether the link succeeded.
func (p *Program) LinkStatus() bool {
	return p.linked
}

// Errors returns the link errors in the order they were found.
func (p *Program) Errors() Errors {
	return p.errors
}

// Err returns the errors as an error, or nil after a successful link.
func (p *Program) Err() error {
	if !p.errors.HasErrors() {
		return nil
	}
	return p.errors
}

// InfoLog returns the program info log, one line per error.
func (p *Program) InfoLog() string {
	return p.errors.FormatAll()
}

// TypeName renders a program type in GLSL syntax.
func (p *Program) TypeName(h ir.TypeHandle) string {
	return ir.TypeString(p.Types, h)
}

// Link links the given stages into a program. Link never fails with a Go
// error: problems are reported through the program's error list and link
// status.
func Link(stages []*ir.Shader, opts Options) *Program {
	l := newLinker(opts)
	l.run(stages)
	return l.prog
}

type linker struct {
	opts   Options
	limits Limits
	log    *slog.Logger
	prog   *Program
	errs   *Errors

	stages []*stageState

	// uniformKeys maps an identity key to an index into prog.Uniforms.
	uniformKeys map[string]int
	// varDecls records the first declaration of each default-block
	// variable for redeclaration checks.
	varDecls map[string]*varDecl
	// globalNames maps a name visible at global scope, a default-block
	// leaf or a member of a block without an instance name, to its entry.
	globalNames map[string]int
	// blockKeys maps a block identity key to a descriptor index, for
	// uniform blocks and storage blocks.
	blockKeys [2]map[string]int
	// implicitSizes holds the resolved length of implicitly sized arrays.
	implicitSizes map[string]uint32
}

func newLinker(opts Options) *linker {
	limits := DefaultLimits()
	if opts.Limits != nil {
		limits = *opts.Limits
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	prog := &Program{Types: ir.NewTypeRegistry()}
	return &linker{
		opts:          opts,
		limits:        limits,
		log:           log,
		prog:          prog,
		errs:          &prog.errors,
		uniformKeys:   make(map[string]int),
		varDecls:      make(map[string]*varDecl),
		globalNames:   make(map[string]int),
		blockKeys:     [2]map[string]int{make(map[string]int), make(map[string]int)},
		implicitSizes: make(map[string]uint32),
	}
}

func (l *linker) run(shaders []*ir.Shader) {
	if !l.prepareStages(shaders) {
		l.log.Debug("link failed", "phase", "prepare", "errors", l.errs.Len())
		return
	}

	for _, st := range l.stages {
		l.collectBlocks(st)
	}
	l.log.Debug("blocks merged",
		"uniform_blocks", len(l.prog.UniformBlocks),
		"storage_blocks", len(l.prog.ShaderStorageBlocks))

	l.resolveImplicitSizes()
	for _, st := range l.stages {
		l.linkStageUniforms(st)
		l.checkStageLimits(st)
	}
	l.assignAtomicBuffers()
	l.checkCombinedLimits()
	l.log.Debug("uniforms linked", "uniforms", len(l.prog.Uniforms))

	l.buildRemapTable()
	l.assignSubroutines()
	l.assignDataSlots()
	l.log.Debug("locations assigned",
		"locations", len(l.prog.RemapTable),
		"data_slots", l.prog.NumDataSlots)

	if l.errs.HasErrors() {
		l.log.Debug("link failed", "errors", l.errs.Len())
		return
	}
	l.buildResourceList()
	l.prog.linked = true
	l.log.Debug("link succeeded", "resources", len(l.prog.Resources))
}

// stageState is the per-stage working state of one link.
type stageState struct {
	stage  ir.ShaderStage
	shader *ir.Shader
	imp    *ir.Importer

	// opaque index counters
	samplers         uint32
	images           uint32
	bindlessSamplers uint32
	bindlessImages   uint32
	subroutines      uint32

	uniformComponents uint32
	uniformBlocks     uint32
	storageBlocks     uint32

	blockDecls    map[int]*blockDecl
	claims        map[string]*ir.GlobalVariable
	atomics       []atomicRef
	atomicOffsets map[uint32]uint32
}

func (st *stageState) importType(h ir.TypeHandle) (ir.TypeHandle, error) {
	return st.imp.Import(h)
}

// prepareStages validates the stage set, sorts it into pipeline order and
// runs static-use analysis on private copies of the shaders.
func (l *linker) prepareStages(shaders []*ir.Shader) bool {
	if len(shaders) == 0 {
		l.errs.Addf(ErrInvalidProgram, NoStage, "program has no shader stages")
		return false
	}

	sorted := make([]*ir.Shader, 0, len(shaders))
	for i, s := range shaders {
		if s == nil {
			l.errs.Addf(ErrInvalidProgram, NoStage, "shader %d is nil", i)
			continue
		}
		sorted = append(sorted, s)
	}
	slices.SortStableFunc(sorted, func(a, b *ir.Shader) int {
		return int(a.Stage) - int(b.Stage)
	})

	var seen ir.StageMask
	for _, s := range sorted {
		if s.Stage >= ir.StageCount {
			l.errs.Addf(ErrInvalidProgram, NoStage, "unknown shader stage %d", s.Stage)
			continue
		}
		if seen.Has(s.Stage) {
			l.errs.Addf(ErrInvalidProgram, s.Stage, "more than one %s shader in program", s.Stage)
			continue
		}
		seen |= s.Stage.Bit()
	}
	if seen.Has(ir.StageCompute) && seen != ir.StageCompute.Bit() {
		l.errs.Addf(ErrInvalidProgram, NoStage, "compute shader cannot be linked with graphics stages")
	}
	if l.errs.HasErrors() {
		return false
	}

	for _, s := range sorted {
		shader := *s
		shader.GlobalVariables = slices.Clone(s.GlobalVariables)

		verrs, err := ir.Validate(&shader)
		if err != nil {
			l.errs.Addf(ErrInvalidProgram, shader.Stage, "%v", err)
			continue
		}
		for _, ve := range verrs {
			kind := ErrInvalidProgram
			if errors.Is(ve, ir.ErrTypeTooDeep) {
				kind = ErrRecursionLimitExceeded
			}
			l.errs.Addf(kind, shader.Stage, "%s", ve.Error())
		}
		if len(verrs) > 0 {
			continue
		}

		ir.AnalyzeUsage(&shader)
		l.checkVersionFeatures(&shader)

		l.stages = append(l.stages, &stageState{
			stage:         shader.Stage,
			shader:        &shader,
			imp:           l.prog.Types.NewImporter(shader.Types),
			atomicOffsets: make(map[uint32]uint32),
			claims:        make(map[string]*ir.GlobalVariable),
		})
		l.prog.Stages |= shader.Stage.Bit()
		l.log.Debug("stage prepared", "stage", shader.Stage.String(),
			"version", shader.Version.String(), "globals", len(shader.GlobalVariables))
	}
	return !l.errs.HasErrors()
}

// checkVersionFeatures rejects qualifiers the shader's GLSL version does
// not have. SPIR-V input carries decorations instead and is not checked.
func (l *linker) checkVersionFeatures(shader *ir.Shader) {
	if l.opts.Source != SourceNamed {
		return
	}
	v := shader.Version
	for _, gv := range shader.GlobalVariables {
		if gv.Space == ir.SpaceUniform && gv.Qualifiers.Location != nil && !v.SupportsExplicitUniformLocation() {
			l.errs.Addf(ErrMalformedStorageQualifier, shader.Stage,
				"uniform %q: explicit uniform location requires GLSL 430 or 310 es (shader is %s)", gv.Name, v)
		}
		if gv.Qualifiers.Bindless && !v.SupportsBindless() {
			l.errs.Addf(ErrMalformedStorageQualifier, shader.Stage,
				"%q: bindless qualifier is not available in GLSL %s", gv.Name, v)
		}
	}
	if v.SupportsMemberOffset() {
		return
	}
	for h, typ := range shader.Types {
		iface, ok := typ.Inner.(ir.InterfaceType)
		if !ok {
			continue
		}
		for _, m := range iface.Members {
			if m.Offset != nil || m.Align != nil {
				l.errs.Addf(ErrMalformedStorageQualifier, shader.Stage,
					"block %q (type %d) member %q: offset and align qualifiers require GLSL 440 (shader is %s)",
					typ.Name, h, m.Name, v)
			}
		}
	}
}

// typeError records a failed type import.
func (l *linker) typeError(stage ir.ShaderStage, what string, err error) {
	if errors.Is(err, ir.ErrTypeTooDeep) {
		l.errs.Addf(ErrRecursionLimitExceeded, stage, "%s: %v", what, err)
		return
	}
	l.errs.Addf(ErrInvalidProgram, stage, "%s: %v", what, err)
}

func (l *linker) typeName(h ir.TypeHandle) string {
	return ir.TypeString(l.prog.Types, h)
}

// displayName names a variable in diagnostics, falling back to its
// qualifiers for nameless SPIR-V declarations.
func displayName(gv *ir.GlobalVariable) string {
	if gv.Name != "" {
		return gv.Name
	}
	switch {
	case gv.Qualifiers.Location != nil:
		return fmt.Sprintf("<location %d>", *gv.Qualifiers.Location)
	case gv.Qualifiers.Binding != nil:
		return fmt.Sprintf("<binding %d>", *gv.Qualifiers.Binding)
	}
	return "<unnamed>"
}
