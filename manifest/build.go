// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package manifest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/glslink/ir"
)

// ErrUnknownType is returned for type strings naming no built-in type,
// declared struct or block.
var ErrUnknownType = errors.New("unknown type")

// Shaders converts the manifest into one shader per stage.
func (m *Manifest) Shaders() ([]*ir.Shader, error) {
	var shaders []*ir.Shader
	for i := range m.Stages {
		s, err := m.Stages[i].shader(m.Version)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, m.Stages[i].Stage, err)
		}
		shaders = append(shaders, s)
	}
	return shaders, nil
}

// stageBuilder resolves the type strings of one stage into a type arena.
type stageBuilder struct {
	reg     *ir.TypeRegistry
	structs map[string]ir.TypeHandle
}

func (st *Stage) shader(defaultVersion string) (*ir.Shader, error) {
	stage, ok := ir.ParseShaderStage(st.Stage)
	if !ok {
		return nil, fmt.Errorf("unknown shader stage %q", st.Stage)
	}
	s := &ir.Shader{Stage: stage}

	version := st.Version
	if version == "" {
		version = defaultVersion
	}
	if version != "" {
		v, err := ir.ParseVersion(version)
		if err != nil {
			return nil, err
		}
		s.Version = v
	}

	b := &stageBuilder{reg: ir.NewTypeRegistry(), structs: make(map[string]ir.TypeHandle)}
	for _, sd := range st.Structs {
		if _, dup := b.structs[sd.Name]; dup {
			return nil, fmt.Errorf("struct %q declared twice", sd.Name)
		}
		members, err := b.members(sd.Members)
		if err != nil {
			return nil, fmt.Errorf("struct %q: %w", sd.Name, err)
		}
		b.structs[sd.Name] = b.reg.GetOrCreate(sd.Name, ir.StructType{Members: members})
	}

	for _, g := range st.Globals {
		gv, err := b.global(g)
		if err != nil {
			return nil, fmt.Errorf("global %q: %w", g.Name, err)
		}
		s.GlobalVariables = append(s.GlobalVariables, gv)
	}

	for _, fn := range st.Subroutines {
		s.SubroutineFunctions = append(s.SubroutineFunctions, ir.SubroutineFunction{
			Name:  fn.Name,
			Types: fn.Types,
			Index: fn.Index,
		})
	}

	for _, x := range st.Xfb {
		h, err := b.resolve(x.Type)
		if err != nil {
			return nil, fmt.Errorf("xfb output %q: %w", x.Name, err)
		}
		s.XfbOutputs = append(s.XfbOutputs, ir.XfbOutput{Name: x.Name, Type: h, Buffer: x.Buffer, Offset: x.Offset})
	}

	s.Types = b.reg.GetTypes()
	return s, nil
}

func (b *stageBuilder) global(g Global) (ir.GlobalVariable, error) {
	space, err := parseSpace(g.Space)
	if err != nil {
		return ir.GlobalVariable{}, err
	}
	packing, err := parsePacking(g.Packing)
	if err != nil {
		return ir.GlobalVariable{}, err
	}
	matrixLayout, err := parseLayout(g.Layout)
	if err != nil {
		return ir.GlobalVariable{}, err
	}

	var h ir.TypeHandle
	if space == ir.SpaceUniformBlock || space == ir.SpaceStorageBlock {
		h, err = b.block(g)
	} else {
		if g.Block != "" || len(g.Members) > 0 {
			return ir.GlobalVariable{}, fmt.Errorf("block members on a %s variable", g.Space)
		}
		h, err = b.resolve(g.Type)
	}
	if err != nil {
		return ir.GlobalVariable{}, err
	}

	gv := ir.GlobalVariable{
		Name:  g.Name,
		Space: space,
		Type:  h,
		Qualifiers: ir.Qualifiers{
			Location: g.Location,
			Binding:  g.Binding,
			Offset:   g.Offset,
			Packing:  packing,
			Layout:   matrixLayout,
			Bindless: g.Bindless,
		},
		Builtin: g.Builtin,
		Hidden:  g.Hidden,
	}
	if g.Usage != nil {
		gv.Usage = g.Usage.ir()
	}
	return gv, nil
}

// block registers the interface type of a block global. The type string,
// when present, must name the block and may add array dimensions.
func (b *stageBuilder) block(g Global) (ir.TypeHandle, error) {
	if g.Block == "" {
		return 0, errors.New("block global without a block name")
	}
	members, err := b.members(g.Members)
	if err != nil {
		return 0, fmt.Errorf("block %q: %w", g.Block, err)
	}
	h := b.reg.GetOrCreate(g.Block, ir.InterfaceType{Members: members})
	if g.Type == "" {
		return h, nil
	}
	base, dims, err := splitArrays(g.Type)
	if err != nil {
		return 0, err
	}
	if base != g.Block {
		return 0, fmt.Errorf("type %q does not name block %q", g.Type, g.Block)
	}
	return b.wrap(h, dims), nil
}

func (b *stageBuilder) members(in []Member) ([]ir.StructMember, error) {
	out := make([]ir.StructMember, 0, len(in))
	for _, m := range in {
		h, err := b.resolve(m.Type)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", m.Name, err)
		}
		l, err := parseLayout(m.Layout)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", m.Name, err)
		}
		out = append(out, ir.StructMember{Name: m.Name, Type: h, Offset: m.Offset, Align: m.Align, Layout: l})
	}
	return out, nil
}

// resolve parses a type string.
func (b *stageBuilder) resolve(s string) (ir.TypeHandle, error) {
	base, dims, err := splitArrays(s)
	if err != nil {
		return 0, err
	}

	var h ir.TypeHandle
	switch {
	case strings.HasPrefix(base, "subroutine "):
		name := strings.TrimSpace(strings.TrimPrefix(base, "subroutine "))
		if name == "" {
			return 0, fmt.Errorf("%w %q", ErrUnknownType, s)
		}
		h = b.reg.GetOrCreate("", ir.SubroutineType{Name: name})
	default:
		if sh, ok := b.structs[base]; ok {
			h = sh
		} else if inner, ok := ir.BuiltinType(base); ok {
			h = b.reg.GetOrCreate("", inner)
		} else {
			return 0, fmt.Errorf("%w %q", ErrUnknownType, s)
		}
	}
	return b.wrap(h, dims), nil
}

// wrap applies array dimensions, outermost first; 0 is unsized.
func (b *stageBuilder) wrap(h ir.TypeHandle, dims []uint32) ir.TypeHandle {
	for i := len(dims) - 1; i >= 0; i-- {
		size := ir.ArraySize{}
		if dims[i] > 0 {
			n := dims[i]
			size.Constant = &n
		}
		h = b.reg.GetOrCreate("", ir.ArrayType{Base: h, Size: size})
	}
	return h
}

// splitArrays splits "T[2][]" into "T" and [2 0].
func splitArrays(s string) (string, []uint32, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '[')
	if open < 0 {
		return s, nil, nil
	}
	base := strings.TrimSpace(s[:open])
	var dims []uint32
	rest := s[open:]
	for rest != "" {
		end := strings.IndexByte(rest, ']')
		if rest[0] != '[' || end < 0 {
			return "", nil, fmt.Errorf("malformed array suffix in %q", s)
		}
		inner := strings.TrimSpace(rest[1:end])
		var n uint64
		if inner != "" {
			var err error
			n, err = strconv.ParseUint(inner, 10, 32)
			if err != nil || n == 0 {
				return "", nil, fmt.Errorf("invalid array size %q in %q", inner, s)
			}
		}
		dims = append(dims, uint32(n))
		rest = rest[end+1:]
	}
	return base, dims, nil
}

func (u *Usage) ir() *ir.Usage {
	out := &ir.Usage{Referenced: true, MaxIndex: -1}
	if u.Referenced != nil {
		out.Referenced = *u.Referenced
	}
	if u.MaxIndex != nil {
		out.MaxIndex = *u.MaxIndex
	}
	for _, d := range u.Dims {
		out.Dims = append(out.Dims, ir.DimUsage{Indices: d.Indices, Dynamic: d.Dynamic})
	}
	return out
}

func parseSpace(s string) (ir.AddressSpace, error) {
	switch s {
	case "", "uniform":
		return ir.SpaceUniform, nil
	case "uniform_block":
		return ir.SpaceUniformBlock, nil
	case "storage_block", "buffer":
		return ir.SpaceStorageBlock, nil
	case "input", "in":
		return ir.SpaceInput, nil
	case "output", "out":
		return ir.SpaceOutput, nil
	case "private":
		return ir.SpacePrivate, nil
	}
	return 0, fmt.Errorf("unknown address space %q", s)
}

func parsePacking(s string) (ir.Packing, error) {
	switch s {
	case "":
		return ir.PackingDefault, nil
	case "shared":
		return ir.PackingShared, nil
	case "std140":
		return ir.PackingStd140, nil
	case "std430":
		return ir.PackingStd430, nil
	case "packed":
		return ir.PackingPacked, nil
	}
	return 0, fmt.Errorf("unknown packing %q", s)
}

func parseLayout(s string) (ir.MatrixLayout, error) {
	switch s {
	case "":
		return ir.MatrixInherit, nil
	case "row_major":
		return ir.MatrixRowMajor, nil
	case "column_major":
		return ir.MatrixColumnMajor, nil
	}
	return 0, fmt.Errorf("unknown matrix layout %q", s)
}
