// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/glslink/ir"
)

func TestOpaqueIndexReuse(t *testing.T) {
	b := newStage(ir.StageFragment)
	s := b.structType("S", member("tex", b.sampler2D()))
	b.uniform("arr", b.array(s, 3), ir.Qualifiers{})
	b.uniform("other", b.array(s, 2), ir.Qualifiers{})

	p := link(t, Options{}, b.build())
	require.True(t, p.LinkStatus(), p.InfoLog())

	want := map[string]uint32{
		"arr[0].tex":   0,
		"arr[1].tex":   1,
		"arr[2].tex":   2,
		"other[0].tex": 3,
		"other[1].tex": 4,
	}
	for name, index := range want {
		u := findUniform(p, name)
		require.NotNil(t, u, name)
		assert.Equal(t, OpaqueIndex{Index: index, Active: true}, u.Opaque[ir.StageFragment], name)
		assert.False(t, u.Opaque[ir.StageVertex].Active, name)
	}
}

func TestOpaqueIndexStructMembersStayContiguous(t *testing.T) {
	b := newStage(ir.StageFragment)
	s := b.structType("Material",
		member("albedo", b.sampler2D()),
		member("scale", b.float()),
		member("normal", b.sampler2D()),
	)
	b.uniform("mats", b.array(s, 2), ir.Qualifiers{Binding: u32p(4)})

	p := link(t, Options{}, b.build())
	require.True(t, p.LinkStatus(), p.InfoLog())

	// Each member reserves a range for every array element on first use.
	tests := []struct {
		name    string
		index   uint32
		binding int
	}{
		{"mats[0].albedo", 0, 4},
		{"mats[0].normal", 2, 6},
		{"mats[1].albedo", 1, 5},
		{"mats[1].normal", 3, 7},
	}
	for _, tt := range tests {
		u := findUniform(p, tt.name)
		require.NotNil(t, u, tt.name)
		assert.Equal(t, tt.index, u.Opaque[ir.StageFragment].Index, tt.name)
		assert.Equal(t, tt.binding, u.Binding, tt.name)
	}
	scale := findUniform(p, "mats[1].scale")
	require.NotNil(t, scale)
	assert.False(t, scale.Opaque[ir.StageFragment].Active)
}

func TestSamplerArrayIndex(t *testing.T) {
	b := newStage(ir.StageFragment)
	b.uniform("shadow", b.sampler2D(), ir.Qualifiers{})
	b.uniform("cascades", b.array(b.sampler2D(), 4), ir.Qualifiers{Binding: u32p(3)})

	p := link(t, Options{}, b.build())
	require.True(t, p.LinkStatus(), p.InfoLog())

	cascades := findUniform(p, "cascades")
	require.NotNil(t, cascades)
	assert.Equal(t, uint32(4), cascades.ArrayElements)
	assert.Equal(t, uint32(1), cascades.Opaque[ir.StageFragment].Index)
	assert.Equal(t, 3, cascades.Binding)
	assert.Equal(t, -1, findUniform(p, "shadow").Binding)
}

func TestUnreferencedUniformsAreSkipped(t *testing.T) {
	b := newStage(ir.StageFragment)
	b.global(ir.GlobalVariable{Name: "unused", Space: ir.SpaceUniform, Type: b.float(),
		Usage: &ir.Usage{MaxIndex: -1}})
	b.uniform("used", b.float(), ir.Qualifiers{})

	p := link(t, Options{}, b.build())
	require.True(t, p.LinkStatus(), p.InfoLog())
	assert.Nil(t, findUniform(p, "unused"))
	assert.NotNil(t, findUniform(p, "used"))
}

func TestImplicitArraySize(t *testing.T) {
	v := newStage(ir.StageVertex)
	v.global(ir.GlobalVariable{Name: "weights", Space: ir.SpaceUniform, Type: v.array(v.float(), 0),
		Usage: &ir.Usage{Referenced: true, MaxIndex: 5}})
	f := newStage(ir.StageFragment)
	f.global(ir.GlobalVariable{Name: "weights", Space: ir.SpaceUniform, Type: f.array(f.float(), 0),
		Usage: &ir.Usage{Referenced: true, MaxIndex: 2}})

	p := link(t, Options{}, v.build(), f.build())
	require.True(t, p.LinkStatus(), p.InfoLog())
	w := findUniform(p, "weights")
	require.NotNil(t, w)
	assert.Equal(t, uint32(6), w.ArrayElements)
	assert.Equal(t, ir.StageVertex.Bit()|ir.StageFragment.Bit(), w.ActiveStages)
}

func TestUniformRedeclaration(t *testing.T) {
	tests := []struct {
		name  string
		vs    func(b *stageBuilder)
		fs    func(b *stageBuilder)
		want  ErrorKind
		stage ir.ShaderStage
	}{
		{
			name: "type differs",
			vs:   func(b *stageBuilder) { b.uniform("x", b.float(), ir.Qualifiers{}) },
			fs:   func(b *stageBuilder) { b.uniform("x", b.vec(ir.Vec2), ir.Qualifiers{}) },
			want: ErrUniformRedeclarationMismatch, stage: ir.StageFragment,
		},
		{
			name: "array size differs",
			vs:   func(b *stageBuilder) { b.uniform("x", b.array(b.float(), 2), ir.Qualifiers{}) },
			fs:   func(b *stageBuilder) { b.uniform("x", b.array(b.float(), 3), ir.Qualifiers{}) },
			want: ErrUniformRedeclarationMismatch, stage: ir.StageFragment,
		},
		{
			name: "explicit location differs",
			vs:   func(b *stageBuilder) { b.uniform("x", b.float(), ir.Qualifiers{Location: u32p(1)}) },
			fs:   func(b *stageBuilder) { b.uniform("x", b.float(), ir.Qualifiers{Location: u32p(2)}) },
			want: ErrUniformRedeclarationMismatch, stage: ir.StageFragment,
		},
		{
			name: "sampler binding differs",
			vs:   func(b *stageBuilder) { b.uniform("tex", b.sampler2D(), ir.Qualifiers{Binding: u32p(1)}) },
			fs:   func(b *stageBuilder) { b.uniform("tex", b.sampler2D(), ir.Qualifiers{Binding: u32p(2)}) },
			want: ErrExplicitBindingCollision, stage: ir.StageFragment,
		},
		{
			name: "bindless differs",
			vs:   func(b *stageBuilder) { b.uniform("tex", b.sampler2D(), ir.Qualifiers{}) },
			fs: func(b *stageBuilder) {
				b.uniform("other", b.sampler2D(), ir.Qualifiers{})
				b.uniform("tex", b.sampler2D(), ir.Qualifiers{Binding: u32p(5), Bindless: true})
			},
			want: ErrUniformRedeclarationMismatch, stage: ir.StageFragment,
		},
		{
			name: "default uniform and flat block member",
			vs:   func(b *stageBuilder) { b.uniform("x", b.float(), ir.Qualifiers{}) },
			fs:   func(b *stageBuilder) { flatBlock(b, "B", member("x", b.float())) },
			want: ErrUniformRedeclarationMismatch, stage: ir.StageFragment,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, f := newStage(ir.StageVertex), newStage(ir.StageFragment)
			tt.vs(v)
			tt.fs(f)
			p := link(t, Options{}, v.build(), f.build())
			assert.False(t, p.LinkStatus())
			require.Equal(t, []ErrorKind{tt.want}, kinds(p), p.InfoLog())
			assert.Equal(t, tt.stage, p.Errors()[0].Stage)
		})
	}
}

func TestUniformsMatchByLocationInLocationMode(t *testing.T) {
	v := newStage(ir.StageVertex)
	v.uniform("", v.mat4(), ir.Qualifiers{Location: u32p(0)})
	f := newStage(ir.StageFragment)
	f.uniform("transform", f.mat4(), ir.Qualifiers{Location: u32p(0)})
	f.uniform("", f.sampler2D(), ir.Qualifiers{Binding: u32p(1)})

	p := link(t, Options{Source: SourceLocation}, v.build(), f.build())
	require.True(t, p.LinkStatus(), p.InfoLog())
	require.Len(t, p.Uniforms, 2)
	assert.Equal(t, ir.StageVertex.Bit()|ir.StageFragment.Bit(), p.Uniforms[0].ActiveStages)
	assert.Equal(t, 0, p.Uniforms[0].Location)
	assert.Equal(t, 1, p.Uniforms[1].Binding)
}

func TestStageLimits(t *testing.T) {
	b := newStage(ir.StageFragment)
	b.uniform("texs", b.array(b.sampler2D(), 2), ir.Qualifiers{})
	limits := DefaultLimits()
	limits.Stages[ir.StageFragment].MaxTextureImageUnits = 1

	p := link(t, Options{Limits: &limits}, b.build())
	assert.False(t, p.LinkStatus())
	assert.Equal(t, []ErrorKind{ErrResourceLimitExceeded}, kinds(p))
	assert.Contains(t, p.InfoLog(), "fragment")
	assert.Contains(t, p.InfoLog(), "sampler uniforms")

	// The tables stay populated for diagnostics.
	assert.NotNil(t, findUniform(p, "texs"))
	_, ok := p.ResourceIndex(InterfaceUniform, "texs")
	assert.False(t, ok)
}

func TestUniformComponentLimit(t *testing.T) {
	b := newStage(ir.StageVertex)
	b.uniform("bones", b.array(b.mat4(), 8), ir.Qualifiers{})
	b.uniform("d", b.double(), ir.Qualifiers{})
	limits := DefaultLimits()
	limits.Stages[ir.StageVertex].MaxUniformComponents = 129

	p := link(t, Options{Limits: &limits}, b.build())
	assert.Equal(t, []ErrorKind{ErrResourceLimitExceeded}, kinds(p))
	assert.Contains(t, p.InfoLog(), "(130 > 129)")
}

func TestCombinedSamplerLimitNamesStages(t *testing.T) {
	v := newStage(ir.StageVertex)
	v.uniform("a", v.sampler2D(), ir.Qualifiers{})
	f := newStage(ir.StageFragment)
	f.uniform("b", f.array(f.sampler2D(), 2), ir.Qualifiers{})
	limits := DefaultLimits()
	limits.MaxCombinedTextureImageUnits = 2

	p := link(t, Options{Limits: &limits}, v.build(), f.build())
	require.Equal(t, []ErrorKind{ErrResourceLimitExceeded}, kinds(p))
	assert.Equal(t, ir.StageFragment, p.Errors()[0].Stage)
	assert.Contains(t, p.Errors()[0].Message, "vertex, fragment")
}

// flatBlock declares a std140 uniform block without an instance name.
func flatBlock(b *stageBuilder, name string, members ...ir.StructMember) {
	b.global(ir.GlobalVariable{
		Space:      ir.SpaceUniformBlock,
		Type:       b.block(name, members...),
		Qualifiers: ir.Qualifiers{Packing: ir.PackingStd140},
	})
}

func TestFlatBlockMembersShareGlobalScope(t *testing.T) {
	t.Run("uniform and member in one stage", func(t *testing.T) {
		b := newStage(ir.StageFragment)
		b.uniform("x", b.float(), ir.Qualifiers{})
		flatBlock(b, "B", member("x", b.float()))

		p := link(t, Options{}, b.build())
		assert.False(t, p.LinkStatus())
		assert.Equal(t, []ErrorKind{ErrUniformRedeclarationMismatch}, kinds(p))
		assert.Contains(t, p.InfoLog(), `"x"`)
	})

	t.Run("members of two blocks", func(t *testing.T) {
		b := newStage(ir.StageFragment)
		flatBlock(b, "B1", member("z", b.float()))
		flatBlock(b, "B2", member("z", b.vec(ir.Vec4)))

		p := link(t, Options{}, b.build())
		assert.False(t, p.LinkStatus())
		assert.Equal(t, []ErrorKind{ErrUniformRedeclarationMismatch}, kinds(p))
		assert.Contains(t, p.InfoLog(), `"B1"`)
	})

	t.Run("one block in two stages", func(t *testing.T) {
		v := newStage(ir.StageVertex)
		flatBlock(v, "B", member("z", v.vec(ir.Vec4)))
		f := newStage(ir.StageFragment)
		flatBlock(f, "B", member("z", f.vec(ir.Vec4)))

		p := link(t, Options{}, v.build(), f.build())
		require.True(t, p.LinkStatus(), p.InfoLog())
		require.Len(t, p.Uniforms, 1)
		assert.Equal(t, 0, p.Uniforms[0].BlockIndex)
		assert.Equal(t, ir.StageVertex.Bit()|ir.StageFragment.Bit(), p.Uniforms[0].ActiveStages)
		assert.Equal(t, []int{0}, p.UniformBlocks[0].Uniforms)
	})
}

func TestBindlessIndexSpace(t *testing.T) {
	b := newStage(ir.StageFragment)
	image2D := b.typ("", ir.ImageType{Dim: ir.Dim2D, Kind: ir.ScalarFloat})
	b.uniform("tex", b.sampler2D(), ir.Qualifiers{Binding: u32p(2)})
	b.uniform("handles", b.array(b.sampler2D(), 3), ir.Qualifiers{Bindless: true})
	b.uniform("img", image2D, ir.Qualifiers{Bindless: true})
	b.global(ir.GlobalVariable{
		Name:  "mat",
		Space: ir.SpaceUniformBlock,
		Type: b.block("Material",
			member("albedo", b.sampler2D()),
			member("normals", b.array(b.sampler2D(), 2)),
			member("mask", image2D),
		),
		Qualifiers: ir.Qualifiers{Packing: ir.PackingStd140, Bindless: true},
	})
	b.uniform("shadow", b.sampler2D(), ir.Qualifiers{})
	limits := DefaultLimits()
	limits.Stages[ir.StageFragment].MaxTextureImageUnits = 2
	limits.Stages[ir.StageFragment].MaxImageUniforms = 0

	p := link(t, Options{Limits: &limits}, b.build())
	require.True(t, p.LinkStatus(), p.InfoLog())

	tests := []struct {
		name     string
		index    uint32
		bindless bool
	}{
		{"tex", 0, false},
		{"shadow", 1, false},
		{"handles", 0, true},
		{"Material.albedo", 3, true},
		{"Material.normals", 4, true},
		{"img", 0, true},
		{"Material.mask", 1, true},
	}
	for _, tt := range tests {
		u := findUniform(p, tt.name)
		require.NotNil(t, u, tt.name)
		assert.Equal(t, OpaqueIndex{Index: tt.index, Active: true}, u.Opaque[ir.StageFragment], tt.name)
		assert.Equal(t, tt.bindless, u.IsBindless, tt.name)
	}
	assert.Equal(t, 2, findUniform(p, "tex").Binding)
}

func TestBindlessSamplersDoNotCountAgainstTextureUnits(t *testing.T) {
	limits := DefaultLimits()
	limits.Stages[ir.StageFragment].MaxTextureImageUnits = 1

	b := newStage(ir.StageFragment)
	b.uniform("handles", b.array(b.sampler2D(), 8), ir.Qualifiers{Bindless: true})
	b.uniform("tex", b.sampler2D(), ir.Qualifiers{})
	p := link(t, Options{Limits: &limits}, b.build())
	require.True(t, p.LinkStatus(), p.InfoLog())

	b.uniform("tex2", b.sampler2D(), ir.Qualifiers{})
	p = link(t, Options{Limits: &limits}, b.build())
	assert.False(t, p.LinkStatus())
	assert.Equal(t, []ErrorKind{ErrResourceLimitExceeded}, kinds(p))
	assert.Contains(t, p.InfoLog(), "sampler uniforms")
}

func TestBindlessBindingFollowsDeclaration(t *testing.T) {
	v := newStage(ir.StageVertex)
	v.uniform("s", v.sampler2D(), ir.Qualifiers{Binding: u32p(5), Bindless: true})
	f := newStage(ir.StageFragment)
	f.uniform("t", f.sampler2D(), ir.Qualifiers{})
	f.uniform("s", f.sampler2D(), ir.Qualifiers{Binding: u32p(5), Bindless: true})

	p := link(t, Options{}, v.build(), f.build())
	require.True(t, p.LinkStatus(), p.InfoLog())
	s := findUniform(p, "s")
	require.NotNil(t, s)
	assert.Equal(t, 5, s.Binding)
	assert.Equal(t, OpaqueIndex{Index: 0, Active: true}, s.Opaque[ir.StageFragment])
	assert.Equal(t, OpaqueIndex{Index: 0, Active: true}, findUniform(p, "t").Opaque[ir.StageFragment])
}
