// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package link

import (
	"testing"

	"github.com/gogpu/glslink/ir"
)

var (
	f32 = ir.ScalarType{Kind: ir.ScalarFloat, Width: 4}
	f64 = ir.ScalarType{Kind: ir.ScalarFloat, Width: 8}
)

func u32p(v uint32) *uint32 { return &v }

// stageBuilder assembles a shader stage for tests.
type stageBuilder struct {
	reg    *ir.TypeRegistry
	shader ir.Shader
}

func newStage(stage ir.ShaderStage) *stageBuilder {
	return &stageBuilder{
		reg:    ir.NewTypeRegistry(),
		shader: ir.Shader{Stage: stage, Version: ir.Version{Number: 460}},
	}
}

func (b *stageBuilder) typ(name string, inner ir.TypeInner) ir.TypeHandle {
	return b.reg.GetOrCreate(name, inner)
}

func (b *stageBuilder) float() ir.TypeHandle  { return b.typ("", f32) }
func (b *stageBuilder) double() ir.TypeHandle { return b.typ("", f64) }

func (b *stageBuilder) vec(n ir.VectorSize) ir.TypeHandle {
	return b.typ("", ir.VectorType{Size: n, Scalar: f32})
}

func (b *stageBuilder) mat4() ir.TypeHandle {
	return b.typ("", ir.MatrixType{Columns: ir.Vec4, Rows: ir.Vec4, Scalar: f32})
}

func (b *stageBuilder) sampler2D() ir.TypeHandle {
	return b.typ("", ir.SamplerType{Dim: ir.Dim2D, Kind: ir.ScalarFloat})
}

func (b *stageBuilder) atomicUint() ir.TypeHandle {
	return b.typ("", ir.AtomicCounterType{})
}

// array returns base[n], or base[] for n == 0.
func (b *stageBuilder) array(base ir.TypeHandle, n uint32) ir.TypeHandle {
	size := ir.ArraySize{}
	if n > 0 {
		size.Constant = u32p(n)
	}
	return b.typ("", ir.ArrayType{Base: base, Size: size})
}

func (b *stageBuilder) structType(name string, members ...ir.StructMember) ir.TypeHandle {
	return b.typ(name, ir.StructType{Members: members})
}

func (b *stageBuilder) block(name string, members ...ir.StructMember) ir.TypeHandle {
	return b.typ(name, ir.InterfaceType{Members: members})
}

func (b *stageBuilder) global(gv ir.GlobalVariable) *stageBuilder {
	b.shader.GlobalVariables = append(b.shader.GlobalVariables, gv)
	return b
}

func (b *stageBuilder) uniform(name string, h ir.TypeHandle, q ir.Qualifiers) *stageBuilder {
	return b.global(ir.GlobalVariable{Name: name, Space: ir.SpaceUniform, Type: h, Qualifiers: q})
}

func (b *stageBuilder) build() *ir.Shader {
	s := b.shader
	s.Types = b.reg.GetTypes()
	return &s
}

func member(name string, h ir.TypeHandle) ir.StructMember {
	return ir.StructMember{Name: name, Type: h}
}

func link(t *testing.T, opts Options, stages ...*ir.Shader) *Program {
	t.Helper()
	return Link(stages, opts)
}

func findUniform(p *Program, name string) *Uniform {
	for i := range p.Uniforms {
		if p.Uniforms[i].Name == name {
			return &p.Uniforms[i]
		}
	}
	return nil
}

func kinds(p *Program) []ErrorKind {
	var out []ErrorKind
	for _, e := range p.Errors() {
		out = append(out, e.Kind)
	}
	return out
}
