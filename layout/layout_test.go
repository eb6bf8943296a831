// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package layout

import (
	"testing"

	"github.com/gogpu/glslink/ir"
)

var (
	f32 = ir.ScalarType{Kind: ir.ScalarFloat, Width: 4}
	f64 = ir.ScalarType{Kind: ir.ScalarFloat, Width: 8}
	i32 = ir.ScalarType{Kind: ir.ScalarSint, Width: 4}
	b32 = ir.ScalarType{Kind: ir.ScalarBool, Width: 4}
)

func u32p(v uint32) *uint32 { return &v }

// fixture builds the handful of types the tables refer to by name.
type fixture struct {
	reg   *ir.TypeRegistry
	types map[string]ir.TypeHandle
}

func newFixture() *fixture {
	reg := ir.NewTypeRegistry()
	f := &fixture{reg: reg, types: make(map[string]ir.TypeHandle)}
	add := func(name string, inner ir.TypeInner) ir.TypeHandle {
		h := reg.GetOrCreate(name, inner)
		f.types[name] = h
		return h
	}
	float := add("float", f32)
	add("int", i32)
	add("bool", b32)
	add("double", f64)
	vec2 := add("vec2", ir.VectorType{Size: ir.Vec2, Scalar: f32})
	vec3 := add("vec3", ir.VectorType{Size: ir.Vec3, Scalar: f32})
	vec4 := add("vec4", ir.VectorType{Size: ir.Vec4, Scalar: f32})
	add("dvec2", ir.VectorType{Size: ir.Vec2, Scalar: f64})
	add("dvec3", ir.VectorType{Size: ir.Vec3, Scalar: f64})
	add("dvec4", ir.VectorType{Size: ir.Vec4, Scalar: f64})
	add("mat2", ir.MatrixType{Columns: ir.Vec2, Rows: ir.Vec2, Scalar: f32})
	add("mat3", ir.MatrixType{Columns: ir.Vec3, Rows: ir.Vec3, Scalar: f32})
	mat4 := add("mat4", ir.MatrixType{Columns: ir.Vec4, Rows: ir.Vec4, Scalar: f32})
	add("mat2x3", ir.MatrixType{Columns: ir.Vec2, Rows: ir.Vec3, Scalar: f32})
	add("dmat3", ir.MatrixType{Columns: ir.Vec3, Rows: ir.Vec3, Scalar: f64})
	add("float[4]", ir.ArrayType{Base: float, Size: ir.ArraySize{Constant: u32p(4)}})
	add("float[]", ir.ArrayType{Base: float})
	add("vec2[3]", ir.ArrayType{Base: vec2, Size: ir.ArraySize{Constant: u32p(3)}})
	add("vec3[2]", ir.ArrayType{Base: vec3, Size: ir.ArraySize{Constant: u32p(2)}})
	add("mat4[2]", ir.ArrayType{Base: mat4, Size: ir.ArraySize{Constant: u32p(2)}})
	fa := add("float[2]", ir.ArrayType{Base: float, Size: ir.ArraySize{Constant: u32p(2)}})
	add("float[2][3]", ir.ArrayType{Base: fa, Size: ir.ArraySize{Constant: u32p(3)}})
	add("S1", ir.StructType{Members: []ir.StructMember{{Name: "a", Type: float}}})
	s2 := add("S2", ir.StructType{Members: []ir.StructMember{
		{Name: "a", Type: float},
		{Name: "b", Type: vec3},
	}})
	add("S3", ir.StructType{Members: []ir.StructMember{
		{Name: "a", Type: vec2},
		{Name: "b", Type: float},
	}})
	add("S2[2]", ir.ArrayType{Base: s2, Size: ir.ArraySize{Constant: u32p(2)}})
	add("Nested", ir.StructType{Members: []ir.StructMember{
		{Name: "s", Type: s2},
		{Name: "f", Type: float},
	}})
	_ = vec4
	return f
}

func (f *fixture) calc(rules Rules) *Calculator {
	packing := ir.PackingStd140
	if rules == Std430 {
		packing = ir.PackingStd430
	}
	return New(f.reg, packing, false)
}

func TestComputeLayout(t *testing.T) {
	fx := newFixture()

	tests := []struct {
		typ      string
		rules    Rules
		rowMajor bool
		want     Layout
	}{
		// Scalars
		{"float", Std140, false, Layout{Size: 4, Align: 4}},
		{"int", Std430, false, Layout{Size: 4, Align: 4}},
		{"bool", Std140, false, Layout{Size: 4, Align: 4}},
		{"double", Std140, false, Layout{Size: 8, Align: 8}},

		// Vectors: vec3 aligns as vec4 under both rules
		{"vec2", Std140, false, Layout{Size: 8, Align: 8}},
		{"vec3", Std140, false, Layout{Size: 12, Align: 16}},
		{"vec3", Std430, false, Layout{Size: 12, Align: 16}},
		{"vec4", Std430, false, Layout{Size: 16, Align: 16}},
		{"dvec2", Std140, false, Layout{Size: 16, Align: 16}},
		{"dvec3", Std140, false, Layout{Size: 24, Align: 32}},
		{"dvec4", Std430, false, Layout{Size: 32, Align: 32}},

		// Matrices
		{"mat2", Std140, false, Layout{Size: 32, Align: 16}},
		{"mat2", Std430, false, Layout{Size: 16, Align: 8}},
		{"mat3", Std140, false, Layout{Size: 48, Align: 16}},
		{"mat3", Std430, false, Layout{Size: 48, Align: 16}},
		{"mat4", Std140, false, Layout{Size: 64, Align: 16}},
		{"mat2x3", Std430, false, Layout{Size: 32, Align: 16}},
		{"mat2x3", Std430, true, Layout{Size: 24, Align: 8}},
		{"mat2x3", Std140, true, Layout{Size: 48, Align: 16}},
		{"dmat3", Std140, false, Layout{Size: 96, Align: 32}},

		// Arrays
		{"float[4]", Std140, false, Layout{Size: 64, Align: 16}},
		{"float[4]", Std430, false, Layout{Size: 16, Align: 4}},
		{"vec2[3]", Std140, false, Layout{Size: 48, Align: 16}},
		{"vec2[3]", Std430, false, Layout{Size: 24, Align: 8}},
		{"vec3[2]", Std430, false, Layout{Size: 32, Align: 16}},
		{"mat4[2]", Std140, false, Layout{Size: 128, Align: 16}},
		{"float[2][3]", Std140, false, Layout{Size: 96, Align: 16}},
		{"float[2][3]", Std430, false, Layout{Size: 24, Align: 4}},
		{"float[]", Std430, false, Layout{Size: 0, Align: 4}},

		// Structs
		{"S1", Std140, false, Layout{Size: 16, Align: 16}},
		{"S1", Std430, false, Layout{Size: 4, Align: 4}},
		{"S2", Std140, false, Layout{Size: 32, Align: 16}},
		{"S2", Std430, false, Layout{Size: 32, Align: 16}},
		{"S3", Std140, false, Layout{Size: 16, Align: 16}},
		{"S3", Std430, false, Layout{Size: 16, Align: 8}},
		{"S2[2]", Std140, false, Layout{Size: 64, Align: 16}},
		{"Nested", Std140, false, Layout{Size: 48, Align: 16}},
		{"Nested", Std430, false, Layout{Size: 48, Align: 16}},
	}

	for _, tt := range tests {
		name := tt.typ
		if tt.rules == Std430 {
			name += "/std430"
		} else {
			name += "/std140"
		}
		if tt.rowMajor {
			name += "/row_major"
		}
		t.Run(name, func(t *testing.T) {
			got := fx.calc(tt.rules).ComputeLayout(fx.types[tt.typ], tt.rowMajor)
			if got != tt.want {
				t.Errorf("ComputeLayout(%s) = %+v, want %+v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestStrides(t *testing.T) {
	fx := newFixture()

	tests := []struct {
		typ          string
		rules        Rules
		rowMajor     bool
		arrayStride  uint32
		matrixStride uint32
	}{
		{"float[4]", Std140, false, 16, 0},
		{"float[4]", Std430, false, 4, 0},
		{"vec3[2]", Std430, false, 16, 0},
		{"mat4[2]", Std140, false, 64, 16},
		{"mat2", Std430, false, 0, 8},
		{"mat2", Std140, false, 0, 16},
		{"mat2x3", Std430, true, 0, 8},
		{"S2[2]", Std430, false, 32, 0},
		{"vec4", Std140, false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			c := fx.calc(tt.rules)
			h := fx.types[tt.typ]
			if got := c.ArrayStride(h, tt.rowMajor); got != tt.arrayStride {
				t.Errorf("ArrayStride(%s) = %d, want %d", tt.typ, got, tt.arrayStride)
			}
			if got := c.MatrixStride(h, tt.rowMajor); got != tt.matrixStride {
				t.Errorf("MatrixStride(%s) = %d, want %d", tt.typ, got, tt.matrixStride)
			}
		})
	}
}

// blockOf registers an interface type with the given members.
func (f *fixture) blockOf(name string, members ...ir.StructMember) ir.TypeHandle {
	return f.reg.GetOrCreate(name, ir.InterfaceType{Members: members})
}

func (f *fixture) member(name, typ string) ir.StructMember {
	return ir.StructMember{Name: name, Type: f.types[typ]}
}

func TestMemberOffsets(t *testing.T) {
	fx := newFixture()

	tests := []struct {
		name      string
		members   []ir.StructMember
		rules     Rules
		offsets   []uint32
		blockSize uint32
	}{
		{
			name:      "float_vec3_std140",
			members:   []ir.StructMember{fx.member("a", "float"), fx.member("b", "vec3")},
			rules:     Std140,
			offsets:   []uint32{0, 16},
			blockSize: 32,
		},
		{
			name:      "float_vec3_float_std430",
			members:   []ir.StructMember{fx.member("a", "float"), fx.member("b", "vec3"), fx.member("c", "float")},
			rules:     Std430,
			offsets:   []uint32{0, 16, 28},
			blockSize: 32,
		},
		{
			name:      "float_vec3_float_std140",
			members:   []ir.StructMember{fx.member("a", "float"), fx.member("b", "vec3"), fx.member("c", "float")},
			rules:     Std140,
			offsets:   []uint32{0, 16, 28},
			blockSize: 32,
		},
		{
			name:      "array_rounding_std140",
			members:   []ir.StructMember{fx.member("a", "float"), fx.member("b", "float[2]"), fx.member("c", "vec2")},
			rules:     Std140,
			offsets:   []uint32{0, 16, 48},
			blockSize: 64,
		},
		{
			name:      "array_natural_std430",
			members:   []ir.StructMember{fx.member("a", "float"), fx.member("b", "float[2]"), fx.member("c", "vec2")},
			rules:     Std430,
			offsets:   []uint32{0, 4, 16},
			blockSize: 32,
		},
		{
			name:      "struct_padding_std140",
			members:   []ir.StructMember{fx.member("s", "S1"), fx.member("f", "float")},
			rules:     Std140,
			offsets:   []uint32{0, 16},
			blockSize: 32,
		},
		{
			name:      "struct_no_padding_std430",
			members:   []ir.StructMember{fx.member("s", "S1"), fx.member("f", "float")},
			rules:     Std430,
			offsets:   []uint32{0, 4},
			blockSize: 16,
		},
		{
			name: "explicit_offset",
			members: []ir.StructMember{
				fx.member("a", "float"),
				{Name: "b", Type: fx.types["vec4"], Offset: u32p(32)},
			},
			rules:     Std140,
			offsets:   []uint32{0, 32},
			blockSize: 48,
		},
		{
			name: "explicit_align",
			members: []ir.StructMember{
				fx.member("a", "float"),
				{Name: "b", Type: fx.types["float"], Align: u32p(16)},
			},
			rules:     Std430,
			offsets:   []uint32{0, 16},
			blockSize: 32,
		},
		{
			name:      "unsized_trailing_std430",
			members:   []ir.StructMember{fx.member("header", "vec4"), fx.member("data", "float[]")},
			rules:     Std430,
			offsets:   []uint32{0, 16},
			blockSize: 32,
		},
		{
			name:      "unsized_trailing_std140",
			members:   []ir.StructMember{fx.member("header", "vec4"), fx.member("data", "float[]")},
			rules:     Std140,
			offsets:   []uint32{0, 16},
			blockSize: 32,
		},
		{
			name:      "double_after_float",
			members:   []ir.StructMember{fx.member("a", "float"), fx.member("d", "double"), fx.member("v", "dvec3")},
			rules:     Std430,
			offsets:   []uint32{0, 8, 32},
			blockSize: 64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := fx.blockOf("B_"+tt.name, tt.members...)
			c := fx.calc(tt.rules)
			members := c.Members(block, false)
			if len(members) != len(tt.offsets) {
				t.Fatalf("got %d members, want %d", len(members), len(tt.offsets))
			}
			for i, m := range members {
				if m.Offset != tt.offsets[i] {
					t.Errorf("member %d offset = %d, want %d", i, m.Offset, tt.offsets[i])
				}
			}
			if got := c.BlockSize(block, false); got != tt.blockSize {
				t.Errorf("BlockSize = %d, want %d", got, tt.blockSize)
			}
		})
	}
}

// TestOffsetLaw checks offset(i+1) == align(offset(i)+size(i), align(i+1))
// for every table entry under both rule sets.
func TestOffsetLaw(t *testing.T) {
	fx := newFixture()
	names := []string{"float", "vec3", "mat2", "float[4]", "S2", "vec2", "dvec3", "mat2x3", "S3", "int"}
	members := make([]ir.StructMember, len(names))
	for i, n := range names {
		members[i] = ir.StructMember{Name: "m" + n, Type: fx.types[n]}
	}
	block := fx.blockOf("Law", members...)

	for _, rules := range []Rules{Std140, Std430} {
		c := fx.calc(rules)
		got := c.Members(block, false)
		for i := 1; i < len(got); i++ {
			want := AlignTo(got[i-1].Offset+got[i-1].Size, got[i].Align)
			if got[i].Offset != want {
				t.Errorf("rules %d: member %s offset = %d, want %d", rules, names[i], got[i].Offset, want)
			}
		}
		last := got[len(got)-1]
		if size := c.BlockSize(block, false); size != AlignTo(last.Offset+last.Size, 16) {
			t.Errorf("rules %d: block size = %d, want %d", rules, size, AlignTo(last.Offset+last.Size, 16))
		}
	}
}

func TestRowMajorInheritance(t *testing.T) {
	fx := newFixture()
	block := fx.blockOf("RM",
		fx.member("inherited", "mat2x3"),
		ir.StructMember{Name: "column", Type: fx.types["mat2x3"], Layout: ir.MatrixColumnMajor},
	)
	c := fx.calc(Std430)
	members := c.Members(block, true)

	if !members[0].RowMajor || members[1].RowMajor {
		t.Fatalf("row-major flags = %v/%v, want true/false", members[0].RowMajor, members[1].RowMajor)
	}
	if members[0].Size != 24 || members[0].MatrixStride != 8 {
		t.Errorf("row-major mat2x3: size %d stride %d, want 24/8", members[0].Size, members[0].MatrixStride)
	}
	if members[1].Offset != 32 || members[1].MatrixStride != 16 {
		t.Errorf("column-major mat2x3: offset %d stride %d, want 32/16", members[1].Offset, members[1].MatrixStride)
	}
}

func TestExplicitLayout(t *testing.T) {
	reg := ir.NewTypeRegistry()
	float := reg.GetOrCreate("", f32)
	mat4 := reg.GetOrCreate("", ir.MatrixType{Columns: ir.Vec4, Rows: ir.Vec4, Scalar: f32})
	arr := reg.GetOrCreate("", ir.ArrayType{Base: float, Size: ir.ArraySize{Constant: u32p(3)}, Stride: 32})
	block := reg.GetOrCreate("Explicit", ir.InterfaceType{Members: []ir.StructMember{
		{Name: "m", Type: mat4, Offset: u32p(0), MatrixStride: u32p(32)},
		{Name: "a", Type: arr, Offset: u32p(200)},
		{Name: "f", Type: float, Offset: u32p(300)},
	}})

	c := New(reg, ir.PackingStd430, true)
	members := c.Members(block, false)

	wantOffsets := []uint32{0, 200, 300}
	for i, m := range members {
		if m.Offset != wantOffsets[i] {
			t.Errorf("member %d offset = %d, want %d", i, m.Offset, wantOffsets[i])
		}
	}
	if members[0].MatrixStride != 32 {
		t.Errorf("matrix stride = %d, want 32", members[0].MatrixStride)
	}
	if members[1].ArrayStride != 32 || members[1].Size != 96 {
		t.Errorf("array stride/size = %d/%d, want 32/96", members[1].ArrayStride, members[1].Size)
	}
	// 300 + 4 rounded to 16
	if got := c.BlockSize(block, false); got != 304 {
		t.Errorf("BlockSize = %d, want 304", got)
	}
}

func TestDeterminism(t *testing.T) {
	first := newFixture()
	second := newFixture()
	for name, h := range first.types {
		for _, rules := range []Rules{Std140, Std430} {
			a := first.calc(rules).ComputeLayout(h, false)
			b := second.calc(rules).ComputeLayout(second.types[name], false)
			if a != b {
				t.Errorf("%s: layouts differ between runs: %+v vs %+v", name, a, b)
			}
		}
	}
}

func TestRulesFor(t *testing.T) {
	tests := []struct {
		packing ir.Packing
		want    Rules
	}{
		{ir.PackingDefault, Std140},
		{ir.PackingShared, Std140},
		{ir.PackingPacked, Std140},
		{ir.PackingStd140, Std140},
		{ir.PackingStd430, Std430},
	}
	for _, tt := range tests {
		if got := RulesFor(tt.packing); got != tt.want {
			t.Errorf("RulesFor(%s) = %d, want %d", tt.packing, got, tt.want)
		}
	}
}
