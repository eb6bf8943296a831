package ir

import (
	"errors"
	"strings"
	"testing"
)

var (
	floatT = Type{Inner: ScalarType{Kind: ScalarFloat, Width: 4}}
	vec4T  = Type{Inner: VectorType{Size: Vec4, Scalar: ScalarType{Kind: ScalarFloat, Width: 4}}}
)

// validShader is a vertex shader with a uniform array, a block, a body that
// indexes the array, a subroutine and a captured output.
func validShader() *Shader {
	entry := FunctionHandle(0)
	return &Shader{
		Stage:   StageVertex,
		Version: Version{Number: 450},
		Types: []Type{
			floatT,
			vec4T,
			{Inner: ArrayType{Base: 1, Size: ArraySize{Constant: u32(4)}}},
			{Name: "Camera", Inner: InterfaceType{Members: []StructMember{
				{Name: "eye", Type: 1, Offset: u32(0)},
				{Name: "near", Type: 0, Align: u32(16)},
			}}},
			{Inner: SubroutineType{Name: "Shade"}},
		},
		GlobalVariables: []GlobalVariable{
			{Name: "colors", Space: SpaceUniform, Type: 2, Usage: &Usage{Referenced: true, Dims: []DimUsage{{Indices: []uint32{1}}}, MaxIndex: 1}},
			{Name: "camera", Space: SpaceUniformBlock, Type: 3, Qualifiers: Qualifiers{Binding: u32(0), Packing: PackingStd140}},
			{Space: SpaceUniformBlock, Type: 3},
			{Name: "shade", Space: SpaceUniform, Type: 4},
			{Name: "outColor", Space: SpaceOutput, Type: 1},
		},
		Functions: []Function{
			{
				Name: "main",
				Expressions: []Expression{
					{Kind: ExprGlobalVariable{Variable: 0}},
					{Kind: ExprAccessIndex{Base: 0, Index: 1}},
					{Kind: ExprLoad{Pointer: 1}},
					{Kind: ExprGlobalVariable{Variable: 4}},
				},
				Body: []Statement{
					{Kind: StmtEmit{Range: Range{Start: 0, End: 3}}},
					{Kind: StmtStore{Pointer: 3, Value: 2}},
					{Kind: StmtCall{Function: 1}},
					{Kind: StmtReturn{}},
				},
			},
			{Name: "helper"},
		},
		EntryPoint: &entry,
		SubroutineFunctions: []SubroutineFunction{
			{Name: "lambert", Types: []string{"Shade"}},
			{Name: "phong", Types: []string{"Shade"}, Index: u32(3)},
		},
		XfbOutputs: []XfbOutput{{Name: "outColor", Type: 1}},
	}
}

func TestValidate_ValidShader(t *testing.T) {
	errs, err := Validate(validShader())
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(errs) > 0 {
		t.Errorf("Valid shader has validation errors:")
		for _, e := range errs {
			t.Errorf("  - %s", e.Error())
		}
	}
}

func TestValidate_NilShader(t *testing.T) {
	_, err := Validate(nil)
	if err == nil {
		t.Error("Expected error for nil shader, got nil")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Shader)
		want   string
	}{
		{
			name:   "unknown stage",
			mutate: func(s *Shader) { s.Stage = ShaderStage(9) },
			want:   "unknown shader stage 9",
		},
		{
			name:   "scalar width",
			mutate: func(s *Shader) { s.Types[0].Inner = ScalarType{Kind: ScalarFloat, Width: 2} },
			want:   "scalar width must be 4 or 8 bytes",
		},
		{
			name: "vector size",
			mutate: func(s *Shader) {
				s.Types[1].Inner = VectorType{Size: VectorSize(5), Scalar: ScalarType{Kind: ScalarFloat, Width: 4}}
			},
			want: "vector size must be 2, 3, or 4",
		},
		{
			name: "integer matrix",
			mutate: func(s *Shader) {
				s.Types = append(s.Types, Type{Inner: MatrixType{Columns: Vec3, Rows: Vec3, Scalar: ScalarType{Kind: ScalarSint, Width: 4}}})
			},
			want: "matrix scalar must be float",
		},
		{
			name:   "nil inner",
			mutate: func(s *Shader) { s.Types = append(s.Types, Type{Name: "broken"}) },
			want:   "has nil inner type",
		},
		{
			name:   "array base",
			mutate: func(s *Shader) { s.Types[2].Inner = ArrayType{Base: 99, Size: ArraySize{Constant: u32(4)}} },
			want:   "array base type 99 does not exist",
		},
		{
			name:   "zero length array",
			mutate: func(s *Shader) { s.Types[2].Inner = ArrayType{Base: 1, Size: ArraySize{Constant: u32(0)}} },
			want:   "array length must be positive",
		},
		{
			name:   "empty block",
			mutate: func(s *Shader) { s.Types[3].Inner = InterfaceType{} },
			want:   "must have at least one member",
		},
		{
			name: "duplicate member",
			mutate: func(s *Shader) {
				s.Types[3].Inner = InterfaceType{Members: []StructMember{{Name: "a", Type: 0}, {Name: "a", Type: 1}}}
			},
			want: `duplicate member name "a"`,
		},
		{
			name: "empty member name",
			mutate: func(s *Shader) {
				s.Types[3].Inner = InterfaceType{Members: []StructMember{{Type: 0}}}
			},
			want: "member 0 has empty name",
		},
		{
			name: "member align",
			mutate: func(s *Shader) {
				s.Types[3].Inner = InterfaceType{Members: []StructMember{{Name: "a", Type: 0, Align: u32(12)}}}
			},
			want: "align must be a power of two, got 12",
		},
		{
			name:   "unnamed subroutine type",
			mutate: func(s *Shader) { s.Types[4].Inner = SubroutineType{} },
			want:   "subroutine type has no name",
		},
		{
			name:   "duplicate global",
			mutate: func(s *Shader) { s.GlobalVariables[3].Name = "colors" },
			want:   `duplicate global variable name "colors"`,
		},
		{
			name:   "global type",
			mutate: func(s *Shader) { s.GlobalVariables[4].Type = 42 },
			want:   "type 42 does not exist",
		},
		{
			name:   "block space without block type",
			mutate: func(s *Shader) { s.GlobalVariables[0].Space = SpaceStorageBlock },
			want:   "block storage requires an interface type",
		},
		{
			name:   "block in default uniform block",
			mutate: func(s *Shader) { s.GlobalVariables[1].Space = SpaceUniform },
			want:   "interface type in the default uniform block",
		},
		{
			name: "usage dimensions",
			mutate: func(s *Shader) {
				s.GlobalVariables[4].Usage = &Usage{Referenced: true, Dims: []DimUsage{{}}, MaxIndex: -1}
			},
			want: "usage describes 1 array dimensions, type has 0",
		},
		{
			name:   "nil expression",
			mutate: func(s *Shader) { s.Functions[0].Expressions[3].Kind = nil },
			want:   "in function main, expression 3: expression has nil kind",
		},
		{
			name:   "operand",
			mutate: func(s *Shader) { s.Functions[0].Expressions[2].Kind = ExprLoad{Pointer: 7} },
			want:   "operand expression 7 does not exist",
		},
		{
			name:   "expression global",
			mutate: func(s *Shader) { s.Functions[0].Expressions[0].Kind = ExprGlobalVariable{Variable: 8} },
			want:   "global variable 8 does not exist",
		},
		{
			name: "emit range",
			mutate: func(s *Shader) {
				s.Functions[0].Body[0].Kind = StmtEmit{Range: Range{Start: 2, End: 1}}
			},
			want: "in function main, statement 0: emit range start 2 exceeds end 1",
		},
		{
			name:   "store operand",
			mutate: func(s *Shader) { s.Functions[0].Body[1].Kind = StmtStore{Pointer: 3, Value: 11} },
			want:   "statement 1: expression 11 does not exist",
		},
		{
			name:   "call target",
			mutate: func(s *Shader) { s.Functions[0].Body[2].Kind = StmtCall{Function: 5} },
			want:   "function 5 does not exist",
		},
		{
			name:   "nil statement",
			mutate: func(s *Shader) { s.Functions[0].Body[3].Kind = nil },
			want:   "statement has nil kind",
		},
		{
			name:   "duplicate function",
			mutate: func(s *Shader) { s.Functions[1].Name = "main" },
			want:   `duplicate function name "main"`,
		},
		{
			name: "entry point",
			mutate: func(s *Shader) {
				entry := FunctionHandle(4)
				s.EntryPoint = &entry
			},
			want: "entry point function 4 does not exist",
		},
		{
			name:   "unnamed subroutine",
			mutate: func(s *Shader) { s.SubroutineFunctions[0].Name = "" },
			want:   "subroutine function 0 has empty name",
		},
		{
			name:   "duplicate subroutine",
			mutate: func(s *Shader) { s.SubroutineFunctions[1].Name = "lambert" },
			want:   `duplicate subroutine function name "lambert"`,
		},
		{
			name:   "subroutine without types",
			mutate: func(s *Shader) { s.SubroutineFunctions[1].Types = nil },
			want:   `subroutine function "phong" implements no subroutine type`,
		},
		{
			name:   "unnamed xfb output",
			mutate: func(s *Shader) { s.XfbOutputs[0].Name = "" },
			want:   "transform feedback output 0 has empty name",
		},
		{
			name:   "xfb type",
			mutate: func(s *Shader) { s.XfbOutputs[0].Type = 31 },
			want:   `transform feedback output "outColor": type 31 does not exist`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validShader()
			tt.mutate(s)
			errs, err := Validate(s)
			if err != nil {
				t.Fatalf("Validate returned error: %v", err)
			}
			var msgs []string
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			if !strings.Contains(strings.Join(msgs, "\n"), tt.want) {
				t.Errorf("Expected an error containing %q, got %q", tt.want, msgs)
			}
		})
	}
}

func TestValidate_TypeTooDeep(t *testing.T) {
	// float followed by MaxTypeDepth+1 nested arrays.
	types := []Type{floatT}
	for i := 0; i <= MaxTypeDepth+1; i++ {
		types = append(types, Type{Inner: ArrayType{Base: TypeHandle(i), Size: ArraySize{Constant: u32(2)}}})
	}
	s := &Shader{Stage: StageFragment, Types: types}

	errs, err := Validate(s)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	found := false
	for _, e := range errs {
		if errors.Is(e, ErrTypeTooDeep) {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected ErrTypeTooDeep among %v", errs)
	}
}
