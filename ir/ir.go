// Package ir defines the per-stage input representation consumed by the
// glslink program linker.
//
// A Shader is the already parsed and type-checked form of one shader stage:
// its type arena, its global variable declarations with their layout
// qualifiers, optional function bodies used for static-use analysis,
// subroutine functions, and transform feedback outputs.
package ir

// Shader represents one compiled shader stage in IR form.
type Shader struct {
	// Stage is the pipeline stage this shader belongs to.
	Stage ShaderStage

	// Version is the #version the shader was compiled against.
	Version Version

	// Types holds all type definitions
	Types []Type

	// GlobalVariables holds module-scope variables
	GlobalVariables []GlobalVariable

	// Functions holds all function definitions
	Functions []Function

	// EntryPoint is the stage's main function. Nil when no bodies are available.
	EntryPoint *FunctionHandle

	// SubroutineFunctions lists functions declared with subroutine(...).
	SubroutineFunctions []SubroutineFunction

	// XfbOutputs lists captured transform feedback varyings.
	XfbOutputs []XfbOutput
}

// ShaderStage represents a shader stage.
type ShaderStage uint8

const (
	StageVertex ShaderStage = iota
	StageTessControl
	StageTessEval
	StageGeometry
	StageFragment
	StageCompute

	// StageCount is the number of pipeline stages.
	StageCount
)

// String returns the stage name used in link diagnostics.
func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageTessControl:
		return "tessellation control"
	case StageTessEval:
		return "tessellation evaluation"
	case StageGeometry:
		return "geometry"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// ParseShaderStage accepts the short stage names used in manifests and
// limits files ("vertex", "tess_control", "fragment") and the file
// extensions glslang uses ("vert", "tesc", "frag").
func ParseShaderStage(s string) (ShaderStage, bool) {
	switch s {
	case "vertex", "vert":
		return StageVertex, true
	case "tess_control", "tesc":
		return StageTessControl, true
	case "tess_eval", "tese":
		return StageTessEval, true
	case "geometry", "geom":
		return StageGeometry, true
	case "fragment", "frag":
		return StageFragment, true
	case "compute", "comp":
		return StageCompute, true
	}
	return StageCount, false
}

// Bit returns the stage's bit in a stage mask.
func (s ShaderStage) Bit() StageMask {
	return StageMask(1) << s
}

// StageMask is a set of shader stages, one bit per ShaderStage.
type StageMask uint8

// Has reports whether the mask contains the stage.
func (m StageMask) Has(s ShaderStage) bool {
	return m&s.Bit() != 0
}

// Handle types for referencing IR objects
type (
	TypeHandle           uint32
	FunctionHandle       uint32
	GlobalVariableHandle uint32
	ExpressionHandle     uint32
)

// Type represents a type in the IR.
type Type struct {
	Name  string
	Inner TypeInner
}

// TypeInner represents the inner type kind.
type TypeInner interface {
	typeInner()
}

// ScalarType represents scalar types.
type ScalarType struct {
	Kind  ScalarKind
	Width uint8 // in bytes
}

func (ScalarType) typeInner() {}

// ScalarKind represents scalar type kinds.
type ScalarKind uint8

const (
	ScalarSint  ScalarKind = iota // Signed integer
	ScalarUint                    // Unsigned integer
	ScalarFloat                   // Floating point
	ScalarBool                    // Boolean
)

// Is64Bit reports whether the scalar is a double or 64-bit integer.
func (s ScalarType) Is64Bit() bool {
	return s.Width == 8
}

// VectorType represents vector types.
type VectorType struct {
	Size   VectorSize
	Scalar ScalarType
}

func (VectorType) typeInner() {}

// VectorSize represents vector sizes.
type VectorSize uint8

const (
	Vec2 VectorSize = 2
	Vec3 VectorSize = 3
	Vec4 VectorSize = 4
)

// MatrixType represents matrix types. Columns x Rows follows GLSL matCxR.
type MatrixType struct {
	Columns VectorSize
	Rows    VectorSize
	Scalar  ScalarType
}

func (MatrixType) typeInner() {}

// ArrayType represents array types.
type ArrayType struct {
	Base TypeHandle
	Size ArraySize
	// Stride is the explicit array stride in bytes (SPIR-V ArrayStride).
	// Zero means the layout rules decide.
	Stride uint32
}

func (ArrayType) typeInner() {}

// ArraySize represents array size.
type ArraySize struct {
	Constant *uint32 // nil for unsized arrays
}

// Len returns the constant length, or 0 for unsized arrays.
func (s ArraySize) Len() uint32 {
	if s.Constant == nil {
		return 0
	}
	return *s.Constant
}

// StructType represents struct types.
type StructType struct {
	Members []StructMember
}

func (StructType) typeInner() {}

// InterfaceType is the member list of a uniform or buffer block.
// The owning Type's Name is the block name.
type InterfaceType struct {
	Members []StructMember
}

func (InterfaceType) typeInner() {}

// StructMember represents a struct or block member.
type StructMember struct {
	Name string
	Type TypeHandle
	// Offset is an explicit layout(offset=N) or SPIR-V Offset decoration.
	Offset *uint32
	// Align is an explicit layout(align=N) qualifier.
	Align *uint32
	// MatrixStride is a SPIR-V MatrixStride decoration.
	MatrixStride *uint32
	Layout       MatrixLayout
}

// MatrixLayout selects row- or column-major storage of matrices.
type MatrixLayout uint8

const (
	MatrixInherit MatrixLayout = iota // inherit from the enclosing block or default
	MatrixColumnMajor
	MatrixRowMajor
)

// SamplerType represents combined image/sampler types (sampler2D, isamplerCube, ...).
type SamplerType struct {
	Dim     ImageDimension
	Arrayed bool
	Shadow  bool
	Kind    ScalarKind
}

func (SamplerType) typeInner() {}

// ImageType represents storage image types (image2D, uimage3D, ...).
type ImageType struct {
	Dim          ImageDimension
	Arrayed      bool
	Multisampled bool
	Kind         ScalarKind
}

func (ImageType) typeInner() {}

// ImageDimension represents image dimensions.
type ImageDimension uint8

const (
	Dim1D ImageDimension = iota
	Dim2D
	Dim3D
	DimCube
	DimRect
	DimBuffer
)

// AtomicCounterType represents atomic_uint.
type AtomicCounterType struct{}

func (AtomicCounterType) typeInner() {}

// SubroutineType represents a subroutine uniform type.
type SubroutineType struct {
	// Name is the subroutine type name the uniform is declared with.
	Name string
}

func (SubroutineType) typeInner() {}

// AddressSpace represents the storage class of a global.
type AddressSpace uint8

const (
	// SpaceUniform is the default uniform block, including opaque uniforms.
	SpaceUniform AddressSpace = iota
	// SpaceUniformBlock holds variables backed by a uniform buffer object.
	SpaceUniformBlock
	// SpaceStorageBlock holds variables backed by a shader storage buffer object.
	SpaceStorageBlock
	SpaceInput
	SpaceOutput
	SpacePrivate
)

// Packing is an interface block layout qualifier.
type Packing uint8

const (
	PackingDefault Packing = iota // no qualifier; resolved by the linker
	PackingShared
	PackingStd140
	PackingStd430
	PackingPacked
)

// String returns the GLSL qualifier name.
func (p Packing) String() string {
	switch p {
	case PackingShared:
		return "shared"
	case PackingStd140:
		return "std140"
	case PackingStd430:
		return "std430"
	case PackingPacked:
		return "packed"
	default:
		return "default"
	}
}

// Qualifiers holds the layout qualifiers of a global variable.
type Qualifiers struct {
	Location *uint32
	Binding  *uint32
	// Offset is the atomic counter offset qualifier.
	Offset   *uint32
	Packing  Packing
	Layout   MatrixLayout
	Bindless bool
}

// GlobalVariable represents a global variable.
//
// For blocks, Type is an InterfaceType (or an array of one) and Name is the
// instance name; an empty Name declares a block whose members are visible
// directly in the enclosing scope.
type GlobalVariable struct {
	Name       string
	Space      AddressSpace
	Type       TypeHandle
	Qualifiers Qualifiers
	// Usage is static-use information. Nil means the variable is treated as
	// fully used.
	Usage *Usage
	// Builtin marks gl_* variables.
	Builtin bool
	// Hidden marks compiler-generated uniforms. They get storage and a
	// location but are not reported through reflection.
	Hidden bool
}

// Usage describes which parts of a global are statically referenced.
type Usage struct {
	Referenced bool
	// Dims describes access to the leading array dimensions, outermost first.
	Dims []DimUsage
	// MaxIndex is the largest constant index used on the outermost
	// dimension, or -1.
	MaxIndex int
}

// DimUsage records the indices used on one array dimension.
type DimUsage struct {
	Indices []uint32
	// Dynamic is set when the dimension is indexed with a non-constant.
	Dynamic bool
}

// SubroutineFunction is a function declared with a subroutine(...) qualifier.
type SubroutineFunction struct {
	Name string
	// Types lists the subroutine types the function is compatible with.
	Types []string
	// Index is an explicit layout(index=N).
	Index *uint32
}

// XfbOutput is a captured transform feedback varying.
type XfbOutput struct {
	Name   string
	Type   TypeHandle
	Buffer uint32
	Offset uint32
}

// Function represents a function definition.
type Function struct {
	Name        string
	Expressions []Expression
	Body        []Statement
}

// Expression types are defined in expression.go
// Statement types are defined in statement.go
