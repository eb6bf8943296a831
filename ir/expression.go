package ir

// Expression represents an expression in the IR.
// Expressions follow Single Static Assignment (SSA) form similar to SPIR-V.
//
// Only the expression kinds that matter for static-use analysis are modeled:
// variable references, access chains, loads and image operations. Arithmetic
// is kept so that dynamic indices have somewhere to come from.
type Expression struct {
	Kind ExpressionKind
}

// ExpressionKind represents the different kinds of expressions.
type ExpressionKind interface {
	expressionKind()
}

// Literal represents a literal constant value.
type Literal struct {
	Value LiteralValue
}

func (Literal) expressionKind() {}

// LiteralValue represents the value of a literal.
type LiteralValue interface {
	literalValue()
}

// LiteralF32 represents a 32-bit float literal.
type LiteralF32 float32

func (LiteralF32) literalValue() {}

// LiteralU32 represents a 32-bit unsigned integer literal.
type LiteralU32 uint32

func (LiteralU32) literalValue() {}

// LiteralI32 represents a 32-bit signed integer literal.
type LiteralI32 int32

func (LiteralI32) literalValue() {}

// LiteralBool represents a boolean literal.
type LiteralBool bool

func (LiteralBool) literalValue() {}

// ExprCompose constructs a composite value (vector, matrix, array, or struct).
type ExprCompose struct {
	Type       TypeHandle
	Components []ExpressionHandle
}

func (ExprCompose) expressionKind() {}

// ExprAccess performs array/vector/matrix access with a computed index.
type ExprAccess struct {
	Base  ExpressionHandle
	Index ExpressionHandle
}

func (ExprAccess) expressionKind() {}

// ExprAccessIndex performs access with a compile-time constant index.
// Can access arrays, vectors, matrices, and struct fields.
type ExprAccessIndex struct {
	Base  ExpressionHandle
	Index uint32
}

func (ExprAccessIndex) expressionKind() {}

// ExprFunctionArgument references a function parameter by its index.
type ExprFunctionArgument struct {
	Index uint32
}

func (ExprFunctionArgument) expressionKind() {}

// ExprGlobalVariable references a global variable.
type ExprGlobalVariable struct {
	Variable GlobalVariableHandle
}

func (ExprGlobalVariable) expressionKind() {}

// ExprLocalVariable references a local variable.
type ExprLocalVariable struct {
	Variable uint32
}

func (ExprLocalVariable) expressionKind() {}

// ExprLoad loads a value indirectly through a pointer.
type ExprLoad struct {
	Pointer ExpressionHandle
}

func (ExprLoad) expressionKind() {}

// ExprImageSample samples a combined image/sampler.
type ExprImageSample struct {
	Image      ExpressionHandle
	Coordinate ExpressionHandle
}

func (ExprImageSample) expressionKind() {}

// ExprImageLoad loads a texel from a storage image.
type ExprImageLoad struct {
	Image      ExpressionHandle
	Coordinate ExpressionHandle
}

func (ExprImageLoad) expressionKind() {}

// ExprUnary applies a unary operator to an expression.
type ExprUnary struct {
	Op   UnaryOperator
	Expr ExpressionHandle
}

func (ExprUnary) expressionKind() {}

// UnaryOperator represents unary operations.
type UnaryOperator uint8

const (
	UnaryNegate     UnaryOperator = iota // Arithmetic negation
	UnaryLogicalNot                      // Logical not (!)
	UnaryBitwiseNot                      // Bitwise not (~)
)

// ExprBinary applies a binary operator to two expressions.
type ExprBinary struct {
	Op    BinaryOperator
	Left  ExpressionHandle
	Right ExpressionHandle
}

func (ExprBinary) expressionKind() {}

// BinaryOperator represents binary operations.
type BinaryOperator uint8

const (
	BinaryAdd BinaryOperator = iota
	BinarySubtract
	BinaryMultiply
	BinaryDivide
	BinaryModulo
)

// ExprCallResult is the result of a function call.
type ExprCallResult struct {
	Function FunctionHandle
}

func (ExprCallResult) expressionKind() {}

// ExprArrayLength queries the length of a runtime-sized array (.length()).
type ExprArrayLength struct {
	Array ExpressionHandle
}

func (ExprArrayLength) expressionKind() {}

// ExprAtomicResult is the result of an atomic operation.
type ExprAtomicResult struct{}

func (ExprAtomicResult) expressionKind() {}
