package ir

import (
	"fmt"
)

// ValidationError represents a validation error.
type ValidationError struct {
	Message string
	// Optional context
	Function   string
	Expression *ExpressionHandle
	Statement  int
	// Err is the underlying sentinel, such as ErrTypeTooDeep.
	Err error
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Function != "" {
		if e.Expression != nil {
			return fmt.Sprintf("in function %s, expression %d: %s", e.Function, *e.Expression, e.Message)
		}
		if e.Statement >= 0 {
			return fmt.Sprintf("in function %s, statement %d: %s", e.Function, e.Statement, e.Message)
		}
		return fmt.Sprintf("in function %s: %s", e.Function, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying sentinel error, if any.
func (e ValidationError) Unwrap() error {
	return e.Err
}

// Validator validates shader inputs before linking.
type Validator struct {
	shader  *Shader
	errors  []ValidationError
	context validationContext
}

// validationContext holds current validation context.
type validationContext struct {
	function     *Function
	functionName string
}

// Validate checks the shader for structural correctness.
// Returns validation errors if any, or nil if the shader is valid.
func Validate(shader *Shader) ([]ValidationError, error) {
	if shader == nil {
		return nil, fmt.Errorf("shader is nil")
	}

	v := &Validator{
		shader: shader,
		errors: make([]ValidationError, 0),
	}

	v.ValidateShader()

	if len(v.errors) > 0 {
		return v.errors, nil
	}
	return nil, nil
}

// ValidateShader validates the complete shader.
func (v *Validator) ValidateShader() {
	if v.shader.Stage >= StageCount {
		v.addError(fmt.Sprintf("unknown shader stage %d", v.shader.Stage))
	}

	v.validateTypes()
	v.validateGlobalVariables()
	v.validateFunctions()
	v.validateSubroutines()
	v.validateXfbOutputs()
}

// validateTypes checks all type definitions.
func (v *Validator) validateTypes() {
	for i := range v.shader.Types {
		v.validateType(TypeHandle(i), &v.shader.Types[i])
	}
}

// validateType validates a single type.
//
//nolint:gocognit,gocyclo,cyclop // Type validation requires checking many type variants
func (v *Validator) validateType(handle TypeHandle, typ *Type) {
	if typ.Inner == nil {
		v.addError(fmt.Sprintf("type %d has nil inner type", handle))
		return
	}

	switch inner := typ.Inner.(type) {
	case ScalarType:
		if inner.Width != 4 && inner.Width != 8 {
			v.addError(fmt.Sprintf("type %d: scalar width must be 4 or 8 bytes, got %d", handle, inner.Width))
		}

	case VectorType:
		if inner.Size != Vec2 && inner.Size != Vec3 && inner.Size != Vec4 {
			v.addError(fmt.Sprintf("type %d: vector size must be 2, 3, or 4, got %d", handle, inner.Size))
		}
		if inner.Scalar.Width != 4 && inner.Scalar.Width != 8 {
			v.addError(fmt.Sprintf("type %d: vector scalar width must be 4 or 8 bytes, got %d", handle, inner.Scalar.Width))
		}

	case MatrixType:
		if inner.Columns != Vec2 && inner.Columns != Vec3 && inner.Columns != Vec4 {
			v.addError(fmt.Sprintf("type %d: matrix columns must be 2, 3, or 4, got %d", handle, inner.Columns))
		}
		if inner.Rows != Vec2 && inner.Rows != Vec3 && inner.Rows != Vec4 {
			v.addError(fmt.Sprintf("type %d: matrix rows must be 2, 3, or 4, got %d", handle, inner.Rows))
		}
		if inner.Scalar.Kind != ScalarFloat {
			v.addError(fmt.Sprintf("type %d: matrix scalar must be float, got %v", handle, inner.Scalar.Kind))
		}

	case ArrayType:
		if !v.isValidTypeHandle(inner.Base) {
			v.addError(fmt.Sprintf("type %d: array base type %d does not exist", handle, inner.Base))
		}
		if inner.Base == handle {
			v.addError(fmt.Sprintf("type %d: array has circular reference to itself", handle))
		}
		if inner.Size.Constant != nil && *inner.Size.Constant == 0 {
			v.addError(fmt.Sprintf("type %d: array length must be positive", handle))
		}

	case StructType:
		v.validateMembers(handle, typ.Name, inner.Members)

	case InterfaceType:
		v.validateMembers(handle, typ.Name, inner.Members)

	case SamplerType, ImageType, AtomicCounterType:
		// Opaque types have enum-constrained fields

	case SubroutineType:
		if inner.Name == "" {
			v.addError(fmt.Sprintf("type %d: subroutine type has no name", handle))
		}
	}

	if _, err := v.depth(handle, 0); err != nil {
		v.errors = append(v.errors, ValidationError{
			Message:   fmt.Sprintf("type %d (%s): %v", handle, typ.Name, err),
			Statement: -1,
			Err:       err,
		})
	}
}

func (v *Validator) validateMembers(handle TypeHandle, name string, members []StructMember) {
	if len(members) == 0 {
		v.addError(fmt.Sprintf("type %d (%s): must have at least one member", handle, name))
	}
	memberNames := make(map[string]bool)
	for j, member := range members {
		if member.Name == "" {
			v.addError(fmt.Sprintf("type %d: member %d has empty name", handle, j))
		}
		if memberNames[member.Name] {
			v.addError(fmt.Sprintf("type %d: duplicate member name %q", handle, member.Name))
		}
		memberNames[member.Name] = true

		if !v.isValidTypeHandle(member.Type) {
			v.addError(fmt.Sprintf("type %d: member %q type %d does not exist", handle, member.Name, member.Type))
		}
		if member.Type == handle {
			v.addError(fmt.Sprintf("type %d: member %q has circular reference", handle, member.Name))
		}
		if member.Align != nil && (*member.Align == 0 || *member.Align&(*member.Align-1) != 0) {
			v.addError(fmt.Sprintf("type %d: member %q align must be a power of two, got %d", handle, member.Name, *member.Align))
		}
	}
}

// depth measures struct/array nesting, failing past MaxTypeDepth.
func (v *Validator) depth(handle TypeHandle, level int) (int, error) {
	if level > MaxTypeDepth {
		return level, ErrTypeTooDeep
	}
	if !v.isValidTypeHandle(handle) {
		return level, nil
	}
	deepest := level
	var children []TypeHandle
	switch t := v.shader.Types[handle].Inner.(type) {
	case ArrayType:
		children = append(children, t.Base)
	case StructType:
		for _, m := range t.Members {
			children = append(children, m.Type)
		}
	case InterfaceType:
		for _, m := range t.Members {
			children = append(children, m.Type)
		}
	}
	for _, c := range children {
		d, err := v.depth(c, level+1)
		if err != nil {
			return d, err
		}
		if d > deepest {
			deepest = d
		}
	}
	return deepest, nil
}

// validateGlobalVariables checks all global variables.
func (v *Validator) validateGlobalVariables() {
	names := make(map[string]bool)

	for i, gv := range v.shader.GlobalVariables {
		if gv.Name != "" {
			if names[gv.Name] {
				v.addError(fmt.Sprintf("duplicate global variable name %q", gv.Name))
			}
			names[gv.Name] = true
		}

		if !v.isValidTypeHandle(gv.Type) {
			v.addError(fmt.Sprintf("global variable %d (%s): type %d does not exist", i, gv.Name, gv.Type))
			continue
		}

		isBlock := IsBlock(Types(v.shader.Types), gv.Type)
		switch gv.Space {
		case SpaceUniformBlock, SpaceStorageBlock:
			if !isBlock {
				v.addError(fmt.Sprintf("global variable %d (%s): block storage requires an interface type", i, gv.Name))
			}
		case SpaceUniform:
			if isBlock {
				v.addError(fmt.Sprintf("global variable %d (%s): interface type in the default uniform block", i, gv.Name))
			}
		}

		if gv.Usage != nil {
			_, dims := StripArrays(Types(v.shader.Types), gv.Type)
			if len(gv.Usage.Dims) > len(dims) {
				v.addError(fmt.Sprintf("global variable %q: usage describes %d array dimensions, type has %d",
					gv.Name, len(gv.Usage.Dims), len(dims)))
			}
		}
	}
}

// validateFunctions checks all functions.
func (v *Validator) validateFunctions() {
	names := make(map[string]bool)

	for i := range v.shader.Functions {
		fn := &v.shader.Functions[i]
		if fn.Name != "" {
			if names[fn.Name] {
				v.addError(fmt.Sprintf("duplicate function name %q", fn.Name))
			}
			names[fn.Name] = true
		}

		v.context = validationContext{
			function:     fn,
			functionName: fn.Name,
		}

		for h, expr := range fn.Expressions {
			v.validateExpression(ExpressionHandle(h), &expr)
		}
		v.validateBlock(fn.Body)
	}
	v.context = validationContext{}

	if v.shader.EntryPoint != nil && !v.isValidFunctionHandle(*v.shader.EntryPoint) {
		v.addError(fmt.Sprintf("entry point function %d does not exist", *v.shader.EntryPoint))
	}
}

// validateExpression validates a single expression.
//
//nolint:gocyclo,cyclop // Expression validation requires checking many expression variants
func (v *Validator) validateExpression(handle ExpressionHandle, expr *Expression) {
	if expr.Kind == nil {
		v.addErrorInExpression(handle, "expression has nil kind")
		return
	}

	var operands []ExpressionHandle
	switch kind := expr.Kind.(type) {
	case Literal, ExprFunctionArgument, ExprLocalVariable, ExprAtomicResult:
		// Always valid

	case ExprCompose:
		if !v.isValidTypeHandle(kind.Type) {
			v.addErrorInExpression(handle, fmt.Sprintf("type %d does not exist", kind.Type))
		}
		operands = kind.Components

	case ExprAccess:
		operands = []ExpressionHandle{kind.Base, kind.Index}

	case ExprAccessIndex:
		operands = []ExpressionHandle{kind.Base}

	case ExprGlobalVariable:
		if !v.isValidGlobalVariableHandle(kind.Variable) {
			v.addErrorInExpression(handle, fmt.Sprintf("global variable %d does not exist", kind.Variable))
		}

	case ExprLoad:
		operands = []ExpressionHandle{kind.Pointer}

	case ExprImageSample:
		operands = []ExpressionHandle{kind.Image, kind.Coordinate}

	case ExprImageLoad:
		operands = []ExpressionHandle{kind.Image, kind.Coordinate}

	case ExprUnary:
		operands = []ExpressionHandle{kind.Expr}

	case ExprBinary:
		operands = []ExpressionHandle{kind.Left, kind.Right}

	case ExprCallResult:
		if !v.isValidFunctionHandle(kind.Function) {
			v.addErrorInExpression(handle, fmt.Sprintf("function %d does not exist", kind.Function))
		}

	case ExprArrayLength:
		operands = []ExpressionHandle{kind.Array}
	}

	for _, op := range operands {
		if !v.isValidExpressionHandle(op) {
			v.addErrorInExpression(handle, fmt.Sprintf("operand expression %d does not exist", op))
		}
	}
}

// validateBlock validates a block of statements.
func (v *Validator) validateBlock(block Block) {
	for i := range block {
		v.validateStatement(i, &block[i])
	}
}

// validateStatement validates a single statement.
func (v *Validator) validateStatement(index int, stmt *Statement) {
	if stmt.Kind == nil {
		v.addErrorInStatement(index, "statement has nil kind")
		return
	}

	var operands []ExpressionHandle
	switch kind := stmt.Kind.(type) {
	case StmtEmit:
		if kind.Range.Start > kind.Range.End {
			v.addErrorInStatement(index, fmt.Sprintf("emit range start %d exceeds end %d", kind.Range.Start, kind.Range.End))
		}

	case StmtBlock:
		v.validateBlock(kind.Block)

	case StmtIf:
		operands = []ExpressionHandle{kind.Condition}
		v.validateBlock(kind.Accept)
		v.validateBlock(kind.Reject)

	case StmtLoop:
		v.validateBlock(kind.Body)
		v.validateBlock(kind.Continuing)

	case StmtReturn:
		if kind.Value != nil {
			operands = []ExpressionHandle{*kind.Value}
		}

	case StmtKill:
		// Always valid

	case StmtStore:
		operands = []ExpressionHandle{kind.Pointer, kind.Value}

	case StmtImageStore:
		operands = []ExpressionHandle{kind.Image, kind.Coordinate, kind.Value}

	case StmtAtomic:
		operands = []ExpressionHandle{kind.Pointer, kind.Value}
		if kind.Result != nil {
			operands = append(operands, *kind.Result)
		}

	case StmtCall:
		if !v.isValidFunctionHandle(kind.Function) {
			v.addErrorInStatement(index, fmt.Sprintf("function %d does not exist", kind.Function))
		}
		operands = kind.Arguments
		if kind.Result != nil {
			operands = append(operands, *kind.Result)
		}
	}

	for _, op := range operands {
		if !v.isValidExpressionHandle(op) {
			v.addErrorInStatement(index, fmt.Sprintf("expression %d does not exist", op))
		}
	}
}

// validateSubroutines checks subroutine function declarations.
func (v *Validator) validateSubroutines() {
	names := make(map[string]bool)
	for i, fn := range v.shader.SubroutineFunctions {
		if fn.Name == "" {
			v.addError(fmt.Sprintf("subroutine function %d has empty name", i))
		}
		if names[fn.Name] {
			v.addError(fmt.Sprintf("duplicate subroutine function name %q", fn.Name))
		}
		names[fn.Name] = true
		if len(fn.Types) == 0 {
			v.addError(fmt.Sprintf("subroutine function %q implements no subroutine type", fn.Name))
		}
	}
}

// validateXfbOutputs checks captured varyings.
func (v *Validator) validateXfbOutputs() {
	for i, out := range v.shader.XfbOutputs {
		if out.Name == "" {
			v.addError(fmt.Sprintf("transform feedback output %d has empty name", i))
		}
		if !v.isValidTypeHandle(out.Type) {
			v.addError(fmt.Sprintf("transform feedback output %q: type %d does not exist", out.Name, out.Type))
		}
	}
}

// Helper methods for validation

func (v *Validator) isValidTypeHandle(handle TypeHandle) bool {
	return int(handle) < len(v.shader.Types)
}

func (v *Validator) isValidGlobalVariableHandle(handle GlobalVariableHandle) bool {
	return int(handle) < len(v.shader.GlobalVariables)
}

func (v *Validator) isValidFunctionHandle(handle FunctionHandle) bool {
	return int(handle) < len(v.shader.Functions)
}

func (v *Validator) isValidExpressionHandle(handle ExpressionHandle) bool {
	if v.context.function == nil {
		return false
	}
	return int(handle) < len(v.context.function.Expressions)
}

func (v *Validator) addError(msg string) {
	v.errors = append(v.errors, ValidationError{
		Message:   msg,
		Statement: -1,
	})
}

func (v *Validator) addErrorInExpression(handle ExpressionHandle, msg string) {
	v.errors = append(v.errors, ValidationError{
		Message:    msg,
		Function:   v.context.functionName,
		Expression: &handle,
		Statement:  -1,
	})
}

func (v *Validator) addErrorInStatement(index int, msg string) {
	v.errors = append(v.errors, ValidationError{
		Message:   msg,
		Function:  v.context.functionName,
		Statement: index,
	})
}
