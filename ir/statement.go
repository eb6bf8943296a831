package ir

// Statement represents a statement in the IR.
// Statements have side effects and structured control flow, but do not produce values.
// The function body is represented as a tree of statements, with references to expressions.
type Statement struct {
	Kind StatementKind
}

// StatementKind represents the different kinds of statements.
type StatementKind interface {
	statementKind()
}

// Block represents a sequence of statements executed in order.
type Block []Statement

// Range represents a range of expression handles for Emit statements.
type Range struct {
	Start ExpressionHandle
	End   ExpressionHandle // Exclusive
}

// StmtEmit emits a range of expressions, making them visible to all statements that follow.
type StmtEmit struct {
	Range Range
}

func (StmtEmit) statementKind() {}

// StmtBlock is a nested block of statements.
type StmtBlock struct {
	Block Block
}

func (StmtBlock) statementKind() {}

// StmtIf conditionally executes one of two blocks.
type StmtIf struct {
	Condition ExpressionHandle
	Accept    Block
	Reject    Block
}

func (StmtIf) statementKind() {}

// StmtLoop executes a block repeatedly.
type StmtLoop struct {
	Body       Block
	Continuing Block
}

func (StmtLoop) statementKind() {}

// StmtReturn returns from the function, possibly with a value.
type StmtReturn struct {
	Value *ExpressionHandle
}

func (StmtReturn) statementKind() {}

// StmtKill aborts the current shader execution (fragment shader discard).
type StmtKill struct{}

func (StmtKill) statementKind() {}

// StmtStore stores a value at an address through a pointer.
type StmtStore struct {
	Pointer ExpressionHandle
	Value   ExpressionHandle
}

func (StmtStore) statementKind() {}

// StmtImageStore stores a texel value to an image.
type StmtImageStore struct {
	Image      ExpressionHandle
	Coordinate ExpressionHandle
	Value      ExpressionHandle
}

func (StmtImageStore) statementKind() {}

// StmtAtomic performs an atomic operation on a buffer variable or counter.
type StmtAtomic struct {
	Pointer ExpressionHandle
	Value   ExpressionHandle
	Result  *ExpressionHandle
}

func (StmtAtomic) statementKind() {}

// StmtCall calls a function.
type StmtCall struct {
	Function  FunctionHandle
	Arguments []ExpressionHandle
	Result    *ExpressionHandle
}

func (StmtCall) statementKind() {}
