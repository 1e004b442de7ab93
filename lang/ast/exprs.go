package ast

import "github.com/svmlang/svmc/lang/token"

// LitKind identifies the kind of value a LiteralExpr holds.
type LitKind uint8

const (
	IntLit LitKind = iota
	FloatLit
	BoolLit
	StringLit
	NullLit
	UndefinedLit
)

// LiteralExpr is a constant literal. Only one of the typed fields is
// meaningful, selected by Kind.
type LiteralExpr struct {
	Pos token.Pos
	Kind LitKind
	Int int64
	Float float64
	Bool bool
	Str string
}

func (e *LiteralExpr) Span() (token.Pos, token.Pos) { return e.Pos, e.Pos }
func (*LiteralExpr) exprNode() {}

// IdentExpr is a bare name: a read (as an Expr) or an assignment target (as
// AssignStmt.Target). Coord is zero-valued until the resolver visits it.
type IdentExpr struct {
	Pos token.Pos
	Name string
	Coord Coordinate
}

func (e *IdentExpr) Span() (token.Pos, token.Pos) {
	return e.Pos, e.Pos + token.Pos(len(e.Name))
}
func (*IdentExpr) exprNode() {}

// BinOp enumerates the binary operators.
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLt
	OpGt
	OpLe
	OpGe
	OpEq
	OpNeq
	// OpAnd and OpOr are short-circuit boolean operators, lowered as
	// conditionals ("a and b" as "a ? b : false", "a or b" as
	// "a ? true : b") rather than compiled to a dedicated opcode.
	OpAnd
	OpOr
)

func (op BinOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpLt:
		return "<"
	case OpGt:
		return ">"
	case OpLe:
		return "<="
	case OpGe:
		return ">="
	case OpEq:
		return "=="
	case OpNeq:
		return "!="
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	default:
		return "<unknown binop>"
	}
}

// BinOpExpr is a binary operator application.
type BinOpExpr struct {
	Pos token.Pos
	Op BinOp
	Left, Right Expr
}

func (e *BinOpExpr) Span() (token.Pos, token.Pos) {
	start, _ := e.Left.Span()
	_, end := e.Right.Span()
	return start, end
}
func (*BinOpExpr) exprNode() {}

// UnOp enumerates the unary operators.
type UnOp uint8

const (
	OpNeg UnOp = iota
	OpNot
)

// UnaryOpExpr is a unary operator application.
type UnaryOpExpr struct {
	Pos token.Pos
	Op UnOp
	Right Expr
}

func (e *UnaryOpExpr) Span() (token.Pos, token.Pos) {
	_, end := e.Right.Span()
	return e.Pos, end
}
func (*UnaryOpExpr) exprNode() {}

// CondExpr is the ternary conditional expression; its surface syntax is
// the external parser's concern.
type CondExpr struct {
	Pos token.Pos
	Cond, Then, Else Expr
}

func (e *CondExpr) Span() (token.Pos, token.Pos) {
	start, _ := e.Cond.Span()
	_, end := e.Else.Span()
	return start, end
}
func (*CondExpr) exprNode() {}

// CallExpr applies Fn to Args, left-to-right.
type CallExpr struct {
	Pos token.Pos // position of the opening paren
	Fn Expr
	Args []Expr
}

func (e *CallExpr) Span() (token.Pos, token.Pos) {
	start, _ := e.Fn.Span()
	return start, e.Pos
}
func (*CallExpr) exprNode() {}

// FuncExpr is a lambda: a function value with an implicit return of its
// single expression body (lambdas carry no statement block, unlike a named
// FuncStmt).
type FuncExpr struct {
	Pos token.Pos
	Params []*IdentExpr
	Body Expr
}

func (e *FuncExpr) Span() (token.Pos, token.Pos) {
	_, end := e.Body.Span()
	return e.Pos, end
}
func (*FuncExpr) exprNode() {}
