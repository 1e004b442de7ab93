// Package ast defines the abstract syntax tree consumed by the resolver
// and compiler. It intentionally covers only a small language subset
// (literals, identifier reference/assignment, nested function definitions,
// lambdas, calls, arithmetic, comparison, boolean short-circuit,
// conditional/ternary, while, if/else, return, pass, plus global/nonlocal
// declarations): the surface tokenizer and parser that would produce this
// tree live outside this module, so this package is the seam an external
// front end plugs into.
package ast

import "github.com/svmlang/svmc/lang/token"

// Node is implemented by every AST node and reports its source extent.
type Node interface {
	Span() (start, end token.Pos)
}

// Stmt is implemented by statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is implemented by expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Block is a sequence of statements sharing one enclosing function scope;
// if/while bodies and the top-level chunk are all Blocks. A Block never
// introduces its own lexical scope.
type Block struct {
	Start, End token.Pos
	Stmts []Stmt
}

func (b *Block) Span() (token.Pos, token.Pos) { return b.Start, b.End }

// Chunk is the root of a compilation unit: a file, a REPL entry, or any
// other top-level program handed to the compiler.
type Chunk struct {
	Name string
	Body *Block
}

func (c *Chunk) Span() (token.Pos, token.Pos) {
	if c.Body != nil {
		return c.Body.Span()
	}
	return 0, 0
}

// CoordKind classifies a Coordinate resolved by the resolver.
type CoordKind uint8

const (
	// Unresolved is the zero value; a well-formed, resolved AST never has an
	// IdentExpr left in this state.
	Unresolved CoordKind = iota
	// UserCoord is a reference to a user-declared parameter or local.
	UserCoord
	// PrimitiveCoord is a reference to a builtin primitive, resolved at
	// the global scope only.
	PrimitiveCoord
)

// Coordinate is the (kind, index, env_level) triple the resolver attaches
// to every identifier use. It lives in this package, not the resolver's,
// so that IdentExpr can hold one directly without an import cycle between
// ast and resolver.
type Coordinate struct {
	Kind CoordKind
	Index int // 0-based slot in the owning scope
	EnvLevel int // parent hops from the use site to the owning scope
}
