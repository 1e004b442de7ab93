package ast

import "github.com/svmlang/svmc/lang/token"

// AssignStmt assigns Value to Target. An assignment statement's block
// value is the implicit undefined pushed after it, not the assigned
// value.
type AssignStmt struct {
	Pos token.Pos
	Target *IdentExpr
	Value Expr
}

func (s *AssignStmt) Span() (token.Pos, token.Pos) {
	_, end := s.Value.Span()
	return s.Pos, end
}
func (*AssignStmt) stmtNode() {}

// ExprStmt is a bare expression evaluated for its value (and side effects);
// its value is the block value, so no implicit undefined follows it.
type ExprStmt struct {
	Pos token.Pos
	Expr Expr
}

func (s *ExprStmt) Span() (token.Pos, token.Pos) {
	_, end := s.Expr.Span()
	return s.Pos, end
}
func (*ExprStmt) stmtNode() {}

// IfStmt is "if Cond: Then else: Else". Else may be nil for a bodiless
// if-statement.
type IfStmt struct {
	Pos token.Pos
	Cond Expr
	Then, Else *Block
}

func (s *IfStmt) Span() (token.Pos, token.Pos) {
	if s.Else != nil {
		return s.Pos, s.Else.End
	}
	return s.Pos, s.Then.End
}
func (*IfStmt) stmtNode() {}

// WhileStmt is a pretest loop.
type WhileStmt struct {
	Pos token.Pos
	Cond Expr
	Body *Block
}

func (s *WhileStmt) Span() (token.Pos, token.Pos) { return s.Pos, s.Body.End }
func (*WhileStmt) stmtNode() {}

// ReturnStmt returns Value from the enclosing function. Value is nil for a
// bare "return" (returns undefined).
type ReturnStmt struct {
	Pos token.Pos
	Value Expr
}

func (s *ReturnStmt) Span() (token.Pos, token.Pos) {
	if s.Value != nil {
		_, end := s.Value.Span()
		return s.Pos, end
	}
	return s.Pos, s.Pos
}
func (*ReturnStmt) stmtNode() {}

// PassStmt is a no-op statement.
type PassStmt struct {
	Pos token.Pos
}

func (s *PassStmt) Span() (token.Pos, token.Pos) { return s.Pos, s.Pos }
func (*PassStmt) stmtNode() {}

// FuncStmt is a named nested function definition. Its name is bound in the
// enclosing scope.
type FuncStmt struct {
	Pos token.Pos
	Name *IdentExpr
	Params []*IdentExpr
	Body *Block
}

func (s *FuncStmt) Span() (token.Pos, token.Pos) { return s.Pos, s.Body.End }
func (*FuncStmt) stmtNode() {}

// GlobalStmt declares that Names refer to bindings in the outermost (chunk)
// scope rather than being allocated a local slot.
type GlobalStmt struct {
	Pos token.Pos
	Names []*IdentExpr
}

func (s *GlobalStmt) Span() (token.Pos, token.Pos) {
	end := s.Pos
	if n := len(s.Names); n > 0 {
		_, end = s.Names[n-1].Span()
	}
	return s.Pos, end
}
func (*GlobalStmt) stmtNode() {}

// NonlocalStmt declares that Names refer to bindings in the nearest
// enclosing function scope that declares them, rather than being allocated
// a local slot here.
type NonlocalStmt struct {
	Pos token.Pos
	Names []*IdentExpr
}

func (s *NonlocalStmt) Span() (token.Pos, token.Pos) {
	end := s.Pos
	if n := len(s.Names); n > 0 {
		_, end = s.Names[n-1].Span()
	}
	return s.Pos, end
}
func (*NonlocalStmt) stmtNode() {}
