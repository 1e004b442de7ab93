package compiler

import (
	"fmt"
	"math"

	"github.com/svmlang/svmc/lang/ast"
	"github.com/svmlang/svmc/lang/compileerr"
	"github.com/svmlang/svmc/lang/resolver"
	"github.com/svmlang/svmc/lang/token"
)

// Config controls the compiler's optional instrumentation passes.
type Config struct {
	// EnableRecursionDetection turns on the call-graph SCC pass.
	EnableRecursionDetection bool
	// EnableMemoization additionally computes NeedsMemoization from the
	// recursion-detection results; ignored if EnableRecursionDetection is
	// false.
	EnableMemoization bool
	// MemoThreshold is the maximum parameter count eligible for
	// memoization. Zero or negative means the default of 10.
	MemoThreshold int
}

// DefaultConfig enables recursion detection and memoization with the
// default parameter-count threshold.
func DefaultConfig() Config {
	return Config{EnableRecursionDetection: true, EnableMemoization: true, MemoThreshold: 10}
}

func (c Config) threshold() int {
	if c.MemoThreshold <= 0 {
		return 10
	}
	return c.MemoThreshold
}

// CompileProgram lowers a resolved chunk into an SVMProgram: the entry
// function is synthesized from the program body, nested def/lambda become
// additional functions, and a single invocation yields a fully relocated
// SVMProgram. chunk must already have been through resolver.Resolve using
// envs; an AST with resolve errors must never reach this function.
func CompileProgram(filename string, chunk *ast.Chunk, envs resolver.EnvironmentMap, cfg Config) (*SVMProgram, error) {
	c := &compilerCtx{filename: filename, envs: envs, strIndex: make(map[string]int32)}

	root := NewBuilder("<entry>", 0)
	root.FnNode = chunk
	if err := c.lowerEntry(root, chunk.Body); err != nil {
		return nil, err
	}

	var order []*Builder
	root.Walk(func(b *Builder) { order = append(order, b) })

	indices := make(map[*Builder]int, len(order))
	for i, b := range order {
		indices[b] = i
	}
	for _, b := range order {
		b.PatchChildRefs(indices)
	}

	byName := make(map[string]*SVMFunction)
	funcs := make([]*SVMFunction, len(order))
	for i, b := range order {
		env, ok := c.envs[b.FnNode]
		if !ok {
			return nil, fmt.Errorf("internal error: no environment recorded for function %q", b.Name)
		}
		fn, err := b.Build(env.Size())
		if err != nil {
			return nil, err
		}
		peephole(fn)
		RelativizeBranches(fn)
		funcs[i] = fn
		if fs, ok := b.FnNode.(*ast.FuncStmt); ok {
			byName[fs.Name.Name] = fn
		}
	}

	instrument(byName, cfg.EnableRecursionDetection, cfg.EnableMemoization, cfg.threshold())

	return &SVMProgram{
		EntryIndex: indices[root],
		Functions: funcs,
		Strings: c.strings,
	}, nil
}

type compilerCtx struct {
	filename string
	envs resolver.EnvironmentMap

	strings []string
	strIndex map[string]int32
}

func (c *compilerCtx) errorf(pos token.Pos, format string, args...interface{}) error {
	line, col := pos.LineCol()
	p := token.Position{Filename: c.filename, Line: line, Col: col}
	return compileerr.New(p, fmt.Sprintf(format, args...))
}

func (c *compilerCtx) addString(s string) int32 {
	if idx, ok := c.strIndex[s]; ok {
		return idx
	}
	idx := int32(len(c.strings))
	c.strings = append(c.strings, s)
	c.strIndex[s] = idx
	return idx
}

// ---- statement lowering ----

// blockDefinitelyReturns reports whether every control path through block
// exits via a return. Deliberately conservative: only a trailing
// ReturnStmt, or a trailing if/else both of whose arms definitely return,
// count.
func blockDefinitelyReturns(b *ast.Block) bool {
	if len(b.Stmts) == 0 {
		return false
	}
	return stmtDefinitelyReturns(b.Stmts[len(b.Stmts)-1])
}

func stmtDefinitelyReturns(s ast.Stmt) bool {
	switch s := s.(type) {
	case *ast.ReturnStmt:
		return true
	case *ast.IfStmt:
		return s.Else != nil && blockDefinitelyReturns(s.Then) && blockDefinitelyReturns(s.Else)
	default:
		return false
	}
}

func startOf(n ast.Node) token.Pos {
	start, _ := n.Span()
	return start
}

// lowerBlock lowers every statement of block, enforcing the block-value
// rule: each of the first N-1 statements is followed by a POPG, and the
// block's value is whatever the last statement left. An empty block pushes
// a single LGCU. Lowering stops after a statement that definitely returns,
// since anything textually following it is unreachable.
func (c *compilerCtx) lowerBlock(b *Builder, block *ast.Block) error {
	if len(block.Stmts) == 0 {
		b.EmitNullary(LGCU, block.Start)
		return nil
	}
	for i, s := range block.Stmts {
		if err := c.lowerStmt(b, s); err != nil {
			return err
		}
		if stmtDefinitelyReturns(s) {
			return nil
		}
		if i < len(block.Stmts)-1 {
			b.EmitNullary(POPG, startOf(s))
		}
	}
	return nil
}

// lowerFunctionBody lowers a named function's body. Unlike the program
// entry (lowerEntry), a function that falls off the end of its body
// without an explicit return discards the body block's trailing value and
// returns undefined, matching this language's Python-like semantics.
func (c *compilerCtx) lowerFunctionBody(b *Builder, body *ast.Block) error {
	if err := c.lowerBlock(b, body); err != nil {
		return err
	}
	if !blockDefinitelyReturns(body) {
		b.EmitNullary(POPG, body.End)
		b.EmitNullary(RETU, body.End)
	}
	return nil
}

// lowerEntry lowers the program's top-level statements, returning the
// block's trailing value as the program's result.
func (c *compilerCtx) lowerEntry(b *Builder, body *ast.Block) error {
	if err := c.lowerBlock(b, body); err != nil {
		return err
	}
	if !blockDefinitelyReturns(body) {
		b.EmitNullary(RETG, body.End)
	}
	return nil
}

func (c *compilerCtx) lowerStmt(b *Builder, stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.AssignStmt:
		if err := c.lowerExpr(b, s.Value); err != nil {
			return err
		}
		if err := c.emitStore(b, s.Target); err != nil {
			return err
		}
		b.EmitNullary(LGCU, s.Pos)
		return nil

	case *ast.ExprStmt:
		return c.lowerExpr(b, s.Expr)

	case *ast.IfStmt:
		return c.lowerIf(b, s)

	case *ast.WhileStmt:
		return c.lowerWhile(b, s)

	case *ast.ReturnStmt:
		return c.lowerReturn(b, s)

	case *ast.PassStmt:
		b.EmitNullary(LGCU, s.Pos)
		return nil

	case *ast.FuncStmt:
		return c.lowerFuncStmt(b, s)

	case *ast.GlobalStmt:
		b.EmitNullary(LGCU, s.Pos)
		return nil

	case *ast.NonlocalStmt:
		b.EmitNullary(LGCU, s.Pos)
		return nil

	default:
		return c.errorf(startOf(stmt), "unsupported statement: %T", stmt)
	}
}

func (c *compilerCtx) lowerIf(b *Builder, s *ast.IfStmt) error {
	if err := c.lowerExpr(b, s.Cond); err != nil {
		return err
	}
	elseLabel := b.EmitJump(BRF, NoLabel, s.Pos)
	base := b.CurrentStack()
	if err := c.lowerBlock(b, s.Then); err != nil {
		return err
	}
	// The jump over the else-branch is only needed (and only has an
	// in-range target) when the then-branch can fall through to it.
	endLabel := NoLabel
	if !blockDefinitelyReturns(s.Then) {
		endLabel = b.EmitJump(BR, NoLabel, s.Pos)
	}
	b.Mark(elseLabel)
	b.SetStack(base) // only one arm executes; don't sum their effects
	if s.Else != nil {
		if err := c.lowerBlock(b, s.Else); err != nil {
			return err
		}
	} else {
		b.EmitNullary(LGCU, s.Pos)
	}
	if endLabel != NoLabel {
		b.Mark(endLabel)
	}
	return nil
}

func (c *compilerCtx) lowerWhile(b *Builder, s *ast.WhileStmt) error {
	loopLabel := b.MarkLabel()
	if err := c.lowerExpr(b, s.Cond); err != nil {
		return err
	}
	endLabel := b.EmitJump(BRF, NoLabel, s.Pos)
	if err := c.lowerBlock(b, s.Body); err != nil {
		return err
	}
	b.EmitNullary(POPG, s.Pos) // discard this iteration's block value
	b.EmitJump(BR, loopLabel, s.Pos)
	b.Mark(endLabel)
	b.EmitNullary(LGCU, s.Pos) // while is a statement, yields undefined
	return nil
}

func (c *compilerCtx) lowerReturn(b *Builder, s *ast.ReturnStmt) error {
	if s.Value == nil {
		b.EmitNullary(RETU, s.Pos)
		return nil
	}
	if call, ok := s.Value.(*ast.CallExpr); ok {
		return c.lowerCall(b, call, true)
	}
	if err := c.lowerExpr(b, s.Value); err != nil {
		return err
	}
	b.EmitNullary(RETG, s.Pos)
	return nil
}

func (c *compilerCtx) lowerFuncStmt(b *Builder, s *ast.FuncStmt) error {
	child := b.CreateChild(s.Name.Name, len(s.Params), s)
	if err := c.lowerFunctionBody(child, s.Body); err != nil {
		return err
	}
	b.EmitNewClosure(child, s.Pos)
	if err := c.emitStore(b, s.Name); err != nil {
		return err
	}
	b.EmitNullary(LGCU, s.Pos)
	return nil
}

// ---- expression lowering ----

func (c *compilerCtx) lowerExpr(b *Builder, expr ast.Expr) error {
	switch e := expr.(type) {
	case *ast.LiteralExpr:
		return c.lowerLiteral(b, e)

	case *ast.IdentExpr:
		return c.emitLoad(b, e)

	case *ast.BinOpExpr:
		return c.lowerBinOp(b, e)

	case *ast.UnaryOpExpr:
		if err := c.lowerExpr(b, e.Right); err != nil {
			return err
		}
		switch e.Op {
		case ast.OpNeg:
			b.EmitNullary(NEGG, e.Pos)
		case ast.OpNot:
			b.EmitNullary(NOTG, e.Pos)
		default:
			return c.errorf(e.Pos, "unsupported unary operator")
		}
		return nil

	case *ast.CondExpr:
		return c.lowerCondExprs(b, e.Cond, e.Then, e.Else, e.Pos)

	case *ast.CallExpr:
		return c.lowerCall(b, e, false)

	case *ast.FuncExpr:
		return c.lowerFuncExpr(b, e)

	default:
		return c.errorf(startOf(expr), "unsupported expression: %T", expr)
	}
}

func (c *compilerCtx) lowerLiteral(b *Builder, e *ast.LiteralExpr) error {
	switch e.Kind {
	case ast.IntLit:
		if e.Int >= math.MinInt32 && e.Int <= math.MaxInt32 {
			b.EmitUnary(LGCI, int32(e.Int), e.Pos)
		} else {
			b.EmitFloat(float64(e.Int), e.Pos)
		}
		return nil
	case ast.FloatLit:
		b.EmitFloat(e.Float, e.Pos)
		return nil
	case ast.BoolLit:
		if e.Bool {
			b.EmitNullary(LGCB1, e.Pos)
		} else {
			b.EmitNullary(LGCB0, e.Pos)
		}
		return nil
	case ast.NullLit:
		b.EmitNullary(LGCN, e.Pos)
		return nil
	case ast.UndefinedLit:
		b.EmitNullary(LGCU, e.Pos)
		return nil
	case ast.StringLit:
		idx := c.addString(e.Str)
		b.EmitUnary(LGCS, idx, e.Pos)
		return nil
	default:
		return c.errorf(e.Pos, "unsupported literal kind: %d", e.Kind)
	}
}

var binOpcode = map[ast.BinOp]Opcode{
	ast.OpAdd: ADDG,
	ast.OpSub: SUBG,
	ast.OpMul: MULG,
	ast.OpDiv: DIVG,
	ast.OpMod: MODG,
	ast.OpLt: LTG,
	ast.OpGt: GTG,
	ast.OpLe: LEG,
	ast.OpGe: GEG,
	ast.OpEq: EQG,
	ast.OpNeq: NEQG,
}

func (c *compilerCtx) lowerBinOp(b *Builder, e *ast.BinOpExpr) error {
	switch e.Op {
	case ast.OpAnd:
		// "a and b" as "a ? b: false".
		return c.lowerCondExprs(b, e.Left, e.Right, &ast.LiteralExpr{Pos: e.Pos, Kind: ast.BoolLit, Bool: false}, e.Pos)
	case ast.OpOr:
		// "a or b" as "a ? true: b".
		return c.lowerCondExprs(b, e.Left, &ast.LiteralExpr{Pos: e.Pos, Kind: ast.BoolLit, Bool: true}, e.Right, e.Pos)
	}
	if err := c.lowerExpr(b, e.Left); err != nil {
		return err
	}
	if err := c.lowerExpr(b, e.Right); err != nil {
		return err
	}
	op, ok := binOpcode[e.Op]
	if !ok {
		return c.errorf(e.Pos, "unsupported binary operator: %s", e.Op)
	}
	b.EmitNullary(op, e.Pos)
	return nil
}

// lowerCondExprs shares the test/BRF/then/BR/else/end lowering pattern
// between the ternary CondExpr and the short-circuit "and"/"or" desugars.
func (c *compilerCtx) lowerCondExprs(b *Builder, cond, then, els ast.Expr, pos token.Pos) error {
	if err := c.lowerExpr(b, cond); err != nil {
		return err
	}
	elseLabel := b.EmitJump(BRF, NoLabel, pos)
	base := b.CurrentStack()
	if err := c.lowerExpr(b, then); err != nil {
		return err
	}
	endLabel := b.EmitJump(BR, NoLabel, pos)
	b.Mark(elseLabel)
	b.SetStack(base)
	if err := c.lowerExpr(b, els); err != nil {
		return err
	}
	b.Mark(endLabel)
	return nil
}

// lowerCall lowers a call expression. tail is true when this call is in
// return position, selecting CALLT/CALLTP instead of CALL/CALLP.
func (c *compilerCtx) lowerCall(b *Builder, call *ast.CallExpr, tail bool) error {
	if id, ok := call.Fn.(*ast.IdentExpr); ok && id.Coord.Kind == ast.PrimitiveCoord {
		for _, a := range call.Args {
			if err := c.lowerExpr(b, a); err != nil {
				return err
			}
		}
		op := CALLP
		if tail {
			op = CALLTP
		}
		b.EmitCall(op, id.Coord.Index, len(call.Args), call.Pos)
		return nil
	}

	if id, ok := call.Fn.(*ast.IdentExpr); ok && id.Coord.Kind == ast.UserCoord {
		b.RecordCall(id.Name)
	}
	if err := c.lowerExpr(b, call.Fn); err != nil {
		return err
	}
	for _, a := range call.Args {
		if err := c.lowerExpr(b, a); err != nil {
			return err
		}
	}
	op := CALL
	if tail {
		op = CALLT
	}
	b.EmitCall(op, 0, len(call.Args), call.Pos)
	return nil
}

func (c *compilerCtx) lowerFuncExpr(b *Builder, e *ast.FuncExpr) error {
	child := b.CreateChild("<lambda>", len(e.Params), e)
	// Mirror the resolver's own synthetic wrapping of a lambda's expression
	// body as an implicit return (resolver.resolveExpr's FuncExpr case),
	// so the lambda always explicitly returns and is tail-call eligible.
	body := &ast.Block{Start: e.Pos, End: e.Pos, Stmts: []ast.Stmt{&ast.ReturnStmt{Pos: e.Pos, Value: e.Body}}}
	if err := c.lowerFunctionBody(child, body); err != nil {
		return err
	}
	b.EmitNewClosure(child, e.Pos)
	return nil
}

func (c *compilerCtx) emitLoad(b *Builder, id *ast.IdentExpr) error {
	switch id.Coord.Kind {
	case ast.PrimitiveCoord:
		return c.errorf(id.Pos, "primitive %q used as a value; primitives may only be called", id.Name)
	case ast.UserCoord:
		if id.Coord.EnvLevel == 0 {
			b.EmitUnary(LDLG, int32(id.Coord.Index), id.Pos)
		} else {
			b.EmitBinary(LDPG, int32(id.Coord.Index), int32(id.Coord.EnvLevel), id.Pos)
		}
		return nil
	default:
		return c.errorf(id.Pos, "internal error: unresolved identifier %q reached the compiler", id.Name)
	}
}

func (c *compilerCtx) emitStore(b *Builder, id *ast.IdentExpr) error {
	if id.Coord.Kind != ast.UserCoord {
		return c.errorf(id.Pos, "internal error: cannot assign to %q", id.Name)
	}
	if id.Coord.EnvLevel == 0 {
		b.EmitUnary(STLG, int32(id.Coord.Index), id.Pos)
	} else {
		b.EmitBinary(STPG, int32(id.Coord.Index), int32(id.Coord.EnvLevel), id.Pos)
		b.AssignsOuterScope = true
	}
	return nil
}
