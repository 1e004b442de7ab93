package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svmlang/svmc/lang/ast"
	"github.com/svmlang/svmc/lang/compiler"
	"github.com/svmlang/svmc/lang/resolver"
)

func noPrimitives(string) (int, bool) { return 0, false }

func ident(name string) *ast.IdentExpr { return &ast.IdentExpr{Name: name} }

func intLit(n int64) *ast.LiteralExpr { return &ast.LiteralExpr{Kind: ast.IntLit, Int: n} }

func block(stmts...ast.Stmt) *ast.Block { return &ast.Block{Stmts: stmts} }

func bin(op ast.BinOp, l, r ast.Expr) *ast.BinOpExpr { return &ast.BinOpExpr{Op: op, Left: l, Right: r} }

func compileChunk(t *testing.T, chunk *ast.Chunk, cfg compiler.Config) *compiler.SVMProgram {
	t.Helper()
	envs, err := resolver.Resolve(chunk.Name, chunk, noPrimitives)
	require.NoError(t, err)
	prog, err := compiler.CompileProgram(chunk.Name, chunk, envs, cfg)
	require.NoError(t, err)
	return prog
}

// abstractStackDepth replays fn.Code's Δstack instruction-by-instruction
// along the single straight-line order the builder emits, returning the depth immediately after each
// instruction and the peak depth observed.
func abstractStackDepth(fn *compiler.SVMFunction) (trace []int, peak int) {
	cur := 0
	for _, ins := range fn.Code {
		cur += compiler.InstructionEffect(ins)
		trace = append(trace, cur)
		if cur > peak {
			peak = cur
		}
	}
	return trace, peak
}

// TestStackDiscipline replays Δstack over a compiled function: the depth
// never goes negative, ends each RET* at 0, and the observed peak matches
// the recorded MaxStack.
func TestStackDiscipline(t *testing.T) {
	// def f(a, b): return (a + b) * (a - b)
	chunk := &ast.Chunk{Name: "stack_discipline", Body: block(
		&ast.FuncStmt{Name: ident("f"), Params: []*ast.IdentExpr{ident("a"), ident("b")}, Body: block(
			&ast.ReturnStmt{Value: bin(ast.OpMul,
				bin(ast.OpAdd, ident("a"), ident("b")),
				bin(ast.OpSub, ident("a"), ident("b")))},
		)},
		&ast.ExprStmt{Expr: &ast.CallExpr{Fn: ident("f"), Args: []ast.Expr{intLit(3), intLit(4)}}},
	)}
	prog := compileChunk(t, chunk, compiler.DefaultConfig())

	for _, fn := range prog.Functions {
		trace, peak := abstractStackDepth(fn)
		depth := 0
		for i, ins := range fn.Code {
			depth += compiler.InstructionEffect(ins)
			require.GreaterOrEqualf(t, depth, 0, "function %q instruction %d (%s): stack went negative", fn.Name, i, ins.Op)
			if compiler.IsReturn(ins.Op) {
				assert.Equalf(t, 0, depth, "function %q instruction %d: depth after %s should be 0", fn.Name, i, ins.Op)
			}
		}
		assert.Equal(t, fn.MaxStack, peak, "function %q: recorded MaxStack should equal the observed peak", fn.Name)
		_ = trace
	}
}

// TestBranchTargetsInRange: after compilation every BR/BRT/BRF's resolved
// instruction-relative offset lands inside [0, len(code)).
func TestBranchTargetsInRange(t *testing.T) {
	// def sign(n): if n < 0: return -1 else: if n > 0: return 1 else: return 0
	chunk := &ast.Chunk{Name: "branch_targets", Body: block(
		&ast.FuncStmt{Name: ident("sign"), Params: []*ast.IdentExpr{ident("n")}, Body: block(
			&ast.IfStmt{
				Cond: bin(ast.OpLt, ident("n"), intLit(0)),
				Then: block(&ast.ReturnStmt{Value: &ast.UnaryOpExpr{Op: ast.OpNeg, Right: intLit(1)}}),
				Else: block(&ast.IfStmt{
					Cond: bin(ast.OpGt, ident("n"), intLit(0)),
					Then: block(&ast.ReturnStmt{Value: intLit(1)}),
					Else: block(&ast.ReturnStmt{Value: intLit(0)}),
				}),
			},
		)},
		&ast.ExprStmt{Expr: &ast.CallExpr{Fn: ident("sign"), Args: []ast.Expr{intLit(-7)}}},
	)}
	prog := compileChunk(t, chunk, compiler.DefaultConfig())

	for _, fn := range prog.Functions {
		for i, ins := range fn.Code {
			if !compiler.IsBranch(ins.Op) {
				continue
			}
			target := i + int(ins.Arg1)
			assert.GreaterOrEqualf(t, target, 0, "function %q instruction %d: branch target %d below 0", fn.Name, i, target)
			assert.Lessf(t, target, len(fn.Code), "function %q instruction %d: branch target %d beyond code", fn.Name, i, target)
		}
	}
}

func TestEmptyBlockPushesUndefined(t *testing.T) {
	// def f: (empty body block)
	chunk := &ast.Chunk{Name: "empty_block", Body: block(
		&ast.FuncStmt{Name: ident("f"), Params: nil, Body: block()},
		&ast.ExprStmt{Expr: &ast.CallExpr{Fn: ident("f")}},
	)}
	prog := compileChunk(t, chunk, compiler.DefaultConfig())
	fFn := findFunc(t, prog, "f")
	// An empty body's LGCU and the fall-off-the-end POPG form exactly the
	// pair the peephole pass elides, so f's whole body collapses to a bare
	// RETU, still correct (pass still yields undefined), just smaller.
	require.Len(t, fFn.Code, 1)
	assert.Equal(t, compiler.RETU, fFn.Code[0].Op)
}

// TestPeepholeElidesUndefinedPop verifies the one sanctioned dead-code
// transformation: an assignment statement's implicit LGCU immediately
// followed by the block rule's POPG is erased, so no LGCU is left directly
// before a POPG.
func TestPeepholeElidesUndefinedPop(t *testing.T) {
	// def f: x = 1 \n return x
	chunk := &ast.Chunk{Name: "peephole", Body: block(
		&ast.FuncStmt{Name: ident("f"), Params: nil, Body: block(
			&ast.AssignStmt{Target: ident("x"), Value: intLit(1)},
			&ast.ReturnStmt{Value: ident("x")},
		)},
		&ast.ExprStmt{Expr: &ast.CallExpr{Fn: ident("f")}},
	)}
	prog := compileChunk(t, chunk, compiler.DefaultConfig())
	fFn := findFunc(t, prog, "f")

	for i, ins := range fFn.Code {
		if ins.Op == compiler.LGCU && i+1 < len(fFn.Code) {
			require.NotEqual(t, compiler.POPG, fFn.Code[i+1].Op, "peephole should have elided this LGCU/POPG pair")
		}
	}
}

// TestRecursionDetectionGating: the SCC pass must not run at all (and so
// must not set IsRecursive) when EnableRecursionDetection is false, even
// for a genuinely self-recursive function.
func TestRecursionDetectionGating(t *testing.T) {
	chunk := &ast.Chunk{Name: "gating", Body: block(
		&ast.FuncStmt{Name: ident("loop"), Params: []*ast.IdentExpr{ident("n")}, Body: block(
			&ast.ReturnStmt{Value: &ast.CallExpr{Fn: ident("loop"), Args: []ast.Expr{ident("n")}}},
		)},
		&ast.ExprStmt{Expr: &ast.CallExpr{Fn: ident("loop"), Args: []ast.Expr{intLit(1)}}},
	)}

	off := compileChunk(t, chunk, compiler.Config{EnableRecursionDetection: false})
	loopFn := findFunc(t, off, "loop")
	assert.False(t, loopFn.IsRecursive)
	assert.False(t, loopFn.NeedsMemoization)

	onNoMemo := compileChunk(t, chunk, compiler.Config{EnableRecursionDetection: true, EnableMemoization: false})
	loopFn2 := findFunc(t, onNoMemo, "loop")
	assert.True(t, loopFn2.IsRecursive)
	assert.False(t, loopFn2.NeedsMemoization, "needs_memoization must stay false when memoization is disabled even if recursive")
}

// TestMemoThresholdExcludesHighArityFunctions: a recursive function whose
// parameter count exceeds the configured threshold is not memoized.
func TestMemoThresholdExcludesHighArityFunctions(t *testing.T) {
	params := []*ast.IdentExpr{ident("a"), ident("b"), ident("c")}
	args := []ast.Expr{ident("a"), ident("b"), ident("c")}
	chunk := &ast.Chunk{Name: "threshold", Body: block(
		&ast.FuncStmt{Name: ident("f"), Params: params, Body: block(
			&ast.ReturnStmt{Value: &ast.CallExpr{Fn: ident("f"), Args: args}},
		)},
		&ast.ExprStmt{Expr: &ast.CallExpr{Fn: ident("f"), Args: []ast.Expr{intLit(1), intLit(2), intLit(3)}}},
	)}

	cfg := compiler.DefaultConfig()
	cfg.MemoThreshold = 2
	prog := compileChunk(t, chunk, cfg)
	fFn := findFunc(t, prog, "f")
	assert.True(t, fFn.IsRecursive)
	assert.False(t, fFn.NeedsMemoization, "3 parameters exceeds the configured threshold of 2")
}

// TestOuterScopeWriterIsNotMemoized: a recursive function that assigns to
// an enclosing scope is not pure, so it must never be flagged for
// memoization; a cache hit would silently elide the outer write.
func TestOuterScopeWriterIsNotMemoized(t *testing.T) {
	// def g():
	//   c = 0
	//   def f(n):
	//     nonlocal c
	//     c = c + 1
	//     if n == 0: return c
	//     else: return f(n-1)
	//   return f(3)
	inner := &ast.FuncStmt{Name: ident("f"), Params: []*ast.IdentExpr{ident("n")}, Body: block(
		&ast.NonlocalStmt{Names: []*ast.IdentExpr{ident("c")}},
		&ast.AssignStmt{Target: ident("c"), Value: bin(ast.OpAdd, ident("c"), intLit(1))},
		&ast.IfStmt{
			Cond: bin(ast.OpEq, ident("n"), intLit(0)),
			Then: block(&ast.ReturnStmt{Value: ident("c")}),
			Else: block(&ast.ReturnStmt{Value: &ast.CallExpr{Fn: ident("f"), Args: []ast.Expr{bin(ast.OpSub, ident("n"), intLit(1))}}}),
		},
	)}
	outer := &ast.FuncStmt{Name: ident("g"), Body: block(
		&ast.AssignStmt{Target: ident("c"), Value: intLit(0)},
		inner,
		&ast.ReturnStmt{Value: &ast.CallExpr{Fn: ident("f"), Args: []ast.Expr{intLit(3)}}},
	)}
	chunk := &ast.Chunk{Name: "impure", Body: block(
		outer,
		&ast.ExprStmt{Expr: &ast.CallExpr{Fn: ident("g")}},
	)}

	prog := compileChunk(t, chunk, compiler.DefaultConfig())
	fFn := findFunc(t, prog, "f")
	assert.True(t, fFn.IsRecursive)
	assert.True(t, fFn.AssignsOuterScope)
	assert.False(t, fFn.NeedsMemoization, "a function assigning to an outer scope must not be memoized")
}

// TestUndefinedNameIsCompileError: an undefined name is fatal and carries
// the offending token's position.
func TestUndefinedNameIsCompileError(t *testing.T) {
	chunk := &ast.Chunk{Name: "undefined", Body: block(
		&ast.ExprStmt{Expr: ident("nope")},
	)}
	_, err := resolver.Resolve(chunk.Name, chunk, noPrimitives)
	require.Error(t, err)
}

func findFunc(t *testing.T, prog *compiler.SVMProgram, name string) *compiler.SVMFunction {
	t.Helper()
	for _, f := range prog.Functions {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no function named %q in compiled program", name)
	return nil
}
