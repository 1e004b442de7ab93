package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svmlang/svmc/lang/ast"
	"github.com/svmlang/svmc/lang/resolver"
)

func ident(name string) *ast.IdentExpr { return &ast.IdentExpr{Name: name} }

func block(stmts ...ast.Stmt) *ast.Block { return &ast.Block{Stmts: stmts} }

func noPrimitives(string) (int, bool) { return 0, false }

func primitives(names ...string) resolver.PrimitiveIndex {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	return func(name string) (int, bool) {
		i, ok := idx[name]
		return i, ok
	}
}

// x = 1
// f = (y) -> x + y
func TestResolve_ClosureOverOuterLocal(t *testing.T) {
	x := ident("x")
	fnBody := &ast.BinOpExpr{Op: ast.OpAdd, Left: ident("x"), Right: ident("y")}
	lambda := &ast.FuncExpr{Params: []*ast.IdentExpr{ident("y")}, Body: fnBody}
	f := ident("f")

	chunk := &ast.Chunk{Name: "m", Body: block(
		&ast.AssignStmt{Target: x, Value: &ast.LiteralExpr{Kind: ast.IntLit, Int: 1}},
		&ast.AssignStmt{Target: f, Value: lambda},
	)}

	envs, err := resolver.Resolve("m", chunk, noPrimitives)
	require.NoError(t, err)
	require.NotNil(t, envs)

	assert.Equal(t, ast.UserCoord, x.Coord.Kind)
	assert.Equal(t, 0, x.Coord.EnvLevel)

	// inner x resolves one env level up (into the chunk scope)
	assert.Equal(t, ast.UserCoord, fnBody.Left.(*ast.IdentExpr).Coord.Kind)
	assert.Equal(t, 1, fnBody.Left.(*ast.IdentExpr).Coord.EnvLevel)
	// y is a parameter of the lambda itself: env level 0
	assert.Equal(t, 0, fnBody.Right.(*ast.IdentExpr).Coord.EnvLevel)
}

// def outer():
//   n = 0
//   def inner():
//     nonlocal n
//     n = n + 1
//   inner()
//   return n
func TestResolve_Nonlocal(t *testing.T) {
	nInner := ident("n")
	nRead := ident("n")
	innerBody := block(
		&ast.NonlocalStmt{Names: []*ast.IdentExpr{ident("n")}},
		&ast.AssignStmt{Target: nInner, Value: &ast.BinOpExpr{Op: ast.OpAdd, Left: nRead, Right: &ast.LiteralExpr{Kind: ast.IntLit, Int: 1}}},
	)
	inner := &ast.FuncStmt{Name: ident("inner"), Body: innerBody}
	outerBody := block(
		&ast.AssignStmt{Target: ident("n"), Value: &ast.LiteralExpr{Kind: ast.IntLit, Int: 0}},
		inner,
		&ast.ExprStmt{Expr: &ast.CallExpr{Fn: ident("inner")}},
		&ast.ReturnStmt{Value: ident("n")},
	)
	outer := &ast.FuncStmt{Name: ident("outer"), Body: outerBody}
	chunk := &ast.Chunk{Name: "m", Body: block(outer)}

	_, err := resolver.Resolve("m", chunk, noPrimitives)
	require.NoError(t, err)

	assert.Equal(t, ast.UserCoord, nInner.Coord.Kind)
	assert.Equal(t, 1, nInner.Coord.EnvLevel, "nonlocal assignment target resolves to the enclosing function's slot")
	assert.Equal(t, 1, nRead.Coord.EnvLevel)
}

// def f():
//   nonlocal x  -- error: no enclosing function scope declares x
func TestResolve_NonlocalWithoutEnclosingBinding(t *testing.T) {
	body := block(&ast.NonlocalStmt{Names: []*ast.IdentExpr{ident("x")}})
	fn := &ast.FuncStmt{Name: ident("f"), Body: body}
	chunk := &ast.Chunk{Name: "m", Body: block(fn)}

	_, err := resolver.Resolve("m", chunk, noPrimitives)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonlocal")
}

// undefined_name  -- a bare expression statement using an unbound name
func TestResolve_UndefinedNameIsError(t *testing.T) {
	use := ident("undefined_name")
	chunk := &ast.Chunk{Name: "m", Body: block(&ast.ExprStmt{Expr: use})}

	_, err := resolver.Resolve("m", chunk, noPrimitives)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined_name")
}

// print(1) -- falls back to the primitive table when no user binding exists
func TestResolve_FallsBackToPrimitive(t *testing.T) {
	fn := ident("print")
	call := &ast.CallExpr{Fn: fn, Args: []ast.Expr{&ast.LiteralExpr{Kind: ast.IntLit, Int: 1}}}
	chunk := &ast.Chunk{Name: "m", Body: block(&ast.ExprStmt{Expr: call})}

	_, err := resolver.Resolve("m", chunk, primitives("print", "abs"))
	require.NoError(t, err)
	assert.Equal(t, ast.PrimitiveCoord, fn.Coord.Kind)
	assert.Equal(t, 0, fn.Coord.Index)
}

// def f(x, x): pass -- duplicate parameter name is an error
func TestResolve_DuplicateParameterIsError(t *testing.T) {
	fn := &ast.FuncStmt{Name: ident("f"), Params: []*ast.IdentExpr{ident("x"), ident("x")}, Body: block(&ast.PassStmt{})}
	chunk := &ast.Chunk{Name: "m", Body: block(fn)}

	_, err := resolver.Resolve("m", chunk, noPrimitives)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate parameter")
}

// def f():
//   x = 1
//   global x -- conflicting kinds: x is already local in f when it is marked
//   global (marking first and assigning afterwards is fine)
func TestResolve_ConflictingGlobalAndLocalIsError(t *testing.T) {
	fn := &ast.FuncStmt{
		Name: ident("f"),
		Body: block(
			&ast.AssignStmt{Target: ident("x"), Value: &ast.LiteralExpr{Kind: ast.IntLit, Int: 1}},
			&ast.GlobalStmt{Names: []*ast.IdentExpr{ident("x")}},
		),
	}
	chunk := &ast.Chunk{Name: "m", Body: block(fn)}

	_, err := resolver.Resolve("m", chunk, noPrimitives)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicting kinds")
}

// def f():
//   def g():
//     return g_local  -- declared later in f, still visible from g at env_level 1
//   g_local = 1
//   return g()
func TestResolve_NestedFunctionDoesNotSeeLaterOuterLocalAsUnresolved(t *testing.T) {
	// sanity: outer locals ARE visible to nested functions (env_level hop),
	// this just exercises a two-level nesting depth.
	innerUse := ident("g_local")
	inner := &ast.FuncStmt{Name: ident("g"), Body: block(&ast.ReturnStmt{Value: innerUse})}
	outerBody := block(
		inner,
		&ast.AssignStmt{Target: ident("g_local"), Value: &ast.LiteralExpr{Kind: ast.IntLit, Int: 1}},
		&ast.ReturnStmt{Value: &ast.CallExpr{Fn: ident("g")}},
	)
	outer := &ast.FuncStmt{Name: ident("f"), Body: outerBody}
	chunk := &ast.Chunk{Name: "m", Body: block(outer)}

	_, err := resolver.Resolve("m", chunk, noPrimitives)
	require.NoError(t, err)
	assert.Equal(t, ast.UserCoord, innerUse.Coord.Kind)
	assert.Equal(t, 1, innerUse.Coord.EnvLevel)
}
