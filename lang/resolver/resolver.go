// Package resolver walks a parsed AST, builds one Environment per
// function-like scope, and annotates every identifier use with its
// resolved (kind, index, env_level) coordinate. Scoping is Python-like:
// every name assigned anywhere in a function body is a local of that
// function, and if/while blocks do not introduce a new Environment.
package resolver

import (
	"fmt"

	"github.com/svmlang/svmc/lang/ast"
	"github.com/svmlang/svmc/lang/compileerr"
	"github.com/svmlang/svmc/lang/token"
)

// PrimitiveIndex resolves a name to its fixed primitive table index.
// Implemented by the vm package and passed in here to keep the resolver
// independent of the runtime.
type PrimitiveIndex func(name string) (index int, ok bool)

// EnvironmentMap is the result of a successful resolve: a mapping from
// function-like AST node (Chunk, FuncStmt, FuncExpr) to its Environment.
type EnvironmentMap map[ast.Node]*Environment

// Resolve walks chunk, builds its EnvironmentMap, and annotates every
// IdentExpr use with its Coordinate. filename is used only to build
// positions in returned errors. isPrimitive classifies names at the global
// scope that are not declared by the program itself.
//
// An error, if any, is a *compileerr.Error and is fatal for the whole
// program: resolution stops at the first problem found.
func Resolve(filename string, chunk *ast.Chunk, isPrimitive PrimitiveIndex) (EnvironmentMap, error) {
	r := &resolver{filename: filename, isPrimitive: isPrimitive, envs: make(EnvironmentMap)}
	env := newEnvironment(chunk, nil)
	r.envs[chunk] = env
	if err := r.declareBlock(env, chunk.Body); err != nil {
		return nil, err
	}
	if err := r.resolveBlock(env, chunk.Body); err != nil {
		return nil, err
	}
	return r.envs, nil
}

type resolver struct {
	filename string
	isPrimitive PrimitiveIndex
	envs EnvironmentMap
}

func (r *resolver) errorf(pos token.Pos, format string, args...interface{}) error {
	line, col := pos.LineCol()
	p := token.Position{Filename: r.filename, Line: line, Col: col}
	return compileerr.New(p, fmt.Sprintf(format, args...))
}

// ---- declare pass ----
//
// Collects every parameter and assignment target of a function body,
// including nested def/lambda names (declared here, not descended into),
// in source order.

func (r *resolver) declareParams(env *Environment, params []*ast.IdentExpr) error {
	for _, p := range params {
		if existing := env.Lookup(p.Name); existing != nil {
			return r.errorf(p.Pos, "duplicate parameter name: %s", p.Name)
		}
		env.declare(p.Name, Param, p)
	}
	return nil
}

func (r *resolver) declareBlock(env *Environment, b *ast.Block) error {
	for _, s := range b.Stmts {
		if err := r.declareStmt(env, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) declareStmt(env *Environment, stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.AssignStmt:
		return r.declareName(env, s.Target)

	case *ast.FuncStmt:
		return r.declareName(env, s.Name)

	case *ast.IfStmt:
		if err := r.declareBlock(env, s.Then); err != nil {
			return err
		}
		if s.Else != nil {
			return r.declareBlock(env, s.Else)
		}
		return nil

	case *ast.WhileStmt:
		return r.declareBlock(env, s.Body)

	case *ast.GlobalStmt:
		for _, n := range s.Names {
			if err := r.declareMarked(env, n, Global); err != nil {
				return err
			}
		}
		return nil

	case *ast.NonlocalStmt:
		for _, n := range s.Names {
			if err := r.declareMarked(env, n, Nonlocal); err != nil {
				return err
			}
		}
		return nil

	case *ast.ExprStmt, *ast.ReturnStmt, *ast.PassStmt:
		return nil

	default:
		return r.errorf(startOf(stmt), "unsupported statement in declare pass: %T", stmt)
	}
}

func (r *resolver) declareName(env *Environment, id *ast.IdentExpr) error {
	if existing := env.Lookup(id.Name); existing != nil {
		// A global/nonlocal-marked name stays marked: the assignment writes
		// through to the outer binding. Otherwise the first occurrence
		// already won the slot (tie-break rule).
		return nil
	}
	env.declare(id.Name, Local, id)
	return nil
}

func (r *resolver) declareMarked(env *Environment, id *ast.IdentExpr, kind Kind) error {
	if existing := env.Lookup(id.Name); existing != nil {
		if existing.Kind != kind {
			return r.errorf(id.Pos, "name declared both %s and %s in conflicting kinds: %s", kindWord(existing.Kind), kindWord(kind), id.Name)
		}
		return nil
	}
	env.declare(id.Name, kind, id)
	return nil
}

func kindWord(k Kind) string {
	switch k {
	case Param:
		return "parameter"
	case Local:
		return "local"
	case Global:
		return "global"
	case Nonlocal:
		return "nonlocal"
	default:
		return "unknown"
	}
}

// ---- resolve pass ----
//
// Walks the body, resolving every name use and recursing into nested
// function scopes.

func (r *resolver) resolveBlock(env *Environment, b *ast.Block) error {
	for _, s := range b.Stmts {
		if err := r.resolveStmt(env, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) resolveStmt(env *Environment, stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.AssignStmt:
		if err := r.resolveExpr(env, s.Value); err != nil {
			return err
		}
		return r.resolveUse(env, s.Target)

	case *ast.ExprStmt:
		return r.resolveExpr(env, s.Expr)

	case *ast.IfStmt:
		if err := r.resolveExpr(env, s.Cond); err != nil {
			return err
		}
		if err := r.resolveBlock(env, s.Then); err != nil {
			return err
		}
		if s.Else != nil {
			return r.resolveBlock(env, s.Else)
		}
		return nil

	case *ast.WhileStmt:
		if err := r.resolveExpr(env, s.Cond); err != nil {
			return err
		}
		return r.resolveBlock(env, s.Body)

	case *ast.ReturnStmt:
		if s.Value != nil {
			return r.resolveExpr(env, s.Value)
		}
		return nil

	case *ast.PassStmt, *ast.GlobalStmt:
		return nil

	case *ast.NonlocalStmt:
		for _, n := range s.Names {
			if err := r.resolveNonlocal(env, n); err != nil {
				return err
			}
		}
		return nil

	case *ast.FuncStmt:
		if err := r.resolveUse(env, s.Name); err != nil {
			return err
		}
		return r.resolveFunction(env, s, s.Params, s.Body)

	default:
		return r.errorf(startOf(stmt), "unsupported statement: %T", stmt)
	}
}

func (r *resolver) resolveExpr(env *Environment, expr ast.Expr) error {
	switch e := expr.(type) {
	case *ast.LiteralExpr:
		return nil

	case *ast.IdentExpr:
		return r.resolveUse(env, e)

	case *ast.BinOpExpr:
		if err := r.resolveExpr(env, e.Left); err != nil {
			return err
		}
		return r.resolveExpr(env, e.Right)

	case *ast.UnaryOpExpr:
		return r.resolveExpr(env, e.Right)

	case *ast.CondExpr:
		if err := r.resolveExpr(env, e.Cond); err != nil {
			return err
		}
		if err := r.resolveExpr(env, e.Then); err != nil {
			return err
		}
		return r.resolveExpr(env, e.Else)

	case *ast.CallExpr:
		if err := r.resolveExpr(env, e.Fn); err != nil {
			return err
		}
		for _, a := range e.Args {
			if err := r.resolveExpr(env, a); err != nil {
				return err
			}
		}
		return nil

	case *ast.FuncExpr:
		block := &ast.Block{Stmts: []ast.Stmt{&ast.ReturnStmt{Value: e.Body}}}
		return r.resolveFunction(env, e, e.Params, block)

	default:
		return r.errorf(startOf(expr), "unsupported expression: %T", expr)
	}
}

// resolveFunction builds the nested Environment for a def/lambda, declares
// its parameters and locals, then resolves its body against that new
// Environment (chained to env as parent).
func (r *resolver) resolveFunction(env *Environment, fn ast.Node, params []*ast.IdentExpr, body *ast.Block) error {
	child := newEnvironment(fn, env)
	r.envs[fn] = child
	if err := r.declareParams(child, params); err != nil {
		return err
	}
	if err := r.declareBlock(child, body); err != nil {
		return err
	}
	return r.resolveBlock(child, body)
}

// resolveUse attaches a Coordinate to id by searching innermost-outward
// from env, honoring global/nonlocal markers.
func (r *resolver) resolveUse(env *Environment, id *ast.IdentExpr) error {
	if marker := env.Lookup(id.Name); marker != nil && (marker.Kind == Global || marker.Kind == Nonlocal) {
		if marker.Kind == Global {
			return r.resolveAt(env.Global, env, id)
		}
		return r.resolveNonlocal(env, id)
	}

	level := 0
	for e := env; e != nil; e = e.Parent {
		if b := e.Lookup(id.Name); b != nil && b.Kind != Global && b.Kind != Nonlocal {
			id.Coord = ast.Coordinate{Kind: ast.UserCoord, Index: b.Index, EnvLevel: level}
			return nil
		}
		level++
	}
	return r.resolvePrimitive(id)
}

// resolveAt resolves id directly against target (the global scope, for a
// `global`-marked name), computing env_level as the hop count from from.
func (r *resolver) resolveAt(target, from *Environment, id *ast.IdentExpr) error {
	level := 0
	for e := from; e != nil; e = e.Parent {
		if e == target {
			if b := target.Lookup(id.Name); b != nil && b.Kind != Global && b.Kind != Nonlocal {
				id.Coord = ast.Coordinate{Kind: ast.UserCoord, Index: b.Index, EnvLevel: level}
				return nil
			}
			break
		}
		level++
	}
	return r.resolvePrimitive(id)
}

// resolveNonlocal walks outward starting at env.Parent, stopping at the
// first enclosing scope (never the chunk-level global scope) that declares
// the name as a plain Param/Local.
func (r *resolver) resolveNonlocal(env *Environment, id *ast.IdentExpr) error {
	level := 1
	for e := env.Parent; e != nil && e != env.Global; e = e.Parent {
		if b := e.Lookup(id.Name); b != nil && b.Kind != Global && b.Kind != Nonlocal {
			id.Coord = ast.Coordinate{Kind: ast.UserCoord, Index: b.Index, EnvLevel: level}
			return nil
		}
		level++
	}
	return r.errorf(id.Pos, "undefined name (nonlocal binding not found): %s", id.Name)
}

func (r *resolver) resolvePrimitive(id *ast.IdentExpr) error {
	if r.isPrimitive != nil {
		if idx, ok := r.isPrimitive(id.Name); ok {
			id.Coord = ast.Coordinate{Kind: ast.PrimitiveCoord, Index: idx}
			return nil
		}
	}
	return r.errorf(id.Pos, "undefined name: %s", id.Name)
}

func startOf(n ast.Node) token.Pos {
	start, _ := n.Span()
	return start
}
