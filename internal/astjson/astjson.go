// Package astjson decodes the JSON AST document format the svmc/svmi
// CLIs accept as "source" input.
//
// The surface-language tokenizer and parser are an external collaborator
// of this module, not something it implements. A CLI that genuinely reads
// the source language's text therefore cannot exist inside this core
// without reimplementing that front end. This package is the seam such a
// front end would plug into: it is the minimal decoder for the tree an
// external tokenizer/parser would have produced, expressed as JSON
// instead of the language's own surface syntax, so `svmc compile` and
// `svmi interpretsource` have a genuine, parseable input format to
// demonstrate the pipeline end to end.
package astjson

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/svmlang/svmc/lang/ast"
)

// node is the generic JSON shape every AST node decodes through: a "kind"
// discriminator plus kind-specific fields, mirroring the tagged-union
// shape lang/ast.Node itself models in Go.
type node struct {
	Kind string `json:"kind"`

	// literal
	Int   *int64   `json:"int,omitempty"`
	Float *float64 `json:"float,omitempty"`
	Bool  *bool    `json:"bool,omitempty"`
	Str   *string  `json:"str,omitempty"`

	// ident
	Name string `json:"name,omitempty"`

	// binop/unop
	Op string `json:"op,omitempty"`

	Left  *node `json:"left,omitempty"`
	Right *node `json:"right,omitempty"`

	// cond
	Cond *node `json:"cond,omitempty"`
	Then *node `json:"then,omitempty"`
	Else *node `json:"else,omitempty"`

	// call
	Fn   *node  `json:"fn,omitempty"`
	Args []node `json:"args,omitempty"`

	// func (def/lambda)
	Params []string `json:"params,omitempty"`
	Body   *node    `json:"body,omitempty"` // single expr for lambda

	// statements
	Target *node  `json:"target,omitempty"`
	Value  *node  `json:"value,omitempty"`
	Stmts  []node `json:"stmts,omitempty"`
	// if (thenBlock/elseBlock); global/nonlocal (names)
	ThenBlock *node  `json:"thenBlock,omitempty"`
	ElseBlock *node  `json:"elseBlock,omitempty"`
	Names     []string `json:"names,omitempty"`
}

// Decode parses r as a JSON document shaped like:
//
//	{"body": {"kind": "block", "stmts": [...]}}
//
// into a *ast.Chunk ready for resolver.Resolve. Any other top-level key is
// rejected. filename is recorded on the chunk's Name for diagnostics only.
func Decode(r io.Reader, filename string) (*ast.Chunk, error) {
	var doc struct {
		Body node `json:"body"`
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("astjson: %w", err)
	}
	block, err := decodeBlock(&doc.Body)
	if err != nil {
		return nil, err
	}
	return &ast.Chunk{Name: filename, Body: block}, nil
}

func decodeBlock(n *node) (*ast.Block, error) {
	if n == nil {
		return &ast.Block{}, nil
	}
	if n.Kind != "" && n.Kind != "block" {
		return nil, fmt.Errorf("astjson: expected block, got kind %q", n.Kind)
	}
	stmts := make([]ast.Stmt, 0, len(n.Stmts))
	for i := range n.Stmts {
		s, err := decodeStmt(&n.Stmts[i])
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return &ast.Block{Stmts: stmts}, nil
}

func decodeIdent(n *node) (*ast.IdentExpr, error) {
	if n == nil {
		return nil, fmt.Errorf("astjson: missing identifier")
	}
	if n.Name == "" {
		return nil, fmt.Errorf("astjson: identifier node missing \"name\"")
	}
	return &ast.IdentExpr{Name: n.Name}, nil
}

func decodeParams(names []string) []*ast.IdentExpr {
	out := make([]*ast.IdentExpr, len(names))
	for i, n := range names {
		out[i] = &ast.IdentExpr{Name: n}
	}
	return out
}

func decodeNames(names []string) []*ast.IdentExpr {
	return decodeParams(names)
}

func decodeStmt(n *node) (ast.Stmt, error) {
	switch n.Kind {
	case "assign":
		target, err := decodeIdent(n.Target)
		if err != nil {
			return nil, err
		}
		value, err := decodeExpr(n.Value)
		if err != nil {
			return nil, err
		}
		return &ast.AssignStmt{Target: target, Value: value}, nil

	case "expr":
		e, err := decodeExpr(n.Value)
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{Expr: e}, nil

	case "if":
		cond, err := decodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		thenBlk, err := decodeBlock(n.ThenBlock)
		if err != nil {
			return nil, err
		}
		var elseBlk *ast.Block
		if n.ElseBlock != nil {
			elseBlk, err = decodeBlock(n.ElseBlock)
			if err != nil {
				return nil, err
			}
		}
		return &ast.IfStmt{Cond: cond, Then: thenBlk, Else: elseBlk}, nil

	case "while":
		cond, err := decodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		body, err := decodeBlock(n.Body)
		if err != nil {
			return nil, err
		}
		return &ast.WhileStmt{Cond: cond, Body: body}, nil

	case "return":
		if n.Value == nil {
			return &ast.ReturnStmt{}, nil
		}
		v, err := decodeExpr(n.Value)
		if err != nil {
			return nil, err
		}
		return &ast.ReturnStmt{Value: v}, nil

	case "pass":
		return &ast.PassStmt{}, nil

	case "def":
		name, err := decodeIdent(n.Target)
		if err != nil {
			return nil, err
		}
		body, err := decodeBlock(n.Body)
		if err != nil {
			return nil, err
		}
		return &ast.FuncStmt{Name: name, Params: decodeParams(n.Params), Body: body}, nil

	case "global":
		return &ast.GlobalStmt{Names: decodeNames(n.Names)}, nil

	case "nonlocal":
		return &ast.NonlocalStmt{Names: decodeNames(n.Names)}, nil

	default:
		return nil, fmt.Errorf("astjson: unsupported statement kind %q", n.Kind)
	}
}

var binOps = map[string]ast.BinOp{
	"+": ast.OpAdd, "-": ast.OpSub, "*": ast.OpMul, "/": ast.OpDiv, "%": ast.OpMod,
	"<": ast.OpLt, ">": ast.OpGt, "<=": ast.OpLe, ">=": ast.OpGe,
	"==": ast.OpEq, "!=": ast.OpNeq, "and": ast.OpAnd, "or": ast.OpOr,
}

func decodeExpr(n *node) (ast.Expr, error) {
	if n == nil {
		return nil, fmt.Errorf("astjson: missing expression")
	}
	switch n.Kind {
	case "int":
		if n.Int == nil {
			return nil, fmt.Errorf("astjson: int literal missing \"int\"")
		}
		return &ast.LiteralExpr{Kind: ast.IntLit, Int: *n.Int}, nil
	case "float":
		if n.Float == nil {
			return nil, fmt.Errorf("astjson: float literal missing \"float\"")
		}
		return &ast.LiteralExpr{Kind: ast.FloatLit, Float: *n.Float}, nil
	case "bool":
		if n.Bool == nil {
			return nil, fmt.Errorf("astjson: bool literal missing \"bool\"")
		}
		return &ast.LiteralExpr{Kind: ast.BoolLit, Bool: *n.Bool}, nil
	case "str":
		if n.Str == nil {
			return nil, fmt.Errorf("astjson: string literal missing \"str\"")
		}
		return &ast.LiteralExpr{Kind: ast.StringLit, Str: *n.Str}, nil
	case "null":
		return &ast.LiteralExpr{Kind: ast.NullLit}, nil
	case "undefined":
		return &ast.LiteralExpr{Kind: ast.UndefinedLit}, nil

	case "ident":
		return decodeIdent(n)

	case "binop":
		op, ok := binOps[n.Op]
		if !ok {
			return nil, fmt.Errorf("astjson: unknown binary operator %q", n.Op)
		}
		l, err := decodeExpr(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return &ast.BinOpExpr{Op: op, Left: l, Right: r}, nil

	case "neg", "not":
		r, err := decodeExpr(n.Right)
		if err != nil {
			return nil, err
		}
		op := ast.OpNeg
		if n.Kind == "not" {
			op = ast.OpNot
		}
		return &ast.UnaryOpExpr{Op: op, Right: r}, nil

	case "cond":
		cond, err := decodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := decodeExpr(n.Then)
		if err != nil {
			return nil, err
		}
		els, err := decodeExpr(n.Else)
		if err != nil {
			return nil, err
		}
		return &ast.CondExpr{Cond: cond, Then: then, Else: els}, nil

	case "call":
		fn, err := decodeExpr(n.Fn)
		if err != nil {
			return nil, err
		}
		args := make([]ast.Expr, 0, len(n.Args))
		for i := range n.Args {
			a, err := decodeExpr(&n.Args[i])
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		return &ast.CallExpr{Fn: fn, Args: args}, nil

	case "lambda":
		body, err := decodeExpr(n.Body)
		if err != nil {
			return nil, err
		}
		return &ast.FuncExpr{Params: decodeParams(n.Params), Body: body}, nil

	default:
		return nil, fmt.Errorf("astjson: unsupported expression kind %q", n.Kind)
	}
}
