package resolver

import "github.com/svmlang/svmc/lang/ast"

// Kind classifies how a name came to be declared in an Environment.
type Kind uint8

const (
	// Param is a function parameter; parameters occupy slots
	// 0..num_args-1.
	Param Kind = iota
	// Local is any other name assigned within the function (including
	// nested def/lambda names, which are declared but not descended into).
	Local
	// Global marks a name declared `global` in this scope: it is not
	// allocated a slot here; lookups must walk to the chunk-level scope.
	Global
	// Nonlocal marks a name declared `nonlocal` in this scope: it is not
	// allocated a slot here; lookups start at the enclosing scope.
	Nonlocal
)

// Binding records one declared name within an Environment.
type Binding struct {
	Name string
	Kind Kind
	Index int // slot index, meaningful only for Param/Local
	Decl *ast.IdentExpr
}

// Environment is a node in the lexical-scope tree: one per chunk, `def`,
// or lambda. if/while bodies share their enclosing function's Environment,
// so the tree has exactly one Environment per function-like AST node.
type Environment struct {
	Parent *Environment
	Global *Environment // the distinguished global root (possibly itself)
	Fn ast.Node // the Chunk, FuncStmt, or FuncExpr this environment belongs to

	names []*Binding // in declaration order; slot index == position among Param/Local entries
	byName map[string]*Binding
}

func newEnvironment(fn ast.Node, parent *Environment) *Environment {
	env := &Environment{Fn: fn, Parent: parent, byName: make(map[string]*Binding)}
	if parent == nil {
		env.Global = env
	} else {
		env.Global = parent.Global
	}
	return env
}

// Lookup returns the binding declared for name directly in this
// Environment (Param, Local, Global, or Nonlocal kind), or nil.
func (e *Environment) Lookup(name string) *Binding {
	return e.byName[name]
}

// Size returns the number of Param/Local slots allocated in this
// Environment, which becomes the env_size of the compiled function.
func (e *Environment) Size() int {
	n := 0
	for _, b := range e.names {
		if b.Kind == Param || b.Kind == Local {
			n++
		}
	}
	return n
}

// Names returns the bindings in declaration order.
func (e *Environment) Names() []*Binding { return e.names }

func (e *Environment) declare(name string, kind Kind, decl *ast.IdentExpr) *Binding {
	if b, ok := e.byName[name]; ok {
		return b
	}
	b := &Binding{Name: name, Kind: kind, Decl: decl}
	if kind == Param || kind == Local {
		b.Index = e.Size()
	}
	e.names = append(e.names, b)
	e.byName[name] = b
	return b
}
