package compiler

import (
	"fmt"

	"github.com/svmlang/svmc/lang/ast"
	"github.com/svmlang/svmc/lang/token"
)

// Label identifies a branch target allocated by a Builder. Label ids are
// allocated from 0 upward; NoLabel (-1) is the "allocate a fresh one"
// sentinel accepted by EmitJump.
type Label int

// NoLabel tells EmitJump to allocate a fresh label instead of targeting an
// existing one.
const NoLabel Label = -1

type fixup struct {
	insnIndex int
	label Label
}

// childRef records a NEWC instruction whose function-table index can only
// be known once the whole builder tree has been collected in definition
// order.
type childRef struct {
	insnIndex int
	child *Builder
}

// Builder is the per-function instruction accumulator: it tracks emitted
// instructions, current/max operand-stack depth, label/fixup bookkeeping,
// and the tree of nested function builders the compiler links into a flat
// SVMProgram.Functions table.
type Builder struct {
	Name string
	NumArgs int

	// FnNode is the ast.Chunk/FuncStmt/FuncExpr this builder compiles,
	// used by the compiler to look up the function's Environment (and so
	// its env_size) after the whole tree is built.
	FnNode ast.Node

	parent *Builder
	children []*Builder
	childRefs []childRef

	code []Instruction
	currentStack int
	maxStack int

	labels map[Label]int
	nextLabel Label
	fixups []fixup

	// CalledNames records every user-function name this builder's body
	// calls, consulted by the call-graph pass (instrument.go) after all
	// functions are built.
	CalledNames map[string]bool

	// AssignsOuterScope records that this builder's body stores through a
	// parent environment (STPG, including global/nonlocal-targeted
	// assignments). A function that writes an outer scope is not pure, so
	// the instrumentation pass must never flag it for memoization: a cache
	// hit would elide the side effect.
	AssignsOuterScope bool
}

// NewBuilder creates a root (entry) or detached Builder. Nested function
// builders are produced via CreateChild instead, so that the compiler can
// later collect the whole tree in pre-order (definition) order.
func NewBuilder(name string, numArgs int) *Builder {
	return &Builder{
		Name: name,
		NumArgs: numArgs,
		labels: make(map[Label]int),
		CalledNames: make(map[string]bool),
	}
}

// CreateChild produces a builder for a nested def/lambda and links it into
// this builder's tree. fnNode is the FuncStmt or FuncExpr the child
// compiles, used later to look up its Environment.
func (b *Builder) CreateChild(name string, numArgs int, fnNode ast.Node) *Builder {
	child := NewBuilder(name, numArgs)
	child.FnNode = fnNode
	child.parent = b
	b.children = append(b.children, child)
	return child
}

// EmitNewClosure emits NEWC for child, deferring the function-table index
// until the whole tree is collected; the compiler patches it via
// PatchChildRefs once indices are known.
func (b *Builder) EmitNewClosure(child *Builder, pos token.Pos) int {
	idx := b.emitRaw(NEWC, 0, 0, pos, StackEffect(NEWC, 0))
	b.childRefs = append(b.childRefs, childRef{insnIndex: idx, child: child})
	return idx
}

// PatchChildRefs rewrites every NEWC emitted by this builder (not its
// descendants) to the function-table index indices assigns its target
// builder. Must run before Build, since Build consumes b.code's final
// contents.
func (b *Builder) PatchChildRefs(indices map[*Builder]int) {
	for _, cr := range b.childRefs {
		b.code[cr.insnIndex].Arg1 = int32(indices[cr.child])
	}
}

// Walk visits b and every descendant builder in pre-order, which is
// definition order for nested functions.
func (b *Builder) Walk(visit func(*Builder)) {
	visit(b)
	for _, c := range b.children {
		c.Walk(visit)
	}
}

// RecordCall notes that this function's body calls the user function
// named name.
// Primitive calls are not recorded: only user-function recursion is
// eligible for memoization.
func (b *Builder) RecordCall(name string) {
	b.CalledNames[name] = true
}

// CurrentStack returns the operand-stack depth at the current emission
// point.
func (b *Builder) CurrentStack() int { return b.currentStack }

// SetStack overrides the tracked operand-stack depth at the current
// emission point. The compiler calls it when marking the else-target of a
// conditional: both arms must be accounted from the depth at the branch,
// not summed in emission order.
func (b *Builder) SetStack(depth int) { b.currentStack = depth }

// Len returns the number of instructions emitted so far.
func (b *Builder) Len() int { return len(b.code) }

func (b *Builder) emitRaw(op Opcode, arg1, arg2 int32, pos token.Pos, delta int) int {
	idx := len(b.code)
	b.code = append(b.code, Instruction{Op: op, Arg1: arg1, Arg2: arg2, Pos: pos})
	b.currentStack += delta
	if b.currentStack > b.maxStack {
		b.maxStack = b.currentStack
	}
	return idx
}

// EmitNullary emits an opcode with no operand (e.g. ADDG, POPG, DUP, RETU).
func (b *Builder) EmitNullary(op Opcode, pos token.Pos) int {
	return b.emitRaw(op, 0, 0, pos, StackEffect(op, 0))
}

// EmitUnary emits an opcode with a single operand (e.g. LGCI, LDLG, NEWC).
func (b *Builder) EmitUnary(op Opcode, arg1 int32, pos token.Pos) int {
	return b.emitRaw(op, arg1, 0, pos, StackEffect(op, 0))
}

// EmitBinary emits an opcode with two operands (e.g. LDPG slot, env_level).
func (b *Builder) EmitBinary(op Opcode, arg1, arg2 int32, pos token.Pos) int {
	return b.emitRaw(op, arg1, arg2, pos, StackEffect(op, 0))
}

// EmitFloat emits LGCF64, whose f64 operand doesn't fit Arg1/Arg2.
func (b *Builder) EmitFloat(v float64, pos token.Pos) int {
	idx := b.emitRaw(LGCF64, 0, 0, pos, StackEffect(LGCF64, 0))
	b.code[idx].Float = v
	return idx
}

// EmitCall emits one of the four call-family opcodes, whose Δstack is
// computed from nArgs.
func (b *Builder) EmitCall(op Opcode, primIndex, nArgs int, pos token.Pos) int {
	var arg1, arg2 int32
	switch op {
	case CALL, CALLT:
		arg1 = int32(nArgs)
	case CALLP, CALLTP:
		arg1 = int32(primIndex)
		arg2 = int32(nArgs)
	default:
		panic(fmt.Sprintf("EmitCall: not a call opcode: %s", op))
	}
	return b.emitRaw(op, arg1, arg2, pos, StackEffect(op, nArgs))
}

// NewLabel allocates a label id without marking its position.
func (b *Builder) NewLabel() Label {
	id := b.nextLabel
	b.nextLabel++
	return id
}

// MarkLabel allocates a fresh label and marks it at the current
// instruction position in one step, the common case for a loop-start or
// similar backward-jump target.
func (b *Builder) MarkLabel() Label {
	id := b.NewLabel()
	b.labels[id] = len(b.code)
	return id
}

// Mark records that id refers to the current instruction position,
// resolving a forward label allocated earlier by EmitJump(op, NoLabel).
func (b *Builder) Mark(id Label) {
	b.labels[id] = len(b.code)
}

// EmitJump emits a branch instruction (BR/BRT/BRF) with a placeholder
// operand, recorded in the fixup list for Build to resolve. If id is
// NoLabel, a fresh label is allocated and returned; callers mark it later
// with Mark. Forward and backward jumps both work.
func (b *Builder) EmitJump(op Opcode, id Label, pos token.Pos) Label {
	if id == NoLabel {
		id = b.NewLabel()
	}
	idx := b.emitRaw(op, 0, 0, pos, StackEffect(op, 0))
	b.fixups = append(b.fixups, fixup{insnIndex: idx, label: id})
	return id
}

// Build resolves every branch fixup to its target instruction's absolute
// index and enforces the builder's invariants: every referenced label was
// marked, and the function ends with a RET* on its only fall-through path.
//
// Branch targets are left as absolute indices here, not yet the
// instruction-relative offsets the interpreter consumes: the dead-code
// peephole runs against absolute targets so it can remap them when it
// deletes instructions, and only the final RelativizeBranches pass converts
// them to their relative form.
func (b *Builder) Build(envSize int) (*SVMFunction, error) {
	for _, fx := range b.fixups {
		target, ok := b.labels[fx.label]
		if !ok {
			return nil, fmt.Errorf("function %q: label %d referenced by instruction %d was never marked", b.Name, fx.label, fx.insnIndex)
		}
		b.code[fx.insnIndex].Arg1 = int32(target)
	}
	if len(b.code) == 0 {
		return nil, fmt.Errorf("function %q: empty instruction stream", b.Name)
	}
	if last := b.code[len(b.code)-1]; !IsReturn(last.Op) {
		return nil, fmt.Errorf("function %q: last instruction is %s, not a RET*", b.Name, last.Op)
	}
	if b.currentStack != 0 {
		return nil, fmt.Errorf("function %q: operand stack depth %d at end of code, want 0", b.Name, b.currentStack)
	}
	if envSize < b.NumArgs {
		return nil, fmt.Errorf("function %q: env_size %d smaller than num_args %d", b.Name, envSize, b.NumArgs)
	}
	return &SVMFunction{
		Name: b.Name,
		MaxStack: b.maxStack,
		EnvSize: envSize,
		NumArgs: b.NumArgs,
		Code: b.code,
		CalledNames: b.CalledNames,
		AssignsOuterScope: b.AssignsOuterScope,
	}, nil
}

// RelativizeBranches converts every BR/BRT/BRF operand in fn.Code from an
// absolute target instruction index to the instruction-relative offset the
// interpreter consumes (relative to the branch's own index: Arg1 becomes
// target - index).
// It runs last, after Build and after the peephole pass, since peephole
// deletion shifts absolute indices but is simplest to reason about before
// they become relative.
func RelativizeBranches(fn *SVMFunction) {
	for i := range fn.Code {
		if IsBranch(fn.Code[i].Op) {
			fn.Code[i].Arg1 -= int32(i)
		}
	}
}
