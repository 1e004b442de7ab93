package compiler

import "github.com/svmlang/svmc/lang/token"

// Instruction is the in-memory form of one bytecode instruction: an
// opcode plus up to two operands. Arg1/Arg2 carry whatever the opcode
// needs before assembly resolves them to their final on-wire encoding (a
// slot index, an env_level hop count, an n_args count, or, for LGCS/NEWC,
// an index into the in-memory string/function table that the assembler
// later turns into a byte offset).
type Instruction struct {
	Op Opcode
	Arg1 int32
	Arg2 int32

	// Float carries LGCF64's f64 operand; unused by every other opcode.
	// Kept as a separate field rather than reinterpreting Arg1/Arg2's bits,
	// since those stay plain indices/counts for every other instruction.
	Float float64

	// Pos is the source position this instruction was emitted for, used
	// only to enrich RuntimeError messages; the zero Pos means the AST node it
	// was emitted for carried no position (e.g. a tree built without one).
	Pos token.Pos
}

// SVMFunction is one compiled function: its peak operand-stack depth,
// environment slot count, parameter count, and instruction stream. It is
// the unit the assembler serializes and the interpreter executes.
type SVMFunction struct {
	Name string // for diagnostics and textual disassembly only
	MaxStack int
	EnvSize int
	NumArgs int
	Code []Instruction

	// Instrumentation, populated by the compiler's call-graph pass.
	// AssignsOuterScope comes from the emitter: it is true iff the body
	// contains an STPG. Such a function is not pure, so NeedsMemoization
	// is never set for it.
	CalledNames map[string]bool
	AssignsOuterScope bool
	IsRecursive bool
	NeedsMemoization bool
}

// SVMProgram is a compiled program: a flat, indexed function table with
// NEWC referring into it, plus the index of the entry function.
type SVMProgram struct {
	EntryIndex int
	Functions []*SVMFunction
	// Strings is the deduplicated string constant pool referenced by LGCS
	// (by index, pre-assembly). Read-only once assembled.
	Strings []string
}
