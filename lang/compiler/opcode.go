// Package compiler implements the opcode table, the per-function
// instruction builder, and the AST-to-SVMProgram compiler of the SVM
// pipeline. The three live in one package because the opcode table is a
// single shared source of truth consulted by both the builder (for
// max_stack) and the assembler (for wire sizes).
package compiler

import "fmt"

// Opcode is the one-byte instruction tag.
type Opcode uint8

const ( //nolint:revive
	// load constant (push 1)
	LGCI Opcode = iota // i32 operand
	LGCF64 // f64 operand
	LGCB0 // push false
	LGCB1 // push true
	LGCU // push undefined
	LGCN // push null
	LGCS // u32 string_ref operand

	// variable access
	LDLG // slot u8 (push 1)
	STLG // slot u8 (pop 1)
	LDPG // slot, env_level u8,u8 (push 1)
	STPG // slot, env_level u8,u8 (pop 1)

	// arithmetic / logic, binary (pop 2 push 1)
	ADDG
	SUBG
	MULG
	DIVG
	MODG
	LTG
	GTG
	LEG
	GEG
	EQG
	NEQG

	// unary (pop 1 push 1)
	NOTG
	NEGG

	// stack
	POPG // pop 1
	DUP // push 1

	// control flow: rel is an instruction-index delta from the branch
	// instruction's own index (target = index + rel).
	BR // unconditional
	BRT // pop 1, branch if truthy
	BRF // pop 1, branch if falsy

	// function
	NEWC // func_index u32 (push 1 closure)
	CALL // n_args u8
	CALLT // n_args u8 (tail)
	CALLP // prim_index, n_args u8,u8
	CALLTP // prim_index, n_args u8,u8 (tail primitive)
	RETG // return top of stack
	RETU // return undefined
	RETN // return null

	// array
	NEWA // pop size, push array
	LDAG // pop array, index; push elem
	STAG // pop array, index, value; push nothing

	// JMP is reserved and must never be emitted; the
	// assembler rejects it unconditionally.
	JMP

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	LGCI: "lgci",
	LGCF64: "lgcf64",
	LGCB0: "lgcb0",
	LGCB1: "lgcb1",
	LGCU: "lgcu",
	LGCN: "lgcn",
	LGCS: "lgcs",
	LDLG: "ldlg",
	STLG: "stlg",
	LDPG: "ldpg",
	STPG: "stpg",
	ADDG: "addg",
	SUBG: "subg",
	MULG: "mulg",
	DIVG: "divg",
	MODG: "modg",
	LTG: "ltg",
	GTG: "gtg",
	LEG: "leg",
	GEG: "geg",
	EQG: "eqg",
	NEQG: "neqg",
	NOTG: "notg",
	NEGG: "negg",
	POPG: "popg",
	DUP: "dup",
	BR: "br",
	BRT: "brt",
	BRF: "brf",
	NEWC: "newc",
	CALL: "call",
	CALLT: "callt",
	CALLP: "callp",
	CALLTP: "calltp",
	RETG: "retg",
	RETU: "retu",
	RETN: "retn",
	NEWA: "newa",
	LDAG: "ldag",
	STAG: "stag",
	JMP: "jmp",
}

var reverseLookupOpcode = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, s := range opcodeNames {
		if s != "" {
			m[s] = Opcode(op)
		}
	}
	return m
}()

// LookupOpcode returns the Opcode whose lowercase mnemonic (as printed by
// String) is s.
func LookupOpcode(s string) (Opcode, bool) {
	op, ok := reverseLookupOpcode[s]
	return op, ok
}

func (op Opcode) String() string {
	if op < opcodeCount {
		if name := opcodeNames[op]; name != "" {
			return name
		}
	}
	return fmt.Sprintf("illegal op (%d)", op)
}

// Valid reports whether op is a known, non-reserved opcode.
func (op Opcode) Valid() bool {
	return op < opcodeCount && opcodeNames[op] != "" && op != JMP
}

// variableStackEffect marks an opcode whose Δstack depends on its operand
// (the n_args of a call family opcode); the caller computes the true
// effect via StackEffect.
const variableStackEffect = 1 << 6

// stackEffect is the single source of truth for per-opcode net
// operand-stack change, consulted by the builder for max_stack tracking.
var stackEffect = [opcodeCount]int8{
	LGCI: +1,
	LGCF64: +1,
	LGCB0: +1,
	LGCB1: +1,
	LGCU: +1,
	LGCN: +1,
	LGCS: +1,
	LDLG: +1,
	STLG: -1,
	LDPG: +1,
	STPG: -1,
	ADDG: -1,
	SUBG: -1,
	MULG: -1,
	DIVG: -1,
	MODG: -1,
	LTG: -1,
	GTG: -1,
	LEG: -1,
	GEG: -1,
	EQG: -1,
	NEQG: -1,
	NOTG: 0,
	NEGG: 0,
	POPG: -1,
	DUP: +1,
	BR: 0,
	BRT: -1,
	BRF: -1,
	NEWC: +1,
	CALL: variableStackEffect,
	CALLT: variableStackEffect,
	CALLP: variableStackEffect,
	CALLTP: variableStackEffect,
	RETG: -1,
	RETU: 0,
	RETN: 0,
	NEWA: 0,
	LDAG: -1,
	STAG: -3,
}

// StackEffect returns the Δstack for op given nArgs, resolving the call
// family's variable effect. For non-call opcodes nArgs is ignored.
func StackEffect(op Opcode, nArgs int) int {
	switch op {
	case CALL, CALLP:
		// pop nArgs (+1 closure for CALL), push 1 result.
		if op == CALL {
			return -nArgs
		}
		return 1 - nArgs
	case CALLT, CALLTP:
		// folds the implicit RETG this tail call replaces: no value survives
		// onto the (discarded) current operand stack.
		if op == CALLT {
			return -(nArgs + 1)
		}
		return -nArgs
	default:
		return int(stackEffect[op])
	}
}

// EncodedSize returns the on-wire byte size of op's encoding: one opcode
// byte plus its fixed-width operand(s). Consulted by the assembler and
// disassembler (lang/asmbin) to lay out and scan instruction streams.
func EncodedSize(op Opcode) int {
	switch op {
	case LGCI, LGCS, BR, BRT, BRF, NEWC:
		return 1 + 4
	case LGCF64:
		return 1 + 8
	case LDLG, STLG, CALL, CALLT:
		return 1 + 1
	case LDPG, STPG, CALLP, CALLTP:
		return 1 + 1 + 1
	default:
		return 1
	}
}

// IsCall reports whether op is one of the four call-family opcodes.
func IsCall(op Opcode) bool {
	switch op {
	case CALL, CALLT, CALLP, CALLTP:
		return true
	default:
		return false
	}
}

// IsTail reports whether op is a tail-call variant.
func IsTail(op Opcode) bool {
	return op == CALLT || op == CALLTP
}

// IsReturn reports whether op can legally be the last instruction in a
// function's code: the three RET* opcodes, plus CALLT/CALLTP, which fold
// their caller-side return into the tail call itself (the interpreter
// reuses the current frame instead of falling through to a RET*).
func IsReturn(op Opcode) bool {
	return op == RETG || op == RETU || op == RETN || IsTail(op)
}

// IsBranch reports whether op is one of BR/BRT/BRF.
func IsBranch(op Opcode) bool {
	return op == BR || op == BRT || op == BRF
}
