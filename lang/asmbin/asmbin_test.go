package asmbin_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svmlang/svmc/lang/asmbin"
	"github.com/svmlang/svmc/lang/compiler"
)

// addProgram builds a tiny two-function program equivalent to:
//
//	function add(a, b): return a + b
//	<entry>: return add(5, 3)
func addProgram() *compiler.SVMProgram {
	add := &compiler.SVMFunction{
		Name:     "add",
		MaxStack: 2,
		EnvSize:  2,
		NumArgs:  2,
		Code: []compiler.Instruction{
			{Op: compiler.LDLG, Arg1: 0},
			{Op: compiler.LDLG, Arg1: 1},
			{Op: compiler.ADDG},
			{Op: compiler.RETG},
		},
	}
	entry := &compiler.SVMFunction{
		Name:     "<entry>",
		MaxStack: 3,
		EnvSize:  0,
		NumArgs:  0,
		Code: []compiler.Instruction{
			{Op: compiler.NEWC, Arg1: 0},
			{Op: compiler.LGCI, Arg1: 5},
			{Op: compiler.LGCI, Arg1: 3},
			{Op: compiler.CALL, Arg1: 2},
			{Op: compiler.RETG},
		},
	}
	return &compiler.SVMProgram{EntryIndex: 1, Functions: []*compiler.SVMFunction{add, entry}}
}

func TestAssembleHeader(t *testing.T) {
	prog := addProgram()
	out, err := asmbin.Assemble(prog)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(out), 16)

	assert.Equal(t, asmbin.Magic, binary.LittleEndian.Uint32(out[0:4]))
	assert.Equal(t, asmbin.MajorVersion, binary.LittleEndian.Uint16(out[4:6]))
	assert.Equal(t, asmbin.MinorVersion, binary.LittleEndian.Uint16(out[6:8]))
}

func TestAssembleRejectsReservedJMP(t *testing.T) {
	prog := addProgram()
	prog.Functions[1].Code = append(prog.Functions[1].Code, compiler.Instruction{Op: compiler.JMP})
	_, err := asmbin.Assemble(prog)
	require.Error(t, err)
	var asmErr *asmbin.Error
	require.ErrorAs(t, err, &asmErr)
	assert.Equal(t, asmbin.AssembleError, asmErr.Kind)
}

func TestAssembleRejectsOutOfRangeBranch(t *testing.T) {
	prog := addProgram()
	prog.Functions[1].Code[3] = compiler.Instruction{Op: compiler.BR, Arg1: 100}
	_, err := asmbin.Assemble(prog)
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	prog := addProgram()
	out, err := asmbin.Assemble(prog)
	require.NoError(t, err)

	got, err := asmbin.Disassemble(out)
	require.NoError(t, err)

	require.Len(t, got.Functions, len(prog.Functions))
	entryFn := got.Functions[got.EntryIndex]
	require.Len(t, entryFn.Code, len(prog.Functions[prog.EntryIndex].Code))
	for i, ins := range prog.Functions[prog.EntryIndex].Code {
		assert.Equal(t, ins.Op, entryFn.Code[i].Op, "instruction %d opcode", i)
	}

	addIdx := entryFn.Code[0].Arg1 // NEWC operand resolved to the new function table index
	addFn := got.Functions[addIdx]
	assert.Equal(t, prog.Functions[0].MaxStack, addFn.MaxStack)
	assert.Equal(t, prog.Functions[0].EnvSize, addFn.EnvSize)
	assert.Equal(t, prog.Functions[0].NumArgs, addFn.NumArgs)
	require.Len(t, addFn.Code, len(prog.Functions[0].Code))
	for i, ins := range prog.Functions[0].Code {
		assert.Equal(t, ins.Op, addFn.Code[i].Op, "add instruction %d opcode", i)
		assert.Equal(t, ins.Arg1, addFn.Code[i].Arg1, "add instruction %d arg1", i)
	}
}

func TestRoundTripBranch(t *testing.T) {
	// if true: return 1 else: return 0 -- exercises BR/BRF byte-delta
	// round-tripping back to the same instruction-index deltas.
	fn := &compiler.SVMFunction{
		Name:     "<entry>",
		MaxStack: 1,
		NumArgs:  0,
		Code: []compiler.Instruction{
			{Op: compiler.LGCB1},
			{Op: compiler.BRF, Arg1: 3}, // -> LGCI 0 (index 4)
			{Op: compiler.LGCI, Arg1: 1},
			{Op: compiler.BR, Arg1: 2}, // -> RETG (index 5)
			{Op: compiler.LGCI, Arg1: 0},
			{Op: compiler.RETG},
		},
	}
	prog := &compiler.SVMProgram{EntryIndex: 0, Functions: []*compiler.SVMFunction{fn}}

	out, err := asmbin.Assemble(prog)
	require.NoError(t, err)
	got, err := asmbin.Disassemble(out)
	require.NoError(t, err)

	require.Len(t, got.Functions, 1)
	for i, ins := range fn.Code {
		assert.Equal(t, ins.Op, got.Functions[0].Code[i].Op, "instruction %d", i)
		assert.Equal(t, ins.Arg1, got.Functions[0].Code[i].Arg1, "instruction %d arg1", i)
	}
}

func TestDisassembleRejectsBadMagic(t *testing.T) {
	_, err := asmbin.Disassemble([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	require.Error(t, err)
	var asmErr *asmbin.Error
	require.ErrorAs(t, err, &asmErr)
	assert.Equal(t, asmbin.DisassembleError, asmErr.Kind)
}

func TestDisassembleRejectsTruncated(t *testing.T) {
	_, err := asmbin.Disassemble([]byte{1, 2, 3})
	require.Error(t, err)
}
