package asmbin

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/svmlang/svmc/lang/compiler"
)

// Assemble serialises prog into the binary container: a 16-byte header, a
// deduplicated string table, then every function 4-byte aligned. Every
// offset a later instruction needs (a string's byte offset, a function's
// byte offset) is computed by a sizing pass before any instruction bytes
// are written, so there is nothing left to patch once writing begins;
// every encoded size is a static function of the opcode, which makes the
// sizing pass exact.
func Assemble(prog *compiler.SVMProgram) ([]byte, error) {
	if prog == nil || len(prog.Functions) == 0 {
		return nil, newError(AssembleError, "program has no functions")
	}
	if prog.EntryIndex < 0 || prog.EntryIndex >= len(prog.Functions) {
		return nil, newError(AssembleError, "entry index %d out of range [0,%d)", prog.EntryIndex, len(prog.Functions))
	}

	stringOffsets := make([]uint32, len(prog.Strings))
	offset := uint32(headerSize)
	for i, s := range prog.Strings {
		offset = align4(offset)
		stringOffsets[i] = offset
		offset += 2 + 4 + uint32(len(s)) + 1 // tag + size + bytes + NUL
	}

	funcOffsets := make([]uint32, len(prog.Functions))
	localOffsets := make([][]uint32, len(prog.Functions))
	for i, fn := range prog.Functions {
		if err := validateFunctionHeader(fn); err != nil {
			return nil, err
		}
		offset = align4(offset)
		funcOffsets[i] = offset

		offs := make([]uint32, len(fn.Code)+1)
		var local uint32
		for idx, ins := range fn.Code {
			offs[idx] = local
			local += uint32(compiler.EncodedSize(ins.Op))
		}
		offs[len(fn.Code)] = local
		localOffsets[i] = offs
		offset += funcHeaderSize + local
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, headerSize))

	for i, s := range prog.Strings {
		padTo(&buf, stringOffsets[i])
		var hdr [6]byte
		binary.LittleEndian.PutUint16(hdr[0:2], stringTag)
		binary.LittleEndian.PutUint32(hdr[2:6], uint32(len(s)))
		buf.Write(hdr[:])
		buf.WriteString(s)
		buf.WriteByte(0)
	}

	for i, fn := range prog.Functions {
		padTo(&buf, funcOffsets[i])
		buf.WriteByte(byte(fn.MaxStack))
		buf.WriteByte(byte(fn.EnvSize))
		buf.WriteByte(byte(fn.NumArgs))
		buf.WriteByte(0)

		for idx, ins := range fn.Code {
			if err := encodeInstruction(&buf, ins, idx, fn, localOffsets[i], funcOffsets, stringOffsets); err != nil {
				return nil, err
			}
		}
	}

	out := buf.Bytes()
	binary.LittleEndian.PutUint32(out[0:4], Magic)
	binary.LittleEndian.PutUint16(out[4:6], MajorVersion)
	binary.LittleEndian.PutUint16(out[6:8], MinorVersion)
	binary.LittleEndian.PutUint32(out[8:12], funcOffsets[prog.EntryIndex])
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(prog.Strings)))
	return out, nil
}

func validateFunctionHeader(fn *compiler.SVMFunction) error {
	if fn.MaxStack < 0 || fn.MaxStack > 0xff {
		return newError(AssembleError, "function %q: max_stack %d does not fit u8", fn.Name, fn.MaxStack)
	}
	if fn.EnvSize < 0 || fn.EnvSize > 0xff {
		return newError(AssembleError, "function %q: env_size %d does not fit u8", fn.Name, fn.EnvSize)
	}
	if fn.NumArgs < 0 || fn.NumArgs > 0xff {
		return newError(AssembleError, "function %q: num_args %d does not fit u8", fn.Name, fn.NumArgs)
	}
	if len(fn.Code) == 0 {
		return newError(AssembleError, "function %q: empty instruction stream", fn.Name)
	}
	return nil
}

func padTo(buf *bytes.Buffer, target uint32) {
	for uint32(buf.Len()) < target {
		buf.WriteByte(0)
	}
}

func u8(v int32, kind ErrorKind, context string) (byte, error) {
	if v < 0 || v > 0xff {
		return 0, newError(kind, "%s: value %d does not fit u8", context, v)
	}
	return byte(v), nil
}

func encodeInstruction(buf *bytes.Buffer, ins compiler.Instruction, idx int, fn *compiler.SVMFunction, localOffsets []uint32, funcOffsets, stringOffsets []uint32) error {
	if !ins.Op.Valid() {
		return newError(AssembleError, "function %q instruction %d: reserved or unknown opcode %s", fn.Name, idx, ins.Op)
	}
	buf.WriteByte(byte(ins.Op))

	switch ins.Op {
	case compiler.LGCI:
		writeI32(buf, ins.Arg1)

	case compiler.LGCF64:
		writeU64(buf, math.Float64bits(ins.Float))

	case compiler.LGCS:
		i := int(ins.Arg1)
		if i < 0 || i >= len(stringOffsets) {
			return newError(AssembleError, "function %q instruction %d: string index %d out of range", fn.Name, idx, i)
		}
		writeU32(buf, stringOffsets[i])

	case compiler.NEWC:
		i := int(ins.Arg1)
		if i < 0 || i >= len(funcOffsets) {
			return newError(AssembleError, "function %q instruction %d: function index %d out of range", fn.Name, idx, i)
		}
		writeU32(buf, funcOffsets[i])

	case compiler.LDLG, compiler.STLG, compiler.CALL, compiler.CALLT:
		b, err := u8(ins.Arg1, AssembleError, "LDLG/STLG/CALL/CALLT operand")
		if err != nil {
			return err
		}
		buf.WriteByte(b)

	case compiler.LDPG, compiler.STPG, compiler.CALLP, compiler.CALLTP:
		b1, err := u8(ins.Arg1, AssembleError, "first operand")
		if err != nil {
			return err
		}
		b2, err := u8(ins.Arg2, AssembleError, "second operand")
		if err != nil {
			return err
		}
		buf.WriteByte(b1)
		buf.WriteByte(b2)

	case compiler.BR, compiler.BRT, compiler.BRF:
		target := idx + int(ins.Arg1)
		if target < 0 || target > len(fn.Code) {
			return newError(AssembleError, "function %q instruction %d: branch target %d out of range", fn.Name, idx, target)
		}
		following := localOffsets[idx] + uint32(compiler.EncodedSize(ins.Op))
		delta := int64(localOffsets[target]) - int64(following)
		writeI32(buf, int32(delta))
	}
	return nil
}

func writeI32(buf *bytes.Buffer, v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	buf.Write(tmp[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}
