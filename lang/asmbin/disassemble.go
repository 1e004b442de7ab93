package asmbin

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/svmlang/svmc/lang/compiler"
)

// Disassemble parses data back into an SVMProgram. The container records
// no explicit function count, so function boundaries are discovered by a
// transitive closure over NEWC targets reachable from the entry offset,
// then instruction streams are parsed in ascending offset order (each
// function's code runs up to the next function's start, or EOF for the
// last one).
func Disassemble(data []byte) (*compiler.SVMProgram, error) {
	if len(data) < headerSize {
		return nil, newError(DisassembleError, "truncated header: %d bytes", len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != Magic {
		return nil, newError(DisassembleError, "bad magic: 0x%08x", magic)
	}
	major := binary.LittleEndian.Uint16(data[4:6])
	minor := binary.LittleEndian.Uint16(data[6:8])
	if major != MajorVersion || minor != MinorVersion {
		return nil, newError(DisassembleError, "unsupported version %d.%d", major, minor)
	}
	entryOff := binary.LittleEndian.Uint32(data[8:12])
	numStrings := binary.LittleEndian.Uint32(data[12:16])

	strs, stringIndexByOffset, err := parseStringTable(data, headerSize, numStrings)
	if err != nil {
		return nil, err
	}

	if int(entryOff) >= len(data) {
		return nil, newError(DisassembleError, "entry offset 0x%x beyond end of file", entryOff)
	}
	if entryOff%4 != 0 {
		return nil, newError(DisassembleError, "entry offset 0x%x is not 4-byte aligned", entryOff)
	}
	starts := discoverFunctionOffsets(data, entryOff)
	entryIdx, ok := indexOfUint32(starts, entryOff)
	if !ok {
		return nil, newError(DisassembleError, "entry offset 0x%x is not a discovered function start", entryOff)
	}

	offsetToFuncIndex := make(map[uint32]int, len(starts))
	for i, s := range starts {
		offsetToFuncIndex[s] = i
	}

	functions := make([]*compiler.SVMFunction, len(starts))
	for i, s := range starts {
		end := uint32(len(data))
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		fn, err := decodeFunction(data, s, end, stringIndexByOffset, offsetToFuncIndex)
		if err != nil {
			return nil, err
		}
		functions[i] = fn
	}

	return &compiler.SVMProgram{
		EntryIndex: entryIdx,
		Functions: functions,
		Strings: strs,
	}, nil
}

func indexOfUint32(xs []uint32, v uint32) (int, bool) {
	for i, x := range xs {
		if x == v {
			return i, true
		}
	}
	return -1, false
}

func parseStringTable(data []byte, start uint32, numStrings uint32) ([]string, map[uint32]int, error) {
	byOffset := make(map[uint32]int, numStrings)
	var strs []string
	pos := start
	for i := uint32(0); i < numStrings; i++ {
		pos = align4(pos)
		if pos+6 > uint32(len(data)) {
			return nil, nil, newError(DisassembleError, "truncated string table entry %d", i)
		}
		tag := binary.LittleEndian.Uint16(data[pos: pos+2])
		if tag != stringTag {
			return nil, nil, newError(DisassembleError, "string table entry %d: bad tag %d", i, tag)
		}
		size := binary.LittleEndian.Uint32(data[pos+2: pos+6])
		bodyStart := pos + 6
		bodyEnd := bodyStart + size
		if uint64(bodyEnd)+1 > uint64(len(data)) {
			return nil, nil, newError(DisassembleError, "truncated string table entry %d", i)
		}
		if data[bodyEnd] != 0 {
			return nil, nil, newError(DisassembleError, "string table entry %d: missing NUL terminator", i)
		}
		byOffset[pos] = len(strs)
		strs = append(strs, string(data[bodyStart:bodyEnd]))
		pos = bodyEnd + 1
	}
	return strs, byOffset, nil
}

// discoverFunctionOffsets grows a set of known function-start offsets by
// repeatedly re-segmenting the file at the currently-known offsets and
// scanning each segment for NEWC targets, until a full pass finds nothing
// new. Early passes may segment incorrectly (a not-yet-discovered function
// boundary falls inside what looks like a segment), but scanNewcTargets
// degrades gracefully in that case, and later passes use the tighter
// segmentation the earlier pass's discoveries provide. Functions the
// program never references transitively from entry are never discovered.
func discoverFunctionOffsets(data []byte, entryOff uint32) []uint32 {
	known := map[uint32]bool{entryOff: true}
	for {
		ordered := sortedUint32(known)
		grew := false
		for i, s := range ordered {
			end := uint32(len(data))
			if i+1 < len(ordered) {
				end = ordered[i+1]
			}
			for _, t := range scanNewcTargets(data, s+funcHeaderSize, end) {
				// Functions are 4-byte aligned; a misaligned or out-of-range
				// target cannot start one, and decodeFunction later rejects
				// the NEWC that carried it as an unresolved function offset.
				if int(t) >= len(data) || t%4 != 0 {
					continue
				}
				if !known[t] {
					known[t] = true
					grew = true
				}
			}
		}
		if !grew {
			return sortedUint32(known)
		}
	}
}

func sortedUint32(m map[uint32]bool) []uint32 {
	out := make([]uint32, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// scanNewcTargets makes a best-effort linear pass over [start,end)
// collecting NEWC operands, silently stopping at the first byte that
// doesn't decode as a valid in-bounds instruction rather than failing
// outright, since during early discovery passes, end is often provisional and
// may run into a neighboring function's raw header bytes. decodeFunction is
// what authoritatively validates a function's bytes once its true boundary
// is known.
func scanNewcTargets(data []byte, start, end uint32) []uint32 {
	var targets []uint32
	pos := start
	for pos < end {
		if int(pos) >= len(data) {
			return targets
		}
		op := compiler.Opcode(data[pos])
		if !op.Valid() {
			return targets
		}
		size := uint32(compiler.EncodedSize(op))
		if pos+size > end || uint64(pos+size) > uint64(len(data)) {
			return targets
		}
		if op == compiler.NEWC {
			targets = append(targets, binary.LittleEndian.Uint32(data[pos+1:pos+5]))
		}
		pos += size
	}
	return targets
}

// decodeFunction authoritatively decodes the function occupying [start,end):
// a 4-byte (stack, env, args, pad) header followed by its instruction
// stream, with any alignment slack before end required to be zero bytes.
func decodeFunction(data []byte, start, end uint32, stringIdx map[uint32]int, offsetToFuncIndex map[uint32]int) (*compiler.SVMFunction, error) {
	if start+funcHeaderSize > end || end > uint32(len(data)) {
		return nil, newError(DisassembleError, "function at 0x%x: truncated header", start)
	}
	maxStack := int(data[start])
	envSize := int(data[start+1])
	numArgs := int(data[start+2])
	if data[start+3] != 0 {
		return nil, newError(DisassembleError, "function at 0x%x: non-zero header padding", start)
	}

	pos := start + funcHeaderSize
	var code []compiler.Instruction
	var byteOffsets []uint32
	for pos < end {
		// Up to 3 zero bytes before end are the next function's alignment
		// slack, not an instruction. This must be checked before opcode
		// decoding: opcode byte 0 is itself a valid (longer) instruction.
		if end-pos <= 3 && allZero(data[pos:end]) {
			break
		}
		op := compiler.Opcode(data[pos])
		if !op.Valid() {
			return nil, newError(DisassembleError, "function at 0x%x: unknown opcode byte 0x%02x at 0x%x", start, data[pos], pos)
		}
		size := uint32(compiler.EncodedSize(op))
		if pos+size > end {
			return nil, newError(DisassembleError, "function at 0x%x: truncated instruction at 0x%x", start, pos)
		}

		ins := compiler.Instruction{Op: op}
		switch op {
		case compiler.LGCI:
			ins.Arg1 = int32(binary.LittleEndian.Uint32(data[pos+1: pos+5]))
		case compiler.LGCF64:
			ins.Float = math.Float64frombits(binary.LittleEndian.Uint64(data[pos+1: pos+9]))
		case compiler.LGCS:
			off := binary.LittleEndian.Uint32(data[pos+1: pos+5])
			i, ok := stringIdx[off]
			if !ok {
				return nil, newError(DisassembleError, "function at 0x%x: unresolved string offset 0x%x", start, off)
			}
			ins.Arg1 = int32(i)
		case compiler.NEWC:
			off := binary.LittleEndian.Uint32(data[pos+1: pos+5])
			i, ok := offsetToFuncIndex[off]
			if !ok {
				return nil, newError(DisassembleError, "function at 0x%x: unresolved function offset 0x%x", start, off)
			}
			ins.Arg1 = int32(i)
		case compiler.LDLG, compiler.STLG, compiler.CALL, compiler.CALLT:
			ins.Arg1 = int32(data[pos+1])
		case compiler.LDPG, compiler.STPG, compiler.CALLP, compiler.CALLTP:
			ins.Arg1 = int32(data[pos+1])
			ins.Arg2 = int32(data[pos+2])
		case compiler.BR, compiler.BRT, compiler.BRF:
			ins.Arg1 = int32(binary.LittleEndian.Uint32(data[pos+1: pos+5])) // byte delta, fixed up below
		}
		byteOffsets = append(byteOffsets, pos)
		code = append(code, ins)
		pos += size
	}
	if len(code) == 0 {
		return nil, newError(DisassembleError, "function at 0x%x: empty instruction stream", start)
	}

	offsetToInstrIndex := make(map[uint32]int, len(byteOffsets))
	for i, off := range byteOffsets {
		offsetToInstrIndex[off] = i
	}
	for i := range code {
		if !compiler.IsBranch(code[i].Op) {
			continue
		}
		following := byteOffsets[i] + uint32(compiler.EncodedSize(code[i].Op))
		target := uint32(int64(following) + int64(code[i].Arg1))
		ti, ok := offsetToInstrIndex[target]
		if !ok {
			return nil, newError(DisassembleError, "function at 0x%x: branch at instruction %d targets non-instruction offset 0x%x", start, i, target)
		}
		code[i].Arg1 = int32(ti - i)
	}

	return &compiler.SVMFunction{
		MaxStack: maxStack,
		EnvSize: envSize,
		NumArgs: numArgs,
		Code: code,
	}, nil
}

func allZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}
