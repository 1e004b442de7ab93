package asmbin

import (
	"fmt"
	"io"

	"github.com/svmlang/svmc/lang/compiler"
)

// WriteText renders prog as a human-readable disassembly listing (the
// "-f text" output option). It is presentational only; this is not read
// back by Disassemble, unlike the binary container Assemble produces.
func WriteText(w io.Writer, prog *compiler.SVMProgram) error {
	for i, fn := range prog.Functions {
		marker := ""
		if i == prog.EntryIndex {
			marker = " (entry)"
		}
		if _, err := fmt.Fprintf(w, "function %d %q%s: max_stack=%d env_size=%d num_args=%d recursive=%v memo=%v\n",
			i, fn.Name, marker, fn.MaxStack, fn.EnvSize, fn.NumArgs, fn.IsRecursive, fn.NeedsMemoization); err != nil {
			return err
		}
		for pc, ins := range fn.Code {
			if _, err := fmt.Fprintf(w, "  %4d  %s\n", pc, formatInstruction(ins, prog)); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatInstruction(ins compiler.Instruction, prog *compiler.SVMProgram) string {
	switch ins.Op {
	case compiler.LGCI:
		return fmt.Sprintf("%s %d", ins.Op, ins.Arg1)
	case compiler.LGCF64:
		return fmt.Sprintf("%s %g", ins.Op, ins.Float)
	case compiler.LGCS:
		s := ""
		if int(ins.Arg1) < len(prog.Strings) {
			s = prog.Strings[ins.Arg1]
		}
		return fmt.Sprintf("%s %q", ins.Op, s)
	case compiler.NEWC:
		name := ""
		if int(ins.Arg1) < len(prog.Functions) {
			name = prog.Functions[ins.Arg1].Name
		}
		return fmt.Sprintf("%s %d %q", ins.Op, ins.Arg1, name)
	case compiler.LDLG, compiler.STLG, compiler.CALL, compiler.CALLT:
		return fmt.Sprintf("%s %d", ins.Op, ins.Arg1)
	case compiler.LDPG, compiler.STPG, compiler.CALLP, compiler.CALLTP:
		return fmt.Sprintf("%s %d %d", ins.Op, ins.Arg1, ins.Arg2)
	case compiler.BR, compiler.BRT, compiler.BRF:
		return fmt.Sprintf("%s %+d", ins.Op, ins.Arg1)
	default:
		return ins.Op.String()
	}
}
