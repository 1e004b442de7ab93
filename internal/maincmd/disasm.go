package maincmd

import (
	"context"
	"os"

	"github.com/mna/mainer"

	"github.com/svmlang/svmc/lang/asmbin"
)

// Disasm implements `svmc disasm <input.svm>`: read an SVML binary,
// disassemble it, and render the textual listing.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	prog, err := asmbin.Disassemble(data)
	if err != nil {
		return err
	}
	return asmbin.WriteText(stdio.Stdout, prog)
}
