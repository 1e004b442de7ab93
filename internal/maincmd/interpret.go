package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/svmlang/svmc/internal/config"
	"github.com/svmlang/svmc/lang/asmbin"
	"github.com/svmlang/svmc/lang/compiler"
	"github.com/svmlang/svmc/lang/vm"
)

// Interpret implements `svmi interpret <input.svm>`: disassemble the
// binary container and run it.
func (c *Cmd) Interpret(ctx context.Context, stdio mainer.Stdio, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	prog, err := asmbin.Disassemble(data)
	if err != nil {
		return err
	}
	return runProgram(stdio, prog)
}

// InterpretSource implements `svmi interpretsource <input>` (the lowercased
// method name, with no hyphen): parse,
// resolve, compile, and run a JSON AST document without an intermediate
// assembled binary.
func (c *Cmd) InterpretSource(ctx context.Context, stdio mainer.Stdio, args []string) error {
	prog, err := compileFile(args[0])
	if err != nil {
		return err
	}
	return runProgram(stdio, prog)
}

// runProgram executes prog with the configured resource limits and writes
// the program's stdout followed by its return value.
func runProgram(stdio mainer.Stdio, prog *compiler.SVMProgram) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	result, out, err := vm.Run(prog, cfg.Limits())
	if out != "" {
		fmt.Fprint(stdio.Stdout, out)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(stdio.Stdout, result.String())
	return nil
}
