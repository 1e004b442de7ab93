package maincmd

import (
	"bytes"
	"context"
	"os"

	"github.com/mna/mainer"

	"github.com/svmlang/svmc/internal/astjson"
	"github.com/svmlang/svmc/internal/config"
	"github.com/svmlang/svmc/lang/asmbin"
	"github.com/svmlang/svmc/lang/compiler"
	"github.com/svmlang/svmc/lang/resolver"
	"github.com/svmlang/svmc/lang/vm"
)

// Compile implements `svmc compile <input> [-o out] [-f binary|text]`:
// parse the JSON AST document, resolve names, compile to an SVMProgram,
// then either assemble it to the binary container (default) or render it
// as a textual disassembly listing (-f text).
func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	prog, err := compileFile(args[0])
	if err != nil {
		return err
	}

	var out []byte
	if c.Format == "text" {
		var buf bytes.Buffer
		if err := asmbin.WriteText(&buf, prog); err != nil {
			return err
		}
		out = buf.Bytes()
	} else {
		out, err = asmbin.Assemble(prog)
		if err != nil {
			return err
		}
	}
	return writeOutput(stdio, c.Output, out)
}

func compileFile(path string) (*compiler.SVMProgram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	chunk, err := astjson.Decode(f, path)
	if err != nil {
		return nil, err
	}
	envs, err := resolver.Resolve(path, chunk, vm.PrimitiveIndex)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return compiler.CompileProgram(path, chunk, envs, cfg.CompilerConfig())
}

func writeOutput(stdio mainer.Stdio, path string, data []byte) error {
	if path == "" {
		_, err := stdio.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
