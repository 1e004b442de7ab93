// Package maincmd implements the svmc/svmi command dispatch: a single Cmd
// struct, one method per subcommand, parsed by a github.com/mna/mainer
// flag/env parser feeding a struct whose exported methods are discovered
// by reflection and looked up by lowercased name.
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"

	"github.com/svmlang/svmc/lang/asmbin"
	"github.com/svmlang/svmc/lang/compileerr"
	"github.com/svmlang/svmc/lang/vm"
)

const binName = "svm"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> <path>
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> <path>
       %[1]s -h|--help
       %[1]s -v|--version

Compiler and interpreter for the SVML bytecode pipeline.

The <command> can be one of:
       compile                   Compile a JSON AST document (the seam an
                                 external tokenizer/parser would plug into)
                                 to an SVML binary, or to a textual
                                 disassembly with -f text.
       disasm                    Disassemble an SVML binary to its textual
                                 form.
       interpret                 Disassemble and run an SVML binary.
       interpretsource           Parse, resolve, compile, and run a JSON
                                 AST document in one step.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       -o --output <path>        Write output to <path> instead of stdout
                                 (compile only).
       -f --format <fmt>         "binary" (default) or "text" (compile
                                 only).
`, binName)
)

// Exit codes for the CLI: 0 success, 1 parse/compile error, 2 runtime
// error, 3 I/O error.
const (
	ExitSuccess      = 0
	ExitCompileError = 1
	ExitRuntimeError = 2
	ExitIOError      = 3
)

// Cmd holds the parsed flags and dispatches to one of the exported command
// methods below.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	// AllowedCommands restricts which subcommands this binary exposes
	// (svmc: compile, disasm; svmi: interpret, interpretsource). Empty
	// means all commands are allowed.
	AllowedCommands []string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	Output string `flag:"o,output"`
	Format string `flag:"f,format"`

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) commandAllowed(name string) bool {
	if len(c.AllowedCommands) == 0 {
		return true
	}
	for _, a := range c.AllowedCommands {
		if a == name {
			return true
		}
	}
	return false
}

func (c *Cmd) SetArgs(args []string) { c.args = args }

func (c *Cmd) SetFlags(flags map[string]bool) { c.flags = flags }

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) == 0 {
		return errors.New("no command specified")
	}
	cmdName := c.args[0]
	if !c.commandAllowed(cmdName) {
		return fmt.Errorf("unknown command: %s", cmdName)
	}
	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}
	if len(c.args[1:]) == 0 {
		return fmt.Errorf("%s: an input path is required", cmdName)
	}
	if c.Format != "" && c.Format != "binary" && c.Format != "text" {
		return fmt.Errorf("invalid -f/--format value: %s", c.Format)
	}
	if c.Format == "text" && cmdName != "compile" {
		return fmt.Errorf("%s: -f/--format text is only valid for compile", cmdName)
	}
	return nil
}

// Main parses args, dispatches to the selected subcommand, and translates
// its error (if any) to the corresponding exit code.
func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{EnvVars: false, EnvPrefix: strings.ToUpper(binName) + "_"}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.ExitCode(ExitIOError)
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.ExitCode(ExitSuccess)
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.ExitCode(ExitSuccess)
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	err := c.cmdFn(ctx, stdio, c.args[1:])
	if err == nil {
		return mainer.ExitCode(ExitSuccess)
	}
	fmt.Fprintf(stdio.Stderr, "%s\n", err)
	return mainer.ExitCode(classify(err))
}

// classify maps an error raised by one of the three disjoint error
// families (compile, assemble/disassemble, runtime) to the matching exit
// code. Anything else (a plain os.Open/os.WriteFile failure) is treated
// as an I/O error.
func classify(err error) int {
	var cerr *compileerr.Error
	if errors.As(err, &cerr) {
		return ExitCompileError
	}
	var aerr *asmbin.Error
	if errors.As(err, &aerr) {
		return ExitCompileError
	}
	var rerr *vm.Error
	if errors.As(err, &rerr) {
		return ExitRuntimeError
	}
	return ExitIOError
}

// valid commands are those that take a mainer.Stdio and a slice of strings
// as input and return an error.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type
		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
