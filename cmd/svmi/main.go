package main

import (
	"os"

	"github.com/mna/mainer"

	"github.com/svmlang/svmc/internal/maincmd"
)

var (
	// placeholder values, replaced on build
	version   = "{v}" // must be N.N[.N]
	buildDate = "{d}" // must be YYYY-mm-DD
)

func main() {
	c := maincmd.Cmd{
		BuildVersion:    version,
		BuildDate:       buildDate,
		AllowedCommands: []string{"interpret", "interpretsource"},
	}
	os.Exit(int(c.Main(os.Args, mainer.CurrentStdio())))
}
