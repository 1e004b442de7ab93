// Package config defines the typed runtime configuration shared by the
// svmc/svmi CLIs and any other embedder of this module: the interpreter's
// execution limits (max call depth, max operand-stack depth, max
// instructions executed) and the compiler's memoization parameters, all
// read from environment variables with github.com/caarlos0/env/v6 instead
// of hand-rolled os.Getenv parsing.
package config

import (
	"github.com/caarlos0/env/v6"

	"github.com/svmlang/svmc/lang/compiler"
	"github.com/svmlang/svmc/lang/vm"
)

// Config is the typed, env-driven configuration both CLI binaries and
// embedders build their vm.Limits and compiler.Config from. Zero values for
// the three limit fields mean "unlimited", matching vm.Limits' own zero-
// value convention.
type Config struct {
	MaxCallDepth    int   `env:"SVM_MAX_CALL_DEPTH" envDefault:"10000"`
	MaxOperandStack int   `env:"SVM_MAX_OPERAND_STACK" envDefault:"1024"`
	MaxInstructions int64 `env:"SVM_MAX_INSTRUCTIONS" envDefault:"100000000"`

	EnableRecursionDetection bool `env:"SVM_ENABLE_RECURSION_DETECTION" envDefault:"true"`
	EnableMemoization        bool `env:"SVM_ENABLE_MEMOIZATION" envDefault:"true"`
	MemoThreshold            int  `env:"SVM_MEMO_THRESHOLD" envDefault:"10"`
}

// Load reads Config from the process environment, falling back to the
// struct tag defaults above for any variable that isn't set.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Limits projects the subset of Config the interpreter consumes.
func (c Config) Limits() vm.Limits {
	return vm.Limits{
		MaxCallDepth:    c.MaxCallDepth,
		MaxOperandStack: c.MaxOperandStack,
		MaxInstructions: c.MaxInstructions,
	}
}

// CompilerConfig projects the subset of Config the compiler consumes.
func (c Config) CompilerConfig() compiler.Config {
	return compiler.Config{
		EnableRecursionDetection: c.EnableRecursionDetection,
		EnableMemoization:        c.EnableMemoization,
		MemoThreshold:            c.MemoThreshold,
	}
}
