package codegen

import (
	"github.com/xplshn/simplec/pkg/asm"
	"github.com/xplshn/simplec/pkg/config"
	"github.com/xplshn/simplec/pkg/ir"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Generate takes an IR program and a configuration, and produces the
	// sections of the target assembly.
	Generate(prog *ir.Program, cfg *config.Config) (*asm.Program, error)
}
