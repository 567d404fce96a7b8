// Package compiler chains the stages of the compiler for one translation
// unit: tokens, syntax tree, typed tree, IR and assembly. Every stage can
// dump its result and the pipeline can stop after any of them.
package compiler

import (
	"fmt"
	"io"

	"github.com/xplshn/simplec/pkg/asm"
	"github.com/xplshn/simplec/pkg/ast"
	"github.com/xplshn/simplec/pkg/codegen"
	"github.com/xplshn/simplec/pkg/config"
	"github.com/xplshn/simplec/pkg/ir"
	"github.com/xplshn/simplec/pkg/lexer"
	"github.com/xplshn/simplec/pkg/optimizer"
	"github.com/xplshn/simplec/pkg/parser"
	"github.com/xplshn/simplec/pkg/token"
	"github.com/xplshn/simplec/pkg/typeChecker"
)

// Unit is one translation unit and what the stages made of it. Fields of
// the stages after Stopped are nil.
type Unit struct {
	Name    string
	Source  string
	Tokens  []token.Token
	AST     *ast.Node
	IR      *ir.Program
	Asm     *asm.Program
	Stopped config.Module // zero when the pipeline ran to the end
}

type Compiler struct {
	cfg     *config.Config
	out     io.Writer // dumps and the optimizer trace
	backend codegen.Backend
}

func New(cfg *config.Config, out io.Writer) *Compiler {
	return &Compiler{cfg: cfg, out: out, backend: codegen.NewAsmBackend()}
}

func (c *Compiler) dumps(m config.Module) bool { return c.cfg.Dump.Has(m) }

func (c *Compiler) stops(m config.Module) bool { return c.cfg.StopAfter.Has(m) }

func (c *Compiler) trace() io.Writer {
	if c.cfg.TraceOpt {
		return c.out
	}
	return nil
}

// Compile runs the pipeline over src. The returned error is a
// *util.Diagnostic for anything wrong with the program itself.
func (c *Compiler) Compile(name, src string) (*Unit, error) {
	u := &Unit{Name: name, Source: src}

	if c.dumps(config.ModTok) {
		toks, err := lexer.NewLexer(name, src).Tokens()
		if err != nil {
			return nil, err
		}
		u.Tokens = toks
		fmt.Fprintln(c.out, "TOKENS:")
		for _, tok := range toks {
			fmt.Fprintln(c.out, tok.Dump())
		}
	}
	if c.stops(config.ModTok) {
		u.Stopped = config.ModTok
		return u, nil
	}

	root, err := parser.NewParser(lexer.NewLexer(name, src)).Parse()
	if err != nil {
		return nil, err
	}
	u.AST = root
	if c.dumps(config.ModPar) {
		fmt.Fprintln(c.out, "AST:")
		ast.Dump(c.out, root, false)
	}
	if c.stops(config.ModPar) {
		u.Stopped = config.ModPar
		return u, nil
	}

	tc := typeChecker.NewTypeChecker(c.cfg)
	if err := tc.Check(root); err != nil {
		return nil, err
	}
	if err := tc.CheckMain(); err != nil {
		return nil, err
	}
	if c.cfg.IsFeatureEnabled(config.FeatOptAST) {
		if c.cfg.TraceOpt {
			fmt.Fprintln(c.out, "OPTIMIZE AST:")
		}
		optimizer.OptimizeAST(root, c.trace())
	}
	if c.dumps(config.ModTyp) {
		fmt.Fprintln(c.out, "TYPED AST:")
		ast.Dump(c.out, root, true)
	}
	if c.stops(config.ModTyp) {
		u.Stopped = config.ModTyp
		return u, nil
	}

	prog, err := codegen.NewContext(c.cfg).GenerateIR(root)
	if err != nil {
		return nil, err
	}
	if c.cfg.IsFeatureEnabled(config.FeatOptIR) {
		if c.cfg.TraceOpt {
			fmt.Fprintln(c.out, "OPTIMIZE IR:")
		}
		prog.Init = optimizer.OptimizeIR(prog.Init, c.trace())
		prog.Code = optimizer.OptimizeIR(prog.Code, c.trace())
	}
	u.IR = prog
	if c.dumps(config.ModIR) {
		prog.Dump(c.out)
	}
	if c.stops(config.ModIR) {
		u.Stopped = config.ModIR
		return u, nil
	}

	res, err := c.backend.Generate(prog, c.cfg)
	if err != nil {
		return nil, err
	}
	if c.cfg.IsFeatureEnabled(config.FeatOptAsm) {
		if c.cfg.TraceOpt {
			fmt.Fprintln(c.out, "OPTIMIZE ASM:")
		}
		res.Init = optimizer.OptimizeAsm(res.Init, c.trace())
		res.Code = optimizer.OptimizeAsm(res.Code, c.trace())
	}
	u.Asm = res
	if c.dumps(config.ModCom) {
		fmt.Fprintln(c.out, "ASSEMBLY:")
		res.Dump(c.out)
	}
	if c.stops(config.ModCom) {
		u.Stopped = config.ModCom
	}
	return u, nil
}
