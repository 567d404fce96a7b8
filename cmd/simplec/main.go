package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sanity-io/litter"
	"github.com/xplshn/simplec/pkg/cli"
	"github.com/xplshn/simplec/pkg/compiler"
	"github.com/xplshn/simplec/pkg/config"
	"github.com/xplshn/simplec/pkg/util"
)

// source is one input buffer: a file or an -e string.
type source struct {
	name string
	text string
}

func main() {
	app := cli.NewApp("simplec")
	app.Synopsis = "[options] <input.c> ..."
	app.Description = "A compiler for a small C dialect targeting a 16-bit accumulator CPU. Emits assembly text with a data, an init and a code line."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/simplec>"

	var (
		outFile   string
		evals     []string
		debug     []string
		stopAfter string
		optLevel  string
		dev       bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file>. Defaults to out.asm, or <input>.asm for each of several inputs.", "file")
	fs.List(&evals, "eval", "e", "Compile <source> as an input named 'cmd'.", "source")
	fs.List(&debug, "debug", "d", "Dump a module or trace the optimizers.", "module").
		OneOf(append(config.ModuleNames(), "opt")...)
	fs.Optional(&stopAfter, "stop-after", "D", "", "all", "Stop after a module and dump it. A bare -D dumps everything.", "module").
		OneOf(config.ModuleNames()...)
	fs.Optional(&optLevel, "optimize", "O", "0", "0", "Set the optimization level.", "level").
		OneOf(config.OptLevels()...)
	fs.Bool(&dev, "dev", "", "Report the compiler site that raised an error and dump internal structures.")

	cfg := config.NewConfig()
	cfg.RegisterPasses(fs)

	app.Action = func(inputs []string) error {
		if err := cfg.ApplyOptLevel(optLevel); err != nil {
			return report(cfg, err)
		}
		// explicit -F flags override the level
		if err := cfg.ApplyPasses(fs.Switched("F")); err != nil {
			return report(cfg, err)
		}
		for _, d := range debug {
			if err := cfg.ApplyDebug(d); err != nil {
				return report(cfg, err)
			}
		}
		if stopAfter != "" {
			if err := cfg.ApplyStopAfter(stopAfter); err != nil {
				return report(cfg, err)
			}
		}
		cfg.Dev = dev

		sources, err := readSources(inputs, evals)
		if err != nil {
			return report(cfg, err)
		}
		if len(sources) == 0 {
			return report(cfg, fmt.Errorf("no input files specified"))
		}
		if len(sources) > 1 && outFile != "" {
			return report(cfg, fmt.Errorf("-o cannot be used with %d inputs", len(sources)))
		}

		c := compiler.New(cfg, os.Stdout)
		for _, src := range sources {
			path := outFile
			switch {
			case len(sources) > 1:
				path = strings.TrimSuffix(filepath.Base(src.name), filepath.Ext(src.name)) + ".asm"
			case path == "":
				path = "out.asm"
			}
			if err := compileOne(c, cfg, src, path); err != nil {
				return report(cfg, err)
			}
		}
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			d, ok := r.(util.Defect)
			if !ok {
				panic(r)
			}
			util.Render(os.Stderr, d, dev, util.UseColour(os.Stderr))
			os.Exit(1)
		}
	}()
	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func report(cfg *config.Config, err error) error {
	util.Render(os.Stderr, err, cfg.Dev, util.UseColour(os.Stderr))
	return err
}

func readSources(paths, evals []string) ([]source, error) {
	var sources []source
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read file '%s': %w", path, err)
		}
		sources = append(sources, source{name: path, text: string(content)})
	}
	for _, e := range evals {
		sources = append(sources, source{name: "cmd", text: e})
	}
	return sources, nil
}

func compileOne(c *compiler.Compiler, cfg *config.Config, src source, path string) error {
	u, err := c.Compile(src.name, src.text)
	if err != nil {
		return err
	}
	if cfg.Dev {
		devDump(os.Stdout, u)
	}
	if u.Stopped != 0 {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create output file '%s': %w", path, err)
	}
	n, err := u.Asm.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("could not write output file '%s': %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "simplec: info: %s -> %s (%s, %d entries)\n", src.name, path, humanize.Bytes(uint64(n)), u.Asm.Len())
	return nil
}

// devDump prints the raw structures behind the dumped modules.
func devDump(w io.Writer, u *compiler.Unit) {
	opts := litter.Options{HidePrivateFields: true, HideZeroValues: true, StripPackageNames: true}
	if u.AST != nil {
		fmt.Fprintf(w, "AST (%s):\n%s\n", u.Name, opts.Sdump(u.AST))
	}
	if u.IR != nil {
		fmt.Fprintf(w, "IR (%s):\n%s\n", u.Name, opts.Sdump(u.IR))
	}
}
