// Package casebook reads compiler test cases out of markdown documents.
//
// A "Test: name" heading opens a case. The fenced blocks below it carry the
// source (tagged c), compiler flags (flags) and the expectations: tokens,
// ir, ir-init, asm, data and error. Untagged blocks are prose and ignored.
package casebook

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/xplshn/simplec/pkg/cli"
	"github.com/xplshn/simplec/pkg/config"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type Kind string

const (
	KindTokens Kind = "tokens"
	KindIR     Kind = "ir"
	KindIRInit Kind = "ir-init"
	KindAsm    Kind = "asm"
	KindData   Kind = "data" // the first output line only
	KindError  Kind = "error"
)

const (
	fenceSource = "c"
	fenceFlags  = "flags"
)

type Expectation struct {
	Kind    Kind
	Content string
	Line    int
}

type Case struct {
	Name   string
	Source string
	Flags  []string
	Expect []Expectation
	Line   int
}

func isExpectation(lang string) bool {
	switch Kind(lang) {
	case KindTokens, KindIR, KindIRInit, KindAsm, KindData, KindError:
		return true
	}
	return false
}

// Load reads and parses the book at path.
func Load(path string) ([]Case, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read case book '%s': %w", path, err)
	}
	cases, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// Parse extracts the cases of a markdown document in order.
func Parse(source []byte) ([]Case, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var cases []Case
	var cur *Case
	flush := func() error {
		if cur == nil {
			return nil
		}
		if cur.Source == "" {
			return fmt.Errorf("line %d: test '%s' has no c fence", cur.Line, cur.Name)
		}
		if len(cur.Expect) == 0 {
			return fmt.Errorf("line %d: test '%s' has no expectation", cur.Line, cur.Name)
		}
		cases = append(cases, *cur)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			name, ok := strings.CutPrefix(headingText(n, source), "Test: ")
			if !ok {
				return ast.WalkSkipChildren, nil
			}
			if err := flush(); err != nil {
				return ast.WalkStop, err
			}
			cur = &Case{Name: strings.TrimSpace(name), Line: lineOf(n, source)}
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			lang := string(n.Language(source))
			line := lineOf(n, source)
			if lang == "" {
				return ast.WalkContinue, nil
			}
			if lang != fenceSource && lang != fenceFlags && !isExpectation(lang) {
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s'", line, lang)
			}
			if cur == nil {
				return ast.WalkStop, fmt.Errorf("line %d: %s fence found outside of a test", line, lang)
			}
			content := strings.TrimRight(blockContent(n, source), "\n")
			switch lang {
			case fenceSource:
				if cur.Source != "" {
					return ast.WalkStop, fmt.Errorf("line %d: multiple c fences in test '%s'", line, cur.Name)
				}
				cur.Source = content
			case fenceFlags:
				cur.Flags = append(cur.Flags, strings.Fields(content)...)
			default:
				cur.Expect = append(cur.Expect, Expectation{Kind: Kind(lang), Content: content, Line: line})
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cases, nil
}

// Configure applies the case flags to cfg. Only -O<n>, -F<pass> and
// -Fno-<pass> are understood.
func (c *Case) Configure(cfg *config.Config) error {
	var passes []cli.Switch
	for _, f := range c.Flags {
		switch {
		case strings.HasPrefix(f, "-O"):
			if err := cfg.ApplyOptLevel(f[2:]); err != nil {
				return err
			}
		case strings.HasPrefix(f, "-Fno-"):
			passes = append(passes, cli.Switch{Name: f[5:]})
		case strings.HasPrefix(f, "-F"):
			passes = append(passes, cli.Switch{Name: f[2:], On: true})
		default:
			return fmt.Errorf("test '%s': unsupported flag '%s'", c.Name, f)
		}
	}
	if err := cfg.ApplyPasses(passes); err != nil {
		return fmt.Errorf("test '%s': %w", c.Name, err)
	}
	return nil
}

func headingText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := c.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func blockContent(n *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

func lineOf(n ast.Node, source []byte) int {
	if n.Lines().Len() == 0 {
		return 0
	}
	return bytes.Count(source[:n.Lines().At(0).Start], []byte("\n")) + 1
}
