package casebook

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/simplec/pkg/compiler"
	"github.com/xplshn/simplec/pkg/config"
	"github.com/xplshn/simplec/pkg/ir"
	"github.com/xplshn/simplec/pkg/lexer"
)

const book = "# Book\n\nSome prose.\n\n```\nplain block\n```\n\n" +
	"## Test: first\n\n```flags\n-O2 -Fno-opt-asm\n```\n\n```c\nint main() { return 0; }\n```\n\n```ir\nSETLABEL main\n```\n\n" +
	"## Notes\n\n## Test: second\n\n```c\nint f;\n```\n\n```error\nno main\n```\n"

func TestParse(t *testing.T) {
	cases, err := Parse([]byte(book))
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 2)

	be.Equal(t, cases[0].Name, "first")
	be.Equal(t, cases[0].Source, "int main() { return 0; }")
	be.Equal(t, cases[0].Flags, []string{"-O2", "-Fno-opt-asm"})
	be.Equal(t, cases[0].Expect, []Expectation{{Kind: KindIR, Content: "SETLABEL main", Line: 20}})

	be.Equal(t, cases[1].Name, "second")
	be.Equal(t, cases[1].Expect[0].Kind, KindError)

	cfg := config.NewConfig()
	be.Err(t, cases[0].Configure(cfg), nil)
	be.Equal(t, cfg.OptLevel, 2)
	be.True(t, cfg.IsFeatureEnabled(config.FeatOptIR))
	be.True(t, !cfg.IsFeatureEnabled(config.FeatOptAsm))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"outside", "```c\nint x;\n```\n", "line 2: c fence found outside of a test"},
		{"unknown", "## Test: a\n\n```py\nx\n```\n", "line 4: unknown fence language 'py'"},
		{"no source", "## Test: a\n\n```ir\nFUNCEND\n```\n", "line 1: test 'a' has no c fence"},
		{"no expectation", "## Test: a\n\n```c\nint x;\n```\n## Test: b\n", "line 1: test 'a' has no expectation"},
		{"two sources", "## Test: a\n\n```c\nint x;\n```\n\n```c\nint y;\n```\n", "line 8: multiple c fences in test 'a'"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src))
			be.Equal(t, err.Error(), tc.want)
		})
	}

	c := Case{Name: "x", Flags: []string{"-Fno-fast"}}
	be.Equal(t, c.Configure(config.NewConfig()).Error(), "test 'x': unknown pass 'fast'")
	c.Flags = []string{"-g"}
	be.Equal(t, c.Configure(config.NewConfig()).Error(), "test 'x': unsupported flag '-g'")
}

func trimLines(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}

func irText(list []ir.Instruction) string {
	var parts []string
	for _, inst := range list {
		parts = append(parts, inst.String())
	}
	return strings.Join(parts, "\n")
}

func runCase(t *testing.T, c Case) {
	cfg := config.NewConfig()
	be.Err(t, c.Configure(cfg), nil)
	u, compileErr := compiler.New(cfg, io.Discard).Compile("t.c", c.Source)

	for _, e := range c.Expect {
		var got string
		switch e.Kind {
		case KindError:
			if compileErr == nil {
				t.Fatalf("line %d: expected an error containing %q", e.Line, e.Content)
			}
			if !strings.Contains(compileErr.Error(), e.Content) {
				t.Errorf("line %d: error %q does not contain %q", e.Line, compileErr.Error(), e.Content)
			}
			continue
		case KindTokens:
			toks, err := lexer.NewLexer("t.c", c.Source).Tokens()
			be.Err(t, err, nil)
			var lines []string
			for _, tok := range toks {
				lines = append(lines, tok.Dump())
			}
			got = strings.Join(lines, "\n")
		case KindIR:
			be.Err(t, compileErr, nil)
			got = irText(u.IR.Code)
		case KindIRInit:
			be.Err(t, compileErr, nil)
			got = irText(u.IR.Init)
		case KindAsm:
			be.Err(t, compileErr, nil)
			var sb strings.Builder
			_, err := u.Asm.WriteTo(&sb)
			be.Err(t, err, nil)
			got = sb.String()
		case KindData:
			be.Err(t, compileErr, nil)
			var sb strings.Builder
			_, err := u.Asm.WriteTo(&sb)
			be.Err(t, err, nil)
			got, _, _ = strings.Cut(sb.String(), "\n")
		}
		if diff := cmp.Diff(trimLines(e.Content), trimLines(got)); diff != "" {
			t.Errorf("line %d: %s mismatch (-want +got):\n%s", e.Line, e.Kind, diff)
		}
	}
}

func TestBooks(t *testing.T) {
	books, err := filepath.Glob("testdata/*.md")
	be.Err(t, err, nil)
	be.True(t, len(books) > 0)
	for _, path := range books {
		cases, err := Load(path)
		be.Err(t, err, nil)
		for _, c := range cases {
			t.Run(filepath.Base(path)+"/"+c.Name, func(t *testing.T) {
				runCase(t, c)
			})
		}
	}
}
