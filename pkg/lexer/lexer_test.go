package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/simplec/pkg/token"
)

func dump(t *testing.T, src string) []string {
	t.Helper()
	toks, err := NewLexer("t.c", src).Tokens()
	be.Err(t, err, nil)
	var out []string
	for _, tok := range toks {
		out = append(out, tok.Dump())
	}
	return out
}

func lexErr(t *testing.T, src string) string {
	t.Helper()
	_, err := NewLexer("t.c", src).Tokens()
	if err == nil {
		t.Fatalf("expected an error for %q", src)
	}
	return err.Error()
}

func TestTokens(t *testing.T) {
	got := dump(t, "int main() {\n  return a[0x01] << 2, 'c';\n}")
	want := []string{
		"INTKW 'int' @ 1:1",
		"SYM 'main' @ 1:5",
		"PARO '(' @ 1:9",
		"PARC ')' @ 1:10",
		"BRO '{' @ 1:12",
		"RETURN 'return' @ 2:3",
		"SYM 'a' @ 2:10",
		"SQO '[' @ 2:11",
		"HEX '0x01' @ 2:12",
		"SQC ']' @ 2:16",
		"SHL '<<' @ 2:18",
		"INT '2' @ 2:21",
		"COLON ',' @ 2:22",
		"CHAR ''c'' @ 2:24",
		"SEMICOLON ';' @ 2:27",
		"BRC '}' @ 3:1",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip(t *testing.T) {
	src := "typedef struct P { char a; int b; } P;\nint f(P *p) { if (p->a == 0) { return !p.b; } else { return -1; } }"
	_, err := NewLexer("t.c", src).Tokens()
	be.Equal(t, err.Error(), "ERROR:t.c:2:21: unknown char: '>'")

	src = "typedef struct P { char a; int b; } P;\nint f(P *p) { while (p.a != 0x0F) { p.b = p.b >> 1; } return \"s\\\"x\"; }"
	toks, err := NewLexer("t.c", src).Tokens()
	be.Err(t, err, nil)
	var rebuilt string
	row := 1
	for i, tok := range toks {
		if tok.Loc.Row != row {
			rebuilt += "\n"
			row = tok.Loc.Row
		} else if i > 0 {
			rebuilt += " "
		}
		rebuilt += tok.Value
	}
	again, err := NewLexer("t.c", rebuilt).Tokens()
	be.Err(t, err, nil)
	be.Equal(t, len(again), len(toks))
	for i := range toks {
		be.Equal(t, again[i].Type, toks[i].Type)
		be.Equal(t, again[i].Value, toks[i].Value)
	}
}

func TestComments(t *testing.T) {
	got := dump(t, "a // line\n/* block\n over rows */ b")
	be.Equal(t, got, []string{"SYM 'a' @ 1:1", "SYM 'b' @ 3:15"})
	be.Equal(t, lexErr(t, "a /* open"), "ERROR:t.c:1:3: unterminated comment")
}

func TestLiterals(t *testing.T) {
	toks, err := NewLexer("t.c", "0x0A 0x1234 42 '\\n' 'z'").Tokens()
	be.Err(t, err, nil)
	be.Equal(t, toks[0].Num, 10)
	be.Equal(t, toks[1].Num, 0x1234)
	be.Equal(t, toks[2].Num, 42)
	be.Equal(t, toks[3].Num, int('\n'))
	be.Equal(t, toks[3].Value, "'\\n'")
	be.Equal(t, toks[4].Num, int('z'))

	toks, err = NewLexer("t.c", "65535").Tokens()
	be.Err(t, err, nil)
	be.Equal(t, toks[0].Num, 0xFFFF)
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"0x123", "ERROR:t.c:1:1: HEX can be 1 or 2 bytes"},
		{"12ab", "ERROR:t.c:1:1: invalid integer"},
		{"x = 65536", "ERROR:t.c:1:5: INT does not fit in 2 bytes"},
		{"99999999999999999999", "ERROR:t.c:1:1: invalid integer"},
		{"'ab'", "ERROR:t.c:1:1: CHAR can have only one char"},
		{"\"abc", "ERROR:t.c:1:1: unterminated string"},
		{"a $", "ERROR:t.c:1:3: unknown char: '$'"},
		{"a < b", "ERROR:t.c:1:3: unknown char: '<'"},
		{"#include x", "ERROR:t.c:1:1: invalid directive"},
		{"#define X X", "ERROR:t.c:1:11: invalid recursive macro"},
		{"#define A B\n#define B A", "ERROR:t.c:1:11: invalid recursive macro"},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			be.Equal(t, lexErr(t, tc.src), tc.want)
		})
	}
}

func TestMacros(t *testing.T) {
	got := dump(t, "#define SIZE 5\n#define AREA SIZE * SIZE\nint a[AREA];")
	want := []string{
		"INTKW 'int' @ 3:1",
		"SYM 'a' @ 3:5",
		"SQO '[' @ 3:6",
		"INT '5' @ 1:14",
		"STAR '*' @ 2:19",
		"INT '5' @ 1:14",
		"SQC ']' @ 3:11",
		"SEMICOLON ';' @ 3:12",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestMacroDefinedLater(t *testing.T) {
	// A body may name a macro that is defined afterwards.
	got := dump(t, "#define A B + 1\n#define B 2\nA")
	be.Equal(t, got, []string{"INT '2' @ 2:11", "PLUS '+' @ 1:13", "INT '1' @ 1:15"})
}

func TestMacroEmptyBody(t *testing.T) {
	got := dump(t, "#define NOTHING\nx NOTHING y")
	be.Equal(t, got, []string{"SYM 'x' @ 2:1", "SYM 'y' @ 2:11"})
}

func TestPeekAndExpect(t *testing.T) {
	l := NewLexer("t.c", "int x;")
	tok, err := l.Peek()
	be.Err(t, err, nil)
	be.Equal(t, tok.Type, token.IntKw)
	tok, err = l.Next()
	be.Err(t, err, nil)
	be.Equal(t, tok.Type, token.IntKw)
	be.Equal(t, l.Last().Type, token.IntKw)

	ok, err := l.Accept(token.Semicolon)
	be.Err(t, err, nil)
	be.True(t, !ok)

	_, err = l.Expect(token.Semicolon)
	be.Equal(t, err.Error(), "ERROR:t.c:1:5: expected 'SEMICOLON' found 'SYM'")
}

func TestSnapshotRestore(t *testing.T) {
	l := NewLexer("t.c", "#define N 1\na N b N")
	_, _ = l.Next()
	s := l.Snapshot()

	tok, _ := l.Next()
	be.Equal(t, tok.Type, token.Int)
	_, _ = l.Next()
	_, _ = l.Peek()

	l.Restore(s)
	var got []string
	for {
		tok, err := l.Next()
		be.Err(t, err, nil)
		if tok.Type == token.None {
			break
		}
		got = append(got, tok.Value)
	}
	be.Equal(t, got, []string{"1", "b", "1"})
	be.Equal(t, l.Last().Type, token.None)
}

func TestSnapshotInsideExpansion(t *testing.T) {
	l := NewLexer("t.c", "#define P 1 2 3\nP")
	_, _ = l.Next()
	s := l.Snapshot()
	_, _ = l.Next()
	l.Restore(s)
	tok, _ := l.Next()
	be.Equal(t, tok.Value, "2")
}
