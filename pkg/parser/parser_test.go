package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/simplec/pkg/ast"
	"github.com/xplshn/simplec/pkg/lexer"
)

func parse(t *testing.T, src string) *ast.Node {
	t.Helper()
	root, err := NewParser(lexer.NewLexer("t.c", src)).Parse()
	be.Err(t, err, nil)
	return root
}

func dump(t *testing.T, src string) string {
	t.Helper()
	var sb strings.Builder
	ast.Dump(&sb, parse(t, src), false)
	return sb.String()
}

func parseErr(t *testing.T, src string) string {
	t.Helper()
	_, err := NewParser(lexer.NewLexer("t.c", src)).Parse()
	if err == nil {
		t.Fatalf("expected an error parsing %q", src)
	}
	return err.Error()
}

func checkDump(t *testing.T, src, want string) {
	t.Helper()
	if diff := cmp.Diff(want, dump(t, src)); diff != "" {
		t.Errorf("AST mismatch (-want +got):\n%s", diff)
	}
}

func TestFunction(t *testing.T) {
	checkDump(t, "int main() { int a = 2; return a; }", `LIST
    FUNCDECL {INT} main
        NULL
        BLOCK
            LIST
                DECL {INT} a
                    CAST {INT}
                        INT 2
                RETURN
                    SYM a
`)
}

func TestEmpty(t *testing.T) {
	root := parse(t, "// nothing here\n")
	be.Equal(t, len(root.Items()), 0)

	checkDump(t, "void f(int a, char *b) {}", `LIST
    FUNCDECL {VOID} f
        PARAMDEF {INT} a
        PARAMDEF {PTR CHAR} b
        NULL
`)
}

func TestForLowering(t *testing.T) {
	checkDump(t, "void f() { for (int i = 0; i != 3; i = i + 1) { g(i); } }", `LIST
    FUNCDECL {VOID} f
        NULL
        BLOCK
            LIST
                BLOCK
                    LIST
                        DECL {INT} i
                            CAST {INT}
                                INT 0
                        WHILE
                            BINARYOP NEQ
                                SYM i
                                INT 3
                            BLOCK
                                LIST
                                    STATEMENT
                                        FUNCALL g
                                            PARAM
                                                SYM i
                                    STATEMENT
                                        ASSIGN
                                            SYM i
                                            BINARYOP PLUS
                                                SYM i
                                                INT 1
`)

	checkDump(t, "void f() { for (; x; ) {} }", `LIST
    FUNCDECL {VOID} f
        NULL
        BLOCK
            LIST
                WHILE
                    SYM x
                    NULL
`)
}

func TestGlobals(t *testing.T) {
	checkDump(t, "int x = -1; int a, *b = 0;", `LIST
    GLOBDECL {INT} x
        CAST {INT}
            INT 65535
    GLOBDECL {INT} a
    GLOBDECL {PTR INT} b
        CAST {PTR INT}
            INT 0
`)

	checkDump(t, `char s[] = "hi"; int n[4];`, `LIST
    GLOBDECL {CHAR[]} s
        STRING "hi"
    GLOBDECL {INT[4]} n
`)
}

func TestExpressions(t *testing.T) {
	checkDump(t, "int f(int *a, int n) { return a[2] + n * 4 << 1; }", `LIST
    FUNCDECL {INT} f
        PARAMDEF {PTR INT} a
        PARAMDEF {INT} n
        BLOCK
            LIST
                RETURN
                    BINARYOP SHL
                        BINARYOP PLUS
                            UNARYOP STAR
                                BINARYOP PLUS
                                    SYM a
                                    INT 2
                            BINARYOP STAR
                                SYM n
                                INT 4
                        INT 1
`)

	checkDump(t, "void f() { if (!p.x == 1) { q = &p; } else if (r) { } else { s(1, 2); } }", `LIST
    FUNCDECL {VOID} f
        NULL
        BLOCK
            LIST
                IF
                    UNARYOP NOT
                        BINARYOP EQ
                            BINARYOP DOT
                                SYM p
                                SYM x
                            INT 1
                    BLOCK
                        LIST
                            STATEMENT
                                ASSIGN
                                    SYM q
                                    UNARYOP AND
                                        SYM p
                    IF
                        SYM r
                        NULL
                        BLOCK
                            LIST
                                STATEMENT
                                    FUNCALL s
                                        PARAM
                                            INT 1
                                            INT 2
`)
}

func TestCasts(t *testing.T) {
	src := `typedef int word;
word f(int n, char *s) { char c = (char) (s[1]); return (word) n + (n); }`
	checkDump(t, src, `LIST
    TYPEDEF {INT} word
    FUNCDECL {ALIAS {word NULL}} f
        PARAMDEF {INT} n
        PARAMDEF {PTR CHAR} s
        BLOCK
            LIST
                DECL {CHAR} c
                    CAST {CHAR}
                        CAST {CHAR}
                            UNARYOP STAR
                                BINARYOP PLUS
                                    SYM s
                                    INT 1
                RETURN
                    BINARYOP PLUS
                        CAST {ALIAS {word NULL}}
                            SYM n
                        SYM n
`)
}

func TestCastGrouping(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"binds to the factor", "(char) s[1]", `UNARYOP STAR
    BINARYOP PLUS
        CAST {CHAR}
            SYM s
        INT 1
`},
		{"member of a cast", "(P) q.x", `BINARYOP DOT
    CAST {ALIAS {P NULL}}
        SYM q
    SYM x
`},
		{"parenthesised symbol", "(a) + 1", `BINARYOP PLUS
    SYM a
    INT 1
`},
		{"product", "(a) * b", `BINARYOP STAR
    SYM a
    SYM b
`},
		{"pointer cast", "(char *) (p + 1)", `CAST {PTR CHAR}
    BINARYOP PLUS
        SYM p
        INT 1
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			root, err := NewParser(lexer.NewLexer("t.c", "void f() { "+tc.src+"; }")).Parse()
			be.Err(t, err, nil)
			body := root.Items()[0].Data.(ast.FuncDeclNode).Body.Data.(ast.BlockNode).Body
			var sb strings.Builder
			ast.Dump(&sb, body.Items()[0].Data.(ast.StatementNode).Expr, false)
			if diff := cmp.Diff(tc.want, sb.String()); diff != "" {
				t.Errorf("AST mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTypedefs(t *testing.T) {
	checkDump(t, "typedef struct P { int x; char c, d; struct P *next; } P; typedef enum { RED, GREEN, } Color;", `LIST
    TYPEDEF {STRUCT {P FIELDLIST {INT x FIELDLIST {CHAR c FIELDLIST {CHAR d FIELDLIST {PTR P next}}}}}} P
    TYPEDEF {ENUM {RED ENUM {GREEN}}} Color
`)
}

func TestExternAndAsm(t *testing.T) {
	checkDump(t, `extern int putc(char c); void f() { __asm__("HALT"); }`, `LIST
    EXTERN
        FUNCDEF {INT} putc
            PARAMDEF {CHAR} c
    FUNCDECL {VOID} f
        NULL
        BLOCK
            LIST
                ASM "HALT"
`)
}

func TestWhileAndBreak(t *testing.T) {
	checkDump(t, "void f() { while (1) { ; break; } }", `LIST
    FUNCDECL {VOID} f
        NULL
        BLOCK
            LIST
                WHILE
                    INT 1
                    BLOCK
                        LIST
                            BREAK
`)
}

func TestMacroSource(t *testing.T) {
	checkDump(t, "#define N 3\nint a[N];", `LIST
    GLOBDECL {INT[3]} a
`)
}

func TestRuntimeLength(t *testing.T) {
	root := parse(t, "void f(int n) { char buf[n]; }")
	body := root.Items()[0].Data.(ast.FuncDeclNode).Body
	decl := body.Data.(ast.BlockNode).Body.Items()[0].Data.(ast.DeclNode)
	be.Equal(t, decl.Typ.LenKind, ast.LenExpr)
	be.Equal(t, decl.Len.Type, ast.Sym)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty struct", "typedef struct S {} S;", "ERROR:t.c:1:9: invalid empty struct"},
		{"empty array in function", "int main() { int a[2] = {}; }", "ERROR:t.c:1:25: invalid empty array"},
		{"empty array at top level", "int a[2] = {};", "ERROR:t.c:1:12: invalid empty array"},
		{"struct decl is committed", "void f() { struct S s = ; }", "ERROR:t.c:1:25: invalid token for fac: 'SEMICOLON'"},
		{"expression fallback", "void f() { 1 + ; }", "ERROR:t.c:1:16: invalid token for fac: 'SEMICOLON'"},
		{"duplicate field", "typedef struct { int a; int a; } T;", "ERROR:t.c:1:29: redefinition of field"},
		{"duplicate enumerator", "typedef enum { A, A, } E;", "ERROR:t.c:1:19: redefinition of enumerator"},
		{"field initializer", "typedef struct { int a = 1; } T;", "ERROR:t.c:1:26: expected SEMICOLON"},
		{"struct of keyword", "void f() { struct int x; }", "ERROR:t.c:1:19: expected the name of an incomplete struct"},
		{"missing semicolon", "int main() { return 0 }", "ERROR:t.c:1:23: expected 'SEMICOLON' found 'BRC'"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			be.Equal(t, parseErr(t, tc.src), tc.want)
		})
	}
}
