package ast

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/simplec/pkg/token"
)

func name(s string) token.Token { return token.Token{Type: token.Sym, Value: s} }

func structOf(n string, fields ...Field) *Type {
	t := &Type{Kind: TyStruct, Fields: fields}
	if n != "" {
		t.Name = name(n)
	}
	return t
}

func field(t *Type, n string) Field { return Field{Typ: t, Name: name(n)} }

func TestStructPacking(t *testing.T) {
	ccI := structOf("a", field(TypeChar, "x"), field(TypeChar, "y"), field(TypeInt, "z"))
	cI := structOf("b", field(TypeChar, "x"), field(TypeInt, "z"))
	ccc := structOf("c", field(TypeChar, "x"), field(TypeChar, "y"), field(TypeChar, "w"))
	be.Equal(t, ccI.Size(), 4)
	be.Equal(t, cI.Size(), 4)
	be.Equal(t, ccc.Size(), 4)

	_, off := ccI.Field("z")
	be.Equal(t, off, 2)
	_, off = ccI.Field("y")
	be.Equal(t, off, 1)
	_, off = cI.Field("z")
	be.Equal(t, off, 2)
	_, off = ccc.Field("w")
	be.Equal(t, off, 2)
	f, _ := ccc.Field("missing")
	be.True(t, f == nil)

	be.Equal(t, ccI.Groups(), [][]int{{0, 1}, {2}})
	be.Equal(t, ccc.Groups(), [][]int{{0, 1}, {2}})
}

func TestSizes(t *testing.T) {
	be.Equal(t, ArrayOf(TypeInt, LenNum, 5).Size(), 10)
	be.Equal(t, ArrayOf(TypeChar, LenNum, 3).Aligned(), 4)
	be.Equal(t, ArrayOf(TypeInt, LenExpr, 0).Size(), 0)
	be.Equal(t, PointerTo(TypeChar).Size(), 2)

	alias := NewAlias(name("Pair"), false)
	be.Equal(t, alias.Size(), 0)
	alias.Target = structOf("pair_s", field(TypeInt, "a"), field(TypeInt, "b"))
	be.Equal(t, alias.Size(), 4)
}

func TestTypeStrings(t *testing.T) {
	p := structOf("P", field(TypeInt, "a"), field(PointerTo(TypeChar), "b"))
	tests := []struct {
		typ  *Type
		want string
	}{
		{NewFunc(TypeInt, nil), "FUNC {INT}"},
		{NewFunc(TypeVoid, []*Type{TypeInt, TypeChar}), "FUNC {VOID PARAM {INT PARAM {CHAR}}}"},
		{PointerTo(NewAlias(name("Node"), true)), "PTR Node"},
		{PointerTo(PointerTo(TypeChar)), "PTR PTR CHAR"},
		{ArrayOf(TypeChar, LenUnset, 0), "CHAR[]"},
		{ArrayOf(TypeInt, LenNum, 25), "INT[25]"},
		{ArrayOf(TypeInt, LenExpr, 0), "INT[...]"},
		{NewAlias(name("Node"), true), "ALIAS {Node NULL struct}"},
		{p, "STRUCT {P FIELDLIST {INT a FIELDLIST {PTR CHAR b}}}"},
		{structOf("", field(TypeInt, "a")), "STRUCT {FIELDLIST {INT a}}"},
		{structOf("Q"), "STRUCT {Q}"},
		{structOf(""), "STRUCT {}"},
		{&Type{Kind: TyEnum, Members: []token.Token{name("RED"), name("GREEN"), name("BLUE")}}, "ENUM {RED ENUM {GREEN ENUM {BLUE}}}"},
	}
	for _, tc := range tests {
		be.Equal(t, tc.typ.String(), tc.want)
	}
	a := NewAlias(name("Pair"), false)
	a.Target = p
	be.Equal(t, a.String(), "ALIAS {Pair ...}")
}

func TestEqualAndExpandable(t *testing.T) {
	intArr5 := ArrayOf(TypeInt, LenNum, 5)
	intArr3 := ArrayOf(TypeInt, LenNum, 3)
	enum := &Type{Kind: TyEnum, Members: []token.Token{name("A")}}

	be.True(t, Expandable(TypeInt, TypeChar))
	be.True(t, Expandable(TypeInt, enum))
	be.True(t, !Expandable(TypeChar, TypeInt))
	be.True(t, Expandable(intArr5, intArr3))
	be.True(t, !Expandable(intArr3, intArr5))
	be.True(t, Expandable(ArrayOf(TypeInt, LenUnset, 0), intArr3))
	be.True(t, Expandable(PointerTo(TypeInt), intArr5))
	be.True(t, !Expandable(PointerTo(TypeChar), intArr5))

	be.True(t, Castable(TypeChar, TypeInt))
	be.True(t, Castable(PointerTo(TypeChar), PointerTo(TypeInt)))
	be.True(t, !Castable(TypeInt, PointerTo(TypeInt)))

	// aliases are transparent
	p := structOf("P", field(TypeInt, "a"))
	alias := NewAlias(name("Pt"), false)
	alias.Target = p
	be.True(t, Equal(alias, p))
	be.True(t, Equal(PointerTo(alias), PointerTo(p)))
	be.True(t, Equal(structOf("", field(TypeInt, "a")), structOf("", field(TypeInt, "a"))))
	be.True(t, !Equal(structOf("", field(TypeInt, "a")), structOf("", field(TypeInt, "b"))))
	be.True(t, Equal(ArrayOf(TypeInt, LenNum, 2), ArrayOf(TypeInt, LenNum, 9)))
	be.True(t, !Equal(NewFunc(TypeInt, []*Type{TypeInt}), NewFunc(TypeInt, nil)))
}

func TestDump(t *testing.T) {
	loc := token.Location{Row: 1, Col: 1, Len: 1}
	lit := token.Token{Type: token.Int, Value: "2"}
	ret := NewReturn(loc, NewSym(name("a")))
	decl := NewDecl(loc, false, TypeInt, name("a"), NewCast(loc, TypeInt, NewInt(loc, lit, 2), false), nil)
	body := NewBlock(loc, NewList(loc, []*Node{decl, ret}))
	fn := NewFuncDecl(loc, TypeInt, name("main"), nil, body)
	root := NewList(loc, []*Node{fn})

	var sb strings.Builder
	Dump(&sb, root, false)
	want := `LIST
    FUNCDECL {INT} main
        NULL
        BLOCK
            LIST
                DECL {INT} a
                    CAST {INT}
                        INT 2
                RETURN
                    SYM a
`
	be.Equal(t, sb.String(), want)

	fn.Typ = NewFunc(TypeInt, nil)
	ret.Data.(ReturnNode).Expr.Typ = TypeInt
	sb.Reset()
	Dump(&sb, ret, true)
	be.Equal(t, sb.String(), "RETURN\n    SYM a :: {INT <2>}\n")

	cast := decl.Data.(DeclNode).Expr
	cast.Typ = TypeInt
	cast.Data.(CastNode).Expr.Typ = TypeInt
	sb.Reset()
	Dump(&sb, cast, true)
	be.Equal(t, sb.String(), "CAST {INT} :: {INT <2>}\n    INT 2 :: {INT <2>}\n")
}

func TestZeroFill(t *testing.T) {
	loc := token.Location{Row: 1}
	zero := NewInt(loc, token.Token{Type: token.Int, Value: "0"}, 0)
	one := NewInt(loc, token.Token{Type: token.Int, Value: "1"}, 1)
	be.True(t, NewArray(loc, []*Node{zero}).IsZeroFill())
	be.True(t, !NewArray(loc, []*Node{one}).IsZeroFill())
	be.True(t, !NewArray(loc, []*Node{zero, zero}).IsZeroFill())
}
