package symtab

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/simplec/pkg/ast"
	"github.com/xplshn/simplec/pkg/token"
)

func sym(name string, row int) token.Token {
	return token.Token{Type: token.Sym, Value: name, Loc: token.Location{File: "t.c", Row: row, Col: 5, Len: len(name)}}
}

func TestShadowing(t *testing.T) {
	tab := New()
	be.Err(t, tab.Add(&Symbol{Name: sym("x", 1), Typ: ast.TypeInt, Kind: Global}), nil)

	tab.Push()
	be.Equal(t, tab.Depth(), 2)
	be.Err(t, tab.Add(&Symbol{Name: sym("x", 2), Typ: ast.TypeChar, Kind: Local}), nil)

	s, err := tab.Find(sym("x", 3))
	be.Err(t, err, nil)
	be.Equal(t, s.Kind, Local)
	be.Equal(t, s.Typ, ast.TypeChar)
	be.Equal(t, tab.Global("x").Kind, Global)

	tab.Pop()
	s, err = tab.Find(sym("x", 4))
	be.Err(t, err, nil)
	be.Equal(t, s.Kind, Global)
}

func TestRedefinition(t *testing.T) {
	tab := New()
	be.Err(t, tab.Add(&Symbol{Name: sym("f", 1), Kind: Func}), nil)
	err := tab.Add(&Symbol{Name: sym("f", 7), Kind: Global})
	be.Equal(t, err.Error(), "ERROR:t.c:7:5: redefinition of symbol 'f', defined at t.c:1:5")
}

func TestNotDeclared(t *testing.T) {
	tab := New()
	tab.Push()
	_, err := tab.Find(sym("nope", 2))
	be.Equal(t, err.Error(), "ERROR:t.c:2:5: symbol not declared: nope")
	be.True(t, tab.Lookup("nope") == nil)
}

func TestPopGlobalScope(t *testing.T) {
	defer func() { be.True(t, recover() != nil) }()
	New().Pop()
}
