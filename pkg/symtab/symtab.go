// Package symtab is the scoped symbol table shared by the type checker and
// the code generator. Each of them drives its own Table over the same tree.
package symtab

import (
	"github.com/xplshn/simplec/pkg/ast"
	"github.com/xplshn/simplec/pkg/token"
	"github.com/xplshn/simplec/pkg/util"
)

type Kind int

const (
	Local Kind = iota
	Global
	Type
	TypeIncomplete
	Constant
	Func
)

func (k Kind) String() string {
	return [...]string{"LOCAL", "GLOBAL", "TYPE", "TYPEINCOMPLETE", "CONSTANT", "FUNC"}[k]
}

type Symbol struct {
	Name token.Token
	Typ  *ast.Type
	Kind Kind
	// Offset is the stack position of a local relative to the frame
	// base, Label the data label of a global and Value the value of an
	// enumerator.
	Offset int
	Label  int
	Value  int
}

type Table struct {
	scopes [][]*Symbol
}

func New() *Table { return &Table{scopes: [][]*Symbol{nil}} }

func (t *Table) Push() { t.scopes = append(t.scopes, nil) }

func (t *Table) Pop() {
	util.Assert(len(t.scopes) > 1, "cannot pop the global scope")
	t.scopes = t.scopes[:len(t.scopes)-1]
}

// Depth is the number of open scopes, 1 at top level.
func (t *Table) Depth() int { return len(t.scopes) }

// Lookup searches from the innermost scope outwards.
func (t *Table) Lookup(name string) *Symbol {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		if s := find(t.scopes[i], name); s != nil {
			return s
		}
	}
	return nil
}

// Global searches the top level scope only.
func (t *Table) Global(name string) *Symbol { return find(t.scopes[0], name) }

func (t *Table) Find(name token.Token) (*Symbol, error) {
	if s := t.Lookup(name.Value); s != nil {
		return s, nil
	}
	return nil, util.Errorf(name.Loc, "symbol not declared: %s", name.Value)
}

// Add declares sym in the innermost scope. A name may shadow one from an
// outer scope but not one from the same scope.
func (t *Table) Add(sym *Symbol) error {
	top := len(t.scopes) - 1
	if prev := find(t.scopes[top], sym.Name.Value); prev != nil {
		return util.Errorf(sym.Name.Loc, "redefinition of symbol '%s', defined at %s", sym.Name.Value, prev.Name.Loc)
	}
	t.scopes[top] = append(t.scopes[top], sym)
	return nil
}

func find(scope []*Symbol, name string) *Symbol {
	for _, s := range scope {
		if s.Name.Value == name {
			return s
		}
	}
	return nil
}
