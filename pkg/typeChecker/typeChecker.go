// Package typeChecker resolves type aliases and annotates every expression
// node with its type. The tree is modified in place: array operands of
// pointer arithmetic get an explicit decay cast.
package typeChecker

import (
	"github.com/xplshn/simplec/pkg/ast"
	"github.com/xplshn/simplec/pkg/config"
	"github.com/xplshn/simplec/pkg/symtab"
	"github.com/xplshn/simplec/pkg/token"
	"github.com/xplshn/simplec/pkg/util"
)

type bailout struct{ err error }

type TypeChecker struct {
	cfg       *config.Config
	syms      *symtab.Table
	ret       *ast.Type // return type of the function being checked
	resolving map[*ast.Type]bool
	resolved  map[*ast.Type]bool
}

func NewTypeChecker(cfg *config.Config) *TypeChecker {
	return &TypeChecker{
		cfg:       cfg,
		syms:      symtab.New(),
		resolving: make(map[*ast.Type]bool),
		resolved:  make(map[*ast.Type]bool),
	}
}

func (tc *TypeChecker) fail(err error) { panic(bailout{err}) }

func (tc *TypeChecker) try(err error) {
	if err != nil {
		tc.fail(err)
	}
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		b, ok := r.(bailout)
		if !ok {
			panic(r)
		}
		*err = b.err
	}
}

// Check annotates the translation unit rooted at root.
func (tc *TypeChecker) Check(root *ast.Node) (err error) {
	defer recoverInto(&err)

	for _, n := range root.Items() {
		if n.Type == ast.Typedef {
			tc.declareTypedef(n)
		}
	}
	for _, n := range root.Items() {
		tc.checkGlobal(n)
	}
	return nil
}

// CheckMain verifies the entry point after a successful Check.
func (tc *TypeChecker) CheckMain() error {
	s := tc.syms.Global("main")
	if s == nil {
		return util.Errorf(token.Location{}, "no main function found")
	}
	if s.Kind != symtab.Func || !s.Typ.Is(ast.TyFunc) || !s.Typ.Unalias().Ret.Is(ast.TyInt) {
		return util.Errorf(s.Name.Loc, "expected main to be FUNC with return type INT")
	}
	return nil
}

// declareTypedef registers the names a typedef introduces. A named struct
// is known as incomplete first so that its fields can point to it.
func (tc *TypeChecker) declareTypedef(n *ast.Node) {
	d := n.Data.(ast.TypedefNode)
	typ := d.Typ

	if typ.Kind == ast.TyStruct && typ.Name.Type != token.None {
		tc.try(tc.syms.Add(&symtab.Symbol{Name: typ.Name, Typ: typ, Kind: symtab.TypeIncomplete}))
	}
	if typ.Kind == ast.TyEnum {
		for i, m := range typ.Members {
			tc.try(tc.syms.Add(&symtab.Symbol{Name: m, Typ: typ, Kind: symtab.Constant, Value: i}))
		}
	}

	if typ.Kind == ast.TyStruct && typ.Name.Value == d.Name.Value {
		tc.syms.Global(d.Name.Value).Kind = symtab.Type
		return
	}
	tc.try(tc.syms.Add(&symtab.Symbol{Name: d.Name, Typ: typ, Kind: symtab.Type}))
}

// Type resolution

func (tc *TypeChecker) resolveType(t *ast.Type) {
	if t == nil {
		return
	}
	switch t.Kind {
	case ast.TyPtr, ast.TyArray:
		tc.resolveType(t.Elem)
	case ast.TyFunc:
		tc.resolveType(t.Ret)
		for _, p := range t.Params {
			tc.resolveType(p)
		}
	case ast.TyParam:
		for _, p := range t.Params {
			tc.resolveType(p)
		}
	case ast.TyAlias:
		tc.resolveAlias(t)
	case ast.TyStruct:
		tc.resolveStruct(t)
	}
}

func (tc *TypeChecker) resolveAlias(t *ast.Type) {
	if t.Target != nil {
		return
	}
	if tc.resolving[t] {
		tc.fail(util.Errorf(t.Name.Loc, "circular type alias '%s'", t.Name.Value))
	}
	tc.resolving[t] = true
	defer delete(tc.resolving, t)

	s, err := tc.syms.Find(t.Name)
	tc.try(err)
	switch s.Kind {
	case symtab.TypeIncomplete:
		if !t.IsStruct {
			tc.fail(util.Errorf(t.Name.Loc, "must use 'struct %s'", t.Name.Value))
		}
	case symtab.Type:
	default:
		tc.fail(util.Errorf(t.Name.Loc, "expected to be a type"))
	}
	if t.IsStruct && s.Typ.Kind != ast.TyStruct {
		tc.fail(util.Errorf(t.Name.Loc, "'%s' is not a struct", t.Name.Value))
	}

	tc.resolveType(s.Typ)
	t.Target = s.Typ
}

func (tc *TypeChecker) resolveStruct(t *ast.Type) {
	if tc.resolved[t] || tc.resolving[t] {
		return
	}
	tc.resolving[t] = true
	for _, f := range t.Fields {
		tc.resolveType(f.Typ)
		if tc.embedsResolving(f.Typ) || f.Typ.Size() == 0 {
			tc.fail(util.Errorf(f.Name.Loc, "field has incomplete type"))
		}
	}
	delete(tc.resolving, t)
	tc.resolved[t] = true
}

// embedsResolving reports a field that contains, by value, a struct whose
// layout is still being resolved.
func (tc *TypeChecker) embedsResolving(t *ast.Type) bool {
	t = t.Unalias()
	for t != nil && t.Kind == ast.TyArray {
		t = t.Elem.Unalias()
	}
	return t != nil && t.Kind == ast.TyStruct && tc.resolving[t]
}

// Declarations and statements

func (tc *TypeChecker) checkGlobal(n *ast.Node) {
	switch d := n.Data.(type) {
	case ast.TypedefNode:
		tc.resolveType(d.Typ)
		n.Typ = ast.TypeVoid
	case ast.ExternNode:
		def := d.Def.Data.(ast.FuncDefNode)
		params := tc.resolveParams(def.Params)
		tc.resolveType(def.Ret)
		d.Def.Typ = ast.NewFunc(def.Ret, params)
		tc.try(tc.syms.Add(&symtab.Symbol{Name: def.Name, Typ: d.Def.Typ, Kind: symtab.Func}))
		n.Typ = ast.TypeVoid
	case ast.FuncDeclNode:
		tc.checkFunc(n, d)
	case ast.ListNode:
		for _, item := range d.Items {
			tc.checkGlobal(item)
		}
		n.Typ = ast.TypeVoid
	case ast.DeclNode:
		tc.checkDecl(n, d)
	default:
		util.Unreachable("unexpected global %s", n.Type)
	}
}

func (tc *TypeChecker) resolveParams(params []*ast.Node) []*ast.Type {
	var types []*ast.Type
	for _, p := range params {
		pd := p.Data.(ast.ParamDefNode)
		tc.resolveType(pd.Typ)
		p.Typ = pd.Typ
		types = append(types, pd.Typ)
	}
	return types
}

func (tc *TypeChecker) checkFunc(n *ast.Node, d ast.FuncDeclNode) {
	tc.resolveType(d.Ret)
	params := tc.resolveParams(d.Params)
	n.Typ = ast.NewFunc(d.Ret, params)
	tc.try(tc.syms.Add(&symtab.Symbol{Name: d.Name, Typ: n.Typ, Kind: symtab.Func}))

	tc.syms.Push()
	defer tc.syms.Pop()
	for _, p := range d.Params {
		pd := p.Data.(ast.ParamDefNode)
		tc.try(tc.syms.Add(&symtab.Symbol{Name: pd.Name, Typ: pd.Typ, Kind: symtab.Local}))
	}

	tc.ret = d.Ret
	if d.Body != nil {
		body := d.Body.Data.(ast.BlockNode).Body
		tc.checkNode(body)
		d.Body.Typ = ast.TypeVoid
	}
	tc.ret = nil
}

func (tc *TypeChecker) checkNode(n *ast.Node) {
	if n == nil {
		return
	}
	switch d := n.Data.(type) {
	case ast.BlockNode:
		tc.syms.Push()
		tc.checkNode(d.Body)
		tc.syms.Pop()
	case ast.ListNode:
		for _, item := range d.Items {
			tc.checkNode(item)
		}
	case ast.ReturnNode:
		if d.Expr != nil {
			tc.checkExpect(d.Expr, tc.ret)
		}
	case ast.IfNode:
		cond := tc.checkExpr(d.Cond)
		if !cond.Is(ast.TyInt) && !cond.Is(ast.TyPtr) {
			tc.fail(util.Errorf(d.Cond.Loc, "expected INT or PTR, found '%s'", cond))
		}
		tc.checkNode(d.Then)
		tc.checkNode(d.Else)
	case ast.WhileNode:
		tc.checkExpandable(d.Cond, ast.TypeInt)
		tc.checkNode(d.Body)
	case ast.AsmNode:
		if !tc.cfg.IsFeatureEnabled(config.FeatAsm) {
			tc.fail(util.Errorf(n.Loc, "inline assembly is disabled"))
		}
	case ast.DeclNode:
		tc.checkDecl(n, d)
		return
	case ast.StatementNode:
		tc.checkExpr(d.Expr)
	case nil:
		// BREAK
	default:
		util.Unreachable("unexpected statement %s", n.Type)
	}
	n.Typ = ast.TypeVoid
}

func (tc *TypeChecker) checkDecl(n *ast.Node, d ast.DeclNode) {
	tc.resolveType(d.Typ)
	typ := d.Typ

	if typ.Kind == ast.TyArray {
		switch typ.LenKind {
		case ast.LenUnset:
			if d.Expr == nil {
				tc.fail(util.Errorf(n.Loc, "array without length uninitialized"))
			}
		case ast.LenExpr:
			if d.Expr != nil {
				tc.fail(util.Errorf(n.Loc, "array with variable length cannot be initialized"))
			}
			tc.checkExpect(d.Len, ast.TypeInt)
		}
	}

	if d.Expr != nil {
		tc.checkExpandable(d.Expr, typ)
		if typ.Kind == ast.TyArray && typ.LenKind == ast.LenUnset {
			d.Typ = d.Expr.Typ
			n.Data = d
		}
		d.Expr.Typ = d.Typ
	}

	if d.Typ.Size() == 0 {
		tc.fail(util.Errorf(n.Loc, "variable has incomplete type: %s", d.Typ))
	}

	kind := symtab.Local
	if n.Type == ast.GlobDecl {
		kind = symtab.Global
	}
	tc.try(tc.syms.Add(&symtab.Symbol{Name: d.Name, Typ: d.Typ, Kind: kind}))
	n.Typ = ast.TypeVoid
}

// Expressions

func (tc *TypeChecker) checkExpect(n *ast.Node, want *ast.Type) {
	got := tc.checkExpr(n)
	if !ast.Equal(want, got) {
		tc.fail(util.Errorf(n.Loc, "expected '%s', found '%s'", want, got))
	}
}

func (tc *TypeChecker) checkExpandable(n *ast.Node, want *ast.Type) {
	got := tc.checkExpr(n)
	if !ast.Expandable(want, got) {
		tc.fail(util.Errorf(n.Loc, "expected '%s', found '%s'", want, got))
	}
}

func (tc *TypeChecker) checkExpr(n *ast.Node) *ast.Type {
	if n.Typ != nil {
		return n.Typ
	}
	var typ *ast.Type
	switch d := n.Data.(type) {
	case ast.BinaryOpNode:
		typ = tc.checkBinary(n, d)
	case ast.UnaryOpNode:
		typ = tc.checkUnary(n, d)
	case ast.IntNode:
		typ = ast.TypeInt
		if d.Tok.Type == token.Char || d.Tok.Type == token.Hex && len(d.Tok.Value) == 4 {
			typ = ast.TypeChar
		}
	case ast.StringNode:
		typ = ast.PointerTo(ast.TypeChar)
	case ast.SymNode:
		s, err := tc.syms.Find(d.Tok)
		tc.try(err)
		if s.Kind == symtab.Type || s.Kind == symtab.TypeIncomplete {
			tc.fail(util.Errorf(n.Loc, "symbol '%s' is not a value", d.Tok.Value))
		}
		typ = s.Typ
	case ast.AssignNode:
		typ = tc.checkAssign(n, d)
	case ast.FuncCallNode:
		typ = tc.checkCall(n, d)
	case ast.ListNode:
		if n.Type != ast.Array {
			util.Unreachable("unexpected list %s in expression", n.Type)
		}
		t0 := tc.checkExpr(d.Items[0])
		for _, item := range d.Items[1:] {
			tc.checkExpect(item, t0)
		}
		typ = ast.ArrayOf(t0, ast.LenNum, len(d.Items))
	case ast.CastNode:
		typ = tc.checkCast(n, d)
	default:
		util.Unreachable("unexpected expression %s", n.Type)
	}
	n.Typ = typ
	return typ
}

func invalidOp(n *ast.Node, op token.Type, lt, rt *ast.Type) error {
	return util.Errorf(n.Loc, "invalid operation '%s' between '%s' and '%s'", op, lt, rt)
}

func (tc *TypeChecker) checkBinary(n *ast.Node, d ast.BinaryOpNode) *ast.Type {
	switch d.Op {
	case token.Dot:
		lt := tc.checkExpr(d.Lhs)
		if !lt.Is(ast.TyStruct) {
			tc.fail(util.Errorf(d.Lhs.Loc, "expected a 'STRUCT', found '%s'", lt))
		}
		name := d.Rhs.Data.(ast.SymNode).Tok
		f, _ := lt.Field(name.Value)
		if f == nil {
			tc.fail(util.Errorf(d.Rhs.Loc, "member not found in '%s'", lt.Unalias()))
		}
		d.Rhs.Typ = f.Typ
		return f.Typ

	case token.Eq, token.Neq:
		lt := tc.checkExpr(d.Lhs)
		tc.checkExpandable(d.Rhs, lt)
		if !lt.IsIntLike() && !lt.Is(ast.TyPtr) {
			tc.fail(invalidOp(n, d.Op, lt, d.Rhs.Typ))
		}
		return ast.TypeInt

	case token.Plus, token.Minus:
		lt := tc.checkExpr(d.Lhs)
		if d.Op == token.Minus && lt.Is(ast.TyPtr) {
			rt := tc.checkExpr(d.Rhs)
			switch {
			case rt.Is(ast.TyInt):
				return lt
			case rt.Is(ast.TyPtr):
				if !ast.Equal(lt, rt) {
					tc.fail(util.Errorf(d.Rhs.Loc, "expected '%s', found '%s'", lt, rt))
				}
				return ast.TypeInt
			}
			tc.fail(invalidOp(n, d.Op, lt, rt))
		}
		tc.checkExpandable(d.Rhs, ast.TypeInt)
		switch {
		case lt.Is(ast.TyInt), lt.Is(ast.TyPtr):
			return lt
		case lt.IsIntLike():
			return ast.TypeInt
		case lt.Is(ast.TyArray):
			ptr := ast.PointerTo(lt.Unalias().Elem)
			decay := ast.NewCast(d.Lhs.Loc, ptr, d.Lhs, false)
			decay.Typ = ptr
			d.Lhs = decay
			n.Data = d
			return ptr
		}
		tc.fail(invalidOp(n, d.Op, lt, d.Rhs.Typ))

	case token.Star, token.Slash:
		tc.checkExpandable(d.Lhs, ast.TypeInt)
		tc.checkExpandable(d.Rhs, ast.TypeInt)
		if d.Rhs.Type != ast.Int {
			tc.fail(util.Errorf(d.Rhs.Loc, "right operand of '%s' must be an integer literal", d.Op))
		}
		return ast.TypeInt

	case token.Shl, token.Shr:
		tc.checkExpandable(d.Lhs, ast.TypeInt)
		tc.checkExpandable(d.Rhs, ast.TypeInt)
		return ast.TypeInt
	}
	util.Unreachable("unexpected binary operator %s", d.Op)
	return nil
}

func isLvalue(n *ast.Node) bool {
	switch d := n.Data.(type) {
	case ast.SymNode:
		return true
	case ast.UnaryOpNode:
		return d.Op == token.Star
	case ast.BinaryOpNode:
		return d.Op == token.Dot
	}
	return false
}

func (tc *TypeChecker) checkUnary(n *ast.Node, d ast.UnaryOpNode) *ast.Type {
	switch d.Op {
	case token.Minus:
		tc.checkExpandable(d.Arg, ast.TypeInt)
		return ast.TypeInt
	case token.And:
		t := tc.checkExpr(d.Arg)
		if !isLvalue(d.Arg) {
			tc.fail(util.Errorf(d.Arg.Loc, "cannot take the address of this expression"))
		}
		return ast.PointerTo(t)
	case token.Star:
		t := tc.checkExpr(d.Arg)
		if t.Is(ast.TyPtr) || t.Is(ast.TyArray) {
			return t.Unalias().Elem
		}
		tc.fail(util.Errorf(d.Arg.Loc, "cannot dereference non PTR type: '%s'", t))
	case token.Not:
		tc.checkExpect(d.Arg, ast.TypeInt)
		return ast.TypeInt
	}
	util.Unreachable("unexpected unary operator %s", d.Op)
	return nil
}

func (tc *TypeChecker) checkAssign(n *ast.Node, d ast.AssignNode) *ast.Type {
	lt := tc.checkExpr(d.Lhs)
	if lt.Is(ast.TyArray) {
		tc.fail(util.Errorf(n.Loc, "assign to array"))
	}
	if sym, ok := d.Lhs.Data.(ast.SymNode); ok {
		if s := tc.syms.Lookup(sym.Tok.Value); s != nil && s.Kind == symtab.Constant {
			tc.fail(util.Errorf(n.Loc, "assign to enumerator"))
		}
	}
	if !isLvalue(d.Lhs) {
		tc.fail(util.Errorf(d.Lhs.Loc, "expression is not assignable"))
	}
	tc.checkExpect(d.Rhs, lt)
	return lt
}

func (tc *TypeChecker) checkCall(n *ast.Node, d ast.FuncCallNode) *ast.Type {
	s, err := tc.syms.Find(d.Name)
	tc.try(err)
	if s.Kind != symtab.Func || !s.Typ.Is(ast.TyFunc) {
		tc.fail(util.Errorf(n.Loc, "expected 'TY_FUNC', found '%s'", s.Typ))
	}
	fn := s.Typ.Unalias()

	args := d.Args.Items()
	switch {
	case len(args) > len(fn.Params):
		tc.fail(util.Errorf(n.Loc, "too many parameters"))
	case len(args) < len(fn.Params):
		tc.fail(util.Errorf(n.Loc, "too few parameters"))
	}

	var types []*ast.Type
	for i, arg := range args {
		tc.checkExpect(arg, fn.Params[i])
		types = append(types, arg.Typ)
	}
	if d.Args != nil {
		d.Args.Typ = ast.NewParamList(types)
	}
	return fn.Ret
}

func (tc *TypeChecker) checkCast(n *ast.Node, d ast.CastNode) *ast.Type {
	tc.resolveType(d.Target)
	target := d.Target

	if target.Is(ast.TyStruct) && d.Expr.Type == ast.Array {
		tc.checkStructLiteral(n, target, d.Expr)
		return target
	}
	if target.Is(ast.TyArray) && d.Expr.Type == ast.Array && !d.Expr.IsZeroFill() {
		elem := target.Unalias().Elem
		items := d.Expr.Items()
		for i := range items {
			nestLiteral(items, i, elem)
		}
	}

	if d.Explicit {
		src := tc.checkExpr(d.Expr)
		if !ast.Castable(target, src) {
			tc.fail(util.Errorf(n.Loc, "expected '%s', found '%s'", target, src))
		}
	} else {
		tc.checkExpandable(d.Expr, target)
	}
	return target
}

// checkStructLiteral checks an initializer list field by field. {0}
// zero-fills the whole struct.
func (tc *TypeChecker) checkStructLiteral(n *ast.Node, target *ast.Type, lit *ast.Node) {
	items := lit.Items()
	fields := target.Unalias().Fields
	if lit.IsZeroFill() {
		items[0].Typ = ast.TypeInt
		lit.Typ = target
		return
	}
	for i, item := range items {
		if i >= len(fields) {
			tc.fail(util.Errorf(item.Loc, "too many fields"))
		}
		ft := fields[i].Typ
		if ft.Is(ast.TyPtr) && item.Type == ast.Int && item.Data.(ast.IntNode).Value == 0 {
			item.Typ = ft
			continue
		}
		if nestLiteral(items, i, ft) {
			item = items[i]
		}
		tc.checkExpect(item, ft)
	}
	if len(items) < len(fields) {
		tc.fail(util.Errorf(n.Loc, "missing fields"))
	}
	lit.Typ = target
}

// nestLiteral wraps items[i] in an implicit cast to want when it is a
// literal list for a struct or array slot, so the inner list is checked
// and laid out against want instead of as a bare array.
func nestLiteral(items []*ast.Node, i int, want *ast.Type) bool {
	item := items[i]
	if item.Type != ast.Array || !(want.Is(ast.TyStruct) || want.Is(ast.TyArray)) {
		return false
	}
	items[i] = ast.NewCast(item.Loc, want, item, false)
	return true
}
