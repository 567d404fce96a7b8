package parser

import (
	"github.com/xplshn/simplec/pkg/ast"
	"github.com/xplshn/simplec/pkg/lexer"
	"github.com/xplshn/simplec/pkg/token"
	"github.com/xplshn/simplec/pkg/util"
)

// bailout unwinds a production. Parse and speculate recover it, every other
// panic goes through untouched.
type bailout struct{ err error }

// Parser holds the state for the parsing process
type Parser struct {
	lex *lexer.Lexer
}

// NewParser creates a Parser reading tokens from l
func NewParser(l *lexer.Lexer) *Parser {
	return &Parser{lex: l}
}

// Parse reads the whole translation unit and returns its LIST of globals.
func (p *Parser) Parse() (root *ast.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			root, err = nil, b.err
		}
	}()

	var globals []*ast.Node
	for !p.check(token.None) {
		globals = append(globals, p.global()...)
	}
	var loc token.Location
	if len(globals) > 0 {
		loc = token.Union(globals[0].Loc, globals[len(globals)-1].Loc)
	}
	return ast.NewList(loc, globals), nil
}

// Parser helpers
func (p *Parser) fail(err error) { panic(bailout{err}) }

func (p *Parser) peek() token.Token {
	tok, err := p.lex.Peek()
	if err != nil {
		p.fail(err)
	}
	return tok
}

func (p *Parser) next() token.Token {
	tok, err := p.lex.Next()
	if err != nil {
		p.fail(err)
	}
	return tok
}

func (p *Parser) check(tokType token.Type) bool { return p.peek().Type == tokType }

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.next()
	return true
}

func (p *Parser) expect(tokType token.Type) token.Token {
	tok, err := p.lex.Expect(tokType)
	if err != nil {
		p.fail(err)
	}
	return tok
}

// since spans from start to the last consumed token.
func (p *Parser) since(start token.Location) token.Location {
	return token.Union(start, p.lex.Last().Loc)
}

// speculate runs f and rewinds the lexer when it fails. Committed
// diagnostics are never swallowed.
func speculate[T any](p *Parser, f func() T) (res T, err error) {
	snap := p.lex.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok || util.IsCommitted(b.err) {
				panic(r)
			}
			p.lex.Restore(snap)
			var zero T
			res, err = zero, b.err
		}
	}()
	return f(), nil
}

// Top-Level Parsing
func (p *Parser) global() []*ast.Node {
	switch p.peek().Type {
	case token.Typedef:
		return []*ast.Node{p.typedef()}
	case token.Extern:
		return []*ast.Node{p.extern()}
	}

	decl, err := speculate(p, func() *ast.Node {
		d := p.decl(true)
		p.expect(token.Semicolon)
		return d
	})
	if err == nil {
		if decl.Type == ast.List {
			return decl.Items()
		}
		return []*ast.Node{decl}
	}
	return []*ast.Node{p.funcDecl()}
}

func (p *Parser) typedef() *ast.Node {
	td := p.expect(token.Typedef)

	var typ *ast.Type
	switch p.peek().Type {
	case token.Struct:
		typ = p.structDef()
	case token.Enum:
		typ = p.enumDef()
	default:
		typ = p.parseType()
	}

	name := p.expect(token.Sym)
	p.expect(token.Semicolon)
	return ast.NewTypedef(td.Loc, typ, name)
}

func (p *Parser) extern() *ast.Node {
	start := p.expect(token.Extern).Loc
	defStart := p.peek().Loc
	ret := p.parseType()
	name := p.expect(token.Sym)
	params := p.paramDef()
	def := ast.NewFuncDef(p.since(defStart), ret, name, params)
	p.expect(token.Semicolon)
	return ast.NewExtern(token.Union(start, def.Loc), def)
}

func (p *Parser) funcDecl() *ast.Node {
	start := p.peek().Loc
	ret := p.parseType()
	name := p.expect(token.Sym)
	params := p.paramDef()
	body := p.block()
	return ast.NewFuncDecl(p.since(start), ret, name, params, body)
}

func (p *Parser) paramDef() []*ast.Node {
	p.expect(token.ParO)
	if p.match(token.ParC) {
		return nil
	}

	var params []*ast.Node
	for {
		start := p.peek().Loc
		typ := p.parseType()
		name := p.expect(token.Sym)
		params = append(params, ast.NewParamDef(token.Union(start, name.Loc), typ, name))
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.ParC)
	return params
}

// Type Parsing
func (p *Parser) parseType() *ast.Type {
	isStruct := p.match(token.Struct)

	tok := p.peek()
	var typ *ast.Type
	switch {
	case p.match(token.VoidKw):
		typ = ast.TypeVoid
	case p.match(token.IntKw):
		typ = ast.TypeInt
	case p.match(token.CharKw):
		typ = ast.TypeChar
	default:
		typ = ast.NewAlias(p.expect(token.Sym), isStruct)
	}
	if isStruct && typ.Kind != ast.TyAlias {
		p.fail(util.Errorf(tok.Loc, "expected the name of an incomplete struct"))
	}

	for p.match(token.Star) {
		typ = ast.PointerTo(typ)
	}
	return typ
}

func (p *Parser) structDef() *ast.Type {
	start := p.expect(token.Struct).Loc
	var name token.Token
	if p.check(token.Sym) {
		name = p.next()
	}
	p.expect(token.BrO)
	if p.match(token.BrC) {
		p.fail(util.Commit(util.Errorf(p.since(start), "invalid empty struct")))
	}

	var fields []ast.Field
	for {
		d := p.decl(false)
		p.expect(token.Semicolon)

		decls := []*ast.Node{d}
		if d.Type == ast.List {
			decls = d.Items()
		}
		for _, n := range decls {
			decl := n.Data.(ast.DeclNode)
			if decl.Expr != nil {
				p.fail(util.Errorf(decl.Expr.Loc, "expected SEMICOLON"))
			}
			for _, f := range fields {
				if f.Name.Value == decl.Name.Value {
					p.fail(util.Errorf(decl.Name.Loc, "redefinition of field"))
				}
			}
			fields = append(fields, ast.Field{Typ: decl.Typ, Name: decl.Name})
		}

		if p.match(token.BrC) {
			break
		}
	}
	return &ast.Type{Kind: ast.TyStruct, Name: name, Fields: fields}
}

// enumDef wants a comma after every enumerator, the last one included.
func (p *Parser) enumDef() *ast.Type {
	p.expect(token.Enum)
	p.expect(token.BrO)

	members := []token.Token{p.expect(token.Sym)}
	p.expect(token.Comma)
	for !p.match(token.BrC) {
		name := p.expect(token.Sym)
		p.expect(token.Comma)
		for _, m := range members {
			if m.Value == name.Value {
				p.fail(util.Errorf(name.Loc, "redefinition of enumerator"))
			}
		}
		members = append(members, name)
	}
	return &ast.Type{Kind: ast.TyEnum, Members: members}
}

// Statement and Declaration Parsing

// decl parses one declaration or a comma separated list of them sharing a
// base type. A list comes back as a LIST of DECL nodes.
func (p *Parser) decl(global bool) *ast.Node {
	start := p.peek().Loc
	typ := p.parseType()
	name := p.expect(token.Sym)

	var length *ast.Node
	lenKind, n := ast.NotArray, 0
	if p.match(token.SqO) {
		if p.match(token.SqC) {
			lenKind = ast.LenUnset
		} else {
			e := p.expr()
			p.expect(token.SqC)
			if e.Type == ast.Int {
				lenKind, n = ast.LenNum, e.Data.(ast.IntNode).Value
			} else {
				lenKind, length = ast.LenExpr, e
			}
		}
	}

	var init *ast.Node
	if p.match(token.Equal) {
		init = p.expr()
	}
	if lenKind != ast.NotArray {
		typ = ast.ArrayOf(typ, lenKind, n)
	}
	if init != nil && lenKind != ast.LenUnset {
		init = ast.NewCast(init.Loc, typ, init, false)
	}
	end := name.Loc
	if init != nil {
		end = init.Loc
	}
	d := ast.NewDecl(token.Union(start, end), global, typ, name, init, length)

	if lenKind != ast.NotArray || !p.check(token.Comma) {
		return d
	}

	decls := []*ast.Node{d}
	for p.match(token.Comma) {
		start := p.peek().Loc
		elemType := typ
		if p.match(token.Star) {
			elemType = ast.PointerTo(typ)
		}
		name := p.expect(token.Sym)
		var init *ast.Node
		end := name.Loc
		if p.match(token.Equal) {
			e := p.expr()
			init, end = ast.NewCast(e.Loc, elemType, e, false), e.Loc
		}
		decls = append(decls, ast.NewDecl(token.Union(start, end), global, elemType, name, init, nil))
	}
	return ast.NewList(d.Loc, decls)
}

func (p *Parser) asm() *ast.Node {
	start := p.expect(token.Asm).Loc
	p.expect(token.ParO)
	text := p.expect(token.String)
	p.expect(token.ParC)
	return ast.NewAsm(p.since(start), text)
}

// statement returns nil for an empty statement.
func (p *Parser) statement() *ast.Node {
	start := p.peek()

	switch {
	case p.match(token.Semicolon):
		return nil
	case p.match(token.Break):
		loc := p.lex.Last().Loc
		p.expect(token.Semicolon)
		return ast.NewBreak(loc)
	case p.match(token.Return):
		var e *ast.Node
		end := start.Loc
		if !p.check(token.Semicolon) {
			e = p.expr()
			end = e.Loc
		}
		p.expect(token.Semicolon)
		return ast.NewReturn(token.Union(start.Loc, end), e)
	}

	decl, err := speculate(p, func() *ast.Node {
		d := p.decl(false)
		p.expect(token.Semicolon)
		return d
	})
	if err == nil {
		return decl
	}
	if start.Type == token.Struct {
		p.fail(util.Commit(err))
	}

	if a, err := speculate(p, func() *ast.Node {
		a := p.asm()
		p.expect(token.Semicolon)
		return a
	}); err == nil {
		return a
	}

	e := p.expr()
	if p.match(token.Equal) {
		rhs := p.expr()
		p.expect(token.Semicolon)
		e = ast.NewAssign(token.Union(e.Loc, rhs.Loc), e, rhs)
		return ast.NewStatement(e.Loc, e)
	}
	p.expect(token.Semicolon)
	return ast.NewStatement(e.Loc, e)
}

func (p *Parser) code() *ast.Node {
	switch p.peek().Type {
	case token.BrO:
		return p.block()
	case token.If:
		return p.ifStmt()
	case token.For:
		return p.forStmt()
	case token.While:
		return p.whileStmt()
	}
	return p.statement()
}

// block returns nil for a block without statements.
func (p *Parser) block() *ast.Node {
	open := p.expect(token.BrO)

	var items []*ast.Node
	for !p.check(token.BrC) {
		if c := p.code(); c != nil {
			items = append(items, c)
		}
	}
	brc := p.expect(token.BrC)
	if len(items) == 0 {
		return nil
	}

	loc := token.Union(open.Loc, brc.Loc)
	return ast.NewBlock(loc, ast.NewList(loc, items))
}

func (p *Parser) ifStmt() *ast.Node {
	start := p.expect(token.If).Loc
	p.expect(token.ParO)
	cond := p.expr()
	p.expect(token.ParC)
	then := p.block()

	var els *ast.Node
	if p.match(token.Else) {
		if p.check(token.If) {
			els = p.ifStmt()
		} else {
			els = p.block()
		}
	}
	return ast.NewIf(p.since(start), cond, then, els)
}

// forStmt lowers 'for (init cond; inc) body' to
// '{ init; while (cond) { body; inc; } }'.
func (p *Parser) forStmt() *ast.Node {
	start := p.expect(token.For).Loc
	p.expect(token.ParO)
	init := p.statement()
	cond := p.expr()
	p.expect(token.Semicolon)

	var inc *ast.Node
	if !p.check(token.ParC) {
		inc = p.expr()
		if !p.check(token.ParC) {
			p.expect(token.Equal)
			rhs := p.expr()
			inc = ast.NewAssign(token.Union(inc.Loc, rhs.Loc), inc, rhs)
		}
		inc = ast.NewStatement(inc.Loc, inc)
	}
	p.expect(token.ParC)
	loc := p.since(start)

	body := p.block()
	if inc != nil {
		if body == nil {
			body = ast.NewBlock(inc.Loc, ast.NewList(inc.Loc, []*ast.Node{inc}))
		} else {
			list := body.Data.(ast.BlockNode).Body
			items := append(list.Items()[:len(list.Items()):len(list.Items())], inc)
			body = ast.NewBlock(body.Loc, ast.NewList(list.Loc, items))
		}
	}

	loop := ast.NewWhile(loc, cond, body)
	if init == nil {
		return loop
	}
	return ast.NewBlock(loc, ast.NewList(loc, []*ast.Node{init, loop}))
}

func (p *Parser) whileStmt() *ast.Node {
	start := p.expect(token.While).Loc
	p.expect(token.ParO)
	cond := p.expr()
	p.expect(token.ParC)
	body := p.block()
	return ast.NewWhile(p.since(start), cond, body)
}

// Expression Parsing
func (p *Parser) expr() *ast.Node {
	start := p.peek().Loc
	not := p.match(token.Not)
	n := p.comp()
	if not {
		n = ast.NewUnaryOp(token.Union(start, n.Loc), token.Not, n)
	}
	return n
}

func (p *Parser) comp() *ast.Node {
	a := p.atom()
	if op := p.peek().Type; op == token.Eq || op == token.Neq {
		p.next()
		b := p.atom()
		a = ast.NewBinaryOp(token.Union(a.Loc, b.Loc), op, a, b)
	}
	return a
}

func (p *Parser) atom() *ast.Node {
	a := p.sum()
	if op := p.peek().Type; op == token.Shl || op == token.Shr {
		p.next()
		b := p.sum()
		a = ast.NewBinaryOp(token.Union(a.Loc, b.Loc), op, a, b)
	}
	return a
}

func (p *Parser) sum() *ast.Node {
	a := p.term()
	for op := p.peek().Type; op == token.Plus || op == token.Minus; op = p.peek().Type {
		p.next()
		b := p.term()
		a = ast.NewBinaryOp(token.Union(a.Loc, b.Loc), op, a, b)
	}
	return a
}

func (p *Parser) term() *ast.Node {
	a := p.unary()
	for op := p.peek().Type; op == token.Star || op == token.Slash; op = p.peek().Type {
		p.next()
		b := p.unary()
		a = ast.NewBinaryOp(token.Union(a.Loc, b.Loc), op, a, b)
	}
	return a
}

func (p *Parser) unary() *ast.Node {
	tok := p.peek()
	switch tok.Type {
	case token.Plus, token.Minus, token.And, token.Star:
		p.next()
		arg := p.unary()
		if arg.Type == ast.Int {
			switch tok.Type {
			case token.Minus:
				lit := arg.Data.(ast.IntNode)
				lit.Value = (0x10000 - lit.Value) & 0xFFFF
				arg.Data, arg.Loc = lit, token.Union(tok.Loc, arg.Loc)
				return arg
			case token.Plus:
				return arg
			}
		}
		return ast.NewUnaryOp(token.Union(tok.Loc, arg.Loc), tok.Type, arg)
	}
	return p.postfix()
}

// postfix applies member access and indexing; 'a[i]' is '*(a + i)'.
func (p *Parser) postfix() *ast.Node {
	n := p.fac()
	for {
		switch {
		case p.match(token.Dot):
			name := p.expect(token.Sym)
			n = ast.NewBinaryOp(token.Union(n.Loc, name.Loc), token.Dot, n, ast.NewSym(name))
		case p.match(token.SqO):
			i := p.expr()
			loc := token.Union(n.Loc, p.expect(token.SqC).Loc)
			n = ast.NewUnaryOp(loc, token.Star, ast.NewBinaryOp(loc, token.Plus, n, i))
		default:
			return n
		}
	}
}

func (p *Parser) fac() *ast.Node {
	tok := p.peek()
	switch tok.Type {
	case token.ParO:
		p.next()
		// '(T) fac' is a cast only when a type, ')' and a factor all parse;
		// '(x) + 1' falls back to a parenthesised expression.
		cast, err := speculate(p, func() *ast.Node {
			typ := p.parseType()
			p.expect(token.ParC)
			arg := p.fac()
			return ast.NewCast(token.Union(tok.Loc, arg.Loc), typ, arg, true)
		})
		if err == nil {
			return cast
		}
		e := p.expr()
		p.expect(token.ParC)
		return e
	case token.BrO:
		return p.array()
	case token.Sym:
		p.next()
		if p.check(token.ParO) {
			return p.funcCall(tok)
		}
		return ast.NewSym(tok)
	case token.Int, token.Hex, token.Char:
		p.next()
		return ast.NewInt(tok.Loc, tok, tok.Num)
	case token.String:
		p.next()
		return ast.NewString(tok)
	}
	p.fail(util.Errorf(tok.Loc, "invalid token for fac: '%s'", tok.Type))
	return nil
}

func (p *Parser) funcCall(name token.Token) *ast.Node {
	p.expect(token.ParO)
	var args *ast.Node
	if !p.match(token.ParC) {
		var items []*ast.Node
		for {
			items = append(items, p.expr())
			if !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.ParC)
		args = ast.NewParam(token.Union(items[0].Loc, items[len(items)-1].Loc), items)
	}
	return ast.NewFuncCall(p.since(name.Loc), name, args)
}

func (p *Parser) array() *ast.Node {
	open := p.expect(token.BrO)
	if p.match(token.BrC) {
		p.fail(util.Commit(util.Errorf(p.since(open.Loc), "invalid empty array")))
	}

	var items []*ast.Node
	for {
		items = append(items, p.expr())
		if !p.match(token.Comma) {
			break
		}
	}
	brc := p.expect(token.BrC)
	return ast.NewArray(token.Union(open.Loc, brc.Loc), items)
}
