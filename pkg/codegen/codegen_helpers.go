package codegen

import (
	"github.com/xplshn/simplec/pkg/ast"
	"github.com/xplshn/simplec/pkg/ir"
	"github.com/xplshn/simplec/pkg/symtab"
	"github.com/xplshn/simplec/pkg/token"
	"github.com/xplshn/simplec/pkg/util"
)

// codegenExpr pushes the value of n, Aligned(n.Typ) bytes.
func (ctx *Context) codegenExpr(n *ast.Node) {
	switch d := n.Data.(type) {
	case ast.IntNode:
		ctx.emit(ir.Int(d.Value))
	case ast.StringNode:
		ctx.emit(ir.StringLit(ctx.internString(d.Value)))
	case ast.SymNode:
		ctx.codegenSym(n, d)
	case ast.BinaryOpNode:
		ctx.codegenBinary(n, d)
	case ast.UnaryOpNode:
		ctx.codegenUnary(n, d)
	case ast.AssignNode:
		ctx.codegenAssign(d, true)
	case ast.FuncCallNode:
		ctx.codegenCall(n, d)
	case ast.ListNode:
		if n.Type != ast.Array {
			util.Unreachable("unexpected list %s in expression", n.Type)
		}
		ctx.codegenArrayLiteral(d.Items, n.Typ.Unalias().Elem)
	case ast.CastNode:
		ctx.codegenCast(n, d)
	default:
		util.Unreachable("unexpected expression %s", n.Type)
	}
}

func (ctx *Context) codegenSym(n *ast.Node, d ast.SymNode) {
	s := ctx.lookup(d.Tok)
	switch {
	case s.Kind == symtab.Constant:
		ctx.emit(ir.Int(s.Value))
		return
	case s.Kind == symtab.Func:
		ctx.fail(util.Errorf(n.Loc, "cannot use function '%s' as a value", d.Tok.Value))
	case s.Typ.Is(ast.TyArray):
		ctx.fail(util.Errorf(n.Loc, "cannot access ARRAY, maybe wanna cast it to PTR"))
	}
	ctx.codegenLvalue(n)
	ctx.emit(ir.Read(s.Typ.Size()))
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

func (ctx *Context) codegenBinary(n *ast.Node, d ast.BinaryOpNode) {
	switch d.Op {
	case token.Dot:
		ctx.codegenMember(n, d)

	case token.Plus, token.Minus:
		op := ir.ArithSum
		if d.Op == token.Minus {
			op = ir.ArithSub
		}
		lt, rt := d.Lhs.Typ, d.Rhs.Typ
		switch {
		case n.Typ.Is(ast.TyPtr):
			size := max(n.Typ.Unalias().Elem.Size(), 1)
			ctx.codegenExpr(d.Lhs)
			ctx.codegenExpr(d.Rhs)
			if size != 1 {
				ctx.emit(ir.Mul(size))
			}
			ctx.emit(ir.Operation(op))
		case d.Op == token.Minus && lt.Is(ast.TyPtr) && rt.Is(ast.TyPtr):
			size := max(lt.Unalias().Elem.Size(), 1)
			if !isPowerOfTwo(size) {
				ctx.fail(util.Errorf(n.Loc, "cannot divide by non power of 2: %d", size))
			}
			ctx.codegenExpr(d.Lhs)
			ctx.codegenExpr(d.Rhs)
			ctx.emit(ir.Operation(ir.ArithSub))
			if size != 1 {
				ctx.emit(ir.Div(size))
			}
		default:
			ctx.codegenExpr(d.Lhs)
			ctx.codegenExpr(d.Rhs)
			ctx.emit(ir.Operation(op))
		}

	case token.Eq, token.Neq:
		// the result is set up front and replaced when the difference
		// is not zero
		eq, ne := 1, 0
		if d.Op == token.Neq {
			eq, ne = 0, 1
		}
		end := ctx.newLabel()
		ctx.emit(ir.Int(eq))
		ctx.codegenExpr(d.Rhs)
		ctx.codegenExpr(d.Lhs)
		ctx.emit(ir.Operation(ir.ArithSub))
		ctx.emit(ir.JmpZ(end))
		ctx.emit(ir.ChangeSP(-2))
		ctx.emit(ir.Int(ne))
		ctx.emit(ir.SetULI(end))

	case token.Shl, token.Shr:
		lit, ok := d.Rhs.Data.(ast.IntNode)
		if !ok {
			ctx.fail(util.Errorf(d.Rhs.Loc, "shift amount must be an integer literal"))
		}
		op := ir.ArithShl
		if d.Op == token.Shr {
			op = ir.ArithShr
		}
		ctx.codegenExpr(d.Lhs)
		for i := 0; i < min(lit.Value, 16); i++ {
			ctx.emit(ir.Operation(op))
		}

	case token.Star:
		k := d.Rhs.Data.(ast.IntNode).Value
		ctx.codegenExpr(d.Lhs)
		if k != 1 {
			ctx.emit(ir.Mul(k))
		}

	case token.Slash:
		k := d.Rhs.Data.(ast.IntNode).Value
		if !isPowerOfTwo(k) {
			ctx.fail(util.Errorf(n.Loc, "cannot divide by non power of 2: %d", k))
		}
		ctx.codegenExpr(d.Lhs)
		if k != 1 {
			ctx.emit(ir.Div(k))
		}

	default:
		util.Unreachable("unexpected binary operator %s", d.Op)
	}
}

func (ctx *Context) codegenMember(n *ast.Node, d ast.BinaryOpNode) {
	f, off := d.Lhs.Typ.Field(d.Rhs.Data.(ast.SymNode).Tok.Value)
	if f.Typ.Is(ast.TyArray) {
		ctx.fail(util.Errorf(n.Loc, "cannot access ARRAY, maybe wanna cast it to PTR"))
	}
	size := f.Typ.Size()
	if ctx.addressable(d.Lhs) {
		ctx.codegenLvalue(n)
		ctx.emit(ir.Read(size))
		return
	}
	// a temporary struct: read the field out of the pushed value
	start := ctx.sp
	ctx.codegenExpr(d.Lhs)
	ctx.emit(ir.AddrLocal(2 + off))
	ctx.emit(ir.Read(size))
	ctx.collapse(start, ast.Align(size))
}

func (ctx *Context) codegenUnary(n *ast.Node, d ast.UnaryOpNode) {
	switch d.Op {
	case token.Star:
		if n.Typ.Is(ast.TyArray) {
			ctx.fail(util.Errorf(n.Loc, "cannot access ARRAY, maybe wanna cast it to PTR"))
		}
		ctx.codegenPointer(d.Arg)
		ctx.emit(ir.Read(n.Typ.Size()))
	case token.And:
		ctx.codegenLvalue(d.Arg)
	case token.Not:
		end := ctx.newLabel()
		ctx.emit(ir.Int(1))
		ctx.codegenExpr(d.Arg)
		ctx.emit(ir.JmpZ(end))
		ctx.emit(ir.ChangeSP(-2))
		ctx.emit(ir.Int(0))
		ctx.emit(ir.SetULI(end))
	case token.Minus:
		ctx.emit(ir.Int(0))
		ctx.codegenExpr(d.Arg)
		ctx.emit(ir.Operation(ir.ArithSub))
	default:
		util.Unreachable("unexpected unary operator %s", d.Op)
	}
}

// codegenPointer pushes the address n points to. An array stands for its
// first element.
func (ctx *Context) codegenPointer(n *ast.Node) {
	if n.Typ.Is(ast.TyArray) {
		ctx.codegenLvalue(n)
		return
	}
	ctx.codegenExpr(n)
}

// codegenAssign stores the right hand side. With keep set the stored value
// is read back as the value of the expression.
func (ctx *Context) codegenAssign(d ast.AssignNode, keep bool) {
	ctx.codegenExpr(d.Rhs)
	ctx.codegenLvalue(d.Lhs)
	ctx.emit(ir.Write(d.Lhs.Typ.Size()))
	if keep {
		ctx.codegenExpr(d.Lhs)
	}
}

// codegenCall pushes the arguments first to last, reserves the return
// slot and leaves only the returned value on the stack.
func (ctx *Context) codegenCall(n *ast.Node, d ast.FuncCallNode) {
	start := ctx.sp
	for _, arg := range d.Args.Items() {
		ctx.codegenExpr(arg)
	}
	ret := n.Typ.Aligned()
	ctx.changeSP(ret)
	ctx.emit(ir.Call(d.Name.Value))
	ctx.collapse(start, ret)
}

// pushWords pushes the fields of a struct or the elements of an array so
// that item 0 ends up at the lowest address. Two chars sharing a word are
// combined with B_AH.
func (ctx *Context) pushWords(items []*ast.Node, groups [][]int) {
	for g := len(groups) - 1; g >= 0; g-- {
		group := groups[g]
		if len(group) == 2 {
			ctx.codegenExpr(items[group[1]])
			ctx.codegenExpr(items[group[0]])
			ctx.emit(ir.Operation(ir.ArithBAh))
			continue
		}
		ctx.codegenExpr(items[group[0]])
	}
}

func (ctx *Context) codegenArrayLiteral(items []*ast.Node, elem *ast.Type) {
	var groups [][]int
	for i := 0; i < len(items); i++ {
		if elem.Is(ast.TyChar) && i+1 < len(items) {
			groups = append(groups, []int{i, i + 1})
			i++
			continue
		}
		groups = append(groups, []int{i})
	}
	ctx.pushWords(items, groups)
}

func (ctx *Context) codegenCast(n *ast.Node, d ast.CastNode) {
	target := d.Target
	switch {
	case d.Expr.IsZeroFill() && (target.Is(ast.TyStruct) || target.Is(ast.TyArray)):
		for i := 0; i < target.Aligned()/2; i++ {
			ctx.emit(ir.Int(0))
		}
		return
	case target.Is(ast.TyStruct) && d.Expr.Type == ast.Array:
		ctx.pushWords(d.Expr.Items(), target.Groups())
		return
	case target.Is(ast.TyPtr) && d.Expr.Typ.Is(ast.TyArray):
		ctx.codegenLvalue(d.Expr)
		return
	}

	src := d.Expr.Typ
	if target.Is(ast.TyChar) && src.Is(ast.TyInt) {
		ctx.emit(ir.Int(0))
		ctx.codegenExpr(d.Expr)
		ctx.emit(ir.Operation(ir.ArithBAh))
		return
	}
	if target.Size() < src.Size() {
		ctx.fail(util.Errorf(n.Loc, "cannot cast '%s' to smaller size type '%s'", src, target))
	}
	ctx.changeSP(target.Aligned() - src.Aligned())
	ctx.codegenExpr(d.Expr)
}

// addressable reports whether n lives in memory.
func (ctx *Context) addressable(n *ast.Node) bool {
	switch d := n.Data.(type) {
	case ast.SymNode:
		s := ctx.syms.Lookup(d.Tok.Value)
		return s != nil && (s.Kind == symtab.Local || s.Kind == symtab.Global)
	case ast.UnaryOpNode:
		return d.Op == token.Star
	case ast.BinaryOpNode:
		return d.Op == token.Dot && ctx.addressable(d.Lhs)
	case ast.CastNode:
		return ctx.addressable(d.Expr)
	}
	return false
}

// codegenLvalue pushes the address of n.
func (ctx *Context) codegenLvalue(n *ast.Node) {
	switch d := n.Data.(type) {
	case ast.SymNode:
		s := ctx.lookup(d.Tok)
		switch s.Kind {
		case symtab.Local:
			ctx.emit(ir.AddrLocal(ctx.sp - s.Offset))
			return
		case symtab.Global:
			ctx.emit(ir.AddrGlobal(s.Label, 0))
			return
		}
	case ast.UnaryOpNode:
		if d.Op == token.Star {
			ctx.codegenPointer(d.Arg)
			return
		}
	case ast.BinaryOpNode:
		if d.Op == token.Dot {
			_, off := d.Lhs.Typ.Field(d.Rhs.Data.(ast.SymNode).Tok.Value)
			ctx.codegenLvalue(d.Lhs)
			ctx.addAddrOffset(off)
			return
		}
	case ast.CastNode:
		ctx.codegenLvalue(d.Expr)
		return
	}
	ctx.fail(util.Errorf(n.Loc, "cannot take the address of this expression"))
}

// addAddrOffset adds off to the address on top of the stack, folding it
// into the instruction that pushed it when possible.
func (ctx *Context) addAddrOffset(off int) {
	if off == 0 {
		return
	}
	switch last := ctx.last(); {
	case last != nil && last.Op == ir.OpAddrLocal:
		last.Num += off
	case last != nil && last.Op == ir.OpAddrGlobal:
		last.Off += off
	default:
		ctx.emit(ir.Int(off))
		ctx.emit(ir.Operation(ir.ArithSum))
	}
}
