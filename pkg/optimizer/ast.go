package optimizer

import (
	"fmt"
	"io"

	"github.com/xplshn/simplec/pkg/ast"
	"github.com/xplshn/simplec/pkg/token"
)

type astPass struct {
	trace io.Writer
	count int
}

// OptimizeAST rewrites comparisons in if and while conditions into a
// subtraction tested against zero. It runs on the typed tree and only
// touches comparisons of int-like operands.
func OptimizeAST(root *ast.Node, trace io.Writer) {
	p := &astPass{trace: trace}
	p.stmt(root)
}

func (p *astPass) log(format string, args ...any) {
	if p.trace != nil {
		fmt.Fprintf(p.trace, "  %03d | %s\n", p.count, fmt.Sprintf(format, args...))
	}
	p.count++
}

func (p *astPass) stmt(n *ast.Node) {
	if n == nil {
		return
	}
	switch d := n.Data.(type) {
	case ast.ListNode:
		for _, item := range d.Items {
			p.stmt(item)
		}
	case ast.BlockNode:
		p.stmt(d.Body)
	case ast.FuncDeclNode:
		p.stmt(d.Body)
	case ast.IfNode:
		p.ifStmt(n, d)
	case ast.WhileNode:
		p.whileStmt(n, d)
	}
}

// comparison returns the operands of an int-like == or != node.
func comparison(n *ast.Node) (d ast.BinaryOpNode, ok bool) {
	d, ok = n.Data.(ast.BinaryOpNode)
	if !ok || (d.Op != token.Eq && d.Op != token.Neq) {
		return d, false
	}
	return d, d.Lhs.Typ.IsIntLike() && d.Rhs.Typ.IsIntLike()
}

func difference(n *ast.Node, d ast.BinaryOpNode) *ast.Node {
	sub := ast.NewBinaryOp(n.Loc, token.Minus, d.Lhs, d.Rhs)
	sub.Typ = ast.TypeInt
	return sub
}

func (p *astPass) ifStmt(n *ast.Node, d ast.IfNode) {
	swap := false
	cond := d.Cond
	for {
		u, ok := cond.Data.(ast.UnaryOpNode)
		if !ok || u.Op != token.Not {
			break
		}
		cond, swap = u.Arg, !swap
		p.log("IF(NOT(x)) -> IF(x) swapped")
	}
	if cmp, ok := comparison(cond); ok {
		if cmp.Op == token.Eq {
			swap = !swap
			p.log("IF(EQ(a, b)) -> IF(MINUS(a, b)) swapped")
		} else {
			p.log("IF(NEQ(a, b)) -> IF(MINUS(a, b))")
		}
		cond = difference(cond, cmp)
	}
	d.Cond = cond
	if swap {
		d.Then, d.Else = d.Else, d.Then
	}
	p.stmt(d.Then)
	p.stmt(d.Else)
	n.Data = d
}

func (p *astPass) whileStmt(n *ast.Node, d ast.WhileNode) {
	if cmp, ok := comparison(d.Cond); ok {
		sub := difference(d.Cond, cmp)
		if cmp.Op == token.Eq {
			not := ast.NewUnaryOp(d.Cond.Loc, token.Not, sub)
			not.Typ = ast.TypeInt
			d.Cond = not
			p.log("WHILE(EQ(a, b)) -> WHILE(NOT(MINUS(a, b)))")
		} else {
			d.Cond = sub
			p.log("WHILE(NEQ(a, b)) -> WHILE(MINUS(a, b))")
		}
	}
	p.stmt(d.Body)
	n.Data = d
}
