// Package ast defines the syntax tree, the type model and their dumps.
package ast

import (
	"fmt"
	"io"
	"strings"

	"github.com/xplshn/simplec/pkg/token"
)

type NodeType int

const (
	List NodeType = iota
	FuncDecl
	FuncDef
	ParamDef
	Block
	Statement
	Return
	BinaryOp
	UnaryOp
	Int
	String
	Sym
	Decl
	GlobDecl
	Assign
	FuncCall
	Param
	Array
	Typedef
	Cast
	Asm
	If
	While
	Extern
	Break
)

var nodeNames = [...]string{
	List: "LIST", FuncDecl: "FUNCDECL", FuncDef: "FUNCDEF", ParamDef: "PARAMDEF",
	Block: "BLOCK", Statement: "STATEMENT", Return: "RETURN", BinaryOp: "BINARYOP",
	UnaryOp: "UNARYOP", Int: "INT", String: "STRING", Sym: "SYM", Decl: "DECL",
	GlobDecl: "GLOBDECL", Assign: "ASSIGN", FuncCall: "FUNCALL", Param: "PARAM",
	Array: "ARRAY", Typedef: "TYPEDEF", Cast: "CAST", Asm: "ASM", If: "IF",
	While: "WHILE", Extern: "EXTERN", Break: "BREAK",
}

func (t NodeType) String() string { return nodeNames[t] }

type Node struct {
	Type NodeType
	Loc  token.Location
	Data interface{}
	Typ  *Type // set by the type checker
}

// --- Node Data Structs ---
type ListNode struct{ Items []*Node } // LIST, PARAM and ARRAY
type FuncDeclNode struct {
	Ret    *Type
	Name   token.Token
	Params []*Node
	Body   *Node // BLOCK, nil when empty
}
type FuncDefNode struct {
	Ret    *Type
	Name   token.Token
	Params []*Node
}
type ParamDefNode struct {
	Typ  *Type
	Name token.Token
}
type BlockNode struct{ Body *Node }
type StatementNode struct{ Expr *Node }
type ReturnNode struct{ Expr *Node }
type ExternNode struct{ Def *Node }
type BinaryOpNode struct {
	Op       token.Type
	Lhs, Rhs *Node
}
type UnaryOpNode struct {
	Op  token.Type
	Arg *Node
}
type IntNode struct {
	Tok   token.Token
	Value int
}
type StringNode struct {
	Tok   token.Token
	Value string // without the quotes
}
type SymNode struct{ Tok token.Token }
type AsmNode struct {
	Tok  token.Token
	Text string
}
type DeclNode struct {
	Typ  *Type
	Name token.Token
	Expr *Node
	Len  *Node // runtime length of an array
}
type AssignNode struct{ Lhs, Rhs *Node }
type FuncCallNode struct {
	Name token.Token
	Args *Node // PARAM, nil without arguments
}
type TypedefNode struct {
	Typ  *Type
	Name token.Token
}
type CastNode struct {
	Target   *Type
	Expr     *Node
	Explicit bool
}
type IfNode struct{ Cond, Then, Else *Node }
type WhileNode struct{ Cond, Body *Node }

func newNode(loc token.Location, nodeType NodeType, data interface{}) *Node {
	return &Node{Type: nodeType, Loc: loc, Data: data}
}

func NewList(loc token.Location, items []*Node) *Node {
	return newNode(loc, List, ListNode{Items: items})
}
func NewParam(loc token.Location, items []*Node) *Node {
	return newNode(loc, Param, ListNode{Items: items})
}
func NewArray(loc token.Location, items []*Node) *Node {
	return newNode(loc, Array, ListNode{Items: items})
}
func NewFuncDecl(loc token.Location, ret *Type, name token.Token, params []*Node, body *Node) *Node {
	return newNode(loc, FuncDecl, FuncDeclNode{Ret: ret, Name: name, Params: params, Body: body})
}
func NewFuncDef(loc token.Location, ret *Type, name token.Token, params []*Node) *Node {
	return newNode(loc, FuncDef, FuncDefNode{Ret: ret, Name: name, Params: params})
}
func NewParamDef(loc token.Location, typ *Type, name token.Token) *Node {
	return newNode(loc, ParamDef, ParamDefNode{Typ: typ, Name: name})
}
func NewBlock(loc token.Location, body *Node) *Node {
	return newNode(loc, Block, BlockNode{Body: body})
}
func NewStatement(loc token.Location, expr *Node) *Node {
	return newNode(loc, Statement, StatementNode{Expr: expr})
}
func NewReturn(loc token.Location, expr *Node) *Node {
	return newNode(loc, Return, ReturnNode{Expr: expr})
}
func NewExtern(loc token.Location, def *Node) *Node {
	return newNode(loc, Extern, ExternNode{Def: def})
}
func NewBinaryOp(loc token.Location, op token.Type, lhs, rhs *Node) *Node {
	return newNode(loc, BinaryOp, BinaryOpNode{Op: op, Lhs: lhs, Rhs: rhs})
}
func NewUnaryOp(loc token.Location, op token.Type, arg *Node) *Node {
	return newNode(loc, UnaryOp, UnaryOpNode{Op: op, Arg: arg})
}
func NewInt(loc token.Location, tok token.Token, value int) *Node {
	return newNode(loc, Int, IntNode{Tok: tok, Value: value})
}
func NewString(tok token.Token) *Node {
	return newNode(tok.Loc, String, StringNode{Tok: tok, Value: tok.Value[1 : len(tok.Value)-1]})
}
func NewSym(tok token.Token) *Node { return newNode(tok.Loc, Sym, SymNode{Tok: tok}) }
func NewAsm(loc token.Location, tok token.Token) *Node {
	return newNode(loc, Asm, AsmNode{Tok: tok, Text: tok.Value[1 : len(tok.Value)-1]})
}
func NewDecl(loc token.Location, global bool, typ *Type, name token.Token, expr, length *Node) *Node {
	kind := Decl
	if global {
		kind = GlobDecl
	}
	return newNode(loc, kind, DeclNode{Typ: typ, Name: name, Expr: expr, Len: length})
}
func NewAssign(loc token.Location, lhs, rhs *Node) *Node {
	return newNode(loc, Assign, AssignNode{Lhs: lhs, Rhs: rhs})
}
func NewFuncCall(loc token.Location, name token.Token, args *Node) *Node {
	return newNode(loc, FuncCall, FuncCallNode{Name: name, Args: args})
}
func NewTypedef(loc token.Location, typ *Type, name token.Token) *Node {
	return newNode(loc, Typedef, TypedefNode{Typ: typ, Name: name})
}
func NewCast(loc token.Location, target *Type, expr *Node, explicit bool) *Node {
	return newNode(loc, Cast, CastNode{Target: target, Expr: expr, Explicit: explicit})
}
func NewIf(loc token.Location, cond, then, els *Node) *Node {
	return newNode(loc, If, IfNode{Cond: cond, Then: then, Else: els})
}
func NewWhile(loc token.Location, cond, body *Node) *Node {
	return newNode(loc, While, WhileNode{Cond: cond, Body: body})
}
func NewBreak(loc token.Location) *Node { return newNode(loc, Break, nil) }

// Items returns the elements of a LIST, PARAM or ARRAY node.
func (n *Node) Items() []*Node {
	if n == nil {
		return nil
	}
	return n.Data.(ListNode).Items
}

// IsZeroFill reports an array literal written as {0}.
func (n *Node) IsZeroFill() bool {
	if n == nil || n.Type != Array {
		return false
	}
	items := n.Items()
	if len(items) != 1 || items[0].Type != Int {
		return false
	}
	return items[0].Data.(IntNode).Value == 0
}

// Dump writes the tree, one node per line. With typed set every non void
// node carries its type and size.
func Dump(w io.Writer, n *Node, typed bool) {
	var sb strings.Builder
	dump(&sb, n, typed, 0)
	io.WriteString(w, sb.String())
}

func dump(sb *strings.Builder, n *Node, typed bool, indent int) {
	sb.WriteString(strings.Repeat("    ", indent))
	if n == nil {
		sb.WriteString("NULL\n")
		return
	}
	sb.WriteString(n.Type.String())

	suffix := func() {
		if typed && n.Typ != nil && n.Typ.Kind != TyVoid {
			fmt.Fprintf(sb, " :: {%s <%d>}", n.Typ, n.Typ.Size())
		}
		sb.WriteString("\n")
	}
	children := func(nodes ...*Node) {
		for _, c := range nodes {
			dump(sb, c, typed, indent+1)
		}
	}
	params := func(ps []*Node) {
		if len(ps) == 0 {
			children(nil)
			return
		}
		children(ps...)
	}

	switch d := n.Data.(type) {
	case ListNode:
		suffix()
		children(d.Items...)
	case FuncDeclNode:
		fmt.Fprintf(sb, " {%s} %s", d.Ret, d.Name.Value)
		suffix()
		params(d.Params)
		children(d.Body)
	case FuncDefNode:
		fmt.Fprintf(sb, " {%s} %s", d.Ret, d.Name.Value)
		suffix()
		params(d.Params)
	case ParamDefNode:
		fmt.Fprintf(sb, " {%s} %s", d.Typ, d.Name.Value)
		suffix()
	case BlockNode:
		suffix()
		children(d.Body)
	case StatementNode:
		suffix()
		children(d.Expr)
	case ReturnNode:
		suffix()
		children(d.Expr)
	case ExternNode:
		suffix()
		children(d.Def)
	case BinaryOpNode:
		fmt.Fprintf(sb, " %s", d.Op)
		suffix()
		children(d.Lhs, d.Rhs)
	case UnaryOpNode:
		fmt.Fprintf(sb, " %s", d.Op)
		suffix()
		children(d.Arg)
	case IntNode:
		fmt.Fprintf(sb, " %d", d.Value)
		suffix()
	case StringNode:
		sb.WriteString(" " + d.Tok.Value)
		suffix()
	case SymNode:
		sb.WriteString(" " + d.Tok.Value)
		suffix()
	case AsmNode:
		sb.WriteString(" " + d.Tok.Value)
		suffix()
	case DeclNode:
		fmt.Fprintf(sb, " {%s} %s", d.Typ, d.Name.Value)
		suffix()
		children(d.Expr)
	case AssignNode:
		suffix()
		children(d.Lhs, d.Rhs)
	case FuncCallNode:
		sb.WriteString(" " + d.Name.Value)
		suffix()
		children(d.Args)
	case TypedefNode:
		fmt.Fprintf(sb, " {%s} %s", d.Typ, d.Name.Value)
		suffix()
	case CastNode:
		fmt.Fprintf(sb, " {%s}", d.Target)
		suffix()
		children(d.Expr)
	case IfNode:
		suffix()
		children(d.Cond, d.Then, d.Else)
	case WhileNode:
		suffix()
		children(d.Cond, d.Body)
	default:
		suffix()
	}
}
