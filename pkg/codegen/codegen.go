package codegen

import (
	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/simplec/pkg/ast"
	"github.com/xplshn/simplec/pkg/config"
	"github.com/xplshn/simplec/pkg/ir"
	"github.com/xplshn/simplec/pkg/symtab"
	"github.com/xplshn/simplec/pkg/token"
	"github.com/xplshn/simplec/pkg/util"
)

type bailout struct{ err error }

type breakTarget struct {
	label int
	sp    int // depth when the loop was entered
}

// Context turns a checked tree into IR. sp mirrors the depth of the
// machine stack in bytes relative to the entry of the current function;
// locals are addressed as sp minus the depth recorded at their declaration.
type Context struct {
	prog       *ir.Program
	cfg        *config.Config
	syms       *symtab.Table
	out        *[]ir.Instruction
	sp         int
	ret        *ast.Type
	labelCount int
	breaks     []breakTarget
	strings    map[uint64][]*ir.Data
	pool       []*ir.Data
}

func NewContext(cfg *config.Config) *Context {
	ctx := &Context{
		prog:    &ir.Program{},
		cfg:     cfg,
		syms:    symtab.New(),
		strings: make(map[uint64][]*ir.Data),
	}
	ctx.out = &ctx.prog.Code
	return ctx
}

func (ctx *Context) fail(err error) { panic(bailout{err}) }

func (ctx *Context) try(err error) {
	if err != nil {
		ctx.fail(err)
	}
}

// GenerateIR compiles the translation unit rooted at root, which must have
// passed the type checker.
func (ctx *Context) GenerateIR(root *ast.Node) (prog *ir.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			prog, err = nil, b.err
		}
	}()

	for _, n := range root.Items() {
		if n.Type == ast.Typedef {
			ctx.declareTypedef(n.Data.(ast.TypedefNode))
		}
	}
	ctx.codegenStmt(root)
	ctx.prog.Globals = append(ctx.prog.Globals, ctx.pool...)
	return ctx.prog, nil
}

func (ctx *Context) newLabel() int {
	l := ctx.labelCount
	ctx.labelCount++
	return l
}

func (ctx *Context) emit(inst ir.Instruction) {
	*ctx.out = append(*ctx.out, inst)
	ctx.sp += inst.Effect()
	util.Assert(ctx.sp%2 == 0, "odd stack depth %d after %s", ctx.sp, inst)
}

func (ctx *Context) last() *ir.Instruction {
	list := *ctx.out
	if len(list) == 0 {
		return nil
	}
	return &list[len(list)-1]
}

func (ctx *Context) changeSP(delta int) {
	if delta != 0 {
		ctx.emit(ir.ChangeSP(delta))
	}
}

// unwind drops the stack down to depth to and jumps away with jump. The
// fall-through depth is left untouched since the code after it is only
// reached through a label.
func (ctx *Context) unwind(to int, jump ir.Instruction) {
	saved := ctx.sp
	ctx.changeSP(to - ctx.sp)
	ctx.emit(jump)
	ctx.sp = saved
}

// collapse keeps the top size bytes of the stack and drops everything
// pushed between depth start and them.
func (ctx *Context) collapse(start, size int) {
	extra := ctx.sp - start - size
	util.Assert(extra >= 0, "collapse below start: depth %d, start %d, size %d", ctx.sp, start, size)
	if extra == 0 {
		return
	}
	if size == 0 {
		ctx.changeSP(-extra)
		return
	}
	if extra >= size {
		ctx.emit(ir.AddrLocal(extra + 2))
		ctx.emit(ir.Write(size))
	} else {
		// The regions overlap: copy word by word starting from the
		// deepest one so no source word is overwritten before it is read.
		for k := size/2 - 1; k >= 0; k-- {
			ctx.emit(ir.AddrLocal(2 + 2*k))
			ctx.emit(ir.Read(2))
			ctx.emit(ir.AddrLocal(4 + 2*k + extra))
			ctx.emit(ir.Write(2))
		}
	}
	ctx.changeSP(start + size - ctx.sp)
}

func (ctx *Context) lookup(name token.Token) *symtab.Symbol {
	s, err := ctx.syms.Find(name)
	ctx.try(err)
	return s
}

// internString returns the data label of a string literal, sharing it
// with every earlier literal of the same text.
func (ctx *Context) internString(s string) int {
	key := xxhash.Sum64String(s)
	if ctx.cfg.IsFeatureEnabled(config.FeatDedupStrings) {
		for _, d := range ctx.strings[key] {
			if d.Items[0].Text == s {
				return d.Label
			}
		}
	}
	d := &ir.Data{Label: ctx.newLabel(), Items: []ir.DataItem{{Kind: ir.DataString, Text: s}}}
	ctx.strings[key] = append(ctx.strings[key], d)
	ctx.pool = append(ctx.pool, d)
	return d.Label
}

func (ctx *Context) declareTypedef(d ast.TypedefNode) {
	if d.Typ.Kind != ast.TyEnum {
		return
	}
	for i, m := range d.Typ.Members {
		ctx.try(ctx.syms.Add(&symtab.Symbol{Name: m, Typ: d.Typ, Kind: symtab.Constant, Value: i}))
	}
}

func (ctx *Context) codegenStmt(n *ast.Node) {
	if n == nil {
		return
	}
	switch d := n.Data.(type) {
	case ast.ListNode:
		for _, item := range d.Items {
			ctx.codegenStmt(item)
		}
	case ast.BlockNode:
		start := ctx.sp
		ctx.syms.Push()
		ctx.codegenStmt(d.Body)
		ctx.syms.Pop()
		ctx.changeSP(start - ctx.sp)
	case ast.FuncDeclNode:
		ctx.codegenFuncDecl(n, d)
	case ast.ExternNode:
		def := d.Def.Data.(ast.FuncDefNode)
		ctx.try(ctx.syms.Add(&symtab.Symbol{Name: def.Name, Typ: d.Def.Typ, Kind: symtab.Func}))
		ctx.emit(ir.Extern(def.Name.Value))
	case ast.TypedefNode:
		// enumerators are declared up front
	case ast.DeclNode:
		if n.Type == ast.GlobDecl {
			ctx.codegenGlobalVarDecl(d)
		} else {
			ctx.codegenLocalVarDecl(d)
		}
	case ast.ReturnNode:
		ctx.codegenReturn(d)
	case ast.IfNode:
		ctx.codegenIf(d)
	case ast.WhileNode:
		ctx.codegenWhile(d)
	case ast.AsmNode:
		ctx.emit(ir.Asm(d.Text))
	case ast.StatementNode:
		start := ctx.sp
		if a, ok := d.Expr.Data.(ast.AssignNode); ok {
			ctx.codegenAssign(a, false)
		} else {
			ctx.codegenExpr(d.Expr)
		}
		ctx.changeSP(start - ctx.sp)
	case nil:
		ctx.codegenBreak(n)
	default:
		util.Unreachable("unexpected statement %s", n.Type)
	}
}

// codegenFuncDecl lays out the frame of a function. Arguments are pushed
// first to last, then the caller reserves the return slot and CALL pushes
// the return address, so the return slot's top word sits at -4 and the
// parameters follow it from the last one down.
func (ctx *Context) codegenFuncDecl(n *ast.Node, d ast.FuncDeclNode) {
	ctx.try(ctx.syms.Add(&symtab.Symbol{Name: d.Name, Typ: n.Typ, Kind: symtab.Func}))
	ctx.syms.Push()
	defer ctx.syms.Pop()

	offset := -4 - d.Ret.Aligned()
	for i := len(d.Params) - 1; i >= 0; i-- {
		pd := d.Params[i].Data.(ast.ParamDefNode)
		ctx.try(ctx.syms.Add(&symtab.Symbol{Name: pd.Name, Typ: pd.Typ, Kind: symtab.Local, Offset: offset}))
		offset -= pd.Typ.Aligned()
	}

	ctx.emit(ir.SetLabel(d.Name.Value))
	ctx.sp = 0
	ctx.ret = d.Ret
	if d.Body != nil {
		ctx.codegenStmt(d.Body.Data.(ast.BlockNode).Body)
	}
	if last := ctx.last(); last == nil || last.Op != ir.OpFuncEnd {
		ctx.changeSP(-ctx.sp)
		ctx.emit(ir.FuncEnd())
	}
	ctx.ret = nil
	ctx.sp = 0
}

func (ctx *Context) codegenReturn(d ast.ReturnNode) {
	saved := ctx.sp
	if d.Expr != nil {
		start := ctx.sp
		ctx.codegenExpr(d.Expr)
		if size := ctx.ret.Aligned(); size > 0 {
			ctx.emit(ir.AddrLocal(ctx.sp + 4))
			ctx.emit(ir.Write(size))
		} else {
			ctx.changeSP(start - ctx.sp)
		}
	}
	ctx.changeSP(-ctx.sp)
	ctx.emit(ir.FuncEnd())
	ctx.sp = saved
}

func (ctx *Context) codegenIf(d ast.IfNode) {
	ctx.codegenExpr(d.Cond)
	elseLabel := ctx.newLabel()
	ctx.emit(ir.JmpZ(elseLabel))
	ctx.codegenStmt(d.Then)
	if d.Else == nil {
		ctx.emit(ir.SetULI(elseLabel))
		return
	}
	endLabel := ctx.newLabel()
	ctx.emit(ir.Jmp(endLabel))
	ctx.emit(ir.SetULI(elseLabel))
	ctx.codegenStmt(d.Else)
	ctx.emit(ir.SetULI(endLabel))
}

func (ctx *Context) codegenWhile(d ast.WhileNode) {
	startLabel, endLabel := ctx.newLabel(), ctx.newLabel()
	ctx.emit(ir.SetULI(startLabel))

	cond, jump := d.Cond, ir.JmpZ
	if u, ok := cond.Data.(ast.UnaryOpNode); ok && u.Op == token.Not {
		cond, jump = u.Arg, ir.JmpNZ
	}
	ctx.codegenExpr(cond)
	ctx.emit(jump(endLabel))

	ctx.breaks = append(ctx.breaks, breakTarget{label: endLabel, sp: ctx.sp})
	ctx.codegenStmt(d.Body)
	ctx.breaks = ctx.breaks[:len(ctx.breaks)-1]

	ctx.emit(ir.Jmp(startLabel))
	ctx.emit(ir.SetULI(endLabel))
}

func (ctx *Context) codegenBreak(n *ast.Node) {
	if len(ctx.breaks) == 0 {
		ctx.fail(util.Errorf(n.Loc, "break statement not within loop or switch"))
	}
	t := ctx.breaks[len(ctx.breaks)-1]
	ctx.unwind(t.sp, ir.Jmp(t.label))
}

func (ctx *Context) codegenLocalVarDecl(d ast.DeclNode) {
	size := d.Typ.Aligned()
	start := ctx.sp
	if d.Expr != nil {
		ctx.codegenExpr(d.Expr)
		ctx.collapse(start, size)
	} else {
		ctx.changeSP(size)
	}
	ctx.try(ctx.syms.Add(&symtab.Symbol{Name: d.Name, Typ: d.Typ, Kind: symtab.Local, Offset: ctx.sp - 2}))
}

// Globals

func (ctx *Context) codegenGlobalVarDecl(d ast.DeclNode) {
	data := &ir.Data{Label: ctx.newLabel()}
	ctx.prog.Globals = append(ctx.prog.Globals, data)
	if d.Expr == nil {
		zero(data, d.Typ.Size())
	} else {
		ctx.codegenGlobalData(data, d.Expr, d.Typ, 0)
	}
	ctx.try(ctx.syms.Add(&symtab.Symbol{Name: d.Name, Typ: d.Typ, Kind: symtab.Global, Label: data.Label}))
}

func zero(data *ir.Data, n int) {
	if n > 0 {
		data.Items = append(data.Items, ir.DataItem{Kind: ir.DataZero, Value: n})
	}
}

// literalValue reports the value of n when it is known without running
// code.
func (ctx *Context) literalValue(n *ast.Node) (int, bool) {
	switch d := n.Data.(type) {
	case ast.IntNode:
		return d.Value, true
	case ast.CastNode:
		if v, ok := ctx.literalValue(d.Expr); ok && (d.Target.IsIntLike() || d.Target.Is(ast.TyPtr)) {
			if d.Target.Is(ast.TyChar) {
				v &= 0xFF
			}
			return v, true
		}
	case ast.SymNode:
		if s := ctx.syms.Lookup(d.Tok.Value); s != nil && s.Kind == symtab.Constant {
			return s.Value, true
		}
	}
	return 0, false
}

// codegenGlobalData lays out the initial value n of a global slot of type
// want at byte offset off. Parts that are not literals reserve their bytes
// and are stored by the init section.
func (ctx *Context) codegenGlobalData(data *ir.Data, n *ast.Node, want *ast.Type, off int) {
	if v, ok := ctx.literalValue(n); ok && (want.IsIntLike() || want.Is(ast.TyPtr)) {
		if want.Size() == 1 {
			data.Items = append(data.Items, ir.DataItem{Kind: ir.DataByte, Value: v & 0xFF})
		} else {
			data.Items = append(data.Items, ir.DataItem{Kind: ir.DataWord, Value: v & 0xFFFF})
		}
		return
	}

	switch d := n.Data.(type) {
	case ast.CastNode:
		switch {
		case d.Expr.IsZeroFill() && (d.Target.Is(ast.TyStruct) || d.Target.Is(ast.TyArray)):
			zero(data, want.Size())
			return
		case d.Target.Is(ast.TyStruct) && d.Expr.Type == ast.Array:
			ctx.codegenStructData(data, d.Target, d.Expr, off)
			return
		case d.Target.Is(ast.TyArray) && d.Expr.Type == ast.Array:
			ctx.codegenGlobalData(data, d.Expr, want, off)
			return
		}
	case ast.ListNode:
		if n.Type == ast.Array && want.Is(ast.TyArray) {
			ctx.codegenArrayData(data, d.Items, want, off)
			return
		}
	}
	ctx.codegenGlobalInit(data, n, want, off)
}

func (ctx *Context) codegenArrayData(data *ir.Data, items []*ast.Node, want *ast.Type, off int) {
	elem := want.Unalias().Elem
	size := elem.Size()
	for i := 0; i < len(items); i++ {
		if elem.Is(ast.TyChar) && i+1 < len(items) {
			lo, okLo := ctx.literalValue(items[i])
			hi, okHi := ctx.literalValue(items[i+1])
			if okLo && okHi {
				data.Items = append(data.Items, ir.DataItem{Kind: ir.DataWord, Value: lo&0xFF | (hi&0xFF)<<8})
				i++
				continue
			}
		}
		ctx.codegenGlobalData(data, items[i], elem, off+i*size)
	}
	zero(data, want.Size()-len(items)*size)
}

// codegenStructData follows the packing of the struct: a char pair shares
// one word and a lone char is padded to one.
func (ctx *Context) codegenStructData(data *ir.Data, target *ast.Type, lit *ast.Node, off int) {
	items := lit.Items()
	fields := target.Unalias().Fields
	for _, group := range target.Groups() {
		f := fields[group[0]]
		_, fieldOff := target.Field(f.Name.Value)
		if len(group) == 2 {
			lo, okLo := ctx.literalValue(items[group[0]])
			hi, okHi := ctx.literalValue(items[group[1]])
			if okLo && okHi {
				data.Items = append(data.Items, ir.DataItem{Kind: ir.DataWord, Value: lo&0xFF | (hi&0xFF)<<8})
				continue
			}
			ctx.codegenGlobalData(data, items[group[0]], ast.TypeChar, off+fieldOff)
			ctx.codegenGlobalData(data, items[group[1]], ast.TypeChar, off+fieldOff+1)
			continue
		}
		ctx.codegenGlobalData(data, items[group[0]], f.Typ, off+fieldOff)
		zero(data, f.Typ.Aligned()-f.Typ.Size())
	}
}

// codegenGlobalInit reserves the slot and computes its value in the init
// section, which runs before main.
func (ctx *Context) codegenGlobalInit(data *ir.Data, n *ast.Node, want *ast.Type, off int) {
	zero(data, want.Size())

	savedOut, savedSP := ctx.out, ctx.sp
	ctx.out, ctx.sp = &ctx.prog.Init, 0
	ctx.codegenExpr(n)
	ctx.emit(ir.AddrGlobal(data.Label, off))
	ctx.emit(ir.Write(want.Size()))
	util.Assert(ctx.sp == 0, "init of global _%03d left depth %d", data.Label, ctx.sp)
	ctx.out, ctx.sp = savedOut, savedSP
}
