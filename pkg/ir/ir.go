// Package ir is the stack machine representation between the syntax tree
// and the target bytecode. Every instruction has a fixed effect on the
// depth of the machine stack, which the generator tracks statically.
package ir

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xplshn/simplec/pkg/ast"
)

type Op int

const (
	OpSetLabel Op = iota
	OpSetULI
	OpJmpZ
	OpJmpNZ
	OpJmp
	OpFuncEnd
	OpAddrLocal
	OpAddrGlobal
	OpRead
	OpWrite
	OpChangeSP
	OpInt
	OpString
	OpOperation
	OpMul
	OpDiv
	OpCall
	OpExtern
	OpAsm
)

var opNames = [...]string{
	OpSetLabel:   "SETLABEL",
	OpSetULI:     "SETULI",
	OpJmpZ:       "JMPZ",
	OpJmpNZ:      "JMPNZ",
	OpJmp:        "JMP",
	OpFuncEnd:    "FUNCEND",
	OpAddrLocal:  "ADDR_LOCAL",
	OpAddrGlobal: "ADDR_GLOBAL",
	OpRead:       "READ",
	OpWrite:      "WRITE",
	OpChangeSP:   "CHANGE_SP",
	OpInt:        "INT",
	OpString:     "STRING",
	OpOperation:  "OPERATION",
	OpMul:        "MUL",
	OpDiv:        "DIV",
	OpCall:       "CALL",
	OpExtern:     "EXTERN",
	OpAsm:        "ASM",
}

func (o Op) String() string { return opNames[o] }

// Arith is the machine operation carried by OPERATION. Binary ones pop two
// words and push one, SHL and SHR work on the top word in place.
type Arith int

const (
	ArithSum Arith = iota
	ArithSub
	ArithBAh
	ArithShl
	ArithShr
)

var arithNames = [...]string{ArithSum: "SUM", ArithSub: "SUB", ArithBAh: "B_AH", ArithShl: "SHL", ArithShr: "SHR"}

func (a Arith) String() string { return arithNames[a] }

type Instruction struct {
	Op Op
	// Num is the label id, size, stack offset or literal value,
	// depending on Op. For ADDR_GLOBAL it is the data label.
	Num   int
	Off   int    // ADDR_GLOBAL byte offset
	Name  string // SETLABEL, CALL, EXTERN and ASM
	Arith Arith  // OPERATION
}

func SetLabel(name string) Instruction { return Instruction{Op: OpSetLabel, Name: name} }
func SetULI(n int) Instruction { return Instruction{Op: OpSetULI, Num: n} }
func JmpZ(n int) Instruction { return Instruction{Op: OpJmpZ, Num: n} }
func JmpNZ(n int) Instruction { return Instruction{Op: OpJmpNZ, Num: n} }
func Jmp(n int) Instruction { return Instruction{Op: OpJmp, Num: n} }
func FuncEnd() Instruction { return Instruction{Op: OpFuncEnd} }
func AddrLocal(n int) Instruction { return Instruction{Op: OpAddrLocal, Num: n} }
func AddrGlobal(label, off int) Instruction {
	return Instruction{Op: OpAddrGlobal, Num: label, Off: off}
}
func Read(size int) Instruction { return Instruction{Op: OpRead, Num: size} }
func Write(size int) Instruction { return Instruction{Op: OpWrite, Num: size} }
func ChangeSP(n int) Instruction { return Instruction{Op: OpChangeSP, Num: n} }
func Int(v int) Instruction { return Instruction{Op: OpInt, Num: v} }
func StringLit(label int) Instruction { return Instruction{Op: OpString, Num: label} }
func Operation(a Arith) Instruction { return Instruction{Op: OpOperation, Arith: a} }
func Mul(n int) Instruction { return Instruction{Op: OpMul, Num: n} }
func Div(n int) Instruction { return Instruction{Op: OpDiv, Num: n} }
func Call(name string) Instruction { return Instruction{Op: OpCall, Name: name} }
func Extern(name string) Instruction { return Instruction{Op: OpExtern, Name: name} }
func Asm(text string) Instruction { return Instruction{Op: OpAsm, Name: text} }

// Is reports whether the instruction is an OPERATION of kind a.
func (i Instruction) Is(a Arith) bool { return i.Op == OpOperation && i.Arith == a }

// Effect is the change of the stack depth in bytes caused by i.
func (i Instruction) Effect() int {
	switch i.Op {
	case OpJmpZ, OpJmpNZ:
		return -2
	case OpAddrLocal, OpAddrGlobal, OpInt, OpString:
		return 2
	case OpRead:
		return -2 + ast.Align(i.Num)
	case OpWrite:
		return -2 - ast.Align(i.Num)
	case OpChangeSP:
		return i.Num
	case OpOperation:
		switch i.Arith {
		case ArithSum, ArithSub, ArithBAh:
			return -2
		}
	}
	return 0
}

func (i Instruction) String() string {
	name := i.Op.String()
	switch i.Op {
	case OpFuncEnd:
		return name
	case OpSetLabel, OpCall, OpExtern:
		return name + " " + i.Name
	case OpAsm:
		return name + " " + strconv.Quote(i.Name)
	case OpAddrGlobal:
		return fmt.Sprintf("%s {%d+%d}", name, i.Num, i.Off)
	case OpOperation:
		return name + " " + i.Arith.String()
	}
	return fmt.Sprintf("%s %d", name, i.Num)
}

type DataKind int

const (
	DataByte   DataKind = iota // one byte literal
	DataWord                   // two byte literal
	DataZero                   // Value bytes of padding
	DataString                 // Text followed by a zero byte
)

type DataItem struct {
	Kind  DataKind
	Value int
	Text  string
}

// Data is one aligned, labelled block of the data section.
type Data struct {
	Label int
	Items []DataItem
}

// Size is the number of bytes the block lays out.
func (d *Data) Size() int {
	n := 0
	for _, it := range d.Items {
		switch it.Kind {
		case DataByte:
			n++
		case DataWord:
			n += 2
		case DataZero:
			n += it.Value
		case DataString:
			n += len(it.Text) + 1
		}
	}
	return n
}

// Program is a whole translation unit. Globals holds the variables in
// declaration order followed by the interned string literals. Init runs
// before main and stores the initialisers that are not plain data.
type Program struct {
	Globals []*Data
	Init    []Instruction
	Code    []Instruction
}

// Dump writes the two instruction lists the way the ir module prints them.
func (p *Program) Dump(w io.Writer) {
	dumpList(w, "IR INIT:", p.Init)
	dumpList(w, "IR:", p.Code)
}

func dumpList(w io.Writer, header string, list []Instruction) {
	fmt.Fprintln(w, header)
	for _, inst := range list {
		fmt.Fprintf(w, "\t%s\n", inst)
	}
}

// Depth sums the stack effects of list.
func Depth(list []Instruction) int {
	d := 0
	for _, inst := range list {
		d += inst.Effect()
	}
	return d
}
