// Package asm models the assembly text the compiler emits: the instruction
// set of the target CPU, the bytecode entries of the three output sections
// and their textual form.
package asm

import (
	"fmt"
	"io"
	"strings"

	"github.com/xplshn/simplec/pkg/util"
)

type Inst int

const (
	SUM Inst = iota
	SUB
	B_AH
	SHL
	SHR
	POPA
	POPB
	PUSHA
	CMPA
	JMPRZ
	JMPRNZ
	JMPR
	RET
	CALL
	CALLR
	PEEKAR
	PEEKA
	PUSHAR
	SP_A
	A_SP
	RAM_A
	RAM_B
	RAM_AL
	RAM_BL
	DECSP
	INCSP
	A_B
	AL_rB
	A_rB
	RB_AL
	RB_A
)

var instNames = [...]string{
	SUM: "SUM", SUB: "SUB", B_AH: "B_AH", SHL: "SHL", SHR: "SHR",
	POPA: "POPA", POPB: "POPB", PUSHA: "PUSHA", CMPA: "CMPA",
	JMPRZ: "JMPRZ", JMPRNZ: "JMPRNZ", JMPR: "JMPR", RET: "RET", CALL: "CALL", CALLR: "CALLR",
	PEEKAR: "PEEKAR", PEEKA: "PEEKA", PUSHAR: "PUSHAR",
	SP_A: "SP_A", A_SP: "A_SP", RAM_A: "RAM_A", RAM_B: "RAM_B", RAM_AL: "RAM_AL", RAM_BL: "RAM_BL",
	DECSP: "DECSP", INCSP: "INCSP",
	A_B: "A_B", AL_rB: "AL_rB", A_rB: "A_rB", RB_AL: "rB_AL", RB_A: "rB_A",
}

func (i Inst) String() string { return instNames[i] }

// Operand shapes of the instruction set. An instruction missing from every
// table takes no operand.
var (
	byteOperandOps = map[Inst]bool{RAM_AL: true, RAM_BL: true, PEEKAR: true, PUSHAR: true}
	wordOperandOps = map[Inst]bool{RAM_A: true, RAM_B: true}
	labelOps       = map[Inst]bool{RAM_A: true, CALL: true}
	relLabelOps    = map[Inst]bool{JMPRZ: true, JMPRNZ: true, JMPR: true, CALLR: true}
)

type Kind int

const (
	BINST Kind = iota
	BINSTHEX
	BINSTHEX2
	BINSTLABEL
	BINSTRELLABEL
	BHEX
	BHEX2
	BSTRING
	BSETLABEL
	BGLOBAL
	BEXTERN
	BALIGN
	BDB
	BRAW
)

// Bytecode is one space separated entry of an output section.
type Bytecode struct {
	Kind Kind
	Inst Inst
	Num  int
	Text string // label, symbol, string body or raw text
}

// Label is the name of the unique label n.
func Label(n int) string { return fmt.Sprintf("_%03d", n) }

func Op(i Inst) Bytecode {
	util.Assert(!byteOperandOps[i] && !wordOperandOps[i] && !relLabelOps[i] && i != CALL, "%s needs an operand", i)
	return Bytecode{Kind: BINST, Inst: i}
}

func OpHex(i Inst, n int) Bytecode {
	util.Assert(byteOperandOps[i], "%s takes no byte operand", i)
	util.Assert(0 <= n && n < 0x100, "byte operand out of range: %d", n)
	return Bytecode{Kind: BINSTHEX, Inst: i, Num: n}
}

func OpHex2(i Inst, n int) Bytecode {
	util.Assert(wordOperandOps[i], "%s takes no word operand", i)
	return Bytecode{Kind: BINSTHEX2, Inst: i, Num: n & 0xFFFF}
}

func OpLabel(i Inst, label string) Bytecode {
	util.Assert(labelOps[i], "%s takes no label", i)
	return Bytecode{Kind: BINSTLABEL, Inst: i, Text: label}
}

func OpRelLabel(i Inst, label string) Bytecode {
	util.Assert(relLabelOps[i], "%s takes no relative label", i)
	return Bytecode{Kind: BINSTRELLABEL, Inst: i, Text: label}
}

func Byte(n int) Bytecode { return Bytecode{Kind: BHEX, Num: n & 0xFF} }
func Word(n int) Bytecode { return Bytecode{Kind: BHEX2, Num: n & 0xFFFF} }
func String(s string) Bytecode { return Bytecode{Kind: BSTRING, Text: s} }
func SetLabel(name string) Bytecode { return Bytecode{Kind: BSETLABEL, Text: name} }
func Global(name string) Bytecode { return Bytecode{Kind: BGLOBAL, Text: name} }
func Extern(name string) Bytecode { return Bytecode{Kind: BEXTERN, Text: name} }
func Align() Bytecode { return Bytecode{Kind: BALIGN} }
func DB(n int) Bytecode { return Bytecode{Kind: BDB, Num: n} }
func Raw(text string) Bytecode { return Bytecode{Kind: BRAW, Text: text} }

// IsInst reports whether b executes instruction i, whatever its operand.
func (b Bytecode) IsInst(i Inst) bool {
	switch b.Kind {
	case BINST, BINSTHEX, BINSTHEX2, BINSTLABEL, BINSTRELLABEL:
		return b.Inst == i
	}
	return false
}

func (b Bytecode) String() string {
	switch b.Kind {
	case BINST:
		return b.Inst.String()
	case BINSTHEX:
		return fmt.Sprintf("%s 0x%02X", b.Inst, b.Num)
	case BINSTHEX2:
		return fmt.Sprintf("%s 0x%04X", b.Inst, b.Num)
	case BINSTLABEL:
		return fmt.Sprintf("%s %s", b.Inst, b.Text)
	case BINSTRELLABEL:
		return fmt.Sprintf("%s $%s", b.Inst, b.Text)
	case BHEX:
		return fmt.Sprintf("0x%02X", b.Num)
	case BHEX2:
		return fmt.Sprintf("0x%04X", b.Num)
	case BSTRING:
		return `"` + b.Text + `"`
	case BSETLABEL:
		return b.Text + ":"
	case BGLOBAL:
		return "GLOBAL " + b.Text
	case BEXTERN:
		return "EXTERN " + b.Text
	case BALIGN:
		return "ALIGN"
	case BDB:
		return fmt.Sprintf("db %d", b.Num)
	case BRAW:
		return b.Text
	}
	util.Unreachable("bytecode kind %d", b.Kind)
	return ""
}

// Program holds the three output sections. Init runs once before main.
type Program struct {
	Data []Bytecode
	Init []Bytecode
	Code []Bytecode
}

// AddData appends to the data section, merging runs of padding.
func (p *Program) AddData(bs ...Bytecode) {
	for _, b := range bs {
		if n := len(p.Data); b.Kind == BDB && n > 0 && p.Data[n-1].Kind == BDB {
			p.Data[n-1].Num += b.Num
			continue
		}
		p.Data = append(p.Data, b)
	}
}

// WriteTo writes the sections as three lines, every entry followed by a
// single space.
func (p *Program) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	for _, section := range [][]Bytecode{p.Data, p.Init, p.Code} {
		for _, b := range section {
			sb.WriteString(b.String())
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Dump writes one entry per line for the com module. Labels are flush left.
func (p *Program) Dump(w io.Writer) {
	for _, section := range [][]Bytecode{p.Data, p.Init, p.Code} {
		for _, b := range section {
			if b.Kind == BSETLABEL {
				fmt.Fprintln(w, b)
				continue
			}
			fmt.Fprintf(w, "\t%s\n", b)
		}
	}
}

// Len is the number of entries over all sections.
func (p *Program) Len() int { return len(p.Data) + len(p.Init) + len(p.Code) }
