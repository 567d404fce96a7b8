package asm

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/simplec/pkg/util"
)

func TestString(t *testing.T) {
	tests := []struct {
		b    Bytecode
		want string
	}{
		{Op(PUSHA), "PUSHA"},
		{Op(RB_AL), "rB_AL"},
		{OpHex(PEEKAR, 4), "PEEKAR 0x04"},
		{OpHex2(RAM_A, 0x1234), "RAM_A 0x1234"},
		{OpHex2(RAM_B, -1), "RAM_B 0xFFFF"},
		{OpLabel(CALL, "exit"), "CALL exit"},
		{OpRelLabel(JMPRZ, Label(7)), "JMPRZ $_007"},
		{Byte(0x141), "0x41"},
		{Word(0x4241), "0x4241"},
		{String("hi"), `"hi"`},
		{SetLabel("main"), "main:"},
		{Global("_start"), "GLOBAL _start"},
		{Extern("exit"), "EXTERN exit"},
		{Align(), "ALIGN"},
		{DB(3), "db 3"},
		{Raw("NOP"), "NOP"},
	}
	for _, tc := range tests {
		be.Equal(t, tc.b.String(), tc.want)
	}
}

func TestIsInst(t *testing.T) {
	be.True(t, OpHex(PEEKAR, 2).IsInst(PEEKAR))
	be.True(t, OpLabel(RAM_A, "_001").IsInst(RAM_A))
	be.True(t, !OpLabel(RAM_A, "_001").IsInst(RAM_B))
	// data entries never match, whatever Inst holds
	be.True(t, !Word(0).IsInst(SUM))
}

func TestAddData(t *testing.T) {
	var p Program
	p.AddData(SetLabel("_000"), DB(1), DB(2))
	p.AddData(DB(3), Align(), DB(1))
	be.Equal(t, len(p.Data), 4)
	be.Equal(t, p.Data[1].Num, 6)
	be.Equal(t, p.Data[3].Num, 1)
}

func TestWriteTo(t *testing.T) {
	p := &Program{
		Data: []Bytecode{Extern("exit"), Global("_start")},
		Code: []Bytecode{SetLabel("main"), Op(RET)},
	}
	var sb strings.Builder
	n, err := p.WriteTo(&sb)
	be.Err(t, err, nil)
	be.Equal(t, sb.String(), "EXTERN exit GLOBAL _start \n\nmain: RET \n")
	be.Equal(t, n, int64(sb.Len()))
	be.Equal(t, p.Len(), 4)

	var dump strings.Builder
	p.Dump(&dump)
	be.Equal(t, dump.String(), "\tEXTERN exit\n\tGLOBAL _start\nmain:\n\tRET\n")
}

func defect(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		_, ok := recover().(util.Defect)
		be.True(t, ok)
	}()
	f()
}

func TestOperandChecks(t *testing.T) {
	defect(t, func() { Op(PEEKAR) })
	defect(t, func() { Op(CALL) })
	defect(t, func() { OpHex(PEEKAR, 0x100) })
	defect(t, func() { OpHex(SUM, 1) })
	defect(t, func() { OpHex2(RAM_AL, 1) })
	defect(t, func() { OpLabel(JMPR, "x") })
	defect(t, func() { OpRelLabel(RAM_A, "x") })
}
