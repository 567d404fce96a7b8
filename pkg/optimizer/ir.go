package optimizer

import (
	"io"

	"github.com/xplshn/simplec/pkg/ast"
	"github.com/xplshn/simplec/pkg/ir"
)

// isOp reports whether s[i] exists and has op.
func isOp(s []ir.Instruction, i int, op ir.Op) bool {
	inst, ok := at(s, i)
	return ok && inst.Op == op
}

var irRules = []Rule[ir.Instruction]{
	{
		Name: "CHANGE_SP(0) -> nothing",
		Match: func(s []ir.Instruction, i int) (int, []ir.Instruction) {
			if isOp(s, i, ir.OpChangeSP) && s[i].Num == 0 {
				return 1, nil
			}
			return 0, nil
		},
	},
	{
		Name: "CHANGE_SP(x) CHANGE_SP(y) -> CHANGE_SP(x+y)",
		Match: func(s []ir.Instruction, i int) (int, []ir.Instruction) {
			if isOp(s, i, ir.OpChangeSP) && isOp(s, i+1, ir.OpChangeSP) {
				return 2, []ir.Instruction{ir.ChangeSP(s[i].Num + s[i+1].Num)}
			}
			return 0, nil
		},
	},
	{
		Name: "ADDR_LOCAL READ(x) CHANGE_SP(y) if x <= -y -> CHANGE_SP(x+y)",
		Match: func(s []ir.Instruction, i int) (int, []ir.Instruction) {
			if !isOp(s, i, ir.OpAddrLocal) || !isOp(s, i+1, ir.OpRead) || !isOp(s, i+2, ir.OpChangeSP) {
				return 0, nil
			}
			size := ast.Align(s[i+1].Num)
			if size > -s[i+2].Num {
				return 0, nil
			}
			return 3, []ir.Instruction{ir.ChangeSP(s[i+2].Num + size)}
		},
	},
	{
		Name: "ADDR_LOCAL(x+z) READ(y) ADDR_LOCAL(y+z) READ(z) -> ADDR_LOCAL(z) READ(x+y)",
		Match: func(s []ir.Instruction, i int) (int, []ir.Instruction) {
			if !isOp(s, i, ir.OpAddrLocal) || !isOp(s, i+1, ir.OpRead) ||
				!isOp(s, i+2, ir.OpAddrLocal) || !isOp(s, i+3, ir.OpRead) {
				return 0, nil
			}
			a, b, c, d := s[i].Num, s[i+1].Num, s[i+2].Num, s[i+3].Num
			if b%2 != 0 || d%2 != 0 || a-d != c-b {
				return 0, nil
			}
			return 4, []ir.Instruction{ir.AddrLocal(a - d), ir.Read(b + d)}
		},
	},
	{
		Name: "INT(x) INT(y) OPERATION(B_AH) -> INT((x << 8) | y)",
		Match: func(s []ir.Instruction, i int) (int, []ir.Instruction) {
			if !isOp(s, i, ir.OpInt) || !isOp(s, i+1, ir.OpInt) || !isOp(s, i+2, ir.OpOperation) || !s[i+2].Is(ir.ArithBAh) {
				return 0, nil
			}
			hi, lo := s[i].Num, s[i+1].Num
			if hi < 0 || hi > 0xFF || lo < 0 || lo > 0xFF {
				return 0, nil
			}
			return 3, []ir.Instruction{ir.Int(hi<<8 | lo)}
		},
	},
	{
		Name: "INT(x) INT(y) OPERATION(SUM|SUB) -> INT(x+y | x-y)",
		Match: func(s []ir.Instruction, i int) (int, []ir.Instruction) {
			if !isOp(s, i, ir.OpInt) || !isOp(s, i+1, ir.OpInt) || !isOp(s, i+2, ir.OpOperation) {
				return 0, nil
			}
			x, y := s[i].Num, s[i+1].Num
			switch {
			case s[i+2].Is(ir.ArithSum):
				return 3, []ir.Instruction{ir.Int((x + y) & 0xFFFF)}
			case s[i+2].Is(ir.ArithSub):
				return 3, []ir.Instruction{ir.Int((x - y) & 0xFFFF)}
			}
			return 0, nil
		},
	},
	{
		Name: "ADDR_LOCAL(2) READ(x) ADDR_LOCAL(y) WRITE(x) CHANGE_SP(z) if -z>=x -> ADDR_LOCAL(y-x) WRITE(x) CHANGE_SP(z+x)",
		Match: func(s []ir.Instruction, i int) (int, []ir.Instruction) {
			if !isOp(s, i, ir.OpAddrLocal) || !isOp(s, i+1, ir.OpRead) || !isOp(s, i+2, ir.OpAddrLocal) ||
				!isOp(s, i+3, ir.OpWrite) || !isOp(s, i+4, ir.OpChangeSP) {
				return 0, nil
			}
			size := s[i+1].Num
			copied := ast.Align(size)
			if s[i].Num != 2 || s[i+3].Num != size || -s[i+4].Num < copied {
				return 0, nil
			}
			return 5, []ir.Instruction{
				ir.AddrLocal(s[i+2].Num - copied),
				ir.Write(size),
				ir.ChangeSP(s[i+4].Num + copied),
			}
		},
	},
	{
		Name: "INT(x) MUL(y) -> INT(x * y)",
		Match: func(s []ir.Instruction, i int) (int, []ir.Instruction) {
			if isOp(s, i, ir.OpInt) && isOp(s, i+1, ir.OpMul) {
				return 2, []ir.Instruction{ir.Int(s[i].Num * s[i+1].Num & 0xFFFF)}
			}
			return 0, nil
		},
	},
	{
		Name: "ADDR_LOCAL(x) INT(y) OPERATION(SUM) -> ADDR_LOCAL(x + y)",
		Match: func(s []ir.Instruction, i int) (int, []ir.Instruction) {
			if !isOp(s, i, ir.OpAddrLocal) || !isOp(s, i+1, ir.OpInt) || !isOp(s, i+2, ir.OpOperation) || !s[i+2].Is(ir.ArithSum) {
				return 0, nil
			}
			if s[i+1].Num >= 0x8000 {
				return 0, nil
			}
			return 3, []ir.Instruction{ir.AddrLocal(s[i].Num + s[i+1].Num)}
		},
	},
}

// OptimizeIR runs the IR peephole rules over list.
func OptimizeIR(list []ir.Instruction, trace io.Writer) []ir.Instruction {
	return Run(list, irRules, trace)
}
