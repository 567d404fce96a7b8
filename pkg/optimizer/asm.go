package optimizer

import (
	"io"

	"github.com/xplshn/simplec/pkg/asm"
)

func isInst(s []asm.Bytecode, i int, insts ...asm.Inst) bool {
	b, ok := at(s, i)
	if !ok {
		return false
	}
	for _, inst := range insts {
		if b.IsInst(inst) {
			return true
		}
	}
	return false
}

// overwritesA lists the instructions that load A without reading it.
var overwritesA = []asm.Inst{asm.POPA, asm.RAM_A, asm.RAM_AL, asm.PEEKA, asm.PEEKAR, asm.SP_A, asm.RB_A}

var asmRules = []Rule[asm.Bytecode]{
	{
		Name: "PEEKAR 2 -> PEEKA",
		Match: func(s []asm.Bytecode, i int) (int, []asm.Bytecode) {
			if isInst(s, i, asm.PEEKAR) && s[i].Num == 2 {
				return 1, []asm.Bytecode{asm.Op(asm.PEEKA)}
			}
			return 0, nil
		},
	},
	{
		Name: "PUSHA POPA -> nothing",
		Match: func(s []asm.Bytecode, i int) (int, []asm.Bytecode) {
			if isInst(s, i, asm.PUSHA) && isInst(s, i+1, asm.POPA) {
				return 2, nil
			}
			return 0, nil
		},
	},
	{
		Name: "PUSHA POPB -> A_B",
		Match: func(s []asm.Bytecode, i int) (int, []asm.Bytecode) {
			if isInst(s, i, asm.PUSHA) && isInst(s, i+1, asm.POPB) {
				return 2, []asm.Bytecode{asm.Op(asm.A_B)}
			}
			return 0, nil
		},
	},
	{
		Name: "RAM_A x | RAM_B x if x<256 -> RAM_AL x | RAM_BL x",
		Match: func(s []asm.Bytecode, i int) (int, []asm.Bytecode) {
			if !isInst(s, i, asm.RAM_A, asm.RAM_B) || s[i].Kind != asm.BINSTHEX2 || s[i].Num >= 0x100 {
				return 0, nil
			}
			narrow := asm.RAM_AL
			if s[i].Inst == asm.RAM_B {
				narrow = asm.RAM_BL
			}
			return 1, []asm.Bytecode{asm.OpHex(narrow, s[i].Num)}
		},
	},
	{
		Name: "SUM|SUB CMPA -> SUM|SUB",
		Match: func(s []asm.Bytecode, i int) (int, []asm.Bytecode) {
			if isInst(s, i, asm.SUM, asm.SUB) && isInst(s, i+1, asm.CMPA) {
				return 2, []asm.Bytecode{s[i]}
			}
			return 0, nil
		},
	},
	{
		Name: "PUSHA RAM_A|RAM_AL|PEEKAR(x) POPB -> A_B RAM_A|RAM_AL|PEEKAR(x-2)",
		Match: func(s []asm.Bytecode, i int) (int, []asm.Bytecode) {
			if !isInst(s, i, asm.PUSHA) || !isInst(s, i+1, asm.RAM_A, asm.RAM_AL, asm.PEEKAR) || !isInst(s, i+2, asm.POPB) {
				return 0, nil
			}
			load := s[i+1]
			if load.IsInst(asm.PEEKAR) {
				// the peek would land on the word that is no longer pushed
				if load.Num <= 2 {
					return 0, nil
				}
				load = asm.OpHex(asm.PEEKAR, load.Num-2)
			}
			return 3, []asm.Bytecode{asm.Op(asm.A_B), load}
		},
	},
	{
		Name: "RAM_A|RAM_AL A_B -> RAM_B|RAM_BL",
		Match: func(s []asm.Bytecode, i int) (int, []asm.Bytecode) {
			if !isInst(s, i, asm.RAM_A, asm.RAM_AL) || !isInst(s, i+1, asm.A_B) || !isInst(s, i+2, overwritesA...) {
				return 0, nil
			}
			switch s[i].Kind {
			case asm.BINSTHEX:
				return 2, []asm.Bytecode{asm.OpHex(asm.RAM_BL, s[i].Num)}
			case asm.BINSTHEX2:
				return 2, []asm.Bytecode{asm.OpHex2(asm.RAM_B, s[i].Num)}
			}
			return 0, nil
		},
	},
}

// OptimizeAsm runs the bytecode peephole rules over list.
func OptimizeAsm(list []asm.Bytecode, trace io.Writer) []asm.Bytecode {
	return Run(list, asmRules, trace)
}
