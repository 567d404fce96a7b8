package codegen

import (
	"math/bits"

	"github.com/xplshn/simplec/pkg/asm"
	"github.com/xplshn/simplec/pkg/config"
	"github.com/xplshn/simplec/pkg/ir"
	"github.com/xplshn/simplec/pkg/util"
)

// asmBackend lowers IR to the bytecode of the accumulator CPU. The CPU has
// two registers A and B, a downward growing stack and SP relative peeks.
type asmBackend struct {
	out *[]asm.Bytecode
}

func NewAsmBackend() Backend { return &asmBackend{} }

func (b *asmBackend) Generate(prog *ir.Program, cfg *config.Config) (*asm.Program, error) {
	res := &asm.Program{}

	res.AddData(asm.Extern("exit"), asm.Global("_start"))
	for _, d := range prog.Globals {
		b.genData(res, d)
	}

	b.out = &res.Init
	b.code(asm.SetLabel("_start"))
	b.genList(prog.Init)
	b.code(
		asm.OpHex(asm.RAM_AL, 0),
		asm.Op(asm.PUSHA),
		asm.OpRelLabel(asm.CALLR, "main"),
		asm.Op(asm.POPA),
		asm.OpLabel(asm.CALL, "exit"),
	)

	b.out = &res.Code
	b.genList(prog.Code)
	return res, nil
}

func (b *asmBackend) code(bs ...asm.Bytecode) { *b.out = append(*b.out, bs...) }

func (b *asmBackend) genData(res *asm.Program, d *ir.Data) {
	res.AddData(asm.Align(), asm.SetLabel(asm.Label(d.Label)))
	for _, it := range d.Items {
		switch it.Kind {
		case ir.DataByte:
			res.AddData(asm.Byte(it.Value))
		case ir.DataWord:
			res.AddData(asm.Word(it.Value))
		case ir.DataZero:
			if it.Value > 0 {
				res.AddData(asm.DB(it.Value))
			}
		case ir.DataString:
			res.AddData(asm.String(it.Text), asm.Byte(0))
		}
	}
}

func (b *asmBackend) genList(list []ir.Instruction) {
	for i := 0; i < len(list); i++ {
		inst := list[i]
		var next *ir.Instruction
		if i+1 < len(list) {
			next = &list[i+1]
		}

		switch inst.Op {
		case ir.OpSetLabel:
			b.code(asm.SetLabel(inst.Name))
		case ir.OpSetULI:
			b.code(asm.SetLabel(asm.Label(inst.Num)))
		case ir.OpJmpZ, ir.OpJmpNZ:
			jump := asm.JMPRZ
			if inst.Op == ir.OpJmpNZ {
				jump = asm.JMPRNZ
			}
			b.code(asm.Op(asm.POPA), asm.Op(asm.CMPA), asm.OpRelLabel(jump, asm.Label(inst.Num)))
		case ir.OpJmp:
			b.code(asm.OpRelLabel(asm.JMPR, asm.Label(inst.Num)))
		case ir.OpFuncEnd:
			b.code(asm.Op(asm.RET))
		case ir.OpAddrLocal:
			if b.genAddrLocal(inst.Num, next) {
				i++
			}
		case ir.OpAddrGlobal:
			b.code(asm.OpLabel(asm.RAM_A, asm.Label(inst.Num)))
			if inst.Off != 0 {
				b.code(asm.OpHex2(asm.RAM_B, inst.Off), asm.Op(asm.SUM))
			}
			b.code(asm.Op(asm.PUSHA))
		case ir.OpWrite:
			b.genWrite(inst.Num)
		case ir.OpRead:
			b.genRead(inst.Num)
		case ir.OpChangeSP:
			b.genChangeSP(inst.Num)
		case ir.OpInt:
			v := inst.Num
			if next != nil && next.Op == ir.OpMul {
				v *= next.Num
				i++
			}
			b.genInt(v & 0xFFFF)
		case ir.OpString:
			b.code(asm.OpLabel(asm.RAM_A, asm.Label(inst.Num)), asm.Op(asm.PUSHA))
		case ir.OpOperation:
			b.genOperation(inst.Arith)
		case ir.OpMul:
			b.genMul(inst.Num & 0xFFFF)
		case ir.OpDiv:
			b.genDiv(inst.Num)
		case ir.OpCall:
			b.code(asm.OpLabel(asm.CALL, inst.Name))
		case ir.OpExtern:
			b.code(asm.Extern(inst.Name))
		case ir.OpAsm:
			b.code(asm.Raw(inst.Name))
		default:
			util.Unreachable("unexpected IR op %s", inst.Op)
		}
	}
}

// genAddrLocal pushes SP+n. A following multi word READ or WRITE is fused
// into SP relative peeks and stores; the result reports whether next was
// consumed.
func (b *asmBackend) genAddrLocal(n int, next *ir.Instruction) bool {
	if next != nil && next.Op == ir.OpRead && next.Num > 1 {
		size := next.Num
		util.Assert(size%2 == 0, "READ of odd size %d", size)
		if off := n + size - 2; n%2 == 0 && 0 <= n && off <= 0xFF {
			for k := 0; k < size; k += 2 {
				b.code(asm.OpHex(asm.PEEKAR, off), asm.Op(asm.PUSHA))
			}
			return true
		}
	}
	if next != nil && next.Op == ir.OpWrite && next.Num > 1 {
		size := next.Num
		util.Assert(size%2 == 0, "WRITE of odd size %d", size)
		// every POPA moves SP up a word, which keeps n-2 on the next slot
		if off := n - 2; n%2 == 0 && 0 <= off && off <= 0xFF {
			for k := 0; k < size; k += 2 {
				b.code(asm.Op(asm.POPA), asm.OpHex(asm.PUSHAR, off))
			}
			return true
		}
	}
	b.code(asm.Op(asm.SP_A), asm.OpHex2(asm.RAM_B, n), asm.Op(asm.SUM), asm.Op(asm.PUSHA))
	return false
}

// genWrite pops an address and stores the value below it, lowest word
// first.
func (b *asmBackend) genWrite(size int) {
	b.code(asm.Op(asm.POPB), asm.Op(asm.POPA))
	if size == 1 {
		b.code(asm.Op(asm.AL_rB))
		return
	}
	util.Assert(size%2 == 0, "WRITE of odd size %d", size)
	b.code(asm.Op(asm.A_rB))
	for k := 2; k < size; k += 2 {
		b.code(
			asm.OpHex(asm.RAM_AL, 2),
			asm.Op(asm.SUM),
			asm.Op(asm.A_B),
			asm.Op(asm.POPA),
			asm.Op(asm.A_rB),
		)
	}
}

// genRead pops an address and pushes the value stored there, highest word
// first.
func (b *asmBackend) genRead(size int) {
	b.code(asm.Op(asm.POPB))
	if size == 1 {
		b.code(asm.Op(asm.RB_AL), asm.Op(asm.PUSHA))
		return
	}
	util.Assert(size%2 == 0, "READ of odd size %d", size)
	if size > 2 {
		b.code(asm.OpHex2(asm.RAM_A, size-2), asm.Op(asm.SUM), asm.Op(asm.A_B))
	}
	b.code(asm.Op(asm.RB_A))
	for k := 2; k < size; k += 2 {
		b.code(
			asm.Op(asm.PUSHA),
			asm.OpHex(asm.RAM_AL, 2),
			asm.Op(asm.SUB),
			asm.Op(asm.A_B),
			asm.Op(asm.RB_A),
		)
	}
	b.code(asm.Op(asm.PUSHA))
}

func (b *asmBackend) genChangeSP(delta int) {
	if delta == 0 {
		return
	}
	util.Assert(delta%2 == 0, "odd stack change %d", delta)
	if abs(delta) <= 10 {
		step := asm.INCSP
		if delta > 0 {
			step = asm.DECSP
		}
		for k := 0; k < abs(delta); k += 2 {
			b.code(asm.Op(step))
		}
		return
	}
	b.code(asm.Op(asm.SP_A))
	if delta > 0 {
		b.code(asm.Op(asm.A_B), asm.OpHex2(asm.RAM_A, delta), asm.Op(asm.SUB))
	} else {
		b.code(asm.OpHex2(asm.RAM_B, -delta), asm.Op(asm.SUM))
	}
	b.code(asm.Op(asm.A_SP))
}

func (b *asmBackend) genInt(v int) {
	if v < 0x100 {
		b.code(asm.OpHex(asm.RAM_AL, v))
	} else {
		b.code(asm.OpHex2(asm.RAM_A, v))
	}
	b.code(asm.Op(asm.PUSHA))
}

var arithInsts = [...]asm.Inst{
	ir.ArithSum: asm.SUM,
	ir.ArithSub: asm.SUB,
	ir.ArithBAh: asm.B_AH,
	ir.ArithShl: asm.SHL,
	ir.ArithShr: asm.SHR,
}

func (b *asmBackend) genOperation(a ir.Arith) {
	switch a {
	case ir.ArithSum, ir.ArithSub, ir.ArithBAh:
		b.code(asm.Op(asm.POPA), asm.Op(asm.POPB), asm.Op(arithInsts[a]), asm.Op(asm.PUSHA))
	case ir.ArithShl, ir.ArithShr:
		b.code(asm.Op(asm.POPA), asm.Op(arithInsts[a]), asm.Op(asm.PUSHA))
	}
}

// genMul multiplies the top word by the constant n. Powers of two are
// shifts; anything else is shift and add over the bits of n, with the
// multiplicand kept on the stack.
func (b *asmBackend) genMul(n int) {
	switch {
	case n == 1:
		return
	case n == 0:
		b.code(asm.Op(asm.POPA), asm.OpHex(asm.RAM_AL, 0), asm.Op(asm.PUSHA))
		return
	case n&(n-1) == 0:
		b.code(asm.Op(asm.POPA))
		for k := 0; k < bits.TrailingZeros(uint(n)); k++ {
			b.code(asm.Op(asm.SHL))
		}
		b.code(asm.Op(asm.PUSHA))
		return
	}

	b.code(asm.Op(asm.POPA), asm.Op(asm.PUSHA))
	for bit := bits.Len(uint(n)) - 2; bit >= 0; bit-- {
		b.code(asm.Op(asm.SHL))
		if n&(1<<bit) != 0 {
			b.code(
				asm.Op(asm.PUSHA),
				asm.OpHex(asm.PEEKAR, 4),
				asm.Op(asm.A_B),
				asm.Op(asm.POPA),
				asm.Op(asm.SUM),
			)
		}
	}
	b.code(asm.Op(asm.POPB), asm.Op(asm.PUSHA))
}

func (b *asmBackend) genDiv(n int) {
	util.Assert(n > 0 && n&(n-1) == 0, "division by %d", n)
	if n == 1 {
		return
	}
	b.code(asm.Op(asm.POPA))
	for k := 0; k < bits.TrailingZeros(uint(n)); k++ {
		b.code(asm.Op(asm.SHR))
	}
	b.code(asm.Op(asm.PUSHA))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
