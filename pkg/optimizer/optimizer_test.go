package optimizer

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/simplec/pkg/asm"
	"github.com/xplshn/simplec/pkg/ast"
	"github.com/xplshn/simplec/pkg/config"
	"github.com/xplshn/simplec/pkg/ir"
	"github.com/xplshn/simplec/pkg/lexer"
	"github.com/xplshn/simplec/pkg/parser"
	"github.com/xplshn/simplec/pkg/token"
	"github.com/xplshn/simplec/pkg/typeChecker"
)

func irLines(list []ir.Instruction) []string {
	var out []string
	for _, inst := range list {
		out = append(out, inst.String())
	}
	return out
}

func asmText(list []asm.Bytecode) string {
	var parts []string
	for _, b := range list {
		parts = append(parts, b.String())
	}
	return strings.Join(parts, " ")
}

func TestRunRestarts(t *testing.T) {
	rules := []Rule[int]{
		{Name: "x x -> 2x", Match: func(s []int, i int) (int, []int) {
			if i+1 < len(s) && s[i] == s[i+1] {
				return 2, []int{2 * s[i]}
			}
			return 0, nil
		}},
	}
	var trace strings.Builder
	in := []int{4, 2, 1, 1}
	got := Run(in, rules, &trace)
	be.Equal(t, got, []int{8})
	be.Equal(t, in, []int{4, 2, 1, 1})
	be.Equal(t, trace.String(), "  002 | x x -> 2x\n  001 | x x -> 2x\n  000 | x x -> 2x\n")
}

func TestIRRules(t *testing.T) {
	tests := []struct {
		name string
		in   []ir.Instruction
		want []string
	}{
		{"drop zero", []ir.Instruction{ir.ChangeSP(0), ir.FuncEnd()}, []string{"FUNCEND"}},
		{"merge stack changes", []ir.Instruction{ir.ChangeSP(2), ir.ChangeSP(-6)}, []string{"CHANGE_SP -4"}},
		{"dead read", []ir.Instruction{ir.AddrLocal(4), ir.Read(2), ir.ChangeSP(-4)}, []string{"CHANGE_SP -2"}},
		{"dead char read", []ir.Instruction{ir.AddrLocal(4), ir.Read(1), ir.ChangeSP(-2)}, nil},
		{"live read", []ir.Instruction{ir.AddrLocal(4), ir.Read(4), ir.ChangeSP(-2)},
			[]string{"ADDR_LOCAL 4", "READ 4", "CHANGE_SP -2"}},
		{"merge reads", []ir.Instruction{ir.AddrLocal(6), ir.Read(2), ir.AddrLocal(6), ir.Read(2)},
			[]string{"ADDR_LOCAL 4", "READ 4"}},
		{"pack chars", []ir.Instruction{ir.Int(0x62), ir.Int(0x61), ir.Operation(ir.ArithBAh)}, []string{"INT 25185"}},
		{"wide chars", []ir.Instruction{ir.Int(0x100), ir.Int(1), ir.Operation(ir.ArithBAh)},
			[]string{"INT 256", "INT 1", "OPERATION B_AH"}},
		{"fold sum", []ir.Instruction{ir.Int(3), ir.Int(4), ir.Operation(ir.ArithSum)}, []string{"INT 7"}},
		{"fold sub", []ir.Instruction{ir.Int(0), ir.Int(1), ir.Operation(ir.ArithSub)}, []string{"INT 65535"}},
		{"fold mul", []ir.Instruction{ir.Int(3), ir.Mul(5)}, []string{"INT 15"}},
		{"offset address", []ir.Instruction{ir.AddrLocal(2), ir.Int(4), ir.Operation(ir.ArithSum)}, []string{"ADDR_LOCAL 6"}},
		{"forward store", []ir.Instruction{
			ir.Int(2), ir.AddrLocal(2), ir.Read(2), ir.AddrLocal(8), ir.Write(2), ir.ChangeSP(-2), ir.FuncEnd(),
		}, []string{"INT 2", "ADDR_LOCAL 6", "WRITE 2", "FUNCEND"}},
		{"labels block", []ir.Instruction{ir.ChangeSP(2), ir.SetULI(0), ir.ChangeSP(-2)},
			[]string{"CHANGE_SP 2", "SETULI 0", "CHANGE_SP -2"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := OptimizeIR(tc.in, nil)
			if diff := cmp.Diff(tc.want, irLines(got)); diff != "" {
				t.Errorf("IR mismatch (-want +got):\n%s", diff)
			}
			be.Equal(t, ir.Depth(got), ir.Depth(tc.in))
			be.Equal(t, irLines(OptimizeIR(got, nil)), irLines(got))
		})
	}
}

func TestIRTrace(t *testing.T) {
	var trace strings.Builder
	OptimizeIR([]ir.Instruction{ir.Int(3), ir.Int(4), ir.Operation(ir.ArithSum)}, &trace)
	be.Equal(t, trace.String(), "  000 | INT(x) INT(y) OPERATION(SUM|SUB) -> INT(x+y | x-y)\n")
}

func TestAsmRules(t *testing.T) {
	tests := []struct {
		name string
		in   []asm.Bytecode
		want string
	}{
		{"peek top", []asm.Bytecode{asm.OpHex(asm.PEEKAR, 2)}, "PEEKA"},
		{"push pop", []asm.Bytecode{asm.Op(asm.PUSHA), asm.Op(asm.POPA), asm.Op(asm.RET)}, "RET"},
		{"push popb", []asm.Bytecode{asm.Op(asm.PUSHA), asm.Op(asm.POPB)}, "A_B"},
		{"narrow", []asm.Bytecode{asm.OpHex2(asm.RAM_B, 0x10), asm.OpHex2(asm.RAM_A, 0x100)}, "RAM_BL 0x10 RAM_A 0x0100"},
		{"label stays wide", []asm.Bytecode{asm.OpLabel(asm.RAM_A, "_001"), asm.Op(asm.PUSHA)}, "RAM_A _001 PUSHA"},
		{"compare", []asm.Bytecode{asm.Op(asm.SUB), asm.Op(asm.CMPA), asm.OpRelLabel(asm.JMPRZ, "_000")}, "SUB JMPRZ $_000"},
		{"forward peek", []asm.Bytecode{asm.Op(asm.PUSHA), asm.OpHex(asm.PEEKAR, 6), asm.Op(asm.POPB)}, "A_B PEEKAR 0x04"},
		{"own word", []asm.Bytecode{asm.Op(asm.PUSHA), asm.OpHex(asm.PEEKAR, 2), asm.Op(asm.POPB)}, "PUSHA PEEKA POPB"},
		{"load b", []asm.Bytecode{asm.OpHex(asm.RAM_AL, 3), asm.Op(asm.A_B), asm.Op(asm.POPA), asm.Op(asm.SUM)},
			"RAM_BL 0x03 POPA SUM"},
		{"a still read", []asm.Bytecode{asm.OpHex(asm.RAM_AL, 3), asm.Op(asm.A_B), asm.Op(asm.SUM)}, "RAM_AL 0x03 A_B SUM"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := OptimizeAsm(tc.in, nil)
			be.Equal(t, asmText(got), tc.want)
			be.Equal(t, asmText(OptimizeAsm(got, nil)), tc.want)
		})
	}
}

func typed(t *testing.T, src string) *ast.Node {
	t.Helper()
	root, err := parser.NewParser(lexer.NewLexer("t.c", src)).Parse()
	be.Err(t, err, nil)
	be.Err(t, typeChecker.NewTypeChecker(config.NewConfig()).Check(root), nil)
	return root
}

func dump(root *ast.Node) string {
	var sb strings.Builder
	ast.Dump(&sb, root, false)
	return sb.String()
}

func TestOptimizeAST(t *testing.T) {
	root := typed(t, "int main() { int a = 1; if (a == 2) { a = 3; } while (a != 0) { a = a - 1; } return a; }")
	var trace strings.Builder
	OptimizeAST(root, &trace)
	be.Equal(t, trace.String(),
		"  000 | IF(EQ(a, b)) -> IF(MINUS(a, b)) swapped\n  001 | WHILE(NEQ(a, b)) -> WHILE(MINUS(a, b))\n")

	fn := root.Items()[0].Data.(ast.FuncDeclNode)
	stmts := fn.Body.Data.(ast.BlockNode).Body.Items()
	ifNode := stmts[1].Data.(ast.IfNode)
	be.Equal(t, ifNode.Cond.Data.(ast.BinaryOpNode).Op, token.Minus)
	be.True(t, ifNode.Then == nil)
	be.True(t, ifNode.Else != nil)

	once := dump(root)
	OptimizeAST(root, nil)
	be.Equal(t, dump(root), once)
}

func TestOptimizeASTWhileEq(t *testing.T) {
	root := typed(t, "int main() { int a = 1; while (a == 1) { a = 0; } if (!a) { a = 2; } else { a = 3; } return a; }")
	OptimizeAST(root, nil)
	stmts := root.Items()[0].Data.(ast.FuncDeclNode).Body.Data.(ast.BlockNode).Body.Items()

	loop := stmts[1].Data.(ast.WhileNode)
	not := loop.Cond.Data.(ast.UnaryOpNode)
	be.Equal(t, not.Op, token.Not)
	be.Equal(t, not.Arg.Data.(ast.BinaryOpNode).Op, token.Minus)

	// !a swaps the branches and drops the NOT
	ifNode := stmts[2].Data.(ast.IfNode)
	be.Equal(t, ifNode.Cond.Type, ast.Sym)
	assign := ifNode.Then.Data.(ast.BlockNode).Body.Items()[0].Data.(ast.StatementNode).Expr.Data.(ast.AssignNode)
	be.Equal(t, assign.Rhs.Data.(ast.IntNode).Value, 3)
}

func TestOptimizeASTPointers(t *testing.T) {
	root := typed(t, "int f(int *p, int *q) { if (p == q) { return 1; } return 0; } int main() { return 0; }")
	once := dump(root)
	OptimizeAST(root, nil)
	be.Equal(t, dump(root), once)
}
