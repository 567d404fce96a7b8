package compiler

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/simplec/pkg/config"
)

const retLocal = "int main() { int a = 2; return a; }"

func output(t *testing.T, u *Unit) string {
	t.Helper()
	var sb strings.Builder
	_, err := u.Asm.WriteTo(&sb)
	be.Err(t, err, nil)
	return sb.String()
}

func TestCompileUnoptimized(t *testing.T) {
	var dump strings.Builder
	u, err := New(config.NewConfig(), &dump).Compile("t.c", retLocal)
	be.Err(t, err, nil)
	be.Equal(t, u.Stopped, config.Module(0))
	be.Equal(t, dump.String(), "")
	want := "EXTERN exit GLOBAL _start \n" +
		"_start: RAM_AL 0x00 PUSHA CALLR $main POPA CALL exit \n" +
		"main: RAM_AL 0x02 PUSHA PEEKAR 0x02 PUSHA POPA PUSHAR 0x06 INCSP RET \n"
	if diff := cmp.Diff(want, output(t, u)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileOptimized(t *testing.T) {
	cfg := config.NewConfig()
	be.Err(t, cfg.ApplyOptLevel("4"), nil)
	be.Err(t, cfg.ApplyDebug("ir"), nil)
	var dump strings.Builder
	u, err := New(cfg, &dump).Compile("t.c", retLocal)
	be.Err(t, err, nil)
	be.Equal(t, dump.String(), "IR INIT:\nIR:\n\tSETLABEL main\n\tINT 2\n\tADDR_LOCAL 6\n\tWRITE 2\n\tFUNCEND\n")
	be.True(t, strings.HasSuffix(output(t, u), "main: RAM_AL 0x02 PUSHAR 0x04 RET \n"))
}

func TestStopAfter(t *testing.T) {
	tests := []struct {
		module string
		header string
	}{
		{"tok", "TOKENS:\n"},
		{"par", "AST:\n"},
		{"typ", "TYPED AST:\n"},
		{"ir", "IR INIT:\n"},
		{"com", "ASSEMBLY:\n"},
	}
	for _, tc := range tests {
		t.Run(tc.module, func(t *testing.T) {
			cfg := config.NewConfig()
			be.Err(t, cfg.ApplyStopAfter(tc.module), nil)
			var dump strings.Builder
			u, err := New(cfg, &dump).Compile("t.c", retLocal)
			be.Err(t, err, nil)
			m, _ := config.ParseModule(tc.module)
			be.Equal(t, u.Stopped, m)
			be.True(t, strings.HasPrefix(dump.String(), tc.header))
		})
	}
}

func TestStopAfterAll(t *testing.T) {
	cfg := config.NewConfig()
	be.Err(t, cfg.ApplyStopAfter("all"), nil)
	var dump strings.Builder
	u, err := New(cfg, &dump).Compile("t.c", "int main() { return 0; }")
	be.Err(t, err, nil)
	be.Equal(t, u.Stopped, config.ModTok)
	be.True(t, u.AST == nil)
	be.Equal(t, strings.Count(dump.String(), "\n"), 10)
	be.True(t, strings.HasPrefix(dump.String(), "TOKENS:\nINTKW 'int' @ 1:1\n"))
}

func TestOptimizerTrace(t *testing.T) {
	cfg := config.NewConfig()
	be.Err(t, cfg.ApplyOptLevel("3"), nil)
	be.Err(t, cfg.ApplyDebug("opt"), nil)
	var dump strings.Builder
	_, err := New(cfg, &dump).Compile("t.c", retLocal)
	be.Err(t, err, nil)
	got := dump.String()
	be.True(t, strings.HasPrefix(got, "OPTIMIZE AST:\nOPTIMIZE IR:\n"))
	be.True(t, strings.Contains(got, "OPTIMIZE ASM:\n"))
	be.True(t, strings.Contains(got, "| PUSHA POPA -> nothing\n"))
}

func TestCompileErrors(t *testing.T) {
	_, err := New(config.NewConfig(), &strings.Builder{}).Compile("t.c", "int f() { return 0; }")
	be.Equal(t, err.Error(), "ERROR: no main function found")

	_, err = New(config.NewConfig(), &strings.Builder{}).Compile("t.c", "int main() { return 0 }")
	be.True(t, err != nil)
}
