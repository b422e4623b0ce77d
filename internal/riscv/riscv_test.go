package riscv

import (
	"errors"
	"strings"
	"testing"

	"github.com/Pheeck/smtgcc/internal/diag"
	"github.com/Pheeck/smtgcc/internal/ir"
)

// Helper to create a module holding a source function that takes one
// parameter of the given width and returns it.
func srcModule(t *testing.T, paramBits uint32) *ir.Module {
	t.Helper()
	m := ir.NewModule(64, 16, 48)
	src := m.BuildFunction("src")
	entry := src.BuildBB()
	exit := src.BuildBB()
	param := entry.BuildInst2(ir.OpParam,
		entry.ValueInst(0, 32), entry.ValueInst(int64(paramBits), 32))
	entry.BuildBr(exit)
	exit.BuildRet1(param)
	return m
}

func countOps(f *ir.Function, op ir.Op) int {
	n := 0
	for _, bb := range f.Bbs {
		for inst := bb.FirstInst; inst != nil; inst = inst.Next {
			if inst.Op == op {
				n++
			}
		}
	}
	return n
}

func TestParseAdd(t *testing.T) {
	t.Parallel()

	asm := `	.text
	.globl	foo
foo:
	addw	a0,a0,a0
	ret
	.size	foo, .-foo
`
	m := srcModule(t, 32)
	f, err := Parse("foo.s", strings.NewReader(asm), m, []bool{false})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Name != "tgt" {
		t.Fatalf("function name = %q", f.Name)
	}
	if countOps(f, ir.OpRegister) != 32 {
		t.Fatalf("register count = %d", countOps(f, ir.OpRegister))
	}
	if countOps(f, ir.OpParam) != 1 {
		t.Fatalf("param count = %d", countOps(f, ir.OpParam))
	}
	if countOps(f, ir.OpAdd) != 1 {
		t.Fatalf("add count = %d", countOps(f, ir.OpAdd))
	}

	// The return value is read from a0 and truncated to the source
	// return width.
	exit := f.Bbs[len(f.Bbs)-1]
	ret := exit.LastInst
	if ret.Op != ir.OpRet || ret.NofArgs != 1 {
		t.Fatalf("exit does not end in a single-value ret")
	}
	if ret.Args[0].Bitsize != 32 {
		t.Fatalf("return width = %d", ret.Args[0].Bitsize)
	}
}

func TestParseUnsignedParamZeroExtended(t *testing.T) {
	t.Parallel()

	asm := `foo:
	ret
	.size	foo, .-foo
`
	m := srcModule(t, 32)
	f, err := Parse("foo.s", strings.NewReader(asm), m, []bool{true})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if countOps(f, ir.OpZExt) != 1 || countOps(f, ir.OpSExt) != 0 {
		t.Fatalf("unsigned parameter was not zero-extended")
	}

	m = srcModule(t, 32)
	f, err = Parse("foo.s", strings.NewReader(asm), m, []bool{false})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if countOps(f, ir.OpSExt) != 1 {
		t.Fatalf("signed parameter was not sign-extended")
	}
}

func TestParseBranchesAndLabels(t *testing.T) {
	t.Parallel()

	asm := `foo:
	ble	a0,a1,.L2
	mv	a0,a1
	j	.L3
.L2:
	addi	a0,a0,1
.L3:
	ret
	.size	foo, .-foo
`
	m := srcModule(t, 64)
	f, err := Parse("foo.s", strings.NewReader(asm), m, []bool{false, false})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if countOps(f, ir.OpSLE) != 1 {
		t.Fatalf("sle count = %d", countOps(f, ir.OpSLE))
	}
	condBrs := 0
	for _, bb := range f.Bbs {
		if bb.LastInst != nil && bb.LastInst.Op == ir.OpBr && bb.LastInst.TrueBB != nil {
			condBrs++
		}
	}
	if condBrs != 1 {
		t.Fatalf("conditional branch count = %d", condBrs)
	}
}

func TestParseLoadImmediate(t *testing.T) {
	t.Parallel()

	asm := `foo:
	li	a0,-1
	li	a1,0x7fffffff
	ret
	.size	foo, .-foo
`
	m := srcModule(t, 64)
	f, err := Parse("foo.s", strings.NewReader(asm), m, []bool{false})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if countOps(f, ir.OpWrite) < 2 {
		t.Fatalf("write count = %d", countOps(f, ir.OpWrite))
	}
}

func TestParseEbreakIsUB(t *testing.T) {
	t.Parallel()

	asm := `foo:
	ebreak
	.size	foo, .-foo
`
	m := srcModule(t, 32)
	f, err := Parse("foo.s", strings.NewReader(asm), m, []bool{false})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if countOps(f, ir.OpUB) != 1 {
		t.Fatalf("ub count = %d", countOps(f, ir.OpUB))
	}
}

func TestParseUnhandledInstruction(t *testing.T) {
	t.Parallel()

	asm := `foo:
	fence
	ret
	.size	foo, .-foo
`
	m := srcModule(t, 32)
	_, err := Parse("foo.s", strings.NewReader(asm), m, []bool{false})
	var pe *diag.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a parse error, got %v", err)
	}
	if pe.Line != 2 {
		t.Fatalf("error line = %d", pe.Line)
	}
	if !strings.Contains(pe.Msg, "fence") {
		t.Fatalf("error message %q does not name the instruction", pe.Msg)
	}
}

func TestParseTruncatedInput(t *testing.T) {
	t.Parallel()

	asm := `foo:
	ret
`
	m := srcModule(t, 32)
	_, err := Parse("foo.s", strings.NewReader(asm), m, []bool{false})
	var pe *diag.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a parse error, got %v", err)
	}
}
