package checker

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Pheeck/smtgcc/internal/diag"
	"github.com/Pheeck/smtgcc/internal/ir"
)

// fakeSolver records calls and returns a canned answer.
type fakeSolver struct {
	refineCalls int
	ubCalls     int
	assertCalls int
	stats       Stats
	msg         string
}

func (s *fakeSolver) CheckRefine(src, tgt *ir.Function) (Stats, string) {
	s.refineCalls++
	return s.stats, s.msg
}

func (s *fakeSolver) CheckUB(f *ir.Function) (Stats, string) {
	s.ubCalls++
	return s.stats, s.msg
}

func (s *fakeSolver) CheckAssert(f *ir.Function) (Stats, string) {
	s.assertCalls++
	return s.stats, s.msg
}

// buildAddFunc creates name(x) = x + x.
func buildAddFunc(m *ir.Module, name string) *ir.Function {
	f := m.BuildFunction(name)
	entry := f.BuildBB()
	exit := f.BuildBB()
	x := entry.BuildInst2(ir.OpParam, entry.ValueInst(0, 32), entry.ValueInst(32, 32))
	sum := entry.BuildInst2(ir.OpAdd, x, x)
	entry.BuildBr(exit)
	exit.BuildRet1(sum)
	return f
}

// buildMulFunc creates name(x) = 2 * x.
func buildMulFunc(m *ir.Module, name string) *ir.Function {
	f := m.BuildFunction(name)
	entry := f.BuildBB()
	exit := f.BuildBB()
	x := entry.BuildInst2(ir.OpParam, entry.ValueInst(0, 32), entry.ValueInst(32, 32))
	two := entry.ValueInst(2, 32)
	prod := entry.BuildInst2(ir.OpMul, two, x)
	entry.BuildBr(exit)
	exit.BuildRet1(prod)
	return f
}

// buildDivFunc creates name(x, y) = x / y, with the division UB
// guards when guarded is set.
func buildDivFunc(m *ir.Module, name string, guarded bool) *ir.Function {
	f := m.BuildFunction(name)
	entry := f.BuildBB()
	exit := f.BuildBB()
	x := entry.BuildInst2(ir.OpParam, entry.ValueInst(0, 32), entry.ValueInst(32, 32))
	y := entry.BuildInst2(ir.OpParam, entry.ValueInst(1, 32), entry.ValueInst(32, 32))
	if guarded {
		zero := entry.ValueInst(0, 32)
		entry.BuildInst1(ir.OpUB, entry.BuildInst2(ir.OpEQ, y, zero))
		intMin := entry.ValueInst(-0x80000000, 32)
		minusOne := entry.ValueInst(-1, 32)
		overflow := entry.BuildInst2(ir.OpAnd,
			entry.BuildInst2(ir.OpEQ, x, intMin),
			entry.BuildInst2(ir.OpEQ, y, minusOne))
		entry.BuildInst1(ir.OpUB, overflow)
	}
	quot := entry.BuildInst2(ir.OpSDiv, x, y)
	entry.BuildBr(exit)
	exit.BuildRet1(quot)
	return f
}

func TestDivGuardRemovalReachesSolver(t *testing.T) {
	t.Parallel()

	// Identically guarded divisions refine trivially.
	m := ir.NewModule(64, 16, 48)
	buildDivFunc(m, "src", true)
	buildDivFunc(m, "tgt", true)
	solver := &fakeSolver{}
	c := New(diag.New(&bytes.Buffer{}, 0), solver)
	if _, err := c.CheckRefine(m); err != nil {
		t.Fatalf("CheckRefine: %v", err)
	}
	if solver.refineCalls != 0 {
		t.Fatalf("solver invoked for identical functions")
	}

	// With the UB guards removed from tgt the functions are no longer
	// identical and the verdict is up to the solver.
	m = ir.NewModule(64, 16, 48)
	buildDivFunc(m, "src", true)
	buildDivFunc(m, "tgt", false)
	solver = &fakeSolver{msg: "tgt is UB for x = INT_MIN, y = -1"}
	c = New(diag.New(&bytes.Buffer{}, 0), solver)
	msg, err := c.CheckRefine(m)
	if err != nil {
		t.Fatalf("CheckRefine: %v", err)
	}
	if solver.refineCalls != 1 || msg != solver.msg {
		t.Fatalf("calls = %d, msg = %q", solver.refineCalls, msg)
	}
}

func TestIdenticalSkipsSolver(t *testing.T) {
	t.Parallel()

	m := ir.NewModule(64, 16, 48)
	buildAddFunc(m, "src")
	buildAddFunc(m, "tgt")

	solver := &fakeSolver{msg: "must not be used"}
	c := New(diag.New(&bytes.Buffer{}, 0), solver)
	msg, err := c.CheckRefine(m)
	if err != nil {
		t.Fatalf("CheckRefine: %v", err)
	}
	if msg != "" {
		t.Fatalf("identical functions got a counterexample: %q", msg)
	}
	if solver.refineCalls != 0 {
		t.Fatalf("solver was invoked for identical functions")
	}
}

func TestNonIdenticalGoesToSolver(t *testing.T) {
	t.Parallel()

	m := ir.NewModule(64, 16, 48)
	buildAddFunc(m, "src")
	buildMulFunc(m, "tgt")

	solver := &fakeSolver{}
	c := New(diag.New(&bytes.Buffer{}, 0), solver)
	msg, err := c.CheckRefine(m)
	if err != nil {
		t.Fatalf("CheckRefine: %v", err)
	}
	if msg != "" {
		t.Fatalf("unexpected counterexample: %q", msg)
	}
	if solver.refineCalls != 1 {
		t.Fatalf("solver calls = %d", solver.refineCalls)
	}
}

func TestCounterexamplePropagated(t *testing.T) {
	t.Parallel()

	m := ir.NewModule(64, 16, 48)
	buildAddFunc(m, "src")
	buildMulFunc(m, "tgt")

	solver := &fakeSolver{msg: "retval differs for x = 3"}
	c := New(diag.New(&bytes.Buffer{}, 0), solver)
	msg, err := c.CheckRefine(m)
	if err != nil {
		t.Fatalf("CheckRefine: %v", err)
	}
	if msg != solver.msg {
		t.Fatalf("counterexample = %q", msg)
	}
}

func TestFunctionOrderDoesNotMatter(t *testing.T) {
	t.Parallel()

	m := ir.NewModule(64, 16, 48)
	buildAddFunc(m, "tgt")
	buildAddFunc(m, "src")

	c := New(diag.New(&bytes.Buffer{}, 0))
	if _, err := c.CheckRefine(m); err != nil {
		t.Fatalf("CheckRefine: %v", err)
	}
}

func TestBadModuleShape(t *testing.T) {
	t.Parallel()

	m := ir.NewModule(64, 16, 48)
	buildAddFunc(m, "src")

	c := New(diag.New(&bytes.Buffer{}, 0))
	if _, err := c.CheckRefine(m); err == nil {
		t.Fatal("expected an error for a one-function module")
	}
}

func TestTimingReport(t *testing.T) {
	t.Parallel()

	m := ir.NewModule(64, 16, 48)
	buildAddFunc(m, "src")
	buildMulFunc(m, "tgt")

	solver := &fakeSolver{stats: Stats{Time: [3]uint64{1, 2, 3}}}
	var buf bytes.Buffer
	c := New(diag.New(&buf, 1), solver)
	if _, err := c.CheckRefine(m); err != nil {
		t.Fatalf("CheckRefine: %v", err)
	}
	if !strings.Contains(buf.String(), "SMTGCC: time: 1,2,3") {
		t.Fatalf("timing line missing: %q", buf.String())
	}
}

func TestSkippedSolverSilent(t *testing.T) {
	t.Parallel()

	m := ir.NewModule(64, 16, 48)
	buildAddFunc(m, "src")
	buildMulFunc(m, "tgt")

	solver := &fakeSolver{stats: Stats{Skipped: true}}
	var buf bytes.Buffer
	c := New(diag.New(&buf, 1), solver)
	if _, err := c.CheckRefine(m); err != nil {
		t.Fatalf("CheckRefine: %v", err)
	}
	if strings.Contains(buf.String(), "SMTGCC: time:") {
		t.Fatalf("timing line written for a skipped solver: %q", buf.String())
	}
}

func TestCheckUBRunsSolver(t *testing.T) {
	t.Parallel()

	m := ir.NewModule(64, 16, 48)
	f := buildAddFunc(m, "src")

	solver := &fakeSolver{msg: "UB for x = INT_MIN"}
	c := New(diag.New(&bytes.Buffer{}, 0), solver)
	msg, err := c.CheckUB(f)
	if err != nil {
		t.Fatalf("CheckUB: %v", err)
	}
	if solver.ubCalls != 1 || msg != solver.msg {
		t.Fatalf("calls = %d, msg = %q", solver.ubCalls, msg)
	}
}

func TestCheckAssertRunsSolver(t *testing.T) {
	t.Parallel()

	m := ir.NewModule(64, 16, 48)
	f := buildAddFunc(m, "src")

	solver := &fakeSolver{}
	c := New(diag.New(&bytes.Buffer{}, 0), solver)
	if _, err := c.CheckAssert(f); err != nil {
		t.Fatalf("CheckAssert: %v", err)
	}
	if solver.assertCalls != 1 {
		t.Fatalf("assert calls = %d", solver.assertCalls)
	}
}
