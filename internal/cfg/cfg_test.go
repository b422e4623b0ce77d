package cfg

import (
	"testing"

	"github.com/Pheeck/smtgcc/internal/diag"
	"github.com/Pheeck/smtgcc/internal/ir"
)

// Helper building a diamond: entry -> left/right -> exit.
func buildDiamond(t *testing.T) (*ir.Function, [4]*ir.BasicBlock) {
	t.Helper()
	m := ir.NewModule(64, 16, 48)
	f := m.BuildFunction("f")
	entry := f.BuildBB()
	left := f.BuildBB()
	right := f.BuildBB()
	exit := f.BuildBB()

	x := entry.BuildInst2(ir.OpParam, entry.ValueInst(0, 32), entry.ValueInst(32, 32))
	cond := entry.BuildInst2(ir.OpNE, x, entry.ValueInst(0, 32))
	entry.BuildCondBr(cond, left, right)
	left.BuildBr(exit)
	right.BuildBr(exit)
	exit.BuildRet1(x)
	return f, [4]*ir.BasicBlock{entry, left, right, exit}
}

func TestReversePostOrder(t *testing.T) {
	t.Parallel()

	f, bbs := buildDiamond(t)
	if err := ReversePostOrder(f); err != nil {
		t.Fatalf("ReversePostOrder: %v", err)
	}
	if f.Bbs[0] != bbs[0] {
		t.Fatal("entry must stay first")
	}
	if f.Bbs[len(f.Bbs)-1] != bbs[3] {
		t.Fatal("exit must stay last")
	}
	if err := ir.Validate(f); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDominance(t *testing.T) {
	t.Parallel()

	f, bbs := buildDiamond(t)
	if err := ReversePostOrder(f); err != nil {
		t.Fatalf("ReversePostOrder: %v", err)
	}
	entry, left, right, exit := bbs[0], bbs[1], bbs[2], bbs[3]

	for _, bb := range f.Bbs {
		if !Dominates(entry, bb) {
			t.Fatalf("entry must dominate .%d", bb.ID)
		}
		if !PostDominates(exit, bb) {
			t.Fatalf("exit must post dominate .%d", bb.ID)
		}
	}
	if Dominates(left, exit) || Dominates(right, exit) {
		t.Fatal("neither branch arm dominates the join")
	}
	if Dominates(left, right) || Dominates(right, left) {
		t.Fatal("the arms do not dominate each other")
	}
	if nd := NearestDominator(exit); nd != entry {
		t.Fatalf("nearest dominator of the join is .%d", nd.ID)
	}
}

func TestHasLoops(t *testing.T) {
	t.Parallel()

	f, _ := buildDiamond(t)
	if HasLoops(f) {
		t.Fatal("diamond has no loops")
	}

	m := ir.NewModule(64, 16, 48)
	g := m.BuildFunction("g")
	entry := g.BuildBB()
	body := g.BuildBB()
	exit := g.BuildBB()
	cond := entry.BuildInst2(ir.OpParam, entry.ValueInst(0, 32), entry.ValueInst(1, 32))
	entry.BuildBr(body)
	body.BuildCondBr(cond, body, exit)
	exit.BuildRet()
	if !HasLoops(g) {
		t.Fatal("self edge must be detected as a loop")
	}
}

func TestReversePostOrderRemovesDeadBlocks(t *testing.T) {
	t.Parallel()

	m := ir.NewModule(64, 16, 48)
	f := m.BuildFunction("f")
	entry := f.BuildBB()
	live := f.BuildBB()
	dead := f.BuildBB()
	exit := f.BuildBB()

	x := entry.BuildInst2(ir.OpParam, entry.ValueInst(0, 32), entry.ValueInst(32, 32))
	entry.BuildBr(live)
	live.BuildBr(exit)
	deadVal := dead.BuildInst1(ir.OpNeg, x)
	dead.BuildBr(exit)

	phi := exit.BuildPhi(32)
	phi.AddPhiArg(x, live)
	phi.AddPhiArg(deadVal, dead)
	exit.BuildRet1(phi)

	if err := ReversePostOrder(f); err != nil {
		t.Fatalf("ReversePostOrder: %v", err)
	}
	if len(f.Bbs) != 3 {
		t.Fatalf("%d blocks remain", len(f.Bbs))
	}
	if len(phi.PhiArgs) != 1 || phi.PhiArgs[0].Inst != x {
		t.Fatal("phi argument from the dead block must be removed")
	}
	if err := ir.Validate(f); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestReversePostOrderUnreachableExit(t *testing.T) {
	t.Parallel()

	m := ir.NewModule(64, 16, 48)
	f := m.BuildFunction("f")
	entry := f.BuildBB()
	loop := f.BuildBB()
	exit := f.BuildBB()
	entry.BuildBr(loop)
	loop.BuildBr(loop)
	exit.BuildRet()

	err := ReversePostOrder(f)
	if err == nil {
		t.Fatal("expected an error for an unreachable exit")
	}
	if !diag.IsNotImplemented(err) {
		t.Fatalf("unexpected error kind: %v", err)
	}
}

func TestSimplifyCFGFoldsLiteralBranch(t *testing.T) {
	t.Parallel()

	m := ir.NewModule(64, 16, 48)
	f := m.BuildFunction("f")
	entry := f.BuildBB()
	left := f.BuildBB()
	right := f.BuildBB()
	exit := f.BuildBB()

	x := entry.BuildInst2(ir.OpParam, entry.ValueInst(0, 32), entry.ValueInst(32, 32))
	cond := entry.ValueInst(1, 1)
	entry.BuildCondBr(cond, left, right)
	leftVal := left.BuildInst1(ir.OpNeg, x)
	left.BuildBr(exit)
	rightVal := right.BuildInst1(ir.OpNot, x)
	right.BuildBr(exit)

	phi := exit.BuildPhi(32)
	phi.AddPhiArg(leftVal, left)
	phi.AddPhiArg(rightVal, right)
	exit.BuildRet1(phi)

	if err := SimplifyCFG(f); err != nil {
		t.Fatalf("SimplifyCFG: %v", err)
	}
	// The literal-true branch keeps only the left arm.
	if len(f.Bbs) != 3 {
		t.Fatalf("%d blocks remain", len(f.Bbs))
	}
	if len(phi.PhiArgs) != 1 || phi.PhiArgs[0].Inst != leftVal {
		t.Fatal("only the taken arm's phi argument must survive")
	}
	if err := ir.Validate(f); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
