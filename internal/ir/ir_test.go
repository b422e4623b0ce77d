package ir

import (
	"strings"
	"testing"

	"github.com/holiman/uint256"
)

// Helper to create a one-function module with entry and exit blocks.
func buildTestFunc(t *testing.T) (*Function, *BasicBlock, *BasicBlock) {
	t.Helper()
	m := NewModule(64, 16, 48)
	f := m.BuildFunction("src")
	entry := f.BuildBB()
	exit := f.BuildBB()
	return f, entry, exit
}

func TestModulePointerLayout(t *testing.T) {
	t.Parallel()

	m := NewModule(32, 8, 24)
	if m.PtrIDHigh != 31 || m.PtrIDLow != 24 {
		t.Fatalf("32-bit id field is [%d:%d]", m.PtrIDHigh, m.PtrIDLow)
	}
	if m.PtrOffsetHigh != 23 || m.PtrOffsetLow != 0 {
		t.Fatalf("32-bit offset field is [%d:%d]", m.PtrOffsetHigh, m.PtrOffsetLow)
	}

	m = NewModule(64, 16, 48)
	if m.PtrIDHigh != 63 || m.PtrIDLow != 48 {
		t.Fatalf("64-bit id field is [%d:%d]", m.PtrIDHigh, m.PtrIDLow)
	}
}

func TestModulePointerLayoutRejected(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for ptr_bits != id + offset")
		}
	}()
	NewModule(64, 16, 32)
}

func TestBuilderBitsizes(t *testing.T) {
	t.Parallel()

	f, entry, exit := buildTestFunc(t)
	a := entry.ValueInst(7, 32)
	b := entry.ValueInst(9, 32)

	add := entry.BuildInst2(OpAdd, a, b)
	if add.Bitsize != 32 {
		t.Fatalf("add width = %d", add.Bitsize)
	}
	cmp := entry.BuildInst2(OpSLT, a, b)
	if cmp.Bitsize != 1 {
		t.Fatalf("comparison width = %d", cmp.Bitsize)
	}
	wraps := entry.BuildInst2(OpSAddWraps, a, b)
	if wraps.Bitsize != 1 {
		t.Fatalf("sadd_wraps width = %d", wraps.Bitsize)
	}
	cc := entry.BuildInst2(OpConcat, a, b)
	if cc.Bitsize != 64 {
		t.Fatalf("concat width = %d", cc.Bitsize)
	}
	sext := entry.BuildInst2(OpSExt, a, entry.ValueInst(64, 32))
	if sext.Bitsize != 64 {
		t.Fatalf("sext width = %d", sext.Bitsize)
	}
	ext := entry.BuildInst3(OpExtract, a, entry.ValueInst(15, 32), entry.ValueInst(8, 32))
	if ext.Bitsize != 8 {
		t.Fatalf("extract width = %d", ext.Bitsize)
	}
	ite := entry.BuildInst3(OpITE, cmp, a, b)
	if ite.Bitsize != 32 {
		t.Fatalf("ite width = %d", ite.Bitsize)
	}
	mem := entry.BuildInst3(OpMemory,
		entry.ValueInst(1, 16), entry.ValueInst(32, 48), entry.ValueInst(0, 32))
	if mem.Bitsize != 64 {
		t.Fatalf("memory width = %d", mem.Bitsize)
	}
	load := entry.BuildInst1(OpLoad, mem)
	if load.Bitsize != 8 {
		t.Fatalf("load width = %d", load.Bitsize)
	}
	size := entry.BuildInst1(OpMemSize, mem)
	if size.Bitsize != 48 {
		t.Fatalf("mem_size width = %d", size.Bitsize)
	}
	param := entry.BuildInst2(OpParam, entry.ValueInst(0, 32), entry.ValueInst(16, 32))
	if param.Bitsize != 16 {
		t.Fatalf("param width = %d", param.Bitsize)
	}

	entry.BuildBr(exit)
	exit.BuildRet1(add)
	if err := Validate(f); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestSExtMustWiden(t *testing.T) {
	t.Parallel()

	_, entry, _ := buildTestFunc(t)
	a := entry.ValueInst(1, 32)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for sext to the same width")
		}
	}()
	entry.BuildInst2(OpSExt, a, entry.ValueInst(32, 32))
}

func TestValueInterning(t *testing.T) {
	t.Parallel()

	_, entry, _ := buildTestFunc(t)
	a := entry.ValueInst(42, 32)
	b := entry.ValueInst(42, 32)
	if a != b {
		t.Fatal("equal literals of equal width must intern to one instruction")
	}
	c := entry.ValueInst(42, 64)
	if a == c {
		t.Fatal("width is part of the interning key")
	}

	// -1 normalizes to the all-ones pattern of the width.
	m1 := entry.ValueInst(-1, 8)
	if m1.Value[0] != 0xff {
		t.Fatalf("-1 at width 8 = %#x", m1.Value[0])
	}
	if entry.ValueInst(255, 8) != m1 {
		t.Fatal("-1 and 255 must intern together at width 8")
	}
}

func TestValueInstPrefixPlacement(t *testing.T) {
	t.Parallel()

	f, entry, exit := buildTestFunc(t)
	a := entry.ValueInst(1, 32)
	add := entry.BuildInst2(OpAdd, a, a)
	// Created after a non-value instruction, the literal must still be
	// placed inside the contiguous value prefix.
	b := entry.ValueInst(2, 32)
	if entry.FirstInst != a || a.Next != b || b.Next != add {
		t.Fatal("value instructions must form a contiguous entry prefix")
	}
	entry.BuildBr(exit)
	exit.BuildRet1(add)
	if err := Validate(f); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestWideValueConcat(t *testing.T) {
	t.Parallel()

	_, entry, _ := buildTestFunc(t)
	v := entry.ValueInstU256(uint256.NewInt(5), 129)
	if v.Op != OpConcat {
		t.Fatalf("129-bit literal lowered to %s", v.Op)
	}
	if v.Bitsize != 129 {
		t.Fatalf("synthesized width = %d", v.Bitsize)
	}
	if v.Args[0].Bitsize != 1 || v.Args[1].Bitsize != 128 {
		t.Fatalf("chunk widths = %d, %d", v.Args[0].Bitsize, v.Args[1].Bitsize)
	}
	if v.Args[1].Value[0] != 5 {
		t.Fatalf("low chunk = %#x", v.Args[1].Value[0])
	}

	m1 := entry.ValueM1Inst(129)
	if m1.Bitsize != 129 || m1.Op != OpConcat {
		t.Fatalf("all-ones 129-bit literal: %s width %d", m1.Op, m1.Bitsize)
	}
}

func TestInsertBeforeTerminator(t *testing.T) {
	t.Parallel()

	f, entry, exit := buildTestFunc(t)
	a := entry.ValueInst(1, 32)
	entry.BuildBr(exit)
	// Built after the branch, but must be placed before it.
	neg := entry.BuildInst1(OpNeg, a)
	if entry.LastInst.Op != OpBr || neg.Next != entry.LastInst {
		t.Fatal("instruction must be inserted before the terminator")
	}
	exit.BuildRet1(neg)
	if err := Validate(f); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCondBrWiresEdges(t *testing.T) {
	t.Parallel()

	m := NewModule(64, 16, 48)
	f := m.BuildFunction("src")
	entry := f.BuildBB()
	left := f.BuildBB()
	right := f.BuildBB()
	exit := f.BuildBB()

	cond := entry.ValueInst(1, 1)
	entry.BuildCondBr(cond, left, right)
	if len(entry.Succs) != 2 || entry.Succs[0] != left || entry.Succs[1] != right {
		t.Fatal("successors must list the true edge first")
	}
	left.BuildBr(exit)
	right.BuildBr(exit)
	exit.BuildRet()
	if len(exit.Preds) != 2 {
		t.Fatalf("exit has %d preds", len(exit.Preds))
	}
	if err := Validate(f); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestPhiArgs(t *testing.T) {
	t.Parallel()

	m := NewModule(64, 16, 48)
	f := m.BuildFunction("src")
	entry := f.BuildBB()
	left := f.BuildBB()
	right := f.BuildBB()
	exit := f.BuildBB()

	cond := entry.ValueInst(1, 1)
	one := entry.ValueInst(1, 32)
	two := entry.ValueInst(2, 32)
	entry.BuildCondBr(cond, left, right)
	left.BuildBr(exit)
	right.BuildBr(exit)

	phi := exit.BuildPhi(32)
	phi.AddPhiArg(one, left)
	phi.AddPhiArg(two, right)
	exit.BuildRet1(phi)

	if phi.GetPhiArg(left) != one || phi.GetPhiArg(right) != two {
		t.Fatal("phi argument lookup by predecessor failed")
	}
	if err := Validate(f); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// Removing one arg keeps the other's used_by entry.
	phi.RemovePhiArg(left)
	if one.UsedBy.Contains(phi) {
		t.Fatal("removed argument still registered as a use")
	}
	if !two.UsedBy.Contains(phi) {
		t.Fatal("remaining argument lost its use")
	}
}

func TestPhiSharedArgKeepsUse(t *testing.T) {
	t.Parallel()

	m := NewModule(64, 16, 48)
	f := m.BuildFunction("src")
	entry := f.BuildBB()
	left := f.BuildBB()
	right := f.BuildBB()
	exit := f.BuildBB()

	cond := entry.ValueInst(1, 1)
	one := entry.ValueInst(1, 32)
	entry.BuildCondBr(cond, left, right)
	left.BuildBr(exit)
	right.BuildBr(exit)

	phi := exit.BuildPhi(32)
	phi.AddPhiArg(one, left)
	phi.AddPhiArg(one, right)
	exit.BuildRet1(phi)

	phi.RemovePhiArg(left)
	if !one.UsedBy.Contains(phi) {
		t.Fatal("value still feeds the phi through the other predecessor")
	}
}

func TestDestroyInst(t *testing.T) {
	t.Parallel()

	f, entry, exit := buildTestFunc(t)
	a := entry.ValueInst(3, 32)
	neg := entry.BuildInst1(OpNeg, a)
	not := entry.BuildInst1(OpNot, neg)
	entry.BuildBr(exit)
	exit.BuildRet1(a)

	DestroyInst(not)
	if neg.UsedBy.Cardinality() != 0 {
		t.Fatal("destroying the use must unlink it from used_by")
	}
	DestroyInst(neg)
	if entry.FirstInst != a {
		t.Fatal("chain not relinked after destroy")
	}
	if err := Validate(f); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDestroyValueUninterns(t *testing.T) {
	t.Parallel()

	f, entry, exit := buildTestFunc(t)
	a := entry.ValueInst(3, 32)
	entry.BuildBr(exit)
	exit.BuildRet()
	DestroyInst(a)

	b := entry.ValueInst(3, 32)
	if a == b {
		t.Fatal("destroyed literal must not be returned from the intern map")
	}
	if err := Validate(f); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDestroyBrUnwiresEdges(t *testing.T) {
	t.Parallel()

	_, entry, exit := buildTestFunc(t)
	entry.BuildBr(exit)
	DestroyInst(entry.LastInst)
	if len(entry.Succs) != 0 || len(exit.Preds) != 0 {
		t.Fatal("destroying a branch must drop the CFG edge")
	}
}

func TestCanonicalizeCommutative(t *testing.T) {
	t.Parallel()

	f, entry, exit := buildTestFunc(t)
	a := entry.ValueInst(1, 32)
	b := entry.ValueInst(2, 32)
	add := entry.BuildInst2(OpAdd, b, a)
	sub := entry.BuildInst2(OpSub, b, a)
	entry.BuildBr(exit)
	exit.BuildRet1(add)

	f.Canonicalize()
	if add.Args[0].ID > add.Args[1].ID {
		t.Fatal("commutative arguments must be ordered by id")
	}
	if sub.Args[0] != b || sub.Args[1] != a {
		t.Fatal("non-commutative arguments must not be swapped")
	}
	if err := Validate(f); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestIdenticalSelf(t *testing.T) {
	t.Parallel()

	f, entry, exit := buildTestFunc(t)
	a := entry.ValueInst(1, 32)
	b := entry.ValueInst(2, 32)
	add := entry.BuildInst2(OpAdd, a, b)
	entry.BuildBr(exit)
	exit.BuildRet1(add)

	if !Identical(f, f) {
		t.Fatal("a function must be identical to itself")
	}
}

func TestIdenticalCommutativeSwap(t *testing.T) {
	t.Parallel()

	m := NewModule(64, 16, 48)
	build := func(name string, swap bool) *Function {
		f := m.BuildFunction(name)
		entry := f.BuildBB()
		exit := f.BuildBB()
		a := entry.ValueInst(1, 32)
		b := entry.ValueInst(2, 32)
		var add *Inst
		if swap {
			add = entry.BuildInst2(OpAdd, b, a)
		} else {
			add = entry.BuildInst2(OpAdd, a, b)
		}
		entry.BuildBr(exit)
		exit.BuildRet1(add)
		return f
	}
	src := build("src", false)
	tgt := build("tgt", true)
	if !Identical(src, tgt) {
		t.Fatal("commutative operand order must not affect identity")
	}
}

func TestSymbolicNeverIdentical(t *testing.T) {
	t.Parallel()

	m := NewModule(64, 16, 48)
	build := func(name string) *Function {
		f := m.BuildFunction(name)
		entry := f.BuildBB()
		exit := f.BuildBB()
		sym := entry.BuildInst2(OpSymbolic,
			entry.ValueInst(0, 32), entry.ValueInst(32, 32))
		entry.BuildBr(exit)
		exit.BuildRet1(sym)
		return f
	}
	if Identical(build("src"), build("tgt")) {
		t.Fatal("symbolic instructions must never compare identical")
	}
}

func TestFormatRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewModule(64, 16, 48)
	f := m.BuildFunction("f")
	entry := f.BuildBB()
	left := f.BuildBB()
	right := f.BuildBB()
	exit := f.BuildBB()

	x := entry.BuildInst2(OpParam, entry.ValueInst(0, 32), entry.ValueInst(32, 32))
	cond := entry.BuildInst2(OpSLT, x, entry.ValueInst(0, 32))
	entry.BuildCondBr(cond, left, right)
	neg := left.BuildInst1(OpNeg, x)
	left.BuildBr(exit)
	right.BuildBr(exit)
	phi := exit.BuildPhi(32)
	phi.AddPhiArg(neg, left)
	phi.AddPhiArg(x, right)
	exit.BuildRet1(phi)

	f.Canonicalize()
	text := FormatModule(m)
	if !strings.Contains(text, "config 64, 16, 48") {
		t.Fatalf("missing config line in:\n%s", text)
	}

	m2, err := ParseModule("test.ir", text)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(m2.Functions) != 1 {
		t.Fatalf("parsed %d functions", len(m2.Functions))
	}
	if err := Validate(m2.Functions[0]); err != nil {
		t.Fatalf("Validate after parse: %v", err)
	}
	text2 := FormatModule(m2)
	if text != text2 {
		t.Fatalf("round trip changed the text:\n--- printed\n%s\n--- reparsed\n%s", text, text2)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
	}{
		{"no config", "function f\n.0:\n  ret\n"},
		{"bad pointer size", "config 48, 16, 32\n\nfunction f\n.0:\n  ret\n"},
		{"bad layout", "config 64, 16, 32\n\nfunction f\n.0:\n  ret\n"},
		{"unknown op", "config 64, 16, 48\n\nfunction f\n.0:\n  frob %1\n  ret\n"},
		{"undefined ref", "config 64, 16, 48\n\nfunction f\n.0:\n  %5 = neg %4\n  ret\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseModule("test.ir", tc.text); err == nil {
				t.Fatalf("expected a parse error")
			}
		})
	}
}

func TestReplaceAllUsesWith(t *testing.T) {
	t.Parallel()

	f, entry, exit := buildTestFunc(t)
	a := entry.ValueInst(1, 32)
	b := entry.ValueInst(2, 32)
	neg := entry.BuildInst1(OpNeg, a)
	add := entry.BuildInst2(OpAdd, neg, neg)
	entry.BuildBr(exit)
	exit.BuildRet1(add)

	neg.ReplaceAllUsesWith(b)
	if add.Args[0] != b || add.Args[1] != b {
		t.Fatal("uses not redirected")
	}
	if neg.UsedBy.Cardinality() != 0 {
		t.Fatal("old instruction still has uses")
	}
	DestroyInst(neg)
	if err := Validate(f); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestOpTable(t *testing.T) {
	t.Parallel()

	if OpSSubWraps.IsCommutative() {
		t.Fatal("ssub_wraps must not be commutative")
	}
	if !OpSAddWraps.IsCommutative() || !OpSMulWraps.IsCommutative() {
		t.Fatal("sadd_wraps and smul_wraps are commutative")
	}
	if OpStore.HasLHS() || OpUB.HasLHS() || OpFree.HasLHS() || OpBr.HasLHS() {
		t.Fatal("side-effect instructions must not produce a value")
	}
	if OpEQ.Class() != ClassICmp || OpFEQ.Class() != ClassFCmp {
		t.Fatal("comparison classes wrong")
	}
	if OpZExt.Class() != ClassConv {
		t.Fatal("zext must be a conversion")
	}
	if got := OpSAddWraps.String(); got != "sadd_wraps" {
		t.Fatalf("opcode name = %q", got)
	}
}
