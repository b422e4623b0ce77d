package lower

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/Pheeck/smtgcc/internal/diag"
	"github.com/Pheeck/smtgcc/internal/ir"
	"github.com/Pheeck/smtgcc/internal/tree"
)

func newTestModule() *ir.Module {
	return ir.NewModule(64, 16, 48)
}

// Helper to create a function taking two parameters of the given type,
// with one body block and the exit block. The body block is returned
// so tests can fill in statements.
func twoParamFunc(t *testing.T, paramType *tree.Type) (*tree.Function, *tree.Block, *tree.SSAName, *tree.SSAName) {
	t.Helper()
	declA := &tree.Decl{Name: "a", Type: paramType}
	declB := &tree.Decl{Name: "b", Type: paramType}
	paramA := &tree.Param{Decl: declA}
	paramB := &tree.Param{Decl: declB}
	nameA := &tree.SSAName{Num: 1, Type: paramType, Var: declA, Param: paramA}
	nameB := &tree.SSAName{Num: 2, Type: paramType, Var: declB, Param: paramB}

	body := &tree.Block{ID: 1}
	exit := &tree.Block{ID: 2}
	body.Succs = []*tree.Block{exit}
	exit.Preds = []*tree.Block{body}

	fn := &tree.Function{
		Name:    "src",
		RetType: paramType,
		Params:  []*tree.Param{paramA, paramB},
		Blocks:  []*tree.Block{body, exit},
	}
	return fn, body, nameA, nameB
}

func convert(t *testing.T, fn *tree.Function) (*ir.Function, error) {
	t.Helper()
	m := newTestModule()
	unit := &tree.Unit{Functions: []*tree.Function{fn}}
	return ConvertFunction(m, NewState(), unit, fn)
}

func countOps(f *ir.Function, op ir.Op) int {
	n := 0
	for _, bb := range f.Bbs {
		for _, phi := range bb.Phis {
			if phi.Op == op {
				n++
			}
		}
		for inst := bb.FirstInst; inst != nil; inst = inst.Next {
			if inst.Op == op {
				n++
			}
		}
	}
	return n
}

func TestSignedAddOverflowIsUB(t *testing.T) {
	t.Parallel()

	i32 := tree.IntType(32, false)
	fn, body, a, b := twoParamFunc(t, i32)
	sum := &tree.SSAName{Num: 3, Type: i32}
	body.Stmts = []tree.Stmt{
		&tree.Assign{LHS: sum, Code: tree.CodePlus, Args: [3]tree.Expr{a, b}, NofArgs: 2},
		&tree.Return{Value: sum},
	}

	f, err := convert(t, fn)
	if err != nil {
		t.Fatalf("ConvertFunction: %v", err)
	}
	if countOps(f, ir.OpAdd) != 1 {
		t.Fatalf("add count = %d", countOps(f, ir.OpAdd))
	}
	if countOps(f, ir.OpSAddWraps) != 1 {
		t.Fatalf("signed add did not get an overflow check")
	}
	if countOps(f, ir.OpUB) == 0 {
		t.Fatalf("signed add overflow is not UB")
	}
}

func TestUnsignedAddWraps(t *testing.T) {
	t.Parallel()

	u32 := tree.IntType(32, true)
	fn, body, a, b := twoParamFunc(t, u32)
	sum := &tree.SSAName{Num: 3, Type: u32}
	body.Stmts = []tree.Stmt{
		&tree.Assign{LHS: sum, Code: tree.CodePlus, Args: [3]tree.Expr{a, b}, NofArgs: 2},
		&tree.Return{Value: sum},
	}

	f, err := convert(t, fn)
	if err != nil {
		t.Fatalf("ConvertFunction: %v", err)
	}
	if countOps(f, ir.OpSAddWraps) != 0 {
		t.Fatalf("unsigned add got an overflow check")
	}
}

func TestSignedDivisionChecks(t *testing.T) {
	t.Parallel()

	i32 := tree.IntType(32, false)
	fn, body, a, b := twoParamFunc(t, i32)
	quot := &tree.SSAName{Num: 3, Type: i32}
	body.Stmts = []tree.Stmt{
		&tree.Assign{LHS: quot, Code: tree.CodeTruncDiv, Args: [3]tree.Expr{a, b}, NofArgs: 2},
		&tree.Return{Value: quot},
	}

	f, err := convert(t, fn)
	if err != nil {
		t.Fatalf("ConvertFunction: %v", err)
	}
	if countOps(f, ir.OpSDiv) != 1 {
		t.Fatalf("sdiv count = %d", countOps(f, ir.OpSDiv))
	}
	// Division by zero and INT_MIN / -1 are both UB.
	if countOps(f, ir.OpUB) < 2 {
		t.Fatalf("signed division got %d UB checks", countOps(f, ir.OpUB))
	}
}

func TestShiftCountCheck(t *testing.T) {
	t.Parallel()

	u32 := tree.IntType(32, true)
	fn, body, a, b := twoParamFunc(t, u32)
	res := &tree.SSAName{Num: 3, Type: u32}
	body.Stmts = []tree.Stmt{
		&tree.Assign{LHS: res, Code: tree.CodeLShift, Args: [3]tree.Expr{a, b}, NofArgs: 2},
		&tree.Return{Value: res},
	}

	f, err := convert(t, fn)
	if err != nil {
		t.Fatalf("ConvertFunction: %v", err)
	}
	if countOps(f, ir.OpShl) != 1 {
		t.Fatalf("shl count = %d", countOps(f, ir.OpShl))
	}
	if countOps(f, ir.OpUGE) == 0 || countOps(f, ir.OpUB) == 0 {
		t.Fatalf("shift count >= bitwidth is not UB")
	}
}

func TestLocalStoreLoad(t *testing.T) {
	t.Parallel()

	i32 := tree.IntType(32, false)
	decl := &tree.Decl{Name: "x", Type: i32}

	body := &tree.Block{ID: 1}
	exit := &tree.Block{ID: 2}
	body.Succs = []*tree.Block{exit}
	exit.Preds = []*tree.Block{body}

	seven := &tree.IntConst{Type: i32, Value: *uint256.NewInt(7)}
	loaded := &tree.SSAName{Num: 1, Type: i32}
	body.Stmts = []tree.Stmt{
		&tree.Assign{LHS: &tree.VarRef{Decl: decl}, Code: tree.CodeNop,
			Args: [3]tree.Expr{seven}, NofArgs: 1},
		&tree.Assign{LHS: loaded, Code: tree.CodeNop,
			Args: [3]tree.Expr{&tree.VarRef{Decl: decl}}, NofArgs: 1},
		&tree.Return{Value: loaded},
	}

	fn := &tree.Function{
		Name:    "src",
		RetType: i32,
		Decls:   []*tree.Decl{decl},
		Blocks:  []*tree.Block{body, exit},
	}

	f, err := convert(t, fn)
	if err != nil {
		t.Fatalf("ConvertFunction: %v", err)
	}
	// The 32-bit store and load are unrolled to bytes.
	if countOps(f, ir.OpStore) != 4 {
		t.Fatalf("store count = %d", countOps(f, ir.OpStore))
	}
	if countOps(f, ir.OpLoad) != 4 {
		t.Fatalf("load count = %d", countOps(f, ir.OpLoad))
	}
}

func TestSwitchPhiMerge(t *testing.T) {
	t.Parallel()

	i32 := tree.IntType(32, false)
	decl := &tree.Decl{Name: "x", Type: i32}
	param := &tree.Param{Decl: decl}
	x := &tree.SSAName{Num: 1, Type: i32, Var: decl, Param: param}

	b1 := &tree.Block{ID: 1}
	b2 := &tree.Block{ID: 2}
	b3 := &tree.Block{ID: 3}
	b4 := &tree.Block{ID: 4}

	five := &tree.IntConst{Type: i32, Value: *uint256.NewInt(5)}
	b1.Switch = &tree.SwitchTerm{
		Index:   x,
		Cases:   []tree.SwitchCase{{Low: five, Dest: b2}},
		Default: b3,
	}
	b1.Succs = []*tree.Block{b2, b3}
	b2.Succs = []*tree.Block{b3}
	b2.Preds = []*tree.Block{b1}
	b3.Preds = []*tree.Block{b2, b1}
	b3.Succs = []*tree.Block{b4}
	b4.Preds = []*tree.Block{b3}

	// The phi argument from the switch block must be redirected to the
	// compare block the expansion introduced.
	merged := &tree.SSAName{Num: 2, Type: i32}
	one := &tree.IntConst{Type: i32, Value: *uint256.NewInt(1)}
	two := &tree.IntConst{Type: i32, Value: *uint256.NewInt(2)}
	b3.Phis = []*tree.Phi{{
		Result: merged,
		Args: []tree.PhiArg{
			{Value: one, From: b2},
			{Value: two, From: b1},
		},
	}}
	b3.Stmts = []tree.Stmt{&tree.Return{Value: merged}}

	fn := &tree.Function{
		Name:    "src",
		RetType: i32,
		Params:  []*tree.Param{param},
		Blocks:  []*tree.Block{b1, b2, b3, b4},
	}

	f, err := convert(t, fn)
	if err != nil {
		t.Fatalf("ConvertFunction: %v", err)
	}
	if countOps(f, ir.OpPhi) == 0 {
		t.Fatalf("phi was not lowered")
	}
	if countOps(f, ir.OpRet) != 1 {
		t.Fatalf("ret count = %d", countOps(f, ir.OpRet))
	}
}

func TestInlineAsmRejected(t *testing.T) {
	t.Parallel()

	i32 := tree.IntType(32, false)
	fn, body, a, _ := twoParamFunc(t, i32)
	body.Stmts = []tree.Stmt{
		&tree.Asm{Template: "nop"},
		&tree.Return{Value: a},
	}

	_, err := convert(t, fn)
	if !diag.IsNotImplemented(err) {
		t.Fatalf("inline asm: got %v", err)
	}
}

func TestWhitespaceAsmAccepted(t *testing.T) {
	t.Parallel()

	i32 := tree.IntType(32, false)
	fn, body, a, _ := twoParamFunc(t, i32)
	body.Stmts = []tree.Stmt{
		&tree.Asm{Template: " \t\n"},
		&tree.Return{Value: a},
	}

	if _, err := convert(t, fn); err != nil {
		t.Fatalf("empty asm template: %v", err)
	}
}

func TestTooLargeLocalRejected(t *testing.T) {
	t.Parallel()

	i32 := tree.IntType(32, false)
	fn, body, a, _ := twoParamFunc(t, i32)
	body.Stmts = []tree.Stmt{&tree.Return{Value: a}}
	big := tree.ArrayType(tree.IntType(8, true), MaxMemoryUnrollLimit+1)
	fn.Decls = []*tree.Decl{{Name: "buf", Type: big}}

	_, err := convert(t, fn)
	if !diag.IsNotImplemented(err) {
		t.Fatalf("oversized local: got %v", err)
	}
}

func TestConvertUnitSkipsUnsupported(t *testing.T) {
	t.Parallel()

	i32 := tree.IntType(32, false)
	good, goodBody, a, _ := twoParamFunc(t, i32)
	goodBody.Stmts = []tree.Stmt{&tree.Return{Value: a}}

	bad, badBody, b, _ := twoParamFunc(t, i32)
	bad.Name = "tgt"
	badBody.Stmts = []tree.Stmt{
		&tree.Asm{Template: "ret"},
		&tree.Return{Value: b},
	}

	m := newTestModule()
	unit := &tree.Unit{Functions: []*tree.Function{good, bad}}
	skipped, err := ConvertUnit(m, NewState(), unit)
	if err != nil {
		t.Fatalf("ConvertUnit: %v", err)
	}
	if len(skipped) != 1 {
		t.Fatalf("skipped %d functions", len(skipped))
	}
	if _, ok := skipped["tgt"]; !ok {
		t.Fatalf("tgt was not skipped: %v", skipped)
	}
}

func TestMemsetUnrolled(t *testing.T) {
	t.Parallel()

	u8 := tree.IntType(8, true)
	u64 := tree.IntType(64, true)
	ptrType := tree.PointerType(u8, 64)
	decl := &tree.Decl{Name: "p", Type: ptrType}
	param := &tree.Param{Decl: decl}
	p := &tree.SSAName{Num: 1, Type: ptrType, Var: decl, Param: param}

	body := &tree.Block{ID: 1}
	exit := &tree.Block{ID: 2}
	body.Succs = []*tree.Block{exit}
	exit.Preds = []*tree.Block{body}

	i32 := tree.IntType(32, false)
	body.Stmts = []tree.Stmt{
		&tree.Call{
			Name: "__builtin_memset",
			Args: []tree.Expr{
				p,
				&tree.IntConst{Type: i32},
				&tree.IntConst{Type: u64, Value: *uint256.NewInt(4)},
			},
		},
	}

	fn := &tree.Function{
		Name:    "src",
		RetType: tree.VoidType,
		Params:  []*tree.Param{param},
		Blocks:  []*tree.Block{body, exit},
	}

	f, err := convert(t, fn)
	if err != nil {
		t.Fatalf("ConvertFunction: %v", err)
	}
	if countOps(f, ir.OpStore) != 4 {
		t.Fatalf("store count = %d", countOps(f, ir.OpStore))
	}
	if countOps(f, ir.OpSetMemFlag) != 4 {
		t.Fatalf("set_mem_flag count = %d", countOps(f, ir.OpSetMemFlag))
	}
	if countOps(f, ir.OpSetMemUndef) != 4 {
		t.Fatalf("set_mem_undef count = %d", countOps(f, ir.OpSetMemUndef))
	}
}

func TestBitFieldStoreRMW(t *testing.T) {
	t.Parallel()

	i3 := tree.IntType(3, false)
	i5 := tree.IntType(5, false)
	recType := tree.RecordType(1,
		tree.Field{Name: "a", Type: i3, Offset: 0, BitField: true, BitSize: 3},
		tree.Field{Name: "b", Type: i5, Offset: 3, BitField: true, BitSize: 5},
	)
	decl := &tree.Decl{Name: "s", Type: recType}

	body := &tree.Block{ID: 1}
	exit := &tree.Block{ID: 2}
	body.Succs = []*tree.Block{exit}
	exit.Preds = []*tree.Block{body}

	lhs := &tree.ComponentRef{
		Base:  &tree.VarRef{Decl: decl},
		Field: &recType.Fields[1],
	}
	three := &tree.IntConst{Type: i5, Value: *uint256.NewInt(3)}
	body.Stmts = []tree.Stmt{
		&tree.Assign{LHS: lhs, Code: tree.CodeNop,
			Args: [3]tree.Expr{three}, NofArgs: 1},
	}

	fn := &tree.Function{
		Name:    "src",
		RetType: tree.VoidType,
		Decls:   []*tree.Decl{decl},
		Blocks:  []*tree.Block{body, exit},
	}

	f, err := convert(t, fn)
	if err != nil {
		t.Fatalf("ConvertFunction: %v", err)
	}
	// The neighboring bit-field shares the byte, so the store is a
	// read-modify-write of that single byte.
	if countOps(f, ir.OpLoad) != 1 {
		t.Fatalf("load count = %d", countOps(f, ir.OpLoad))
	}
	if countOps(f, ir.OpStore) != 1 {
		t.Fatalf("store count = %d", countOps(f, ir.OpStore))
	}
	if countOps(f, ir.OpConcat) == 0 {
		t.Fatalf("kept bits were not spliced back")
	}
}

func TestFullyPaddedByteSkipsLoad(t *testing.T) {
	t.Parallel()

	u8 := tree.IntType(8, true)
	// Byte 0 of the record is padding; only byte 1 holds data.
	recType := tree.RecordType(2,
		tree.Field{Name: "v", Type: u8, Offset: 8, BitSize: 8},
	)
	decl := &tree.Decl{Name: "s", Type: recType}

	body := &tree.Block{ID: 1}
	exit := &tree.Block{ID: 2}
	body.Succs = []*tree.Block{exit}
	exit.Preds = []*tree.Block{body}

	loaded := &tree.SSAName{Num: 1, Type: recType}
	body.Stmts = []tree.Stmt{
		&tree.Assign{LHS: loaded, Code: tree.CodeNop,
			Args: [3]tree.Expr{&tree.VarRef{Decl: decl}}, NofArgs: 1},
		&tree.Return{Value: loaded},
	}

	fn := &tree.Function{
		Name:    "src",
		RetType: recType,
		Decls:   []*tree.Decl{decl},
		Blocks:  []*tree.Block{body, exit},
	}

	f, err := convert(t, fn)
	if err != nil {
		t.Fatalf("ConvertFunction: %v", err)
	}
	if countOps(f, ir.OpLoad) != 1 {
		t.Fatalf("load count = %d", countOps(f, ir.OpLoad))
	}
}

func TestPointerPlusOverflowIsUB(t *testing.T) {
	t.Parallel()

	u8 := tree.IntType(8, true)
	u64 := tree.IntType(64, true)
	ptrType := tree.PointerType(u8, 64)
	declP := &tree.Decl{Name: "p", Type: ptrType}
	declN := &tree.Decl{Name: "n", Type: u64}
	paramP := &tree.Param{Decl: declP}
	paramN := &tree.Param{Decl: declN}
	p := &tree.SSAName{Num: 1, Type: ptrType, Var: declP, Param: paramP}
	n := &tree.SSAName{Num: 2, Type: u64, Var: declN, Param: paramN}

	body := &tree.Block{ID: 1}
	exit := &tree.Block{ID: 2}
	body.Succs = []*tree.Block{exit}
	exit.Preds = []*tree.Block{body}

	res := &tree.SSAName{Num: 3, Type: ptrType}
	body.Stmts = []tree.Stmt{
		&tree.Assign{LHS: res, Code: tree.CodePointerPlus,
			Args: [3]tree.Expr{p, n}, NofArgs: 2},
		&tree.Return{Value: res},
	}

	fn := &tree.Function{
		Name:    "src",
		RetType: ptrType,
		Params:  []*tree.Param{paramP, paramN},
		Blocks:  []*tree.Block{body, exit},
	}

	f, err := convert(t, fn)
	if err != nil {
		t.Fatalf("ConvertFunction: %v", err)
	}
	// The addition must not move the pointer into another memory
	// object, and not wrap around the address space.
	if countOps(f, ir.OpUB) < 2 {
		t.Fatalf("pointer addition got %d UB checks", countOps(f, ir.OpUB))
	}
	if countOps(f, ir.OpExtract) == 0 {
		t.Fatalf("memory id of the result was not checked")
	}
}
