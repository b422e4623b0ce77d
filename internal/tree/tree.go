package tree

import "github.com/holiman/uint256"

// Expr is a typed expression operand.
type Expr interface {
	exprNode()
	ExprType() *Type
}

// SSAName is an SSA value defined by a statement or phi node. Range
// and NonzeroBits carry optional value-range-propagation facts about
// the defined value.
type SSAName struct {
	Num         int
	Type        *Type
	Range       *ValueRange
	NonzeroBits *uint256.Int
	// Var is the declaration this name abstracts, when any: a formal
	// parameter for the default definition of an argument, or a local
	// variable for the default definition of an uninitialized read.
	Var *Decl
	// Param is non-nil when Var is a formal parameter.
	Param *Param
}

// IntConst is an integer (or boolean, or pointer) literal.
type IntConst struct {
	Type  *Type
	Value uint256.Int
}

// FloatConst is a float literal stored as its IEEE bit pattern.
type FloatConst struct {
	Type    *Type
	Pattern uint256.Int
}

// VectorConst is a per-lane constant vector.
type VectorConst struct {
	Type  *Type
	Elems []Expr
}

// ComplexConst is a complex literal with constant parts.
type ComplexConst struct {
	Type       *Type
	Real, Imag Expr
}

// StringConst is a string literal, not NUL-terminated.
type StringConst struct {
	Type *Type
	Data []byte
}

// VarRef names a declared variable used as an lvalue or initializer.
type VarRef struct {
	Decl *Decl
}

// MemRef dereferences Base (a pointer value) at a constant byte
// offset, reading or writing a value of the given type.
type MemRef struct {
	Type   *Type
	Base   Expr
	Offset int64
}

// ComponentRef selects a record or union member of an lvalue.
type ComponentRef struct {
	Base  Expr
	Field *Field
}

// ArrayRef indexes an array lvalue.
type ArrayRef struct {
	Type  *Type
	Base  Expr
	Index Expr
}

// BitFieldRef reads BitSize bits at bit offset BitOffset of Base.
type BitFieldRef struct {
	Type      *Type
	Base      Expr
	BitSize   uint32
	BitOffset uint64
}

// AddrExpr takes the address of an lvalue.
type AddrExpr struct {
	Type *Type
	Arg  Expr
}

// ViewConvert reinterprets the bits of Arg as another type of the
// same size.
type ViewConvert struct {
	Type *Type
	Arg  Expr
}

// CtorElem is one element of a constructor: a field (records), a
// constant index (arrays), or neither (vectors, positional).
type CtorElem struct {
	Field *Field
	Index *IntConst
	Value Expr
}

// Constructor is an aggregate initializer. An empty one zeroes the
// object. NoClearing marks C2x-style partial initialization where
// unmentioned parts keep their old value.
type Constructor struct {
	Type       *Type
	Elems      []CtorElem
	NoClearing bool
	Clobber    bool
	ClobberEOL bool
}

func (*SSAName) exprNode()      {}
func (*IntConst) exprNode()     {}
func (*FloatConst) exprNode()   {}
func (*VectorConst) exprNode()  {}
func (*ComplexConst) exprNode() {}
func (*StringConst) exprNode()  {}
func (*VarRef) exprNode()       {}
func (*MemRef) exprNode()       {}
func (*ComponentRef) exprNode() {}
func (*ArrayRef) exprNode()     {}
func (*BitFieldRef) exprNode()  {}
func (*AddrExpr) exprNode()     {}
func (*ViewConvert) exprNode()  {}
func (*Constructor) exprNode()  {}

func (e *SSAName) ExprType() *Type      { return e.Type }
func (e *IntConst) ExprType() *Type     { return e.Type }
func (e *FloatConst) ExprType() *Type   { return e.Type }
func (e *VectorConst) ExprType() *Type  { return e.Type }
func (e *ComplexConst) ExprType() *Type { return e.Type }
func (e *StringConst) ExprType() *Type  { return e.Type }
func (e *VarRef) ExprType() *Type       { return e.Decl.Type }
func (e *MemRef) ExprType() *Type       { return e.Type }
func (e *ComponentRef) ExprType() *Type { return e.Field.Type }
func (e *ArrayRef) ExprType() *Type     { return e.Type }
func (e *BitFieldRef) ExprType() *Type  { return e.Type }
func (e *AddrExpr) ExprType() *Type     { return e.Type }
func (e *ViewConvert) ExprType() *Type  { return e.Type }
func (e *Constructor) ExprType() *Type  { return e.Type }

// Code is the operation code of an assignment or condition.
type Code uint8

const (
	// Copy/conversion
	CodeNop Code = iota // plain copy of the rhs
	CodeConvert         // value conversion between scalar types

	// Unary
	CodeNeg
	CodeAbs
	CodeAbsU // abs without overflow UB, wraps instead
	CodeBitNot

	// Binary integer/float arithmetic
	CodePlus
	CodeMinus
	CodeMult
	CodeTruncDiv
	CodeExactDiv // division known to have no remainder
	CodeTruncMod
	CodeRDiv // float division
	CodeMin
	CodeMax

	// Bitwise and shifts
	CodeBitAnd
	CodeBitIor
	CodeBitXor
	CodeLShift
	CodeRShift
	CodeLRotate
	CodeRRotate

	// Pointer arithmetic
	CodePointerPlus
	CodePointerDiff

	// Widening arithmetic
	CodeWidenMult
	CodeMultHighpart

	// Comparisons
	CodeEq
	CodeNe
	CodeLt
	CodeLe
	CodeGt
	CodeGe
	// Float comparisons that are true when unordered
	CodeUnEq
	CodeUnLt
	CodeUnLe
	CodeUnGt
	CodeUnGe
	CodeOrdered
	CodeUnordered
	CodeLtGt // ordered and not equal

	// Ternary and aggregate
	CodeCond // ternary select on a boolean operand
	CodeBitInsert
	CodeVecCond
	CodeVecPerm

	// Vector lane rearrangement and reductions
	CodeVecPackTrunc
	CodeVecUnpackLo
	CodeVecUnpackHi
	CodeVecUnpackFloatLo
	CodeVecUnpackFloatHi
	CodeVecWidenMultLo
	CodeVecWidenMultHi
	CodeSad     // per-lane absolute difference accumulated into a wider lane
	CodeDotProd // per-lane product accumulated into a wider lane

	// Complex
	CodeComplexExpr // build a complex from two parts
	CodeRealPart
	CodeImagPart
	CodeConjugate
)

// IsComparison reports whether the code yields a boolean.
func (c Code) IsComparison() bool {
	return c >= CodeEq && c <= CodeLtGt
}

// Stmt is one statement of a basic block.
type Stmt interface{ stmtNode() }

// Assign computes Code over the arguments into LHS. CodeNop with one
// argument is a plain copy (including aggregate copies and loads and
// stores through memory lvalues).
type Assign struct {
	LHS     Expr
	Code    Code
	Args    [3]Expr
	NofArgs int
}

// Call invokes a builtin or internal function. LHS is nil when the
// result is unused. Only calls lowering understands are representable;
// everything else is rejected while building the tree.
type Call struct {
	LHS      Expr
	Name     string
	Internal bool
	Args     []Expr
}

// Return leaves the function, with Value nil for void returns.
type Return struct {
	Value Expr
}

// Asm is an inline assembly statement. Only the empty template is
// accepted by lowering.
type Asm struct {
	Template string
}

func (*Assign) stmtNode() {}
func (*Call) stmtNode()   {}
func (*Return) stmtNode() {}
func (*Asm) stmtNode()    {}

// PhiArg pairs a value with the predecessor it flows in from.
type PhiArg struct {
	Value Expr
	From  *Block
}

// Phi merges one value per predecessor into an SSA name.
type Phi struct {
	Result *SSAName
	Args   []PhiArg
}

// CondTerm is a two-way conditional block terminator.
type CondTerm struct {
	Code  Code
	Lhs   Expr
	Rhs   Expr
	True  *Block
	False *Block
}

// SwitchCase sends the inclusive range [Low, High] to Dest. High may
// be nil for a single-value case.
type SwitchCase struct {
	Low  *IntConst
	High *IntConst
	Dest *Block
}

// SwitchTerm is a multi-way block terminator.
type SwitchTerm struct {
	Index   Expr
	Cases   []SwitchCase
	Default *Block
}

// Block is a basic block. At most one of Cond and Switch is set; when
// both are nil the block falls through to Succs[0], or returns or ends
// the function if it has no successors.
type Block struct {
	ID     int
	Phis   []*Phi
	Stmts  []Stmt
	Cond   *CondTerm
	Switch *SwitchTerm
	Succs  []*Block
	Preds  []*Block
}

// Decl is a variable declaration, local or global.
type Decl struct {
	Name       string
	Type       *Type
	Init       Expr // optional initializer
	Static     bool // static storage duration
	Artificial bool // compiler-generated
	ReadOnly   bool
	Alias      string // name of the declaration this one aliases
}

// Param is a formal parameter with the attributes lowering consumes.
type Param struct {
	Decl    *Decl
	NonNull bool
	// Interprocedural constant propagation facts: bits of the incoming
	// value where Mask is clear are known to equal Value.
	Mask  *uint256.Int
	Value *uint256.Int
	// This marks the C++ constructor object pointer.
	This bool
}

// Function is one function in post-order-derived block layout: the
// entry block first, the exit block last.
type Function struct {
	Name    string
	RetType *Type
	// Result is the declaration aggregate return values are stored
	// through, when the function has one.
	Result *Decl
	Params []*Param
	Decls  []*Decl
	Blocks []*Block
}

// Entry returns the entry block.
func (f *Function) Entry() *Block { return f.Blocks[0] }

// Exit returns the exit block.
func (f *Function) Exit() *Block { return f.Blocks[len(f.Blocks)-1] }

// Unit is a translation unit: globals plus functions, with the target
// hooks the lowering needs.
type Unit struct {
	Globals   []*Decl
	Functions []*Function
	Hooks     TargetHooks
}
