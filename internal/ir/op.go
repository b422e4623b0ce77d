package ir

// Op identifies an IR opcode.
type Op uint8

// Class groups opcodes that share operand and result conventions.
type Class uint8

const (
	ClassICmp Class = iota
	ClassFCmp
	ClassIUnary
	ClassFUnary
	ClassIBinary
	ClassFBinary
	ClassTernary
	ClassConv
	ClassSpecial
)

const (
	// Integer comparison
	OpEQ Op = iota
	OpNE
	OpSGE
	OpSGT
	OpSLE
	OpSLT
	OpUGE
	OpUGT
	OpULE
	OpULT

	// Floating-point comparison
	OpFEQ
	OpFGE
	OpFGT
	OpFLE
	OpFLT
	OpFNE

	// Integer unary
	OpAssert
	OpFree
	OpGetMemFlag
	OpGetMemUndef
	OpIsConstMem
	OpIsNoncanonicalNaN
	OpLoad
	OpMemSize
	OpMov
	OpNeg
	OpNot
	OpRead
	OpRegister
	OpSymbolic
	OpUB

	// Floating-point unary
	OpFAbs
	OpFNeg

	// Integer binary
	OpAdd
	OpAnd
	OpAshr
	OpConcat
	OpLshr
	OpMul
	OpOr
	OpParam
	OpSAddWraps
	OpSDiv
	OpSetMemFlag
	OpSetMemUndef
	OpShl
	OpSMax
	OpSMin
	OpSMulWraps
	OpSRem
	OpSSubWraps
	OpStore
	OpSub
	OpUDiv
	OpUMax
	OpUMin
	OpURem
	OpWrite
	OpXor

	// Floating-point binary
	OpFAdd
	OpFDiv
	OpFMul
	OpFSub

	// Ternary
	OpExtract
	OpITE
	OpMemory

	// Conversions
	OpF2S
	OpF2U
	OpFChprec
	OpS2F
	OpSExt
	OpU2F
	OpZExt

	// Special
	OpBr
	OpPhi
	OpRet
	OpValue

	numOps
)

type opInfo struct {
	name          string
	class         Class
	hasLHS        bool
	isCommutative bool
}

// opTable is indexed by Op; initOpTable validates the ordering.
var opTable = [numOps]opInfo{
	OpEQ:  {"eq", ClassICmp, true, true},
	OpNE:  {"ne", ClassICmp, true, true},
	OpSGE: {"sge", ClassICmp, true, false},
	OpSGT: {"sgt", ClassICmp, true, false},
	OpSLE: {"sle", ClassICmp, true, false},
	OpSLT: {"slt", ClassICmp, true, false},
	OpUGE: {"uge", ClassICmp, true, false},
	OpUGT: {"ugt", ClassICmp, true, false},
	OpULE: {"ule", ClassICmp, true, false},
	OpULT: {"ult", ClassICmp, true, false},

	OpFEQ: {"feq", ClassFCmp, true, true},
	OpFGE: {"fge", ClassFCmp, true, false},
	OpFGT: {"fgt", ClassFCmp, true, false},
	OpFLE: {"fle", ClassFCmp, true, false},
	OpFLT: {"flt", ClassFCmp, true, false},
	OpFNE: {"fne", ClassFCmp, true, true},

	OpAssert:            {"assert", ClassIUnary, false, false},
	OpFree:              {"free", ClassIUnary, false, false},
	OpGetMemFlag:        {"get_mem_flag", ClassIUnary, true, false},
	OpGetMemUndef:       {"get_mem_undef", ClassIUnary, true, false},
	OpIsConstMem:        {"is_const_mem", ClassIUnary, true, false},
	OpIsNoncanonicalNaN: {"is_noncanonical_nan", ClassIUnary, true, false},
	OpLoad:              {"load", ClassIUnary, true, false},
	OpMemSize:           {"mem_size", ClassIUnary, true, false},
	OpMov:               {"mov", ClassIUnary, true, false},
	OpNeg:               {"neg", ClassIUnary, true, false},
	OpNot:               {"not", ClassIUnary, true, false},
	OpRead:              {"read", ClassIUnary, true, false},
	OpRegister:          {"register", ClassIUnary, true, false},
	OpSymbolic:          {"symbolic", ClassIUnary, true, false},
	OpUB:                {"ub", ClassIUnary, false, false},

	OpFAbs: {"fabs", ClassFUnary, true, false},
	OpFNeg: {"fneg", ClassFUnary, true, false},

	OpAdd:         {"add", ClassIBinary, true, true},
	OpAnd:         {"and", ClassIBinary, true, true},
	OpAshr:        {"ashr", ClassIBinary, true, false},
	OpConcat:      {"concat", ClassIBinary, true, false},
	OpLshr:        {"lshr", ClassIBinary, true, false},
	OpMul:         {"mul", ClassIBinary, true, true},
	OpOr:          {"or", ClassIBinary, true, true},
	OpParam:       {"param", ClassIBinary, true, false},
	OpSAddWraps:   {"sadd_wraps", ClassIBinary, true, true},
	OpSDiv:        {"sdiv", ClassIBinary, true, false},
	OpSetMemFlag:  {"set_mem_flag", ClassIBinary, false, false},
	OpSetMemUndef: {"set_mem_undef", ClassIBinary, false, false},
	OpShl:         {"shl", ClassIBinary, true, false},
	OpSMax:        {"smax", ClassIBinary, true, true},
	OpSMin:        {"smin", ClassIBinary, true, true},
	OpSMulWraps:   {"smul_wraps", ClassIBinary, true, true},
	OpSRem:        {"srem", ClassIBinary, true, false},
	OpSSubWraps:   {"ssub_wraps", ClassIBinary, true, false},
	OpStore:       {"store", ClassIBinary, false, false},
	OpSub:         {"sub", ClassIBinary, true, false},
	OpUDiv:        {"udiv", ClassIBinary, true, false},
	OpUMax:        {"umax", ClassIBinary, true, true},
	OpUMin:        {"umin", ClassIBinary, true, true},
	OpURem:        {"urem", ClassIBinary, true, false},
	OpWrite:       {"write", ClassIBinary, false, false},
	OpXor:         {"xor", ClassIBinary, true, true},

	OpFAdd: {"fadd", ClassFBinary, true, true},
	OpFDiv: {"fdiv", ClassFBinary, true, false},
	OpFMul: {"fmul", ClassFBinary, true, true},
	OpFSub: {"fsub", ClassFBinary, true, false},

	OpExtract: {"extract", ClassTernary, true, false},
	OpITE:     {"ite", ClassTernary, true, false},
	OpMemory:  {"memory", ClassTernary, true, false},

	OpF2S:     {"f2s", ClassConv, true, false},
	OpF2U:     {"f2u", ClassConv, true, false},
	OpFChprec: {"fchprec", ClassConv, true, false},
	OpS2F:     {"s2f", ClassConv, true, false},
	OpSExt:    {"sext", ClassConv, true, false},
	OpU2F:     {"u2f", ClassConv, true, false},
	OpZExt:    {"zext", ClassConv, true, false},

	OpBr:    {"br", ClassSpecial, false, false},
	OpPhi:   {"phi", ClassSpecial, true, false},
	OpRet:   {"ret", ClassSpecial, false, false},
	OpValue: {"value", ClassSpecial, true, false},
}

func (op Op) String() string { return opTable[op].name }

// Class returns the operand/result convention group of op.
func (op Op) Class() Class { return opTable[op].class }

// HasLHS reports whether the instruction produces a value.
func (op Op) HasLHS() bool { return opTable[op].hasLHS }

// IsCommutative reports whether the two operands may be swapped.
func (op Op) IsCommutative() bool { return opTable[op].isCommutative }
