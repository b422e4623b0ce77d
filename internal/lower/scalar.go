package lower

import (
	"github.com/holiman/uint256"

	"github.com/Pheeck/smtgcc/internal/ir"
	"github.com/Pheeck/smtgcc/internal/tree"
)

// overflowWraps reports whether overflow is defined to wrap for the
// type. Signed overflow is UB in the source language.
func overflowWraps(t *tree.Type) bool {
	return t.Unsigned
}

// minIntInst returns the most negative signed value of the width.
func minIntInst(bb *ir.BasicBlock, bitsize uint32) *ir.Inst {
	minInt := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitsize-1))
	return bb.ValueInstU256(minInt, bitsize)
}

// intMinMax returns the value range of an integer type as bit
// patterns in the type's precision.
func intMinMax(t *tree.Type) (uint256.Int, uint256.Int) {
	var min, max uint256.Int
	one := uint256.NewInt(1)
	if t.Unsigned {
		max.Lsh(one, uint(t.Bits))
		max.SubUint64(&max, 1)
	} else {
		min.Lsh(one, uint(t.Bits-1))
		max.Lsh(one, uint(t.Bits-1))
		max.SubUint64(&max, 1)
	}
	return min, max
}

// typeConvert converts a scalar value between types.
func (c *Converter) typeConvert(bb *ir.BasicBlock, inst *ir.Inst, srcType, destType *tree.Type) *ir.Inst {
	if destType.Kind == tree.Boolean {
		if !srcType.IsIntegral() {
			c.abort("type_convert: bool from non-integral type")
		}
		if inst.Bitsize > 1 {
			inst = bb.BuildExtractBit(inst, 0)
		}
		destPrec := bitsizeForType(destType)
		if destPrec == 1 {
			return inst
		}
		op := ir.OpSExt
		if destType.Unsigned {
			op = ir.OpZExt
		}
		return bb.BuildInst2(op, inst, bb.ValueInst(int64(destPrec), 32))
	}

	if srcType.IsIntegral() || srcType.Kind == tree.Pointer {
		if destType.IsIntegral() || destType.Kind == tree.Pointer {
			srcPrec := inst.Bitsize
			destPrec := bitsizeForType(destType)
			if srcPrec > destPrec {
				return bb.BuildTrunc(inst, destPrec)
			}
			if srcPrec == destPrec {
				return inst
			}
			op := ir.OpSExt
			if srcType.Unsigned {
				op = ir.OpZExt
			}
			return bb.BuildInst2(op, inst, bb.ValueInst(int64(destPrec), 32))
		}
		if destType.Kind == tree.Float {
			op := ir.OpS2F
			if srcType.Unsigned {
				op = ir.OpU2F
			}
			return bb.BuildInst2(op, inst, bb.ValueInst(int64(destType.Bits), 32))
		}
	}

	if srcType.Kind == tree.Float {
		if destType.Kind == tree.Integer {
			// The result is UB if the value is out of range for the
			// integer.
			minVal, maxVal := intMinMax(destType)
			min := bb.ValueInstU256(&minVal, destType.Bits)
			max := bb.ValueInstU256(&maxVal, destType.Bits)
			toFloat := ir.OpS2F
			if destType.Unsigned {
				toFloat = ir.OpU2F
			}
			srcBitsizeInst := bb.ValueInst(int64(srcType.Bits), 32)
			fmin := bb.BuildInst2(toFloat, min, srcBitsizeInst)
			fmax := bb.BuildInst2(toFloat, max, srcBitsizeInst)
			clow := bb.BuildInst2(ir.OpFGE, inst, fmin)
			chigh := bb.BuildInst2(ir.OpFLE, inst, fmax)
			isInRange := bb.BuildInst2(ir.OpAnd, clow, chigh)
			isUB := bb.BuildInst1(ir.OpNot, isInRange)
			bb.BuildInst1(ir.OpUB, isUB)

			op := ir.OpF2S
			if destType.Unsigned {
				op = ir.OpF2U
			}
			destBitsize := bb.ValueInst(int64(bitsizeForType(destType)), 32)
			return bb.BuildInst2(op, inst, destBitsize)
		}
		if destType.Kind == tree.Float {
			if srcType.Bits == destType.Bits {
				return inst
			}
			return bb.BuildInst2(ir.OpFChprec, inst, bb.ValueInst(int64(destType.Bits), 32))
		}
	}

	c.abort("type_convert: unknown type")
	panic("unreachable")
}

// checkWideBool makes values other than true and false UB for
// booleans wider than one bit.
func checkWideBool(bb *ir.BasicBlock, inst *ir.Inst, t *tree.Type) {
	falseInst := bb.ValueInst(0, inst.Bitsize)
	trueInst := bb.ValueInst(1, inst.Bitsize)
	if !t.Unsigned {
		trueInst = bb.BuildInst1(ir.OpNeg, trueInst)
	}
	cond0 := bb.BuildInst2(ir.OpNE, inst, trueInst)
	cond1 := bb.BuildInst2(ir.OpNE, inst, falseInst)
	cond := bb.BuildInst2(ir.OpAnd, cond0, cond1)
	bb.BuildInst1(ir.OpUB, cond)
}

func (c *Converter) processUnaryIntPlain(bb *ir.BasicBlock, code tree.Code, arg1 *ir.Inst, lhsType, arg1Type *tree.Type) *ir.Inst {
	switch code {
	case tree.CodeAbs:
		if !overflowWraps(lhsType) {
			cond := bb.BuildInst2(ir.OpEQ, arg1, minIntInst(bb, arg1.Bitsize))
			bb.BuildInst1(ir.OpUB, cond)
		}
		neg := bb.BuildInst1(ir.OpNeg, arg1)
		zero := bb.ValueInst(0, arg1.Bitsize)
		cond := bb.BuildInst2(ir.OpSGE, arg1, zero)
		return bb.BuildInst3(ir.OpITE, cond, arg1, neg)
	case tree.CodeAbsU:
		neg := bb.BuildInst1(ir.OpNeg, arg1)
		zero := bb.ValueInst(0, arg1.Bitsize)
		cond := bb.BuildInst2(ir.OpSGE, arg1, zero)
		return bb.BuildInst3(ir.OpITE, cond, arg1, neg)
	case tree.CodeBitNot:
		return bb.BuildInst1(ir.OpNot, arg1)
	case tree.CodeNeg:
		if !overflowWraps(lhsType) {
			cond := bb.BuildInst2(ir.OpEQ, arg1, minIntInst(bb, arg1.Bitsize))
			bb.BuildInst1(ir.OpUB, cond)
		}
		return bb.BuildInst1(ir.OpNeg, arg1)
	case tree.CodeConvert, tree.CodeNop:
		return c.typeConvert(bb, arg1, arg1Type, lhsType)
	}
	c.abort("process_unary_int: unhandled code %d", code)
	panic("unreachable")
}

func (c *Converter) processUnaryInt(bb *ir.BasicBlock, code tree.Code, arg1 value, lhsType, arg1Type *tree.Type) value {
	// Operations that accept uninitialized arguments.
	switch code {
	case tree.CodeBitNot:
		return value{bb.BuildInst1(ir.OpNot, arg1.inst), arg1.undef}
	case tree.CodeConvert, tree.CodeNop:
		if arg1Type.IsIntegral() && lhsType.IsIntegral() {
			destPrec := bitsizeForType(lhsType)
			if destPrec == arg1.inst.Bitsize {
				return arg1
			}
			if destPrec < arg1.inst.Bitsize {
				inst := bb.BuildTrunc(arg1.inst, destPrec)
				undef := arg1.undef
				if undef != nil {
					undef = bb.BuildTrunc(undef, destPrec)
				}
				return value{inst, undef}
			}
		}
	}

	// Uninitialized arguments are UB for everything else.
	if arg1.undef != nil {
		c.buildUBIfNotZero(bb, arg1.undef)
	}
	return value{inst: c.processUnaryIntPlain(bb, code, arg1.inst, lhsType, arg1Type)}
}

func (c *Converter) processUnaryFloat(bb *ir.BasicBlock, code tree.Code, arg1 *ir.Inst, lhsType, arg1Type *tree.Type) *ir.Inst {
	switch code {
	case tree.CodeAbs:
		return bb.BuildInst1(ir.OpFAbs, arg1)
	case tree.CodeNeg:
		return bb.BuildInst1(ir.OpFNeg, arg1)
	case tree.CodeConvert, tree.CodeNop:
		return c.typeConvert(bb, arg1, arg1Type, lhsType)
	}
	c.abort("process_unary_float: unhandled code %d", code)
	panic("unreachable")
}

// complexParts extracts the real and imaginary parts of a complex
// value in its register form.
func (c *Converter) complexParts(bb *ir.BasicBlock, arg *ir.Inst, elemType *tree.Type) (*ir.Inst, *ir.Inst) {
	bitsize := arg.Bitsize
	elemBitsize := bitsize / 2
	real := bb.BuildTrunc(arg, elemBitsize)
	real = c.fromMemRepr(bb, real, elemType)
	imagHigh := bb.ValueInst(int64(bitsize-1), 32)
	imagLow := bb.ValueInst(int64(elemBitsize), 32)
	imag := bb.BuildInst3(ir.OpExtract, arg, imagHigh, imagLow)
	imag = c.fromMemRepr(bb, imag, elemType)
	return real, imag
}

func (c *Converter) processUnaryComplex(bb *ir.BasicBlock, code tree.Code, arg1 *ir.Inst, lhsType *tree.Type) *ir.Inst {
	elemType := lhsType.Elem
	real, imag := c.complexParts(bb, arg1, elemType)

	switch code {
	case tree.CodeConjugate:
		instImag := c.processUnaryScalarPlain(bb, tree.CodeNeg, imag, elemType, elemType)
		real = c.toMemRepr(bb, real, elemType)
		instImag = c.toMemRepr(bb, instImag, elemType)
		return bb.BuildInst2(ir.OpConcat, instImag, real)
	case tree.CodeNeg:
		instReal := c.processUnaryScalarPlain(bb, code, real, elemType, elemType)
		instImag := c.processUnaryScalarPlain(bb, code, imag, elemType, elemType)
		instReal = c.toMemRepr(bb, instReal, elemType)
		instImag = c.toMemRepr(bb, instImag, elemType)
		return bb.BuildInst2(ir.OpConcat, instImag, instReal)
	}
	c.abort("process_unary_complex: unhandled code %d", code)
	panic("unreachable")
}

func (c *Converter) processUnaryBool(bb *ir.BasicBlock, code tree.Code, arg1 value, lhsType, arg1Type *tree.Type) value {
	lhs := c.processUnaryInt(bb, code, arg1, lhsType, arg1Type)
	if lhs.inst.Bitsize > 1 {
		checkWideBool(bb, lhs.inst, lhsType)
	}
	return lhs
}

func (c *Converter) processUnaryScalarPlain(bb *ir.BasicBlock, code tree.Code, arg1 *ir.Inst, lhsType, arg1Type *tree.Type) *ir.Inst {
	switch {
	case lhsType.Kind == tree.Boolean:
		v := c.processUnaryBool(bb, code, value{inst: arg1}, lhsType, arg1Type)
		return v.inst
	case lhsType.Kind == tree.Float:
		return c.processUnaryFloat(bb, code, arg1, lhsType, arg1Type)
	default:
		return c.processUnaryIntPlain(bb, code, arg1, lhsType, arg1Type)
	}
}

func (c *Converter) processUnaryScalar(bb *ir.BasicBlock, code tree.Code, arg1 value, lhsType, arg1Type *tree.Type) value {
	switch {
	case lhsType.Kind == tree.Boolean:
		return c.processUnaryBool(bb, code, arg1, lhsType, arg1Type)
	case lhsType.Kind == tree.Float:
		if arg1.undef != nil {
			c.buildUBIfNotZero(bb, arg1.undef)
		}
		return value{inst: c.processUnaryFloat(bb, code, arg1.inst, lhsType, arg1Type)}
	default:
		return c.processUnaryInt(bb, code, arg1, lhsType, arg1Type)
	}
}

func (c *Converter) processBinaryFloat(bb *ir.BasicBlock, code tree.Code, arg1, arg2 *ir.Inst) *ir.Inst {
	isnan := func() *ir.Inst {
		isnan1 := bb.BuildInst2(ir.OpFNE, arg1, arg1)
		isnan2 := bb.BuildInst2(ir.OpFNE, arg2, arg2)
		return bb.BuildInst2(ir.OpOr, isnan1, isnan2)
	}
	switch code {
	case tree.CodeEq:
		return bb.BuildInst2(ir.OpFEQ, arg1, arg2)
	case tree.CodeNe:
		return bb.BuildInst2(ir.OpFNE, arg1, arg2)
	case tree.CodeGe:
		return bb.BuildInst2(ir.OpFGE, arg1, arg2)
	case tree.CodeGt:
		return bb.BuildInst2(ir.OpFGT, arg1, arg2)
	case tree.CodeLe:
		return bb.BuildInst2(ir.OpFLE, arg1, arg2)
	case tree.CodeLt:
		return bb.BuildInst2(ir.OpFLT, arg1, arg2)
	case tree.CodeUnEq:
		return bb.BuildInst2(ir.OpOr, isnan(), bb.BuildInst2(ir.OpFEQ, arg1, arg2))
	case tree.CodeUnLt:
		return bb.BuildInst2(ir.OpOr, isnan(), bb.BuildInst2(ir.OpFLT, arg1, arg2))
	case tree.CodeUnLe:
		return bb.BuildInst2(ir.OpOr, isnan(), bb.BuildInst2(ir.OpFLE, arg1, arg2))
	case tree.CodeUnGt:
		return bb.BuildInst2(ir.OpOr, isnan(), bb.BuildInst2(ir.OpFGT, arg1, arg2))
	case tree.CodeUnGe:
		return bb.BuildInst2(ir.OpOr, isnan(), bb.BuildInst2(ir.OpFGE, arg1, arg2))
	case tree.CodeUnordered:
		return isnan()
	case tree.CodeOrdered:
		return bb.BuildInst1(ir.OpNot, isnan())
	case tree.CodeLtGt:
		lt := bb.BuildInst2(ir.OpFLT, arg1, arg2)
		gt := bb.BuildInst2(ir.OpFGT, arg1, arg2)
		return bb.BuildInst2(ir.OpOr, lt, gt)
	case tree.CodeRDiv:
		return bb.BuildInst2(ir.OpFDiv, arg1, arg2)
	case tree.CodeMinus:
		return bb.BuildInst2(ir.OpFSub, arg1, arg2)
	case tree.CodeMult:
		return bb.BuildInst2(ir.OpFMul, arg1, arg2)
	case tree.CodePlus:
		return bb.BuildInst2(ir.OpFAdd, arg1, arg2)
	}
	c.abort("process_binary_float: unhandled code %d", code)
	panic("unreachable")
}

func (c *Converter) processBinaryComplex(bb *ir.BasicBlock, code tree.Code, arg1, arg2 *ir.Inst, lhsType *tree.Type) *ir.Inst {
	elemType := lhsType.Elem
	arg1Real, arg1Imag := c.complexParts(bb, arg1, elemType)
	arg2Real, arg2Imag := c.complexParts(bb, arg2, elemType)

	switch code {
	case tree.CodeMinus, tree.CodePlus:
		instReal := c.processBinaryScalarPlain(bb, code, arg1Real, arg2Real, elemType, elemType, elemType)
		instImag := c.processBinaryScalarPlain(bb, code, arg1Imag, arg2Imag, elemType, elemType, elemType)
		instReal = c.toMemRepr(bb, instReal, elemType)
		instImag = c.toMemRepr(bb, instImag, elemType)
		return bb.BuildInst2(ir.OpConcat, instImag, instReal)
	}
	c.abort("process_binary_complex: unhandled code %d", code)
	panic("unreachable")
}

func (c *Converter) processBinaryComplexCmp(bb *ir.BasicBlock, code tree.Code, arg1, arg2 *ir.Inst, lhsType, arg1Type *tree.Type) *ir.Inst {
	elemType := arg1Type.Elem
	arg1Real, arg1Imag := c.complexParts(bb, arg1, elemType)
	arg2Real, arg2Imag := c.complexParts(bb, arg2, elemType)

	switch code {
	case tree.CodeEq, tree.CodeNe:
		cmpReal := c.processBinaryScalarPlain(bb, code, arg1Real, arg2Real, lhsType, elemType, elemType)
		cmpImag := c.processBinaryScalarPlain(bb, code, arg1Imag, arg2Imag, lhsType, elemType, elemType)
		if code == tree.CodeEq {
			return bb.BuildInst2(ir.OpAnd, cmpReal, cmpImag)
		}
		return bb.BuildInst2(ir.OpOr, cmpReal, cmpImag)
	}
	c.abort("process_binary_complex_cmp: unhandled code %d", code)
	panic("unreachable")
}

func (c *Converter) processBinaryBool(bb *ir.BasicBlock, code tree.Code, arg1, arg2 value, lhsType, arg1Type, arg2Type *tree.Type) value {
	var lhs value
	if arg1Type.Kind == tree.Float {
		lhs = value{inst: c.processBinaryFloat(bb, code, arg1.inst, arg2.inst)}
	} else {
		lhs = c.processBinaryInt(bb, code, arg1Type.Unsigned, arg1, arg2, lhsType, arg1Type, arg2Type)
	}

	// The source may use wide booleans (such as signed-boolean:8), so
	// the 1-bit result of a comparison may need extending.
	precision := bitsizeForType(lhsType)
	if lhs.inst.Bitsize == 1 && precision > 1 {
		bitsizeInst := bb.ValueInst(int64(precision), 32)
		op := ir.OpSExt
		if lhsType.Unsigned {
			op = ir.OpZExt
		}
		lhs.inst = bb.BuildInst2(op, lhs.inst, bitsizeInst)
		if lhs.undef != nil {
			lhs.undef = bb.BuildInst2(op, lhs.undef, bitsizeInst)
		}
	}
	if lhs.inst.Bitsize > 1 {
		checkWideBool(bb, lhs.inst, lhsType)
	}
	return lhs
}

func (c *Converter) processBinaryIntPlain(bb *ir.BasicBlock, code tree.Code, isUnsigned bool, arg1, arg2 *ir.Inst, lhsType, arg1Type, arg2Type *tree.Type) *ir.Inst {
	pick := func(u, s ir.Op) ir.Op {
		if isUnsigned {
			return u
		}
		return s
	}
	divUBChecks := func() {
		if !overflowWraps(lhsType) {
			minInt := minIntInst(bb, arg1.Bitsize)
			minus1 := bb.ValueM1Inst(arg1.Bitsize)
			cond1 := bb.BuildInst2(ir.OpEQ, arg1, minInt)
			cond2 := bb.BuildInst2(ir.OpEQ, arg2, minus1)
			cond := bb.BuildInst2(ir.OpAnd, cond1, cond2)
			bb.BuildInst1(ir.OpUB, cond)
		}
		zero := bb.ValueInst(0, arg1.Bitsize)
		cond := bb.BuildInst2(ir.OpEQ, arg2, zero)
		bb.BuildInst1(ir.OpUB, cond)
	}
	shiftUBCheck := func() {
		bitsize := bb.ValueInst(int64(arg1.Bitsize), arg2.Bitsize)
		cond := bb.BuildInst2(ir.OpUGE, arg2, bitsize)
		bb.BuildInst1(ir.OpUB, cond)
	}

	switch code {
	case tree.CodeEq:
		return bb.BuildInst2(ir.OpEQ, arg1, arg2)
	case tree.CodeNe:
		return bb.BuildInst2(ir.OpNE, arg1, arg2)
	case tree.CodeGe:
		return bb.BuildInst2(pick(ir.OpUGE, ir.OpSGE), arg1, arg2)
	case tree.CodeGt:
		return bb.BuildInst2(pick(ir.OpUGT, ir.OpSGT), arg1, arg2)
	case tree.CodeLe:
		return bb.BuildInst2(pick(ir.OpULE, ir.OpSLE), arg1, arg2)
	case tree.CodeLt:
		return bb.BuildInst2(pick(ir.OpULT, ir.OpSLT), arg1, arg2)
	case tree.CodeBitAnd:
		return bb.BuildInst2(ir.OpAnd, arg1, arg2)
	case tree.CodeBitIor:
		return bb.BuildInst2(ir.OpOr, arg1, arg2)
	case tree.CodeBitXor:
		return bb.BuildInst2(ir.OpXor, arg1, arg2)
	case tree.CodeExactDiv:
		if !overflowWraps(lhsType) {
			minInt := minIntInst(bb, arg1.Bitsize)
			minus1 := bb.ValueM1Inst(arg1.Bitsize)
			cond1 := bb.BuildInst2(ir.OpEQ, arg1, minInt)
			cond2 := bb.BuildInst2(ir.OpEQ, arg2, minus1)
			ubCond := bb.BuildInst2(ir.OpAnd, cond1, cond2)
			bb.BuildInst1(ir.OpUB, ubCond)
		}
		zero := bb.ValueInst(0, arg1.Bitsize)
		rem := bb.BuildInst2(pick(ir.OpURem, ir.OpSRem), arg1, arg2)
		ubCond := bb.BuildInst2(ir.OpNE, rem, zero)
		bb.BuildInst1(ir.OpUB, ubCond)
		ubCond2 := bb.BuildInst2(ir.OpEQ, arg2, zero)
		bb.BuildInst1(ir.OpUB, ubCond2)
		return bb.BuildInst2(pick(ir.OpUDiv, ir.OpSDiv), arg1, arg2)
	case tree.CodeLShift:
		shiftUBCheck()
		arg2 = c.typeConvert(bb, arg2, arg2Type, arg1Type)
		return bb.BuildInst2(ir.OpShl, arg1, arg2)
	case tree.CodeRShift:
		shiftUBCheck()
		op := pick(ir.OpLshr, ir.OpAshr)
		arg2 = c.typeConvert(bb, arg2, arg2Type, arg1Type)
		return bb.BuildInst2(op, arg1, arg2)
	case tree.CodeRRotate:
		shiftUBCheck()
		arg2 = c.typeConvert(bb, arg2, arg2Type, arg1Type)
		concat := bb.BuildInst2(ir.OpConcat, arg1, arg1)
		shift := bb.BuildInst2(ir.OpZExt, arg2, bb.ValueInst(int64(concat.Bitsize), 32))
		shifted := bb.BuildInst2(ir.OpLshr, concat, shift)
		return bb.BuildTrunc(shifted, arg1.Bitsize)
	case tree.CodeLRotate:
		shiftUBCheck()
		arg2 = c.typeConvert(bb, arg2, arg2Type, arg1Type)
		concat := bb.BuildInst2(ir.OpConcat, arg1, arg1)
		shift := bb.BuildInst2(ir.OpZExt, arg2, bb.ValueInst(int64(concat.Bitsize), 32))
		shifted := bb.BuildInst2(ir.OpShl, concat, shift)
		high := bb.ValueInst(int64(2*arg1.Bitsize-1), 32)
		low := bb.ValueInst(int64(arg1.Bitsize), 32)
		return bb.BuildInst3(ir.OpExtract, shifted, high, low)
	case tree.CodeMax:
		return bb.BuildInst2(pick(ir.OpUMax, ir.OpSMax), arg1, arg2)
	case tree.CodeMin:
		return bb.BuildInst2(pick(ir.OpUMin, ir.OpSMin), arg1, arg2)
	case tree.CodeMinus:
		if !overflowWraps(lhsType) {
			cond := bb.BuildInst2(ir.OpSSubWraps, arg1, arg2)
			bb.BuildInst1(ir.OpUB, cond)
		}
		return bb.BuildInst2(ir.OpSub, arg1, arg2)
	case tree.CodeMult:
		if !overflowWraps(lhsType) {
			cond := bb.BuildInst2(ir.OpSMulWraps, arg1, arg2)
			bb.BuildInst1(ir.OpUB, cond)
		}
		return bb.BuildInst2(ir.OpMul, arg1, arg2)
	case tree.CodePlus:
		if !overflowWraps(lhsType) {
			cond := bb.BuildInst2(ir.OpSAddWraps, arg1, arg2)
			bb.BuildInst1(ir.OpUB, cond)
		}
		return bb.BuildInst2(ir.OpAdd, arg1, arg2)
	case tree.CodePointerDiff:
		// Pointers are unsigned, but the result must fit in a signed
		// integer of the same width.
		bitsize := arg1.Bitsize
		extBitsize := bb.ValueInst(int64(bitsize+1), 32)
		earg1 := bb.BuildInst2(ir.OpZExt, arg1, extBitsize)
		earg2 := bb.BuildInst2(ir.OpZExt, arg2, extBitsize)
		eres := bb.BuildInst2(ir.OpSub, earg1, earg2)
		etopBitIdx := bb.ValueInst(int64(bitsize), 32)
		etopBit := bb.BuildInst3(ir.OpExtract, eres, etopBitIdx, etopBitIdx)
		topBitIdx := bb.ValueInst(int64(bitsize-1), 32)
		topBit := bb.BuildInst3(ir.OpExtract, eres, topBitIdx, topBitIdx)
		cmp := bb.BuildInst2(ir.OpNE, topBit, etopBit)
		bb.BuildInst1(ir.OpUB, cmp)
		return bb.BuildTrunc(eres, bitsize)
	case tree.CodePointerPlus:
		arg2 = c.typeConvert(bb, arg2, arg2Type, arg1Type)
		ptr := bb.BuildInst2(ir.OpAdd, arg1, arg2)

		id1 := bb.BuildExtractID(arg1)
		id2 := bb.BuildExtractID(ptr)
		isUB := bb.BuildInst2(ir.OpNE, id1, id2)
		bb.BuildInst1(ir.OpUB, isUB)

		// Pointers are unsigned and this code is used for subtraction
		// too, so "p - 1" always overflows in some sense. Interpret
		// the addition as a subtraction when the second operand is
		// negative.
		if !overflowWraps(lhsType) {
			subOverflow := bb.BuildInst2(ir.OpUGT, ptr, arg1)
			addOverflow := bb.BuildInst2(ir.OpULT, ptr, arg1)
			zero := bb.ValueInst(0, arg2.Bitsize)
			isSub := bb.BuildInst2(ir.OpSLT, arg2, zero)
			isUB := bb.BuildInst3(ir.OpITE, isSub, subOverflow, addOverflow)
			bb.BuildInst1(ir.OpUB, isUB)
		}

		// The result cannot be NULL if arg1 or arg2 is nonzero, but
		// NULL + 0 is allowed.
		zero := bb.ValueInst(0, ptr.Bitsize)
		cond1 := bb.BuildInst2(ir.OpEQ, ptr, zero)
		cond2 := bb.BuildInst2(ir.OpNE, arg1, zero)
		cond3 := bb.BuildInst2(ir.OpNE, arg2, zero)
		argsNonzero := bb.BuildInst2(ir.OpOr, cond2, cond3)
		cond := bb.BuildInst2(ir.OpAnd, cond1, argsNonzero)
		bb.BuildInst1(ir.OpUB, cond)
		return ptr
	case tree.CodeTruncDiv:
		divUBChecks()
		return bb.BuildInst2(pick(ir.OpUDiv, ir.OpSDiv), arg1, arg2)
	case tree.CodeTruncMod:
		divUBChecks()
		return bb.BuildInst2(pick(ir.OpURem, ir.OpSRem), arg1, arg2)
	case tree.CodeWidenMult:
		newBitsize := bb.ValueInst(int64(2*arg1.Bitsize), 32)
		op := pick(ir.OpZExt, ir.OpSExt)
		arg1 = bb.BuildInst2(op, arg1, newBitsize)
		arg2 = bb.BuildInst2(op, arg2, newBitsize)
		return bb.BuildInst2(ir.OpMul, arg1, arg2)
	case tree.CodeMultHighpart:
		newBitsize := bb.ValueInst(int64(2*arg1.Bitsize), 32)
		op := pick(ir.OpZExt, ir.OpSExt)
		arg1 = bb.BuildInst2(op, arg1, newBitsize)
		arg2 = bb.BuildInst2(op, arg2, newBitsize)
		mul := bb.BuildInst2(ir.OpMul, arg1, arg2)
		high := bb.ValueInst(int64(mul.Bitsize-1), 32)
		low := bb.ValueInst(int64(mul.Bitsize/2), 32)
		return bb.BuildInst3(ir.OpExtract, mul, high, low)
	}
	c.abort("process_binary_int: unhandled code %d", code)
	panic("unreachable")
}

func (c *Converter) processBinaryInt(bb *ir.BasicBlock, code tree.Code, isUnsigned bool, arg1, arg2 value, lhsType, arg1Type, arg2Type *tree.Type) value {
	// Operations that accept uninitialized arguments.
	switch code {
	case tree.CodeBitAnd:
		res := bb.BuildInst2(ir.OpAnd, arg1.inst, arg2.inst)
		var resUndef *ir.Inst
		if arg1.undef != nil || arg2.undef != nil {
			arg1Undef := arg1.undef
			arg2Undef := arg2.undef
			if arg1Undef == nil {
				arg1Undef = bb.ValueInst(0, arg1.inst.Bitsize)
			}
			if arg2Undef == nil {
				arg2Undef = bb.ValueInst(0, arg2.inst.Bitsize)
			}
			// 0 & uninitialized is 0.
			// 1 & uninitialized is uninitialized.
			mask := bb.BuildInst2(ir.OpAnd,
				bb.BuildInst2(ir.OpOr, arg1.inst, arg1Undef),
				bb.BuildInst2(ir.OpOr, arg2.inst, arg2Undef))
			resUndef = bb.BuildInst2(ir.OpAnd,
				bb.BuildInst2(ir.OpOr, arg1Undef, arg2Undef), mask)
		}
		return value{res, resUndef}
	case tree.CodeBitIor:
		res := bb.BuildInst2(ir.OpOr, arg1.inst, arg2.inst)
		var resUndef *ir.Inst
		if arg1.undef != nil || arg2.undef != nil {
			arg1Undef := arg1.undef
			arg2Undef := arg2.undef
			if arg1Undef == nil {
				arg1Undef = bb.ValueInst(0, arg1.inst.Bitsize)
			}
			if arg2Undef == nil {
				arg2Undef = bb.ValueInst(0, arg2.inst.Bitsize)
			}
			// 0 | uninitialized is uninitialized.
			// 1 | uninitialized is 1.
			mask := bb.BuildInst2(ir.OpAnd,
				bb.BuildInst2(ir.OpOr, bb.BuildInst1(ir.OpNot, arg1.inst), arg1Undef),
				bb.BuildInst2(ir.OpOr, bb.BuildInst1(ir.OpNot, arg2.inst), arg2Undef))
			resUndef = bb.BuildInst2(ir.OpAnd,
				bb.BuildInst2(ir.OpOr, arg1Undef, arg2Undef), mask)
		}
		return value{res, resUndef}
	case tree.CodeMult:
		var resUndef *ir.Inst
		if arg1.undef != nil || arg2.undef != nil {
			zero := bb.ValueInst(0, arg1.inst.Bitsize)
			arg1Undef := arg1.undef
			arg2Undef := arg2.undef
			if arg1Undef == nil {
				arg1Undef = zero
			}
			if arg2Undef == nil {
				arg2Undef = zero
			}
			// The result is defined if no input is uninitialized, or
			// if one of the arguments is an initialized zero.
			arg1Unini := bb.BuildInst2(ir.OpNE, arg1Undef, zero)
			arg1Nonzero := bb.BuildInst2(ir.OpNE, arg1.inst, zero)
			arg2Unini := bb.BuildInst2(ir.OpNE, arg2Undef, zero)
			arg2Nonzero := bb.BuildInst2(ir.OpNE, arg2.inst, zero)
			ub := bb.BuildInst2(ir.OpOr,
				bb.BuildInst2(ir.OpAnd, arg1Unini,
					bb.BuildInst2(ir.OpOr, arg2Unini, arg2Nonzero)),
				bb.BuildInst2(ir.OpAnd, arg2Unini,
					bb.BuildInst2(ir.OpOr, arg1Unini, arg1Nonzero)))
			resUndef = bb.BuildInst2(ir.OpSExt, ub, bb.ValueInst(int64(arg1.inst.Bitsize), 32))
		}
		if !overflowWraps(lhsType) {
			cond := bb.BuildInst2(ir.OpSMulWraps, arg1.inst, arg2.inst)
			bb.BuildInst1(ir.OpUB, cond)
		}
		res := bb.BuildInst2(ir.OpMul, arg1.inst, arg2.inst)
		return value{res, resUndef}
	}

	// Uninitialized arguments are UB for everything else.
	if arg1.undef != nil {
		c.buildUBIfNotZero(bb, arg1.undef)
	}
	if arg2.undef != nil {
		c.buildUBIfNotZero(bb, arg2.undef)
	}
	res := c.processBinaryIntPlain(bb, code, isUnsigned, arg1.inst, arg2.inst, lhsType, arg1Type, arg2Type)
	return value{inst: res}
}

func (c *Converter) processBinaryScalarPlain(bb *ir.BasicBlock, code tree.Code, arg1, arg2 *ir.Inst, lhsType, arg1Type, arg2Type *tree.Type) *ir.Inst {
	switch {
	case lhsType.Kind == tree.Boolean:
		v := c.processBinaryBool(bb, code, value{inst: arg1}, value{inst: arg2}, lhsType, arg1Type, arg2Type)
		return v.inst
	case lhsType.Kind == tree.Float:
		return c.processBinaryFloat(bb, code, arg1, arg2)
	default:
		return c.processBinaryIntPlain(bb, code, arg1Type.Unsigned, arg1, arg2, lhsType, arg1Type, arg2Type)
	}
}

func (c *Converter) processBinaryScalar(bb *ir.BasicBlock, code tree.Code, arg1, arg2 value, lhsType, arg1Type, arg2Type *tree.Type) value {
	switch {
	case lhsType.Kind == tree.Boolean:
		return c.processBinaryBool(bb, code, arg1, arg2, lhsType, arg1Type, arg2Type)
	case lhsType.Kind == tree.Float:
		if arg1.undef != nil {
			c.buildUBIfNotZero(bb, arg1.undef)
		}
		if arg2.undef != nil {
			c.buildUBIfNotZero(bb, arg2.undef)
		}
		return value{inst: c.processBinaryFloat(bb, code, arg1.inst, arg2.inst)}
	default:
		return c.processBinaryInt(bb, code, arg1Type.Unsigned, arg1, arg2, lhsType, arg1Type, arg2Type)
	}
}

// processTernary lowers the scalar step of the sum-of-absolute-
// differences and dot-product reductions.
func (c *Converter) processTernary(bb *ir.BasicBlock, code tree.Code, arg1, arg2, arg3 *ir.Inst, arg1Type, arg2Type, arg3Type *tree.Type) *ir.Inst {
	switch code {
	case tree.CodeSad:
		arg1 = c.typeConvert(bb, arg1, arg1Type, arg3Type)
		arg2 = c.typeConvert(bb, arg2, arg2Type, arg3Type)
		inst := bb.BuildInst2(ir.OpSub, arg1, arg2)
		zero := bb.ValueInst(0, inst.Bitsize)
		cmp := bb.BuildInst2(ir.OpSGE, inst, zero)
		neg := bb.BuildInst1(ir.OpNeg, inst)
		inst = bb.BuildInst3(ir.OpITE, cmp, inst, neg)
		return bb.BuildInst2(ir.OpAdd, inst, arg3)
	case tree.CodeDotProd:
		arg1 = c.typeConvert(bb, arg1, arg1Type, arg3Type)
		arg2 = c.typeConvert(bb, arg2, arg2Type, arg3Type)
		inst := bb.BuildInst2(ir.OpMul, arg1, arg2)
		return bb.BuildInst2(ir.OpAdd, inst, arg3)
	}
	c.abort("process_ternary: unhandled code %d", code)
	panic("unreachable")
}
