package lower

import (
	"github.com/Pheeck/smtgcc/internal/ir"
	"github.com/Pheeck/smtgcc/internal/tree"
)

// extractVecElem extracts element idx of a vector value.
func extractVecElem(bb *ir.BasicBlock, inst *ir.Inst, elemBitsize, idx uint32) *ir.Inst {
	high := bb.ValueInst(int64(idx*elemBitsize+elemBitsize-1), 32)
	low := bb.ValueInst(int64(idx*elemBitsize), 32)
	return bb.BuildInst3(ir.OpExtract, inst, high, low)
}

// extractElem extracts a vector element at a runtime index.
func extractElem(bb *ir.BasicBlock, vec *ir.Inst, elemBitsize uint32, idx *ir.Inst) *ir.Inst {
	elemBitsizeInst := bb.ValueInst(int64(elemBitsize), idx.Bitsize)
	shift := bb.BuildInst2(ir.OpMul, idx, elemBitsizeInst)
	if shift.Bitsize > vec.Bitsize {
		shift = bb.BuildTrunc(shift, vec.Bitsize)
	} else if shift.Bitsize < vec.Bitsize {
		bitsizeInst := bb.ValueInst(int64(vec.Bitsize), 32)
		shift = bb.BuildInst2(ir.OpZExt, shift, bitsizeInst)
	}
	inst := bb.BuildInst2(ir.OpLshr, vec, shift)
	return bb.BuildTrunc(inst, elemBitsize)
}

func (c *Converter) processUnaryVec(bb *ir.BasicBlock, code tree.Code, arg1 value, lhsElemType, arg1ElemType *tree.Type) value {
	elemBitsize := bitsizeForType(arg1ElemType)
	nofElt := arg1.inst.Bitsize / elemBitsize
	startIdx := uint32(0)

	switch code {
	case tree.CodeVecUnpackLo, tree.CodeVecUnpackHi,
		tree.CodeVecUnpackFloatLo, tree.CodeVecUnpackFloatHi:
		if code == tree.CodeVecUnpackHi || code == tree.CodeVecUnpackFloatHi {
			startIdx = nofElt / 2
		} else {
			nofElt = nofElt / 2
		}
		code = tree.CodeConvert
	}

	var res, resUndef *ir.Inst
	for i := startIdx; i < nofElt; i++ {
		a1 := value{inst: extractVecElem(bb, arg1.inst, elemBitsize, i)}
		if arg1.undef != nil {
			a1.undef = extractVecElem(bb, arg1.undef, elemBitsize, i)
		}
		elem := c.processUnaryScalar(bb, code, a1, lhsElemType, arg1ElemType)

		if res != nil {
			res = bb.BuildInst2(ir.OpConcat, elem.inst, res)
		} else {
			res = elem.inst
		}

		if arg1.undef != nil {
			elemUndef := elem.undef
			if elemUndef == nil {
				elemUndef = bb.ValueInst(0, elem.inst.Bitsize)
			}
			if resUndef != nil {
				resUndef = bb.BuildInst2(ir.OpConcat, elemUndef, resUndef)
			} else {
				resUndef = elemUndef
			}
		}
	}
	return value{res, resUndef}
}

func (c *Converter) processBinaryVec(bb *ir.BasicBlock, code tree.Code, arg1, arg2 value, lhsType, arg1Type, arg2Type *tree.Type) value {
	lhsElemType := lhsType.Elem
	arg1ElemType := arg1Type.Elem
	arg2ElemType := arg2Type
	if arg2Type.Kind == tree.Vector {
		arg2ElemType = arg2Type.Elem
	}

	if code == tree.CodeVecPackTrunc {
		if arg1.undef != nil {
			c.buildUBIfNotZero(bb, arg1.undef)
		}
		if arg2.undef != nil {
			c.buildUBIfNotZero(bb, arg2.undef)
		}
		arg := bb.BuildInst2(ir.OpConcat, arg2.inst, arg1.inst)
		return c.processUnaryVec(bb, tree.CodeConvert, value{inst: arg}, lhsElemType, arg1ElemType)
	}

	elemBitsize := bitsizeForType(arg1ElemType)
	nofElt := bitsizeForType(arg1Type) / elemBitsize
	startIdx := uint32(0)

	if code == tree.CodeVecWidenMultLo || code == tree.CodeVecWidenMultHi {
		if code == tree.CodeVecWidenMultHi {
			startIdx = nofElt / 2
		} else {
			nofElt = nofElt / 2
		}
		code = tree.CodeWidenMult
	}

	var res, resUndef *ir.Inst
	for i := startIdx; i < nofElt; i++ {
		a1 := value{inst: extractVecElem(bb, arg1.inst, elemBitsize, i)}
		if arg1.undef != nil {
			a1.undef = extractVecElem(bb, arg1.undef, elemBitsize, i)
		}
		var a2 value
		if arg2Type.Kind == tree.Vector {
			a2.inst = extractVecElem(bb, arg2.inst, elemBitsize, i)
			if arg2.undef != nil {
				a2.undef = extractVecElem(bb, arg2.undef, elemBitsize, i)
			}
		} else {
			a2 = arg2
		}
		elem := c.processBinaryScalar(bb, code, a1, a2, lhsElemType, arg1ElemType, arg2ElemType)

		if res != nil {
			res = bb.BuildInst2(ir.OpConcat, elem.inst, res)
		} else {
			res = elem.inst
		}

		if arg1.undef != nil || arg2.undef != nil {
			elemUndef := elem.undef
			if elemUndef == nil {
				elemUndef = bb.ValueInst(0, elem.inst.Bitsize)
			}
			if resUndef != nil {
				resUndef = bb.BuildInst2(ir.OpConcat, elemUndef, resUndef)
			} else {
				resUndef = elemUndef
			}
		}
	}
	return value{res, resUndef}
}

func (c *Converter) processTernaryVec(bb *ir.BasicBlock, code tree.Code, arg1, arg2, arg3 *ir.Inst, arg1Type, arg2Type, arg3Type *tree.Type) *ir.Inst {
	arg1ElemType := arg1Type.Elem
	arg1ElemBitsize := bitsizeForType(arg1ElemType)
	arg2ElemType := arg2Type.Elem
	arg2ElemBitsize := bitsizeForType(arg2ElemType)
	arg3ElemType := arg3Type.Elem
	arg3ElemBitsize := bitsizeForType(arg3ElemType)

	nofElt3 := bitsizeForType(arg3Type) / arg3ElemBitsize
	nofElt := bitsizeForType(arg1Type) / arg1ElemBitsize
	var res *ir.Inst
	for i := uint32(0); i < nofElt; i++ {
		a1 := extractVecElem(bb, arg1, arg1ElemBitsize, i)
		a2 := extractVecElem(bb, arg2, arg2ElemBitsize, i)
		// Reductions such as the sum of absolute differences have
		// fewer elements in arg3 and accumulate into the result of
		// the previous round.
		i3 := i % nofElt3
		if i3 == 0 && res != nil {
			arg3 = res
			res = nil
		}
		a3 := extractVecElem(bb, arg3, arg3ElemBitsize, i3)
		inst := c.processTernary(bb, code, a1, a2, a3, arg1ElemType, arg2ElemType, arg3ElemType)
		if res != nil {
			res = bb.BuildInst2(ir.OpConcat, inst, res)
		} else {
			res = inst
		}
	}
	return res
}

// processVecCond lowers a per-lane select over a boolean vector.
func (c *Converter) processVecCond(bb *ir.BasicBlock, arg1 *ir.Inst, arg2, arg3 value, arg1Type, arg2Type *tree.Type) value {
	arg2Undef := arg2.undef
	arg3Undef := arg3.undef
	if arg2Undef != nil || arg3Undef != nil {
		if arg2Undef == nil {
			arg2Undef = bb.ValueInst(0, arg2.inst.Bitsize)
		}
		if arg3Undef == nil {
			arg3Undef = bb.ValueInst(0, arg3.inst.Bitsize)
		}
	}

	arg1ElemType := arg1Type.Elem
	arg2ElemType := arg2Type.Elem
	elemBitsize1 := bitsizeForType(arg1ElemType)
	elemBitsize2 := bitsizeForType(arg2ElemType)

	var res, resUndef *ir.Inst
	nofElt := bitsizeForType(arg1Type) / elemBitsize1
	for i := uint32(0); i < nofElt; i++ {
		a1 := extractVecElem(bb, arg1, elemBitsize1, i)
		if arg1ElemType.Bits != 1 {
			a1 = bb.BuildExtractBit(a1, 0)
		}
		a2 := extractVecElem(bb, arg2.inst, elemBitsize2, i)
		a3 := extractVecElem(bb, arg3.inst, elemBitsize2, i)

		if arg2Undef != nil {
			a2Undef := extractVecElem(bb, arg2Undef, elemBitsize2, i)
			a3Undef := extractVecElem(bb, arg3Undef, elemBitsize2, i)
			undef := bb.BuildInst3(ir.OpITE, a1, a2Undef, a3Undef)
			if resUndef != nil {
				resUndef = bb.BuildInst2(ir.OpConcat, undef, resUndef)
			} else {
				resUndef = undef
			}
		}

		inst := bb.BuildInst3(ir.OpITE, a1, a2, a3)
		if res != nil {
			res = bb.BuildInst2(ir.OpConcat, inst, res)
		} else {
			res = inst
		}
	}

	return value{res, resUndef}
}

// processVecPerm lowers a vector permutation: each lane of the result
// picks a lane of the 2n-lane concatenation of arg1 and arg2, indexed
// modulo 2n by the selector vector arg3.
func (c *Converter) processVecPerm(bb *ir.BasicBlock, arg1, arg2 value, arg3 *ir.Inst, arg1Type, arg3Type *tree.Type) value {
	arg1ElemType := arg1Type.Elem
	arg3ElemType := arg3Type.Elem
	elemBitsize1 := bitsizeForType(arg1ElemType)
	elemBitsize3 := bitsizeForType(arg3ElemType)
	nofElt1 := bitsizeForType(arg1Type) / elemBitsize1
	nofElt3 := bitsizeForType(arg3Type) / elemBitsize3

	arg1Undef := arg1.undef
	arg2Undef := arg2.undef
	if arg1Undef != nil || arg2Undef != nil {
		if arg1Undef == nil {
			arg1Undef = bb.ValueInst(0, arg1.inst.Bitsize)
		}
		if arg2Undef == nil {
			arg2Undef = bb.ValueInst(0, arg2.inst.Bitsize)
		}
	}

	mask1 := bb.ValueInst(int64(nofElt1*2-1), elemBitsize3)
	mask2 := bb.ValueInst(int64(nofElt1-1), elemBitsize3)
	nofEltInst := bb.ValueInst(int64(nofElt1), elemBitsize3)
	var res, resUndef *ir.Inst
	for i := uint32(0); i < nofElt3; i++ {
		idx1 := extractVecElem(bb, arg3, elemBitsize3, i)
		idx1 = bb.BuildInst2(ir.OpAnd, idx1, mask1)
		idx2 := bb.BuildInst2(ir.OpAnd, idx1, mask2)
		cmp := bb.BuildInst2(ir.OpULT, idx1, nofEltInst)
		elt1 := extractElem(bb, arg1.inst, elemBitsize1, idx2)
		elt2 := extractElem(bb, arg2.inst, elemBitsize1, idx2)
		inst := bb.BuildInst3(ir.OpITE, cmp, elt1, elt2)
		if res != nil {
			res = bb.BuildInst2(ir.OpConcat, inst, res)
		} else {
			res = inst
		}

		if arg1Undef != nil {
			undef1 := extractElem(bb, arg1Undef, elemBitsize1, idx2)
			undef2 := extractElem(bb, arg2Undef, elemBitsize1, idx2)
			undef := bb.BuildInst3(ir.OpITE, cmp, undef1, undef2)
			if resUndef != nil {
				resUndef = bb.BuildInst2(ir.OpConcat, undef, resUndef)
			} else {
				resUndef = undef
			}
		}
	}
	return value{res, resUndef}
}

// vectorConstructor builds a vector value from a constructor. The
// elements may have different sizes, e.g. a vector may be built by
// concatenating a scalar with a vector.
func (c *Converter) vectorConstructor(bb *ir.BasicBlock, ctor *tree.Constructor) value {
	vectorSize := uint32(bytesizeForType(ctor.Type) * 8)
	var res, undef *ir.Inst
	anyElemHasUndef := false
	for _, elem := range ctor.Elems {
		v := c.tree2inst(bb, elem.Value)
		elemUndef := v.undef
		if elemUndef != nil {
			anyElemHasUndef = true
		} else {
			elemUndef = bb.ValueInst(0, v.inst.Bitsize)
		}
		if res != nil {
			res = bb.BuildInst2(ir.OpConcat, v.inst, res)
			undef = bb.BuildInst2(ir.OpConcat, elemUndef, undef)
		} else {
			res = v.inst
			undef = elemUndef
		}
	}
	if res == nil {
		c.abort("vector_constructor: empty constructor")
	}
	if ctor.NoClearing {
		c.abort("vector_constructor: CONSTRUCTOR_NO_CLEARING")
	}
	if res.Bitsize != vectorSize {
		zero := bb.ValueInst(0, vectorSize-res.Bitsize)
		res = bb.BuildInst2(ir.OpConcat, zero, res)
		undef = bb.BuildInst2(ir.OpConcat, zero, undef)
	}
	if !anyElemHasUndef {
		// No element had undef information, so undef only consists of
		// the zeros created above. Drop it so later code does not add
		// UB comparisons each place the result is used.
		undef = nil
	}
	return value{res, undef}
}
