package lower

import (
	"github.com/holiman/uint256"

	"github.com/Pheeck/smtgcc/internal/ir"
	"github.com/Pheeck/smtgcc/internal/tree"
)

// defineSSA registers a call or statement result for the left-hand
// side SSA name.
func (c *Converter) defineSSA(bb *ir.BasicBlock, lhs tree.Expr, v value) {
	name, ok := lhs.(*tree.SSAName)
	if !ok {
		c.abort("expected an SSA name result")
	}
	c.constrainRange(bb, name, v.inst, v.undef)
	c.ssaVal[name] = v
}

// canonicalNaN returns the canonical quiet NaN bit pattern for a
// float width: all-ones exponent and the top mantissa bit set.
func canonicalNaN(bb *ir.BasicBlock, bitsize uint32) *ir.Inst {
	var expBits uint32
	switch bitsize {
	case 16:
		expBits = 5
	case 32:
		expBits = 8
	case 64:
		expBits = 11
	case 128:
		expBits = 15
	default:
		panic("canonicalNaN: unsupported float width")
	}
	mantBits := bitsize - 1 - expBits
	one := uint256.NewInt(1)
	var pattern, mantTop uint256.Int
	pattern.Lsh(one, uint(expBits))
	pattern.SubUint64(&pattern, 1)
	pattern.Lsh(&pattern, uint(mantBits))
	mantTop.Lsh(one, uint(mantBits-1))
	pattern.Or(&pattern, &mantTop)
	return bb.ValueInstU256(&pattern, bitsize)
}

// processCall lowers a builtin or internal function call.
func (c *Converter) processCall(bb *ir.BasicBlock, call *tree.Call) {
	if call.Internal {
		c.processCallInternal(bb, call)
	} else {
		c.processCallBuiltin(bb, call)
	}
}

func (c *Converter) processCallBuiltin(bb *ir.BasicBlock, call *tree.Call) {
	switch call.Name {
	case "__builtin_assume_aligned":
		arg1 := c.tree2instUndefCheck(bb, call.Args[0])
		arg2 := c.tree2instUndefCheck(bb, call.Args[1])
		one := bb.ValueInst(1, arg2.Bitsize)
		mask := bb.BuildInst2(ir.OpSub, arg2, one)
		val := bb.BuildInst2(ir.OpAnd, arg1, mask)
		zero := bb.ValueInst(0, val.Bitsize)
		cond := bb.BuildInst2(ir.OpNE, val, zero)
		bb.BuildInst1(ir.OpUB, cond)
		if call.LHS != nil {
			c.defineSSA(bb, call.LHS, value{inst: arg1})
		}

	case "__builtin_bswap16", "__builtin_bswap32",
		"__builtin_bswap64", "__builtin_bswap128":
		if call.LHS == nil {
			return
		}
		arg := c.tree2inst(bb, call.Args[0])
		// The width comes from the result as bswap16 has a 32-bit
		// argument.
		bitwidth := bitsizeForType(call.LHS.ExprType())
		inst := bb.BuildTrunc(arg.inst, 8)
		var instUndef *ir.Inst
		if arg.undef != nil {
			instUndef = bb.BuildTrunc(arg.undef, 8)
		}
		for i := uint32(8); i < bitwidth; i += 8 {
			high := bb.ValueInst(int64(i+7), 32)
			low := bb.ValueInst(int64(i), 32)
			byteInst := bb.BuildInst3(ir.OpExtract, arg.inst, high, low)
			inst = bb.BuildInst2(ir.OpConcat, inst, byteInst)
			if arg.undef != nil {
				byteUndef := bb.BuildInst3(ir.OpExtract, arg.undef, high, low)
				instUndef = bb.BuildInst2(ir.OpConcat, instUndef, byteUndef)
			}
		}
		c.defineSSA(bb, call.LHS, value{inst, instUndef})

	case "__builtin_clrsb", "__builtin_clrsbl", "__builtin_clrsbll":
		if call.LHS == nil {
			return
		}
		arg := c.tree2instUndefCheck(bb, call.Args[0])
		bitsize := bitsizeForType(call.LHS.ExprType())
		signbit := bb.BuildExtractBit(arg, arg.Bitsize-1)
		inst := bb.ValueInst(int64(arg.Bitsize-1), bitsize)
		for i := uint32(0); i < arg.Bitsize-1; i++ {
			bit := bb.BuildExtractBit(arg, i)
			cmp := bb.BuildInst2(ir.OpNE, bit, signbit)
			val := bb.ValueInst(int64(arg.Bitsize-i-2), bitsize)
			inst = bb.BuildInst3(ir.OpITE, cmp, val, inst)
		}
		c.defineSSA(bb, call.LHS, value{inst: inst})

	case "__builtin_clz", "__builtin_clzl", "__builtin_clzll":
		arg := c.tree2instUndefCheck(bb, call.Args[0])
		zero := bb.ValueInst(0, arg.Bitsize)
		ub := bb.BuildInst2(ir.OpEQ, arg, zero)
		bb.BuildInst1(ir.OpUB, ub)
		if call.LHS == nil {
			return
		}
		bitsize := bitsizeForType(call.LHS.ExprType())
		inst := bb.ValueInst(int64(arg.Bitsize), bitsize)
		for i := uint32(0); i < arg.Bitsize; i++ {
			bit := bb.BuildExtractBit(arg, i)
			val := bb.ValueInst(int64(arg.Bitsize-i-1), bitsize)
			inst = bb.BuildInst3(ir.OpITE, bit, val, inst)
		}
		c.defineSSA(bb, call.LHS, value{inst: inst})

	case "__builtin_copysign", "__builtin_copysignf", "__builtin_copysignl",
		"__builtin_copysignf16", "__builtin_copysignf32",
		"__builtin_copysignf32x", "__builtin_copysignf64",
		"__builtin_copysignf128", "copysign", "copysignf":
		arg1 := c.tree2instUndefCheck(bb, call.Args[0])
		arg2 := c.tree2instUndefCheck(bb, call.Args[1])
		signbit := bb.BuildExtractBit(arg2, arg2.Bitsize-1)
		arg1 = bb.BuildTrunc(arg1, arg1.Bitsize-1)
		arg1 = bb.BuildInst2(ir.OpConcat, signbit, arg1)
		cond := bb.BuildInst1(ir.OpIsNoncanonicalNaN, arg1)
		bb.BuildInst1(ir.OpUB, cond)
		if call.LHS != nil {
			c.defineSSA(bb, call.LHS, value{inst: arg1})
		}

	case "__builtin_ctz", "__builtin_ctzl", "__builtin_ctzll":
		arg := c.tree2instUndefCheck(bb, call.Args[0])
		zero := bb.ValueInst(0, arg.Bitsize)
		ub := bb.BuildInst2(ir.OpEQ, arg, zero)
		bb.BuildInst1(ir.OpUB, ub)
		if call.LHS == nil {
			return
		}
		bitsize := bitsizeForType(call.LHS.ExprType())
		inst := bb.ValueInst(int64(arg.Bitsize), bitsize)
		for i := int(arg.Bitsize) - 1; i >= 0; i-- {
			bit := bb.BuildExtractBit(arg, uint32(i))
			val := bb.ValueInst(int64(i), bitsize)
			inst = bb.BuildInst3(ir.OpITE, bit, val, inst)
		}
		c.defineSSA(bb, call.LHS, value{inst: inst})

	case "__builtin_expect", "__builtin_expect_with_probability":
		if call.LHS == nil {
			return
		}
		arg := c.tree2instUndefCheck(bb, call.Args[0])
		c.defineSSA(bb, call.LHS, value{inst: arg})

	case "__builtin_fmax", "__builtin_fmaxf", "__builtin_fmaxl",
		"fmax", "fmaxf", "fmaxl":
		if call.LHS == nil {
			return
		}
		arg1 := c.tree2instUndefCheck(bb, call.Args[0])
		arg2 := c.tree2instUndefCheck(bb, call.Args[1])
		isNan := bb.BuildInst2(ir.OpFNE, arg2, arg2)
		cmp := bb.BuildInst2(ir.OpFGT, arg1, arg2)
		max1 := bb.BuildInst3(ir.OpITE, cmp, arg1, arg2)
		max2 := bb.BuildInst3(ir.OpITE, isNan, arg1, max1)

		// 0.0 and -0.0 are equal as floating point values and
		// fmax(0.0, -0.0) may return either. Treat them as
		// 0.0 > -0.0 so argument reordering is not reported as a
		// miscompilation.
		zero := bb.ValueInst(0, arg1.Bitsize)
		isZero1 := bb.BuildInst2(ir.OpFEQ, arg1, zero)
		isZero2 := bb.BuildInst2(ir.OpFEQ, arg2, zero)
		isZero := bb.BuildInst2(ir.OpAnd, isZero1, isZero2)
		cmp2 := bb.BuildInst2(ir.OpSGT, arg1, arg2)
		max3 := bb.BuildInst3(ir.OpITE, cmp2, arg1, arg2)
		res := bb.BuildInst3(ir.OpITE, isZero, max3, max2)
		c.defineSSA(bb, call.LHS, value{inst: res})

	case "__builtin_fmin", "__builtin_fminf", "__builtin_fminl",
		"fmin", "fminf", "fminl":
		if call.LHS == nil {
			return
		}
		arg1 := c.tree2instUndefCheck(bb, call.Args[0])
		arg2 := c.tree2instUndefCheck(bb, call.Args[1])
		isNan := bb.BuildInst2(ir.OpFNE, arg2, arg2)
		cmp := bb.BuildInst2(ir.OpFLT, arg1, arg2)
		min1 := bb.BuildInst3(ir.OpITE, cmp, arg1, arg2)
		min2 := bb.BuildInst3(ir.OpITE, isNan, arg1, min1)

		zero := bb.ValueInst(0, arg1.Bitsize)
		isZero1 := bb.BuildInst2(ir.OpFEQ, arg1, zero)
		isZero2 := bb.BuildInst2(ir.OpFEQ, arg2, zero)
		isZero := bb.BuildInst2(ir.OpAnd, isZero1, isZero2)
		cmp2 := bb.BuildInst2(ir.OpSLT, arg1, arg2)
		min3 := bb.BuildInst3(ir.OpITE, cmp2, arg1, arg2)
		res := bb.BuildInst3(ir.OpITE, isZero, min3, min2)
		c.defineSSA(bb, call.LHS, value{inst: res})

	case "__builtin_memcpy", "memcpy":
		sizeConst, ok := call.Args[2].(*tree.IntConst)
		if !ok {
			c.abort("non-constant memcpy size")
		}
		destPtr := c.tree2instUndefCheck(bb, call.Args[0])
		srcPtr := c.tree2instUndefCheck(bb, call.Args[1])
		size := sizeConst.Value.Uint64()
		if size > MaxMemoryUnrollLimit {
			c.abort("too large memcpy")
		}

		c.storeUBCheck(bb, destPtr, size)
		c.loadUBCheck(bb, srcPtr, size)

		if call.LHS != nil {
			c.defineSSA(bb, call.LHS, value{inst: destPtr})
		}

		one := bb.ValueInst(1, srcPtr.Bitsize)
		for i := uint64(0); i < size; i++ {
			byteInst := bb.BuildInst1(ir.OpLoad, srcPtr)
			bb.BuildInst2(ir.OpStore, destPtr, byteInst)

			memFlag := bb.BuildInst1(ir.OpGetMemFlag, srcPtr)
			bb.BuildInst2(ir.OpSetMemFlag, destPtr, memFlag)

			undef := bb.BuildInst1(ir.OpGetMemUndef, srcPtr)
			bb.BuildInst2(ir.OpSetMemUndef, destPtr, undef)

			srcPtr = bb.BuildInst2(ir.OpAdd, srcPtr, one)
			destPtr = bb.BuildInst2(ir.OpAdd, destPtr, one)
		}

	case "__builtin_memset", "memset":
		sizeConst, ok := call.Args[2].(*tree.IntConst)
		if !ok {
			c.abort("non-constant memset size")
		}
		ptr := c.tree2instUndefCheck(bb, call.Args[0])
		val := c.tree2instUndefCheck(bb, call.Args[1])
		size := sizeConst.Value.Uint64()
		if size > MaxMemoryUnrollLimit {
			c.abort("too large memset")
		}

		c.storeUBCheck(bb, ptr, size)

		if call.LHS != nil {
			c.defineSSA(bb, call.LHS, value{inst: ptr})
		}

		if val.Bitsize > 8 {
			val = bb.BuildTrunc(val, 8)
		}
		one := bb.ValueInst(1, ptr.Bitsize)
		memFlag := bb.ValueInst(1, 1)
		undef := bb.ValueInst(0, 8)
		for i := uint64(0); i < size; i++ {
			bb.BuildInst2(ir.OpStore, ptr, val)
			bb.BuildInst2(ir.OpSetMemFlag, ptr, memFlag)
			bb.BuildInst2(ir.OpSetMemUndef, ptr, undef)
			ptr = bb.BuildInst2(ir.OpAdd, ptr, one)
		}

	case "__builtin_nan", "__builtin_nanf", "__builtin_nanl",
		"nan", "nanf", "nanl":
		// The argument selecting a NaN payload is ignored as only
		// canonical NaNs are representable.
		if call.LHS == nil {
			return
		}
		inst := canonicalNaN(bb, bitsizeForType(call.LHS.ExprType()))
		c.defineSSA(bb, call.LHS, value{inst: inst})

	case "__builtin_parity", "__builtin_parityl", "__builtin_parityll":
		if call.LHS == nil {
			return
		}
		arg := c.tree2instUndefCheck(bb, call.Args[0])
		inst := bb.BuildExtractBit(arg, 0)
		for i := uint32(1); i < arg.Bitsize; i++ {
			bit := bb.BuildExtractBit(arg, i)
			inst = bb.BuildInst2(ir.OpXor, inst, bit)
		}
		bitwidth := bb.ValueInst(int64(bitsizeForType(call.LHS.ExprType())), 32)
		inst = bb.BuildInst2(ir.OpZExt, inst, bitwidth)
		c.defineSSA(bb, call.LHS, value{inst: inst})

	case "__builtin_popcount", "__builtin_popcountl", "__builtin_popcountll":
		if call.LHS == nil {
			return
		}
		arg := c.tree2instUndefCheck(bb, call.Args[0])
		eight := bb.ValueInst(8, 32)
		bit := bb.BuildExtractBit(arg, 0)
		res := bb.BuildInst2(ir.OpZExt, bit, eight)
		for i := uint32(1); i < arg.Bitsize; i++ {
			bit = bb.BuildExtractBit(arg, i)
			ext := bb.BuildInst2(ir.OpZExt, bit, eight)
			res = bb.BuildInst2(ir.OpAdd, res, ext)
		}
		lhsBitwidth := bb.ValueInst(int64(bitsizeForType(call.LHS.ExprType())), 32)
		res = bb.BuildInst2(ir.OpZExt, res, lhsBitwidth)
		c.defineSSA(bb, call.LHS, value{inst: res})

	case "__builtin_signbit", "__builtin_signbitf", "signbit", "signbitf":
		arg1 := c.tree2instUndefCheck(bb, call.Args[0])
		cond := bb.BuildInst1(ir.OpIsNoncanonicalNaN, arg1)
		bb.BuildInst1(ir.OpUB, cond)
		if call.LHS == nil {
			return
		}
		signbit := bb.BuildExtractBit(arg1, arg1.Bitsize-1)
		bitsize := bb.ValueInst(int64(bitsizeForType(call.LHS.ExprType())), 32)
		inst := bb.BuildInst2(ir.OpZExt, signbit, bitsize)
		c.defineSSA(bb, call.LHS, value{inst: inst})

	case "__builtin_unreachable", "__builtin_trap":
		// Some passes add a trap call for cases that are UB so the
		// program terminates instead of continuing in a random state.
		bb.BuildInst1(ir.OpUB, bb.ValueInst(1, 1))

	default:
		c.abort("process_call_builtin: %s", call.Name)
	}
}

// symbolicValue returns a fresh symbolic value of the given width.
func (c *Converter) symbolicValue(bb *ir.BasicBlock, bitsize uint32) *ir.Inst {
	idxInst := bb.ValueInst(int64(c.st.symbolicIdx), 32)
	c.st.symbolicIdx++
	bitsizeInst := bb.ValueInst(int64(bitsize), 32)
	return bb.BuildInst2(ir.OpSymbolic, idxInst, bitsizeInst)
}

// countZerosValueAtZero returns the result of a CLZ or CTZ of zero:
// the target-defined value when there is one, and otherwise a
// symbolic value shared by all uses of the same width so both sides
// of a check agree on it.
func (c *Converter) countZerosValueAtZero(bb *ir.BasicBlock, hook func(uint32) (int64, bool), argBits, bitsize uint32) *ir.Inst {
	if hook != nil {
		if v, ok := hook(argBits); ok {
			return bb.ValueInst(v, bitsize)
		}
	}
	idx, ok := c.st.clzIdx[bitsize]
	if !ok {
		idx = c.st.symbolicIdx
		c.st.symbolicIdx++
		c.st.clzIdx[bitsize] = idx
	}
	idxInst := bb.ValueInst(int64(idx), 32)
	bitsizeInst := bb.ValueInst(int64(bitsize), 32)
	return bb.BuildInst2(ir.OpSymbolic, idxInst, bitsizeInst)
}

func (c *Converter) processCallInternal(bb *ir.BasicBlock, call *tree.Call) {
	switch call.Name {
	case "FALLTHROUGH":
		return

	case "ADD_OVERFLOW", "SUB_OVERFLOW", "MUL_OVERFLOW":
		if call.LHS == nil {
			return
		}
		arg1Type := call.Args[0].ExprType()
		arg2Type := call.Args[1].ExprType()
		// The result is a complex-like pair of the wrapped value and
		// the overflow flag.
		lhsElemType := call.LHS.ExprType().Elem
		arg1 := c.tree2instUndefCheck(bb, call.Args[0])
		arg2 := c.tree2instUndefCheck(bb, call.Args[1])
		lhsElemBitsize := bitsizeForType(lhsElemType)
		var bitsize uint32
		if call.Name == "MUL_OVERFLOW" {
			bitsize = 1 + max(arg1.Bitsize+arg2.Bitsize, lhsElemBitsize)
		} else {
			bitsize = 1 + max(arg1.Bitsize, arg2.Bitsize)
			bitsize = 1 + max(bitsize, lhsElemBitsize)
		}
		bitsizeInst := bb.ValueInst(int64(bitsize), 32)
		if arg1Type.Unsigned {
			arg1 = bb.BuildInst2(ir.OpZExt, arg1, bitsizeInst)
		} else {
			arg1 = bb.BuildInst2(ir.OpSExt, arg1, bitsizeInst)
		}
		if arg2Type.Unsigned {
			arg2 = bb.BuildInst2(ir.OpZExt, arg2, bitsizeInst)
		} else {
			arg2 = bb.BuildInst2(ir.OpSExt, arg2, bitsizeInst)
		}
		var inst *ir.Inst
		switch call.Name {
		case "ADD_OVERFLOW":
			inst = bb.BuildInst2(ir.OpAdd, arg1, arg2)
		case "SUB_OVERFLOW":
			inst = bb.BuildInst2(ir.OpSub, arg1, arg2)
		default:
			inst = bb.BuildInst2(ir.OpMul, arg1, arg2)
		}
		res := bb.BuildTrunc(inst, lhsElemBitsize)
		var eres *ir.Inst
		if lhsElemType.Unsigned {
			eres = bb.BuildInst2(ir.OpZExt, res, bitsizeInst)
		} else {
			eres = bb.BuildInst2(ir.OpSExt, res, bitsizeInst)
		}
		overflow := bb.BuildInst2(ir.OpNE, inst, eres)

		res = c.toMemRepr(bb, res, lhsElemType)
		resBitsizeInst := bb.ValueInst(int64(res.Bitsize), 32)
		overflow = bb.BuildInst2(ir.OpZExt, overflow, resBitsizeInst)
		res = bb.BuildInst2(ir.OpConcat, overflow, res)
		c.defineSSA(bb, call.LHS, value{inst: res})

	case "BUILTIN_EXPECT":
		if call.LHS == nil {
			return
		}
		arg := c.tree2instUndefCheck(bb, call.Args[0])
		c.defineSSA(bb, call.LHS, value{inst: arg})

	case "CLZ":
		if call.LHS == nil {
			return
		}
		bitsize := bitsizeForType(call.LHS.ExprType())
		argType := call.Args[0].ExprType()
		arg := c.tree2instUndefCheck(bb, call.Args[0])
		inst := c.countZerosValueAtZero(bb, c.unit.Hooks.CLZDefinedValueAtZero, argType.Bits, bitsize)
		for i := uint32(0); i < arg.Bitsize; i++ {
			bit := bb.BuildExtractBit(arg, i)
			val := bb.ValueInst(int64(arg.Bitsize-i-1), bitsize)
			inst = bb.BuildInst3(ir.OpITE, bit, val, inst)
		}
		c.defineSSA(bb, call.LHS, value{inst: inst})

	case "CTZ":
		if call.LHS == nil {
			return
		}
		bitsize := bitsizeForType(call.LHS.ExprType())
		argType := call.Args[0].ExprType()
		arg := c.tree2instUndefCheck(bb, call.Args[0])
		inst := c.countZerosValueAtZero(bb, c.unit.Hooks.CTZDefinedValueAtZero, argType.Bits, bitsize)
		for i := int(arg.Bitsize) - 1; i >= 0; i-- {
			bit := bb.BuildExtractBit(arg, uint32(i))
			val := bb.ValueInst(int64(i), bitsize)
			inst = bb.BuildInst3(ir.OpITE, bit, val, inst)
		}
		c.defineSSA(bb, call.LHS, value{inst: inst})

	case "DIVMOD":
		if call.LHS == nil {
			return
		}
		arg1Type := call.Args[0].ExprType()
		arg2Type := call.Args[1].ExprType()
		lhsElemType := call.LHS.ExprType().Elem
		arg1 := c.tree2instUndefCheck(bb, call.Args[0])
		arg2 := c.tree2instUndefCheck(bb, call.Args[1])
		mod := c.processBinaryScalarPlain(bb, tree.CodeTruncMod, arg1, arg2, lhsElemType, arg1Type, arg2Type)
		mod = c.toMemRepr(bb, mod, lhsElemType)
		div := c.processBinaryScalarPlain(bb, tree.CodeTruncDiv, arg1, arg2, lhsElemType, arg1Type, arg2Type)
		div = c.toMemRepr(bb, div, lhsElemType)
		inst := bb.BuildInst2(ir.OpConcat, mod, div)
		c.defineSSA(bb, call.LHS, value{inst: inst})

	case "LOOP_VECTORIZED":
		// The result decides which of the two loop versions runs, so
		// both sides of a check must agree on it.
		inst := c.symbolicValue(bb, 1)
		c.defineSSA(bb, call.LHS, value{inst: inst})

	case "VCOND_MASK":
		if call.LHS == nil {
			return
		}
		arg1Type := call.Args[0].ExprType()
		arg2Type := call.Args[1].ExprType()
		arg1 := c.tree2instUndefCheck(bb, call.Args[0])
		arg2 := c.tree2inst(bb, call.Args[1])
		arg3 := c.tree2inst(bb, call.Args[2])
		res := c.processVecCond(bb, arg1, arg2, arg3, arg1Type, arg2Type)
		c.defineSSA(bb, call.LHS, res)

	case "VCOND", "VCONDU":
		arg1Type := call.Args[0].ExprType()
		arg1ElemType := arg1Type.Elem
		arg2ElemType := call.Args[1].ExprType().Elem
		arg3ElemType := call.Args[2].ExprType().Elem

		arg1 := c.tree2instUndefCheck(bb, call.Args[0])
		arg2 := c.tree2instUndefCheck(bb, call.Args[1])
		arg3 := c.tree2inst(bb, call.Args[2])
		arg4 := c.tree2inst(bb, call.Args[3])
		arg3Undef := arg3.undef
		arg4Undef := arg4.undef
		if arg3Undef != nil || arg4Undef != nil {
			if arg3Undef == nil {
				arg3Undef = bb.ValueInst(0, arg3.inst.Bitsize)
			}
			if arg4Undef == nil {
				arg4Undef = bb.ValueInst(0, arg4.inst.Bitsize)
			}
		}

		codeConst, ok := call.Args[4].(*tree.IntConst)
		if !ok {
			c.abort("VCOND: non-constant comparison")
		}
		code := tree.Code(codeConst.Value.Uint64())
		isUnsigned := call.Name == "VCONDU"

		elemBitsize1 := bitsizeForType(arg1ElemType)
		elemBitsize3 := bitsizeForType(arg3ElemType)
		boolType := tree.BoolType(1)

		var res *ir.Inst
		nofElt := bitsizeForType(arg1Type) / elemBitsize1
		for i := uint32(0); i < nofElt; i++ {
			a1 := extractVecElem(bb, arg1, elemBitsize1, i)
			a2 := extractVecElem(bb, arg2, elemBitsize1, i)
			a3 := extractVecElem(bb, arg3.inst, elemBitsize3, i)
			a4 := extractVecElem(bb, arg4.inst, elemBitsize3, i)

			var cond *ir.Inst
			if arg1ElemType.Kind == tree.Float {
				cond = c.processBinaryFloat(bb, code, a1, a2)
			} else {
				cond = c.processBinaryIntPlain(bb, code, isUnsigned, a1, a2, boolType, arg1ElemType, arg2ElemType)
			}
			inst := bb.BuildInst3(ir.OpITE, cond, a3, a4)
			if res != nil {
				res = bb.BuildInst2(ir.OpConcat, inst, res)
			} else {
				res = inst
			}

			if arg3Undef != nil {
				a3Undef := extractVecElem(bb, arg3Undef, elemBitsize3, i)
				a4Undef := extractVecElem(bb, arg4Undef, elemBitsize3, i)
				undef := bb.BuildInst3(ir.OpITE, cond, a3Undef, a4Undef)
				c.buildUBIfNotZero(bb, undef)
			}
		}
		if call.LHS != nil {
			c.defineSSA(bb, call.LHS, value{inst: res})
		}

	case "VEC_CONVERT":
		arg1 := c.tree2instUndefCheck(bb, call.Args[0])
		arg1ElemType := call.Args[0].ExprType().Elem
		if call.LHS == nil {
			return
		}
		lhsElemType := call.LHS.ExprType().Elem
		res := c.processUnaryVec(bb, tree.CodeConvert, value{inst: arg1}, lhsElemType, arg1ElemType)
		c.defineSSA(bb, call.LHS, value{inst: res.inst})

	default:
		c.abort("process_call_internal: %s", call.Name)
	}
}
