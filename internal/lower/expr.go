package lower

import (
	"math/bits"

	"github.com/holiman/uint256"

	"github.com/Pheeck/smtgcc/internal/ir"
	"github.com/Pheeck/smtgcc/internal/tree"
)

func valueU64(bb *ir.BasicBlock, v uint64, bitsize uint32) *ir.Inst {
	return bb.ValueInstU256(uint256.NewInt(v), bitsize)
}

// tree2inst lowers an expression to its (value, undef) pair. The undef
// instruction is nil when no bit of the value can be undefined.
func (c *Converter) tree2inst(bb *ir.BasicBlock, expr tree.Expr) value {
	c.checkType(expr.ExprType())

	switch e := expr.(type) {
	case *tree.SSAName:
		if v, ok := c.ssaVal[e]; ok {
			return v
		}
		if e.Param != nil {
			if inst, ok := c.paramInst[e.Var]; ok {
				// Place the range check in the entry block as it is
				// invalid to call the function with invalid values.
				// This avoids "randomly" marking execution as UB
				// depending on where the parameter ended up being
				// used after passes sank or hoisted it.
				c.constrainRange(c.f.Bbs[0], e, inst, nil)
				v := value{inst: inst}
				c.ssaVal[e] = v
				return v
			}
		}
		if e.Var != nil {
			// Default definition of an uninitialized variable.
			bitsize := bitsizeForType(e.Type)
			return value{bb.ValueInst(0, bitsize), bb.ValueM1Inst(bitsize)}
		}
		c.abort("tree2inst: unhandled ssa name")
	case *tree.Constructor:
		if e.Type.Kind != tree.Vector {
			// Constructors only appear in stores, in global variable
			// initializers, and when building vectors from scalars.
			c.abort("tree2inst: constructor")
		}
		return c.vectorConstructor(bb, e)
	case *tree.IntConst:
		precision := bitsizeForType(e.Type)
		if precision == 0 || precision > 128 {
			c.abort("tree2inst: invalid integer constant width %d", precision)
		}
		return value{inst: bb.ValueInstU256(&e.Value, precision)}
	case *tree.FloatConst:
		return value{inst: bb.ValueInstU256(&e.Pattern, e.Type.Bits)}
	case *tree.VectorConst:
		ret := c.tree2instUndefCheck(bb, e.Elems[0])
		for _, elemExpr := range e.Elems[1:] {
			elem := c.tree2instUndefCheck(bb, elemExpr)
			ret = bb.BuildInst2(ir.OpConcat, elem, ret)
		}
		return value{inst: ret}
	case *tree.ComplexConst:
		elemType := e.Type.Elem
		real := c.tree2instUndefCheck(bb, e.Real)
		real = c.toMemRepr(bb, real, elemType)
		imag := c.tree2instUndefCheck(bb, e.Imag)
		imag = c.toMemRepr(bb, imag, elemType)
		return value{inst: bb.BuildInst2(ir.OpConcat, imag, real)}
	case *tree.ViewConvert:
		v := c.tree2inst(bb, e.Arg)
		srcType := e.Arg.ExprType()
		destType := e.Type
		inst := c.toMemRepr(bb, v.inst, srcType)
		inst = c.fromMemRepr(bb, inst, destType)
		undef := v.undef
		if undef != nil {
			undef = c.uninitToMemRepr(bb, undef, srcType)
			undef = c.fromMemRepr(bb, undef, destType)
		}
		c.canonicalNaNCheck(bb, inst, destType, undef)
		return value{inst, undef}
	case *tree.AddrExpr:
		a := c.processAddress(bb, e.Arg)
		if a.bitOffset != 0 {
			c.abort("tree2inst: address of a bit position")
		}
		return value{inst: a.ptr}
	case *tree.BitFieldRef:
		v := c.tree2inst(bb, e.Base)
		high := bb.ValueInst(int64(uint64(e.BitSize)+e.BitOffset-1), 32)
		low := bb.ValueInst(int64(e.BitOffset), 32)
		inst := c.toMemRepr(bb, v.inst, e.Base.ExprType())
		inst = bb.BuildInst3(ir.OpExtract, inst, high, low)
		inst = c.fromMemRepr(bb, inst, e.Type)
		undef := v.undef
		if undef != nil {
			undef = bb.BuildInst3(ir.OpExtract, undef, high, low)
			undef = c.fromMemRepr(bb, undef, e.Type)
		}
		return value{inst, undef}
	case *tree.ArrayRef:
		// Indexing an element of a vector as vec[2] is an array ref of
		// a view-convert of the vector.
		if vc, ok := e.Base.(*tree.ViewConvert); ok && vc.Arg.ExprType().Kind == tree.Vector {
			return c.vectorAsArray(bb, e)
		}
		return c.processLoad(bb, e)
	case *tree.MemRef:
		return c.processLoad(bb, e)
	case *tree.ComponentRef:
		return c.processLoad(bb, e)
	case *tree.VarRef:
		return c.processLoad(bb, e)
	case *tree.StringConst:
		c.abort("tree2inst: string constant in value position")
	}
	c.abort("tree2inst: unhandled expression")
	panic("unreachable")
}

// tree2instUndefCheck lowers an expression and makes any use of
// undefined bits UB.
func (c *Converter) tree2instUndefCheck(bb *ir.BasicBlock, expr tree.Expr) *ir.Inst {
	v := c.tree2inst(bb, expr)
	if v.undef != nil {
		c.buildUBIfNotZero(bb, v.undef)
	}
	return v.inst
}

// toMemRepr widens the value to the type's storage size, the form it
// has when written to memory.
func (c *Converter) toMemRepr(bb *ir.BasicBlock, inst *ir.Inst, t *tree.Type) *ir.Inst {
	bitsize := uint32(bytesizeForType(t) * 8)
	if inst.Bitsize == bitsize {
		return inst
	}
	if inst.Bitsize > bitsize {
		c.abort("to_mem_repr: value wider than its storage")
	}
	if t.IsIntegral() {
		bitsizeInst := bb.ValueInst(int64(bitsize), 32)
		if t.Unsigned {
			inst = bb.BuildInst2(ir.OpZExt, inst, bitsizeInst)
		} else {
			inst = bb.BuildInst2(ir.OpSExt, inst, bitsizeInst)
		}
	}
	return inst
}

func (c *Converter) uninitToMemRepr(bb *ir.BasicBlock, inst *ir.Inst, t *tree.Type) *ir.Inst {
	bitsize := uint32(bytesizeForType(t) * 8)
	if inst.Bitsize != bitsize {
		bitsizeInst := bb.ValueInst(int64(bitsize), 32)
		inst = bb.BuildInst2(ir.OpSExt, inst, bitsizeInst)
	}
	return inst
}

// fromMemRepr narrows a memory-form value to the type's precision.
func (c *Converter) fromMemRepr(bb *ir.BasicBlock, inst *ir.Inst, t *tree.Type) *ir.Inst {
	bitsize := bitsizeForType(t)
	if bitsize > inst.Bitsize {
		c.abort("from_mem_repr: value narrower than the type")
	}
	if inst.Bitsize != bitsize {
		if t.Kind == tree.Boolean && bitsize == 1 {
			// A boolean must have the value 0 or 1.
			one := bb.ValueInst(1, inst.Bitsize)
			cond := bb.BuildInst2(ir.OpUGT, inst, one)
			bb.BuildInst1(ir.OpUB, cond)
		}
		inst = bb.BuildTrunc(inst, bitsize)
	}
	return inst
}

// bitfieldPaddingAtOffset returns the padding bits of the byte at
// offset, walking the run of consecutive bit-fields starting at
// fields[start].
func bitfieldPaddingAtOffset(fields []tree.Field, start int, offset int64) uint8 {
	usedBits := uint8(0)
	for i := start; i < len(fields); i++ {
		fld := &fields[i]
		if !fld.BitField {
			break
		}
		elemBitSize := int64(fld.BitSize)
		if elemBitSize == 0 {
			continue
		}
		elemOffset := int64(fld.Offset / 8)
		elemBitOffset := int64(fld.Offset & 7)
		elemSize := (elemBitOffset + elemBitSize + 7) / 8
		if elemOffset <= offset && offset < elemOffset+elemSize {
			if elemOffset < offset {
				elemBitSize -= 8 - elemBitOffset
				elemBitOffset = 0
				elemOffset++
				if elemBitSize < 0 {
					continue
				}
			}
			if elemOffset < offset {
				elemBitSize -= 8 * (offset - elemOffset)
				if elemBitSize < 0 {
					continue
				}
			}
			if elemBitSize > 8 {
				elemBitSize = 8
			}
			usedBits |= uint8((1<<elemBitSize - 1) << elemBitOffset)
		}
	}
	return ^usedBits
}

// paddingAtOffset returns a bitmask telling which bits of the byte at
// offset are padding (i.e. where the stored value is undefined).
func paddingAtOffset(t *tree.Type, offset uint64) uint8 {
	switch t.Kind {
	case tree.Array:
		return paddingAtOffset(t.Elem, offset%bytesizeForType(t.Elem))
	case tree.Record:
		for i := range t.Fields {
			fld := &t.Fields[i]
			elemType := fld.Type
			elemSize := bytesizeForType(elemType)
			elemOffset := fld.Offset / 8
			elemBitOffset := fld.Offset & 7
			if fld.BitField {
				elemBitSize := uint64(fld.BitSize)
				elemSize = (elemBitOffset + elemBitSize + 7) / 8
				if elemOffset <= offset && offset < elemOffset+elemSize {
					return bitfieldPaddingAtOffset(t.Fields, i, int64(offset))
				}
			} else if elemOffset <= offset && offset < elemOffset+elemSize {
				return paddingAtOffset(elemType, offset-elemOffset)
			}
		}
		return 0xff
	case tree.Union:
		// A union byte is padding if it is padding in all members.
		padding := uint8(0xff)
		for i := range t.Fields {
			padding &= paddingAtOffset(t.Fields[i].Type, offset)
		}
		return padding
	}
	// Other bytes have no padding. (Booleans sort of have padding,
	// but those bits must be 0, so they are not undefined.)
	return 0
}

func popcount128(x *uint256.Int) int {
	return bits.OnesCount64(x[0]) + bits.OnesCount64(x[1])
}

func clz128(x *uint256.Int) int {
	if x[1] != 0 {
		return bits.LeadingZeros64(x[1])
	}
	return 64 + bits.LeadingZeros64(x[0])
}

// constrainRange emits UB checks enforcing the value-range-propagation
// facts recorded on the SSA name.
func (c *Converter) constrainRange(bb *ir.BasicBlock, name *tree.SSAName, inst, undef *ir.Inst) {
	t := name.Type
	if !t.IsIntegral() && t.Kind != tree.Pointer {
		return
	}
	if name.Range == nil && name.NonzeroBits == nil {
		return
	}

	var isUB1 *ir.Inst
	if nz := name.NonzeroBits; nz != nil {
		// The solver gets confused, and becomes much slower, when both
		// a mask and a range describe the same value. Skip the mask
		// check when the mask only clears the top bits; the range
		// captures that already.
		if clz128(nz)+popcount128(nz) != 128 {
			mask := bb.ValueInstU256(new(uint256.Int).Not(nz), inst.Bitsize)
			bits := bb.BuildInst2(ir.OpAnd, inst, mask)
			zero := bb.ValueInst(0, bits.Bitsize)
			isUB1 = bb.BuildInst2(ir.OpNE, bits, zero)
		}
	}

	var isUB2 *ir.Inst
	if r := name.Range; r != nil {
		low := bb.ValueInstU256(&r.Min, inst.Bitsize)
		high := bb.ValueInstU256(&r.Max, inst.Bitsize)
		op := ir.OpSGT
		if t.Unsigned {
			op = ir.OpUGT
		}
		cmpLow := bb.BuildInst2(op, low, inst)
		cmpHigh := bb.BuildInst2(op, inst, high)
		isUB2 = bb.BuildInst2(ir.OpOr, cmpLow, cmpHigh)
	}

	// Ranges do not take undefined values into account; a phi may get
	// a range even when one of its arguments is undefined. Filter out
	// the undef cases: every use of the undefined value is flagged as
	// UB by the use itself.
	if undef != nil {
		zero := bb.ValueInst(0, undef.Bitsize)
		cmp := bb.BuildInst2(ir.OpEQ, undef, zero)
		if isUB1 != nil {
			isUB1 = bb.BuildInst2(ir.OpAnd, isUB1, cmp)
		}
		if isUB2 != nil {
			isUB2 = bb.BuildInst2(ir.OpAnd, isUB2, cmp)
		}
	}

	if isUB1 != nil {
		bb.BuildInst1(ir.OpUB, isUB1)
	}
	if isUB2 != nil {
		bb.BuildInst1(ir.OpUB, isUB2)
	}
}

// canonicalNaNCheck makes non-canonical NaN values UB. The solver
// canonicalizes NaNs, so a non-canonical value coming from the outside
// would make it change the result, possibly in only one of the two
// functions under check.
func (c *Converter) canonicalNaNCheck(bb *ir.BasicBlock, inst *ir.Inst, t *tree.Type, undef *ir.Inst) {
	if t.Kind == tree.Float {
		cond := bb.BuildInst1(ir.OpIsNoncanonicalNaN, inst)
		if undef != nil {
			// Skip the check when there are undefined bits; partially
			// created complex numbers would otherwise give spurious
			// failures. Uses of the undefined bits are UB anyway.
			zero := bb.ValueInst(0, undef.Bitsize)
			cond2 := bb.BuildInst2(ir.OpEQ, undef, zero)
			cond = bb.BuildInst2(ir.OpAnd, cond, cond2)
		}
		bb.BuildInst1(ir.OpUB, cond)
		return
	}
	if t.Kind == tree.Record {
		for i := range t.Fields {
			fld := &t.Fields[i]
			if fld.BitField {
				continue
			}
			elemType := fld.Type
			elemSize := bytesizeForType(elemType)
			if elemSize == 0 {
				continue
			}
			elemOffset := fld.Offset / 8
			high := bb.ValueInst(int64((elemOffset+elemSize)*8-1), 32)
			low := bb.ValueInst(int64(elemOffset*8), 32)
			extract := bb.BuildInst3(ir.OpExtract, inst, high, low)
			var extract2 *ir.Inst
			if undef != nil {
				extract2 = bb.BuildInst3(ir.OpExtract, undef, high, low)
			}
			c.canonicalNaNCheck(bb, extract, elemType, extract2)
		}
		return
	}
	if t.Kind == tree.Vector || t.Kind == tree.Complex {
		elemType := t.Elem
		if elemType.Kind != tree.Float {
			return
		}
		elemBitsize := bitsizeForType(elemType)
		nofElt := bitsizeForType(t) / elemBitsize
		for i := uint32(0); i < nofElt; i++ {
			extract := extractVecElem(bb, inst, elemBitsize, i)
			var extract2 *ir.Inst
			if undef != nil {
				extract2 = extractVecElem(bb, undef, elemBitsize, i)
			}
			c.canonicalNaNCheck(bb, extract, elemType, extract2)
		}
	}
}

// constrainPointer makes it UB to load a pointer to a local object
// from memory the function did not write itself.
func (c *Converter) constrainPointer(bb *ir.BasicBlock, inst *ir.Inst, t *tree.Type, memFlags *ir.Inst) {
	if t.Kind == tree.Pointer {
		ptrIDBits := c.m.PtrIDBits
		id := bb.BuildExtractID(inst)
		zero := bb.ValueInst(0, ptrIDBits)
		cond := bb.BuildInst2(ir.OpSLT, id, zero)
		notWritten := bb.BuildExtractID(memFlags)
		notWrittenCmp := bb.BuildInst2(ir.OpEQ, notWritten, zero)
		cond = bb.BuildInst2(ir.OpAnd, cond, notWrittenCmp)
		bb.BuildInst1(ir.OpUB, cond)
	}
	if t.Kind == tree.Record {
		for i := range t.Fields {
			fld := &t.Fields[i]
			if fld.BitField {
				continue
			}
			elemType := fld.Type
			elemSize := bytesizeForType(elemType)
			if elemSize == 0 {
				continue
			}
			elemOffset := fld.Offset / 8
			high := bb.ValueInst(int64((elemOffset+elemSize)*8-1), 32)
			low := bb.ValueInst(int64(elemOffset*8), 32)
			extract := bb.BuildInst3(ir.OpExtract, inst, high, low)
			extract2 := bb.BuildInst3(ir.OpExtract, memFlags, high, low)
			c.constrainPointer(bb, extract, elemType, extract2)
		}
	}
}

// addr is a lowered lvalue address: a pointer plus a sub-byte bit
// offset for bit-field accesses.
type addr struct {
	ptr       *ir.Inst
	bitOffset uint64
}

// addToPointer offsets ptr by value bytes, making it UB to leave the
// memory object or to use an offset the pointer layout cannot hold.
func (c *Converter) addToPointer(bb *ir.BasicBlock, ptr, value *ir.Inst) *ir.Inst {
	if value.Op == ir.OpValue && value.Value.IsZero() {
		return ptr
	}
	res := bb.BuildInst2(ir.OpAdd, ptr, value)
	id1 := bb.BuildExtractID(ptr)
	id2 := bb.BuildExtractID(res)
	cond1 := bb.BuildInst2(ir.OpNE, id1, id2)
	bb.BuildInst1(ir.OpUB, cond1)
	maxOff := int64(1)<<c.m.PtrOffsetBits - 1
	maxInst := bb.ValueInst(maxOff, value.Bitsize)
	minInst := bb.ValueInst(-maxOff, value.Bitsize)
	cond2 := bb.BuildInst2(ir.OpSGT, value, maxInst)
	cond3 := bb.BuildInst2(ir.OpSLT, value, minInst)
	cond := bb.BuildInst2(ir.OpOr, cond2, cond3)
	bb.BuildInst1(ir.OpUB, cond)
	return res
}

// alignmentCheck makes misaligned accesses UB. align is in bytes.
func (c *Converter) alignmentCheck(bb *ir.BasicBlock, ptr *ir.Inst, align uint64) {
	if align <= 1 {
		return
	}
	lowBits := uint32(bits.TrailingZeros64(align))
	low := bb.BuildTrunc(ptr, lowBits)
	zero := bb.ValueInst(0, lowBits)
	cond := bb.BuildInst2(ir.OpNE, low, zero)
	bb.BuildInst1(ir.OpUB, cond)
}

// processArrayRef computes the element address, with UB checks for
// out-of-bounds indices.
func (c *Converter) processArrayRef(bb *ir.BasicBlock, e *tree.ArrayRef) *ir.Inst {
	arrayType := e.Base.ExprType()
	elemType := arrayType.Elem
	elemSize := bytesizeForType(elemType)
	a := c.processAddress(bb, e.Base)
	if a.bitOffset != 0 {
		c.abort("process_array_ref: unaligned array")
	}
	ptr := a.ptr

	idxType := e.Index.ExprType()
	idx := c.tree2instUndefCheck(bb, e.Index)
	if idx.Bitsize < ptr.Bitsize {
		bitsizeInst := bb.ValueInst(int64(ptr.Bitsize), 32)
		if idxType.Unsigned {
			idx = bb.BuildInst2(ir.OpZExt, idx, bitsizeInst)
		} else {
			idx = bb.BuildInst2(ir.OpSExt, idx, bitsizeInst)
		}
	} else if idx.Bitsize > ptr.Bitsize {
		top := bb.BuildInst3(ir.OpExtract, idx,
			bb.ValueInst(int64(idx.Bitsize-1), 32),
			bb.ValueInst(int64(ptr.Bitsize), 32))
		zero := bb.ValueInst(0, top.Bitsize)
		cond := bb.BuildInst2(ir.OpNE, top, zero)
		bb.BuildInst1(ir.OpUB, cond)
		idx = bb.BuildTrunc(idx, ptr.Bitsize)
	}

	offset := bb.BuildInst2(ir.OpMul, idx, valueU64(bb, elemSize, idx.Bitsize))
	ptr = c.addToPointer(bb, ptr, offset)

	if arrayType.NumElems > 0 {
		maxInst := valueU64(bb, arrayType.NumElems-1, idx.Bitsize)
		cond := bb.BuildInst2(ir.OpUGT, idx, maxInst)
		bb.BuildInst1(ir.OpUB, cond)
	} else {
		// Flexible array member: check that the computed offset fits
		// in the pointer offset field, using double width to catch
		// multiplication overflow.
		extOp := ir.OpSExt
		if idxType.Unsigned {
			extOp = ir.OpZExt
		}
		eidx := bb.BuildInst2(extOp, idx, bb.ValueInst(int64(2*idx.Bitsize), 32))
		eoffset := bb.BuildInst2(ir.OpMul, eidx, valueU64(bb, elemSize, eidx.Bitsize))
		emax := valueU64(bb, uint64(1)<<c.m.PtrOffsetBits, eidx.Bitsize)
		cond := bb.BuildInst2(ir.OpUGE, eoffset, emax)
		bb.BuildInst1(ir.OpUB, cond)
	}
	return ptr
}

func (c *Converter) processComponentRef(bb *ir.BasicBlock, e *tree.ComponentRef) addr {
	fld := e.Field
	offset := fld.Offset / 8
	bitOffset := fld.Offset & 7
	a := c.processAddress(bb, e.Base)
	if a.bitOffset != 0 {
		c.abort("process_component_ref: unaligned record")
	}
	off := valueU64(bb, offset, a.ptr.Bitsize)
	ptr := c.addToPointer(bb, a.ptr, off)
	return addr{ptr, bitOffset}
}

// processAddress lowers an lvalue to its address.
func (c *Converter) processAddress(bb *ir.BasicBlock, expr tree.Expr) addr {
	switch e := expr.(type) {
	case *tree.MemRef:
		ptr := c.tree2instUndefCheck(bb, e.Base)
		off := bb.ValueInst(e.Offset, ptr.Bitsize)
		ptr = c.addToPointer(bb, ptr, off)
		c.alignmentCheck(bb, ptr, e.Type.Align)
		return addr{ptr, 0}
	case *tree.VarRef:
		if inst, ok := c.declMem[e.Decl]; ok {
			return addr{inst, 0}
		}
		c.abort("process_address: unknown variable %s", e.Decl.Name)
	case *tree.ArrayRef:
		return addr{c.processArrayRef(bb, e), 0}
	case *tree.ComponentRef:
		return c.processComponentRef(bb, e)
	case *tree.BitFieldRef:
		bitOffset := e.BitOffset
		ptr := c.processAddress(bb, e.Base).ptr
		if bitOffset > 7 {
			off := valueU64(bb, bitOffset/8, ptr.Bitsize)
			ptr = c.addToPointer(bb, ptr, off)
			bitOffset &= 7
		}
		return addr{ptr, bitOffset}
	case *tree.ViewConvert:
		return c.processAddress(bb, e.Arg)
	case *tree.IntConst:
		return addr{bb.ValueInstU256(&e.Value, bitsizeForType(e.Type)), 0}
	}
	c.abort("process_address: unhandled lvalue")
	panic("unreachable")
}

// isBitField reports whether the lvalue accesses a bit position
// rather than whole bytes.
func isBitField(expr tree.Expr) bool {
	switch e := expr.(type) {
	case *tree.ComponentRef:
		return e.Field.BitField
	case *tree.BitFieldRef:
		return true
	}
	return false
}

// vectorAsArray lowers a dynamic index into a vector register.
func (c *Converter) vectorAsArray(bb *ir.BasicBlock, e *tree.ArrayRef) value {
	vc := e.Base.(*tree.ViewConvert)
	arrayType := e.Base.ExprType()
	elemType := arrayType.Elem
	vectorSize := bytesizeForType(arrayType)
	elemSize := bytesizeForType(elemType)

	v := c.tree2inst(bb, vc.Arg)
	idx := c.tree2instUndefCheck(bb, e.Index)

	nofElems := valueU64(bb, vectorSize/elemSize, idx.Bitsize)
	cond := bb.BuildInst2(ir.OpUGE, idx, nofElems)
	bb.BuildInst1(ir.OpUB, cond)

	elemBits := valueU64(bb, elemSize*8, idx.Bitsize)
	shift := bb.BuildInst2(ir.OpMul, idx, elemBits)
	inst := v.inst
	if inst.Bitsize > shift.Bitsize {
		bitsizeInst := bb.ValueInst(int64(inst.Bitsize), 32)
		shift = bb.BuildInst2(ir.OpZExt, shift, bitsizeInst)
	} else if inst.Bitsize < shift.Bitsize {
		shift = bb.BuildTrunc(shift, inst.Bitsize)
	}
	inst = bb.BuildInst2(ir.OpLshr, inst, shift)
	inst = bb.BuildTrunc(inst, uint32(elemSize*8))
	inst = c.fromMemRepr(bb, inst, elemType)
	undef := v.undef
	if undef != nil {
		undef = bb.BuildInst2(ir.OpLshr, undef, shift)
		undef = bb.BuildTrunc(undef, uint32(elemSize*8))
		undef = c.fromMemRepr(bb, undef, elemType)
	}
	return value{inst, undef}
}

// processLoad lowers a load from an lvalue, skipping the memory reads
// for bytes that are entirely padding.
func (c *Converter) processLoad(bb *ir.BasicBlock, expr tree.Expr) value {
	t := expr.ExprType()
	bitsize := uint64(bitsizeForType(t))
	if bitsize == 0 {
		c.abort("process_load: load of size 0")
	}
	size := bytesizeForType(t)
	if size > MaxMemoryUnrollLimit {
		c.abort("process_load: too large load")
	}
	a := c.processAddress(bb, expr)
	isBitfield := isBitField(expr)
	if !isBitfield && a.bitOffset != 0 {
		c.abort("process_load: unaligned load")
	}
	if isBitfield {
		size = (bitsize + a.bitOffset + 7) / 8
	}
	c.loadUBCheck(bb, a.ptr, size)

	var inst, undef, memFlags2 *ir.Inst
	for i := uint64(0); i < size; i++ {
		offset := valueU64(bb, i, a.ptr.Bitsize)
		ptr := bb.BuildInst2(ir.OpAdd, a.ptr, offset)

		padding := paddingAtOffset(t, i)
		var dataByte, undefByte *ir.Inst
		if padding == 255 {
			// No need to load the byte, its value is indeterminate.
			dataByte = bb.ValueInst(0, 8)
			undefByte = bb.ValueInst(255, 8)
		} else {
			dataByte = bb.BuildInst1(ir.OpLoad, ptr)
			undefByte = bb.BuildInst1(ir.OpGetMemUndef, ptr)
			if padding != 0 {
				paddingInst := bb.ValueInst(int64(padding), 8)
				undefByte = bb.BuildInst2(ir.OpOr, undefByte, paddingInst)
			}
		}
		if inst != nil {
			inst = bb.BuildInst2(ir.OpConcat, dataByte, inst)
			undef = bb.BuildInst2(ir.OpConcat, undefByte, undef)
		} else {
			inst = dataByte
			undef = undefByte
		}

		flag := bb.BuildInst1(ir.OpGetMemFlag, ptr)
		flag = bb.BuildInst2(ir.OpSExt, flag, bb.ValueInst(8, 32))
		if memFlags2 != nil {
			memFlags2 = bb.BuildInst2(ir.OpConcat, flag, memFlags2)
		} else {
			memFlags2 = flag
		}
	}

	if isBitfield {
		high := bb.ValueInst(int64(bitsize+a.bitOffset-1), 32)
		low := bb.ValueInst(int64(a.bitOffset), 32)
		inst = bb.BuildInst3(ir.OpExtract, inst, high, low)
		undef = bb.BuildInst3(ir.OpExtract, undef, high, low)
		memFlags2 = bb.BuildInst3(ir.OpExtract, memFlags2, high, low)
	} else {
		inst = c.fromMemRepr(bb, inst, t)
		undef = c.fromMemRepr(bb, undef, t)
		memFlags2 = c.fromMemRepr(bb, memFlags2, t)
		c.memFlags[inst] = memFlags2
	}
	c.constrainPointer(bb, inst, t, memFlags2)
	c.canonicalNaNCheck(bb, inst, t, undef)
	return value{inst, undef}
}
