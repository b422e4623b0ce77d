package lower

import (
	"github.com/Pheeck/smtgcc/internal/ir"
	"github.com/Pheeck/smtgcc/internal/tree"
)

// buildMemoryInst creates a memory object in the entry block.
func (c *Converter) buildMemoryInst(id int64, size uint64, flags int64) *ir.Inst {
	entry := c.f.Bbs[0]
	arg1 := entry.ValueInst(id, c.m.PtrIDBits)
	arg2 := valueU64(entry, size, c.m.PtrOffsetBits)
	arg3 := entry.ValueInst(flags, 32)
	return entry.BuildInst3(ir.OpMemory, arg1, arg2, arg3)
}

// loadUBCheck makes accesses outside the memory object UB.
func (c *Converter) loadUBCheck(bb *ir.BasicBlock, ptr *ir.Inst, size uint64) {
	sizeInst := valueU64(bb, size, ptr.Bitsize)
	end := bb.BuildInst2(ir.OpAdd, ptr, sizeInst)
	id := bb.BuildExtractID(ptr)
	idEnd := bb.BuildExtractID(end)
	overflow := bb.BuildInst2(ir.OpNE, id, idEnd)
	bb.BuildInst1(ir.OpUB, overflow)
	memSize := bb.BuildInst1(ir.OpMemSize, id)
	offset := bb.BuildExtractOffset(end)
	outOfBound := bb.BuildInst2(ir.OpUGT, offset, memSize)
	bb.BuildInst1(ir.OpUB, outOfBound)
}

// storeUBCheck additionally makes writing constant memory UB.
func (c *Converter) storeUBCheck(bb *ir.BasicBlock, ptr *ir.Inst, size uint64) {
	c.loadUBCheck(bb, ptr, size)
	id := bb.BuildExtractID(ptr)
	isConst := bb.BuildInst1(ir.OpIsConstMem, id)
	bb.BuildInst1(ir.OpUB, isConst)
}

// storeValue writes value to memory byte by byte. No UB checks are
// done, and memory flags and uninit bytes are not updated.
func (c *Converter) storeValue(bb *ir.BasicBlock, ptr, value *ir.Inst) {
	if value.Bitsize&7 != 0 {
		c.abort("store_value: not byte aligned")
	}
	size := uint64(value.Bitsize / 8)
	one := bb.ValueInst(1, ptr.Bitsize)
	for i := uint64(0); i < size; i++ {
		high := bb.ValueInst(int64(i*8+7), 32)
		low := bb.ValueInst(int64(i*8), 32)
		byteInst := bb.BuildInst3(ir.OpExtract, value, high, low)
		bb.BuildInst2(ir.OpStore, ptr, byteInst)
		ptr = bb.BuildInst2(ir.OpAdd, ptr, one)
	}
}

// makeUninit marks size bytes from ptr as fully uninitialized.
func (c *Converter) makeUninit(bb *ir.BasicBlock, ptr *ir.Inst, size uint64) {
	one := bb.ValueInst(1, ptr.Bitsize)
	byteM1 := bb.ValueInst(255, 8)
	for i := uint64(0); i < size; i++ {
		bb.BuildInst2(ir.OpSetMemUndef, ptr, byteM1)
		ptr = bb.BuildInst2(ir.OpAdd, ptr, one)
	}
}

// processStore lowers a store through an lvalue.
func (c *Converter) processStore(bb *ir.BasicBlock, lhs, rhs tree.Expr) {
	if str, ok := rhs.(*tree.StringConst); ok {
		strLen := uint64(len(str.Data))
		size := bytesizeForType(lhs.ExprType())
		if strLen > size {
			c.abort("process_store: string larger than destination")
		}
		a := c.processAddress(bb, lhs)
		if a.bitOffset != 0 {
			c.abort("process_store: misaligned string store")
		}
		ptr := a.ptr
		one := bb.ValueInst(1, ptr.Bitsize)
		memoryFlag := bb.ValueInst(1, 1)
		undef := bb.ValueInst(0, 8)
		if size > MaxMemoryUnrollLimit {
			c.abort("process_store: too large string")
		}

		c.storeUBCheck(bb, ptr, size)
		for i := uint64(0); i < size; i++ {
			var b uint8
			if i < strLen {
				b = str.Data[i]
			}
			bb.BuildInst2(ir.OpStore, ptr, valueU64(bb, uint64(b), 8))
			bb.BuildInst2(ir.OpSetMemFlag, ptr, memoryFlag)
			bb.BuildInst2(ir.OpSetMemUndef, ptr, undef)
			ptr = bb.BuildInst2(ir.OpAdd, ptr, one)
		}
		return
	}

	valueType := rhs.ExprType()
	isBitfield := isBitField(lhs)
	a := c.processAddress(bb, lhs)
	if !isBitfield && a.bitOffset != 0 {
		c.abort("process_store: unaligned access")
	}
	v := c.tree2inst(bb, rhs)
	inst := v.inst
	undef := v.undef
	if undef == nil {
		undef = bb.ValueInst(0, inst.Bitsize)
	}
	memoryFlagsx := c.memFlags[inst]

	var size uint64
	if isBitfield {
		bitsize := uint64(bitsizeForType(valueType))
		size = (bitsize + a.bitOffset + 7) / 8

		if a.bitOffset != 0 {
			firstByte := bb.BuildInst1(ir.OpLoad, a.ptr)
			bits := bb.BuildTrunc(firstByte, uint32(a.bitOffset))
			inst = bb.BuildInst2(ir.OpConcat, inst, bits)

			firstByte = bb.BuildInst1(ir.OpGetMemUndef, a.ptr)
			bits = bb.BuildTrunc(firstByte, uint32(a.bitOffset))
			undef = bb.BuildInst2(ir.OpConcat, undef, bits)
		}

		if bitsize+a.bitOffset != size*8 {
			offset := valueU64(bb, size-1, a.ptr.Bitsize)
			ptr := bb.BuildInst2(ir.OpAdd, a.ptr, offset)

			remaining := size*8 - (bitsize + a.bitOffset)
			high := bb.ValueInst(7, 32)
			low := bb.ValueInst(int64(8-remaining), 32)

			lastByte := bb.BuildInst1(ir.OpLoad, ptr)
			bits := bb.BuildInst3(ir.OpExtract, lastByte, high, low)
			inst = bb.BuildInst2(ir.OpConcat, bits, inst)

			lastByte = bb.BuildInst1(ir.OpGetMemUndef, ptr)
			bits = bb.BuildInst3(ir.OpExtract, lastByte, high, low)
			undef = bb.BuildInst2(ir.OpConcat, bits, undef)
		}
	} else {
		size = bytesizeForType(valueType)
		inst = c.toMemRepr(bb, inst, valueType)
		undef = c.uninitToMemRepr(bb, undef, valueType)
	}

	for i := uint64(0); i < size; i++ {
		offset := valueU64(bb, i, a.ptr.Bitsize)
		ptr := bb.BuildInst2(ir.OpAdd, a.ptr, offset)

		high := bb.ValueInst(int64(i*8+7), 32)
		low := bb.ValueInst(int64(i*8), 32)

		padding := paddingAtOffset(valueType, i)
		if padding == 255 {
			// No need to store the byte as it will be marked as
			// undefined anyway.
			bb.BuildInst2(ir.OpSetMemUndef, ptr, bb.ValueInst(255, 8))
		} else {
			byteInst := bb.BuildInst3(ir.OpExtract, inst, high, low)
			bb.BuildInst2(ir.OpStore, ptr, byteInst)

			byteInst = bb.BuildInst3(ir.OpExtract, undef, high, low)
			if padding != 0 {
				paddingInst := valueU64(bb, uint64(padding), 8)
				byteInst = bb.BuildInst2(ir.OpOr, byteInst, paddingInst)
			}
			bb.BuildInst2(ir.OpSetMemUndef, ptr, byteInst)
		}

		var memoryFlag *ir.Inst
		if memoryFlagsx != nil {
			memoryFlag = bb.BuildInst3(ir.OpExtract, memoryFlagsx, high, low)
			zero := bb.ValueInst(0, memoryFlag.Bitsize)
			memoryFlag = bb.BuildInst2(ir.OpNE, memoryFlag, zero)
		} else {
			memoryFlag = bb.ValueInst(1, 1)
		}
		bb.BuildInst2(ir.OpSetMemFlag, ptr, memoryFlag)
	}

	c.storeUBCheck(bb, a.ptr, size)
}

// processCtorStore lowers a constructor on the right-hand side of a
// store: a clobber ends or invalidates the object, and an empty
// constructor zeroes it.
func (c *Converter) processCtorStore(bb *ir.BasicBlock, lhs tree.Expr, ctor *tree.Constructor) {
	a := c.processAddress(bb, lhs)
	if a.bitOffset != 0 {
		c.abort("process_constructor: misaligned destination")
	}
	dest := a.ptr

	if ctor.ClobberEOL {
		memID := bb.BuildExtractID(dest)
		bb.BuildInst1(ir.OpFree, memID)
		return
	}

	if ctor.NoClearing {
		c.abort("process_constructor: CONSTRUCTOR_NO_CLEARING")
	}
	ptr := dest
	one := bb.ValueInst(1, ptr.Bitsize)
	size := bytesizeForType(ctor.Type)
	if size > MaxMemoryUnrollLimit {
		c.abort("process_constructor: too large constructor")
	}
	c.storeUBCheck(bb, ptr, size)

	if ctor.Clobber {
		c.makeUninit(bb, ptr, size)
		return
	}

	zero := bb.ValueInst(0, 8)
	memoryFlag := bb.ValueInst(1, 1)
	for i := uint64(0); i < size; i++ {
		padding := paddingAtOffset(ctor.Type, i)
		undef := valueU64(bb, uint64(padding), 8)
		bb.BuildInst2(ir.OpStore, ptr, zero)
		bb.BuildInst2(ir.OpSetMemUndef, ptr, undef)
		bb.BuildInst2(ir.OpSetMemFlag, ptr, memoryFlag)
		ptr = bb.BuildInst2(ir.OpAdd, ptr, one)
	}

	if len(ctor.Elems) != 0 {
		c.abort("process_constructor: elements in a store")
	}
}

// storeInitializer writes an initializer to memory starting at
// memInst. Aggregate constructors recurse per element.
func (c *Converter) storeInitializer(bb *ir.BasicBlock, initial tree.Expr, memInst *ir.Inst) {
	ptr := memInst
	t := initial.ExprType()

	if str, ok := initial.(*tree.StringConst); ok {
		one := bb.ValueInst(1, ptr.Bitsize)
		for _, b := range str.Data {
			byteInst := valueU64(bb, uint64(b), 8)
			bb.BuildInst2(ir.OpStore, ptr, byteInst)
			ptr = bb.BuildInst2(ir.OpAdd, ptr, one)
		}
		return
	}

	ctor, isCtor := initial.(*tree.Constructor)
	if !isCtor || t.Kind == tree.Vector {
		inst := c.tree2instUndefCheck(bb, initial)
		inst = c.toMemRepr(bb, inst, t)
		c.storeValue(bb, ptr, inst)
		return
	}

	switch t.Kind {
	case tree.Array:
		elemSize := bytesizeForType(t.Elem)
		for i, elem := range ctor.Elems {
			idx := uint64(i)
			if elem.Index != nil {
				idx = elem.Index.Value.Uint64()
			}
			off := valueU64(bb, idx*elemSize, ptr.Bitsize)
			ptr2 := bb.BuildInst2(ir.OpAdd, ptr, off)
			c.storeInitializer(bb, elem.Value, ptr2)
		}
	case tree.Record, tree.Union:
		for _, elem := range ctor.Elems {
			if elem.Field == nil {
				c.abort("init_var: missing field")
			}
			offset := elem.Field.Offset / 8
			bitOffset := elem.Field.Offset & 7
			off := valueU64(bb, offset, ptr.Bitsize)
			ptr2 := bb.BuildInst2(ir.OpAdd, ptr, off)
			elemType := elem.Value.ExprType()
			switch elemType.Kind {
			case tree.Array, tree.Record, tree.Union:
				c.storeInitializer(bb, elem.Value, ptr2)
				continue
			}
			bitsize := uint64(bitsizeForType(elemType))
			inst := c.tree2instUndefCheck(bb, elem.Value)
			size := (bitsize + bitOffset + 7) / 8
			if elem.Field.BitField {
				if bitOffset != 0 {
					firstByte := bb.BuildInst1(ir.OpLoad, ptr2)
					bits := bb.BuildTrunc(firstByte, uint32(bitOffset))
					inst = bb.BuildInst2(ir.OpConcat, inst, bits)
				}
				if bitsize+bitOffset != size*8 {
					offInst := valueU64(bb, size-1, ptr2.Bitsize)
					ptr3 := bb.BuildInst2(ir.OpAdd, ptr2, offInst)

					remaining := size*8 - (bitsize + bitOffset)
					high := bb.ValueInst(7, 32)
					low := bb.ValueInst(int64(8-remaining), 32)

					lastByte := bb.BuildInst1(ir.OpLoad, ptr3)
					bits := bb.BuildInst3(ir.OpExtract, lastByte, high, low)
					inst = bb.BuildInst2(ir.OpConcat, bits, inst)
				}
			} else {
				inst = c.toMemRepr(bb, inst, elemType)
			}
			c.storeValue(bb, ptr2, inst)
		}
	default:
		c.abort("init_var: unknown constructor")
	}
}

// initVar writes the initial value of a declaration into its memory
// object. Uninitialized static variables are zero-filled.
func (c *Converter) initVar(decl *tree.Decl, memInst *ir.Inst) {
	size := bytesizeForType(decl.Type)
	if size > MaxMemoryUnrollLimit {
		c.abort("init_var: too large constructor")
	}
	c.checkType(decl.Type)

	bb := memInst.BB

	if decl.Init == nil {
		if !decl.Static {
			return
		}

		// Uninitialized static variables are guaranteed to start as 0.
		ptr := memInst
		zero := bb.ValueInst(0, 8)
		one := bb.ValueInst(1, ptr.Bitsize)
		for i := uint64(0); i < size; i++ {
			bb.BuildInst2(ir.OpStore, ptr, zero)
			ptr = bb.BuildInst2(ir.OpAdd, ptr, one)
		}
		return
	}

	if ctor, ok := decl.Init.(*tree.Constructor); ok {
		if ctor.NoClearing {
			c.abort("init_var: CONSTRUCTOR_NO_CLEARING")
		}
		ptr := memInst
		zero := bb.ValueInst(0, 8)
		one := bb.ValueInst(1, ptr.Bitsize)
		for i := uint64(0); i < size; i++ {
			padding := paddingAtOffset(ctor.Type, i)
			if padding != 0 {
				bb.BuildInst2(ir.OpSetMemUndef, ptr, valueU64(bb, uint64(padding), 8))
			}
			if padding != 255 {
				bb.BuildInst2(ir.OpStore, ptr, zero)
			}
			ptr = bb.BuildInst2(ir.OpAdd, ptr, one)
		}
	}

	c.storeInitializer(bb, decl.Init, memInst)
}
