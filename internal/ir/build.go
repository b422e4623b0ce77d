package ir

import "github.com/holiman/uint256"

func (bb *BasicBlock) createInst1(op Op, arg *Inst) *Inst {
	inst := bb.Func.newInst(op)
	inst.NofArgs = 1
	inst.Args[0] = arg
	switch {
	case op == OpIsConstMem || op == OpIsNoncanonicalNaN || op == OpGetMemFlag:
		inst.Bitsize = 1
	case op == OpGetMemUndef || op == OpLoad:
		inst.Bitsize = 8
	case op == OpMemSize:
		inst.Bitsize = bb.Func.Module.PtrOffsetBits
	case op == OpSymbolic || op == OpRegister:
		inst.Bitsize = uint32(arg.ValueUint64())
	case op == OpRead:
		if arg.Op != OpRegister {
			panic("read: argument must be a register")
		}
		inst.Bitsize = arg.Bitsize
	default:
		inst.Bitsize = arg.Bitsize
	}
	return inst
}

func (bb *BasicBlock) createInst2(op Op, arg1, arg2 *Inst) *Inst {
	inst := bb.Func.newInst(op)
	inst.NofArgs = 2
	inst.Args[0] = arg1
	inst.Args[1] = arg2
	class := op.Class()
	switch {
	case class == ClassICmp || class == ClassFCmp ||
		op == OpSAddWraps || op == OpSSubWraps || op == OpSMulWraps:
		if arg1.Bitsize != arg2.Bitsize {
			panic(op.String() + ": argument width mismatch")
		}
		inst.Bitsize = 1
	case class == ClassConv:
		inst.Bitsize = uint32(arg2.ValueUint64())
		if op == OpSExt || op == OpZExt {
			if inst.Bitsize <= arg1.Bitsize {
				panic(op.String() + ": must strictly widen")
			}
		}
	case op == OpConcat:
		inst.Bitsize = arg1.Bitsize + arg2.Bitsize
	case op == OpParam || op == OpSymbolic:
		if arg1.Op != OpValue || arg2.Op != OpValue {
			panic(op.String() + ": arguments must be value instructions")
		}
		inst.Bitsize = uint32(arg2.ValueUint64())
	case op == OpStore || op == OpSetMemUndef:
		if arg1.Bitsize != bb.Func.Module.PtrBits {
			panic(op.String() + ": address must be pointer-wide")
		}
		if arg2.Bitsize != 8 {
			panic(op.String() + ": data must be one byte")
		}
		inst.Bitsize = 0
	case op == OpSetMemFlag:
		if arg1.Bitsize != bb.Func.Module.PtrBits {
			panic("set_mem_flag: address must be pointer-wide")
		}
		if arg2.Bitsize != 1 {
			panic("set_mem_flag: flag must be one bit")
		}
		inst.Bitsize = 0
	case op == OpWrite:
		if arg1.Op != OpRegister {
			panic("write: destination must be a register")
		}
		inst.Bitsize = 0
	default:
		if arg1.Bitsize != arg2.Bitsize {
			panic(op.String() + ": argument width mismatch")
		}
		inst.Bitsize = arg1.Bitsize
	}
	return inst
}

func (bb *BasicBlock) createInst3(op Op, arg1, arg2, arg3 *Inst) *Inst {
	inst := bb.Func.newInst(op)
	inst.NofArgs = 3
	inst.Args[0] = arg1
	inst.Args[1] = arg2
	inst.Args[2] = arg3
	switch op {
	case OpExtract:
		high := uint32(arg2.ValueUint64())
		low := uint32(arg3.ValueUint64())
		if high < low || high >= arg1.Bitsize {
			panic("extract: bit range out of bounds")
		}
		inst.Bitsize = 1 + high - low
	case OpMemory:
		m := bb.Func.Module
		if arg1.Op != OpValue || arg1.Bitsize != m.PtrIDBits {
			panic("memory: id must be a value of ptr_id_bits")
		}
		if arg2.Op != OpValue || arg2.Bitsize != m.PtrOffsetBits {
			panic("memory: size must be a value of ptr_offset_bits")
		}
		if arg3.Op != OpValue {
			panic("memory: flags must be a value instruction")
		}
		inst.Bitsize = m.PtrBits
	case OpITE:
		if arg1.Bitsize != 1 {
			panic("ite: condition must be one bit")
		}
		if arg2.Bitsize != arg3.Bitsize {
			panic("ite: argument width mismatch")
		}
		inst.Bitsize = arg2.Bitsize
	default:
		panic(op.String() + ": not a ternary opcode")
	}
	return inst
}

// insertLast places the instruction at the last valid position in the
// block. Phi nodes go to the phi list even if other instructions exist.
// A BR wires up the successor and predecessor lists. Other instructions
// go to the tail, but before an existing BR or RET terminator.
func (bb *BasicBlock) insertLast(inst *Inst) {
	if inst.BB != nil || inst.Prev != nil || inst.Next != nil {
		panic("insertLast: instruction is already linked")
	}
	if inst.Op == OpPhi {
		bb.insertPhi(inst)
		return
	}
	if inst.Op == OpBr {
		if bb.LastInst != nil &&
			(bb.LastInst.Op == OpBr || bb.LastInst.Op == OpRet) {
			panic("insertLast: block already has a terminator")
		}
		if len(bb.Succs) != 0 {
			panic("insertLast: block already has successors")
		}
		if inst.NofArgs == 0 {
			inst.DestBB.Preds = append(inst.DestBB.Preds, bb)
			bb.Succs = append(bb.Succs, inst.DestBB)
		} else {
			inst.TrueBB.Preds = append(inst.TrueBB.Preds, bb)
			bb.Succs = append(bb.Succs, inst.TrueBB)
			inst.FalseBB.Preds = append(inst.FalseBB.Preds, bb)
			bb.Succs = append(bb.Succs, inst.FalseBB)
		}
	} else if bb.LastInst != nil &&
		(bb.LastInst.Op == OpBr || bb.LastInst.Op == OpRet) {
		inst.InsertBefore(bb.LastInst)
		return
	}

	inst.BB = bb
	inst.updateUses()
	if bb.LastInst != nil {
		inst.Prev = bb.LastInst
		bb.LastInst.Next = inst
	}
	bb.LastInst = inst
	if bb.FirstInst == nil {
		bb.FirstInst = inst
	}
}

func (bb *BasicBlock) insertPhi(inst *Inst) {
	if inst.Op != OpPhi {
		panic("insertPhi: not a phi instruction")
	}
	bb.Phis = append(bb.Phis, inst)
	inst.BB = bb
	inst.updateUses()
}

// BuildInst1 creates and inserts a unary instruction.
func (bb *BasicBlock) BuildInst1(op Op, arg *Inst) *Inst {
	inst := bb.createInst1(op, arg)
	bb.insertLast(inst)
	return inst
}

// BuildInst2 creates and inserts a binary instruction.
func (bb *BasicBlock) BuildInst2(op Op, arg1, arg2 *Inst) *Inst {
	inst := bb.createInst2(op, arg1, arg2)
	bb.insertLast(inst)
	return inst
}

// BuildInst3 creates and inserts a ternary instruction.
func (bb *BasicBlock) BuildInst3(op Op, arg1, arg2, arg3 *Inst) *Inst {
	inst := bb.createInst3(op, arg1, arg2, arg3)
	bb.insertLast(inst)
	return inst
}

// BuildPhi creates an argument-less phi node of the given width.
func (bb *BasicBlock) BuildPhi(bitsize uint32) *Inst {
	inst := bb.Func.newInst(OpPhi)
	inst.Bitsize = bitsize
	bb.insertPhi(inst)
	return inst
}

// BuildRet inserts a return without a value.
func (bb *BasicBlock) BuildRet() *Inst {
	inst := bb.Func.newInst(OpRet)
	bb.insertLast(inst)
	return inst
}

// BuildRet1 inserts a return of one value.
func (bb *BasicBlock) BuildRet1(arg *Inst) *Inst {
	inst := bb.Func.newInst(OpRet)
	inst.NofArgs = 1
	inst.Args[0] = arg
	inst.Bitsize = arg.Bitsize
	bb.insertLast(inst)
	return inst
}

// BuildRet2 inserts a return of a value and its undef mask.
func (bb *BasicBlock) BuildRet2(arg1, arg2 *Inst) *Inst {
	if arg1.Bitsize != arg2.Bitsize {
		panic("ret: undef mask width mismatch")
	}
	inst := bb.Func.newInst(OpRet)
	inst.NofArgs = 2
	inst.Args[0] = arg1
	inst.Args[1] = arg2
	inst.Bitsize = arg1.Bitsize
	bb.insertLast(inst)
	return inst
}

// BuildBr inserts an unconditional branch to dest.
func (bb *BasicBlock) BuildBr(dest *BasicBlock) *Inst {
	inst := bb.Func.newInst(OpBr)
	inst.DestBB = dest
	bb.insertLast(inst)
	return inst
}

// BuildCondBr inserts a conditional branch. The targets must differ.
func (bb *BasicBlock) BuildCondBr(cond *Inst, trueBB, falseBB *BasicBlock) *Inst {
	if trueBB == falseBB {
		panic("br: targets must differ")
	}
	inst := bb.Func.newInst(OpBr)
	inst.NofArgs = 1
	inst.Args[0] = cond
	inst.TrueBB = trueBB
	inst.FalseBB = falseBB
	bb.insertLast(inst)
	return inst
}

// ValueInst interns the literal v sign-extended to 128 bits.
func (bb *BasicBlock) ValueInst(v int64, bitsize uint32) *Inst {
	return bb.Func.ValueInst(v, bitsize)
}

// ValueInstU256 interns a literal given as a 128-bit value.
func (bb *BasicBlock) ValueInstU256(v *uint256.Int, bitsize uint32) *Inst {
	return bb.Func.ValueInstU256(v, bitsize)
}

// ValueM1Inst builds the all-ones literal of any width, synthesizing
// widths above 128 with CONCAT in the entry block.
func (bb *BasicBlock) ValueM1Inst(bitsize uint32) *Inst {
	if bitsize <= 128 {
		return bb.ValueInst(-1, bitsize)
	}
	var res *Inst
	entry := bb.Func.Bbs[0]
	for bitsize > 0 {
		bs := bitsize
		if bs > 128 {
			bs = 128
		}
		bitsize -= bs
		inst := bb.ValueInst(-1, bs)
		if res != nil {
			res = entry.BuildInst2(OpConcat, inst, res)
		} else {
			res = inst
		}
	}
	return res
}

// BuildExtractID extracts the memory-id field of a pointer.
func (bb *BasicBlock) BuildExtractID(arg *Inst) *Inst {
	m := bb.Func.Module
	if arg.Bitsize != m.PtrBits {
		panic("extract id: argument must be pointer-wide")
	}
	high := bb.ValueInst(int64(m.PtrIDHigh), 32)
	low := bb.ValueInst(int64(m.PtrIDLow), 32)
	return bb.BuildInst3(OpExtract, arg, high, low)
}

// BuildExtractOffset extracts the offset field of a pointer.
func (bb *BasicBlock) BuildExtractOffset(arg *Inst) *Inst {
	m := bb.Func.Module
	if arg.Bitsize != m.PtrBits {
		panic("extract offset: argument must be pointer-wide")
	}
	high := bb.ValueInst(int64(m.PtrOffsetHigh), 32)
	low := bb.ValueInst(int64(m.PtrOffsetLow), 32)
	return bb.BuildInst3(OpExtract, arg, high, low)
}

// BuildExtractBit extracts bit bitIdx (0 = least significant).
func (bb *BasicBlock) BuildExtractBit(arg *Inst, bitIdx uint32) *Inst {
	if bitIdx >= arg.Bitsize {
		panic("extract bit: index out of range")
	}
	idx := bb.ValueInst(int64(bitIdx), 32)
	return bb.BuildInst3(OpExtract, arg, idx, idx)
}

// BuildTrunc truncates arg to nofBits bits. A no-op width returns arg.
func (bb *BasicBlock) BuildTrunc(arg *Inst, nofBits uint32) *Inst {
	if nofBits > arg.Bitsize {
		panic("trunc: cannot widen")
	}
	if nofBits == arg.Bitsize {
		return arg
	}
	high := bb.ValueInst(int64(nofBits-1), 32)
	low := bb.ValueInst(0, 32)
	return bb.BuildInst3(OpExtract, arg, high, low)
}

// normalizeValue reduces v modulo 2^bitsize for bitsize <= 128.
func normalizeValue(v *uint256.Int, bitsize uint32) uint256.Int {
	var out uint256.Int
	out.Set(v)
	if bitsize < 128 {
		var mask uint256.Int
		mask.Lsh(uint256.NewInt(1), uint(bitsize))
		mask.SubUint64(&mask, 1)
		out.And(&out, &mask)
	} else {
		out[2] = 0
		out[3] = 0
	}
	return out
}

func signExtend128(v int64) uint256.Int {
	var out uint256.Int
	if v >= 0 {
		out.SetUint64(uint64(v))
	} else {
		out.SetUint64(uint64(v))
		out[1] = ^uint64(0)
	}
	return out
}

// ValueInst interns the literal v (sign-extended to 128 bits) at width
// bitsize, creating a new VALUE instruction in the entry block's value
// prefix when no interned copy exists.
func (f *Function) ValueInst(v int64, bitsize uint32) *Inst {
	u := signExtend128(v)
	return f.ValueInstU256(&u, bitsize)
}

// ValueInstU256 is ValueInst for a literal already in 128-bit form.
// Widths above 128 are synthesized by CONCAT of 128-bit chunks (the
// pieces are interned but the CONCAT result is not).
func (f *Function) ValueInstU256(v *uint256.Int, bitsize uint32) *Inst {
	if bitsize == 0 {
		panic("value: width must be positive")
	}

	if bitsize > 128 {
		var res *Inst
		val := new(uint256.Int).Set(v)
		zero := uint256.NewInt(0)
		remaining := bitsize
		for remaining > 0 {
			bs := remaining
			if bs > 128 {
				bs = 128
			}
			remaining -= bs
			inst := f.ValueInstU256(val, bs)
			val = zero
			if res != nil {
				res = f.Bbs[0].BuildInst2(OpConcat, inst, res)
			} else {
				res = inst
			}
		}
		// The CONCAT result is not interned: it is not a real value
		// instruction and dead code elimination may remove it.
		return res
	}

	norm := normalizeValue(v, bitsize)
	key := valueKey{lo: norm[0], hi: norm[1], bitsize: bitsize}
	if inst, ok := f.values[key]; ok {
		return inst
	}

	inst := f.newInst(OpValue)
	inst.Value = norm
	inst.Bitsize = bitsize

	// Value instructions must come early in the entry block since they
	// may feed e.g. memory initialization there, but insertion order is
	// preserved so printed IR matches the build order.
	entry := f.Bbs[0]
	if entry.LastInst == nil || entry.LastInst.Op == OpValue {
		entry.insertLast(inst)
	} else if f.lastValueInst != nil {
		inst.InsertAfter(f.lastValueInst)
	} else {
		pos := entry.FirstInst
		for pos != nil && pos.Op == OpValue {
			pos = pos.Next
		}
		if pos != nil {
			inst.InsertBefore(pos)
		} else {
			entry.insertLast(inst)
		}
	}
	f.lastValueInst = inst
	f.values[key] = inst
	return inst
}
