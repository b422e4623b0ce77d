package ir

// DestroyInst unlinks and discards an instruction. The instruction must
// have no remaining uses. A VALUE is removed from the intern map; a BR
// clears the block's successor edges. Phi nodes in successor blocks are
// deliberately left alone when a branch is destroyed: the caller usually
// replaces the branch with a similar one and fixes the phis itself.
func DestroyInst(inst *Inst) {
	if inst.UsedBy.Cardinality() != 0 {
		panic("DestroyInst: instruction still has uses")
	}
	if inst.BB == nil {
		return
	}

	bb := inst.BB
	f := bb.Func

	if inst.Op == OpValue {
		key := valueKey{lo: inst.Value[0], hi: inst.Value[1], bitsize: inst.Bitsize}
		if _, ok := f.values[key]; !ok {
			panic("DestroyInst: value instruction is not interned")
		}
		delete(f.values, key)

		if f.lastValueInst == inst {
			if inst.Prev != nil && inst.Prev.Op == OpValue {
				f.lastValueInst = inst.Prev
			} else {
				f.lastValueInst = nil
			}
		}
	}

	if inst.Op == OpPhi {
		for _, arg := range inst.PhiArgs {
			arg.Inst.UsedBy.Remove(inst)
		}
		idx := -1
		for i, phi := range bb.Phis {
			if phi == inst {
				idx = i
				break
			}
		}
		if idx < 0 {
			panic("DestroyInst: phi not found in its block")
		}
		bb.Phis = append(bb.Phis[:idx], bb.Phis[idx+1:]...)
		inst.BB = nil
		return
	}

	if inst.Op == OpBr {
		for _, succ := range bb.Succs {
			removed := false
			for i, pred := range succ.Preds {
				if pred == bb {
					succ.Preds = append(succ.Preds[:i], succ.Preds[i+1:]...)
					removed = true
					break
				}
			}
			if !removed {
				panic("DestroyInst: successor does not list this block")
			}
		}
		bb.Succs = nil
	}

	for i := 0; i < inst.NofArgs; i++ {
		inst.Args[i].UsedBy.Remove(inst)
	}

	if inst == bb.FirstInst {
		bb.FirstInst = inst.Next
	}
	if inst == bb.LastInst {
		bb.LastInst = inst.Prev
	}
	if inst.Prev != nil {
		inst.Prev.Next = inst.Next
	}
	if inst.Next != nil {
		inst.Next.Prev = inst.Prev
	}
	inst.Prev = nil
	inst.Next = nil
	inst.BB = nil
}

// DestroyBB discards a basic block and all of its instructions. The
// block must not have predecessors.
func DestroyBB(bb *BasicBlock) {
	if len(bb.Preds) != 0 {
		panic("DestroyBB: block still has predecessors")
	}

	for _, phi := range bb.Phis {
		phi.RemovePhiArgs()
	}
	for inst := bb.LastInst; inst != nil; {
		cur := inst
		inst = inst.Prev
		DestroyInst(cur)
	}
	for len(bb.Phis) > 0 {
		DestroyInst(bb.Phis[len(bb.Phis)-1])
	}

	f := bb.Func
	idx := -1
	for i, b := range f.Bbs {
		if b == bb {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic("DestroyBB: block not found in its function")
	}
	f.Bbs = append(f.Bbs[:idx], f.Bbs[idx+1:]...)
}

// DestroyFunction unlinks the function from its module and drops all
// blocks and instructions without the invariant-preserving bookkeeping
// of DestroyInst/DestroyBB (nothing can observe the intermediate state).
func DestroyFunction(f *Function) {
	f.Bbs = nil
	f.values = nil
	f.lastValueInst = nil

	m := f.Module
	for i, fn := range m.Functions {
		if fn == f {
			m.Functions = append(m.Functions[:i], m.Functions[i+1:]...)
			break
		}
	}
}
