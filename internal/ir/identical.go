package ir

// IdenticalInst compares two instructions structurally by opcode,
// width, and argument ids. SYMBOLIC stands for "any value", so two
// SYMBOLIC instructions may take different concrete values and are
// never identical.
func IdenticalInst(inst1, inst2 *Inst) bool {
	if inst1.Op != inst2.Op {
		return false
	}
	if inst1.Op == OpSymbolic {
		return false
	}
	if inst1.Bitsize != inst2.Bitsize {
		return false
	}
	if inst1.NofArgs != inst2.NofArgs {
		return false
	}
	if inst1.IsCommutative() {
		// Some passes (such as ccp) may do pointless argument swaps.
		a0, a1 := inst1.Args[0].ID, inst1.Args[1].ID
		b0, b1 := inst2.Args[0].ID, inst2.Args[1].ID
		if !((a0 == b0 && a1 == b1) || (a0 == b1 && a1 == b0)) {
			return false
		}
	} else {
		for i := 0; i < inst1.NofArgs; i++ {
			if inst1.Args[i].ID != inst2.Args[i].ID {
				return false
			}
		}
	}

	// Ordinary instructions are fully checked above; the "special"
	// class carries extra fields.
	switch inst1.Op {
	case OpBr:
		if inst1.NofArgs == 0 {
			if inst1.DestBB.ID != inst2.DestBB.ID {
				return false
			}
		} else {
			if inst1.TrueBB.ID != inst2.TrueBB.ID {
				return false
			}
			if inst1.FalseBB.ID != inst2.FalseBB.ID {
				return false
			}
		}
	case OpPhi:
		if len(inst1.PhiArgs) != len(inst2.PhiArgs) {
			return false
		}
		for i := range inst1.PhiArgs {
			if inst1.PhiArgs[i].Inst.ID != inst2.PhiArgs[i].Inst.ID {
				return false
			}
			if inst1.PhiArgs[i].BB.ID != inst2.PhiArgs[i].BB.ID {
				return false
			}
		}
	case OpRet:
		// Already covered by the argument check.
	case OpValue:
		if inst1.Value != inst2.Value {
			return false
		}
	}

	return true
}

// Identical canonicalizes both functions and compares them block by
// block, phi lists first, then the instruction lists element-wise.
func Identical(func1, func2 *Function) bool {
	func1.Canonicalize()
	func2.Canonicalize()

	if len(func1.Bbs) != len(func2.Bbs) {
		return false
	}

	for i := range func1.Bbs {
		bb1 := func1.Bbs[i]
		bb2 := func2.Bbs[i]
		if len(bb1.Phis) != len(bb2.Phis) {
			return false
		}
		for j := range bb1.Phis {
			if !IdenticalInst(bb1.Phis[j], bb2.Phis[j]) {
				return false
			}
		}
		inst1 := bb1.FirstInst
		inst2 := bb2.FirstInst
		for inst1 != nil && inst2 != nil {
			if !IdenticalInst(inst1, inst2) {
				return false
			}
			inst1 = inst1.Next
			inst2 = inst2.Next
		}
		if inst1 != nil || inst2 != nil {
			return false
		}
	}

	return true
}
