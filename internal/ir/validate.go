package ir

import "fmt"

// Validate checks the structural invariants of a function and returns
// the first violation found. A non-nil result indicates a bug in the
// code that built or transformed the IR, not a problem with the input.
func Validate(f *Function) error {
	if len(f.Bbs) == 0 {
		return fmt.Errorf("function %s has no basic blocks", f.Name)
	}
	if len(f.Bbs[0].Preds) != 0 {
		return fmt.Errorf("entry block has predecessors")
	}

	nofRet := 0
	for _, bb := range f.Bbs {
		if bb != f.Bbs[0] && len(bb.Preds) == 0 {
			return fmt.Errorf(".%d is unreachable (no predecessors)", bb.ID)
		}

		term := bb.LastInst
		if term == nil || (term.Op != OpBr && term.Op != OpRet) {
			return fmt.Errorf(".%d does not end in a terminator", bb.ID)
		}
		if term.Op == OpRet {
			nofRet++
			if len(bb.Succs) != 0 {
				return fmt.Errorf(".%d returns but has successors", bb.ID)
			}
		}
		if term.Op == OpBr {
			var targets []*BasicBlock
			if term.NofArgs == 0 {
				targets = []*BasicBlock{term.DestBB}
			} else {
				targets = []*BasicBlock{term.TrueBB, term.FalseBB}
			}
			if len(bb.Succs) != len(targets) {
				return fmt.Errorf(".%d successor list does not match its branch", bb.ID)
			}
			for i, t := range targets {
				if bb.Succs[i] != t {
					return fmt.Errorf(".%d successor list does not match its branch", bb.ID)
				}
				found := false
				for _, pred := range t.Preds {
					if pred == bb {
						found = true
						break
					}
				}
				if !found {
					return fmt.Errorf(".%d -> .%d edge missing from preds", bb.ID, t.ID)
				}
			}
		}

		for inst := bb.FirstInst; inst != nil; inst = inst.Next {
			if inst != term && (inst.Op == OpBr || inst.Op == OpRet) {
				return fmt.Errorf(".%d has a terminator in the middle", bb.ID)
			}
			if err := validateUses(inst); err != nil {
				return err
			}
		}

		for _, phi := range bb.Phis {
			if len(phi.PhiArgs) != len(bb.Preds) {
				return fmt.Errorf("phi %%%d has %d args for %d preds",
					phi.ID, len(phi.PhiArgs), len(bb.Preds))
			}
			for _, arg := range phi.PhiArgs {
				if arg.Inst.Bitsize != phi.Bitsize {
					return fmt.Errorf("phi %%%d argument width mismatch", phi.ID)
				}
				if !arg.Inst.UsedBy.Contains(phi) {
					return fmt.Errorf("phi %%%d missing from %%%d used_by",
						phi.ID, arg.Inst.ID)
				}
				found := false
				for _, pred := range bb.Preds {
					if pred == arg.BB {
						found = true
						break
					}
				}
				if !found {
					return fmt.Errorf("phi %%%d has an argument for a non-pred block", phi.ID)
				}
			}
		}
	}

	if nofRet != 1 {
		return fmt.Errorf("function %s has %d ret instructions", f.Name, nofRet)
	}

	// The intern map must be a bijection onto the VALUE instructions.
	nofValues := 0
	for inst := f.Bbs[0].FirstInst; inst != nil; inst = inst.Next {
		if inst.Op == OpValue {
			nofValues++
			key := valueKey{lo: inst.Value[0], hi: inst.Value[1], bitsize: inst.Bitsize}
			if f.values[key] != inst {
				return fmt.Errorf("value %%%d is not interned", inst.ID)
			}
		}
	}
	if nofValues != len(f.values) {
		return fmt.Errorf("intern map has %d entries for %d value instructions",
			len(f.values), nofValues)
	}

	return nil
}

func validateUses(inst *Inst) error {
	for i := 0; i < inst.NofArgs; i++ {
		if !inst.Args[i].UsedBy.Contains(inst) {
			return fmt.Errorf("%%%d missing from %%%d used_by",
				inst.ID, inst.Args[i].ID)
		}
	}
	return nil
}
