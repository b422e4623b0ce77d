package ir

import "sort"

// ResetIRID renumbers blocks and instructions densely in block order
// (phis before ordinary instructions within each block).
func (f *Function) ResetIRID() {
	bbNbr := 0
	instNbr := uint32(0)
	for _, bb := range f.Bbs {
		bb.ID = bbNbr
		bbNbr++
		for _, phi := range bb.Phis {
			phi.ID = instNbr
			instNbr++
		}
		for inst := bb.FirstInst; inst != nil; inst = inst.Next {
			inst.ID = instNbr
			instNbr++
		}
	}
}

// Canonicalize renumbers ids, orders commutative arguments by id, and
// sorts phi arguments and predecessor lists by block id. Sorting the
// commutative arguments lets structural identity (and the SMT solver)
// see through pointless argument swaps done by optimization passes; the
// SMT emission assumes phi args and preds sorted in reverse post order.
func (f *Function) Canonicalize() {
	f.ResetIRID()

	for _, bb := range f.Bbs {
		for inst := bb.FirstInst; inst != nil; inst = inst.Next {
			if inst.IsCommutative() {
				if inst.NofArgs != 2 {
					panic("canonicalize: commutative instruction must be binary")
				}
				if inst.Args[0].ID > inst.Args[1].ID {
					inst.Args[0], inst.Args[1] = inst.Args[1], inst.Args[0]
				}
			}
		}

		for _, phi := range bb.Phis {
			sort.SliceStable(phi.PhiArgs, func(i, j int) bool {
				return phi.PhiArgs[i].BB.ID < phi.PhiArgs[j].BB.ID
			})
		}
		sort.SliceStable(bb.Preds, func(i, j int) bool {
			return bb.Preds[i].ID < bb.Preds[j].ID
		})
	}
}
