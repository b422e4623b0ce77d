// Package cfg provides control-flow utilities for the IR: reverse
// post-order numbering with dead-block removal, loop detection,
// dominance computation, and conservative CFG simplification.
package cfg

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Pheeck/smtgcc/internal/diag"
	"github.com/Pheeck/smtgcc/internal/ir"
)

func rpoWalk(bb *ir.BasicBlock, bbs *[]*ir.BasicBlock, visited mapset.Set[*ir.BasicBlock]) {
	visited.Add(bb)
	term := bb.LastInst
	if term.Op == ir.OpBr {
		if term.NofArgs == 0 {
			if !visited.Contains(term.DestBB) {
				rpoWalk(term.DestBB, bbs, visited)
			}
		} else {
			if !visited.Contains(term.TrueBB) {
				rpoWalk(term.TrueBB, bbs, visited)
			}
			if !visited.Contains(term.FalseBB) {
				rpoWalk(term.FalseBB, bbs, visited)
			}
		}
	}
	*bbs = append([]*ir.BasicBlock{bb}, *bbs...)
}

func removeDeadBBs(deadBBs []*ir.BasicBlock) {
	for _, bb := range deadBBs {
		for _, succ := range bb.Succs {
			for _, phi := range succ.Phis {
				phi.RemovePhiArg(bb)
			}
		}
	}

	// Dead blocks may reference each other through phis.
	for _, bb := range deadBBs {
		for _, phi := range bb.Phis {
			phi.RemovePhiArgs()
		}
	}

	// Instructions must be destroyed uses-first, but the dead blocks
	// are not guaranteed to be in RPO. Destroy what has no remaining
	// uses and iterate until every block is empty.
	for len(deadBBs) > 0 {
		for i := len(deadBBs) - 1; i >= 0; i-- {
			bb := deadBBs[i]
			for inst := bb.LastInst; inst != nil; {
				next := inst.Prev
				if !inst.HasLHS() || inst.UsedBy.Cardinality() == 0 {
					ir.DestroyInst(inst)
				}
				inst = next
			}
		}
		for len(deadBBs) > 0 {
			bb := deadBBs[len(deadBBs)-1]
			if bb.LastInst != nil {
				break
			}
			deadBBs = deadBBs[:len(deadBBs)-1]
			ir.DestroyBB(bb)
		}
	}
}

// calculateDominance assumes a loop-free CFG without dead blocks.
func calculateDominance(f *ir.Function) {
	for _, bb := range f.Bbs {
		bb.Dom = mapset.NewThreadUnsafeSet[*ir.BasicBlock]()
		bb.PostDom = mapset.NewThreadUnsafeSet[*ir.BasicBlock]()
	}

	nofBBs := len(f.Bbs)

	// Dominators
	f.Bbs[0].Dom.Add(f.Bbs[0])
	for i := 1; i < nofBBs; i++ {
		bb := f.Bbs[i]
		intersection := bb.Preds[0].Dom.Clone()
		for j := 1; j < len(bb.Preds); j++ {
			intersection = intersection.Intersect(bb.Preds[j].Dom)
		}
		bb.Dom = intersection
		bb.Dom.Add(bb)
	}

	// Post dominators
	f.Bbs[nofBBs-1].PostDom.Add(f.Bbs[nofBBs-1])
	for i := nofBBs - 2; i >= 0; i-- {
		bb := f.Bbs[i]
		intersection := bb.Succs[0].PostDom.Clone()
		for j := 1; j < len(bb.Succs); j++ {
			intersection = intersection.Intersect(bb.Succs[j].PostDom)
		}
		bb.PostDom = intersection
		bb.PostDom.Add(bb)
	}
}

// Dominates reports whether bb1 dominates bb2.
func Dominates(bb1, bb2 *ir.BasicBlock) bool {
	return bb2.Dom != nil && bb2.Dom.Contains(bb1)
}

// PostDominates reports whether bb1 post dominates bb2.
func PostDominates(bb1, bb2 *ir.BasicBlock) bool {
	return bb2.PostDom != nil && bb2.PostDom.Contains(bb1)
}

// NearestDominator walks the first-predecessor chain from bb until it
// finds a block dominating every predecessor of bb. Returns nil for
// the entry block.
func NearestDominator(bb *ir.BasicBlock) *ir.BasicBlock {
	if len(bb.Preds) == 0 {
		return nil
	}

	cand := bb.Preds[0]
	for {
		count := 0
		for _, pred := range bb.Preds {
			if Dominates(cand, pred) {
				count++
			}
		}
		if count == len(bb.Preds) {
			return cand
		}
		if len(cand.Preds) == 0 {
			panic("NearestDominator: no dominator found")
		}
		cand = cand.Preds[0]
	}
}

// ReversePostOrder reorders the function's blocks in reverse post
// order, removing blocks unreachable from the entry. Fails with
// diag.ErrUnreachableExit when an infinite loop makes the exit block
// unreachable. Dominance is recomputed when the resulting CFG is
// loop-free.
func ReversePostOrder(f *ir.Function) error {
	var bbs []*ir.BasicBlock
	visited := mapset.NewThreadUnsafeSet[*ir.BasicBlock]()
	rpoWalk(f.Bbs[0], &bbs, visited)
	if !visited.Contains(f.Bbs[len(f.Bbs)-1]) {
		return diag.ErrUnreachableExit
	}
	if len(bbs) != len(f.Bbs) {
		var deadBBs []*ir.BasicBlock
		for _, bb := range f.Bbs {
			if !visited.Contains(bb) {
				deadBBs = append(deadBBs, bb)
			}
		}
		removeDeadBBs(deadBBs)
	}
	f.Bbs = bbs

	if !HasLoops(f) {
		calculateDominance(f)
	}
	return nil
}

// HasLoops detects a back-edge in one scan over the block order.
func HasLoops(f *ir.Function) bool {
	visited := mapset.NewThreadUnsafeSet[*ir.BasicBlock]()
	for _, bb := range f.Bbs {
		visited.Add(bb)
		for _, succ := range bb.Succs {
			if visited.Contains(succ) {
				return true
			}
		}
	}
	return false
}

// SimplifyCFG folds conditional branches whose condition is a literal
// into unconditional branches, dropping the not-taken edge from the
// successor's phis, and then recomputes the reverse post order.
func SimplifyCFG(f *ir.Function) error {
	for _, bb := range f.Bbs {
		term := bb.LastInst
		if term.Op != ir.OpBr || term.NofArgs != 1 {
			continue
		}
		cond := term.Args[0]
		if cond.Op != ir.OpValue {
			continue
		}
		takenBB := term.FalseBB
		notTakenBB := term.TrueBB
		if !cond.Value.IsZero() {
			takenBB, notTakenBB = notTakenBB, takenBB
		}
		for _, phi := range notTakenBB.Phis {
			phi.RemovePhiArg(bb)
		}
		ir.DestroyInst(term)
		bb.BuildBr(takenBB)
	}
	return ReversePostOrder(f)
}
