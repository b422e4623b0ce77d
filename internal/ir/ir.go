package ir

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"
)

// Module is the top-level container. It holds the pointer-size
// configuration and the functions under analysis (two functions,
// named "src" and "tgt", during refinement checking).
type Module struct {
	PtrBits       uint32
	PtrIDBits     uint32
	PtrOffsetBits uint32

	// Precomputed extract bounds for the id and offset pointer fields.
	PtrIDHigh     uint32
	PtrIDLow      uint32
	PtrOffsetHigh uint32
	PtrOffsetLow  uint32

	Functions []*Function
}

// NewModule creates a module for the given pointer layout. A pointer is
// PtrBits wide; its upper PtrIDBits are a signed memory id and its lower
// PtrOffsetBits are an offset.
func NewModule(ptrBits, ptrIDBits, ptrOffsetBits uint32) *Module {
	if ptrBits != 32 && ptrBits != 64 {
		panic("NewModule: pointer size must be 32 or 64")
	}
	if ptrBits != ptrIDBits+ptrOffsetBits {
		panic("NewModule: ptr_bits != ptr_id_bits + ptr_offset_bits")
	}
	return &Module{
		PtrBits:       ptrBits,
		PtrIDBits:     ptrIDBits,
		PtrOffsetBits: ptrOffsetBits,
		PtrIDHigh:     ptrOffsetBits + ptrIDBits - 1,
		PtrIDLow:      ptrOffsetBits,
		PtrOffsetHigh: ptrOffsetBits - 1,
		PtrOffsetLow:  0,
	}
}

// BuildFunction creates an empty function and appends it to the module.
func (m *Module) BuildFunction(name string) *Function {
	f := &Function{
		Module: m,
		Name:   name,
		values: make(map[valueKey]*Inst),
	}
	m.Functions = append(m.Functions, f)
	return f
}

// valueKey interns VALUE instructions per (literal, width) for
// widths <= 128. The literal is stored normalized mod 2^width.
type valueKey struct {
	lo, hi  uint64
	bitsize uint32
}

// Function owns an ordered list of basic blocks (first is the entry,
// last is the exit) and the VALUE interning map.
type Function struct {
	Module *Module
	Name   string
	Bbs    []*BasicBlock

	values        map[valueKey]*Inst
	lastValueInst *Inst
	nextBBID      int
	nextInstID    uint32
}

// BuildBB creates an empty basic block and appends it to the function.
func (f *Function) BuildBB() *BasicBlock {
	bb := &BasicBlock{Func: f, ID: f.nextBBID}
	f.nextBBID++
	f.Bbs = append(f.Bbs, bb)
	return bb
}

// Rename changes the function name.
func (f *Function) Rename(name string) {
	f.Name = name
}

// BasicBlock holds a list of phi instructions followed by a doubly
// linked list of ordinary instructions ending in one BR or RET.
// Preds and Succs mirror the branch targets of the terminators.
// Dom and PostDom are populated only when the CFG is loop-free.
type BasicBlock struct {
	Func *Function
	ID   int

	Phis      []*Inst
	FirstInst *Inst
	LastInst  *Inst

	Preds []*BasicBlock
	Succs []*BasicBlock

	Dom     mapset.Set[*BasicBlock]
	PostDom mapset.Set[*BasicBlock]
}

// PhiArg is one (value, predecessor) pair of a phi node.
type PhiArg struct {
	Inst *Inst
	BB   *BasicBlock
}

// Inst is a single SSA value or effect. Args holds up to three operand
// links; the branch targets, literal value, and phi argument list are
// opcode-specific and valid only for BR, VALUE, and PHI respectively.
type Inst struct {
	ID      uint32
	Op      Op
	Bitsize uint32
	NofArgs int
	Args    [3]*Inst

	UsedBy mapset.Set[*Inst]

	BB   *BasicBlock
	Prev *Inst
	Next *Inst

	// BR: DestBB for an unconditional branch, TrueBB/FalseBB for a
	// conditional one.
	DestBB  *BasicBlock
	TrueBB  *BasicBlock
	FalseBB *BasicBlock

	// VALUE: the 128-bit literal, normalized mod 2^Bitsize.
	Value uint256.Int

	// PHI: one argument per predecessor.
	PhiArgs []PhiArg
}

func (f *Function) newInst(op Op) *Inst {
	inst := &Inst{
		ID:     f.nextInstID,
		Op:     op,
		UsedBy: mapset.NewThreadUnsafeSet[*Inst](),
	}
	f.nextInstID++
	return inst
}

// IsCommutative reports whether the operands may be swapped.
func (inst *Inst) IsCommutative() bool { return inst.Op.IsCommutative() }

// HasLHS reports whether the instruction produces a value.
func (inst *Inst) HasLHS() bool { return inst.Op.HasLHS() }

// Class returns the opcode class.
func (inst *Inst) Class() Class { return inst.Op.Class() }

// ValueUint64 returns the low 64 bits of a VALUE literal.
func (inst *Inst) ValueUint64() uint64 {
	if inst.Op != OpValue {
		panic("ValueUint64: not a value instruction")
	}
	return inst.Value[0]
}

// GetPhiArg returns the phi argument for the given predecessor.
func (inst *Inst) GetPhiArg(bb *BasicBlock) *Inst {
	for _, arg := range inst.PhiArgs {
		if arg.BB == bb {
			return arg.Inst
		}
	}
	panic("GetPhiArg: no argument for basic block")
}

// AddPhiArg appends a (value, predecessor) pair to a phi node.
func (inst *Inst) AddPhiArg(arg *Inst, bb *BasicBlock) {
	if inst.Op != OpPhi {
		panic("AddPhiArg: not a phi instruction")
	}
	if arg.Bitsize != inst.Bitsize {
		panic("AddPhiArg: argument width mismatch")
	}
	inst.PhiArgs = append(inst.PhiArgs, PhiArg{Inst: arg, BB: bb})
	arg.UsedBy.Add(inst)
}

// RemovePhiArg removes the argument coming from bb. The argument's
// used_by entry is dropped unless the value feeds another of the
// phi's arguments.
func (inst *Inst) RemovePhiArg(bb *BasicBlock) {
	idx := -1
	for i, arg := range inst.PhiArgs {
		if arg.BB == bb {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic("RemovePhiArg: no argument for basic block")
	}
	argInst := inst.PhiArgs[idx].Inst
	inst.PhiArgs = append(inst.PhiArgs[:idx], inst.PhiArgs[idx+1:]...)

	for _, arg := range inst.PhiArgs {
		if arg.Inst == argInst {
			return
		}
	}
	argInst.UsedBy.Remove(inst)
}

// RemovePhiArgs clears the phi argument list.
func (inst *Inst) RemovePhiArgs() {
	for len(inst.PhiArgs) > 0 {
		inst.RemovePhiArg(inst.PhiArgs[len(inst.PhiArgs)-1].BB)
	}
}

func (inst *Inst) updateUses() {
	for i := 0; i < inst.NofArgs; i++ {
		inst.Args[i].UsedBy.Add(inst)
	}
}

// InsertAfter links an unattached instruction directly after pos.
func (inst *Inst) InsertAfter(pos *Inst) {
	if inst.BB != nil || inst.Prev != nil || inst.Next != nil {
		panic("InsertAfter: instruction is already linked")
	}
	inst.BB = pos.BB
	inst.updateUses()
	if pos.Next != nil {
		pos.Next.Prev = inst
	}
	inst.Next = pos.Next
	pos.Next = inst
	inst.Prev = pos
	if pos == inst.BB.LastInst {
		inst.BB.LastInst = inst
	}
}

// InsertBefore links an unattached instruction directly before pos.
func (inst *Inst) InsertBefore(pos *Inst) {
	if inst.BB != nil || inst.Prev != nil || inst.Next != nil {
		panic("InsertBefore: instruction is already linked")
	}
	inst.BB = pos.BB
	inst.updateUses()
	if pos.Prev != nil {
		pos.Prev.Next = inst
	}
	inst.Prev = pos.Prev
	pos.Prev = inst
	inst.Next = pos
	if pos == inst.BB.FirstInst {
		inst.BB.FirstInst = inst
	}
}

// ReplaceUseWith redirects one use of inst to newInst.
func (inst *Inst) ReplaceUseWith(use, newInst *Inst) {
	if use.Op == OpPhi {
		for i := range use.PhiArgs {
			if use.PhiArgs[i].Inst == inst {
				use.PhiArgs[i].Inst = newInst
			}
		}
	} else {
		for i := 0; i < use.NofArgs; i++ {
			if use.Args[i] == inst {
				use.Args[i] = newInst
			}
		}
	}
	newInst.UsedBy.Add(use)
	if !inst.UsedBy.Contains(use) {
		panic("ReplaceUseWith: not a use of this instruction")
	}
	inst.UsedBy.Remove(use)
}

// ReplaceAllUsesWith redirects every use of inst to newInst.
func (inst *Inst) ReplaceAllUsesWith(newInst *Inst) {
	for use := range inst.UsedBy.Iter() {
		if use.Op == OpPhi {
			for i := range use.PhiArgs {
				if use.PhiArgs[i].Inst == inst {
					use.PhiArgs[i].Inst = newInst
				}
			}
		} else {
			for i := 0; i < use.NofArgs; i++ {
				if use.Args[i] == inst {
					use.Args[i] = newInst
				}
			}
		}
		newInst.UsedBy.Add(use)
	}
	inst.UsedBy.Clear()
}

// MoveBefore unlinks inst from its block and re-links it before pos.
func (inst *Inst) MoveBefore(pos *Inst) {
	if inst.BB == nil {
		panic("MoveBefore: instruction is not linked")
	}
	if inst.Op == OpPhi || pos.Op == OpPhi {
		panic("MoveBefore: cannot move phi instructions")
	}
	bb := inst.BB
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
	inst.Next = nil
	inst.Prev = nil
	inst.BB = nil

	inst.InsertBefore(pos)
}
