// Package lower converts the typed source tree into the SSA IR,
// making undefined behavior, memory accesses, and uninitialized
// values explicit. Each operation follows the source-language
// semantics: arithmetic that may overflow gets a wraps-check feeding
// a UB instruction, memory accesses are unrolled into byte-granular
// loads and stores guarded by bounds checks, and every value carries
// an optional mask of undefined bits.
package lower

import (
	"github.com/Pheeck/smtgcc/internal/cfg"
	"github.com/Pheeck/smtgcc/internal/diag"
	"github.com/Pheeck/smtgcc/internal/ir"
	"github.com/Pheeck/smtgcc/internal/tree"
)

const (
	// MaxMemoryUnrollLimit is the largest object size, in bytes, that
	// loads, stores, and initializers are unrolled for.
	MaxMemoryUnrollLimit = 10000

	// AnonMemSize is the size of the anonymous memory object every
	// function gets for unconstrained pointers.
	AnonMemSize = 128

	// MaxBBs and MaxNofInsts bound the converted function. Functions
	// above these limits are useless to check as the solver cannot
	// handle them.
	MaxBBs      = 1000
	MaxNofInsts = 100000
)

// Memory object flags, stored in the third MEMORY argument.
const (
	MemConst  = 1 // writing is UB
	MemKeep   = 2 // stays valid after the function returns
	MemUninit = 4 // starts fully uninitialized
)

// State is shared between the source and target functions of one
// check so both sides agree on memory ids and symbolic value indices.
type State struct {
	// Decl2ID maps declarations to their memory ids.
	Decl2ID map[*tree.Decl]int64

	// ParamIsUnsigned records, per parameter, whether the ABI
	// zero-extends it. The assembly front end needs this.
	ParamIsUnsigned []bool

	idLocal     int64
	idGlobal    int64
	symbolicIdx uint32
	clzIdx      map[uint32]uint32
}

// NewState returns a state with no ids assigned. The first local
// memory gets id -1 and the first global id 3; ids 1 and 2 are
// reserved for the constructor object and the anonymous memory.
func NewState() *State {
	return &State{
		Decl2ID:  make(map[*tree.Decl]int64),
		idGlobal: 2,
		clzIdx:   make(map[uint32]uint32),
	}
}

// value is an expression result: the instruction and an optional
// same-width mask with ones for undefined bits.
type value struct {
	inst  *ir.Inst
	undef *ir.Inst
}

// Converter holds the per-function lowering state.
type Converter struct {
	m    *ir.Module
	st   *State
	unit *tree.Unit
	src  *tree.Function
	f    *ir.Function

	bbMap map[*tree.Block]*ir.BasicBlock
	// switchBBs records the compare-and-branch blocks a switch was
	// expanded into, so phi arguments from the switch block can be
	// redirected to the block that actually branches to them.
	switchBBs map[*ir.BasicBlock][]*ir.BasicBlock

	ssaVal    map[*tree.SSAName]value
	paramInst map[*tree.Decl]*ir.Inst
	declMem   map[*tree.Decl]*ir.Inst
	// memFlags tracks, for values loaded from memory, the per-byte
	// sign-extended memory flags, so stores can write them back.
	memFlags  map[*ir.Inst]*ir.Inst
	bb2retval map[*ir.BasicBlock]value

	retType    *tree.Type
	retBitsize uint32
}

// conversionError carries the NotImplemented error through the
// panic-based abort path of the converter.
type conversionError struct{ err error }

func (c *Converter) abort(format string, args ...any) {
	panic(conversionError{err: diag.NotImplemented(format, args...)})
}

// ConvertFunction lowers fn into a new IR function in m. Constructs
// the IR cannot express make it fail with a NotImplemented error; the
// caller is expected to skip such functions.
func ConvertFunction(m *ir.Module, st *State, unit *tree.Unit, fn *tree.Function) (f *ir.Function, err error) {
	c := &Converter{
		m:         m,
		st:        st,
		unit:      unit,
		src:       fn,
		bbMap:     make(map[*tree.Block]*ir.BasicBlock),
		switchBBs: make(map[*ir.BasicBlock][]*ir.BasicBlock),
		ssaVal:    make(map[*tree.SSAName]value),
		paramInst: make(map[*tree.Decl]*ir.Inst),
		declMem:   make(map[*tree.Decl]*ir.Inst),
		memFlags:  make(map[*ir.Inst]*ir.Inst),
		bb2retval: make(map[*ir.BasicBlock]value),
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ce, ok := r.(conversionError)
		if !ok {
			panic(r)
		}
		if c.f != nil {
			ir.DestroyFunction(c.f)
		}
		f, err = nil, ce.err
	}()

	c.f = m.BuildFunction(fn.Name)
	if len(fn.Blocks) == 0 {
		c.abort("convert: function without blocks")
	}
	for _, b := range fn.Blocks {
		c.bbMap[b] = c.f.BuildBB()
	}

	c.processVariables()
	c.processFuncArgs()
	c.processInstructions()

	if err := ir.Validate(c.f); err != nil {
		return nil, err
	}

	// Some inputs are far too large for the solver to handle, e.g. a
	// huge switch after expansion, or a large memset after memory
	// expansion. It is useless to continue checking such IR. The
	// check is done late, after building as much as possible, in
	// order to stress the converter.
	if len(c.f.Bbs) > MaxBBs {
		c.abort("too many basic blocks")
	}
	for _, bb := range c.f.Bbs {
		nofInsts := 0
		for inst := bb.FirstInst; inst != nil; inst = inst.Next {
			nofInsts++
			if nofInsts > MaxNofInsts {
				c.abort("too many instructions in a BB")
			}
		}
	}

	if err := cfg.SimplifyCFG(c.f); err != nil {
		ir.DestroyFunction(c.f)
		return nil, err
	}
	if err := ir.Validate(c.f); err != nil {
		return nil, err
	}
	return c.f, nil
}

// ConvertUnit lowers every function of the unit, in order. Functions
// the converter cannot express are reported through the returned map
// of skipped functions rather than failing the whole unit.
func ConvertUnit(m *ir.Module, st *State, unit *tree.Unit) (map[string]error, error) {
	skipped := make(map[string]error)
	for _, fn := range unit.Functions {
		_, err := ConvertFunction(m, st, unit, fn)
		if err == nil {
			continue
		}
		if diag.IsNotImplemented(err) {
			skipped[fn.Name] = err
			continue
		}
		return nil, err
	}
	return skipped, nil
}

// checkType rejects types the IR cannot represent.
func (c *Converter) checkType(t *tree.Type) {
	switch t.Kind {
	case tree.Float:
		switch t.Bits {
		case 16, 32, 64, 128:
		default:
			c.abort("unsupported floating point type (%d bits)", t.Bits)
		}
	case tree.Pointer:
		if t.Bits != c.m.PtrBits {
			c.abort("pointer width %d does not match the module", t.Bits)
		}
	case tree.Array, tree.Vector, tree.Complex:
		c.checkType(t.Elem)
	}
}

func bitsizeForType(t *tree.Type) uint32 {
	return t.Precision()
}

func bytesizeForType(t *tree.Type) uint64 {
	return t.Bytes
}

func (c *Converter) buildUBIfNotZero(bb *ir.BasicBlock, inst *ir.Inst) {
	zero := bb.ValueInst(0, inst.Bitsize)
	cmp := bb.BuildInst2(ir.OpNE, inst, zero)
	bb.BuildInst1(ir.OpUB, cmp)
}
