package lower

import (
	"unicode"

	"github.com/holiman/uint256"

	"github.com/Pheeck/smtgcc/internal/ir"
	"github.com/Pheeck/smtgcc/internal/tree"
)

// localMemID returns the memory id for a local declaration, assigning
// the next negative id on first use. Ids are shared through the state
// so both functions of a check agree on them.
func (c *Converter) localMemID(decl *tree.Decl) int64 {
	if id, ok := c.st.Decl2ID[decl]; ok {
		return id
	}
	if c.st.idLocal <= -(int64(1) << (c.m.PtrIDBits - 1)) {
		c.abort("too many local variables")
	}
	c.st.idLocal--
	c.st.Decl2ID[decl] = c.st.idLocal
	return c.st.idLocal
}

func (c *Converter) globalMemID(decl *tree.Decl) int64 {
	if id, ok := c.st.Decl2ID[decl]; ok {
		return id
	}
	if c.st.idGlobal >= int64(1)<<(c.m.PtrIDBits-2) {
		c.abort("too many global variables")
	}
	c.st.idGlobal++
	c.st.Decl2ID[decl] = c.st.idGlobal
	return c.st.idGlobal
}

// processVariables creates the memory objects for the return value,
// the anonymous memory, globals, and local variables.
func (c *Converter) processVariables() {
	c.retType = c.src.RetType
	if c.retType == nil || c.retType.Kind == tree.Void {
		c.retBitsize = 0
	} else {
		c.retBitsize = bitsizeForType(c.retType)
		if c.src.Result != nil {
			id := c.localMemID(c.src.Result)
			size := bytesizeForType(c.retType)
			memoryInst := c.buildMemoryInst(id, size, MemUninit)
			c.declMem[c.src.Result] = memoryInst
		}
	}

	// An anonymous memory object unconstrained pointers may refer to.
	c.buildMemoryInst(2, AnonMemSize, MemKeep)

	// Global variables.
	name2decl := make(map[string]*tree.Decl)
	for _, decl := range c.unit.Globals {
		if decl.Alias != "" {
			continue
		}
		size := bytesizeForType(decl.Type)
		if size > MaxMemoryUnrollLimit {
			c.abort("too large global variable")
		}
		if size == 0 {
			c.abort("global variable of unknown size")
		}

		// Artificial decls hold data introduced by the compiler, such
		// as switch tables, so normal unconstrained pointers cannot
		// point to them. Give these a local id.
		var id int64
		if decl.Artificial {
			id = c.localMemID(decl)
		} else {
			id = c.globalMemID(decl)
		}
		var flags int64
		if decl.ReadOnly {
			flags |= MemConst
		}
		c.declMem[decl] = c.buildMemoryInst(id, size, flags)
		if decl.Name != "" {
			name2decl[decl.Name] = decl
		}
	}

	for _, decl := range c.unit.Globals {
		if decl.Alias == "" {
			continue
		}
		aliasDecl, ok := name2decl[decl.Alias]
		if !ok {
			c.abort("unknown alias %s", decl.Alias)
		}
		c.declMem[decl] = c.declMem[aliasDecl]
		name2decl[decl.Name] = aliasDecl
	}

	// Initialization must come after all variables exist as a pointer
	// may be initialized with the address of a later variable.
	for _, decl := range c.unit.Globals {
		if decl.Alias == "" && decl.ReadOnly {
			c.initVar(decl, c.declMem[decl])
		}
	}

	// Local variables.
	for _, decl := range c.src.Decls {
		// Local static decls are included in the globals, so their
		// memory objects have already been created.
		if _, ok := c.declMem[decl]; ok {
			if !decl.Static {
				c.abort("duplicate local variable")
			}
			continue
		}
		if decl.Init != nil {
			c.abort("local variable with initializer")
		}

		size := bytesizeForType(decl.Type)
		if size > MaxMemoryUnrollLimit {
			c.abort("too large local variable")
		}

		id := c.localMemID(decl)
		flags := int64(MemUninit)
		if decl.ReadOnly {
			flags |= MemConst
		}
		c.declMem[decl] = c.buildMemoryInst(id, size, flags)
	}
}

// processFuncArgs creates the parameter instructions and the UB
// constraints the ABI and attributes put on the incoming values.
func (c *Converter) processFuncArgs() {
	bb := c.f.Bbs[0]
	for i, p := range c.src.Params {
		t := p.Decl.Type
		c.checkType(t)
		bitsize := bitsizeForType(t)
		if bitsize == 0 {
			c.abort("parameter size == 0")
		}

		typeIsUnsigned := t.Kind == tree.Integer && t.Unsigned && t.Bits != 32
		c.st.ParamIsUnsigned = append(c.st.ParamIsUnsigned, typeIsUnsigned)

		if i == 0 && p.This {
			if t.Kind != tree.Pointer {
				c.abort("this parameter is not a pointer")
			}
			// The constructed object. A constant id is used as it must
			// be the same in both functions of a check.
			size := bytesizeForType(t.Elem)
			paramInst := c.buildMemoryInst(1, size, MemUninit|MemKeep)
			c.paramInst[p.Decl] = paramInst
			continue
		}

		paramNbr := bb.ValueInst(int64(i), 32)
		paramBitsize := bb.ValueInst(int64(bitsize), 32)
		paramInst := bb.BuildInst2(ir.OpParam, paramNbr, paramBitsize)
		c.paramInst[p.Decl] = paramInst

		// Incoming pointers cannot point to local variables or to the
		// object a constructor is building.
		if t.Kind == tree.Pointer {
			id := bb.BuildExtractID(paramInst)
			zero := bb.ValueInst(0, c.m.PtrIDBits)
			cond0 := bb.BuildInst2(ir.OpSLT, id, zero)
			one := bb.ValueInst(1, c.m.PtrIDBits)
			cond1 := bb.BuildInst2(ir.OpEQ, id, one)
			cond := bb.BuildInst2(ir.OpOr, cond0, cond1)
			bb.BuildInst1(ir.OpUB, cond)
		}

		c.canonicalNaNCheck(bb, paramInst, t, nil)

		if p.NonNull && t.Kind == tree.Pointer {
			zero := bb.ValueInst(0, paramInst.Bitsize)
			cond := bb.BuildInst2(ir.OpEQ, paramInst, zero)
			bb.BuildInst1(ir.OpUB, cond)
		}

		// Interprocedural constant propagation: bits where the mask is
		// clear are known to have the recorded value.
		if p.Mask != nil && p.Value != nil {
			var notMask uint256.Int
			notMask.Not(p.Mask)
			mInst := bb.ValueInstU256(&notMask, paramInst.Bitsize)
			vInst := bb.ValueInstU256(p.Value, paramInst.Bitsize)
			andInst := bb.BuildInst2(ir.OpAnd, paramInst, mInst)
			cond := bb.BuildInst2(ir.OpNE, vInst, andInst)
			bb.BuildInst1(ir.OpUB, cond)
		}
	}
}

// processAssign lowers one assignment statement.
func (c *Converter) processAssign(bb *ir.BasicBlock, a *tree.Assign) {
	lhs := a.LHS
	c.checkType(lhs.ExprType())

	if _, ok := lhs.(*tree.SSAName); !ok {
		if a.Code != tree.CodeNop || a.NofArgs != 1 {
			c.abort("store with a computed right-hand side")
		}
		if ctor, ok := a.Args[0].(*tree.Constructor); ok && ctor.Type.Kind != tree.Vector {
			c.processCtorStore(bb, lhs, ctor)
		} else {
			c.processStore(bb, lhs, a.Args[0])
		}
		return
	}

	lhsType := lhs.ExprType()
	var res value

	switch a.NofArgs {
	case 3:
		switch a.Code {
		case tree.CodeSad, tree.CodeDotProd:
			arg1 := c.tree2instUndefCheck(bb, a.Args[0])
			arg2 := c.tree2instUndefCheck(bb, a.Args[1])
			arg3 := c.tree2instUndefCheck(bb, a.Args[2])
			arg1Type := a.Args[0].ExprType()
			arg2Type := a.Args[1].ExprType()
			arg3Type := a.Args[2].ExprType()
			if lhsType.Kind == tree.Vector {
				res.inst = c.processTernaryVec(bb, a.Code, arg1, arg2, arg3, arg1Type, arg2Type, arg3Type)
			} else {
				res.inst = c.processTernary(bb, a.Code, arg1, arg2, arg3, arg1Type, arg2Type, arg3Type)
			}
		case tree.CodeVecPerm:
			arg1 := c.tree2inst(bb, a.Args[0])
			arg2 := c.tree2inst(bb, a.Args[1])
			arg3 := c.tree2instUndefCheck(bb, a.Args[2])
			res = c.processVecPerm(bb, arg1, arg2, arg3, a.Args[0].ExprType(), a.Args[2].ExprType())
		case tree.CodeVecCond:
			arg1 := c.tree2instUndefCheck(bb, a.Args[0])
			arg2 := c.tree2inst(bb, a.Args[1])
			arg3 := c.tree2inst(bb, a.Args[2])
			res = c.processVecCond(bb, arg1, arg2, arg3, a.Args[0].ExprType(), a.Args[1].ExprType())
		case tree.CodeCond:
			condType := a.Args[0].ExprType()
			arg1 := c.tree2instUndefCheck(bb, a.Args[0])
			if bitsizeForType(condType) != 1 {
				arg1 = bb.BuildExtractBit(arg1, 0)
			}
			arg2 := c.tree2inst(bb, a.Args[1])
			arg3 := c.tree2inst(bb, a.Args[2])
			if arg2.undef != nil || arg3.undef != nil {
				arg2Undef := arg2.undef
				arg3Undef := arg3.undef
				if arg2Undef == nil {
					arg2Undef = bb.ValueInst(0, arg2.inst.Bitsize)
				}
				if arg3Undef == nil {
					arg3Undef = bb.ValueInst(0, arg3.inst.Bitsize)
				}
				res.undef = bb.BuildInst3(ir.OpITE, arg1, arg2Undef, arg3Undef)
			}
			res.inst = bb.BuildInst3(ir.OpITE, arg1, arg2.inst, arg3.inst)
		case tree.CodeBitInsert:
			arg1 := c.tree2inst(bb, a.Args[0])
			arg2 := c.tree2inst(bb, a.Args[1])
			posConst, ok := a.Args[2].(*tree.IntConst)
			if !ok {
				c.abort("bit_insert: non-constant position")
			}
			bitPos := uint32(posConst.Value.Uint64())
			hasUndef := arg1.undef != nil || arg2.undef != nil
			arg1Undef := arg1.undef
			arg2Undef := arg2.undef
			if hasUndef {
				if arg1Undef == nil {
					arg1Undef = bb.ValueInst(0, arg1.inst.Bitsize)
				}
				if arg2Undef == nil {
					arg2Undef = bb.ValueInst(0, arg2.inst.Bitsize)
				}
			}
			if bitPos > 0 {
				extract := bb.BuildTrunc(arg1.inst, bitPos)
				res.inst = bb.BuildInst2(ir.OpConcat, arg2.inst, extract)
				if hasUndef {
					extractUndef := bb.BuildTrunc(arg1Undef, bitPos)
					res.undef = bb.BuildInst2(ir.OpConcat, arg2Undef, extractUndef)
				}
			} else {
				res.inst = arg2.inst
				if hasUndef {
					res.undef = arg2Undef
				}
			}
			if bitPos+arg2.inst.Bitsize != arg1.inst.Bitsize {
				high := bb.ValueInst(int64(arg1.inst.Bitsize-1), 32)
				low := bb.ValueInst(int64(bitPos+arg2.inst.Bitsize), 32)
				extract := bb.BuildInst3(ir.OpExtract, arg1.inst, high, low)
				res.inst = bb.BuildInst2(ir.OpConcat, extract, res.inst)
				if hasUndef {
					extractUndef := bb.BuildInst3(ir.OpExtract, arg1Undef, high, low)
					res.undef = bb.BuildInst2(ir.OpConcat, extractUndef, res.undef)
				}
			}
		default:
			c.abort("process_assign: unhandled ternary code %d", a.Code)
		}

	case 2:
		arg1Type := a.Args[0].ExprType()
		arg2Type := a.Args[1].ExprType()
		switch {
		case lhsType.Kind == tree.Complex && a.Code == tree.CodeComplexExpr:
			arg1 := c.tree2inst(bb, a.Args[0])
			arg2 := c.tree2inst(bb, a.Args[1])
			inst1 := c.toMemRepr(bb, arg1.inst, arg1Type)
			inst2 := c.toMemRepr(bb, arg2.inst, arg2Type)
			res.inst = bb.BuildInst2(ir.OpConcat, inst2, inst1)
			if arg1.undef != nil || arg2.undef != nil {
				arg1Undef := arg1.undef
				arg2Undef := arg2.undef
				if arg1Undef == nil {
					arg1Undef = bb.ValueInst(0, inst1.Bitsize)
				}
				if arg2Undef == nil {
					arg2Undef = bb.ValueInst(0, inst2.Bitsize)
				}
				res.undef = bb.BuildInst2(ir.OpConcat, arg2Undef, arg1Undef)
			}
		case lhsType.Kind == tree.Complex:
			arg1 := c.tree2instUndefCheck(bb, a.Args[0])
			arg2 := c.tree2instUndefCheck(bb, a.Args[1])
			res.inst = c.processBinaryComplex(bb, a.Code, arg1, arg2, lhsType)
		case arg1Type.Kind == tree.Complex:
			arg1 := c.tree2instUndefCheck(bb, a.Args[0])
			arg2 := c.tree2instUndefCheck(bb, a.Args[1])
			res.inst = c.processBinaryComplexCmp(bb, a.Code, arg1, arg2, lhsType, arg1Type)
		case lhsType.Kind == tree.Vector:
			arg1 := c.tree2inst(bb, a.Args[0])
			arg2 := c.tree2inst(bb, a.Args[1])
			res = c.processBinaryVec(bb, a.Code, arg1, arg2, lhsType, arg1Type, arg2Type)
		default:
			arg1 := c.tree2inst(bb, a.Args[0])
			arg2 := c.tree2inst(bb, a.Args[1])
			res = c.processBinaryScalar(bb, a.Code, arg1, arg2, lhsType, arg1Type, arg2Type)
		}

	case 1:
		arg1Type := a.Args[0].ExprType()
		switch {
		case a.Code == tree.CodeNop && lhsType == arg1Type:
			res = c.tree2inst(bb, a.Args[0])
		case a.Code == tree.CodeRealPart:
			arg1 := c.tree2inst(bb, a.Args[0])
			inst := bb.BuildTrunc(arg1.inst, arg1.inst.Bitsize/2)
			res.inst = c.fromMemRepr(bb, inst, lhsType)
			if arg1.undef != nil {
				undef := bb.BuildTrunc(arg1.undef, arg1.undef.Bitsize/2)
				res.undef = c.fromMemRepr(bb, undef, lhsType)
			}
		case a.Code == tree.CodeImagPart:
			arg1 := c.tree2inst(bb, a.Args[0])
			high := bb.ValueInst(int64(arg1.inst.Bitsize-1), 32)
			low := bb.ValueInst(int64(arg1.inst.Bitsize/2), 32)
			inst := bb.BuildInst3(ir.OpExtract, arg1.inst, high, low)
			res.inst = c.fromMemRepr(bb, inst, lhsType)
			if arg1.undef != nil {
				undef := bb.BuildInst3(ir.OpExtract, arg1.undef, high, low)
				res.undef = c.fromMemRepr(bb, undef, lhsType)
			}
		case lhsType.Kind == tree.Complex || arg1Type.Kind == tree.Complex:
			arg1 := c.tree2instUndefCheck(bb, a.Args[0])
			res.inst = c.processUnaryComplex(bb, a.Code, arg1, lhsType)
		case lhsType.Kind == tree.Vector:
			arg1 := c.tree2inst(bb, a.Args[0])
			res = c.processUnaryVec(bb, a.Code, arg1, lhsType.Elem, arg1Type.Elem)
		default:
			arg1 := c.tree2inst(bb, a.Args[0])
			res = c.processUnaryScalar(bb, a.Code, arg1, lhsType, arg1Type)
		}

	default:
		c.abort("process_assign: no arguments")
	}

	c.defineSSA(bb, lhs, res)
}

// processAsm rejects everything but empty templates, which only
// constrain optimizations in ways that do not matter here.
func (c *Converter) processAsm(a *tree.Asm) {
	for _, r := range a.Template {
		if !unicode.IsSpace(r) {
			c.abort("inline asm")
		}
	}
}

func (c *Converter) buildLabelCond(bb *ir.BasicBlock, indexExpr tree.Expr, cs tree.SwitchCase) *ir.Inst {
	indexType := indexExpr.ExprType()
	index := c.tree2instUndefCheck(bb, indexExpr)
	low := c.tree2instUndefCheck(bb, cs.Low)
	low = c.typeConvert(bb, low, cs.Low.Type, indexType)
	if cs.High == nil {
		return bb.BuildInst2(ir.OpEQ, index, low)
	}
	high := c.tree2instUndefCheck(bb, cs.High)
	high = c.typeConvert(bb, high, cs.High.Type, indexType)
	op := ir.OpSGE
	if indexType.Unsigned {
		op = ir.OpUGE
	}
	condLow := bb.BuildInst2(op, index, low)
	condHigh := bb.BuildInst2(op, high, index)
	return bb.BuildInst2(ir.OpAnd, condLow, condHigh)
}

// processSwitch expands a switch to a chain of compare and branch.
func (c *Converter) processSwitch(switchBB *ir.BasicBlock, sw *tree.SwitchTerm) {
	// The expansion complicates the phi handling: phi arguments from
	// the block containing the switch must use the block of the chain
	// that actually branches to them, so the new blocks are recorded.
	//
	// The chain starts with an unconditional branch to a new block
	// instead of placing the first compare at the end of the switch
	// block. This is not necessary, but it avoids confusion as the phi
	// argument from a switch then always comes from an introduced
	// block.
	bb := c.f.BuildBB()
	c.switchBBs[switchBB] = append(c.switchBBs[switchBB], bb)
	switchBB.BuildBr(bb)

	// Multiple cases may branch to the same block. Collect these so
	// only one branch is created, preventing complications when the
	// target contains phi nodes that would otherwise need adjusting
	// for the extra edges.
	var caseBlocks []*tree.Block
	block2cases := make(map[*tree.Block][]tree.SwitchCase)
	for _, cs := range sw.Cases {
		if cs.Dest == sw.Default {
			continue
		}
		if _, ok := block2cases[cs.Dest]; !ok {
			caseBlocks = append(caseBlocks, cs.Dest)
		}
		block2cases[cs.Dest] = append(block2cases[cs.Dest], cs)
	}

	if len(caseBlocks) == 0 {
		// All cases branch to the default case.
		bb.BuildBr(c.bbMap[sw.Default])
		return
	}

	for i, block := range caseBlocks {
		var cond *ir.Inst
		for _, cs := range block2cases[block] {
			labelCond := c.buildLabelCond(bb, sw.Index, cs)
			if cond != nil {
				cond = bb.BuildInst2(ir.OpOr, cond, labelCond)
			} else {
				cond = labelCond
			}
		}

		trueBB := c.bbMap[block]
		var falseBB *ir.BasicBlock
		if i != len(caseBlocks)-1 {
			falseBB = c.f.BuildBB()
			c.switchBBs[switchBB] = append(c.switchBBs[switchBB], falseBB)
		} else {
			falseBB = c.bbMap[sw.Default]
		}
		bb.BuildCondBr(cond, trueBB, falseBB)
		bb = falseBB
	}
}

// getPhiArgBB returns the block a phi argument flows in from,
// redirecting edges from an expanded switch to the block of the chain
// that branches to the phi's block.
func (c *Converter) getPhiArgBB(argBB, phiBB *ir.BasicBlock) *ir.BasicBlock {
	set, ok := c.switchBBs[argBB]
	if !ok {
		return argBB
	}
	for _, bb := range set {
		for _, pred := range phiBB.Preds {
			if pred == bb {
				return bb
			}
		}
	}
	c.abort("no switch block branches to the phi block")
	panic("unreachable")
}

func (c *Converter) processReturn(bb *ir.BasicBlock, r *tree.Return) {
	if r.Value != nil {
		c.bb2retval[bb] = c.tree2inst(bb, r.Value)
	}
}

// generateReturnInst builds the single ret of the function, merging
// the per-predecessor return values with phi nodes.
func (c *Converter) generateReturnInst(bb *ir.BasicBlock) {
	if c.retBitsize == 0 {
		bb.BuildRet()
		return
	}

	// Some predecessors of the exit block may not have a return
	// value: a return without a value, a call to unreachable, etc.
	// Create a dummy value, marked as undefined, for these to keep
	// the IR valid.
	{
		var retval, undef *ir.Inst
		entryBB := c.f.Bbs[0]
		for _, predBB := range bb.Preds {
			if _, ok := c.bb2retval[predBB]; ok {
				continue
			}
			if retval == nil {
				retval = entryBB.ValueInst(0, c.retBitsize)
				bitsize := c.retBitsize
				for bitsize > 0 {
					bs := min(bitsize, 128)
					bitsize -= bs
					inst := entryBB.ValueM1Inst(bs)
					if undef != nil {
						undef = entryBB.BuildInst2(ir.OpConcat, inst, undef)
					} else {
						undef = inst
					}
				}
			}
			c.bb2retval[predBB] = value{retval, undef}
		}
	}

	var retval, retvalUndef *ir.Inst
	if len(bb.Preds) == 1 {
		v := c.bb2retval[bb.Preds[0]]
		retval, retvalUndef = v.inst, v.undef
	} else {
		phi := bb.BuildPhi(c.retBitsize)
		phiUndef := bb.BuildPhi(c.retBitsize)
		needUndefPhi := false
		for _, predBB := range bb.Preds {
			v := c.bb2retval[predBB]
			phi.AddPhiArg(v.inst, predBB)
			retUndef := v.undef
			needUndefPhi = needUndefPhi || retUndef != nil
			if retUndef == nil {
				retUndef = predBB.ValueInst(0, c.retBitsize)
			}
			phiUndef.AddPhiArg(retUndef, predBB)
		}
		retval = phi
		if needUndefPhi {
			retvalUndef = phiUndef
		}
	}

	// Returning the address of a local variable is UB.
	if c.retType.Kind == tree.Pointer {
		memID := bb.BuildExtractID(retval)
		zero := bb.ValueInst(0, c.m.PtrIDBits)
		cond := bb.BuildInst2(ir.OpSLT, memID, zero)
		if retvalUndef != nil {
			zero2 := bb.ValueInst(0, retvalUndef.Bitsize)
			cond2 := bb.BuildInst2(ir.OpEQ, retvalUndef, zero2)
			cond = bb.BuildInst2(ir.OpAnd, cond, cond2)
		}
		bb.BuildInst1(ir.OpUB, cond)
	}

	if retvalUndef != nil {
		bb.BuildRet2(retval, retvalUndef)
	} else {
		bb.BuildRet1(retval)
	}
}

// processInstructions lowers the statements of every block, adds the
// terminators, and finally fills in the phi arguments.
func (c *Converter) processInstructions() {
	exit := c.src.Exit()
	for _, b := range c.src.Blocks {
		bb := c.bbMap[b]

		for _, phi := range b.Phis {
			if phi.Result.Type.Kind == tree.Void {
				// Phi nodes for the memory SSA virtual names.
				continue
			}
			bitwidth := bitsizeForType(phi.Result.Type)
			phiInst := bb.BuildPhi(bitwidth)
			phiUndef := bb.BuildPhi(bitwidth)
			c.constrainRange(bb, phi.Result, phiInst, phiUndef)
			c.ssaVal[phi.Result] = value{phiInst, phiUndef}
		}

		for _, stmt := range b.Stmts {
			switch s := stmt.(type) {
			case *tree.Assign:
				c.processAssign(bb, s)
			case *tree.Asm:
				c.processAsm(s)
			case *tree.Call:
				c.processCall(bb, s)
			case *tree.Return:
				c.processReturn(bb, s)
			default:
				c.abort("process_instructions: unknown statement")
			}
		}

		switch {
		case b.Switch != nil:
			c.processSwitch(bb, b.Switch)
		case len(b.Succs) == 0:
			if b != exit {
				// Not the exit block but without successors, e.g. a
				// block ending in a call to unreachable. Branch to the
				// real exit block as the IR only has one ret.
				bb.BuildBr(c.bbMap[exit])
			} else {
				c.generateReturnInst(bb)
			}
		case b.Cond != nil:
			arg1Type := b.Cond.Lhs.ExprType()
			arg2Type := b.Cond.Rhs.ExprType()
			arg1 := c.tree2instUndefCheck(bb, b.Cond.Lhs)
			arg2 := c.tree2instUndefCheck(bb, b.Cond.Rhs)
			boolType := tree.BoolType(1)
			var cond *ir.Inst
			if arg1Type.Kind == tree.Complex {
				cond = c.processBinaryComplexCmp(bb, b.Cond.Code, arg1, arg2, boolType, arg1Type)
			} else {
				cond = c.processBinaryScalarPlain(bb, b.Cond.Code, arg1, arg2, boolType, arg1Type, arg2Type)
			}
			bb.BuildCondBr(cond, c.bbMap[b.Cond.True], c.bbMap[b.Cond.False])
		default:
			if len(b.Succs) != 1 {
				c.abort("block with multiple successors but no condition")
			}
			bb.BuildBr(c.bbMap[b.Succs[0]])
		}
	}

	// All instructions exist now, so it is safe to add the phi
	// arguments.
	for _, b := range c.src.Blocks {
		phiBB := c.bbMap[b]
		for _, phi := range b.Phis {
			if phi.Result.Type.Kind == tree.Void {
				continue
			}
			pv := c.ssaVal[phi.Result]
			for _, arg := range phi.Args {
				argBB := c.getPhiArgBB(c.bbMap[arg.From], phiBB)
				av := c.tree2inst(argBB, arg.Value)
				pv.inst.AddPhiArg(av.inst, argBB)
				argUndef := av.undef
				if argUndef == nil {
					argUndef = argBB.ValueInst(0, av.inst.Bitsize)
				}
				pv.undef.AddPhiArg(argUndef, argBB)
			}
		}
	}
}
