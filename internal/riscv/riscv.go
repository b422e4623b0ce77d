// Package riscv parses RV64 assembly output of the compiler into an
// IR function. The register file is modeled as 32 REGISTER
// instructions written and read by the lowered instructions, so the
// result is checked against the source function without any register
// allocation reasoning.
package riscv

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/holiman/uint256"

	"github.com/Pheeck/smtgcc/internal/cfg"
	"github.com/Pheeck/smtgcc/internal/diag"
	"github.com/Pheeck/smtgcc/internal/ir"
)

// Bitsize is the register width of the target.
const Bitsize = 64

const maxLineLen = 1000

type lexeme uint8

const (
	lexLabel lexeme = iota
	lexLabelDef
	lexName
	lexInteger
	lexHex
	lexComma
	lexAssign
	lexLeftBracket
	lexRightBracket
)

type token struct {
	kind lexeme
	pos  int
	size int
}

type parser struct {
	file string
	line int
	buf  string

	tokens []token

	m       *ir.Module
	srcFunc *ir.Function
	// paramIsUnsigned records, per source parameter, whether the ABI
	// zero-extends it into its register.
	paramIsUnsigned []bool

	f         *ir.Function
	currentBB *ir.BasicBlock
	registers []*ir.Inst
	retBbs    []*ir.BasicBlock
	id2bb     map[uint32]*ir.BasicBlock
}

// parseError carries a ParseError through the panic-based abort path.
type parseError struct{ err error }

func (p *parser) errf(format string, args ...any) {
	panic(parseError{err: diag.Parse(p.file, p.line, format, args...)})
}

// Parse reads the target function from RV64 assembly text. The module
// must already hold the lowered source function, as the parameter
// setup and the return width are taken from it.
func Parse(file string, r io.Reader, m *ir.Module, paramIsUnsigned []bool) (f *ir.Function, err error) {
	if len(m.Functions) != 1 {
		return nil, diag.Parse(file, 0, "module must hold exactly the source function")
	}
	p := &parser{
		file:            file,
		m:               m,
		srcFunc:         m.Functions[0],
		paramIsUnsigned: paramIsUnsigned,
		id2bb:           make(map[uint32]*ir.BasicBlock),
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		pe, ok := r.(parseError)
		if !ok {
			panic(r)
		}
		if p.f != nil {
			ir.DestroyFunction(p.f)
		}
		f, err = nil, pe.err
	}()

	f = p.parse(r)
	if err := cfg.ReversePostOrder(f); err != nil {
		ir.DestroyFunction(f)
		return nil, err
	}
	return f, nil
}

// ParseFile is Parse on the named file.
func ParseFile(path string, m *ir.Module, paramIsUnsigned []bool) (*ir.Function, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, diag.Parse(path, 0, "could not open file: %v", err)
	}
	defer in.Close()
	return Parse(path, in, m, paramIsUnsigned)
}

func isDigit(ch byte) bool  { return ch >= '0' && ch <= '9' }
func isXDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}
func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}
func isAlnum(ch byte) bool { return isAlpha(ch) || isDigit(ch) }
func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' || ch == '\v' || ch == '\f'
}

// at returns the byte at pos, or 0 past the end of the line.
func (p *parser) at(pos int) byte {
	if pos >= len(p.buf) {
		return 0
	}
	return p.buf[pos]
}

func (p *parser) lexLabelOrLabelDef(pos int) int {
	startPos := pos
	pos++ // '.'
	if p.at(pos) != 'L' {
		p.errf("expected 'L' after '.'")
	}
	pos++
	if !isDigit(p.at(pos)) {
		p.errf("expected a digit after \".L\"")
	}
	pos++
	if isDigit(p.at(pos)) && p.at(pos-1) == '0' {
		p.errf("octal numbers are not supported in labels")
	}
	for isDigit(p.at(pos)) {
		pos++
	}
	if p.at(pos) == ':' {
		pos++
		p.tokens = append(p.tokens, token{lexLabelDef, startPos, pos - startPos})
	} else {
		p.tokens = append(p.tokens, token{lexLabel, startPos, pos - startPos})
	}
	return pos
}

func (p *parser) lexHexNumber(pos int) int {
	startPos := pos
	pos += 2 // "0x"
	if !isXDigit(p.at(pos)) {
		p.errf("expected a hex digit after 0x")
	}
	for isXDigit(p.at(pos)) {
		pos++
	}
	p.tokens = append(p.tokens, token{lexHex, startPos, pos - startPos})
	return pos
}

func (p *parser) lexInteger(pos int) int {
	startPos := pos
	if p.at(pos) == '-' {
		pos++
	}
	pos++
	if isDigit(p.at(pos)) && p.at(pos-1) == '0' {
		p.errf("octal numbers are not supported")
	}
	for isDigit(p.at(pos)) {
		pos++
	}
	p.tokens = append(p.tokens, token{lexInteger, startPos, pos - startPos})
	return pos
}

func (p *parser) lexHexOrInteger(pos int) int {
	if p.at(pos) == '0' && (p.at(pos+1) == 'x' || p.at(pos+1) == 'X') {
		return p.lexHexNumber(pos)
	}
	return p.lexInteger(pos)
}

func (p *parser) lexIdentifier(pos int) int {
	startPos := pos
	pos++
	for isAlnum(p.at(pos)) || p.at(pos) == '_' || p.at(pos) == '-' || p.at(pos) == '.' {
		pos++
	}
	p.tokens = append(p.tokens, token{lexName, startPos, pos - startPos})
	return pos
}

func (p *parser) lexLine() {
	p.tokens = p.tokens[:0]
	pos := 0
	for pos < len(p.buf) {
		for isSpace(p.at(pos)) {
			pos++
		}
		if p.at(pos) == ';' {
			// Comment to the end of the line.
			return
		}
		switch ch := p.at(pos); {
		case ch == 0:
			return
		case isDigit(ch) || ch == '-':
			pos = p.lexHexOrInteger(pos)
		case ch == '.' && p.at(pos+1) == 'L':
			pos = p.lexLabelOrLabelDef(pos)
		case isAlpha(ch) || ch == '_' || ch == '.':
			pos = p.lexIdentifier(pos)
		case ch == ',':
			p.tokens = append(p.tokens, token{lexComma, pos, 1})
			pos++
		case ch == '=':
			p.tokens = append(p.tokens, token{lexAssign, pos, 1})
			pos++
		case ch == '[':
			p.tokens = append(p.tokens, token{lexLeftBracket, pos, 1})
			pos++
		case ch == ']':
			p.tokens = append(p.tokens, token{lexRightBracket, pos, 1})
			pos++
		default:
			p.errf("syntax error")
		}
	}
}

func (p *parser) tokenString(tok token) string {
	return p.buf[tok.pos : tok.pos+tok.size]
}

func (p *parser) getU32(s string) uint32 {
	var value uint64
	for i := 0; i < len(s) && isDigit(s[i]); i++ {
		value = value*10 + uint64(s[i]-'0')
		if value > 0xffffffff {
			p.errf("too large decimal integer value")
		}
	}
	return uint32(value)
}

func (p *parser) getHex(s string) *uint256.Int {
	value := new(uint256.Int)
	for i := 2; i < len(s); i++ {
		if value.Gt(new(uint256.Int).Rsh(hexMax128, 4)) {
			p.errf("too large hexadecimal value")
		}
		ch := s[i]
		var nibble uint64
		switch {
		case isDigit(ch):
			nibble = uint64(ch - '0')
		case ch >= 'A' && ch <= 'F':
			nibble = 10 + uint64(ch-'A')
		default:
			nibble = 10 + uint64(ch-'a')
		}
		value.Lsh(value, 4)
		value.Or(value, uint256.NewInt(nibble))
	}
	return value
}

// hexMax128 bounds hexadecimal literals to 128 bits.
var hexMax128 = func() *uint256.Int {
	v := new(uint256.Int)
	v.Lsh(uint256.NewInt(1), 128)
	v.SubUint64(v, 1)
	return v
}()

func (p *parser) getHexOrInteger(idx int) *uint256.Int {
	if len(p.tokens) <= idx {
		p.errf("expected more arguments")
	}
	tok := p.tokens[idx]
	if tok.kind != lexHex && tok.kind != lexInteger {
		p.errf("expected a hexadecimal or decimal integer instead of %s",
			p.tokenString(tok))
	}

	s := p.tokenString(tok)
	negative := false
	if s[0] == '-' {
		negative = true
		s = s[1:]
	}
	var val *uint256.Int
	if tok.kind == lexInteger {
		val = uint256.NewInt(uint64(p.getU32(s)))
	} else {
		val = p.getHex(s)
	}
	if negative {
		val.Neg(val)
	}
	return val
}

// regNumber decodes a register name to an index in the register file.
// Only the argument and temporary registers (and zero) appear in the
// supported subset.
func (p *parser) regNumber(idx int) int {
	tok := p.tokens[idx]
	if tok.kind != lexName || (p.buf[tok.pos] != 'a' && p.buf[tok.pos] != 't') {
		p.errf("expected a register instead of %s", p.tokenString(tok))
	}
	name := p.tokenString(tok)
	if len(name) < 2 || len(name) > 3 || !isDigit(name[1]) ||
		(len(name) == 3 && !isDigit(name[2])) {
		p.errf("expected a register instead of %s", name)
	}
	value := int(name[1] - '0')
	if len(name) == 3 {
		value = value*10 + int(name[2]-'0')
	}
	if name[0] == 'a' {
		if value > 7 {
			p.errf("expected a register instead of %s", name)
		}
		return 10 + value
	}
	if value > 6 {
		p.errf("expected a register instead of %s", name)
	}
	if value < 3 {
		return 5 + value
	}
	return 28 - 3 + value
}

func (p *parser) getReg(idx int) *ir.Inst {
	if len(p.tokens) <= idx {
		p.errf("expected more arguments")
	}
	return p.registers[p.regNumber(idx)]
}

func (p *parser) getRegValue(idx int) *ir.Inst {
	if len(p.tokens) <= idx {
		p.errf("expected more arguments")
	}
	if p.tokenString(p.tokens[idx]) == "zero" {
		return p.currentBB.ValueInst(0, Bitsize)
	}
	return p.currentBB.BuildInst1(ir.OpRead, p.registers[p.regNumber(idx)])
}

// getImm lowers a 12-bit immediate operand, sign-extended to the
// register width.
func (p *parser) getImm(idx int) *ir.Inst {
	value := p.getHexOrInteger(idx)
	inst := p.currentBB.ValueInst(int64(uint32(value.Uint64())), 12)
	bitsize := p.currentBB.ValueInst(Bitsize, 32)
	return p.currentBB.BuildInst2(ir.OpSExt, inst, bitsize)
}

func (p *parser) labelBB(idx int, kind lexeme) *ir.BasicBlock {
	if len(p.tokens) <= idx {
		p.errf("expected more arguments")
	}
	tok := p.tokens[idx]
	if tok.kind != kind {
		p.errf("expected a label instead of %s", p.tokenString(tok))
	}
	id := p.getU32(p.tokenString(tok)[2:])
	if bb, ok := p.id2bb[id]; ok {
		return bb
	}
	bb := p.f.BuildBB()
	p.id2bb[id] = bb
	return bb
}

func (p *parser) getBB(idx int) *ir.BasicBlock {
	return p.labelBB(idx, lexLabel)
}

func (p *parser) getBBDef(idx int) *ir.BasicBlock {
	return p.labelBB(idx, lexLabelDef)
}

func (p *parser) getComma(idx int) {
	if len(p.tokens) <= idx || p.tokens[idx].kind != lexComma {
		p.errf("expected a ',' after %s", p.tokenString(p.tokens[idx-1]))
	}
}

func (p *parser) getEndOfLine(idx int) {
	if len(p.tokens) > idx {
		p.errf("expected end of line after %s", p.tokenString(p.tokens[idx-1]))
	}
}

func (p *parser) write(dest, res *ir.Inst) {
	p.currentBB.BuildInst2(ir.OpWrite, dest, res)
}

func (p *parser) sextToReg(inst *ir.Inst) *ir.Inst {
	bitsize := p.currentBB.ValueInst(Bitsize, 32)
	return p.currentBB.BuildInst2(ir.OpSExt, inst, bitsize)
}

// genArith lowers a three-operand ALU instruction. The "w" variants
// operate on the low 32 bits and sign-extend the result.
func (p *parser) genArith(op ir.Op, hasImm, w bool) {
	dest := p.getReg(1)
	p.getComma(2)
	arg1 := p.getRegValue(3)
	p.getComma(4)
	var arg2 *ir.Inst
	if hasImm {
		arg2 = p.getImm(5)
	} else {
		arg2 = p.getRegValue(5)
	}
	p.getEndOfLine(6)

	if w {
		arg1 = p.currentBB.BuildTrunc(arg1, 32)
		arg2 = p.currentBB.BuildTrunc(arg2, 32)
	}
	res := p.currentBB.BuildInst2(op, arg1, arg2)
	if w {
		res = p.sextToReg(res)
	}
	p.write(dest, res)
}

// genShift lowers a shift. The shift amount uses the low 5 or 6 bits
// of the operand depending on the operand width.
func (p *parser) genShift(op ir.Op, hasImm, w bool) {
	dest := p.getReg(1)
	p.getComma(2)
	arg1 := p.getRegValue(3)
	p.getComma(4)
	var arg2 *ir.Inst
	if hasImm {
		arg2 = p.getImm(5)
	} else {
		arg2 = p.getRegValue(5)
	}
	p.getEndOfLine(6)

	if w {
		arg1 = p.currentBB.BuildTrunc(arg1, 32)
		arg2 = p.currentBB.BuildTrunc(arg2, 5)
		bitsize := p.currentBB.ValueInst(32, 32)
		arg2 = p.currentBB.BuildInst2(ir.OpZExt, arg2, bitsize)
	} else {
		arg2 = p.currentBB.BuildTrunc(arg2, 6)
		bitsize := p.currentBB.ValueInst(Bitsize, 32)
		arg2 = p.currentBB.BuildInst2(ir.OpZExt, arg2, bitsize)
	}
	res := p.currentBB.BuildInst2(op, arg1, arg2)
	if w {
		res = p.sextToReg(res)
	}
	p.write(dest, res)
}

// genCmp lowers a comparison producing 0 or 1 in the full register.
func (p *parser) genCmp(op ir.Op, hasImm, w bool) {
	dest := p.getReg(1)
	p.getComma(2)
	arg1 := p.getRegValue(3)
	p.getComma(4)
	var arg2 *ir.Inst
	if hasImm {
		arg2 = p.getImm(5)
	} else {
		arg2 = p.getRegValue(5)
	}
	p.getEndOfLine(6)

	if w {
		arg1 = p.currentBB.BuildTrunc(arg1, 32)
		arg2 = p.currentBB.BuildTrunc(arg2, 32)
	}
	res := p.currentBB.BuildInst2(op, arg1, arg2)
	bitsize := p.currentBB.ValueInst(Bitsize, 32)
	res = p.currentBB.BuildInst2(ir.OpZExt, res, bitsize)
	p.write(dest, res)
}

// genCmpZero lowers the seqz/snez pseudo instructions.
func (p *parser) genCmpZero(op ir.Op, w bool) {
	dest := p.getReg(1)
	p.getComma(2)
	arg1 := p.getRegValue(3)
	p.getEndOfLine(4)

	if w {
		arg1 = p.currentBB.BuildTrunc(arg1, 32)
	}
	zero := p.currentBB.ValueInst(0, arg1.Bitsize)
	res := p.currentBB.BuildInst2(op, arg1, zero)
	bitsize := p.currentBB.ValueInst(Bitsize, 32)
	res = p.currentBB.BuildInst2(ir.OpZExt, res, bitsize)
	p.write(dest, res)
}

// genCondBranch lowers a conditional branch. The fallthrough edge goes
// to a new block the following instructions are placed in.
func (p *parser) genCondBranch(op ir.Op) {
	arg1 := p.getRegValue(1)
	p.getComma(2)
	arg2 := p.getRegValue(3)
	p.getComma(4)
	trueBB := p.getBB(5)
	p.getEndOfLine(6)

	falseBB := p.f.BuildBB()
	cond := p.currentBB.BuildInst2(op, arg1, arg2)
	p.currentBB.BuildCondBr(cond, trueBB, falseBB)
	p.currentBB = falseBB
}

func (p *parser) parseInstruction() {
	if p.tokens[0].kind == lexLabelDef {
		bb := p.getBBDef(0)
		p.getEndOfLine(1)

		if p.currentBB != nil {
			p.currentBB.BuildBr(bb)
		}
		p.currentBB = bb
		return
	}
	if p.tokens[0].kind != lexName {
		p.errf("expected an instruction instead of %s", p.tokenString(p.tokens[0]))
	}
	name := p.tokenString(p.tokens[0])
	if p.currentBB == nil {
		p.errf("instruction %s is not reachable from a label", name)
	}

	isW := strings.HasSuffix(name, "w")
	switch name {
	case "add", "addw", "addi", "addiw":
		p.genArith(ir.OpAdd, name == "addi" || name == "addiw", isW)
	case "sub", "subw":
		p.genArith(ir.OpSub, false, isW)
	case "mul", "mulw":
		p.genArith(ir.OpMul, false, isW)
	case "div", "divw":
		p.genArith(ir.OpSDiv, false, isW)
	case "divu", "divuw":
		p.genArith(ir.OpUDiv, false, isW)
	case "rem", "remw":
		p.genArith(ir.OpSRem, false, isW)
	case "remu", "remuw":
		p.genArith(ir.OpURem, false, isW)
	case "and", "andw", "andi", "andiw":
		p.genArith(ir.OpAnd, name == "andi" || name == "andiw", isW)
	case "or", "orw", "ori", "oriw":
		p.genArith(ir.OpOr, name == "ori" || name == "oriw", isW)
	case "xor", "xorw", "xori", "xoriw":
		p.genArith(ir.OpXor, name == "xori" || name == "xoriw", isW)
	case "sll", "sllw", "slli", "slliw":
		p.genShift(ir.OpShl, name == "slli" || name == "slliw", isW)
	case "srl", "srlw", "srli", "srliw":
		p.genShift(ir.OpLshr, name == "srli" || name == "srliw", isW)
	case "sra", "sraw", "srai", "sraiw":
		p.genShift(ir.OpAshr, name == "srai" || name == "sraiw", isW)
	case "slt", "sltw", "slti", "sltiw":
		p.genCmp(ir.OpSLT, name == "slti" || name == "sltiw", isW)
	case "sltu", "sltuw", "sltiu", "sltiuw":
		p.genCmp(ir.OpULT, name == "sltiu" || name == "sltiuw", isW)
	case "sgt", "sgtw":
		// Pseudo instruction. Only "sgtuw" truncates to 32 bits, so
		// "sgtw" compares the full registers.
		p.genCmp(ir.OpSGT, false, name == "sgtuw")
	case "sgtu", "sgtuw":
		// Pseudo instruction.
		p.genCmp(ir.OpUGT, false, name == "sgtuw")
	case "seqz", "seqzw":
		p.genCmpZero(ir.OpEQ, isW)
	case "snez", "snezw":
		p.genCmpZero(ir.OpNE, isW)
	case "neg", "negw":
		dest := p.getReg(1)
		p.getComma(2)
		arg1 := p.getRegValue(3)
		p.getEndOfLine(4)
		if isW {
			arg1 = p.currentBB.BuildTrunc(arg1, 32)
		}
		res := p.currentBB.BuildInst1(ir.OpNeg, arg1)
		if isW {
			res = p.sextToReg(res)
		}
		p.write(dest, res)
	case "sext.w":
		dest := p.getReg(1)
		p.getComma(2)
		arg1 := p.getRegValue(3)
		p.getEndOfLine(4)
		res := p.currentBB.BuildTrunc(arg1, 32)
		res = p.sextToReg(res)
		p.write(dest, res)
	case "not":
		dest := p.getReg(1)
		p.getComma(2)
		arg1 := p.getRegValue(3)
		p.getEndOfLine(4)
		res := p.currentBB.BuildInst1(ir.OpNot, arg1)
		p.write(dest, res)
	case "mv":
		dest := p.getReg(1)
		p.getComma(2)
		arg1 := p.getRegValue(3)
		p.getEndOfLine(4)
		p.write(dest, arg1)
	case "li":
		dest := p.getReg(1)
		p.getComma(2)
		value := p.getHexOrInteger(3)
		arg1 := p.currentBB.ValueInstU256(value, Bitsize)
		p.getEndOfLine(4)
		p.write(dest, arg1)
	case "beq":
		p.genCondBranch(ir.OpEQ)
	case "bne":
		p.genCondBranch(ir.OpNE)
	case "ble":
		p.genCondBranch(ir.OpSLE)
	case "bleu":
		p.genCondBranch(ir.OpULE)
	case "blt":
		p.genCondBranch(ir.OpSLT)
	case "bltu":
		p.genCondBranch(ir.OpULT)
	case "bge":
		p.genCondBranch(ir.OpSGE)
	case "bgeu":
		p.genCondBranch(ir.OpUGE)
	case "bgt":
		p.genCondBranch(ir.OpSGT)
	case "bgtu":
		p.genCondBranch(ir.OpUGT)
	case "j":
		destBB := p.getBB(1)
		p.getEndOfLine(2)
		p.currentBB.BuildBr(destBB)
		p.currentBB = nil
	case "ebreak":
		p.currentBB.BuildInst1(ir.OpUB, p.currentBB.ValueInst(1, 1))
		p.retBbs = append(p.retBbs, p.currentBB)
		p.currentBB = nil
	case "ret":
		p.retBbs = append(p.retBbs, p.currentBB)
		p.currentBB = nil
	default:
		p.errf("unhandled instruction: %s", name)
	}
}

// startFunction creates the target function: the 32 registers, the
// parameter setup copied from the source function, and the first body
// block.
func (p *parser) startFunction() {
	p.f = p.m.BuildFunction("tgt")
	entryBB := p.f.BuildBB()
	for i := 0; i < 32; i++ {
		bitsize := entryBB.ValueInst(Bitsize, 32)
		p.registers = append(p.registers, entryBB.BuildInst1(ir.OpRegister, bitsize))
	}

	// The parameters land in a0..a7 with the value the source function
	// sees, widened to the register per the ABI.
	srcEntryBB := p.srcFunc.Bbs[0]
	for inst := srcEntryBB.FirstInst; inst != nil; inst = inst.Next {
		if inst.Op != ir.OpParam {
			continue
		}
		paramNumber := int(inst.Args[0].ValueUint64())
		paramNbr := entryBB.ValueInst(int64(paramNumber), 32)
		paramBitsize := entryBB.ValueInst(int64(inst.Bitsize), 32)
		param := entryBB.BuildInst2(ir.OpParam, paramNbr, paramBitsize)
		if inst.Bitsize != Bitsize {
			bitsizeInst := entryBB.ValueInst(Bitsize, 32)
			if paramNumber >= len(p.paramIsUnsigned) {
				p.errf("no signedness information for parameter %d", paramNumber)
			}
			if p.paramIsUnsigned[paramNumber] {
				param = entryBB.BuildInst2(ir.OpZExt, param, bitsizeInst)
			} else {
				param = entryBB.BuildInst2(ir.OpSExt, param, bitsizeInst)
			}
		}
		entryBB.BuildInst2(ir.OpWrite, p.registers[10+paramNumber], param)
	}

	bb := p.f.BuildBB()
	entryBB.BuildBr(bb)
	p.currentBB = bb
}

// isFunctionLabel reports whether the line defines a global symbol,
// i.e. an identifier at column zero followed by a colon.
func isFunctionLabel(line string) bool {
	if len(line) == 0 || !(isAlpha(line[0]) || line[0] == '_') {
		return false
	}
	i := 1
	for i < len(line) && (isAlnum(line[i]) || line[i] == '_' || line[i] == '.') {
		i++
	}
	return i < len(line) && line[i] == ':'
}

func (p *parser) parse(r io.Reader) *ir.Function {
	const (
		stateGlobal = iota
		stateFunction
		stateDone
	)

	srcLastBB := p.srcFunc.Bbs[len(p.srcFunc.Bbs)-1]
	retInst := srcLastBB.LastInst
	if retInst == nil || retInst.Op != ir.OpRet || retInst.NofArgs == 0 {
		p.errf("source function does not return a value")
	}
	retSize := retInst.Args[0].Bitsize

	state := stateGlobal
	scanner := bufio.NewScanner(r)
	for state != stateDone && scanner.Scan() {
		p.line++
		p.buf = scanner.Text()
		if len(p.buf) >= maxLineLen {
			p.errf("line too long")
		}

		if state == stateGlobal {
			// Directives and data before the function are skipped; the
			// function body starts at its symbol definition.
			if isFunctionLabel(p.buf) {
				p.startFunction()
				state = stateFunction
			}
			continue
		}

		p.lexLine()
		if len(p.tokens) == 0 {
			continue
		}
		if p.tokens[0].kind == lexName && p.tokenString(p.tokens[0]) == ".size" {
			state = stateDone
			continue
		}
		p.parseInstruction()
	}
	if err := scanner.Err(); err != nil {
		p.errf("read error: %v", err)
	}
	if state != stateDone {
		p.errf("EOF in the middle of a function")
	}

	// Join every ret into one exit block that reads the return value
	// from a0, truncated to the width the source function returns.
	exitBB := p.f.BuildBB()
	retval := exitBB.BuildInst1(ir.OpRead, p.registers[10])
	if retSize < retval.Bitsize {
		retval = exitBB.BuildTrunc(retval, retSize)
	}
	exitBB.BuildRet1(retval)
	for _, bb := range p.retBbs {
		bb.BuildBr(exitBB)
	}

	return p.f
}
