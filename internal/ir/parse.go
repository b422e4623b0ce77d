package ir

import (
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/Pheeck/smtgcc/internal/diag"
)

// ParseModule parses the textual form produced by FormatModule. The
// file name is only used in error messages.
func ParseModule(file, text string) (*Module, error) {
	p := &irParser{file: file, lines: strings.Split(text, "\n")}
	return p.parseModule()
}

type irParser struct {
	file  string
	lines []string
	pos   int
}

type phiFixup struct {
	phi    *Inst
	argIDs []int
	argBBs []int
}

func (p *irParser) errorf(format string, args ...any) error {
	return diag.Parse(p.file, p.pos+1, format, args...)
}

func (p *irParser) next() (string, bool) {
	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])
		if line == "" {
			p.pos++
			continue
		}
		return line, true
	}
	return "", false
}

func (p *irParser) parseModule() (*Module, error) {
	line, ok := p.next()
	if !ok {
		return nil, p.errorf("expected config line")
	}
	if !strings.HasPrefix(line, "config ") {
		return nil, p.errorf("expected config line, got %q", line)
	}
	fields := splitArgs(strings.TrimPrefix(line, "config "))
	if len(fields) != 3 {
		return nil, p.errorf("config needs three integers")
	}
	var cfg [3]uint64
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, p.errorf("bad config value %q", f)
		}
		cfg[i] = v
	}
	if cfg[0] != 32 && cfg[0] != 64 {
		return nil, p.errorf("pointer size must be 32 or 64")
	}
	if cfg[0] != cfg[1]+cfg[2] {
		return nil, p.errorf("pointer fields do not add up")
	}
	m := NewModule(uint32(cfg[0]), uint32(cfg[1]), uint32(cfg[2]))
	p.pos++

	for {
		line, ok := p.next()
		if !ok {
			break
		}
		if !strings.HasPrefix(line, "function ") {
			return nil, p.errorf("expected function, got %q", line)
		}
		if err := p.parseFunction(m, strings.TrimPrefix(line, "function ")); err != nil {
			return nil, err
		}
	}
	if len(m.Functions) == 0 {
		return nil, p.errorf("module has no functions")
	}
	return m, nil
}

func (p *irParser) parseFunction(m *Module, name string) error {
	f := m.BuildFunction(strings.TrimSpace(name))
	p.pos++

	// Pre-create the blocks so branches can reference them forward.
	start := p.pos
	bbs := make(map[int]*BasicBlock)
	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])
		if strings.HasPrefix(line, "function ") {
			break
		}
		if strings.HasPrefix(line, ".") && strings.HasSuffix(line, ":") {
			id, err := strconv.Atoi(line[1 : len(line)-1])
			if err != nil {
				return p.errorf("bad block label %q", line)
			}
			bbs[id] = f.BuildBB()
		}
		p.pos++
	}
	end := p.pos
	p.pos = start

	insts := make(map[int]*Inst)
	var fixups []phiFixup
	var bb *BasicBlock
	for p.pos < end {
		line := strings.TrimSpace(p.lines[p.pos])
		if line == "" {
			p.pos++
			continue
		}
		if strings.HasPrefix(line, ".") && strings.HasSuffix(line, ":") {
			id, _ := strconv.Atoi(line[1 : len(line)-1])
			bb = bbs[id]
			p.pos++
			continue
		}
		if bb == nil {
			return p.errorf("instruction before first block label")
		}
		if err := p.parseInst(f, bb, bbs, insts, &fixups, line); err != nil {
			return err
		}
		p.pos++
	}

	// Phi arguments may reference instructions defined later, so they
	// are wired up after the whole function has been read.
	for _, fx := range fixups {
		for i, argID := range fx.argIDs {
			arg, ok := insts[argID]
			if !ok {
				return errors.Wrapf(diag.Parse(p.file, end, "unknown phi argument %%%d", argID),
					"function %s", f.Name)
			}
			argBB, ok := bbs[fx.argBBs[i]]
			if !ok {
				return diag.Parse(p.file, end, "unknown phi block .%d", fx.argBBs[i])
			}
			if fx.phi.Bitsize == 0 {
				fx.phi.Bitsize = arg.Bitsize
			}
			fx.phi.AddPhiArg(arg, argBB)
		}
	}

	p.pos = end
	return nil
}

func (p *irParser) parseInst(f *Function, bb *BasicBlock, bbs map[int]*BasicBlock,
	insts map[int]*Inst, fixups *[]phiFixup, line string) error {

	lhs := -1
	rest := line
	if strings.HasPrefix(line, "%") {
		eq := strings.Index(line, "=")
		if eq < 0 {
			return p.errorf("expected '=' in %q", line)
		}
		id, err := strconv.Atoi(strings.TrimSpace(line[1:eq]))
		if err != nil {
			return p.errorf("bad instruction id in %q", line)
		}
		lhs = id
		rest = strings.TrimSpace(line[eq+1:])
	}

	sp := strings.IndexByte(rest, ' ')
	opName := rest
	argText := ""
	if sp >= 0 {
		opName = rest[:sp]
		argText = strings.TrimSpace(rest[sp+1:])
	}

	op, ok := opByName(opName)
	if !ok {
		return p.errorf("unknown opcode %q", opName)
	}

	switch op {
	case OpValue:
		args := splitArgs(argText)
		if len(args) != 2 {
			return p.errorf("value needs a literal and a width")
		}
		v, err := parseLiteral(args[0])
		if err != nil {
			return p.errorf("bad literal %q", args[0])
		}
		width, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return p.errorf("bad width %q", args[1])
		}
		inst := f.ValueInstU256(v, uint32(width))
		insts[lhs] = inst
		return nil

	case OpPhi:
		phi := bb.BuildPhi(0)
		fx := phiFixup{phi: phi}
		for _, part := range strings.Split(argText, "]") {
			part = strings.TrimSpace(strings.Trim(part, ", "))
			if part == "" {
				continue
			}
			part = strings.TrimPrefix(part, "[")
			items := splitArgs(part)
			if len(items) != 2 || !strings.HasPrefix(items[0], "%") ||
				!strings.HasPrefix(items[1], ".") {
				return p.errorf("bad phi argument %q", part)
			}
			argID, err1 := strconv.Atoi(items[0][1:])
			bbID, err2 := strconv.Atoi(items[1][1:])
			if err1 != nil || err2 != nil {
				return p.errorf("bad phi argument %q", part)
			}
			fx.argIDs = append(fx.argIDs, argID)
			fx.argBBs = append(fx.argBBs, bbID)
		}
		*fixups = append(*fixups, fx)
		insts[lhs] = phi
		return nil

	case OpBr:
		args := splitArgs(argText)
		switch len(args) {
		case 1:
			dest, err := p.blockRef(bbs, args[0])
			if err != nil {
				return err
			}
			bb.BuildBr(dest)
			return nil
		case 3:
			cond, err := p.instRef(insts, args[0])
			if err != nil {
				return err
			}
			trueBB, err := p.blockRef(bbs, args[1])
			if err != nil {
				return err
			}
			falseBB, err := p.blockRef(bbs, args[2])
			if err != nil {
				return err
			}
			bb.BuildCondBr(cond, trueBB, falseBB)
			return nil
		default:
			return p.errorf("br needs one target or cond and two targets")
		}

	case OpRet:
		args := splitArgs(argText)
		switch len(args) {
		case 0:
			bb.BuildRet()
		case 1:
			arg, err := p.instRef(insts, args[0])
			if err != nil {
				return err
			}
			bb.BuildRet1(arg)
		case 2:
			arg1, err := p.instRef(insts, args[0])
			if err != nil {
				return err
			}
			arg2, err := p.instRef(insts, args[1])
			if err != nil {
				return err
			}
			bb.BuildRet2(arg1, arg2)
		default:
			return p.errorf("ret takes at most two arguments")
		}
		return nil
	}

	args := splitArgs(argText)
	operands := make([]*Inst, len(args))
	for i, a := range args {
		arg, err := p.instRef(insts, a)
		if err != nil {
			return err
		}
		operands[i] = arg
	}
	var inst *Inst
	switch len(operands) {
	case 1:
		inst = bb.BuildInst1(op, operands[0])
	case 2:
		inst = bb.BuildInst2(op, operands[0], operands[1])
	case 3:
		inst = bb.BuildInst3(op, operands[0], operands[1], operands[2])
	default:
		return p.errorf("%s takes one to three arguments", opName)
	}
	if lhs >= 0 {
		insts[lhs] = inst
	}
	return nil
}

func (p *irParser) instRef(insts map[int]*Inst, s string) (*Inst, error) {
	if !strings.HasPrefix(s, "%") {
		return nil, p.errorf("expected instruction reference, got %q", s)
	}
	id, err := strconv.Atoi(s[1:])
	if err != nil {
		return nil, p.errorf("bad instruction reference %q", s)
	}
	inst, ok := insts[id]
	if !ok {
		return nil, p.errorf("use of undefined instruction %q", s)
	}
	return inst, nil
}

func (p *irParser) blockRef(bbs map[int]*BasicBlock, s string) (*BasicBlock, error) {
	if !strings.HasPrefix(s, ".") {
		return nil, p.errorf("expected block reference, got %q", s)
	}
	id, err := strconv.Atoi(s[1:])
	if err != nil {
		return nil, p.errorf("bad block reference %q", s)
	}
	bb, ok := bbs[id]
	if !ok {
		return nil, p.errorf("use of unknown block %q", s)
	}
	return bb, nil
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}

func parseLiteral(s string) (*uint256.Int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return uint256.FromHex(s)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return uint256.NewInt(v), nil
}

var nameToOp = func() map[string]Op {
	m := make(map[string]Op, int(numOps))
	for op := Op(0); op < numOps; op++ {
		m[op.String()] = op
	}
	return m
}()

func opByName(name string) (Op, bool) {
	op, ok := nameToOp[name]
	return op, ok
}
