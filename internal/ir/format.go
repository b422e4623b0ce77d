package ir

import (
	"fmt"
	"os"
	"strings"
)

// FormatModule returns the textual form of the module: the pointer
// configuration line followed by every function.
func FormatModule(m *Module) string {
	if m == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "config %d, %d, %d\n", m.PtrBits, m.PtrIDBits, m.PtrOffsetBits)
	for _, f := range m.Functions {
		writeFunction(&b, f)
	}
	return b.String()
}

// FormatFunction returns the textual form of one function.
func FormatFunction(f *Function) string {
	var b strings.Builder
	writeFunction(&b, f)
	return b.String()
}

// WriteModuleFile writes the formatted module to disk.
func WriteModuleFile(m *Module, path string) error {
	if m == nil || path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(FormatModule(m)), 0644)
}

func writeFunction(b *strings.Builder, f *Function) {
	if f == nil {
		return
	}
	fmt.Fprintf(b, "\nfunction %s\n", f.Name)
	for i, bb := range f.Bbs {
		if i > 0 {
			b.WriteString("\n")
		}
		writeBlock(b, bb)
	}
}

func writeBlock(b *strings.Builder, bb *BasicBlock) {
	fmt.Fprintf(b, ".%d:\n", bb.ID)
	for _, phi := range bb.Phis {
		fmt.Fprintf(b, "  %s\n", formatInst(phi))
	}
	for inst := bb.FirstInst; inst != nil; inst = inst.Next {
		fmt.Fprintf(b, "  %s\n", formatInst(inst))
	}
}

func formatInst(inst *Inst) string {
	var b strings.Builder
	if inst.HasLHS() {
		fmt.Fprintf(&b, "%%%d = ", inst.ID)
	}
	b.WriteString(inst.Op.String())
	for i := 0; i < inst.NofArgs; i++ {
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%%%d", inst.Args[i].ID)
	}
	switch inst.Op {
	case OpBr:
		if inst.NofArgs == 0 {
			fmt.Fprintf(&b, " .%d", inst.DestBB.ID)
		} else {
			fmt.Fprintf(&b, ", .%d, .%d", inst.TrueBB.ID, inst.FalseBB.ID)
		}
	case OpValue:
		b.WriteString(" ")
		b.WriteString(formatValueLiteral(inst))
		fmt.Fprintf(&b, ", %d", inst.Bitsize)
	case OpPhi:
		for i, arg := range inst.PhiArgs {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, " [ %%%d, .%d ]", arg.Inst.ID, arg.BB.ID)
		}
	}
	return b.String()
}

// formatValueLiteral prints small literals in decimal and larger ones
// in zero-padded hex so the width class is visible at a glance.
func formatValueLiteral(inst *Inst) string {
	lo := inst.Value[0]
	hi := inst.Value[1]
	switch {
	case hi == 0 && lo < 0x10000:
		return fmt.Sprintf("%d", lo)
	case hi == 0 && lo <= 0xffffffff:
		return fmt.Sprintf("0x%08x", lo)
	case hi == 0:
		return fmt.Sprintf("0x%016x", lo)
	default:
		return fmt.Sprintf("0x%016x%016x", hi, lo)
	}
}
