package vm

import (
	"fmt"
	"sort"
	"strings"
)

// Disassemble returns a human-readable listing of the module.
func (m *Module) Disassemble() string {
	return m.DisassembleWithName("")
}

// DisassembleWithName returns a listing with a name header. Function entry
// points are labeled, and Push of a location that names a function is
// annotated with that name.
func (m *Module) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; %d instructions\n", len(m.Instrs)))

	labels := make(map[uint32]string, len(m.Symbols))
	names := make([]string, 0, len(m.Symbols))
	for n, loc := range m.Symbols {
		labels[loc] = n
		names = append(names, n)
	}
	if len(names) > 0 {
		sort.Slice(names, func(i, j int) bool { return m.Symbols[names[i]] < m.Symbols[names[j]] })
		sb.WriteString("; Functions:\n")
		for _, n := range names {
			sb.WriteString(fmt.Sprintf(";   %-16s @%d\n", n, m.Symbols[n]))
		}
	}
	sb.WriteString("\n")

	for i, in := range m.Instrs {
		if label, ok := labels[uint32(i)]; ok {
			sb.WriteString(fmt.Sprintf("%s:\n", label))
		}
		line := fmt.Sprintf("  %04d  %s", i, in)
		if in.Op == OpPush && in.Val.Kind == KindLoc {
			if label, ok := labels[in.Val.Index()]; ok {
				line = fmt.Sprintf("%-32s ; %s", line, label)
			}
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Format renders the instruction sequence in the single-line debug form the
// driver prints: [SetFrame(0), Push(Vloc(4)), Call, Halt, ...].
func Format(instrs []Instr) string {
	parts := make([]string, len(instrs))
	for i, in := range instrs {
		parts[i] = in.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
