// print.go renders the instruction stream in its textual TAC form,
// used by the -d tac debug mode and by tests.

package tac

import (
	"fmt"
	"strings"

	"decafc/src/util"
)

// ---------------------
// ----- Functions -----
// ---------------------

// deref formats a memory operand as *(base), *(base + n) or
// *(base - n) depending on the offset sign.
func deref(base *Location, offset int) string {
	if offset == 0 {
		return fmt.Sprintf("*(%s)", base)
	}
	if offset < 0 {
		return fmt.Sprintf("*(%s - %d)", base, -offset)
	}
	return fmt.Sprintf("*(%s + %d)", base, offset)
}

func (i *LoadConst) String() string { return fmt.Sprintf("%s = %d", i.Dst, i.Value) }

func (i *LoadStrConst) String() string { return fmt.Sprintf("%s = %q", i.Dst, i.Value) }

func (i *LoadLabel) String() string { return fmt.Sprintf("%s = %s", i.Dst, i.Label) }

func (i *Assign) String() string { return fmt.Sprintf("%s = %s", i.Dst, i.Src) }

func (i *Load) String() string { return fmt.Sprintf("%s = %s", i.Dst, deref(i.Base, i.Offset)) }

func (i *Store) String() string { return fmt.Sprintf("%s = %s", deref(i.Base, i.Offset), i.Src) }

func (i *BinOp) String() string { return fmt.Sprintf("%s = %s %s %s", i.Dst, i.L, i.Op, i.R) }

func (i *Label) String() string { return i.Name + ":" }

func (i *Goto) String() string { return "Goto " + i.Target }

func (i *IfZ) String() string { return fmt.Sprintf("IfZ %s Goto %s", i.Cond, i.Target) }

func (i *BeginFunc) String() string { return fmt.Sprintf("BeginFunc %d", i.FrameSize) }

func (i *EndFunc) String() string { return "EndFunc" }

func (i *Return) String() string {
	if i.Value == nil {
		return "Return"
	}
	return "Return " + i.Value.Name
}

func (i *PushParam) String() string { return "PushParam " + i.Param.Name }

func (i *PopParams) String() string { return fmt.Sprintf("PopParams %d", i.Bytes) }

func (i *LCall) String() string {
	if i.Dst == nil {
		return "LCall " + i.Label
	}
	return fmt.Sprintf("%s = LCall %s", i.Dst, i.Label)
}

func (i *ACall) String() string {
	if i.Dst == nil {
		return "ACall " + i.Addr.Name
	}
	return fmt.Sprintf("%s = ACall %s", i.Dst, i.Addr)
}

func (i *VTable) String() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("VTable %s =", i.Class))
	for _, e1 := range i.Methods {
		sb.WriteString("\n\t" + e1)
	}
	return sb.String()
}

// Print writes the whole stream in TAC form: labels flush left, every
// other instruction indented one tab.
func Print(wr *util.Writer, p *Program) {
	for _, e1 := range p.Code {
		if l, ok := e1.(*Label); ok {
			wr.Write("%s:\n", l.Name)
			continue
		}
		wr.Write("\t%s\n", e1)
	}
}
