// emit.go expands each TAC instruction into its MIPS template. The
// generated assembly follows the fixed linkage contract: parameters
// pushed right to left by the caller, frames built by the callee
// prologue, results returned in $v0, caller cleanup via PopParams.

package mips

import (
	"fmt"
	"strconv"

	"decafc/src/backend/regfile"
	"decafc/src/ir/tac"
	"decafc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Emitter translates allocated TAC to MIPS assembly through a Writer.
type Emitter struct {
	wr   *util.Writer
	rf   regfile.RegisterFile
	nstr int // Numeric suffix of the next string constant label.
}

// ---------------------
// ----- Constants -----
// ---------------------

// opName maps TAC binary operators to their MIPS mnemonic.
var opName = map[string]string{
	"+":  "add",
	"-":  "sub",
	"*":  "mul",
	"/":  "div",
	"%":  "rem",
	"==": "seq",
	"<":  "slt",
	"&&": "and",
	"||": "or",
}

// ---------------------
// ----- Functions -----
// ---------------------

// NewEmitter returns an Emitter writing through wr with the register
// file rf.
func NewEmitter(wr *util.Writer, rf regfile.RegisterFile) *Emitter {
	return &Emitter{wr: wr, rf: rf}
}

// Preamble writes the assembler preamble. The runtime built-ins
// (_Alloc, _PrintInt, ...) are externally linked.
func (e *Emitter) Preamble() {
	e.wr.Write("# standard Decaf preamble\n")
	e.wr.Write("\t.text\n")
	e.wr.Write("\t.align 2\n")
	e.wr.Write("\t.globl main\n")
}

// Emit expands one TAC instruction.
func (e *Emitter) Emit(i tac.Instr) error {
	switch inst := i.(type) {
	case *tac.Label:
		e.wr.Write("%s:\n", inst.Name)
	case *tac.LoadConst:
		e.comment(i)
		rd := e.target(inst.Dst, e.rf.Scratch(0))
		e.wr.Ins2("li", rd.String(), strconv.Itoa(inst.Value))
		e.flush(inst.Dst, rd)
	case *tac.LoadStrConst:
		e.comment(i)
		label := fmt.Sprintf("_string%d", e.nstr)
		e.nstr++
		e.wr.Write("\t.data\t\t\t# create string constant marked with label\n")
		e.wr.Write("%s: .asciiz %s\n", label, strconv.Quote(inst.Value))
		e.wr.Write("\t.text\n")
		rd := e.target(inst.Dst, e.rf.Scratch(0))
		e.wr.Ins2("la", rd.String(), label)
		e.flush(inst.Dst, rd)
	case *tac.LoadLabel:
		e.comment(i)
		rd := e.target(inst.Dst, e.rf.Scratch(0))
		e.wr.Ins2("la", rd.String(), inst.Label)
		e.flush(inst.Dst, rd)
	case *tac.Assign:
		e.comment(i)
		rs := e.loadTo(inst.Src, e.rf.Scratch(0))
		if rd, ok := inst.Dst.Reg.(regfile.Register); ok {
			e.wr.Ins2("move", rd.String(), rs.String())
		} else {
			e.wr.LoadStore("sw", rs.String(), inst.Dst.Offset, e.segBase(inst.Dst))
		}
	case *tac.Load:
		e.comment(i)
		rb := e.loadTo(inst.Base, e.rf.Scratch(0))
		rd := e.target(inst.Dst, e.rf.Scratch(1))
		e.wr.LoadStore("lw", rd.String(), inst.Offset, rb.String())
		e.flush(inst.Dst, rd)
	case *tac.Store:
		e.comment(i)
		rs := e.loadTo(inst.Src, e.rf.Scratch(0))
		rb := e.loadTo(inst.Base, e.rf.Scratch(1))
		e.wr.LoadStore("sw", rs.String(), inst.Offset, rb.String())
	case *tac.BinOp:
		e.comment(i)
		op, ok := opName[inst.Op]
		if !ok {
			return fmt.Errorf("unknown binary operator %q", inst.Op)
		}
		r1 := e.loadTo(inst.L, e.rf.Scratch(0))
		r2 := e.loadTo(inst.R, e.rf.Scratch(1))
		rd := e.target(inst.Dst, e.rf.Scratch(0))
		e.wr.Ins3(op, rd.String(), r1.String(), r2.String())
		e.flush(inst.Dst, rd)
	case *tac.Goto:
		e.comment(i)
		e.wr.Ins1("b", inst.Target)
	case *tac.IfZ:
		e.comment(i)
		rc := e.loadTo(inst.Cond, e.rf.Scratch(0))
		e.wr.Ins2("beqz", rc.String(), inst.Target)
	case *tac.BeginFunc:
		e.comment(i)
		e.wr.Write("\tsubu $sp, $sp, 8\t# decrement sp to make space to save ra, fp\n")
		e.wr.Write("\tsw $fp, 8($sp)\t# save fp\n")
		e.wr.Write("\tsw $ra, 4($sp)\t# save ra\n")
		e.wr.Write("\taddiu $fp, $sp, 8\t# set up new fp\n")
		if inst.FrameSize > 0 {
			e.wr.Write("\tsubu $sp, $sp, %d\t# decrement sp to make space for locals/temps\n", inst.FrameSize)
		}
	case *tac.EndFunc:
		e.comment(i)
		e.wr.Write("\t# (below handles reaching end of fn body with no explicit return)\n")
		e.epilogue()
	case *tac.Return:
		e.comment(i)
		if inst.Value != nil {
			rv := e.loadTo(inst.Value, e.rf.Scratch(0))
			e.wr.Ins2("move", e.rf.Result().String(), rv.String())
		}
		e.epilogue()
	case *tac.PushParam:
		e.comment(i)
		e.wr.Write("\tsubu $sp, $sp, 4\t# decrement sp to make space for param\n")
		rs := e.loadTo(inst.Param, e.rf.Scratch(0))
		e.wr.Write("\tsw %s, 4($sp)\t# copy param value to stack\n", rs)
	case *tac.PopParams:
		e.comment(i)
		e.wr.Write("\tadd $sp, $sp, %d\t# pop params off stack\n", inst.Bytes)
	case *tac.LCall:
		e.comment(i)
		saved := e.callerSave(i.Flow(), inst.Dst)
		e.wr.Ins1("jal", inst.Label)
		e.callerRestore(saved)
		e.copyResult(inst.Dst)
	case *tac.ACall:
		e.comment(i)
		saved := e.callerSave(i.Flow(), inst.Dst)
		ra := e.loadTo(inst.Addr, e.rf.Scratch(0))
		e.wr.Ins1("jalr", ra.String())
		e.callerRestore(saved)
		e.copyResult(inst.Dst)
	case *tac.VTable:
		e.wr.Write("\t.data\n")
		e.wr.Write("\t.align 2\n")
		e.wr.Write("%s:\t\t# label for class %s vtable\n", inst.Class, inst.Class)
		for _, e1 := range inst.Methods {
			e.wr.Write("\t.word %s\n", e1)
		}
		e.wr.Write("\t.text\n")
	default:
		return fmt.Errorf("unknown TAC instruction %T", i)
	}
	return nil
}

// comment writes the TAC form of the instruction as an assembly
// comment above its expansion.
func (e *Emitter) comment(i tac.Instr) {
	e.wr.Write("\t# %s\n", i)
}

// segBase returns the base register naming the location's segment.
func (e *Emitter) segBase(l *tac.Location) string {
	if l.Seg == tac.GPRelative {
		return e.rf.GP().String()
	}
	return e.rf.FP().String()
}

// loadTo returns the register holding l's value: the allocated
// register when one is assigned, otherwise scratch after a load from
// the location's home slot.
func (e *Emitter) loadTo(l *tac.Location, scratch regfile.Register) regfile.Register {
	if r, ok := l.Reg.(regfile.Register); ok {
		return r
	}
	e.wr.LoadStore("lw", scratch.String(), l.Offset, e.segBase(l))
	return scratch
}

// target returns the register a new value for l is computed into.
func (e *Emitter) target(l *tac.Location, scratch regfile.Register) regfile.Register {
	if r, ok := l.Reg.(regfile.Register); ok {
		return r
	}
	return scratch
}

// flush writes the computed value back to the home slot when l has no
// register.
func (e *Emitter) flush(l *tac.Location, r regfile.Register) {
	if _, ok := l.Reg.(regfile.Register); ok {
		return
	}
	e.wr.LoadStore("sw", r.String(), l.Offset, e.segBase(l))
}

// callerSave spills every register-resident location that is live
// after the call to its home slot, so the callee may clobber the
// allocatable set freely. The call destination is skipped; its value
// is produced by the call itself.
func (e *Emitter) callerSave(f *tac.FlowData, dst *tac.Location) []*tac.Location {
	var saved []*tac.Location
	for _, e1 := range f.Out.Sorted() {
		if e1 == dst {
			continue
		}
		if r, ok := e1.Reg.(regfile.Register); ok {
			e.wr.LoadStore("sw", r.String(), e1.Offset, e.segBase(e1))
			saved = append(saved, e1)
		}
	}
	return saved
}

// callerRestore reloads the registers spilled by callerSave.
func (e *Emitter) callerRestore(saved []*tac.Location) {
	for _, e1 := range saved {
		r := e1.Reg.(regfile.Register)
		e.wr.LoadStore("lw", r.String(), e1.Offset, e.segBase(e1))
	}
}

// copyResult moves the call result from $v0 into the destination, if
// the call has one.
func (e *Emitter) copyResult(dst *tac.Location) {
	if dst == nil {
		return
	}
	if rd, ok := dst.Reg.(regfile.Register); ok {
		e.wr.Ins2("move", rd.String(), e.rf.Result().String())
		return
	}
	e.wr.LoadStore("sw", e.rf.Result().String(), dst.Offset, e.segBase(dst))
}

// epilogue restores the caller's frame and returns.
func (e *Emitter) epilogue() {
	e.wr.Write("\tmove $sp, $fp\t\t# pop callee frame off stack\n")
	e.wr.Write("\tlw $ra, -4($fp)\t# restore saved ra\n")
	e.wr.Write("\tlw $fp, 0($fp)\t# restore saved fp\n")
	e.wr.Write("\tjr $ra\t\t# return from function\n")
}
