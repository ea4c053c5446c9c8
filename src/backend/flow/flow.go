// Package flow partitions the instruction stream into function
// windows, links each instruction to its statically reachable
// successors and runs the backward live-variable analysis to a fixed
// point.
package flow

import (
	"fmt"

	"decafc/src/ir/tac"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Window is one function's slice of the instruction stream:
// Code[Begin] is the BeginFunc and Code[End] the matching EndFunc.
// Instructions outside every window are top-level data (vtables) and
// never analysed.
type Window struct {
	Prog  *tac.Program
	Begin int
	End   int
	Label string // Code label of the function, for diagnostics.
}

// ---------------------
// ----- Functions -----
// ---------------------

// Labels builds the label to instruction index table with one linear
// scan over the whole stream.
func Labels(p *tac.Program) map[string]int {
	labels := make(map[string]int)
	for i1, e1 := range p.Code {
		if l, ok := e1.(*tac.Label); ok {
			labels[l.Name] = i1
		}
	}
	return labels
}

// Partition scans the stream and pairs every BeginFunc with its
// EndFunc. The label naming each function is the Label instruction
// immediately preceding its BeginFunc.
func Partition(p *tac.Program) []*Window {
	var windows []*Window
	begin := -1
	for i1, e1 := range p.Code {
		switch e1.(type) {
		case *tac.BeginFunc:
			begin = i1
		case *tac.EndFunc:
			w := &Window{Prog: p, Begin: begin, End: i1}
			if begin > 0 {
				if l, ok := p.Code[begin-1].(*tac.Label); ok {
					w.Label = l.Name
				}
			}
			windows = append(windows, w)
			begin = -1
		}
	}
	return windows
}

// BuildCFG links every instruction in the window to its successors.
// The textually next instruction is the fallthrough successor, except
// after Goto, Return and EndFunc; Goto and IfZ additionally reach the
// instruction bound to their target label. An unknown target label is
// a contract violation by the lowering engine.
func (w *Window) BuildCFG(labels map[string]int) error {
	for i1 := w.Begin; i1 < w.End; i1++ {
		e1 := w.Prog.Code[i1]
		f := e1.Flow()
		f.Succ = nil
		switch inst := e1.(type) {
		case *tac.Goto:
			t, ok := labels[inst.Target]
			if !ok {
				return fmt.Errorf("%s: branch to unknown label %s", w.Label, inst.Target)
			}
			f.Succ = append(f.Succ, w.Prog.Code[t])
		case *tac.Return:
			// Control leaves the window.
		default:
			f.Succ = append(f.Succ, w.Prog.Code[i1+1])
			if iz, ok := e1.(*tac.IfZ); ok {
				t, ok := labels[iz.Target]
				if !ok {
					return fmt.Errorf("%s: branch to unknown label %s", w.Label, iz.Target)
				}
				f.Succ = append(f.Succ, w.Prog.Code[t])
			}
		}
	}
	// The EndFunc terminates the function and has no successors.
	w.Prog.Code[w.End].Flow().Succ = nil
	return nil
}

// Liveness iterates the backward dataflow equations over the window
// until nothing changes:
//
//	out[i] = union of in[s] for every successor s
//	in[i]  = gen[i] + (out[i] - kill[i])
//
// Sets only grow and the location universe is finite, so the
// iteration terminates. The number of sweeps is returned for
// statistics.
func (w *Window) Liveness() int {
	sweeps := 0
	for changed := true; changed; {
		changed = false
		sweeps++
		for i1 := w.Begin; i1 < w.End; i1++ {
			if update(w.Prog.Code[i1]) {
				changed = true
			}
		}
	}
	return sweeps
}

// update recomputes one instruction's in and out sets and reports
// whether either changed.
func update(i tac.Instr) bool {
	f := i.Flow()

	out := tac.NewLocSet()
	for _, e1 := range f.Succ {
		for l := range e1.Flow().In {
			out.Add(l)
		}
	}

	in := tac.NewLocSet()
	for _, e1 := range i.Gen() {
		in.Add(e1)
	}
	kill := tac.NewLocSet()
	for _, e1 := range i.Kill() {
		kill.Add(e1)
	}
	for l := range out {
		if !kill.Has(l) {
			in.Add(l)
		}
	}

	changed := !in.Equal(f.In) || !out.Equal(f.Out)
	f.In = in
	f.Out = out
	return changed
}
