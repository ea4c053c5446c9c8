// Package backend drives the code generation pipeline over a lowered
// TAC program: partition the stream into function windows, build each
// window's control-flow graph, run liveness to a fixed point, colour
// the interference graph, and emit MIPS assembly (or one of the debug
// forms). Analyses of distinct windows are independent and fan out
// over worker goroutines when a thread count is configured; register
// assignment application and emission stay sequential in stream order
// so the output is identical for any thread count.
package backend

import (
	"sync"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"decafc/src/backend/flow"
	"decafc/src/backend/mips"
	"decafc/src/backend/regalloc"
	"decafc/src/ir/tac"
	"decafc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// functionDump is the per-function record of the -d json dataflow
// dump.
type functionDump struct {
	Label     string            `json:"label"`
	Begin     int               `json:"begin"`
	End       int               `json:"end"`
	FrameSize int               `json:"frameSize"`
	Sweeps    int               `json:"livenessSweeps"`
	Registers map[string]string `json:"registers"`
}

// ---------------------
// ----- Functions -----
// ---------------------

// Generate runs the backend pipeline on the lowered program and
// writes assembly or the selected debug form through wr.
func Generate(opt util.Options, log *zap.Logger, wr *util.Writer, prog *tac.Program) error {
	if opt.Debug == util.DebugTAC {
		// Debug mode: print TAC instead of translating to MIPS.
		tac.Print(wr, prog)
		return nil
	}

	labels := flow.Labels(prog)
	windows := flow.Partition(prog)
	rf := mips.CreateRegisterFile()
	assignments := make([]regalloc.Assignment, len(windows))
	sweeps := make([]int, len(windows))

	analyse := func(i int, w *flow.Window) error {
		if err := w.BuildCFG(labels); err != nil {
			return err
		}
		sweeps[i] = w.Liveness()
		assignments[i] = regalloc.Allocate(w, rf)
		log.Debug("function analysed",
			zap.String("function", w.Label),
			zap.Int("instructions", w.End-w.Begin),
			zap.Int("livenessSweeps", sweeps[i]),
			zap.Int("registersAssigned", len(assignments[i])),
		)
		return nil
	}

	if opt.Threads > 1 && len(windows) > 1 {
		// Parallel. Every window touches only its own instructions,
		// so windows distribute freely over worker go routines.
		t := opt.Threads
		l := len(windows)
		if t > l {
			t = l
		}
		n := l / t
		res := l % t

		start := 0
		end := n

		perr := util.NewPerror(t)
		wg := sync.WaitGroup{}
		wg.Add(t)

		for i1 := 0; i1 < t; i1++ {
			if i1 < res {
				end++
			}
			go func(start, end int, wg *sync.WaitGroup) {
				defer wg.Done()
				for i2 := start; i2 < end; i2++ {
					if err := analyse(i2, windows[i2]); err != nil {
						perr.Append(err)
					}
				}
			}(start, end, &wg)
			start = end
			end += n
		}

		wg.Wait()
		perr.Stop()
		if err := perr.Combine(); err != nil {
			return err
		}
	} else {
		// Sequential.
		for i1, e1 := range windows {
			if err := analyse(i1, e1); err != nil {
				return err
			}
		}
	}

	if opt.Debug == util.DebugJSON {
		return dumpJSON(wr, prog, windows, assignments, sweeps)
	}

	// Emit in exact stream order. A window's register assignment is
	// visible only while emitting that window; top-level data between
	// windows sees no registers at all.
	em := mips.NewEmitter(wr, rf)
	em.Preamble()
	next := 0
	for i1, e1 := range prog.Code {
		if next < len(windows) && i1 == windows[next].Begin {
			for l, r := range assignments[next] {
				l.Reg = r
			}
		}
		if err := em.Emit(e1); err != nil {
			return err
		}
		if next < len(windows) && i1 == windows[next].End {
			for l := range assignments[next] {
				l.Reg = nil
			}
			next++
		}
	}
	return nil
}

// dumpJSON writes the per-function dataflow results as JSON.
func dumpJSON(wr *util.Writer, prog *tac.Program, windows []*flow.Window, assignments []regalloc.Assignment, sweeps []int) error {
	dump := make([]functionDump, len(windows))
	for i1, e1 := range windows {
		regs := make(map[string]string, len(assignments[i1]))
		for l, r := range assignments[i1] {
			regs[l.Name] = r.String()
		}
		dump[i1] = functionDump{
			Label:     e1.Label,
			Begin:     e1.Begin,
			End:       e1.End,
			FrameSize: prog.Code[e1.Begin].(*tac.BeginFunc).FrameSize,
			Sweeps:    sweeps[i1],
			Registers: regs,
		}
	}
	b, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return err
	}
	wr.Write("%s\n", b)
	return nil
}
