// Package lower walks the checked AST in postorder and appends
// three-address code to an instruction stream. Each expression yields
// an operand; statements yield nothing. All bookkeeping the original
// kept in a global code generator singleton lives on the Context,
// which is threaded explicitly through the walk.
package lower

import (
	"fmt"

	"go.uber.org/zap"

	"decafc/src/ir"
	"decafc/src/ir/tac"
	"decafc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Context owns the instruction stream, the label and temporary
// minters and the per-function frame counters during one lowering
// walk.
type Context struct {
	prog   *tac.Program
	labels *util.Labeler
	log    *zap.Logger

	globalCounter int // Number of global words assigned.
	paramCounter  int // Number of parameter slots in the open frame.
	localCounter  int // Number of local/temporary slots in the open frame.

	class   *ir.ClassDecl // Class of the function being lowered, if any.
	thisLoc *tac.Location // Receiver slot of the open frame, methods only.
	loops   util.Stack    // After-labels of the enclosing loops.
	begin   int           // Stream index of the open frame's BeginFunc.
}

// ---------------------
// ----- Functions -----
// ---------------------

// Program lowers the checked AST to a TAC program. The instruction
// stream is append-only: instructions appear in exactly the order the
// walk emitted them.
func Program(log *zap.Logger, prog *ir.Program) (*tac.Program, error) {
	c := &Context{
		prog:   &tac.Program{},
		labels: util.NewLabeler(),
		log:    log,
	}
	for _, e1 := range prog.Decls {
		switch d := e1.(type) {
		case *ir.VarDecl:
			d.Loc = c.newGlobal(d.Name)
		case *ir.FnDecl:
			if err := c.function(d); err != nil {
				return nil, err
			}
		case *ir.ClassDecl:
			for _, e2 := range d.Methods {
				if err := c.function(e2); err != nil {
					return nil, err
				}
			}
			labels := make([]string, len(d.VTable))
			for i2, e2 := range d.VTable {
				labels[i2] = e2.Label
			}
			c.emit(&tac.VTable{Class: d.Name, Methods: labels})
		case *ir.InterfaceDecl:
			// Interfaces contribute no layout and no code.
		}
	}
	log.Info("lowering done",
		zap.Int("instructions", len(c.prog.Code)),
		zap.Int("globals", c.globalCounter),
	)
	return c.prog, nil
}

// function lowers one function or method body between a Label and a
// BeginFunc/EndFunc pair. The frame size is backpatched through the
// recorded stream index once the body has been walked; the frame
// counters reset afterwards so the next function starts clean.
func (c *Context) function(fn *ir.FnDecl) error {
	c.label(fn.Label)
	c.begin = len(c.prog.Code)
	c.emit(&tac.BeginFunc{})

	c.class = fn.Class
	if fn.Class != nil {
		// The receiver aliases the first parameter slot.
		c.thisLoc = c.newParam("this")
	} else {
		c.thisLoc = nil
	}
	for _, e1 := range fn.Formals {
		e1.Loc = c.newParam(e1.Name)
	}

	if fn.Body != nil {
		if err := c.block(fn.Body); err != nil {
			return fmt.Errorf("function %s: %w", fn.Label, err)
		}
	}

	c.prog.Code[c.begin].(*tac.BeginFunc).FrameSize = tac.VarSize * c.localCounter
	c.emit(&tac.EndFunc{})
	c.log.Debug("function lowered",
		zap.String("label", fn.Label),
		zap.Int("frameSize", tac.VarSize*c.localCounter),
	)
	c.localCounter = 0
	c.paramCounter = 0
	return nil
}

// emit appends one instruction to the stream.
func (c *Context) emit(i tac.Instr) {
	c.prog.Append(i)
}

// ----- Location creation -----

// newTemp allocates a fresh temporary in the open frame.
func (c *Context) newTemp() *tac.Location {
	offset := tac.OffsetToFirstLocal - tac.VarSize*c.localCounter
	c.localCounter++
	return c.prog.NewLocation(c.labels.NextTemp(), tac.FPRelative, offset)
}

// newLocal allocates the named local variable in the open frame.
func (c *Context) newLocal(name string) *tac.Location {
	offset := tac.OffsetToFirstLocal - tac.VarSize*c.localCounter
	c.localCounter++
	return c.prog.NewLocation(name, tac.FPRelative, offset)
}

// newParam allocates the next parameter slot of the open frame.
func (c *Context) newParam(name string) *tac.Location {
	offset := tac.OffsetToFirstParam + tac.VarSize*c.paramCounter
	c.paramCounter++
	return c.prog.NewLocation(name, tac.FPRelative, offset)
}

// newGlobal allocates the named variable in the globals segment.
func (c *Context) newGlobal(name string) *tac.Location {
	offset := tac.OffsetToFirstGlobal + tac.VarSize*c.globalCounter
	c.globalCounter++
	return c.prog.NewLocation(name, tac.GPRelative, offset)
}

// ----- Instruction emitters -----

func (c *Context) loadConst(v int) *tac.Location {
	t := c.newTemp()
	c.emit(&tac.LoadConst{Dst: t, Value: v})
	return t
}

func (c *Context) loadStr(s string) *tac.Location {
	t := c.newTemp()
	c.emit(&tac.LoadStrConst{Dst: t, Value: s})
	return t
}

func (c *Context) loadLabel(l string) *tac.Location {
	t := c.newTemp()
	c.emit(&tac.LoadLabel{Dst: t, Label: l})
	return t
}

func (c *Context) assign(dst, src *tac.Location) {
	c.emit(&tac.Assign{Dst: dst, Src: src})
}

func (c *Context) load(base *tac.Location, offset int) *tac.Location {
	t := c.newTemp()
	c.emit(&tac.Load{Dst: t, Base: base, Offset: offset})
	return t
}

func (c *Context) store(base, src *tac.Location, offset int) {
	c.emit(&tac.Store{Base: base, Src: src, Offset: offset})
}

func (c *Context) binOp(op string, l, r *tac.Location) *tac.Location {
	t := c.newTemp()
	c.emit(&tac.BinOp{Op: op, Dst: t, L: l, R: r})
	return t
}

func (c *Context) label(name string) {
	c.emit(&tac.Label{Name: name})
}

func (c *Context) jump(target string) {
	c.emit(&tac.Goto{Target: target})
}

func (c *Context) ifZ(cond *tac.Location, target string) {
	c.emit(&tac.IfZ{Cond: cond, Target: target})
}

func (c *Context) pushParam(p *tac.Location) {
	c.emit(&tac.PushParam{Param: p})
}

// popParams removes the pushed parameter bytes. Zero bytes emits
// nothing.
func (c *Context) popParams(bytes int) {
	if bytes > 0 {
		c.emit(&tac.PopParams{Bytes: bytes})
	}
}

func (c *Context) lcall(label string, hasReturn bool) *tac.Location {
	var dst *tac.Location
	if hasReturn {
		dst = c.newTemp()
	}
	c.emit(&tac.LCall{Label: label, Dst: dst})
	return dst
}

func (c *Context) acall(addr *tac.Location, hasReturn bool) *tac.Location {
	var dst *tac.Location
	if hasReturn {
		dst = c.newTemp()
	}
	c.emit(&tac.ACall{Addr: addr, Dst: dst})
	return dst
}
