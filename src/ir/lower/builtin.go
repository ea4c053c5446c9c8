// builtin.go holds the fixed table of runtime built-ins and the
// calling sequence shared by every built-in call site.

package lower

import "decafc/src/ir/tac"

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// builtIn indexes the runtime built-in table.
type builtIn int

// ---------------------
// ----- Constants -----
// ---------------------

const (
	biAlloc builtIn = iota
	biReadLine
	biReadInteger
	biStringEqual
	biPrintInt
	biPrintString
	biPrintBool
	biHalt
)

// Runtime error literals baked into emitted guard code.
const (
	errArrOutOfBounds = "Decaf runtime error: Array subscript out of bounds\n"
	errArrBadSize     = "Decaf runtime error: Array size is <= 0\n"
)

// -------------------
// ----- Globals -----
// -------------------

// builtins is the fixed (label, argument count, has return) table for
// the externally linked runtime routines.
var builtins = [...]struct {
	label     string
	args      int
	hasReturn bool
}{
	biAlloc:       {"_Alloc", 1, true},
	biReadLine:    {"_ReadLine", 0, true},
	biReadInteger: {"_ReadInteger", 0, true},
	biStringEqual: {"_StringEqual", 2, true},
	biPrintInt:    {"_PrintInt", 1, false},
	biPrintString: {"_PrintString", 1, false},
	biPrintBool:   {"_PrintBool", 1, false},
	biHalt:        {"_Halt", 0, false},
}

// ---------------------
// ----- Functions -----
// ---------------------

// builtinCall emits the full calling sequence for built-in b:
// parameters pushed in reverse order, the LCall, and the caller
// cleanup. It returns the result temporary, or <nil> for the void
// built-ins.
func (c *Context) builtinCall(b builtIn, args ...*tac.Location) *tac.Location {
	def := builtins[b]
	if len(args) != def.args {
		panic("builtin " + def.label + ": wrong argument count")
	}
	for i1 := len(args) - 1; i1 >= 0; i1-- {
		c.pushParam(args[i1])
	}
	dst := c.lcall(def.label, def.hasReturn)
	c.popParams(def.args * tac.VarSize)
	return dst
}
