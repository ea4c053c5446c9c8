// layout.go is the class layout planner. It assigns field offsets,
// builds per-class dispatch tables and mangles code labels before any
// code is emitted.

package ir

import (
	"fmt"

	"go.uber.org/zap"

	"decafc/src/ir/tac"
)

// ---------------------
// ----- Functions -----
// ---------------------

// Layout plans object layout and dispatch for every class in the
// program and assigns every function its code label. It must run
// exactly once, before lowering; class layouts are immutable
// afterwards.
func Layout(log *zap.Logger, prog *Program) {
	for _, e1 := range prog.Decls {
		switch d := e1.(type) {
		case *ClassDecl:
			layoutClass(log, d)
		case *FnDecl:
			d.Label = MangleLabel("", d.Name)
		}
	}
}

// MangleLabel returns the code label for function name declared in
// class (empty for global functions). Global f becomes _f, method m
// of class C becomes _C.m, and main keeps its bare name as the
// program entry point.
func MangleLabel(class, name string) string {
	if len(class) > 0 {
		return fmt.Sprintf("_%s.%s", class, name)
	}
	if name == "main" {
		return name
	}
	return "_" + name
}

// layoutClass materializes the layout of c, recursing into the base
// class first. Field offsets start one word into the object, past the
// vtable pointer. A method whose name matches an inherited entry
// replaces that entry in place, keeping its slot index; everything
// else appends a new slot.
func layoutClass(log *zap.Logger, c *ClassDecl) {
	if c.laidOut {
		return
	}
	c.laidOut = true

	if c.Base != nil {
		layoutClass(log, c.Base)
		c.Size = c.Base.Size
		c.VTable = append([]*FnDecl{}, c.Base.VTable...)
	} else {
		c.Size = tac.VarSize // Slot 0 holds the vtable pointer.
		c.VTable = nil
	}

	for _, e1 := range c.Fields {
		e1.Scope = FieldVar
		e1.Offset = c.Size
		c.Size += tac.VarSize
	}

	for _, e1 := range c.Methods {
		e1.Class = c
		e1.Label = MangleLabel(c.Name, e1.Name)
		overridden := false
		for i2, e2 := range c.VTable {
			if e2.Name == e1.Name {
				// Replace in place so the slot index is preserved. A
				// signature mismatch has already been diagnosed by
				// the checker; last wins to keep the table dense.
				e1.VtOffset = e2.VtOffset
				c.VTable[i2] = e1
				overridden = true
			}
		}
		if !overridden {
			e1.VtOffset = len(c.VTable) * tac.VarSize
			c.VTable = append(c.VTable, e1)
		}
	}

	log.Debug("class laid out",
		zap.String("class", c.Name),
		zap.Int("size", c.Size),
		zap.Int("vtableSlots", len(c.VTable)),
	)
}

// SameSignature reports whether two function declarations agree on
// name, return type, parameter count and parameter types. This is the
// override equivalence the checker enforces.
func SameSignature(a, b *FnDecl) bool {
	if a.Name != b.Name {
		return false
	}
	if !a.ReturnType.Equivalent(b.ReturnType) {
		return false
	}
	if len(a.Formals) != len(b.Formals) {
		return false
	}
	for i1 := range a.Formals {
		if !a.Formals[i1].Typ.Equivalent(b.Formals[i1].Typ) {
			return false
		}
	}
	return true
}
