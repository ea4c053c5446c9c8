// expr.go lowers expressions. Every expression yields an operand:
// either a location holding its value, or a computed (address, offset)
// pair for lvalues that are read with Load and written with Store.

package lower

import (
	"fmt"

	"decafc/src/ir"
	"decafc/src/ir/tac"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// operand is the lowered form of an expression. Exactly one of val
// and addr is set; a void call yields neither.
type operand struct {
	val  *tac.Location // Direct value location.
	addr *tac.Location // Computed base address of an lvalue.
	off  int           // Byte offset relative to addr.
}

// ---------------------
// ----- Functions -----
// ---------------------

// value materializes the operand's value, emitting the deferred Load
// for computed lvalues.
func (c *Context) value(o operand) *tac.Location {
	if o.val != nil {
		return o.val
	}
	if o.addr != nil {
		return c.load(o.addr, o.off)
	}
	panic("value of void expression")
}

// assignTo writes src into the lvalue operand.
func (c *Context) assignTo(o operand, src *tac.Location) {
	if o.val != nil {
		c.assign(o.val, src)
		return
	}
	if o.addr == nil {
		panic("assignment to non-lvalue operand")
	}
	c.store(o.addr, src, o.off)
}

// exprValue lowers e and materializes its value.
func (c *Context) exprValue(e ir.Expr) (*tac.Location, error) {
	o, err := c.expr(e)
	if err != nil {
		return nil, err
	}
	return c.value(o), nil
}

// expr lowers one expression node.
func (c *Context) expr(e ir.Expr) (operand, error) {
	switch n := e.(type) {
	case *ir.IntLit:
		return operand{val: c.loadConst(n.Value)}, nil
	case *ir.BoolLit:
		v := 0
		if n.Value {
			v = 1
		}
		return operand{val: c.loadConst(v)}, nil
	case *ir.StringLit:
		return operand{val: c.loadStr(n.Value)}, nil
	case *ir.NullLit:
		return operand{val: c.loadConst(0)}, nil
	case *ir.DoubleLit:
		return operand{}, fmt.Errorf("double constants are not implemented by this code generator")
	case *ir.This:
		if c.thisLoc == nil {
			panic("this outside method body reached lowering")
		}
		return operand{val: c.thisLoc}, nil
	case *ir.ArithmeticExpr:
		return c.arithmetic(n)
	case *ir.RelationalExpr:
		return c.relational(n)
	case *ir.EqualityExpr:
		return c.equality(n)
	case *ir.LogicalExpr:
		return c.logical(n)
	case *ir.AssignExpr:
		return c.assignExpr(n)
	case *ir.ArrayAccess:
		return c.arrayAccess(n)
	case *ir.FieldAccess:
		return c.fieldAccess(n)
	case *ir.Call:
		return c.call(n)
	case *ir.NewExpr:
		return c.newObject(n)
	case *ir.NewArrayExpr:
		return c.newArray(n)
	case *ir.ReadIntegerExpr:
		return operand{val: c.builtinCall(biReadInteger)}, nil
	case *ir.ReadLineExpr:
		return operand{val: c.builtinCall(biReadLine)}, nil
	default:
		panic(fmt.Sprintf("unknown expression node %T reached lowering", e))
	}
}

// arithmetic lowers +, -, *, / and %. Unary minus arrives with a
// <nil> left operand and becomes 0 - x.
func (c *Context) arithmetic(n *ir.ArithmeticExpr) (operand, error) {
	if n.Typ.Kind == ir.DoubleKind {
		return operand{}, fmt.Errorf("double arithmetic is not implemented by this code generator")
	}
	rhs, err := c.exprValue(n.Right)
	if err != nil {
		return operand{}, err
	}
	var lhs *tac.Location
	if n.Left != nil {
		if lhs, err = c.exprValue(n.Left); err != nil {
			return operand{}, err
		}
	} else {
		lhs = c.loadConst(0)
	}
	return operand{val: c.binOp(n.Op, lhs, rhs)}, nil
}

// relational lowers <, >, <= and >= onto the single < opcode:
// a > b is b < a, and the non-strict forms OR in an equality.
func (c *Context) relational(n *ir.RelationalExpr) (operand, error) {
	lhs, err := c.exprValue(n.Left)
	if err != nil {
		return operand{}, err
	}
	rhs, err := c.exprValue(n.Right)
	if err != nil {
		return operand{}, err
	}
	switch n.Op {
	case "<":
		return operand{val: c.binOp("<", lhs, rhs)}, nil
	case ">":
		return operand{val: c.binOp("<", rhs, lhs)}, nil
	case "<=":
		lt := c.binOp("<", lhs, rhs)
		eq := c.binOp("==", lhs, rhs)
		return operand{val: c.binOp("||", lt, eq)}, nil
	case ">=":
		gt := c.binOp("<", rhs, lhs)
		eq := c.binOp("==", lhs, rhs)
		return operand{val: c.binOp("||", gt, eq)}, nil
	default:
		panic("unknown relational operator " + n.Op)
	}
}

// equality lowers == and !=. String operands compare through the
// _StringEqual runtime routine; != negates by comparing against zero.
func (c *Context) equality(n *ir.EqualityExpr) (operand, error) {
	lhs, err := c.exprValue(n.Left)
	if err != nil {
		return operand{}, err
	}
	rhs, err := c.exprValue(n.Right)
	if err != nil {
		return operand{}, err
	}
	var eq *tac.Location
	if n.Left.Type().Kind == ir.StringKind {
		eq = c.builtinCall(biStringEqual, lhs, rhs)
	} else {
		eq = c.binOp("==", lhs, rhs)
	}
	if n.Op == "!=" {
		zero := c.loadConst(0)
		eq = c.binOp("==", eq, zero)
	}
	return operand{val: eq}, nil
}

// logical lowers && and ||; logical not arrives with a <nil> left
// operand and becomes x == 0.
func (c *Context) logical(n *ir.LogicalExpr) (operand, error) {
	rhs, err := c.exprValue(n.Right)
	if err != nil {
		return operand{}, err
	}
	if n.Left != nil {
		lhs, err := c.exprValue(n.Left)
		if err != nil {
			return operand{}, err
		}
		return operand{val: c.binOp(n.Op, lhs, rhs)}, nil
	}
	zero := c.loadConst(0)
	return operand{val: c.binOp("==", zero, rhs)}, nil
}

// assignExpr lowers an assignment: the right side is evaluated before
// the target. The yielded operand is the target itself, so chained
// assignments re-read the stored value.
func (c *Context) assignExpr(n *ir.AssignExpr) (operand, error) {
	src, err := c.exprValue(n.Right)
	if err != nil {
		return operand{}, err
	}
	lv, err := c.expr(n.Left)
	if err != nil {
		return operand{}, err
	}
	c.assignTo(lv, src)
	return lv, nil
}

// arrayAccess lowers a subscript with the runtime bounds check. The
// array length sits in the word preceding element 0; an index outside
// [0, length) prints the out-of-bounds literal and halts.
func (c *Context) arrayAccess(n *ir.ArrayAccess) (operand, error) {
	arr, err := c.exprValue(n.Base)
	if err != nil {
		return operand{}, err
	}
	idx, err := c.exprValue(n.Index)
	if err != nil {
		return operand{}, err
	}
	length := c.load(arr, -tac.VarSize)

	labelHalt := c.labels.NextLabel()
	labelAfter := c.labels.NextLabel()
	negOne := c.loadConst(-1)
	lower := c.binOp("<", negOne, idx)
	upper := c.binOp("<", idx, length)
	test := c.binOp("&&", lower, upper)
	c.ifZ(test, labelHalt)

	varSize := c.loadConst(tac.VarSize)
	offset := c.binOp("*", idx, varSize)
	addr := c.binOp("+", arr, offset)
	c.jump(labelAfter)

	c.label(labelHalt)
	message := c.loadStr(errArrOutOfBounds)
	c.builtinCall(biPrintString, message)
	c.builtinCall(biHalt)
	c.label(labelAfter)

	return operand{addr: addr}, nil
}

// fieldAccess lowers a resolved variable or field use. Locals,
// parameters and globals yield their assigned location directly;
// fields yield a (base, offset) pair against the explicit base or the
// receiver.
func (c *Context) fieldAccess(n *ir.FieldAccess) (operand, error) {
	if n.Var == nil {
		panic("unresolved identifier reached lowering")
	}
	if n.Var.Loc != nil {
		return operand{val: n.Var.Loc}, nil
	}
	var base *tac.Location
	if n.Base != nil {
		v, err := c.exprValue(n.Base)
		if err != nil {
			return operand{}, err
		}
		base = v
	} else {
		if c.thisLoc == nil {
			panic("implicit this field access outside method body")
		}
		base = c.thisLoc
	}
	return operand{addr: base, off: n.Var.Offset}, nil
}

// call lowers function calls, method calls and the array length()
// intrinsic. Actuals evaluate left to right; parameters push in
// reverse argument order so the first argument lands at the lowest
// stack address, with the receiver pushed last of all.
func (c *Context) call(n *ir.Call) (operand, error) {
	if n.Fn == nil {
		panic("unresolved call reached lowering")
	}
	if n.Fn == ir.ArrayLengthFn {
		arr, err := c.exprValue(n.Base)
		if err != nil {
			return operand{}, err
		}
		return operand{val: c.load(arr, -tac.VarSize)}, nil
	}

	hasReturn := n.Fn.ReturnType.Kind != ir.VoidKind

	if n.Fn.Class == nil {
		// Plain function: label call.
		params := make([]*tac.Location, 0, len(n.Actuals))
		for _, e1 := range n.Actuals {
			v, err := c.exprValue(e1)
			if err != nil {
				return operand{}, err
			}
			params = append([]*tac.Location{v}, params...)
		}
		for _, e1 := range params {
			c.pushParam(e1)
		}
		dst := c.lcall(n.Fn.Label, hasReturn)
		c.popParams(len(params) * tac.VarSize)
		return operand{val: dst}, nil
	}

	// Method: dispatch through the vtable of the static receiver.
	var object *tac.Location
	if n.Base != nil {
		v, err := c.exprValue(n.Base)
		if err != nil {
			return operand{}, err
		}
		object = v
	} else {
		if c.thisLoc == nil {
			panic("implicit this method call outside method body")
		}
		object = c.thisLoc
	}
	vtable := c.load(object, 0)
	fnAddr := c.load(vtable, n.Fn.VtOffset)

	params := []*tac.Location{object}
	for _, e1 := range n.Actuals {
		v, err := c.exprValue(e1)
		if err != nil {
			return operand{}, err
		}
		params = append([]*tac.Location{v}, params...)
	}
	for _, e1 := range params {
		c.pushParam(e1)
	}
	dst := c.acall(fnAddr, hasReturn)
	c.popParams(len(params) * tac.VarSize)
	return operand{val: dst}, nil
}

// newObject lowers object allocation: allocate the laid-out size,
// then install the vtable pointer at offset 0.
func (c *Context) newObject(n *ir.NewExpr) (operand, error) {
	if n.Class == nil {
		panic("unresolved class in new expression")
	}
	size := c.loadConst(n.Class.Size)
	obj := c.builtinCall(biAlloc, size)
	vtable := c.loadLabel(n.Class.Name)
	c.store(obj, vtable, 0)
	return operand{val: obj}, nil
}

// newArray lowers array allocation: guard against a non-positive
// element count, allocate length+1 words, store the length in word 0
// and yield the address of element 0.
func (c *Context) newArray(n *ir.NewArrayExpr) (operand, error) {
	length, err := c.exprValue(n.Size)
	if err != nil {
		return operand{}, err
	}

	one := c.loadConst(1)
	labelAfter := c.labels.NextLabel()
	test := c.binOp("<", length, one)
	c.ifZ(test, labelAfter)
	message := c.loadStr(errArrBadSize)
	c.builtinCall(biPrintString, message)
	c.builtinCall(biHalt)
	c.label(labelAfter)

	varSize := c.loadConst(tac.VarSize)
	arraySize := c.binOp("*", varSize, length)
	totalSize := c.binOp("+", varSize, arraySize)
	addr := c.builtinCall(biAlloc, totalSize)
	c.store(addr, length, 0)
	return operand{val: c.binOp("+", addr, varSize)}, nil
}
