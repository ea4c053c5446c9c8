// stmt.go lowers statements. Loop context is carried on an explicit
// stack of after-labels so break resolves statically.

package lower

import (
	"fmt"

	"decafc/src/ir"
	"decafc/src/ir/tac"
)

// ---------------------
// ----- Functions -----
// ---------------------

// block lowers a statement block: locals first, then statements.
func (c *Context) block(b *ir.Block) error {
	for _, e1 := range b.Decls {
		e1.Loc = c.newLocal(e1.Name)
	}
	for _, e1 := range b.Stmts {
		if err := c.stmt(e1); err != nil {
			return err
		}
	}
	return nil
}

// stmt lowers one statement.
func (c *Context) stmt(s ir.Stmt) error {
	switch n := s.(type) {
	case *ir.Block:
		return c.block(n)
	case *ir.IfStmt:
		return c.ifStmt(n)
	case *ir.WhileStmt:
		return c.whileStmt(n)
	case *ir.ForStmt:
		return c.forStmt(n)
	case *ir.BreakStmt:
		after := c.loops.Peek()
		if after == nil {
			panic("break outside loop reached lowering")
		}
		c.jump(after.(string))
		return nil
	case *ir.ReturnStmt:
		if n.Value == nil {
			c.emit(&tac.Return{})
			return nil
		}
		v, err := c.exprValue(n.Value)
		if err != nil {
			return err
		}
		c.emit(&tac.Return{Value: v})
		return nil
	case *ir.PrintStmt:
		return c.printStmt(n)
	case ir.Expr:
		// Expression statement: lower for effect, discard the value.
		_, err := c.expr(n)
		return err
	default:
		panic(fmt.Sprintf("unknown statement node %T reached lowering", s))
	}
}

// ifStmt lowers a conditional. Without an else arm the after-label
// doubles as the false target.
func (c *Context) ifStmt(n *ir.IfStmt) error {
	cond, err := c.exprValue(n.Cond)
	if err != nil {
		return err
	}
	labelAfter := c.labels.NextLabel()
	if n.Else != nil {
		labelElse := c.labels.NextLabel()
		c.ifZ(cond, labelElse)
		if err := c.stmt(n.Then); err != nil {
			return err
		}
		c.jump(labelAfter)
		c.label(labelElse)
		if err := c.stmt(n.Else); err != nil {
			return err
		}
	} else {
		c.ifZ(cond, labelAfter)
		if err := c.stmt(n.Then); err != nil {
			return err
		}
	}
	c.label(labelAfter)
	return nil
}

// whileStmt lowers a pre-tested loop.
func (c *Context) whileStmt(n *ir.WhileStmt) error {
	labelBefore := c.labels.NextLabel()
	labelAfter := c.labels.NextLabel()
	c.loops.Push(labelAfter)
	defer c.loops.Pop()

	c.label(labelBefore)
	cond, err := c.exprValue(n.Cond)
	if err != nil {
		return err
	}
	c.ifZ(cond, labelAfter)
	if err := c.stmt(n.Body); err != nil {
		return err
	}
	c.jump(labelBefore)
	c.label(labelAfter)
	return nil
}

// forStmt lowers a C-style loop: init once, test at the top, step
// after the body.
func (c *Context) forStmt(n *ir.ForStmt) error {
	labelBefore := c.labels.NextLabel()
	labelAfter := c.labels.NextLabel()
	c.loops.Push(labelAfter)
	defer c.loops.Pop()

	if n.Init != nil {
		if _, err := c.expr(n.Init); err != nil {
			return err
		}
	}
	c.label(labelBefore)
	cond, err := c.exprValue(n.Cond)
	if err != nil {
		return err
	}
	c.ifZ(cond, labelAfter)
	if err := c.stmt(n.Body); err != nil {
		return err
	}
	if n.Step != nil {
		if _, err := c.expr(n.Step); err != nil {
			return err
		}
	}
	c.jump(labelBefore)
	c.label(labelAfter)
	return nil
}

// printStmt lowers each argument to the print built-in matching its
// static type.
func (c *Context) printStmt(n *ir.PrintStmt) error {
	for _, e1 := range n.Args {
		v, err := c.exprValue(e1)
		if err != nil {
			return err
		}
		switch e1.Type().Kind {
		case ir.StringKind:
			c.builtinCall(biPrintString, v)
		case ir.IntKind:
			c.builtinCall(biPrintInt, v)
		case ir.BoolKind:
			c.builtinCall(biPrintBool, v)
		default:
			return fmt.Errorf("cannot print value of type %s", e1.Type())
		}
	}
	return nil
}
