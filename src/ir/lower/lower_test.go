package lower

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"decafc/src/ir"
	"decafc/src/ir/tac"
)

// helperLower lays out and lowers a checked program.
func helperLower(t *testing.T, prog *ir.Program) *tac.Program {
	t.Helper()
	ir.Layout(zap.NewNop(), prog)
	p, err := Program(zap.NewNop(), prog)
	if err != nil {
		t.Fatalf("lowering failed: %s", err)
	}
	return p
}

// helperVar makes a checked identifier use of decl.
func helperVar(decl *ir.VarDecl) *ir.FieldAccess {
	return &ir.FieldAccess{ExprBase: ir.ExprBase{Typ: decl.Typ}, Var: decl}
}

// helperMain wraps stmts into a void main function.
func helperMain(stmts ...ir.Stmt) *ir.FnDecl {
	return &ir.FnDecl{
		Name:       "main",
		ReturnType: ir.Void,
		Body:       &ir.Block{Stmts: stmts},
	}
}

func TestHelloWorld(t *testing.T) {
	main := helperMain(&ir.PrintStmt{Args: []ir.Expr{ir.NewStringLit("hi")}})
	p := helperLower(t, &ir.Program{Decls: []ir.Decl{main}})

	want := []string{
		"main:",
		"BeginFunc 4",
		`_tmp0 = "hi"`,
		"PushParam _tmp0",
		"LCall _PrintString",
		"PopParams 4",
		"EndFunc",
	}
	for i1, e1 := range p.Code {
		if i1 >= len(want) {
			t.Fatalf("stream longer than expected at %d: %s", i1, e1)
		}
		if got := e1.String(); got != want[i1] {
			t.Fatalf("instruction %d = %q, want %q", i1, got, want[i1])
		}
	}
	if len(p.Code) != len(want) {
		t.Fatalf("stream has %d instructions, want %d", len(p.Code), len(want))
	}
}

func TestBoundsCheckGuardsArrayAccess(t *testing.T) {
	a := &ir.VarDecl{Name: "a", Typ: ir.ArrayOf(ir.Int)}
	access := &ir.ArrayAccess{
		ExprBase: ir.ExprBase{Typ: ir.Int},
		Base:     helperVar(a),
		Index:    ir.NewIntLit(5),
	}
	set := &ir.AssignExpr{ExprBase: ir.ExprBase{Typ: ir.Int}, Left: access, Right: ir.NewIntLit(0)}
	main := helperMain(set)
	main.Body.Decls = []*ir.VarDecl{a}
	p := helperLower(t, &ir.Program{Decls: []ir.Decl{main}})

	// The guard branch must reach _Halt through the out-of-bounds
	// message before the computed address is stored through.
	ifz := -1
	halt := -1
	printString := -1
	store := -1
	for i1, e1 := range p.Code {
		switch inst := e1.(type) {
		case *tac.IfZ:
			if ifz < 0 {
				ifz = i1
			}
		case *tac.LCall:
			if inst.Label == "_Halt" {
				halt = i1
			}
			if inst.Label == "_PrintString" {
				printString = i1
			}
		case *tac.Store:
			store = i1
		}
	}
	if ifz < 0 {
		t.Fatal("array access lowered without a bounds check branch")
	}
	if halt < 0 || printString < 0 || printString > halt {
		t.Fatal("bounds fault handler must print the error literal and halt")
	}
	if store < 0 || store < halt {
		t.Fatal("the element store must come after the fault handler, on the non-faulting path")
	}

	found := false
	for _, e1 := range p.Code {
		if s, ok := e1.(*tac.LoadStrConst); ok && strings.Contains(s.Value, "out of bounds") {
			found = true
		}
	}
	if !found {
		t.Error("out-of-bounds error literal missing from the stream")
	}
}

func TestMethodCallConvention(t *testing.T) {
	m := &ir.FnDecl{
		Name:       "m",
		ReturnType: ir.Void,
		Formals:    []*ir.VarDecl{{Name: "p", Typ: ir.Int}, {Name: "q", Typ: ir.Int}},
		Body:       &ir.Block{},
	}
	cls := &ir.ClassDecl{Name: "C", Methods: []*ir.FnDecl{m}}
	obj := &ir.VarDecl{Name: "c", Typ: ir.Named(cls)}
	call := &ir.Call{
		ExprBase: ir.ExprBase{Typ: ir.Void},
		Base:     helperVar(obj),
		Fn:       m,
		Actuals:  []ir.Expr{ir.NewIntLit(1), ir.NewIntLit(2)},
	}
	main := helperMain(call)
	main.Body.Decls = []*ir.VarDecl{obj}
	p := helperLower(t, &ir.Program{Decls: []ir.Decl{cls, main}})

	// For k actuals: exactly k+1 PushParams, then one ACall, then
	// PopParams((k+1) * VarSize).
	acall := -1
	for i1, e1 := range p.Code {
		if _, ok := e1.(*tac.ACall); ok {
			acall = i1
		}
	}
	if acall < 0 {
		t.Fatal("method call lowered without ACall")
	}
	for i1 := acall - 3; i1 < acall; i1++ {
		if _, ok := p.Code[i1].(*tac.PushParam); !ok {
			t.Fatalf("instruction %d before ACall is %s, want PushParam", i1, p.Code[i1])
		}
	}
	pop, ok := p.Code[acall+1].(*tac.PopParams)
	if !ok {
		t.Fatalf("instruction after ACall is %s, want PopParams", p.Code[acall+1])
	}
	if got, want := pop.Bytes, 3*tac.VarSize; got != want {
		t.Errorf("PopParams %d, want %d", got, want)
	}

	// The receiver is pushed last so it lands at the lowest stack
	// address; the first argument's temporary precedes it.
	last := p.Code[acall-1].(*tac.PushParam)
	if last.Param.Name != "c" {
		t.Errorf("last push is %s, want the receiver", last.Param)
	}

	// Dispatch loads the vtable from slot 0 and the code address from
	// the method's slot offset.
	foundVt := false
	for _, e1 := range p.Code[:acall] {
		if l, ok := e1.(*tac.Load); ok && l.Offset == 0 && l.Base.Name == "c" {
			foundVt = true
		}
	}
	if !foundVt {
		t.Error("method dispatch must load the vtable pointer from object slot 0")
	}
}

func TestArrayLengthIsALoad(t *testing.T) {
	a := &ir.VarDecl{Name: "a", Typ: ir.ArrayOf(ir.Int)}
	length := &ir.Call{
		ExprBase: ir.ExprBase{Typ: ir.Int},
		Base:     helperVar(a),
		Fn:       ir.ArrayLengthFn,
	}
	main := helperMain(&ir.PrintStmt{Args: []ir.Expr{length}})
	main.Body.Decls = []*ir.VarDecl{a}
	p := helperLower(t, &ir.Program{Decls: []ir.Decl{main}})

	// length() must not call anything but _PrintInt; the length is a
	// load from one word before element 0.
	foundLoad := false
	for _, e1 := range p.Code {
		switch inst := e1.(type) {
		case *tac.Load:
			if inst.Offset == -tac.VarSize && inst.Base.Name == "a" {
				foundLoad = true
			}
		case *tac.LCall:
			if inst.Label != "_PrintInt" {
				t.Errorf("unexpected call to %s in length() lowering", inst.Label)
			}
		case *tac.ACall:
			t.Error("length() must not dispatch through the vtable")
		}
	}
	if !foundLoad {
		t.Error("length() must load from base - VarSize")
	}
}

func TestNewArrayStoresLengthAndYieldsElementBase(t *testing.T) {
	arr := &ir.NewArrayExpr{
		ExprBase: ir.ExprBase{Typ: ir.ArrayOf(ir.Int)},
		Size:     ir.NewIntLit(3),
		Elem:     ir.Int,
	}
	a := &ir.VarDecl{Name: "a", Typ: ir.ArrayOf(ir.Int)}
	set := &ir.AssignExpr{ExprBase: ir.ExprBase{Typ: a.Typ}, Left: helperVar(a), Right: arr}
	main := helperMain(set)
	main.Body.Decls = []*ir.VarDecl{a}
	p := helperLower(t, &ir.Program{Decls: []ir.Decl{main}})

	alloc := -1
	var allocDst *tac.Location
	for i1, e1 := range p.Code {
		if c, ok := e1.(*tac.LCall); ok && c.Label == "_Alloc" {
			alloc = i1
			allocDst = c.Dst
		}
	}
	if alloc < 0 {
		t.Fatal("array allocation must call _Alloc")
	}

	// The element count lands in word 0 of the allocation and the
	// yielded base is one word past it.
	storedLength := false
	rebased := false
	for _, e1 := range p.Code[alloc:] {
		switch inst := e1.(type) {
		case *tac.Store:
			if inst.Base == allocDst && inst.Offset == 0 {
				storedLength = true
			}
		case *tac.BinOp:
			if inst.Op == "+" && (inst.L == allocDst || inst.R == allocDst) {
				rebased = true
			}
		}
	}
	if !storedLength {
		t.Error("array length must be stored at allocation offset 0")
	}
	if !rebased {
		t.Error("yielded array base must be allocation address + VarSize")
	}

	// The size guard faults on lengths below one.
	foundGuard := false
	for _, e1 := range p.Code[:alloc] {
		if s, ok := e1.(*tac.LoadStrConst); ok && strings.Contains(s.Value, "size is <= 0") {
			foundGuard = true
		}
	}
	if !foundGuard {
		t.Error("non-positive array size guard missing")
	}
}

func TestRelationalDesugaring(t *testing.T) {
	x := &ir.VarDecl{Name: "x", Typ: ir.Int}
	y := &ir.VarDecl{Name: "y", Typ: ir.Int}

	tests := []struct {
		op string
		// want is the expected BinOp opcode sequence.
		want []string
	}{
		{"<", []string{"<"}},
		{">", []string{"<"}},
		{"<=", []string{"<", "==", "||"}},
		{">=", []string{"<", "==", "||"}},
	}
	for _, e1 := range tests {
		rel := &ir.RelationalExpr{
			ExprBase: ir.ExprBase{Typ: ir.Bool},
			Op:       e1.op,
			Left:     helperVar(x),
			Right:    helperVar(y),
		}
		main := helperMain(&ir.IfStmt{Cond: rel, Then: &ir.Block{}})
		main.Body.Decls = []*ir.VarDecl{x, y}
		p := helperLower(t, &ir.Program{Decls: []ir.Decl{main}})

		var ops []string
		for _, e2 := range p.Code {
			if b, ok := e2.(*tac.BinOp); ok {
				ops = append(ops, b.Op)
			}
		}
		if len(ops) != len(e1.want) {
			t.Fatalf("%s: lowered to ops %v, want %v", e1.op, ops, e1.want)
		}
		for i2 := range ops {
			if ops[i2] != e1.want[i2] {
				t.Fatalf("%s: lowered to ops %v, want %v", e1.op, ops, e1.want)
			}
		}
	}

	// a > b swaps the operands of <.
	rel := &ir.RelationalExpr{ExprBase: ir.ExprBase{Typ: ir.Bool}, Op: ">", Left: helperVar(x), Right: helperVar(y)}
	main := helperMain(&ir.IfStmt{Cond: rel, Then: &ir.Block{}})
	main.Body.Decls = []*ir.VarDecl{x, y}
	p := helperLower(t, &ir.Program{Decls: []ir.Decl{main}})
	for _, e1 := range p.Code {
		if b, ok := e1.(*tac.BinOp); ok {
			if b.L.Name != "y" || b.R.Name != "x" {
				t.Errorf("a > b must lower as b < a, got %s", b)
			}
		}
	}
}

func TestStringEqualityUsesRuntimeCall(t *testing.T) {
	s := &ir.VarDecl{Name: "s", Typ: ir.String}
	eq := &ir.EqualityExpr{
		ExprBase: ir.ExprBase{Typ: ir.Bool},
		Op:       "==",
		Left:     helperVar(s),
		Right:    ir.NewStringLit("x"),
	}
	main := helperMain(&ir.IfStmt{Cond: eq, Then: &ir.Block{}})
	main.Body.Decls = []*ir.VarDecl{s}
	p := helperLower(t, &ir.Program{Decls: []ir.Decl{main}})

	called := false
	for _, e1 := range p.Code {
		if c, ok := e1.(*tac.LCall); ok && c.Label == "_StringEqual" {
			called = true
		}
		if b, ok := e1.(*tac.BinOp); ok && b.Op == "==" {
			t.Error("string equality must not lower to BinOp ==")
		}
	}
	if !called {
		t.Error("string equality must call _StringEqual")
	}
}

func TestUnaryOperators(t *testing.T) {
	x := &ir.VarDecl{Name: "x", Typ: ir.Int}
	neg := &ir.ArithmeticExpr{ExprBase: ir.ExprBase{Typ: ir.Int}, Op: "-", Right: helperVar(x)}
	set := &ir.AssignExpr{ExprBase: ir.ExprBase{Typ: ir.Int}, Left: helperVar(x), Right: neg}
	main := helperMain(set)
	main.Body.Decls = []*ir.VarDecl{x}
	p := helperLower(t, &ir.Program{Decls: []ir.Decl{main}})

	// Unary minus is 0 - x.
	found := false
	for i1, e1 := range p.Code {
		if b, ok := e1.(*tac.BinOp); ok && b.Op == "-" {
			if lc, ok := p.Code[i1-1].(*tac.LoadConst); ok && lc.Value == 0 && lc.Dst == b.L {
				found = true
			}
		}
	}
	if !found {
		t.Error("unary minus must lower as 0 - x")
	}
}

func TestWhileAndBreak(t *testing.T) {
	b := &ir.VarDecl{Name: "b", Typ: ir.Bool}
	loop := &ir.WhileStmt{
		Cond: helperVar(b),
		Body: &ir.Block{Stmts: []ir.Stmt{&ir.BreakStmt{}}},
	}
	main := helperMain(loop)
	main.Body.Decls = []*ir.VarDecl{b}
	p := helperLower(t, &ir.Program{Decls: []ir.Decl{main}})

	// break jumps to the loop's after-label, the same label the IfZ
	// exits through.
	var ifzTarget string
	var gotos []string
	for _, e1 := range p.Code {
		switch inst := e1.(type) {
		case *tac.IfZ:
			ifzTarget = inst.Target
		case *tac.Goto:
			gotos = append(gotos, inst.Target)
		}
	}
	if len(gotos) != 2 {
		t.Fatalf("while with break lowers to %d gotos, want 2", len(gotos))
	}
	if gotos[0] != ifzTarget {
		t.Errorf("break jumps to %s, want the loop exit %s", gotos[0], ifzTarget)
	}
	if gotos[1] == ifzTarget {
		t.Error("loop back edge must not target the exit label")
	}
}

func TestFrameSizeBackpatched(t *testing.T) {
	// fact(n) exercises recursion and temporaries; the frame size is
	// patched into BeginFunc after the body is lowered.
	n := &ir.VarDecl{Name: "n", Typ: ir.Int}
	fact := &ir.FnDecl{Name: "fact", ReturnType: ir.Int, Formals: []*ir.VarDecl{n}}
	rec := &ir.Call{
		ExprBase: ir.ExprBase{Typ: ir.Int},
		Fn:       fact,
		Actuals: []ir.Expr{&ir.ArithmeticExpr{
			ExprBase: ir.ExprBase{Typ: ir.Int},
			Op:       "-",
			Left:     helperVar(n),
			Right:    ir.NewIntLit(1),
		}},
	}
	fact.Body = &ir.Block{Stmts: []ir.Stmt{
		&ir.IfStmt{
			Cond: &ir.RelationalExpr{ExprBase: ir.ExprBase{Typ: ir.Bool}, Op: "<", Left: helperVar(n), Right: ir.NewIntLit(2)},
			Then: &ir.ReturnStmt{Value: ir.NewIntLit(1)},
		},
		&ir.ReturnStmt{Value: &ir.ArithmeticExpr{
			ExprBase: ir.ExprBase{Typ: ir.Int},
			Op:       "*",
			Left:     helperVar(n),
			Right:    rec,
		}},
	}}
	p := helperLower(t, &ir.Program{Decls: []ir.Decl{fact}})

	bf, ok := p.Code[1].(*tac.BeginFunc)
	if !ok {
		t.Fatalf("instruction 1 is %s, want BeginFunc", p.Code[1])
	}
	temps := 0
	for _, e1 := range p.Code {
		switch e1.(type) {
		case *tac.LoadConst, *tac.BinOp, *tac.LCall:
			temps++
		}
	}
	if got, want := bf.FrameSize, temps*tac.VarSize; got != want {
		t.Errorf("backpatched frame size %d, want %d for %d temporaries", got, want, temps)
	}

	// The recursive site respects the calling convention.
	call := -1
	for i1, e1 := range p.Code {
		if c, ok := e1.(*tac.LCall); ok && c.Label == "_fact" {
			call = i1
		}
	}
	if call < 0 {
		t.Fatal("recursive call must target _fact")
	}
	if _, ok := p.Code[call-1].(*tac.PushParam); !ok {
		t.Error("recursive call must push its argument")
	}
	if pop, ok := p.Code[call+1].(*tac.PopParams); !ok || pop.Bytes != tac.VarSize {
		t.Error("recursive call must pop one parameter word")
	}
}

func TestCountersResetBetweenFunctions(t *testing.T) {
	f := &ir.FnDecl{Name: "f", ReturnType: ir.Void, Body: &ir.Block{
		Decls: []*ir.VarDecl{{Name: "x", Typ: ir.Int}},
	}}
	g := &ir.FnDecl{Name: "g", ReturnType: ir.Void, Body: &ir.Block{
		Decls: []*ir.VarDecl{{Name: "y", Typ: ir.Int}},
	}}
	helperLower(t, &ir.Program{Decls: []ir.Decl{f, g}})

	// Both locals land in the first local slot of their own frame.
	xLoc := f.Body.Decls[0].Loc
	yLoc := g.Body.Decls[0].Loc
	if xLoc.Offset != tac.OffsetToFirstLocal || yLoc.Offset != tac.OffsetToFirstLocal {
		t.Errorf("locals at offsets %d and %d, want both at %d", xLoc.Offset, yLoc.Offset, tac.OffsetToFirstLocal)
	}
}

func TestThisAliasesFirstParam(t *testing.T) {
	fld := &ir.VarDecl{Name: "v", Typ: ir.Int}
	m := &ir.FnDecl{Name: "get", ReturnType: ir.Int, Body: &ir.Block{Stmts: []ir.Stmt{
		&ir.ReturnStmt{Value: &ir.FieldAccess{ExprBase: ir.ExprBase{Typ: ir.Int}, Var: fld}},
	}}}
	cls := &ir.ClassDecl{Name: "C", Fields: []*ir.VarDecl{fld}, Methods: []*ir.FnDecl{m}}
	p := helperLower(t, &ir.Program{Decls: []ir.Decl{cls}})

	// The implicit field read loads through the receiver slot at the
	// first parameter offset, using the field offset from layout.
	found := false
	for _, e1 := range p.Code {
		if l, ok := e1.(*tac.Load); ok {
			if l.Base.Name == "this" && l.Base.Offset == tac.OffsetToFirstParam && l.Offset == fld.Offset {
				found = true
			}
		}
	}
	if !found {
		t.Error("implicit field access must load from this + field offset")
	}
}

func TestGlobalsAreGPRelative(t *testing.T) {
	g1 := &ir.VarDecl{Name: "g1", Typ: ir.Int, Scope: ir.GlobalVar}
	g2 := &ir.VarDecl{Name: "g2", Typ: ir.Int, Scope: ir.GlobalVar}
	helperLower(t, &ir.Program{Decls: []ir.Decl{g1, g2, helperMain()}})

	if g1.Loc.Seg != tac.GPRelative || g2.Loc.Seg != tac.GPRelative {
		t.Fatal("globals must live in the gp-relative segment")
	}
	if g1.Loc.Offset != 0 || g2.Loc.Offset != tac.VarSize {
		t.Errorf("globals at offsets %d and %d, want 0 and %d", g1.Loc.Offset, g2.Loc.Offset, tac.VarSize)
	}
}

func TestVTableEmittedPerClass(t *testing.T) {
	f := &ir.FnDecl{Name: "f", ReturnType: ir.Void, Body: &ir.Block{}}
	g := &ir.FnDecl{Name: "g", ReturnType: ir.Void, Body: &ir.Block{}}
	a := &ir.ClassDecl{Name: "A", Methods: []*ir.FnDecl{f, g}}
	fb := &ir.FnDecl{Name: "f", ReturnType: ir.Void, Body: &ir.Block{}}
	b := &ir.ClassDecl{Name: "B", Base: a, Methods: []*ir.FnDecl{fb}}
	p := helperLower(t, &ir.Program{Decls: []ir.Decl{a, b, helperMain()}})

	var tables []*tac.VTable
	for _, e1 := range p.Code {
		if v, ok := e1.(*tac.VTable); ok {
			tables = append(tables, v)
		}
	}
	if len(tables) != 2 {
		t.Fatalf("lowered %d vtables, want 2", len(tables))
	}
	wantA := []string{"_A.f", "_A.g"}
	wantB := []string{"_B.f", "_A.g"}
	for i1 := range wantA {
		if tables[0].Methods[i1] != wantA[i1] {
			t.Errorf("A vtable slot %d = %s, want %s", i1, tables[0].Methods[i1], wantA[i1])
		}
		if tables[1].Methods[i1] != wantB[i1] {
			t.Errorf("B vtable slot %d = %s, want %s", i1, tables[1].Methods[i1], wantB[i1])
		}
	}
}

func TestDoubleFailsLoudly(t *testing.T) {
	main := helperMain(&ir.DoubleLit{ExprBase: ir.ExprBase{Typ: ir.Double}, Value: 1.5})
	prog := &ir.Program{Decls: []ir.Decl{main}}
	ir.Layout(zap.NewNop(), prog)
	if _, err := Program(zap.NewNop(), prog); err == nil {
		t.Fatal("double lowering must fail")
	}
}

func TestNewObjectInstallsVTable(t *testing.T) {
	m := &ir.FnDecl{Name: "m", ReturnType: ir.Void, Body: &ir.Block{}}
	cls := &ir.ClassDecl{Name: "C", Fields: []*ir.VarDecl{{Name: "x", Typ: ir.Int}}, Methods: []*ir.FnDecl{m}}
	c := &ir.VarDecl{Name: "c", Typ: ir.Named(cls)}
	alloc := &ir.NewExpr{ExprBase: ir.ExprBase{Typ: ir.Named(cls)}, Class: cls}
	set := &ir.AssignExpr{ExprBase: ir.ExprBase{Typ: c.Typ}, Left: helperVar(c), Right: alloc}
	main := helperMain(set)
	main.Body.Decls = []*ir.VarDecl{c}
	p := helperLower(t, &ir.Program{Decls: []ir.Decl{cls, main}})

	// new C allocates sizeof(C) and stores the vtable label at
	// offset 0.
	sawSize := false
	sawInstall := false
	for i1, e1 := range p.Code {
		if lc, ok := e1.(*tac.LoadConst); ok && lc.Value == cls.Size {
			if i1+2 < len(p.Code) {
				if c2, ok := p.Code[i1+2].(*tac.LCall); ok && c2.Label == "_Alloc" {
					sawSize = true
				}
			}
		}
		if st, ok := e1.(*tac.Store); ok && st.Offset == 0 {
			if ll, ok := p.Code[i1-1].(*tac.LoadLabel); ok && ll.Label == "C" && ll.Dst == st.Src {
				sawInstall = true
			}
		}
	}
	if !sawSize {
		t.Error("new C must allocate the laid-out class size")
	}
	if !sawInstall {
		t.Error("new C must install the vtable label at object offset 0")
	}
}
