package compiler

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/cmcintosh36/grumpy/vm"
)

func mustParseExpr(t *testing.T, src string) Expr {
	t.Helper()
	e, err := ParseExpr(src)
	if err != nil {
		t.Fatalf("ParseExpr(%q): %v", src, err)
	}
	return e
}

func mustParse(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return prog
}

// Shorthand constructors for expected trees. Spans are ignored by Equal.
func num(n int32) Expr     { return &IntLiteral{Value: n} }
func ref(name string) Expr { return &Variable{Name: name} }
func bin(op vm.Binop, l, r Expr) Expr {
	return &BinaryExpr{Op: op, Left: l, Right: r}
}

// ---------------------------------------------------------------------------
// Worked examples
// ---------------------------------------------------------------------------

func TestParseBinaryKeepsOrder(t *testing.T) {
	e := mustParseExpr(t, "(+ 1 2)")
	b, ok := e.(*BinaryExpr)
	if !ok {
		t.Fatalf("got %T, want *BinaryExpr", e)
	}
	if b.Op != vm.Add {
		t.Errorf("Op = %v, want +", b.Op)
	}
	if !Equal(b.Left, num(1)) || !Equal(b.Right, num(2)) {
		t.Errorf("operands = %s, %s, want 1, 2", b.Left, b.Right)
	}
}

func TestParseLet(t *testing.T) {
	e := mustParseExpr(t, "(let x 5 (+ x 1))")
	want := &LetExpr{Name: "x", Init: num(5), Body: bin(vm.Add, ref("x"), num(1))}
	if !Equal(e, want) {
		t.Errorf("got %s, want %s", e, want)
	}
}

func TestParseSeq(t *testing.T) {
	e := mustParseExpr(t, "(seq (print 1) 2)")
	want := &SeqExpr{First: &PrintExpr{Operand: num(1)}, Second: num(2)}
	if !Equal(e, want) {
		t.Errorf("got %s, want %s", e, want)
	}
}

func TestParseProgram(t *testing.T) {
	prog := mustParse(t, "(fun f (x i32) -> i32 (+ x 1)) % (f 2)")
	if len(prog.Funs) != 1 {
		t.Fatalf("got %d functions, want 1", len(prog.Funs))
	}
	f := prog.Funs[0]
	if f.Name != "f" {
		t.Errorf("Name = %q, want f", f.Name)
	}
	if len(f.Params) != 1 || f.Params[0].Name != "x" || !f.Params[0].Type.Equal(I32Type) {
		t.Errorf("Params = %+v, want [(x i32)]", f.Params)
	}
	if !f.Result.Equal(I32Type) {
		t.Errorf("Result = %s, want i32", f.Result)
	}
	if !Equal(f.Body, bin(vm.Add, ref("x"), num(1))) {
		t.Errorf("Body = %s, want (+ x 1)", f.Body)
	}
	call, ok := prog.Entry.(*CallExpr)
	if !ok {
		t.Fatalf("Entry = %T, want *CallExpr", prog.Entry)
	}
	if call.Name != "f" || len(call.Args) != 1 || !Equal(call.Args[0], num(2)) {
		t.Errorf("Entry = %s, want (f 2)", call)
	}
}

func TestParseForms(t *testing.T) {
	tests := []struct {
		src  string
		want Expr
	}{
		{"tt", &UnitLiteral{}},
		{"true", &BoolLiteral{Value: true}},
		{"false", &BoolLiteral{Value: false}},
		{"(neg 3)", &UnaryExpr{Op: vm.Neg, Operand: num(3)}},
		{"(== 1 2)", bin(vm.Eq, num(1), num(2))},
		{"(< a b)", bin(vm.Lt, ref("a"), ref("b"))},
		{"(alloc 3 0)", &AllocExpr{Size: num(3), Init: num(0)}},
		{"(set a 0 7)", &SetExpr{Array: ref("a"), Index: num(0), Value: num(7)}},
		{"(get a 0)", &GetExpr{Array: ref("a"), Index: num(0)}},
		{"(cond true 1 2)", &CondExpr{Test: &BoolLiteral{Value: true}, Then: num(1), Else: num(2)}},
		{"(funptr f)", &FunPtrExpr{Name: "f"}},
		{"(f)", &CallExpr{Name: "f", Args: []Expr{}}},
		{"(f 1 2 3)", &CallExpr{Name: "f", Args: []Expr{num(1), num(2), num(3)}}},
		{"(call g)", &CallIndirectExpr{Fn: ref("g"), Args: []Expr{}}},
		{"(call (funptr f) 1)", &CallIndirectExpr{Fn: &FunPtrExpr{Name: "f"}, Args: []Expr{num(1)}}},
		{"(spawn (funptr w))", &SpawnExpr{Operand: &FunPtrExpr{Name: "w"}}},
		{"  (print\n\t(- 4 1))  ", &PrintExpr{Operand: bin(vm.Sub, num(4), num(1))}},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			e := mustParseExpr(t, tc.src)
			if !Equal(e, tc.want) {
				t.Errorf("got %s, want %s", e, tc.want)
			}
		})
	}
}

func TestParseEmptyLists(t *testing.T) {
	prog := mustParse(t, "(fun k -> unit tt) % (k)")
	if prog.Funs[0].Params == nil || len(prog.Funs[0].Params) != 0 {
		t.Errorf("Params = %#v, want empty non-nil", prog.Funs[0].Params)
	}
	if args := prog.Entry.(*CallExpr).Args; args == nil || len(args) != 0 {
		t.Errorf("Args = %#v, want empty non-nil", args)
	}

	prog = mustParse(t, "% 7")
	if len(prog.Funs) != 0 || !Equal(prog.Entry, num(7)) {
		t.Errorf("got %s, want %% 7", prog)
	}
}

func TestParseTypes(t *testing.T) {
	tests := []struct {
		src  string
		want Type
	}{
		{"i32", I32Type},
		{"bool", BoolType},
		{"unit", UnitType},
		{"(array i32)", ArrayOf(I32Type)},
		{"(array (array bool))", ArrayOf(ArrayOf(BoolType))},
	}
	for _, tc := range tests {
		got, err := ParseType(tc.src)
		if err != nil {
			t.Errorf("ParseType(%q): %v", tc.src, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseType(%q) = %s, want %s", tc.src, got, tc.want)
		}
		if got.String() != tc.src {
			t.Errorf("String() = %q, want %q", got.String(), tc.src)
		}
	}
}

func TestParseSpans(t *testing.T) {
	e := mustParseExpr(t, "(+ 1\n   (neg 20))")
	b := e.(*BinaryExpr)
	if s := b.Span(); s.Start.Offset != 0 || s.End.Offset != 17 {
		t.Errorf("binary span = %+v, want offsets 0..17", s)
	}
	r := b.Right.Span()
	if r.Start.Line != 2 || r.Start.Column != 4 {
		t.Errorf("right operand starts at %d:%d, want 2:4", r.Start.Line, r.Start.Column)
	}
	lit := b.Right.(*UnaryExpr).Operand.Span()
	if lit.Start.Column != 9 || lit.End.Column != 11 {
		t.Errorf("literal columns = %d..%d, want 9..11", lit.Start.Column, lit.End.Column)
	}
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind error
		line int
		col  int
	}{
		{"missing close paren", "(+ 1", ErrUnexpectedEOF, 1, 5},
		{"unclosed form", "(+ 1 2", ErrUnbalancedParens, 1, 7},
		{"stray close paren", "(+ 1 2))", ErrUnbalancedParens, 1, 8},
		{"extra operand", "(neg 1 2)", ErrUnexpectedToken, 1, 8},
		{"missing operand", "(+ 1)", ErrUnexpectedToken, 1, 5},
		{"trailing expression", "1 2", ErrUnexpectedToken, 1, 3},
		{"bad head", "(1 2)", ErrUnexpectedToken, 1, 2},
		{"let without name", "(let 1 2 3)", ErrUnexpectedToken, 1, 6},
		{"funptr of expression", "(funptr (f))", ErrUnexpectedToken, 1, 9},
		{"lex error", "(+ 1 #)", ErrLex, 1, 6},
		{"empty input", "", ErrUnexpectedEOF, 1, 1},
		{"keyword as variable", "(+ let 1)", ErrUnexpectedToken, 1, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, err := ParseExpr(tc.src)
			if err == nil {
				t.Fatalf("ParseExpr(%q) = %s, want error", tc.src, e)
			}
			if e != nil {
				t.Errorf("partial tree returned: %s", e)
			}
			if !errors.Is(err, tc.kind) {
				t.Errorf("err = %v, want %v", err, tc.kind)
			}
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("err = %T, want *Error", err)
			}
			if perr.Pos.Line != tc.line || perr.Pos.Column != tc.col {
				t.Errorf("position = %d:%d, want %d:%d", perr.Pos.Line, perr.Pos.Column, tc.line, tc.col)
			}
		})
	}
}

func TestParseProgramErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind error
	}{
		{"missing separator", "(fun f -> i32 1)", ErrUnexpectedEOF},
		{"missing entry", "(fun f -> i32 1) %", ErrUnexpectedEOF},
		{"expression before separator", "(+ 1 2) % 3", ErrUnexpectedToken},
		{"missing arrow", "(fun f (x i32) i32 x) % 1", ErrUnexpectedToken},
		{"bad param type", "(fun f (x int) -> i32 x) % 1", ErrUnexpectedToken},
		{"bad result type", "(fun f -> (list i32) 1) % 1", ErrUnexpectedToken},
		{"duplicate function", "(fun f -> i32 1) (fun g -> i32 2) (fun f -> i32 3) % 1", ErrDuplicateFunction},
		{"trailing tokens", "% 1 2", ErrUnexpectedToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prog, err := Parse(tc.src)
			if prog != nil {
				t.Errorf("partial program returned: %s", prog)
			}
			if !errors.Is(err, tc.kind) {
				t.Errorf("err = %v, want %v", err, tc.kind)
			}
		})
	}
}

func TestParseDuplicatePosition(t *testing.T) {
	_, err := Parse("(fun f -> i32 1)\n(fun f -> i32 2)\n% 1")
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if perr.Pos.Line != 2 || perr.Pos.Column != 6 {
		t.Errorf("position = %d:%d, want 2:6", perr.Pos.Line, perr.Pos.Column)
	}
	if !strings.Contains(perr.Error(), "first defined at 1:6") {
		t.Errorf("message %q does not mention the first definition", perr.Error())
	}
}

func TestParseErrorMessage(t *testing.T) {
	_, err := ParseExpr("(neg 1 2)")
	want := "1:8: unexpected token: found INTEGER(\"2\"), expected ')'"
	if err == nil || err.Error() != want {
		t.Errorf("err = %v, want %q", err, want)
	}
}

func TestParseNestingLimit(t *testing.T) {
	deep := strings.Repeat("(neg ", 10000) + "1" + strings.Repeat(")", 10000)
	_, err := ParseExpr(deep)
	if !errors.Is(err, ErrNestingTooDeep) {
		t.Fatalf("err = %v, want ErrNestingTooDeep", err)
	}

	p := NewParser(strings.Repeat("(neg ", 600) + "1" + strings.Repeat(")", 600))
	p.MaxDepth = 1000
	if _, err := p.ParseExpr(); err != nil {
		t.Errorf("raised MaxDepth still fails: %v", err)
	}

	deepType := strings.Repeat("(array ", 600) + "i32" + strings.Repeat(")", 600)
	if _, err := ParseType(deepType); !errors.Is(err, ErrNestingTooDeep) {
		t.Errorf("deep type err = %v, want ErrNestingTooDeep", err)
	}
}

func TestFormatError(t *testing.T) {
	src := "% (+ 1\n  (neg 2 3))"
	_, err := Parse(src)
	if err == nil {
		t.Fatal("expected error")
	}
	out := FormatError(err, "demo.gpy", src)
	for _, want := range []string{
		"PARSE ERROR in demo.gpy at 2:10:",
		"   1 | % (+ 1",
		"   2 |   (neg 2 3))",
		"     |          ^",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatError output missing %q:\n%s", want, out)
		}
	}

	plain := errors.New("boom")
	if got := FormatError(plain, "x", src); got != "boom" {
		t.Errorf("FormatError(plain) = %q, want boom", got)
	}
}

// ---------------------------------------------------------------------------
// Round trip
// ---------------------------------------------------------------------------

// astGen builds random well-formed trees.
type astGen struct {
	r *rand.Rand
}

var genNames = []string{"x", "y", "acc", "f", "go2", "n_1"}

func (g *astGen) name() string { return genNames[g.r.Intn(len(genNames))] }

func (g *astGen) typ(depth int) Type {
	switch k := g.r.Intn(4); {
	case k == 3 && depth > 0:
		return ArrayOf(g.typ(depth - 1))
	case k == 1:
		return BoolType
	case k == 2:
		return UnitType
	}
	return I32Type
}

func (g *astGen) exprs(depth, max int) []Expr {
	out := make([]Expr, g.r.Intn(max+1))
	for i := range out {
		out[i] = g.expr(depth)
	}
	return out
}

func (g *astGen) expr(depth int) Expr {
	if depth <= 0 {
		switch g.r.Intn(4) {
		case 0:
			return &IntLiteral{Value: g.r.Int31()}
		case 1:
			return &BoolLiteral{Value: g.r.Intn(2) == 0}
		case 2:
			return &UnitLiteral{}
		}
		return &Variable{Name: g.name()}
	}
	d := depth - 1
	switch g.r.Intn(14) {
	case 0:
		return &UnaryExpr{Op: vm.Neg, Operand: g.expr(d)}
	case 1:
		return &BinaryExpr{Op: vm.Binop(g.r.Intn(6)), Left: g.expr(d), Right: g.expr(d)}
	case 2:
		return &LetExpr{Name: g.name(), Init: g.expr(d), Body: g.expr(d)}
	case 3:
		return &SeqExpr{First: g.expr(d), Second: g.expr(d)}
	case 4:
		return &AllocExpr{Size: g.expr(d), Init: g.expr(d)}
	case 5:
		return &SetExpr{Array: g.expr(d), Index: g.expr(d), Value: g.expr(d)}
	case 6:
		return &GetExpr{Array: g.expr(d), Index: g.expr(d)}
	case 7:
		return &CondExpr{Test: g.expr(d), Then: g.expr(d), Else: g.expr(d)}
	case 8:
		return &FunPtrExpr{Name: g.name()}
	case 9:
		return &CallExpr{Name: g.name(), Args: g.exprs(d, 3)}
	case 10:
		return &CallIndirectExpr{Fn: g.expr(d), Args: g.exprs(d, 3)}
	case 11:
		return &PrintExpr{Operand: g.expr(d)}
	case 12:
		return &SpawnExpr{Operand: g.expr(d)}
	}
	return g.expr(0)
}

func (g *astGen) program() *Program {
	prog := &Program{Entry: g.expr(4)}
	nfuns := g.r.Intn(4)
	for i := 0; i < nfuns; i++ {
		f := &FunctionDef{Name: genNames[i], Result: g.typ(2), Body: g.expr(4)}
		nparams := g.r.Intn(3)
		for j := 0; j < nparams; j++ {
			f.Params = append(f.Params, Param{Name: g.name(), Type: g.typ(2)})
		}
		prog.Funs = append(prog.Funs, f)
	}
	return prog
}

func TestRoundTripExpressions(t *testing.T) {
	g := &astGen{r: rand.New(rand.NewSource(1))}
	for i := 0; i < 500; i++ {
		e := g.expr(5)
		text := e.String()
		back, err := ParseExpr(text)
		if err != nil {
			t.Fatalf("re-parse of %q: %v", text, err)
		}
		if !Equal(e, back) {
			t.Fatalf("round trip changed tree:\n  in  %s\n  out %s", text, back)
		}
	}
}

func TestRoundTripPrograms(t *testing.T) {
	g := &astGen{r: rand.New(rand.NewSource(2))}
	for i := 0; i < 200; i++ {
		prog := g.program()
		text := prog.String()
		back, err := Parse(text)
		if err != nil {
			t.Fatalf("re-parse of %q: %v", text, err)
		}
		if !EqualProgram(prog, back) {
			t.Fatalf("round trip changed program:\n  in  %s\n  out %s", text, back)
		}
	}
}
