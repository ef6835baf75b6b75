package compiler

import "github.com/cmcintosh36/grumpy/vm"

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for grumpy
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Contains reports whether the byte offset falls inside the span.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start.Offset && offset < s.End.Offset
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// TypeKind identifies a Type variant.
type TypeKind int

const (
	TypeI32 TypeKind = iota
	TypeBool
	TypeUnit
	TypeArray
)

// Type is i32, bool, unit, or an array of another Type.
type Type struct {
	Kind TypeKind
	Elem *Type // element type, only for TypeArray
}

var (
	I32Type  = Type{Kind: TypeI32}
	BoolType = Type{Kind: TypeBool}
	UnitType = Type{Kind: TypeUnit}
)

// ArrayOf returns the array type with the given element type.
func ArrayOf(elem Type) Type {
	return Type{Kind: TypeArray, Elem: &elem}
}

// Equal reports whether t and u denote the same type.
func (t Type) Equal(u Type) bool {
	if t.Kind != u.Kind {
		return false
	}
	if t.Kind != TypeArray {
		return true
	}
	if t.Elem == nil || u.Elem == nil {
		return t.Elem == u.Elem
	}
	return t.Elem.Equal(*u.Elem)
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	String() string
	expr() // marker method
}

// IntLiteral represents an integer literal. The parser only produces
// non-negative values.
type IntLiteral struct {
	SpanVal Span
	Value   int32
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// UnitLiteral represents tt.
type UnitLiteral struct {
	SpanVal Span
}

func (n *UnitLiteral) Span() Span { return n.SpanVal }
func (n *UnitLiteral) node()      {}
func (n *UnitLiteral) expr()      {}

// Variable represents a reference to a parameter or let-bound name.
type Variable struct {
	SpanVal Span
	Name    string
}

func (n *Variable) Span() Span { return n.SpanVal }
func (n *Variable) node()      {}
func (n *Variable) expr()      {}

// UnaryExpr represents (neg e).
type UnaryExpr struct {
	SpanVal Span
	Op      vm.Unop
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// BinaryExpr represents (op left right). Left is evaluated first.
type BinaryExpr struct {
	SpanVal Span
	Op      vm.Binop
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// LetExpr represents (let name init body).
type LetExpr struct {
	SpanVal Span
	Name    string
	NamePos Position
	Init    Expr
	Body    Expr
}

func (n *LetExpr) Span() Span { return n.SpanVal }
func (n *LetExpr) node()      {}
func (n *LetExpr) expr()      {}

// SeqExpr represents (seq first second). First's value is discarded.
type SeqExpr struct {
	SpanVal Span
	First   Expr
	Second  Expr
}

func (n *SeqExpr) Span() Span { return n.SpanVal }
func (n *SeqExpr) node()      {}
func (n *SeqExpr) expr()      {}

// AllocExpr represents (alloc size init).
type AllocExpr struct {
	SpanVal Span
	Size    Expr
	Init    Expr
}

func (n *AllocExpr) Span() Span { return n.SpanVal }
func (n *AllocExpr) node()      {}
func (n *AllocExpr) expr()      {}

// SetExpr represents (set array index value).
type SetExpr struct {
	SpanVal Span
	Array   Expr
	Index   Expr
	Value   Expr
}

func (n *SetExpr) Span() Span { return n.SpanVal }
func (n *SetExpr) node()      {}
func (n *SetExpr) expr()      {}

// GetExpr represents (get array index).
type GetExpr struct {
	SpanVal Span
	Array   Expr
	Index   Expr
}

func (n *GetExpr) Span() Span { return n.SpanVal }
func (n *GetExpr) node()      {}
func (n *GetExpr) expr()      {}

// CondExpr represents (cond test then else).
type CondExpr struct {
	SpanVal Span
	Test    Expr
	Then    Expr
	Else    Expr
}

func (n *CondExpr) Span() Span { return n.SpanVal }
func (n *CondExpr) node()      {}
func (n *CondExpr) expr()      {}

// FunPtrExpr represents (funptr name).
type FunPtrExpr struct {
	SpanVal Span
	Name    string
	NamePos Position
}

func (n *FunPtrExpr) Span() Span { return n.SpanVal }
func (n *FunPtrExpr) node()      {}
func (n *FunPtrExpr) expr()      {}

// CallExpr represents a direct call (name args...).
type CallExpr struct {
	SpanVal Span
	Name    string
	NamePos Position
	Args    []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// CallIndirectExpr represents (call fn args...), a call through a
// computed function location.
type CallIndirectExpr struct {
	SpanVal Span
	Fn      Expr
	Args    []Expr
}

func (n *CallIndirectExpr) Span() Span { return n.SpanVal }
func (n *CallIndirectExpr) node()      {}
func (n *CallIndirectExpr) expr()      {}

// PrintExpr represents (print e).
type PrintExpr struct {
	SpanVal Span
	Operand Expr
}

func (n *PrintExpr) Span() Span { return n.SpanVal }
func (n *PrintExpr) node()      {}
func (n *PrintExpr) expr()      {}

// SpawnExpr represents (spawn e).
type SpawnExpr struct {
	SpanVal Span
	Operand Expr
}

func (n *SpawnExpr) Span() Span { return n.SpanVal }
func (n *SpawnExpr) node()      {}
func (n *SpawnExpr) expr()      {}

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

// Param is a function parameter.
type Param struct {
	Name string
	Type Type
	Pos  Position
}

// FunctionDef represents (fun name params -> result body).
type FunctionDef struct {
	SpanVal Span
	Name    string
	NamePos Position
	Params  []Param
	Result  Type
	Body    Expr
}

func (n *FunctionDef) Span() Span { return n.SpanVal }
func (n *FunctionDef) node()      {}

// Program is a list of function definitions followed by an entry
// expression.
type Program struct {
	SpanVal Span
	Funs    []*FunctionDef
	Entry   Expr
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}

// Lookup returns the function with the given name.
func (n *Program) Lookup(name string) *FunctionDef {
	for _, f := range n.Funs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Traversal and comparison
// ---------------------------------------------------------------------------

// Children returns the direct sub-expressions of e in evaluation order.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case *UnaryExpr:
		return []Expr{n.Operand}
	case *BinaryExpr:
		return []Expr{n.Left, n.Right}
	case *LetExpr:
		return []Expr{n.Init, n.Body}
	case *SeqExpr:
		return []Expr{n.First, n.Second}
	case *AllocExpr:
		return []Expr{n.Size, n.Init}
	case *SetExpr:
		return []Expr{n.Array, n.Index, n.Value}
	case *GetExpr:
		return []Expr{n.Array, n.Index}
	case *CondExpr:
		return []Expr{n.Test, n.Then, n.Else}
	case *CallExpr:
		return n.Args
	case *CallIndirectExpr:
		return append([]Expr{n.Fn}, n.Args...)
	case *PrintExpr:
		return []Expr{n.Operand}
	case *SpawnExpr:
		return []Expr{n.Operand}
	}
	return nil
}

// Inspect traverses e depth-first, calling f for each node. If f returns
// false the node's children are skipped.
func Inspect(e Expr, f func(Expr) bool) {
	if e == nil || !f(e) {
		return
	}
	for _, c := range Children(e) {
		Inspect(c, f)
	}
}

// Equal reports whether a and b have the same structure, ignoring source
// positions.
func Equal(a, b Expr) bool {
	switch x := a.(type) {
	case *IntLiteral:
		y, ok := b.(*IntLiteral)
		return ok && x.Value == y.Value
	case *BoolLiteral:
		y, ok := b.(*BoolLiteral)
		return ok && x.Value == y.Value
	case *UnitLiteral:
		_, ok := b.(*UnitLiteral)
		return ok
	case *Variable:
		y, ok := b.(*Variable)
		return ok && x.Name == y.Name
	case *UnaryExpr:
		y, ok := b.(*UnaryExpr)
		return ok && x.Op == y.Op && Equal(x.Operand, y.Operand)
	case *BinaryExpr:
		y, ok := b.(*BinaryExpr)
		return ok && x.Op == y.Op && Equal(x.Left, y.Left) && Equal(x.Right, y.Right)
	case *LetExpr:
		y, ok := b.(*LetExpr)
		return ok && x.Name == y.Name && Equal(x.Init, y.Init) && Equal(x.Body, y.Body)
	case *SeqExpr:
		y, ok := b.(*SeqExpr)
		return ok && Equal(x.First, y.First) && Equal(x.Second, y.Second)
	case *AllocExpr:
		y, ok := b.(*AllocExpr)
		return ok && Equal(x.Size, y.Size) && Equal(x.Init, y.Init)
	case *SetExpr:
		y, ok := b.(*SetExpr)
		return ok && Equal(x.Array, y.Array) && Equal(x.Index, y.Index) && Equal(x.Value, y.Value)
	case *GetExpr:
		y, ok := b.(*GetExpr)
		return ok && Equal(x.Array, y.Array) && Equal(x.Index, y.Index)
	case *CondExpr:
		y, ok := b.(*CondExpr)
		return ok && Equal(x.Test, y.Test) && Equal(x.Then, y.Then) && Equal(x.Else, y.Else)
	case *FunPtrExpr:
		y, ok := b.(*FunPtrExpr)
		return ok && x.Name == y.Name
	case *CallExpr:
		y, ok := b.(*CallExpr)
		return ok && x.Name == y.Name && equalList(x.Args, y.Args)
	case *CallIndirectExpr:
		y, ok := b.(*CallIndirectExpr)
		return ok && Equal(x.Fn, y.Fn) && equalList(x.Args, y.Args)
	case *PrintExpr:
		y, ok := b.(*PrintExpr)
		return ok && Equal(x.Operand, y.Operand)
	case *SpawnExpr:
		y, ok := b.(*SpawnExpr)
		return ok && Equal(x.Operand, y.Operand)
	case nil:
		return b == nil
	}
	return false
}

func equalList(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// EqualFunction reports whether two definitions match, ignoring positions.
func EqualFunction(a, b *FunctionDef) bool {
	if a.Name != b.Name || len(a.Params) != len(b.Params) || !a.Result.Equal(b.Result) {
		return false
	}
	for i := range a.Params {
		if a.Params[i].Name != b.Params[i].Name || !a.Params[i].Type.Equal(b.Params[i].Type) {
			return false
		}
	}
	return Equal(a.Body, b.Body)
}

// EqualProgram reports whether two programs match, ignoring positions.
func EqualProgram(a, b *Program) bool {
	if len(a.Funs) != len(b.Funs) {
		return false
	}
	for i := range a.Funs {
		if !EqualFunction(a.Funs[i], b.Funs[i]) {
			return false
		}
	}
	return Equal(a.Entry, b.Entry)
}
