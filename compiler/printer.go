package compiler

import (
	"math"
	"strconv"
	"strings"
)

// Canonical printing. Every String method renders fully-parenthesized
// source text that parses back to an Equal tree, provided its integer
// literals are non-negative as the parser produces them.

func (t Type) String() string {
	switch t.Kind {
	case TypeI32:
		return "i32"
	case TypeBool:
		return "bool"
	case TypeUnit:
		return "unit"
	case TypeArray:
		if t.Elem == nil {
			return "(array ?)"
		}
		return "(array " + t.Elem.String() + ")"
	}
	return "?"
}

// The lexer has no negative literals, so negative values print as an
// expression that evaluates to them. Parsed literals are never negative.
func (n *IntLiteral) String() string {
	switch {
	case n.Value >= 0:
		return strconv.FormatInt(int64(n.Value), 10)
	case n.Value == math.MinInt32:
		return "(- (neg 2147483647) 1)"
	}
	return "(neg " + strconv.FormatInt(-int64(n.Value), 10) + ")"
}

func (n *BoolLiteral) String() string { return strconv.FormatBool(n.Value) }

func (n *UnitLiteral) String() string { return "tt" }

func (n *Variable) String() string { return n.Name }

func (n *UnaryExpr) String() string { return form(n.Op.String(), n.Operand) }

func (n *BinaryExpr) String() string { return form(n.Op.String(), n.Left, n.Right) }

func (n *LetExpr) String() string { return form("let "+n.Name, n.Init, n.Body) }

func (n *SeqExpr) String() string { return form("seq", n.First, n.Second) }

func (n *AllocExpr) String() string { return form("alloc", n.Size, n.Init) }

func (n *SetExpr) String() string { return form("set", n.Array, n.Index, n.Value) }

func (n *GetExpr) String() string { return form("get", n.Array, n.Index) }

func (n *CondExpr) String() string { return form("cond", n.Test, n.Then, n.Else) }

func (n *FunPtrExpr) String() string { return "(funptr " + n.Name + ")" }

func (n *CallExpr) String() string { return form(n.Name, n.Args...) }

func (n *CallIndirectExpr) String() string {
	return form("call", append([]Expr{n.Fn}, n.Args...)...)
}

func (n *PrintExpr) String() string { return form("print", n.Operand) }

func (n *SpawnExpr) String() string { return form("spawn", n.Operand) }

func form(head string, args ...Expr) string {
	var sb strings.Builder
	sb.WriteByte('(')
	sb.WriteString(head)
	for _, a := range args {
		sb.WriteByte(' ')
		sb.WriteString(a.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Signature renders the function header: name, parameters and result.
func (n *FunctionDef) Signature() string {
	var sb strings.Builder
	sb.WriteString(n.Name)
	for _, p := range n.Params {
		sb.WriteString(" (")
		sb.WriteString(p.Name)
		sb.WriteByte(' ')
		sb.WriteString(p.Type.String())
		sb.WriteByte(')')
	}
	sb.WriteString(" -> ")
	sb.WriteString(n.Result.String())
	return sb.String()
}

func (n *FunctionDef) String() string {
	return "(fun " + n.Signature() + " " + n.Body.String() + ")"
}

func (n *Program) String() string {
	var sb strings.Builder
	for _, f := range n.Funs {
		sb.WriteString(f.String())
		sb.WriteByte('\n')
	}
	sb.WriteString("% ")
	if n.Entry != nil {
		sb.WriteString(n.Entry.String())
	}
	return sb.String()
}
