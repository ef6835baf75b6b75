package hash

import (
	"github.com/cmcintosh36/grumpy/compiler"
)

// ---------------------------------------------------------------------------
// AST Normalization: compiler AST → frozen hashing AST
//
// Walks the compiler's AST and produces the hashing AST with de Bruijn
// indices for parameters and let bindings.
// ---------------------------------------------------------------------------

// normalizer holds the binder stack for one function body.
type normalizer struct {
	binders []string // innermost last
}

// NormalizeProgram transforms a Program into its hashing form.
func NormalizeProgram(prog *compiler.Program) *HProgram {
	hp := &HProgram{Funs: make([]*HFunction, len(prog.Funs))}
	for i, f := range prog.Funs {
		hp.Funs[i] = NormalizeFunction(f)
	}
	n := &normalizer{}
	hp.Entry = n.normalizeExpr(prog.Entry)
	return hp
}

// NormalizeFunction transforms a FunctionDef into its hashing form.
func NormalizeFunction(f *compiler.FunctionDef) *HFunction {
	n := &normalizer{binders: make([]string, 0, len(f.Params))}
	params := make([]HType, len(f.Params))
	for i, p := range f.Params {
		params[i] = normalizeType(p.Type)
		n.binders = append(n.binders, p.Name)
	}
	return &HFunction{
		Name:   f.Name,
		Params: params,
		Result: normalizeType(f.Result),
		Body:   n.normalizeExpr(f.Body),
	}
}

func normalizeType(t compiler.Type) HType {
	switch t.Kind {
	case compiler.TypeBool:
		return HType{Kind: TagTypeBool}
	case compiler.TypeUnit:
		return HType{Kind: TagTypeUnit}
	case compiler.TypeArray:
		ht := HType{Kind: TagTypeArray}
		if t.Elem != nil {
			elem := normalizeType(*t.Elem)
			ht.Elem = &elem
		}
		return ht
	}
	return HType{Kind: TagTypeI32}
}

func (n *normalizer) resolve(name string) HNode {
	for i := len(n.binders) - 1; i >= 0; i-- {
		if n.binders[i] == name {
			return &HLocalRef{Index: uint32(len(n.binders) - 1 - i)}
		}
	}
	return &HFreeRef{Name: name}
}

func (n *normalizer) normalizeList(exprs []compiler.Expr) []HNode {
	out := make([]HNode, len(exprs))
	for i, e := range exprs {
		out[i] = n.normalizeExpr(e)
	}
	return out
}

// ---------------------------------------------------------------------------
// Expression normalization
// ---------------------------------------------------------------------------

func (n *normalizer) normalizeExpr(expr compiler.Expr) HNode {
	switch e := expr.(type) {
	case *compiler.IntLiteral:
		return &HIntLiteral{Value: e.Value}
	case *compiler.BoolLiteral:
		return &HBoolLiteral{Value: e.Value}
	case *compiler.UnitLiteral:
		return &HUnitLiteral{}
	case *compiler.Variable:
		return n.resolve(e.Name)
	case *compiler.UnaryExpr:
		return &HUnary{Op: uint8(e.Op), Operand: n.normalizeExpr(e.Operand)}
	case *compiler.BinaryExpr:
		return &HBinary{Op: uint8(e.Op), Left: n.normalizeExpr(e.Left), Right: n.normalizeExpr(e.Right)}
	case *compiler.LetExpr:
		init := n.normalizeExpr(e.Init)
		n.binders = append(n.binders, e.Name)
		body := n.normalizeExpr(e.Body)
		n.binders = n.binders[:len(n.binders)-1]
		return &HLet{Init: init, Body: body}
	case *compiler.SeqExpr:
		return &HSeq{First: n.normalizeExpr(e.First), Second: n.normalizeExpr(e.Second)}
	case *compiler.CondExpr:
		return &HCond{Test: n.normalizeExpr(e.Test), Then: n.normalizeExpr(e.Then), Else: n.normalizeExpr(e.Else)}
	case *compiler.AllocExpr:
		return &HAlloc{Size: n.normalizeExpr(e.Size), Init: n.normalizeExpr(e.Init)}
	case *compiler.SetExpr:
		return &HSet{Array: n.normalizeExpr(e.Array), Index: n.normalizeExpr(e.Index), Value: n.normalizeExpr(e.Value)}
	case *compiler.GetExpr:
		return &HGet{Array: n.normalizeExpr(e.Array), Index: n.normalizeExpr(e.Index)}
	case *compiler.FunPtrExpr:
		return &HFunPtr{Name: e.Name}
	case *compiler.CallExpr:
		return &HCall{Name: e.Name, Args: n.normalizeList(e.Args)}
	case *compiler.CallIndirectExpr:
		return &HCallIndirect{Fn: n.normalizeExpr(e.Fn), Args: n.normalizeList(e.Args)}
	case *compiler.PrintExpr:
		return &HPrint{Operand: n.normalizeExpr(e.Operand)}
	case *compiler.SpawnExpr:
		return &HSpawn{Operand: n.normalizeExpr(e.Operand)}
	default:
		// Unknown expression type; should not happen
		return &HUnitLiteral{}
	}
}
