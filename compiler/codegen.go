package compiler

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/cmcintosh36/grumpy/vm"
)

var log = commonlog.GetLogger("grumpy.compiler")

// ---------------------------------------------------------------------------
// Codegen: Compile AST to GrumpyVM instructions
// ---------------------------------------------------------------------------

// Generator lowers a Program to a vm.Module.
//
// Frame layout seen by a function body: arguments at fp+0..n-1, the saved
// frame pointer at fp+n, the return address at fp+n+1, then let slots and
// temporaries. The generator tracks the stack depth relative to fp so
// every variable resolves to a fixed var(i) slot.
type Generator struct {
	instrs []vm.Instr
	funs   map[string]*FunctionDef
	locs   map[string]uint32
	fixups []fixup

	// Current body
	scope []binding
	depth int
}

// binding maps a parameter or let-bound name to its frame slot.
type binding struct {
	name string
	slot int
}

// fixup records a Push(loc) whose target function is resolved after all
// bodies are placed.
type fixup struct {
	at   int
	name string
}

// NewGenerator creates a generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Compile generates a module for prog.
func Compile(prog *Program) (*vm.Module, error) {
	return NewGenerator().Compile(prog)
}

// CompileExpr generates a module whose entry expression is e and which
// defines no functions.
func CompileExpr(e Expr) (*vm.Module, error) {
	return NewGenerator().Compile(&Program{SpanVal: e.Span(), Entry: e})
}

// Compile lays out the prologue, the entry expression at vm.EntryLoc and
// then each function body, and resolves function locations.
func (g *Generator) Compile(prog *Program) (*vm.Module, error) {
	g.instrs = vm.Prologue()
	g.funs = make(map[string]*FunctionDef, len(prog.Funs))
	g.locs = make(map[string]uint32, len(prog.Funs))
	g.fixups = nil
	for _, f := range prog.Funs {
		g.funs[f.Name] = f
	}

	symbols := map[string]uint32{"main": uint32(len(g.instrs))}
	if err := g.compileBody(prog.Entry, nil); err != nil {
		return nil, err
	}
	for _, f := range prog.Funs {
		loc := uint32(len(g.instrs))
		g.locs[f.Name] = loc
		symbols[f.Name] = loc
		if err := g.compileBody(f.Body, f.Params); err != nil {
			return nil, err
		}
	}

	for _, fx := range g.fixups {
		g.instrs[fx.at] = vm.Push(vm.Loc(g.locs[fx.name]))
	}

	log.Debugf("generated %d instructions for %d functions", len(g.instrs), len(prog.Funs))
	return &vm.Module{Instrs: g.instrs, Symbols: symbols}, nil
}

// compileBody emits body followed by Ret, in a fresh frame holding params.
func (g *Generator) compileBody(body Expr, params []Param) error {
	g.scope = g.scope[:0]
	for i, p := range params {
		g.scope = append(g.scope, binding{name: p.Name, slot: i})
	}
	g.depth = len(params) + 2
	if err := g.compileExpr(body); err != nil {
		return err
	}
	g.emit(vm.Ret())
	return nil
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

// emit appends instructions and returns the index of the first one.
func (g *Generator) emit(instrs ...vm.Instr) int {
	at := len(g.instrs)
	g.instrs = append(g.instrs, instrs...)
	return at
}

func (g *Generator) here() uint32 {
	return uint32(len(g.instrs))
}

// patch points the Push at index at to the current location.
func (g *Generator) patch(at int) {
	g.instrs[at] = vm.Push(vm.Loc(g.here()))
}

func (g *Generator) lookup(name string) (int, bool) {
	for i := len(g.scope) - 1; i >= 0; i-- {
		if g.scope[i].name == name {
			return g.scope[i].slot, true
		}
	}
	return 0, false
}

func (g *Generator) function(name string, pos Position) (*FunctionDef, error) {
	f, ok := g.funs[name]
	if !ok {
		return nil, &Error{Kind: ErrUndefinedFunction, Pos: pos, Detail: name}
	}
	return f, nil
}

// pushFunction emits a placeholder Push for name's location.
func (g *Generator) pushFunction(name string) {
	at := g.emit(vm.Push(vm.Loc(0)))
	g.fixups = append(g.fixups, fixup{at: at, name: name})
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// compileExpr emits code leaving exactly one value above the current depth.
func (g *Generator) compileExpr(expr Expr) error {
	switch e := expr.(type) {
	case *IntLiteral:
		g.emit(vm.Push(vm.Int(e.Value)))
		g.depth++
	case *BoolLiteral:
		g.emit(vm.Push(vm.Bool(e.Value)))
		g.depth++
	case *UnitLiteral:
		g.emit(vm.Push(vm.Unit))
		g.depth++
	case *Variable:
		slot, ok := g.lookup(e.Name)
		if !ok {
			return &Error{Kind: ErrUndefinedVariable, Pos: e.SpanVal.Start, Detail: e.Name}
		}
		g.emit(vm.Var(uint32(slot)))
		g.depth++
	case *UnaryExpr:
		if err := g.compileExpr(e.Operand); err != nil {
			return err
		}
		g.emit(vm.Unary(e.Op))
	case *BinaryExpr:
		if err := g.compileAll(e.Left, e.Right); err != nil {
			return err
		}
		g.emit(vm.Binary(e.Op))
		g.depth--
	case *LetExpr:
		return g.compileLet(e)
	case *SeqExpr:
		if err := g.compileExpr(e.First); err != nil {
			return err
		}
		g.emit(vm.Pop())
		g.depth--
		return g.compileExpr(e.Second)
	case *AllocExpr:
		if err := g.compileAll(e.Size, e.Init); err != nil {
			return err
		}
		g.emit(vm.Alloc())
		g.depth--
	case *SetExpr:
		if err := g.compileAll(e.Array, e.Index, e.Value); err != nil {
			return err
		}
		g.emit(vm.Set(), vm.Push(vm.Unit))
		g.depth -= 2
	case *GetExpr:
		if err := g.compileAll(e.Array, e.Index); err != nil {
			return err
		}
		g.emit(vm.Get())
		g.depth--
	case *CondExpr:
		return g.compileCond(e)
	case *FunPtrExpr:
		if _, err := g.function(e.Name, e.NamePos); err != nil {
			return err
		}
		g.pushFunction(e.Name)
		g.depth++
	case *CallExpr:
		return g.compileCall(e)
	case *CallIndirectExpr:
		return g.compileCallIndirect(e)
	case *PrintExpr:
		if err := g.compileExpr(e.Operand); err != nil {
			return err
		}
		g.emit(vm.Unary(vm.Print))
	case *SpawnExpr:
		if ptr, ok := e.Operand.(*FunPtrExpr); ok {
			if f, found := g.funs[ptr.Name]; found && len(f.Params) > 0 {
				return &Error{
					Kind:   ErrArityMismatch,
					Pos:    ptr.NamePos,
					Detail: fmt.Sprintf("spawned function %s must take no arguments, takes %d", f.Name, len(f.Params)),
				}
			}
		}
		if err := g.compileExpr(e.Operand); err != nil {
			return err
		}
		g.emit(vm.Unary(vm.Spawn))
	default:
		return fmt.Errorf("compiler: unsupported expression %T", expr)
	}
	return nil
}

// compileAll emits each expression in order, leaving len(exprs) values.
func (g *Generator) compileAll(exprs ...Expr) error {
	for _, e := range exprs {
		if err := g.compileExpr(e); err != nil {
			return err
		}
	}
	return nil
}

// (let x init body): init's value becomes x's slot; after the body the
// slot is dropped from under the result.
func (g *Generator) compileLet(e *LetExpr) error {
	slot := g.depth
	if err := g.compileExpr(e.Init); err != nil {
		return err
	}
	g.scope = append(g.scope, binding{name: e.Name, slot: slot})
	err := g.compileExpr(e.Body)
	g.scope = g.scope[:len(g.scope)-1]
	if err != nil {
		return err
	}
	g.emit(vm.Swap(), vm.Pop())
	g.depth--
	return nil
}

// (cond t a b):
//
//	t; push(Lthen); branch; b; push(true); push(Lend); branch; Lthen: a; Lend:
func (g *Generator) compileCond(e *CondExpr) error {
	if err := g.compileExpr(e.Test); err != nil {
		return err
	}
	toThen := g.emit(vm.Push(vm.Loc(0)), vm.Branch())
	g.depth--
	base := g.depth

	if err := g.compileExpr(e.Else); err != nil {
		return err
	}
	toEnd := g.emit(vm.Push(vm.True), vm.Push(vm.Loc(0)), vm.Branch()) + 1

	g.patch(toThen)
	g.depth = base
	if err := g.compileExpr(e.Then); err != nil {
		return err
	}
	g.patch(toEnd)
	return nil
}

// (f args...): args; setframe(n); push(f); call
func (g *Generator) compileCall(e *CallExpr) error {
	f, err := g.function(e.Name, e.NamePos)
	if err != nil {
		return err
	}
	if len(e.Args) != len(f.Params) {
		return &Error{
			Kind:   ErrArityMismatch,
			Pos:    e.NamePos,
			Detail: fmt.Sprintf("%s takes %d arguments, got %d", e.Name, len(f.Params), len(e.Args)),
		}
	}
	if err := g.compileAll(e.Args...); err != nil {
		return err
	}
	n := len(e.Args)
	g.emit(vm.SetFrame(uint32(n)))
	g.pushFunction(e.Name)
	g.emit(vm.Call())
	g.depth -= n - 1
	return nil
}

// (call fn args...): fn; args; setframe(n); peek(n); call; swap; pop
func (g *Generator) compileCallIndirect(e *CallIndirectExpr) error {
	if err := g.compileExpr(e.Fn); err != nil {
		return err
	}
	if err := g.compileAll(e.Args...); err != nil {
		return err
	}
	n := len(e.Args)
	g.emit(
		vm.SetFrame(uint32(n)),
		vm.Peek(uint32(n)),
		vm.Call(),
		vm.Swap(),
		vm.Pop(),
	)
	g.depth -= n
	return nil
}
