package hash

// ---------------------------------------------------------------------------
// Frozen hashing AST types.
//
// These are stripped-down parallels of compiler/ast.go with no position
// data and de Bruijn indices instead of local variable names. Two programs
// that differ only in the names of parameters and let-bound variables
// produce identical hashing ASTs.
// ---------------------------------------------------------------------------

// HNode is the interface implemented by all hashing AST nodes.
type HNode interface {
	hnode() // marker method
}

type HIntLiteral struct{ Value int32 }
type HBoolLiteral struct{ Value bool }
type HUnitLiteral struct{}

// HLocalRef references a parameter or let binding. Index 0 is the
// innermost binder in scope, 1 the one enclosing it, and so on; a
// function's parameters are the outermost binders, first parameter last.
type HLocalRef struct{ Index uint32 }

// HFreeRef is a name with no binder in scope.
type HFreeRef struct{ Name string }

type HUnary struct {
	Op      uint8
	Operand HNode
}

type HBinary struct {
	Op          uint8
	Left, Right HNode
}

// HLet binds Init for the duration of Body. The name is not recorded.
type HLet struct{ Init, Body HNode }

type HSeq struct{ First, Second HNode }
type HCond struct{ Test, Then, Else HNode }
type HAlloc struct{ Size, Init HNode }
type HSet struct{ Array, Index, Value HNode }
type HGet struct{ Array, Index HNode }

// Function names are global and keep their spelling.
type HFunPtr struct{ Name string }
type HCall struct {
	Name string
	Args []HNode
}
type HCallIndirect struct {
	Fn   HNode
	Args []HNode
}
type HPrint struct{ Operand HNode }
type HSpawn struct{ Operand HNode }

// HType is a type in tag form: Kind is one of the TagType* bytes.
type HType struct {
	Kind byte
	Elem *HType
}

type HFunction struct {
	Name   string
	Params []HType
	Result HType
	Body   HNode
}

type HProgram struct {
	Funs  []*HFunction
	Entry HNode
}

func (*HIntLiteral) hnode()   {}
func (*HBoolLiteral) hnode()  {}
func (*HUnitLiteral) hnode()  {}
func (*HLocalRef) hnode()     {}
func (*HFreeRef) hnode()      {}
func (*HUnary) hnode()        {}
func (*HBinary) hnode()       {}
func (*HLet) hnode()          {}
func (*HSeq) hnode()          {}
func (*HCond) hnode()         {}
func (*HAlloc) hnode()        {}
func (*HSet) hnode()          {}
func (*HGet) hnode()          {}
func (*HFunPtr) hnode()       {}
func (*HCall) hnode()         {}
func (*HCallIndirect) hnode() {}
func (*HPrint) hnode()        {}
func (*HSpawn) hnode()        {}
func (*HFunction) hnode()     {}
func (*HProgram) hnode()      {}
