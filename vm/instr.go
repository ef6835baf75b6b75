package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// Unop is a unary operator applied by the Unary instruction.
type Unop uint8

const (
	// Neg negates an i32 or logically inverts a bool.
	Neg Unop = iota
	// Print writes its operand to the machine's output and yields unit.
	Print
	// Spawn starts a zero-argument function concurrently and yields unit.
	Spawn
)

var unopNames = map[Unop]string{
	Neg:   "neg",
	Print: "print",
	Spawn: "spawn",
}

func (u Unop) String() string {
	if name, ok := unopNames[u]; ok {
		return name
	}
	return fmt.Sprintf("Unop(%d)", u)
}

// Binop is a binary operator applied by the Binary instruction.
type Binop uint8

const (
	Add Binop = iota
	Sub
	Mul
	Div
	Lt
	Eq
)

var binopNames = map[Binop]string{
	Add: "+",
	Sub: "-",
	Mul: "*",
	Div: "/",
	Lt:  "<",
	Eq:  "==",
}

func (b Binop) String() string {
	if name, ok := binopNames[b]; ok {
		return name
	}
	return fmt.Sprintf("Binop(%d)", b)
}

// LookupBinop maps operator text to a Binop.
func LookupBinop(sym string) (Binop, bool) {
	for op, name := range binopNames {
		if name == sym {
			return op, true
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies a GrumpyVM instruction.
type Opcode uint8

const (
	OpPush     Opcode = iota // push(v)
	OpPop                    // discard top
	OpPeek                   // push copy of the i-th value from the top
	OpUnary                  // apply a Unop to the top value
	OpBinary                 // apply a Binop to the top two values
	OpSwap                   // exchange the top two values
	OpAlloc                  // size init -> addr
	OpSet                    // addr index value ->
	OpGet                    // addr index -> value
	OpVar                    // push stack[fp+i]
	OpStore                  // stack[fp+i] = pop
	OpSetFrame               // fp = len(stack) - n
	OpCall                   // jump to popped loc, saving return state
	OpRet                    // return to caller
	OpBranch                 // conditional jump
	OpHalt                   // stop
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string // listing name
	StackEffect int    // net effect on stack (0 when it depends on operands)
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpPush:     {"Push", 1},
	OpPop:      {"Pop", -1},
	OpPeek:     {"Peek", 1},
	OpUnary:    {"Unary", 0},
	OpBinary:   {"Binary", -1},
	OpSwap:     {"Swap", 0},
	OpAlloc:    {"Alloc", -1},
	OpSet:      {"Set", -3},
	OpGet:      {"Get", -1},
	OpVar:      {"Var", 1},
	OpStore:    {"Store", -1},
	OpSetFrame: {"SetFrame", 0},
	OpCall:     {"Call", 0},
	OpRet:      {"Ret", 0},
	OpBranch:   {"Branch", -2},
	OpHalt:     {"Halt", 0},
}

// Info returns metadata for the opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("Op(%d)", op)}
}

func (op Opcode) String() string {
	return op.Info().Name
}

// ---------------------------------------------------------------------------
// Instr
// ---------------------------------------------------------------------------

// Instr is one GrumpyVM instruction. Val is the operand of Push; Arg is the
// operand of Peek, Var, Store and SetFrame, and the operator of Unary and
// Binary.
type Instr struct {
	Op  Opcode `cbor:"1,keyasint"`
	Val Value  `cbor:"2,keyasint,omitempty"`
	Arg uint32 `cbor:"3,keyasint,omitempty"`
}

func Push(v Value) Instr      { return Instr{Op: OpPush, Val: v} }
func Pop() Instr              { return Instr{Op: OpPop} }
func Peek(i uint32) Instr     { return Instr{Op: OpPeek, Arg: i} }
func Unary(u Unop) Instr      { return Instr{Op: OpUnary, Arg: uint32(u)} }
func Binary(b Binop) Instr    { return Instr{Op: OpBinary, Arg: uint32(b)} }
func Swap() Instr             { return Instr{Op: OpSwap} }
func Alloc() Instr            { return Instr{Op: OpAlloc} }
func Set() Instr              { return Instr{Op: OpSet} }
func Get() Instr              { return Instr{Op: OpGet} }
func Var(i uint32) Instr      { return Instr{Op: OpVar, Arg: i} }
func Store(i uint32) Instr    { return Instr{Op: OpStore, Arg: i} }
func SetFrame(n uint32) Instr { return Instr{Op: OpSetFrame, Arg: n} }
func Call() Instr             { return Instr{Op: OpCall} }
func Ret() Instr              { return Instr{Op: OpRet} }
func Branch() Instr           { return Instr{Op: OpBranch} }
func Halt() Instr             { return Instr{Op: OpHalt} }

// Unop returns the operator of a Unary instruction.
func (in Instr) Unop() Unop { return Unop(in.Arg) }

// Binop returns the operator of a Binary instruction.
func (in Instr) Binop() Binop { return Binop(in.Arg) }

// String renders the instruction in the debug form printed by the driver,
// e.g. Push(Vi32(3)), Binary(+), SetFrame(2).
func (in Instr) String() string {
	switch in.Op {
	case OpPush:
		return fmt.Sprintf("Push(%#v)", in.Val)
	case OpPeek, OpVar, OpStore, OpSetFrame:
		return fmt.Sprintf("%s(%d)", in.Op, in.Arg)
	case OpUnary:
		return fmt.Sprintf("Unary(%s)", in.Unop())
	case OpBinary:
		return fmt.Sprintf("Binary(%s)", in.Binop())
	default:
		return in.Op.String()
	}
}

// ---------------------------------------------------------------------------
// Module
// ---------------------------------------------------------------------------

// EntryLoc is where generated modules place the entry expression: right
// after the four-instruction prologue.
const EntryLoc = 4

// Prologue returns the instructions that call the entry expression and
// halt with its result.
func Prologue() []Instr {
	return []Instr{
		SetFrame(0),
		Push(Loc(EntryLoc)),
		Call(),
		Halt(),
	}
}

// Module is a linked instruction sequence plus the entry locations of its
// functions. The entry expression is registered under "main".
type Module struct {
	Instrs  []Instr           `cbor:"1,keyasint"`
	Symbols map[string]uint32 `cbor:"2,keyasint,omitempty"`
}

// Lookup returns the entry location of a named function.
func (m *Module) Lookup(name string) (uint32, bool) {
	loc, ok := m.Symbols[name]
	return loc, ok
}

// SymbolAt returns the function whose body starts at loc.
func (m *Module) SymbolAt(loc uint32) (string, bool) {
	for name, l := range m.Symbols {
		if l == loc {
			return name, true
		}
	}
	return "", false
}
