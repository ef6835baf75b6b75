package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Value: tagged runtime value
// ---------------------------------------------------------------------------

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// User-visible kinds. These may appear in source-level programs.
	KindUnit Kind = iota
	KindI32
	KindBool
	KindLoc
	KindUndef

	// Runtime-internal kinds. Only the generator and the executor produce
	// these; the parser never does.
	KindSize
	KindAddr
)

var kindNames = map[Kind]string{
	KindUnit:  "unit",
	KindI32:   "i32",
	KindBool:  "bool",
	KindLoc:   "loc",
	KindUndef: "undef",
	KindSize:  "size",
	KindAddr:  "addr",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is a GrumpyVM value. The payload lives in N and is interpreted
// according to Kind: a signed 32-bit integer for i32 and size, 0/1 for
// bool, an unsigned index for loc and addr.
type Value struct {
	Kind Kind  `cbor:"1,keyasint"`
	N    int64 `cbor:"2,keyasint,omitempty"`
}

// Unit and Undef are the payload-free values.
var (
	Unit  = Value{Kind: KindUnit}
	Undef = Value{Kind: KindUndef}
	True  = Value{Kind: KindBool, N: 1}
	False = Value{Kind: KindBool, N: 0}
)

// Int returns an i32 value.
func Int(n int32) Value { return Value{Kind: KindI32, N: int64(n)} }

// Bool returns a bool value.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Loc returns a stack or instruction location.
func Loc(i uint32) Value { return Value{Kind: KindLoc, N: int64(i)} }

// Size returns a heap block size header.
func Size(n int32) Value { return Value{Kind: KindSize, N: int64(n)} }

// Addr returns a heap address.
func Addr(a uint32) Value { return Value{Kind: KindAddr, N: int64(a)} }

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// IsInternal reports whether v is a runtime-internal value (size or addr).
func (v Value) IsInternal() bool {
	return v.Kind == KindSize || v.Kind == KindAddr
}

// I32 returns the integer payload of an i32 or size value.
func (v Value) I32() int32 { return int32(v.N) }

// Bool returns the payload of a bool value.
func (v Value) Bool() bool { return v.N != 0 }

// Index returns the payload of a loc or addr value.
func (v Value) Index() uint32 { return uint32(v.N) }

// Equal reports whether v and w are the same kind with the same payload.
func (v Value) Equal(w Value) bool {
	return v.Kind == w.Kind && v.N == w.N
}

// String renders v the way print shows it to users.
func (v Value) String() string {
	switch v.Kind {
	case KindUnit:
		return "tt"
	case KindI32:
		return fmt.Sprintf("%d", int32(v.N))
	case KindBool:
		if v.N != 0 {
			return "true"
		}
		return "false"
	case KindLoc:
		return fmt.Sprintf("loc(%d)", uint32(v.N))
	case KindUndef:
		return "undef"
	case KindSize:
		return fmt.Sprintf("size(%d)", int32(v.N))
	case KindAddr:
		return fmt.Sprintf("addr(%d)", uint32(v.N))
	default:
		return fmt.Sprintf("Value(%d, %d)", v.Kind, v.N)
	}
}

// GoString is the debug form used in instruction listings.
func (v Value) GoString() string {
	switch v.Kind {
	case KindUnit:
		return "Vunit"
	case KindI32:
		return fmt.Sprintf("Vi32(%d)", int32(v.N))
	case KindBool:
		return fmt.Sprintf("Vbool(%t)", v.N != 0)
	case KindLoc:
		return fmt.Sprintf("Vloc(%d)", uint32(v.N))
	case KindUndef:
		return "Vundef"
	case KindSize:
		return fmt.Sprintf("Vsize(%d)", int32(v.N))
	case KindAddr:
		return fmt.Sprintf("Vaddr(%d)", uint32(v.N))
	default:
		return v.String()
	}
}
