package vm

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func sampleModule() *Module {
	instrs := append(Prologue(),
		Push(Int(-3)),
		Push(True),
		Push(Unit),
		Push(Loc(12)),
		Peek(2),
		Unary(Neg),
		Binary(Div),
		SetFrame(2),
		Var(1),
		Store(3),
		Alloc(),
		Ret(),
	)
	return &Module{
		Instrs:  instrs,
		Symbols: map[string]uint32{"main": EntryLoc, "f": 12},
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	mod := sampleModule()
	data, err := Marshal(mod)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.HasPrefix(data, ModuleMagic) {
		t.Fatalf("encoded module missing magic: % x", data[:8])
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, mod) {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", Format(got.Instrs), Format(mod.Instrs))
	}
}

func TestMarshalDeterministic(t *testing.T) {
	a, err := Marshal(sampleModule())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(sampleModule())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("equal modules encoded to different bytes")
	}
}

func TestUnmarshalRejects(t *testing.T) {
	good, err := Marshal(sampleModule())
	if err != nil {
		t.Fatal(err)
	}
	badVersion := append([]byte(nil), good...)
	badVersion[len(ModuleMagic)+1]++

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong magic", append([]byte("XXXX"), good[4:]...)},
		{"wrong version", badVersion},
		{"truncated body", good[:len(good)-3]},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Unmarshal(tc.data); !errors.Is(err, ErrBadModule) {
				t.Errorf("err = %v, want ErrBadModule", err)
			}
		})
	}
}

func TestInstrString(t *testing.T) {
	tests := []struct {
		in   Instr
		want string
	}{
		{Push(Int(3)), "Push(Vi32(3))"},
		{Push(Unit), "Push(Vunit)"},
		{Push(False), "Push(Vbool(false))"},
		{Push(Loc(4)), "Push(Vloc(4))"},
		{Push(Undef), "Push(Vundef)"},
		{Binary(Add), "Binary(+)"},
		{Binary(Eq), "Binary(==)"},
		{Unary(Neg), "Unary(neg)"},
		{SetFrame(2), "SetFrame(2)"},
		{Var(0), "Var(0)"},
		{Call(), "Call"},
		{Halt(), "Halt"},
	}
	for _, tc := range tests {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestFormatPrologue(t *testing.T) {
	want := "[SetFrame(0), Push(Vloc(4)), Call, Halt]"
	if got := Format(Prologue()); got != want {
		t.Errorf("Format(Prologue()) = %q, want %q", got, want)
	}
}

func TestDisassemble(t *testing.T) {
	out := sampleModule().DisassembleWithName("sample")

	for _, want := range []string{
		"; === sample ===",
		"; 16 instructions",
		"main:",
		"f:",
		"0001  Push(Vloc(4))",
		"; main",
		"0011  SetFrame(2)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Unit, "tt"},
		{Int(-12), "-12"},
		{True, "true"},
		{False, "false"},
		{Loc(3), "loc(3)"},
		{Undef, "undef"},
	}
	for _, tc := range tests {
		if got := tc.v.String(); got != tc.want {
			t.Errorf("%#v.String() = %q, want %q", tc.v, got, tc.want)
		}
	}
	if Size(2).IsInternal() != true || Addr(0).IsInternal() != true || Int(0).IsInternal() {
		t.Error("IsInternal misclassifies values")
	}
}

func TestHeapBlocks(t *testing.T) {
	h := NewHeap()
	a, err := h.Alloc(2, Int(0))
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Alloc(0, Unit)
	if err != nil {
		t.Fatal(err)
	}
	if a != 0 || b != 3 {
		t.Errorf("addresses = %d, %d, want 0, 3", a, b)
	}
	if err := h.Set(a, 1, True); err != nil {
		t.Fatal(err)
	}
	v, err := h.Get(a, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Equal(True) {
		t.Errorf("Get = %#v, want Vbool(true)", v)
	}
	if _, err := h.Get(b, 0); !errors.Is(err, ErrIndexRange) {
		t.Errorf("Get on empty block err = %v, want ErrIndexRange", err)
	}
	if _, err := h.Get(1, 0); !errors.Is(err, ErrBadAddress) {
		t.Errorf("Get at payload address err = %v, want ErrBadAddress", err)
	}
}
