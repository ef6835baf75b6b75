package vm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ModuleVersion is the current .gbc format version. Increment when making
// incompatible changes to the encoding.
const ModuleVersion uint16 = 1

// ModuleMagic prefixes every encoded module: "GBC" plus a NUL.
var ModuleMagic = []byte{'G', 'B', 'C', 0}

// ErrBadModule reports an encoded module that cannot be decoded.
var ErrBadModule = errors.New("invalid module encoding")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a module: magic, big-endian version, then the module
// as canonical CBOR. Equal modules always encode to identical bytes.
func Marshal(m *Module) ([]byte, error) {
	body, err := cborEncMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("vm: marshal module: %w", err)
	}
	buf := make([]byte, 0, len(ModuleMagic)+2+len(body))
	buf = append(buf, ModuleMagic...)
	buf = binary.BigEndian.AppendUint16(buf, ModuleVersion)
	buf = append(buf, body...)
	return buf, nil
}

// Unmarshal decodes bytes produced by Marshal.
func Unmarshal(data []byte) (*Module, error) {
	header := len(ModuleMagic) + 2
	if len(data) < header || !bytes.Equal(data[:len(ModuleMagic)], ModuleMagic) {
		return nil, fmt.Errorf("%w: missing magic", ErrBadModule)
	}
	version := binary.BigEndian.Uint16(data[len(ModuleMagic):header])
	if version != ModuleVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrBadModule, version, ModuleVersion)
	}
	var m Module
	if err := cbor.Unmarshal(data[header:], &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadModule, err)
	}
	return &m, nil
}
