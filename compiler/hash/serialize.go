package hash

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of the frozen hashing AST.
//
// Encoding conventions:
//   - First byte: HashVersion (0x02)
//   - Integers: big-endian fixed-width (int32 and uint32 are 4B)
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Lists: uint32 big-endian count, then the elements
//   - Child nodes: serialized inline (flat)
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of an HNode tree.
// The returned bytes are suitable for hashing with SHA-256.
func Serialize(node HNode) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeNode(node)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeUint32(v uint32) {
	s.buf = binary.BigEndian.AppendUint32(s.buf, v)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeList(nodes []HNode) {
	s.writeUint32(uint32(len(nodes)))
	for _, n := range nodes {
		s.serializeNode(n)
	}
}

func (s *serializer) writeType(t HType) {
	s.writeByte(t.Kind)
	if t.Kind == TagTypeArray {
		if t.Elem == nil {
			s.writeByte(TagReservedZero)
			return
		}
		s.writeType(*t.Elem)
	}
}

func (s *serializer) serializeNode(node HNode) {
	switch n := node.(type) {
	case *HIntLiteral:
		s.writeByte(TagIntLiteral)
		s.writeUint32(uint32(n.Value))

	case *HBoolLiteral:
		s.writeByte(TagBoolLiteral)
		s.writeBool(n.Value)

	case *HUnitLiteral:
		s.writeByte(TagUnitLiteral)

	case *HLocalRef:
		s.writeByte(TagLocalRef)
		s.writeUint32(n.Index)

	case *HFreeRef:
		s.writeByte(TagFreeRef)
		s.writeString(n.Name)

	case *HUnary:
		s.writeByte(TagUnary)
		s.writeByte(n.Op)
		s.serializeNode(n.Operand)

	case *HBinary:
		s.writeByte(TagBinary)
		s.writeByte(n.Op)
		s.serializeNode(n.Left)
		s.serializeNode(n.Right)

	case *HLet:
		s.writeByte(TagLet)
		s.serializeNode(n.Init)
		s.serializeNode(n.Body)

	case *HSeq:
		s.writeByte(TagSeq)
		s.serializeNode(n.First)
		s.serializeNode(n.Second)

	case *HCond:
		s.writeByte(TagCond)
		s.serializeNode(n.Test)
		s.serializeNode(n.Then)
		s.serializeNode(n.Else)

	case *HAlloc:
		s.writeByte(TagAlloc)
		s.serializeNode(n.Size)
		s.serializeNode(n.Init)

	case *HSet:
		s.writeByte(TagSet)
		s.serializeNode(n.Array)
		s.serializeNode(n.Index)
		s.serializeNode(n.Value)

	case *HGet:
		s.writeByte(TagGet)
		s.serializeNode(n.Array)
		s.serializeNode(n.Index)

	case *HFunPtr:
		s.writeByte(TagFunPtr)
		s.writeString(n.Name)

	case *HCall:
		s.writeByte(TagCall)
		s.writeString(n.Name)
		s.writeList(n.Args)

	case *HCallIndirect:
		s.writeByte(TagCallIndirect)
		s.serializeNode(n.Fn)
		s.writeList(n.Args)

	case *HPrint:
		s.writeByte(TagPrint)
		s.serializeNode(n.Operand)

	case *HSpawn:
		s.writeByte(TagSpawn)
		s.serializeNode(n.Operand)

	case *HFunction:
		s.writeByte(TagFunction)
		s.writeString(n.Name)
		s.writeUint32(uint32(len(n.Params)))
		for _, p := range n.Params {
			s.writeType(p)
		}
		s.writeType(n.Result)
		s.serializeNode(n.Body)

	case *HProgram:
		s.writeByte(TagProgram)
		s.writeUint32(uint32(len(n.Funs)))
		for _, f := range n.Funs {
			s.serializeNode(f)
		}
		s.serializeNode(n.Entry)
	}
}
