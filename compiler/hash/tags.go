package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the hashing AST serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// every cached build keyed by a content hash.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 2

// Node type tags. Each tag uniquely identifies a node kind in the
// serialized byte stream.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Literal values
	TagIntLiteral  byte = 0x01
	TagBoolLiteral byte = 0x02
	TagUnitLiteral byte = 0x03

	// Variable references
	TagLocalRef byte = 0x08 // de Bruijn indexed
	TagFreeRef  byte = 0x09 // unresolved name, kept for diagnostics

	// Operators and binding forms
	TagUnary  byte = 0x10
	TagBinary byte = 0x11
	TagLet    byte = 0x12
	TagSeq    byte = 0x13
	TagCond   byte = 0x14

	// Arrays
	TagAlloc byte = 0x18
	TagSet   byte = 0x19
	TagGet   byte = 0x1A

	// Functions
	TagFunPtr       byte = 0x20
	TagCall         byte = 0x21
	TagCallIndirect byte = 0x22
	TagPrint        byte = 0x23
	TagSpawn        byte = 0x24

	// Structure
	TagFunction byte = 0x30
	TagProgram  byte = 0x31

	// Types
	TagTypeI32   byte = 0x40
	TagTypeBool  byte = 0x41
	TagTypeUnit  byte = 0x42
	TagTypeArray byte = 0x43
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagIntLiteral, TagBoolLiteral, TagUnitLiteral,
	TagLocalRef, TagFreeRef,
	TagUnary, TagBinary, TagLet, TagSeq, TagCond,
	TagAlloc, TagSet, TagGet,
	TagFunPtr, TagCall, TagCallIndirect, TagPrint, TagSpawn,
	TagFunction, TagProgram,
	TagTypeI32, TagTypeBool, TagTypeUnit, TagTypeArray,
}
