package hash

import (
	"crypto/sha256"

	"github.com/cmcintosh36/grumpy/compiler"
)

// HashProgram computes the SHA-256 content hash of a program.
//
// The hash is computed over a deterministic serialization of the program's
// normalized AST with de Bruijn variable indexing. Programs that differ
// only in layout or in the names of locals hash the same; function names
// are significant.
func HashProgram(prog *compiler.Program) [32]byte {
	return sha256.Sum256(Serialize(NormalizeProgram(prog)))
}

// HashFunction computes the content hash of a single definition.
func HashFunction(f *compiler.FunctionDef) [32]byte {
	return sha256.Sum256(Serialize(NormalizeFunction(f)))
}
