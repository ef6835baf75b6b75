// Package vm implements GrumpyVM, the stack machine grumpy programs
// compile to.
//
// This package contains:
//   - the tagged value representation (i32, bool, unit, loc, size, addr)
//   - the sixteen-instruction ISA and modules with a symbol table
//   - the executor, with a shared heap and goroutine-backed spawn
//   - the disassembler and the .gbc wire encoding
package vm
