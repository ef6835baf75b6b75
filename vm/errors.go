package vm

import (
	"errors"
	"fmt"
)

// Runtime error kinds. Every failure returned by Machine.Run wraps one of
// these inside a *RuntimeError.
var (
	ErrStackUnderflow = errors.New("stack underflow")
	ErrStackOverflow  = errors.New("stack overflow")
	ErrHeapExhausted  = errors.New("heap limit exceeded")
	ErrStepLimit      = errors.New("step limit exceeded")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrDivideByZero   = errors.New("division by zero")
	ErrBadAddress     = errors.New("invalid heap address")
	ErrIndexRange     = errors.New("array index out of bounds")
	ErrNegativeSize   = errors.New("negative array size")
	ErrBadFrame       = errors.New("frame slot out of range")
	ErrPCRange        = errors.New("instruction pointer out of range")
	ErrNoHalt         = errors.New("module has no halt instruction")
)

// RuntimeError reports a failure at a specific instruction.
type RuntimeError struct {
	PC    int
	Instr Instr
	Err   error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error at %d (%s): %v", e.PC, e.Instr, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

func typeError(what string, want Kind, got Value) error {
	return fmt.Errorf("%w: %s expects %s, got %s", ErrTypeMismatch, what, want, got.Kind)
}
