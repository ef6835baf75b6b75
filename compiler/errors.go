package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is against any error returned by
// Parse, ParseExpr, ParseType, Compile or CompileExpr.
var (
	ErrLex               = errors.New("lexical error")
	ErrUnexpectedToken   = errors.New("unexpected token")
	ErrUnexpectedEOF     = errors.New("unexpected end of input")
	ErrUnbalancedParens  = errors.New("unbalanced parentheses")
	ErrDuplicateFunction = errors.New("duplicate function name")
	ErrNestingTooDeep    = errors.New("nesting too deep")

	ErrUndefinedVariable = errors.New("undefined variable")
	ErrUndefinedFunction = errors.New("undefined function")
	ErrArityMismatch     = errors.New("arity mismatch")
)

// Error is a positioned front-end failure. The parser and generator stop
// at the first one; there is no partial result.
type Error struct {
	Kind     error    // one of the Err* kinds
	Pos      Position // where the problem starts
	Found    Token    // offending token, for parse errors
	Expected []string // what would have been accepted, for parse errors
	Detail   string   // extra context (names, counts)
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Kind)
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	switch e.Kind {
	case ErrUnexpectedToken, ErrUnbalancedParens:
		fmt.Fprintf(&sb, ": found %s", e.Found)
	}
	if len(e.Expected) > 0 {
		fmt.Fprintf(&sb, ", expected %s", joinExpected(e.Expected))
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Kind }

// Is lets an unclosed form at end of input match ErrUnexpectedEOF as well
// as ErrUnbalancedParens.
func (e *Error) Is(target error) bool {
	return target == ErrUnexpectedEOF && e.Kind == ErrUnbalancedParens && e.Found.Type == TokenEOF
}

// Message returns the error text without the position prefix.
func (e *Error) Message() string {
	msg := e.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}

func joinExpected(exp []string) string {
	switch len(exp) {
	case 1:
		return exp[0]
	case 2:
		return exp[0] + " or " + exp[1]
	}
	return "one of " + strings.Join(exp, ", ")
}

// ---------------------------------------------------------------------------
// Diagnostics rendering
// ---------------------------------------------------------------------------

// FormatError renders err with a source snippet and a caret under the
// offending column. Errors that carry no position are returned as plain
// text.
func FormatError(err error, name, src string) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	header := "PARSE ERROR"
	switch {
	case errors.Is(e, ErrLex):
		header = "LEXICAL ERROR"
	case errors.Is(e, ErrUndefinedVariable), errors.Is(e, ErrUndefinedFunction), errors.Is(e, ErrArityMismatch):
		header = "COMPILE ERROR"
	}
	return snippet(src, header, name, e.Pos.Line, e.Pos.Column, e.Message())
}

// snippet shows the error line with at most one line of context on each
// side. Coordinates are 1-based and clamped to the source.
func snippet(src, header, name string, line, col int, msg string) string {
	lines := strings.Split(src, "\n")
	if line < 1 {
		line = 1
	}
	if col < 1 {
		col = 1
	}
	if line > len(lines) {
		line = len(lines)
	}

	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "%s in %s at %d:%d: %s\n\n", header, name, line, col, msg)
	} else {
		fmt.Fprintf(&b, "%s at %d:%d: %s\n\n", header, line, col, msg)
	}
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lines[line-1])
	fmt.Fprintf(&b, "     | %s^\n", strings.Repeat(" ", col-1))
	if line < len(lines) {
		fmt.Fprintf(&b, "%4d | %s\n", line+1, lines[line])
	}
	return b.String()
}
