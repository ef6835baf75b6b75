package compiler

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// FuzzParse: the parser never panics, and anything it accepts prints back
// to text that parses to an equal program.
// ---------------------------------------------------------------------------

func FuzzParse(f *testing.F) {
	seeds := []string{
		"% 1",
		"% (+ 1 2)",
		"% (let x 5 (+ x 1))",
		"% (seq (print 1) 2)",
		"(fun f (x i32) -> i32 (+ x 1)) % (f 2)",
		"(fun g (a (array bool)) -> unit tt) % (g (alloc 2 true))",
		"(fun w -> unit (print 1)) % (spawn (funptr w))",
		"% (call (funptr f) 1 2 3)",
		"% (cond (== 1 2) (get a 0) (set a 0 1))",
		"(+ 1",
		"% (+ 1 2))",
		"% (neg",
		"((((",
		"))))",
		"% 99999999999",
		"% #",
		"",
		"%",
		"(fun -> i32 1) % 1",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, src string) {
		prog, err := Parse(src)
		if err != nil {
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("Parse(%q) returned %T, want *Error", src, err)
			}
			if prog != nil {
				t.Fatalf("Parse(%q) returned a program with an error", src)
			}
			return
		}
		text := prog.String()
		back, err := Parse(text)
		if err != nil {
			t.Fatalf("re-parse of %q (from %q): %v", text, src, err)
		}
		if !EqualProgram(prog, back) {
			t.Fatalf("round trip changed program: %q -> %q", src, text)
		}
	})
}

func FuzzLexer(f *testing.F) {
	for _, s := range []string{"(fun f -> i32 1)", "== = -> - 12 ab_c", "\t\n(", "é", ""} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, src string) {
		toks := Tokenize(src)
		if len(toks) == 0 {
			t.Fatal("Tokenize returned no tokens")
		}
		last := toks[len(toks)-1]
		if last.Type != TokenEOF && last.Type != TokenError {
			t.Fatalf("token list ends with %v", last)
		}
		for _, tok := range toks[:len(toks)-1] {
			if tok.Type == TokenEOF || tok.Type == TokenError {
				t.Fatalf("terminal token %v before end of list", tok)
			}
		}
	})
}
