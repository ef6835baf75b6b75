package server

import (
	"errors"
	"sort"
	"strings"

	"github.com/cmcintosh36/grumpy/compiler"
)

// Document is an open source file and the result of analyzing it.
type Document struct {
	URI     string
	Text    string
	Program *compiler.Program // nil when parsing failed
	Err     error             // first parse or generation error, if any
}

// Workspace holds the open documents. It is not safe for concurrent use;
// access it through a Worker.
type Workspace struct {
	docs     map[string]*Document
	maxDepth int
}

// NewWorkspace creates an empty workspace. maxDepth bounds parser nesting;
// zero means compiler.DefaultMaxDepth.
func NewWorkspace(maxDepth int) *Workspace {
	if maxDepth <= 0 {
		maxDepth = compiler.DefaultMaxDepth
	}
	return &Workspace{
		docs:     make(map[string]*Document),
		maxDepth: maxDepth,
	}
}

// Update stores text under uri and analyzes it.
func (ws *Workspace) Update(uri, text string) *Document {
	doc := &Document{URI: uri, Text: text}
	doc.Program, doc.Err = ws.analyze(text)
	ws.docs[uri] = doc
	return doc
}

// Close forgets uri.
func (ws *Workspace) Close(uri string) {
	delete(ws.docs, uri)
}

// Document returns the open document for uri.
func (ws *Workspace) Document(uri string) (*Document, bool) {
	doc, ok := ws.docs[uri]
	return doc, ok
}

// analyze parses text and runs the generator over the result so that
// undefined names and arity mismatches surface as well as syntax errors.
func (ws *Workspace) analyze(text string) (*compiler.Program, error) {
	p := compiler.NewParser(text)
	p.MaxDepth = ws.maxDepth
	prog, err := p.ParseProgram()
	if err != nil {
		return nil, err
	}
	if _, err := compiler.Compile(prog); err != nil {
		return prog, err
	}
	return prog, nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Problem is a diagnostic in compiler coordinates.
type Problem struct {
	Start, End compiler.Position
	Message    string
}

// Problems returns the document's diagnostics. The front end is fail-fast,
// so there is at most one.
func (d *Document) Problems() []Problem {
	if d.Err == nil {
		return nil
	}
	var e *compiler.Error
	if !errors.As(d.Err, &e) {
		return []Problem{{Message: d.Err.Error()}}
	}
	return []Problem{{
		Start:   e.Pos,
		End:     errorEnd(d.Text, e),
		Message: e.Message(),
	}}
}

// errorEnd extends a diagnostic over the offending token, or over the
// identifier at the error position for generator errors.
func errorEnd(text string, e *compiler.Error) compiler.Position {
	if e.Found.Type != compiler.TokenEOF && e.Found.Literal != "" && e.Found.Pos == e.Pos {
		return e.Found.End()
	}
	end := e.Pos
	for end.Offset < len(text) && isIdentChar(text[end.Offset]) {
		end.Offset++
		end.Column++
	}
	return end
}

// Function returns the definition of the named function.
func (d *Document) Function(name string) *compiler.FunctionDef {
	if d.Program == nil {
		return nil
	}
	return d.Program.Lookup(name)
}

// References returns the name positions of every direct call and funptr
// naming function name, in source order.
func (d *Document) References(name string) []compiler.Position {
	if d.Program == nil {
		return nil
	}
	var refs []compiler.Position
	visit := func(e compiler.Expr) bool {
		switch n := e.(type) {
		case *compiler.CallExpr:
			if n.Name == name {
				refs = append(refs, n.NamePos)
			}
		case *compiler.FunPtrExpr:
			if n.Name == name {
				refs = append(refs, n.NamePos)
			}
		}
		return true
	}
	for _, f := range d.Program.Funs {
		compiler.Inspect(f.Body, visit)
	}
	compiler.Inspect(d.Program.Entry, visit)
	sort.Slice(refs, func(i, j int) bool { return refs[i].Offset < refs[j].Offset })
	return refs
}

// Candidate is a completion suggestion.
type Candidate struct {
	Label    string
	Detail   string
	Function bool
}

// Complete returns keywords and function names starting with prefix.
// Functions come first, each group sorted.
func (d *Document) Complete(prefix string) []Candidate {
	var funs, kws []Candidate
	if d.Program != nil {
		for _, f := range d.Program.Funs {
			if strings.HasPrefix(f.Name, prefix) {
				funs = append(funs, Candidate{Label: f.Name, Detail: f.Signature(), Function: true})
			}
		}
	}
	for _, kw := range compiler.Keywords() {
		if strings.HasPrefix(kw, prefix) {
			kws = append(kws, Candidate{Label: kw, Detail: "keyword"})
		}
	}
	sort.Slice(funs, func(i, j int) bool { return funs[i].Label < funs[j].Label })
	sort.Slice(kws, func(i, j int) bool { return kws[i].Label < kws[j].Label })
	return append(funs, kws...)
}

func isIdentChar(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
