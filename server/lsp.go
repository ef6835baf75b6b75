package server

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/cmcintosh36/grumpy/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "grumpy-lsp"

// LspServer serves editor features for grumpy source files over stdio.
type LspServer struct {
	worker *Worker

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server. maxDepth bounds parser nesting; zero
// means the compiler default.
func NewLSP(maxDepth int) *LspServer {
	s := &LspServer{
		worker:  NewWorker(NewWorkspace(maxDepth)),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	defer s.worker.Stop()
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "grumpy LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"("},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.update(ctx, params.TextDocument.URI, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	if _, err := s.worker.Do(func(ws *Workspace) any {
		ws.Close(string(uri))
		return nil
	}); err != nil {
		return err
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// update re-analyzes a document and publishes its diagnostics.
func (s *LspServer) update(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(ws *Workspace) any {
		return diagnostics(ws.Update(string(uri), text))
	})
	if err != nil {
		log.Errorf("analyzing %s: %s", uri, err)
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: result.([]protocol.Diagnostic),
	})
}

// --- Language features ---

// withDocument runs fn on the worker with the document for uri. It returns
// nil when the document is not open.
func (s *LspServer) withDocument(uri protocol.DocumentUri, fn func(*Document) any) (any, error) {
	return s.worker.Do(func(ws *Workspace) any {
		doc, ok := ws.Document(string(uri))
		if !ok {
			return nil
		}
		return fn(doc)
	})
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	result, err := s.withDocument(params.TextDocument.URI, func(doc *Document) any {
		return complete(doc, extractPrefix(doc.Text, params.Position))
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	result, err := s.withDocument(params.TextDocument.URI, func(doc *Document) any {
		return hover(doc, extractWord(doc.Text, params.Position))
	})
	if err != nil || result == nil {
		return nil, nil
	}
	h := result.(*protocol.Hover)
	if h == nil {
		return nil, nil
	}
	return h, nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	result, err := s.withDocument(uri, func(doc *Document) any {
		f := doc.Function(extractWord(doc.Text, params.Position))
		if f == nil {
			return nil
		}
		return []protocol.Location{nameLocation(uri, f.NamePos, f.Name)}
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	result, err := s.withDocument(uri, func(doc *Document) any {
		return references(doc, uri, extractWord(doc.Text, params.Position), params.Context.IncludeDeclaration)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.([]protocol.Location), nil
}

// --- Document-backed logic (called on worker goroutine) ---

func diagnostics(doc *Document) []protocol.Diagnostic {
	diags := []protocol.Diagnostic{}
	severity := protocol.DiagnosticSeverityError
	source := lspName
	for _, p := range doc.Problems() {
		diags = append(diags, protocol.Diagnostic{
			Range:    protocol.Range{Start: lspPosition(p.Start), End: lspPosition(p.End)},
			Severity: &severity,
			Source:   &source,
			Message:  p.Message,
		})
	}
	return diags
}

func complete(doc *Document, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	for _, c := range doc.Complete(prefix) {
		kind := protocol.CompletionItemKindKeyword
		if c.Function {
			kind = protocol.CompletionItemKindFunction
		}
		label, detail := c.Label, c.Detail
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func hover(doc *Document, word string) *protocol.Hover {
	f := doc.Function(word)
	if f == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "```grumpy\n(fun %s ...)\n```\n\n", f.Signature())
	n := len(doc.References(f.Name))
	fmt.Fprintf(&b, "%d parameters, %d references", len(f.Params), n)

	start := lspPosition(f.NamePos)
	end := start
	end.Character += uint32(len(f.Name))
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
		Range: &protocol.Range{Start: start, End: end},
	}
}

func references(doc *Document, uri protocol.DocumentUri, name string, includeDecl bool) []protocol.Location {
	f := doc.Function(name)
	if f == nil {
		return nil
	}
	var locations []protocol.Location
	if includeDecl {
		locations = append(locations, nameLocation(uri, f.NamePos, f.Name))
	}
	for _, pos := range doc.References(name) {
		locations = append(locations, nameLocation(uri, pos, name))
	}
	return locations
}

// --- Position helpers ---

// lspPosition converts a 1-based compiler position to a 0-based LSP one.
func lspPosition(p compiler.Position) protocol.Position {
	var pos protocol.Position
	if p.Line > 0 {
		pos.Line = uint32(p.Line - 1)
	}
	if p.Column > 0 {
		pos.Character = uint32(p.Column - 1)
	}
	return pos
}

func nameLocation(uri protocol.DocumentUri, p compiler.Position, name string) protocol.Location {
	start := lspPosition(p)
	end := start
	end.Character += uint32(len(name))
	return protocol.Location{URI: uri, Range: protocol.Range{Start: start, End: end}}
}

// --- Text extraction helpers ---

// cursorLine returns the runes of the cursor's line and the rune index of
// the cursor. LSP columns count UTF-16 code units.
func cursorLine(text string, pos protocol.Position) ([]rune, int) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return nil, 0
	}
	line := []rune(lines[pos.Line])
	col, units := 0, 0
	for col < len(line) && units < int(pos.Character) {
		units += utf16.RuneLen(line[col])
		col++
	}
	return line, col
}

// extractPrefix returns the identifier fragment before the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	line, col := cursorLine(text, pos)
	start := col
	for start > 0 && isWordRune(line[start-1]) {
		start--
	}
	return string(line[start:col])
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col := cursorLine(text, pos)
	start, end := col, col
	for start > 0 && isWordRune(line[start-1]) {
		start--
	}
	for end < len(line) && isWordRune(line[end]) {
		end++
	}
	return string(line[start:end])
}

func isWordRune(ch rune) bool {
	return ch == '_' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ('0' <= ch && ch <= '9')
}

func boolPtr(b bool) *bool {
	return &b
}
