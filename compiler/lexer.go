package compiler

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: token stream for grumpy source
// ---------------------------------------------------------------------------

// Lexer produces tokens on demand with one token of lookahead. It never
// rewinds past the peeked token.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)

	peeked *Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = len(l.input)
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// Peek returns the next token without consuming it. At end of input it
// returns the EOF token, repeatedly.
func (l *Lexer) Peek() Token {
	if l.peeked == nil {
		tok := l.scan()
		l.peeked = &tok
	}
	return *l.peeked
}

// Next consumes and returns the next token.
func (l *Lexer) Next() Token {
	tok := l.Peek()
	if tok.Type != TokenEOF && tok.Type != TokenError {
		l.peeked = nil
	}
	return tok
}

// Eat consumes the next token if it has type t. Otherwise the token is left
// in place and a positioned error is returned.
func (l *Lexer) Eat(t TokenType) (Token, error) {
	tok := l.Peek()
	if tok.Type == TokenError {
		return tok, lexError(tok)
	}
	if tok.Type != t {
		kind := ErrUnexpectedToken
		if tok.Type == TokenEOF {
			kind = ErrUnexpectedEOF
		}
		return tok, &Error{Kind: kind, Pos: tok.Pos, Found: tok, Expected: []string{describe(t)}}
	}
	return l.Next(), nil
}

// Pos returns the position of the next unconsumed token.
func (l *Lexer) Pos() Position {
	return l.Peek().Pos
}

// Rest returns the source text not yet consumed, starting at the next
// token.
func (l *Lexer) Rest() string {
	return l.input[l.Pos().Offset:]
}

// Tokenize returns every token in src. The list ends with the EOF token,
// or with the first error token.
func Tokenize(src string) []Token {
	l := NewLexer(src)
	var toks []Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return toks
		}
	}
}

// ---------------------------------------------------------------------------
// Scanning
// ---------------------------------------------------------------------------

func (l *Lexer) scan() Token {
	l.skipWhitespace()

	pos := l.position()
	if l.atEOF() {
		return Token{Type: TokenEOF, Pos: pos}
	}

	single := func(t TokenType) Token {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}

	switch ch := l.ch; {
	case ch == '(':
		return single(TokenLParen)
	case ch == ')':
		return single(TokenRParen)
	case ch == '%':
		return single(TokenPercent)
	case ch == '+':
		return single(TokenPlus)
	case ch == '*':
		return single(TokenStar)
	case ch == '/':
		return single(TokenSlash)
	case ch == '<':
		return single(TokenLess)
	case ch == '-':
		if l.peekChar() == '>' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenArrow, Literal: "->", Pos: pos}
		}
		return single(TokenMinus)
	case ch == '=':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenEqEq, Literal: "==", Pos: pos}
		}
		return Token{Type: TokenError, Literal: "unexpected '=' (did you mean '=='?)", Pos: pos}
	case isDigit(ch):
		return l.scanInteger(pos)
	case isLetter(ch):
		return l.scanIdentifier(pos)
	default:
		return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character %q", ch), Pos: pos}
	}
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

func (l *Lexer) scanInteger(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if _, err := strconv.ParseInt(lit, 10, 32); err != nil {
		return Token{Type: TokenError, Literal: fmt.Sprintf("integer literal %s out of range", lit), Pos: pos}
	}
	return Token{Type: TokenInteger, Literal: lit, Pos: pos}
}

func (l *Lexer) scanIdentifier(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if t, ok := reservedWords[lit]; ok {
		return Token{Type: t, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isLetter(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func lexError(tok Token) error {
	return &Error{Kind: ErrLex, Pos: tok.Pos, Found: tok, Detail: tok.Literal}
}

// describe names a token type the way diagnostics list expectations.
func describe(t TokenType) string {
	switch t {
	case TokenInteger:
		return "integer"
	case TokenIdentifier:
		return "identifier"
	case TokenEOF:
		return "end of input"
	}
	return "'" + t.String() + "'"
}
