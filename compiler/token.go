package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42
	TokenIdentifier // foo

	// Delimiters
	TokenLParen  // (
	TokenRParen  // )
	TokenArrow   // ->
	TokenPercent // %

	// Operators
	TokenPlus  // +
	TokenMinus // -
	TokenStar  // *
	TokenSlash // /
	TokenEqEq  // ==
	TokenLess  // <

	// Keywords
	TokenFun
	TokenLet
	TokenSeq
	TokenAlloc
	TokenSet
	TokenGet
	TokenCond
	TokenFunptr
	TokenCall
	TokenPrint
	TokenSpawn
	TokenTrue
	TokenFalse
	TokenTT
	TokenNeg

	// Type names
	TokenI32
	TokenBool
	TokenUnit
	TokenArray
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenInteger:    "INTEGER",
	TokenIdentifier: "IDENTIFIER",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenArrow:      "->",
	TokenPercent:    "%",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenEqEq:       "==",
	TokenLess:       "<",
	TokenFun:        "fun",
	TokenLet:        "let",
	TokenSeq:        "seq",
	TokenAlloc:      "alloc",
	TokenSet:        "set",
	TokenGet:        "get",
	TokenCond:       "cond",
	TokenFunptr:     "funptr",
	TokenCall:       "call",
	TokenPrint:      "print",
	TokenSpawn:      "spawn",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenTT:         "tt",
	TokenNeg:        "neg",
	TokenI32:        "i32",
	TokenBool:       "bool",
	TokenUnit:       "unit",
	TokenArray:      "array",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// IsKeyword reports whether t is a reserved word.
func (t TokenType) IsKeyword() bool {
	return t >= TokenFun && t <= TokenArray
}

// IsBinaryOp reports whether t is one of + - * / == <.
func (t TokenType) IsBinaryOp() bool {
	return t >= TokenPlus && t <= TokenLess
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text
	Pos     Position // start position
}

func (t Token) String() string {
	switch {
	case t.Type == TokenEOF:
		return "EOF"
	case t.Type == TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	case t.Type == TokenInteger || t.Type == TokenIdentifier:
		return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
	default:
		return fmt.Sprintf("%q", t.Literal)
	}
}

// End returns the position just past the token's text.
func (t Token) End() Position {
	return Position{
		Offset: t.Pos.Offset + len(t.Literal),
		Line:   t.Pos.Line,
		Column: t.Pos.Column + len([]rune(t.Literal)),
	}
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"fun":    TokenFun,
	"let":    TokenLet,
	"seq":    TokenSeq,
	"alloc":  TokenAlloc,
	"set":    TokenSet,
	"get":    TokenGet,
	"cond":   TokenCond,
	"funptr": TokenFunptr,
	"call":   TokenCall,
	"print":  TokenPrint,
	"spawn":  TokenSpawn,
	"true":   TokenTrue,
	"false":  TokenFalse,
	"tt":     TokenTT,
	"neg":    TokenNeg,
	"i32":    TokenI32,
	"bool":   TokenBool,
	"unit":   TokenUnit,
	"array":  TokenArray,
}

// Keywords returns the reserved words of the language.
func Keywords() []string {
	out := make([]string, 0, len(reservedWords))
	for w := range reservedWords {
		out = append(out, w)
	}
	return out
}
