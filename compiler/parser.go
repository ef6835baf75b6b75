package compiler

import (
	"fmt"
	"strconv"

	"github.com/cmcintosh36/grumpy/vm"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent parser for grumpy
// ---------------------------------------------------------------------------

// DefaultMaxDepth bounds expression and type nesting.
const DefaultMaxDepth = 512

// Parser parses grumpy source into an AST. Parsing is fail-fast: the first
// error aborts and no partial tree is returned.
type Parser struct {
	lexer *Lexer

	// MaxDepth is the deepest expression or type nesting accepted.
	MaxDepth int
	depth    int
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	return &Parser{
		lexer:    NewLexer(input),
		MaxDepth: DefaultMaxDepth,
	}
}

// Parse parses a complete program: function definitions, '%', then the
// entry expression.
func Parse(src string) (*Program, error) {
	return NewParser(src).ParseProgram()
}

// ParseExpr parses src as a single expression.
func ParseExpr(src string) (Expr, error) {
	return NewParser(src).ParseExpr()
}

// ParseType parses src as a single type.
func ParseType(src string) (Type, error) {
	return NewParser(src).ParseType()
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

func (p *Parser) peek() Token {
	return p.lexer.Peek()
}

func (p *Parser) next() Token {
	return p.lexer.Next()
}

func (p *Parser) expect(t TokenType) (Token, error) {
	return p.lexer.Eat(t)
}

// unexpected builds the error for tok appearing where one of expected was
// required.
func (p *Parser) unexpected(tok Token, expected ...string) error {
	switch tok.Type {
	case TokenError:
		return lexError(tok)
	case TokenEOF:
		return &Error{Kind: ErrUnexpectedEOF, Pos: tok.Pos, Found: tok, Expected: expected}
	}
	return &Error{Kind: ErrUnexpectedToken, Pos: tok.Pos, Found: tok, Expected: expected}
}

// closeParen consumes the ')' that ends the form opened by open.
func (p *Parser) closeParen(open Token) (Position, error) {
	tok := p.peek()
	switch tok.Type {
	case TokenRParen:
		p.next()
		return tok.End(), nil
	case TokenEOF:
		return Position{}, &Error{
			Kind:     ErrUnbalancedParens,
			Pos:      tok.Pos,
			Found:    tok,
			Expected: []string{"')'"},
			Detail:   fmt.Sprintf("'(' at %d:%d is never closed", open.Pos.Line, open.Pos.Column),
		}
	}
	return Position{}, p.unexpected(tok, "')'")
}

// expectEOF rejects trailing input.
func (p *Parser) expectEOF() error {
	tok := p.peek()
	switch tok.Type {
	case TokenEOF:
		return nil
	case TokenRParen:
		return &Error{Kind: ErrUnbalancedParens, Pos: tok.Pos, Found: tok, Detail: "no matching '('"}
	}
	return p.unexpected(tok, "end of input")
}

func (p *Parser) enter(pos Position) error {
	p.depth++
	if p.MaxDepth > 0 && p.depth > p.MaxDepth {
		return &Error{Kind: ErrNestingTooDeep, Pos: pos, Detail: fmt.Sprintf("limit is %d", p.MaxDepth)}
	}
	return nil
}

func (p *Parser) leave() {
	p.depth--
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses prog ::= funlist '%' exp, then requires end of input.
func (p *Parser) ParseProgram() (*Program, error) {
	start := p.peek().Pos
	funs, err := p.parseFunList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenPercent); err != nil {
		return nil, err
	}
	entry, err := p.parseExp()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return &Program{
		SpanVal: Span{Start: start, End: entry.Span().End},
		Funs:    funs,
		Entry:   entry,
	}, nil
}

// ParseExpr parses a single expression, then requires end of input.
func (p *Parser) ParseExpr() (Expr, error) {
	e, err := p.parseExp()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return e, nil
}

// ParseType parses a single type, then requires end of input.
func (p *Parser) ParseType() (Type, error) {
	t, err := p.parseType()
	if err != nil {
		return Type{}, err
	}
	if err := p.expectEOF(); err != nil {
		return Type{}, err
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

// parseFunList parses zero or more function definitions. Duplicate names
// are reported once the whole list is read.
func (p *Parser) parseFunList() ([]*FunctionDef, error) {
	var funs []*FunctionDef
	for {
		tok := p.peek()
		if tok.Type == TokenPercent {
			break
		}
		if tok.Type != TokenLParen {
			return nil, p.unexpected(tok, "'('", "'%'")
		}
		f, err := p.parseFun()
		if err != nil {
			return nil, err
		}
		funs = append(funs, f)
	}

	seen := make(map[string]*FunctionDef, len(funs))
	for _, f := range funs {
		if first, ok := seen[f.Name]; ok {
			return nil, &Error{
				Kind:   ErrDuplicateFunction,
				Pos:    f.NamePos,
				Detail: fmt.Sprintf("%s (first defined at %d:%d)", f.Name, first.NamePos.Line, first.NamePos.Column),
			}
		}
		seen[f.Name] = f
	}
	return funs, nil
}

// parseFun parses '(' 'fun' id paramlist '->' ty exp ')'.
func (p *Parser) parseFun() (*FunctionDef, error) {
	open, err := p.expect(TokenLParen)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenFun); err != nil {
		return nil, err
	}
	name, err := p.expect(TokenIdentifier)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenArrow); err != nil {
		return nil, err
	}
	result, err := p.parseType()
	if err != nil {
		return nil, err
	}
	body, err := p.parseExp()
	if err != nil {
		return nil, err
	}
	end, err := p.closeParen(open)
	if err != nil {
		return nil, err
	}
	return &FunctionDef{
		SpanVal: Span{Start: open.Pos, End: end},
		Name:    name.Literal,
		NamePos: name.Pos,
		Params:  params,
		Result:  result,
		Body:    body,
	}, nil
}

// parseParamList parses zero or more '(' id ty ')'.
func (p *Parser) parseParamList() ([]Param, error) {
	params := []Param{}
	for p.peek().Type == TokenLParen {
		open := p.next()
		name, err := p.expect(TokenIdentifier)
		if err != nil {
			return nil, err
		}
		ty, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if _, err := p.closeParen(open); err != nil {
			return nil, err
		}
		params = append(params, Param{Name: name.Literal, Type: ty, Pos: name.Pos})
	}
	return params, nil
}

// parseType parses 'i32' | 'bool' | 'unit' | '(' 'array' ty ')'.
func (p *Parser) parseType() (Type, error) {
	tok := p.peek()
	if err := p.enter(tok.Pos); err != nil {
		return Type{}, err
	}
	defer p.leave()

	switch tok.Type {
	case TokenI32:
		p.next()
		return I32Type, nil
	case TokenBool:
		p.next()
		return BoolType, nil
	case TokenUnit:
		p.next()
		return UnitType, nil
	case TokenLParen:
		open := p.next()
		if _, err := p.expect(TokenArray); err != nil {
			return Type{}, err
		}
		elem, err := p.parseType()
		if err != nil {
			return Type{}, err
		}
		if _, err := p.closeParen(open); err != nil {
			return Type{}, err
		}
		return ArrayOf(elem), nil
	}
	return Type{}, p.unexpected(tok, "type")
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// parseExp parses one expression: an atom or a parenthesized form.
func (p *Parser) parseExp() (Expr, error) {
	tok := p.peek()
	if err := p.enter(tok.Pos); err != nil {
		return nil, err
	}
	defer p.leave()

	span := Span{Start: tok.Pos, End: tok.End()}
	switch tok.Type {
	case TokenInteger:
		p.next()
		n, err := strconv.ParseInt(tok.Literal, 10, 32)
		if err != nil {
			return nil, &Error{Kind: ErrLex, Pos: tok.Pos, Found: tok, Detail: err.Error()}
		}
		return &IntLiteral{SpanVal: span, Value: int32(n)}, nil
	case TokenTrue, TokenFalse:
		p.next()
		return &BoolLiteral{SpanVal: span, Value: tok.Type == TokenTrue}, nil
	case TokenTT:
		p.next()
		return &UnitLiteral{SpanVal: span}, nil
	case TokenIdentifier:
		p.next()
		return &Variable{SpanVal: span, Name: tok.Literal}, nil
	case TokenLParen:
		return p.parseForm()
	}
	return nil, p.unexpected(tok, "expression")
}

// parseExpList parses zero or more expressions up to the closing ')'.
func (p *Parser) parseExpList() ([]Expr, error) {
	exps := []Expr{}
	for {
		switch p.peek().Type {
		case TokenRParen, TokenEOF:
			return exps, nil
		}
		e, err := p.parseExp()
		if err != nil {
			return nil, err
		}
		exps = append(exps, e)
	}
}

// parseForm dispatches on the token after '('.
func (p *Parser) parseForm() (Expr, error) {
	open := p.next()
	head := p.peek()

	switch head.Type {
	case TokenNeg:
		return p.parseUnary(open)
	case TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenEqEq, TokenLess:
		return p.parseBinary(open)
	case TokenLet:
		return p.parseLet(open)
	case TokenSeq:
		return p.parseSeq(open)
	case TokenAlloc:
		return p.parseAlloc(open)
	case TokenSet:
		return p.parseSet(open)
	case TokenGet:
		return p.parseGet(open)
	case TokenCond:
		return p.parseCond(open)
	case TokenFunptr:
		return p.parseFunPtr(open)
	case TokenCall:
		return p.parseCallIndirect(open)
	case TokenPrint:
		return p.parsePrint(open)
	case TokenSpawn:
		return p.parseSpawn(open)
	case TokenIdentifier:
		return p.parseCall(open)
	}
	return nil, p.unexpected(head, "operator", "keyword", "function name")
}

// parseOperands parses exactly n expressions and the closing ')'.
func (p *Parser) parseOperands(open Token, n int) ([]Expr, Span, error) {
	exps := make([]Expr, n)
	for i := range exps {
		e, err := p.parseExp()
		if err != nil {
			return nil, Span{}, err
		}
		exps[i] = e
	}
	end, err := p.closeParen(open)
	if err != nil {
		return nil, Span{}, err
	}
	return exps, Span{Start: open.Pos, End: end}, nil
}

// (neg e)
func (p *Parser) parseUnary(open Token) (Expr, error) {
	p.next()
	ops, span, err := p.parseOperands(open, 1)
	if err != nil {
		return nil, err
	}
	return &UnaryExpr{SpanVal: span, Op: vm.Neg, Operand: ops[0]}, nil
}

// (op a b)
func (p *Parser) parseBinary(open Token) (Expr, error) {
	opTok := p.next()
	op, ok := vm.LookupBinop(opTok.Literal)
	if !ok {
		return nil, p.unexpected(opTok, "operator")
	}
	ops, span, err := p.parseOperands(open, 2)
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{SpanVal: span, Op: op, Left: ops[0], Right: ops[1]}, nil
}

// (let x init body)
func (p *Parser) parseLet(open Token) (Expr, error) {
	p.next()
	name, err := p.expect(TokenIdentifier)
	if err != nil {
		return nil, err
	}
	ops, span, err := p.parseOperands(open, 2)
	if err != nil {
		return nil, err
	}
	return &LetExpr{SpanVal: span, Name: name.Literal, NamePos: name.Pos, Init: ops[0], Body: ops[1]}, nil
}

// (seq first second)
func (p *Parser) parseSeq(open Token) (Expr, error) {
	p.next()
	ops, span, err := p.parseOperands(open, 2)
	if err != nil {
		return nil, err
	}
	return &SeqExpr{SpanVal: span, First: ops[0], Second: ops[1]}, nil
}

// (alloc size init)
func (p *Parser) parseAlloc(open Token) (Expr, error) {
	p.next()
	ops, span, err := p.parseOperands(open, 2)
	if err != nil {
		return nil, err
	}
	return &AllocExpr{SpanVal: span, Size: ops[0], Init: ops[1]}, nil
}

// (set array index value)
func (p *Parser) parseSet(open Token) (Expr, error) {
	p.next()
	ops, span, err := p.parseOperands(open, 3)
	if err != nil {
		return nil, err
	}
	return &SetExpr{SpanVal: span, Array: ops[0], Index: ops[1], Value: ops[2]}, nil
}

// (get array index)
func (p *Parser) parseGet(open Token) (Expr, error) {
	p.next()
	ops, span, err := p.parseOperands(open, 2)
	if err != nil {
		return nil, err
	}
	return &GetExpr{SpanVal: span, Array: ops[0], Index: ops[1]}, nil
}

// (cond test then else)
func (p *Parser) parseCond(open Token) (Expr, error) {
	p.next()
	ops, span, err := p.parseOperands(open, 3)
	if err != nil {
		return nil, err
	}
	return &CondExpr{SpanVal: span, Test: ops[0], Then: ops[1], Else: ops[2]}, nil
}

// (funptr f)
func (p *Parser) parseFunPtr(open Token) (Expr, error) {
	p.next()
	name, err := p.expect(TokenIdentifier)
	if err != nil {
		return nil, err
	}
	end, err := p.closeParen(open)
	if err != nil {
		return nil, err
	}
	return &FunPtrExpr{SpanVal: Span{Start: open.Pos, End: end}, Name: name.Literal, NamePos: name.Pos}, nil
}

// (call fn args...)
func (p *Parser) parseCallIndirect(open Token) (Expr, error) {
	p.next()
	fn, err := p.parseExp()
	if err != nil {
		return nil, err
	}
	args, err := p.parseExpList()
	if err != nil {
		return nil, err
	}
	end, err := p.closeParen(open)
	if err != nil {
		return nil, err
	}
	return &CallIndirectExpr{SpanVal: Span{Start: open.Pos, End: end}, Fn: fn, Args: args}, nil
}

// (f args...)
func (p *Parser) parseCall(open Token) (Expr, error) {
	name := p.next()
	args, err := p.parseExpList()
	if err != nil {
		return nil, err
	}
	end, err := p.closeParen(open)
	if err != nil {
		return nil, err
	}
	return &CallExpr{SpanVal: Span{Start: open.Pos, End: end}, Name: name.Literal, NamePos: name.Pos, Args: args}, nil
}

// (print e)
func (p *Parser) parsePrint(open Token) (Expr, error) {
	p.next()
	ops, span, err := p.parseOperands(open, 1)
	if err != nil {
		return nil, err
	}
	return &PrintExpr{SpanVal: span, Operand: ops[0]}, nil
}

// (spawn e)
func (p *Parser) parseSpawn(open Token) (Expr, error) {
	p.next()
	ops, span, err := p.parseOperands(open, 1)
	if err != nil {
		return nil, err
	}
	return &SpawnExpr{SpanVal: span, Operand: ops[0]}, nil
}
