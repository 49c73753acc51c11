package compiler

import (
	"errors"
	"math/big"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds an AST.
//
// Grammar:
//
//	program    = "field" expression ";" item* EOF
//	unit       = item* EOF
//	item       = import | constant | function
//	import     = "import" PATH ";"
//	constant   = IDENTIFIER "=" expression ";"
//	function   = IDENTIFIER list list "{" assignment+ "}"
//	assignment = IDENTIFIER "=" expression ";"
//	list       = "(" IDENTIFIER ("," IDENTIFIER)* ")"
//	expression = sum
//	sum        = term (("+" | "-") term)*
//	term       = power (("*" | "/") power)*
//	power      = primary ("@" primary)*
//	primary    = NUMBER | IDENTIFIER | "(" expression ")"
type Parser struct {
	tokens      []Token
	pos         int
	unit        string
	sourceLines []string
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// fmtError wraps an error message with the source line where the token appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	return p.withSource(syntaxErrorf(tok.Pos, format, args...))
}

// withSource attaches the unit name and offending source line to a syntax error.
func (p *Parser) withSource(err error) error {
	var e *Error
	if !errors.As(err, &e) || e.Pos == nil {
		return err
	}
	if e.Unit == "" {
		e.Unit = p.unit
	}
	lineIdx := e.Pos.Line - 1 // Lines are 1-based
	e.Snippet = "<source unavailable>"
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		e.Snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}
	return err
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseChain(OpAdd.Precedence())
}

// parseChain parses one precedence level. It first collects the flat chain
// of operands and operators at this level, then reduces it to a strictly
// binary tree: from the left end for left-associative operators, from the
// right end for "@".
func (p *Parser) parseChain(level int) (Expr, error) {
	next := func() (Expr, error) {
		if level == OpExp.Precedence() {
			return p.parsePrimary()
		}
		return p.parseChain(level + 1)
	}

	first, err := next()
	if err != nil {
		return nil, err
	}
	operands := []Expr{first}
	var ops []Op

	for {
		op, ok := tokenOps[p.peek().Type]
		if !ok || op.Precedence() != level {
			break
		}
		p.advance()
		operand, err := next()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		operands = append(operands, operand)
	}

	return foldChain(operands, ops, level == OpExp.Precedence()), nil
}

// foldChain combines operands[i] ops[i] operands[i+1] ... into nested
// BinaryOps, two operands at a time.
func foldChain(operands []Expr, ops []Op, rightAssoc bool) Expr {
	if rightAssoc {
		expr := operands[len(operands)-1]
		for i := len(ops) - 1; i >= 0; i-- {
			expr = &BinaryOp{Op: ops[i], Left: operands[i], Right: expr}
		}
		return expr
	}
	expr := operands[0]
	for i, op := range ops {
		expr = &BinaryOp{Op: op, Left: expr, Right: operands[i+1]}
	}
	return expr
}

// parsePrimary handles literals, identifiers and parenthesised expressions.
func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.advance()
	switch tok.Type {
	case NUMBER:
		v, ok := parseNumber(tok.Lexeme)
		if !ok {
			return nil, p.fmtError(tok, "invalid number %q", tok.Lexeme)
		}
		return &Literal{Value: v}, nil
	case IDENTIFIER:
		return &Identifier{Name: tok.Lexeme}, nil
	case LPAREN:
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return nil, p.fmtError(tok, "expected expression, got %s (%q)", tok.Type, tok.Lexeme)
}

// parseNumber converts a NUMBER lexeme (separators already stripped).
func parseNumber(lexeme string) (*big.Int, bool) {
	if strings.HasPrefix(lexeme, "0x") || strings.HasPrefix(lexeme, "0X") {
		return new(big.Int).SetString(lexeme[2:], 16)
	}
	return new(big.Int).SetString(lexeme, 10)
}

// parseList parses "(" IDENTIFIER ("," IDENTIFIER)* ")".
func (p *Parser) parseList() ([]string, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	var names []string
	for {
		tok, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		names = append(names, tok.Lexeme)
		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return names, nil
}

// parseAssignment parses IDENTIFIER "=" expression ";".
func (p *Parser) parseAssignment() (*Assignment, error) {
	target, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(ASSIGN); err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &Assignment{Target: target.Lexeme, Value: value}, nil
}

// parseFunction parses name (args) (rets) { assignment+ }.
func (p *Parser) parseFunction() (*Function, error) {
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	args, err := p.parseList()
	if err != nil {
		return nil, err
	}
	rets, err := p.parseList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}

	fn := &Function{Name: nameTok.Lexeme, Args: args, Rets: rets}
	for {
		a, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		fn.Body = append(fn.Body, a)
		if p.peek().Type == RBRACE {
			break
		}
	}
	p.advance() // consume '}'
	return fn, nil
}

// parseImport parses "import" PATH ";".
func (p *Parser) parseImport() (*Import, error) {
	kw := p.advance() // consume 'import'
	path, err := p.expect(PATH)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &Import{Path: path.Lexeme, Pos: kw.Pos}, nil
}

// parseItem parses one import, constant or function.
func (p *Parser) parseItem() (Item, error) {
	switch tok := p.peek(); tok.Type {
	case IMPORT:
		return p.parseImport()
	case IDENTIFIER:
		switch p.peekAt(1).Type {
		case ASSIGN:
			a, err := p.parseAssignment()
			if err != nil {
				return nil, err
			}
			return &Constant{Name: a.Target, Value: a.Value}, nil
		case LPAREN:
			return p.parseFunction()
		}
		next := p.peekAt(1)
		return nil, p.fmtError(next, "expected '=' or '(' after %q, got %s (%q)", tok.Lexeme, next.Type, next.Lexeme)
	default:
		return nil, p.fmtError(tok, "expected import, constant or function, got %s (%q)", tok.Type, tok.Lexeme)
	}
}

// parseItems parses items until EOF.
func (p *Parser) parseItems() ([]Item, error) {
	var items []Item
	for p.peek().Type != EOF {
		it, err := p.parseItem()
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// Parse builds a Program from a complete token stream: the field
// declaration followed by any number of items.
func Parse(tokens []Token, rawSource string) (*Program, error) {
	p := NewParser(tokens, rawSource)
	return p.parseProgram()
}

func (p *Parser) parseProgram() (*Program, error) {
	if _, err := p.expect(FIELD); err != nil {
		return nil, err
	}
	limit, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	items, err := p.parseItems()
	if err != nil {
		return nil, err
	}
	return &Program{Limit: limit, Items: items}, nil
}

// ParseProgram lexes and parses the source of a main unit. unit names the
// source in error messages.
func ParseProgram(unit, src string) (*Program, error) {
	p := &Parser{unit: unit, sourceLines: strings.Split(src, "\n")}
	tokens, err := Lex(src)
	if err != nil {
		return nil, p.withSource(err)
	}
	p.tokens = tokens
	return p.parseProgram()
}

// ParseUnit lexes and parses the source of an imported unit: items only,
// without a field declaration.
func ParseUnit(unit, src string) ([]Item, error) {
	p := &Parser{unit: unit, sourceLines: strings.Split(src, "\n")}
	tokens, err := Lex(src)
	if err != nil {
		return nil, p.withSource(err)
	}
	p.tokens = tokens
	return p.parseItems()
}

// ParseExpression parses a standalone expression. The whole input must be
// consumed.
func ParseExpression(src string) (Expr, error) {
	p := &Parser{sourceLines: strings.Split(src, "\n")}
	tokens, err := Lex(src)
	if err != nil {
		return nil, p.withSource(err)
	}
	p.tokens = tokens
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != EOF {
		return nil, p.fmtError(tok, "unexpected %s (%q) after expression", tok.Type, tok.Lexeme)
	}
	return expr, nil
}
