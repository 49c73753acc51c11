package compiler

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"field":  FIELD,
	"import": IMPORT,
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
	col  int // current 1-based source column

	// wantPath is set after the import keyword: the next token is scanned
	// as a path rather than as operators and identifiers.
	wantPath bool
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1, col: 1}
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDecimal(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHex(r rune) bool {
	return isDecimal(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isIdentPart(r rune) bool {
	return isLetter(r) || isDecimal(r) || r == '_'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isPathChar(r rune) bool {
	return isIdentPart(r) || r == '.' || r == '/' || r == '-'
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) position() Position {
	return Position{Line: l.line, Col: l.col}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && isSpace(l.peek()) {
		l.advance()
	}
}

// IsIdentifier reports whether s is a valid, non-keyword identifier.
func IsIdentifier(s string) bool {
	if _, kw := keywords[s]; kw || s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && !isLetter(r) || !isIdentPart(r) {
			return false
		}
	}
	return true
}

// scanIdent collects a full identifier or keyword token.
// The first letter must still be at l.peek().
func (l *Lexer) scanIdent() Token {
	pos := l.position()
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.peek()) {
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENTIFIER
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Pos: pos}
}

// scanNumber collects a decimal or hex literal. Whitespace between digits
// is a group separator ("0x1 234" == "0x 1234" == "0x1234") and is dropped
// from the lexeme; it is only consumed when another digit of the same radix
// follows. The hex prefix is lower case.
func (l *Lexer) scanNumber() (Token, error) {
	pos := l.position()
	prefix := ""
	digit := isDecimal

	if l.peek() == '0' && l.peek2() == 'x' {
		l.advance() // consume '0'
		l.advance() // consume 'x'
		prefix = "0x"
		digit = isHex
	}

	var digits []rune
	for {
		if digit(l.peek()) {
			digits = append(digits, l.advance())
			continue
		}
		next := l.pos
		for next < len(l.src) && isSpace(l.src[next]) {
			next++
		}
		if next == l.pos || next >= len(l.src) || !digit(l.src[next]) {
			break
		}
		for l.pos < next {
			l.advance()
		}
	}

	if len(digits) == 0 {
		return Token{}, syntaxErrorf(pos, "malformed hex literal: no digits after 0x")
	}
	return Token{Type: NUMBER, Lexeme: prefix + string(digits), Pos: pos}, nil
}

// scanPath collects the operand of an import statement.
func (l *Lexer) scanPath() (Token, error) {
	pos := l.position()
	start := l.pos
	for l.pos < len(l.src) && isPathChar(l.peek()) {
		l.advance()
	}
	path := string(l.src[start:l.pos])
	switch {
	case path == "":
		return Token{}, syntaxErrorf(pos, "expected import path, got %q", string(l.peek()))
	case path[0] == '.':
		return Token{}, syntaxErrorf(pos, "import path %q must not start with '.'", path)
	case path[len(path)-1] == '.':
		return Token{}, syntaxErrorf(pos, "import path %q must not end with '.'", path)
	case path[len(path)-1] == '/':
		return Token{}, syntaxErrorf(pos, "import path %q must not end with '/'", path)
	}
	return Token{Type: PATH, Lexeme: path, Pos: pos}, nil
}

// nextToken skips whitespace and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.src) {
		return Token{Type: EOF, Lexeme: "", Pos: l.position()}, nil
	}

	if l.wantPath {
		l.wantPath = false
		return l.scanPath()
	}

	ch := l.peek()
	pos := l.position()

	if isLetter(ch) {
		tok := l.scanIdent()
		l.wantPath = tok.Type == IMPORT
		return tok, nil
	}
	if isDecimal(ch) {
		return l.scanNumber()
	}

	l.advance() // consume the character before the switch
	switch ch {
	case '{':
		return Token{LBRACE, "{", pos}, nil
	case '}':
		return Token{RBRACE, "}", pos}, nil
	case '(':
		return Token{LPAREN, "(", pos}, nil
	case ')':
		return Token{RPAREN, ")", pos}, nil
	case ';':
		return Token{SEMICOLON, ";", pos}, nil
	case ',':
		return Token{COMMA, ",", pos}, nil
	case '=':
		return Token{ASSIGN, "=", pos}, nil
	case '@':
		return Token{AT, "@", pos}, nil
	case '*':
		return Token{STAR, "*", pos}, nil
	case '/':
		return Token{SLASH, "/", pos}, nil
	case '+':
		return Token{PLUS, "+", pos}, nil
	case '-':
		return Token{MINUS, "-", pos}, nil
	default:
		return Token{}, syntaxErrorf(pos, "unexpected character %q", ch)
	}
}

// Lex tokenises src and returns all tokens including the final EOF token.
// It returns a non-nil error on the first illegal character or malformed literal.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
