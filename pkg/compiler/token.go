package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // constant / function / symbol name
	NUMBER     // decimal or 0x-prefixed hex literal, separators stripped
	PATH       // operand of an import statement

	// Keywords
	FIELD  // "field"
	IMPORT // "import"

	// Paired delimiters
	LBRACE // {
	RBRACE // }
	LPAREN // (
	RPAREN // )

	// Punctuation
	SEMICOLON // ;
	COMMA     // ,
	ASSIGN    // =

	// Arithmetic operators
	AT    // @
	STAR  // *
	SLASH // /
	PLUS  // +
	MINUS // -
)

var tokenNames = [...]string{
	EOF:        "EOF",
	IDENTIFIER: "IDENTIFIER",
	NUMBER:     "NUMBER",
	PATH:       "PATH",
	FIELD:      "FIELD",
	IMPORT:     "IMPORT",
	LBRACE:     "LBRACE",
	RBRACE:     "RBRACE",
	LPAREN:     "LPAREN",
	RPAREN:     "RPAREN",
	SEMICOLON:  "SEMICOLON",
	COMMA:      "COMMA",
	ASSIGN:     "ASSIGN",
	AT:         "AT",
	STAR:       "STAR",
	SLASH:      "SLASH",
	PLUS:       "PLUS",
	MINUS:      "MINUS",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Position is a 1-based line and column in a source unit.
type Position struct {
	Line int
	Col  int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // source text; for NUMBER the separators are already stripped
	Pos    Position
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  %s", t.Type, t.Lexeme, t.Pos)
}
