package compiler

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestLex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			name:  "Empty",
			input: "",
			expected: []Token{
				{Type: EOF, Lexeme: "", Pos: Position{1, 1}},
			},
		},
		{
			name:  "Punctuation and operators",
			input: "{ } ( ) ; , = @ * / + -",
			expected: []Token{
				{LBRACE, "{", Position{1, 1}},
				{RBRACE, "}", Position{1, 3}},
				{LPAREN, "(", Position{1, 5}},
				{RPAREN, ")", Position{1, 7}},
				{SEMICOLON, ";", Position{1, 9}},
				{COMMA, ",", Position{1, 11}},
				{ASSIGN, "=", Position{1, 13}},
				{AT, "@", Position{1, 15}},
				{STAR, "*", Position{1, 17}},
				{SLASH, "/", Position{1, 19}},
				{PLUS, "+", Position{1, 21}},
				{MINUS, "-", Position{1, 23}},
				{EOF, "", Position{1, 24}},
			},
		},
		{
			name:  "Keywords and identifiers",
			input: "field fields ab0 a0_\nimport",
			expected: []Token{
				{FIELD, "field", Position{1, 1}},
				{IDENTIFIER, "fields", Position{1, 7}},
				{IDENTIFIER, "ab0", Position{1, 14}},
				{IDENTIFIER, "a0_", Position{1, 18}},
				{IMPORT, "import", Position{2, 1}},
				{EOF, "", Position{2, 7}},
			},
		},
		{
			name:  "Number followed by operator",
			input: "12 + 0x1f",
			expected: []Token{
				{NUMBER, "12", Position{1, 1}},
				{PLUS, "+", Position{1, 4}},
				{NUMBER, "0x1f", Position{1, 6}},
				{EOF, "", Position{1, 10}},
			},
		},
		{
			name:  "Separated digits",
			input: "1 234;",
			expected: []Token{
				{NUMBER, "1234", Position{1, 1}},
				{SEMICOLON, ";", Position{1, 6}},
				{EOF, "", Position{1, 7}},
			},
		},
		{
			name:  "Import path characters",
			input: "import foo-bar/b4r.baz_q;",
			expected: []Token{
				{IMPORT, "import", Position{1, 1}},
				{PATH, "foo-bar/b4r.baz_q", Position{1, 8}},
				{SEMICOLON, ";", Position{1, 25}},
				{EOF, "", Position{1, 26}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Lex(tt.input)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.expected, tokens); diff != "" {
				t.Errorf("Lex(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestLexNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0x1234", "0x1234"},
		{"0x12345678901234567890", "0x12345678901234567890"},
		{"0x1 234", "0x1234"},
		{"0x12 345 678 901 234 567 890", "0x12345678901234567890"},
		{"1234", "1234"},
		{"12345678901234567890", "12345678901234567890"},
		{"1 234", "1234"},
		{"12 345 678 901 234 567 890", "12345678901234567890"},
		{"0x1\t2\n3", "0x123"},
		{"0x 1234", "0x1234"},
		{"0x\n12 34", "0x1234"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, err := Lex(tt.input)
			require.NoError(t, err)
			require.Len(t, tokens, 2)
			require.Equal(t, NUMBER, tokens[0].Type)
			require.Equal(t, tt.want, tokens[0].Lexeme)
		})
	}
}

func TestLexUpperCaseHexPrefix(t *testing.T) {
	// Only "0x" starts a hex literal; "0X12" is the number 0 and a name.
	tokens, err := Lex("0X12")
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	require.Equal(t, Token{Type: NUMBER, Lexeme: "0", Pos: Position{1, 1}}, tokens[0])
	require.Equal(t, Token{Type: IDENTIFIER, Lexeme: "X12", Pos: Position{1, 2}}, tokens[1])

	_, err = ParseExpression("0X12")
	require.Equal(t, KindSyntax, KindOf(err))
}

func TestLexSeparatorNeedsDigit(t *testing.T) {
	// Hex digits after a decimal literal do not continue it.
	tokens, err := Lex("12 ab")
	require.NoError(t, err)
	require.Equal(t, []TokenType{NUMBER, IDENTIFIER, EOF},
		[]TokenType{tokens[0].Type, tokens[1].Type, tokens[2].Type})
	require.Equal(t, "12", tokens[0].Lexeme)
}

func TestLexImportPaths(t *testing.T) {
	valid := []string{"foo", "bar", "foo.bar", "foo_bar", "foo-bar", "foo/bar", "a/b/c9"}
	for _, p := range valid {
		t.Run(p, func(t *testing.T) {
			tokens, err := Lex("import " + p + ";")
			require.NoError(t, err)
			require.Equal(t, PATH, tokens[1].Type)
			require.Equal(t, p, tokens[1].Lexeme)
		})
	}

	invalid := []string{"foo.", "bar/", ".hidden", "../foo", "./f00"}
	for _, p := range invalid {
		t.Run(p, func(t *testing.T) {
			_, err := Lex("import " + p + ";")
			require.Error(t, err)
			require.Equal(t, KindSyntax, KindOf(err))
		})
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		pos   Position
	}{
		{"Illegal character", "a = 1 ! 2;", Position{1, 7}},
		{"Bare hex prefix", "field 0x;", Position{1, 7}},
		{"Hex prefix then space", "field 0x ;", Position{1, 7}},
		{"Underscore start", "\n_x = 1;", Position{2, 1}},
		{"Missing import path", "import ;", Position{1, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Lex(tt.input)
			require.Error(t, err)
			var e *Error
			require.ErrorAs(t, err, &e)
			require.Equal(t, KindSyntax, e.Kind)
			require.NotNil(t, e.Pos)
			require.Equal(t, tt.pos, *e.Pos)
		})
	}
}

func TestIsIdentifier(t *testing.T) {
	for _, s := range []string{"abc", "ab0", "ab_", "a0_", "Z"} {
		require.True(t, IsIdentifier(s), s)
	}
	for _, s := range []string{"", "0bc", "!ab", "_ab", "field", "import", "a-b", "a.b"} {
		require.False(t, IsIdentifier(s), s)
	}
}
