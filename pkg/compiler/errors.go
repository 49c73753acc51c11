package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies compiler failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindSyntax is malformed source; the error carries a position.
	KindSyntax
	// KindImport is a missing, unreadable, malformed or cyclic import.
	KindImport
	// KindSemantic is well-formed source that cannot be compiled: a
	// non-constant modulus or constant, an illegal assignment target, or a
	// reference to an undeclared symbol.
	KindSemantic
	// KindInternal means a stage received input that an earlier stage
	// should have rejected.
	KindInternal
)

var kindNames = [...]string{
	KindUnknown:  "error",
	KindSyntax:   "syntax error",
	KindImport:   "import error",
	KindSemantic: "semantic error",
	KindInternal: "internal error",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the error type returned by every compiler stage.
//
// Kind targets callers that react to the class of failure. Op names the
// stage or pass that failed, Unit the source unit, Pos the location of a
// syntax error and Symbol the offending name of a semantic error. Err
// chains an underlying cause.
type Error struct {
	Kind    Kind
	Op      string
	Unit    string
	Pos     *Position
	Symbol  string
	Msg     string
	Snippet string // source line for syntax errors
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Unit != "" {
		b.WriteString(e.Unit)
		if e.Pos == nil {
			b.WriteString(": ")
		} else {
			b.WriteString(":")
		}
	}
	if e.Pos != nil {
		b.WriteString(e.Pos.String())
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		if e.Msg != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	if e.Snippet != "" {
		b.WriteString("\n  |> ")
		b.WriteString(e.Snippet)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func syntaxErrorf(pos Position, format string, args ...any) *Error {
	return &Error{Kind: KindSyntax, Pos: &pos, Msg: fmt.Sprintf(format, args...)}
}

func semanticErrorf(symbol string, format string, args ...any) *Error {
	return &Error{Kind: KindSemantic, Symbol: symbol, Msg: fmt.Sprintf(format, args...)}
}

func internalErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Msg: fmt.Sprintf(format, args...)}
}

func importError(path string, err error) *Error {
	return &Error{Kind: KindImport, Symbol: path, Msg: fmt.Sprintf("import %q", path), Err: err}
}

// withOp sets Op on a compiler error that does not carry one yet; other
// errors are wrapped as internal failures of op.
func withOp(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			e.Op = op
		}
		return err
	}
	return &Error{Kind: KindInternal, Op: op, Err: err}
}
