package license

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyExpression reports an empty or whitespace-only expression.
	ErrEmptyExpression = errors.New("empty license expression")
	// ErrDanglingOperator reports an operator without an operand on both sides.
	ErrDanglingOperator = errors.New("dangling operator")
	// ErrMissingOperator reports two identifiers with no operator between them.
	ErrMissingOperator = errors.New("missing operator")
)

const (
	opOr  = "OR"
	opAnd = "AND"
)

// SyntaxError describes where parsing an expression failed.
type SyntaxError struct {
	Input    string
	Position int
	Token    string
	Err      error
}

func (e *SyntaxError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("license expression %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("license expression %q: %v at token %d (%q)", e.Input, e.Err, e.Position, e.Token)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Parse builds an expression tree from raw. Tokens are separated by
// whitespace; OR and AND (upper case only) are operators and every other
// token is an identifier. Operators fold left to right with no precedence:
// "A OR B AND C" is (A OR B) AND C.
//
// Parentheses are not grammar. They are trimmed from the edges of a token
// and tokens made only of parentheses are dropped. A token written in the
// legacy "MIT/Apache-2.0" form is read as a choice between its parts.
func Parse(raw string) (Expression, error) {
	tokens := tokenize(raw)
	if len(tokens) == 0 {
		return nil, &SyntaxError{Input: raw, Err: ErrEmptyExpression}
	}

	var (
		expr    Expression
		pending string
	)
	for i, tok := range tokens {
		switch tok {
		case opOr, opAnd:
			if expr == nil || pending != "" {
				return nil, &SyntaxError{Input: raw, Position: i, Token: tok, Err: ErrDanglingOperator}
			}
			pending = tok
			continue
		}

		operand := atom(tok)
		switch {
		case expr == nil:
			expr = operand
		case pending == "":
			return nil, &SyntaxError{Input: raw, Position: i, Token: tok, Err: ErrMissingOperator}
		case pending == opOr:
			expr = Or{Left: expr, Right: operand}
		default:
			expr = And{Left: expr, Right: operand}
		}
		pending = ""
	}

	if pending != "" {
		return nil, &SyntaxError{Input: raw, Position: len(tokens) - 1, Token: pending, Err: ErrDanglingOperator}
	}
	return expr, nil
}

func tokenize(raw string) []string {
	fields := strings.Fields(raw)
	tokens := fields[:0]
	for _, f := range fields {
		if tok := trimParens(f); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func trimParens(tok string) string {
	return strings.Trim(tok, "()")
}

// atom turns an identifier token into a leaf, splitting the legacy slash
// form into a left-folded choice.
func atom(tok string) Expression {
	if !strings.Contains(tok, "/") {
		return Atom{ID: tok}
	}
	var expr Expression
	for _, part := range strings.Split(tok, "/") {
		if part == "" {
			continue
		}
		if expr == nil {
			expr = Atom{ID: part}
			continue
		}
		expr = Or{Left: expr, Right: Atom{ID: part}}
	}
	if expr == nil {
		return Atom{ID: tok}
	}
	return expr
}
