// Package license parses compound license expressions such as
// "MIT OR Apache-2.0" into boolean trees over license identifiers.
package license

import "strings"

// Expression is a node of a parsed license expression.
type Expression interface {
	String() string
	node()
}

// Atom is a single license identifier.
type Atom struct {
	ID string
}

// And requires both sides.
type And struct {
	Left, Right Expression
}

// Or offers a choice between both sides.
type Or struct {
	Left, Right Expression
}

func (Atom) node() {}
func (And) node()  {}
func (Or) node()   {}

func (a Atom) String() string { return a.ID }

func (a And) String() string { return a.Left.String() + " AND " + a.Right.String() }

func (o Or) String() string { return o.Left.String() + " OR " + o.Right.String() }

// Atoms lists the identifiers of expr from left to right, each once.
func Atoms(expr Expression) []string {
	var out []string
	seen := make(map[string]struct{})
	walk(expr, func(a Atom) {
		if _, ok := seen[a.ID]; ok {
			return
		}
		seen[a.ID] = struct{}{}
		out = append(out, a.ID)
	})
	return out
}

func walk(expr Expression, fn func(Atom)) {
	switch e := expr.(type) {
	case Atom:
		fn(e)
	case And:
		walk(e.Left, fn)
		walk(e.Right, fn)
	case Or:
		walk(e.Left, fn)
		walk(e.Right, fn)
	}
}

// Expand parses each entry of values and returns the union of their
// identifiers, so "MIT OR Apache-2.0" contributes both MIT and Apache-2.0.
// Entries that do not parse are split on whitespace instead.
func Expand(values []string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, value := range values {
		expr, err := Parse(value)
		if err != nil {
			for _, tok := range strings.Fields(value) {
				if id := trimParens(tok); id != "" && id != opOr && id != opAnd {
					add(id)
				}
			}
			continue
		}
		for _, id := range Atoms(expr) {
			add(id)
		}
	}
	return out
}
