// Package policy decides whether a license expression is acceptable under an
// allow-list or deny-list of license identifiers.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/fulmenhq/cargo-licenses/pkg/license"
)

// ErrConflictingPolicy reports a policy that names both allowed and denied
// licenses.
var ErrConflictingPolicy = errors.New("allow and deny lists are mutually exclusive")

// Mode selects how the identifier set is interpreted.
type Mode string

const (
	ModeAllow Mode = "allow"
	ModeDeny  Mode = "deny"
)

// Strategy selects how a deny-list treats license choices.
type Strategy string

const (
	// StrategyChoice fails only when every licensing choice offered by the
	// expression contains a denied identifier.
	StrategyChoice Strategy = "choice"
	// StrategyAny fails as soon as any identifier of the expression is denied.
	StrategyAny Strategy = "any"
)

// ParseStrategy maps a configuration value onto a Strategy. Empty selects
// StrategyChoice.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyChoice:
		return StrategyChoice, nil
	case StrategyAny:
		return StrategyAny, nil
	default:
		return "", fmt.Errorf("unknown deny strategy %q (want %q or %q)", s, StrategyChoice, StrategyAny)
	}
}

// Verdict is the outcome of evaluating one dependency.
type Verdict string

const (
	Pass Verdict = "pass"
	Fail Verdict = "fail"
)

func (v Verdict) String() string { return string(v) }

// Option tunes a Policy.
type Option func(*Policy)

// WithStrategy sets the deny strategy.
func WithStrategy(s Strategy) Option {
	return func(p *Policy) { p.strategy = s }
}

// WithCaseInsensitive folds case on both the policy identifiers and the
// identifiers being evaluated.
func WithCaseInsensitive(enabled bool) Option {
	return func(p *Policy) { p.fold = enabled }
}

// Policy is an immutable allow-list or deny-list.
type Policy struct {
	mode     Mode
	ids      map[string]struct{}
	strategy Strategy
	fold     bool
}

// New builds a policy over ids.
func New(mode Mode, ids []string, opts ...Option) (*Policy, error) {
	if mode != ModeAllow && mode != ModeDeny {
		return nil, fmt.Errorf("unknown policy mode %q", mode)
	}
	p := &Policy{mode: mode, strategy: StrategyChoice}
	for _, opt := range opts {
		opt(p)
	}
	p.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		p.ids[p.key(id)] = struct{}{}
	}
	return p, nil
}

// Allow is shorthand for an allow-list policy.
func Allow(ids ...string) *Policy {
	p, _ := New(ModeAllow, ids)
	return p
}

// Deny is shorthand for a deny-list policy with the choice strategy.
func Deny(ids ...string) *Policy {
	p, _ := New(ModeDeny, ids)
	return p
}

// FromLists builds a policy from the allow and deny lists of a
// configuration. Both empty yields nil, meaning no policy.
func FromLists(allow, deny []string, opts ...Option) (*Policy, error) {
	allow = license.Expand(allow)
	deny = license.Expand(deny)
	switch {
	case len(allow) > 0 && len(deny) > 0:
		return nil, ErrConflictingPolicy
	case len(allow) > 0:
		return New(ModeAllow, allow, opts...)
	case len(deny) > 0:
		return New(ModeDeny, deny, opts...)
	default:
		return nil, nil
	}
}

func (p *Policy) Mode() Mode { return p.mode }

func (p *Policy) Strategy() Strategy { return p.strategy }

// IDs returns the policy identifiers in sorted order.
func (p *Policy) IDs() []string {
	out := make([]string, 0, len(p.ids))
	for id := range p.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *Policy) String() string {
	if p.mode == ModeDeny {
		return fmt.Sprintf("deny (%s): %s", p.strategy, strings.Join(p.IDs(), ", "))
	}
	return "allow: " + strings.Join(p.IDs(), ", ")
}

func (p *Policy) key(id string) string {
	if p.fold {
		return cases.Fold().String(id)
	}
	return id
}

func (p *Policy) contains(id string) bool {
	_, ok := p.ids[p.key(id)]
	return ok
}

// Evaluate returns the verdict for expr under p.
//
// An allow-list treats an identifier as true when listed and passes when
// the expression is true. A deny-list with the choice strategy treats an
// identifier as true when it is not listed, so an OR passes when either
// side avoids denied identifiers and an AND needs both sides to. With the
// any strategy a single denied identifier fails the expression.
func Evaluate(expr license.Expression, p *Policy) Verdict {
	if p == nil {
		return Pass
	}
	var ok bool
	switch {
	case p.mode == ModeAllow:
		ok = satisfied(expr, p.contains)
	case p.strategy == StrategyAny:
		ok = len(Explain(expr, p)) == 0
	default:
		ok = satisfied(expr, func(id string) bool { return !p.contains(id) })
	}
	if ok {
		return Pass
	}
	return Fail
}

func satisfied(expr license.Expression, acceptable func(string) bool) bool {
	switch e := expr.(type) {
	case license.Atom:
		return acceptable(e.ID)
	case license.And:
		return satisfied(e.Left, acceptable) && satisfied(e.Right, acceptable)
	case license.Or:
		return satisfied(e.Left, acceptable) || satisfied(e.Right, acceptable)
	default:
		return false
	}
}

// Explain lists the identifiers of expr that the policy objects to: those
// missing from an allow-list, or those present in a deny-list.
func Explain(expr license.Expression, p *Policy) []string {
	if p == nil || expr == nil {
		return nil
	}
	var out []string
	for _, id := range license.Atoms(expr) {
		listed := p.contains(id)
		if (p.mode == ModeAllow && !listed) || (p.mode == ModeDeny && listed) {
			out = append(out, id)
		}
	}
	return out
}
