// Package versioning selects published crate versions against Cargo-style
// version requirements.
package versioning

import (
	"errors"
	"fmt"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

var (
	// ErrInvalidConstraint reports a version requirement that cannot be parsed.
	ErrInvalidConstraint = errors.New("invalid version constraint")
	// ErrNoMatchingVersion reports that no candidate satisfies the requirement.
	ErrNoMatchingVersion = errors.New("no matching version")
)

// Comparison is the ordering of two versions.
type Comparison int

const (
	ComparisonUnknown Comparison = iota
	ComparisonLess
	ComparisonEqual
	ComparisonGreater
)

func (c Comparison) String() string {
	switch c {
	case ComparisonLess:
		return "less"
	case ComparisonEqual:
		return "equal"
	case ComparisonGreater:
		return "greater"
	default:
		return "unknown"
	}
}

// Version is a parsed semantic version that remembers its original spelling.
type Version struct {
	v *mm.Version
}

// Constraint is a parsed Cargo version requirement.
type Constraint struct {
	raw string
	c   *mm.Constraints
}

// ParseVersion parses a published version string.
func ParseVersion(raw string) (Version, error) {
	v, err := mm.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return Version{}, fmt.Errorf("parse version %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

// Original returns the version exactly as it was supplied.
func (v Version) Original() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// Prerelease reports whether the version carries a pre-release tag.
func (v Version) Prerelease() bool {
	return v.v != nil && v.v.Prerelease() != ""
}

// ParseConstraint parses a Cargo version requirement. Bare versions such as
// "0.12" or "1.2.3" are caret requirements, as Cargo treats them.
// Comma-separated terms must all hold.
func ParseConstraint(raw string) (Constraint, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Constraint{}, fmt.Errorf("%w: empty requirement", ErrInvalidConstraint)
	}

	terms := strings.Split(trimmed, ",")
	for i, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			return Constraint{}, fmt.Errorf("%w: %q has an empty term", ErrInvalidConstraint, raw)
		}
		terms[i] = cargoTerm(term)
	}

	c, err := mm.NewConstraint(strings.Join(terms, ", "))
	if err != nil {
		return Constraint{}, fmt.Errorf("%w: %q: %v", ErrInvalidConstraint, raw, err)
	}
	return Constraint{raw: raw, c: c}, nil
}

// cargoTerm rewrites a bare version term into the caret form.
func cargoTerm(term string) string {
	if term[0] < '0' || term[0] > '9' {
		return term
	}
	core := term
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	if strings.ContainsAny(core, "*xX") {
		return term
	}
	return "^" + term
}

// String returns the requirement as written.
func (c Constraint) String() string {
	return c.raw
}

// Satisfies reports whether v meets the requirement.
func Satisfies(v Version, c Constraint) bool {
	if v.v == nil || c.c == nil {
		return false
	}
	return c.c.Check(v.v)
}

// Compare orders two parsed versions. Build metadata is ignored.
func Compare(a, b Version) Comparison {
	if a.v == nil || b.v == nil {
		return ComparisonUnknown
	}
	switch a.v.Compare(b.v) {
	case -1:
		return ComparisonLess
	case 1:
		return ComparisonGreater
	default:
		return ComparisonEqual
	}
}

// MaxSatisfying returns the highest candidate meeting c. Among equal
// versions the first encountered wins.
func MaxSatisfying(c Constraint, candidates []Version) (Version, bool) {
	var best Version
	found := false
	for _, candidate := range candidates {
		if !Satisfies(candidate, c) {
			continue
		}
		if !found || Compare(candidate, best) == ComparisonGreater {
			best = candidate
			found = true
		}
	}
	return best, found
}

// Max returns the highest version of candidates, pre-releases included.
func Max(candidates []Version) (Version, bool) {
	var best Version
	found := false
	for _, candidate := range candidates {
		if !found || Compare(candidate, best) == ComparisonGreater {
			best = candidate
			found = true
		}
	}
	return best, found
}

// Select picks the highest version of available that satisfies constraint.
// An empty constraint accepts any version. Entries of available that do not
// parse are skipped. The chosen version is returned as spelled in available.
func Select(constraint string, available []string) (string, error) {
	candidates := make([]Version, 0, len(available))
	for _, raw := range available {
		v, err := ParseVersion(raw)
		if err != nil {
			continue
		}
		candidates = append(candidates, v)
	}

	if strings.TrimSpace(constraint) == "" {
		best, ok := Max(candidates)
		if !ok {
			return "", fmt.Errorf("%w: no published versions", ErrNoMatchingVersion)
		}
		return best.Original(), nil
	}

	c, err := ParseConstraint(constraint)
	if err != nil {
		return "", err
	}
	best, ok := MaxSatisfying(c, candidates)
	if !ok {
		return "", fmt.Errorf("%w for %q", ErrNoMatchingVersion, constraint)
	}
	return best.Original(), nil
}
