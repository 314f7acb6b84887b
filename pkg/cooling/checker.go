// Package cooling flags dependencies whose matched release is younger than
// a minimum age.
package cooling

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fulmenhq/cargo-licenses/pkg/config"
	"github.com/fulmenhq/cargo-licenses/pkg/resolve"
)

// Checker validates matched releases against the cooling policy
type Checker struct {
	config config.CoolingConfig
	now    func() time.Time
}

// NewChecker creates a new cooling checker
func NewChecker(cfg config.CoolingConfig) *Checker {
	return &Checker{config: cfg, now: time.Now}
}

// Violation is a release published too recently.
type Violation struct {
	Crate      string
	Version    string
	AgeDays    int
	MinAgeDays int
}

func (v Violation) String() string {
	return fmt.Sprintf("crate %s %s is only %d days old (minimum: %d days)", v.Crate, v.Version, v.AgeDays, v.MinAgeDays)
}

// Enabled reports whether a minimum age is configured.
func (c *Checker) Enabled() bool {
	return c.config.MinAgeDays > 0
}

// Check validates one release. A zero publish time is unknown and passes.
func (c *Checker) Check(name, version string, published time.Time) (Violation, bool) {
	if !c.Enabled() || published.IsZero() || c.isException(name) {
		return Violation{}, true
	}
	ageDays := int(c.now().Sub(published).Hours() / 24)
	if ageDays >= c.config.MinAgeDays {
		return Violation{}, true
	}
	return Violation{Crate: name, Version: version, AgeDays: ageDays, MinAgeDays: c.config.MinAgeDays}, false
}

// CheckResults validates every resolved result, in order.
func (c *Checker) CheckResults(results []resolve.Result) []Violation {
	if !c.Enabled() {
		return nil
	}
	var violations []Violation
	for _, r := range results {
		if !r.Resolved() || r.Ignored {
			continue
		}
		if v, ok := c.Check(r.Dependency.Name, r.Version, r.Published); !ok {
			violations = append(violations, v)
		}
	}
	return violations
}

// isException checks if the crate matches an exception pattern
func (c *Checker) isException(name string) bool {
	for _, exc := range c.config.Exceptions {
		if ok, _ := doublestar.Match(exc.Pattern, name); !ok {
			continue
		}
		if exc.Until != "" {
			until, err := time.Parse("2006-01-02", exc.Until)
			if err == nil && c.now().After(until) {
				continue // Exception expired
			}
		}
		return true
	}
	return false
}
