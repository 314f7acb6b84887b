package cooling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/cargo-licenses/pkg/config"
	"github.com/fulmenhq/cargo-licenses/pkg/manifest"
	"github.com/fulmenhq/cargo-licenses/pkg/resolve"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newChecker(cfg config.CoolingConfig) *Checker {
	c := NewChecker(cfg)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestChecker_Check(t *testing.T) {
	checker := newChecker(config.CoolingConfig{MinAgeDays: 7})

	tests := []struct {
		name      string
		published time.Time
		pass      bool
		ageDays   int
	}{
		{"too_new", fixedNow.Add(-3 * 24 * time.Hour), false, 3},
		{"just_published", fixedNow.Add(-time.Hour), false, 0},
		{"exactly_min_age", fixedNow.Add(-7 * 24 * time.Hour), true, 0},
		{"old_enough", fixedNow.AddDate(0, -2, 0), true, 0},
		{"unknown_publish_time", time.Time{}, true, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, ok := checker.Check("serde", "1.0.0", tc.published)
			assert.Equal(t, tc.pass, ok)
			if !tc.pass {
				assert.Equal(t, tc.ageDays, v.AgeDays)
				assert.Equal(t, 7, v.MinAgeDays)
			}
		})
	}
}

func TestChecker_Disabled(t *testing.T) {
	checker := newChecker(config.CoolingConfig{})
	assert.False(t, checker.Enabled())

	_, ok := checker.Check("serde", "1.0.0", fixedNow)
	assert.True(t, ok)
	assert.Nil(t, checker.CheckResults([]resolve.Result{{Version: "1.0.0", Published: fixedNow}}))
}

func TestChecker_Exception(t *testing.T) {
	checker := newChecker(config.CoolingConfig{
		MinAgeDays: 7,
		Exceptions: []config.CoolingException{
			{Pattern: "acme-*"},
			{Pattern: "tokio*", Until: "2025-01-01"},
		},
	})

	_, ok := checker.Check("acme-core", "0.1.0", fixedNow)
	assert.True(t, ok, "matching exception passes")

	_, ok = checker.Check("tokio-util", "0.7.0", fixedNow)
	assert.False(t, ok, "expired exception no longer applies")
}

func TestChecker_CheckResults(t *testing.T) {
	checker := newChecker(config.CoolingConfig{MinAgeDays: 14})
	fresh := fixedNow.Add(-2 * 24 * time.Hour)

	results := []resolve.Result{
		{Dependency: manifest.Dependency{Name: "serde"}, Version: "1.0.300", Published: fresh},
		{Dependency: manifest.Dependency{Name: "log"}, Version: "0.4.20", Published: fixedNow.AddDate(-1, 0, 0)},
		{Dependency: manifest.Dependency{Name: "vendored"}, Version: "0.1.0", Published: fresh, Ignored: true},
		{Dependency: manifest.Dependency{Name: "ghost"}, Err: &resolve.ResolutionError{Name: "ghost"}},
	}

	violations := checker.CheckResults(results)
	require.Len(t, violations, 1)
	assert.Equal(t, "crate serde 1.0.300 is only 2 days old (minimum: 14 days)", violations[0].String())
}
