package resolve

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/cargo-licenses/pkg/license"
	"github.com/fulmenhq/cargo-licenses/pkg/manifest"
	"github.com/fulmenhq/cargo-licenses/pkg/policy"
	"github.com/fulmenhq/cargo-licenses/pkg/registry"
	"github.com/fulmenhq/cargo-licenses/pkg/versioning"
)

type fakeRegistry struct {
	mu       sync.Mutex
	releases map[string]registry.Releases
	errs     map[string]error
	delays   map[string]time.Duration
	calls    []string
	inFlight int32
	peak     int32
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		releases: make(map[string]registry.Releases),
		errs:     make(map[string]error),
		delays:   make(map[string]time.Duration),
	}
}

func (f *fakeRegistry) add(name string, rels ...registry.Release) *fakeRegistry {
	f.releases[name] = rels
	return f
}

func (f *fakeRegistry) Versions(ctx context.Context, name string) (registry.Releases, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, name)
	delay := f.delays[name]
	err := f.errs[name]
	rels, ok := f.releases[name]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &registry.NotFoundError{Name: name}
	}
	return rels, nil
}

func rel(num, lic string) registry.Release {
	return registry.Release{Number: num, License: lic}
}

func dep(name, constraint string) manifest.Dependency {
	return manifest.Dependency{Name: name, Constraint: constraint, Section: manifest.SectionNormal}
}

func TestResolveWithoutPolicy(t *testing.T) {
	reg := newFakeRegistry().
		add("serde", rel("1.0.196", "MIT OR Apache-2.0"), rel("1.0.195", "MIT OR Apache-2.0")).
		add("weird", rel("0.1.0", "not a valid expression OR"))

	c, err := New(reg, Options{Concurrency: 2})
	require.NoError(t, err)

	results := c.Resolve(context.Background(), []manifest.Dependency{dep("serde", "1.0"), dep("weird", "")})
	require.Len(t, results, 2)

	assert.Equal(t, "1.0.196", results[0].Version)
	assert.Equal(t, "MIT OR Apache-2.0", results[0].License)
	assert.Equal(t, policy.Pass, results[0].Verdict)
	assert.Nil(t, results[0].Expression)

	// Without a policy the license is never parsed, so a malformed one passes.
	assert.True(t, results[1].Resolved())
	assert.Equal(t, policy.Pass, results[1].Verdict)
}

func TestResolvePreservesOrderUnderConcurrency(t *testing.T) {
	reg := newFakeRegistry()
	var deps []manifest.Dependency
	names := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"}
	for i, name := range names {
		reg.add(name, rel("1.0.0", "MIT"))
		// Earlier entries finish last.
		reg.delays[name] = time.Duration(len(names)-i) * 5 * time.Millisecond
		deps = append(deps, dep(name, "1"))
	}

	c, err := New(reg, Options{Concurrency: len(names), Policy: policy.Allow("MIT")})
	require.NoError(t, err)

	results := c.Resolve(context.Background(), deps)
	require.Len(t, results, len(names))
	for i, r := range results {
		assert.Equal(t, names[i], r.Dependency.Name)
		assert.Equal(t, policy.Pass, r.Verdict)
	}
}

func TestResolveRespectsConcurrencyLimit(t *testing.T) {
	reg := newFakeRegistry()
	var deps []manifest.Dependency
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		reg.add(name, rel("1.0.0", "MIT"))
		reg.delays[name] = 10 * time.Millisecond
		deps = append(deps, dep(name, ""))
	}

	c, err := New(reg, Options{Concurrency: 2})
	require.NoError(t, err)
	c.Resolve(context.Background(), deps)

	assert.LessOrEqual(t, atomic.LoadInt32(&reg.peak), int32(2))
	assert.Len(t, reg.calls, 8)
}

func TestResolveIsolatesFailures(t *testing.T) {
	reg := newFakeRegistry().
		add("good", rel("1.2.0", "MIT")).
		add("old", rel("0.1.0", "MIT")).
		add("nolicense", rel("1.0.0", "")).
		add("badlicense", rel("1.0.0", "MIT OR"))
	reg.errs["flaky"] = errors.New("connection reset")

	c, err := New(reg, Options{Concurrency: 3, Policy: policy.Deny("GPL-3.0")})
	require.NoError(t, err)

	deps := []manifest.Dependency{
		dep("flaky", "1"),
		dep("missing", "1"),
		dep("old", "2"),
		dep("good", ">>1"),
		dep("nolicense", "1"),
		dep("badlicense", "1"),
		dep("good", "1"),
	}
	results := c.Resolve(context.Background(), deps)
	require.Len(t, results, len(deps))

	cases := []struct {
		stage   Stage
		wantErr error
	}{
		{StageRegistry, nil},
		{StageRegistry, registry.ErrNotFound},
		{StageVersion, versioning.ErrNoMatchingVersion},
		{StageVersion, versioning.ErrInvalidConstraint},
		{StageLicense, ErrNoLicense},
		{StageLicense, license.ErrDanglingOperator},
	}
	for i, tc := range cases {
		r := results[i]
		require.NotNil(t, r.Err, deps[i].Name)
		assert.False(t, r.Resolved())
		assert.Equal(t, tc.stage, r.Err.Stage, deps[i].Name)
		assert.Equal(t, deps[i].Name, r.Err.Name)
		assert.Empty(t, r.Verdict)
		if tc.wantErr != nil {
			assert.ErrorIs(t, r.Err, tc.wantErr, deps[i].Name)
		}
	}

	last := results[len(results)-1]
	assert.Nil(t, last.Err)
	assert.Equal(t, "1.2.0", last.Version)
	assert.Equal(t, policy.Pass, last.Verdict)

	summary := Summarize(results)
	assert.Equal(t, Summary{Total: 7, Passed: 1, Unresolved: 6}, summary)
}

func TestResolvePolicyVerdicts(t *testing.T) {
	reg := newFakeRegistry().
		add("dual", rel("1.0.0", "MIT OR GPL-3.0")).
		add("gpl", rel("2.0.0", "GPL-3.0")).
		add("both", rel("0.3.0", "MIT AND GPL-3.0"))

	deps := []manifest.Dependency{dep("dual", ""), dep("gpl", ""), dep("both", "")}

	c, err := New(reg, Options{Policy: policy.Deny("GPL-3.0")})
	require.NoError(t, err)
	results := c.Resolve(context.Background(), deps)

	assert.Equal(t, policy.Pass, results[0].Verdict)
	assert.Equal(t, policy.Fail, results[1].Verdict)
	assert.Equal(t, []string{"GPL-3.0"}, results[1].Offending)
	assert.Equal(t, policy.Fail, results[2].Verdict)

	allow, err := New(reg, Options{Policy: policy.Allow("MIT")})
	require.NoError(t, err)
	results = allow.Resolve(context.Background(), deps)
	assert.Equal(t, policy.Pass, results[0].Verdict)
	assert.Equal(t, policy.Fail, results[1].Verdict)
	assert.Equal(t, policy.Fail, results[2].Verdict)
	assert.Equal(t, Summary{Total: 3, Passed: 1, Failed: 2}, Summarize(results))
}

func TestResolveCaretConstraintUnderDeny(t *testing.T) {
	reg := newFakeRegistry().add("reqwest",
		rel("0.11.27", "MIT OR Apache-2.0"),
		rel("0.12.0", "MIT OR Apache-2.0"),
		rel("1.0.0", "GPL-3.0"))

	c, err := New(reg, Options{Policy: policy.Deny("GPL-3.0")})
	require.NoError(t, err)

	results := c.Resolve(context.Background(), []manifest.Dependency{dep("reqwest", "0.12")})
	require.Len(t, results, 1)
	require.True(t, results[0].Resolved())
	assert.Equal(t, "0.12.0", results[0].Version)
	assert.Equal(t, policy.Pass, results[0].Verdict)
}

func TestResolveIgnoredDependencies(t *testing.T) {
	reg := newFakeRegistry().
		add("acme-core", rel("1.0.0", "LicenseRef-Proprietary")).
		add("rand", rel("0.8.5", "MIT OR Apache-2.0"))

	c, err := New(reg, Options{Policy: policy.Allow("MIT"), Ignore: []string{"acme-*"}})
	require.NoError(t, err)

	results := c.Resolve(context.Background(), []manifest.Dependency{dep("acme-core", ""), dep("rand", "0.8")})
	assert.True(t, results[0].Ignored)
	assert.Equal(t, "1.0.0", results[0].Version)
	assert.Equal(t, policy.Pass, results[0].Verdict)
	assert.False(t, results[1].Ignored)
	assert.Equal(t, policy.Pass, results[1].Verdict)
}

func TestResolveRenamedDependencyUsesRegistryName(t *testing.T) {
	reg := newFakeRegistry().add("rand", rel("0.8.5", "MIT"))
	c, err := New(reg, Options{})
	require.NoError(t, err)

	d := manifest.Dependency{Name: "rand_core", Package: "rand", Constraint: "0.8"}
	results := c.Resolve(context.Background(), []manifest.Dependency{d})
	require.Nil(t, results[0].Err)
	assert.Equal(t, "0.8.5", results[0].Version)
	assert.Equal(t, []string{"rand"}, reg.calls)
}

func TestResolveYankedReleases(t *testing.T) {
	reg := newFakeRegistry().add("pinned",
		registry.Release{Number: "1.0.2", License: "MIT", Yanked: true},
		registry.Release{Number: "1.0.1", License: "MIT"},
	)

	c, err := New(reg, Options{})
	require.NoError(t, err)
	results := c.Resolve(context.Background(), []manifest.Dependency{dep("pinned", "1"), dep("pinned", "=1.0.2")})
	assert.Equal(t, "1.0.1", results[0].Version)
	assert.False(t, results[0].Yanked)
	assert.Equal(t, "1.0.2", results[1].Version)
	assert.True(t, results[1].Yanked)

	withYanked, err := New(reg, Options{IncludeYanked: true})
	require.NoError(t, err)
	results = withYanked.Resolve(context.Background(), []manifest.Dependency{dep("pinned", "1")})
	assert.Equal(t, "1.0.2", results[0].Version)
}

func TestResolveTimeout(t *testing.T) {
	reg := newFakeRegistry().add("slow", rel("1.0.0", "MIT")).add("fast", rel("1.0.0", "MIT"))
	reg.delays["slow"] = time.Second

	c, err := New(reg, Options{Concurrency: 2, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	results := c.Resolve(context.Background(), []manifest.Dependency{dep("slow", ""), dep("fast", "")})
	require.NotNil(t, results[0].Err)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
	assert.Nil(t, results[1].Err)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)

	_, err = New(newFakeRegistry(), Options{Ignore: []string{"acme-["}})
	assert.Error(t, err)

	c, err := New(newFakeRegistry(), Options{Concurrency: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, c.opts.Concurrency)
}

func TestResolveEmpty(t *testing.T) {
	c, err := New(newFakeRegistry(), Options{})
	require.NoError(t, err)
	assert.Empty(t, c.Resolve(context.Background(), nil))
}

func TestRuleInput(t *testing.T) {
	reg := newFakeRegistry().
		add("serde", rel("1.0.0", "MIT OR Apache-2.0")).
		add("legacy", rel("0.1.0", "MIT/Apache-2.0"))
	reg.errs["missing"] = &registry.NotFoundError{Name: "missing"}

	c, err := New(reg, Options{Policy: policy.Deny("GPL-3.0")})
	require.NoError(t, err)
	c2, err := New(reg, Options{})
	require.NoError(t, err)

	results := c.Resolve(context.Background(), []manifest.Dependency{dep("serde", "1"), dep("missing", "")})
	results = append(results, c2.Resolve(context.Background(), []manifest.Dependency{dep("legacy", "0.1")})...)

	input := RuleInput(results)
	require.Len(t, input.Dependencies, 3)

	assert.Equal(t, "serde", input.Dependencies[0].Name)
	assert.Equal(t, []string{"MIT", "Apache-2.0"}, input.Dependencies[0].Licenses)
	assert.Equal(t, "pass", input.Dependencies[0].Verdict)
	assert.True(t, input.Dependencies[0].Resolved)

	assert.False(t, input.Dependencies[1].Resolved)
	assert.Empty(t, input.Dependencies[1].Licenses)

	// Without a policy the expression is not parsed; identifiers still reach the rules.
	assert.Equal(t, []string{"MIT", "Apache-2.0"}, input.Dependencies[2].Licenses)
}
