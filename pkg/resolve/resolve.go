// Package resolve turns declared dependencies into resolved versions,
// licenses and policy verdicts.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/fulmenhq/cargo-licenses/pkg/license"
	"github.com/fulmenhq/cargo-licenses/pkg/logger"
	"github.com/fulmenhq/cargo-licenses/pkg/manifest"
	"github.com/fulmenhq/cargo-licenses/pkg/policy"
	"github.com/fulmenhq/cargo-licenses/pkg/registry"
	"github.com/fulmenhq/cargo-licenses/pkg/versioning"
)

// ErrNoLicense reports a release published without a license expression.
var ErrNoLicense = errors.New("no license listed")

// Registry lists the published releases of a crate.
type Registry interface {
	Versions(ctx context.Context, name string) (registry.Releases, error)
}

// Stage names the step of resolution that failed.
type Stage string

const (
	StageRegistry Stage = "registry"
	StageVersion  Stage = "version"
	StageLicense  Stage = "license"
)

// ResolutionError is attached to a result whose dependency could not be
// resolved or evaluated.
type ResolutionError struct {
	Name  string
	Stage Stage
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %s lookup failed: %v", e.Name, e.Stage, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Result is the outcome for one dependency.
type Result struct {
	Dependency manifest.Dependency
	Version    string
	License    string
	// Published is the release date of Version, zero when unknown.
	Published  time.Time
	Expression license.Expression
	// Verdict is empty when Err is set.
	Verdict   policy.Verdict
	Offending []string
	Ignored   bool
	// Yanked marks a version chosen from yanked releases because nothing
	// else satisfied the requirement.
	Yanked bool
	Err    *ResolutionError
}

// Resolved reports whether the dependency resolved without error.
func (r Result) Resolved() bool { return r.Err == nil }

// Failed reports a policy failure.
func (r Result) Failed() bool { return r.Verdict == policy.Fail }

// Options controls a Coordinator.
type Options struct {
	// Policy is nil when no policy is configured; every resolved
	// dependency then passes and licenses are not parsed.
	Policy *policy.Policy
	// Concurrency bounds parallel registry lookups.
	Concurrency int
	// Timeout bounds the resolution of a single dependency.
	Timeout       time.Duration
	IncludeYanked bool
	// Ignore holds glob patterns of crate names exempt from the policy.
	Ignore []string
}

// Coordinator resolves dependencies against a registry.
type Coordinator struct {
	registry Registry
	opts     Options
}

// New validates opts and creates a Coordinator.
func New(reg Registry, opts Options) (*Coordinator, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	for _, pattern := range opts.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}
	return &Coordinator{registry: reg, opts: opts}, nil
}

// Resolve processes deps concurrently. results[i] always describes deps[i];
// a failure is recorded on its own result and never stops the others.
func (c *Coordinator) Resolve(ctx context.Context, deps []manifest.Dependency) []Result {
	results := make([]Result, len(deps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for idx, dep := range deps {
		g.Go(func() error {
			results[idx] = c.resolveOne(gctx, dep)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Coordinator) resolveOne(ctx context.Context, dep manifest.Dependency) Result {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	res := Result{Dependency: dep}
	fail := func(stage Stage, err error) Result {
		res.Err = &ResolutionError{Name: dep.Name, Stage: stage, Err: err}
		logger.Warn("Dependency unresolved",
			logger.String("crate", dep.Name),
			logger.String("stage", string(stage)),
			logger.Err(err))
		return res
	}

	name := dep.RegistryName()
	releases, err := c.registry.Versions(ctx, name)
	if err != nil {
		return fail(StageRegistry, err)
	}

	version, err := versioning.Select(dep.Constraint, releases.Numbers(c.opts.IncludeYanked))
	if errors.Is(err, versioning.ErrNoMatchingVersion) && !c.opts.IncludeYanked {
		if yanked, yerr := versioning.Select(dep.Constraint, releases.Numbers(true)); yerr == nil {
			version, err = yanked, nil
			res.Yanked = true
		}
	}
	if err != nil {
		return fail(StageVersion, err)
	}
	res.Version = version

	release, _ := releases.Lookup(version)
	res.License = release.License
	res.Published = release.PublishedAt
	logger.Debug("Resolved dependency",
		logger.String("crate", dep.Name),
		logger.String("constraint", dep.DisplayConstraint()),
		logger.String("version", version),
		logger.String("license", res.License))

	if c.ignored(dep) {
		res.Ignored = true
		res.Verdict = policy.Pass
		return res
	}
	if c.opts.Policy == nil {
		res.Verdict = policy.Pass
		return res
	}

	if res.License == "" {
		return fail(StageLicense, ErrNoLicense)
	}
	expr, err := license.Parse(res.License)
	if err != nil {
		return fail(StageLicense, err)
	}
	res.Expression = expr
	res.Verdict = policy.Evaluate(expr, c.opts.Policy)
	if res.Verdict == policy.Fail {
		res.Offending = policy.Explain(expr, c.opts.Policy)
	}
	return res
}

func (c *Coordinator) ignored(dep manifest.Dependency) bool {
	for _, pattern := range c.opts.Ignore {
		if ok, _ := doublestar.Match(pattern, dep.Name); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, dep.RegistryName()); ok {
			return true
		}
	}
	return false
}

// Summary counts results by outcome.
type Summary struct {
	Total      int `json:"total"`
	Passed     int `json:"passed"`
	Failed     int `json:"failed"`
	Unresolved int `json:"unresolved"`
	Ignored    int `json:"ignored"`
}

// Summarize counts the outcomes of results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case !r.Resolved():
			s.Unresolved++
		case r.Failed():
			s.Failed++
		default:
			s.Passed++
		}
		if r.Ignored {
			s.Ignored++
		}
	}
	return s
}

// RuleInput describes results to rego rules.
func RuleInput(results []Result) policy.RuleInput {
	input := policy.RuleInput{Dependencies: make([]policy.RuleDependency, 0, len(results))}
	for _, r := range results {
		dep := policy.RuleDependency{
			Name:       r.Dependency.Name,
			Constraint: r.Dependency.Constraint,
			Section:    string(r.Dependency.Section),
			Version:    r.Version,
			License:    r.License,
			Licenses:   []string{},
			Verdict:    string(r.Verdict),
			Ignored:    r.Ignored,
			Resolved:   r.Resolved(),
		}
		switch {
		case r.Expression != nil:
			dep.Licenses = license.Atoms(r.Expression)
		case r.License != "":
			dep.Licenses = license.Expand([]string{r.License})
		}
		input.Dependencies = append(input.Dependencies, dep)
	}
	return input
}
