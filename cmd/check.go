/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/cargo-licenses/internal/gitctx"
	"github.com/fulmenhq/cargo-licenses/pkg/exitcode"
	"github.com/fulmenhq/cargo-licenses/pkg/registry"
	"github.com/fulmenhq/cargo-licenses/pkg/report"
	"github.com/fulmenhq/cargo-licenses/pkg/resolve"
	"github.com/spf13/cobra"
)

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check dependency licenses against a policy",
		Long: `Check resolves every direct dependency and evaluates its license against an
allow or deny policy. Flag values may be expressions: --deny "GPL-2.0 OR GPL-3.0"
denies both identifiers.

With --deny the default strategy is "choice": a crate passes when at least one
of the licensing options it offers avoids every denied identifier, so
"MIT OR GPL-3.0" passes --deny GPL-3.0. Use --deny-strategy any to fail on
any mention of a denied identifier.

Exits with code 3 when a dependency fails the policy, a rule denies it or a
matched release is younger than --min-age-days.
With --strict, dependencies that could not be resolved also fail the check.
When the registry could not be reached for any dependency the exit code is 5,
or 7 when every lookup timed out.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
	addManifestFlags(cmd)
	addPolicyFlags(cmd)
	cmd.Flags().Bool("strict", false, "Fail when a dependency cannot be resolved")
	cmd.Flags().String("format", "text", "Output format: text, md, json or xml")
	cmd.Flags().StringP("output", "o", "", "Write the result to a file instead of stdout")
	cmd.Flags().Int("max-license-width", 48, "Truncate licenses wider than this in text output")
	cmd.Flags().Int("min-age-days", 0, "Fail on matched releases published fewer than this many days ago")
	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("min-age-days") {
		cfg.Cooling.MinAgeDays, _ = cmd.Flags().GetInt("min-age-days")
	}

	formatName, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return withExitCode(exitcode.UnsupportedFormat, err)
	}

	manifestPath, deps, err := loadDependencies(cmd, cfg)
	if err != nil {
		return err
	}
	ps, err := loadPolicy(cmd, cfg)
	if err != nil {
		return err
	}
	if ps.policy == nil && ps.rules == nil && cfg.Cooling.MinAgeDays <= 0 {
		return withExitCode(exitcode.ConfigError, errors.New("no license policy configured: pass --allow, --deny or --policy"))
	}

	results, violations, err := resolveDependencies(cmd.Context(), cfg, deps, ps)
	if err != nil {
		return err
	}

	r := report.Build(manifestPath, policyDescription(ps.policy), results)
	r.Violations = violations
	r.Source = gitctx.Collect(filepath.Dir(manifestPath))

	width, _ := cmd.Flags().GetInt("max-license-width")
	if output, _ := cmd.Flags().GetString("output"); output != "" {
		if err := report.WriteFile(output, r, format); err != nil {
			return withExitCode(exitcode.FileSystemError, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated %s: %s\n", format.Kind(), output)
	} else {
		opts := report.TextOptions{NoColor: noColor(cmd, cfg), MaxLicenseWidth: width}
		if err := report.Render(cmd.OutOrStdout(), r, format, opts); err != nil {
			return err
		}
	}

	strict, _ := cmd.Flags().GetBool("strict")
	return checkOutcome(r, results, strict)
}

// checkOutcome turns a report into the error check exits with.
func checkOutcome(r *report.Report, results []resolve.Result, strict bool) error {
	var problems []string
	if r.Summary.Failed > 0 {
		problems = append(problems, fmt.Sprintf("%d dependencies violate the license policy", r.Summary.Failed))
	}
	if n := len(r.Violations); n > 0 {
		problems = append(problems, fmt.Sprintf("%d rule violations", n))
	}
	if strict && r.Summary.Unresolved > 0 {
		problems = append(problems, fmt.Sprintf("%d dependencies could not be resolved", r.Summary.Unresolved))
	}
	if len(problems) == 0 {
		return nil
	}
	code := exitcode.PolicyViolation
	if strict && len(r.Violations) == 0 {
		if c, ok := unreachableCode(results); ok {
			code = c
		}
	}
	return withExitCode(code, fmt.Errorf("license check failed: %s", strings.Join(problems, "; ")))
}

// unreachableCode reports NetworkError, or TimeoutError when every lookup
// timed out, if no dependency got an answer from the registry.
func unreachableCode(results []resolve.Result) (int, bool) {
	if len(results) == 0 {
		return 0, false
	}
	timeouts := 0
	for _, res := range results {
		if res.Resolved() || res.Err.Stage != resolve.StageRegistry || errors.Is(res.Err, registry.ErrNotFound) {
			return 0, false
		}
		if errors.Is(res.Err, context.DeadlineExceeded) {
			timeouts++
		}
	}
	if timeouts == len(results) {
		return exitcode.TimeoutError, true
	}
	return exitcode.NetworkError, true
}
