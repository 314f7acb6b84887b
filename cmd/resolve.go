/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/cargo-licenses/pkg/buildinfo"
	"github.com/fulmenhq/cargo-licenses/pkg/config"
	"github.com/fulmenhq/cargo-licenses/pkg/cooling"
	"github.com/fulmenhq/cargo-licenses/pkg/exitcode"
	"github.com/fulmenhq/cargo-licenses/pkg/logger"
	"github.com/fulmenhq/cargo-licenses/pkg/manifest"
	"github.com/fulmenhq/cargo-licenses/pkg/policy"
	"github.com/fulmenhq/cargo-licenses/pkg/registry"
	"github.com/fulmenhq/cargo-licenses/pkg/resolve"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newRegistry builds the registry client used by generate and check.
// Tests replace it to avoid network access.
var newRegistry = func(cfg *config.Config) resolve.Registry {
	return registry.NewCratesClient(registry.Options{
		BaseURL:    cfg.Registry.URL,
		UserAgent:  userAgent(cfg),
		MaxRetries: cfg.Registry.MaxRetries,
	}, cfg.Registry.Timeout)
}

func userAgent(cfg *config.Config) string {
	if cfg.Registry.UserAgent != "" {
		return cfg.Registry.UserAgent
	}
	return fmt.Sprintf("cargo-licenses/%s (https://github.com/fulmenhq/cargo-licenses)", buildinfo.Version())
}

// addManifestFlags registers the flags that select the manifest and its sections.
func addManifestFlags(cmd *cobra.Command) {
	cmd.Flags().String("manifest-path", "", "Path to Cargo.toml (default from config, then ./Cargo.toml)")
	cmd.Flags().Bool("dev", false, "Include [dev-dependencies]")
	cmd.Flags().Bool("build", false, "Include [build-dependencies]")
	cmd.Flags().Bool("skip-optional", false, "Skip optional dependencies")
}

// loadDependencies reads the manifest selected by flags and config.
func loadDependencies(cmd *cobra.Command, cfg *config.Config) (string, []manifest.Dependency, error) {
	path := cfg.Manifest.Path
	if v, _ := cmd.Flags().GetString("manifest-path"); v != "" {
		path = v
	}
	opts := manifest.Options{
		IncludeDev:   boolFlag(cmd.Flags(), "dev", cfg.Manifest.Dev),
		IncludeBuild: boolFlag(cmd.Flags(), "build", cfg.Manifest.Build),
		SkipOptional: boolFlag(cmd.Flags(), "skip-optional", cfg.Manifest.SkipOptional),
	}

	deps, err := manifest.Load(path, opts)
	if err != nil {
		return path, nil, withExitCode(exitcode.FileSystemError, err)
	}
	logger.Debug("Loaded manifest",
		logger.String("path", path),
		logger.Int("dependencies", len(deps)))
	return path, deps, nil
}

// boolFlag returns the flag value when it was set on the command line and
// fallback otherwise.
func boolFlag(flags *pflag.FlagSet, name string, fallback bool) bool {
	if flags.Changed(name) {
		v, _ := flags.GetBool(name)
		return v
	}
	return fallback
}

// policySettings is the policy assembled from flags, the policy file and
// config.
type policySettings struct {
	policy *policy.Policy
	ignore []string
	rules  *policy.RuleEngine
}

// loadPolicy assembles the policy. Command line lists win over a policy
// file, which wins over lists in the config file. Ignore patterns from
// config and the policy file are combined.
func loadPolicy(cmd *cobra.Command, cfg *config.Config) (*policySettings, error) {
	allow, _ := cmd.Flags().GetStringArray("allow")
	deny, _ := cmd.Flags().GetStringArray("deny")
	if len(allow) > 0 && len(deny) > 0 {
		return nil, withExitCode(exitcode.ConfigError, fmt.Errorf("--allow and --deny cannot be combined: %w", policy.ErrConflictingPolicy))
	}

	strategyName := cfg.Policy.DenyStrategy
	if cmd.Flags().Changed("deny-strategy") {
		strategyName, _ = cmd.Flags().GetString("deny-strategy")
	}
	strategy, err := policy.ParseStrategy(strategyName)
	if err != nil {
		return nil, withExitCode(exitcode.ConfigError, err)
	}
	opts := []policy.Option{policy.WithCaseInsensitive(cfg.Policy.CaseInsensitive)}

	settings := &policySettings{ignore: append([]string{}, cfg.Policy.Ignore...)}
	rulesPath := cfg.Policy.Rego

	policyPath := cfg.Policy.File
	if v, _ := cmd.Flags().GetString("policy"); v != "" {
		policyPath = v
	}

	var file *policy.File
	if policyPath != "" {
		file, err = policy.LoadFile(policyPath)
		if err != nil {
			return nil, withExitCode(exitcode.ConfigError, err)
		}
		settings.ignore = append(settings.ignore, file.IgnorePatterns()...)
		if file.Rego != "" {
			rulesPath = file.RegoPath()
		}
	}

	switch {
	case len(allow) > 0 || len(deny) > 0:
		settings.policy, err = policy.FromLists(allow, deny, append(opts, policy.WithStrategy(strategy))...)
	case file != nil:
		if cmd.Flags().Changed("deny-strategy") {
			opts = append(opts, policy.WithStrategy(strategy))
		}
		settings.policy, err = file.Policy(opts...)
	default:
		settings.policy, err = policy.FromLists(cfg.Policy.Allow, cfg.Policy.Deny, append(opts, policy.WithStrategy(strategy))...)
	}
	if err != nil {
		return nil, withExitCode(exitcode.ConfigError, err)
	}

	if v, _ := cmd.Flags().GetString("rules"); v != "" {
		rulesPath = v
	}
	if rulesPath != "" {
		settings.rules, err = policy.LoadRules(rulesPath)
		if err != nil {
			return nil, withExitCode(exitcode.ConfigError, err)
		}
	}

	if settings.policy != nil {
		logger.Debug("Using license policy", logger.String("policy", settings.policy.String()))
	}
	return settings, nil
}

// addPolicyFlags registers the flags read by loadPolicy.
func addPolicyFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("allow", nil, "Allowed license identifier or expression (repeatable)")
	cmd.Flags().StringArray("deny", nil, "Denied license identifier or expression (repeatable)")
	cmd.Flags().String("deny-strategy", "choice", "Deny semantics: choice (pass if any alternative is acceptable) or any")
	cmd.Flags().String("policy", "", "Policy file (YAML)")
	cmd.Flags().String("rules", "", "Rego rules evaluated over the resolved dependencies")
}

// resolveDependencies runs the coordinator, the rego rules and the release
// age check.
func resolveDependencies(ctx context.Context, cfg *config.Config, deps []manifest.Dependency, ps *policySettings) ([]resolve.Result, []string, error) {
	coordinator, err := resolve.New(newRegistry(cfg), resolve.Options{
		Policy:        ps.policy,
		Concurrency:   cfg.Registry.Concurrency,
		Timeout:       cfg.Registry.Timeout,
		IncludeYanked: cfg.Registry.IncludeYanked,
		Ignore:        ps.ignore,
	})
	if err != nil {
		return nil, nil, withExitCode(exitcode.ConfigError, err)
	}

	results := coordinator.Resolve(ctx, deps)
	summary := resolve.Summarize(results)
	logger.Info("Resolved dependencies",
		logger.Int("total", summary.Total),
		logger.Int("failed", summary.Failed),
		logger.Int("unresolved", summary.Unresolved))

	var violations []string
	if ps.rules != nil {
		violations, err = ps.rules.Evaluate(ctx, resolve.RuleInput(results))
		if err != nil {
			return nil, nil, withExitCode(exitcode.ConfigError, err)
		}
	}
	for _, v := range cooling.NewChecker(cfg.Cooling).CheckResults(results) {
		violations = append(violations, v.String())
	}
	return results, violations, nil
}

func policyDescription(p *policy.Policy) string {
	if p == nil {
		return ""
	}
	return p.String()
}
