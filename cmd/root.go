/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/cargo-licenses/pkg/buildinfo"
	"github.com/fulmenhq/cargo-licenses/pkg/config"
	"github.com/fulmenhq/cargo-licenses/pkg/exitcode"
	"github.com/fulmenhq/cargo-licenses/pkg/logger"
	"github.com/fulmenhq/cargo-licenses/pkg/manifest"
	"github.com/fulmenhq/cargo-licenses/pkg/policy"
	"github.com/fulmenhq/cargo-licenses/pkg/registry"
	"github.com/spf13/cobra"
)

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cargo-licenses",
		Short: "License reports and policy checks for Cargo dependencies",
		Long: `cargo-licenses resolves the direct dependencies of a Cargo manifest against
crates.io, reports the license of each matched version and checks them
against an allow or deny policy.

Examples:
   cargo-licenses generate                      # Write .license_report.md
   cargo-licenses generate --format json        # Write .license_report.json
   cargo-licenses list --dev                    # Show declared dependencies
   cargo-licenses check --deny GPL-3.0          # Fail on crates that require GPL-3.0
   cargo-licenses check --policy licenses.yaml  # Check against a policy file`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initializeLogger(cmd)
		},
	}

	// Add global flags
	cmd.PersistentFlags().String("config", "", "Config file (default .cargo-licenses.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	cmd.Version = buildinfo.Version()
	cmd.SetVersionTemplate("cargo-licenses version {{.Version}}\n")

	return cmd
}

// registerSubcommands adds all subcommands to the root command.
// This is called from init() for production and can be called explicitly in tests.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(newGenerateCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newCheckCommand())
	cmd.AddCommand(newVersionCommand())
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		code := exitCode(err)
		logger.Error("Command failed", logger.Err(err), logger.String("exit", exitcode.String(code)))
		logger.Sync()
		os.Exit(code)
	}
}

func init() {
	registerSubcommands(rootCmd)
}

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode maps an error onto a process exit code.
func exitCode(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return exitcode.Success
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, manifest.ErrManifestNotFound), errors.Is(err, os.ErrNotExist):
		return exitcode.FileSystemError
	case errors.Is(err, policy.ErrConflictingPolicy):
		return exitcode.ConfigError
	case errors.Is(err, context.DeadlineExceeded):
		return exitcode.TimeoutError
	case errors.Is(err, registry.ErrUpstreamDown), errors.Is(err, registry.ErrRateLimited):
		return exitcode.NetworkError
	default:
		return exitcode.GeneralError
	}
}

// initializeLogger sets up the logger from flags, falling back to the config
// file for values the user did not pass.
func initializeLogger(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	levelStr := cfg.Log.Level
	if cmd.Flags().Changed("log-level") {
		levelStr, _ = cmd.Flags().GetString("log-level")
	}
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return withExitCode(exitcode.ConfigError, err)
	}

	if err := logger.Initialize(logger.Config{
		Level:     level,
		UseColor:  !noColor(cmd, cfg),
		JSON:      boolFlag(cmd.Flags(), "log-json", cfg.Log.JSON),
		Component: "cargo-licenses",
	}); err != nil {
		return withExitCode(exitcode.ConfigError, fmt.Errorf("failed to initialize logger: %w", err))
	}
	return nil
}

type configKey struct{}

// loadConfig returns the configuration named by --config, or found in the
// default locations when the flag is empty. The first call stores it on the
// command context and later calls reuse it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg, nil
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, withExitCode(exitcode.ConfigError, err)
	}
	cmd.SetContext(context.WithValue(ctx, configKey{}, cfg))
	return cfg, nil
}

func noColor(cmd *cobra.Command, cfg *config.Config) bool {
	return boolFlag(cmd.Flags(), "no-color", cfg.Log.NoColor || os.Getenv("NO_COLOR") != "")
}
