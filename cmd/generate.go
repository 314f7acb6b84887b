/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/fulmenhq/cargo-licenses/internal/gitctx"
	"github.com/fulmenhq/cargo-licenses/pkg/exitcode"
	"github.com/fulmenhq/cargo-licenses/pkg/report"
	"github.com/spf13/cobra"
)

func newGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a license report for the manifest's dependencies",
		Long: `Generate resolves every direct dependency against crates.io and writes a
license report. The exit code does not depend on policy verdicts; use
'cargo-licenses check' to enforce a policy.`,
		Args: cobra.NoArgs,
		RunE: runGenerate,
	}
	addManifestFlags(cmd)
	cmd.Flags().String("format", "", "Report format: md, json or xml (default from config, then md)")
	cmd.Flags().StringP("output", "o", "", "Report path (default .license_report.<ext>)")
	cmd.Flags().Bool("preview", false, "Also render the Markdown report in the terminal")
	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	formatName := cfg.Report.Format
	if v, _ := cmd.Flags().GetString("format"); v != "" {
		formatName = v
	}
	format, err := report.ParseFormat(formatName)
	if err != nil || format == report.FormatText {
		return withExitCode(exitcode.UnsupportedFormat, fmt.Errorf("unsupported report format %q (want md, json or xml)", formatName))
	}

	output := cfg.Report.Output
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		output = v
	}
	if output == "" {
		output = format.DefaultPath()
	}

	manifestPath, deps, err := loadDependencies(cmd, cfg)
	if err != nil {
		return err
	}
	ps, err := loadPolicy(cmd, cfg)
	if err != nil {
		return err
	}
	results, violations, err := resolveDependencies(cmd.Context(), cfg, deps, ps)
	if err != nil {
		return err
	}

	r := report.Build(manifestPath, policyDescription(ps.policy), results)
	r.Violations = violations
	r.Source = gitctx.Collect(filepath.Dir(manifestPath))
	if err := report.WriteFile(output, r, format); err != nil {
		return withExitCode(exitcode.FileSystemError, err)
	}

	out := cmd.OutOrStdout()
	if preview, _ := cmd.Flags().GetBool("preview"); preview {
		var md bytes.Buffer
		if err := report.RenderMarkdown(&md, r); err != nil {
			return err
		}
		rendered, err := report.Preview(md.String(), noColor(cmd, cfg))
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
	}
	fmt.Fprintf(out, "Generated %s: %s\n", format.Kind(), output)
	return nil
}
