/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the direct dependencies declared in the manifest",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	addManifestFlags(cmd)
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	_, deps, err := loadDependencies(cmd, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, dep := range deps {
		fmt.Fprintf(out, "%s = %q\n", dep.Name, dep.DisplayConstraint())
	}
	return nil
}
