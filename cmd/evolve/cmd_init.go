package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evolvehq/evolve/internal/projectconfig"
	"github.com/evolvehq/evolve/internal/wizard"
)

func newInitCommand() *cobra.Command {
	var (
		interactive bool
		name        string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize an evolve project",
		Long: `Initialize a directory with an evolve project configuration.

Creates a .evolve.yaml with provider order, iteration limits, and
pipeline settings, plus an example contract to evolve from.

Use --interactive for a guided setup that asks about the application
before writing anything.

If no directory is specified, the current directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			var spec *wizard.ProjectSpec
			if interactive {
				s, err := wizard.Run(cmd.InOrStdin(), cmd.OutOrStdout(), name)
				if err != nil {
					return fmt.Errorf("wizard failed: %w", err)
				}
				spec = s
			} else {
				if err := wizard.ValidateAppName(name); err != nil {
					return err
				}
				spec = &wizard.ProjectSpec{
					AppName:       name,
					Providers:     strings.Split(projectconfig.DefaultProviderOrder, ","),
					MaxIterations: projectconfig.DefaultMaxIterations,
					Output:        projectconfig.DefaultOutputDir,
				}
			}

			paths, err := wizard.WriteFiles(dir, spec, force)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Initialized evolve project:") //nolint:errcheck
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", p) //nolint:errcheck
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Run the guided project setup")
	cmd.Flags().StringVar(&name, "name", "my-app", "Application name for the generated files")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing project files")

	return cmd
}
