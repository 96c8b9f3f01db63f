package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/evolvehq/evolve/internal/codegen"
	"github.com/evolvehq/evolve/internal/contract"
	"github.com/evolvehq/evolve/internal/pipeline"
	"github.com/evolvehq/evolve/internal/projectconfig"
	"github.com/evolvehq/evolve/internal/shell"
)

func newValidateCommand() *cobra.Command {
	var (
		contractPath string
		skipStages   []string
		onlyStages   []string
	)

	cmd := &cobra.Command{
		Use:   "validate <dir>",
		Short: "Run the validation pipeline against an existing directory",
		Long: `Validate a previously generated application without evolving it.

The directory's files are loaded and run through the same pipeline an
evolution session uses. The contract defaults to contract.json inside
the directory, which evolve run writes alongside the application.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absDir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			cp := contractPath
			if cp == "" {
				cp = filepath.Join(absDir, "contract.json")
			}
			c, err := contract.Load(cp)
			if err != nil {
				return fmt.Errorf("loading contract: %w", err)
			}

			files, err := codegen.LoadFiles(absDir)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no application files found under %s", absDir)
			}

			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := projectconfig.Load(cwd)
			if err != nil {
				return err
			}

			skip := cfg.Pipeline.Skip
			if len(skipStages) > 0 {
				skip = skipStages
			}
			only := cfg.Pipeline.Only
			if len(onlyStages) > 0 {
				only = onlyStages
			}

			pipe, err := pipeline.New(pipeline.Options{
				Skip:     skip,
				Only:     only,
				Settings: cfg.Pipeline.Settings,
			})
			if err != nil {
				return err
			}

			res := pipe.Run(cmd.Context(), &pipeline.Context{
				Contract:  c,
				Files:     files,
				OutputDir: absDir,
				Runner:    shell.ExecRunner{},
			})

			printPipelineResult(cmd, res)

			if !res.Passed {
				return &ValidationFailedError{
					Message: fmt.Sprintf("validation failed: %d error(s) across %d stage(s)",
						res.Summary.TotalErrors, res.Summary.StagesFailed),
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&contractPath, "contract", "c", "", "Contract file (default: <dir>/contract.json)")
	cmd.Flags().StringArrayVar(&skipStages, "skip-stage", nil, "Validation stage to skip (can be repeated)")
	cmd.Flags().StringArrayVar(&onlyStages, "only-stage", nil, "Restrict validation to the named stages (can be repeated)")

	return cmd
}

func printPipelineResult(cmd *cobra.Command, res *pipeline.Result) {
	out := cmd.OutOrStdout()
	for _, sr := range res.Stages {
		icon := "✓"
		if !sr.Passed {
			icon = "✗"
		}
		fmt.Fprintf(out, "%s %s (%dms)\n", icon, sr.Stage, sr.TimeMs) //nolint:errcheck
		for _, f := range sr.Errors {
			fmt.Fprintf(out, "    error: %s\n", f.String()) //nolint:errcheck
		}
		for _, f := range sr.Warnings {
			fmt.Fprintf(out, "    warning: %s\n", f.String()) //nolint:errcheck
		}
	}
	fmt.Fprintf(out, "\n%d/%d stages passed, %d error(s), %d warning(s)\n",
		res.Summary.StagesPassed, res.Summary.StagesPassed+res.Summary.StagesFailed,
		res.Summary.TotalErrors, res.Summary.TotalWarnings) //nolint:errcheck
}
