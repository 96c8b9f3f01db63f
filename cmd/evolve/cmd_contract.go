package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evolvehq/evolve/internal/contract"
	"github.com/evolvehq/evolve/internal/projectconfig"
	"github.com/evolvehq/evolve/internal/prompt"
)

func newContractCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Generate and inspect application contracts",
		Long: `Work with contracts directly, outside an evolution session.

A contract is the structured plan an evolution session runs under:
entities, API resources, assertions, and tech stack. Generating one
ahead of time lets you review or edit the plan before any code exists.`,
	}

	cmd.AddCommand(newContractGenerateCommand())
	cmd.AddCommand(newContractValidateCommand())
	cmd.AddCommand(newContractShowCommand())

	return cmd
}

func newContractGenerateCommand() *cobra.Command {
	var (
		outputPath    string
		providersFlag string
		strategyFlag  string
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a contract from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userPrompt := strings.TrimSpace(strings.Join(args, " "))
			if userPrompt == "" {
				return fmt.Errorf("prompt is empty")
			}

			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := projectconfig.Load(cwd)
			if err != nil {
				return err
			}

			providers, _, err := newProviderManager(cfg, providersFlag, strategyFlag, false, "")
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer providers.Close(ctx) //nolint:errcheck

			gen := contract.NewGenerator(providers, prompt.NewBuilder())
			c, err := gen.Generate(ctx, userPrompt)
			if err != nil {
				return fmt.Errorf("generating contract: %w", err)
			}

			if outputPath != "" {
				if err := contract.Save(c, outputPath); err != nil {
					return fmt.Errorf("saving contract: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Contract saved to: %s\n", outputPath) //nolint:errcheck
				return nil
			}

			text, err := contract.FormatJSON(c)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text) //nolint:errcheck
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the contract to this file instead of stdout")
	cmd.Flags().StringVar(&providersFlag, "provider", "", "Comma-separated provider order")
	cmd.Flags().StringVar(&strategyFlag, "strategy", "", "Provider selection strategy")

	return cmd
}

func newContractValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <contract-file>",
		Short: "Check a contract file against the schema and its invariants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := contract.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Contract is valid: %s\n", c.App.Name) //nolint:errcheck
			fmt.Fprintf(out, "  %d entity(ies), %d resource(s)\n",
				len(c.Entities), len(c.API.Resources)) //nolint:errcheck
			return nil
		},
	}
	return cmd
}

func newContractShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <contract-file>",
		Short: "Render a contract as readable Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := contract.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), contract.Markdown(c)) //nolint:errcheck
			return nil
		},
	}
	return cmd
}
