package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/evolvehq/evolve/internal/projectconfig"
	"github.com/evolvehq/evolve/internal/provider"
)

func newProvidersCommand() *cobra.Command {
	var listModels bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Show configured LLM providers and their availability",
		Long: `Probe every configured provider and report whether it is reachable.

Providers come from EVOLVE_PROVIDERS, the providers section of
.evolve.yaml, or the built-in default order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := projectconfig.Load(cwd)
			if err != nil {
				return err
			}
			applyProviderEnv(cfg, "", "")

			var built []provider.Provider
			m, err := provider.FromEnv(provider.WithDecorator(func(p provider.Provider) provider.Provider {
				built = append(built, p)
				return p
			}))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer m.Close(ctx) //nolint:errcheck

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Provider", "Model", "Priority", "Available", "Requests", "Failed", "Last Error"})
			for _, st := range m.Status(ctx) {
				model := st.Model
				if model == "" {
					model = "(default)"
				}
				available := "no"
				if st.Available {
					available = "yes"
				}
				tw.AppendRow(table.Row{
					st.Name, model, st.Priority, available,
					st.Stats.TotalRequests, st.Stats.FailedRequests,
					truncate(st.LastError, 40),
				})
			}
			tw.Render()

			if !listModels {
				return nil
			}

			out := cmd.OutOrStdout()
			for _, p := range built {
				fmt.Fprintf(out, "\nModels for %s:\n", p.Name()) //nolint:errcheck
				models, err := p.ListModels(ctx)
				if err != nil {
					fmt.Fprintf(out, "  error: %v\n", err) //nolint:errcheck
					continue
				}
				if len(models) == 0 {
					fmt.Fprintln(out, "  (none reported)") //nolint:errcheck
					continue
				}
				for _, mi := range models {
					if mi.Description != "" {
						fmt.Fprintf(out, "  %s - %s\n", mi.ID, mi.Description) //nolint:errcheck
						continue
					}
					fmt.Fprintf(out, "  %s\n", mi.ID) //nolint:errcheck
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&listModels, "models", false, "List the models each provider exposes")

	return cmd
}
