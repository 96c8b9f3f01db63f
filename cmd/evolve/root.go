package main

import (
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Evolve - AI-assisted application scaffolding",
		Long: `Evolve turns a natural-language prompt into a validated application.

It derives a structured contract from your prompt, generates the code,
runs it through a validation pipeline, and repairs failures over a
bounded number of iterations until the result passes.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newContractCommand())
	cmd.AddCommand(newProvidersCommand())
	cmd.AddCommand(newBatchCommand())
	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newCacheCommand())
	cmd.AddCommand(newSessionCommand())

	return cmd
}

// initEnv wires environment variables into viper so flags fall back to
// EVOLVE_* values. A .env file in the working directory is loaded
// first; its absence is fine.
func initEnv() {
	_ = godotenv.Load()
	viper.SetEnvPrefix("EVOLVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func execute() error {
	cobra.OnInitialize(initEnv)
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
