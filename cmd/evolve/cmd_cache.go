package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/evolvehq/evolve/internal/cache"
	"github.com/evolvehq/evolve/internal/projectconfig"
)

var cacheDirFlag string

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the provider response cache",
		Long: `Manage the provider response cache.

The cache stores LLM responses keyed by provider, model, and the full
request, so repeating an evolution with identical inputs skips the
provider call entirely.`,
	}

	cmd.PersistentFlags().StringVar(&cacheDirFlag, "cache-dir", "", "Cache directory (default: .evolve-cache)")

	cmd.AddCommand(newCacheStatsCommand())
	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry count and size on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveCacheDir()
			if err != nil {
				return err
			}
			entries, size, err := cache.New(dir).Stats()
			if err != nil {
				return fmt.Errorf("reading cache: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache directory: %s\n", dir)            //nolint:errcheck
			fmt.Fprintf(out, "Entries: %d\n", entries)                //nolint:errcheck
			fmt.Fprintf(out, "Size on disk: %s\n", formatBytes(size)) //nolint:errcheck
			return nil
		},
	}
}

func newCacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached response",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveCacheDir()
			if err != nil {
				return err
			}
			if err := cache.New(dir).Clear(); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared: %s\n", dir) //nolint:errcheck
			return nil
		},
	}
}

// resolveCacheDir picks the cache directory from the flag, then the
// project config, and resolves it to an absolute path.
func resolveCacheDir() (string, error) {
	dir := cacheDirFlag
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		cfg, err := projectconfig.Load(cwd)
		if err != nil {
			return "", err
		}
		dir = cfg.Cache.Dir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving cache directory: %w", err)
	}
	return abs, nil
}

// formatBytes renders a byte count in binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMG"[exp])
}
