package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evolvehq/evolve/internal/projectconfig"
	"github.com/evolvehq/evolve/internal/session"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect evolution session logs",
		Long: `Inspect the JSONL event logs evolution sessions write.

Each run appends its events to a timestamped file under the output
directory's state folder: phases, provider calls, validation stage
results, and the final outcome.`,
	}

	cmd.AddCommand(newSessionListCommand())
	cmd.AddCommand(newSessionShowCommand())

	return cmd
}

func newSessionListCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List session logs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				cfg, err := projectconfig.Load(cwd)
				if err != nil {
					return err
				}
				dir = filepath.Join(cfg.Defaults.Output, "state")
			}

			out := cmd.OutOrStdout()
			files, err := session.ListSessions(dir)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					fmt.Fprintln(out, "No session logs found.") //nolint:errcheck
					return nil
				}
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(out, "No session logs found.") //nolint:errcheck
				return nil
			}

			fmt.Fprintf(out, "%-40s %-8s %s\n", "Session", "Events", "Modified") //nolint:errcheck
			fmt.Fprintln(out, strings.Repeat("─", 65))                           //nolint:errcheck
			for _, f := range files {
				fmt.Fprintf(out, "%-40s %-8d %s\n", f.Name, f.NumEvents, f.ModTime.Format("2006-01-02 15:04:05")) //nolint:errcheck
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Session log directory (default: <output>/state)")

	return cmd
}

func newSessionShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-file>",
		Short: "Render one session log as a timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := session.ReadEvents(args[0])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Session log is empty.") //nolint:errcheck
				return nil
			}
			session.RenderTimeline(cmd.OutOrStdout(), events)
			return nil
		},
	}
}
