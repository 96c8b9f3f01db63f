package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/evolvehq/evolve/internal/codegen"
	"github.com/evolvehq/evolve/internal/contract"
	"github.com/evolvehq/evolve/internal/evolution"
	"github.com/evolvehq/evolve/internal/pipeline"
	"github.com/evolvehq/evolve/internal/projectconfig"
	"github.com/evolvehq/evolve/internal/prompt"
	"github.com/evolvehq/evolve/internal/session"
	"github.com/evolvehq/evolve/internal/utils"
	"github.com/evolvehq/evolve/internal/workspace"
)

var (
	batchOutputRoot  string
	batchConcurrency int
	batchMaxIter     int
	batchProviders   string
	batchStrategy    string
	batchSkipStages  []string
	batchNoInstall   bool
	batchForce       bool
)

// batchOutcome pairs one job line with its evolution result.
type batchOutcome struct {
	input string
	dir   string
	res   *evolution.Result
	err   error
}

func newBatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <jobs-file>",
		Short: "Evolve several applications from a jobs file",
		Long: `Run one evolution session per line of the jobs file.

Each line is either a prompt or a contract file path; blank lines and
lines starting with # are skipped. Sessions run concurrently up to the
--concurrency limit, each in its own numbered directory under the
output root. Providers and their rate limits are shared across jobs.`,
		Args: cobra.ExactArgs(1),
		RunE: batchCommandE,
	}

	cmd.Flags().StringVarP(&batchOutputRoot, "output", "o", "batch", "Root directory for per-job output directories")
	cmd.Flags().IntVar(&batchConcurrency, "concurrency", 2, "Number of sessions to run at once")
	cmd.Flags().IntVar(&batchMaxIter, "max-iterations", 0, "Maximum evolution iterations per job (default: 5)")
	cmd.Flags().StringVar(&batchProviders, "provider", "", "Comma-separated provider order")
	cmd.Flags().StringVar(&batchStrategy, "strategy", "", "Provider selection strategy")
	cmd.Flags().StringArrayVar(&batchSkipStages, "skip-stage", nil, "Validation stage to skip (can be repeated)")
	cmd.Flags().BoolVar(&batchNoInstall, "no-install", false, "Skip the dependency install phase")
	cmd.Flags().BoolVar(&batchForce, "force", false, "Evolve into non-empty job directories")

	return cmd
}

func batchCommandE(cmd *cobra.Command, args []string) error {
	jobs, err := readBatchJobs(args[0])
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no jobs in %s", args[0])
	}
	if batchConcurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := projectconfig.Load(cwd)
	if err != nil {
		return err
	}

	// CLI flags override project config
	if batchMaxIter > 0 {
		cfg.Defaults.MaxIterations = batchMaxIter
	}
	if len(batchSkipStages) > 0 {
		cfg.Pipeline.Skip = batchSkipStages
	}

	absRoot, err := filepath.Abs(batchOutputRoot)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return err
	}

	providers, _, err := newProviderManager(cfg, batchProviders, batchStrategy, false, "")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer providers.Close(context.WithoutCancel(ctx)) //nolint:errcheck

	prompts := prompt.NewBuilder()
	contracts := contract.NewGenerator(providers, prompts)
	code := codegen.NewGenerator(providers, prompts)
	pipe, err := pipeline.New(pipeline.Options{
		Skip:     cfg.Pipeline.Skip,
		Only:     cfg.Pipeline.Only,
		Settings: cfg.Pipeline.Settings,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Running %d job(s) with concurrency %d\n\n", len(jobs), batchConcurrency) //nolint:errcheck

	outcomes := make([]batchOutcome, len(jobs))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, input := range jobs {
		g.Go(func() error {
			dir := filepath.Join(absRoot, fmt.Sprintf("session-%02d", i+1))
			res, jobErr := runBatchJob(ctx, input, dir, contracts, code, pipe, cfg)
			outcomes[i] = batchOutcome{input: input, dir: dir, res: res, err: jobErr}

			mu.Lock()
			icon := "✓"
			if jobErr != nil {
				icon = "✗"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s [%d/%d] %s\n", icon, i+1, len(jobs), truncate(input, 60)) //nolint:errcheck
			mu.Unlock()
			return nil
		})
	}
	// Job failures land in outcomes; the group itself never errors.
	_ = g.Wait()

	fmt.Fprintln(cmd.OutOrStdout()) //nolint:errcheck
	printBatchTable(cmd, outcomes)

	var failed int
	var lastErr error
	for _, oc := range outcomes {
		if oc.err != nil {
			failed++
			lastErr = oc.err
		}
	}
	if failed > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d job(s) failed\n", failed, len(jobs)) //nolint:errcheck
		return lastErr
	}
	return nil
}

// runBatchJob executes one evolution session in its own directory.
// The generators, pipeline, and provider pool are shared; the
// workspace claim and session log are per job.
func runBatchJob(ctx context.Context, input, dir string, contracts evolution.ContractGenerator, code evolution.CodeGenerator, pipe *pipeline.Pipeline, cfg *projectconfig.ProjectConfig) (*evolution.Result, error) {
	var req evolution.Request
	if workspace.LooksLikeContractPath(input) {
		c, err := contract.Load(input)
		if err != nil {
			return nil, fmt.Errorf("loading contract %s: %w", input, err)
		}
		req.Contract = c
		req.ContractSource = input
	} else {
		req.Prompt = input
	}

	ws, err := workspace.Resolve(dir, workspace.WithAllowNonEmpty(batchForce))
	if err != nil {
		return nil, err
	}
	sessionID := uuid.NewString()
	if err := ws.Claim(sessionID); err != nil {
		return nil, err
	}
	defer ws.Release() //nolint:errcheck
	req.OutputDir = ws.Root

	var eventLog session.Logger = session.NopLogger{}
	if jl, err := session.NewJSONLogger(session.DefaultLogPath(ws.StateDir), session.WithSession(sessionID)); err == nil {
		defer jl.Close() //nolint:errcheck
		eventLog = jl
	}

	opts := []evolution.Option{
		evolution.WithMaxIterations(cfg.Defaults.MaxIterations),
		evolution.WithContractRetries(cfg.Defaults.ContractRetries),
		evolution.WithSessionLogger(eventLog),
		evolution.WithInstallTimeout(time.Duration(cfg.Defaults.InstallTimeout) * time.Second),
	}
	if batchNoInstall {
		opts = append(opts, evolution.WithInstallDisabled())
	}
	mgr := evolution.NewManager(contracts, code, pipe, opts...)

	return mgr.Evolve(ctx, req)
}

func printBatchTable(cmd *cobra.Command, outcomes []batchOutcome) {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.AppendHeader(table.Row{"#", "Input", "Status", "Iterations", "Files", "Duration", "Output"})
	for i, oc := range outcomes {
		status := "success"
		iterations, files := 0, 0
		var duration time.Duration
		if oc.res != nil {
			iterations = oc.res.Iterations
			files = oc.res.FilesGenerated
			duration = time.Duration(oc.res.TimeMs) * time.Millisecond
			if !oc.res.Success {
				status = "failed"
			}
		}
		if oc.err != nil && oc.res == nil {
			status = "error"
		}
		tw.AppendRow(table.Row{i + 1, truncate(oc.input, 40), status, iterations, files, duration, oc.dir})
	}
	tw.Render()
}

// readBatchJobs parses a jobs file: one prompt or contract path per
// line. Blank lines and # comments are skipped. Contract paths resolve
// relative to the jobs file, not the working directory.
func readBatchJobs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading jobs file: %w", err)
	}
	var jobs []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if workspace.LooksLikeContractPath(line) {
			line = utils.ResolvePath(line, filepath.Dir(path))
		}
		jobs = append(jobs, line)
	}
	return jobs, nil
}
