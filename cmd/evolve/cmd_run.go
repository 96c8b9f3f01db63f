package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evolvehq/evolve/internal/codegen"
	"github.com/evolvehq/evolve/internal/contract"
	"github.com/evolvehq/evolve/internal/evolution"
	"github.com/evolvehq/evolve/internal/pipeline"
	"github.com/evolvehq/evolve/internal/projectconfig"
	"github.com/evolvehq/evolve/internal/prompt"
	"github.com/evolvehq/evolve/internal/render"
	"github.com/evolvehq/evolve/internal/report"
	"github.com/evolvehq/evolve/internal/session"
	"github.com/evolvehq/evolve/internal/snapshot"
	"github.com/evolvehq/evolve/internal/task"
	"github.com/evolvehq/evolve/internal/transcript"
	"github.com/evolvehq/evolve/internal/workspace"
)

var (
	runContractPath    string
	runOutputDir       string
	runMaxIterations   int
	runContractRetries int
	runProviders       string
	runStrategy        string
	runSkipStages      []string
	runOnlyStages      []string
	runVerbose         bool
	runQuiet           bool
	runNoColor         bool
	runForce           bool
	runNoInstall       bool
	runNoSessionLog    bool
	runTranscript      bool
	runEnableCache     bool
	runDisableCache    bool
	runCacheDir        string
	runReportJUnit     string
	runReportMD        string
	runSnapshot        bool
	runSnapshotUpload  bool
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Evolve an application from a prompt or contract",
		Long: `Run one evolution session: derive a contract from the prompt (or load
one from a file), generate the application, validate it, and repair
failures until the pipeline passes or the iteration budget runs out.

A single argument that looks like a contract file path is treated as
one, so "evolve run notes.contract.json" and "evolve run -c
notes.contract.json" are equivalent.`,
		Args: cobra.ArbitraryArgs,
		RunE: runCommandE,
	}

	cmd.Flags().StringVarP(&runContractPath, "contract", "c", "", "Contract file to evolve from instead of a prompt")
	cmd.Flags().StringVarP(&runOutputDir, "output", "o", "", "Output directory for the generated application (default: app)")
	cmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Maximum evolution iterations (default: 5)")
	cmd.Flags().IntVar(&runContractRetries, "contract-retries", 0, "Contract generation attempts (default: 3)")
	cmd.Flags().StringVar(&runProviders, "provider", "", "Comma-separated provider order (openai, ollama, copilot, static)")
	cmd.Flags().StringVar(&runStrategy, "strategy", "", "Provider selection strategy: priority, round_robin, least_recently_used, random")
	cmd.Flags().StringArrayVar(&runSkipStages, "skip-stage", nil, "Validation stage to skip (can be repeated)")
	cmd.Flags().StringArrayVar(&runOnlyStages, "only-stage", nil, "Restrict validation to the named stages (can be repeated)")
	cmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Verbose output with task breakdown")
	cmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Print only the final status line")
	cmd.Flags().BoolVar(&runNoColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&runForce, "force", false, "Evolve into a non-empty output directory")
	cmd.Flags().BoolVar(&runNoInstall, "no-install", false, "Skip the dependency install phase")
	cmd.Flags().BoolVar(&runNoSessionLog, "no-session-log", false, "Disable the session event log")
	cmd.Flags().BoolVar(&runTranscript, "transcript", false, "Save a transcript of all provider exchanges")
	cmd.Flags().BoolVar(&runEnableCache, "cache", false, "Enable provider response caching (default: false)")
	cmd.Flags().BoolVar(&runDisableCache, "no-cache", false, "Disable provider response caching (default)")
	cmd.Flags().StringVar(&runCacheDir, "cache-dir", "", "Response cache directory (default: .evolve-cache)")
	cmd.Flags().StringVar(&runReportJUnit, "report-junit", "", "Write a JUnit XML report to this path")
	cmd.Flags().StringVar(&runReportMD, "report-md", "", "Write a Markdown report to this path")
	cmd.Flags().BoolVar(&runSnapshot, "snapshot", false, "Archive the output directory after a successful run")
	cmd.Flags().BoolVar(&runSnapshotUpload, "snapshot-upload", false, "Upload the snapshot archive (requires snapshot account config)")

	// Bound flags fall back to EVOLVE_OUTPUT, EVOLVE_MAX_ITERATIONS and
	// EVOLVE_CONTRACT_RETRIES when unset. Provider selection flags are
	// deliberately unbound; applyProviderEnv handles those variables.
	_ = viper.BindPFlag("output", cmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("max-iterations", cmd.Flags().Lookup("max-iterations"))
	_ = viper.BindPFlag("contract-retries", cmd.Flags().Lookup("contract-retries"))

	return cmd
}

// resolveRunInput decides whether the command line names a prompt or a
// contract file.
func resolveRunInput(args []string) (userPrompt, contractPath string, err error) {
	if runContractPath != "" {
		return "", runContractPath, nil
	}
	joined := strings.TrimSpace(strings.Join(args, " "))
	if joined == "" {
		return "", "", fmt.Errorf("nothing to evolve: pass a prompt or --contract <file>")
	}
	if len(args) == 1 && workspace.LooksLikeContractPath(args[0]) {
		return "", args[0], nil
	}
	return joined, "", nil
}

func runCommandE(cmd *cobra.Command, args []string) error {
	userPrompt, contractPath, err := resolveRunInput(args)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := projectconfig.Load(cwd)
	if err != nil {
		return err
	}

	// CLI flags and EVOLVE_* variables override project config
	maxIterations := viper.GetInt("max-iterations")
	if maxIterations <= 0 {
		maxIterations = cfg.Defaults.MaxIterations
	}
	contractRetries := viper.GetInt("contract-retries")
	if contractRetries <= 0 {
		contractRetries = cfg.Defaults.ContractRetries
	}
	outputDir := viper.GetString("output")
	if outputDir == "" {
		outputDir = cfg.Defaults.Output
	}
	verbose := runVerbose || boolValue(cfg.Defaults.Verbose)
	sessionLog := boolValue(cfg.Defaults.SessionLog) && !runNoSessionLog
	transcripts := runTranscript || boolValue(cfg.Defaults.Transcripts)

	skipStages := cfg.Pipeline.Skip
	if len(runSkipStages) > 0 {
		skipStages = runSkipStages
	}
	onlyStages := cfg.Pipeline.Only
	if len(runOnlyStages) > 0 {
		onlyStages = runOnlyStages
	}

	var c *contract.Contract
	if contractPath != "" {
		c, err = contract.Load(contractPath)
		if err != nil {
			return fmt.Errorf("loading contract: %w", err)
		}
	}

	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		return err
	}
	ws, err := workspace.Resolve(absOut, workspace.WithAllowNonEmpty(runForce))
	if err != nil {
		return err
	}
	sessionID := uuid.NewString()
	if err := ws.Claim(sessionID); err != nil {
		return err
	}
	defer ws.Release() //nolint:errcheck

	var renderer render.Renderer = render.Nop{}
	if !runQuiet {
		var renderOpts []render.ConsoleOption
		if runNoColor {
			renderOpts = append(renderOpts, render.WithColor(false))
		}
		renderer = render.NewConsole(os.Stdout, renderOpts...)
	}

	cacheDir := runCacheDir
	if cacheDir == "" {
		cacheDir = cfg.Cache.Dir
	}
	absCacheDir, err := filepath.Abs(cacheDir)
	if err != nil {
		return err
	}
	useCache := (runEnableCache || boolValue(cfg.Cache.Enabled)) && !runDisableCache

	providers, cached, err := newProviderManager(cfg, runProviders, runStrategy, useCache, absCacheDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer providers.Close(context.WithoutCancel(ctx)) //nolint:errcheck

	var eventLog session.Logger = session.NopLogger{}
	if sessionLog {
		jl, err := session.NewJSONLogger(session.DefaultLogPath(ws.StateDir), session.WithSession(sessionID))
		if err != nil {
			return fmt.Errorf("opening session log: %w", err)
		}
		defer jl.Close() //nolint:errcheck
		eventLog = jl
	}

	var script *transcript.Transcript
	if transcripts {
		script = transcript.New(sessionID, userPrompt)
		defer func() {
			if script.Len() == 0 {
				return
			}
			path, err := script.Write(ws.StateDir)
			if err != nil {
				slog.Warn("writing transcript", "error", err)
				return
			}
			if !runQuiet {
				fmt.Printf("Transcript saved to: %s\n", path)
			}
		}()
	}

	prompts := prompt.NewBuilder()
	contractGen := contract.NewGenerator(
		&recordingGenerator{inner: providers, phase: "contract", log: eventLog, script: script},
		prompts,
	)
	codeGen := codegen.NewGenerator(
		&recordingGenerator{inner: providers, phase: "code", log: eventLog, script: script},
		prompts,
	)

	pipe, err := pipeline.New(pipeline.Options{
		Skip:     skipStages,
		Only:     onlyStages,
		Settings: cfg.Pipeline.Settings,
	})
	if err != nil {
		return err
	}

	evoOpts := []evolution.Option{
		evolution.WithMaxIterations(maxIterations),
		evolution.WithContractRetries(contractRetries),
		evolution.WithRenderer(renderer),
		evolution.WithSessionLogger(eventLog),
		evolution.WithInstallTimeout(time.Duration(cfg.Defaults.InstallTimeout) * time.Second),
		evolution.WithHooks(cfg.Hooks),
	}
	if runNoInstall {
		evoOpts = append(evoOpts, evolution.WithInstallDisabled())
	}
	mgr := evolution.NewManager(contractGen, codeGen, pipe, evoOpts...)

	if !runQuiet {
		fmt.Printf("Evolving: %s\n", describeRunInput(userPrompt, contractPath))
		fmt.Printf("Output: %s\n", ws.Root)
		fmt.Printf("Session: %s\n", sessionID)
		fmt.Println()
	}

	res, evoErr := mgr.Evolve(ctx, evolution.Request{
		Prompt:         userPrompt,
		Contract:       c,
		ContractSource: contractPath,
		OutputDir:      ws.Root,
	})
	if res == nil {
		// Setup failures (bad request, claimed workspace) produce no
		// result at all and are configuration errors.
		return evoErr
	}

	if runQuiet {
		fmt.Println(report.StatusLine(res))
	} else {
		printRunSummary(res)
		if verbose {
			printTaskTable(res.Tasks)
		}
	}

	if verbose && len(cached) > 0 {
		var hits, misses int
		for _, cp := range cached {
			h, m := cp.HitRate()
			hits += h
			misses += m
		}
		fmt.Printf("Cache: %d hit(s), %d miss(es)\n\n", hits, misses)
	}

	if runReportJUnit != "" {
		if err := report.WriteJUnitXML(res, runReportJUnit); err != nil {
			return fmt.Errorf("writing JUnit report: %w", err)
		}
		if !runQuiet {
			fmt.Printf("JUnit report saved to: %s\n", runReportJUnit)
		}
	}
	if runReportMD != "" {
		if err := report.WriteMarkdown(res, runReportMD); err != nil {
			return fmt.Errorf("writing Markdown report: %w", err)
		}
		if !runQuiet {
			fmt.Printf("Markdown report saved to: %s\n", runReportMD)
		}
	}

	if runSnapshot && res.Success {
		if err := writeSnapshot(ctx, cfg, res, ws.Root); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}

	return evoErr
}

func describeRunInput(userPrompt, contractPath string) string {
	if contractPath != "" {
		return "contract " + contractPath
	}
	return fmt.Sprintf("%q", truncate(userPrompt, 60))
}

func printRunSummary(res *evolution.Result) {
	fmt.Println()
	fmt.Println("═" + strings.Repeat("═", 54))
	fmt.Println(" EVOLUTION RESULT")
	fmt.Println("═" + strings.Repeat("═", 54))
	fmt.Println()

	status := "SUCCESS"
	if !res.Success {
		status = "FAILED"
	}
	fmt.Printf("Status:          %s\n", status)
	fmt.Printf("Iterations:      %d\n", res.Iterations)
	fmt.Printf("Files Generated: %d\n", res.FilesGenerated)
	if res.TestsPassed > 0 || res.TestsFailed > 0 {
		fmt.Printf("Tests:           %d passed, %d failed\n", res.TestsPassed, res.TestsFailed)
	}
	if res.ServicePort > 0 {
		fmt.Printf("Service Port:    %d\n", res.ServicePort)
	}
	duration := time.Duration(res.TimeMs) * time.Millisecond
	fmt.Printf("Duration:        %v\n", duration)
	fmt.Println()

	if len(res.Errors) > 0 {
		fmt.Println("Errors:")
		for _, line := range res.Errors {
			fmt.Printf("  - %s\n", truncate(line, 200))
		}
		fmt.Println()
	}
}

// printTaskTable renders the task ledger for verbose runs.
func printTaskTable(snap task.Snapshot) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Task", "Status", "Detail"})
	for _, t := range snap.Tasks {
		tw.AppendRow(table.Row{t.Name, string(t.Status), truncate(t.Error, 60)})
	}
	tw.Render()
	fmt.Printf("Tasks: %d/%d done, %d failed\n\n", snap.Done, snap.Total, snap.Failed)
}

func writeSnapshot(ctx context.Context, cfg *projectconfig.ProjectConfig, res *evolution.Result, srcDir string) error {
	if err := os.MkdirAll(cfg.Snapshot.Dir, 0o755); err != nil {
		return err
	}
	app := "app"
	if res.Contract != nil && res.Contract.App.Name != "" {
		app = res.Contract.App.Name
	}
	archivePath := filepath.Join(cfg.Snapshot.Dir, snapshot.DefaultName(app, time.Now()))
	info, err := snapshot.Create(srcDir, archivePath)
	if err != nil {
		return err
	}
	fmt.Printf("Snapshot saved to: %s (%d files, %s)\n", archivePath, info.Files, formatBytes(info.Size))

	if !runSnapshotUpload {
		return nil
	}
	if cfg.Snapshot.Account == "" || cfg.Snapshot.Container == "" {
		return fmt.Errorf("uploading requires snapshot.account and snapshot.container in .evolve.yaml")
	}
	up, err := snapshot.NewAzureUploader(cfg.Snapshot.Account, cfg.Snapshot.Container)
	if err != nil {
		return err
	}
	if err := snapshot.Push(ctx, archivePath, up); err != nil {
		return err
	}
	fmt.Printf("Snapshot uploaded to container %q\n", cfg.Snapshot.Container)
	return nil
}

// truncate shortens s to maxLen characters, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func boolValue(p *bool) bool {
	return p != nil && *p
}
