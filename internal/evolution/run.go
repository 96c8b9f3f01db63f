package evolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/evolvehq/evolve/internal/codegen"
	"github.com/evolvehq/evolve/internal/contract"
	"github.com/evolvehq/evolve/internal/hooks"
	"github.com/evolvehq/evolve/internal/pipeline"
	"github.com/evolvehq/evolve/internal/provider"
	"github.com/evolvehq/evolve/internal/session"
	"github.com/evolvehq/evolve/internal/shell"
	"github.com/evolvehq/evolve/internal/task"
)

// run carries one session's mutable state through its phases.
type run struct {
	req   Request
	queue *task.Queue
	hooks *hooks.Runner
	start time.Time

	contract  *contract.Contract
	files     []codegen.GeneratedFile
	lastPipe  *pipeline.Result
	iteration int

	// feedback is what the next repair round feeds the code generator.
	// failLines is what the session reports if the current failure turns
	// out to be the last one. They differ for timeouts, which burn an
	// iteration without producing anything a repair prompt could use.
	feedback  []string
	failLines []string

	// errors is set once, by the terminal failure path.
	errors []string
}

// Evolve runs one session to a terminal state. The returned Result is
// always non-nil once the request passes validation; on a failed
// session the error is a [*FailedError] carrying the same Result.
// Generated files are never rolled back.
func (m *Manager) Evolve(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Manager.Evolve")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	hr := m.newHookRunner(req.OutputDir)
	if err := hr.Execute(ctx, "before_session", m.hookCfg.BeforeSession,
		"EVOLVE_OUTPUT_DIR="+req.OutputDir); err != nil {
		return nil, err
	}

	r := &run{req: req, queue: task.NewQueue(), hooks: hr, start: time.Now()}

	m.renderer.Heading(1, "Evolution session")
	if req.Prompt != "" {
		m.renderer.Info(req.Prompt)
	}
	m.logEvent(session.EventSessionStart,
		session.SessionStartData(req.Prompt, req.ContractSource, req.OutputDir, m.maxIterations))

	res, err := m.runSession(ctx, r)

	m.logEvent(session.EventSessionEnd,
		session.SessionEndData(res.Success, res.Iterations, res.FilesGenerated, res.TimeMs))

	// After-session hooks run even when the session was canceled, so
	// cleanup commands still get their chance.
	env := []string{
		"EVOLVE_OUTPUT_DIR=" + req.OutputDir,
		"EVOLVE_SUCCESS=" + strconv.FormatBool(res.Success),
	}
	if hookErr := hr.Execute(context.WithoutCancel(ctx), "after_session",
		m.hookCfg.AfterSession, env...); hookErr != nil {
		slog.Warn("after_session hook failed", "error", hookErr)
	}

	span.SetAttributes(
		attribute.Bool("success", res.Success),
		attribute.Int("iterations", res.Iterations),
	)
	return res, err
}

func (m *Manager) runSession(ctx context.Context, r *run) (*Result, error) {
	// Init: register the first round's tasks up front so the plan is
	// visible before any LLM call.
	r.addTask("contract", "Generate contract")
	r.addIterationTasks(1)

	if err := m.contractPhase(ctx, r); err != nil {
		return m.fail(r, err)
	}

	for i := 1; i <= m.maxIterations; i++ {
		// Cancellation is honored between iterations, never mid-call.
		if err := ctx.Err(); err != nil {
			return m.fail(r, fmt.Errorf("session canceled: %w", err))
		}
		r.iteration = i
		if i > 1 {
			r.addIterationTasks(i)
		}
		m.renderer.Heading(2, fmt.Sprintf("Iteration %d of %d", i, m.maxIterations))

		if err := r.hooks.Execute(ctx, "before_iteration", m.hookCfg.BeforeIteration, r.hookEnv()...); err != nil {
			return m.fail(r, err)
		}

		proceed, err := m.codePhase(ctx, r)
		if err != nil {
			return m.fail(r, err)
		}

		passed := false
		if proceed {
			m.depsPhase(ctx, r)
			passed = m.validatePhase(ctx, r)
		} else {
			m.taskSkip(r, fmt.Sprintf("deps-%d", i), "code generation failed")
			m.taskSkip(r, fmt.Sprintf("validate-%d", i), "code generation failed")
		}

		status := StateRunning
		if passed {
			status = StateSuccess
		}
		m.writeState(r, status)

		hookEnv := append(r.hookEnv(), "EVOLVE_PASSED="+strconv.FormatBool(passed))
		if hookErr := r.hooks.Execute(ctx, "after_iteration", m.hookCfg.AfterIteration, hookEnv...); hookErr != nil {
			return m.fail(r, hookErr)
		}

		if passed {
			return m.succeed(r), nil
		}
		if i < m.maxIterations {
			m.renderer.Warning(fmt.Sprintf("iteration %d failed, repairing", i))
		}
	}
	return m.fail(r, fmt.Errorf("no passing build after %d iterations", m.maxIterations))
}

// contractPhase resolves the session's contract and writes it to
// <output_dir>/contract.json. Any error it returns is terminal.
func (m *Manager) contractPhase(ctx context.Context, r *run) error {
	start := time.Now()
	m.startTask(r, "contract")
	m.logEvent(session.EventPhaseStart, session.PhaseStartData("contract", 0))
	status := "failed"
	defer func() {
		m.logEvent(session.EventPhaseComplete,
			session.PhaseCompleteData("contract", 0, status, time.Since(start).Milliseconds()))
	}()

	c, err := m.resolveContract(ctx, r)
	if err != nil {
		m.taskFail(r, "contract", err.Error())
		return err
	}
	r.contract = c

	if err := contract.Save(c, filepath.Join(r.req.OutputDir, "contract.json")); err != nil {
		m.taskFail(r, "contract", err.Error())
		return err
	}

	status = "done"
	m.taskDone(r, "contract")
	m.renderer.Info(fmt.Sprintf("contract ready: %s (%d entities, %d resources)",
		c.App.Name, len(c.Entities), len(c.API.Resources)))
	return nil
}

func (m *Manager) resolveContract(ctx context.Context, r *run) (*contract.Contract, error) {
	if c := r.req.Contract; c != nil {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("supplied contract: %w", err)
		}
		c.Normalize()
		m.renderer.Info("using supplied contract")
		return c, nil
	}

	var rejected *contract.ValidationError
	for attempt := 1; attempt <= m.contractRetries; attempt++ {
		if attempt > 1 {
			m.renderer.Warning(fmt.Sprintf("contract rejected, correcting (attempt %d of %d)",
				attempt, m.contractRetries))
		}
		c, err := retryTimeout(ctx, m.renderer, func() (*contract.Contract, error) {
			if rejected != nil {
				return m.contracts.Fix(ctx, r.req.Prompt, rejected)
			}
			return m.contracts.Generate(ctx, r.req.Prompt)
		})
		if err == nil {
			return c, nil
		}
		if !errors.As(err, &rejected) {
			// Provider failure or cancellation; correction cannot help.
			return nil, err
		}
		for _, issue := range rejected.Issues {
			slog.Debug("contract rejected", "attempt", attempt, "issue", issue)
		}
	}
	r.failLines = rejected.Issues
	return nil, fmt.Errorf("contract invalid after %d attempts: %w", m.contractRetries, rejected)
}

// codePhase generates or repairs the application code and writes it to
// disk. It returns false when the iteration is burned without usable
// files, which feeds the repair loop; a non-nil error ends the session.
func (m *Manager) codePhase(ctx context.Context, r *run) (bool, error) {
	id := fmt.Sprintf("code-%d", r.iteration)
	start := time.Now()
	m.startTask(r, id)
	m.logEvent(session.EventPhaseStart, session.PhaseStartData("code", r.iteration))
	status := "failed"
	defer func() {
		m.logEvent(session.EventPhaseComplete,
			session.PhaseCompleteData("code", r.iteration, status, time.Since(start).Milliseconds()))
	}()

	res, err := retryTimeout(ctx, m.renderer, func() (*codegen.Result, error) {
		if len(r.feedback) > 0 {
			return m.code.Fix(ctx, r.contract, r.files, r.feedback)
		}
		return m.code.Generate(ctx, r.contract)
	})
	switch {
	case err != nil && provider.IsTimeout(err) && ctx.Err() == nil:
		// The iteration is spent, but the next one repeats the same
		// request rather than turning the timeout into repair feedback.
		m.taskFail(r, id, "provider timed out")
		r.failLines = []string{fmt.Sprintf("code generation timed out on iteration %d: %v", r.iteration, err)}
		return false, nil
	case err != nil:
		m.taskFail(r, id, err.Error())
		return false, err
	}

	if !res.Success || len(res.Files) == 0 {
		lines := res.Errors
		if len(lines) == 0 {
			lines = []string{"model response contained no usable code blocks"}
		}
		m.taskFail(r, id, lines[0])
		r.feedback = lines
		r.failLines = lines
		return false, nil
	}

	if err := codegen.WriteFiles(res.Files, r.req.OutputDir); err != nil {
		m.taskFail(r, id, err.Error())
		return false, err
	}
	r.files = res.Files

	for _, warn := range res.Errors {
		m.renderer.Warning(warn)
	}
	m.renderer.Info(fmt.Sprintf("wrote %d file(s) to %s", len(res.Files), r.req.OutputDir))

	status = "done"
	m.taskDone(r, id)
	return true, nil
}

// depsPhase installs dependencies when the generated project declares a
// manifest. A failed install does not end the iteration: validation
// still runs, and its test stage reports the consequences with better
// context than an npm exit code.
func (m *Manager) depsPhase(ctx context.Context, r *run) {
	id := fmt.Sprintf("deps-%d", r.iteration)
	if m.installDisabled {
		m.taskSkip(r, id, "dependency install disabled")
		return
	}
	manifest, ok := codegen.ManifestPath(r.files)
	if !ok {
		m.taskSkip(r, id, "no dependency manifest")
		return
	}

	start := time.Now()
	m.startTask(r, id)
	m.logEvent(session.EventPhaseStart, session.PhaseStartData("dependencies", r.iteration))
	status := "failed"
	defer func() {
		m.logEvent(session.EventPhaseComplete,
			session.PhaseCompleteData("dependencies", r.iteration, status, time.Since(start).Milliseconds()))
	}()

	res, err := m.runner.Run(ctx, shell.Spec{
		Command: m.installCommand[0],
		Args:    m.installCommand[1:],
		Dir:     filepath.Join(r.req.OutputDir, filepath.FromSlash(path.Dir(manifest))),
		Timeout: m.installTimeout,
	})
	switch {
	case errors.Is(err, exec.ErrNotFound):
		status = "skipped"
		m.taskSkip(r, id, m.installCommand[0]+" is not installed")
	case shell.IsTimeout(err):
		m.taskFail(r, id, fmt.Sprintf("install timed out after %s", m.installTimeout))
	case err != nil:
		m.taskFail(r, id, err.Error())
	case !res.Succeeded():
		m.taskFail(r, id, fmt.Sprintf("install exited with code %d", res.ExitCode))
		slog.Debug("install output", "dir", manifest, "output", res.Output)
	default:
		status = "done"
		m.taskDone(r, id)
	}
}

// validatePhase runs the pipeline and reports whether it passed. On
// failure it records the error lines as the next round's feedback.
func (m *Manager) validatePhase(ctx context.Context, r *run) bool {
	id := fmt.Sprintf("validate-%d", r.iteration)
	start := time.Now()
	m.startTask(r, id)
	m.logEvent(session.EventPhaseStart, session.PhaseStartData("validate", r.iteration))

	pres := m.validator.Run(ctx, &pipeline.Context{
		Contract:  r.contract,
		Files:     r.files,
		OutputDir: r.req.OutputDir,
		Runner:    m.runner,
	})
	r.lastPipe = pres

	for _, sr := range pres.Stages {
		m.logEvent(session.EventStageResult,
			session.StageResultData(sr.Stage, sr.Passed, len(sr.Errors), len(sr.Warnings), sr.TimeMs))
		switch {
		case !sr.Passed:
			m.renderer.Error(fmt.Sprintf("%s: %d error(s)", sr.Stage, len(sr.Errors)))
		case len(sr.Warnings) > 0:
			m.renderer.Warning(fmt.Sprintf("%s passed with %d warning(s)", sr.Stage, len(sr.Warnings)))
		default:
			m.renderer.Success(sr.Stage)
		}
	}

	status := "done"
	if !pres.Passed {
		status = "failed"
	}
	m.logEvent(session.EventPhaseComplete,
		session.PhaseCompleteData("validate", r.iteration, status, time.Since(start).Milliseconds()))

	if pres.Passed {
		m.taskDone(r, id)
		return true
	}

	lines := pres.ErrorLines()
	r.feedback = lines
	r.failLines = lines
	m.taskFail(r, id, fmt.Sprintf("%d validation error(s)", len(lines)))
	return false
}

func (m *Manager) succeed(r *run) *Result {
	res := r.result(true)
	m.renderer.Heading(2, "Success")
	m.renderer.Success(fmt.Sprintf("application validated after %d iteration(s), %d file(s) in %s",
		res.Iterations, res.FilesGenerated, r.req.OutputDir))
	return res
}

// fail finalizes the queue and builds the terminal failure result. The
// returned error is a *FailedError wrapping cause, so callers can still
// classify the underlying failure with errors.Is and errors.As.
func (m *Manager) fail(r *run, cause error) (*Result, error) {
	r.finalize("session ended before completion")
	r.errors = append([]string{cause.Error()}, r.failLines...)

	res := r.result(false)
	m.renderer.Error(cause.Error())
	m.logEvent(session.EventError, session.ErrorData(cause.Error(), map[string]any{
		"iteration": r.iteration,
	}))
	m.writeState(r, StateFailed)
	return res, &FailedError{Result: res, Cause: cause}
}

func (r *run) result(success bool) *Result {
	res := &Result{
		Success:        success,
		Iterations:     r.iteration,
		FilesGenerated: len(r.files),
		TimeMs:         time.Since(r.start).Milliseconds(),
		Errors:         r.errors,
		Contract:       r.contract,
		Pipeline:       r.lastPipe,
		Tasks:          r.queue.Snapshot(),
	}
	if r.lastPipe != nil {
		if st, ok := r.lastPipe.TestStats(); ok {
			res.TestsPassed, res.TestsFailed = st.Passed, st.Failed
		}
	}
	if r.contract != nil {
		res.ServicePort = r.contract.TechStack.Port
	}
	return res
}

// finalize drives every non-terminal task to a terminal state so an
// interrupted session never leaves the ledger stuck on "running".
func (r *run) finalize(reason string) {
	for _, t := range r.queue.Snapshot().Tasks {
		switch t.Status {
		case task.StatusRunning:
			_ = r.queue.Fail(t.ID, reason)
		case task.StatusPending:
			_ = r.queue.Skip(t.ID)
		}
	}
}

func (r *run) addTask(id, name string) {
	if _, err := r.queue.Add(name, id); err != nil {
		slog.Error("registering task", "id", id, "error", err)
	}
}

func (r *run) addIterationTasks(i int) {
	r.addTask(fmt.Sprintf("code-%d", i), iterName("Generate code", i))
	r.addTask(fmt.Sprintf("deps-%d", i), iterName("Install dependencies", i))
	r.addTask(fmt.Sprintf("validate-%d", i), iterName("Validate", i))
}

func iterName(base string, i int) string {
	if i == 1 {
		return base
	}
	return fmt.Sprintf("%s (iteration %d)", base, i)
}

func (r *run) hookEnv() []string {
	return []string{
		"EVOLVE_OUTPUT_DIR=" + r.req.OutputDir,
		"EVOLVE_ITERATION=" + strconv.Itoa(r.iteration),
	}
}

func (m *Manager) startTask(r *run, id string) {
	if err := r.queue.Start(id); err != nil {
		slog.Warn("starting task", "id", id, "error", err)
	}
	if t, ok := r.queue.Get(id); ok {
		m.renderer.Info(t.Name)
	}
}

func (m *Manager) taskDone(r *run, id string) {
	if err := r.queue.Done(id); err != nil {
		slog.Warn("completing task", "id", id, "error", err)
	}
	if t, ok := r.queue.Get(id); ok {
		m.renderer.Success(t.Name)
	}
}

func (m *Manager) taskFail(r *run, id, message string) {
	if err := r.queue.Fail(id, message); err != nil {
		slog.Warn("failing task", "id", id, "error", err)
	}
	if t, ok := r.queue.Get(id); ok {
		m.renderer.Error(t.Name + ": " + message)
	}
}

func (m *Manager) taskSkip(r *run, id, reason string) {
	if err := r.queue.Skip(id); err != nil {
		slog.Warn("skipping task", "id", id, "error", err)
	}
	if t, ok := r.queue.Get(id); ok {
		m.renderer.Warning(t.Name + " skipped: " + reason)
	}
}

func (m *Manager) logEvent(t session.EventType, data map[string]any) {
	if err := m.log.Log(session.NewEvent(t, data)); err != nil {
		slog.Warn("writing session event", "type", string(t), "error", err)
	}
}
