// Package evolution drives the core loop of a scaffolding session:
// generate a contract from the user's prompt, generate application code
// from the contract, install dependencies, validate the result, and
// repair failing code with model feedback until validation passes or
// the iteration budget runs out.
//
// The manager owns termination and retry policy. Everything below it
// (generators, pipeline, shell) reports outcomes; only the manager
// decides whether a session continues.
package evolution

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/evolvehq/evolve/internal/codegen"
	"github.com/evolvehq/evolve/internal/contract"
	"github.com/evolvehq/evolve/internal/hooks"
	"github.com/evolvehq/evolve/internal/pipeline"
	"github.com/evolvehq/evolve/internal/provider"
	"github.com/evolvehq/evolve/internal/render"
	"github.com/evolvehq/evolve/internal/session"
	"github.com/evolvehq/evolve/internal/shell"
	"github.com/evolvehq/evolve/internal/task"
)

var tracer = otel.Tracer("evolve.evolution")

const (
	// DefaultMaxIterations bounds LLM spend per session, not
	// correctness: a higher bound only buys more repair rounds.
	DefaultMaxIterations = 5

	// DefaultContractRetries is the total number of contract generation
	// attempts before the session fails.
	DefaultContractRetries = 3

	// DefaultInstallTimeout bounds the dependency install command.
	DefaultInstallTimeout = 10 * time.Minute
)

// DefaultInstallCommand installs dependencies for generated Node
// projects.
var DefaultInstallCommand = []string{"npm", "install", "--no-audit", "--no-fund"}

// ContractGenerator produces and repairs contracts.
// *contract.Generator satisfies it.
type ContractGenerator interface {
	Generate(ctx context.Context, userPrompt string) (*contract.Contract, error)
	Fix(ctx context.Context, userPrompt string, rejected *contract.ValidationError) (*contract.Contract, error)
}

// CodeGenerator produces and repairs application code.
// *codegen.Generator satisfies it.
type CodeGenerator interface {
	Generate(ctx context.Context, c *contract.Contract) (*codegen.Result, error)
	Fix(ctx context.Context, c *contract.Contract, files []codegen.GeneratedFile, validationErrors []string) (*codegen.Result, error)
}

// Validator runs the validation pipeline against a generated file set.
// *pipeline.Pipeline satisfies it.
type Validator interface {
	Run(ctx context.Context, vc *pipeline.Context) *pipeline.Result
}

// Manager drives evolution sessions. It is safe to share across
// sessions; all per-session state lives in the run, and concurrent
// sessions must target distinct output directories.
type Manager struct {
	contracts ContractGenerator
	code      CodeGenerator
	validator Validator
	runner    shell.Runner
	renderer  render.Renderer
	log       session.Logger

	maxIterations   int
	contractRetries int
	installCommand  []string
	installTimeout  time.Duration
	installDisabled bool
	hookCfg         hooks.Config
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxIterations sets the code generation attempt budget.
func WithMaxIterations(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxIterations = n
		}
	}
}

// WithContractRetries sets the total contract generation attempts.
func WithContractRetries(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.contractRetries = n
		}
	}
}

// WithRenderer sets the progress sink. Defaults to a no-op.
func WithRenderer(r render.Renderer) Option {
	return func(m *Manager) {
		if r != nil {
			m.renderer = r
		}
	}
}

// WithSessionLogger sets the session event log. Defaults to a no-op.
func WithSessionLogger(l session.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithRunner sets the shell runner used for dependency installs,
// lifecycle hooks, and the validation stages that shell out.
func WithRunner(r shell.Runner) Option {
	return func(m *Manager) {
		if r != nil {
			m.runner = r
		}
	}
}

// WithInstallCommand overrides the dependency install invocation.
func WithInstallCommand(cmd []string) Option {
	return func(m *Manager) {
		if len(cmd) > 0 {
			m.installCommand = cmd
		}
	}
}

// WithInstallTimeout bounds the dependency install command.
func WithInstallTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.installTimeout = d
		}
	}
}

// WithInstallDisabled skips the dependency install phase entirely.
// Validation stages that need installed modules will report their own
// failures.
func WithInstallDisabled() Option {
	return func(m *Manager) { m.installDisabled = true }
}

// WithHooks sets the lifecycle hook commands.
func WithHooks(cfg hooks.Config) Option {
	return func(m *Manager) { m.hookCfg = cfg }
}

// NewManager wires a manager from its collaborators.
func NewManager(contracts ContractGenerator, code CodeGenerator, validator Validator, opts ...Option) *Manager {
	m := &Manager{
		contracts:       contracts,
		code:            code,
		validator:       validator,
		runner:          &shell.ExecRunner{},
		renderer:        render.Nop{},
		log:             session.NopLogger{},
		maxIterations:   DefaultMaxIterations,
		contractRetries: DefaultContractRetries,
		installCommand:  DefaultInstallCommand,
		installTimeout:  DefaultInstallTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// newHookRunner builds the hook runner for one session. Hooks share
// the session's shell runner so tests can observe them; relative hook
// dirs resolve against the session's output directory.
func (m *Manager) newHookRunner(outputDir string) *hooks.Runner {
	return &hooks.Runner{Shell: m.runner, BaseDir: outputDir}
}

// Request describes one evolution session.
type Request struct {
	// Prompt is the free-text application description. Required unless
	// Contract is supplied.
	Prompt string

	// Contract, when non-nil, skips contract generation entirely.
	Contract *contract.Contract

	// ContractSource names where a supplied contract came from, for the
	// session log. Optional.
	ContractSource string

	// OutputDir receives the generated files. It is owned exclusively
	// by this session for its duration.
	OutputDir string
}

func (req *Request) validate() error {
	if req.OutputDir == "" {
		return fmt.Errorf("evolution: output directory is required")
	}
	if req.Prompt == "" && req.Contract == nil {
		return fmt.Errorf("evolution: a prompt or a contract is required")
	}
	return nil
}

// Result is the outcome of one evolution session.
type Result struct {
	Success        bool     `json:"success"`
	Iterations     int      `json:"iterations"`
	FilesGenerated int      `json:"files_generated"`
	TestsPassed    int      `json:"tests_passed"`
	TestsFailed    int      `json:"tests_failed"`
	TimeMs         int64    `json:"time_ms"`
	Errors         []string `json:"errors,omitempty"`
	ServicePort    int      `json:"service_port,omitempty"`

	// Contract is the contract the session ran under; nil when contract
	// generation itself failed.
	Contract *contract.Contract `json:"-"`

	// Pipeline is the last validation result; nil when validation never
	// ran.
	Pipeline *pipeline.Result `json:"-"`

	// Tasks is the final task ledger.
	Tasks task.Snapshot `json:"-"`
}

// FailedError reports a session that ended without a passing
// application. The result it carries is still meaningful: generated
// files stay on disk, and Errors holds the last failure's detail.
type FailedError struct {
	Result *Result
	Cause  error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("evolution failed after %d iteration(s): %v", e.Result.Iterations, e.Cause)
}

func (e *FailedError) Unwrap() error { return e.Cause }

// retryTimeout invokes call, repeating it exactly once if the failure
// was a provider timeout. Repair rounds cannot help a timeout, but the
// same request often succeeds on a second attempt.
func retryTimeout[T any](ctx context.Context, r render.Renderer, call func() (T, error)) (T, error) {
	out, err := call()
	if err == nil || !provider.IsTimeout(err) || ctx.Err() != nil {
		return out, err
	}
	r.Warning("provider timed out, retrying once")
	return call()
}
