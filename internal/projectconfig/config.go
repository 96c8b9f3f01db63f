// Package projectconfig provides the ProjectConfig struct and loader for
// .evolve.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/evolvehq/evolve/internal/hooks"
)

// Default values for project configuration. These are the single source of
// truth; New() references them and no other code should duplicate them.
const (
	DefaultOutputDir = "app"

	DefaultProviderOrder  = "openai,ollama"
	DefaultStrategy       = "priority"
	DefaultRateLimit      = 60
	DefaultRateWindowSecs = 60
	DefaultTimeoutSecs    = 120

	DefaultMaxIterations      = 5
	DefaultContractRetries    = 3
	DefaultInstallTimeoutSecs = 600

	DefaultCacheDir = ".evolve-cache"

	DefaultSnapshotDir = "snapshots"
)

// ProvidersConfig selects and tunes LLM providers. Order doubles as
// priority; entries must be provider names the manager knows.
type ProvidersConfig struct {
	Order      []string `yaml:"order,omitempty"`
	Strategy   string   `yaml:"strategy,omitempty"`
	RateLimit  int      `yaml:"rate_limit,omitempty"`
	RateWindow int      `yaml:"rate_window,omitempty"`
	Timeout    int      `yaml:"timeout,omitempty"`
}

// DefaultsConfig holds default evolution parameters.
type DefaultsConfig struct {
	MaxIterations   int    `yaml:"max_iterations,omitempty"`
	ContractRetries int    `yaml:"contract_retries,omitempty"`
	Output          string `yaml:"output,omitempty"`
	InstallTimeout  int    `yaml:"install_timeout,omitempty"`
	Verbose         *bool  `yaml:"verbose,omitempty"`
	SessionLog      *bool  `yaml:"session_log,omitempty"`
	Transcripts     *bool  `yaml:"transcripts,omitempty"`
}

// PipelineConfig narrows or tunes the validation pipeline.
type PipelineConfig struct {
	Skip     []string                  `yaml:"skip,omitempty"`
	Only     []string                  `yaml:"only,omitempty"`
	Settings map[string]map[string]any `yaml:"settings,omitempty"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// SnapshotConfig holds snapshot archive settings. Account and Container
// select an Azure Blob Storage destination; both empty keeps snapshots
// local only.
type SnapshotConfig struct {
	Dir       string `yaml:"dir,omitempty"`
	Account   string `yaml:"account,omitempty"`
	Container string `yaml:"container,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .evolve.yaml.
type ProjectConfig struct {
	Providers ProvidersConfig `yaml:"providers,omitempty"`
	Defaults  DefaultsConfig  `yaml:"defaults,omitempty"`
	Pipeline  PipelineConfig  `yaml:"pipeline,omitempty"`
	Cache     CacheConfig     `yaml:"cache,omitempty"`
	Snapshot  SnapshotConfig  `yaml:"snapshot,omitempty"`
	Hooks     hooks.Config    `yaml:"hooks,omitempty"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Providers: ProvidersConfig{
			Order:      strings.Split(DefaultProviderOrder, ","),
			Strategy:   DefaultStrategy,
			RateLimit:  DefaultRateLimit,
			RateWindow: DefaultRateWindowSecs,
			Timeout:    DefaultTimeoutSecs,
		},
		Defaults: DefaultsConfig{
			MaxIterations:   DefaultMaxIterations,
			ContractRetries: DefaultContractRetries,
			Output:          DefaultOutputDir,
			InstallTimeout:  DefaultInstallTimeoutSecs,
			Verbose:         boolPtr(false),
			SessionLog:      boolPtr(true),
			Transcripts:     boolPtr(false),
		},
		Cache: CacheConfig{
			Enabled: boolPtr(false),
			Dir:     DefaultCacheDir,
		},
		Snapshot: SnapshotConfig{
			Dir: DefaultSnapshotDir,
		},
	}
}

// Load finds .evolve.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil // no file found → return defaults
		}
		return nil, fmt.Errorf("loading .evolve.yaml: %w", err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing .evolve.yaml: %w", err)
	}

	// Merge file values onto defaults.
	mergeConfig(cfg, &fileCfg)
	return cfg, nil
}

// findConfigFile walks up from dir looking for .evolve.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found. Propagates real I/O
// errors (e.g. permission denied) instead of silently swallowing them.
func findConfigFile(dir string) ([]byte, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, ".evolve.yaml")
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Providers
	if len(src.Providers.Order) > 0 {
		dst.Providers.Order = src.Providers.Order
	}
	if src.Providers.Strategy != "" {
		dst.Providers.Strategy = src.Providers.Strategy
	}
	if src.Providers.RateLimit != 0 {
		dst.Providers.RateLimit = src.Providers.RateLimit
	}
	if src.Providers.RateWindow != 0 {
		dst.Providers.RateWindow = src.Providers.RateWindow
	}
	if src.Providers.Timeout != 0 {
		dst.Providers.Timeout = src.Providers.Timeout
	}

	// Defaults
	if src.Defaults.MaxIterations != 0 {
		dst.Defaults.MaxIterations = src.Defaults.MaxIterations
	}
	if src.Defaults.ContractRetries != 0 {
		dst.Defaults.ContractRetries = src.Defaults.ContractRetries
	}
	if src.Defaults.Output != "" {
		dst.Defaults.Output = src.Defaults.Output
	}
	if src.Defaults.InstallTimeout != 0 {
		dst.Defaults.InstallTimeout = src.Defaults.InstallTimeout
	}
	if src.Defaults.Verbose != nil {
		dst.Defaults.Verbose = src.Defaults.Verbose
	}
	if src.Defaults.SessionLog != nil {
		dst.Defaults.SessionLog = src.Defaults.SessionLog
	}
	if src.Defaults.Transcripts != nil {
		dst.Defaults.Transcripts = src.Defaults.Transcripts
	}

	// Pipeline
	if len(src.Pipeline.Skip) > 0 {
		dst.Pipeline.Skip = src.Pipeline.Skip
	}
	if len(src.Pipeline.Only) > 0 {
		dst.Pipeline.Only = src.Pipeline.Only
	}
	if len(src.Pipeline.Settings) > 0 {
		dst.Pipeline.Settings = src.Pipeline.Settings
	}

	// Cache
	if src.Cache.Enabled != nil {
		dst.Cache.Enabled = src.Cache.Enabled
	}
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}

	// Snapshot
	if src.Snapshot.Dir != "" {
		dst.Snapshot.Dir = src.Snapshot.Dir
	}
	if src.Snapshot.Account != "" {
		dst.Snapshot.Account = src.Snapshot.Account
	}
	if src.Snapshot.Container != "" {
		dst.Snapshot.Container = src.Snapshot.Container
	}

	// Hooks: each phase list replaces wholesale; merging individual
	// hooks across files would make execution order unpredictable.
	if len(src.Hooks.BeforeSession) > 0 {
		dst.Hooks.BeforeSession = src.Hooks.BeforeSession
	}
	if len(src.Hooks.AfterSession) > 0 {
		dst.Hooks.AfterSession = src.Hooks.AfterSession
	}
	if len(src.Hooks.BeforeIteration) > 0 {
		dst.Hooks.BeforeIteration = src.Hooks.BeforeIteration
	}
	if len(src.Hooks.AfterIteration) > 0 {
		dst.Hooks.AfterIteration = src.Hooks.AfterIteration
	}
}

func boolPtr(b bool) *bool {
	return &b
}
