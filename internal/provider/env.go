package provider

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default values for provider configuration. These are the single source
// of truth; FromEnv references them and no other code should duplicate
// them.
const (
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultOllamaModel   = "llama3.1"
	DefaultOllamaBaseURL = "http://localhost:11434"
	// DefaultCopilotModel is blank so the Copilot CLI picks its own
	// fallback model.
	DefaultCopilotModel = ""

	DefaultMaxRequests    = 60
	DefaultWindowSeconds  = 60
	DefaultTimeoutSeconds = 120

	// DefaultProviderList is tried in order when EVOLVE_PROVIDERS is
	// unset; list position doubles as priority.
	DefaultProviderList = "openai,ollama"
)

// EnvOption adjusts how FromEnv assembles the manager.
type EnvOption func(*envOptions)

type envOptions struct {
	decorate func(Provider) Provider
}

// WithDecorator wraps every provider FromEnv builds before registering
// it, letting callers layer caching or instrumentation on top without
// knowing which providers the environment selects.
func WithDecorator(fn func(Provider) Provider) EnvOption {
	return func(o *envOptions) { o.decorate = fn }
}

// FromEnv assembles a Manager from environment variables:
//
//	EVOLVE_PROVIDERS     comma-separated list (openai, ollama, copilot,
//	                     static); order sets priority
//	EVOLVE_STRATEGY      priority | round_robin | least_recently_used | random
//	EVOLVE_RATE_LIMIT    requests allowed per window (default 60)
//	EVOLVE_RATE_WINDOW   window seconds (default 60)
//	EVOLVE_TIMEOUT       per-call timeout seconds (default 120)
//	OPENAI_API_KEY, OPENAI_MODEL, OPENAI_BASE_URL
//	OLLAMA_BASE_URL, OLLAMA_MODEL
//	COPILOT_MODEL
//
// Providers that cannot be configured are skipped with a warning; it is
// an error only when no provider at all could be built.
func FromEnv(opts ...EnvOption) (*Manager, error) {
	var eo envOptions
	for _, opt := range opts {
		opt(&eo)
	}

	strategy, err := ParseStrategy(os.Getenv("EVOLVE_STRATEGY"))
	if err != nil {
		return nil, err
	}

	names := strings.Split(envOr("EVOLVE_PROVIDERS", DefaultProviderList), ",")
	maxRequests := envInt("EVOLVE_RATE_LIMIT", DefaultMaxRequests)
	window := time.Duration(envInt("EVOLVE_RATE_WINDOW", DefaultWindowSeconds)) * time.Second
	timeout := time.Duration(envInt("EVOLVE_TIMEOUT", DefaultTimeoutSeconds)) * time.Second

	m := NewManager(WithStrategy(strategy))
	for i, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}

		p, err := buildProvider(name)
		if err != nil {
			if IsNotConfigured(err) {
				slog.Warn("skipping unconfigured provider", "provider", name, "error", err)
				continue
			}
			return nil, err
		}
		if eo.decorate != nil {
			p = eo.decorate(p)
		}

		if err := m.Register(Registration{
			Provider:    p,
			Priority:    i,
			MaxRequests: maxRequests,
			Window:      window,
			Timeout:     timeout,
		}); err != nil {
			return nil, err
		}
	}

	if m.Len() == 0 {
		return nil, &Error{
			Provider: "manager",
			Kind:     KindNotConfigured,
			Err:      errors.New("no LLM provider could be configured; set OPENAI_API_KEY or run a local Ollama server"),
		}
	}
	return m, nil
}

func buildProvider(name string) (Provider, error) {
	switch name {
	case openaiName:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   os.Getenv("OPENAI_MODEL"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		})
	case ollamaName:
		return NewOllamaProvider(OllamaConfig{
			BaseURL: os.Getenv("OLLAMA_BASE_URL"),
			Model:   os.Getenv("OLLAMA_MODEL"),
		}), nil
	case copilotName:
		return NewCopilotProvider(CopilotConfig{
			Model: envOr("COPILOT_MODEL", DefaultCopilotModel),
		}), nil
	case staticName:
		return NewStaticScaffoldProvider(os.Getenv("EVOLVE_STATIC_MODEL"), staticContractResponse, staticCodeResponse()), nil
	default:
		return nil, &Error{
			Provider: name,
			Kind:     KindNotConfigured,
			Err:      errors.New("unknown provider name"),
		}
	}
}

// IsAvailableProbe runs availability checks for each registered provider
// name without building a manager, used by preflight diagnostics.
func IsAvailableProbe(ctx context.Context, p Provider) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.IsAvailable(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring non-numeric environment value", "key", key, "value", v)
		return fallback
	}
	return n
}
