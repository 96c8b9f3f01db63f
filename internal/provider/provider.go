// Package provider defines the uniform generation interface over LLM
// backends and the manager that selects among them.
package provider

import (
	"context"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("evolve.provider")

// ResponseFormat selects the output shape requested from a provider.
type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// GenerateOptions carries one generation request. Nil tuning fields leave
// the backend's own default in effect.
type GenerateOptions struct {
	System         string
	User           string
	Temperature    *float32
	MaxTokens      *int
	ResponseFormat ResponseFormat
	Stop           []string
}

// Response is the result of a single generation call.
type Response struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`
	DurationMs int64  `json:"duration_ms"`
}

// ModelInfo describes one model exposed by a provider.
type ModelInfo struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

// Provider is the uniform interface implemented by every LLM backend.
type Provider interface {
	// Name returns the stable provider identifier (e.g. "openai").
	Name() string

	// Model returns the active model ID.
	Model() string

	// IsAvailable reports whether the provider is configured and
	// reachable. Probes are cheap and best-effort; they never error.
	IsAvailable(ctx context.Context) bool

	// ListModels enumerates the models the backend exposes.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Generate produces text for the given options. Failures are
	// reported as a [*Error]; no retries happen inside Generate,
	// fallback and backoff belong to the caller.
	Generate(ctx context.Context, opts GenerateOptions) (*Response, error)
}

// Closer is implemented by providers that hold external resources, such
// as a spawned CLI process or a scratch workspace.
type Closer interface {
	Close(ctx context.Context) error
}
