package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const ollamaName = "ollama"

// OllamaConfig holds the settings for a local Ollama server.
type OllamaConfig struct {
	BaseURL string
	Model   string
}

// OllamaProvider generates text through a local Ollama server's
// /api/generate endpoint.
type OllamaProvider struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name       string `json:"name"`
		ModifiedAt string `json:"modified_at"`
	} `json:"models"`
}

// NewOllamaProvider creates the provider. The base URL and model fall
// back to defaults when unset since a local server needs no credential.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
		slog.Warn("OLLAMA_MODEL not set, using default", "model", model)
	}
	return &OllamaProvider{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
	}
}

func (p *OllamaProvider) Name() string  { return ollamaName }
func (p *OllamaProvider) Model() string { return p.model }

// IsAvailable probes the tags endpoint with a short deadline.
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *OllamaProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, wrapErr(ollamaName, err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, wrapErr(ollamaName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapErr(ollamaName, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Provider: ollamaName,
			Kind:     KindAPI,
			Err:      fmt.Errorf("tags request failed with status %d: %s", resp.StatusCode, body),
		}
	}

	var tags ollamaTagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, &Error{Provider: ollamaName, Kind: KindAPI, Err: fmt.Errorf("parsing tags response: %w", err)}
	}
	models := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, ModelInfo{ID: m.Name})
	}
	return models, nil
}

func (p *OllamaProvider) Generate(ctx context.Context, opts GenerateOptions) (*Response, error) {
	ctx, span := tracer.Start(ctx, "OllamaProvider.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", ollamaName),
		attribute.String("llm.model", p.model),
	)
	slog.Debug("generating via Ollama", "model", p.model, "base_url", p.baseURL)

	options := make(map[string]any)
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		options["num_predict"] = *opts.MaxTokens
	}
	if len(opts.Stop) > 0 {
		options["stop"] = opts.Stop
	}

	payload := ollamaGenerateRequest{
		Model:   p.model,
		Prompt:  opts.User,
		System:  opts.System,
		Stream:  false,
		Options: options,
	}
	if opts.ResponseFormat == FormatJSON {
		payload.Format = "json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Provider: ollamaName, Kind: KindAPI, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, wrapErr(ollamaName, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapErr(ollamaName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapErr(ollamaName, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound && isModelMissing(respBody) {
			return nil, &Error{
				Provider: ollamaName,
				Kind:     KindAPI,
				Err:      fmt.Errorf("model %q not found, run: ollama pull %s", p.model, p.model),
			}
		}
		return nil, &Error{
			Provider: ollamaName,
			Kind:     KindAPI,
			Err:      fmt.Errorf("generate failed with status %d: %s", resp.StatusCode, respBody),
		}
	}

	var genResp ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &Error{Provider: ollamaName, Kind: KindAPI, Err: fmt.Errorf("parsing generate response: %w", err)}
	}

	slog.Debug("received response from Ollama", "model", genResp.Model)
	return &Response{
		Text:       genResp.Response,
		Model:      p.model,
		Provider:   ollamaName,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// isModelMissing detects Ollama's "model not found" payload, which needs
// a friendlier message than the raw 404 body.
func isModelMissing(body []byte) bool {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return false
	}
	return strings.Contains(errResp.Error, "model") && strings.Contains(errResp.Error, "not found")
}

var _ Provider = (*OllamaProvider)(nil)
