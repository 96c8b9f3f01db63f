package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const openaiName = "openai"

// OpenAIConfig holds the settings for the OpenAI-backed provider.
type OpenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, for OpenAI-compatible servers.
	BaseURL string
}

// OpenAIProvider generates text through the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates the provider. A missing API key is a
// configuration error; everything else is deferred to call time.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, &Error{Provider: openaiName, Kind: KindNotConfigured, Err: errors.New("OPENAI_API_KEY is not set")}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
		slog.Warn("OPENAI_MODEL not set, using default", "model", model)
	}

	var client *openai.Client
	if cfg.BaseURL != "" {
		cc := openai.DefaultConfig(cfg.APIKey)
		cc.BaseURL = cfg.BaseURL
		client = openai.NewClientWithConfig(cc)
	} else {
		client = openai.NewClient(cfg.APIKey)
	}

	return &OpenAIProvider{client: client, model: model}, nil
}

func (p *OpenAIProvider) Name() string  { return openaiName }
func (p *OpenAIProvider) Model() string { return p.model }

// IsAvailable probes the models endpoint with a short deadline.
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := p.client.ListModels(ctx)
	return err == nil
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, wrapOpenAIErr(err)
	}
	models := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, ModelInfo{ID: m.ID, Description: m.OwnedBy})
	}
	return models, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, opts GenerateOptions) (*Response, error) {
	ctx, span := tracer.Start(ctx, "OpenAIProvider.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", openaiName),
		attribute.String("llm.model", p.model),
	)
	slog.Debug("generating via OpenAI", "model", p.model)

	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: opts.System},
			{Role: openai.ChatMessageRoleUser, Content: opts.User},
		},
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		req.MaxCompletionTokens = *opts.MaxTokens
	}
	if len(opts.Stop) > 0 {
		req.Stop = opts.Stop
	}
	if opts.ResponseFormat == FormatJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, wrapOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("no choices returned")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &Error{Provider: openaiName, Kind: KindAPI, Err: err}
	}

	slog.Debug("received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return &Response{
		Text:       resp.Choices[0].Message.Content,
		Model:      p.model,
		Provider:   openaiName,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// wrapOpenAIErr distinguishes API-level rejections from transport
// failures and deadline expiry.
func wrapOpenAIErr(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Provider: openaiName, Kind: KindAPI, Err: err}
	}
	return wrapErr(openaiName, err)
}

var _ Provider = (*OpenAIProvider)(nil)
