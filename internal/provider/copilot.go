package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	copilot "github.com/github/copilot-sdk/go"

	"github.com/evolvehq/evolve/internal/utils"
)

const copilotName = "copilot"

// CopilotConfig holds the settings for the GitHub Copilot CLI provider.
type CopilotConfig struct {
	// Model can be blank, which lets the Copilot CLI choose its own
	// fallback model.
	Model string

	// NewClient overrides SDK client construction, for tests.
	NewClient func(clientOptions *copilot.ClientOptions) copilotClient
}

// CopilotProvider generates text through the GitHub Copilot SDK, which
// drives the locally installed copilot CLI.
type CopilotProvider struct {
	model  string
	client copilotClient

	startOnce sync.Once

	workDirsMu sync.Mutex
	workDirs   []string // scratch directories to clean up at Close
}

// NewCopilotProvider creates the provider. The underlying CLI process is
// started lazily on the first Generate call.
func NewCopilotProvider(cfg CopilotConfig) *CopilotProvider {
	copilotOptions := &copilot.ClientOptions{
		// The working directory is set per session, not on the client.
		LogLevel:  "error",
		AutoStart: copilot.Bool(false),
	}

	var client copilotClient
	if cfg.NewClient != nil {
		client = cfg.NewClient(copilotOptions)
	} else {
		client = newCopilotClient(copilotOptions)
	}

	return &CopilotProvider{model: cfg.Model, client: client}
}

func (p *CopilotProvider) Name() string  { return copilotName }
func (p *CopilotProvider) Model() string { return p.model }

// IsAvailable reports whether the copilot CLI is on PATH. The SDK spawns
// that binary, so its absence means every call would fail.
func (p *CopilotProvider) IsAvailable(ctx context.Context) bool {
	_, err := exec.LookPath("copilot")
	return err == nil
}

// ListModels reports the active model. The SDK exposes no model
// enumeration endpoint.
func (p *CopilotProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if p.model == "" {
		return []ModelInfo{{ID: "default", Description: "model chosen by the Copilot CLI"}}, nil
	}
	return []ModelInfo{{ID: p.model}}, nil
}

func (p *CopilotProvider) Generate(ctx context.Context, opts GenerateOptions) (*Response, error) {
	var startErr error

	p.startOnce.Do(func() {
		// NOTE: the client has an 'autostart' feature, but it runs into
		// issues when it tries to autostart from separate goroutines.
		startErr = p.client.Start(ctx)
	})
	if startErr != nil {
		return nil, &Error{Provider: copilotName, Kind: KindTransport, Err: fmt.Errorf("copilot failed to start: %w", startErr)}
	}

	workDir, err := p.newWorkDir()
	if err != nil {
		return nil, &Error{Provider: copilotName, Kind: KindTransport, Err: err}
	}

	start := time.Now()

	session, err := p.client.CreateSession(ctx, &copilot.SessionConfig{
		Model:               p.model,
		OnPermissionRequest: allowAllTools,
		WorkingDirectory:    workDir,
	})
	if err != nil {
		return nil, wrapErr(copilotName, fmt.Errorf("failed to create session: %w", err))
	}

	collector := &assistantTextCollector{}
	unsubscribe := session.On(collector.On)
	defer unsubscribe()

	unsubscribe = session.On(utils.SessionToSlog)
	defer unsubscribe()

	_, err = session.SendAndWait(ctx, copilot.MessageOptions{
		Prompt: buildCopilotPrompt(opts),
	})
	if err != nil {
		return nil, wrapErr(copilotName, err)
	}
	if msg := collector.ErrorMessage(); msg != "" {
		return nil, &Error{Provider: copilotName, Kind: KindAPI, Err: errors.New(msg)}
	}

	slog.Debug("copilot session completed", "session_id", session.SessionID())
	return &Response{
		Text:       collector.Text(),
		Model:      p.model,
		Provider:   copilotName,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// Close stops the CLI client and removes scratch directories. Safe to
// call once all sessions have completed.
func (p *CopilotProvider) Close(ctx context.Context) error {
	if err := p.client.Stop(); err != nil {
		slog.Info("failed to stop copilot client", "error", err)
	}

	workDirs := func() []string {
		p.workDirsMu.Lock()
		defer p.workDirsMu.Unlock()
		dirs := p.workDirs
		p.workDirs = nil
		return dirs
	}()

	for _, dir := range workDirs {
		if dir == "" {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to clean up copilot scratch dir", "path", dir, "error", err)
		}
	}
	return nil
}

func (p *CopilotProvider) newWorkDir() (string, error) {
	dir, err := os.MkdirTemp("", "evolve-copilot-*")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %w", err)
	}
	p.workDirsMu.Lock()
	p.workDirs = append(p.workDirs, dir)
	p.workDirsMu.Unlock()
	return dir, nil
}

// buildCopilotPrompt folds the system message into the prompt since the
// SDK's MessageOptions carries a single prompt string.
func buildCopilotPrompt(opts GenerateOptions) string {
	var b strings.Builder
	if opts.System != "" {
		b.WriteString(opts.System)
		b.WriteString("\n\n")
	}
	b.WriteString(opts.User)
	if opts.ResponseFormat == FormatJSON {
		b.WriteString("\n\nRespond with a single JSON object and nothing else.")
	}
	return b.String()
}

// assistantTextCollector accumulates assistant message content from
// session events, intended to be passed to [copilot.Session.On].
type assistantTextCollector struct {
	parts    []string
	errorMsg string
}

func (c *assistantTextCollector) On(event copilot.SessionEvent) {
	switch event.Type {
	case copilot.AssistantMessage, copilot.AssistantMessageDelta:
		if event.Data.Content != nil {
			c.parts = append(c.parts, *event.Data.Content)
		}
	case copilot.SessionError:
		if event.Data.Message != nil && *event.Data.Message != "" {
			c.errorMsg = *event.Data.Message
		} else {
			c.errorMsg = "session failed with unknown error"
		}
	}
}

func (c *assistantTextCollector) Text() string {
	var b strings.Builder
	for _, part := range c.parts {
		b.WriteString(part)
	}
	return b.String()
}

func (c *assistantTextCollector) ErrorMessage() string {
	return c.errorMsg
}

func allowAllTools(request copilot.PermissionRequest, invocation copilot.PermissionInvocation) (copilot.PermissionRequestResult, error) {
	// value for 'Kind' came from the permissions_test.go in the Copilot SDK.
	return copilot.PermissionRequestResult{Kind: "approved"}, nil
}

var _ Provider = (*CopilotProvider)(nil)
var _ Closer = (*CopilotProvider)(nil)
