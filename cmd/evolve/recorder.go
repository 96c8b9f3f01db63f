package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/evolvehq/evolve/internal/provider"
	"github.com/evolvehq/evolve/internal/session"
	"github.com/evolvehq/evolve/internal/transcript"
)

// textGenerator matches the generator dependency of both the contract
// and code generators, so one recorder type can wrap either.
type textGenerator interface {
	Generate(ctx context.Context, opts provider.GenerateOptions) (*provider.Response, error)
}

// recordingGenerator decorates a text generator with session logging
// and transcript capture. Either sink may be nil.
type recordingGenerator struct {
	inner  textGenerator
	phase  string
	log    session.Logger
	script *transcript.Transcript
}

func (g *recordingGenerator) Generate(ctx context.Context, opts provider.GenerateOptions) (*provider.Response, error) {
	start := time.Now()
	resp, err := g.inner.Generate(ctx, opts)

	if g.script != nil {
		ex := transcript.Exchange{
			Phase:  g.phase,
			System: opts.System,
			Prompt: opts.User,
			At:     start,
		}
		if resp != nil {
			ex.Provider = resp.Provider
			ex.Model = resp.Model
			ex.Response = resp.Text
			ex.DurationMs = resp.DurationMs
		}
		if err != nil {
			ex.Error = err.Error()
			ex.DurationMs = time.Since(start).Milliseconds()
		}
		g.script.Record(ex)
	}

	if err == nil && g.log != nil {
		ev := session.NewEvent(session.EventProviderCall,
			session.ProviderCallData(resp.Provider, resp.Model, resp.DurationMs))
		if logErr := g.log.Log(ev); logErr != nil {
			slog.Warn("writing provider call event", "error", logErr)
		}
	}
	return resp, err
}
