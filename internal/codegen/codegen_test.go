package codegen

import (
	"context"
	"errors"
	"testing"

	"github.com/evolvehq/evolve/internal/contract"
	"github.com/evolvehq/evolve/internal/prompt"
	"github.com/evolvehq/evolve/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	response string
	err      error
	calls    []provider.GenerateOptions
}

func (f *fakeLLM) Generate(_ context.Context, opts provider.GenerateOptions) (*provider.Response, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Response{Text: f.response, Provider: "fake", Model: "fake-model"}, nil
}

func TestGeneratorGenerate(t *testing.T) {
	t.Run("extracts files from the response", func(t *testing.T) {
		llm := &fakeLLM{response: "```js\n// path: api/server.js\nconst express = require('express');\n```" +
			"\n```json\n// path: api/package.json\n{\"name\": \"taskman\"}\n```"}
		gen := NewGenerator(llm, prompt.NewBuilder())

		result, err := gen.Generate(context.Background(), testContract())
		require.NoError(t, err)

		assert.True(t, result.Success)
		require.Len(t, result.Files, 2)
		assert.Equal(t, "api/server.js", result.Files[0].Path)
		assert.Equal(t, "api/package.json", result.Files[1].Path)

		require.Len(t, llm.calls, 1)
		assert.Contains(t, llm.calls[0].User, `"taskman"`)
		assert.Contains(t, llm.calls[0].User, "express")
		assert.Contains(t, llm.calls[0].User, "3000")
		assert.Contains(t, llm.calls[0].System, "fenced code block")
	})

	t.Run("response without code is a failed result, not an error", func(t *testing.T) {
		llm := &fakeLLM{response: "I would suggest starting with a plan."}
		gen := NewGenerator(llm, prompt.NewBuilder())

		result, err := gen.Generate(context.Background(), testContract())
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Empty(t, result.Files)
	})

	t.Run("provider failure propagates", func(t *testing.T) {
		llm := &fakeLLM{err: errors.New("boom")}
		gen := NewGenerator(llm, prompt.NewBuilder())

		_, err := gen.Generate(context.Background(), testContract())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "code generation")
	})

	t.Run("instructions reach the prompt", func(t *testing.T) {
		c := testContract()
		c.Instructions = []contract.Instruction{
			{Priority: contract.PriorityMust, Target: "api", Text: "validate request bodies"},
		}
		llm := &fakeLLM{response: "```js\n// path: api/server.js\nok\n```"}
		gen := NewGenerator(llm, prompt.NewBuilder())

		_, err := gen.Generate(context.Background(), c)
		require.NoError(t, err)
		assert.Contains(t, llm.calls[0].User, "MUST (api): validate request bodies")
	})
}

func TestGeneratorFix(t *testing.T) {
	llm := &fakeLLM{response: "```js\n// path: api/server.js\nfixed\n```"}
	gen := NewGenerator(llm, prompt.NewBuilder())

	files := []GeneratedFile{{Path: "api/server.js", Content: "broken content\n", Target: "api"}}
	validationErrors := []string{"syntax: api/server.js: unexpected token"}

	result, err := gen.Fix(context.Background(), testContract(), files, validationErrors)
	require.NoError(t, err)

	require.Len(t, result.Files, 1)
	assert.Equal(t, "fixed\n", result.Files[0].Content)

	require.Len(t, llm.calls, 1)
	assert.Contains(t, llm.calls[0].User, "broken content")
	assert.Contains(t, llm.calls[0].User, "unexpected token")
	assert.Contains(t, llm.calls[0].User, "--- api/server.js ---")
}
