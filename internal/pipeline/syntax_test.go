package pipeline

import (
	"context"
	"testing"

	"github.com/evolvehq/evolve/internal/codegen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSyntax(t *testing.T, files ...codegen.GeneratedFile) StageResult {
	t.Helper()
	return (&SyntaxStage{}).Run(context.Background(), &Context{Files: files})
}

func TestSyntaxStageJavaScript(t *testing.T) {
	t.Run("realistic server source passes", func(t *testing.T) {
		src := "const express = require('express');\n" +
			"const app = express();\n" +
			"/* bootstrap */\n" +
			"app.get('/tasks/:id', (req, res) => {\n" +
			"  const id = req.params.id; // uuid\n" +
			"  if (!/^[0-9a-f-]{36}$/.test(id)) {\n" +
			"    return res.status(400).json({ error: `bad id ${id}` });\n" +
			"  }\n" +
			"  const half = id.length / 2 / 1;\n" +
			"  res.json({ id, half });\n" +
			"});\n"
		sr := runSyntax(t, jsFile("api/server.js", src))
		assert.Empty(t, sr.Errors)
	})

	t.Run("unclosed brace names the opening line", func(t *testing.T) {
		src := "function handler() {\n  if (ready) {\n}\n"
		sr := runSyntax(t, jsFile("api/server.js", src))

		require.Len(t, sr.Errors, 1)
		assert.Equal(t, `unclosed "{"`, sr.Errors[0].Message)
		assert.Equal(t, 1, sr.Errors[0].Line)
		assert.Equal(t, "api/server.js", sr.Errors[0].File)
	})

	t.Run("unexpected closer", func(t *testing.T) {
		sr := runSyntax(t, jsFile("api/server.js", "const x = 1;\n}\n"))
		require.Len(t, sr.Errors, 1)
		assert.Equal(t, `unexpected "}"`, sr.Errors[0].Message)
		assert.Equal(t, 2, sr.Errors[0].Line)
	})

	t.Run("mismatched closer", func(t *testing.T) {
		sr := runSyntax(t, jsFile("api/server.js", "const pair = [1, 2);\n"))
		require.Len(t, sr.Errors, 1)
		assert.Equal(t, `mismatched ")" closes "[" from line 1`, sr.Errors[0].Message)
	})

	t.Run("braces inside strings are ignored", func(t *testing.T) {
		src := "const a = '{';\nconst b = \"}{\";\n"
		sr := runSyntax(t, jsFile("api/server.js", src))
		assert.Empty(t, sr.Errors)
	})

	t.Run("template interpolation is balanced separately", func(t *testing.T) {
		src := "const msg = `found ${items.filter(i => i.done).length} of ${items.length}`;\n"
		sr := runSyntax(t, jsFile("api/server.js", src))
		assert.Empty(t, sr.Errors)
	})

	t.Run("regex literals hide braces and slashes", func(t *testing.T) {
		src := "const re = /a{2}[/]/;\nif (re.test(s)) { found(); }\nreturn /x]/.test(s);\n"
		sr := runSyntax(t, jsFile("api/server.js", src))
		assert.Empty(t, sr.Errors)
	})

	t.Run("division is not a regex", func(t *testing.T) {
		sr := runSyntax(t, jsFile("api/server.js", "const r = total / count / 2;\n"))
		assert.Empty(t, sr.Errors)
	})

	t.Run("unterminated string", func(t *testing.T) {
		sr := runSyntax(t, jsFile("api/server.js", "const s = \"abc\nconst t = 1;\n"))
		require.Len(t, sr.Errors, 1)
		assert.Equal(t, "unterminated string literal", sr.Errors[0].Message)
		assert.Equal(t, 1, sr.Errors[0].Line)
	})

	t.Run("unterminated block comment", func(t *testing.T) {
		sr := runSyntax(t, jsFile("api/server.js", "const a = 1;\n/* never closed\n"))
		require.Len(t, sr.Errors, 1)
		assert.Equal(t, "unterminated block comment", sr.Errors[0].Message)
	})

	t.Run("cascading errors are capped", func(t *testing.T) {
		sr := runSyntax(t, jsFile("api/server.js", "x = }}}}}\n"))
		assert.Len(t, sr.Errors, 3)
	})
}

func TestSyntaxStageDataFiles(t *testing.T) {
	t.Run("invalid JSON", func(t *testing.T) {
		sr := runSyntax(t, codegen.GeneratedFile{Path: "package.json", Content: `{"name":`})
		require.Len(t, sr.Errors, 1)
		assert.Contains(t, sr.Errors[0].Message, "invalid JSON")
	})

	t.Run("invalid YAML", func(t *testing.T) {
		sr := runSyntax(t, codegen.GeneratedFile{Path: "docker-compose.yml", Content: "services: [one, two\n"})
		require.Len(t, sr.Errors, 1)
		assert.Contains(t, sr.Errors[0].Message, "invalid YAML")
	})

	t.Run("valid documents pass", func(t *testing.T) {
		sr := runSyntax(t,
			codegen.GeneratedFile{Path: "package.json", Content: `{"name":"taskman"}`},
			codegen.GeneratedFile{Path: ".evolve.yaml", Content: "output: ./out\n"},
		)
		assert.Empty(t, sr.Errors)
	})

	t.Run("other file types are ignored", func(t *testing.T) {
		sr := runSyntax(t, codegen.GeneratedFile{Path: "README.md", Content: "}{ not code"})
		assert.Empty(t, sr.Errors)
	})
}
