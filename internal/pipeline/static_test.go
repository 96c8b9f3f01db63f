package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestWithExpress = `{
  "name": "taskman",
  "dependencies": {"express": "^4.19.0", "@aws-sdk/client-s3": "^3.0.0"},
  "devDependencies": {"jest": "^29.0.0"}
}`

func runStatic(t *testing.T, pairs ...string) StageResult {
	t.Helper()
	return (&StaticStage{}).Run(context.Background(), &Context{
		Files: codegenFiles(pairs...),
	})
}

func TestStaticStage(t *testing.T) {
	t.Run("clean project passes", func(t *testing.T) {
		sr := runStatic(t,
			"package.json", manifestWithExpress,
			"api/server.js", "const express = require('express');\nconst path = require('node:path');\nconst local = require('./routes');\n",
		)
		assert.Empty(t, sr.Errors)
		assert.Empty(t, sr.Warnings)
	})

	t.Run("conflict markers are errors in any file", func(t *testing.T) {
		content := "line one\n<<<<<<< HEAD\ntheirs\n"
		sr := runStatic(t, "README.md", content)

		require.Len(t, sr.Errors, 1)
		assert.Equal(t, "merge conflict marker left in file", sr.Errors[0].Message)
		assert.Equal(t, 2, sr.Errors[0].Line)
	})

	t.Run("setext underline is not a conflict marker", func(t *testing.T) {
		sr := runStatic(t, "README.md", "Title\n=======\nbody\n")
		assert.Empty(t, sr.Errors)
	})

	t.Run("debugger statement is an error", func(t *testing.T) {
		sr := runStatic(t,
			"package.json", manifestWithExpress,
			"api/server.js", "const x = 1;\n  debugger;\n",
		)
		require.Len(t, sr.Errors, 1)
		assert.Equal(t, "debugger statement left in file", sr.Errors[0].Message)
		assert.Equal(t, 2, sr.Errors[0].Line)
	})

	t.Run("todo marker is a warning", func(t *testing.T) {
		sr := runStatic(t,
			"package.json", manifestWithExpress,
			"api/server.js", "// TODO wire auth\n",
		)
		assert.Empty(t, sr.Errors)
		require.Len(t, sr.Warnings, 1)
		assert.Equal(t, "unfinished work marker", sr.Warnings[0].Message)
	})

	t.Run("undeclared dependency is an error", func(t *testing.T) {
		sr := runStatic(t,
			"package.json", manifestWithExpress,
			"api/server.js", "const morgan = require('morgan');\nimport helmet from 'helmet';\n",
		)
		require.Len(t, sr.Errors, 2)
		assert.Equal(t, "imports morgan, which package.json does not declare", sr.Errors[0].Message)
		assert.Equal(t, "imports helmet, which package.json does not declare", sr.Errors[1].Message)
	})

	t.Run("builtins and relative imports need no declaration", func(t *testing.T) {
		src := "const fs = require('fs');\n" +
			"const crypto = require('node:crypto');\n" +
			"const routes = require('./routes/tasks');\n" +
			"import { fromEnv } from '@aws-sdk/client-s3';\n"
		sr := runStatic(t, "package.json", manifestWithExpress, "api/server.js", src)
		assert.Empty(t, sr.Errors)
	})

	t.Run("scoped packages resolve to two segments", func(t *testing.T) {
		sr := runStatic(t,
			"package.json", manifestWithExpress,
			"api/server.js", "const s3 = require('@aws-sdk/client-s3/commands');\nconst o = require('@other/pkg');\n",
		)
		require.Len(t, sr.Errors, 1)
		assert.Contains(t, sr.Errors[0].Message, "imports @other/pkg")
	})

	t.Run("repeated imports are reported once", func(t *testing.T) {
		sr := runStatic(t,
			"package.json", manifestWithExpress,
			"api/server.js", "const a = require('morgan');\nconst b = require('morgan');\n",
		)
		assert.Len(t, sr.Errors, 1)
	})

	t.Run("script without a manifest warns", func(t *testing.T) {
		sr := runStatic(t, "api/server.js", "const x = 1;\n")
		assert.Empty(t, sr.Errors)
		require.Len(t, sr.Warnings, 1)
		assert.Equal(t, "no package.json manifest; dependency checks skipped", sr.Warnings[0].Message)
	})
}

func TestBareModule(t *testing.T) {
	cases := []struct {
		spec string
		want string
		ok   bool
	}{
		{"express", "express", true},
		{"node:fs", "fs", true},
		{"lodash/merge", "lodash", true},
		{"@scope/pkg", "@scope/pkg", true},
		{"@scope/pkg/deep", "@scope/pkg", true},
		{"./local", "", false},
		{"../up", "", false},
		{"/abs", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := bareModule(tc.spec)
		assert.Equal(t, tc.ok, ok, tc.spec)
		assert.Equal(t, tc.want, got, tc.spec)
	}
}
