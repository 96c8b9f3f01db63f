package codegen

import (
	"fmt"
	"testing"

	"github.com/evolvehq/evolve/internal/contract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContract() *contract.Contract {
	return &contract.Contract{
		App: contract.App{Name: "taskman"},
		Entities: []contract.Entity{{
			Name:   "Task",
			Fields: []contract.Field{{Name: "title", Type: contract.TypeString}},
		}},
		API: contract.API{Resources: []contract.Resource{{Name: "tasks", Entity: "Task"}}},
		TechStack: contract.TechStack{
			Framework: "express", Language: "javascript", Runtime: "node", Port: 3000,
		},
	}
}

func TestExtractFiles(t *testing.T) {
	t.Run("path comment wins and is stripped", func(t *testing.T) {
		response := "Here you go:\n```js\n// path: api/server.js\nconst app = 1;\n```"
		result := ExtractFiles(response, testContract())

		require.True(t, result.Success)
		require.Len(t, result.Files, 1)
		assert.Equal(t, "api/server.js", result.Files[0].Path)
		assert.Equal(t, "const app = 1;\n", result.Files[0].Content)
		assert.Equal(t, "api", result.Files[0].Target)
	})

	t.Run("hash comment path", func(t *testing.T) {
		response := "```yaml\n# path: docker-compose.yml\nservices: {}\n```"
		result := ExtractFiles(response, testContract())

		require.Len(t, result.Files, 1)
		assert.Equal(t, "docker-compose.yml", result.Files[0].Path)
		assert.Equal(t, TargetRoot, result.Files[0].Target)
	})

	t.Run("info string path token", func(t *testing.T) {
		response := "```js path=api/routes/tasks.js\nmodule.exports = {};\n```"
		result := ExtractFiles(response, testContract())

		require.Len(t, result.Files, 1)
		assert.Equal(t, "api/routes/tasks.js", result.Files[0].Path)
	})

	t.Run("bare path in info string", func(t *testing.T) {
		response := "```api/package.json\n{\"name\": \"taskman\"}\n```"
		result := ExtractFiles(response, testContract())

		require.Len(t, result.Files, 1)
		assert.Equal(t, "api/package.json", result.Files[0].Path)
	})

	t.Run("entity mention drives the fallback path", func(t *testing.T) {
		response := "```js\nconst Task = require('./model');\nmodule.exports = Task;\n```"
		result := ExtractFiles(response, testContract())

		require.Len(t, result.Files, 1)
		assert.Equal(t, "api/tasks.js", result.Files[0].Path)
	})

	t.Run("counter fallback for unrecognized blocks", func(t *testing.T) {
		response := "```\nplain text n1\n```\nand\n```\nplain text n2\n```"
		result := ExtractFiles(response, testContract())

		require.Len(t, result.Files, 2)
		assert.Equal(t, "generated/file_1.txt", result.Files[0].Path)
		assert.Equal(t, "generated/file_2.txt", result.Files[1].Path)
	})

	t.Run("empty block is an error entry", func(t *testing.T) {
		response := "```js\n// path: api/server.js\n\n```"
		result := ExtractFiles(response, testContract())

		assert.False(t, result.Success)
		assert.Empty(t, result.Files)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "empty")
	})

	t.Run("absolute path is rejected", func(t *testing.T) {
		response := "```js\n// path: /etc/passwd\nboom\n```"
		result := ExtractFiles(response, testContract())

		assert.Empty(t, result.Files)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "absolute path")
	})

	t.Run("directory escape is rejected", func(t *testing.T) {
		response := "```js\n// path: ../outside.js\nboom\n```"
		result := ExtractFiles(response, testContract())

		assert.Empty(t, result.Files)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "escapes")
	})

	t.Run("mapping errors do not fail the call", func(t *testing.T) {
		response := "```js\n// path: api/server.js\nok\n```\n```js\n// path: ../bad.js\nboom\n```"
		result := ExtractFiles(response, testContract())

		assert.True(t, result.Success)
		assert.Len(t, result.Files, 1)
		assert.Len(t, result.Errors, 1)
	})

	t.Run("later block replaces earlier one with the same path", func(t *testing.T) {
		response := "```js\n// path: api/server.js\nfirst\n```\n```js\n// path: api/server.js\nsecond\n```"
		result := ExtractFiles(response, testContract())

		require.Len(t, result.Files, 1)
		assert.Equal(t, "second\n", result.Files[0].Content)
	})

	t.Run("no blocks", func(t *testing.T) {
		result := ExtractFiles("I wrote no code, sorry.", testContract())
		assert.False(t, result.Success)
		assert.Empty(t, result.Files)
	})

	t.Run("extraction is reproducible", func(t *testing.T) {
		response := "```js\n// path: api/server.js\nconst x = 1;\n```\n```\nnotes about Task handling\n```"
		first := ExtractFiles(response, testContract())
		second := ExtractFiles(response, testContract())
		assert.Equal(t, first, second)
	})
}

func TestParseInfo(t *testing.T) {
	tests := []struct {
		info string
		lang string
		hint string
	}{
		{"js", "js", ""},
		{"js path=api/server.js", "js", "api/server.js"},
		{"js title=\"api/server.js\"", "js", "api/server.js"},
		{"api/server.js", "", "api/server.js"},
		{"", "", ""},
		{"JavaScript", "javascript", ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("info %q", tt.info), func(t *testing.T) {
			lang, hint := parseInfo(tt.info)
			assert.Equal(t, tt.lang, lang)
			assert.Equal(t, tt.hint, hint)
		})
	}
}

func TestCleanPath(t *testing.T) {
	t.Run("normalizes separators and dots", func(t *testing.T) {
		got, err := cleanPath(`api\routes\..\server.js`)
		require.NoError(t, err)
		assert.Equal(t, "api/server.js", got)
	})

	t.Run("windows drive is absolute", func(t *testing.T) {
		_, err := cleanPath(`C:\temp\x.js`)
		assert.Error(t, err)
	})
}
