package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolvehq/evolve/internal/contract"
)

// validContract describes the minimal app the validate fixtures write:
// a manifest plus one server file, both named by assertions.
const validContract = `{
  "app": { "name": "notes-api", "version": "0.1.0" },
  "entities": [
    {
      "name": "Note",
      "fields": [
        { "name": "title", "type": "String", "annotations": { "required": true } },
        { "name": "content", "type": "Text" }
      ]
    }
  ],
  "api": {
    "version": "v1",
    "prefix": "/api",
    "resources": [
      { "name": "notes", "entity": "Note", "operations": ["list", "get", "create"] }
    ]
  },
  "techStack": { "framework": "express", "language": "javascript", "runtime": "node", "port": 3000 },
  "assertions": [
    { "id": "manifest", "check": { "type": "file_exists", "path": "package.json" }, "severity": "error" },
    { "id": "server", "check": { "type": "file_exists", "path": "api/server.js" }, "severity": "error" }
  ]
}
`

const fixtureManifest = `{
  "name": "notes-api",
  "version": "0.1.0"
}
`

const fixtureServer = `const http = require('http');

const server = http.createServer((req, res) => {
  res.writeHead(200, { 'Content-Type': 'application/json' });
  res.end(JSON.stringify({ ok: true }));
});

server.listen(3000);
`

// hermeticValidateArgs skips the stages that shell out to npm or node.
func hermeticValidateArgs(dir string) []string {
	return []string{
		dir,
		"--skip-stage", "tests",
		"--skip-stage", "quality",
		"--skip-stage", "runtime",
	}
}

// writeAppFixture lays out the minimal application the contracts above
// describe. The contract is saved normalized so the schema stage sees
// no drift between disk and the loaded contract.
func writeAppFixture(t *testing.T, dir, rawContract string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "api"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(fixtureManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "api", "server.js"), []byte(fixtureServer), 0o644))

	c, err := contract.ParseJSON([]byte(rawContract))
	require.NoError(t, err)
	require.NoError(t, contract.Save(c, filepath.Join(dir, "contract.json")))
}

func TestValidateCommand_PassingDirectory(t *testing.T) {
	dir := t.TempDir()
	writeAppFixture(t, dir, validContract)

	var out bytes.Buffer
	cmd := newValidateCommand()
	cmd.SetArgs(hermeticValidateArgs(dir))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "✓ assertion")
	assert.Contains(t, out.String(), "5/5 stages passed")
}

func TestValidateCommand_FailingAssertion(t *testing.T) {
	dir := t.TempDir()
	writeAppFixture(t, dir, failingContract)

	var out bytes.Buffer
	cmd := newValidateCommand()
	cmd.SetArgs(hermeticValidateArgs(dir))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)

	var vErr *ValidationFailedError
	require.True(t, errors.As(err, &vErr), "expected a ValidationFailedError, got %T", err)
	assert.Contains(t, vErr.Error(), "validation failed")
	assert.Contains(t, out.String(), "✗ assertion")
	assert.Contains(t, out.String(), "does-not-exist")
}

func TestValidateCommand_MissingContract(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(fixtureManifest), 0o644))

	cmd := newValidateCommand()
	cmd.SetArgs([]string{dir})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading contract")
}

func TestValidateCommand_NoApplicationFiles(t *testing.T) {
	// contract.json at the root is a session artifact, not an
	// application file, so the directory counts as empty.
	dir := t.TempDir()
	c, err := contract.ParseJSON([]byte(validContract))
	require.NoError(t, err)
	require.NoError(t, contract.Save(c, filepath.Join(dir, "contract.json")))

	cmd := newValidateCommand()
	cmd.SetArgs([]string{dir})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no application files found")
}

func TestValidateCommand_OnlyStage(t *testing.T) {
	dir := t.TempDir()
	writeAppFixture(t, dir, validContract)

	var out bytes.Buffer
	cmd := newValidateCommand()
	cmd.SetArgs([]string{dir, "--only-stage", "syntax"})
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "✓ syntax")
	assert.Contains(t, out.String(), "1/1 stages passed")
}

func TestValidateCommand_ContractFlag(t *testing.T) {
	dir := t.TempDir()
	writeAppFixture(t, dir, validContract)

	// Point at a contract stored away from the application directory.
	altPath := filepath.Join(t.TempDir(), "alt.contract.json")
	c, err := contract.ParseJSON([]byte(validContract))
	require.NoError(t, err)
	require.NoError(t, contract.Save(c, altPath))

	cmd := newValidateCommand()
	cmd.SetArgs(append(hermeticValidateArgs(dir), "--contract", altPath))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	require.NoError(t, cmd.Execute())
}
