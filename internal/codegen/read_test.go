package codegen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFiles(t *testing.T) {
	t.Run("round trips written files", func(t *testing.T) {
		dir := t.TempDir()
		written := []GeneratedFile{
			{Path: "api/server.js", Content: "const x = 1;\n", Target: "api"},
			{Path: "package.json", Content: "{}\n", Target: TargetRoot},
		}
		require.NoError(t, WriteFiles(written, dir))

		loaded, err := LoadFiles(dir)
		require.NoError(t, err)
		assert.ElementsMatch(t, written, loaded)
	})

	t.Run("skips dependency and state directories", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "express"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "express", "index.js"), []byte("x\n"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "state"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "state", "evolution-state.json"), []byte("{}\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "server.js"), []byte("ok\n"), 0o644))

		loaded, err := LoadFiles(dir)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, "server.js", loaded[0].Path)
	})

	t.Run("skips session artifacts at the root only", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "contract.json"), []byte("{}\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".evolve-owner.json"), []byte("{}\n"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "api"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "api", "contract.json"), []byte("{}\n"), 0o644))

		loaded, err := LoadFiles(dir)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, "api/contract.json", loaded[0].Path)
	})

	t.Run("skips binary files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), []byte{0x89, 0x50, 0x4e, 0x47, 0xff, 0xfe}, 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "server.js"), []byte("ok\n"), 0o644))

		loaded, err := LoadFiles(dir)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, "server.js", loaded[0].Path)
	})

	t.Run("buckets targets by first path segment", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "web"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "web", "index.html"), []byte("<html></html>\n"), 0o644))

		loaded, err := LoadFiles(dir)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, "web", loaded[0].Target)
	})
}
