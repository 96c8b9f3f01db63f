package codegen

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// WriteFiles writes every file beneath outputDir, creating parent
// directories as needed. Existing files are overwritten
// unconditionally: each generation round owns the full file set it
// emitted. Writing the same files twice produces byte-identical
// results.
func WriteFiles(files []GeneratedFile, outputDir string) error {
	for _, f := range files {
		clean, err := cleanPath(f.Path)
		if err != nil {
			return fmt.Errorf("writing %s: %w", f.Path, err)
		}
		abs := filepath.Join(outputDir, filepath.FromSlash(clean))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", clean, err)
		}
		if err := os.WriteFile(abs, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", clean, err)
		}
	}
	return nil
}

// HasManifest reports whether the file set declares a Node dependency
// manifest, which is what triggers the dependency install phase.
func HasManifest(files []GeneratedFile) bool {
	_, ok := ManifestPath(files)
	return ok
}

// ManifestPath returns the slash-separated path of the dependency
// manifest closest to the project root. The install command runs in
// that file's directory.
func ManifestPath(files []GeneratedFile) (string, bool) {
	best := ""
	for _, f := range files {
		if path.Base(f.Path) != "package.json" {
			continue
		}
		if best == "" || strings.Count(f.Path, "/") < strings.Count(best, "/") {
			best = f.Path
		}
	}
	return best, best != ""
}
