package codegen

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// skippedDirs are directory names LoadFiles never descends into:
// installed dependencies, version control, and session state.
var skippedDirs = map[string]bool{
	"node_modules":  true,
	".git":          true,
	"state":         true,
	".evolve-cache": true,
}

// sessionArtifacts are root-level files an evolution session writes
// next to the application. They are not application files.
var sessionArtifacts = map[string]bool{
	"contract.json":      true,
	".evolve-owner.json": true,
}

// LoadFiles reads an application directory back into the generated
// file representation, so a directory produced by an earlier session
// can be re-validated. Binary files are skipped; paths come back
// slash-separated relative to dir.
func LoadFiles(dir string) ([]GeneratedFile, error) {
	var files []GeneratedFile
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if sessionArtifacts[rel] {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		if !utf8.Valid(data) {
			return nil
		}
		files = append(files, GeneratedFile{
			Path:    rel,
			Content: string(data),
			Target:  targetFor(rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading files from %s: %w", dir, err)
	}
	return files, nil
}
