package utils

import "path/filepath"

// ResolvePath anchors a relative path to baseDir. Absolute paths are
// returned unchanged. Hook working directories and batch job contract
// paths both resolve through here so the anchoring rule stays in one
// place.
func ResolvePath(path, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
