// Package snapshot archives an evolution workspace into a
// zstd-compressed tarball and optionally pushes it to Azure Blob
// Storage. Archives capture the generated application plus its state
// directory, so a failed session can be inspected elsewhere.
package snapshot

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// defaultExcludes are directory names skipped at any depth. Installed
// dependencies are regenerable and dominate archive size.
var defaultExcludes = []string{"node_modules", ".git"}

// Info summarizes a created archive.
type Info struct {
	Files int   // regular files archived
	Size  int64 // archive size on disk in bytes
}

// Option configures archive creation.
type Option func(*options)

type options struct {
	exclude []string
}

// WithExclude adds directory names to skip at any depth, on top of the
// defaults.
func WithExclude(names ...string) Option {
	return func(o *options) {
		o.exclude = append(o.exclude, names...)
	}
}

// DefaultName builds the conventional archive filename for an app.
func DefaultName(app string, at time.Time) string {
	return fmt.Sprintf("%s-%s.tar.zst", app, at.Format("20060102-150405"))
}

// Create archives srcDir into a zstd-compressed tarball at archivePath,
// creating parent directories as needed. The archive itself is never
// included, even when archivePath sits inside srcDir.
func Create(srcDir, archivePath string, opts ...Option) (Info, error) {
	o := options{exclude: append([]string(nil), defaultExcludes...)}
	for _, fn := range opts {
		fn(&o)
	}

	absSrc, err := filepath.Abs(srcDir)
	if err != nil {
		return Info{}, fmt.Errorf("resolving source %q: %w", srcDir, err)
	}
	absArchive, err := filepath.Abs(archivePath)
	if err != nil {
		return Info{}, fmt.Errorf("resolving archive path %q: %w", archivePath, err)
	}

	if fi, err := os.Stat(absSrc); err != nil {
		return Info{}, fmt.Errorf("inspecting source %q: %w", srcDir, err)
	} else if !fi.IsDir() {
		return Info{}, fmt.Errorf("source %q is not a directory", srcDir)
	}

	if err := os.MkdirAll(filepath.Dir(absArchive), 0o755); err != nil {
		return Info{}, fmt.Errorf("creating archive directory: %w", err)
	}
	f, err := os.Create(absArchive)
	if err != nil {
		return Info{}, fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return Info{}, fmt.Errorf("initializing zstd writer: %w", err)
	}
	tw := tar.NewWriter(enc)

	var info Info
	walkErr := filepath.WalkDir(absSrc, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == absArchive {
			return nil
		}
		rel, err := filepath.Rel(absSrc, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && excluded(d.Name(), o.exclude) {
			return fs.SkipDir
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() && !fi.IsDir() {
			slog.Debug("skipping irregular file in snapshot", "path", rel)
			return nil
		}

		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if fi.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("archiving %s: %w", rel, err)
		}
		info.Files++
		return nil
	})
	if walkErr != nil {
		tw.Close()
		enc.Close()
		return Info{}, walkErr
	}

	if err := tw.Close(); err != nil {
		return Info{}, fmt.Errorf("finishing tar stream: %w", err)
	}
	if err := enc.Close(); err != nil {
		return Info{}, fmt.Errorf("finishing zstd stream: %w", err)
	}
	if err := f.Close(); err != nil {
		return Info{}, fmt.Errorf("closing archive: %w", err)
	}

	fi, err := os.Stat(absArchive)
	if err != nil {
		return Info{}, err
	}
	info.Size = fi.Size()
	return info, nil
}

// Extract unpacks an archive created by Create into targetDir. Entries
// that would escape targetDir are rejected.
func Extract(archivePath, targetDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("initializing zstd reader: %w", err)
	}
	defer dec.Close()

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		targetPath := filepath.Join(targetDir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(filepath.Clean(targetPath), filepath.Clean(targetDir)+string(filepath.Separator)) {
			return fmt.Errorf("archive entry %q escapes target directory", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return err
			}
			out, err := os.Create(targetPath)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("extracting %s: %w", hdr.Name, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
			if err := os.Chmod(targetPath, os.FileMode(hdr.Mode)); err != nil {
				slog.Warn("failed to restore file mode", "path", hdr.Name, "error", err)
			}
		default:
			slog.Debug("skipping unsupported archive entry", "path", hdr.Name, "type", hdr.Typeflag)
		}
	}
}

func excluded(name string, excludes []string) bool {
	for _, e := range excludes {
		if name == e {
			return true
		}
	}
	return false
}
