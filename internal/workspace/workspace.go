// Package workspace resolves and guards the output directory an
// evolution session writes into. A session owns its output directory
// exclusively for its duration; the guard here is an advisory marker
// file, not a lock.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ownerFile marks an output directory as claimed by a running session.
const ownerFile = ".evolve-owner.json"

// Option configures workspace resolution behavior.
type Option func(*options)

type options struct {
	stateDirName  string // subdirectory name for state files (default "state")
	allowNonEmpty bool   // permit scaffolding into a populated foreign directory
}

func defaultOptions() options {
	return options{stateDirName: "state"}
}

// WithStateDirName overrides the state subdirectory name.
func WithStateDirName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.stateDirName = name
		}
	}
}

// WithAllowNonEmpty permits resolving a non-empty directory that was
// not produced by a previous session. Backs the --force CLI flag.
func WithAllowNonEmpty(allow bool) Option {
	return func(o *options) {
		o.allowNonEmpty = allow
	}
}

// Workspace is a resolved output directory plus its state subdirectory.
type Workspace struct {
	Root     string
	StateDir string

	sessionID string // set by Claim
}

// NotEmptyError reports a populated output directory with no trace of a
// previous session, which Resolve refuses to adopt.
type NotEmptyError struct {
	Root string
}

func (e *NotEmptyError) Error() string {
	return fmt.Sprintf("output directory %q is not empty and holds no previous session; pick a clean directory or pass --force", e.Root)
}

// OwnedError reports an output directory claimed by another live session.
type OwnedError struct {
	Root      string
	SessionID string
	PID       int
}

func (e *OwnedError) Error() string {
	return fmt.Sprintf("output directory %q is in use by session %s (pid %d)", e.Root, e.SessionID, e.PID)
}

// ownerRecord is the marker file payload.
type ownerRecord struct {
	SessionID string    `json:"session_id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// Resolve turns dir into an absolute workspace and applies the adoption
// rules:
//  1. A missing or empty directory is always usable.
//  2. A directory holding a previous session (owner marker or state
//     subdirectory) is usable; Claim decides whether it is free.
//  3. Any other non-empty directory is refused unless allowNonEmpty.
func Resolve(dir string, opts ...Option) (*Workspace, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	w := &Workspace{
		Root:     absDir,
		StateDir: filepath.Join(absDir, o.stateDirName),
	}

	fi, err := os.Stat(absDir)
	if errors.Is(err, os.ErrNotExist) {
		return w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("inspecting %q: %w", absDir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("output path %q is a file, not a directory", absDir)
	}

	if o.allowNonEmpty || isEmptyDir(absDir) || w.hasPreviousSession() {
		return w, nil
	}
	return nil, &NotEmptyError{Root: absDir}
}

// Claim creates the output and state directories and writes the owner
// marker. It fails with an OwnedError when another session's marker is
// present and that session's process is still alive; a marker left by a
// dead process is replaced.
func (w *Workspace) Claim(sessionID string) error {
	if err := os.MkdirAll(w.StateDir, 0o755); err != nil {
		return fmt.Errorf("creating workspace directories: %w", err)
	}

	if rec, ok := w.readOwner(); ok && rec.SessionID != sessionID {
		if pidAlive(rec.PID) {
			return &OwnedError{Root: w.Root, SessionID: rec.SessionID, PID: rec.PID}
		}
	}

	rec := ownerRecord{
		SessionID: sessionID,
		PID:       os.Getpid(),
		StartedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding owner marker: %w", err)
	}
	if err := os.WriteFile(w.ownerPath(), data, 0o644); err != nil {
		return fmt.Errorf("writing owner marker: %w", err)
	}
	w.sessionID = sessionID
	return nil
}

// Release removes the owner marker if this workspace wrote it. Markers
// owned by other sessions are left alone.
func (w *Workspace) Release() error {
	if w.sessionID == "" {
		return nil
	}
	rec, ok := w.readOwner()
	if !ok || rec.SessionID != w.sessionID {
		return nil
	}
	if err := os.Remove(w.ownerPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing owner marker: %w", err)
	}
	w.sessionID = ""
	return nil
}

// Owner returns the session ID currently recorded in the marker file,
// or empty when the directory is unclaimed.
func (w *Workspace) Owner() string {
	rec, ok := w.readOwner()
	if !ok {
		return ""
	}
	return rec.SessionID
}

func (w *Workspace) ownerPath() string {
	return filepath.Join(w.Root, ownerFile)
}

func (w *Workspace) readOwner() (ownerRecord, bool) {
	data, err := os.ReadFile(w.ownerPath())
	if err != nil {
		return ownerRecord{}, false
	}
	var rec ownerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ownerRecord{}, false
	}
	return rec, true
}

// hasPreviousSession reports whether the directory carries traces of an
// earlier run: an owner marker or a state subdirectory.
func (w *Workspace) hasPreviousSession() bool {
	return isFile(w.ownerPath()) || isDir(w.StateDir)
}

// pidAlive reports whether a process with the given pid exists. Signal 0
// probes without delivering anything.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func isEmptyDir(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) == 0
}

// isFile returns true if path exists and is a regular file.
func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// isDir returns true if path exists and is a directory.
func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// LooksLikeContractPath returns true if the string appears to be a path
// to a contract file rather than a free-form prompt. Exported so CLI
// packages share the same heuristic without duplication.
func LooksLikeContractPath(s string) bool {
	if strings.ContainsAny(s, "\n") {
		return false
	}
	switch strings.ToLower(filepath.Ext(s)) {
	case ".json", ".yaml", ".yml", ".md":
		return !strings.Contains(s, " ")
	}
	return false
}
