package workspace

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeOwner(t *testing.T, root, sessionID string, pid int) {
	t.Helper()
	data, err := json.Marshal(ownerRecord{SessionID: sessionID, PID: pid, StartedAt: time.Now().UTC()})
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, ownerFile), string(data))
}

func TestResolve_MissingDirIsUsable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	w, err := Resolve(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Root != dir {
		t.Errorf("Root = %q, want %q", w.Root, dir)
	}
	if w.StateDir != filepath.Join(dir, "state") {
		t.Errorf("StateDir = %q, want %q", w.StateDir, filepath.Join(dir, "state"))
	}
}

func TestResolve_EmptyDirIsUsable(t *testing.T) {
	dir := t.TempDir()

	if _, err := Resolve(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolve_RefusesForeignNonEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "README.md"), "somebody else's project")

	_, err := Resolve(dir)
	var notEmpty *NotEmptyError
	if !errors.As(err, &notEmpty) {
		t.Fatalf("expected NotEmptyError, got %v", err)
	}
	if notEmpty.Root != dir {
		t.Errorf("Root = %q, want %q", notEmpty.Root, dir)
	}
}

func TestResolve_AllowNonEmptyOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "README.md"), "somebody else's project")

	if _, err := Resolve(dir, WithAllowNonEmpty(true)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolve_AdoptsPreviousSessionByStateDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "state", "evolution-state.json"), "{}")
	writeFile(t, filepath.Join(dir, "api", "server.js"), "module.exports = {}")

	if _, err := Resolve(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolve_AdoptsPreviousSessionByMarker(t *testing.T) {
	dir := t.TempDir()
	writeOwner(t, dir, "old-session", 0)
	writeFile(t, filepath.Join(dir, "package.json"), "{}")

	if _, err := Resolve(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolve_RefusesFilePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out")
	writeFile(t, path, "not a directory")

	_, err := Resolve(path)
	if err == nil {
		t.Fatal("expected error for file path")
	}
}

func TestResolve_StateDirNameOption(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	w, err := Resolve(dir, WithStateDirName(".evolve-state"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.StateDir != filepath.Join(dir, ".evolve-state") {
		t.Errorf("StateDir = %q, want %q", w.StateDir, filepath.Join(dir, ".evolve-state"))
	}
}

func TestClaim_CreatesDirsAndMarker(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w, err := Resolve(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Claim("session-1"); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if !isDir(w.StateDir) {
		t.Error("state directory was not created")
	}
	if got := w.Owner(); got != "session-1" {
		t.Errorf("Owner() = %q, want %q", got, "session-1")
	}
}

func TestClaim_RefusesLiveOwner(t *testing.T) {
	dir := t.TempDir()
	// Our own pid stands in for another live process.
	writeOwner(t, dir, "other-session", os.Getpid())

	w, err := Resolve(dir)
	if err != nil {
		t.Fatal(err)
	}

	err = w.Claim("mine")
	var owned *OwnedError
	if !errors.As(err, &owned) {
		t.Fatalf("expected OwnedError, got %v", err)
	}
	if owned.SessionID != "other-session" {
		t.Errorf("SessionID = %q, want %q", owned.SessionID, "other-session")
	}
}

func TestClaim_ReplacesStaleMarker(t *testing.T) {
	dir := t.TempDir()
	writeOwner(t, dir, "dead-session", 999999999)

	w, err := Resolve(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Claim("mine"); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if got := w.Owner(); got != "mine" {
		t.Errorf("Owner() = %q, want %q", got, "mine")
	}
}

func TestClaim_SameSessionReclaims(t *testing.T) {
	dir := t.TempDir()
	w, err := Resolve(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Claim("session-1"); err != nil {
		t.Fatal(err)
	}
	if err := w.Claim("session-1"); err != nil {
		t.Fatalf("reclaim by same session should succeed, got %v", err)
	}
}

func TestRelease_RemovesOwnMarker(t *testing.T) {
	dir := t.TempDir()
	w, err := Resolve(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Claim("session-1"); err != nil {
		t.Fatal(err)
	}

	if err := w.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if isFile(filepath.Join(dir, ownerFile)) {
		t.Error("owner marker should be removed")
	}
	if err := w.Release(); err != nil {
		t.Errorf("second Release() should be a no-op, got %v", err)
	}
}

func TestRelease_LeavesForeignMarker(t *testing.T) {
	dir := t.TempDir()
	writeOwner(t, dir, "other-session", 0)

	w, err := Resolve(dir)
	if err != nil {
		t.Fatal(err)
	}

	// Never claimed, so Release must not touch the marker.
	if err := w.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if !isFile(filepath.Join(dir, ownerFile)) {
		t.Error("foreign owner marker should survive Release")
	}
}

func TestLooksLikeContractPath(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"contract.json", true},
		{"specs/app.yaml", true},
		{"./contract.yml", true},
		{"docs/app.md", true},
		{"build a notes app with auth", false},
		{"make an app.", false},
		{"", false},
		{"two words.json", false},
	}
	for _, tc := range cases {
		if got := LooksLikeContractPath(tc.input); got != tc.want {
			t.Errorf("LooksLikeContractPath(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
