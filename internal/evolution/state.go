package evolution

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/evolvehq/evolve/internal/task"
)

// Session status values recorded in the state snapshot.
const (
	StateRunning = "running"
	StateSuccess = "success"
	StateFailed  = "failed"
)

// StateFileName is the snapshot written under <output_dir>/state.
const StateFileName = "evolution-state.json"

// State mirrors a session's progress for external inspection and resume
// tooling. It is advisory: the in-memory loop never reads it back.
type State struct {
	Status        string        `json:"status"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Iteration     int           `json:"iteration"`
	MaxIterations int           `json:"max_iterations"`
	Result        Result        `json:"result"`
	Tasks         task.Snapshot `json:"tasks"`
}

// LoadState reads the snapshot last written for outputDir.
func LoadState(outputDir string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, "state", StateFileName))
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing state snapshot: %w", err)
	}
	return &st, nil
}

// writeState persists the snapshot after an iteration or at session
// end. Failures are logged and swallowed: the snapshot serves outside
// observers, the loop never depends on it.
func (m *Manager) writeState(r *run, status string) {
	st := State{
		Status:        status,
		UpdatedAt:     time.Now().UTC(),
		Iteration:     r.iteration,
		MaxIterations: m.maxIterations,
		Result:        *r.result(status == StateSuccess),
		Tasks:         r.queue.Snapshot(),
	}
	dir := filepath.Join(r.req.OutputDir, "state")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("creating state directory", "dir", dir, "error", err)
		return
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		slog.Warn("encoding state snapshot", "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, StateFileName), append(data, '\n'), 0o644); err != nil {
		slog.Warn("writing state snapshot", "error", err)
	}
}
