// Package task tracks the ordered steps of an evolution session and exposes
// progress snapshots for rendering.
package task

import (
	"fmt"
	"log/slog"
	"time"
)

// Status represents the lifecycle state of a tracked task.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusSkipped
}

// Task is one unit of work tracked for progress display.
type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DuplicateIDError is returned by Add when a task ID is already registered.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("task %q already exists in queue", e.ID)
}

// InvalidTransitionError is returned when a status change is not allowed
// from the task's current status.
type InvalidTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %q cannot transition from %s to %s", e.ID, e.From, e.To)
}

// NotFoundError is returned when no task with the given ID exists.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %q not found in queue", e.ID)
}

// Queue is an ordered list of tasks. It is owned by a single evolution
// session and is not safe for concurrent mutation; the evolution loop is
// the only mutator.
type Queue struct {
	tasks []*Task
	index map[string]*Task
	now   func() time.Time
}

// NewQueue returns an empty task queue.
func NewQueue() *Queue {
	return &Queue{
		index: make(map[string]*Task),
		now:   time.Now,
	}
}

// Add appends a task in pending state. The ID must be unique within the
// queue or a [DuplicateIDError] is returned.
func (q *Queue) Add(name, id string) (Task, error) {
	if _, exists := q.index[id]; exists {
		return Task{}, &DuplicateIDError{ID: id}
	}
	t := &Task{ID: id, Name: name, Status: StatusPending}
	q.tasks = append(q.tasks, t)
	q.index[id] = t
	return *t, nil
}

// Start transitions a pending task to running.
func (q *Queue) Start(id string) error {
	t, ok := q.index[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	if t.Status != StatusPending {
		return &InvalidTransitionError{ID: id, From: t.Status, To: StatusRunning}
	}
	now := q.now()
	t.Status = StatusRunning
	t.StartedAt = &now
	return nil
}

// Done transitions a running task to done. Completing an already-terminal
// task is a no-op, logged as a warning.
func (q *Queue) Done(id string) error {
	return q.finish(id, StatusDone, "")
}

// Fail transitions a pending or running task to failed, recording message.
// Pending tasks may be failed directly so the evolution loop can finalize
// steps that were never reached. Failing an already-terminal task is a
// no-op, logged as a warning.
func (q *Queue) Fail(id, message string) error {
	return q.finish(id, StatusFailed, message)
}

// Skip transitions a pending or running task to skipped. Skipping an
// already-terminal task is a no-op, logged as a warning.
func (q *Queue) Skip(id string) error {
	return q.finish(id, StatusSkipped, "")
}

func (q *Queue) finish(id string, status Status, message string) error {
	t, ok := q.index[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	if t.Status.Terminal() {
		slog.Warn("task already completed, ignoring status change",
			"task", id, "status", t.Status, "requested", status)
		return nil
	}
	// Done requires the task to have actually run; Fail and Skip may also
	// finalize tasks still pending.
	if status == StatusDone && t.Status != StatusRunning {
		return &InvalidTransitionError{ID: id, From: t.Status, To: status}
	}
	now := q.now()
	t.Status = status
	t.Error = message
	t.CompletedAt = &now
	return nil
}

// Get returns a copy of the task with the given ID.
func (q *Queue) Get(id string) (Task, bool) {
	t, ok := q.index[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Snapshot summarizes queue progress at a point in time.
type Snapshot struct {
	Done   int    `json:"done"`
	Failed int    `json:"failed"`
	Total  int    `json:"total"`
	Tasks  []Task `json:"tasks"`
}

// Snapshot returns the current progress counts along with copies of every
// task in insertion order. It never mutates queue state.
func (q *Queue) Snapshot() Snapshot {
	snap := Snapshot{
		Total: len(q.tasks),
		Tasks: make([]Task, 0, len(q.tasks)),
	}
	for _, t := range q.tasks {
		switch t.Status {
		case StatusDone:
			snap.Done++
		case StatusFailed:
			snap.Failed++
		}
		snap.Tasks = append(snap.Tasks, *t)
	}
	return snap
}
