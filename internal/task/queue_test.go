package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueLifecycle(t *testing.T) {
	q := NewQueue()

	added, err := q.Add("Generate contract", "contract")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, added.Status)
	assert.Equal(t, "contract", added.ID)

	require.NoError(t, q.Start("contract"))
	got, ok := q.Get("contract")
	require.True(t, ok)
	assert.Equal(t, StatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)

	require.NoError(t, q.Done("contract"))
	got, _ = q.Get("contract")
	assert.Equal(t, StatusDone, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestQueueDuplicateID(t *testing.T) {
	q := NewQueue()
	_, err := q.Add("Generate code", "code")
	require.NoError(t, err)

	_, err = q.Add("Generate code again", "code")
	var dup *DuplicateIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "code", dup.ID)
}

func TestQueueStartRequiresPending(t *testing.T) {
	q := NewQueue()
	_, err := q.Add("Validate", "validate")
	require.NoError(t, err)
	require.NoError(t, q.Start("validate"))

	err = q.Start("validate")
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StatusRunning, invalid.From)
}

func TestQueueUnknownID(t *testing.T) {
	q := NewQueue()
	var notFound *NotFoundError

	require.ErrorAs(t, q.Start("missing"), &notFound)
	require.ErrorAs(t, q.Done("missing"), &notFound)
	require.ErrorAs(t, q.Fail("missing", "boom"), &notFound)
	require.ErrorAs(t, q.Skip("missing"), &notFound)
}

func TestQueueDoubleCompletionIsNoOp(t *testing.T) {
	q := NewQueue()
	_, err := q.Add("Install dependencies", "deps")
	require.NoError(t, err)
	require.NoError(t, q.Start("deps"))
	require.NoError(t, q.Fail("deps", "npm install exited 1"))

	// A second completion must not error and must not overwrite the
	// recorded outcome.
	require.NoError(t, q.Done("deps"))
	require.NoError(t, q.Fail("deps", "other"))

	got, _ := q.Get("deps")
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "npm install exited 1", got.Error)
}

func TestQueueFinalizesPendingTasks(t *testing.T) {
	q := NewQueue()
	_, err := q.Add("Validate", "validate")
	require.NoError(t, err)
	_, err = q.Add("Deploy", "deploy")
	require.NoError(t, err)

	// Fail and Skip work directly from pending so an aborted session can
	// finalize steps it never reached.
	require.NoError(t, q.Fail("validate", "session cancelled"))
	require.NoError(t, q.Skip("deploy"))

	got, _ := q.Get("validate")
	assert.Equal(t, StatusFailed, got.Status)
	got, _ = q.Get("deploy")
	assert.Equal(t, StatusSkipped, got.Status)

	// Done from pending is still invalid: the task never ran.
	_, err = q.Add("Report", "report")
	require.NoError(t, err)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, q.Done("report"), &invalid)
}

// Statuses must only ever move forward: pending → running → terminal.
// No sequence of queue calls may return a task to an earlier status.
func TestQueueStatusMonotonicity(t *testing.T) {
	rank := map[Status]int{
		StatusPending: 0,
		StatusRunning: 1,
		StatusDone:    2,
		StatusFailed:  2,
		StatusSkipped: 2,
	}

	q := NewQueue()
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		_, err := q.Add("step "+id, id)
		require.NoError(t, err)
	}

	observed := map[string][]Status{}
	record := func() {
		for _, tk := range q.Snapshot().Tasks {
			history := observed[tk.ID]
			if len(history) == 0 || history[len(history)-1] != tk.Status {
				observed[tk.ID] = append(history, tk.Status)
			}
		}
	}

	record()
	// Exercise every transition style, including invalid and duplicate
	// calls, which must never move a task backwards.
	require.NoError(t, q.Start("a"))
	record()
	require.NoError(t, q.Done("a"))
	record()
	_ = q.Start("a")
	record()
	require.NoError(t, q.Start("b"))
	require.NoError(t, q.Fail("b", "validation failed"))
	record()
	_ = q.Done("b")
	record()
	require.NoError(t, q.Start("c"))
	require.NoError(t, q.Skip("c"))
	record()
	require.NoError(t, q.Fail("d", "never started"))
	record()

	for id, history := range observed {
		for i := 1; i < len(history); i++ {
			prev, cur := history[i-1], history[i]
			assert.Less(t, rank[prev], rank[cur],
				"task %s regressed from %s to %s", id, prev, cur)
		}
		assert.NotEqual(t, StatusPending, history[len(history)-1],
			"task %s ended pending after activity", id)
	}
}

func TestQueueSnapshotCounts(t *testing.T) {
	q := NewQueue()
	for _, id := range []string{"one", "two", "three", "four"} {
		_, err := q.Add(id, id)
		require.NoError(t, err)
	}
	require.NoError(t, q.Start("one"))
	require.NoError(t, q.Done("one"))
	require.NoError(t, q.Start("two"))
	require.NoError(t, q.Done("two"))
	require.NoError(t, q.Start("three"))
	require.NoError(t, q.Fail("three", "boom"))

	snap := q.Snapshot()
	assert.Equal(t, 2, snap.Done)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 4, snap.Total)
	require.Len(t, snap.Tasks, 4)
	assert.Equal(t, []string{"one", "two", "three", "four"},
		[]string{snap.Tasks[0].ID, snap.Tasks[1].ID, snap.Tasks[2].ID, snap.Tasks[3].ID})
}

func TestQueueSnapshotDoesNotAliasState(t *testing.T) {
	q := NewQueue()
	_, err := q.Add("Generate code", "code")
	require.NoError(t, err)

	snap := q.Snapshot()
	snap.Tasks[0].Status = StatusFailed
	snap.Tasks[0].Error = "mutated"

	got, _ := q.Get("code")
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.Error)
}

func TestQueueTimestampsUseClock(t *testing.T) {
	q := NewQueue()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }

	_, err := q.Add("Validate", "validate")
	require.NoError(t, err)
	require.NoError(t, q.Start("validate"))
	require.NoError(t, q.Done("validate"))

	got, _ := q.Get("validate")
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.StartedAt.Equal(fixed))
	assert.True(t, got.CompletedAt.Equal(fixed))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusSkipped.Terminal())
}
