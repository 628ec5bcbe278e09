package guard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romiluz13/memory-engineering/pkg/store"
)

func newTestTracker(t *testing.T) (*Tracker, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{
		Path:      filepath.Join(t.TempDir(), "guard.db"),
		Dimension: 4,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewTracker(st, zerolog.Nop()), st
}

func TestRecordFirstCall(t *testing.T) {
	tr, _ := newTestTracker(t)

	obs, err := tr.Record(context.Background(), "proj", "implement-auth")
	require.NoError(t, err)
	assert.Equal(t, 1, obs.State.CallCount)
	assert.Equal(t, store.StatusPlanning, obs.State.Status)
	assert.Len(t, obs.State.ExecutionID, executionIDLength)
	assert.False(t, obs.Repeated)
	assert.False(t, obs.Resumed)
}

func TestRecordFlagsRepeatsInsideWindow(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	var obs *Observation
	var err error
	for i := 0; i < RepeatThreshold; i++ {
		obs, err = tr.Record(ctx, "proj", "implement-auth")
		require.NoError(t, err)
		assert.False(t, obs.Repeated, "call %d should stay under the threshold", i+1)
	}

	obs, err = tr.Record(ctx, "proj", "implement-auth")
	require.NoError(t, err)
	assert.True(t, obs.Repeated)
	assert.Equal(t, RepeatThreshold+1, obs.State.CallCount)
	assert.True(t, obs.Resumed)
}

func TestRecordResetsAfterIdleGap(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	now := time.Now()
	tr.now = func() time.Time { return now }
	first, err := tr.Record(ctx, "proj", "implement-auth")
	require.NoError(t, err)

	tr.now = func() time.Time { return now.Add(RepeatWindow + time.Minute) }
	second, err := tr.Record(ctx, "proj", "implement-auth")
	require.NoError(t, err)
	assert.Equal(t, 1, second.State.CallCount)
	assert.NotEqual(t, first.State.ExecutionID, second.State.ExecutionID)
	assert.False(t, second.Resumed)
}

func TestRecordStartsFreshAfterTerminal(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	first, err := tr.Record(ctx, "proj", "implement-auth")
	require.NoError(t, err)
	_, err = tr.Advance(ctx, "proj", "implement-auth", store.StatusComplete, "shipped")
	require.NoError(t, err)

	second, err := tr.Record(ctx, "proj", "implement-auth")
	require.NoError(t, err)
	assert.Equal(t, 1, second.State.CallCount)
	assert.NotEqual(t, first.State.ExecutionID, second.State.ExecutionID)
}

func TestTasksTrackIndependently(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.Record(ctx, "proj", "task-a")
	require.NoError(t, err)
	obs, err := tr.Record(ctx, "proj", "task-b")
	require.NoError(t, err)
	assert.Equal(t, 1, obs.State.CallCount)

	obs, err = tr.Record(ctx, "other", "task-a")
	require.NoError(t, err)
	assert.Equal(t, 1, obs.State.CallCount)
}

func TestAdvanceRecordsStepsAndBlocksTerminal(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.Record(ctx, "proj", "migrate-db")
	require.NoError(t, err)

	state, err := tr.Advance(ctx, "proj", "migrate-db", store.StatusExecuting, "schema created")
	require.NoError(t, err)
	assert.Equal(t, []string{"schema created"}, state.CompletedSteps)

	_, err = tr.Advance(ctx, "proj", "migrate-db", store.StatusComplete, "data copied")
	require.NoError(t, err)

	_, err = tr.Advance(ctx, "proj", "migrate-db", store.StatusExecuting, "again")
	require.Error(t, err)
}

func TestAdvanceRejectsUnknownStatus(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.Record(ctx, "proj", "migrate-db")
	require.NoError(t, err)

	_, err = tr.Advance(ctx, "proj", "migrate-db", "paused", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paused")

	state, err := tr.Status(ctx, "proj", "migrate-db")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPlanning, state.Status)
}

func TestStatusNotFound(t *testing.T) {
	tr, _ := newTestTracker(t)
	_, err := tr.Status(context.Background(), "proj", "never-called")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJanitorSweep(t *testing.T) {
	tr, st := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.Record(ctx, "proj", "done-task")
	require.NoError(t, err)
	_, err = tr.Advance(ctx, "proj", "done-task", store.StatusFailed, "")
	require.NoError(t, err)

	j := NewJanitor(st, zerolog.Nop())

	// Retention has not elapsed, so the row survives.
	require.NoError(t, j.Sweep(ctx))
	_, err = tr.Status(ctx, "proj", "done-task")
	require.NoError(t, err)

	// With zero retention the terminal row is purged.
	n, err := st.PurgeTerminalExecutions(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = tr.Status(ctx, "proj", "done-task")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
