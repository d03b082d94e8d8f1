package history

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, clock clockwork.Clock) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", DefaultFileName), WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRecordRunAssignsIDAndTimestamps(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	db := openTestDB(t, clock)
	ctx := context.Background()

	stored, err := db.RecordRun(ctx, Run{
		LocalRoot:   "/src",
		Destination: "Backups/laptop",
		Uploads:     2,
		Deletes:     1,
		Success:     true,
		Message:     "Completed with 3 actions.",
		Actions: []Action{
			{Type: "upload", RelativePath: "a.txt"},
			{Type: "upload", RelativePath: "b.txt", Error: "quota"},
			{Type: "delete", RelativePath: "old.txt", RemoteID: "r9"},
		},
	})
	require.NoError(t, err)

	_, err = uuid.Parse(stored.ID)
	assert.NoError(t, err)
	assert.True(t, stored.StartedAt.Equal(clock.Now()))

	got, err := db.GetRun(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "Backups/laptop", got.Destination)
	assert.True(t, got.Success)
	assert.False(t, got.DryRun)
	assert.Equal(t, 2, got.Uploads)
	assert.True(t, got.FinishedAt.Equal(clock.Now()))
	require.Len(t, got.Actions, 3)
	assert.Equal(t, "quota", got.Actions[1].Error)
	assert.Equal(t, "r9", got.Actions[2].RemoteID)
}

func TestListRunsNewestFirst(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	db := openTestDB(t, clock)
	ctx := context.Background()

	for _, dest := range []string{"first", "second", "third"} {
		_, err := db.RecordRun(ctx, Run{LocalRoot: "/src", Destination: dest, DryRun: dest == "second"})
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	runs, err := db.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].Destination)
	assert.Equal(t, "second", runs[1].Destination)
	assert.True(t, runs[1].DryRun)
	assert.Empty(t, runs[0].Actions)

	all, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetRunMissing(t *testing.T) {
	db := openTestDB(t, clockwork.NewFakeClock())

	_, err := db.GetRun(context.Background(), "nope")

	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestOpenIsReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.RecordRun(context.Background(), Run{LocalRoot: "/a", Destination: "b", Cancelled: true})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Cancelled)
}
