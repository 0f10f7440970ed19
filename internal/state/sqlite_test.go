package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/leapbuild/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	for _, table := range []string{"runs", "project_runs"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s should exist", table)
		_ = rows.Close()
	}

	version, err := store.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// Migrating again is a no-op.
	assert.NoError(t, store.InitSchema())
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	require.NoError(t, store.InitSchema())
	run, err := store.CreateRun(context.Background(), "dev")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore(nil)
	require.NoError(t, reopened.Open(path))
	defer reopened.Close()
	require.NoError(t, reopened.InitSchema())

	got, err := reopened.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "dev", got.Environment)
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	run, err := store.CreateRun(ctx, "staging")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "staging", got.Environment)
	assert.Nil(t, got.CompletedAt)
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Microsecond)

	require.NoError(t, store.CompleteRun(ctx, run.ID, RunStatusFailed, "evaluate project \"core\": boom"))

	got, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "boom")
	require.NotNil(t, got.CompletedAt)

	assert.Error(t, store.CompleteRun(ctx, "missing", RunStatusCompleted, ""))
	_, err = store.GetRun(ctx, "missing")
	assert.ErrorContains(t, err, "run not found")
}

func TestSQLiteStore_ProjectRuns(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	run, err := store.CreateRun(ctx, "dev")
	require.NoError(t, err)

	now := time.Now()
	records := []*ProjectRun{
		{RunID: run.ID, Project: "utils", OutputDir: "/b/utils", Status: ProjectRunStatusDone, StartedAt: now, DurationMS: 12},
		{RunID: run.ID, Project: "core", OutputDir: "/b/core", Status: ProjectRunStatusFailed, StartedAt: now, DurationMS: 3, Error: "boom"},
	}
	for _, pr := range records {
		require.NoError(t, store.RecordProjectRun(ctx, pr))
	}

	got, err := store.GetProjectRuns(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "utils", got[0].Project)
	assert.Equal(t, ProjectRunStatusDone, got[0].Status)
	assert.Equal(t, int64(12), got[0].DurationMS)
	assert.Empty(t, got[0].Error)
	assert.Equal(t, "core", got[1].Project)
	assert.Equal(t, "boom", got[1].Error)

	err = store.RecordProjectRun(ctx, &ProjectRun{RunID: "no-such-run", Project: "x", StartedAt: now})
	assert.Error(t, err, "foreign key should reject unknown run ids")
}

func TestSQLiteStore_ListAndPrune(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	var ids []string
	for i := 0; i < 4; i++ {
		run, err := store.CreateRun(ctx, "dev")
		require.NoError(t, err)
		require.NoError(t, store.RecordProjectRun(ctx, &ProjectRun{
			RunID: run.ID, Project: "app", OutputDir: "/b/app", Status: ProjectRunStatusDone, StartedAt: run.StartedAt,
		}))
		ids = append(ids, run.ID)
		time.Sleep(time.Millisecond)
	}

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	assert.Equal(t, ids[3], runs[0].ID, "newest first")

	require.NoError(t, store.PruneRuns(ctx, 2))
	runs, err = store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, []string{ids[3], ids[2]}, []string{runs[0].ID, runs[1].ID})

	orphans, err := store.GetProjectRuns(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, orphans, "project runs cascade with their run")
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	_, err := store.CreateRun(context.Background(), "dev")
	assert.ErrorContains(t, err, "database not opened")
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_CreateRunExecFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(sqlmock.AnyArg(), "dev", "running", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))

	store := NewSQLiteStoreWithDB(db, testutil.NewTestLogger(t))
	_, err = store.CreateRun(context.Background(), "dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create run")
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_CompleteRunNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE runs SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewSQLiteStoreWithDB(db, nil)
	err = store.CompleteRun(context.Background(), "ghost", RunStatusCompleted, "")
	assert.ErrorContains(t, err, "run not found: ghost")
	assert.NoError(t, mock.ExpectationsWereMet())
}
