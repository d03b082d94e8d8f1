package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dl-alexandre/drivesync/internal/sync/diff"
	testutil "github.com/dl-alexandre/drivesync/internal/testing"
	"github.com/dl-alexandre/drivesync/internal/testing/mocks"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	fs     afero.Fs
	store  *mocks.Store
	status *testutil.StatusRecorder
	engine *Engine
}

func newFixture(t *testing.T, local map[string]testutil.LocalFile) *fixture {
	t.Helper()
	f := &fixture{
		fs:     afero.NewMemMapFs(),
		store:  mocks.NewStore(),
		status: &testutil.StatusRecorder{},
	}
	if local != nil {
		testutil.WriteTree(t, f.fs, "/src", local)
	}
	f.engine = NewEngine(f.store, Options{Fs: f.fs, Status: f.status.Func(), IgnoreFileName: ".drivesyncignore"})
	return f
}

func (f *fixture) run(req Request) RunResult {
	if req.LocalRoot == "" {
		req.LocalRoot = "/src"
	}
	if req.DestinationPath == "" {
		req.DestinationPath = "Backups/laptop"
	}
	return f.engine.Execute(context.Background(), req)
}

func (f *fixture) dest(t *testing.T) string {
	t.Helper()
	id, ok := f.store.Lookup("root", "Backups/laptop")
	require.True(t, ok, "destination should exist")
	return id
}

func kinds(actions []diff.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, string(a.Type)+" "+a.Path)
	}
	return out
}

func TestExecuteUploadsNewFile(t *testing.T) {
	f := newFixture(t, map[string]testutil.LocalFile{"a.txt": {Content: "hi", ModTime: 100}})

	res := f.run(Request{})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Completed with 1 actions.", res.Message)
	assert.Equal(t, []string{"upload a.txt"}, kinds(res.Actions))
	assert.Equal(t, Summary{Uploads: 1}, res.Summary)
	assert.Equal(t, f.dest(t), res.DestinationID)
	assert.Contains(t, f.store.Paths(res.DestinationID), "a.txt")
	assert.True(t, f.status.Contains("✅ Sync successful! Total actions: 1 (Upload/Update: 1, Delete: 0)"))
}

func TestExecuteIsIdempotent(t *testing.T) {
	f := newFixture(t, map[string]testutil.LocalFile{
		"a.txt":       {Content: "a", ModTime: 100},
		"docs/":       {ModTime: 100},
		"docs/b.md":   {Content: "b", ModTime: 200},
		"docs/empty/": {ModTime: 100},
	})

	first := f.run(Request{})
	require.True(t, first.Success, first.Message)
	f.store.ResetCalls()

	second := f.run(Request{})

	require.True(t, second.Success, second.Message)
	assert.Equal(t, MessageNoChanges, second.Message)
	assert.Empty(t, second.Actions)
	assert.Zero(t, f.store.Mutations())
	assert.True(t, f.status.Contains("✅ Sync successful! No changes required."))
}

func TestExecuteUploadsIntoExistingFolder(t *testing.T) {
	f := newFixture(t, map[string]testutil.LocalFile{
		"x/":      {ModTime: 100},
		"x/a.txt": {Content: "a", ModTime: 100},
	})
	first := f.run(Request{})
	require.True(t, first.Success, first.Message)
	dest := f.dest(t)
	xID, ok := f.store.Lookup(dest, "x")
	require.True(t, ok)

	testutil.WriteTree(t, f.fs, "/src", map[string]testutil.LocalFile{
		"x/b.txt":     {Content: "b", ModTime: 200},
		"x/new/":      {ModTime: 200},
		"x/new/c.txt": {Content: "c", ModTime: 200},
	})
	second := f.run(Request{})

	require.True(t, second.Success, second.Message)
	assert.Equal(t, []string{"upload x/b.txt", "create_folder x/new", "upload x/new/c.txt"}, kinds(second.Actions))
	paths := f.store.Paths(dest)
	assert.Equal(t, []string{"x", "x/a.txt", "x/b.txt", "x/new", "x/new/c.txt"}, mocks.SortedPaths(paths))
	assert.Equal(t, []string{xID}, paths["x/b.txt"].Parents)
	assert.Equal(t, []string{xID}, paths["x/new"].Parents)

	f.store.ResetCalls()
	third := f.run(Request{})

	require.True(t, third.Success, third.Message)
	assert.Equal(t, MessageNoChanges, third.Message)
	assert.Empty(t, third.Actions)
	assert.Zero(t, f.store.Mutations())
}

func TestExecuteUpdatesNewerFile(t *testing.T) {
	f := newFixture(t, map[string]testutil.LocalFile{"a.txt": {Content: "new", ModTime: 200}})
	dest := f.store.AddFolder("laptop", f.store.AddFolder("Backups", "root"))
	r1 := f.store.AddFile("a.txt", dest, time.Unix(100, 0))

	res := f.run(Request{})

	require.True(t, res.Success, res.Message)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, diff.ActionUpdate, res.Actions[0].Type)
	assert.Equal(t, r1, res.Actions[0].RemoteID())
	node, _ := f.store.Node(r1)
	assert.Equal(t, "/src/a.txt", node.LocalPath)
}

func TestExecuteDeletesOrphan(t *testing.T) {
	f := newFixture(t, map[string]testutil.LocalFile{"keep/": {ModTime: 1}})
	dest := f.store.AddFolder("laptop", f.store.AddFolder("Backups", "root"))
	f.store.AddFolder("keep", dest)
	r9 := f.store.AddFile("old.txt", dest, time.Unix(1, 0))

	res := f.run(Request{})

	require.True(t, res.Success, res.Message)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, diff.ActionDelete, res.Actions[0].Type)
	assert.Equal(t, r9, res.Actions[0].RemoteID())
	_, exists := f.store.Node(r9)
	assert.False(t, exists)
	assert.Equal(t, "Completed with 1 actions.", res.Message)
}

func TestExecuteDryRunCreatesNothing(t *testing.T) {
	f := newFixture(t, map[string]testutil.LocalFile{"x/y/a.txt": {Content: "a", ModTime: 50}})

	res := f.run(Request{DryRun: true})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Simulated with 1 actions.", res.Message)
	assert.Equal(t, []string{"create_folder x", "create_folder x/y", "upload x/y/a.txt"}, kinds(res.Actions))
	assert.Equal(t, Summary{Folders: 2, Uploads: 1}, res.Summary)
	assert.Zero(t, f.store.Mutations())
	assert.Equal(t, "dryrun:laptop", res.DestinationID)
	assert.True(t, f.status.Contains("[DRY RUN] Creating remote folder: x/y"))
}

func TestExecuteDryRunMatchesLivePlan(t *testing.T) {
	local := map[string]testutil.LocalFile{
		"a.txt":     {Content: "a", ModTime: 500},
		"new/":      {ModTime: 1},
		"new/n.txt": {Content: "n", ModTime: 1},
	}
	seed := func(store *mocks.Store) {
		dest := store.AddFolder("laptop", store.AddFolder("Backups", "root"))
		store.AddFile("a.txt", dest, time.Unix(100, 0))
		gone := store.AddFolder("gone", dest)
		store.AddFile("inner.txt", gone, time.Unix(1, 0))
	}

	dry := newFixture(t, local)
	seed(dry.store)
	live := newFixture(t, local)
	seed(live.store)

	dryRes := dry.run(Request{DryRun: true})
	liveRes := live.run(Request{})

	require.True(t, dryRes.Success)
	require.True(t, liveRes.Success)
	assert.Equal(t, kinds(liveRes.Actions), kinds(dryRes.Actions))
	assert.Equal(t, liveRes.Summary, dryRes.Summary)
	assert.Equal(t, []string{
		"update a.txt",
		"create_folder new",
		"upload new/n.txt",
		"delete gone/inner.txt",
		"delete gone",
	}, kinds(liveRes.Actions))
	assert.Zero(t, dry.store.Mutations())
}

func TestExecuteShareWithoutSync(t *testing.T) {
	f := newFixture(t, nil)

	res := f.run(Request{LocalRoot: "/missing", ShareEmail: "svc@example.com"})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Share completed for svc@example.com. Local file sync skipped: '/missing' is not a directory.", res.Message)
	assert.Len(t, f.store.CallsTo(mocks.OpListChildren), 2, "only the two destination lookups, no indexing")
	assert.Equal(t, []string{"svc@example.com"}, principals(f.store, res.DestinationID))
}

func TestExecuteMissingLocalRootFails(t *testing.T) {
	f := newFixture(t, nil)

	res := f.run(Request{LocalRoot: "/missing"})

	assert.False(t, res.Success)
	assert.False(t, res.Cancelled)
	assert.Equal(t, "Sync failed: Local source path '/missing' does not exist or is not a directory.", res.Message)
	assert.Equal(t, utils.ErrCodeInvalidPath, utils.ErrorCode(res.Err))
}

func TestExecuteShareIsIdempotent(t *testing.T) {
	f := newFixture(t, map[string]testutil.LocalFile{"a.txt": {ModTime: 1}})
	dest := f.store.AddFolder("laptop", f.store.AddFolder("Backups", "root"))
	f.store.AddGrant(dest, "svc@example.com", "writer")

	res := f.run(Request{ShareEmail: "svc@example.com"})

	require.True(t, res.Success, res.Message)
	assert.Empty(t, f.store.CallsTo(mocks.OpGrantPermission))
	assert.True(t, f.status.Contains("already has write access"))
}

func TestExecuteFailedShareStillSyncs(t *testing.T) {
	f := newFixture(t, map[string]testutil.LocalFile{"a.txt": {ModTime: 1}})
	f.store.FailOn(mocks.OpGrantPermission, errors.New("sharing disabled"))

	res := f.run(Request{ShareEmail: "svc@example.com"})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Completed with 1 actions.", res.Message)
	assert.True(t, f.status.Contains("❌ Failed to share folder with svc@example.com"))
}

func TestExecuteCancelledMidRun(t *testing.T) {
	f := newFixture(t, map[string]testutil.LocalFile{
		"a.txt": {ModTime: 1},
		"b.txt": {ModTime: 1},
		"c.txt": {ModTime: 1},
	})
	ctx, cancel := context.WithCancel(context.Background())
	f.store.Hook = func(op string, args ...string) error {
		if op == mocks.OpUploadFile {
			cancel()
		}
		return nil
	}

	res := f.engine.Execute(ctx, Request{LocalRoot: "/src", DestinationPath: "Backups/laptop"})

	assert.False(t, res.Success)
	assert.True(t, res.Cancelled)
	assert.Equal(t, MessageCancelled, res.Message)
	assert.Len(t, f.store.CallsTo(mocks.OpUploadFile), 1, "work done before the stop is kept")
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	f := newFixture(t, map[string]testutil.LocalFile{"a.txt": {ModTime: 1}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.engine.Execute(ctx, Request{LocalRoot: "/src", DestinationPath: "Backups"})

	assert.True(t, res.Cancelled)
	assert.Empty(t, f.store.Calls())
}

func TestExecuteFatalErrors(t *testing.T) {
	tests := []struct {
		name string
		op   string
		code string
	}{
		{"authentication", mocks.OpAuthenticate, utils.ErrCodeUnknown},
		{"destination", mocks.OpCreateFolder, utils.ErrCodeDestinationUnresolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]testutil.LocalFile{"a.txt": {ModTime: 1}})
			f.store.FailOn(tt.op, errors.New("boom"))

			res := f.run(Request{})

			assert.False(t, res.Success)
			assert.False(t, res.Cancelled)
			assert.Contains(t, res.Message, "Sync failed: ")
			assert.Equal(t, tt.code, utils.ErrorCode(res.Err))
			assert.Empty(t, f.store.CallsTo(mocks.OpUploadFile))
		})
	}
}

func TestExecuteListingFailureIsFatal(t *testing.T) {
	f := newFixture(t, map[string]testutil.LocalFile{"a.txt": {ModTime: 1}})
	dest := f.store.AddFolder("laptop", f.store.AddFolder("Backups", "root"))
	f.store.Hook = func(op string, args ...string) error {
		if op == mocks.OpListChildren && args[0] == dest {
			return errors.New("backend error")
		}
		return nil
	}

	res := f.run(Request{})

	assert.False(t, res.Success)
	assert.Equal(t, utils.ErrCodeListingFailed, utils.ErrorCode(res.Err))
	assert.Equal(t, "Sync failed: Error listing remote files: backend error", res.Message)
	assert.Zero(t, f.store.Mutations())
}

func TestExecuteReportsItemFailures(t *testing.T) {
	f := newFixture(t, map[string]testutil.LocalFile{
		"a.txt": {ModTime: 1},
		"b.txt": {ModTime: 1},
	})
	f.store.Hook = func(op string, args ...string) error {
		if op == mocks.OpUploadFile && args[1] == "a.txt" {
			return errors.New("quota")
		}
		return nil
	}

	res := f.run(Request{})

	require.True(t, res.Success)
	assert.Equal(t, Summary{Uploads: 2, Failures: 1}, res.Summary)
	assert.Equal(t, "Completed with 2 actions (1 failed).", res.Message)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "a.txt", res.Failures[0].Action.Path)
}

func TestExecuteHonorsIgnoreFile(t *testing.T) {
	f := newFixture(t, map[string]testutil.LocalFile{
		".drivesyncignore": {Content: "*.log\ncache/\n", ModTime: 1},
		"a.txt":            {ModTime: 1},
		"debug.log":        {ModTime: 1},
		"cache/blob":       {ModTime: 1},
	})
	dest := f.store.AddFolder("laptop", f.store.AddFolder("Backups", "root"))
	f.store.AddFile("remote-only.log", dest, time.Unix(1, 0))

	res := f.run(Request{})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{"upload a.txt"}, kinds(res.Actions))
	assert.Contains(t, f.store.Paths(dest), "remote-only.log", "excluded remote paths are never deleted")
}

func TestSummaryMessage(t *testing.T) {
	assert.Equal(t, MessageNoChanges, Summary{}.Message(false))
	assert.Equal(t, "Simulated with 3 actions.", Summary{Uploads: 1, Updates: 1, Deletes: 1}.Message(true))
	assert.Equal(t, "Completed with 0 actions.", Summary{Folders: 2}.Message(false))
	assert.Equal(t, 3, Summary{Folders: 4, Uploads: 2, Deletes: 1}.Total())
}

func principals(store *mocks.Store, id string) []string {
	var out []string
	for _, g := range store.Grants(id) {
		out = append(out, g.Principal)
	}
	return out
}
