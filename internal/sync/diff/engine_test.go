package diff

import (
	"testing"

	"github.com/dl-alexandre/drivesync/internal/sync/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localFile(path string, mod int64) scanner.LocalEntry {
	return scanner.LocalEntry{RelativePath: path, AbsPath: "/src/" + path, ModTime: mod}
}

func localDir(path string) scanner.LocalEntry {
	return scanner.LocalEntry{RelativePath: path, AbsPath: "/src/" + path, IsDir: true}
}

func remoteFile(path, id string, mod int64) scanner.RemoteEntry {
	return scanner.RemoteEntry{RelativePath: path, ID: id, ModTime: mod}
}

func remoteDir(path, id string) scanner.RemoteEntry {
	return scanner.RemoteEntry{RelativePath: path, ID: id, IsDir: true}
}

func summarize(actions []Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, string(a.Type)+" "+a.Path)
	}
	return out
}

func TestPlanFreshDestination(t *testing.T) {
	local := map[string]scanner.LocalEntry{
		"a.txt":        localFile("a.txt", 100),
		"docs":         localDir("docs"),
		"docs/b.md":    localFile("docs/b.md", 100),
		"docs/sub":     localDir("docs/sub"),
		"docs/sub/c.y": localFile("docs/sub/c.y", 100),
	}

	actions := Plan(local, nil, nil)

	assert.Equal(t, []string{
		"upload a.txt",
		"create_folder docs",
		"upload docs/b.md",
		"create_folder docs/sub",
		"upload docs/sub/c.y",
	}, summarize(actions))
}

func TestPlanAlreadyInSync(t *testing.T) {
	local := map[string]scanner.LocalEntry{
		"a.txt": localFile("a.txt", 101),
		"docs":  localDir("docs"),
	}
	remote := map[string]scanner.RemoteEntry{
		"a.txt": remoteFile("a.txt", "f1", 100),
		"docs":  remoteDir("docs", "d1"),
	}

	assert.Empty(t, Plan(local, remote, nil))
}

func TestPlanUpdateThreshold(t *testing.T) {
	tests := []struct {
		name   string
		local  int64
		remote int64
		update bool
	}{
		{"same second", 100, 100, false},
		{"within tolerance", 101, 100, false},
		{"beyond tolerance", 102, 100, true},
		{"remote newer", 50, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions := Plan(
				map[string]scanner.LocalEntry{"f": localFile("f", tt.local)},
				map[string]scanner.RemoteEntry{"f": remoteFile("f", "id-f", tt.remote)},
				nil,
			)
			if !tt.update {
				assert.Empty(t, actions)
				return
			}
			require.Len(t, actions, 1)
			assert.Equal(t, ActionUpdate, actions[0].Type)
			assert.Equal(t, "id-f", actions[0].RemoteID())
			assert.Equal(t, "/src/f", actions[0].Local.AbsPath)
		})
	}
}

func TestPlanFoldersNeverCompareTimestamps(t *testing.T) {
	local := map[string]scanner.LocalEntry{"d": {RelativePath: "d", IsDir: true, ModTime: 9999}}
	remote := map[string]scanner.RemoteEntry{"d": {RelativePath: "d", ID: "d1", IsDir: true, ModTime: 1}}

	assert.Empty(t, Plan(local, remote, nil))
}

func TestPlanDeletesOrphansDeepestFirst(t *testing.T) {
	remote := map[string]scanner.RemoteEntry{
		"old":         remoteDir("old", "o"),
		"old/x.txt":   remoteFile("old/x.txt", "ox", 1),
		"old/sub":     remoteDir("old/sub", "os"),
		"old/sub/y":   remoteFile("old/sub/y", "osy", 1),
		"stale.txt":   remoteFile("stale.txt", "s", 1),
		"keep.txt":    remoteFile("keep.txt", "k", 1),
		"another.txt": remoteFile("another.txt", "a", 1),
	}
	local := map[string]scanner.LocalEntry{"keep.txt": localFile("keep.txt", 1)}

	actions := Plan(local, remote, nil)

	assert.Equal(t, []string{
		"delete old/sub/y",
		"delete old/sub",
		"delete old/x.txt",
		"delete another.txt",
		"delete old",
		"delete stale.txt",
	}, summarize(actions))
	assert.Equal(t, "osy", actions[0].RemoteID())
}

func TestPlanMixedRun(t *testing.T) {
	local := map[string]scanner.LocalEntry{
		"changed.txt": localFile("changed.txt", 500),
		"same.txt":    localFile("same.txt", 100),
		"new":         localDir("new"),
		"new/n.txt":   localFile("new/n.txt", 1),
	}
	remote := map[string]scanner.RemoteEntry{
		"changed.txt": remoteFile("changed.txt", "c", 100),
		"same.txt":    remoteFile("same.txt", "s", 100),
		"gone.txt":    remoteFile("gone.txt", "g", 100),
	}

	actions := Plan(local, remote, nil)

	assert.Equal(t, []string{
		"update changed.txt",
		"create_folder new",
		"upload new/n.txt",
		"delete gone.txt",
	}, summarize(actions))
	assert.Equal(t, Counts{Folders: 1, Uploads: 1, Updates: 1, Deletes: 1}, Count(actions))
}

func TestPlanProtectedPathsAreKept(t *testing.T) {
	remote := map[string]scanner.RemoteEntry{
		"debug.log":  remoteFile("debug.log", "l", 1),
		"cache":      remoteDir("cache", "c"),
		"cache/blob": remoteFile("cache/blob", "cb", 1),
		"orphan.txt": remoteFile("orphan.txt", "o", 1),
	}
	protect := func(rel string, isDir bool) bool {
		return rel == "debug.log" || (rel == "cache" && isDir) || rel == "cache/blob"
	}

	actions := Plan(nil, remote, protect)

	assert.Equal(t, []string{"delete orphan.txt"}, summarize(actions))
}

func TestPlanKindMismatchReplacesRemote(t *testing.T) {
	local := map[string]scanner.LocalEntry{
		"x":      localDir("x"),
		"x/in":   localFile("x/in", 1),
		"report": localFile("report", 1),
	}
	remote := map[string]scanner.RemoteEntry{
		"x":      remoteFile("x", "file-x", 1),
		"report": remoteDir("report", "dir-report"),
	}

	actions := Plan(local, remote, nil)

	assert.Equal(t, []string{
		"upload report",
		"create_folder x",
		"upload x/in",
		"delete report",
		"delete x",
	}, summarize(actions))
}

func TestSortForDeletion(t *testing.T) {
	paths := []string{"a", "b/c", "a/b/c", "z/y", "a/b"}

	SortForDeletion(paths)

	assert.Equal(t, []string{"a/b/c", "a/b", "b/c", "z/y", "a"}, paths)
}
