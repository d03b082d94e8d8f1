package diff

import (
	"sort"
	"strings"

	"github.com/dl-alexandre/drivesync/internal/sync/scanner"
)

// UpdateTolerance is how many seconds a local file must be newer than its
// remote copy before it is uploaded again
const UpdateTolerance = 1

// ProtectFunc reports whether a remote path must never be deleted
type ProtectFunc func(relPath string, isDir bool) bool

// Plan computes the actions that make remote mirror local.
//
// Local entries are visited in path order, so a folder is always created
// before anything inside it. Folders are matched by path alone; files are
// updated only when the local copy is more than UpdateTolerance seconds
// newer. A path that is a folder on one side and a file on the other is
// replaced: the local entry is created and the remote one deleted.
//
// Remote entries left unmatched are deleted deepest first, then by path.
// Paths for which protect returns true are left in place.
func Plan(local map[string]scanner.LocalEntry, remote map[string]scanner.RemoteEntry, protect ProtectFunc) []Action {
	remaining := make(map[string]scanner.RemoteEntry, len(remote))
	for p, e := range remote {
		remaining[p] = e
	}

	localPaths := make([]string, 0, len(local))
	for p := range local {
		localPaths = append(localPaths, p)
	}
	sort.Strings(localPaths)

	var actions []Action
	for _, path := range localPaths {
		localEntry := local[path]
		remoteEntry, found := remaining[path]
		if found && remoteEntry.IsDir != localEntry.IsDir {
			found = false
		} else if found {
			delete(remaining, path)
		}

		switch {
		case localEntry.IsDir && !found:
			actions = append(actions, Action{Type: ActionCreateFolder, Path: path, Local: entryPtr(localEntry)})
		case localEntry.IsDir:
		case !found:
			actions = append(actions, Action{Type: ActionUpload, Path: path, Local: entryPtr(localEntry)})
		case NeedsUpdate(localEntry.ModTime, remoteEntry.ModTime):
			actions = append(actions, Action{
				Type:   ActionUpdate,
				Path:   path,
				Local:  entryPtr(localEntry),
				Remote: remotePtr(remoteEntry),
			})
		}
	}

	orphans := make([]string, 0, len(remaining))
	for p, e := range remaining {
		if protect != nil && protect(p, e.IsDir) {
			continue
		}
		orphans = append(orphans, p)
	}
	SortForDeletion(orphans)

	for _, path := range orphans {
		actions = append(actions, Action{Type: ActionDelete, Path: path, Remote: remotePtr(remaining[path])})
	}

	return actions
}

// NeedsUpdate applies the update threshold to two epoch-second timestamps
func NeedsUpdate(localModTime, remoteModTime int64) bool {
	return localModTime > remoteModTime+UpdateTolerance
}

// SortForDeletion orders paths deepest first, ties broken by path
func SortForDeletion(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		di, dj := Depth(paths[i]), Depth(paths[j])
		if di != dj {
			return di > dj
		}
		return paths[i] < paths[j]
	})
}

// Depth is the number of separators in a relative path
func Depth(path string) int {
	return strings.Count(path, "/")
}

func entryPtr(e scanner.LocalEntry) *scanner.LocalEntry {
	return &e
}

func remotePtr(e scanner.RemoteEntry) *scanner.RemoteEntry {
	return &e
}
