package scanner

import (
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/remote"
	"github.com/dl-alexandre/drivesync/internal/resolver"
	"github.com/dl-alexandre/drivesync/internal/utils"
)

// RemoteIndexer lists a remote folder tree
type RemoteIndexer struct {
	store  remote.Store
	status logging.StatusFunc
	logger logging.Logger
}

// NewRemoteIndexer creates an indexer over store
func NewRemoteIndexer(store remote.Store, status logging.StatusFunc, logger logging.Logger) *RemoteIndexer {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &RemoteIndexer{store: store, status: status, logger: logger}
}

type rawItem struct {
	remote.Item
	listedUnder string
}

// Index lists everything below rootID and keys it by relative path. A
// dry-run placeholder root is empty by definition.
//
// Each item is attached to a single parent: the first of its parents that
// belongs to the listed tree. Items appearing under several listed folders
// are kept once, under the first folder they were found in.
func (s *RemoteIndexer) Index(ctx context.Context, rootID string) (map[string]RemoteEntry, error) {
	entries := make(map[string]RemoteEntry)
	if resolver.IsPlaceholder(rootID) {
		s.printListing(entries)
		return entries, nil
	}

	items, err := s.listTree(ctx, rootID)
	if err != nil {
		return nil, err
	}

	paths := reconstructPaths(rootID, items, s.warnf)
	for _, it := range items {
		rel, ok := paths[it.ID]
		if !ok {
			continue
		}
		entries[rel] = RemoteEntry{
			RelativePath: rel,
			ID:           it.ID,
			ParentID:     parentOf(it, paths, rootID),
			IsDir:        it.IsFolder,
			ModTime:      ParseRemoteTime(it.ModifiedTime),
			ModifiedTime: it.ModifiedTime,
		}
	}

	s.printListing(entries)
	return entries, nil
}

// listTree collects every item below rootID, breadth first, following
// continuation tokens until each listing is exhausted
func (s *RemoteIndexer) listTree(ctx context.Context, rootID string) ([]rawItem, error) {
	var items []rawItem
	seen := map[string]bool{rootID: true}
	queue := []string{rootID}

	for len(queue) > 0 {
		folderID := queue[0]
		queue = queue[1:]

		token := ""
		for {
			if err := utils.CheckContext(ctx); err != nil {
				return nil, err
			}
			page, err := s.store.ListChildren(ctx, remote.Query{ParentID: folderID, PageToken: token})
			if err != nil {
				return nil, listingFailed(folderID, err)
			}
			for _, it := range page.Items {
				if seen[it.ID] {
					continue
				}
				seen[it.ID] = true
				items = append(items, rawItem{Item: it, listedUnder: folderID})
				if it.IsFolder {
					queue = append(queue, it.ID)
				}
			}
			if page.NextPageToken == "" {
				break
			}
			token = page.NextPageToken
		}
	}

	return items, nil
}

// reconstructPaths maps item ids to relative paths by walking parent links.
// It repeats until no further item resolves, so listing order does not
// matter and cycles cannot loop forever. Items that never resolve are
// reported through warnf and left out.
func reconstructPaths(rootID string, items []rawItem, warnf func(string, ...interface{})) map[string]string {
	known := make(map[string]bool, len(items)+1)
	known[rootID] = true
	for _, it := range items {
		known[it.ID] = true
	}

	parent := make(map[string]string, len(items))
	for _, it := range items {
		p := it.listedUnder
		for _, candidate := range it.Parents {
			if known[candidate] {
				p = candidate
				break
			}
		}
		if len(it.Parents) > 1 {
			warnf("⚠️  '%s' has %d parents; using %s", it.Name, len(it.Parents), p)
		}
		parent[it.ID] = p
	}

	idToPath := map[string]string{rootID: ""}
	pending := append([]rawItem(nil), items...)
	for len(pending) > 0 {
		var next []rawItem
		for _, it := range pending {
			parentPath, ok := idToPath[parent[it.ID]]
			if !ok {
				next = append(next, it)
				continue
			}
			rel := it.Name
			if parentPath != "" {
				rel = path.Join(parentPath, it.Name)
			}
			idToPath[it.ID] = rel
		}
		if len(next) == len(pending) {
			for _, it := range next {
				warnf("⚠️  Skipping remote item '%s' (%s): its parent is outside the destination", it.Name, it.ID)
			}
			break
		}
		pending = next
	}

	delete(idToPath, rootID)
	return idToPath
}

func parentOf(it rawItem, paths map[string]string, rootID string) string {
	for _, p := range it.Parents {
		if _, ok := paths[p]; ok || p == rootID {
			return p
		}
	}
	return it.listedUnder
}

// printListing emits the diagnostic view of the remote tree
func (s *RemoteIndexer) printListing(entries map[string]RemoteEntry) {
	s.status.Printf("\n--- Current Remote Files in Destination Folder ---")
	if len(entries) == 0 {
		s.status.Printf("   (Folder is empty)")
	} else {
		paths := make([]string, 0, len(entries))
		for p := range entries {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			e := entries[p]
			kind := "[File]"
			if e.IsDir {
				kind = "[Folder]"
			}
			s.status.Printf("   %s %s (Modified: %s)", kind, p, FormatDisplayTime(e.ModTime))
		}
	}
	s.status.Printf("--------------------------------------------------")
}

func (s *RemoteIndexer) warnf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	s.status.Printf("%s", line)
	s.logger.Warn(line)
}

func listingFailed(folderID string, err error) error {
	if utils.IsCancelled(err) {
		return err
	}
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeListingFailed,
		fmt.Sprintf("Error listing remote files: %v", err)).
		WithContext("folderId", folderID).
		WithContext("cause", utils.ErrorCode(err)).
		Build(), err)
}

// ParseRemoteTime converts an RFC 3339 timestamp, with or without fractional
// seconds, to epoch seconds. Unparseable input yields 0.
func ParseRemoteTime(s string) int64 {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0
	}
	return t.Unix()
}

// FormatDisplayTime renders epoch seconds in local time for status lines
func FormatDisplayTime(sec int64) string {
	return time.Unix(sec, 0).Format(utils.DisplayTimeLayout)
}
