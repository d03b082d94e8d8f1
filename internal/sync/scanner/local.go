package scanner

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/sync/exclude"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/spf13/afero"
)

// LocalIndexer walks a local tree
type LocalIndexer struct {
	fs      afero.Fs
	matcher *exclude.Matcher
	status  logging.StatusFunc
	logger  logging.Logger
}

// NewLocalIndexer creates an indexer over fs. A nil matcher excludes nothing.
func NewLocalIndexer(fs afero.Fs, matcher *exclude.Matcher, status logging.StatusFunc, logger logging.Logger) *LocalIndexer {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &LocalIndexer{fs: fs, matcher: matcher, status: status, logger: logger}
}

// Index returns every file and folder below root keyed by slash-separated
// relative path. Symlinks are not followed. Entries that cannot be read are
// reported and skipped.
func (s *LocalIndexer) Index(ctx context.Context, root string) (map[string]LocalEntry, error) {
	entries := make(map[string]LocalEntry)
	root = filepath.Clean(root)

	err := afero.Walk(s.fs, root, func(current string, info os.FileInfo, walkErr error) error {
		if err := utils.CheckContext(ctx); err != nil {
			return err
		}

		if walkErr != nil {
			if current == root {
				return walkErr
			}
			s.status.Printf("⚠️  Skipping unreadable entry '%s': %v", current, walkErr)
			s.logger.Warn("skipping unreadable local entry",
				logging.F("path", current),
				logging.F("error", walkErr.Error()))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = path.Clean(filepath.ToSlash(rel))

		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		if s.matcher.IsExcluded(rel, info.IsDir()) {
			s.logger.Debug("excluded local entry", logging.F("path", rel))
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		switch {
		case info.IsDir():
			entries[rel] = LocalEntry{
				RelativePath: rel,
				AbsPath:      current,
				IsDir:        true,
				ModTime:      info.ModTime().Unix(),
			}
		case info.Mode().IsRegular():
			entries[rel] = LocalEntry{
				RelativePath: rel,
				AbsPath:      current,
				Size:         info.Size(),
				ModTime:      info.ModTime().Unix(),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}
