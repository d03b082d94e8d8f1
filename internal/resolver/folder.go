// Package resolver maps slash-separated destination paths onto remote folder ids.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/remote"
	"github.com/dl-alexandre/drivesync/internal/utils"
)

// Resolution is the outcome of resolving a destination path
type Resolution struct {
	// ID is the destination folder id, a dry-run placeholder when the folder
	// would have been created
	ID string
	// Prefixes maps every partial destination path ("a", "a/b") to its id
	Prefixes map[string]string
}

// IsPlaceholder reports whether the destination does not exist remotely yet
func (r *Resolution) IsPlaceholder() bool {
	return IsPlaceholder(r.ID)
}

// FolderResolver finds or creates destination folders one component at a
// time. A resolver remembers what it resolved and is meant for a single run.
type FolderResolver struct {
	store  remote.Store
	status logging.StatusFunc
	logger logging.Logger
	memo   map[string]string
}

// NewFolderResolver creates a resolver over store
func NewFolderResolver(store remote.Store, status logging.StatusFunc, logger logging.Logger) *FolderResolver {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &FolderResolver{
		store:  store,
		status: status,
		logger: logger,
		memo:   make(map[string]string),
	}
}

// ResolveOrCreate returns the id of destination, creating missing folders
// below the Drive root. Under dryRun nothing is created: the first missing
// component and everything under it get placeholder ids.
func (r *FolderResolver) ResolveOrCreate(ctx context.Context, destination string, dryRun bool) (*Resolution, error) {
	res := &Resolution{
		ID:       utils.RootFolderID,
		Prefixes: make(map[string]string),
	}

	prefix := ""
	for _, name := range SplitPath(destination) {
		if prefix == "" {
			prefix = name
		} else {
			prefix = prefix + "/" + name
		}

		if id, ok := r.memo[prefix]; ok {
			res.ID = id
			res.Prefixes[prefix] = id
			continue
		}

		id, err := r.resolveComponent(ctx, res.ID, name, prefix, dryRun)
		if err != nil {
			return nil, err
		}
		r.memo[prefix] = id
		res.ID = id
		res.Prefixes[prefix] = id
	}

	r.status.Printf("✅ Destination Folder ID: %s", res.ID)
	if !res.IsPlaceholder() {
		r.status.Printf("🔗 Destination Folder URL: %s", utils.FolderURL(res.ID))
	}
	return res, nil
}

func (r *FolderResolver) resolveComponent(ctx context.Context, parentID, name, prefix string, dryRun bool) (string, error) {
	// Nothing can exist below a folder that was never created
	if IsPlaceholder(parentID) {
		return Placeholder(name), nil
	}

	if err := utils.CheckContext(ctx); err != nil {
		return "", err
	}
	found, err := r.findFolder(ctx, parentID, name)
	if err != nil {
		return "", unresolved(prefix, err)
	}
	if found != "" {
		r.logger.Debug("destination component found",
			logging.F("path", prefix),
			logging.F("id", found))
		return found, nil
	}

	if dryRun {
		r.status.Printf("[DRY RUN] Would have created folder '%s'", name)
		return Placeholder(name), nil
	}

	if err := utils.CheckContext(ctx); err != nil {
		return "", err
	}
	id, err := r.store.CreateFolder(ctx, name, parentID)
	if err != nil {
		return "", unresolved(prefix, err)
	}
	r.status.Printf("📁 Created folder '%s'", name)
	r.logger.Info("destination component created",
		logging.F("path", prefix),
		logging.F("id", id))
	return id, nil
}

// findFolder pages through the folders named name under parentID and
// returns the first one, or "" when there is none
func (r *FolderResolver) findFolder(ctx context.Context, parentID, name string) (string, error) {
	token := ""
	for {
		page, err := r.store.ListChildren(ctx, remote.Query{
			ParentID:    parentID,
			Name:        name,
			FoldersOnly: true,
			PageToken:   token,
		})
		if err != nil {
			return "", err
		}
		for _, item := range page.Items {
			if item.IsFolder && item.Name == name {
				return item.ID, nil
			}
		}
		if page.NextPageToken == "" {
			return "", nil
		}
		if err := utils.CheckContext(ctx); err != nil {
			return "", err
		}
		token = page.NextPageToken
	}
}

func unresolved(prefix string, err error) error {
	if utils.IsCancelled(err) {
		return err
	}
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeDestinationUnresolved,
		fmt.Sprintf("Could not resolve destination folder '%s': %v", prefix, err)).
		WithContext("path", prefix).
		WithContext("cause", utils.ErrorCode(err)).
		Build(), err)
}

// SplitPath splits a destination on "/" and drops empty components
func SplitPath(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Placeholder returns the dry-run id standing in for a folder named name
func Placeholder(name string) string {
	return utils.DryRunIDPrefix + name
}

// IsPlaceholder reports whether id is a dry-run placeholder
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, utils.DryRunIDPrefix)
}
