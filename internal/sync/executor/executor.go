package executor

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/remote"
	"github.com/dl-alexandre/drivesync/internal/resolver"
	"github.com/dl-alexandre/drivesync/internal/sync/diff"
	"github.com/dl-alexandre/drivesync/internal/utils"
)

// Executor applies planned actions to a remote store, one at a time
type Executor struct {
	store  remote.Store
	status logging.StatusFunc
	logger logging.Logger
}

type Options struct {
	DryRun bool
}

// Counts records what was performed. Failed transfers and deletions are
// still counted under their action type and additionally under Failures.
type Counts struct {
	Folders  int
	Uploads  int
	Updates  int
	Deletes  int
	Failures int
}

// Failure describes one action that did not complete
type Failure struct {
	Action diff.Action
	Err    error
}

func New(store remote.Store, status logging.StatusFunc, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Executor{store: store, status: status, logger: logger}
}

// Apply executes actions in order. ids must contain the destination id under
// the empty path and the id of every folder already on the remote side;
// folders created during the run are added to it, so later uploads find
// their parent. In dry-run mode no mutating call is made and
// new folders receive placeholder ids.
//
// The returned error is non-nil only when ctx is done. Actions already
// applied at that point stay applied.
func (e *Executor) Apply(ctx context.Context, actions []diff.Action, ids resolver.PathIDMap, opts Options) (Counts, []Failure, error) {
	var counts Counts
	var failures []Failure

	for _, action := range actions {
		if err := utils.CheckContext(ctx); err != nil {
			return counts, failures, err
		}

		var err error
		switch action.Type {
		case diff.ActionCreateFolder:
			err = e.createFolder(ctx, action, ids, opts)
			counts.Folders++
		case diff.ActionUpload:
			e.status.Printf("   UPLOADING: %s (New item)", action.Path)
			err = e.transfer(ctx, action, ids, opts)
			counts.Uploads++
		case diff.ActionUpdate:
			e.status.Printf("   UPDATING: %s (Local newer)", action.Path)
			err = e.transfer(ctx, action, ids, opts)
			counts.Updates++
		case diff.ActionDelete:
			err = e.delete(ctx, action, opts)
			counts.Deletes++
		default:
			continue
		}

		if err == nil {
			continue
		}
		if utils.IsCancelled(err) {
			return counts, failures, err
		}
		counts.Failures++
		failures = append(failures, Failure{Action: action, Err: transferFailed(action, err)})
	}

	return counts, failures, nil
}

func (e *Executor) createFolder(ctx context.Context, action diff.Action, ids resolver.PathIDMap, opts Options) error {
	name := path.Base(action.Path)
	if opts.DryRun {
		e.status.Printf("   [DRY RUN] Creating remote folder: %s", action.Path)
		ids.Set(action.Path, resolver.Placeholder(name))
		return nil
	}

	id, err := e.store.CreateFolder(ctx, name, ids.ParentID(action.Path))
	if err != nil {
		e.report("❌ Error creating folder '%s': %v", action.Path, err)
		return err
	}
	ids.Set(action.Path, id)
	e.status.Printf("   Created remote folder: %s (ID: %s)", action.Path, id)
	return nil
}

func (e *Executor) transfer(ctx context.Context, action diff.Action, ids resolver.PathIDMap, opts Options) error {
	if opts.DryRun {
		verb := "UPLOAD"
		if action.Type == diff.ActionUpdate {
			verb = "UPDATE"
		}
		e.status.Printf("   [DRY RUN] %s: %s", verb, action.Path)
		return nil
	}
	if action.Local == nil {
		return fmt.Errorf("no local entry for %s", action.Path)
	}

	modTime := time.Unix(action.Local.ModTime, 0)
	var err error
	if action.Type == diff.ActionUpdate {
		err = e.store.UpdateFile(ctx, action.RemoteID(), action.Local.AbsPath, modTime)
	} else {
		_, err = e.store.UploadFile(ctx, action.Local.AbsPath, path.Base(action.Path), ids.ParentID(action.Path), modTime)
	}
	if err != nil {
		e.report("❌ Error during file operation for '%s': %v", action.Path, err)
		return err
	}
	e.logger.Debug("Transferred file",
		logging.F("path", action.Path),
		logging.F("action", string(action.Type)))
	return nil
}

func (e *Executor) delete(ctx context.Context, action diff.Action, opts Options) error {
	e.status.Printf("   DELETING: %s", action.Path)
	if opts.DryRun {
		e.status.Printf("   [DRY RUN] Would have deleted file/folder: %s", action.Path)
		return nil
	}
	if err := e.store.Delete(ctx, action.RemoteID()); err != nil {
		e.report("❌ Error deleting '%s': %v", action.Path, err)
		return err
	}
	return nil
}

// report prints a per-item failure unless it is a cancellation, which the
// caller surfaces on its own
func (e *Executor) report(format, relPath string, err error) {
	if utils.IsCancelled(err) {
		return
	}
	e.status.Printf(format, relPath, err)
	e.logger.Warn("Action failed",
		logging.F("path", relPath),
		logging.F("code", utils.ErrorCode(err)),
		logging.F("error", err.Error()))
}

func transferFailed(action diff.Action, err error) error {
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeTransferFailed,
		fmt.Sprintf("%s failed for '%s': %v", action.Type, action.Path, err)).
		WithContext("path", action.Path).
		WithContext("remoteId", action.RemoteID()).
		WithContext("cause", utils.ErrorCode(err)).
		Build(), err)
}
