// Package sync mirrors a local directory tree into a remote folder, one way.
package sync

import (
	"context"
	"fmt"
	"os"

	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/permissions"
	"github.com/dl-alexandre/drivesync/internal/remote"
	"github.com/dl-alexandre/drivesync/internal/resolver"
	"github.com/dl-alexandre/drivesync/internal/sync/diff"
	"github.com/dl-alexandre/drivesync/internal/sync/exclude"
	"github.com/dl-alexandre/drivesync/internal/sync/executor"
	"github.com/dl-alexandre/drivesync/internal/sync/scanner"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/spf13/afero"
)

// Request describes one run. An empty ShareEmail skips sharing.
type Request struct {
	LocalRoot       string
	DestinationPath string
	DryRun          bool
	ShareEmail      string
}

// RunResult is the outcome of Execute. Cancelled distinguishes a stop
// requested through the context from every other failure.
type RunResult struct {
	Success       bool
	Cancelled     bool
	Message       string
	DestinationID string
	Summary       Summary
	Actions       []diff.Action
	Failures      []executor.Failure
	// Err is the error that ended the run, if any
	Err error
}

// Options configures an Engine
type Options struct {
	// Fs is the local filesystem; nil means the OS filesystem
	Fs              afero.Fs
	Status          logging.StatusFunc
	Logger          logging.Logger
	ExcludePatterns []string
	// IgnoreFileName is read from the top of the local root when present
	IgnoreFileName string
}

// Engine runs one-way synchronizations against a remote store. An Engine
// keeps no state between runs; callers must not run two syncs against the
// same destination at once.
type Engine struct {
	store  remote.Store
	fs     afero.Fs
	status logging.StatusFunc
	logger logging.Logger
	opts   Options
}

func NewEngine(store remote.Store, opts Options) *Engine {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Engine{
		store:  store,
		fs:     fs,
		status: opts.Status,
		logger: logger,
		opts:   opts,
	}
}

// Execute authenticates, resolves the destination, optionally shares it and
// then makes the destination mirror req.LocalRoot. ctx is the cancellation
// token: it is checked before every remote call, and work already done when
// it fires is kept.
func (e *Engine) Execute(ctx context.Context, req Request) RunResult {
	e.logger.Info("Sync run starting",
		logging.F("localRoot", req.LocalRoot),
		logging.F("destination", req.DestinationPath),
		logging.F("dryRun", req.DryRun))

	result, err := e.execute(ctx, req)
	if err != nil {
		result = e.failed(result, err)
	}

	e.logger.Info("Sync run finished",
		logging.F("success", result.Success),
		logging.F("cancelled", result.Cancelled),
		logging.F("message", result.Message))
	return result
}

func (e *Engine) execute(ctx context.Context, req Request) (RunResult, error) {
	var result RunResult

	if err := utils.CheckContext(ctx); err != nil {
		return result, err
	}
	e.status.Printf("🔑 Authenticating...")
	if err := e.store.Authenticate(ctx); err != nil {
		if !utils.IsCancelled(err) {
			e.status.Printf("❌ Authentication Error: %s", utils.AsCLIError(err).Message)
		}
		return result, err
	}
	e.status.Printf("✅ Authentication successful.")

	if err := utils.CheckContext(ctx); err != nil {
		return result, err
	}
	dest, err := resolver.NewFolderResolver(e.store, e.status, e.logger).
		ResolveOrCreate(ctx, req.DestinationPath, req.DryRun)
	if err != nil {
		if !utils.IsCancelled(err) {
			e.status.Printf("❌ %s", utils.AsCLIError(err).Message)
		}
		return result, err
	}
	result.DestinationID = dest.ID

	shared := false
	if req.ShareEmail != "" {
		if err := utils.CheckContext(ctx); err != nil {
			return result, err
		}
		shared = e.share(ctx, dest, req)
	}
	if err := utils.CheckContext(ctx); err != nil {
		return result, err
	}

	if !e.isDir(req.LocalRoot) {
		if shared {
			result.Success = true
			result.Message = fmt.Sprintf("Share completed for %s. Local file sync skipped: '%s' is not a directory.",
				req.ShareEmail, req.LocalRoot)
			e.status.Printf("✅ %s", result.Message)
			return result, nil
		}
		return result, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidPath,
			fmt.Sprintf("Local source path '%s' does not exist or is not a directory.", req.LocalRoot)).
			WithContext("localRoot", req.LocalRoot).
			Build())
	}

	e.status.Printf("📋 Comparing local and remote files recursively...")
	matcher, err := exclude.Load(e.fs, req.LocalRoot, e.opts.IgnoreFileName, e.opts.ExcludePatterns)
	if err != nil {
		return result, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("Could not read ignore file: %v", err)).Build(), err)
	}
	local, err := scanner.NewLocalIndexer(e.fs, matcher, e.status, e.logger).Index(ctx, req.LocalRoot)
	if err != nil {
		if utils.IsCancelled(err) {
			return result, err
		}
		return result, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath,
			fmt.Sprintf("Could not read local source path '%s': %v", req.LocalRoot, err)).Build(), err)
	}
	remoteEntries, err := scanner.NewRemoteIndexer(e.store, e.status, e.logger).Index(ctx, dest.ID)
	if err != nil {
		if !utils.IsCancelled(err) {
			e.status.Printf("❌ %s", utils.AsCLIError(err).Message)
		}
		return result, err
	}
	if err := utils.CheckContext(ctx); err != nil {
		return result, err
	}

	e.status.Printf("\n--- Sync Operation Analysis & Execution ---")
	actions := diff.Plan(local, remoteEntries, matcher.IsExcluded)
	result.Actions = actions
	planned := diff.Count(actions)
	e.logger.Debug("Sync plan computed",
		logging.F("localEntries", len(local)),
		logging.F("remoteEntries", len(remoteEntries)),
		logging.F("folders", planned.Folders),
		logging.F("uploads", planned.Uploads),
		logging.F("updates", planned.Updates),
		logging.F("deletes", planned.Deletes))

	counts, failures, err := executor.New(e.store, e.status, e.logger).
		Apply(ctx, actions, knownFolders(dest.ID, remoteEntries), executor.Options{DryRun: req.DryRun})
	result.Summary = summaryFrom(counts)
	result.Failures = failures
	if err != nil {
		return result, err
	}

	result.Summary.print(e.status)
	result.Success = true
	result.Message = result.Summary.Message(req.DryRun)
	return result, nil
}

// knownFolders maps every folder already below the destination to its id,
// so new items land inside existing folders rather than at the root
func knownFolders(rootID string, entries map[string]scanner.RemoteEntry) resolver.PathIDMap {
	ids := resolver.NewPathIDMap(rootID)
	for rel, entry := range entries {
		if entry.IsDir {
			ids.Set(rel, entry.ID)
		}
	}
	return ids
}

// share grants write access on the destination. A placeholder destination
// does not exist yet, so a dry run only reports the grant.
func (e *Engine) share(ctx context.Context, dest *resolver.Resolution, req Request) bool {
	if dest.IsPlaceholder() {
		e.status.Printf("[DRY RUN] Would share folder with %s as %s.", req.ShareEmail, utils.RoleWriter)
		return true
	}
	return permissions.NewSharer(e.store, e.status, e.logger).Share(ctx, dest.ID, req.ShareEmail, req.DryRun)
}

func (e *Engine) isDir(p string) bool {
	if p == "" {
		return false
	}
	info, err := e.fs.Stat(p)
	if err != nil {
		if !os.IsNotExist(err) {
			e.logger.Warn("Local root not accessible", logging.F("path", p), logging.F("error", err.Error()))
		}
		return false
	}
	return info.IsDir()
}

func (e *Engine) failed(result RunResult, err error) RunResult {
	result.Success = false
	result.Err = err
	if utils.IsCancelled(err) {
		result.Cancelled = true
		result.Message = MessageCancelled
		e.status.Printf("🛑 %s", MessageCancelled)
		return result
	}
	result.Message = "Sync failed: " + utils.AsCLIError(err).Message
	e.logger.Error("Sync run failed",
		logging.F("code", utils.ErrorCode(err)),
		logging.F("error", err.Error()))
	return result
}
