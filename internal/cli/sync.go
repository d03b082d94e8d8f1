package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dl-alexandre/drivesync/internal/config"
	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/resolver"
	syncengine "github.com/dl-alexandre/drivesync/internal/sync"
	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync <local-path> <destination>",
	Short: "Mirror a local folder into Drive",
	Long: `Make the Drive folder at <destination> an exact copy of <local-path>.

<destination> is a slash-separated folder path below My Drive, for example
"Backups/laptop". Missing folders are created. Files that are new or newer
locally are uploaded; remote items with no local counterpart are deleted.`,
	Example: `  drivesync sync ~/Documents Backups/documents
  drivesync sync ./site Web/site --dry-run
  drivesync sync ./reports Shared/reports --share-with alice@example.com`,
	Args: cobra.ExactArgs(2),
	RunE: runSync,
}

var (
	syncShareWith string
	syncExclude   []string
	syncNoHistory bool
)

func init() {
	syncCmd.Flags().StringVar(&syncShareWith, "share-with", "", "Grant this email writer access on the destination (service_account mode)")
	syncCmd.Flags().StringSliceVar(&syncExclude, "exclude", nil, "Additional gitignore-style exclude patterns")
	syncCmd.Flags().BoolVar(&syncNoHistory, "no-history", false, "Do not record this run in the history journal")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet)

	if syncShareWith != "" && appConfig.AuthMode == config.AuthModePersonalAccount {
		return out.Fail("sync", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"--share-with is only available in service_account mode").Build()))
	}

	localRoot, err := filepath.Abs(args[0])
	if err != nil {
		return out.Fail("sync", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath,
			fmt.Sprintf("Invalid local path '%s': %v", args[0], err)).Build(), err))
	}

	req := syncengine.Request{
		LocalRoot:       localRoot,
		DestinationPath: args[1],
		DryRun:          flags.DryRun,
		ShareEmail:      syncShareWith,
	}
	return runEngine(cmd.Context(), "sync", out, flags, req)
}

// runEngine executes req and reports the result. It is shared by sync and
// share, which differ only in the request they build.
func runEngine(ctx context.Context, command string, out *OutputWriter, flags types.GlobalFlags, req syncengine.Request) error {
	status := statusSink(flags)
	status.Printf("--- Google Drive Sync Initiated ---")
	status.Printf("Authentication Mode: %s", appConfig.AuthMode)
	if req.DryRun {
		status.Printf("Sync Mode: DRY RUN")
	} else {
		status.Printf("Sync Mode: LIVE")
	}

	patterns := append(append([]string{}, appConfig.ExcludePatterns...), syncExclude...)
	engine := syncengine.NewEngine(newStore(appConfig, flags), syncengine.Options{
		Status:          status,
		Logger:          logger,
		ExcludePatterns: patterns,
		IgnoreFileName:  appConfig.IgnoreFileName,
	})

	started := clock.Now()
	result := engine.Execute(ctx, req)

	var runID string
	if appConfig.HistoryEnabled && !syncNoHistory {
		runID = recordRun(req, result, started)
	}

	if result.Err != nil {
		return out.Fail(command, result.Err)
	}
	for _, f := range result.Failures {
		out.AddWarning(utils.ErrorCode(f.Err), fmt.Sprintf("%s %s: %s", f.Action.Type, f.Action.Path,
			utils.AsCLIError(f.Err).Message), "warning")
	}
	return out.WriteSuccess(command, newSyncReport(req, result, runID))
}

// recordRun journals a finished run and returns its id. Journal errors are
// logged and never fail the run.
func recordRun(req syncengine.Request, result syncengine.RunResult, started time.Time) string {
	db, err := openHistory()
	if err != nil {
		logger.Warn("History journal unavailable", logging.F("error", err.Error()))
		return ""
	}
	defer db.Close()

	run := historyRunFrom(req, result)
	run.StartedAt = started
	stored, err := db.RecordRun(context.Background(), run)
	if err != nil {
		logger.Warn("Failed to record run", logging.F("error", err.Error()))
		return ""
	}
	return stored.ID
}

// syncReport is the command result of sync and share
type syncReport struct {
	RunID         string                 `json:"runId,omitempty"`
	LocalRoot     string                 `json:"localRoot,omitempty"`
	Destination   string                 `json:"destination"`
	DestinationID string                 `json:"destinationId,omitempty"`
	FolderURL     string                 `json:"folderUrl,omitempty"`
	DryRun        bool                   `json:"dryRun"`
	Success       bool                   `json:"success"`
	Cancelled     bool                   `json:"cancelled"`
	Message       string                 `json:"message"`
	Summary       syncengine.Summary     `json:"summary"`
	Actions       []syncReportActionItem `json:"actions"`
}

type syncReportActionItem struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	RemoteID string `json:"remoteId,omitempty"`
}

func newSyncReport(req syncengine.Request, result syncengine.RunResult, runID string) *syncReport {
	report := &syncReport{
		RunID:         runID,
		LocalRoot:     req.LocalRoot,
		Destination:   req.DestinationPath,
		DestinationID: result.DestinationID,
		DryRun:        req.DryRun,
		Success:       result.Success,
		Cancelled:     result.Cancelled,
		Message:       result.Message,
		Summary:       result.Summary,
		Actions:       []syncReportActionItem{},
	}
	if result.DestinationID != "" && !resolver.IsPlaceholder(result.DestinationID) {
		report.FolderURL = utils.FolderURL(result.DestinationID)
	}
	for _, a := range result.Actions {
		report.Actions = append(report.Actions, syncReportActionItem{
			Type:     string(a.Type),
			Path:     a.Path,
			RemoteID: a.RemoteID(),
		})
	}
	return report
}

func (r *syncReport) Headers() []string {
	return []string{"Field", "Value"}
}

func (r *syncReport) Rows() [][]string {
	rows := [][]string{
		{"Destination", r.Destination},
	}
	if r.FolderURL != "" {
		rows = append(rows, []string{"Folder", r.FolderURL})
	}
	rows = append(rows,
		[]string{"Folders created", strconv.Itoa(r.Summary.Folders)},
		[]string{"Uploaded", strconv.Itoa(r.Summary.Uploads)},
		[]string{"Updated", strconv.Itoa(r.Summary.Updates)},
		[]string{"Deleted", strconv.Itoa(r.Summary.Deletes)},
	)
	if r.Summary.Failures > 0 {
		rows = append(rows, []string{"Failed", strconv.Itoa(r.Summary.Failures)})
	}
	rows = append(rows, []string{"Result", r.Message})
	if r.RunID != "" {
		rows = append(rows, []string{"Run", r.RunID})
	}
	return rows
}

func (r *syncReport) EmptyMessage() string {
	return r.Message
}
