package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/dl-alexandre/drivesync/internal/history"
	"github.com/dl-alexandre/drivesync/internal/resolver"
	syncengine "github.com/dl-alexandre/drivesync/internal/sync"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded sync runs",
	Long:  "List runs recorded in the local history journal, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one recorded run with its actions",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list (0 for all)")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet)

	db, err := openHistory()
	if err != nil {
		return out.Fail("history", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return out.Fail("history", err)
	}
	return out.WriteSuccess("history", runList(runs))
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet)

	db, err := openHistory()
	if err != nil {
		return out.Fail("history.show", err)
	}
	defer db.Close()

	run, err := db.GetRun(cmd.Context(), args[0])
	if errors.Is(err, sql.ErrNoRows) {
		return out.Fail("history.show", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("No run with id '%s'", args[0])).Build()))
	}
	if err != nil {
		return out.Fail("history.show", err)
	}
	return out.WriteSuccess("history.show", (*runDetail)(run))
}

// historyRunFrom converts an engine result into a journal row. Each planned
// action is kept; failed ones carry their error text.
func historyRunFrom(req syncengine.Request, result syncengine.RunResult) history.Run {
	run := history.Run{
		LocalRoot:   req.LocalRoot,
		Destination: req.DestinationPath,
		ShareEmail:  req.ShareEmail,
		DryRun:      req.DryRun,
		Success:     result.Success,
		Cancelled:   result.Cancelled,
		Folders:     result.Summary.Folders,
		Uploads:     result.Summary.Uploads,
		Updates:     result.Summary.Updates,
		Deletes:     result.Summary.Deletes,
		Failures:    result.Summary.Failures,
		Message:     result.Message,
	}
	if !resolver.IsPlaceholder(result.DestinationID) {
		run.DestinationID = result.DestinationID
	}

	failed := make(map[string]string, len(result.Failures))
	for _, f := range result.Failures {
		failed[string(f.Action.Type)+":"+f.Action.Path] = utils.AsCLIError(f.Err).Message
	}
	for _, a := range result.Actions {
		run.Actions = append(run.Actions, history.Action{
			Type:         string(a.Type),
			RelativePath: a.Path,
			RemoteID:     a.RemoteID(),
			Error:        failed[string(a.Type)+":"+a.Path],
		})
	}
	return run
}

type runList []history.Run

func (l runList) Headers() []string {
	return []string{"ID", "Started", "Destination", "Mode", "Result", "Actions"}
}

func (l runList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		mode := "live"
		if r.DryRun {
			mode = "dry-run"
		}
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format(utils.DisplayTimeLayout),
			truncate(r.Destination, 40),
			mode,
			runOutcome(r),
			strconv.Itoa(r.Uploads + r.Updates + r.Deletes),
		})
	}
	return rows
}

func (l runList) EmptyMessage() string {
	return "No runs recorded."
}

// runDetail renders one run and its actions
type runDetail history.Run

func (d *runDetail) Headers() []string {
	return []string{"Action", "Path", "Remote ID", "Error"}
}

func (d *runDetail) Rows() [][]string {
	rows := make([][]string, 0, len(d.Actions))
	for _, a := range d.Actions {
		rows = append(rows, []string{a.Type, truncate(a.RelativePath, 60), a.RemoteID, a.Error})
	}
	return rows
}

func (d *runDetail) EmptyMessage() string {
	return fmt.Sprintf("%s (%s): %s", d.Destination, runOutcome(history.Run(*d)), d.Message)
}

func runOutcome(r history.Run) string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case !r.Success:
		return "failed"
	case r.Failures > 0:
		return fmt.Sprintf("partial (%d failed)", r.Failures)
	default:
		return "ok"
	}
}
