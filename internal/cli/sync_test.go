package cli

import (
	"testing"

	"github.com/dl-alexandre/drivesync/internal/config"
	"github.com/dl-alexandre/drivesync/internal/history"
	syncengine "github.com/dl-alexandre/drivesync/internal/sync"
	"github.com/dl-alexandre/drivesync/internal/sync/diff"
	"github.com/dl-alexandre/drivesync/internal/sync/executor"
	"github.com/dl-alexandre/drivesync/internal/sync/scanner"
	"github.com/dl-alexandre/drivesync/internal/utils"
)

func sampleResult() (syncengine.Request, syncengine.RunResult) {
	req := syncengine.Request{LocalRoot: "/src", DestinationPath: "Backups/laptop"}
	upload := diff.Action{Type: diff.ActionUpload, Path: "a.txt", Local: &scanner.LocalEntry{RelativePath: "a.txt"}}
	del := diff.Action{Type: diff.ActionDelete, Path: "old.txt", Remote: &scanner.RemoteEntry{RelativePath: "old.txt", ID: "r9"}}
	result := syncengine.RunResult{
		Success:       true,
		Message:       "Completed with 2 actions (1 failed).",
		DestinationID: "dest1",
		Summary:       syncengine.Summary{Uploads: 1, Deletes: 1, Failures: 1},
		Actions:       []diff.Action{upload, del},
		Failures: []executor.Failure{{
			Action: upload,
			Err:    utils.NewAppError(utils.NewCLIError(utils.ErrCodeTransferFailed, "quota exceeded").Build()),
		}},
	}
	return req, result
}

func TestHistoryRunFrom(t *testing.T) {
	req, result := sampleResult()

	run := historyRunFrom(req, result)

	if run.Destination != "Backups/laptop" || run.DestinationID != "dest1" {
		t.Fatalf("unexpected destination: %+v", run)
	}
	if len(run.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(run.Actions))
	}
	if run.Actions[0].Error != "quota exceeded" {
		t.Fatalf("failed upload should carry its error, got %q", run.Actions[0].Error)
	}
	if run.Actions[1].Error != "" || run.Actions[1].RemoteID != "r9" {
		t.Fatalf("unexpected delete row: %+v", run.Actions[1])
	}
}

func TestHistoryRunFromDropsPlaceholderID(t *testing.T) {
	req, result := sampleResult()
	req.DryRun = true
	result.DestinationID = utils.DryRunIDPrefix + "laptop"

	run := historyRunFrom(req, result)

	if run.DestinationID != "" {
		t.Fatalf("placeholder id should not be journaled, got %q", run.DestinationID)
	}
	if !run.DryRun {
		t.Fatalf("expected dry run")
	}
}

func TestSyncReportRows(t *testing.T) {
	req, result := sampleResult()

	report := newSyncReport(req, result, "run-1")

	if report.FolderURL != utils.FolderURL("dest1") {
		t.Fatalf("folder url = %q", report.FolderURL)
	}
	rows := report.Rows()
	want := map[string]string{
		"Uploaded": "1",
		"Deleted":  "1",
		"Failed":   "1",
		"Result":   result.Message,
		"Run":      "run-1",
	}
	got := make(map[string]string, len(rows))
	for _, row := range rows {
		got[row[0]] = row[1]
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("row %q = %q, want %q", k, got[k], v)
		}
	}
	if len(report.Actions) != 2 || report.Actions[1].RemoteID != "r9" {
		t.Fatalf("unexpected actions: %+v", report.Actions)
	}
}

func TestRunOutcome(t *testing.T) {
	tests := []struct {
		run  history.Run
		want string
	}{
		{history.Run{Success: true}, "ok"},
		{history.Run{Success: true, Failures: 2}, "partial (2 failed)"},
		{history.Run{Cancelled: true}, "cancelled"},
		{history.Run{}, "failed"},
	}
	for _, tt := range tests {
		if got := runOutcome(tt.run); got != tt.want {
			t.Errorf("runOutcome(%+v) = %q, want %q", tt.run, got, tt.want)
		}
	}
}

func TestIsConfigCommand(t *testing.T) {
	if !isConfigCommand(configSetCmd) {
		t.Fatalf("config set should count as a config command")
	}
	if isConfigCommand(syncCmd) {
		t.Fatalf("sync is not a config command")
	}
}

func TestSharingNeedsServiceAccount(t *testing.T) {
	saved, savedShare := appConfig, syncShareWith
	defer func() { appConfig, syncShareWith = saved, savedShare }()

	appConfig = config.DefaultConfig()
	appConfig.AuthMode = config.AuthModePersonalAccount
	syncShareWith = "bob@example.com"

	err := runSync(syncCmd, []string{t.TempDir(), "Backups"})
	if code := utils.ErrorCode(err); code != utils.ErrCodeInvalidArgument {
		t.Errorf("sync --share-with: code = %q, want %q", code, utils.ErrCodeInvalidArgument)
	}

	err = runShare(shareCmd, []string{"Backups", "bob@example.com"})
	if code := utils.ErrorCode(err); code != utils.ErrCodeInvalidArgument {
		t.Errorf("share: code = %q, want %q", code, utils.ErrCodeInvalidArgument)
	}
}
