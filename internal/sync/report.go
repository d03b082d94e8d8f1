package sync

import (
	"fmt"

	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/sync/executor"
)

// Final messages that callers may match on
const (
	MessageNoChanges = "No changes needed."
	MessageCancelled = "Synchronization manually cancelled."
)

// Summary aggregates what one run did
type Summary struct {
	Folders  int `json:"folders"`
	Uploads  int `json:"uploads"`
	Updates  int `json:"updates"`
	Deletes  int `json:"deletes"`
	Failures int `json:"failures"`
}

func summaryFrom(c executor.Counts) Summary {
	return Summary{
		Folders:  c.Folders,
		Uploads:  c.Uploads,
		Updates:  c.Updates,
		Deletes:  c.Deletes,
		Failures: c.Failures,
	}
}

// Total counts uploads, updates and deletes. Folder creations are not
// included.
func (s Summary) Total() int {
	return s.Uploads + s.Updates + s.Deletes
}

// Transfers counts uploads and updates
func (s Summary) Transfers() int {
	return s.Uploads + s.Updates
}

// Message renders the final one-line outcome
func (s Summary) Message(dryRun bool) string {
	if s.Total() == 0 && s.Folders == 0 && s.Failures == 0 {
		return MessageNoChanges
	}
	word := "Completed"
	if dryRun {
		word = "Simulated"
	}
	if s.Failures > 0 {
		return fmt.Sprintf("%s with %d actions (%d failed).", word, s.Total(), s.Failures)
	}
	return fmt.Sprintf("%s with %d actions.", word, s.Total())
}

func (s Summary) print(status logging.StatusFunc) {
	status.Printf("\n--- Sync Execution Summary ---")
	if s.Total() == 0 && s.Folders == 0 {
		status.Printf("✅ Sync successful! No changes required.")
	} else {
		status.Printf("✅ Sync successful! Total actions: %d (Upload/Update: %d, Delete: %d)",
			s.Total(), s.Transfers(), s.Deletes)
	}
	if s.Folders > 0 {
		status.Printf("📁 Folders created: %d", s.Folders)
	}
	if s.Failures > 0 {
		status.Printf("⚠️  %d actions failed; see the errors above.", s.Failures)
	}
}
