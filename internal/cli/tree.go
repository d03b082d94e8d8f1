package cli

import (
	"sort"

	"github.com/dl-alexandre/drivesync/internal/resolver"
	"github.com/dl-alexandre/drivesync/internal/sync/scanner"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree <destination>",
	Short: "List everything below a destination folder",
	Long: `List the remote tree below <destination> the way sync sees it, keyed by
path relative to the destination. Missing folders are never created.`,
	Args: cobra.ExactArgs(1),
	RunE: runTree,
}

func init() {
	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet)
	ctx := cmd.Context()
	status := statusSink(flags)

	store := newStore(appConfig, flags)
	if err := store.Authenticate(ctx); err != nil {
		return out.Fail("tree", err)
	}

	dest, err := resolver.NewFolderResolver(store, status, logger).ResolveOrCreate(ctx, args[0], true)
	if err != nil {
		return out.Fail("tree", err)
	}
	if dest.IsPlaceholder() {
		out.AddWarning(utils.ErrCodeFileNotFound, "Destination '"+args[0]+"' does not exist yet", "info")
	}

	entries, err := scanner.NewRemoteIndexer(store, status, logger).Index(ctx, dest.ID)
	if err != nil {
		return out.Fail("tree", err)
	}
	return out.WriteSuccess("tree", newTreeListing(args[0], dest, entries))
}

type treeEntry struct {
	Path         string `json:"path"`
	ID           string `json:"id"`
	Folder       bool   `json:"folder"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
}

type treeListing struct {
	Destination   string      `json:"destination"`
	DestinationID string      `json:"destinationId,omitempty"`
	Entries       []treeEntry `json:"entries"`
}

func newTreeListing(destination string, dest *resolver.Resolution, entries map[string]scanner.RemoteEntry) *treeListing {
	listing := &treeListing{Destination: destination, Entries: []treeEntry{}}
	if !dest.IsPlaceholder() {
		listing.DestinationID = dest.ID
	}
	for _, e := range entries {
		listing.Entries = append(listing.Entries, treeEntry{
			Path:         e.RelativePath,
			ID:           e.ID,
			Folder:       e.IsDir,
			ModifiedTime: e.ModifiedTime,
		})
	}
	sort.Slice(listing.Entries, func(i, j int) bool {
		return listing.Entries[i].Path < listing.Entries[j].Path
	})
	return listing
}

func (l *treeListing) Headers() []string {
	return []string{"Path", "Type", "Modified", "ID"}
}

func (l *treeListing) Rows() [][]string {
	rows := make([][]string, 0, len(l.Entries))
	for _, e := range l.Entries {
		kind := "file"
		modified := scanner.FormatDisplayTime(scanner.ParseRemoteTime(e.ModifiedTime))
		if e.Folder {
			kind = "folder"
			modified = "-"
		}
		rows = append(rows, []string{truncate(e.Path, 60), kind, modified, e.ID})
	}
	return rows
}

func (l *treeListing) EmptyMessage() string {
	return "(Folder is empty)"
}
