package diff

import (
	"github.com/dl-alexandre/drivesync/internal/sync/scanner"
)

type ActionType string

const (
	ActionCreateFolder ActionType = "create_folder"
	ActionUpload       ActionType = "upload"
	ActionUpdate       ActionType = "update"
	ActionDelete       ActionType = "delete"
)

// Action is one step that brings the remote side closer to the local side.
// Local is set for creations, uploads and updates; Remote for updates and
// deletes.
type Action struct {
	Type   ActionType
	Path   string
	Local  *scanner.LocalEntry
	Remote *scanner.RemoteEntry
}

// RemoteID returns the id of the remote item the action targets, if any
func (a Action) RemoteID() string {
	if a.Remote == nil {
		return ""
	}
	return a.Remote.ID
}

// Counts tallies actions by type
type Counts struct {
	Folders int
	Uploads int
	Updates int
	Deletes int
}

// Count tallies actions
func Count(actions []Action) Counts {
	var c Counts
	for _, a := range actions {
		switch a.Type {
		case ActionCreateFolder:
			c.Folders++
		case ActionUpload:
			c.Uploads++
		case ActionUpdate:
			c.Updates++
		case ActionDelete:
			c.Deletes++
		}
	}
	return c
}
