package utils

// Upload thresholds (binary units)
const (
	UploadSimpleMaxBytes = 5 * 1024 * 1024 // 5 MiB
	UploadChunkSize      = 8 * 1024 * 1024 // 8 MiB
)

// OAuth scopes
const (
	ScopeFull     = "https://www.googleapis.com/auth/drive"
	ScopeFile     = "https://www.googleapis.com/auth/drive.file"
	ScopeReadonly = "https://www.googleapis.com/auth/drive.readonly"
)

// ScopesSync is the scope set requested for every sync run.
var ScopesSync = []string{ScopeFull}

// Drive identifiers
const (
	RootFolderID      = "root"
	FolderURLPrefix   = "https://drive.google.com/drive/folders/"
	DryRunIDPrefix    = "dryrun:"
	DriveTimeLayout   = "2006-01-02T15:04:05.000Z"
	DisplayTimeLayout = "2006-01-02 15:04:05"
)

// Retry configuration
const (
	DefaultMaxRetries   = 0
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Schema version
const SchemaVersion = "1.0"

// Google Workspace MIME types
const (
	MimeTypeFolder      = "application/vnd.google-apps.folder"
	MimeTypeShortcut    = "application/vnd.google-apps.shortcut"
	MimeTypeOctetStream = "application/octet-stream"
)

// Permission roles and grantee types
const (
	RoleOwner     = "owner"
	RoleOrganizer = "organizer"
	RoleWriter    = "writer"
	RoleReader    = "reader"

	GranteeUser = "user"
)

// FolderURL returns the browser URL of a Drive folder
func FolderURL(id string) string {
	return FolderURLPrefix + id
}
