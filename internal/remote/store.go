// Package remote defines the capability the sync engine needs from a
// hierarchical remote object store. Implementations live in subpackages.
package remote

import (
	"context"
	"time"
)

// Item is one folder or file as reported by a listing
type Item struct {
	ID       string
	Name     string
	IsFolder bool
	// ModifiedTime is the store's RFC 3339 timestamp, unparsed
	ModifiedTime string
	Parents      []string
}

// Query selects the children of ParentID. Name and FoldersOnly narrow the
// result; PageToken continues a previous listing.
type Query struct {
	ParentID    string
	Name        string
	FoldersOnly bool
	PageToken   string
}

// Page is one page of a listing. An empty NextPageToken ends the listing.
type Page struct {
	Items         []Item
	NextPageToken string
}

// Grant is an access entry on an item
type Grant struct {
	Principal string
	Role      string
}

// Store is the set of remote operations a sync run issues. Every call
// blocks until the remote answers or ctx is done.
type Store interface {
	Authenticate(ctx context.Context) error
	ListChildren(ctx context.Context, q Query) (Page, error)
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	UploadFile(ctx context.Context, localPath, name, parentID string, modTime time.Time) (string, error)
	UpdateFile(ctx context.Context, id, localPath string, modTime time.Time) error
	Delete(ctx context.Context, id string) error
	ListPermissions(ctx context.Context, id string) ([]Grant, error)
	GrantPermission(ctx context.Context, id, principal, role string) error
}
