// Package folders lists, finds and creates Drive folders.
package folders

import (
	"context"
	"fmt"
	"strings"

	"github.com/dl-alexandre/drivesync/internal/api"
	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const itemFields = "id,name,mimeType,size,modifiedTime,parents,trashed"

type Manager struct {
	client *api.Client
}

func NewManager(client *api.Client) *Manager {
	return &Manager{client: client}
}

// childQuery selects the live children of a folder
func childQuery(parentID string) string {
	return fmt.Sprintf("'%s' in parents and trashed = false", EscapeQueryString(parentID))
}

// Create makes a folder named name under parentID, or in My Drive when
// parentID is empty
func (m *Manager) Create(ctx context.Context, reqCtx *types.RequestContext, name, parentID string) (*types.DriveFile, error) {
	meta := &drive.File{Name: name, MimeType: utils.MimeTypeFolder}
	if parentID != "" {
		reqCtx.InvolvedParentIDs = append(reqCtx.InvolvedParentIDs, parentID)
		meta.Parents = []string{parentID}
	}

	created, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.File, error) {
		return m.client.Service().Files.Create(meta).
			Fields(itemFields).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return ConvertDriveFile(created), nil
}

// FindChild returns a folder named name directly under parentID, or nil
func (m *Manager) FindChild(ctx context.Context, reqCtx *types.RequestContext, parentID, name string) (*types.DriveFile, error) {
	q := fmt.Sprintf("%s and name = '%s' and mimeType = '%s'",
		childQuery(parentID), EscapeQueryString(name), utils.MimeTypeFolder)

	page, err := m.search(ctx, reqCtx, parentID, q, 1, "")
	if err != nil || len(page.Files) == 0 {
		return nil, err
	}
	return ConvertDriveFile(page.Files[0]), nil
}

// List returns one page of folderID's children. Drive picks the page size
// when pageSize is zero.
func (m *Manager) List(ctx context.Context, reqCtx *types.RequestContext, folderID string, pageSize int, pageToken string) (*types.FileListResult, error) {
	page, err := m.search(ctx, reqCtx, folderID, childQuery(folderID), pageSize, pageToken)
	if err != nil {
		return nil, err
	}

	result := &types.FileListResult{
		Files:            make([]*types.DriveFile, 0, len(page.Files)),
		NextPageToken:    page.NextPageToken,
		IncompleteSearch: page.IncompleteSearch,
	}
	for _, f := range page.Files {
		result.Files = append(result.Files, ConvertDriveFile(f))
	}
	return result, nil
}

func (m *Manager) search(ctx context.Context, reqCtx *types.RequestContext, parentID, q string, pageSize int, pageToken string) (*drive.FileList, error) {
	reqCtx.InvolvedParentIDs = append(reqCtx.InvolvedParentIDs, parentID)

	return api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.FileList, error) {
		call := m.client.Service().Files.List().
			Q(q).
			Fields(googleapi.Field("nextPageToken,incompleteSearch,files(" + itemFields + ")")).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx)
		if pageSize > 0 {
			call = call.PageSize(int64(pageSize))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		return call.Do()
	})
}

// ConvertDriveFile maps an API file onto types.DriveFile
func ConvertDriveFile(f *drive.File) *types.DriveFile {
	return &types.DriveFile{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Size:         f.Size,
		MD5Checksum:  f.Md5Checksum,
		ModifiedTime: f.ModifiedTime,
		Parents:      f.Parents,
		WebViewLink:  f.WebViewLink,
		Trashed:      f.Trashed,
	}
}

// EscapeQueryString escapes a literal for a single-quoted Drive query term
func EscapeQueryString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
