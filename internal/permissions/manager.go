// Package permissions manages access grants on Drive files and folders.
package permissions

import (
	"context"

	"github.com/dl-alexandre/drivesync/internal/api"
	"github.com/dl-alexandre/drivesync/internal/types"
	"google.golang.org/api/drive/v3"
)

const permissionFields = "id,type,role,emailAddress,domain,displayName"

// Manager reads and adds permissions through the Drive API
type Manager struct {
	client *api.Client
}

func NewManager(client *api.Client) *Manager {
	return &Manager{client: client}
}

// Grant describes a permission to add. EmailAddress names the user or group;
// Notify asks Drive to email the grantee.
type Grant struct {
	Type         string
	Role         string
	EmailAddress string
	Notify       bool
}

// List returns every permission on fileID across all result pages
func (m *Manager) List(ctx context.Context, reqCtx *types.RequestContext, fileID string) ([]*types.Permission, error) {
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, fileID)

	var perms []*types.Permission
	for token := ""; ; {
		page, err := m.listPage(ctx, reqCtx, fileID, token)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Permissions {
			perms = append(perms, convertPermission(p))
		}
		if token = page.NextPageToken; token == "" {
			return perms, nil
		}
	}
}

func (m *Manager) listPage(ctx context.Context, reqCtx *types.RequestContext, fileID, token string) (*drive.PermissionList, error) {
	return api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.PermissionList, error) {
		call := m.client.Service().Permissions.List(fileID).
			Fields("nextPageToken,permissions(" + permissionFields + ")").
			SupportsAllDrives(true).
			Context(ctx)
		if token != "" {
			call = call.PageToken(token)
		}
		return call.Do()
	})
}

// Create adds g to fileID and returns the stored permission
func (m *Manager) Create(ctx context.Context, reqCtx *types.RequestContext, fileID string, g Grant) (*types.Permission, error) {
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, fileID)

	body := &drive.Permission{Type: g.Type, Role: g.Role, EmailAddress: g.EmailAddress}
	created, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.Permission, error) {
		return m.client.Service().Permissions.Create(fileID, body).
			SendNotificationEmail(g.Notify).
			Fields(permissionFields).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return convertPermission(created), nil
}

func convertPermission(p *drive.Permission) *types.Permission {
	return &types.Permission{
		ID:           p.Id,
		Type:         p.Type,
		Role:         p.Role,
		EmailAddress: p.EmailAddress,
		Domain:       p.Domain,
		DisplayName:  p.DisplayName,
	}
}
