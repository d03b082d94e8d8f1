// Package gdrive implements remote.Store on top of the Google Drive v3 API.
package gdrive

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dl-alexandre/drivesync/internal/api"
	"github.com/dl-alexandre/drivesync/internal/files"
	"github.com/dl-alexandre/drivesync/internal/folders"
	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/permissions"
	"github.com/dl-alexandre/drivesync/internal/remote"
	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/spf13/afero"
	"google.golang.org/api/drive/v3"
)

// ConnectFunc opens an authenticated Drive service
type ConnectFunc func(ctx context.Context) (*drive.Service, error)

// Options tunes the store
type Options struct {
	Profile      string
	MaxRetries   int
	RetryDelayMs int
	PageSize     int
	Logger       logging.Logger
	// Fs is where upload sources are read from; nil means the OS filesystem
	Fs afero.Fs
}

// Store talks to Google Drive. Authenticate must succeed before any other call.
type Store struct {
	connect ConnectFunc
	opts    Options

	client      *api.Client
	folders     *folders.Manager
	files       *files.Manager
	permissions *permissions.Manager
}

var _ remote.Store = (*Store)(nil)

// New creates a store that connects lazily through connect
func New(connect ConnectFunc, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 1000
	}
	return &Store{connect: connect, opts: opts}
}

// NewWithService creates a store around an existing service
func NewWithService(service *drive.Service, opts Options) *Store {
	return New(func(context.Context) (*drive.Service, error) { return service, nil }, opts)
}

// Authenticate opens the Drive session and builds the resource managers
func (s *Store) Authenticate(ctx context.Context) error {
	service, err := s.connect(ctx)
	if err != nil {
		return err
	}

	s.client = api.NewClient(service, s.opts.MaxRetries, s.opts.RetryDelayMs, s.opts.Logger)
	s.folders = folders.NewManager(s.client)
	s.files = files.NewManager(s.client)
	if s.opts.Fs != nil {
		s.files.WithFs(s.opts.Fs)
	}
	s.permissions = permissions.NewManager(s.client)
	return nil
}

// ListChildren lists one page of the children of q.ParentID. A name lookup
// restricted to folders is answered with a single folder or none.
func (s *Store) ListChildren(ctx context.Context, q remote.Query) (remote.Page, error) {
	if err := s.ready(); err != nil {
		return remote.Page{}, err
	}
	reqCtx := api.NewRequestContext(s.opts.Profile, "", types.RequestTypeListOrSearch)

	if q.Name != "" && q.FoldersOnly {
		found, err := s.folders.FindChild(ctx, reqCtx, q.ParentID, q.Name)
		if err != nil || found == nil {
			return remote.Page{}, err
		}
		return remote.Page{Items: []remote.Item{toItem(found)}}, nil
	}

	result, err := s.folders.List(ctx, reqCtx, q.ParentID, s.opts.PageSize, q.PageToken)
	if err != nil {
		return remote.Page{}, err
	}
	if result.IncompleteSearch {
		s.opts.Logger.Warn("Drive reported an incomplete listing", logging.F("parentId", q.ParentID))
	}

	page := remote.Page{NextPageToken: result.NextPageToken}
	for _, f := range result.Files {
		if q.FoldersOnly && f.MimeType != utils.MimeTypeFolder {
			continue
		}
		if q.Name != "" && f.Name != q.Name {
			continue
		}
		page.Items = append(page.Items, toItem(f))
	}
	return page, nil
}

// CreateFolder creates name under parentID
func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	reqCtx := api.NewRequestContext(s.opts.Profile, "", types.RequestTypeMutation)
	created, err := s.folders.Create(ctx, reqCtx, name, parentID)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// UploadFile uploads localPath as a new file stamped with modTime
func (s *Store) UploadFile(ctx context.Context, localPath, name, parentID string, modTime time.Time) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if name == "" {
		name = filepath.Base(localPath)
	}
	reqCtx := api.NewRequestContext(s.opts.Profile, "", types.RequestTypeUpload)
	uploaded, err := s.files.Upload(ctx, reqCtx, localPath, files.UploadOptions{
		ParentID:     parentID,
		Name:         name,
		ModifiedTime: modTime,
	})
	if err != nil {
		return "", err
	}
	return uploaded.ID, nil
}

// UpdateFile replaces the content of id and stamps it with modTime
func (s *Store) UpdateFile(ctx context.Context, id, localPath string, modTime time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	reqCtx := api.NewRequestContext(s.opts.Profile, "", types.RequestTypeUpload)
	_, err := s.files.UpdateContent(ctx, reqCtx, id, localPath, files.UpdateContentOptions{
		ModifiedTime: modTime,
	})
	return err
}

// Delete permanently removes id
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	reqCtx := api.NewRequestContext(s.opts.Profile, "", types.RequestTypeMutation)
	return s.files.Delete(ctx, reqCtx, id)
}

// ListPermissions returns the access entries on id. Principals are email
// addresses, or the domain for domain-wide grants.
func (s *Store) ListPermissions(ctx context.Context, id string) ([]remote.Grant, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	reqCtx := api.NewRequestContext(s.opts.Profile, "", types.RequestTypePermissionOp)
	perms, err := s.permissions.List(ctx, reqCtx, id)
	if err != nil {
		return nil, err
	}
	grants := make([]remote.Grant, 0, len(perms))
	for _, p := range perms {
		principal := p.EmailAddress
		if principal == "" {
			principal = p.Domain
		}
		grants = append(grants, remote.Grant{Principal: principal, Role: p.Role})
	}
	return grants, nil
}

// GrantPermission gives a user role on id without a notification email
func (s *Store) GrantPermission(ctx context.Context, id, principal, role string) error {
	if err := s.ready(); err != nil {
		return err
	}
	reqCtx := api.NewRequestContext(s.opts.Profile, "", types.RequestTypePermissionOp)
	_, err := s.permissions.Create(ctx, reqCtx, id, permissions.Grant{
		Type:         utils.GranteeUser,
		Role:         role,
		EmailAddress: principal,
	})
	return err
}

func (s *Store) ready() error {
	if s.client == nil {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			"Drive store used before authentication").Build())
	}
	return nil
}

func toItem(f *types.DriveFile) remote.Item {
	return remote.Item{
		ID:           f.ID,
		Name:         f.Name,
		IsFolder:     f.MimeType == utils.MimeTypeFolder,
		ModifiedTime: f.ModifiedTime,
		Parents:      f.Parents,
	}
}
