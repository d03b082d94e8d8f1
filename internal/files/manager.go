package files

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dl-alexandre/drivesync/internal/api"
	"github.com/dl-alexandre/drivesync/internal/folders"
	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const fileFields = "id,name,mimeType,size,md5Checksum,modifiedTime,parents"

// Manager handles file transfers
type Manager struct {
	client *api.Client
	fs     afero.Fs
}

// NewManager creates a new file manager reading from the OS filesystem
func NewManager(client *api.Client) *Manager {
	return &Manager{
		client: client,
		fs:     afero.NewOsFs(),
	}
}

// WithFs replaces the filesystem local paths are read from
func (m *Manager) WithFs(fs afero.Fs) *Manager {
	m.fs = fs
	return m
}

// UploadOptions configures file upload
type UploadOptions struct {
	ParentID string
	Name     string
	MimeType string
	// ModifiedTime is sent as the remote modification time when set
	ModifiedTime time.Time
}

// UpdateContentOptions configures a content replacement
type UpdateContentOptions struct {
	MimeType     string
	ModifiedTime time.Time
}

// Upload uploads a file to Drive
func (m *Manager) Upload(ctx context.Context, reqCtx *types.RequestContext, localPath string, opts UploadOptions) (*types.DriveFile, error) {
	name := opts.Name
	if name == "" {
		name = filepath.Base(localPath)
	}

	metadata := &drive.File{
		Name:     name,
		MimeType: opts.MimeType,
	}
	if opts.ParentID != "" {
		metadata.Parents = []string{opts.ParentID}
		reqCtx.InvolvedParentIDs = append(reqCtx.InvolvedParentIDs, opts.ParentID)
	}
	if !opts.ModifiedTime.IsZero() {
		metadata.ModifiedTime = FormatDriveTime(opts.ModifiedTime)
	}

	result, err := m.withLocalFile(ctx, reqCtx, localPath, metadata, func(file afero.File, mediaOpts []googleapi.MediaOption) (*drive.File, error) {
		return m.client.Service().Files.Create(metadata).
			Media(file, mediaOpts...).
			Fields(fileFields).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}

	return folders.ConvertDriveFile(result), nil
}

// UpdateContent replaces the content of an existing file
func (m *Manager) UpdateContent(ctx context.Context, reqCtx *types.RequestContext, fileID string, localPath string, opts UpdateContentOptions) (*types.DriveFile, error) {
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, fileID)

	metadata := &drive.File{MimeType: opts.MimeType}
	if !opts.ModifiedTime.IsZero() {
		metadata.ModifiedTime = FormatDriveTime(opts.ModifiedTime)
	}

	result, err := m.withLocalFile(ctx, reqCtx, localPath, metadata, func(file afero.File, mediaOpts []googleapi.MediaOption) (*drive.File, error) {
		return m.client.Service().Files.Update(fileID, metadata).
			Media(file, mediaOpts...).
			Fields(fileFields).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}

	return folders.ConvertDriveFile(result), nil
}

// withLocalFile reopens localPath for every attempt so a retried request
// never sends a half-consumed reader.
func (m *Manager) withLocalFile(ctx context.Context, reqCtx *types.RequestContext, localPath string, metadata *drive.File, send func(afero.File, []googleapi.MediaOption) (*drive.File, error)) (*drive.File, error) {
	stat, err := m.fs.Stat(localPath)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath,
			fmt.Sprintf("Failed to open file: %s", err)).Build(), err)
	}

	if metadata.MimeType == "" {
		metadata.MimeType = m.detectMimeType(localPath)
	}
	mediaOpts := []googleapi.MediaOption{googleapi.ContentType(metadata.MimeType)}
	if selectUploadType(stat.Size(), metadata) == "resumable" {
		mediaOpts = append(mediaOpts, googleapi.ChunkSize(utils.UploadChunkSize))
	}

	return api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.File, error) {
		file, err := m.fs.Open(localPath)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return send(file, mediaOpts)
	})
}

// detectMimeType sniffs content, falling back to application/octet-stream
func (m *Manager) detectMimeType(localPath string) string {
	file, err := m.fs.Open(localPath)
	if err != nil {
		return utils.MimeTypeOctetStream
	}
	defer file.Close()

	mt, err := mimetype.DetectReader(file)
	if err != nil || mt == nil {
		return utils.MimeTypeOctetStream
	}
	// Drive wants the bare media type without charset parameters
	base, _, _ := strings.Cut(mt.String(), ";")
	return strings.TrimSpace(base)
}

func selectUploadType(size int64, metadata *drive.File) string {
	// Larger files go through a resumable session
	if size > int64(utils.UploadSimpleMaxBytes) {
		return "resumable"
	}
	// Metadata and content travel together in one request
	if metadata.Name != "" || metadata.MimeType != "" || len(metadata.Parents) > 0 || metadata.ModifiedTime != "" {
		return "multipart"
	}
	return "simple"
}

// Delete permanently removes a file or folder (and its descendants)
func (m *Manager) Delete(ctx context.Context, reqCtx *types.RequestContext, fileID string) error {
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, fileID)

	_, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (struct{}, error) {
		return struct{}{}, m.client.Service().Files.Delete(fileID).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	})
	return err
}

// FormatDriveTime renders t in the RFC 3339 UTC form Drive stores
func FormatDriveTime(t time.Time) string {
	return t.UTC().Format(utils.DriveTimeLayout)
}
