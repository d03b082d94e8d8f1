package permissions

import (
	"context"
	"strings"

	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/remote"
	"github.com/dl-alexandre/drivesync/internal/utils"
)

// Granter is the part of a remote store the Sharer needs
type Granter interface {
	ListPermissions(ctx context.Context, id string) ([]remote.Grant, error)
	GrantPermission(ctx context.Context, id, principal, role string) error
}

// Sharer grants a principal write access to a folder at most once
type Sharer struct {
	store  Granter
	status logging.StatusFunc
	logger logging.Logger
}

// NewSharer creates a Sharer reporting through status and logger
func NewSharer(store Granter, status logging.StatusFunc, logger logging.Logger) *Sharer {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Sharer{store: store, status: status, logger: logger}
}

// Share grants email the writer role on resourceID. It returns true when
// the principal already has write access or the grant went through. Under
// dryRun the grant is only reported.
func (s *Sharer) Share(ctx context.Context, resourceID, email string, dryRun bool) bool {
	grants, err := s.store.ListPermissions(ctx, resourceID)
	if err != nil {
		if utils.IsCancelled(err) {
			return false
		}
		s.status.Printf("⚠️  Could not check existing permissions on %s: %v", resourceID, err)
		s.logger.Warn("permission listing failed, granting anyway",
			logging.F("resourceId", resourceID),
			logging.F("error", err.Error()))
	} else if HasWriteAccess(grants, email) {
		s.status.Printf("✅ %s already has write access.", email)
		return true
	}

	if dryRun {
		s.status.Printf("[DRY RUN] Would share folder with %s as %s.", email, utils.RoleWriter)
		return true
	}

	if utils.CheckContext(ctx) != nil {
		return false
	}
	if err := s.store.GrantPermission(ctx, resourceID, email, utils.RoleWriter); err != nil {
		s.status.Printf("❌ Failed to share folder with %s: %v", email, err)
		s.logger.Error("permission grant failed",
			logging.F("resourceId", resourceID),
			logging.F("principal", email),
			logging.F("error", err.Error()))
		return false
	}

	s.status.Printf("🤝 Shared folder with %s as %s.", email, utils.RoleWriter)
	return true
}

// HasWriteAccess reports whether email holds a writer-or-better role in grants
func HasWriteAccess(grants []remote.Grant, email string) bool {
	for _, g := range grants {
		if !strings.EqualFold(g.Principal, email) {
			continue
		}
		switch g.Role {
		case utils.RoleWriter, utils.RoleOrganizer, utils.RoleOwner:
			return true
		}
	}
	return false
}
