package permissions

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/dl-alexandre/drivesync/internal/api"
	testutil "github.com/dl-alexandre/drivesync/internal/testing"
	"github.com/dl-alexandre/drivesync/internal/testing/drivetest"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"google.golang.org/api/drive/v3"
)

func newManager(t *testing.T) (*Manager, *drivetest.Server) {
	t.Helper()
	srv := drivetest.NewServer(t)
	client := api.NewClient(srv.Service(t), 0, 100, nil)
	return NewManager(client), srv
}

func TestConvertPermission(t *testing.T) {
	p := &drive.Permission{
		Id:           "perm1",
		Type:         "user",
		Role:         "writer",
		EmailAddress: "a@example.com",
		DisplayName:  "A",
	}
	got := convertPermission(p)
	if got.ID != "perm1" || got.Type != "user" || got.Role != "writer" {
		t.Errorf("unexpected permission: %+v", got)
	}
	if got.EmailAddress != "a@example.com" || got.DisplayName != "A" {
		t.Errorf("identity lost: %+v", got)
	}
}

func TestList(t *testing.T) {
	m, srv := newManager(t)
	folderID := srv.AddFolder("shared", "root")
	srv.AddPermission(folderID, &drive.Permission{Type: "user", Role: "owner", EmailAddress: "me@example.com"})
	srv.AddPermission(folderID, &drive.Permission{Type: "domain", Role: "reader", Domain: "example.com"})

	reqCtx := testutil.TestRequestContext()
	perms, err := m.List(context.Background(), reqCtx, folderID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(perms), 2, "permission count")
	testutil.AssertEqual(t, perms[0].Role, "owner")
	testutil.AssertEqual(t, perms[1].Domain, "example.com")
	if len(reqCtx.InvolvedFileIDs) != 1 || reqCtx.InvolvedFileIDs[0] != folderID {
		t.Errorf("InvolvedFileIDs = %v", reqCtx.InvolvedFileIDs)
	}
}

func TestListMissingFile(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.List(context.Background(), testutil.TestRequestContext(), "nope")
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, utils.ErrorCode(err), utils.ErrCodeFileNotFound)
}

func TestCreate(t *testing.T) {
	m, srv := newManager(t)
	folderID := srv.AddFolder("shared", "root")

	created, err := m.Create(context.Background(), testutil.TestRequestContext(), folderID, Grant{
		Type:         utils.GranteeUser,
		Role:         utils.RoleWriter,
		EmailAddress: "bob@example.com",
	})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, created.Role, utils.RoleWriter)

	stored := srv.Permissions(folderID)
	testutil.AssertEqual(t, len(stored), 1, "stored permissions")
	testutil.AssertEqual(t, stored[0].EmailAddress, "bob@example.com")
}

func TestCreateDoesNotNotify(t *testing.T) {
	srv := drivetest.NewServer(t)
	var query string
	client := api.NewClient(srv.Service(t), 0, 100, nil)
	m := NewManager(client)
	folderID := srv.AddFolder("shared", "root")

	srv.Config.Handler = wrapHandler(srv.Config.Handler, func(r *http.Request) {
		if r.Method == http.MethodPost {
			query = r.URL.RawQuery
		}
	})

	_, err := m.Create(context.Background(), testutil.TestRequestContext(), folderID, Grant{
		Type:         utils.GranteeUser,
		Role:         utils.RoleWriter,
		EmailAddress: "bob@example.com",
	})
	testutil.AssertNoError(t, err)
	values, err := url.ParseQuery(query)
	testutil.AssertNoError(t, err)
	if values.Get("sendNotificationEmail") != "false" {
		t.Errorf("query %q does not disable notification email", query)
	}
}

func wrapHandler(next http.Handler, observe func(*http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observe(r)
		next.ServeHTTP(w, r)
	})
}
