package mocks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dl-alexandre/drivesync/internal/remote"
	"github.com/dl-alexandre/drivesync/internal/utils"
)

// Operation names recorded in Store.Calls
const (
	OpAuthenticate    = "authenticate"
	OpListChildren    = "list_children"
	OpCreateFolder    = "create_folder"
	OpUploadFile      = "upload_file"
	OpUpdateFile      = "update_file"
	OpDelete          = "delete"
	OpListPermissions = "list_permissions"
	OpGrantPermission = "grant_permission"
)

// ErrNotFound is returned for operations on unknown ids
var ErrNotFound = errors.New("mock store: item not found")

// Call records one operation issued against the Store
type Call struct {
	Op   string
	Args []string
}

// Node is an item held by the Store
type Node struct {
	remote.Item
	LocalPath string
	Grants    []remote.Grant
}

// Store is an in-memory remote.Store. The zero value is not usable; call
// NewStore. Setting an XxxFunc field replaces the built-in behavior of that
// operation; Hook runs before every operation and fails it by returning an
// error.
type Store struct {
	mu     sync.Mutex
	nodes  map[string]*Node
	order  []string
	calls  []Call
	nextID int
	fail   map[string]error

	// PageSize bounds ListChildren pages; 0 means 100
	PageSize int

	Hook func(op string, args ...string) error

	AuthenticateFunc    func(ctx context.Context) error
	GrantPermissionFunc func(ctx context.Context, id, principal, role string) error
	ListPermissionsFunc func(ctx context.Context, id string) ([]remote.Grant, error)
}

var _ remote.Store = (*Store)(nil)

// NewStore creates an empty store whose root id is utils.RootFolderID
func NewStore() *Store {
	return &Store{
		nodes: make(map[string]*Node),
		fail:  make(map[string]error),
	}
}

// AddFolder seeds a folder and returns its id
func (s *Store) AddFolder(name, parentID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(remote.Item{Name: name, IsFolder: true, Parents: []string{parentID}}, "")
}

// AddFile seeds a file modified at modTime and returns its id
func (s *Store) AddFile(name, parentID string, modTime time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(remote.Item{
		Name:         name,
		ModifiedTime: formatTime(modTime),
		Parents:      []string{parentID},
	}, "")
}

// AddItem seeds an arbitrary item, keeping its id when set
func (s *Store) AddItem(item remote.Item) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(item, "")
}

// AddGrant seeds an access entry
func (s *Store) AddGrant(id, principal, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[id]; ok {
		n.Grants = append(n.Grants, remote.Grant{Principal: principal, Role: role})
	}
}

// FailOn makes every later call of op fail with err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Node returns a copy of the item with id
func (s *Store) Node(id string) (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Lookup resolves a slash-separated path below parentID to an id
func (s *Store) Lookup(parentID, path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := parentID
	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		found := ""
		for _, id := range s.order {
			n := s.nodes[id]
			if n.Name == name && hasParent(n, current) {
				found = id
				break
			}
		}
		if found == "" {
			return "", false
		}
		current = found
	}
	return current, true
}

// Paths returns every item below rootID keyed by relative path
func (s *Store) Paths(rootID string) map[string]Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Node)
	var walk func(parent, prefix string)
	walk = func(parent, prefix string) {
		for _, id := range s.order {
			n := s.nodes[id]
			if !hasParent(n, parent) {
				continue
			}
			p := n.Name
			if prefix != "" {
				p = prefix + "/" + n.Name
			}
			out[p] = *n
			if n.IsFolder {
				walk(id, p)
			}
		}
	}
	walk(rootID, "")
	return out
}

// Grants returns the access entries on id
func (s *Store) Grants(id string) []remote.Grant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[id]; ok {
		return append([]remote.Grant(nil), n.Grants...)
	}
	return nil
}

// Calls returns every recorded operation in order
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded calls of one operation
func (s *Store) CallsTo(op string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Mutations counts calls that change remote state
func (s *Store) Mutations() int {
	n := 0
	for _, c := range s.Calls() {
		switch c.Op {
		case OpCreateFolder, OpUploadFile, OpUpdateFile, OpDelete, OpGrantPermission:
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls, keeping the stored items
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Authenticate implements remote.Store
func (s *Store) Authenticate(ctx context.Context) error {
	if err := s.begin(ctx, OpAuthenticate); err != nil {
		return err
	}
	if s.AuthenticateFunc != nil {
		return s.AuthenticateFunc(ctx)
	}
	return nil
}

// ListChildren implements remote.Store
func (s *Store) ListChildren(ctx context.Context, q remote.Query) (remote.Page, error) {
	if err := s.begin(ctx, OpListChildren, q.ParentID, q.Name, q.PageToken); err != nil {
		return remote.Page{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []remote.Item
	for _, id := range s.order {
		n := s.nodes[id]
		switch {
		case !hasParent(n, q.ParentID):
		case q.Name != "" && n.Name != q.Name:
		case q.FoldersOnly && !n.IsFolder:
		default:
			item := n.Item
			item.Parents = append([]string(nil), n.Parents...)
			matched = append(matched, item)
		}
	}

	size := s.PageSize
	if size <= 0 {
		size = 100
	}
	offset := 0
	if q.PageToken != "" {
		if _, err := fmt.Sscanf(q.PageToken, "page-%d", &offset); err != nil || offset > len(matched) {
			return remote.Page{}, fmt.Errorf("mock store: bad page token %q", q.PageToken)
		}
	}
	end := offset + size
	page := remote.Page{}
	if end < len(matched) {
		page.NextPageToken = fmt.Sprintf("page-%d", end)
	} else {
		end = len(matched)
	}
	page.Items = matched[offset:end]
	return page, nil
}

// CreateFolder implements remote.Store
func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if err := s.begin(ctx, OpCreateFolder, name, parentID); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(remote.Item{Name: name, IsFolder: true, Parents: []string{parentID}}, ""), nil
}

// UploadFile implements remote.Store
func (s *Store) UploadFile(ctx context.Context, localPath, name, parentID string, modTime time.Time) (string, error) {
	if err := s.begin(ctx, OpUploadFile, localPath, name, parentID); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(remote.Item{
		Name:         name,
		ModifiedTime: formatTime(modTime),
		Parents:      []string{parentID},
	}, localPath), nil
}

// UpdateFile implements remote.Store
func (s *Store) UpdateFile(ctx context.Context, id, localPath string, modTime time.Time) error {
	if err := s.begin(ctx, OpUpdateFile, id, localPath); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return ErrNotFound
	}
	n.ModifiedTime = formatTime(modTime)
	n.LocalPath = localPath
	return nil
}

// Delete implements remote.Store; descendants of a folder go with it
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.begin(ctx, OpDelete, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return ErrNotFound
	}
	doomed := map[string]bool{id: true}
	for changed := true; changed; {
		changed = false
		for nid, n := range s.nodes {
			if doomed[nid] {
				continue
			}
			for _, p := range n.Parents {
				if doomed[p] {
					doomed[nid] = true
					changed = true
					break
				}
			}
		}
	}
	kept := s.order[:0]
	for _, nid := range s.order {
		if doomed[nid] {
			delete(s.nodes, nid)
			continue
		}
		kept = append(kept, nid)
	}
	s.order = kept
	return nil
}

// ListPermissions implements remote.Store
func (s *Store) ListPermissions(ctx context.Context, id string) ([]remote.Grant, error) {
	if err := s.begin(ctx, OpListPermissions, id); err != nil {
		return nil, err
	}
	if s.ListPermissionsFunc != nil {
		return s.ListPermissionsFunc(ctx, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]remote.Grant(nil), n.Grants...), nil
}

// GrantPermission implements remote.Store
func (s *Store) GrantPermission(ctx context.Context, id, principal, role string) error {
	if err := s.begin(ctx, OpGrantPermission, id, principal, role); err != nil {
		return err
	}
	if s.GrantPermissionFunc != nil {
		return s.GrantPermissionFunc(ctx, id, principal, role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return ErrNotFound
	}
	n.Grants = append(n.Grants, remote.Grant{Principal: principal, Role: role})
	return nil
}

// begin records the call, then applies ctx, Hook and FailOn in that order
func (s *Store) begin(ctx context.Context, op string, args ...string) error {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Op: op, Args: args})
	failErr := s.fail[op]
	hook := s.Hook
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if hook != nil {
		if err := hook(op, args...); err != nil {
			return err
		}
	}
	return failErr
}

// add must be called with s.mu held
func (s *Store) add(item remote.Item, localPath string) string {
	if item.ID == "" {
		s.nextID++
		item.ID = fmt.Sprintf("mock-%d", s.nextID)
	}
	if item.ModifiedTime == "" {
		item.ModifiedTime = formatTime(time.Unix(0, 0))
	}
	s.nodes[item.ID] = &Node{Item: item, LocalPath: localPath}
	s.order = append(s.order, item.ID)
	return item.ID
}

// SortedPaths returns the keys of Paths in order
func SortedPaths(nodes map[string]Node) []string {
	out := make([]string, 0, len(nodes))
	for p := range nodes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func hasParent(n *Node, parent string) bool {
	for _, p := range n.Parents {
		if p == parent {
			return true
		}
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(utils.DriveTimeLayout)
}
