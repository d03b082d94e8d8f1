// Package drivetest serves an in-memory subset of the Drive v3 REST API so
// managers can be exercised through the real generated client.
package drivetest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DefaultModifiedTime is stamped on items created without an explicit modifiedTime
const DefaultModifiedTime = "2024-01-01T00:00:00.000Z"

var (
	parentRe   = regexp.MustCompile(`'([^']*)' in parents`)
	nameRe     = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)
	mimeEqRe   = regexp.MustCompile(`mimeType = '([^']*)'`)
	mimeNeRe   = regexp.MustCompile(`mimeType != '([^']*)'`)
	unescapeRe = regexp.MustCompile(`\\(.)`)
)

type failure struct {
	method  string
	path    string
	status  int
	reason  string
	remains int
}

// Server is a fake Drive backend
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string]*drive.File
	order    []string
	content  map[string][]byte
	perms    map[string][]*drive.Permission
	failures []*failure
	requests []string
	nextID   int
}

// NewServer starts a fake Drive server that is closed with the test
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		files:   make(map[string]*drive.File),
		content: make(map[string][]byte),
		perms:   make(map[string][]*drive.Permission),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Service returns a Drive client bound to this server
func (s *Server) Service(t testing.TB) *drive.Service {
	t.Helper()
	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(s.URL+"/drive/v3/"),
		option.WithHTTPClient(s.Client()),
	)
	if err != nil {
		t.Fatalf("drive.NewService: %v", err)
	}
	return svc
}

// AddFolder seeds a folder and returns its id
func (s *Server) AddFolder(name, parentID string) string {
	return s.add(&drive.File{Name: name, MimeType: folderMimeType, Parents: parentsOf(parentID)}, nil)
}

// AddFile seeds a file and returns its id. An empty modified uses DefaultModifiedTime.
func (s *Server) AddFile(name, parentID, modified string, content []byte) string {
	return s.add(&drive.File{Name: name, MimeType: "text/plain", Parents: parentsOf(parentID), ModifiedTime: modified}, content)
}

// AddItem seeds an arbitrary item, keeping its Parents as given
func (s *Server) AddItem(f *drive.File) string {
	return s.add(f, nil)
}

// AddPermission attaches a permission to an item
func (s *Server) AddPermission(fileID string, p *drive.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Id == "" {
		p.Id = s.newID("perm")
	}
	s.perms[fileID] = append(s.perms[fileID], p)
}

// File returns a copy of a stored item
func (s *Server) File(id string) (*drive.File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, false
	}
	cp := *f
	return &cp, true
}

// Content returns the uploaded bytes of a file
func (s *Server) Content(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.content[id]...)
}

// Children lists direct children of parentID in insertion order
func (s *Server) Children(parentID string) []*drive.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*drive.File
	for _, id := range s.order {
		f := s.files[id]
		if hasParent(f, parentID) {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out
}

// Permissions returns the permissions attached to an item
func (s *Server) Permissions(fileID string) []*drive.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*drive.Permission(nil), s.perms[fileID]...)
}

// FailNext makes the next matching request fail with status. pathContains
// is matched against the URL path; an empty method matches any method.
func (s *Server) FailNext(method, pathContains string, status int, reason string) {
	s.FailTimes(method, pathContains, status, reason, 1)
}

// FailTimes is FailNext for n consecutive matching requests
func (s *Server) FailTimes(method, pathContains string, status int, reason string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{method: method, path: pathContains, status: status, reason: reason, remains: n})
}

// Requests returns "METHOD path" for every request served so far
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests counts served requests with the given method whose path contains substr
func (s *Server) CountRequests(method, substr string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r, method+" ") && strings.Contains(r, substr) {
			n++
		}
	}
	return n
}

func (s *Server) add(f *drive.File, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Id == "" {
		f.Id = s.newID("id")
	}
	if f.ModifiedTime == "" {
		f.ModifiedTime = DefaultModifiedTime
	}
	s.files[f.Id] = f
	s.order = append(s.order, f.Id)
	if content != nil {
		s.content[f.Id] = content
		f.Size = int64(len(content))
	}
	return f.Id
}

func (s *Server) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	if f := s.takeFailure(r); f != nil {
		s.mu.Unlock()
		writeError(w, f.status, f.reason)
		return
	}
	s.mu.Unlock()

	path := r.URL.Path
	idx := strings.LastIndex(path, "drive/v3/")
	if idx < 0 {
		writeError(w, http.StatusNotFound, "notFound")
		return
	}
	upload := strings.Contains(path, "/upload/")
	segs := strings.Split(strings.Trim(path[idx+len("drive/v3/"):], "/"), "/")

	switch {
	case len(segs) == 1 && segs[0] == "files" && r.Method == http.MethodGet:
		s.list(w, r)
	case len(segs) == 1 && segs[0] == "files" && r.Method == http.MethodPost:
		s.create(w, r, upload)
	case len(segs) == 2 && segs[0] == "files" && r.Method == http.MethodPatch:
		s.update(w, r, segs[1], upload)
	case len(segs) == 2 && segs[0] == "files" && r.Method == http.MethodGet:
		s.get(w, segs[1])
	case len(segs) == 2 && segs[0] == "files" && r.Method == http.MethodDelete:
		s.delete(w, segs[1])
	case len(segs) == 3 && segs[2] == "permissions" && r.Method == http.MethodGet:
		s.listPermissions(w, r, segs[1])
	case len(segs) == 3 && segs[2] == "permissions" && r.Method == http.MethodPost:
		s.createPermission(w, r, segs[1])
	default:
		writeError(w, http.StatusNotFound, "notFound")
	}
}

// takeFailure must be called with s.mu held
func (s *Server) takeFailure(r *http.Request) *failure {
	for i, f := range s.failures {
		if (f.method == "" || f.method == r.Method) && strings.Contains(r.URL.Path, f.path) {
			f.remains--
			if f.remains <= 0 {
				s.failures = append(s.failures[:i], s.failures[i+1:]...)
			}
			return f
		}
	}
	return nil
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	var parent, name, mimeEq, mimeNe string
	if m := parentRe.FindStringSubmatch(q); m != nil {
		parent = m[1]
	}
	if m := nameRe.FindStringSubmatch(q); m != nil {
		name = unescapeRe.ReplaceAllString(m[1], "$1")
	}
	if m := mimeEqRe.FindStringSubmatch(q); m != nil {
		mimeEq = m[1]
	}
	if m := mimeNeRe.FindStringSubmatch(q); m != nil {
		mimeNe = m[1]
	}
	excludeTrashed := strings.Contains(q, "trashed = false")

	s.mu.Lock()
	var matched []*drive.File
	for _, id := range s.order {
		f := s.files[id]
		switch {
		case parent != "" && !hasParent(f, parent):
		case name != "" && f.Name != name:
		case mimeEq != "" && f.MimeType != mimeEq:
		case mimeNe != "" && f.MimeType == mimeNe:
		case excludeTrashed && f.Trashed:
		default:
			cp := *f
			matched = append(matched, &cp)
		}
	}
	s.mu.Unlock()

	pageSize := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && v > 0 {
		pageSize = v
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + pageSize
	result := &drive.FileList{}
	if end < len(matched) {
		result.NextPageToken = strconv.Itoa(end)
	} else {
		end = len(matched)
	}
	result.Files = matched[offset:end]
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, upload bool) {
	meta, content, err := readBody(r, upload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "badRequest")
		return
	}
	meta.Id = ""
	if upload && content == nil {
		content = []byte{}
	}
	id := s.add(meta, content)
	f, _ := s.File(id)
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, id string, upload bool) {
	meta, content, err := readBody(r, upload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "badRequest")
		return
	}

	s.mu.Lock()
	f, ok := s.files[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "notFound")
		return
	}
	if meta.Name != "" {
		f.Name = meta.Name
	}
	if meta.MimeType != "" {
		f.MimeType = meta.MimeType
	}
	if meta.ModifiedTime != "" {
		f.ModifiedTime = meta.ModifiedTime
	}
	if content != nil {
		s.content[id] = content
		f.Size = int64(len(content))
	}
	cp := *f
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, &cp)
}

func (s *Server) get(w http.ResponseWriter, id string) {
	f, ok := s.File(id)
	if !ok {
		writeError(w, http.StatusNotFound, "notFound")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) delete(w http.ResponseWriter, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		writeError(w, http.StatusNotFound, "notFound")
		return
	}
	// Drive removes descendants along with a folder
	doomed := map[string]bool{id: true}
	for changed := true; changed; {
		changed = false
		for fid, f := range s.files {
			if doomed[fid] {
				continue
			}
			for _, p := range f.Parents {
				if doomed[p] {
					doomed[fid] = true
					changed = true
					break
				}
			}
		}
	}
	kept := s.order[:0]
	for _, fid := range s.order {
		if doomed[fid] {
			delete(s.files, fid)
			delete(s.content, fid)
			continue
		}
		kept = append(kept, fid)
	}
	s.order = kept
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request, fileID string) {
	if _, ok := s.File(fileID); !ok {
		writeError(w, http.StatusNotFound, "notFound")
		return
	}
	writeJSON(w, http.StatusOK, &drive.PermissionList{Permissions: s.Permissions(fileID)})
}

func (s *Server) createPermission(w http.ResponseWriter, r *http.Request, fileID string) {
	if _, ok := s.File(fileID); !ok {
		writeError(w, http.StatusNotFound, "notFound")
		return
	}
	var p drive.Permission
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "badRequest")
		return
	}
	p.Id = ""
	s.AddPermission(fileID, &p)
	writeJSON(w, http.StatusOK, &p)
}

// readBody decodes metadata and, for uploads, the media part
func readBody(r *http.Request, upload bool) (*drive.File, []byte, error) {
	meta := &drive.File{}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	if !upload {
		if err := json.NewDecoder(r.Body).Decode(meta); err != nil && err != io.EOF {
			return nil, nil, err
		}
		return meta, nil, nil
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		data, err := io.ReadAll(r.Body)
		return meta, data, err
	}

	mr := multipart.NewReader(r.Body, params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		return nil, nil, err
	}
	if err := json.NewDecoder(part).Decode(meta); err != nil {
		return nil, nil, err
	}
	part, err = mr.NextPart()
	if err != nil {
		return nil, nil, err
	}
	data, err := io.ReadAll(part)
	return meta, data, err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": fmt.Sprintf("injected %d", status),
			"errors":  []map[string]string{{"reason": reason, "message": reason}},
		},
	})
}

func parentsOf(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}

func hasParent(f *drive.File, parent string) bool {
	for _, p := range f.Parents {
		if p == parent {
			return true
		}
	}
	return false
}
