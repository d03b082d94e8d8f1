package testing

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/spf13/afero"
)

// TestContext creates a standard test context
func TestContext() context.Context {
	return context.Background()
}

// TestRequestContext creates a standard request context for testing
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		Profile:           "test-profile",
		DriveID:           "",
		InvolvedFileIDs:   []string{},
		InvolvedParentIDs: []string{},
		RequestType:       types.RequestTypeListOrSearch,
		TraceID:           "test-trace-id",
	}
}

// LocalFile describes one entry of a tree written by WriteTree. A path ending
// in "/" is a folder.
type LocalFile struct {
	Content string
	ModTime int64
}

// WriteTree creates the given entries below root in fs. Parent folders are
// created as needed and all entries get their ModTime, folders included.
func WriteTree(t testing.TB, fs afero.Fs, root string, entries map[string]LocalFile) {
	t.Helper()
	if err := fs.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", root, err)
	}

	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		e := entries[p]
		full := path.Join(root, strings.TrimSuffix(p, "/"))
		if strings.HasSuffix(p, "/") {
			if err := fs.MkdirAll(full, 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", full, err)
			}
		} else {
			if err := fs.MkdirAll(path.Dir(full), 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", path.Dir(full), err)
			}
			if err := afero.WriteFile(fs, full, []byte(e.Content), 0o644); err != nil {
				t.Fatalf("write %s: %v", full, err)
			}
		}
	}

	// Stamp deepest first so writing a child never disturbs a stamped parent
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	for _, p := range paths {
		e := entries[p]
		full := path.Join(root, strings.TrimSuffix(p, "/"))
		mt := time.Unix(e.ModTime, 0)
		if err := fs.Chtimes(full, mt, mt); err != nil {
			t.Fatalf("chtimes %s: %v", full, err)
		}
	}
}

// StatusRecorder collects status lines
type StatusRecorder struct {
	mu    sync.Mutex
	lines []string
}

// Func returns the sink that appends to the recorder
func (r *StatusRecorder) Func() logging.StatusFunc {
	return func(line string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.lines = append(r.lines, line)
	}
}

// Lines returns the recorded lines
func (r *StatusRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Contains reports whether any recorded line contains substr
func (r *StatusRecorder) Contains(substr string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// AssertNoError is a helper to fail the test if error is not nil
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: %v", msgAndArgs[0], err)
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

// AssertError is a helper to fail the test if error is nil
func AssertError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: expected error but got nil", msgAndArgs[0])
		} else {
			t.Fatal("expected error but got nil")
		}
	}
}

// AssertEqual is a helper to fail the test if two values are not equal
func AssertEqual(t *testing.T, got, want interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if got != want {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: got %v, want %v", msgAndArgs[0], got, want)
		} else {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
