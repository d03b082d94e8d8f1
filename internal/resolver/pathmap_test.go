package resolver

import "testing"

func TestPathIDMapParentID(t *testing.T) {
	m := NewPathIDMap("dest")
	m.Set("a", "id-a")
	m.Set("a/b", "id-b")

	tests := []struct {
		rel  string
		want string
	}{
		{"top.txt", "dest"},
		{"a/file.txt", "id-a"},
		{"a/b/file.txt", "id-b"},
		{"a/b/c/d/file.txt", "id-b"},
		{"x/y.txt", "dest"},
	}
	for _, tt := range tests {
		if got := m.ParentID(tt.rel); got != tt.want {
			t.Errorf("ParentID(%q) = %q, want %q", tt.rel, got, tt.want)
		}
	}

	if id, ok := m.Get(""); !ok || id != "dest" {
		t.Errorf("root = %q, %v", id, ok)
	}
}

func TestPathIDMapEmptyRoot(t *testing.T) {
	m := PathIDMap{}
	if got := m.ParentID("a/b"); got != "" {
		t.Errorf("ParentID with no root = %q", got)
	}
}

func TestPlaceholder(t *testing.T) {
	id := Placeholder("Photos")
	if id != "dryrun:Photos" {
		t.Errorf("Placeholder = %q", id)
	}
	if !IsPlaceholder(id) || IsPlaceholder("1AbC") {
		t.Error("IsPlaceholder misclassified ids")
	}
}
