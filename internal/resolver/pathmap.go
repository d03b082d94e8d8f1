package resolver

import "path"

// PathIDMap maps relative paths below the destination to remote ids. The
// empty path is the destination itself. A map belongs to one run.
type PathIDMap map[string]string

// NewPathIDMap creates a map rooted at rootID
func NewPathIDMap(rootID string) PathIDMap {
	return PathIDMap{"": rootID}
}

// Set records the id of rel
func (m PathIDMap) Set(rel, id string) {
	m[rel] = id
}

// Get returns the id recorded for rel
func (m PathIDMap) Get(rel string) (string, bool) {
	id, ok := m[rel]
	return id, ok
}

// ParentID returns the id of the nearest recorded ancestor of rel. It falls
// back to the root when no intermediate folder is known.
func (m PathIDMap) ParentID(rel string) string {
	for dir := path.Dir(rel); ; dir = path.Dir(dir) {
		if dir == "." || dir == "/" {
			dir = ""
		}
		if id, ok := m[dir]; ok {
			return id
		}
		if dir == "" {
			return ""
		}
	}
}
