// Package exclude decides which relative paths a sync run leaves alone,
// using gitignore pattern syntax.
package exclude

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// Matcher reports whether a relative path is excluded. A nil or empty
// Matcher excludes nothing.
type Matcher struct {
	patterns []string
	ignore   *ignore.GitIgnore
}

// New compiles patterns; blank lines and comments are dropped
func New(patterns []string) *Matcher {
	merged := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		merged = append(merged, p)
	}
	m := &Matcher{patterns: merged}
	if len(merged) > 0 {
		m.ignore = ignore.CompileIgnoreLines(merged...)
	}
	return m
}

// Load combines patterns with the ignore file named ignoreFile at the top of
// root, when there is one. The ignore file itself is excluded.
func Load(fs afero.Fs, root, ignoreFile string, patterns []string) (*Matcher, error) {
	all := append([]string{}, patterns...)
	if ignoreFile == "" {
		return New(all), nil
	}

	data, err := afero.ReadFile(fs, path.Join(root, ignoreFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return New(all), nil
	case err != nil:
		return nil, err
	}

	all = append(all, "/"+ignoreFile)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		all = append(all, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return New(all), nil
}

// IsExcluded reports whether relPath (slash separated, relative to the sync
// root) is excluded
func (m *Matcher) IsExcluded(relPath string, isDir bool) bool {
	if m == nil || m.ignore == nil {
		return false
	}
	relPath = strings.TrimPrefix(relPath, "./")
	if relPath == "" {
		return false
	}
	if m.ignore.MatchesPath(relPath) {
		return true
	}
	// Directory-only patterns ("build/") match the directory with a trailing slash
	return isDir && m.ignore.MatchesPath(relPath+"/")
}

// Empty reports whether the matcher has no patterns
func (m *Matcher) Empty() bool {
	return m == nil || len(m.patterns) == 0
}

// Patterns returns the compiled pattern lines
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}
