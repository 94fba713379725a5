// Package matcher implements FileMatcher: pure, no-I/O include/exclude
// glob evaluation against a base directory.
package matcher

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileMatcher decides whether an absolute file path, made relative to a
// base directory, matches a set of include/exclude glob patterns. Patterns
// support `**` (any number of path segments), `*` (any run within a
// segment) and `?` (one rune), the same grammar doublestar implements and
// the one opentofu/opentofu's file-set filtering uses it for.
type FileMatcher struct {
	basedir       string
	includes      []string
	excludes      []string
	caseSensitive bool
}

// New compiles a FileMatcher rooted at basedir. Patterns are validated
// eagerly so a typo in a glob fails at registration time, not on the first
// file it silently fails to match.
func New(basedir string, includes, excludes []string) (*FileMatcher, error) {
	basedir = filepath.Clean(basedir)
	for _, p := range append(append([]string{}, includes...), excludes...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("matcher: invalid glob pattern %q", p)
		}
	}
	return &FileMatcher{
		basedir:       basedir,
		includes:      includes,
		excludes:      excludes,
		caseSensitive: caseSensitiveFS(),
	}, nil
}

// caseSensitiveFS reports whether the host filesystem is case-sensitive.
// darwin and windows default to case-insensitive filesystems; everything
// else (linux, the common CI/container target) is treated as sensitive.
func caseSensitiveFS() bool {
	return runtime.GOOS != "darwin" && runtime.GOOS != "windows"
}

// Matches reports whether file matches this FileMatcher: the includes are
// empty or at least one matches, and no exclude matches.
func (m *FileMatcher) Matches(file string) bool {
	rel, err := filepath.Rel(m.basedir, filepath.Clean(file))
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") || rel == ".." {
		return false
	}

	for _, pattern := range m.excludes {
		if m.matchPattern(pattern, rel) {
			return false
		}
	}
	if len(m.includes) == 0 {
		return true
	}
	for _, pattern := range m.includes {
		if m.matchPattern(pattern, rel) {
			return true
		}
	}
	return false
}

func (m *FileMatcher) matchPattern(pattern, rel string) bool {
	if !m.caseSensitive {
		pattern = strings.ToLower(pattern)
		rel = strings.ToLower(rel)
	}
	ok, err := doublestar.Match(pattern, rel)
	return err == nil && ok
}
