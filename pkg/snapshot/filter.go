package snapshot

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultMaxFileSizeBytes is the size limit applied when FilterConfig leaves it unset.
const DefaultMaxFileSizeBytes int64 = 1 << 20

// FilterConfig selects which workspace files take part in a snapshot.
type FilterConfig struct {
	// Include restricts enumeration to files matching these globs. Empty means every file.
	Include []string
	// Exclude adds gitignore-style patterns on top of the built-in ones.
	Exclude []string
	// Prioritize moves matching files to the front of the snapshot order.
	Prioritize []string
	// MaxFileSizeBytes skips files strictly larger than the limit.
	MaxFileSizeBytes int64
	// ExcludedExtensions extends the default binary and media list.
	ExcludedExtensions []string
}

func (c FilterConfig) maxFileSize() int64 {
	if c.MaxFileSizeBytes <= 0 {
		return DefaultMaxFileSizeBytes
	}
	return c.MaxFileSizeBytes
}

// InfraExcludes are directories that never carry meaningful source changes.
var InfraExcludes = []string{
	".git/",
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"target/",
	".venv/",
	"__pycache__/",
	".cache/",
	"coverage/",
}

// DefaultExcludedExtensions lists binary, media and archive extensions.
var DefaultExcludedExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp", ".tiff",
	".mp3", ".mp4", ".wav", ".avi", ".mov", ".ogg", ".flac", ".webm",
	".zip", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".7z", ".rar", ".jar", ".war",
	".exe", ".dll", ".so", ".dylib", ".a", ".o", ".obj", ".bin", ".class", ".pyc", ".pyo", ".wasm",
	".pdf", ".woff", ".woff2", ".ttf", ".otf", ".eot",
}

// ignoreMatcher evaluates layered gitignore patterns. Negations never re-include.
type ignoreMatcher struct {
	patterns []gitignore.Pattern
}

func newIgnoreMatcher(layers ...[]string) *ignoreMatcher {
	m := &ignoreMatcher{}
	for _, layer := range layers {
		for _, line := range layer {
			trimmed := strings.TrimRight(line, "\r")
			if strings.TrimSpace(trimmed) == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			m.patterns = append(m.patterns, gitignore.ParsePattern(trimmed, nil))
		}
	}
	return m
}

// Ignored reports whether rel, or any directory above it, is excluded.
func (m *ignoreMatcher) Ignored(rel string, isDir bool) bool {
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if m.excluded(parts[:i], true) {
			return true
		}
	}
	return m.excluded(parts, isDir)
}

func (m *ignoreMatcher) excluded(parts []string, isDir bool) bool {
	for _, p := range m.patterns {
		if p.Match(parts, isDir) == gitignore.Exclude {
			return true
		}
	}
	return false
}

type extensionSet map[string]struct{}

func newExtensionSet(extra []string) extensionSet {
	set := extensionSet{}
	for _, list := range [][]string{DefaultExcludedExtensions, extra} {
		for _, ext := range list {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			set[ext] = struct{}{}
		}
	}
	return set
}

func (s extensionSet) excluded(rel string) bool {
	ext := strings.ToLower(path.Ext(rel))
	if ext == "" {
		return false
	}
	_, ok := s[ext]
	return ok
}

// priorityRank returns the index of the first pattern matching rel, or len(patterns).
func priorityRank(rel string, patterns []string) int {
	for i, pattern := range patterns {
		if globMatch(pattern, rel) {
			return i
		}
	}
	return len(patterns)
}

// globMatch matches a doublestar pattern against a path. Patterns without a slash
// also match the base name, the way gitignore treats bare names.
func globMatch(pattern, rel string) bool {
	pattern = normalizeGlob(pattern)
	if ok, _ := doublestar.Match(pattern, rel); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, path.Base(rel))
		return ok
	}
	return false
}

func normalizeGlob(pattern string) string {
	pattern = strings.TrimPrefix(strings.TrimSpace(pattern), "./")
	if strings.HasSuffix(pattern, "/") {
		pattern += "**"
	}
	return pattern
}
