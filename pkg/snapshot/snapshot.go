// Package snapshot captures content digests for the files of a workspace.
//
// A capture enumerates files (all of them, or those matching include globs),
// drops anything hit by the layered ignore rules, excluded extensions or the
// size limit, orders the rest by priority and hashes each survivor.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/chainguard-dev/clog"

	"github.com/olemp/code-agent/pkg/digest"
)

// ErrEmpty is returned by callers that treat an empty capture as a stop condition.
var ErrEmpty = errors.New("no files remain after filtering")

// Snapshot maps relative, slash-separated paths to content digests.
type Snapshot struct {
	// Files holds the captured paths in priority order.
	Files []string
	// Digests maps each path in Files to its hex SHA-256 digest.
	Digests map[string]string
}

// Len returns the number of captured files.
func (s Snapshot) Len() int {
	return len(s.Digests)
}

// Empty reports whether nothing survived filtering.
func (s Snapshot) Empty() bool {
	return len(s.Digests) == 0
}

// Digest returns the digest recorded for rel.
func (s Snapshot) Digest(rel string) (string, bool) {
	d, ok := s.Digests[rel]
	return d, ok
}

// Capture enumerates, filters and hashes files under root.
func Capture(ctx context.Context, root string, cfg FilterConfig) (Snapshot, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stat workspace root: %w", err)
	}
	if !info.IsDir() {
		return Snapshot{}, fmt.Errorf("workspace root %s is not a directory", root)
	}

	matcher := newIgnoreMatcher(InfraExcludes, cfg.Exclude, readGitignore(ctx, root))

	var candidates []string
	if len(cfg.Include) > 0 {
		candidates = globCandidates(ctx, root, cfg.Include)
	} else {
		candidates, err = walkCandidates(ctx, root)
		if err != nil {
			return Snapshot{}, err
		}
	}

	exts := newExtensionSet(cfg.ExcludedExtensions)
	maxSize := cfg.maxFileSize()
	kept := make([]string, 0, len(candidates))
	for _, rel := range candidates {
		if matcher.Ignored(rel, false) || exts.excluded(rel) {
			continue
		}
		fi, err := os.Lstat(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			clog.WarnContextf(ctx, "snapshot: skipping %s: %v", rel, err)
			continue
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		if fi.Size() > maxSize {
			continue
		}
		kept = append(kept, rel)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		ri, rj := priorityRank(kept[i], cfg.Prioritize), priorityRank(kept[j], cfg.Prioritize)
		if ri != rj {
			return ri < rj
		}
		return kept[i] < kept[j]
	})

	snap := Snapshot{Files: make([]string, 0, len(kept)), Digests: make(map[string]string, len(kept))}
	for _, rel := range kept {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		sum, err := digest.File(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			clog.WarnContextf(ctx, "snapshot: skipping unreadable file: %v", err)
			continue
		}
		snap.Files = append(snap.Files, rel)
		snap.Digests[rel] = sum
	}
	return snap, nil
}

func readGitignore(ctx context.Context, root string) []string {
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			clog.WarnContextf(ctx, "snapshot: reading .gitignore: %v", err)
		}
		return nil
	}
	return strings.Split(string(data), "\n")
}

func walkCandidates(ctx context.Context, root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			clog.WarnContextf(ctx, "snapshot: skipping %s: %v", p, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == root {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}
	return out, nil
}

func globCandidates(ctx context.Context, root string, patterns []string) []string {
	fsys := os.DirFS(root)
	seen := map[string]struct{}{}
	var out []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, normalizeGlob(pattern))
		if err != nil {
			clog.WarnContextf(ctx, "snapshot: ignoring include pattern %q: %v", pattern, err)
			continue
		}
		for _, m := range matches {
			if m == ".git" || strings.HasPrefix(m, ".git/") {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}
