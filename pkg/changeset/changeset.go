// Package changeset compares two workspace snapshots.
package changeset

import (
	"context"
	"errors"
	"sort"

	"github.com/olemp/code-agent/pkg/snapshot"
)

// Kind classifies a single path change.
type Kind string

const (
	Added    Kind = "added"
	Modified Kind = "modified"
	Deleted  Kind = "deleted"
)

// Change is one changed path.
type Change struct {
	Path string
	Kind Kind
}

// ChangeSet is the sorted set of paths whose presence or content differs.
type ChangeSet struct {
	Changes []Change
}

// Diff returns every path that was added, removed or whose digest differs.
// Both snapshots must have been captured with the same FilterConfig.
func Diff(before, after snapshot.Snapshot) ChangeSet {
	var changes []Change
	for path, newDigest := range after.Digests {
		oldDigest, ok := before.Digests[path]
		switch {
		case !ok:
			changes = append(changes, Change{Path: path, Kind: Added})
		case oldDigest != newDigest:
			changes = append(changes, Change{Path: path, Kind: Modified})
		}
	}
	for path := range before.Digests {
		if _, ok := after.Digests[path]; !ok {
			changes = append(changes, Change{Path: path, Kind: Deleted})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return ChangeSet{Changes: changes}
}

// Paths returns the changed paths in lexical order.
func (c ChangeSet) Paths() []string {
	out := make([]string, 0, len(c.Changes))
	for _, ch := range c.Changes {
		out = append(out, ch.Path)
	}
	return out
}

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return len(c.Changes) == 0
}

// Len returns the number of changed paths.
func (c ChangeSet) Len() int {
	return len(c.Changes)
}

// Added returns the paths only present after the run.
func (c ChangeSet) Added() []string { return c.ofKind(Added) }

// Modified returns the paths whose content changed.
func (c ChangeSet) Modified() []string { return c.ofKind(Modified) }

// Deleted returns the paths only present before the run.
func (c ChangeSet) Deleted() []string { return c.ofKind(Deleted) }

func (c ChangeSet) ofKind(k Kind) []string {
	var out []string
	for _, ch := range c.Changes {
		if ch.Kind == k {
			out = append(out, ch.Path)
		}
	}
	return out
}

// ErrNoBaseline is returned when Changes is called before Baseline.
var ErrNoBaseline = errors.New("changeset: baseline not captured")

// Detector captures a baseline and later diffs the workspace against it,
// using one FilterConfig for both captures.
type Detector struct {
	Root   string
	Filter snapshot.FilterConfig

	baseline *snapshot.Snapshot
}

// NewDetector returns a detector for root.
func NewDetector(root string, filter snapshot.FilterConfig) *Detector {
	return &Detector{Root: root, Filter: filter}
}

// Baseline captures the "before" snapshot.
func (d *Detector) Baseline(ctx context.Context) (snapshot.Snapshot, error) {
	snap, err := snapshot.Capture(ctx, d.Root, d.Filter)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	d.baseline = &snap
	return snap, nil
}

// Changes captures the "after" snapshot and diffs it against the baseline.
func (d *Detector) Changes(ctx context.Context) (ChangeSet, error) {
	if d.baseline == nil {
		return ChangeSet{}, ErrNoBaseline
	}
	after, err := snapshot.Capture(ctx, d.Root, d.Filter)
	if err != nil {
		return ChangeSet{}, err
	}
	return Diff(*d.baseline, after), nil
}
