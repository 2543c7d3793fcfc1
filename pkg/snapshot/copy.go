package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
)

// CopyResult describes a filtered workspace copy.
type CopyResult struct {
	Copied     []string
	Skipped    []string
	TotalBytes int64
}

// CopyFiltered copies the files of snap from src into dst in priority order.
// Once maxTotalBytes would be exceeded the remaining files are skipped.
// A non-positive limit copies everything.
func CopyFiltered(ctx context.Context, snap Snapshot, src, dst string, maxTotalBytes int64) (CopyResult, error) {
	var res CopyResult
	for _, rel := range snap.Files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		from := filepath.Join(src, filepath.FromSlash(rel))
		fi, err := os.Stat(from)
		if err != nil {
			clog.WarnContextf(ctx, "snapshot copy: skipping %s: %v", rel, err)
			res.Skipped = append(res.Skipped, rel)
			continue
		}
		if maxTotalBytes > 0 && res.TotalBytes+fi.Size() > maxTotalBytes {
			res.Skipped = append(res.Skipped, rel)
			continue
		}
		to := filepath.Join(dst, filepath.FromSlash(rel))
		if err := copyFile(from, to, fi.Mode().Perm()); err != nil {
			return res, fmt.Errorf("copy %s: %w", rel, err)
		}
		res.Copied = append(res.Copied, rel)
		res.TotalBytes += fi.Size()
	}
	return res, nil
}

// SyncPaths mirrors the given relative paths from src into dst. Paths missing
// from src are removed from dst.
func SyncPaths(ctx context.Context, src, dst string, paths []string) error {
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		from := filepath.Join(src, filepath.FromSlash(rel))
		to := filepath.Join(dst, filepath.FromSlash(rel))
		fi, err := os.Stat(from)
		if errors.Is(err, fs.ErrNotExist) {
			if err := os.Remove(to); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove %s: %w", rel, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("stat %s: %w", rel, err)
		}
		if err := copyFile(from, to, fi.Mode().Perm()); err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
	}
	return nil
}

func copyFile(from, to string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
