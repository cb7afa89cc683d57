// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bundle

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyStats reports what a tree copy moved.
type CopyStats struct {
	Files int
	Bytes int64
}

// CopyTree recursively copies the directory src into dst, creating dst if
// needed. File modes and mod times are preserved; symlinks are copied as
// symlinks rather than followed, so a link inside the library can never
// pull in files from outside it.
//
// # Inputs
//   - ctx: cancels the copy between entries.
//   - src: source directory. Must exist and be a directory.
//   - dst: destination directory. Created if missing.
//
// # Outputs
//   - *CopyStats: count and byte total of regular files copied.
//   - error: first failure encountered; the partial copy is left in place.
func CopyTree(ctx context.Context, src, dst string) (*CopyStats, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("copy tree: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("copy tree: %s is not a directory", src)
	}

	stats := &CopyStats{}
	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		fi, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, fi.Mode().Perm()|0o700)

		case fi.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)

		case fi.Mode().IsRegular():
			n, err := copyFile(p, target, fi)
			if err != nil {
				return err
			}
			stats.Files++
			stats.Bytes += n
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("copy tree: %w", err)
	}
	return stats, nil
}

// copyFile copies one regular file, carrying over mode and mod time.
func copyFile(src, dst string, info os.FileInfo) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, err
	}
	if err := out.Close(); err != nil {
		return n, err
	}
	return n, os.Chtimes(dst, info.ModTime(), info.ModTime())
}
