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
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/natefinch/atomic"

	"github.com/drydockworks/drydock/pkg/logging"
)

// maxManifestSize bounds how much of an archive Inspect will read as JSON.
const maxManifestSize = 1 << 20

// ArchiveCodec converts between the expanded and packed bundle forms.
type ArchiveCodec interface {
	// Pack writes bundleDir into a .tar.gz at destPath. Every entry sits
	// under the single top-level directory named after the bundle, and the
	// finished file is moved into place atomically.
	Pack(ctx context.Context, bundleDir, destPath string) error

	// Unpack extracts an archive into destDir and returns the extracted
	// bundle root. Entries with absolute paths or ".." traversal, and
	// archives without exactly one top-level directory, are rejected
	// before anything is written.
	Unpack(ctx context.Context, archivePath, destDir string) (string, error)

	// Inspect reads the archive only as far as its manifest entry and
	// returns the parsed manifest plus the bundle name.
	Inspect(archivePath string) (*Manifest, string, error)
}

// DefaultArchiveCodec implements ArchiveCodec with tar + pgzip streams.
type DefaultArchiveCodec struct {
	logger *logging.Logger
}

// NewDefaultArchiveCodec creates a codec. A nil logger falls back to the
// package default.
func NewDefaultArchiveCodec(logger *logging.Logger) *DefaultArchiveCodec {
	if logger == nil {
		logger = logging.Default()
	}
	return &DefaultArchiveCodec{logger: logger}
}

// Pack writes bundleDir into a compressed archive at destPath.
func (c *DefaultArchiveCodec) Pack(ctx context.Context, bundleDir, destPath string) error {
	bundleName := filepath.Base(filepath.Clean(bundleDir))

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("pack: %w", err)
	}

	// Build the archive next to its destination so the final rename stays
	// on one filesystem.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".pack-*")
	if err != nil {
		return fmt.Errorf("pack: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename has happened

	if err := c.writeArchive(ctx, tmp, bundleDir, bundleName); err != nil {
		tmp.Close()
		return fmt.Errorf("pack %s: %w", bundleDir, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("pack: %w", err)
	}

	if err := atomic.ReplaceFile(tmpPath, destPath); err != nil {
		return fmt.Errorf("pack: moving archive into place: %w", err)
	}

	c.logger.Debug("archive packed", "bundle", bundleName, "path", destPath)
	return nil
}

// writeArchive streams a tar of bundleDir through pgzip into w.
func (c *DefaultArchiveCodec) writeArchive(ctx context.Context, w io.Writer, bundleDir, bundleName string) error {
	gz, err := pgzip.NewWriterLevel(w, pgzip.DefaultCompression)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(gz)

	walkErr := filepath.Walk(bundleDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(bundleDir, p)
		if err != nil {
			return err
		}
		name := bundleName
		if rel != "." {
			name = bundleName + "/" + filepath.ToSlash(rel)
		}

		switch {
		case info.IsDir():
			return tw.WriteHeader(&tar.Header{
				Name:     name + "/",
				ModTime:  info.ModTime(),
				Mode:     int64(info.Mode().Perm()),
				Typeflag: tar.TypeDir,
			})

		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return tw.WriteHeader(&tar.Header{
				Name:     name,
				ModTime:  info.ModTime(),
				Mode:     int64(info.Mode().Perm()),
				Typeflag: tar.TypeSymlink,
				Linkname: target,
			})

		case info.Mode().IsRegular():
			if err := tw.WriteHeader(&tar.Header{
				Name:     name,
				ModTime:  info.ModTime(),
				Size:     info.Size(),
				Mode:     int64(info.Mode().Perm()),
				Typeflag: tar.TypeReg,
			}); err != nil {
				return err
			}
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, f)
			f.Close()
			return err
		}

		// Sockets, devices and the like have no place in a bundle.
		return nil
	})
	if walkErr != nil {
		tw.Close()
		gz.Close()
		return walkErr
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// Unpack extracts archivePath into destDir and returns the bundle root.
func (c *DefaultArchiveCodec) Unpack(ctx context.Context, archivePath, destDir string) (string, error) {
	// Full validation pass first: nothing is written until every entry
	// path has been checked.
	topDir, err := c.scanArchive(archivePath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("unpack: %w", err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: opening archive %s: %v", ErrInvalidArchive, archivePath, err)
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not a gzip stream: %v", ErrInvalidArchive, archivePath, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: reading archive: %v", ErrInvalidArchive, err)
		}

		target := filepath.Join(destDir, filepath.FromSlash(path.Clean(hdr.Name)))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()|0o700); err != nil {
				return "", fmt.Errorf("unpack: %w", err)
			}

		case tar.TypeReg:
			if err := extractFile(target, hdr, tr); err != nil {
				return "", fmt.Errorf("unpack: %w", err)
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", fmt.Errorf("unpack: %w", err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return "", fmt.Errorf("unpack: %w", err)
			}
		}
	}

	root := filepath.Join(destDir, topDir)
	c.logger.Debug("archive unpacked", "bundle", topDir, "dest", root)
	return root, nil
}

// extractFile writes one regular entry, preserving mode and mod time.
func extractFile(target string, hdr *tar.Header, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Chtimes(target, hdr.ModTime, hdr.ModTime)
}

// Inspect reads the archive up to its manifest entry.
func (c *DefaultArchiveCodec) Inspect(archivePath string) (*Manifest, string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: opening archive %s: %v", ErrInvalidArchive, archivePath, err)
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s is not a gzip stream: %v", ErrInvalidArchive, archivePath, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	topDir := ""
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: reading archive: %v", ErrInvalidArchive, err)
		}

		top, err := validateEntry(hdr)
		if err != nil {
			return nil, "", err
		}
		if topDir == "" {
			topDir = top
		} else if top != topDir {
			return nil, "", fmt.Errorf("%w: multiple top-level entries (%s, %s)", ErrInvalidArchive, topDir, top)
		}

		if hdr.Typeflag == tar.TypeReg && path.Clean(hdr.Name) == topDir+"/"+ManifestFilename {
			data, err := io.ReadAll(io.LimitReader(tr, maxManifestSize))
			if err != nil {
				return nil, "", fmt.Errorf("%w: reading manifest entry: %v", ErrInvalidArchive, err)
			}
			var m Manifest
			if err := json.Unmarshal(data, &m); err != nil {
				return nil, "", fmt.Errorf("%w: parsing manifest entry: %v", ErrInvalidArchive, err)
			}
			return &m, topDir, nil
		}
	}

	if topDir == "" {
		return nil, "", fmt.Errorf("%w: empty archive", ErrInvalidArchive)
	}
	return nil, "", fmt.Errorf("%w: no %s entry found", ErrInvalidArchive, ManifestFilename)
}

// scanArchive walks every header, rejecting unsafe paths, and returns the
// single top-level directory name.
func (c *DefaultArchiveCodec) scanArchive(archivePath string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: opening archive %s: %v", ErrInvalidArchive, archivePath, err)
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not a gzip stream: %v", ErrInvalidArchive, archivePath, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	topDir := ""
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: reading archive: %v", ErrInvalidArchive, err)
		}

		top, err := validateEntry(hdr)
		if err != nil {
			return "", err
		}
		if topDir == "" {
			topDir = top
		} else if top != topDir {
			return "", fmt.Errorf("%w: multiple top-level entries (%s, %s)", ErrInvalidArchive, topDir, top)
		}
	}

	if topDir == "" {
		return "", fmt.Errorf("%w: empty archive", ErrInvalidArchive)
	}
	return topDir, nil
}

// validateEntry rejects entries that would write outside the destination
// and returns the entry's top-level path component.
func validateEntry(hdr *tar.Header) (string, error) {
	clean := path.Clean(hdr.Name)
	if path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: unsafe entry path %q", ErrInvalidArchive, hdr.Name)
	}

	if hdr.Typeflag == tar.TypeSymlink {
		if path.IsAbs(hdr.Linkname) {
			return "", fmt.Errorf("%w: symlink %q points to absolute path %q", ErrInvalidArchive, hdr.Name, hdr.Linkname)
		}
		resolved := path.Join(path.Dir(clean), hdr.Linkname)
		if resolved == ".." || strings.HasPrefix(resolved, "../") {
			return "", fmt.Errorf("%w: symlink %q escapes the bundle", ErrInvalidArchive, hdr.Name)
		}
	}

	top, _, _ := strings.Cut(clean, "/")
	return top, nil
}

// Compile-time interface check.
var _ ArchiveCodec = (*DefaultArchiveCodec)(nil)
