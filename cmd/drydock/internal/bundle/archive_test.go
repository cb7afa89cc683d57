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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydockworks/drydock/pkg/logging"
)

var bundleTime = time.Date(2025, 8, 24, 3, 15, 0, 0, time.UTC)

func newTestCodec() *DefaultArchiveCodec {
	return NewDefaultArchiveCodec(logging.New(logging.Config{Quiet: true}))
}

// writeTestBundle builds an expanded bundle directory under dir and returns
// its root. The layout mirrors what a real backup produces: manifest, dump,
// and a filesystem snapshot with one photo and a symlink to it.
func writeTestBundle(t *testing.T, dir string) string {
	t.Helper()

	root := filepath.Join(dir, BundleName(bundleTime))
	libDir := filepath.Join(UploadSnapshotPath(root), "library")
	require.NoError(t, os.MkdirAll(libDir, 0o755))

	m := testManifest()
	require.NoError(t, m.Write(root))
	require.NoError(t, os.WriteFile(filepath.Join(root, m.DatabaseBackup), []byte("-- dump --"), 0o644))

	photo := filepath.Join(libDir, "photo.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg bytes"), 0o640))
	require.NoError(t, os.Chtimes(photo, bundleTime, bundleTime))
	require.NoError(t, os.Symlink("photo.jpg", filepath.Join(libDir, "latest.jpg")))

	return root
}

type tarEntry struct {
	name     string
	body     string
	typeflag byte
	linkname string
}

// writeTestArchive writes a raw tar.gz so tests can craft archives the
// packer itself would never produce.
func writeTestArchive(t *testing.T, path string, entries []tarEntry) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     0o644,
			ModTime:  bundleTime,
			Typeflag: tar.TypeReg,
		}
		if e.typeflag != 0 {
			hdr.Typeflag = e.typeflag
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			hdr.Mode = 0o755
		case tar.TypeSymlink:
			hdr.Linkname = e.linkname
		case tar.TypeReg:
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

// -----------------------------------------------------------------------------
// Pack / Unpack Round Trip Tests
// -----------------------------------------------------------------------------

func TestDefaultArchiveCodec_PackUnpackRoundTrip(t *testing.T) {
	ctx := context.Background()
	codec := newTestCodec()

	bundleDir := writeTestBundle(t, t.TempDir())
	name := filepath.Base(bundleDir)
	archivePath := filepath.Join(t.TempDir(), ArchiveName(name))

	require.NoError(t, codec.Pack(ctx, bundleDir, archivePath))

	destDir := t.TempDir()
	root, err := codec.Unpack(ctx, archivePath, destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, name), root)

	got, err := ReadManifest(ManifestPath(root))
	require.NoError(t, err)
	assert.Equal(t, testManifest(), got)

	photo := filepath.Join(UploadSnapshotPath(root), "library", "photo.jpg")
	data, err := os.ReadFile(photo)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))

	info, err := os.Stat(photo)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(bundleTime), "mod time should survive the round trip, got %v", info.ModTime())

	link := filepath.Join(UploadSnapshotPath(root), "library", "latest.jpg")
	li, err := os.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, li.Mode()&os.ModeSymlink, "symlinks should stay symlinks")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", target)
}

func TestDefaultArchiveCodec_Pack_SingleTopLevelPrefix(t *testing.T) {
	ctx := context.Background()
	codec := newTestCodec()

	bundleDir := writeTestBundle(t, t.TempDir())
	name := filepath.Base(bundleDir)
	archivePath := filepath.Join(t.TempDir(), ArchiveName(name))
	require.NoError(t, codec.Pack(ctx, bundleDir, archivePath))

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()
	gz, err := pgzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	tr := tar.NewReader(gz)
	count := 0
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		count++
		assert.True(t, strings.HasPrefix(hdr.Name, name+"/"),
			"entry %q should sit under %s/", hdr.Name, name)
	}
	assert.Greater(t, count, 1, "archive should hold the whole bundle tree")
}

func TestDefaultArchiveCodec_Pack_ReplacesExistingArchive(t *testing.T) {
	ctx := context.Background()
	codec := newTestCodec()

	bundleDir := writeTestBundle(t, t.TempDir())
	archivePath := filepath.Join(t.TempDir(), ArchiveName(filepath.Base(bundleDir)))
	require.NoError(t, os.WriteFile(archivePath, []byte("stale garbage"), 0o644))

	require.NoError(t, codec.Pack(ctx, bundleDir, archivePath))

	m, _, err := codec.Inspect(archivePath)
	require.NoError(t, err)
	assert.Equal(t, "postgres", m.DBUsername)
}

func TestDefaultArchiveCodec_Pack_NoTempLeftovers(t *testing.T) {
	ctx := context.Background()
	codec := newTestCodec()

	bundleDir := writeTestBundle(t, t.TempDir())
	destDir := t.TempDir()
	archivePath := filepath.Join(destDir, ArchiveName(filepath.Base(bundleDir)))
	require.NoError(t, codec.Pack(ctx, bundleDir, archivePath))

	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the finished archive should remain")
	assert.Equal(t, filepath.Base(archivePath), entries[0].Name())
}

// -----------------------------------------------------------------------------
// Unpack Validation Tests
// -----------------------------------------------------------------------------

func TestDefaultArchiveCodec_Unpack_RejectsTraversal(t *testing.T) {
	tests := []struct {
		name    string
		entries []tarEntry
	}{
		{
			name:    "parent escape",
			entries: []tarEntry{{name: "../evil.txt", body: "x"}},
		},
		{
			name:    "absolute path",
			entries: []tarEntry{{name: "/etc/evil.txt", body: "x"}},
		},
		{
			name: "dot dot after valid entries",
			entries: []tarEntry{
				{name: "bundle/ok.txt", body: "fine"},
				{name: "bundle/../../evil.txt", body: "x"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archivePath := filepath.Join(t.TempDir(), "evil.tar.gz")
			writeTestArchive(t, archivePath, tt.entries)

			destDir := filepath.Join(t.TempDir(), "out")
			_, err := newTestCodec().Unpack(context.Background(), archivePath, destDir)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArchive)

			// Validation happens before extraction, so nothing may have
			// been written, not even the destination directory.
			_, statErr := os.Stat(destDir)
			assert.True(t, os.IsNotExist(statErr), "no partial extraction expected")
		})
	}
}

func TestDefaultArchiveCodec_Unpack_RejectsEscapingSymlinks(t *testing.T) {
	tests := []struct {
		name    string
		entries []tarEntry
	}{
		{
			name: "absolute link target",
			entries: []tarEntry{
				{name: "b/link", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"},
			},
		},
		{
			name: "relative link escaping the bundle",
			entries: []tarEntry{
				{name: "b/link", typeflag: tar.TypeSymlink, linkname: "../../outside"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archivePath := filepath.Join(t.TempDir(), "evil.tar.gz")
			writeTestArchive(t, archivePath, tt.entries)

			_, err := newTestCodec().Unpack(context.Background(), archivePath, t.TempDir())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArchive)
		})
	}
}

func TestDefaultArchiveCodec_Unpack_RejectsMultipleTopLevelDirs(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "two-tops.tar.gz")
	writeTestArchive(t, archivePath, []tarEntry{
		{name: "one/a.txt", body: "a"},
		{name: "two/b.txt", body: "b"},
	})

	_, err := newTestCodec().Unpack(context.Background(), archivePath, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArchive)
	assert.Contains(t, err.Error(), "multiple top-level")
}

func TestDefaultArchiveCodec_Unpack_RejectsEmptyArchive(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "empty.tar.gz")
	writeTestArchive(t, archivePath, nil)

	_, err := newTestCodec().Unpack(context.Background(), archivePath, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArchive)
	assert.Contains(t, err.Error(), "empty archive")
}

func TestDefaultArchiveCodec_Unpack_RejectsNonArchive(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(archivePath, []byte("just some notes"), 0o644))

	_, err := newTestCodec().Unpack(context.Background(), archivePath, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestDefaultArchiveCodec_Unpack_MissingFile(t *testing.T) {
	_, err := newTestCodec().Unpack(context.Background(),
		filepath.Join(t.TempDir(), "nope.tar.gz"), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestDefaultArchiveCodec_Unpack_Cancelled(t *testing.T) {
	codec := newTestCodec()
	bundleDir := writeTestBundle(t, t.TempDir())
	archivePath := filepath.Join(t.TempDir(), "bundle.tar.gz")
	require.NoError(t, codec.Pack(context.Background(), bundleDir, archivePath))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := codec.Unpack(ctx, archivePath, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// -----------------------------------------------------------------------------
// Inspect Tests
// -----------------------------------------------------------------------------

func TestDefaultArchiveCodec_Inspect(t *testing.T) {
	ctx := context.Background()
	codec := newTestCodec()

	bundleDir := writeTestBundle(t, t.TempDir())
	name := filepath.Base(bundleDir)
	archivePath := filepath.Join(t.TempDir(), ArchiveName(name))
	require.NoError(t, codec.Pack(ctx, bundleDir, archivePath))

	m, topDir, err := codec.Inspect(archivePath)
	require.NoError(t, err)
	assert.Equal(t, name, topDir)
	assert.Equal(t, testManifest(), m)
}

func TestDefaultArchiveCodec_Inspect_ManifestNotFirstEntry(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "bundle.tar.gz")
	writeTestArchive(t, archivePath, []tarEntry{
		{name: "b/", typeflag: tar.TypeDir},
		{name: "b/data.txt", body: "payload"},
		{name: "b/" + ManifestFilename, body: `{"database_backup":"d.sql.gz","db_username":"postgres"}`},
	})

	m, topDir, err := newTestCodec().Inspect(archivePath)
	require.NoError(t, err)
	assert.Equal(t, "b", topDir)
	assert.Equal(t, "d.sql.gz", m.DatabaseBackup)
	assert.Equal(t, "postgres", m.DBUsername)
}

func TestDefaultArchiveCodec_Inspect_NoManifest(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "bundle.tar.gz")
	writeTestArchive(t, archivePath, []tarEntry{
		{name: "b/data.txt", body: "payload"},
	})

	_, _, err := newTestCodec().Inspect(archivePath)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArchive)
	assert.Contains(t, err.Error(), ManifestFilename)
}

func TestDefaultArchiveCodec_Inspect_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, _, err := newTestCodec().Inspect(filepath.Join(t.TempDir(), "nope.tar.gz"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArchive)
	})

	t.Run("not a gzip stream", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain.tar.gz")
		require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

		_, _, err := newTestCodec().Inspect(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArchive)
	})

	t.Run("bad manifest json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.tar.gz")
		writeTestArchive(t, path, []tarEntry{
			{name: "b/" + ManifestFilename, body: "{broken"},
		})

		_, _, err := newTestCodec().Inspect(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArchive)
	})
}
