// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bundle defines the on-disk backup format.
//
// A bundle is one backup's payload: a manifest, a compressed database dump,
// and a filesystem snapshot, either expanded as a directory tree or packed
// into a single .tar.gz archive. Both representations are valid restore
// sources and must stay interchangeable.
//
//	immich_backup_20250824_031500/
//	    backup_manifest.json
//	    immich_db_backup_20250824_031500.sql.gz
//	    filesystem/
//	        upload_location/
//	            library/...
//	            upload/...
//	            profile/...
package bundle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// ErrInvalidArchive indicates a bundle or archive that cannot be restored.
var ErrInvalidArchive = errors.New("invalid backup archive")

// Manifest file and payload names inside a bundle.
const (
	ManifestFilename  = "backup_manifest.json"
	FilesystemDir     = "filesystem"
	UploadSnapshotDir = "upload_location"
)

// UploadSnapshotPath returns where a bundle keeps its copy of the upload
// location's contents.
func UploadSnapshotPath(bundleDir string) string {
	return filepath.Join(bundleDir, FilesystemDir, UploadSnapshotDir)
}

// Manifest describes one backup. The JSON field set is the wire contract;
// bundles written by other versions of the tool must keep reading.
type Manifest struct {
	Timestamp        string `json:"timestamp"`
	ImmichVersion    string `json:"immich_version"`
	DatabaseBackup   string `json:"database_backup"`   // dump filename inside the bundle
	FilesystemBackup string `json:"filesystem_backup"` // snapshot dirname, "filesystem"
	UploadLocation   string `json:"upload_location"`   // informational, never a restore target
	DBDataLocation   string `json:"db_data_location"`  // informational
	DBUsername       string `json:"db_username"`
}

// Validate checks the fields a restore cannot proceed without.
func (m *Manifest) Validate() error {
	if m.DatabaseBackup == "" {
		return fmt.Errorf("%w: manifest missing database_backup", ErrInvalidArchive)
	}
	if m.DBUsername == "" {
		return fmt.Errorf("%w: manifest missing db_username", ErrInvalidArchive)
	}
	return nil
}

// Write marshals the manifest with indentation and writes it into dir
// atomically, so a crash never leaves a half-written manifest behind.
func (m *Manifest) Write(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, ManifestFilename)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}

// ReadManifest loads and parses a manifest file.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading manifest %s: %v", ErrInvalidArchive, path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest %s: %v", ErrInvalidArchive, path, err)
	}
	return &m, nil
}

// ManifestPath returns the manifest location inside a bundle directory.
func ManifestPath(bundleDir string) string {
	return filepath.Join(bundleDir, ManifestFilename)
}
