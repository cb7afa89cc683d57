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
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Name components. The stamp format is load-bearing: existing bundles in
// the wild use it, and restores sort by it.
const (
	stampFormat   = "20060102_150405"
	bundlePrefix  = "immich_backup_"
	dumpPrefix    = "immich_db_backup_"
	ArchiveSuffix = ".tar.gz"
)

// Stamp formats t the way bundle and dump names embed it.
func Stamp(t time.Time) string {
	return t.Format(stampFormat)
}

// BundleName returns the canonical bundle name for a point in time,
// e.g. "immich_backup_20250824_031500".
func BundleName(t time.Time) string {
	return bundlePrefix + Stamp(t)
}

// DumpName returns the database dump filename for a point in time,
// e.g. "immich_db_backup_20250824_031500.sql.gz".
func DumpName(t time.Time) string {
	return dumpPrefix + Stamp(t) + ".sql.gz"
}

// ArchiveName returns the packed archive filename for a bundle name.
func ArchiveName(bundleName string) string {
	return bundleName + ArchiveSuffix
}

// UniqueBundleName returns BundleName(t), suffixed with _2, _3, ... while
// dir already holds a bundle directory or archive of that name. Two backups
// within the same second therefore never overwrite each other.
func UniqueBundleName(dir string, t time.Time) string {
	base := BundleName(t)
	name := base
	for n := 2; nameTaken(dir, name); n++ {
		name = fmt.Sprintf("%s_%d", base, n)
	}
	return name
}

func nameTaken(dir, name string) bool {
	if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, ArchiveName(name))); err == nil {
		return true
	}
	return false
}
