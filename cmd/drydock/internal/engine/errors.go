// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "errors"

var (
	// ErrDatabaseBackup indicates the database could not be dumped.
	ErrDatabaseBackup = errors.New("database backup failed")

	// ErrDatabaseRestore indicates the dump could not be replayed into
	// postgres. The stack is likely in a torn state and needs attention.
	ErrDatabaseRestore = errors.New("database restore failed")

	// ErrFilesystemBackup indicates the upload tree could not be copied
	// into the bundle.
	ErrFilesystemBackup = errors.New("filesystem backup failed")

	// ErrFilesystemRestore indicates the upload tree could not be put
	// back. The database has already been restored when this fires.
	ErrFilesystemRestore = errors.New("filesystem restore failed")
)
