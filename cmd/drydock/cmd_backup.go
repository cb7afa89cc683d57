// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/drydockworks/drydock/cmd/drydock/internal/engine"
	"github.com/drydockworks/drydock/pkg/ux"
)

func runBackup(cmd *cobra.Command, args []string) {
	env, err := buildEnv()
	if err != nil {
		fail(err)
	}
	defer env.logger.Close()

	destDir := args[0]

	orchestrator, err := engine.NewDefaultBackupOrchestrator(engine.BackupConfig{
		Stack:      env.stack,
		StagingDir: env.settings.Backup.StagingDir,
	}, env.runtime, nil, nil, env.logger)
	if err != nil {
		fail(err)
	}

	ux.Title("Drydock backup")
	ux.Info(fmt.Sprintf("Stack:    %s", env.stack.StackDir))
	ux.Info(fmt.Sprintf("Library:  %s", env.stack.UploadLocation))
	ux.Info(fmt.Sprintf("Database: %s (user %s)", env.stack.DBContainer, env.stack.DBUsername))
	ux.Info(fmt.Sprintf("Version:  %s", env.stack.ImmichVersion))

	ctx, cancel := runContext()
	defer cancel()

	ux.Step(fmt.Sprintf("Backing up into %s", destDir))
	report, err := orchestrator.Run(ctx, engine.BackupOptions{
		DestDir:     destDir,
		KeepStaging: backupKeepStaging,
		SkipArchive: backupNoArchive,
	})
	if err != nil {
		fail(err)
	}

	ux.Success("Backup complete")
	ux.Box("Backup "+report.BundleName, fmt.Sprintf(
		"Archive:  %s\nDump:     %s\nStopped:  %s",
		report.ArchivePath,
		report.DatabaseDump,
		strings.Join(report.StoppedServices, ", ")))
	ux.RunSummary(report.FilesCopied, report.BytesCopied,
		report.Duration.Round(time.Second).String())
}
