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
	"time"

	"github.com/spf13/cobra"

	"github.com/drydockworks/drydock/cmd/drydock/internal/engine"
	"github.com/drydockworks/drydock/pkg/ux"
)

func runRestore(cmd *cobra.Command, args []string) {
	env, err := buildEnv()
	if err != nil {
		fail(err)
	}
	defer env.logger.Close()

	source := args[0]

	health, err := engine.NewDefaultHealthChecker(engine.HealthCheckerConfig{
		Probes:   engine.DefaultProbes(env.stack),
		Settings: env.settings.Health,
	}, env.runtime, nil, nil, env.logger)
	if err != nil {
		fail(err)
	}

	orchestrator, err := engine.NewDefaultRestoreOrchestrator(engine.RestoreConfig{
		Stack:      env.stack,
		Settings:   env.settings.Restore,
		StagingDir: env.settings.Backup.StagingDir,
	}, env.runtime, nil, health, nil, env.logger)
	if err != nil {
		fail(err)
	}

	ux.Title("Drydock restore")
	ux.Info(fmt.Sprintf("Source:   %s", source))
	ux.Info(fmt.Sprintf("Stack:    %s", env.stack.StackDir))
	ux.Info(fmt.Sprintf("Library:  %s", env.stack.UploadLocation))
	ux.Info(fmt.Sprintf("Database: %s (user %s)", env.stack.DBContainer, env.stack.DBUsername))

	ux.WarningBox("DANGER", fmt.Sprintf(
		"This will permanently delete all current Immich data.\n"+
			"The database in %s and every file under\n%s\n"+
			"will be replaced with the backup's contents.",
		env.stack.DBContainer, env.stack.UploadLocation))

	if !restoreYes && !confirm("Type 'yes' to continue") {
		ux.Muted("Aborted. No changes were made.")
		return
	}

	ctx, cancel := runContext()
	defer cancel()

	ux.Step("Tearing down the stack and restoring")
	report, err := orchestrator.Run(ctx, engine.RestoreOptions{
		Source:      source,
		KeepStaging: restoreKeepStaging,
		SkipHealth:  restoreSkipHealth,
	})
	if err != nil {
		fail(err)
	}

	for _, w := range report.Warnings {
		ux.Warning(fmt.Sprintf("%s: %s", w.Subject, w.Detail))
	}
	switch {
	case restoreSkipHealth:
		ux.Success("Restore complete. Health check skipped.")
	case len(report.Warnings) > 0:
		ux.Success("Restore complete, with warnings above.")
	default:
		ux.Success("Restore complete. Stack is healthy.")
	}

	ux.Box("Restored "+report.BundleName, fmt.Sprintf(
		"Backed up: %s (Immich %s)\nDuration:  %s",
		report.Manifest.Timestamp,
		report.Manifest.ImmichVersion,
		report.Duration.Round(time.Second)))
	ux.RunSummary(report.FilesCopied, report.BytesCopied,
		report.Duration.Round(time.Second).String())
}
