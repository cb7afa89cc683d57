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
	"github.com/drydockworks/drydock/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	stackDir         string
	composeFile      string
	envFile          string
	settingsFile     string
	runtimeBinary    string
	logLevel         string
	quietLogs        bool
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	backupKeepStaging bool
	backupNoArchive   bool

	restoreYes         bool
	restoreKeepStaging bool
	restoreSkipHealth  bool

	rootCmd = &cobra.Command{
		Use:     "drydock",
		Version: "0.1.0",
		Short:   "Point-in-time backup and restore for a docker-compose Immich stack",
		Long: `Drydock hauls a running Immich stack out of the water: it quiesces the
				app containers, dumps postgres, snapshots the upload library, and packs
				everything into one portable archive that replays onto a fresh stack.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Backup / Restore ---
	backupCmd = &cobra.Command{
		Use:   "backup [destination-dir]",
		Short: "Back up the Immich database and upload library into one archive",
		Args:  cobra.ExactArgs(1),
		Run:   runBackup, // Defined in cmd_backup.go
	}

	restoreCmd = &cobra.Command{
		Use:   "restore [archive-or-bundle-dir]",
		Short: "DANGER: Replace all current Immich data with a backup",
		Args:  cobra.ExactArgs(1),
		Run:   runRestore, // Defined in cmd_restore.go
	}

	// --- Operations ---
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show container states and API reachability for the stack",
		Args:  cobra.NoArgs,
		Run:   runStatus, // Defined in cmd_status.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&stackDir, "stack-dir", ".",
		"Directory holding the Immich docker-compose stack")
	rootCmd.PersistentFlags().StringVar(&composeFile, "compose-file", "",
		"Compose file path (default <stack-dir>/docker-compose.yml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "",
		"Env file path (default <stack-dir>/.env when present)")
	rootCmd.PersistentFlags().StringVar(&settingsFile, "config", "",
		"Drydock settings file (default <stack-dir>/drydock.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&runtimeBinary, "runtime", "",
		"Container runtime binary, docker or podman (default docker)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&quietLogs, "quiet", false,
		"Silence structured logs, keep command output")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().BoolVar(&backupKeepStaging, "keep-staging", false,
		"Keep the staged bundle directory after packing")
	backupCmd.Flags().BoolVar(&backupNoArchive, "no-archive", false,
		"Leave the bundle as a directory instead of packing a .tar.gz")

	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().BoolVar(&restoreYes, "yes", false,
		"Skip the confirmation prompt")
	restoreCmd.Flags().BoolVar(&restoreKeepStaging, "keep-staging", false,
		"Keep the unpacked archive after the restore")
	restoreCmd.Flags().BoolVar(&restoreSkipHealth, "skip-health", false,
		"Skip the post-restore health check")

	rootCmd.AddCommand(statusCmd)
}
