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

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/pgzip"

	"github.com/drydockworks/drydock/cmd/drydock/config"
	"github.com/drydockworks/drydock/cmd/drydock/internal/bundle"
	"github.com/drydockworks/drydock/cmd/drydock/internal/infra/docker"
	"github.com/drydockworks/drydock/pkg/logging"
)

// =============================================================================
// Types
// =============================================================================

// RestoreOptions controls a single restore run.
type RestoreOptions struct {
	// Source is either a .tar.gz archive or an expanded bundle directory.
	Source string

	// KeepStaging leaves the unpacked archive behind for inspection.
	// No effect when Source is already a directory.
	KeepStaging bool

	// SkipHealth skips the post-restore health check.
	SkipHealth bool
}

// RestoreReport summarizes a completed restore.
type RestoreReport struct {
	RunID       string
	BundleName  string
	Manifest    *bundle.Manifest
	FilesCopied int
	BytesCopied int64
	Warnings    []HealthWarning
	Duration    time.Duration
}

// RestoreOrchestrator runs the restore pipeline.
type RestoreOrchestrator interface {
	Run(ctx context.Context, opts RestoreOptions) (*RestoreReport, error)
}

// RestoreConfig wires a restore orchestrator to its stack.
type RestoreConfig struct {
	// Stack is the resolved stack. Restore targets (upload location, db
	// container, db username) come from here, never from the manifest.
	// Required.
	Stack *config.StackConfig

	// Settings carries settle delays and SQL rewrite rules, normally from
	// config.LoadSettings.
	Settings config.RestoreSettings

	// StagingDir is where archives are unpacked.
	// Default: the system temp directory.
	StagingDir string
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultRestoreOrchestrator implements RestoreOrchestrator.
type DefaultRestoreOrchestrator struct {
	config  RestoreConfig
	runtime docker.ComposeRuntime
	codec   bundle.ArchiveCodec
	health  HealthChecker
	clock   Clock
	logger  *logging.Logger
	mu      sync.Mutex
}

// NewDefaultRestoreOrchestrator creates a restore orchestrator.
//
// Stack and runtime are required. A nil health checker disables the health
// phase; a nil codec, clock, or logger falls back to the tar+pgzip codec,
// the wall clock, and the package default logger.
func NewDefaultRestoreOrchestrator(cfg RestoreConfig, runtime docker.ComposeRuntime, codec bundle.ArchiveCodec, health HealthChecker, clock Clock, logger *logging.Logger) (*DefaultRestoreOrchestrator, error) {
	if cfg.Stack == nil {
		return nil, fmt.Errorf("restore orchestrator: stack config required")
	}
	if runtime == nil {
		return nil, fmt.Errorf("restore orchestrator: compose runtime required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if codec == nil {
		codec = bundle.NewDefaultArchiveCodec(logger)
	}
	if clock == nil {
		clock = DefaultClock{}
	}

	return &DefaultRestoreOrchestrator{
		config:  cfg,
		runtime: runtime,
		codec:   codec,
		health:  health,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Run executes one restore. Runs are serialized.
//
// # Description
//
// Phases: load, validate, teardown, database bring-up, database restore,
// filesystem restore, stack bring-up, health. The source is fully
// validated before the first command touches the stack, so a bad archive
// can never leave Immich half-destroyed. Teardown failure is tolerated
// (the stack may simply not be running); everything after it is not.
//
// # Inputs
//
//   - ctx: cancels the run between phases and mid-stream.
//   - opts: source and staging/health behavior.
//
// # Outputs
//
//   - *RestoreReport: manifest, copy counts, health warnings, timing.
//   - error: bundle.ErrInvalidArchive before any mutation; wrapped
//     ErrDatabaseRestore or ErrFilesystemRestore after.
//
// # Limitations
//
//   - Not transactional: a failure after teardown leaves the stack down.
//     The report's warnings and the structured log tell the operator how
//     far the run got.
func (o *DefaultRestoreOrchestrator) Run(ctx context.Context, opts RestoreOptions) (*RestoreReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := o.clock.Now()
	runID := uuid.NewString()
	log := o.logger.With("run_id", runID)
	stack := o.config.Stack

	// Phase 1: locate or unpack the bundle.
	bundleDir, cleanup, err := o.loadBundle(ctx, opts, log)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Phase 2: validate everything a restore needs before mutating the
	// stack in any way.
	manifest, err := o.validateBundle(bundleDir)
	if err != nil {
		return nil, err
	}

	log.Info("restore starting",
		"source", opts.Source,
		"bundle", filepath.Base(bundleDir),
		"backup_version", manifest.ImmichVersion,
		"backup_taken", manifest.Timestamp)

	// Phase 3: tear the stack down, volumes included. Failure is logged
	// and tolerated; the stack may not be running at all.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := o.runtime.Down(ctx, true); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("compose down failed, continuing", "error", err)
	}

	// Phase 4: create containers and start only postgres.
	if err := o.runtime.Create(ctx); err != nil {
		return nil, fmt.Errorf("%w: compose create: %w", ErrDatabaseRestore, err)
	}
	if err := o.runtime.StartContainers(ctx, stack.DBContainer); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %w", ErrDatabaseRestore, stack.DBContainer, err)
	}
	log.Info("waiting for postgres to settle", "delay", o.config.Settings.DBSettle())
	if err := o.clock.Sleep(ctx, o.config.Settings.DBSettle()); err != nil {
		return nil, err
	}

	// Phase 5: replay the dump.
	log.Info("restoring database", "dump", manifest.DatabaseBackup, "container", stack.DBContainer)
	if err := o.restoreDatabase(ctx, bundleDir, manifest); err != nil {
		return nil, err
	}

	// Phase 6: put the upload tree back.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stats, err := o.restoreFilesystem(ctx, bundleDir, log)
	if err != nil {
		return nil, err
	}

	// Phase 7: bring the whole stack up and let it settle.
	if err := o.runtime.Up(ctx); err != nil {
		return nil, fmt.Errorf("bringing the stack up: %w", err)
	}
	log.Info("waiting for stack to settle", "delay", o.config.Settings.StackSettle())
	if err := o.clock.Sleep(ctx, o.config.Settings.StackSettle()); err != nil {
		return nil, err
	}

	report := &RestoreReport{
		RunID:       runID,
		BundleName:  filepath.Base(bundleDir),
		Manifest:    manifest,
		FilesCopied: stats.Files,
		BytesCopied: stats.Bytes,
	}

	// Phase 8: health. Problems become warnings, never errors.
	if !opts.SkipHealth && o.health != nil {
		healthReport, err := o.health.CheckStack(ctx)
		if err != nil {
			return nil, err
		}
		report.Warnings = healthReport.Warnings
	}

	report.Duration = o.clock.Now().Sub(start)
	log.Info("restore finished",
		"bundle", report.BundleName,
		"files", report.FilesCopied,
		"bytes", report.BytesCopied,
		"warnings", len(report.Warnings),
		"duration", report.Duration)
	return report, nil
}

// loadBundle resolves opts.Source to an expanded bundle directory. For
// archives it returns a cleanup func that removes the staging dir unless
// KeepStaging is set.
func (o *DefaultRestoreOrchestrator) loadBundle(ctx context.Context, opts RestoreOptions, log *logging.Logger) (string, func(), error) {
	info, err := os.Stat(opts.Source)
	if err != nil {
		return "", nil, fmt.Errorf("%w: source %s: %v", bundle.ErrInvalidArchive, opts.Source, err)
	}

	if info.IsDir() {
		return opts.Source, nil, nil
	}
	if !strings.HasSuffix(opts.Source, bundle.ArchiveSuffix) {
		return "", nil, fmt.Errorf("%w: source %s is neither a directory nor a %s archive",
			bundle.ErrInvalidArchive, opts.Source, bundle.ArchiveSuffix)
	}

	stagingParent := o.config.StagingDir
	if stagingParent == "" {
		stagingParent = os.TempDir()
	}
	stagingDir, err := os.MkdirTemp(stagingParent, "immich_restore_")
	if err != nil {
		return "", nil, fmt.Errorf("restore staging: %w", err)
	}

	log.Info("unpacking archive", "archive", opts.Source, "staging", stagingDir)
	root, err := o.codec.Unpack(ctx, opts.Source, stagingDir)
	if err != nil {
		os.RemoveAll(stagingDir)
		return "", nil, err
	}

	cleanup := func() {
		if opts.KeepStaging {
			log.Info("staging kept", "dir", stagingDir)
			return
		}
		if rmErr := os.RemoveAll(stagingDir); rmErr != nil {
			log.Warn("staging cleanup failed", "dir", stagingDir, "error", rmErr)
		}
	}
	return root, cleanup, nil
}

// validateBundle checks that the bundle holds everything a restore needs:
// a valid manifest, the dump it names, and the filesystem snapshot.
func (o *DefaultRestoreOrchestrator) validateBundle(bundleDir string) (*bundle.Manifest, error) {
	manifest, err := bundle.ReadManifest(bundle.ManifestPath(bundleDir))
	if err != nil {
		return nil, err
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	dumpPath := filepath.Join(bundleDir, manifest.DatabaseBackup)
	if _, err := os.Stat(dumpPath); err != nil {
		return nil, fmt.Errorf("%w: database dump %s missing from bundle", bundle.ErrInvalidArchive, manifest.DatabaseBackup)
	}

	snapshot := bundle.UploadSnapshotPath(bundleDir)
	info, err := os.Stat(snapshot)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: filesystem snapshot missing from bundle", bundle.ErrInvalidArchive)
	}
	return manifest, nil
}

// restoreDatabase streams the dump through the rewrite rules into psql.
func (o *DefaultRestoreOrchestrator) restoreDatabase(ctx context.Context, bundleDir string, m *bundle.Manifest) error {
	stack := o.config.Stack
	dumpPath := filepath.Join(bundleDir, m.DatabaseBackup)

	f, err := os.Open(dumpPath)
	if err != nil {
		return fmt.Errorf("%w: opening dump: %v", ErrDatabaseRestore, err)
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: dump %s is not gzip: %v", ErrDatabaseRestore, m.DatabaseBackup, err)
	}
	defer gz.Close()

	// psql reads from the pipe while the goroutine rewrites into it.
	pr, pw := io.Pipe()
	rewriteDone := make(chan error, 1)
	go func() {
		rwErr := RewriteSQL(pw, gz, o.config.Settings.SQLRewrites)
		pw.CloseWithError(rwErr)
		rewriteDone <- rwErr
	}()

	_, execErr := o.runtime.Exec(ctx, docker.ExecOptions{
		Container: stack.DBContainer,
		Cmd: []string{
			"psql",
			"--dbname=postgres",
			"--username=" + stack.DBUsername,
		},
		Stdin: pr,
	})

	// Unblock the rewriter if psql exited before draining the pipe.
	pr.Close()
	rwErr := <-rewriteDone

	if execErr != nil {
		return fmt.Errorf("%w: psql: %w", ErrDatabaseRestore, execErr)
	}
	if rwErr != nil {
		return fmt.Errorf("%w: streaming dump: %v", ErrDatabaseRestore, rwErr)
	}
	return nil
}

// restoreFilesystem wipes the live upload location and copies the bundle's
// snapshot into it. The target comes from the resolved stack config; the
// manifest's recorded paths are display-only.
func (o *DefaultRestoreOrchestrator) restoreFilesystem(ctx context.Context, bundleDir string, log *logging.Logger) (*bundle.CopyStats, error) {
	snapshot := bundle.UploadSnapshotPath(bundleDir)
	target := o.config.Stack.UploadLocation

	log.Info("restoring filesystem", "from", snapshot, "to", target)
	if err := os.RemoveAll(target); err != nil {
		return nil, fmt.Errorf("%w: clearing %s: %v", ErrFilesystemRestore, target, err)
	}
	stats, err := bundle.CopyTree(ctx, snapshot, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFilesystemRestore, err)
	}
	return stats, nil
}

// Compile-time interface compliance check.
var _ RestoreOrchestrator = (*DefaultRestoreOrchestrator)(nil)
