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
	"os"
	"path/filepath"
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

// BackupOptions controls a single backup run.
type BackupOptions struct {
	// DestDir is where the finished archive (or bundle directory, with
	// SkipArchive) lands. Required; created if missing.
	DestDir string

	// KeepStaging leaves the expanded bundle directory behind after the
	// archive is written.
	KeepStaging bool

	// SkipArchive stops after the bundle directory. The bundle is then
	// built directly in DestDir and kept.
	SkipArchive bool
}

// BackupReport summarizes a completed backup.
type BackupReport struct {
	RunID           string
	ArchivePath     string // archive file, or the bundle dir with SkipArchive
	BundleName      string
	DatabaseDump    string // dump filename inside the bundle
	FilesCopied     int
	BytesCopied     int64
	Duration        time.Duration
	StoppedServices []string // containers quiesced (and restarted) for the run
}

// BackupOrchestrator runs the backup pipeline.
type BackupOrchestrator interface {
	Run(ctx context.Context, opts BackupOptions) (*BackupReport, error)
}

// BackupConfig wires a backup orchestrator to its stack.
type BackupConfig struct {
	// Stack is the resolved stack. Required.
	Stack *config.StackConfig

	// StagingDir is where bundles are staged before packing.
	// Default: the system temp directory.
	StagingDir string
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultBackupOrchestrator implements BackupOrchestrator.
type DefaultBackupOrchestrator struct {
	config  BackupConfig
	runtime docker.ComposeRuntime
	codec   bundle.ArchiveCodec
	clock   Clock
	logger  *logging.Logger
	mu      sync.Mutex
}

// NewDefaultBackupOrchestrator creates a backup orchestrator.
//
// Stack and runtime are required. A nil codec, clock, or logger falls back
// to the tar+pgzip codec, the wall clock, and the package default logger.
func NewDefaultBackupOrchestrator(cfg BackupConfig, runtime docker.ComposeRuntime, codec bundle.ArchiveCodec, clock Clock, logger *logging.Logger) (*DefaultBackupOrchestrator, error) {
	if cfg.Stack == nil {
		return nil, fmt.Errorf("backup orchestrator: stack config required")
	}
	if runtime == nil {
		return nil, fmt.Errorf("backup orchestrator: compose runtime required")
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

	return &DefaultBackupOrchestrator{
		config:  cfg,
		runtime: runtime,
		codec:   codec,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Run executes one backup. Runs are serialized; a second caller blocks
// until the first finishes.
//
// # Description
//
// Phases: precheck, quiesce, database dump, filesystem copy, manifest,
// package, report. Every container stopped during quiesce is started
// again on every exit path, including error returns, panics, and context
// cancellation. The database container is never stopped.
//
// # Inputs
//
//   - ctx: cancels the run between phases and mid-stream.
//   - opts: destination and staging behavior.
//
// # Outputs
//
//   - *BackupReport: locations, copy counts, and timing. Nil on error.
//   - error: wrapped ErrDatabaseBackup or ErrFilesystemBackup.
func (o *DefaultBackupOrchestrator) Run(ctx context.Context, opts BackupOptions) (report *BackupReport, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if opts.DestDir == "" {
		return nil, fmt.Errorf("%w: destination directory required", ErrFilesystemBackup)
	}

	start := o.clock.Now()
	runID := uuid.NewString()
	log := o.logger.With("run_id", runID)
	stack := o.config.Stack

	log.Info("backup starting",
		"stack_dir", stack.StackDir,
		"dest", opts.DestDir,
		"db_container", stack.DBContainer)

	// Phase 1: preconditions. Nothing has been touched yet, so failures
	// here need no cleanup.
	if err := o.precheck(ctx, opts.DestDir); err != nil {
		return nil, err
	}

	bundleName := bundle.UniqueBundleName(opts.DestDir, start)
	dumpName := bundle.DumpName(start)

	// With SkipArchive the bundle directory is the deliverable, so it is
	// built in the destination rather than in staging.
	stagingParent := o.config.StagingDir
	if stagingParent == "" {
		stagingParent = os.TempDir()
	}
	bundleDir := filepath.Join(stagingParent, bundleName)
	keepBundleDir := opts.KeepStaging
	if opts.SkipArchive {
		bundleDir = filepath.Join(opts.DestDir, bundleName)
		keepBundleDir = true
	}

	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating bundle dir %s: %v", ErrFilesystemBackup, bundleDir, err)
	}
	defer func() {
		if keepBundleDir {
			return
		}
		if rmErr := os.RemoveAll(bundleDir); rmErr != nil {
			log.Warn("staging cleanup failed", "dir", bundleDir, "error", rmErr)
		}
	}()

	// Phase 2: quiesce. The restart is registered before the first stop
	// is attempted so a failure anywhere below still brings the stack
	// back, and a recovered panic is folded into the error return.
	stopped := stack.QuiesceContainers()
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = fmt.Errorf("backup run panicked: %v", r)
		}
		o.restartContainers(stopped, log)
	}()

	if len(stopped) > 0 {
		log.Info("quiescing stack", "containers", stopped)
		if err := o.runtime.StopContainers(ctx, stopped...); err != nil {
			return nil, fmt.Errorf("%w: quiescing stack: %w", ErrDatabaseBackup, err)
		}
	}

	// Phase 3: dump the database while only postgres is running.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info("dumping database", "container", stack.DBContainer, "file", dumpName)
	if err := o.dumpDatabase(ctx, bundleDir, dumpName); err != nil {
		return nil, err
	}

	// Phase 4: copy the upload tree into the bundle.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snapshot := bundle.UploadSnapshotPath(bundleDir)
	log.Info("copying filesystem", "from", stack.UploadLocation, "to", snapshot)
	stats, err := bundle.CopyTree(ctx, stack.UploadLocation, snapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFilesystemBackup, err)
	}

	// Phase 5: manifest.
	manifest := &bundle.Manifest{
		Timestamp:        bundle.Stamp(start),
		ImmichVersion:    stack.ImmichVersion,
		DatabaseBackup:   dumpName,
		FilesystemBackup: bundle.FilesystemDir,
		UploadLocation:   stack.UploadLocation,
		DBDataLocation:   stack.DBDataLocation,
		DBUsername:       stack.DBUsername,
	}
	if err := manifest.Write(bundleDir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFilesystemBackup, err)
	}

	// Phase 6: pack, unless the caller wants the bare bundle.
	resultPath := bundleDir
	if !opts.SkipArchive {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resultPath = filepath.Join(opts.DestDir, bundle.ArchiveName(bundleName))
		log.Info("packing archive", "path", resultPath)
		if err := o.codec.Pack(ctx, bundleDir, resultPath); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFilesystemBackup, err)
		}
	}

	report = &BackupReport{
		RunID:           runID,
		ArchivePath:     resultPath,
		BundleName:      bundleName,
		DatabaseDump:    dumpName,
		FilesCopied:     stats.Files,
		BytesCopied:     stats.Bytes,
		Duration:        o.clock.Now().Sub(start),
		StoppedServices: stopped,
	}
	log.Info("backup finished",
		"archive", report.ArchivePath,
		"files", report.FilesCopied,
		"bytes", report.BytesCopied,
		"duration", report.Duration)
	return report, nil
}

// precheck verifies the database container is up and the destination is
// writable.
func (o *DefaultBackupOrchestrator) precheck(ctx context.Context, destDir string) error {
	db := o.config.Stack.DBContainer

	exists, err := o.runtime.ContainerExists(ctx, db)
	if err != nil {
		return fmt.Errorf("%w: checking database container: %w", ErrDatabaseBackup, err)
	}
	if !exists {
		return fmt.Errorf("%w: database container %s not found", ErrDatabaseBackup, db)
	}

	running, err := o.runtime.ContainerRunning(ctx, db)
	if err != nil {
		return fmt.Errorf("%w: checking database container: %w", ErrDatabaseBackup, err)
	}
	if !running {
		return fmt.Errorf("%w: database container %s is not running", ErrDatabaseBackup, db)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("%w: destination %s: %v", ErrFilesystemBackup, destDir, err)
	}
	return nil
}

// dumpDatabase streams pg_dumpall through pgzip into the bundle.
func (o *DefaultBackupOrchestrator) dumpDatabase(ctx context.Context, bundleDir, dumpName string) error {
	stack := o.config.Stack
	path := filepath.Join(bundleDir, dumpName)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating dump file: %v", ErrDatabaseBackup, err)
	}
	gz := pgzip.NewWriter(f)

	_, execErr := o.runtime.Exec(ctx, docker.ExecOptions{
		Container: stack.DBContainer,
		Cmd: []string{
			"pg_dumpall",
			"--clean",
			"--if-exists",
			"--username=" + stack.DBUsername,
		},
		Stdout: gz,
		TTY:    true,
	})

	gzErr := gz.Close()
	closeErr := f.Close()

	if execErr != nil {
		os.Remove(path)
		return fmt.Errorf("%w: pg_dumpall: %w", ErrDatabaseBackup, execErr)
	}
	if gzErr != nil {
		os.Remove(path)
		return fmt.Errorf("%w: compressing dump: %v", ErrDatabaseBackup, gzErr)
	}
	if closeErr != nil {
		os.Remove(path)
		return fmt.Errorf("%w: closing dump file: %v", ErrDatabaseBackup, closeErr)
	}
	return nil
}

// restartContainers brings the quiesced containers back. It runs on every
// exit path, so it uses a fresh context: the caller's may already be
// cancelled, and the stack must come back regardless.
func (o *DefaultBackupOrchestrator) restartContainers(names []string, log *logging.Logger) {
	if len(names) == 0 {
		return
	}
	log.Info("restarting stack", "containers", names)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := o.runtime.StartContainers(ctx, names...); err != nil {
		log.Error("restart failed, stack may be partially stopped",
			"containers", names,
			"error", err)
	}
}

// Compile-time interface compliance check.
var _ BackupOrchestrator = (*DefaultBackupOrchestrator)(nil)
