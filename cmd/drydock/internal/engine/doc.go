// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates point-in-time backup and restore of an
// Immich compose stack.
//
// # Architecture Overview
//
// The engine sits between the CLI and the infrastructure layer. It owns
// sequencing, invariants, and failure semantics; it delegates every real
// side effect to a collaborator interface.
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                          cmd/drydock                         │
//	│            (flags, confirmation prompts, rendering)          │
//	└───────────────────────────────┬──────────────────────────────┘
//	                                │
//	                                ▼
//	┌──────────────────────────────────────────────────────────────┐
//	│                            engine                            │
//	│                                                              │
//	│  BackupOrchestrator      RestoreOrchestrator   HealthChecker │
//	│  1. precheck             1. load bundle        container     │
//	│  2. quiesce (defer       2. validate              probes     │
//	│     restart first)       3. down -v (tolerated)   + API      │
//	│  3. pg_dumpall → pgzip   4. create + start db     ping with  │
//	│  4. copy upload tree     5. dump → rewrite → psql  retries   │
//	│  5. write manifest       6. wipe + copy upload               │
//	│  6. pack archive         7. up -d                            │
//	│  7. report               8. health → warnings                │
//	└──────┬──────────────────────┬──────────────────────┬─────────┘
//	       │                      │                      │
//	       ▼                      ▼                      ▼
//	┌─────────────┐      ┌───────────────┐      ┌───────────────┐
//	│   bundle    │      │    docker     │      │  net/http +   │
//	│ tar + pgzip │      │ ComposeRuntime│      │     Clock     │
//	│  manifest   │      │  (CLI verbs)  │      │ (ping, waits) │
//	└─────────────┘      └───────────────┘      └───────────────┘
//
// # Failure Semantics
//
// Four sentinels partition orchestration failures by what was damaged:
// ErrDatabaseBackup, ErrFilesystemBackup, ErrDatabaseRestore,
// ErrFilesystemRestore. Bundle-shaped problems surface as
// bundle.ErrInvalidArchive, and always before the restore touches the
// stack. Health problems are never errors; they are HealthWarning values
// on the report so a slow-starting stack does not fail an otherwise
// complete restore.
//
// Backup's one hard invariant: every container it stops is started again
// on every exit path, including panic and context cancellation. The
// database container is never stopped by backup at all, since pg_dumpall
// needs it.
//
// # Time
//
// Settle delays and ping retry pacing go through the Clock interface.
// Production uses the wall clock; tests use ManualClock and run the same
// sequences without sleeping.
//
// # Thread Safety
//
// Each orchestrator serializes its Run method with an internal mutex.
// There is no cross-process lock: two drydock processes on one host are
// the operator's responsibility.
package engine
