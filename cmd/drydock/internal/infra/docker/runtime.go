// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package docker drives the compose stack and its containers through the
// docker CLI.
//
// Whole-stack state changes go through compose verbs (up, down, create)
// while quiesce and restart act on container names with plain docker
// stop/start. Container-level verbs stay correct even when the compose file
// on disk has drifted from the running stack, which matters mid-backup.
//
// The package defines no error sentinels of its own: failures wrap the
// process package's ErrCommandFailed/ErrCommandTimeout with verb context,
// so callers match with errors.Is either way.
package docker

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/drydockworks/drydock/cmd/drydock/internal/infra/process"
	"github.com/drydockworks/drydock/pkg/logging"
	"github.com/drydockworks/drydock/pkg/validation"
)

// =============================================================================
// Configuration
// =============================================================================

// Config locates the stack and the runtime binary.
type Config struct {
	// Binary is the container runtime CLI.
	// Default: "docker"
	Binary string

	// StackDir is the working directory for every invocation.
	// Default: the compose file's directory
	StackDir string

	// ComposeFile is the path to docker-compose.yml. Required.
	ComposeFile string

	// EnvFile is passed to compose as --env-file when set.
	EnvFile string

	// Timeout is the per-operation ceiling. Zero means no limit, which is
	// the right default because dumps and volume teardowns scale with the
	// library size.
	Timeout time.Duration
}

// ExecOptions configures a command run inside a container.
type ExecOptions struct {
	// Container is the target container name. Required.
	Container string

	// Cmd is the command and its arguments. Required.
	Cmd []string

	// Stdin streams into the command when set. Implies -i.
	Stdin io.Reader

	// Stdout receives output when set; otherwise output is captured
	// into the Result.
	Stdout io.Writer

	// Interactive forces -i even without Stdin.
	Interactive bool

	// TTY allocates a pseudo-terminal (-t).
	TTY bool
}

// =============================================================================
// Interface Definition
// =============================================================================

// ComposeRuntime abstracts every docker interaction the orchestrators need.
//
// # Description
//
// Implementations translate each method into one CLI invocation and return
// the process-level result or error unchanged apart from verb context.
// Nothing here retries or sleeps; pacing belongs to the engine.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Mutating verbs are
// serialized so two stack-state changes never interleave.
type ComposeRuntime interface {
	// Up starts the whole stack detached (compose up -d).
	Up(ctx context.Context) error

	// Down stops and removes the stack (compose down). With removeVolumes
	// it appends -v, which destroys named volumes and cannot be undone.
	Down(ctx context.Context, removeVolumes bool) error

	// Create creates containers without starting them (compose create).
	Create(ctx context.Context) error

	// StopContainers stops the named containers (docker stop). A nil or
	// empty list is a no-op.
	StopContainers(ctx context.Context, names ...string) error

	// StartContainers starts the named containers (docker start). A nil or
	// empty list is a no-op.
	StartContainers(ctx context.Context, names ...string) error

	// ContainerExists reports whether a container with exactly this name
	// exists, running or not.
	ContainerExists(ctx context.Context, name string) (bool, error)

	// ContainerRunning reports whether the named container is currently
	// running. A container that does not exist is simply not running.
	ContainerRunning(ctx context.Context, name string) (bool, error)

	// ContainerStatus returns the human status line ("Up 2 hours", "Exited
	// (0) 3 minutes ago") or "" when docker ps does not list the name.
	ContainerStatus(ctx context.Context, name string) (string, error)

	// Exec runs a command inside a running container.
	//
	// # Inputs
	//
	//   - ctx: cancellation and deadline
	//   - opts: container, command, and stream wiring
	//
	// # Outputs
	//
	//   - *process.Result: exit code and captured output (stdout empty when
	//     opts.Stdout streams)
	//   - error: wraps process.ErrCommandFailed on non-zero exit
	//
	// # Example
	//
	//	result, err := rt.Exec(ctx, docker.ExecOptions{
	//	    Container: "immich_postgres",
	//	    Cmd:       []string{"pg_dumpall", "--clean", "--if-exists", "--username=postgres"},
	//	    Stdout:    gzipWriter,
	//	    TTY:       true,
	//	})
	Exec(ctx context.Context, opts ExecOptions) (*process.Result, error)
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultComposeRuntime implements ComposeRuntime over the docker CLI.
type DefaultComposeRuntime struct {
	config Config
	proc   process.Manager
	logger *logging.Logger
	mu     sync.Mutex
}

// NewDefaultComposeRuntime creates a runtime for one stack.
//
// Defaults applied: Binary "docker", StackDir from the compose file's
// directory. The compose file path is required; a nil logger falls back to
// the package default.
func NewDefaultComposeRuntime(cfg Config, proc process.Manager, logger *logging.Logger) (*DefaultComposeRuntime, error) {
	if cfg.ComposeFile == "" {
		return nil, fmt.Errorf("compose runtime: compose file path required")
	}
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	if cfg.StackDir == "" {
		cfg.StackDir = filepath.Dir(cfg.ComposeFile)
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &DefaultComposeRuntime{
		config: cfg,
		proc:   proc,
		logger: logger,
	}, nil
}

// Up starts the whole stack detached.
func (r *DefaultComposeRuntime) Up(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.run(ctx, r.composeArgs("up", "-d"), nil, nil); err != nil {
		return fmt.Errorf("compose up: %w", err)
	}
	return nil
}

// Down stops and removes the stack. removeVolumes appends -v.
func (r *DefaultComposeRuntime) Down(ctx context.Context, removeVolumes bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	args := r.composeArgs("down")
	if removeVolumes {
		args = append(args, "-v")
	}
	if _, err := r.run(ctx, args, nil, nil); err != nil {
		return fmt.Errorf("compose down: %w", err)
	}
	return nil
}

// Create creates the stack's containers without starting them.
func (r *DefaultComposeRuntime) Create(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.run(ctx, r.composeArgs("create"), nil, nil); err != nil {
		return fmt.Errorf("compose create: %w", err)
	}
	return nil
}

// StopContainers stops the named containers with plain docker stop.
func (r *DefaultComposeRuntime) StopContainers(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	if err := validation.ValidateContainerNames(names); err != nil {
		return fmt.Errorf("docker stop: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	args := append([]string{"stop"}, names...)
	if _, err := r.run(ctx, args, nil, nil); err != nil {
		return fmt.Errorf("docker stop: %w", err)
	}
	return nil
}

// StartContainers starts the named containers with plain docker start.
func (r *DefaultComposeRuntime) StartContainers(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	if err := validation.ValidateContainerNames(names); err != nil {
		return fmt.Errorf("docker start: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	args := append([]string{"start"}, names...)
	if _, err := r.run(ctx, args, nil, nil); err != nil {
		return fmt.Errorf("docker start: %w", err)
	}
	return nil
}

// ContainerExists checks docker ps -a for an exact name match.
func (r *DefaultComposeRuntime) ContainerExists(ctx context.Context, name string) (bool, error) {
	result, err := r.run(ctx, []string{"ps", "-a", "--format", "{{.Names}}"}, nil, nil)
	if err != nil {
		return false, fmt.Errorf("docker ps: %w", err)
	}

	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

// ContainerRunning asks docker inspect for the container's running state.
func (r *DefaultComposeRuntime) ContainerRunning(ctx context.Context, name string) (bool, error) {
	if err := validation.ValidateContainerName(name); err != nil {
		return false, fmt.Errorf("docker inspect: %w", err)
	}

	result, err := r.run(ctx, []string{"inspect", "--format", "{{.State.Running}}", name}, nil, nil)
	if err != nil {
		// Inspect on a non-existent name fails; that just means not running.
		if result != nil && strings.Contains(result.Stderr, "No such object") {
			return false, nil
		}
		return false, fmt.Errorf("docker inspect: %w", err)
	}
	return strings.TrimSpace(result.Stdout) == "true", nil
}

// ContainerStatus returns docker ps's status line for the name.
func (r *DefaultComposeRuntime) ContainerStatus(ctx context.Context, name string) (string, error) {
	if err := validation.ValidateContainerName(name); err != nil {
		return "", fmt.Errorf("docker ps: %w", err)
	}

	args := []string{"ps", "--filter", "name=" + name, "--format", "{{.Status}}"}
	result, err := r.run(ctx, args, nil, nil)
	if err != nil {
		return "", fmt.Errorf("docker ps: %w", err)
	}

	status, _, _ := strings.Cut(result.Stdout, "\n")
	return strings.TrimSpace(status), nil
}

// Exec runs a command inside a running container.
func (r *DefaultComposeRuntime) Exec(ctx context.Context, opts ExecOptions) (*process.Result, error) {
	if opts.Container == "" || len(opts.Cmd) == 0 {
		return nil, fmt.Errorf("docker exec: container and command required")
	}
	if err := validation.ValidateContainerName(opts.Container); err != nil {
		return nil, fmt.Errorf("docker exec: %w", err)
	}

	args := []string{"exec"}
	if opts.Interactive || opts.Stdin != nil {
		args = append(args, "-i")
	}
	if opts.TTY {
		args = append(args, "-t")
	}
	args = append(args, opts.Container)
	args = append(args, opts.Cmd...)

	result, err := r.run(ctx, args, opts.Stdin, opts.Stdout)
	if err != nil {
		return result, fmt.Errorf("docker exec %s: %w", opts.Container, err)
	}
	return result, nil
}

// =============================================================================
// Private Helper Methods
// =============================================================================

// composeArgs prefixes a compose verb with the file arguments.
func (r *DefaultComposeRuntime) composeArgs(verb ...string) []string {
	args := []string{"compose", "-f", r.config.ComposeFile}
	if r.config.EnvFile != "" {
		args = append(args, "--env-file", r.config.EnvFile)
	}
	return append(args, verb...)
}

// run executes the runtime binary with the stack directory and timeout
// applied, logging the full command at debug level.
func (r *DefaultComposeRuntime) run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) (*process.Result, error) {
	r.logger.Debug("running command", "command", r.config.Binary+" "+strings.Join(args, " "))

	return r.proc.Run(ctx, process.RunOptions{
		Name:    r.config.Binary,
		Args:    args,
		Dir:     r.config.StackDir,
		Stdin:   stdin,
		Stdout:  stdout,
		Timeout: r.config.Timeout,
	})
}

// Compile-time interface check.
var _ ComposeRuntime = (*DefaultComposeRuntime)(nil)
