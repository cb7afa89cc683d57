// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrCommandFailed indicates a command exited non-zero or could not start.
	ErrCommandFailed = errors.New("command failed")

	// ErrCommandTimeout indicates a command exceeded its deadline.
	ErrCommandTimeout = errors.New("command timed out")
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// RunOptions describes a single command invocation.
//
// Name is required. All other fields are optional; the zero value runs the
// command in the current directory with inherited environment, captures
// stdout and stderr, and applies no deadline beyond the caller's context.
type RunOptions struct {
	// Name is the executable name or path.
	Name string

	// Args are the command arguments.
	Args []string

	// Dir is the working directory for the command.
	// Empty means the current directory.
	Dir string

	// Env holds additional environment entries ("KEY=value") appended
	// to the parent environment.
	Env []string

	// Stdin, when set, is streamed to the process.
	Stdin io.Reader

	// Stdout, when set, receives the process output directly instead of
	// being captured into Result.Stdout. Used for streaming dumps.
	Stdout io.Writer

	// Timeout, when positive, bounds the command's execution time.
	Timeout time.Duration
}

// Result holds the outcome of a command invocation.
//
// Result is returned even on failure so callers can log exit codes and
// stderr alongside the error.
type Result struct {
	// ExitCode is the process exit code. -1 when the process never ran
	// or was terminated by a signal.
	ExitCode int

	// Stdout is the captured output. Empty when RunOptions.Stdout was set.
	Stdout string

	// Stderr is the captured error output.
	Stderr string

	// Duration is the wall-clock execution time.
	Duration time.Duration

	// Command is the full command line, for logging.
	Command string
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Manager handles external process operations.
//
// This interface abstracts all interaction with the operating system's
// process management, enabling testable code that doesn't require a real
// container runtime.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
//
// # Context Handling
//
// Run respects context cancellation: the process is killed when the context
// is cancelled or its deadline passes.
type Manager interface {
	// Run executes a command synchronously.
	//
	// # Description
	//
	// Executes the command described by opts and waits for completion.
	// Stdout is captured into the Result unless opts.Stdout is set;
	// stderr is always captured for error reporting.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - opts: Command description (see RunOptions)
	//
	// # Outputs
	//
	//   - *Result: Exit code, captured output, duration. Non-nil even on
	//     failure whenever the command was attempted.
	//   - error: Non-nil if the command failed, wrapped with
	//     ErrCommandFailed or ErrCommandTimeout
	//
	// # Examples
	//
	//	result, err := mgr.Run(ctx, RunOptions{
	//	    Name: "docker",
	//	    Args: []string{"inspect", "--format", "{{.State.Running}}", name},
	//	})
	//	if err != nil {
	//	    return fmt.Errorf("failed to inspect %s: %w", name, err)
	//	}
	//
	// # Limitations
	//
	//   - Captured stdout is buffered fully in memory
	Run(ctx context.Context, opts RunOptions) (*Result, error)
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultManager implements Manager using os/exec.
//
// This is the production implementation that executes real processes on the
// system. Use MockManager in tests instead.
type DefaultManager struct{}

// NewDefaultManager creates a new DefaultManager.
//
// # Description
//
// Creates a Manager that executes real processes using os/exec.
// This should be used in production code.
//
// # Outputs
//
//   - *DefaultManager: Ready-to-use process manager
//
// # Examples
//
//	mgr := NewDefaultManager()
//	result, err := mgr.Run(ctx, RunOptions{Name: "docker", Args: []string{"version"}})
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// Run executes a command synchronously.
func (m *DefaultManager) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("%w: no command given", ErrCommandFailed)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, opts.Name, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	} else {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		Command:  commandLine(opts),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, fmt.Errorf("%w: %s", ErrCommandTimeout, result.Command)
		}

		// Include stderr in the error for debugging
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return result, fmt.Errorf("%w: %w: %s", ErrCommandFailed, err, msg)
		}
		return result, fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}

	return result, nil
}

// commandLine renders the invocation for logs and error messages.
func commandLine(opts RunOptions) string {
	parts := append([]string{opts.Name}, opts.Args...)
	return strings.Join(parts, " ")
}

// Compile-time interface compliance check.
var _ Manager = (*DefaultManager)(nil)
