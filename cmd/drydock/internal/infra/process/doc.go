// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process provides an abstraction for external process execution.

All docker and docker compose invocations go through the Manager interface
so that orchestration code can be unit tested without a container runtime
on the machine.

# Manager

Manager executes a single command described by RunOptions. Output is
captured by default; a caller that needs to stream (a database dump piped
into a gzip writer, a SQL stream fed to psql stdin) sets Stdout or Stdin
on the options instead.

	mgr := process.NewDefaultManager()
	result, err := mgr.Run(ctx, process.RunOptions{
	    Name: "docker",
	    Args: []string{"ps", "--format", "{{.Names}}"},
	})
	if err != nil {
	    return fmt.Errorf("failed to list containers: %w", err)
	}

For testing, use MockManager:

	mock := &process.MockManager{
	    RunFunc: func(ctx context.Context, opts process.RunOptions) (*process.Result, error) {
	        return &process.Result{Stdout: "immich_postgres\n"}, nil
	    },
	}

# Thread Safety

Manager implementations are safe for concurrent use.

# Limitations

  - Captured output is buffered in memory; use the streaming fields for
    anything that can grow past a few megabytes
  - Stderr is always captured, never streamed
*/
package process
