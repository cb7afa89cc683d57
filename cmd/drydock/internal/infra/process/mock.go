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
	"context"
	"sync"
)

// MockManager is a test double for Manager.
//
// Configure the mock by setting RunFunc before use. If RunFunc is nil and
// Run is called, it will panic.
//
// # Examples
//
//	mock := &MockManager{
//	    RunFunc: func(ctx context.Context, opts RunOptions) (*Result, error) {
//	        if opts.Name == "docker" && opts.Args[0] == "ps" {
//	            return &Result{Stdout: "immich_postgres\n"}, nil
//	        }
//	        return nil, fmt.Errorf("unexpected command: %s", opts.Name)
//	    },
//	}
type MockManager struct {
	// RunFunc is called when Run is invoked
	RunFunc func(ctx context.Context, opts RunOptions) (*Result, error)

	// Calls records all method invocations for verification
	Calls []ManagerCall

	// mu protects Calls for concurrent access
	mu sync.Mutex
}

// ManagerCall records a single Run invocation.
type ManagerCall struct {
	Options RunOptions
}

// Run delegates to RunFunc and records the call.
func (m *MockManager) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, ManagerCall{Options: opts})
	fn := m.RunFunc
	m.mu.Unlock()

	if fn == nil {
		panic("MockManager.RunFunc not set")
	}
	return fn(ctx, opts)
}

// Reset clears all recorded calls.
func (m *MockManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// GetCalls returns a copy of all recorded calls.
func (m *MockManager) GetCalls() []ManagerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ManagerCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// Compile-time interface compliance check.
var _ Manager = (*MockManager)(nil)
