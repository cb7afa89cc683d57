// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package docker

import (
	"context"
	"sync"

	"github.com/drydockworks/drydock/cmd/drydock/internal/infra/process"
)

// RuntimeCall records one ComposeRuntime invocation. Calls are recorded in
// order because the restart-after-failure tests assert on sequences, not
// just counts.
type RuntimeCall struct {
	Method        string
	Names         []string    // StopContainers / StartContainers
	Name          string      // single-container queries
	RemoveVolumes bool        // Down
	Exec          ExecOptions // Exec
}

// MockComposeRuntime is a test double implementing ComposeRuntime.
//
// Each method records its call, then delegates to the corresponding func
// field. A nil func panics so tests fail loudly on unexpected calls.
type MockComposeRuntime struct {
	UpFunc               func(ctx context.Context) error
	DownFunc             func(ctx context.Context, removeVolumes bool) error
	CreateFunc           func(ctx context.Context) error
	StopContainersFunc   func(ctx context.Context, names ...string) error
	StartContainersFunc  func(ctx context.Context, names ...string) error
	ContainerExistsFunc  func(ctx context.Context, name string) (bool, error)
	ContainerRunningFunc func(ctx context.Context, name string) (bool, error)
	ContainerStatusFunc  func(ctx context.Context, name string) (string, error)
	ExecFunc             func(ctx context.Context, opts ExecOptions) (*process.Result, error)

	Calls []RuntimeCall
	mu    sync.Mutex
}

func (m *MockComposeRuntime) record(call RuntimeCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

func (m *MockComposeRuntime) Up(ctx context.Context) error {
	m.record(RuntimeCall{Method: "Up"})
	if m.UpFunc == nil {
		panic("MockComposeRuntime.UpFunc not set")
	}
	return m.UpFunc(ctx)
}

func (m *MockComposeRuntime) Down(ctx context.Context, removeVolumes bool) error {
	m.record(RuntimeCall{Method: "Down", RemoveVolumes: removeVolumes})
	if m.DownFunc == nil {
		panic("MockComposeRuntime.DownFunc not set")
	}
	return m.DownFunc(ctx, removeVolumes)
}

func (m *MockComposeRuntime) Create(ctx context.Context) error {
	m.record(RuntimeCall{Method: "Create"})
	if m.CreateFunc == nil {
		panic("MockComposeRuntime.CreateFunc not set")
	}
	return m.CreateFunc(ctx)
}

func (m *MockComposeRuntime) StopContainers(ctx context.Context, names ...string) error {
	recorded := make([]string, len(names))
	copy(recorded, names)
	m.record(RuntimeCall{Method: "StopContainers", Names: recorded})
	if m.StopContainersFunc == nil {
		panic("MockComposeRuntime.StopContainersFunc not set")
	}
	return m.StopContainersFunc(ctx, names...)
}

func (m *MockComposeRuntime) StartContainers(ctx context.Context, names ...string) error {
	recorded := make([]string, len(names))
	copy(recorded, names)
	m.record(RuntimeCall{Method: "StartContainers", Names: recorded})
	if m.StartContainersFunc == nil {
		panic("MockComposeRuntime.StartContainersFunc not set")
	}
	return m.StartContainersFunc(ctx, names...)
}

func (m *MockComposeRuntime) ContainerExists(ctx context.Context, name string) (bool, error) {
	m.record(RuntimeCall{Method: "ContainerExists", Name: name})
	if m.ContainerExistsFunc == nil {
		panic("MockComposeRuntime.ContainerExistsFunc not set")
	}
	return m.ContainerExistsFunc(ctx, name)
}

func (m *MockComposeRuntime) ContainerRunning(ctx context.Context, name string) (bool, error) {
	m.record(RuntimeCall{Method: "ContainerRunning", Name: name})
	if m.ContainerRunningFunc == nil {
		panic("MockComposeRuntime.ContainerRunningFunc not set")
	}
	return m.ContainerRunningFunc(ctx, name)
}

func (m *MockComposeRuntime) ContainerStatus(ctx context.Context, name string) (string, error) {
	m.record(RuntimeCall{Method: "ContainerStatus", Name: name})
	if m.ContainerStatusFunc == nil {
		panic("MockComposeRuntime.ContainerStatusFunc not set")
	}
	return m.ContainerStatusFunc(ctx, name)
}

func (m *MockComposeRuntime) Exec(ctx context.Context, opts ExecOptions) (*process.Result, error) {
	m.record(RuntimeCall{Method: "Exec", Name: opts.Container, Exec: opts})
	if m.ExecFunc == nil {
		panic("MockComposeRuntime.ExecFunc not set")
	}
	return m.ExecFunc(ctx, opts)
}

// Reset clears recorded calls.
func (m *MockComposeRuntime) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// GetCalls returns a copy of recorded calls.
func (m *MockComposeRuntime) GetCalls() []RuntimeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]RuntimeCall, len(m.Calls))
	copy(calls, m.Calls)
	return calls
}

// Methods returns just the method names, in call order.
func (m *MockComposeRuntime) Methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	methods := make([]string, len(m.Calls))
	for i, call := range m.Calls {
		methods[i] = call.Method
	}
	return methods
}

// Compile-time interface check.
var _ ComposeRuntime = (*MockComposeRuntime)(nil)
