// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/drydockworks/drydock/pkg/logging"
)

// ErrConfig indicates stack resolution failed.
var ErrConfig = errors.New("config resolution failed")

// Container-side mount targets the Immich images use.
const (
	uploadMountTarget = "/data"
	dbDataMountTarget = "/var/lib/postgresql/data"
)

// ConfigResolver turns a compose file and its env file into a StackConfig.
type ConfigResolver interface {
	Resolve(composeFile, envFile string) (*StackConfig, error)
}

// DefaultConfigResolver is the production ConfigResolver.
type DefaultConfigResolver struct {
	logger *logging.Logger
}

// NewDefaultConfigResolver creates a resolver. A nil logger falls back to
// the package default.
func NewDefaultConfigResolver(logger *logging.Logger) *DefaultConfigResolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &DefaultConfigResolver{logger: logger}
}

// Resolve derives the full stack view from the compose and env files.
//
// # Description
//
// Resolution reads both files once and applies the compose conventions the
// Immich images rely on:
//
//   - UploadLocation: the host side of the volume targeting /data; when
//     several services map it, the last one in document order wins. Falls
//     back to env UPLOAD_LOCATION, then ./library.
//   - DBDataLocation: same rule for /var/lib/postgresql/data, falling back
//     to env DB_DATA_LOCATION, then ./postgres.
//   - DBUsername: env DB_USERNAME or "postgres".
//   - ImmichVersion: env IMMICH_VERSION or "unknown".
//   - Container names: container_name (after ${...} expansion) or the
//     service key.
//   - DBService: the service named "database", else the one mounting the
//     postgres data dir; DBContainer falls back to "immich_postgres".
//
// ${VAR} and ${VAR:-default} references in volume sources and container
// names expand from the env-file map only. Relative host paths resolve
// against the compose file's directory.
//
// # Inputs
//
//   - composeFile: path to docker-compose.yml, must exist
//   - envFile: explicit env file path; "" means use .env next to the
//     compose file when present
//
// # Outputs
//
//   - *StackConfig: fully resolved stack view
//   - error: wraps ErrConfig for unreadable/unparsable inputs or a missing
//     explicit env file
//
// # Limitations
//
// Resolution never runs a subprocess and never writes to disk; whether the
// stack is actually up is a runtime question answered elsewhere.
func (r *DefaultConfigResolver) Resolve(composeFile, envFile string) (*StackConfig, error) {
	composeAbs, err := filepath.Abs(composeFile)
	if err != nil {
		return nil, fmt.Errorf("%w: compose file %s: %v", ErrConfig, composeFile, err)
	}
	stackDir := filepath.Dir(composeAbs)

	envPath, err := resolveEnvPath(stackDir, envFile)
	if err != nil {
		return nil, err
	}

	env, err := ParseEnvFile(envPath)
	if err != nil {
		return nil, err
	}
	cf, err := LoadComposeFile(composeAbs)
	if err != nil {
		return nil, err
	}

	cfg := &StackConfig{
		StackDir:    stackDir,
		ComposeFile: composeAbs,
		EnvFile:     envPath,
	}

	var uploadSource, dbDataSource, dbDataService string
	for _, svc := range cf.Services {
		container := Expand(svc.ContainerName, env)
		if container == "" {
			container = svc.Name
		}
		cfg.Containers = append(cfg.Containers, ContainerRef{
			Service:   svc.Name,
			Container: container,
		})

		for _, mount := range svc.Volumes {
			switch mount.Target {
			case uploadMountTarget:
				uploadSource = Expand(mount.Source, env)
			case dbDataMountTarget:
				dbDataSource = Expand(mount.Source, env)
				dbDataService = svc.Name
			}
		}

		if svc.Name == "database" {
			cfg.DBService = svc.Name
			cfg.DBContainer = container
		}
	}

	if cfg.DBService == "" && dbDataService != "" {
		cfg.DBService = dbDataService
		cfg.DBContainer = containerFor(cfg.Containers, dbDataService)
	}
	if cfg.DBContainer == "" {
		cfg.DBContainer = "immich_postgres"
	}

	if uploadSource == "" {
		uploadSource = envOrDefault(env, "UPLOAD_LOCATION", "./library")
		r.logger.Warn("no volume targets the upload dir, using env fallback",
			"target", uploadMountTarget, "path", uploadSource)
	}
	if dbDataSource == "" {
		dbDataSource = envOrDefault(env, "DB_DATA_LOCATION", "./postgres")
	}

	cfg.UploadLocation = resolvePath(stackDir, uploadSource)
	cfg.DBDataLocation = resolvePath(stackDir, dbDataSource)
	cfg.DBUsername = envOrDefault(env, "DB_USERNAME", "postgres")
	cfg.ImmichVersion = envOrDefault(env, "IMMICH_VERSION", "unknown")

	r.logger.Debug("stack resolved",
		"compose_file", cfg.ComposeFile,
		"env_file", cfg.EnvFile,
		"upload_location", cfg.UploadLocation,
		"db_data_location", cfg.DBDataLocation,
		"db_container", cfg.DBContainer,
		"services", len(cfg.Containers))

	return cfg, nil
}

// resolveEnvPath picks the env file to parse. An explicit path must exist;
// the conventional .env beside the compose file is optional.
func resolveEnvPath(stackDir, envFile string) (string, error) {
	if envFile != "" {
		abs, err := filepath.Abs(envFile)
		if err != nil {
			return "", fmt.Errorf("%w: env file %s: %v", ErrConfig, envFile, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("%w: env file %s: %v", ErrConfig, envFile, err)
		}
		return abs, nil
	}
	candidate := filepath.Join(stackDir, ".env")
	if _, err := os.Stat(candidate); err != nil {
		return "", nil
	}
	return candidate, nil
}

// resolvePath anchors relative host paths at the compose file's directory.
func resolvePath(stackDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(stackDir, path)
}

func envOrDefault(env map[string]string, key, fallback string) string {
	if v, ok := env[key]; ok {
		return v
	}
	return fallback
}

func containerFor(refs []ContainerRef, service string) string {
	for _, ref := range refs {
		if ref.Service == service {
			return ref.Container
		}
	}
	return ""
}

// MockConfigResolver is a test double that records calls.
type MockConfigResolver struct {
	ResolveFunc func(composeFile, envFile string) (*StackConfig, error)

	Calls []ConfigResolverCall
	mu    sync.Mutex
}

// ConfigResolverCall records one Resolve invocation.
type ConfigResolverCall struct {
	ComposeFile string
	EnvFile     string
}

func (m *MockConfigResolver) Resolve(composeFile, envFile string) (*StackConfig, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, ConfigResolverCall{ComposeFile: composeFile, EnvFile: envFile})
	fn := m.ResolveFunc
	m.mu.Unlock()

	if fn == nil {
		panic("MockConfigResolver.ResolveFunc not set")
	}
	return fn(composeFile, envFile)
}

// Reset clears recorded calls.
func (m *MockConfigResolver) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// GetCalls returns a copy of recorded calls.
func (m *MockConfigResolver) GetCalls() []ConfigResolverCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]ConfigResolverCall, len(m.Calls))
	copy(calls, m.Calls)
	return calls
}

// Compile-time interface checks.
var (
	_ ConfigResolver = (*DefaultConfigResolver)(nil)
	_ ConfigResolver = (*MockConfigResolver)(nil)
)
