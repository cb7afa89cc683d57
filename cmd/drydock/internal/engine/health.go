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
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/drydockworks/drydock/cmd/drydock/config"
	"github.com/drydockworks/drydock/cmd/drydock/internal/infra/docker"
	"github.com/drydockworks/drydock/pkg/logging"
)

// =============================================================================
// Types
// =============================================================================

// ServiceProbe names one container the stack is expected to run.
type ServiceProbe struct {
	Name      string // display name, usually the compose service key
	Container string // runtime container name
}

// HealthWarning describes one degraded observation. Warnings are values,
// never errors: a stack that limps along still restored successfully.
type HealthWarning struct {
	Subject string // container name or "api"
	Detail  string
}

// HealthReport is the outcome of one stack check.
type HealthReport struct {
	RunID      string
	Healthy    bool
	Warnings   []HealthWarning
	Containers map[string]string // container name -> docker status line
}

// HealthChecker verifies a running stack.
type HealthChecker interface {
	// CheckStack probes the expected containers and the HTTP API. The
	// error return is reserved for context cancellation; everything else
	// lands in the report's Warnings.
	CheckStack(ctx context.Context) (*HealthReport, error)
}

// standardContainers are the container names a stock Immich compose file
// produces, in the order they are checked.
var standardContainers = []string{
	"immich_server",
	"immich_postgres",
	"immich_redis",
	"immich_machine_learning",
}

// DefaultProbes derives the probe set for a resolved stack: the standard
// Immich containers narrowed to those the stack actually declares. A stack
// with fully custom names falls back to probing every declared container.
func DefaultProbes(stack *config.StackConfig) []ServiceProbe {
	if stack == nil || len(stack.Containers) == 0 {
		probes := make([]ServiceProbe, 0, len(standardContainers))
		for _, name := range standardContainers {
			probes = append(probes, ServiceProbe{Name: name, Container: name})
		}
		return probes
	}

	byContainer := make(map[string]config.ContainerRef, len(stack.Containers))
	for _, ref := range stack.Containers {
		byContainer[ref.Container] = ref
	}

	var probes []ServiceProbe
	for _, name := range standardContainers {
		if ref, ok := byContainer[name]; ok {
			probes = append(probes, ServiceProbe{Name: ref.Service, Container: ref.Container})
		}
	}
	if len(probes) > 0 {
		return probes
	}

	for _, ref := range stack.Containers {
		probes = append(probes, ServiceProbe{Name: ref.Service, Container: ref.Container})
	}
	return probes
}

// =============================================================================
// Default Implementation
// =============================================================================

// HealthCheckerConfig configures DefaultHealthChecker.
type HealthCheckerConfig struct {
	// Probes lists the containers to check. Required (see DefaultProbes).
	Probes []ServiceProbe

	// Settings carries the ping URL and retry knobs. Zero-valued fields
	// fall back to the package defaults.
	Settings config.HealthSettings
}

// DefaultHealthChecker probes containers via the compose runtime and the
// Immich API over HTTP.
type DefaultHealthChecker struct {
	config  HealthCheckerConfig
	runtime docker.ComposeRuntime
	client  *http.Client
	clock   Clock
	logger  *logging.Logger
}

// NewDefaultHealthChecker creates a checker.
//
// The runtime is required. A nil client, clock, or logger falls back to
// a plain http.Client, the wall clock, and the package default logger.
func NewDefaultHealthChecker(cfg HealthCheckerConfig, runtime docker.ComposeRuntime, client *http.Client, clock Clock, logger *logging.Logger) (*DefaultHealthChecker, error) {
	if runtime == nil {
		return nil, fmt.Errorf("health checker: compose runtime required")
	}
	if len(cfg.Probes) == 0 {
		return nil, fmt.Errorf("health checker: at least one probe required")
	}

	defaults := config.DefaultSettings().Health
	if cfg.Settings.PingURL == "" {
		cfg.Settings.PingURL = defaults.PingURL
	}
	if cfg.Settings.Retries <= 0 {
		cfg.Settings.Retries = defaults.Retries
	}
	if cfg.Settings.RetryDelaySeconds <= 0 {
		cfg.Settings.RetryDelaySeconds = defaults.RetryDelaySeconds
	}
	if cfg.Settings.RequestTimeoutSeconds <= 0 {
		cfg.Settings.RequestTimeoutSeconds = defaults.RequestTimeoutSeconds
	}

	if client == nil {
		client = &http.Client{}
	}
	if clock == nil {
		clock = DefaultClock{}
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &DefaultHealthChecker{
		config:  cfg,
		runtime: runtime,
		client:  client,
		clock:   clock,
		logger:  logger,
	}, nil
}

// CheckStack probes every configured container, then the API endpoint.
func (h *DefaultHealthChecker) CheckStack(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{
		RunID:      uuid.NewString(),
		Containers: make(map[string]string, len(h.config.Probes)),
	}

	for _, probe := range h.config.Probes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status, err := h.runtime.ContainerStatus(ctx, probe.Container)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			report.Containers[probe.Container] = ""
			report.Warnings = append(report.Warnings, HealthWarning{
				Subject: probe.Container,
				Detail:  fmt.Sprintf("status check failed: %v", err),
			})
			continue
		}

		report.Containers[probe.Container] = status
		if !strings.HasPrefix(status, "Up") {
			detail := "not running"
			if status != "" {
				detail = status
			}
			report.Warnings = append(report.Warnings, HealthWarning{
				Subject: probe.Container,
				Detail:  detail,
			})
		}
	}

	apiWarning, err := h.pingAPI(ctx)
	if err != nil {
		return nil, err
	}
	if apiWarning != nil {
		report.Warnings = append(report.Warnings, *apiWarning)
	}

	report.Healthy = len(report.Warnings) == 0
	h.logger.Info("stack health checked",
		"run_id", report.RunID,
		"healthy", report.Healthy,
		"warnings", len(report.Warnings))
	return report, nil
}

// pingAPI polls the ping endpoint until it answers 200 or the retries run
// out. The returned warning is nil on success; the error is only ever a
// context error.
func (h *DefaultHealthChecker) pingAPI(ctx context.Context) (*HealthWarning, error) {
	settings := h.config.Settings
	lastDetail := ""

	for attempt := 1; attempt <= settings.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ok, detail := h.pingOnce(ctx, settings.PingURL)
		if ok {
			h.logger.Debug("api ping ok", "attempt", attempt)
			return nil, nil
		}
		lastDetail = detail
		h.logger.Debug("api ping failed",
			"attempt", attempt,
			"retries", settings.Retries,
			"detail", detail)

		if attempt < settings.Retries {
			if err := h.clock.Sleep(ctx, settings.RetryDelay()); err != nil {
				return nil, err
			}
		}
	}

	return &HealthWarning{
		Subject: "api",
		Detail:  fmt.Sprintf("no 200 from %s after %d attempts: %s", settings.PingURL, settings.Retries, lastDetail),
	}, nil
}

// pingOnce performs a single GET with the per-attempt timeout.
func (h *DefaultHealthChecker) pingOnce(ctx context.Context, url string) (bool, string) {
	reqCtx, cancel := context.WithTimeout(ctx, h.config.Settings.RequestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) // drain so the connection can be reused

	if resp.StatusCode == http.StatusOK {
		return true, ""
	}
	return false, fmt.Sprintf("status %d", resp.StatusCode)
}

// Compile-time interface compliance check.
var _ HealthChecker = (*DefaultHealthChecker)(nil)
