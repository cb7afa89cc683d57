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
	"testing"
	"time"
)

func TestStackConfig_QuiesceContainers(t *testing.T) {
	cfg := &StackConfig{
		DBService: "database",
		Containers: []ContainerRef{
			{Service: "immich-server", Container: "immich_server"},
			{Service: "immich-machine-learning", Container: "immich_machine_learning"},
			{Service: "redis", Container: "immich_redis"},
			{Service: "database", Container: "immich_postgres"},
		},
	}

	got := cfg.QuiesceContainers()
	want := []string{"immich_server", "immich_machine_learning", "immich_redis"}
	if len(got) != len(want) {
		t.Fatalf("QuiesceContainers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("QuiesceContainers()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStackConfig_QuiesceContainers_SubstringMatch(t *testing.T) {
	cfg := &StackConfig{
		Containers: []ContainerRef{
			{Service: "immich-database", Container: "immich_postgres"},
			{Service: "redis", Container: "immich_redis"},
		},
	}

	got := cfg.QuiesceContainers()
	if len(got) != 1 || got[0] != "immich_redis" {
		t.Errorf("QuiesceContainers() = %v, want [immich_redis] (any service containing 'database' is spared)", got)
	}
}

func TestStackConfig_QuiesceContainers_ResolvedDBService(t *testing.T) {
	// DB found via its data dir mount, service not named "database"
	cfg := &StackConfig{
		DBService: "postgres",
		Containers: []ContainerRef{
			{Service: "postgres", Container: "my_postgres"},
			{Service: "app", Container: "my_app"},
		},
	}

	got := cfg.QuiesceContainers()
	if len(got) != 1 || got[0] != "my_app" {
		t.Errorf("QuiesceContainers() = %v, want [my_app] (the resolved DB service is spared)", got)
	}
}

func TestStackConfig_ContainerNames(t *testing.T) {
	cfg := &StackConfig{
		Containers: []ContainerRef{
			{Service: "immich-server", Container: "immich_server"},
			{Service: "database", Container: "immich_postgres"},
		},
	}

	got := cfg.ContainerNames()
	if len(got) != 2 || got[0] != "immich_server" || got[1] != "immich_postgres" {
		t.Errorf("ContainerNames() = %v, want document order [immich_server immich_postgres]", got)
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	if s.Runtime.Binary != "docker" {
		t.Errorf("Runtime.Binary = %q, want docker", s.Runtime.Binary)
	}
	if s.Restore.DBSettleSeconds != 10 {
		t.Errorf("Restore.DBSettleSeconds = %d, want 10", s.Restore.DBSettleSeconds)
	}
	if s.Restore.StackSettleSeconds != 30 {
		t.Errorf("Restore.StackSettleSeconds = %d, want 30", s.Restore.StackSettleSeconds)
	}
	if len(s.Restore.SQLRewrites) != 1 {
		t.Fatalf("Restore.SQLRewrites has %d rules, want 1", len(s.Restore.SQLRewrites))
	}
	rw := s.Restore.SQLRewrites[0]
	if rw.Match != "SELECT pg_catalog.set_config('search_path', '', false);" {
		t.Errorf("rewrite match = %q", rw.Match)
	}
	if rw.Replace != "SELECT pg_catalog.set_config('search_path', 'public, pg_catalog', true);" {
		t.Errorf("rewrite replace = %q", rw.Replace)
	}
	if s.Health.PingURL != "http://127.0.0.1:2283/api/server-info/ping" {
		t.Errorf("Health.PingURL = %q", s.Health.PingURL)
	}
	if s.Health.Retries != 6 {
		t.Errorf("Health.Retries = %d, want 6", s.Health.Retries)
	}
}

func TestSettings_DurationHelpers(t *testing.T) {
	s := Settings{
		Runtime: RuntimeSettings{CommandTimeoutSeconds: 300},
		Restore: RestoreSettings{DBSettleSeconds: 10, StackSettleSeconds: 30},
		Health:  HealthSettings{RetryDelaySeconds: 10, RequestTimeoutSeconds: 5},
	}

	if got := s.Runtime.CommandTimeout(); got != 5*time.Minute {
		t.Errorf("CommandTimeout() = %v, want 5m", got)
	}
	if got := s.Restore.DBSettle(); got != 10*time.Second {
		t.Errorf("DBSettle() = %v, want 10s", got)
	}
	if got := s.Restore.StackSettle(); got != 30*time.Second {
		t.Errorf("StackSettle() = %v, want 30s", got)
	}
	if got := s.Health.RetryDelay(); got != 10*time.Second {
		t.Errorf("RetryDelay() = %v, want 10s", got)
	}
	if got := s.Health.RequestTimeout(); got != 5*time.Second {
		t.Errorf("RequestTimeout() = %v, want 5s", got)
	}
}
