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
	"strings"
	"time"
)

// ContainerRef pairs a compose service with its resolved container name.
type ContainerRef struct {
	Service   string // compose service key, e.g. "immich-server"
	Container string // runtime container name, e.g. "immich_server"
}

// StackConfig is the fully resolved view of an Immich compose stack.
//
// Every field is derived once, up front, from the compose file and its env
// file. Orchestrators receive this value and never consult the shell
// environment or the working directory afterwards.
type StackConfig struct {
	StackDir       string // directory holding the compose file
	ComposeFile    string // absolute path to docker-compose.yml
	EnvFile        string // absolute path to the .env file, "" if none
	UploadLocation string // host path holding original media
	DBDataLocation string // host path of the postgres data directory
	DBUsername     string // e.g. "postgres"
	ImmichVersion  string // e.g. "v1.119.0", "release", "unknown"
	DBService      string // compose service key of the database
	DBContainer    string // runtime container name of the database

	// Containers lists every service in compose document order.
	Containers []ContainerRef
}

// QuiesceContainers returns the containers to stop before copying data off
// disk. The database service stays up so the dump can run against it.
func (c *StackConfig) QuiesceContainers() []string {
	var names []string
	for _, ref := range c.Containers {
		if strings.Contains(ref.Service, "database") || ref.Service == c.DBService {
			continue
		}
		names = append(names, ref.Container)
	}
	return names
}

// ContainerNames returns every resolved container name in document order.
func (c *StackConfig) ContainerNames() []string {
	names := make([]string, 0, len(c.Containers))
	for _, ref := range c.Containers {
		names = append(names, ref.Container)
	}
	return names
}

// Settings are tool-level knobs read from an optional drydock.yaml.
// Absent keys keep the DefaultSettings values.
type Settings struct {
	Runtime RuntimeSettings `yaml:"runtime"`
	Backup  BackupSettings  `yaml:"backup"`
	Restore RestoreSettings `yaml:"restore"`
	Health  HealthSettings  `yaml:"health"`
}

type RuntimeSettings struct {
	Binary                string `yaml:"binary"`                  // e.g. "docker"
	CommandTimeoutSeconds int    `yaml:"command_timeout_seconds"` // 0 = no limit
}

type BackupSettings struct {
	StagingDir string `yaml:"staging_dir"` // "" = system temp dir
}

// SQLRewrite is a literal line substitution applied to the database dump
// while it streams into psql during restore.
type SQLRewrite struct {
	Match   string `yaml:"match"`
	Replace string `yaml:"replace"`
}

type RestoreSettings struct {
	DBSettleSeconds    int `yaml:"db_settle_seconds"`    // wait after starting postgres
	StackSettleSeconds int `yaml:"stack_settle_seconds"` // wait after compose up

	// SQLRewrites defaults to the search_path fix older Immich dumps need.
	// An explicit empty list disables rewriting.
	SQLRewrites []SQLRewrite `yaml:"sql_rewrites"`
}

type HealthSettings struct {
	PingURL               string `yaml:"ping_url"`
	Retries               int    `yaml:"retries"`
	RetryDelaySeconds     int    `yaml:"retry_delay_seconds"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

func (r RuntimeSettings) CommandTimeout() time.Duration {
	return time.Duration(r.CommandTimeoutSeconds) * time.Second
}

func (r RestoreSettings) DBSettle() time.Duration {
	return time.Duration(r.DBSettleSeconds) * time.Second
}

func (r RestoreSettings) StackSettle() time.Duration {
	return time.Duration(r.StackSettleSeconds) * time.Second
}

func (h HealthSettings) RetryDelay() time.Duration {
	return time.Duration(h.RetryDelaySeconds) * time.Second
}

func (h HealthSettings) RequestTimeout() time.Duration {
	return time.Duration(h.RequestTimeoutSeconds) * time.Second
}

func DefaultSettings() Settings {
	return Settings{
		Runtime: RuntimeSettings{
			Binary:                "docker",
			CommandTimeoutSeconds: 0,
		},
		Backup: BackupSettings{
			StagingDir: "",
		},
		Restore: RestoreSettings{
			DBSettleSeconds:    10,
			StackSettleSeconds: 30,
			SQLRewrites: []SQLRewrite{
				{
					Match:   "SELECT pg_catalog.set_config('search_path', '', false);",
					Replace: "SELECT pg_catalog.set_config('search_path', 'public, pg_catalog', true);",
				},
			},
		},
		Health: HealthSettings{
			PingURL:               "http://127.0.0.1:2283/api/server-info/ping",
			Retries:               6,
			RetryDelaySeconds:     10,
			RequestTimeoutSeconds: 10,
		},
	}
}
