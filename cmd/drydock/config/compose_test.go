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
	"path/filepath"
	"testing"
)

const immichCompose = `
name: immich

services:
  immich-server:
    container_name: immich_server
    image: ghcr.io/immich-app/immich-server:${IMMICH_VERSION:-release}
    volumes:
      - ${UPLOAD_LOCATION}:/data
      - /etc/localtime:/etc/localtime:ro
    env_file:
      - .env
    ports:
      - '2283:2283'
    depends_on:
      - redis
      - database
    restart: always

  immich-machine-learning:
    container_name: immich_machine_learning
    image: ghcr.io/immich-app/immich-machine-learning:${IMMICH_VERSION:-release}
    volumes:
      - model-cache:/cache
    restart: always

  redis:
    container_name: immich_redis
    image: docker.io/valkey/valkey:8-bookworm
    restart: always

  database:
    container_name: immich_postgres
    image: ghcr.io/immich-app/postgres:14-vectorchord0.3.0
    environment:
      POSTGRES_PASSWORD: ${DB_PASSWORD}
      POSTGRES_USER: ${DB_USERNAME}
      POSTGRES_DB: ${DB_DATABASE_NAME}
    volumes:
      - ${DB_DATA_LOCATION}:/var/lib/postgresql/data
    restart: always

volumes:
  model-cache:
`

func TestLoadComposeFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "docker-compose.yml", immichCompose)

	cf, err := LoadComposeFile(path)
	if err != nil {
		t.Fatalf("LoadComposeFile() unexpected error: %v", err)
	}

	wantOrder := []string{"immich-server", "immich-machine-learning", "redis", "database"}
	if len(cf.Services) != len(wantOrder) {
		t.Fatalf("LoadComposeFile() found %d services, want %d", len(cf.Services), len(wantOrder))
	}
	for i, name := range wantOrder {
		if cf.Services[i].Name != name {
			t.Errorf("service[%d] = %q, want %q (document order must hold)", i, cf.Services[i].Name, name)
		}
	}

	server := cf.Services[0]
	if server.ContainerName != "immich_server" {
		t.Errorf("server container_name = %q, want immich_server", server.ContainerName)
	}
	if len(server.Volumes) != 2 {
		t.Fatalf("server has %d volumes, want 2", len(server.Volumes))
	}
	if server.Volumes[0].Source != "${UPLOAD_LOCATION}" || server.Volumes[0].Target != "/data" {
		t.Errorf("server volume[0] = %+v, want raw ${UPLOAD_LOCATION} -> /data", server.Volumes[0])
	}
	if server.Volumes[1].Target != "/etc/localtime" {
		t.Errorf("server volume[1] target = %q, mode suffix should be dropped", server.Volumes[1].Target)
	}

	db := cf.Services[3]
	if db.ContainerName != "immich_postgres" {
		t.Errorf("db container_name = %q, want immich_postgres", db.ContainerName)
	}
	if len(db.Volumes) != 1 || db.Volumes[0].Target != "/var/lib/postgresql/data" {
		t.Errorf("db volumes = %+v, want the postgres data mount", db.Volumes)
	}
}

func TestLoadComposeFile_LongVolumeForm(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "docker-compose.yml", `
services:
  immich-server:
    volumes:
      - type: bind
        source: /mnt/photos
        target: /data
      - type: volume
        source: model-cache
        target: /cache
`)

	cf, err := LoadComposeFile(path)
	if err != nil {
		t.Fatalf("LoadComposeFile() unexpected error: %v", err)
	}
	if len(cf.Services) != 1 {
		t.Fatalf("found %d services, want 1", len(cf.Services))
	}
	vols := cf.Services[0].Volumes
	if len(vols) != 2 {
		t.Fatalf("found %d volumes, want 2", len(vols))
	}
	if vols[0].Source != "/mnt/photos" || vols[0].Target != "/data" {
		t.Errorf("volume[0] = %+v, want /mnt/photos -> /data", vols[0])
	}
}

func TestLoadComposeFile_NoContainerName(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "docker-compose.yml", `
services:
  redis:
    image: docker.io/valkey/valkey:8
`)

	cf, err := LoadComposeFile(path)
	if err != nil {
		t.Fatalf("LoadComposeFile() unexpected error: %v", err)
	}
	if cf.Services[0].ContainerName != "" {
		t.Errorf("container_name = %q, want empty when not declared", cf.Services[0].ContainerName)
	}
}

func TestLoadComposeFile_NoServices(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "docker-compose.yml", "volumes:\n  model-cache:\n")

	cf, err := LoadComposeFile(path)
	if err != nil {
		t.Fatalf("LoadComposeFile() unexpected error: %v", err)
	}
	if len(cf.Services) != 0 {
		t.Errorf("found %d services, want 0", len(cf.Services))
	}
}

func TestLoadComposeFile_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{
			name: "missing file",
			path: filepath.Join(dir, "absent.yml"),
		},
		{
			name: "invalid yaml",
			path: writeTestFile(t, dir, "bad.yml", "services: [unclosed\n"),
		},
		{
			name: "top level not a mapping",
			path: writeTestFile(t, dir, "list.yml", "- one\n- two\n"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadComposeFile(tt.path)
			if !errors.Is(err, ErrConfig) {
				t.Errorf("LoadComposeFile() error = %v, want ErrConfig", err)
			}
		})
	}
}

func TestParseVolume_SkipsUnusableEntries(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "docker-compose.yml", `
services:
  app:
    volumes:
      - justonepath
      - /ok:/data
      - target: /incomplete
`)

	cf, err := LoadComposeFile(path)
	if err != nil {
		t.Fatalf("LoadComposeFile() unexpected error: %v", err)
	}
	vols := cf.Services[0].Volumes
	if len(vols) != 1 {
		t.Fatalf("found %d volumes, want 1 (unusable entries skipped): %+v", len(vols), vols)
	}
	if vols[0].Source != "/ok" {
		t.Errorf("volume source = %q, want /ok", vols[0].Source)
	}
}
