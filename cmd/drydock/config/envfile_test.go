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
	"os"
	"path/filepath"
	"testing"
)

// writeTestFile creates a file under dir and returns its path.
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestParseEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, ".env", `
# Immich settings
UPLOAD_LOCATION=./library
DB_DATA_LOCATION = ./postgres

DB_USERNAME="postgres"
DB_PASSWORD='secret=with=equals'
TZ=Etc/UTC
malformed line without equals
EMPTY=
`)

	env, err := ParseEnvFile(path)
	if err != nil {
		t.Fatalf("ParseEnvFile() unexpected error: %v", err)
	}

	want := map[string]string{
		"UPLOAD_LOCATION":  "./library",
		"DB_DATA_LOCATION": "./postgres",
		"DB_USERNAME":      "postgres",
		"DB_PASSWORD":      "secret=with=equals",
		"TZ":               "Etc/UTC",
		"EMPTY":            "",
	}
	if len(env) != len(want) {
		t.Errorf("ParseEnvFile() returned %d entries, want %d: %v", len(env), len(want), env)
	}
	for k, v := range want {
		got, ok := env[k]
		if !ok {
			t.Errorf("ParseEnvFile() missing key %q", k)
			continue
		}
		if got != v {
			t.Errorf("ParseEnvFile() %s = %q, want %q", k, got, v)
		}
	}
}

func TestParseEnvFile_MissingFile(t *testing.T) {
	env, err := ParseEnvFile(filepath.Join(t.TempDir(), "no-such.env"))
	if err != nil {
		t.Fatalf("ParseEnvFile() missing file should not error, got: %v", err)
	}
	if len(env) != 0 {
		t.Errorf("ParseEnvFile() missing file = %v, want empty map", env)
	}
}

func TestParseEnvFile_EmptyPath(t *testing.T) {
	env, err := ParseEnvFile("")
	if err != nil {
		t.Fatalf("ParseEnvFile(\"\") unexpected error: %v", err)
	}
	if env == nil || len(env) != 0 {
		t.Errorf("ParseEnvFile(\"\") = %v, want empty non-nil map", env)
	}
}

func TestExpand(t *testing.T) {
	env := map[string]string{
		"UPLOAD_LOCATION": "/mnt/photos",
		"EMPTY":           "",
	}

	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"no reference", "/plain/path", "/plain/path"},
		{"simple reference", "${UPLOAD_LOCATION}", "/mnt/photos"},
		{"reference inside path", "${UPLOAD_LOCATION}/library", "/mnt/photos/library"},
		{"unknown reference", "${MISSING}", ""},
		{"default used when absent", "${MISSING:-/fallback}", "/fallback"},
		{"present key beats default", "${UPLOAD_LOCATION:-/fallback}", "/mnt/photos"},
		{"empty present key beats default", "${EMPTY:-/fallback}", ""},
		{"multiple references", "${UPLOAD_LOCATION}:${MISSING:-/data}", "/mnt/photos:/data"},
		{"bare dollar untouched", "$UPLOAD_LOCATION", "$UPLOAD_LOCATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expand(tt.value, env); got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"quoted"`, "quoted"},
		{`'quoted'`, "quoted"},
		{`plain`, "plain"},
		{`"mismatched'`, `"mismatched'`},
		{`""`, ""},
		{`"`, `"`},
		{`"inner "quotes""`, `inner "quotes"`},
	}

	for _, tt := range tests {
		if got := unquote(tt.in); got != tt.want {
			t.Errorf("unquote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
