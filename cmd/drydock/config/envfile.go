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
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} and ${VAR:-default} references.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ParseEnvFile reads a compose-style .env file into a map.
//
// # Description
//
// Lines are KEY=VALUE, split on the first '='. Blank lines, comment lines
// starting with '#', and lines without '=' are skipped. Keys and values are
// whitespace-trimmed and one layer of matching single or double quotes is
// stripped from values.
//
// A missing file is not an error: callers decide whether absence matters,
// ParseEnvFile just returns an empty map. An empty path returns an empty
// map as well.
//
// # Inputs
//
//   - path: filesystem path to the .env file, may be ""
//
// # Outputs
//
//   - map[string]string: parsed entries, never nil
//   - error: read failures other than absence, wrapping ErrConfig
func ParseEnvFile(path string) (map[string]string, error) {
	env := make(map[string]string)
	if path == "" {
		return env, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, fmt.Errorf("%w: env file %s: %v", ErrConfig, path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		env[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: env file %s: %v", ErrConfig, path, err)
	}
	return env, nil
}

// Expand substitutes ${VAR} and ${VAR:-default} references in value using
// the env map. A key present in the map wins even when its value is empty;
// an absent key falls back to the default, or expands to "" without one.
// The process environment is never consulted.
func Expand(value string, env map[string]string) string {
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		expr := match[2 : len(match)-1]
		name, fallback, hasFallback := strings.Cut(expr, ":-")
		if v, ok := env[name]; ok {
			return v
		}
		if hasFallback {
			return fallback
		}
		return ""
	})
}

// unquote strips one layer of matching single or double quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
