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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSettings reads tool settings from an optional drydock.yaml.
//
// The file is unmarshalled over DefaultSettings, so absent keys keep their
// defaults while present keys override them. An empty path returns the
// defaults untouched; a path that cannot be read or parsed is an error
// because the caller asked for that specific file.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("%w: settings file %s: %v", ErrConfig, path, err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("%w: settings file %s: %v", ErrConfig, path, err)
	}

	// An empty binary cannot execute anything.
	if settings.Runtime.Binary == "" {
		settings.Runtime.Binary = "docker"
	}
	return settings, nil
}
