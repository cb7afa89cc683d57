// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for values that end up in
// subprocess argument vectors.
//
// Container names come out of a user-editable compose file and are handed
// to the docker CLI as arguments. Validating them first keeps a hostile or
// mistyped name (for example one starting with "-") from being parsed as a
// flag by the runtime binary.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// containerNamePattern matches the names docker itself accepts:
// a leading alphanumeric, then letters, digits, underscore, dot, hyphen.
var containerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.\-]*$`)

// ValidateContainerName validates a container name before it is placed in
// a docker command line.
//
// Valid names:
//   - start with a letter or digit
//   - continue with letters, digits, underscore (_), dot (.), hyphen (-)
//
// Anything else is rejected, which notably covers names that begin with a
// hyphen and would otherwise read as a CLI flag.
//
// Example:
//
//	if err := validation.ValidateContainerName(name); err != nil {
//	    return fmt.Errorf("docker stop: %w", err)
//	}
//	// Safe to append to the argument vector
func ValidateContainerName(name string) error {
	if name == "" {
		return fmt.Errorf("container name cannot be empty")
	}

	if !containerNamePattern.MatchString(name) {
		return fmt.Errorf("invalid container name: %q (must start alphanumeric and use only letters, digits, _ . -)", name)
	}

	return nil
}

// ValidateContainerNames validates multiple container names.
// Returns an error listing all invalid names if any fail validation.
func ValidateContainerNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateContainerName(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid container names: %s", strings.Join(invalid, ", "))
	}
	return nil
}
