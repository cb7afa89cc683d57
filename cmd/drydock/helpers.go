// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/drydockworks/drydock/cmd/drydock/config"
	"github.com/drydockworks/drydock/cmd/drydock/internal/infra/docker"
	"github.com/drydockworks/drydock/cmd/drydock/internal/infra/process"
	"github.com/drydockworks/drydock/pkg/logging"
	"github.com/drydockworks/drydock/pkg/ux"
)

// appEnv is everything a command needs once the flags are resolved.
type appEnv struct {
	logger   *logging.Logger
	settings config.Settings
	stack    *config.StackConfig
	runtime  docker.ComposeRuntime
}

// buildEnv turns the persistent flags into a resolved stack, loaded
// settings, and a compose runtime bound to both.
func buildEnv() (*appEnv, error) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		Service: "drydock",
		Quiet:   quietLogs,
	})

	composePath := composeFile
	if composePath == "" {
		composePath = filepath.Join(stackDir, "docker-compose.yml")
	}

	// An explicit --config must exist; the conventional drydock.yaml in
	// the stack dir is optional.
	settingsPath := settingsFile
	if settingsPath == "" {
		probe := filepath.Join(stackDir, "drydock.yaml")
		if _, err := os.Stat(probe); err == nil {
			settingsPath = probe
		}
	}
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}
	if runtimeBinary != "" {
		settings.Runtime.Binary = runtimeBinary
	}

	resolver := config.NewDefaultConfigResolver(logger)
	stack, err := resolver.Resolve(composePath, envFile)
	if err != nil {
		return nil, err
	}

	runtime, err := docker.NewDefaultComposeRuntime(docker.Config{
		Binary:      settings.Runtime.Binary,
		StackDir:    stack.StackDir,
		ComposeFile: stack.ComposeFile,
		EnvFile:     stack.EnvFile,
		Timeout:     settings.Runtime.CommandTimeout(),
	}, process.NewDefaultManager(), logger)
	if err != nil {
		return nil, err
	}

	return &appEnv{
		logger:   logger,
		settings: settings,
		stack:    stack,
		runtime:  runtime,
	}, nil
}

// runContext returns a context cancelled by ctrl-c or SIGTERM. A run in
// flight then unwinds through its normal error path, which is how a
// cancelled backup still restarts the containers it stopped.
func runContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx, cancel
}

// fail prints the error and exits 1.
func fail(err error) {
	ux.Error(err.Error())
	os.Exit(1)
}

// confirm prompts on stdout and requires the literal answer "yes" on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s (yes/no): ", prompt)
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(strings.ToLower(input)) == "yes"
}
