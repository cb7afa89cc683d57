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
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drydockworks/drydock/cmd/drydock/internal/engine"
	"github.com/drydockworks/drydock/pkg/ux"
)

func runStatus(cmd *cobra.Command, args []string) {
	env, err := buildEnv()
	if err != nil {
		fail(err)
	}
	defer env.logger.Close()

	// Status is a snapshot, so the API gets one ping, not the restore
	// command's retry loop.
	healthSettings := env.settings.Health
	healthSettings.Retries = 1

	probes := engine.DefaultProbes(env.stack)
	checker, err := engine.NewDefaultHealthChecker(engine.HealthCheckerConfig{
		Probes:   probes,
		Settings: healthSettings,
	}, env.runtime, nil, nil, env.logger)
	if err != nil {
		fail(err)
	}

	ctx, cancel := runContext()
	defer cancel()

	spin := ux.NewSpinner("Probing the stack")
	spin.Start()
	report, err := checker.CheckStack(ctx)
	spin.Stop()
	if err != nil {
		fail(err)
	}

	ux.Title("Immich stack status")
	for _, probe := range probes {
		status := report.Containers[probe.Container]
		icon := ux.IconSuccess
		detail := status
		if !strings.HasPrefix(status, "Up") {
			icon = ux.IconError
			if detail == "" {
				detail = "not found"
			}
		}
		ux.ContainerStatus(probe.Container, icon, detail)
	}

	apiIcon := ux.IconSuccess
	apiDetail := healthSettings.PingURL
	for _, w := range report.Warnings {
		if w.Subject == "api" {
			apiIcon = ux.IconError
			apiDetail = w.Detail
		}
	}
	ux.ContainerStatus("api", apiIcon, apiDetail)

	if !report.Healthy {
		os.Exit(1)
	}
}
