// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/DataDog/process-guard/pkg/api"
	"github.com/DataDog/process-guard/pkg/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current status of a running agent",
	RunE:  status,
}

func status(cmd *cobra.Command, args []string) error {
	if flagNoColor {
		color.NoColor = true
	}
	if err := config.Load(confPath); err != nil {
		return errors.Wrap(err, "unable to load configuration")
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/agent/status", config.Agent.GetInt("api.port"))
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return errors.Wrap(err, "agent unreachable, is it running?")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading status response")
	}

	var payload api.StatusPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return errors.Wrap(err, "decoding status response")
	}

	printStatus(&payload)
	return nil
}

func printStatus(payload *api.StatusPayload) {
	fmt.Printf("process-guard %s\n", color.CyanString(payload.Version))
	fmt.Printf("  State: %s\n", colorState(payload.State))
	if payload.Protected {
		fmt.Printf("  Protected process: %s\n", color.GreenString("%d", payload.ProtectedPid))
	} else {
		fmt.Printf("  Protected process: %s\n", color.YellowString("none"))
	}

	names := make([]string, 0, len(payload.Checks))
	for name := range payload.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("  Checks:")
	for _, name := range names {
		stats := payload.Checks[name]
		line := fmt.Sprintf("    %-20s runs: %-6d avg: %-12s", name, stats.TotalRuns, stats.AverageExecutionTime)
		switch {
		case stats.TotalViolations > 0:
			line += color.RedString(" violations: %d", stats.TotalViolations)
		case stats.TotalErrors > 0 || stats.TotalTimeouts > 0:
			line += color.YellowString(" errors: %d timeouts: %d", stats.TotalErrors, stats.TotalTimeouts)
		default:
			line += color.GreenString(" ok")
		}
		fmt.Println(line)
	}
}

func colorState(state string) string {
	switch state {
	case "running":
		return color.GreenString(state)
	case "draining":
		return color.YellowString(state)
	default:
		return color.RedString(state)
	}
}
