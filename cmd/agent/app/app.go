// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package app implements the process-guard agent command tree.
package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DataDog/process-guard/pkg/version"
)

var (
	// AgentCmd is the root command.
	AgentCmd = &cobra.Command{
		Use:   "process-guard [command]",
		Short: "Kernel-assisted process integrity agent",
		Long: `
The process-guard agent schedules a fixed catalog of kernel integrity checks
against the protected process and terminates it when tampering is detected.`,
		SilenceUsage: true,
	}

	confPath    string
	flagNoColor bool
)

func init() {
	AgentCmd.PersistentFlags().StringVarP(&confPath, "cfgpath", "c", "", "path to the configuration file")
	AgentCmd.PersistentFlags().BoolVarP(&flagNoColor, "no-color", "n", false, "disable color output")

	AgentCmd.AddCommand(runCmd)
	AgentCmd.AddCommand(statusCmd)
	AgentCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version info",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("process-guard %s (commit %s)\n", version.AgentVersion, version.Commit)
		return nil
	},
}
