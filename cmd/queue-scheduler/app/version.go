// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DataDog/queue-scheduler/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  ``,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Queue Scheduler %s - Commit: %s\n", version.SchedulerVersion, version.Commit)
	},
}

func init() {
	QueueSchedulerCmd.AddCommand(versionCmd)
}
