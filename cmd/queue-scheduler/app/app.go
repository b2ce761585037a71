// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package app assembles the queue-scheduler command line. The root command is
// exported so deployment builds can link in their resource-manager transport
// and attach extra subcommands.
package app

import (
	"github.com/spf13/cobra"
)

var (
	// QueueSchedulerCmd is the root command
	QueueSchedulerCmd = &cobra.Command{
		Use:   "queue-scheduler [command]",
		Short: "Multi-service workload scheduler.",
		Long: `
The queue scheduler hosts many managed service runs behind a single resource
manager registration. Runs are submitted over the admin API, deployed from
offered resources, and uninstalled on request, each within its own storage
namespace.`,
	}

	// confPath holds the path to the folder containing the configuration
	// file, to allow overrides from the command line
	confPath string
)
