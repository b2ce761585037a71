// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package app

import (
	"github.com/spf13/cobra"

	"github.com/DataDog/queue-scheduler/pkg/config"
	"github.com/DataDog/queue-scheduler/pkg/exitcode"
	"github.com/DataDog/queue-scheduler/pkg/runs"
	"github.com/DataDog/queue-scheduler/pkg/scheduler"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

var (
	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long:  `Runs the scheduler in the foreground`,
		RunE:  start,
	}

	// Transport is the resource-manager connection of this build. Deployment
	// mains assign it before executing the root command; without one the
	// scheduler refuses to start.
	Transport scheduler.Transport

	// Coordinators builds the deployment engine handed to each admitted run.
	Coordinators runs.CoordinatorFactory

	uninstall bool
)

func init() {
	// attach the command to the root
	QueueSchedulerCmd.AddCommand(startCmd)

	// local flags
	startCmd.Flags().StringVarP(&confPath, "cfgpath", "c", "", "path to folder containing queue-scheduler.yaml")
	config.Scheduler.BindPFlag("conf_path", startCmd.Flags().Lookup("cfgpath")) //nolint:errcheck
	startCmd.Flags().BoolVarP(&uninstall, "uninstall", "u", false, "uninstall the framework and everything it deployed")
	config.Scheduler.BindPFlag("framework.uninstall", startCmd.Flags().Lookup("uninstall")) //nolint:errcheck
}

func start(cmd *cobra.Command, args []string) error {
	config.Scheduler.AddConfigPath(config.Scheduler.GetString("conf_path"))
	if err := config.Scheduler.ReadInConfig(); err != nil {
		log.Infof("No configuration file read, relying on defaults and environment: %v", err)
	}

	if err := config.SetupLogger(
		config.Scheduler.GetString("log_level"),
		config.Scheduler.GetString("log_file"),
	); err != nil {
		log.Criticalf("Unable to setup logger: %s", err)
		exitcode.Exit(exitcode.InitializationFailure)
	}

	exitcode.Exit(scheduler.Run(scheduler.Options{
		Transport:    Transport,
		Coordinators: Coordinators,
	}))
	return nil
}
