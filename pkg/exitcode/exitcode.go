// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package exitcode enumerates the process exit codes surfaced to the
// supervisor. The values are part of the operational contract and must not
// be renumbered.
package exitcode

import (
	"os"

	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// Code is a process-level exit code.
type Code int

const (
	// Success is a clean exit.
	Success Code = 0
	// InitializationFailure covers any error during scheduler construction.
	InitializationFailure Code = 1
	// RegistrationFailure is returned when persisting the framework id fails
	// after registration.
	RegistrationFailure Code = 2
	// Disconnected is returned when the resource manager drops the scheduler.
	Disconnected Code = 5
	// Error is returned on an unrecoverable error in offer processing.
	Error Code = 6
	// LockUnavailable is returned when the storage lock is held elsewhere.
	LockUnavailable Code = 8
	// APIServerError is returned when the admin HTTP server fails.
	APIServerError Code = 9
	// SchedulerAlreadyUninstalling is returned when an uninstall-mode flip is
	// attempted while a previous uninstall has not completed.
	SchedulerAlreadyUninstalling Code = 11
	// DriverExited is returned when the resource-manager driver loop returns.
	DriverExited Code = 13
)

var names = map[Code]string{
	Success:                      "SUCCESS",
	InitializationFailure:        "INITIALIZATION_FAILURE",
	RegistrationFailure:          "REGISTRATION_FAILURE",
	Disconnected:                 "DISCONNECTED",
	Error:                        "ERROR",
	LockUnavailable:              "LOCK_UNAVAILABLE",
	APIServerError:               "API_SERVER_ERROR",
	SchedulerAlreadyUninstalling: "SCHEDULER_ALREADY_UNINSTALLING",
	DriverExited:                 "DRIVER_EXITED",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// Exit flushes buffered logs and terminates the process. Fatal paths go
// through here rather than os.Exit so the tail of the log survives.
func Exit(code Code) {
	log.Infof("Process exiting with code %d (%s)", int(code), code)
	log.Flush()
	os.Exit(int(code))
}
