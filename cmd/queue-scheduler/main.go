// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package main

import (
	"os"

	"github.com/DataDog/queue-scheduler/cmd/queue-scheduler/app"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

func main() {
	defer log.Flush()

	if err := app.QueueSchedulerCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(-1)
	}
}
