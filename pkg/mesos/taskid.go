// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package mesos

import (
	"fmt"
	"strings"
)

// TaskIDSeparator joins the segments of a task id. Runs prefix the ids of the
// tasks they launch with their own name: <runName>__<podName>__<uuid>.
const TaskIDSeparator = "__"

// ServiceNameFromTaskID extracts the owning run name from a task id. A
// malformed id returns an error, never a panic: status updates for foreign
// tasks must be routable to an UNKNOWN_TASK verdict.
func ServiceNameFromTaskID(taskID TaskID) (string, error) {
	id := string(taskID)
	if id == "" {
		return "", fmt.Errorf("empty task id")
	}
	idx := strings.Index(id, TaskIDSeparator)
	if idx <= 0 {
		return "", fmt.Errorf("task id %q carries no service prefix", id)
	}
	return id[:idx], nil
}

// TaskNameFromID strips the trailing uuid segment from a task id, leaving the
// name the task record was stored under.
func TaskNameFromID(taskID TaskID) (string, error) {
	id := string(taskID)
	idx := strings.LastIndex(id, TaskIDSeparator)
	if idx <= 0 {
		return "", fmt.Errorf("task id %q carries no name prefix", id)
	}
	return id[:idx], nil
}

// BuildTaskID assembles a task id from its segments.
func BuildTaskID(serviceName, podName, uuid string) TaskID {
	return TaskID(strings.Join([]string{serviceName, podName, uuid}, TaskIDSeparator))
}
