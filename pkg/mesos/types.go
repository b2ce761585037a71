// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package mesos holds the scheduler-side model of the cluster resource
// manager: offers, resources, operations and the driver capability used to
// answer them. The transport behind the driver lives outside this repository.
package mesos

// Typed identifiers. They stay distinct types so an offer id can never be
// passed where an agent id is expected.
type (
	// OfferID identifies a single resource offer.
	OfferID string
	// AgentID identifies the agent an offer originates from.
	AgentID string
	// TaskID identifies a launched task.
	TaskID string
	// FrameworkID identifies the registered framework.
	FrameworkID string
)

// Decline durations, in seconds. Externally observable: supervisors and
// operators reason about them when offers seem to dry up.
const (
	// ShortDeclineSeconds is used when the scheduler is not ready for the
	// offer (not initialized, queue overflow, uninstall in progress).
	ShortDeclineSeconds = 5
	// LongDeclineSeconds is used when offers were evaluated and not wanted.
	LongDeclineSeconds = 1200
	// AcceptRefuseSeconds is the filter attached to accept calls. Fixed, not
	// tunable.
	AcceptRefuseSeconds = 1
)

// Reservation label keys. Reserved resources carry these labels to tie the
// reservation back to the run that made it.
const (
	ResourceIDLabel  = "resource_id"
	ServiceNameLabel = "service_name"
)

// Offer is a time-bounded bundle of resources presented by the resource
// manager. An offer is presented to at most one accept or decline call.
type Offer struct {
	ID        OfferID
	AgentID   AgentID
	Hostname  string
	Resources []Resource
}

// WithResources returns a copy of the offer carrying only the given
// resources. Used to build the synthetic per-service offers handed to
// Run.UnexpectedResources.
func (o *Offer) WithResources(resources []Resource) *Offer {
	return &Offer{
		ID:        o.ID,
		AgentID:   o.AgentID,
		Hostname:  o.Hostname,
		Resources: resources,
	}
}

// Filters accompany accept and decline calls.
type Filters struct {
	RefuseSeconds float64
}

// TaskState mirrors the resource manager's task state machine. Only the
// states the core routes on are enumerated.
type TaskState string

// Task states observed by the status path.
const (
	TaskStaging  TaskState = "TASK_STAGING"
	TaskStarting TaskState = "TASK_STARTING"
	TaskRunning  TaskState = "TASK_RUNNING"
	TaskFinished TaskState = "TASK_FINISHED"
	TaskFailed   TaskState = "TASK_FAILED"
	TaskKilled   TaskState = "TASK_KILLED"
	TaskLost     TaskState = "TASK_LOST"
)

// IsTerminal reports whether the state is final: the task no longer exists
// on the agent and a kill request for it would be meaningless.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskFinished, TaskFailed, TaskKilled, TaskLost:
		return true
	}
	return false
}

// TaskStatus is a task state change reported by the resource manager.
type TaskStatus struct {
	TaskID  TaskID
	State   TaskState
	Message string
	AgentID AgentID
}
