// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package mesos

// OperationType enumerates offer operations.
type OperationType int

// Offer operations, in resource lifecycle order. Within a single accept call
// to one agent the operations must appear RESERVE, CREATE, DESTROY,
// UNRESERVE, with launches grouped with their reserve/create block.
const (
	OperationReserve OperationType = iota
	OperationCreate
	OperationDestroy
	OperationUnreserve
	OperationLaunch
	OperationLaunchGroup
)

var operationNames = map[OperationType]string{
	OperationReserve:     "RESERVE",
	OperationCreate:      "CREATE",
	OperationDestroy:     "DESTROY",
	OperationUnreserve:   "UNRESERVE",
	OperationLaunch:      "LAUNCH",
	OperationLaunchGroup: "LAUNCH_GROUP",
}

func (t OperationType) String() string {
	if n, ok := operationNames[t]; ok {
		return n
	}
	return "UNKNOWN"
}

// Operation is a single offer operation submitted in an accept call.
type Operation struct {
	Type      OperationType
	Resources []Resource
}

// NewDestroyOperation builds the DESTROY releasing a persistent volume.
func NewDestroyOperation(resource Resource) Operation {
	return Operation{Type: OperationDestroy, Resources: []Resource{resource}}
}

// NewUnreserveOperation builds the UNRESERVE releasing a reservation.
func NewUnreserveOperation(resource Resource) Operation {
	return Operation{Type: OperationUnreserve, Resources: []Resource{resource}}
}
