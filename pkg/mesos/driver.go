// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package mesos

import "errors"

// ErrDriverUnavailable is returned when a driver call is attempted while the
// driver is not connected. Callers on the offer path treat it as fatal.
var ErrDriverUnavailable = errors.New("resource-manager driver is unavailable")

// Driver is the outbound capability towards the resource manager. It is
// threaded explicitly through the components that need it; there is no
// process-global driver handle.
type Driver interface {
	// AcceptOffers submits operations against a set of offers belonging to a
	// single agent.
	AcceptOffers(offerIDs []OfferID, operations []Operation, filters Filters) error
	// DeclineOffer refuses a single offer for the duration carried by the
	// filters.
	DeclineOffer(offerID OfferID, filters Filters) error
	// KillTask asks the resource manager to kill a task. Used when a status
	// update cannot be routed to any run.
	KillTask(taskID TaskID) error
}
