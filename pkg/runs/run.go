// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package runs hosts the services managed by the scheduler: the registry and
// lifecycle manager, the dispatcher fanning offers and statuses out to each
// run, and the generators that rebuild runs from submitted specs.
package runs

import (
	"encoding/json"
	"net/http"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
	"github.com/DataDog/queue-scheduler/pkg/offers"
	"github.com/DataDog/queue-scheduler/pkg/state"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// Run goal states. A FINISHED run uninstalls itself once its plan completes;
// a RUNNING run is kept deployed indefinitely.
const (
	GoalRunning  = "RUNNING"
	GoalFinished = "FINISHED"
)

// OfferOutcome is a run's answer to one offer pass: a verdict plus the
// operations it wants performed against the offers it consumed.
type OfferOutcome struct {
	Result          offers.Result
	Recommendations []offers.Recommendation
}

// UnexpectedOutcome reports which of the resources in the synthetic offers
// the run no longer claims. On a Failed verdict the listed resources are
// still released; failing to answer must never strand reservations.
type UnexpectedOutcome struct {
	Result     offers.Result
	Unexpected []offers.OfferResources
}

// PlanCoordinator is the per-run deployment engine. It is an external
// collaborator: the scheduler core only asks it what to do with the offers
// at hand and whether every plan has finished.
type PlanCoordinator interface {
	// ProcessOffers evaluates the remaining offers and returns the operations
	// the run wants performed on them.
	ProcessOffers(remaining []*mesos.Offer) []offers.Recommendation
	// Complete reports whether all of the run's plans have finished.
	Complete() bool
}

// Endpoint is an HTTP handler a run contributes to the admin API. The path is
// relative to the run's mount point.
type Endpoint struct {
	Path    string
	Handler http.Handler
}

// Run is the narrow contract a hosted service must satisfy. The two variants
// are ServiceRun (active deployment) and its uninstalling replacement
// produced by ToUninstall.
type Run interface {
	// Name returns the unique run name.
	Name() string
	// Registered is called once after framework registration, or immediately
	// on admission if the framework is already registered.
	Registered(reRegistered bool)
	// Offers evaluates the offers no earlier run has consumed.
	Offers(remaining []*mesos.Offer) OfferOutcome
	// UnexpectedResources is asked only with synthetic offers containing the
	// run's own reserved resources, and returns the subset to release.
	UnexpectedResources(synthetic []offers.OfferResources) UnexpectedOutcome
	// Status routes a task status update. UnknownTask tells the caller the
	// task should be killed.
	Status(status *mesos.TaskStatus) (offers.Result, error)
	// ToUninstall returns the run's uninstalling replacement. Idempotent: an
	// uninstalling run returns itself.
	ToUninstall() (Run, error)
	// StateStore returns the run's private state namespace.
	StateStore() *state.Store
	// ConfigStore returns the run's configuration history.
	ConfigStore() *state.ConfigStore
	// PlanCoordinator exposes the run's deployment engine for introspection.
	PlanCoordinator() PlanCoordinator
	// HTTPEndpoints lists the handlers to mount under the run's API subtree.
	HTTPEndpoints() []Endpoint
	// Uninstalling reports whether the run is tearing itself down.
	Uninstalling() bool
	// Goal returns the run's goal state.
	Goal() string
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("Unable to encode response: %v", err)
	}
}
