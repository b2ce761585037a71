// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package runs

import (
	"errors"
	"net/http"

	"go.uber.org/atomic"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
	"github.com/DataDog/queue-scheduler/pkg/offers"
	"github.com/DataDog/queue-scheduler/pkg/persister"
	"github.com/DataDog/queue-scheduler/pkg/state"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// ServiceRun is an actively deployed service. Offer evaluation is delegated
// to its plan coordinator; the run itself only tracks registration, goal
// state and the persisted task footprint.
type ServiceRun struct {
	name        string
	goal        string
	state       *state.Store
	configs     *state.ConfigStore
	coordinator PlanCoordinator

	// registered gates offer evaluation: the coordinator must not act before
	// the framework-level registration reached this run.
	registered *atomic.Bool
}

// NewServiceRun builds an active run around its state stores and plan
// coordinator.
func NewServiceRun(name, goal string, st *state.Store, configs *state.ConfigStore, coordinator PlanCoordinator) *ServiceRun {
	return &ServiceRun{
		name:        name,
		goal:        goal,
		state:       st,
		configs:     configs,
		coordinator: coordinator,
		registered:  atomic.NewBool(false),
	}
}

// Name returns the run name.
func (r *ServiceRun) Name() string { return r.name }

// Goal returns the run's goal state.
func (r *ServiceRun) Goal() string { return r.goal }

// Uninstalling is false for an active run.
func (r *ServiceRun) Uninstalling() bool { return false }

// Registered unblocks offer evaluation.
func (r *ServiceRun) Registered(reRegistered bool) {
	if reRegistered {
		log.Infof("Run %s notified of re-registration", r.name)
	} else {
		log.Infof("Run %s notified of registration", r.name)
	}
	r.registered.Store(true)
}

// Offers hands the remaining offers to the plan coordinator. Before
// registration the run is not ready; once the goal is FINISHED and every plan
// has completed, the run asks to be uninstalled.
func (r *ServiceRun) Offers(remaining []*mesos.Offer) OfferOutcome {
	if !r.registered.Load() {
		log.Debugf("Run %s is not registered yet, deferring %d offer(s)", r.name, len(remaining))
		return OfferOutcome{Result: offers.NotReady}
	}
	recs := r.coordinator.ProcessOffers(remaining)
	if r.goal == GoalFinished && r.coordinator.Complete() {
		log.Infof("Run %s reached its %s goal", r.name, r.goal)
		return OfferOutcome{Result: offers.Finished, Recommendations: recs}
	}
	return OfferOutcome{Result: offers.Processed, Recommendations: recs}
}

// UnexpectedResources returns the resources in the synthetic offers that the
// run's persisted tasks no longer account for. When the footprint cannot be
// read the whole subset is reported with a Failed verdict so the caller still
// releases it rather than leaking reservations.
func (r *ServiceRun) UnexpectedResources(synthetic []offers.OfferResources) UnexpectedOutcome {
	tasks, err := r.state.FetchTasks()
	if err != nil {
		log.Errorf("Run %s could not load its expected reservations: %v", r.name, err)
		return UnexpectedOutcome{Result: offers.Failed, Unexpected: synthetic}
	}
	var reserved []mesos.Resource
	for _, task := range tasks {
		reserved = append(reserved, task.Resources...)
	}
	expected := offers.ExpectedFromResources(reserved)

	var unexpected []offers.OfferResources
	for _, candidate := range synthetic {
		var stale []mesos.Resource
		for _, resource := range candidate.Resources {
			resourceID, ok := resource.ResourceID()
			if !ok {
				continue
			}
			if expected.ExpectsResource(resourceID) {
				continue
			}
			stale = append(stale, resource)
		}
		if len(stale) > 0 {
			unexpected = append(unexpected, offers.OfferResources{Offer: candidate.Offer, Resources: stale})
		}
	}
	return UnexpectedOutcome{Result: offers.Processed, Unexpected: unexpected}
}

// Status records a task's new state in the run's task records.
func (r *ServiceRun) Status(status *mesos.TaskStatus) (offers.Result, error) {
	return recordTaskStatus(r.name, r.state, status)
}

// ToUninstall produces the uninstalling replacement for this run.
func (r *ServiceRun) ToUninstall() (Run, error) {
	return newUninstallRun(r.name, r.goal, r.state, r.configs)
}

// StateStore returns the run's private state namespace.
func (r *ServiceRun) StateStore() *state.Store { return r.state }

// ConfigStore returns the run's configuration history.
func (r *ServiceRun) ConfigStore() *state.ConfigStore { return r.configs }

// PlanCoordinator exposes the run's deployment engine.
func (r *ServiceRun) PlanCoordinator() PlanCoordinator { return r.coordinator }

// HTTPEndpoints exposes the run's deployment progress.
func (r *ServiceRun) HTTPEndpoints() []Endpoint {
	return []Endpoint{{
		Path: "plan",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, map[string]interface{}{
				"goal":     r.goal,
				"complete": r.coordinator.Complete(),
			})
		}),
	}}
}

// recordTaskStatus updates the stored record of the task a status update
// refers to. Unroutable updates yield UnknownTask so the caller can have the
// task killed instead of leaking it.
func recordTaskStatus(runName string, st *state.Store, status *mesos.TaskStatus) (offers.Result, error) {
	taskName, err := mesos.TaskNameFromID(status.TaskID)
	if err != nil {
		log.Warnf("Run %s received a status with an unparseable task id %s: %v", runName, status.TaskID, err)
		return offers.UnknownTask, nil
	}
	record, err := st.FetchTask(taskName)
	if errors.Is(err, persister.ErrNotFound) {
		log.Warnf("Run %s has no record of task %s (%s)", runName, taskName, status.TaskID)
		return offers.UnknownTask, nil
	}
	if err != nil {
		return offers.Failed, err
	}
	log.Infof("Run %s: task %s is now %s", runName, taskName, status.State)
	record.State = status.State
	if status.AgentID != "" {
		record.AgentID = status.AgentID
	}
	if err := st.StoreTasks([]state.TaskRecord{record}); err != nil {
		return offers.Failed, err
	}
	return offers.Processed, nil
}
