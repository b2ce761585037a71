// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package runs

import (
	"net/http"
	"sync"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
	"github.com/DataDog/queue-scheduler/pkg/offers"
	"github.com/DataDog/queue-scheduler/pkg/state"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// uninstallingProperty marks a run's namespace as uninstalling. It is written
// before any teardown work so a restarted scheduler resumes the uninstall
// instead of redeploying.
const uninstallingProperty = "uninstalling"

// StepStatus tracks the single step of the framework-level uninstall plan.
type StepStatus int

// Deregister step states, in order.
const (
	StepPending StepStatus = iota
	StepPrepared
	StepComplete
)

var stepStatusNames = map[StepStatus]string{
	StepPending:  "PENDING",
	StepPrepared: "PREPARED",
	StepComplete: "COMPLETE",
}

func (s StepStatus) String() string {
	if n, ok := stepStatusNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// DeregisterStep is the one step of a framework uninstall: PENDING until the
// last run is gone, PREPARED while waiting for the resource manager to
// confirm deregistration, COMPLETE afterwards.
type DeregisterStep struct {
	mu     sync.Mutex
	status StepStatus
}

// NewDeregisterStep returns a pending step.
func NewDeregisterStep() *DeregisterStep {
	return &DeregisterStep{status: StepPending}
}

// Start moves a pending step to PREPARED. Repeated calls are no-ops.
func (s *DeregisterStep) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StepPending {
		return
	}
	log.Info("Framework deregistration is prepared, awaiting confirmation")
	s.status = StepPrepared
}

// SetComplete records the resource manager's deregistration confirmation.
func (s *DeregisterStep) SetComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.Info("Framework deregistration is complete")
	s.status = StepComplete
}

// Status returns the step's current state.
func (s *DeregisterStep) Status() StepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// uninstallRun is the UNINSTALLING variant of a run. It consumes no offers;
// instead it reports every reserved resource it is shown as unexpected so the
// release protocol returns them to the cluster, and once its tracked
// footprint is gone it wipes its state and reports UNINSTALLED.
type uninstallRun struct {
	name    string
	goal    string
	state   *state.Store
	configs *state.ConfigStore

	mu sync.Mutex
	// tracked holds the reservation ids recorded by the run's tasks. Shrinks
	// as UnexpectedResources sees them offered back; empty means done.
	tracked map[string]struct{}
	wiped   bool
}

// newUninstallRun persists the uninstall marker and derives the reservation
// footprint still to reclaim from the run's task records. The marker is
// written first: resuming matters more than starting cleanly.
func newUninstallRun(name, goal string, st *state.Store, configs *state.ConfigStore) (Run, error) {
	if err := st.StoreProperty(uninstallingProperty, []byte("true")); err != nil {
		return nil, err
	}
	tasks, err := st.FetchTasks()
	if err != nil {
		return nil, err
	}
	tracked := map[string]struct{}{}
	for _, task := range tasks {
		for _, resource := range task.Resources {
			if id, ok := resource.ResourceID(); ok {
				tracked[id] = struct{}{}
			}
		}
	}
	log.Infof("Run %s uninstalling with %d reservation(s) to reclaim", name, len(tracked))
	return &uninstallRun{
		name:    name,
		goal:    goal,
		state:   st,
		configs: configs,
		tracked: tracked,
	}, nil
}

// Name returns the run name.
func (u *uninstallRun) Name() string { return u.name }

// Goal returns the goal the run had before uninstall started.
func (u *uninstallRun) Goal() string { return u.goal }

// Uninstalling is true for an uninstalling run.
func (u *uninstallRun) Uninstalling() bool { return true }

// Registered is a no-op: there is nothing left to initialize.
func (u *uninstallRun) Registered(reRegistered bool) {
	log.Debugf("Run %s notified of registration while uninstalling", u.name)
}

// Offers consumes nothing. While reservations are still tracked the verdict
// is NotReady so the caller declines briefly and the reserved resources come
// back soon; once the footprint is gone the state is wiped and the verdict
// becomes Uninstalled.
func (u *uninstallRun) Offers(remaining []*mesos.Offer) OfferOutcome {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.tracked) > 0 {
		log.Debugf("Run %s still waiting to reclaim %d reservation(s)", u.name, len(u.tracked))
		return OfferOutcome{Result: offers.NotReady}
	}
	if !u.wiped {
		if err := u.state.Clear(); err != nil {
			log.Errorf("Run %s could not wipe its state, will retry: %v", u.name, err)
			return OfferOutcome{Result: offers.NotReady}
		}
		u.wiped = true
		log.Infof("Run %s wiped its state", u.name)
	}
	return OfferOutcome{Result: offers.Uninstalled}
}

// UnexpectedResources reports everything it is shown as unexpected and checks
// the released ids off the tracked footprint.
func (u *uninstallRun) UnexpectedResources(synthetic []offers.OfferResources) UnexpectedOutcome {
	u.mu.Lock()
	defer u.mu.Unlock()
	released := 0
	for _, candidate := range synthetic {
		for _, resource := range candidate.Resources {
			id, ok := resource.ResourceID()
			if !ok {
				continue
			}
			if _, tracked := u.tracked[id]; tracked {
				delete(u.tracked, id)
				released++
			}
		}
	}
	if released > 0 {
		log.Infof("Run %s reclaiming %d reservation(s), %d left", u.name, released, len(u.tracked))
	}
	return UnexpectedOutcome{Result: offers.Processed, Unexpected: synthetic}
}

// Status keeps task records current while their tasks drain.
func (u *uninstallRun) Status(status *mesos.TaskStatus) (offers.Result, error) {
	return recordTaskStatus(u.name, u.state, status)
}

// ToUninstall is idempotent: the run is already uninstalling.
func (u *uninstallRun) ToUninstall() (Run, error) { return u, nil }

// StateStore returns the run's private state namespace.
func (u *uninstallRun) StateStore() *state.Store { return u.state }

// ConfigStore returns the run's configuration history.
func (u *uninstallRun) ConfigStore() *state.ConfigStore { return u.configs }

// PlanCoordinator reports the uninstall's own progress.
func (u *uninstallRun) PlanCoordinator() PlanCoordinator { return u }

// ProcessOffers consumes nothing: an uninstalling run only releases.
func (u *uninstallRun) ProcessOffers(remaining []*mesos.Offer) []offers.Recommendation {
	return nil
}

// Complete reports whether every reservation was reclaimed and state wiped.
func (u *uninstallRun) Complete() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.tracked) == 0 && u.wiped
}

// HTTPEndpoints exposes the uninstall's progress.
func (u *uninstallRun) HTTPEndpoints() []Endpoint {
	return []Endpoint{{
		Path: "uninstall",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			u.mu.Lock()
			payload := map[string]interface{}{
				"reservations_left": len(u.tracked),
				"state_wiped":       u.wiped,
			}
			u.mu.Unlock()
			writeJSON(w, payload)
		}),
	}}
}
