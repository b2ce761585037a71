// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package runs

import (
	"sync"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
	"github.com/DataDog/queue-scheduler/pkg/offers"
	"github.com/DataDog/queue-scheduler/pkg/state"
)

func reservedCpus(resourceID, serviceName string) mesos.Resource {
	return mesos.Resource{
		Name:        "cpus",
		Role:        "queues-role",
		Scalar:      1.0,
		Reservation: reservation(resourceID, serviceName),
	}
}

func reservedVolume(resourceID, persistenceID, serviceName string) mesos.Resource {
	return mesos.Resource{
		Name:        "disk",
		Role:        "queues-role",
		Scalar:      1000.0,
		Reservation: reservation(resourceID, serviceName),
		Disk: &mesos.DiskInfo{
			Persistence: &mesos.Persistence{ID: persistenceID, Principal: "queues-principal"},
		},
	}
}

func reservation(resourceID, serviceName string) *mesos.Reservation {
	labels := map[string]string{}
	if resourceID != "" {
		labels[mesos.ResourceIDLabel] = resourceID
	}
	if serviceName != "" {
		labels[mesos.ServiceNameLabel] = serviceName
	}
	return &mesos.Reservation{Principal: "queues-principal", Labels: labels}
}

func newOffer(id, agent string, resources ...mesos.Resource) *mesos.Offer {
	return &mesos.Offer{
		ID:        mesos.OfferID(id),
		AgentID:   mesos.AgentID(agent),
		Hostname:  agent + ".example.com",
		Resources: resources,
	}
}

func offerIDs(batch []*mesos.Offer) []mesos.OfferID {
	ids := make([]mesos.OfferID, 0, len(batch))
	for _, offer := range batch {
		ids = append(ids, offer.ID)
	}
	return ids
}

// consume builds the outcome of a run that launches on the given offer.
func consume(offer *mesos.Offer) OfferOutcome {
	return OfferOutcome{
		Result: offers.Processed,
		Recommendations: []offers.Recommendation{
			{Offer: offer, Operation: mesos.Operation{Type: mesos.OperationLaunch}},
		},
	}
}

// testRun is a scriptable Run. Unset functions default to a registered run
// that processes everything and claims nothing.
type testRun struct {
	mu sync.Mutex

	name         string
	goal         string
	uninstalling bool
	st           *state.Store
	cfg          *state.ConfigStore

	offersFn       func(remaining []*mesos.Offer) OfferOutcome
	unexpectedFn   func(synthetic []offers.OfferResources) UnexpectedOutcome
	statusFn       func(status *mesos.TaskStatus) (offers.Result, error)
	toUninstallErr error

	views         [][]mesos.OfferID
	registrations []bool
	statuses      []*mesos.TaskStatus
	replacement   *testRun
}

func (r *testRun) Name() string { return r.name }

func (r *testRun) Goal() string {
	if r.goal == "" {
		return GoalRunning
	}
	return r.goal
}

func (r *testRun) Uninstalling() bool { return r.uninstalling }

func (r *testRun) Registered(reRegistered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations = append(r.registrations, reRegistered)
}

func (r *testRun) Offers(remaining []*mesos.Offer) OfferOutcome {
	r.mu.Lock()
	r.views = append(r.views, offerIDs(remaining))
	fn := r.offersFn
	r.mu.Unlock()
	if fn != nil {
		return fn(remaining)
	}
	return OfferOutcome{Result: offers.Processed}
}

func (r *testRun) UnexpectedResources(synthetic []offers.OfferResources) UnexpectedOutcome {
	if r.unexpectedFn != nil {
		return r.unexpectedFn(synthetic)
	}
	return UnexpectedOutcome{Result: offers.Processed}
}

func (r *testRun) Status(status *mesos.TaskStatus) (offers.Result, error) {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	fn := r.statusFn
	r.mu.Unlock()
	if fn != nil {
		return fn(status)
	}
	return offers.Processed, nil
}

func (r *testRun) ToUninstall() (Run, error) {
	if r.toUninstallErr != nil {
		return nil, r.toUninstallErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replacement == nil {
		r.replacement = &testRun{name: r.name, goal: r.goal, uninstalling: true, st: r.st, cfg: r.cfg}
	}
	return r.replacement, nil
}

func (r *testRun) StateStore() *state.Store         { return r.st }
func (r *testRun) ConfigStore() *state.ConfigStore  { return r.cfg }
func (r *testRun) PlanCoordinator() PlanCoordinator { return idleCoordinator{} }
func (r *testRun) HTTPEndpoints() []Endpoint        { return nil }

func (r *testRun) registeredCalls() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := make([]bool, len(r.registrations))
	copy(calls, r.registrations)
	return calls
}

// fakeSpecWriter records submissions and hands back canned spec ids.
type fakeSpecWriter struct {
	stored []string // spec types in call order
	id     string
	err    error
}

func (w *fakeSpecWriter) Store(runStore *state.Store, data []byte, specType string) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	w.stored = append(w.stored, specType)
	if w.id != "" {
		return w.id, nil
	}
	return specType + "-test", nil
}

// stuckCoordinator never finishes and consumes nothing.
type stuckCoordinator struct{}

func (stuckCoordinator) ProcessOffers(remaining []*mesos.Offer) []offers.Recommendation { return nil }
func (stuckCoordinator) Complete() bool                                                 { return false }
