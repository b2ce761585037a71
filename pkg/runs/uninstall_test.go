// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package runs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
	"github.com/DataDog/queue-scheduler/pkg/offers"
	"github.com/DataDog/queue-scheduler/pkg/persister"
	"github.com/DataDog/queue-scheduler/pkg/state"
)

func TestDeregisterStepTransitions(t *testing.T) {
	step := NewDeregisterStep()
	assert.Equal(t, StepPending, step.Status())
	assert.Equal(t, "PENDING", step.Status().String())

	step.Start()
	assert.Equal(t, StepPrepared, step.Status())

	// repeated starts do not regress the step
	step.Start()
	assert.Equal(t, StepPrepared, step.Status())

	step.SetComplete()
	assert.Equal(t, StepComplete, step.Status())
}

// seededRun stores a task record holding one reservation and returns the
// active run built on top of it.
func seededRun(t *testing.T, p persister.Persister, name string) *ServiceRun {
	t.Helper()
	st := state.NewStore(p, name)
	require.NoError(t, st.StoreTasks([]state.TaskRecord{{
		Name:      name + "__node",
		ID:        mesos.BuildTaskID(name, "node", "uuid-1"),
		State:     mesos.TaskRunning,
		Resources: []mesos.Resource{reservedCpus("res-1", name)},
	}}))
	return NewServiceRun(name, GoalRunning, st, state.NewConfigStore(p, name), stuckCoordinator{})
}

func TestUninstallRunLifecycle(t *testing.T) {
	p := persister.NewMemory()
	active := seededRun(t, p, "web")

	replacement, err := active.ToUninstall()
	require.NoError(t, err)
	assert.True(t, replacement.Uninstalling())
	assert.Equal(t, "web", replacement.Name())
	assert.Equal(t, GoalRunning, replacement.Goal())

	// the marker survives the transition so a restart resumes here
	marker, err := active.StateStore().FetchProperty("uninstalling")
	require.NoError(t, err)
	assert.Equal(t, []byte("true"), marker)

	// still holding a reservation: not ready, nothing consumed
	outcome := replacement.Offers([]*mesos.Offer{newOffer("O1", "agent-1")})
	assert.Equal(t, offers.NotReady, outcome.Result)
	assert.Empty(t, outcome.Recommendations)

	// the reservation comes back in an offer and is disowned in full
	synthetic := []offers.OfferResources{{
		Offer:     newOffer("O2", "agent-1"),
		Resources: []mesos.Resource{reservedCpus("res-1", "web")},
	}}
	unexpected := replacement.UnexpectedResources(synthetic)
	assert.Equal(t, offers.Processed, unexpected.Result)
	assert.Equal(t, synthetic, unexpected.Unexpected)

	// footprint gone: state is wiped and the run reports uninstalled
	outcome = replacement.Offers(nil)
	assert.Equal(t, offers.Uninstalled, outcome.Result)

	namespaces, err := persister.ServiceNamespaces(p)
	require.NoError(t, err)
	assert.Empty(t, namespaces)

	// repeat verdict stays stable after the wipe
	outcome = replacement.Offers(nil)
	assert.Equal(t, offers.Uninstalled, outcome.Result)
}

func TestUninstallRunWithoutTasksFinishesImmediately(t *testing.T) {
	p := persister.NewMemory()
	st := state.NewStore(p, "empty")
	require.NoError(t, st.StoreProperty("spec-id", []byte("yaml-abc")))
	active := NewServiceRun("empty", GoalRunning, st, state.NewConfigStore(p, "empty"), stuckCoordinator{})

	replacement, err := active.ToUninstall()
	require.NoError(t, err)

	outcome := replacement.Offers(nil)
	assert.Equal(t, offers.Uninstalled, outcome.Result)

	// nothing of the namespace is left behind, spec-id included
	_, err = st.FetchProperty("spec-id")
	assert.ErrorIs(t, err, persister.ErrNotFound)
}

func TestUninstallRunIsIdempotent(t *testing.T) {
	p := persister.NewMemory()
	active := seededRun(t, p, "web")

	replacement, err := active.ToUninstall()
	require.NoError(t, err)
	again, err := replacement.ToUninstall()
	require.NoError(t, err)
	assert.Same(t, replacement, again)
}

func TestUninstallRunTracksOnlyItsFootprint(t *testing.T) {
	p := persister.NewMemory()
	active := seededRun(t, p, "web")
	replacement, err := active.ToUninstall()
	require.NoError(t, err)

	// an untracked reservation is still disowned, but does not finish the run
	synthetic := []offers.OfferResources{{
		Offer:     newOffer("O1", "agent-1"),
		Resources: []mesos.Resource{reservedCpus("res-other", "web")},
	}}
	unexpected := replacement.UnexpectedResources(synthetic)
	assert.Equal(t, synthetic, unexpected.Unexpected)

	outcome := replacement.Offers(nil)
	assert.Equal(t, offers.NotReady, outcome.Result)
}
