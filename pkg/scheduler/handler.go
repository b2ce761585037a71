// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

/*
Package scheduler assembles the process: the callback handler facing the
resource manager, the exclusive storage lock and the runner that constructs
everything in order and blocks until the driver loop ends.
*/
package scheduler

import (
	"go.uber.org/atomic"

	"github.com/DataDog/queue-scheduler/pkg/exitcode"
	"github.com/DataDog/queue-scheduler/pkg/mesos"
	"github.com/DataDog/queue-scheduler/pkg/offers"
	"github.com/DataDog/queue-scheduler/pkg/runs"
	"github.com/DataDog/queue-scheduler/pkg/state"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// Handler receives the resource manager's callbacks and routes them to the
// offer processor and the run dispatcher. One instance per process; the
// transport invokes it from its own event loop.
type Handler struct {
	framework  *state.Store
	dispatcher *runs.Dispatcher
	processor  *offers.Processor
	driver     mesos.Driver

	// registerStarted distinguishes the first registration from later ones:
	// after a leader re-election the resource manager may deliver a second
	// Registered callback instead of Reregistered.
	registerStarted *atomic.Bool
	// readyForOffers stays false until the runner finished recovering state.
	// Offers arriving earlier are declined briefly and come back.
	readyForOffers *atomic.Bool

	exit func(exitcode.Code)
}

// NewHandler wires a callback handler. The framework store must be scoped to
// the storage root (empty namespace).
func NewHandler(framework *state.Store, dispatcher *runs.Dispatcher, processor *offers.Processor, driver mesos.Driver) *Handler {
	return &Handler{
		framework:       framework,
		dispatcher:      dispatcher,
		processor:       processor,
		driver:          driver,
		registerStarted: atomic.NewBool(false),
		readyForOffers:  atomic.NewBool(false),
		exit:            exitcode.Exit,
	}
}

// SetReadyForOffers opens the offer path. Called by the runner once recovery
// finished and the admin API is serving.
func (h *Handler) SetReadyForOffers() {
	h.readyForOffers.Store(true)
}

// Registered handles the registration confirmation. The framework id is
// persisted before anything else may happen: losing it would orphan every
// reservation made under it.
func (h *Handler) Registered(frameworkID mesos.FrameworkID) {
	if h.registerStarted.Swap(true) {
		// A second registration callback means the leader changed, not that
		// we registered from scratch.
		h.Reregistered()
		return
	}
	log.Infof("Registered with the resource manager as framework %s", frameworkID)
	if err := h.framework.StoreFrameworkID(frameworkID); err != nil {
		log.Errorf("Unable to persist the framework id: %v", err)
		h.exit(exitcode.RegistrationFailure)
		return
	}
	h.dispatcher.Registered(false)
	h.processor.Start()
}

// Reregistered handles reconnection to a new leading resource manager.
func (h *Handler) Reregistered() {
	log.Info("Re-registered with the resource manager")
	h.dispatcher.Registered(true)
}

// ResourceOffers admits an offer batch into the processing queue, or declines
// it briefly when the scheduler is still initializing.
func (h *Handler) ResourceOffers(incoming []*mesos.Offer) {
	if !h.readyForOffers.Load() {
		log.Infof("Declining %d offer(s): not ready to process offers yet", len(incoming))
		h.processor.DeclineShort(incoming)
		return
	}
	h.processor.Enqueue(incoming)
}

// StatusUpdate routes a task status change to the owning run. Tasks nobody
// claims are killed, unless the status is already terminal: killing a dead
// task would only provoke another unknown status for it.
func (h *Handler) StatusUpdate(status *mesos.TaskStatus) {
	result, err := h.dispatcher.HandleStatus(status)
	if err != nil {
		log.Errorf("Error handling status update for task %s: %v", status.TaskID, err)
	}
	if result != offers.UnknownTask {
		return
	}
	if status.State.IsTerminal() {
		log.Infof("Dropping %s for unknown task %s: already terminal", status.State, status.TaskID)
		return
	}
	log.Infof("Killing unknown task %s (last seen %s)", status.TaskID, status.State)
	if err := h.driver.KillTask(status.TaskID); err != nil {
		log.Warnf("Unable to kill unknown task %s: %v", status.TaskID, err)
	}
}

// OfferRescinded drops a withdrawn offer from the queue if it is still there.
func (h *Handler) OfferRescinded(offerID mesos.OfferID) {
	h.processor.DequeueRescinded(offerID)
}

// FrameworkMessage logs and drops executor messages; the scheduler does not
// speak any executor protocol.
func (h *Handler) FrameworkMessage(executorID string, agentID mesos.AgentID, data []byte) {
	log.Errorf("Unsupported %d byte message from executor %s on agent %s", len(data), executorID, agentID)
}

// Disconnected terminates the process. The supervisor restarts the scheduler
// which then re-registers under the persisted framework id.
func (h *Handler) Disconnected() {
	log.Error("Disconnected from the resource manager, exiting")
	h.exit(exitcode.Disconnected)
}

// AgentLost is informational: per-task failures arrive as status updates.
func (h *Handler) AgentLost(agentID mesos.AgentID) {
	log.Warnf("Agent lost: %s", agentID)
}

// ExecutorLost is informational, as with AgentLost.
func (h *Handler) ExecutorLost(executorID string, agentID mesos.AgentID, status int) {
	log.Warnf("Executor %s lost on agent %s (status %d)", executorID, agentID, status)
}

// Error terminates the process on an unrecoverable resource-manager error.
func (h *Handler) Error(message string) {
	log.Errorf("Resource manager reported an unrecoverable error: %s", message)
	h.exit(exitcode.Error)
}
