// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package runs

import (
	"errors"
	"fmt"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
	"github.com/DataDog/queue-scheduler/pkg/offers"
	"github.com/DataDog/queue-scheduler/pkg/state"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// ErrInvalidSubmission is returned when a submission cannot be turned into a
// run: missing or unknown type, unparseable payload, invalid name.
var ErrInvalidSubmission = errors.New("invalid submission")

// SpecWriter persists accepted submissions and links each run back to its
// spec. Satisfied by specstore.Store.
type SpecWriter interface {
	Store(runStore *state.Store, data []byte, specType string) (string, error)
}

// DispatcherOptions tune run admission and uninstall behaviour.
type DispatcherOptions struct {
	// DefaultSpecType is assumed for submissions that carry no explicit type.
	DefaultSpecType string
	// FrameworkUninstall puts the whole framework in uninstall mode: once the
	// last run is gone, the offer verdict becomes Uninstalled and the caller
	// tears the framework down.
	FrameworkUninstall bool
	// OnRunUninstalled is invoked, outside any registry lock, for each run
	// whose uninstall completed.
	OnRunUninstalled func(name string)
}

// Dispatcher routes offers and task statuses to the hosted runs and owns the
// release of reservations nobody claims. It is the single place where the
// per-run verdicts combine into the batch verdict the offer processor acts
// on.
type Dispatcher struct {
	manager    *Manager
	specs      SpecWriter
	generators *Generators

	defaultType string
	// deregister is nil unless the framework itself is uninstalling.
	deregister       *DeregisterStep
	onRunUninstalled func(string)
}

// NewDispatcher wires the dispatcher to its run manager, spec store and
// generator registry.
func NewDispatcher(manager *Manager, specs SpecWriter, generators *Generators, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		manager:          manager,
		specs:            specs,
		generators:       generators,
		defaultType:      opts.DefaultSpecType,
		onRunUninstalled: opts.OnRunUninstalled,
	}
	if opts.FrameworkUninstall {
		log.Info("Framework is uninstalling: no further runs will be deployed")
		d.deregister = NewDeregisterStep()
	}
	return d
}

// Deregister returns the framework uninstall step, or nil when the framework
// is not uninstalling.
func (d *Dispatcher) Deregister() *DeregisterStep {
	return d.deregister
}

// HandleOffers fans one batch out to every run in admission order. Each run
// sees only the offers earlier runs did not consume. Runs that finished their
// goal are moved to uninstall, runs that finished uninstalling are removed,
// and whatever reserved resources remain unclaimed afterwards are turned into
// release operations.
func (d *Dispatcher) HandleOffers(batch []*mesos.Offer) (offers.Result, []offers.Recommendation) {
	remaining := batch
	var all []offers.Recommendation
	var finished, uninstalled []string
	anyNotReady := false

	snapshot := d.manager.LockForRead()
	noRuns := len(snapshot) == 0
	for _, run := range snapshot {
		outcome := run.Offers(remaining)
		log.Debugf("Run %s answered %s with %d recommendation(s)",
			run.Name(), outcome.Result, len(outcome.Recommendations))
		if len(outcome.Recommendations) > 0 {
			remaining = offers.FilterOutAccepted(remaining, outcome.Recommendations)
			all = append(all, outcome.Recommendations...)
		}
		switch outcome.Result {
		case offers.Processed:
		case offers.NotReady:
			anyNotReady = true
		case offers.Finished:
			finished = append(finished, run.Name())
		case offers.Uninstalled:
			uninstalled = append(uninstalled, run.Name())
		default:
			log.Warnf("Run %s answered an offer batch with %s, ignoring", run.Name(), outcome.Result)
		}
	}
	d.manager.Unlock()

	if len(finished) > 0 {
		log.Infof("Moving %d finished run(s) to uninstall: %v", len(finished), finished)
		d.manager.StartUninstall(finished)
	}
	if len(uninstalled) > 0 {
		if d.manager.Remove(uninstalled) == 0 {
			noRuns = true
		}
		// Callbacks stay outside every registry lock: they are free to
		// re-enter the manager.
		for _, name := range uninstalled {
			log.Infof("Run %s has finished uninstalling", name)
			if d.onRunUninstalled != nil {
				d.onRunUninstalled(name)
			}
		}
	}

	if noRuns && d.deregister != nil {
		// The last run is gone and the framework itself is shutting down.
		// Residual reservations die with the framework, so no release pass.
		d.deregister.Start()
		return offers.Uninstalled, all
	}

	releases, failed := d.releaseUnclaimed(remaining)
	all = append(all, releases...)

	switch {
	case noRuns || anyNotReady:
		return offers.NotReady, all
	case failed:
		// At least one run could not account for its reservations. Its
		// resources were still released above; a short decline brings the
		// rest back for the next attempt.
		return offers.NotReady, all
	default:
		return offers.Processed, all
	}
}

// releaseUnclaimed classifies the reserved resources left in the residual
// offers and plans the release of everything no run claims: resources with
// no owner label, resources of services nobody manages anymore, and whatever
// each managed run disowns.
func (d *Dispatcher) releaseUnclaimed(remaining []*mesos.Offer) ([]offers.Recommendation, bool) {
	index := offers.ClassifyReservations(remaining)

	var unclaimed []offers.OfferResources
	if len(index.Malformed) > 0 {
		log.Warnf("Releasing reserved resources without an owner label in %d offer(s)", len(index.Malformed))
		unclaimed = append(unclaimed, index.Malformed...)
	}

	failed := false
	for _, serviceName := range index.ServiceNames {
		owned := index.ByService[serviceName]
		run, ok := d.manager.Get(serviceName)
		if !ok {
			log.Warnf("Reserved resources in %d offer(s) belong to unknown service %s, releasing them",
				len(owned), serviceName)
			unclaimed = append(unclaimed, owned...)
			continue
		}
		outcome := run.UnexpectedResources(owned)
		if outcome.Result == offers.Failed {
			log.Errorf("Run %s failed while reporting unexpected resources; releasing the reported subset anyway",
				serviceName)
			failed = true
		}
		unclaimed = append(unclaimed, outcome.Unexpected...)
	}
	if len(unclaimed) == 0 {
		return nil, failed
	}

	// Rebuild each subset as an offer of its own so the cleaner sees only
	// resources already judged releasable.
	synthetic := make([]*mesos.Offer, 0, len(unclaimed))
	for _, subset := range unclaimed {
		synthetic = append(synthetic, subset.Offer.WithResources(subset.Resources))
	}
	releases := offers.NewResourceCleaner(offers.ExpectedResources{}).Evaluate(synthetic)
	log.Infof("Releasing unclaimed reservations: %d operation(s) across %d offer(s)", len(releases), len(synthetic))
	return releases, failed
}

// HandleStatus routes a task status update to the run that launched the
// task. A verdict of UnknownTask tells the caller nobody owns it.
func (d *Dispatcher) HandleStatus(status *mesos.TaskStatus) (offers.Result, error) {
	serviceName, err := mesos.ServiceNameFromTaskID(status.TaskID)
	if err != nil {
		log.Warnf("Status update carries an unroutable task id %s: %v", status.TaskID, err)
		return offers.UnknownTask, nil
	}
	run, ok := d.manager.Get(serviceName)
	if !ok {
		log.Warnf("Status update for task %s names unknown run %s", status.TaskID, serviceName)
		return offers.UnknownTask, nil
	}
	return run.Status(status)
}

// Registered tells every hosted run that the framework registered with the
// resource manager, or re-registered after a disconnect.
func (d *Dispatcher) Registered(reRegistered bool) {
	d.manager.Registered(reRegistered)
}

// Unregistered records the resource manager's confirmation that the
// framework deregistered. Terminal step of a framework uninstall.
func (d *Dispatcher) Unregistered() {
	if d.deregister != nil {
		d.deregister.SetComplete()
	}
}

// Submit admits a new run from raw submission bytes: generate, persist the
// spec, then hand the run to the manager. Returns the run and its spec id.
func (d *Dispatcher) Submit(data []byte, specType string) (Run, string, error) {
	if d.deregister != nil {
		return nil, "", fmt.Errorf("%w: the framework is uninstalling", ErrInvalidSubmission)
	}
	if specType == "" {
		specType = d.defaultType
	}
	if specType == "" {
		return nil, "", fmt.Errorf("%w: no spec type given and no default is configured", ErrInvalidSubmission)
	}
	gen, ok := d.generators.Get(specType)
	if !ok {
		return nil, "", fmt.Errorf("%w: no generator for type %q, installed types are %v",
			ErrInvalidSubmission, specType, d.generators.Types())
	}
	run, err := gen.Generate(data)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	if _, taken := d.manager.Get(run.Name()); taken {
		return nil, "", fmt.Errorf("%w: %s", ErrDuplicateRun, run.Name())
	}
	specID, err := d.specs.Store(run.StateStore(), data, specType)
	if err != nil {
		return nil, "", err
	}
	if err := d.manager.Put(run); err != nil {
		return nil, "", err
	}
	log.Infof("Admitted run %s with spec %s", run.Name(), specID)
	return run, specID, nil
}
