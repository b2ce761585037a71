// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package scheduler

import (
	"errors"
	"fmt"

	"github.com/DataDog/queue-scheduler/pkg/api"
	"github.com/DataDog/queue-scheduler/pkg/config"
	"github.com/DataDog/queue-scheduler/pkg/exitcode"
	"github.com/DataDog/queue-scheduler/pkg/mesos"
	"github.com/DataDog/queue-scheduler/pkg/offers"
	"github.com/DataDog/queue-scheduler/pkg/persister"
	"github.com/DataDog/queue-scheduler/pkg/runs"
	"github.com/DataDog/queue-scheduler/pkg/specstore"
	"github.com/DataDog/queue-scheduler/pkg/state"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// frameworkUninstallMarker is the root-level property recording that the
// framework itself was put in uninstall mode. Writing it is irreversible.
const frameworkUninstallMarker = "uninstalling"

// Transport is the resource-manager connection the embedding binary links
// in. This module deliberately carries none: the wire protocol is an
// external collaborator, and only its shape is fixed here.
type Transport interface {
	// Driver returns the outbound call surface. It must be usable as soon as
	// Run is invoked.
	Driver() mesos.Driver
	// Run delivers the resource manager's callbacks to the handler and blocks
	// until the connection ends for good. A nil return is a clean shutdown;
	// an error means the connection died underneath the scheduler.
	Run(callbacks *Handler) error
	// Teardown permanently deregisters the framework. Called once the last
	// run finished uninstalling; afterwards Run is expected to return nil.
	Teardown() error
}

// Options carries the collaborators Run cannot take from configuration.
type Options struct {
	// Transport connects the scheduler to the resource manager. Required.
	Transport Transport
	// Coordinators builds the deployment engine of each admitted run. The
	// plan engine is an external collaborator; nil leaves runs without one
	// (they deploy nothing and report complete).
	Coordinators runs.CoordinatorFactory
	// Persister overrides the config-selected storage backend. Tests only.
	Persister persister.Persister
}

// Run assembles the scheduler from the global configuration and blocks until
// the resource-manager connection ends. The returned code is what the
// process should exit with; fatal conditions on the callback path terminate
// the process directly through pkg/exitcode.
func Run(opts Options) exitcode.Code {
	if opts.Transport == nil {
		log.Critical("No resource-manager transport was provided")
		return exitcode.InitializationFailure
	}

	backend, locker, err := buildStorage(opts)
	if err != nil {
		log.Criticalf("Unable to initialize the %q storage backend: %v",
			config.Scheduler.GetString("persister.backend"), err)
		return exitcode.InitializationFailure
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warnf("Error closing storage: %v", err)
		}
	}()

	if err := acquireLock(locker, config.Scheduler.GetDuration("lock.timeout")); err != nil {
		log.Criticalf("Unable to take the scheduler lock: %v", err)
		return exitcode.LockUnavailable
	}
	defer func() {
		if err := locker.Unlock(); err != nil {
			log.Warnf("Error releasing the scheduler lock: %v", err)
		}
	}()

	p := backend
	if config.Scheduler.GetBool("persister.cache") {
		log.Info("Storage cache is enabled")
		p = persister.NewCached(backend)
	}

	if err := persister.CheckSchemaVersion(p); err != nil {
		log.Criticalf("Storage schema check failed: %v", err)
		return exitcode.InitializationFailure
	}

	frameworkStore := state.NewStore(p, "")
	uninstallMode := config.Scheduler.GetBool("framework.uninstall")
	if code, err := checkUninstallMode(frameworkStore, uninstallMode); err != nil {
		log.Criticalf("%v", err)
		return code
	}

	generators := runs.NewGenerators()
	if err := generators.Register(runs.YAMLSpecType, runs.NewYAMLGenerator(p, opts.Coordinators)); err != nil {
		log.Criticalf("Unable to register the yaml generator: %v", err)
		return exitcode.InitializationFailure
	}

	specs := specstore.New(p)
	manager := runs.NewManager()

	recovered, err := specs.Recover(generators)
	if err != nil {
		log.Criticalf("Unable to recover the persisted runs: %v", err)
		return exitcode.InitializationFailure
	}
	for _, run := range recovered {
		if err := manager.Put(run); err != nil {
			log.Criticalf("Unable to admit recovered run %s: %v", run.Name(), err)
			return exitcode.InitializationFailure
		}
	}

	dispatcher := runs.NewDispatcher(manager, specs, generators, runs.DispatcherOptions{
		DefaultSpecType:    config.Scheduler.GetString("default_spec_type"),
		FrameworkUninstall: uninstallMode,
		OnRunUninstalled: func(name string) {
			log.Infof("Run %s has completed its uninstall", name)
		},
	})

	driver := opts.Transport.Driver()
	queue := offers.NewOfferQueue(config.Scheduler.GetInt("offer_queue.capacity"))
	defer queue.Close()
	processor := offers.NewProcessor(queue, dispatcher, driver)
	processor.OnUninstalled(func() {
		finishUninstall(opts.Transport, dispatcher, p)
	})

	handler := NewHandler(frameworkStore, dispatcher, processor, driver)

	server, err := api.NewServer(manager, dispatcher)
	if err != nil {
		log.Criticalf("Unable to set up the admin API server: %v", err)
		return exitcode.APIServerError
	}
	server.Start()
	defer server.Stop()
	log.Infof("Admin API serving on %s", server.Address())

	handler.SetReadyForOffers()
	log.Infof("Scheduler assembled with %d recovered run(s), entering the resource-manager event loop", len(recovered))

	if err := opts.Transport.Run(handler); err != nil {
		log.Criticalf("The resource-manager connection ended: %v", err)
		return exitcode.DriverExited
	}
	log.Info("Resource-manager event loop finished")
	return exitcode.Success
}

// buildStorage constructs the configured backend and the matching exclusive
// lock. The lock pairs with the raw backend, before any caching.
func buildStorage(opts Options) (persister.Persister, Locker, error) {
	if opts.Persister != nil {
		return opts.Persister, noopLocker{}, nil
	}
	root := config.StateRoot(config.Scheduler)
	switch backend := config.Scheduler.GetString("persister.backend"); backend {
	case "zookeeper":
		servers := config.Scheduler.GetStringSlice("zookeeper.servers")
		timeout := config.Scheduler.GetDuration("zookeeper.timeout")
		p, err := persister.NewZooKeeper(servers, timeout, root)
		if err != nil {
			return nil, nil, err
		}
		locker, err := NewZooKeeperLocker(servers, timeout, root)
		if err != nil {
			p.Close()
			return nil, nil, err
		}
		return p, locker, nil
	case "bolt":
		// bolt takes an exclusive file lock on open
		p, err := persister.NewBolt(config.Scheduler.GetString("bolt.path"))
		if err != nil {
			return nil, nil, err
		}
		return p, noopLocker{}, nil
	case "consul":
		p, err := persister.NewConsul(
			config.Scheduler.GetString("consul.address"),
			config.Scheduler.GetString("consul.datacenter"),
			root,
		)
		if err != nil {
			return nil, nil, err
		}
		lock, err := p.NewLock()
		if err != nil {
			return nil, nil, fmt.Errorf("unable to prepare the consul lock: %w", err)
		}
		return p, newConsulLocker(lock), nil
	case "memory":
		log.Warn("Using the in-memory storage backend: state will not survive a restart")
		return persister.NewMemory(), noopLocker{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown persister backend %q", backend)
	}
}

// checkUninstallMode reconciles the framework.uninstall setting with the
// persisted uninstall marker. Uninstall mode is sticky: once recorded it can
// only be completed, never reverted.
func checkUninstallMode(frameworkStore *state.Store, uninstallMode bool) (exitcode.Code, error) {
	_, err := frameworkStore.FetchProperty(frameworkUninstallMarker)
	switch {
	case err == nil && !uninstallMode:
		return exitcode.SchedulerAlreadyUninstalling, errors.New(
			"the framework was told to uninstall earlier and that cannot be reversed: re-enable framework.uninstall to finish the teardown")
	case errors.Is(err, persister.ErrNotFound) && uninstallMode:
		log.Info("Framework uninstall requested: marking storage, this cannot be reversed")
		if err := frameworkStore.StoreProperty(frameworkUninstallMarker, []byte("true")); err != nil {
			return exitcode.InitializationFailure, fmt.Errorf("unable to persist the uninstall marker: %w", err)
		}
	case err != nil && !errors.Is(err, persister.ErrNotFound):
		return exitcode.InitializationFailure, fmt.Errorf("unable to read the uninstall marker: %w", err)
	}
	return exitcode.Success, nil
}

// finishUninstall deregisters the framework once its last run is gone, then
// wipes what remains of the framework's storage. Runs on the offer consumer
// goroutine; the transport's event loop ends right after.
func finishUninstall(transport Transport, dispatcher *runs.Dispatcher, p persister.Persister) {
	log.Info("The last run is gone and the framework is uninstalling: deregistering from the resource manager")
	if err := transport.Teardown(); err != nil {
		log.Errorf("Unable to tear down the framework registration: %v", err)
		return
	}
	dispatcher.Unregistered()
	if err := persister.WipeAll(p); err != nil {
		log.Errorf("Unable to wipe the framework's storage: %v", err)
		return
	}
	log.Info("Framework uninstall complete")
}
