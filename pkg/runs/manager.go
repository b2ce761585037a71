// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package runs

import (
	"errors"

	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// ErrDuplicateRun is returned when admitting a run whose name is taken.
var ErrDuplicateRun = errors.New("a run with this name already exists")

// Manager is the lifecycle façade over the run set: admission, lookup,
// uninstall transitions and removal, all serialized on the set's lock.
type Manager struct {
	set *runSet
	// hasRegistered flips once the framework-level registration callback has
	// fired. Guarded by set.mu: runs admitted afterwards are registered
	// immediately so they can initialize without waiting for a callback that
	// already happened.
	hasRegistered bool
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{set: newRunSet()}
}

// Put admits a run. Fails with ErrDuplicateRun when the name is taken. If the
// framework has already registered, the run is notified before Put returns.
func (m *Manager) Put(run Run) error {
	m.set.mu.Lock()
	defer m.set.mu.Unlock()
	if err := m.set.insert(run); err != nil {
		return err
	}
	log.Infof("Added run %s, %d now present", run.Name(), m.set.size())
	if m.hasRegistered {
		run.Registered(false)
	}
	return nil
}

// Get returns the run stored under name.
func (m *Manager) Get(name string) (Run, bool) {
	m.set.mu.RLock()
	defer m.set.mu.RUnlock()
	return m.set.get(name)
}

// Names lists the managed run names, sorted.
func (m *Manager) Names() []string {
	m.set.mu.RLock()
	defer m.set.mu.RUnlock()
	return m.set.names()
}

// StartUninstall swaps each named run for its uninstalling replacement.
// Unknown names and runs already uninstalling are logged and skipped, so the
// call is safe to repeat.
func (m *Manager) StartUninstall(names []string) {
	m.set.mu.Lock()
	defer m.set.mu.Unlock()
	for _, name := range names {
		current, ok := m.set.get(name)
		if !ok {
			log.Warnf("Unable to trigger uninstall for unknown run %s", name)
			continue
		}
		if current.Uninstalling() {
			log.Warnf("Run %s is already uninstalling", name)
			continue
		}
		replacement, err := current.ToUninstall()
		if err != nil {
			// Leave the run active; the verdict that got us here will come
			// around again on a later offer pass.
			log.Errorf("Unable to move run %s to uninstall: %v", name, err)
			continue
		}
		log.Infof("Run %s is now uninstalling", name)
		m.set.replace(name, replacement)
		if m.hasRegistered {
			replacement.Registered(false)
		}
	}
}

// Remove drops the named runs unconditionally and returns how many runs are
// left. Used once a run reports its uninstall completed.
func (m *Manager) Remove(names []string) int {
	m.set.mu.Lock()
	defer m.set.mu.Unlock()
	for _, name := range names {
		m.set.remove(name)
	}
	remaining := m.set.size()
	log.Infof("Removed %d run(s), %d remaining", len(names), remaining)
	return remaining
}

// Registered marks the framework as registered and notifies every current
// run, in admission order.
func (m *Manager) Registered(reRegistered bool) {
	m.set.mu.Lock()
	defer m.set.mu.Unlock()
	m.hasRegistered = true
	for _, run := range m.set.snapshot() {
		run.Registered(reRegistered)
	}
}

// LockForRead takes the shared lock and returns the runs in admission order.
// The caller must call Unlock when done iterating and must not retain the
// runs past it.
func (m *Manager) LockForRead() []Run {
	m.set.mu.RLock()
	return m.set.snapshot()
}

// Unlock releases the shared lock taken by LockForRead.
func (m *Manager) Unlock() {
	m.set.mu.RUnlock()
}
