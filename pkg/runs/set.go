// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package runs

import (
	"fmt"
	"sort"
	"sync"
)

// runSet is the name → run mapping under the manager. It exposes its lock to
// the manager, which decides the locking discipline; the methods themselves
// assume the caller holds the appropriate side of mu.
type runSet struct {
	mu     sync.RWMutex
	byName map[string]Run
	// order remembers insertion order: offer fan-out iterates runs in the
	// order they were admitted, not map order.
	order []string
}

func newRunSet() *runSet {
	return &runSet{byName: map[string]Run{}}
}

// snapshot returns the runs in insertion order. The slice is a copy; the runs
// themselves are shared.
func (s *runSet) snapshot() []Run {
	snapshot := make([]Run, 0, len(s.order))
	for _, name := range s.order {
		snapshot = append(snapshot, s.byName[name])
	}
	return snapshot
}

func (s *runSet) get(name string) (Run, bool) {
	run, ok := s.byName[name]
	return run, ok
}

// insert adds a run under its name. Names are unique: inserting a present
// name fails without modifying the set.
func (s *runSet) insert(run Run) error {
	name := run.Name()
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, name)
	}
	s.byName[name] = run
	s.order = append(s.order, name)
	return nil
}

// replace swaps the run stored under name, keeping its insertion slot. The
// name must be present.
func (s *runSet) replace(name string, run Run) {
	s.byName[name] = run
}

// remove drops a name. Unknown names are a no-op.
func (s *runSet) remove(name string) {
	if _, exists := s.byName[name]; !exists {
		return
	}
	delete(s.byName, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *runSet) size() int {
	return len(s.byName)
}

// names returns the run names sorted lexicographically, for stable listings.
func (s *runSet) names() []string {
	names := make([]string, 0, len(s.order))
	names = append(names, s.order...)
	sort.Strings(names)
	return names
}
