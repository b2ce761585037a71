// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package runs

import (
	"fmt"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
	"github.com/DataDog/queue-scheduler/pkg/offers"
)

// Generator turns raw submission bytes of one spec type into a hostable run.
// Generators are also the recovery path: a restarted scheduler feeds every
// persisted spec back through its generator.
type Generator interface {
	Generate(data []byte) (Run, error)
}

// Generators is the registry of installed spec types. Registration order is
// preserved so listings and error messages stay stable.
type Generators struct {
	byType map[string]Generator
	order  []string
}

// NewGenerators returns an empty registry.
func NewGenerators() *Generators {
	return &Generators{byType: map[string]Generator{}}
}

// Register installs a generator under its type label.
func (g *Generators) Register(specType string, gen Generator) error {
	if specType == "" {
		return fmt.Errorf("generator type must not be empty")
	}
	if _, exists := g.byType[specType]; exists {
		return fmt.Errorf("a generator for type %q is already registered", specType)
	}
	g.byType[specType] = gen
	g.order = append(g.order, specType)
	return nil
}

// Get returns the generator for a type label.
func (g *Generators) Get(specType string) (Generator, bool) {
	gen, ok := g.byType[specType]
	return gen, ok
}

// Types lists the registered type labels in registration order.
func (g *Generators) Types() []string {
	types := make([]string, len(g.order))
	copy(types, g.order)
	return types
}

// CoordinatorFactory builds the plan coordinator for a newly generated run.
// The plan engine lives outside this repository; wiring injects it here.
type CoordinatorFactory func(runName string, spec []byte) PlanCoordinator

// idleCoordinator stands in when no plan engine is wired: it consumes no
// offers and reports complete, so a FINISHED-goal run uninstalls right away.
type idleCoordinator struct{}

func (idleCoordinator) ProcessOffers(remaining []*mesos.Offer) []offers.Recommendation { return nil }

func (idleCoordinator) Complete() bool { return true }
