// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package offers

import (
	"sort"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// ExpectedResources is the set of reservations a caller still wants to keep.
// Anything reserved that is not listed here is fair game for release.
type ExpectedResources struct {
	ResourceIDs    map[string]struct{}
	PersistenceIDs map[string]struct{}
}

// ExpectedFromResources builds the expected sets from a collection of
// resources, typically the reservations recorded in a run's task records.
func ExpectedFromResources(resources []mesos.Resource) ExpectedResources {
	expected := ExpectedResources{
		ResourceIDs:    map[string]struct{}{},
		PersistenceIDs: map[string]struct{}{},
	}
	for _, resource := range resources {
		if resourceID, ok := resource.ResourceID(); ok {
			expected.ResourceIDs[resourceID] = struct{}{}
		}
		if persistenceID, ok := resource.PersistenceID(); ok {
			expected.PersistenceIDs[persistenceID] = struct{}{}
		}
	}
	return expected
}

// ExpectsResource reports whether a reservation id is part of the set.
func (e ExpectedResources) ExpectsResource(id string) bool {
	_, ok := e.ResourceIDs[id]
	return ok
}

// ExpectsVolume reports whether a persistence id is part of the set.
func (e ExpectedResources) ExpectsVolume(id string) bool {
	_, ok := e.PersistenceIDs[id]
	return ok
}

// ResourceCleaner plans the release of unexpected reservations. An agent can
// drop out long enough for its tasks to be relocated and then come back,
// offering reservations nobody wants anymore; the cleaner turns those into
// DESTROY and UNRESERVE operations so they return to the cluster.
type ResourceCleaner struct {
	expected ExpectedResources
}

// NewResourceCleaner returns a cleaner that releases everything reserved
// which is not covered by expected.
func NewResourceCleaner(expected ExpectedResources) *ResourceCleaner {
	return &ResourceCleaner{expected: expected}
}

// Evaluate returns the release operations for a batch of offers. The result
// must be performed in order: the resource lifecycle is RESERVE -> CREATE ->
// DESTROY -> UNRESERVE, so every DESTROY is emitted before any UNRESERVE. An
// unexpected persistent volume yields both.
//
// Ties within a pass break by input offer order, then by resource name
// within one offer, so the output is stable across runs.
func (c *ResourceCleaner) Evaluate(offers []*mesos.Offer) []Recommendation {
	var recs []Recommendation
	for _, offer := range offers {
		for _, resource := range sortedByName(offer.Resources) {
			persistenceID, ok := resource.PersistenceID()
			if !ok || c.expected.ExpectsVolume(persistenceID) {
				continue
			}
			log.Debugf("Volume to be destroyed: %s (offer %s)", persistenceID, offer.ID)
			recs = append(recs, Recommendation{Offer: offer, Operation: mesos.NewDestroyOperation(resource)})
		}
	}
	for _, offer := range offers {
		for _, resource := range sortedByName(offer.Resources) {
			resourceID, ok := resource.ResourceID()
			if !ok || c.expected.ExpectsResource(resourceID) {
				continue
			}
			log.Debugf("Resource to be unreserved: %s (offer %s)", resourceID, offer.ID)
			recs = append(recs, Recommendation{Offer: offer, Operation: mesos.NewUnreserveOperation(resource)})
		}
	}
	return recs
}

func sortedByName(resources []mesos.Resource) []mesos.Resource {
	sorted := make([]mesos.Resource, len(resources))
	copy(sorted, resources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}
