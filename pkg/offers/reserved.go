// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package offers implements the offer intake half of the scheduler: the
// bounded queue fed by the resource manager, the single-consumer processor
// draining it, and the pure helpers that classify reserved resources, plan
// release operations and submit accept calls.
package offers

import (
	"github.com/DataDog/queue-scheduler/pkg/mesos"
)

// OfferResources pairs an offer with a subset of its resources. The subset
// never aliases the offer's own resource slice.
type OfferResources struct {
	Offer     *mesos.Offer
	Resources []mesos.Resource
}

// ReservationIndex is the result of bucketing the reserved resources found in
// a batch of offers by the service that owns them.
type ReservationIndex struct {
	// ByService groups each service's resources per offer, in input order.
	ByService map[string][]OfferResources
	// ServiceNames holds the ByService keys in first-seen order so callers
	// can iterate deterministically.
	ServiceNames []string
	// Malformed collects reserved resources that carry no service label.
	// They have no owner to ask, so they are released unconditionally.
	Malformed []OfferResources
}

// ClassifyReservations walks each offer's resources once and buckets every
// reserved resource under the service named by its reservation label, or into
// Malformed when the label is missing. Unreserved resources are dropped.
func ClassifyReservations(offers []*mesos.Offer) ReservationIndex {
	index := ReservationIndex{ByService: map[string][]OfferResources{}}
	for _, offer := range offers {
		for _, resource := range offer.Resources {
			serviceName, ok := resource.ServiceName()
			switch {
			case ok:
				index.add(serviceName, offer, resource)
			case resource.IsReserved():
				index.Malformed = appendResource(index.Malformed, offer, resource)
			}
		}
	}
	return index
}

func (index *ReservationIndex) add(serviceName string, offer *mesos.Offer, resource mesos.Resource) {
	bucket, seen := index.ByService[serviceName]
	if !seen {
		index.ServiceNames = append(index.ServiceNames, serviceName)
	}
	index.ByService[serviceName] = appendResource(bucket, offer, resource)
}

// appendResource adds a resource to the entry for its offer, creating the
// entry at the tail when the offer was not seen before. Input order is
// preserved both across offers and within one offer's resources.
func appendResource(bucket []OfferResources, offer *mesos.Offer, resource mesos.Resource) []OfferResources {
	for i := range bucket {
		if bucket[i].Offer.ID == offer.ID {
			bucket[i].Resources = append(bucket[i].Resources, resource)
			return bucket
		}
	}
	return append(bucket, OfferResources{Offer: offer, Resources: []mesos.Resource{resource}})
}
