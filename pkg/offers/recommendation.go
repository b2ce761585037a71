// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package offers

import (
	"github.com/DataDog/queue-scheduler/pkg/mesos"
)

// Recommendation pairs an offer with one operation to perform against it.
// A batch of recommendations is the unit handed to the Accepter.
type Recommendation struct {
	Offer     *mesos.Offer
	Operation mesos.Operation
}

// FilterOutAccepted returns the offers not consumed by any recommendation,
// preserving the relative order of the survivors.
func FilterOutAccepted(offers []*mesos.Offer, recs []Recommendation) []*mesos.Offer {
	if len(recs) == 0 {
		return offers
	}
	consumed := make(map[mesos.OfferID]struct{}, len(recs))
	for _, rec := range recs {
		consumed[rec.Offer.ID] = struct{}{}
	}
	remaining := make([]*mesos.Offer, 0, len(offers))
	for _, offer := range offers {
		if _, ok := consumed[offer.ID]; !ok {
			remaining = append(remaining, offer)
		}
	}
	return remaining
}
