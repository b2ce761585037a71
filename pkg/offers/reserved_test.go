// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package offers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
)

func TestClassifyBucketsByService(t *testing.T) {
	offers := []*mesos.Offer{
		newOffer("O1", "agent-1",
			reservedCpus("a1", "alpha"),
			reservedVolume("b1", "b1", "beta"),
			unreservedCpus(),
		),
		newOffer("O2", "agent-2",
			reservedCpus("a2", "alpha"),
		),
	}

	index := ClassifyReservations(offers)

	require.Equal(t, []string{"alpha", "beta"}, index.ServiceNames)
	require.Empty(t, index.Malformed)

	alpha := index.ByService["alpha"]
	require.Len(t, alpha, 2)
	assert.Equal(t, mesos.OfferID("O1"), alpha[0].Offer.ID)
	require.Len(t, alpha[0].Resources, 1)
	assert.Equal(t, "cpus", alpha[0].Resources[0].Name)
	assert.Equal(t, mesos.OfferID("O2"), alpha[1].Offer.ID)

	beta := index.ByService["beta"]
	require.Len(t, beta, 1)
	assert.Equal(t, mesos.OfferID("O1"), beta[0].Offer.ID)
}

func TestClassifyGroupsPerOffer(t *testing.T) {
	// two resources of the same service on one offer end up in one entry
	offer := newOffer("O1", "agent-1",
		reservedCpus("a1", "alpha"),
		reservedVolume("a2", "a2", "alpha"),
	)

	index := ClassifyReservations([]*mesos.Offer{offer})
	alpha := index.ByService["alpha"]
	require.Len(t, alpha, 1)
	assert.Len(t, alpha[0].Resources, 2)
	assert.Equal(t, "cpus", alpha[0].Resources[0].Name)
	assert.Equal(t, "disk", alpha[0].Resources[1].Name)
}

func TestClassifyMalformed(t *testing.T) {
	// reserved but no service label: nobody to ask, release unconditionally
	offer := newOffer("O1", "agent-1", reservedCpus("a1", ""))

	index := ClassifyReservations([]*mesos.Offer{offer})
	assert.Empty(t, index.ServiceNames)
	require.Len(t, index.Malformed, 1)
	assert.Equal(t, mesos.OfferID("O1"), index.Malformed[0].Offer.ID)
}

func TestClassifyDropsUnreserved(t *testing.T) {
	offer := newOffer("O1", "agent-1", unreservedCpus())

	index := ClassifyReservations([]*mesos.Offer{offer})
	assert.Empty(t, index.ServiceNames)
	assert.Empty(t, index.Malformed)
}
