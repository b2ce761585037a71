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

func emptyExpected() ExpectedResources {
	return ExpectedFromResources(nil)
}

func TestCleanerNoOffers(t *testing.T) {
	assert.Empty(t, NewResourceCleaner(emptyExpected()).Evaluate(nil))
}

// An orphaned persistent volume is both destroyed and unreserved, in that
// order.
func TestCleanerOrphanVolume(t *testing.T) {
	offer := newOffer("O1", "agent-1", reservedVolume("r1", "r1", "svc"))

	recs := NewResourceCleaner(emptyExpected()).Evaluate([]*mesos.Offer{offer})
	require.Len(t, recs, 2)
	assert.Equal(t, []string{
		"DESTROY(O1,r1)",
		"UNRESERVE(O1,r1)",
	}, opKeys(recs))
}

// Unexpected reservations across several offers: destroys first in offer
// order, then unreserves in offer order.
func TestCleanerMixedUnexpected(t *testing.T) {
	offers := []*mesos.Offer{
		newOffer("O1", "agent-1", reservedVolume("r1", "r1", "svc")),
		newOffer("O2", "agent-2", reservedCpus("r2", "svc")),
		newOffer("O3", "agent-3", reservedVolume("r3", "r3", "svc")),
	}

	recs := NewResourceCleaner(emptyExpected()).Evaluate(offers)
	assert.Equal(t, []string{
		"DESTROY(O1,r1)",
		"DESTROY(O3,r3)",
		"UNRESERVE(O1,r1)",
		"UNRESERVE(O2,r2)",
		"UNRESERVE(O3,r3)",
	}, opKeys(recs))
}

// Expected resources are kept, everything else on the same offer released.
// Within one offer a pass emits resources in name order, so the plain cpus
// reservation is unreserved before the disk volume.
func TestCleanerPartialExpectation(t *testing.T) {
	expected := ExpectedFromResources([]mesos.Resource{
		reservedPorts("r1", "svc"),
		reservedVolume("r2", "r2", "svc"),
	})
	offer := newOffer("O1", "agent-1",
		reservedPorts("r1", "svc"),
		reservedVolume("r2", "r2", "svc"),
		reservedVolume("u1", "u1", "svc"),
		reservedCpus("u2", "svc"),
	)

	recs := NewResourceCleaner(expected).Evaluate([]*mesos.Offer{offer})
	assert.Equal(t, []string{
		"DESTROY(O1,u1)",
		"UNRESERVE(O1,u2)",
		"UNRESERVE(O1,u1)",
	}, opKeys(recs))
}

func TestCleanerAllExpected(t *testing.T) {
	expected := ExpectedFromResources([]mesos.Resource{
		reservedPorts("r1", "svc"),
		reservedVolume("r2", "r2", "svc"),
	})
	offer := newOffer("O1", "agent-1",
		reservedPorts("r1", "svc"),
		reservedVolume("r2", "r2", "svc"),
	)

	assert.Empty(t, NewResourceCleaner(expected).Evaluate([]*mesos.Offer{offer}))
}

// Unreserved resources never generate release operations.
func TestCleanerIgnoresUnreserved(t *testing.T) {
	offer := newOffer("O1", "agent-1", unreservedCpus())
	assert.Empty(t, NewResourceCleaner(emptyExpected()).Evaluate([]*mesos.Offer{offer}))
}
