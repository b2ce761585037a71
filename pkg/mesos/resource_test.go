// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package mesos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceAccessors(t *testing.T) {
	unreserved := Resource{Name: "cpus", Scalar: 1}
	assert.False(t, unreserved.IsReserved())
	_, ok := unreserved.ResourceID()
	assert.False(t, ok)
	_, ok = unreserved.ServiceName()
	assert.False(t, ok)

	reserved := Resource{
		Name: "mem",
		Role: "svc-role",
		Reservation: &Reservation{
			Principal: "svc-principal",
			Labels: map[string]string{
				ResourceIDLabel:  "rid-1",
				ServiceNameLabel: "svc",
			},
		},
	}
	id, ok := reserved.ResourceID()
	require.True(t, ok)
	assert.Equal(t, "rid-1", id)
	name, ok := reserved.ServiceName()
	require.True(t, ok)
	assert.Equal(t, "svc", name)
	assert.False(t, reserved.HasPersistence())

	volume := Resource{
		Name:        "disk",
		Reservation: &Reservation{Labels: map[string]string{ResourceIDLabel: "rid-2"}},
		Disk: &DiskInfo{
			Persistence: &Persistence{ID: "pid-2"},
			Source:      &DiskSource{MountRoot: "/mnt/vol0"},
		},
	}
	require.True(t, volume.HasPersistence())
	pid, ok := volume.PersistenceID()
	require.True(t, ok)
	assert.Equal(t, "pid-2", pid)
	root, ok := volume.SourceRoot()
	require.True(t, ok)
	assert.Equal(t, "/mnt/vol0", root)
	_, ok = volume.ServiceName()
	assert.False(t, ok, "volume reservation carries no service label")
}

func TestResourceEmptyLabelValues(t *testing.T) {
	r := Resource{
		Reservation: &Reservation{Labels: map[string]string{ResourceIDLabel: "", ServiceNameLabel: ""}},
	}
	_, ok := r.ResourceID()
	assert.False(t, ok)
	_, ok = r.ServiceName()
	assert.False(t, ok)
}

func TestServiceNameFromTaskID(t *testing.T) {
	name, err := ServiceNameFromTaskID(BuildTaskID("data-svc", "node-0", "uuid-1"))
	require.NoError(t, err)
	assert.Equal(t, "data-svc", name)

	for _, id := range []TaskID{"", "noseparator", "__leading"} {
		_, err := ServiceNameFromTaskID(id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestOfferWithResources(t *testing.T) {
	offer := &Offer{
		ID:      "o1",
		AgentID: "a1",
		Resources: []Resource{
			{Name: "cpus", Scalar: 4},
			{Name: "mem", Scalar: 1024},
		},
	}
	subset := offer.WithResources(offer.Resources[:1])
	assert.Equal(t, OfferID("o1"), subset.ID)
	assert.Equal(t, AgentID("a1"), subset.AgentID)
	require.Len(t, subset.Resources, 1)
	assert.Equal(t, "cpus", subset.Resources[0].Name)
	// the original offer is untouched
	assert.Len(t, offer.Resources, 2)
}
