// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package offers

import (
	"fmt"
	"sync"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
)

const testRole = "queues-role"

func reservedCpus(resourceID, serviceName string) mesos.Resource {
	return mesos.Resource{
		Name:        "cpus",
		Role:        testRole,
		Scalar:      1.0,
		Reservation: reservation(resourceID, serviceName),
	}
}

func reservedPorts(resourceID, serviceName string) mesos.Resource {
	return mesos.Resource{
		Name:        "ports",
		Role:        testRole,
		Ranges:      []mesos.Range{{Begin: 123, End: 234}},
		Reservation: reservation(resourceID, serviceName),
	}
}

func reservedVolume(resourceID, persistenceID, serviceName string) mesos.Resource {
	return mesos.Resource{
		Name:        "disk",
		Role:        testRole,
		Scalar:      1000.0,
		Reservation: reservation(resourceID, serviceName),
		Disk: &mesos.DiskInfo{
			Persistence: &mesos.Persistence{ID: persistenceID, Principal: "queues-principal"},
		},
	}
}

func unreservedCpus() mesos.Resource {
	return mesos.Resource{Name: "cpus", Role: "*", Scalar: 4.0}
}

func reservation(resourceID, serviceName string) *mesos.Reservation {
	labels := map[string]string{}
	if resourceID != "" {
		labels[mesos.ResourceIDLabel] = resourceID
	}
	if serviceName != "" {
		labels[mesos.ServiceNameLabel] = serviceName
	}
	return &mesos.Reservation{Principal: "queues-principal", Labels: labels}
}

func newOffer(id, agent string, resources ...mesos.Resource) *mesos.Offer {
	return &mesos.Offer{
		ID:        mesos.OfferID(id),
		AgentID:   mesos.AgentID(agent),
		Hostname:  fmt.Sprintf("%s.example.com", agent),
		Resources: resources,
	}
}

// opKey summarizes a recommendation for order assertions.
func opKey(rec Recommendation) string {
	id := ""
	if len(rec.Operation.Resources) > 0 {
		resource := rec.Operation.Resources[0]
		if rid, ok := resource.ResourceID(); ok {
			id = rid
		}
	}
	return fmt.Sprintf("%s(%s,%s)", rec.Operation.Type, rec.Offer.ID, id)
}

func opKeys(recs []Recommendation) []string {
	keys := make([]string, 0, len(recs))
	for _, rec := range recs {
		keys = append(keys, opKey(rec))
	}
	return keys
}

// fakeDriver records accept and decline calls in order.
type fakeDriver struct {
	mu sync.Mutex

	accepts  []acceptCall
	declines []declineCall
	kills    []mesos.TaskID

	// acceptErr/declineErr are returned by every matching call when set.
	acceptErr  error
	declineErr error
	// transientDeclineErrs fails this many declines before succeeding.
	transientDeclineErrs int
}

type acceptCall struct {
	offerIDs   []mesos.OfferID
	operations []mesos.Operation
	filters    mesos.Filters
}

type declineCall struct {
	offerID mesos.OfferID
	filters mesos.Filters
}

func (d *fakeDriver) AcceptOffers(offerIDs []mesos.OfferID, operations []mesos.Operation, filters mesos.Filters) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.acceptErr != nil {
		return d.acceptErr
	}
	d.accepts = append(d.accepts, acceptCall{offerIDs: offerIDs, operations: operations, filters: filters})
	return nil
}

func (d *fakeDriver) DeclineOffer(offerID mesos.OfferID, filters mesos.Filters) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transientDeclineErrs > 0 {
		d.transientDeclineErrs--
		return fmt.Errorf("transient decline failure")
	}
	if d.declineErr != nil {
		return d.declineErr
	}
	d.declines = append(d.declines, declineCall{offerID: offerID, filters: filters})
	return nil
}

func (d *fakeDriver) KillTask(taskID mesos.TaskID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kills = append(d.kills, taskID)
	return nil
}

func (d *fakeDriver) declinedIDs() []mesos.OfferID {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]mesos.OfferID, 0, len(d.declines))
	for _, call := range d.declines {
		ids = append(ids, call.offerID)
	}
	return ids
}
