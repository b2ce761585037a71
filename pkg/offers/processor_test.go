// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package offers

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/queue-scheduler/pkg/exitcode"
	"github.com/DataDog/queue-scheduler/pkg/mesos"
)

type fakeHandler struct {
	mu      sync.Mutex
	result  Result
	recs    []Recommendation
	batches [][]*mesos.Offer
}

func (h *fakeHandler) HandleOffers(offers []*mesos.Offer) (Result, []Recommendation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, offers)
	return h.result, h.recs
}

func (h *fakeHandler) batchCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.batches)
}

type exitRecorder struct {
	codes []exitcode.Code
}

func (r *exitRecorder) exit(code exitcode.Code) {
	r.codes = append(r.codes, code)
}

func newTestProcessor(capacity int, handler OfferHandler, driver mesos.Driver) (*Processor, *exitRecorder) {
	rec := &exitRecorder{}
	p := newProcessor(NewOfferQueue(capacity), handler, driver, clock.New(), rec.exit, false)
	p.Start()
	return p, rec
}

func TestProcessorLongDeclinesProcessedBatch(t *testing.T) {
	handler := &fakeHandler{result: Processed}
	driver := &fakeDriver{}
	p, exits := newTestProcessor(0, handler, driver)

	p.Enqueue([]*mesos.Offer{newOffer("O1", "agent-1"), newOffer("O2", "agent-1")})

	require.Equal(t, 1, handler.batchCount())
	assert.Len(t, handler.batches[0], 2)
	require.Len(t, driver.declines, 2)
	for _, call := range driver.declines {
		assert.Equal(t, float64(mesos.LongDeclineSeconds), call.filters.RefuseSeconds)
	}
	assert.Empty(t, exits.codes)
	assert.NoError(t, p.AwaitProcessed(0))
}

func TestProcessorShortDeclinesNotReadyBatch(t *testing.T) {
	handler := &fakeHandler{result: NotReady}
	driver := &fakeDriver{}
	p, _ := newTestProcessor(0, handler, driver)

	p.Enqueue([]*mesos.Offer{newOffer("O1", "agent-1")})

	require.Len(t, driver.declines, 1)
	assert.Equal(t, float64(mesos.ShortDeclineSeconds), driver.declines[0].filters.RefuseSeconds)
	assert.NoError(t, p.AwaitProcessed(0))
}

// Consumed offers are accepted, the rest declined long.
func TestProcessorAcceptsRecommendations(t *testing.T) {
	wanted := newOffer("O1", "agent-1", reservedCpus("r1", "svc"))
	unwanted := newOffer("O2", "agent-2")
	handler := &fakeHandler{
		result: Processed,
		recs: []Recommendation{
			{Offer: wanted, Operation: mesos.NewUnreserveOperation(wanted.Resources[0])},
		},
	}
	driver := &fakeDriver{}
	p, _ := newTestProcessor(0, handler, driver)

	p.Enqueue([]*mesos.Offer{wanted, unwanted})

	require.Len(t, driver.accepts, 1)
	assert.Equal(t, []mesos.OfferID{"O1"}, driver.accepts[0].offerIDs)
	require.Len(t, driver.declines, 1)
	assert.Equal(t, mesos.OfferID("O2"), driver.declines[0].offerID)
	assert.Equal(t, float64(mesos.LongDeclineSeconds), driver.declines[0].filters.RefuseSeconds)
}

// Queue overflow: the overflowing offer is declined short during Enqueue,
// before the batch itself is processed.
func TestProcessorOverflowDeclineOrder(t *testing.T) {
	handler := &fakeHandler{result: Processed}
	driver := &fakeDriver{}
	p, _ := newTestProcessor(1, handler, driver)

	p.Enqueue([]*mesos.Offer{newOffer("O1", "agent-1"), newOffer("O2", "agent-1")})

	// O2 overflowed: declined short first. O1 processed then declined long.
	require.Equal(t, []mesos.OfferID{"O2", "O1"}, driver.declinedIDs())
	assert.Equal(t, float64(mesos.ShortDeclineSeconds), driver.declines[0].filters.RefuseSeconds)
	assert.Equal(t, float64(mesos.LongDeclineSeconds), driver.declines[1].filters.RefuseSeconds)

	require.Equal(t, 1, handler.batchCount())
	require.Len(t, handler.batches[0], 1)
	assert.Equal(t, mesos.OfferID("O1"), handler.batches[0][0].ID)
	assert.NoError(t, p.AwaitProcessed(0))
}

func TestProcessorUninstalledTriggersTeardown(t *testing.T) {
	handler := &fakeHandler{result: Uninstalled}
	driver := &fakeDriver{}
	p, _ := newTestProcessor(0, handler, driver)
	teardowns := 0
	p.OnUninstalled(func() { teardowns++ })

	p.Enqueue([]*mesos.Offer{newOffer("O1", "agent-1")})

	assert.Equal(t, 1, teardowns)
	assert.Empty(t, driver.declines)
	assert.Empty(t, driver.accepts)
	assert.NoError(t, p.AwaitProcessed(0))
}

func TestProcessorRescindedOfferSkipsProcessing(t *testing.T) {
	handler := &fakeHandler{result: Processed}
	driver := &fakeDriver{}
	rec := &exitRecorder{}
	p := newProcessor(NewOfferQueue(0), handler, driver, clock.New(), rec.exit, false)

	// not started yet: offers stay queued
	p.Enqueue([]*mesos.Offer{newOffer("O1", "agent-1"), newOffer("O2", "agent-1")})
	p.DequeueRescinded("O1")

	p.Start()
	p.Enqueue([]*mesos.Offer{newOffer("O3", "agent-1")})

	require.Equal(t, 1, handler.batchCount())
	batch := handler.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, mesos.OfferID("O2"), batch[0].ID)
	assert.Equal(t, mesos.OfferID("O3"), batch[1].ID)

	// the rescinded offer no longer counts as in flight
	assert.NoError(t, p.AwaitProcessed(0))
}

func TestProcessorAcceptFailureIsFatal(t *testing.T) {
	wanted := newOffer("O1", "agent-1", reservedCpus("r1", "svc"))
	handler := &fakeHandler{
		result: Processed,
		recs: []Recommendation{
			{Offer: wanted, Operation: mesos.NewUnreserveOperation(wanted.Resources[0])},
		},
	}
	driver := &fakeDriver{acceptErr: mesos.ErrDriverUnavailable}
	p, exits := newTestProcessor(0, handler, driver)

	p.Enqueue([]*mesos.Offer{wanted})

	assert.Equal(t, []exitcode.Code{exitcode.Error}, exits.codes)
}

func TestProcessorDeclineRetriesTransientErrors(t *testing.T) {
	handler := &fakeHandler{result: Processed}
	driver := &fakeDriver{transientDeclineErrs: 2}
	p, exits := newTestProcessor(0, handler, driver)

	p.Enqueue([]*mesos.Offer{newOffer("O1", "agent-1")})

	// two failures then success, all within one logical decline
	require.Len(t, driver.declines, 1)
	assert.Equal(t, mesos.OfferID("O1"), driver.declines[0].offerID)
	assert.Empty(t, exits.codes)
}

func TestProcessorDeclineDriverGoneIsFatal(t *testing.T) {
	handler := &fakeHandler{result: Processed}
	driver := &fakeDriver{declineErr: mesos.ErrDriverUnavailable}
	p, exits := newTestProcessor(0, handler, driver)

	p.Enqueue([]*mesos.Offer{newOffer("O1", "agent-1")})

	assert.Equal(t, []exitcode.Code{exitcode.Error}, exits.codes)
}

func TestAwaitProcessedImmediateWhenIdle(t *testing.T) {
	p, _ := newTestProcessor(0, &fakeHandler{result: Processed}, &fakeDriver{})
	assert.NoError(t, p.AwaitProcessed(0))
}

func TestAwaitProcessedTimesOut(t *testing.T) {
	mock := clock.NewMock()
	rec := &exitRecorder{}
	p := newProcessor(NewOfferQueue(0), &fakeHandler{result: Processed}, &fakeDriver{}, mock, rec.exit, false)

	// an offer that never finishes processing
	p.inProgressMu.Lock()
	p.offersInProgress["O-stuck"] = struct{}{}
	p.inProgressMu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.AwaitProcessed(100 * time.Millisecond) }()

	time.Sleep(10 * time.Millisecond) // let AwaitProcessed reach its poll sleep
	mock.Add(200 * time.Millisecond)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitProcessed did not return")
	}
}

// End-to-end through the real consumer goroutine.
func TestProcessorThreaded(t *testing.T) {
	handler := &fakeHandler{result: Processed}
	driver := &fakeDriver{}
	rec := &exitRecorder{}
	q := NewOfferQueue(0)
	p := newProcessor(q, handler, driver, clock.New(), rec.exit, true)
	p.Start()
	defer q.Close()

	p.Enqueue([]*mesos.Offer{newOffer("O1", "agent-1"), newOffer("O2", "agent-2")})
	require.NoError(t, p.AwaitProcessed(0))

	assert.GreaterOrEqual(t, handler.batchCount(), 1)
	assert.Len(t, driver.declinedIDs(), 2)
}
