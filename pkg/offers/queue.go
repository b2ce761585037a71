// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package offers

import (
	"sync"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
)

// OfferQueue is the bounded FIFO between the resource manager's event thread
// and the processor's consumer. Overflow is reported to the caller, which
// declines the offer; the resource manager resends it later, so a full queue
// is backpressure rather than loss.
type OfferQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	offers   []*mesos.Offer
	capacity int
	closed   bool
}

// NewOfferQueue returns a queue holding at most capacity offers. A capacity
// of zero means unbounded.
func NewOfferQueue(capacity int) *OfferQueue {
	q := &OfferQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Offer enqueues an offer. Returns false when the queue is full or closed;
// the offer is then the caller's to decline.
func (q *OfferQueue) Offer(offer *mesos.Offer) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if q.capacity > 0 && len(q.offers) >= q.capacity {
		return false
	}
	q.offers = append(q.offers, offer)
	q.notEmpty.Signal()
	return true
}

// TakeAll blocks until at least one offer is queued, then drains everything
// currently enqueued in FIFO order. Returns nil once the queue is closed and
// empty.
func (q *OfferQueue) TakeAll() []*mesos.Offer {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.offers) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	batch := q.offers
	q.offers = nil
	if len(batch) == 0 {
		// closed while empty; Remove may have left a drained backing slice
		return nil
	}
	return batch
}

// takeQueued drains whatever is queued without blocking. Used by the inline
// processing mode.
func (q *OfferQueue) takeQueued() []*mesos.Offer {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.offers
	q.offers = nil
	return batch
}

// Remove drops a rescinded offer that has not been dequeued yet. The order of
// the remaining entries is preserved. Returns false when the offer was
// already taken (or never queued).
func (q *OfferQueue) Remove(offerID mesos.OfferID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, offer := range q.offers {
		if offer.ID == offerID {
			q.offers = append(q.offers[:i], q.offers[i+1:]...)
			return true
		}
	}
	return false
}

// Close wakes any blocked TakeAll. Queued offers are still drained; once
// empty, TakeAll returns nil and further Offer calls are rejected.
func (q *OfferQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
}
