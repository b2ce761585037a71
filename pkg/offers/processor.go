// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package offers

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/DataDog/queue-scheduler/pkg/exitcode"
	"github.com/DataDog/queue-scheduler/pkg/mesos"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

const (
	awaitTotalDuration = 5 * time.Second
	awaitPollInterval  = 100 * time.Millisecond

	declineRetries       = 4
	declineRetryInterval = 50 * time.Millisecond
)

// ErrTimeout is returned by AwaitProcessed when offers are still in flight
// after the deadline.
var ErrTimeout = errors.New("timed out waiting for offers to be processed")

// OfferHandler fans one offer batch out to the workloads and reports the
// batch verdict together with the operations to perform.
type OfferHandler interface {
	HandleOffers(offers []*mesos.Offer) (Result, []Recommendation)
}

// Processor owns the offer path between the resource manager and the fan-out
// layer: it queues incoming offers, drains them on a single consumer
// goroutine, accepts what the handler recommends and declines the rest.
type Processor struct {
	queue    *OfferQueue
	handler  OfferHandler
	driver   mesos.Driver
	accepter *Accepter

	clk  clock.Clock
	exit func(exitcode.Code)
	// teardown fires once the handler reports the framework itself is done.
	teardown func()

	// initialized gates processing until registration has completed, so the
	// consumer never touches half-built scheduler state.
	initialized   *atomic.Bool
	multithreaded bool

	// inProgressMu is held only to mutate the set, never across driver calls.
	inProgressMu     sync.Mutex
	offersInProgress map[mesos.OfferID]struct{}
}

// NewProcessor returns a production processor: real clock, one consumer
// goroutine, fatal errors terminate the process.
func NewProcessor(queue *OfferQueue, handler OfferHandler, driver mesos.Driver) *Processor {
	return newProcessor(queue, handler, driver, clock.New(), exitcode.Exit, true)
}

// NewSingleThreadedProcessor processes each batch inline on the Enqueue
// caller's goroutine instead of spawning a consumer. Tests only.
func NewSingleThreadedProcessor(queue *OfferQueue, handler OfferHandler, driver mesos.Driver) *Processor {
	return newProcessor(queue, handler, driver, clock.New(), exitcode.Exit, false)
}

func newProcessor(
	queue *OfferQueue,
	handler OfferHandler,
	driver mesos.Driver,
	clk clock.Clock,
	exit func(exitcode.Code),
	multithreaded bool,
) *Processor {
	return &Processor{
		queue:            queue,
		handler:          handler,
		driver:           driver,
		accepter:         NewAccepter(driver),
		clk:              clk,
		exit:             exit,
		initialized:      atomic.NewBool(false),
		multithreaded:    multithreaded,
		offersInProgress: map[mesos.OfferID]struct{}{},
	}
}

// OnUninstalled registers the hook invoked when a batch verdict says the
// framework released its last run and can be torn down.
func (p *Processor) OnUninstalled(teardown func()) {
	p.teardown = teardown
}

// Start spawns the consumer goroutine and marks the processor initialized.
// Call once registration has completed.
func (p *Processor) Start() {
	if p.multithreaded {
		go p.consume()
	}
	p.initialized.Store(true)
}

func (p *Processor) consume() {
	for {
		log.Debug("Waiting for queued offers...")
		batch := p.queue.TakeAll()
		if batch == nil {
			log.Info("Offer queue closed, stopping consumer")
			return
		}
		p.processBatch(batch)
	}
}

// Enqueue admits a batch of offers from the resource manager. Offers the
// queue rejects are declined short immediately; the resource manager will
// resend them once the scheduler catches up.
func (p *Processor) Enqueue(offers []*mesos.Offer) {
	p.inProgressMu.Lock()
	for _, offer := range offers {
		p.offersInProgress[offer.ID] = struct{}{}
	}
	log.Infof("Enqueuing %d offer(s), %d now in progress", len(offers), len(p.offersInProgress))
	p.inProgressMu.Unlock()
	countReceived(len(offers))

	for _, offer := range offers {
		if p.queue.Offer(offer) {
			offersQueued.Add(1)
			continue
		}
		log.Warnf("Offer queue is full: declining offer %s and removing it from in progress", offer.ID)
		countQueueRejection()
		p.declineOffers([]*mesos.Offer{offer}, mesos.ShortDeclineSeconds)
		// Remove after the decline returns. Removing first would let
		// AwaitProcessed report an offer as handled before it was declined.
		p.inProgressMu.Lock()
		delete(p.offersInProgress, offer.ID)
		p.inProgressMu.Unlock()
	}

	if !p.multithreaded && p.initialized.Load() {
		if batch := p.queue.takeQueued(); len(batch) > 0 {
			p.processBatch(batch)
		}
	}
}

// DequeueRescinded drops an offer the resource manager rescinded, if it has
// not been consumed yet. A dropped offer leaves the in-progress set too: it
// will never be accepted or declined, so it must not stall AwaitProcessed.
func (p *Processor) DequeueRescinded(offerID mesos.OfferID) {
	if p.queue.Remove(offerID) {
		p.inProgressMu.Lock()
		delete(p.offersInProgress, offerID)
		p.inProgressMu.Unlock()
		log.Infof("Removed rescinded offer %s from queue", offerID)
	} else {
		log.Debugf("Rescinded offer %s was not in queue", offerID)
	}
}

// AwaitProcessed blocks until every enqueued offer has been accepted or
// declined, polling each 100ms. A non-positive timeout means the 5s default.
func (p *Processor) AwaitProcessed(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = awaitTotalDuration
	}
	deadline := p.clk.Now().Add(timeout)
	for {
		p.inProgressMu.Lock()
		inFlight := len(p.offersInProgress)
		p.inProgressMu.Unlock()
		if inFlight == 0 {
			log.Debug("All offers processed")
			return nil
		}
		if !p.clk.Now().Before(deadline) {
			return fmt.Errorf("%w: %d offer(s) still in progress after %s", ErrTimeout, inFlight, timeout)
		}
		log.Debugf("%d offer(s) still in progress, sleeping %s...", inFlight, awaitPollInterval)
		p.clk.Sleep(awaitPollInterval)
	}
}

// processBatch hands one drained batch to the handler, then performs the
// resulting operations: accept the recommended ones, decline the rest with a
// refuse duration matching the verdict.
func (p *Processor) processBatch(batch []*mesos.Offer) {
	defer func() {
		countProcessed(len(batch))
		p.inProgressMu.Lock()
		for _, offer := range batch {
			delete(p.offersInProgress, offer.ID)
		}
		log.Debugf("Processed %d queued offer(s), %d still in progress", len(batch), len(p.offersInProgress))
		p.inProgressMu.Unlock()
	}()

	timer := prometheus.NewTimer(promProcessDuration)
	result, recs := p.handler.HandleOffers(batch)
	timer.ObserveDuration()
	log.Infof("Offer batch of %d handled: %s with %d recommendation(s)", len(batch), result, len(recs))

	if result == Uninstalled {
		// The last run is gone and the framework itself is uninstalling.
		// Nothing to accept; the teardown path deregisters and stops the
		// driver, which implicitly rescinds whatever is still open.
		if p.teardown != nil {
			p.teardown()
		}
		return
	}

	unused := FilterOutAccepted(batch, recs)
	if len(unused) > 0 {
		switch result {
		case Processed:
			p.declineOffers(unused, mesos.LongDeclineSeconds)
		default:
			// NotReady, or anything unexpected: give the offers back briefly
			// so the next round can retry.
			p.declineOffers(unused, mesos.ShortDeclineSeconds)
		}
	}

	if err := p.accepter.Accept(recs); err != nil {
		log.Errorf("Error encountered when accepting offers, exiting to avoid zombie state: %v", err)
		p.exit(exitcode.Error)
	}
}

// DeclineShort declines offers the scheduler could not even look at, e.g.
// arrivals before registration completed.
func (p *Processor) DeclineShort(offers []*mesos.Offer) {
	p.declineOffers(offers, mesos.ShortDeclineSeconds)
}

func (p *Processor) declineOffers(offers []*mesos.Offer, refuseSeconds float64) {
	if len(offers) == 0 {
		return
	}
	ids := make([]mesos.OfferID, 0, len(offers))
	for _, offer := range offers {
		ids = append(ids, offer.ID)
	}
	log.Infof("Declining %d unused offer(s) for %.0f seconds: %v", len(ids), refuseSeconds, ids)

	filters := mesos.Filters{RefuseSeconds: refuseSeconds}
	for _, id := range ids {
		if err := p.declineWithRetry(id, filters); err != nil {
			if errors.Is(err, mesos.ErrDriverUnavailable) {
				log.Errorf("No driver present for declining offers, exiting: %v", err)
				p.exit(exitcode.Error)
				return
			}
			// The offer will expire on the resource manager side anyway.
			log.Warnf("Giving up on declining offer %s: %v", id, err)
		}
	}
	countDeclines(len(ids), refuseSeconds)
}

// declineWithRetry retries transient decline failures with exponential
// backoff. A missing driver is permanent and surfaces immediately.
func (p *Processor) declineWithRetry(id mesos.OfferID, filters mesos.Filters) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = declineRetryInterval
	return backoff.Retry(func() error {
		err := p.driver.DeclineOffer(id, filters)
		if errors.Is(err, mesos.ErrDriverUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithMaxRetries(bo, declineRetries))
}
