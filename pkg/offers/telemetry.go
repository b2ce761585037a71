// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package offers

import (
	"expvar"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
)

var (
	processorExpvar = expvar.NewMap("offer_processor")
	offersReceived  = expvar.Int{}
	offersProcessed = expvar.Int{}
	offersQueued    = expvar.Int{}
	queueRejections = expvar.Int{}
	declinesShort   = expvar.Int{}
	declinesLong    = expvar.Int{}

	promOffersReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "queue_scheduler",
		Subsystem: "offers",
		Name:      "received_total",
		Help:      "Offers received from the resource manager.",
	})
	promOffersProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "queue_scheduler",
		Subsystem: "offers",
		Name:      "processed_total",
		Help:      "Offers drained from the queue and fanned out.",
	})
	promQueueRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "queue_scheduler",
		Subsystem: "offers",
		Name:      "queue_rejections_total",
		Help:      "Offers declined because the queue was full.",
	})
	promDeclines = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "queue_scheduler",
		Subsystem: "offers",
		Name:      "declines_total",
		Help:      "Offers declined, labelled by refuse duration.",
	}, []string{"duration"})
	promProcessDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "queue_scheduler",
		Subsystem: "offers",
		Name:      "process_batch_seconds",
		Help:      "Time spent fanning one offer batch out to the runs.",
	})
)

func init() {
	processorExpvar.Set("OffersReceived", &offersReceived)
	processorExpvar.Set("OffersProcessed", &offersProcessed)
	processorExpvar.Set("OffersQueued", &offersQueued)
	processorExpvar.Set("QueueRejections", &queueRejections)
	processorExpvar.Set("DeclinesShort", &declinesShort)
	processorExpvar.Set("DeclinesLong", &declinesLong)

	prometheus.MustRegister(
		promOffersReceived,
		promOffersProcessed,
		promQueueRejections,
		promDeclines,
		promProcessDuration,
	)
}

func countReceived(n int) {
	offersReceived.Add(int64(n))
	promOffersReceived.Add(float64(n))
}

func countProcessed(n int) {
	offersProcessed.Add(int64(n))
	promOffersProcessed.Add(float64(n))
}

func countQueueRejection() {
	queueRejections.Add(1)
	promQueueRejections.Add(1)
}

func countDeclines(n int, refuseSeconds float64) {
	if refuseSeconds >= mesos.LongDeclineSeconds {
		declinesLong.Add(int64(n))
		promDeclines.WithLabelValues("long").Add(float64(n))
		return
	}
	declinesShort.Add(int64(n))
	promDeclines.WithLabelValues("short").Add(float64(n))
}
