/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

// Package metrics exposes prometheus metrics of the event pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "holoinsight_events"

// Flush triggers used as the "trigger" label.
const (
	TriggerSize   = "size"
	TriggerWeight = "weight"
	TriggerTimer  = "timer"
	TriggerManual = "manual"
	TriggerStop   = "stop"
	TriggerForce  = "force"
)

// Send outcomes used as the "outcome" label.
const (
	OutcomeDelivered = "delivered"
	OutcomeRetryable = "retryable"
	OutcomePermanent = "permanent"
)

type Metrics struct {
	submitted  prometheus.Counter
	dropped    *prometheus.CounterVec
	flushes    *prometheus.CounterVec
	batchSize  prometheus.Histogram
	sends      *prometheus.CounterVec
	sendCost   prometheus.Histogram
	queueDepth prometheus.Gauge
	buffered   prometheus.Gauge
}

// New creates and registers all metrics with registry. A nil registry means prometheus.DefaultRegisterer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		submitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submitted_total",
			Help:      "Events accepted by the pipeline",
		}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Events discarded, by reason",
		}, []string{"reason"}),
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Batches emitted by batching stages, by trigger",
		}, []string{"trigger"}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of events per emitted batch",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		sends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_attempts_total",
			Help:      "Transport calls, by outcome",
		}, []string{"outcome"}),
		sendCost: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_latency_ms",
			Help:      "Transport call duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_depth",
			Help:      "Batches waiting for a dispatch worker",
		}),
		buffered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_events",
			Help:      "Events buffered in batching stages and not yet flushed",
		}),
	}
}

func (m *Metrics) Submitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

func (m *Metrics) Dropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Flushed(trigger string, size int) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(trigger).Inc()
	m.batchSize.Observe(float64(size))
}

func (m *Metrics) Sent(outcome string, cost time.Duration) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(outcome).Inc()
	m.sendCost.Observe(float64(cost.Milliseconds()))
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Buffered adds delta to the buffered events gauge.
func (m *Metrics) Buffered(delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.buffered.Add(float64(delta))
}
