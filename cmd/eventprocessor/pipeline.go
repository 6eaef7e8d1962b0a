/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package main

import (
	"github.com/pkg/errors"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/appconfig"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/dispatch"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/event"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/logger"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/metrics"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/processor"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/transport"
	"go.uber.org/zap"
)

// eventOverhead approximates the json keys and punctuation of one encoded event.
const eventOverhead = 96

type eventPipeline struct {
	*processor.Pipeline[event.Event]
	batching *processor.BatchingStage[event.Event]
	sink     *dispatch.Sink[event.Event]
}

// buildPipeline wires filter(valid) -> batching -> dispatch(json, transport).
func buildPipeline(cfg *appconfig.Config, m *metrics.Metrics) (*eventPipeline, error) {
	tr, err := transport.Parse(transport.Config{
		Type:     cfg.Transport.Type,
		Endpoint: cfg.Transport.Endpoint,
		Timeout:  cfg.Transport.Timeout.Duration(),
		Headers:  cfg.Transport.Headers,
	})
	if err != nil {
		return nil, err
	}

	observer := processor.CompositeObserver[event.Event](processor.LogObserver[event.Event]{Name: "eventprocessor"})

	sink, err := dispatch.New[event.Event](event.JSONSerializer{Source: cfg.Source}, tr, toDispatchConfig(cfg.Dispatch), dispatch.Options[event.Event]{
		Name:     "dispatch",
		Observer: observer,
		Metrics:  m,
	})
	if err != nil {
		return nil, err
	}

	opts := []processor.OptionFunc{
		processor.WithName("events"),
		processor.WithFlushInterval(cfg.Batch.FlushInterval.Duration()),
		processor.WithMetrics(m),
	}
	if cfg.Batch.MaxWeight > 0 {
		opts = append(opts, processor.WithItemsWeightStrategy(estimateSize, cfg.Batch.MaxWeight))
	}
	batching, err := processor.NewBatchingStage[event.Event](cfg.Batch.MaxBatchSize, opts...)
	if err != nil {
		return nil, err
	}
	if err := batching.Configure(sink); err != nil {
		return nil, err
	}

	filter := processor.NewFilterStage(func(e event.Event) bool {
		if e.Valid() {
			return true
		}
		logger.Warnz("[eventprocessor] discard invalid event", zap.String("uuid", e.UUID), zap.String("type", e.Type))
		m.Dropped("invalid", 1)
		return false
	})
	if err := filter.Configure(batching); err != nil {
		return nil, err
	}

	p, err := processor.NewPipeline[event.Event](filter, processor.PipelineOptions[event.Event]{
		Name:     "events",
		Observer: observer,
		Metrics:  m,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build pipeline")
	}
	return &eventPipeline{Pipeline: p, batching: batching, sink: sink}, nil
}

func toDispatchConfig(c appconfig.DispatchConfig) dispatch.Config {
	return dispatch.Config{
		MaxRetries:      c.MaxRetries,
		RetryBackoff:    c.RetryBackoff.Duration(),
		RetryBackoffMax: c.RetryBackoffMax.Duration(),
		QueueSize:       c.QueueSize,
		Workers:         c.Workers,
		Backpressure:    dispatch.Backpressure(c.Backpressure),
		OfferTimeout:    c.OfferTimeout.Duration(),
		SendsPerSecond:  c.SendsPerSecond,
		SendTimeout:     c.SendTimeout.Duration(),
	}
}

func estimateSize(i interface{}) int {
	e, ok := i.(event.Event)
	if !ok {
		return 0
	}
	n := eventOverhead + len(e.UUID) + len(e.Type) + len(e.Key) + len(e.UserID)
	for k, v := range e.Tags {
		n += len(k) + len(v) + 6
	}
	return n
}
