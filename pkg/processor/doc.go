/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

// Package processor implements the event processing chain: sinks, stages that
// transform or batch elements before forwarding them downstream, and the
// Pipeline that owns a chain and drives its lifecycle.
//
// A chain is built back to front by configuring every stage with its downstream sink:
//
//	batching, _ := processor.NewBatchingStage[Event](100, processor.WithFlushInterval(time.Second))
//	batching.Configure(dispatchSink)
//	filter := processor.NewFilterStage(isValid)
//	filter.Configure(batching)
//	p, _ := processor.NewPipeline[Event](filter, processor.PipelineOptions[Event]{})
//	p.Start()
//	p.Submit(e)
//	p.Stop(5 * time.Second)
package processor
