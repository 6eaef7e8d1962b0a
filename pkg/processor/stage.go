/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package processor

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/traas-stack/holoinsight-eventprocessor/pkg/logger"
)

type (
	// Stage consumes elements of type T and forwards results of type R to its configured sink.
	Stage[T, R any] interface {
		Sink[T]
		Hooks
		// Configure sets the downstream sink. It must be called before the stage is started.
		Configure(sink Sink[R]) error
	}

	// StageProcessor is the base of non-terminal stages. Embed it and call the Emit helpers.
	// Its hooks are no-ops; a stage overrides the ones it needs.
	StageProcessor[R any] struct {
		sink    Sink[R]
		started int32
	}
)

func (p *StageProcessor[R]) Configure(sink Sink[R]) error {
	if sink == nil {
		return ErrNilSink
	}
	if atomic.LoadInt32(&p.started) == 1 {
		return ErrConfigureAfterStart
	}
	p.sink = sink
	return nil
}

// Sink returns the downstream sink. It panics if Configure was never called.
func (p *StageProcessor[R]) Sink() Sink[R] {
	if p.sink == nil {
		panic(ErrSinkNotConfigured)
	}
	return p.sink
}

// EmitElementIfPresent forwards the value of element if there is one.
func (p *StageProcessor[R]) EmitElementIfPresent(element Optional[R]) {
	v, ok := element.Get()
	if !ok {
		logger.Debugf("[stage] prevented empty element from being emitted")
		return
	}
	p.EmitElement(v)
}

func (p *StageProcessor[R]) EmitElement(element R) {
	p.Sink().Process(element)
}

func (p *StageProcessor[R]) EmitBatch(elements []R) {
	p.Sink().ProcessBatch(elements)
}

func (p *StageProcessor[R]) BeforeStart() {
}

func (p *StageProcessor[R]) AfterStart() {
}

func (p *StageProcessor[R]) BeforeStop(timeout time.Duration) bool {
	return true
}

func (p *StageProcessor[R]) downstream() interface{} {
	if p.sink == nil {
		return nil
	}
	return p.sink
}

func (p *StageProcessor[R]) markStarted() {
	atomic.StoreInt32(&p.started, 1)
}

func typeName(v interface{}) string {
	return fmt.Sprintf("%T", v)
}
