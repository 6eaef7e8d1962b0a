/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package processor

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/logger"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/metrics"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/util"
	"go.uber.org/zap"
)

const maxChainLength = 1024

const (
	StateCreated State = iota
	StateStarted
	StateStopping
	StateStopped
)

type (
	// State of a Pipeline. It only moves forward.
	State int32

	PipelineOptions[T any] struct {
		// Name is used in logs.
		Name     string
		Observer Observer[T]
		Metrics  *metrics.Metrics
	}

	// Pipeline owns a configured chain and drives its lifecycle.
	Pipeline[T any] struct {
		name     string
		head     Sink[T]
		members  []interface{}
		observer Observer[T]
		metrics  *metrics.Metrics

		// Submit reads state under the read lock, state changes hold the write lock.
		// Neither lock is held across the chain.
		mutex      sync.RWMutex
		state      State
		inflight   sync.WaitGroup // Submits past the state check and still inside the chain
		stopped    chan struct{}
		finished   bool
		stopResult bool
	}
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// NewPipeline walks the chain from head. Every stage in it must already be configured.
func NewPipeline[T any](head Sink[T], opts PipelineOptions[T]) (*Pipeline[T], error) {
	if head == nil {
		return nil, ErrNilSink
	}
	members, err := walk(head)
	if err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		name = "pipeline"
	}
	return &Pipeline[T]{
		name:     name,
		head:     head,
		members:  members,
		observer: opts.Observer,
		metrics:  opts.Metrics,
		stopped:  make(chan struct{}),
	}, nil
}

func walk(head interface{}) ([]interface{}, error) {
	members := []interface{}{head}
	cur := head
	for {
		c, ok := cur.(chained)
		if !ok {
			return members, nil
		}
		next := c.downstream()
		if next == nil {
			return nil, errors.Wrapf(ErrSinkNotConfigured, "member %d (%T)", len(members)-1, cur)
		}
		if len(members) >= maxChainLength {
			return nil, ErrChainTooLong
		}
		members = append(members, next)
		cur = next
	}
}

// Members returns the chain members from head to terminal sink.
func (p *Pipeline[T]) Members() []interface{} {
	return append([]interface{}(nil), p.members...)
}

func (p *Pipeline[T]) State() State {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.state
}

// Start runs BeforeStart in chain order, starts the terminal sink, then runs AfterStart in reverse order.
func (p *Pipeline[T]) Start() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	switch p.state {
	case StateStarted:
		return nil
	case StateStopping, StateStopped:
		return ErrClosed
	}

	begin := time.Now()
	for _, m := range p.members {
		if c, ok := m.(chained); ok {
			c.markStarted()
			c.BeforeStart()
		}
	}
	for i := len(p.members) - 1; i >= 0; i-- {
		switch x := p.members[i].(type) {
		case chained:
			x.AfterStart()
		case Lifecycle:
			x.Start()
		}
	}
	p.state = StateStarted
	logger.Infoz("[pipeline] started",
		zap.String("name", p.name),
		zap.Int("members", len(p.members)),
		zap.Duration("cost", time.Since(begin)))
	return nil
}

// Submit forwards e to the head of the chain. It fails if the pipeline is not started or is stopping.
func (p *Pipeline[T]) Submit(e T) error {
	if p.forward(e) {
		p.metrics.Submitted()
		return nil
	}

	var err error
	if p.State() == StateCreated {
		err = ErrNotStarted
	} else {
		err = ErrClosed
	}
	reason := ReasonOf(err)
	logger.Warnz("[pipeline] reject", zap.String("name", p.name), zap.String("reason", reason))
	p.metrics.Dropped(reason, 1)
	if p.observer != nil {
		p.observer.OnDropped([]T{e}, err)
	}
	return err
}

func (p *Pipeline[T]) forward(e T) bool {
	p.mutex.RLock()
	if p.state != StateStarted {
		p.mutex.RUnlock()
		return false
	}
	p.inflight.Add(1)
	p.mutex.RUnlock()

	defer p.inflight.Done()
	p.head.Process(e)
	return true
}

// Flush asks every member that buffers elements to emit them now.
func (p *Pipeline[T]) Flush() {
	for _, m := range p.members {
		if f, ok := m.(Flusher); ok {
			f.Flush()
		}
	}
}

// Stop waits for Submits already inside the chain, runs BeforeStop in chain order and then stops the terminal
// sink. It returns within about timeout even if a member or a Submit blocks, and reports whether every member
// stopped cleanly.
// Later calls return the result of the first one.
func (p *Pipeline[T]) Stop(timeout time.Duration) bool {
	p.mutex.Lock()
	switch p.state {
	case StateCreated:
		p.state = StateStopped
		p.finishLocked(true)
		p.mutex.Unlock()
		return true
	case StateStopping:
		p.mutex.Unlock()
		if !util.WaitChanTimeout(p.stopped, timeout) {
			return false
		}
		return p.result()
	case StateStopped:
		r := p.stopResult
		p.mutex.Unlock()
		return r
	}
	p.state = StateStopping
	p.mutex.Unlock()

	logger.Infoz("[pipeline] stopping", zap.String("name", p.name), zap.Duration("timeout", timeout))
	begin := time.Now()
	util.GoWithRecover(func() {
		p.finish(p.stopMembers(timeout))
	}, func(r interface{}, stack []byte) {
		logger.Errorz("[pipeline] panic when stopping", zap.Any("panic", r), zap.String("stack", string(stack)))
		p.finish(false)
	})

	if !util.WaitChanTimeout(p.stopped, timeout) {
		p.finish(false)
	}
	r := p.result()
	logger.Infoz("[pipeline] stopped",
		zap.String("name", p.name),
		zap.Bool("clean", r),
		zap.Duration("cost", time.Since(begin)))
	return r
}

func (p *Pipeline[T]) stopMembers(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	clean := true
	if !util.WaitTimeout(&p.inflight, timeout) {
		logger.Warnz("[pipeline] submits still in progress", zap.String("name", p.name))
		clean = false
	}
	for _, m := range p.members {
		begin := time.Now()
		var ok bool
		switch x := m.(type) {
		case chained:
			ok = x.BeforeStop(util.Remaining(deadline))
		case Lifecycle:
			ok = x.Stop(util.Remaining(deadline))
		default:
			continue
		}
		if !ok {
			logger.Warnz("[pipeline] member did not stop cleanly", zap.String("name", p.name), zap.String("member", typeName(m)))
		}
		logger.Infoz("[pipeline] stop member", zap.String("member", typeName(m)), zap.Bool("clean", ok), zap.Duration("cost", time.Since(begin)))
		clean = clean && ok
	}
	return clean
}

// finish records the first stop result.
func (p *Pipeline[T]) finish(r bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.finishLocked(r)
}

func (p *Pipeline[T]) finishLocked(r bool) {
	if p.finished {
		return
	}
	p.finished = true
	p.stopResult = r
	p.state = StateStopped
	close(p.stopped)
}

func (p *Pipeline[T]) result() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.stopResult
}
