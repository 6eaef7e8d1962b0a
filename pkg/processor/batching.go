/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package processor

import (
	"sync"
	"time"

	"github.com/traas-stack/holoinsight-eventprocessor/pkg/logger"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/metrics"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/util"
	"go.uber.org/zap"
)

const maxInitialBufferCap = 1024

type (
	// BatchingStage buffers elements and emits them downstream as batches.
	// A batch is emitted when it reaches the max batch size (or the weight threshold), when its oldest element
	// has waited one flush interval, on Flush, and on stop.
	// Batches are emitted in the order they were formed. No lock is held while calling downstream.
	BatchingStage[T any] struct {
		StageProcessor[T]

		options *options

		mutex        sync.Mutex
		buffer       []T
		weight       int
		oldest       time.Time
		maxBatchSize int
		interval     time.Duration
		timer        *time.Timer
		generation   uint64
		running      bool
		stopped      bool
		drained      chan struct{}

		// turnstile: a batch taken with ticket n is emitted only after ticket n-1 was emitted
		turnMutex  sync.Mutex
		turn       *sync.Cond
		nextTicket uint64
		serving    uint64
	}

	pendingBatch[T any] struct {
		elements []T
		ticket   uint64
		trigger  string
	}
)

var _ Stage[int, int] = (*BatchingStage[int])(nil)

func NewBatchingStage[T any](maxBatchSize int, opts ...OptionFunc) (*BatchingStage[T], error) {
	if maxBatchSize < 1 {
		return nil, ErrInvalidBatchSize
	}
	opt := defaultOptions
	for _, o := range opts {
		o(&opt)
	}

	b := &BatchingStage[T]{
		options:      &opt,
		maxBatchSize: maxBatchSize,
		interval:     opt.interval,
	}
	b.buffer = b.newBuffer()
	b.turn = sync.NewCond(&b.turnMutex)
	return b, nil
}

func (b *BatchingStage[T]) Process(element T) {
	b.mutex.Lock()
	if b.stopped {
		ticket := b.takeTicketLocked()
		b.mutex.Unlock()
		logger.Warnz("[batching] stopped but got an element and force flush", zap.String("name", b.options.name))
		b.emit(pendingBatch[T]{elements: []T{element}, ticket: ticket, trigger: metrics.TriggerForce})
		return
	}
	p, ok := b.appendLocked(element)
	b.mutex.Unlock()

	if ok {
		b.emit(p)
	}
}

func (b *BatchingStage[T]) ProcessBatch(elements []T) {
	if len(elements) == 0 {
		return
	}
	var ready []pendingBatch[T]

	b.mutex.Lock()
	if b.stopped {
		ticket := b.takeTicketLocked()
		b.mutex.Unlock()
		logger.Warnz("[batching] stopped but got a batch and force flush",
			zap.String("name", b.options.name),
			zap.Int("size", len(elements)))
		b.emitSplit(elements, ticket)
		return
	}
	for _, e := range elements {
		if p, ok := b.appendLocked(e); ok {
			ready = append(ready, p)
		}
	}
	b.mutex.Unlock()

	for _, p := range ready {
		b.emit(p)
	}
}

// Flush emits the buffered elements now, even if the batch is not full.
func (b *BatchingStage[T]) Flush() {
	b.mutex.Lock()
	p := b.takeLocked(metrics.TriggerManual)
	b.resetTimerLocked()
	b.mutex.Unlock()

	b.emit(p)
}

// Pending returns the number of buffered elements.
func (b *BatchingStage[T]) Pending() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.buffer)
}

// AdjustMaxBatchSize changes the max batch size. A buffer already at the new size is flushed.
func (b *BatchingStage[T]) AdjustMaxBatchSize(n int) error {
	if n < 1 {
		return ErrInvalidBatchSize
	}
	logger.Infof("[batching] [%s] adjust maxBatchSize to %d", b.options.name, n)

	b.mutex.Lock()
	b.maxBatchSize = n
	if len(b.buffer) < n || b.stopped {
		b.mutex.Unlock()
		return nil
	}
	// the buffer may exceed n, keep batches within the new bound
	var ready []pendingBatch[T]
	rest := b.buffer
	b.buffer = b.newBuffer()
	b.weight = 0
	b.options.metrics.Buffered(-len(rest))
	for len(rest) > 0 {
		size := n
		if size > len(rest) {
			size = len(rest)
		}
		ready = append(ready, pendingBatch[T]{elements: rest[:size:size], ticket: b.takeTicketLocked(), trigger: metrics.TriggerSize})
		rest = rest[size:]
	}
	b.resetTimerLocked()
	b.mutex.Unlock()

	for _, p := range ready {
		b.emit(p)
	}
	return nil
}

// AdjustFlushInterval changes the flush interval. d <= 0 disables time based flushing.
func (b *BatchingStage[T]) AdjustFlushInterval(d time.Duration) {
	logger.Infof("[batching] [%s] adjust flushInterval to %s", b.options.name, d)

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.interval = d
	b.resetTimerLocked()
}

func (b *BatchingStage[T]) AfterStart() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.stopped || b.running {
		return
	}
	b.running = true
	if len(b.buffer) > 0 && b.interval > 0 {
		b.armLocked(b.interval - time.Since(b.oldest))
		return
	}
	b.resetTimerLocked()
}

// BeforeStop cancels the timer and flushes the remainder. It returns false if the remainder and the batches
// formed before it were not handed downstream within timeout.
func (b *BatchingStage[T]) BeforeStop(timeout time.Duration) bool {
	b.mutex.Lock()
	if b.stopped {
		drained := b.drained
		b.mutex.Unlock()
		return util.WaitChanTimeout(drained, timeout)
	}
	b.stopped = true
	b.cancelTimerLocked()
	p := b.takeLocked(metrics.TriggerStop)
	drained := make(chan struct{})
	b.drained = drained
	b.mutex.Unlock()

	if len(p.elements) > 0 {
		logger.Infoz("[batching] stop and flush remainder", zap.String("name", b.options.name), zap.Int("size", len(p.elements)))
	}
	util.GoWithRecover(func() {
		defer close(drained)
		b.emit(p)
	}, func(r interface{}, stack []byte) {
		logger.Errorz("[batching] panic when flushing remainder", zap.Any("panic", r), zap.String("stack", string(stack)))
	})

	if !util.WaitChanTimeout(drained, timeout) {
		logger.Warnz("[batching] stop timeout", zap.String("name", b.options.name), zap.Duration("timeout", timeout))
		return false
	}
	return true
}

func (b *BatchingStage[T]) newBuffer() []T {
	c := b.maxBatchSize
	if c > maxInitialBufferCap {
		c = maxInitialBufferCap
	}
	return make([]T, 0, c)
}

// appendLocked buffers e and returns a batch if a threshold was reached.
func (b *BatchingStage[T]) appendLocked(e T) (pendingBatch[T], bool) {
	if len(b.buffer) == 0 {
		b.oldest = time.Now()
	}
	b.buffer = append(b.buffer, e)
	b.options.metrics.Buffered(1)

	if b.options.calculator != nil {
		b.weight += b.options.calculator(e)
		if b.weight >= b.options.weightMax {
			p := b.takeLocked(metrics.TriggerWeight)
			b.resetTimerLocked()
			return p, true
		}
	}
	if len(b.buffer) >= b.maxBatchSize {
		p := b.takeLocked(metrics.TriggerSize)
		b.resetTimerLocked()
		return p, true
	}
	return pendingBatch[T]{}, false
}

// takeLocked hands the buffer off and replaces it with a fresh one. The ticket is taken even for an empty buffer.
func (b *BatchingStage[T]) takeLocked(trigger string) pendingBatch[T] {
	p := pendingBatch[T]{
		elements: b.buffer,
		ticket:   b.takeTicketLocked(),
		trigger:  trigger,
	}
	if len(b.buffer) > 0 {
		b.options.metrics.Buffered(-len(b.buffer))
		b.buffer = b.newBuffer()
	}
	b.weight = 0
	return p
}

func (b *BatchingStage[T]) takeTicketLocked() uint64 {
	t := b.nextTicket
	b.nextTicket++
	return t
}

func (b *BatchingStage[T]) resetTimerLocked() {
	if !b.running || b.stopped || b.interval <= 0 {
		b.cancelTimerLocked()
		return
	}
	b.armLocked(b.interval)
}

func (b *BatchingStage[T]) armLocked(d time.Duration) {
	b.cancelTimerLocked()
	if d < 0 {
		d = 0
	}
	gen := b.generation
	b.timer = time.AfterFunc(d, func() {
		b.onTimer(gen)
	})
}

// cancelTimerLocked stops the timer. The generation bump makes an already fired callback a no-op.
func (b *BatchingStage[T]) cancelTimerLocked() {
	b.generation++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *BatchingStage[T]) onTimer(gen uint64) {
	b.mutex.Lock()
	if gen != b.generation || b.stopped || b.interval <= 0 {
		b.mutex.Unlock()
		return
	}
	if len(b.buffer) == 0 {
		b.armLocked(b.interval)
		b.mutex.Unlock()
		return
	}
	age := time.Since(b.oldest)
	if age < b.interval {
		b.armLocked(b.interval - age)
		b.mutex.Unlock()
		return
	}
	p := b.takeLocked(metrics.TriggerTimer)
	b.armLocked(b.interval)
	b.mutex.Unlock()

	b.emit(p)
}

// emitSplit emits elements in batches of at most maxBatchSize under a single ticket.
func (b *BatchingStage[T]) emitSplit(elements []T, ticket uint64) {
	b.waitTurn(ticket)
	defer b.advanceTurn()

	b.mutex.Lock()
	size := b.maxBatchSize
	b.mutex.Unlock()
	for len(elements) > 0 {
		n := size
		if n > len(elements) {
			n = len(elements)
		}
		b.send(elements[:n:n], metrics.TriggerForce)
		elements = elements[n:]
	}
}

func (b *BatchingStage[T]) emit(p pendingBatch[T]) {
	b.waitTurn(p.ticket)
	defer b.advanceTurn()

	if len(p.elements) == 0 {
		return
	}
	b.send(p.elements, p.trigger)
}

func (b *BatchingStage[T]) send(elements []T, trigger string) {
	b.options.metrics.Flushed(trigger, len(elements))
	if logger.IsDebugEnabled() {
		logger.Debugz("[batching] flush",
			zap.String("name", b.options.name),
			zap.String("trigger", trigger),
			zap.Int("size", len(elements)))
	}
	b.EmitBatch(elements)
}

func (b *BatchingStage[T]) waitTurn(ticket uint64) {
	b.turnMutex.Lock()
	for b.serving != ticket {
		b.turn.Wait()
	}
	b.turnMutex.Unlock()
}

func (b *BatchingStage[T]) advanceTurn() {
	b.turnMutex.Lock()
	b.serving++
	b.turn.Broadcast()
	b.turnMutex.Unlock()
}
