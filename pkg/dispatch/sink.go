/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

// Package dispatch delivers batches to a remote collector. Producers only enqueue; worker goroutines serialize,
// send and retry.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/logger"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/metrics"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/processor"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/util"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/util/strategy"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

type (
	Options[T any] struct {
		// Name is used in logs.
		Name     string
		Observer processor.Observer[T]
		Metrics  *metrics.Metrics
		// Retry creates the delay strategy of one batch. It defaults to one derived from Config.
		Retry strategy.Factory
	}

	// Sink is the terminal sink of a pipeline.
	Sink[T any] struct {
		name       string
		serializer Serializer[T]
		transport  Transport
		cfg        Config
		observer   processor.Observer[T]
		metrics    *metrics.Metrics
		retry      strategy.Factory
		limiter    ratelimit.Limiter

		queue   chan []T
		closing chan struct{}

		// ProcessBatch holds the read lock while offering, Stop takes the write lock to close the queue
		mutex   sync.RWMutex
		started bool
		closed  bool

		wg         sync.WaitGroup
		ctx        context.Context
		cancel     context.CancelFunc
		stopOnce   sync.Once
		stopResult bool
	}
)

var _ processor.Sink[int] = (*Sink[int])(nil)
var _ processor.Lifecycle = (*Sink[int])(nil)

func New[T any](serializer Serializer[T], transport Transport, cfg Config, opts Options[T]) (*Sink[T], error) {
	if serializer == nil || transport == nil {
		return nil, errors.New("serializer and transport are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid dispatch config")
	}
	cfg = cfg.normalize()

	name := opts.Name
	if name == "" {
		name = "dispatch"
	}
	retry := opts.Retry
	if retry == nil {
		retry = retryFactory(cfg)
	}
	limiter := ratelimit.NewUnlimited()
	if cfg.SendsPerSecond > 0 {
		limiter = ratelimit.New(cfg.SendsPerSecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sink[T]{
		name:       name,
		serializer: serializer,
		transport:  transport,
		cfg:        cfg,
		observer:   opts.Observer,
		metrics:    opts.Metrics,
		retry:      retry,
		limiter:    limiter,
		queue:      make(chan []T, cfg.QueueSize),
		closing:    make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func retryFactory(cfg Config) strategy.Factory {
	// jpillora/backoff treats a zero Min as 100ms, a zero RetryBackoff means immediate retries instead
	if cfg.RetryBackoff > 0 && cfg.RetryBackoffMax > cfg.RetryBackoff {
		return func() strategy.RetryStrategy {
			return strategy.NewBackOffStrategy(
				strategy.WithInitTime(cfg.RetryBackoff),
				strategy.WithMaxBackoffTime(cfg.RetryBackoffMax))
		}
	}
	return func() strategy.RetryStrategy {
		return strategy.NewFixed(cfg.RetryBackoff)
	}
}

func (s *Sink[T]) Start() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	for i := 0; i < s.cfg.Workers; i++ {
		util.GoWithSyncGroup(func() {
			util.WithRecover(s.work, func(r interface{}, stack []byte) {
				logger.Errorz("[dispatch] worker panic", zap.String("name", s.name), zap.Any("panic", r), zap.String("stack", string(stack)))
			})
		}, &s.wg)
	}
	logger.Infoz("[dispatch] started",
		zap.String("name", s.name),
		zap.Int("workers", s.cfg.Workers),
		zap.Int("queueSize", s.cfg.QueueSize))
}

func (s *Sink[T]) Process(element T) {
	s.ProcessBatch([]T{element})
}

// ProcessBatch enqueues a copy of elements. When the queue is full the batch is handled per Config.Backpressure.
func (s *Sink[T]) ProcessBatch(elements []T) {
	if len(elements) == 0 {
		return
	}
	batch := append([]T(nil), elements...)

	s.mutex.RLock()
	var err error
	if s.closed {
		err = processor.ErrClosed
	} else {
		err = s.offer(batch)
	}
	s.mutex.RUnlock()

	if err != nil {
		s.drop(batch, err)
	}
}

func (s *Sink[T]) offer(batch []T) error {
	select {
	case s.queue <- batch:
		s.metrics.QueueDepth(len(s.queue))
		return nil
	default:
	}
	if s.cfg.Backpressure != BackpressureBlock || s.cfg.OfferTimeout <= 0 {
		return processor.ErrQueueFull
	}

	timer := time.NewTimer(s.cfg.OfferTimeout)
	defer timer.Stop()
	select {
	case s.queue <- batch:
		s.metrics.QueueDepth(len(s.queue))
		return nil
	case <-timer.C:
		return processor.ErrQueueFull
	case <-s.closing:
		return processor.ErrClosed
	}
}

// Pending returns the number of queued batches.
func (s *Sink[T]) Pending() int {
	return len(s.queue)
}

// Stop refuses new batches and waits up to timeout for the workers to drain the queue.
// On timeout in-flight sends are cancelled and the rest of the queue is dropped.
func (s *Sink[T]) Stop(timeout time.Duration) bool {
	s.stopOnce.Do(func() {
		s.stopResult = s.stop(timeout)
	})
	return s.stopResult
}

func (s *Sink[T]) stop(timeout time.Duration) bool {
	begin := time.Now()
	close(s.closing)

	s.mutex.Lock()
	s.closed = true
	started := s.started
	close(s.queue)
	s.mutex.Unlock()

	if !started {
		n := 0
		for batch := range s.queue {
			n++
			s.drop(batch, processor.ErrClosed)
		}
		s.cancel()
		return n == 0
	}

	if util.WaitTimeout(&s.wg, timeout) {
		s.cancel()
		logger.Infoz("[dispatch] stopped", zap.String("name", s.name), zap.Duration("cost", time.Since(begin)))
		return true
	}
	s.cancel()
	logger.Warnz("[dispatch] stop timeout, cancel in-flight sends",
		zap.String("name", s.name),
		zap.Duration("timeout", timeout),
		zap.Int("pending", len(s.queue)))
	return false
}

func (s *Sink[T]) work() {
	for batch := range s.queue {
		s.metrics.QueueDepth(len(s.queue))
		if util.IsContextDone(s.ctx) {
			s.drop(batch, processor.ErrClosed)
			continue
		}
		util.WithRecover(func() {
			s.deliver(batch)
		}, func(r interface{}, stack []byte) {
			logger.Errorz("[dispatch] panic when delivering", zap.String("name", s.name), zap.Any("panic", r), zap.String("stack", string(stack)))
			s.drop(batch, errors.Errorf("panic: %v", r))
		})
	}
}

func (s *Sink[T]) deliver(batch []T) {
	payload, err := s.serializer.Serialize(batch)
	if err != nil {
		logger.Errorz("[dispatch] serialize error", zap.String("name", s.name), zap.Int("size", len(batch)), zap.Error(err))
		s.drop(batch, errors.Wrap(processor.ErrSerialization, err.Error()))
		return
	}

	retry := s.retry()
	for attempt := 0; ; attempt++ {
		r := s.send(payload)
		if r.Outcome != Delivered && util.IsContextDone(s.ctx) {
			s.drop(batch, wrapCause(processor.ErrClosed, r.Err))
			return
		}
		switch r.Outcome {
		case Delivered:
			if logger.IsDebugEnabled() {
				logger.Debugz("[dispatch] delivered", zap.String("name", s.name), zap.Int("size", len(batch)), zap.Int("attempts", attempt+1))
			}
			return
		case PermanentFailure:
			logger.Errorz("[dispatch] permanent failure", zap.String("name", s.name), zap.Int("size", len(batch)), zap.Error(r.Err))
			s.drop(batch, wrapCause(processor.ErrPermanentFailure, r.Err))
			return
		}

		if attempt >= s.cfg.MaxRetries {
			logger.Errorz("[dispatch] retries exhausted",
				zap.String("name", s.name),
				zap.Int("size", len(batch)),
				zap.Int("attempts", attempt+1),
				zap.Error(r.Err))
			s.drop(batch, wrapCause(processor.ErrRetriesExhausted, r.Err))
			return
		}
		delay := retry.Next()
		logger.Warnz("[dispatch] send error, retry",
			zap.String("name", s.name),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(r.Err))
		if !util.SleepContext(s.ctx, delay) {
			s.drop(batch, wrapCause(processor.ErrClosed, r.Err))
			return
		}
	}
}

func (s *Sink[T]) send(payload []byte) DeliveryResult {
	// Take cannot be interrupted, a stop waits at most one rate interval here
	s.limiter.Take()
	if util.IsContextDone(s.ctx) {
		return Retryable(s.ctx.Err())
	}

	ctx := s.ctx
	if s.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, s.cfg.SendTimeout)
		defer cancel()
	}

	begin := time.Now()
	r := s.transport.Send(ctx, payload)
	if r.Outcome != Delivered && r.Outcome != PermanentFailure {
		r.Outcome = RetryableFailure
	}
	s.metrics.Sent(r.Outcome.String(), time.Since(begin))
	return r
}

func (s *Sink[T]) drop(batch []T, reason error) {
	s.metrics.Dropped(processor.ReasonOf(reason), len(batch))
	if s.observer != nil {
		s.observer.OnDropped(batch, reason)
	}
}

func wrapCause(reason, cause error) error {
	if cause == nil {
		return reason
	}
	return errors.Wrap(reason, cause.Error())
}
