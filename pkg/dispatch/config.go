/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package dispatch

import (
	"time"

	"github.com/pkg/errors"
)

const (
	// BackpressureDrop drops a batch at once when the queue is full.
	BackpressureDrop Backpressure = "drop"
	// BackpressureBlock waits up to OfferTimeout for queue space, then drops.
	BackpressureBlock Backpressure = "block"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 100 * time.Millisecond
	defaultQueueSize    = 100
	defaultWorkers      = 1
	defaultOfferTimeout = time.Second
	defaultSendTimeout  = 5 * time.Second
)

type (
	Backpressure string

	Config struct {
		// MaxRetries is the number of retries after the first attempt of a retryable failure.
		MaxRetries int
		// RetryBackoff is the delay before the first retry. 0 retries at once and disables RetryBackoffMax.
		RetryBackoff time.Duration
		// RetryBackoffMax enables jittered exponential backoff from RetryBackoff up to this value when greater than RetryBackoff.
		RetryBackoffMax time.Duration
		// QueueSize is the number of batches waiting for a worker.
		QueueSize int
		// Workers is the number of concurrent senders. Batches leave the queue in ProcessBatch order, but with
		// more than one worker they may reach the transport out of order. Use 1 when the receiver needs order.
		Workers      int
		Backpressure Backpressure
		OfferTimeout time.Duration
		// SendsPerSecond limits transport calls over all workers. 0 means unlimited.
		// A stop may wait up to one interval for a pending call slot.
		SendsPerSecond int
		// SendTimeout bounds one transport call. 0 means no per call timeout.
		SendTimeout time.Duration
	}
)

func DefaultConfig() Config {
	return Config{
		MaxRetries:   defaultMaxRetries,
		RetryBackoff: defaultRetryBackoff,
		QueueSize:    defaultQueueSize,
		Workers:      defaultWorkers,
		Backpressure: BackpressureDrop,
		OfferTimeout: defaultOfferTimeout,
		SendTimeout:  defaultSendTimeout,
	}
}

func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.Errorf("maxRetries must be >= 0, got %d", c.MaxRetries)
	}
	if c.RetryBackoff < 0 || c.RetryBackoffMax < 0 {
		return errors.New("retry backoff must be >= 0")
	}
	if c.QueueSize < 0 || c.Workers < 0 || c.SendsPerSecond < 0 {
		return errors.New("queueSize, workers and sendsPerSecond must be >= 0")
	}
	if c.OfferTimeout < 0 || c.SendTimeout < 0 {
		return errors.New("timeouts must be >= 0")
	}
	switch c.Backpressure {
	case "", BackpressureDrop, BackpressureBlock:
	default:
		return errors.Errorf("unsupported backpressure %q", c.Backpressure)
	}
	return nil
}

// normalize fills zero values that have no meaning with defaults.
func (c Config) normalize() Config {
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.Backpressure == "" {
		c.Backpressure = BackpressureDrop
	}
	return c
}
