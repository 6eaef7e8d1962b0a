/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package processor

import (
	"github.com/pkg/errors"
)

// Configuration faults.
var (
	ErrSinkNotConfigured   = errors.New("sink has not been set")
	ErrNilSink             = errors.New("sink is nil")
	ErrConfigureAfterStart = errors.New("stage is already started")
	ErrInvalidBatchSize    = errors.New("max batch size must be >= 1")
	ErrChainTooLong        = errors.New("chain is too long or cyclic")
)

// Drop reasons passed to Observer.OnDropped.
var (
	ErrNotStarted       = errors.New("pipeline not started")
	ErrClosed           = errors.New("pipeline closed")
	ErrQueueFull        = errors.New("dispatch queue full")
	ErrRetriesExhausted = errors.New("delivery retries exhausted")
	ErrPermanentFailure = errors.New("permanent delivery failure")
	ErrSerialization    = errors.New("serialization failure")
)

// ReasonOf returns a short label of a drop reason, used in logs and metrics.
func ReasonOf(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNotStarted):
		return "not_started"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	case errors.Is(err, ErrRetriesExhausted):
		return "retries_exhausted"
	case errors.Is(err, ErrPermanentFailure):
		return "permanent_failure"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	default:
		return "unknown"
	}
}
