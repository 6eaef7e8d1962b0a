/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package dispatch

import (
	"context"

	"github.com/traas-stack/holoinsight-eventprocessor/pkg/metrics"
)

const (
	Delivered Outcome = iota
	RetryableFailure
	PermanentFailure
)

type (
	// Outcome of a single transport call.
	Outcome int

	DeliveryResult struct {
		Outcome Outcome
		Err     error
	}

	// Serializer encodes a batch into one payload.
	Serializer[T any] interface {
		Serialize(batch []T) ([]byte, error)
	}

	SerializerFunc[T any] func(batch []T) ([]byte, error)

	// Transport sends one payload. It must return when ctx is done.
	Transport interface {
		Send(ctx context.Context, payload []byte) DeliveryResult
	}

	TransportFunc func(ctx context.Context, payload []byte) DeliveryResult
)

func (f SerializerFunc[T]) Serialize(batch []T) ([]byte, error) {
	return f(batch)
}

func (f TransportFunc) Send(ctx context.Context, payload []byte) DeliveryResult {
	return f(ctx, payload)
}

func Success() DeliveryResult {
	return DeliveryResult{Outcome: Delivered}
}

// Retryable reports a transient failure such as a network error or a 5xx response.
func Retryable(err error) DeliveryResult {
	return DeliveryResult{Outcome: RetryableFailure, Err: err}
}

// Permanent reports a failure that will not go away on retry, such as a rejected payload.
func Permanent(err error) DeliveryResult {
	return DeliveryResult{Outcome: PermanentFailure, Err: err}
}

// String returns the outcome label used by metrics.
func (o Outcome) String() string {
	switch o {
	case Delivered:
		return metrics.OutcomeDelivered
	case RetryableFailure:
		return metrics.OutcomeRetryable
	case PermanentFailure:
		return metrics.OutcomePermanent
	default:
		return "unknown"
	}
}
