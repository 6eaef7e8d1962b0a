/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package processor

type (
	// Sink accepts elements one by one or as a batch.
	// Callers never pass a nil-like element; a stage filters those before emitting.
	Sink[T any] interface {
		// Process accepts exactly one element. It must not block indefinitely.
		Process(element T)
		// ProcessBatch accepts zero or more elements as one unit. It is equivalent to
		// calling Process for each element in order, but may use a bulk path.
		// A batch is never split between two destinations.
		ProcessBatch(elements []T)
	}

	// SinkFunc adapts a batch function to a Sink.
	SinkFunc[T any] func(elements []T)
)

func (f SinkFunc[T]) Process(element T) {
	f([]T{element})
}

func (f SinkFunc[T]) ProcessBatch(elements []T) {
	f(elements)
}
