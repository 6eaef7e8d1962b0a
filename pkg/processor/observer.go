/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package processor

import (
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/logger"
	"go.uber.org/zap"
)

type (
	// Observer is notified of every element the pipeline discards. It is called from the goroutine that made the
	// decision and must not block.
	Observer[T any] interface {
		OnDropped(batch []T, reason error)
	}

	ObserverFunc[T any] func(batch []T, reason error)

	// LogObserver logs dropped batches.
	LogObserver[T any] struct {
		Name string
	}

	compositeObserver[T any] struct {
		observers []Observer[T]
	}
)

func (f ObserverFunc[T]) OnDropped(batch []T, reason error) {
	f(batch, reason)
}

func (o LogObserver[T]) OnDropped(batch []T, reason error) {
	logger.Warnz("[observer] drop",
		zap.String("name", o.Name),
		zap.String("reason", ReasonOf(reason)),
		zap.Int("size", len(batch)),
		zap.Error(reason))
}

// CompositeObserver notifies every non nil observer in order.
func CompositeObserver[T any](observers ...Observer[T]) Observer[T] {
	var filtered []Observer[T]
	for _, o := range observers {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	return &compositeObserver[T]{observers: filtered}
}

func (c *compositeObserver[T]) OnDropped(batch []T, reason error) {
	for _, o := range c.observers {
		o.OnDropped(batch, reason)
	}
}
