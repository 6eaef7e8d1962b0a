/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package processor

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/logger"
)

func TestCompositeObserver(t *testing.T) {
	logger.TestMode()

	var got []string
	a := ObserverFunc[int](func(batch []int, reason error) {
		got = append(got, "a:"+ReasonOf(reason))
	})
	b := ObserverFunc[int](func(batch []int, reason error) {
		got = append(got, "b:"+ReasonOf(reason))
	})

	o := CompositeObserver[int](a, nil, b, LogObserver[int]{Name: "test"})
	o.OnDropped([]int{1, 2}, ErrQueueFull)

	assert.Equal(t, []string{"a:queue_full", "b:queue_full"}, got)
}

func TestReasonOf(t *testing.T) {
	cases := map[error]string{
		nil:                                  "none",
		ErrNotStarted:                        "not_started",
		ErrClosed:                            "closed",
		ErrQueueFull:                         "queue_full",
		ErrRetriesExhausted:                  "retries_exhausted",
		ErrPermanentFailure:                  "permanent_failure",
		ErrSerialization:                     "serialization",
		errors.Wrap(ErrSerialization, "bad"): "serialization",
		errors.New("other"):                  "unknown",
	}
	for err, want := range cases {
		assert.Equal(t, want, ReasonOf(err), "%v", err)
	}
}
