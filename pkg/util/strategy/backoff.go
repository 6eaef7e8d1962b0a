/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package strategy

import (
	"time"

	"github.com/jpillora/backoff"
)

type (
	// BackOff is a jittered exponential strategy backed by jpillora/backoff.
	BackOff struct {
		b *backoff.Backoff
	}
)

// NewBackOffStrategy returns an exponential strategy starting at the configured init time.
func NewBackOffStrategy(options ...OptionFunc) *BackOff {
	opt := defaultOptions
	for _, o := range options {
		o(&opt)
	}

	return &BackOff{
		b: &backoff.Backoff{
			Min:    opt.initTime,
			Max:    opt.maxBackoffTime,
			Factor: opt.indexFactor,
			Jitter: opt.jitter,
		},
	}
}

func (bs *BackOff) Next() time.Duration {
	return bs.b.Duration()
}

func (bs *BackOff) Reset() {
	bs.b.Reset()
}

// Attempt returns the number of delays handed out since the last Reset.
func (bs *BackOff) Attempt() int {
	return int(bs.b.Attempt())
}
