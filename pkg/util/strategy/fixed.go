/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package strategy

import "time"

type fixed struct {
	d time.Duration
}

// NewFixed returns a strategy that always waits d.
func NewFixed(d time.Duration) RetryStrategy {
	if d < 0 {
		d = 0
	}
	return &fixed{d: d}
}

func (f *fixed) Next() time.Duration {
	return f.d
}

func (f *fixed) Reset() {
}
