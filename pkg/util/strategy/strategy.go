/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package strategy

import "time"

// RetryStrategy produces the delays between consecutive retries of one operation.
// It is not safe for concurrent use; create one per operation.
type RetryStrategy interface {
	// Next returns the delay before the next attempt.
	Next() time.Duration
	// Reset restarts the sequence from the first delay.
	Reset()
}

// Factory creates a fresh RetryStrategy.
type Factory func() RetryStrategy
