/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package util

import (
	"context"
	"time"
)

func IsContextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// SleepContext sleeps d or until ctx is done. It returns false if ctx was done first.
func SleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !IsContextDone(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
