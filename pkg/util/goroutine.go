/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package util

import (
	"runtime"
	"sync"
	"time"
)

// GoWithRecover runs handler in a new goroutine. A panic is recovered and passed to recoverHandlers together with the stack.
func GoWithRecover(handler func(), recoverHandlers ...func(p interface{}, stack []byte)) {
	go WithRecover(handler, recoverHandlers...)
}

func WithRecover(handler func(), recoverHandlers ...func(p interface{}, stack []byte)) {
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]

			for _, f := range recoverHandlers {
				if f != nil {
					f(r, buf)
				}
			}
		}
	}()
	handler()
}

// GoWithSyncGroup runs handler in a new goroutine tracked by wg.
func GoWithSyncGroup(handler func(), wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		handler()
	}()
}

// WaitTimeout waits for wg at most d. It returns false if d elapsed first.
// The waiting goroutine is leaked until wg is done.
func WaitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return WaitChanTimeout(done, d)
}

// WaitChanTimeout waits for c to be closed at most d.
func WaitChanTimeout(c <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-c:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c:
		return true
	case <-timer.C:
		return false
	}
}
