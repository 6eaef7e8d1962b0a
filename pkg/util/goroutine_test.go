/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package util

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithRecover(t *testing.T) {
	var recovered interface{}
	var stack []byte
	WithRecover(func() {
		panic("boom")
	}, func(p interface{}, s []byte) {
		recovered = p
		stack = s
	})
	assert.Equal(t, "boom", recovered)
	assert.NotEmpty(t, stack)
}

func TestWaitTimeout(t *testing.T) {
	wg := &sync.WaitGroup{}
	release := make(chan struct{})
	GoWithSyncGroup(func() {
		<-release
	}, wg)

	assert.False(t, WaitTimeout(wg, 20*time.Millisecond))
	close(release)
	assert.True(t, WaitTimeout(wg, time.Second))
}

func TestWaitChanTimeout_Zero(t *testing.T) {
	c := make(chan struct{})
	assert.False(t, WaitChanTimeout(c, 0))
	close(c)
	assert.True(t, WaitChanTimeout(c, 0))
}

func TestSleepContext(t *testing.T) {
	assert.True(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, SleepContext(ctx, time.Hour))
	assert.True(t, IsContextDone(ctx))
}
