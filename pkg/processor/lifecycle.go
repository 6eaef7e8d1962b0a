/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package processor

import (
	"time"

	"github.com/traas-stack/holoinsight-eventprocessor/pkg/util"
)

type (
	// Lifecycle is implemented by terminal sinks that own resources such as workers.
	Lifecycle interface {
		Start()
		// Stop releases resources within about timeout and reports whether it drained cleanly.
		Stop(timeout time.Duration) bool
	}

	// Hooks are the stage-local lifecycle steps. The driver (Start/Stop or a Pipeline)
	// calls them around the downstream lifecycle.
	Hooks interface {
		// BeforeStart runs before downstream is started.
		BeforeStart()
		// AfterStart runs after downstream is started.
		AfterStart()
		// BeforeStop runs before downstream is stopped. It reports whether the local drain finished within timeout.
		BeforeStop(timeout time.Duration) bool
	}

	// chained is a stage with a downstream reference. It is satisfied by embedding StageProcessor.
	chained interface {
		Hooks
		downstream() interface{}
		markStarted()
	}

	// Flusher is implemented by members that can emit buffered state on demand.
	Flusher interface {
		Flush()
	}
)

// Start starts v and everything downstream of it: BeforeStart, then the downstream, then AfterStart.
// Values that are neither stages nor Lifecycle are ignored.
func Start(v interface{}) {
	if c, ok := v.(chained); ok {
		c.markStarted()
		c.BeforeStart()
		Start(c.downstream())
		c.AfterStart()
		return
	}
	if l, ok := v.(Lifecycle); ok {
		l.Start()
	}
}

// Stop stops v and everything downstream of it. Downstream is always stopped, even if the local drain failed;
// the result is true only if every member reported a clean stop.
func Stop(v interface{}, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	if c, ok := v.(chained); ok {
		local := c.BeforeStop(timeout)
		return Stop(c.downstream(), util.Remaining(deadline)) && local
	}
	if l, ok := v.(Lifecycle); ok {
		return l.Stop(timeout)
	}
	return true
}
