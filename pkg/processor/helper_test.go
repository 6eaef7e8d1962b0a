/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package processor

import (
	"sync"
	"time"
)

// collector records every batch it receives.
type collector struct {
	mutex   sync.Mutex
	batches [][]int
	block   chan struct{}
}

func (c *collector) Process(element int) {
	c.ProcessBatch([]int{element})
}

func (c *collector) ProcessBatch(elements []int) {
	if c.block != nil {
		<-c.block
	}
	cp := append([]int(nil), elements...)
	c.mutex.Lock()
	c.batches = append(c.batches, cp)
	c.mutex.Unlock()
}

func (c *collector) snapshot() [][]int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([][]int(nil), c.batches...)
}

func (c *collector) elements() []int {
	var all []int
	for _, b := range c.snapshot() {
		all = append(all, b...)
	}
	return all
}

func (c *collector) count() int {
	return len(c.elements())
}

// recorder is shared by the hook recording members of a test chain.
type recorder struct {
	mutex sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mutex.Lock()
	r.calls = append(r.calls, s)
	r.mutex.Unlock()
}

func (r *recorder) get() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.calls...)
}

type recordingStage struct {
	StageProcessor[int]
	name     string
	rec      *recorder
	stopOK   bool
	stopWait time.Duration
}

func newRecordingStage(name string, rec *recorder) *recordingStage {
	return &recordingStage{name: name, rec: rec, stopOK: true}
}

func (s *recordingStage) Process(element int) {
	s.EmitElement(element)
}

func (s *recordingStage) ProcessBatch(elements []int) {
	s.EmitBatch(elements)
}

func (s *recordingStage) BeforeStart() {
	s.rec.add(s.name + ".BeforeStart")
}

func (s *recordingStage) AfterStart() {
	s.rec.add(s.name + ".AfterStart")
}

func (s *recordingStage) BeforeStop(timeout time.Duration) bool {
	s.rec.add(s.name + ".BeforeStop")
	if s.stopWait > 0 {
		time.Sleep(s.stopWait)
	}
	return s.stopOK
}

// terminal is a collector with a lifecycle.
type terminal struct {
	collector
	name     string
	rec      *recorder
	stopWait time.Duration
}

func (t *terminal) Start() {
	t.rec.add(t.name + ".Start")
}

func (t *terminal) Stop(timeout time.Duration) bool {
	t.rec.add(t.name + ".Stop")
	if t.stopWait > 0 {
		time.Sleep(t.stopWait)
	}
	return true
}
