/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/logger"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/metrics"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/processor"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/util/strategy"
)

var intSerializer = SerializerFunc[int](func(batch []int) ([]byte, error) {
	return []byte(fmt.Sprint(batch)), nil
})

// fakeTransport returns results[i] for the i-th call, repeating the last one.
type fakeTransport struct {
	mutex     sync.Mutex
	results   []DeliveryResult
	attempts  int
	delivered []string
	hold      chan struct{}
	waitCtx   bool
}

func (f *fakeTransport) Send(ctx context.Context, payload []byte) DeliveryResult {
	if f.hold != nil {
		<-f.hold
	}
	if f.waitCtx {
		<-ctx.Done()
		f.mutex.Lock()
		f.attempts++
		f.mutex.Unlock()
		return Retryable(ctx.Err())
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()
	r := Success()
	if len(f.results) > 0 {
		i := f.attempts
		if i >= len(f.results) {
			i = len(f.results) - 1
		}
		r = f.results[i]
	}
	f.attempts++
	if r.Outcome == Delivered {
		f.delivered = append(f.delivered, string(payload))
	}
	return r
}

func (f *fakeTransport) stats() (int, []string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.attempts, append([]string(nil), f.delivered...)
}

type drops struct {
	mutex   sync.Mutex
	batches [][]int
	reasons []error
}

func (d *drops) OnDropped(batch []int, reason error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.batches = append(d.batches, batch)
	d.reasons = append(d.reasons, reason)
}

func (d *drops) get() ([][]int, []error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([][]int(nil), d.batches...), append([]error(nil), d.reasons...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func newTestSink(t *testing.T, tr Transport, cfg Config) (*Sink[int], *drops) {
	d := &drops{}
	s, err := New[int](intSerializer, tr, cfg, Options[int]{Name: "test", Observer: d})
	require.NoError(t, err)
	return s, d
}

func TestSink_RetryThenSuccess(t *testing.T) {
	logger.TestMode()

	tr := &fakeTransport{results: []DeliveryResult{
		Retryable(errors.New("connection refused")),
		Retryable(errors.New("connection refused")),
		Success(),
	}}
	s, d := newTestSink(t, tr, testConfig())
	s.Start()
	s.ProcessBatch([]int{1, 2, 3})
	assert.True(t, s.Stop(time.Second))

	attempts, delivered := tr.stats()
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []string{"[1 2 3]"}, delivered)
	batches, _ := d.get()
	assert.Empty(t, batches)
}

func TestSink_RetriesExhausted(t *testing.T) {
	logger.TestMode()

	tr := &fakeTransport{results: []DeliveryResult{Retryable(errors.New("503"))}}
	s, d := newTestSink(t, tr, testConfig())
	s.Start()
	s.ProcessBatch([]int{1, 2})
	assert.True(t, s.Stop(time.Second))

	attempts, delivered := tr.stats()
	assert.Equal(t, 3, attempts)
	assert.Empty(t, delivered)
	batches, reasons := d.get()
	require.Len(t, batches, 1)
	assert.Equal(t, []int{1, 2}, batches[0])
	assert.ErrorIs(t, reasons[0], processor.ErrRetriesExhausted)
}

func TestSink_NoRetry(t *testing.T) {
	logger.TestMode()

	tr := &fakeTransport{results: []DeliveryResult{Retryable(errors.New("503"))}}
	cfg := testConfig()
	cfg.MaxRetries = 0
	s, d := newTestSink(t, tr, cfg)
	s.Start()
	s.Process(1)
	assert.True(t, s.Stop(time.Second))

	attempts, _ := tr.stats()
	assert.Equal(t, 1, attempts)
	batches, _ := d.get()
	assert.Equal(t, [][]int{{1}}, batches)
}

func TestSink_PermanentFailure(t *testing.T) {
	logger.TestMode()

	tr := &fakeTransport{results: []DeliveryResult{Permanent(errors.New("400 bad request"))}}
	s, d := newTestSink(t, tr, testConfig())
	s.Start()
	s.ProcessBatch([]int{1})
	assert.True(t, s.Stop(time.Second))

	attempts, _ := tr.stats()
	assert.Equal(t, 1, attempts)
	_, reasons := d.get()
	require.Len(t, reasons, 1)
	assert.ErrorIs(t, reasons[0], processor.ErrPermanentFailure)
	assert.Contains(t, reasons[0].Error(), "400 bad request")
}

func TestSink_SerializationFailure(t *testing.T) {
	logger.TestMode()

	tr := &fakeTransport{}
	d := &drops{}
	bad := SerializerFunc[int](func(batch []int) ([]byte, error) {
		return nil, errors.New("unsupported value")
	})
	s, err := New[int](bad, tr, testConfig(), Options[int]{Observer: d})
	require.NoError(t, err)
	s.Start()
	s.ProcessBatch([]int{1})
	assert.True(t, s.Stop(time.Second))

	attempts, _ := tr.stats()
	assert.Equal(t, 0, attempts)
	_, reasons := d.get()
	require.Len(t, reasons, 1)
	assert.ErrorIs(t, reasons[0], processor.ErrSerialization)
}

func TestSink_QueueFullDrop(t *testing.T) {
	logger.TestMode()

	cfg := testConfig()
	cfg.QueueSize = 1
	s, d := newTestSink(t, &fakeTransport{}, cfg)

	// not started, nothing consumes the queue
	s.ProcessBatch([]int{1})
	begin := time.Now()
	s.ProcessBatch([]int{2})
	assert.Less(t, time.Since(begin), 50*time.Millisecond)
	assert.Equal(t, 1, s.Pending())

	batches, reasons := d.get()
	assert.Equal(t, [][]int{{2}}, batches)
	assert.ErrorIs(t, reasons[0], processor.ErrQueueFull)

	// the queued batch is dropped as closed
	assert.False(t, s.Stop(time.Second))
	batches, reasons = d.get()
	assert.Equal(t, [][]int{{2}, {1}}, batches)
	assert.ErrorIs(t, reasons[1], processor.ErrClosed)
}

func TestSink_BlockTimeout(t *testing.T) {
	logger.TestMode()

	cfg := testConfig()
	cfg.QueueSize = 1
	cfg.Backpressure = BackpressureBlock
	cfg.OfferTimeout = 50 * time.Millisecond
	s, d := newTestSink(t, &fakeTransport{}, cfg)

	s.ProcessBatch([]int{1})
	begin := time.Now()
	s.ProcessBatch([]int{2})
	assert.GreaterOrEqual(t, time.Since(begin), 40*time.Millisecond)

	batches, reasons := d.get()
	assert.Equal(t, [][]int{{2}}, batches)
	assert.ErrorIs(t, reasons[0], processor.ErrQueueFull)
	s.Stop(time.Second)
}

func TestSink_BlockUntilSpace(t *testing.T) {
	logger.TestMode()

	hold := make(chan struct{})
	tr := &fakeTransport{hold: hold}
	cfg := testConfig()
	cfg.QueueSize = 1
	cfg.Backpressure = BackpressureBlock
	cfg.OfferTimeout = 2 * time.Second
	s, d := newTestSink(t, tr, cfg)
	s.Start()

	s.ProcessBatch([]int{1})
	assert.Eventually(t, func() bool {
		return s.Pending() == 0
	}, time.Second, time.Millisecond)
	s.ProcessBatch([]int{2})

	done := make(chan struct{})
	go func() {
		s.ProcessBatch([]int{3})
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	close(hold)
	<-done

	assert.True(t, s.Stop(time.Second))
	_, delivered := tr.stats()
	assert.Equal(t, []string{"[1]", "[2]", "[3]"}, delivered)
	batches, _ := d.get()
	assert.Empty(t, batches)
}

func TestSink_StopDrains(t *testing.T) {
	logger.TestMode()

	tr := &fakeTransport{}
	cfg := testConfig()
	cfg.Workers = 4
	s, d := newTestSink(t, tr, cfg)
	s.Start()
	for i := 0; i < 50; i++ {
		s.ProcessBatch([]int{i})
	}
	assert.True(t, s.Stop(time.Second))
	assert.True(t, s.Stop(time.Second))

	_, delivered := tr.stats()
	assert.Len(t, delivered, 50)

	s.ProcessBatch([]int{100})
	batches, reasons := d.get()
	assert.Equal(t, [][]int{{100}}, batches)
	assert.ErrorIs(t, reasons[0], processor.ErrClosed)
}

func TestSink_StopTimeout(t *testing.T) {
	logger.TestMode()

	tr := &fakeTransport{waitCtx: true}
	cfg := testConfig()
	cfg.SendTimeout = 0
	s, d := newTestSink(t, tr, cfg)
	s.Start()
	s.ProcessBatch([]int{1})
	assert.Eventually(t, func() bool {
		return s.Pending() == 0
	}, time.Second, time.Millisecond)
	s.ProcessBatch([]int{2})

	begin := time.Now()
	assert.False(t, s.Stop(50*time.Millisecond))
	assert.Less(t, time.Since(begin), time.Second)

	assert.Eventually(t, func() bool {
		batches, _ := d.get()
		return len(batches) == 2
	}, time.Second, 5*time.Millisecond)
	_, reasons := d.get()
	for _, r := range reasons {
		assert.ErrorIs(t, r, processor.ErrClosed)
	}
}

func TestSink_RetryStrategyOption(t *testing.T) {
	logger.TestMode()

	created := 0
	tr := &fakeTransport{results: []DeliveryResult{Retryable(nil), Success()}}
	s, err := New[int](intSerializer, tr, testConfig(), Options[int]{
		Retry: func() strategy.RetryStrategy {
			created++
			return strategy.NewFixed(0)
		},
	})
	require.NoError(t, err)
	s.Start()
	s.ProcessBatch([]int{1})
	s.ProcessBatch([]int{2})
	assert.True(t, s.Stop(time.Second))

	assert.Equal(t, 2, created)
	_, delivered := tr.stats()
	assert.Len(t, delivered, 2)
}

func TestSink_RateLimit(t *testing.T) {
	logger.TestMode()

	tr := &fakeTransport{}
	cfg := testConfig()
	cfg.SendsPerSecond = 10
	s, _ := newTestSink(t, tr, cfg)
	s.Start()

	begin := time.Now()
	for i := 0; i < 3; i++ {
		s.ProcessBatch([]int{i})
	}
	assert.True(t, s.Stop(2*time.Second))
	assert.GreaterOrEqual(t, time.Since(begin), 150*time.Millisecond)
}

func TestSink_Metrics(t *testing.T) {
	logger.TestMode()

	reg := prometheus.NewRegistry()
	tr := &fakeTransport{results: []DeliveryResult{Retryable(nil), Success()}}
	s, err := New[int](intSerializer, tr, testConfig(), Options[int]{Metrics: metrics.New(reg)})
	require.NoError(t, err)
	s.Start()
	s.ProcessBatch([]int{1})
	assert.True(t, s.Stop(time.Second))

	count, err := testutil.GatherAndCount(reg, "holoinsight_events_send_attempts_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = -1
	_, err := New[int](intSerializer, &fakeTransport{}, cfg, Options[int]{})
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Backpressure = "wait"
	assert.Error(t, cfg.Validate())

	_, err = New[int](nil, &fakeTransport{}, DefaultConfig(), Options[int]{})
	assert.Error(t, err)

	assert.NoError(t, Config{}.Validate())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, metrics.OutcomeDelivered, Delivered.String())
	assert.Equal(t, metrics.OutcomeRetryable, RetryableFailure.String())
	assert.Equal(t, metrics.OutcomePermanent, PermanentFailure.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}

func TestRetryFactory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryBackoff = 0
	cfg.RetryBackoffMax = time.Second
	r := retryFactory(cfg)()
	for i := 0; i < 3; i++ {
		assert.Equal(t, time.Duration(0), r.Next())
	}

	cfg.RetryBackoff = 20 * time.Millisecond
	r = retryFactory(cfg)()
	first := r.Next()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)
	assert.LessOrEqual(t, first, time.Second)

	cfg.RetryBackoffMax = 0
	r = retryFactory(cfg)()
	assert.Equal(t, 20*time.Millisecond, r.Next())
	assert.Equal(t, 20*time.Millisecond, r.Next())
}

func TestSink_NoSendAfterCancelDuringRateLimit(t *testing.T) {
	logger.TestMode()

	tr := &fakeTransport{results: []DeliveryResult{Retryable(errors.New("unavailable"))}}
	cfg := testConfig()
	cfg.MaxRetries = 5
	cfg.RetryBackoff = 0
	cfg.SendsPerSecond = 1
	s, d := newTestSink(t, tr, cfg)
	s.Start()

	s.ProcessBatch([]int{1})
	// the first call is free, the retry waits about a second for its slot
	assert.Eventually(t, func() bool {
		attempts, _ := tr.stats()
		return attempts == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, s.Stop(50*time.Millisecond))

	assert.Eventually(t, func() bool {
		batches, _ := d.get()
		return len(batches) == 1
	}, 3*time.Second, 10*time.Millisecond)
	_, reasons := d.get()
	assert.ErrorIs(t, reasons[0], processor.ErrClosed)
	attempts, _ := tr.stats()
	assert.Equal(t, 1, attempts)
}

func TestSink_SingleWorkerKeepsOrder(t *testing.T) {
	logger.TestMode()

	tr := &fakeTransport{}
	cfg := testConfig()
	cfg.Workers = 1
	s, _ := newTestSink(t, tr, cfg)
	s.Start()

	var expected []string
	for i := 0; i < 20; i++ {
		s.ProcessBatch([]int{i})
		expected = append(expected, fmt.Sprint([]int{i}))
	}
	assert.True(t, s.Stop(time.Second))
	_, delivered := tr.stats()
	assert.Equal(t, expected, delivered)
}
