package processor

import (
	"time"

	"github.com/traas-stack/holoinsight-eventprocessor/pkg/metrics"
)

type (
	options struct {
		name     string
		interval time.Duration

		calculator func(interface{}) int
		weightMax  int

		metrics *metrics.Metrics
	}

	// OptionFunc configures a BatchingStage.
	OptionFunc func(*options)
)

var (
	defaultOptions = options{
		name:     "batching",
		interval: time.Second * 10,
	}
)

// WithFlushInterval sets the max time an element waits in the buffer. i <= 0 disables time based flushing.
func WithFlushInterval(i time.Duration) OptionFunc {
	return func(o *options) {
		o.interval = i
	}
}

// WithItemsWeightStrategy flushes once the summed weight of buffered elements reaches threshold.
func WithItemsWeightStrategy(calculator func(i interface{}) int, threshold int) OptionFunc {
	return func(o *options) {
		o.calculator = calculator
		o.weightMax = threshold
	}
}

func WithMetrics(m *metrics.Metrics) OptionFunc {
	return func(o *options) {
		o.metrics = m
	}
}

// WithName sets the name used in logs.
func WithName(name string) OptionFunc {
	return func(o *options) {
		o.name = name
	}
}
