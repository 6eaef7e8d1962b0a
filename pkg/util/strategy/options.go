package strategy

import "time"

type (
	strategyOption struct {
		initTime       time.Duration
		maxBackoffTime time.Duration
		indexFactor    float64
		jitter         bool
	}

	OptionFunc func(*strategyOption)
)

const (
	defaultInitTime       = 100 * time.Millisecond
	defaultMaxBackoffTime = 10 * time.Second
	defaultIndexFactor    = 2
)

var (
	defaultOptions = strategyOption{
		initTime:       defaultInitTime,
		maxBackoffTime: defaultMaxBackoffTime,
		indexFactor:    defaultIndexFactor,
		jitter:         true,
	}
)

func WithInitTime(d time.Duration) OptionFunc {
	return func(option *strategyOption) {
		option.initTime = d
	}
}

func WithMaxBackoffTime(d time.Duration) OptionFunc {
	return func(option *strategyOption) {
		option.maxBackoffTime = d
	}
}

func WithIndexFactor(f float64) OptionFunc {
	return func(option *strategyOption) {
		option.indexFactor = f
	}
}

func WithJitter(enabled bool) OptionFunc {
	return func(option *strategyOption) {
		option.jitter = enabled
	}
}
