/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

// Package appconfig loads the process level configuration. It is initialized first and must not depend on other
// business packages.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

var version string
var buildTime string
var gitcommit string

const (
	envPrefix = "HI_EVENT_"

	BackpressureDrop  = "drop"
	BackpressureBlock = "block"
)

type (
	Config struct {
		// Source is written into every sent batch.
		Source      string          `json:"source" yaml:"source" toml:"source"`
		StopTimeout Duration        `json:"stopTimeout" yaml:"stopTimeout" toml:"stopTimeout"`
		Batch       BatchConfig     `json:"batch" yaml:"batch" toml:"batch"`
		Dispatch    DispatchConfig  `json:"dispatch" yaml:"dispatch" toml:"dispatch"`
		Transport   TransportConfig `json:"transport" yaml:"transport" toml:"transport"`
		Log         LogConfig       `json:"log" yaml:"log" toml:"log"`
		Metrics     MetricsConfig   `json:"metrics" yaml:"metrics" toml:"metrics"`
		Input       InputConfig     `json:"input" yaml:"input" toml:"input"`
	}
	// InputConfig controls the stdin source, which reads one JSON event per line.
	InputConfig struct {
		Stdin     bool `json:"stdin" yaml:"stdin" toml:"stdin"`
		ExitOnEOF bool `json:"exitOnEOF" yaml:"exitOnEOF" toml:"exitOnEOF"`
	}
	BatchConfig struct {
		MaxBatchSize  int      `json:"maxBatchSize" yaml:"maxBatchSize" toml:"maxBatchSize"`
		FlushInterval Duration `json:"flushInterval" yaml:"flushInterval" toml:"flushInterval"`
		// MaxWeight flushes once the estimated payload bytes of a batch reach it. 0 disables it.
		MaxWeight int `json:"maxWeight" yaml:"maxWeight" toml:"maxWeight"`
	}
	DispatchConfig struct {
		MaxRetries      int      `json:"maxRetries" yaml:"maxRetries" toml:"maxRetries"`
		RetryBackoff    Duration `json:"retryBackoff" yaml:"retryBackoff" toml:"retryBackoff"`
		RetryBackoffMax Duration `json:"retryBackoffMax" yaml:"retryBackoffMax" toml:"retryBackoffMax"`
		QueueSize       int      `json:"queueSize" yaml:"queueSize" toml:"queueSize"`
		Workers         int      `json:"workers" yaml:"workers" toml:"workers"`
		// drop or block
		Backpressure   string   `json:"backpressure" yaml:"backpressure" toml:"backpressure"`
		OfferTimeout   Duration `json:"offerTimeout" yaml:"offerTimeout" toml:"offerTimeout"`
		SendsPerSecond int      `json:"sendsPerSecond" yaml:"sendsPerSecond" toml:"sendsPerSecond"`
		SendTimeout    Duration `json:"sendTimeout" yaml:"sendTimeout" toml:"sendTimeout"`
	}
	TransportConfig struct {
		// console or http
		Type     string            `json:"type" yaml:"type" toml:"type"`
		Endpoint string            `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
		Timeout  Duration          `json:"timeout" yaml:"timeout" toml:"timeout"`
		Headers  map[string]string `json:"headers,omitempty" yaml:"headers" toml:"headers"`
	}
	LogConfig struct {
		// Dir enables per level log files. Empty means console only.
		Dir        string `json:"dir" yaml:"dir" toml:"dir"`
		Console    bool   `json:"console" yaml:"console" toml:"console"`
		Debug      bool   `json:"debug" yaml:"debug" toml:"debug"`
		MaxSizeMB  int    `json:"maxSizeMB" yaml:"maxSizeMB" toml:"maxSizeMB"`
		MaxBackups int    `json:"maxBackups" yaml:"maxBackups" toml:"maxBackups"`
		MaxAgeDays int    `json:"maxAgeDays" yaml:"maxAgeDays" toml:"maxAgeDays"`
	}
	MetricsConfig struct {
		// Addr of the http server for /metrics. Empty disables it.
		Addr string `json:"addr" yaml:"addr" toml:"addr"`
	}
)

// Default returns the configuration used when nothing is configured.
func Default() Config {
	return Config{
		Source:      "eventprocessor",
		StopTimeout: Duration(5 * time.Second),
		Batch: BatchConfig{
			MaxBatchSize:  100,
			FlushInterval: Duration(time.Second),
		},
		Dispatch: DispatchConfig{
			MaxRetries:   3,
			RetryBackoff: Duration(100 * time.Millisecond),
			QueueSize:    100,
			Workers:      1,
			Backpressure: BackpressureDrop,
			OfferTimeout: Duration(time.Second),
			SendTimeout:  Duration(5 * time.Second),
		},
		Transport: TransportConfig{
			Type:    "console",
			Timeout: Duration(5 * time.Second),
		},
		Log: LogConfig{
			Console:    true,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 7,
		},
		Metrics: MetricsConfig{
			Addr: ":9117",
		},
		Input: InputConfig{
			Stdin:     true,
			ExitOnEOF: true,
		},
	}
}

// Load reads the configuration relative to the working directory.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom applies, in order: defaults, eventprocessor.yaml (or conf/eventprocessor.yaml), eventprocessor.toml
// (or conf/eventprocessor.toml) and HI_EVENT_* environment variables. The result is validated.
func LoadFrom(dir string) (*Config, error) {
	c := Default()

	if b, path, err := readFirst(dir, "eventprocessor.yaml", "conf/eventprocessor.yaml"); err != nil {
		return nil, err
	} else if b != nil {
		fmt.Println("read " + path)
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, errors.Wrapf(err, "fail to parse %s", path)
		}
	}
	if b, path, err := readFirst(dir, "eventprocessor.toml", "conf/eventprocessor.toml"); err != nil {
		return nil, err
	} else if b != nil {
		fmt.Println("read " + path)
		if err := toml.Unmarshal(b, &c); err != nil {
			return nil, errors.Wrapf(err, "fail to parse %s", path)
		}
	}

	if err := c.loadEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// readFirst returns the content of the first existing file among names.
func readFirst(dir string, names ...string) ([]byte, string, error) {
	for _, name := range names {
		path := filepath.Join(dir, name)
		b, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, path, errors.Wrapf(err, "read %s", path)
		}
		return b, path, nil
	}
	return nil, "", nil
}

func (c *Config) loadEnv() error {
	var err error
	str := func(key string, target *string) {
		if s := os.Getenv(envPrefix + key); s != "" {
			*target = s
		}
	}
	integer := func(key string, target *int) {
		if s := os.Getenv(envPrefix + key); s != "" && err == nil {
			var i int
			if i, err = cast.ToIntE(s); err != nil {
				err = errors.Wrapf(err, "env %s%s", envPrefix, key)
				return
			}
			*target = i
		}
	}
	boolean := func(key string, target *bool) {
		if s := os.Getenv(envPrefix + key); s != "" && err == nil {
			var x bool
			if x, err = cast.ToBoolE(s); err != nil {
				err = errors.Wrapf(err, "env %s%s", envPrefix, key)
				return
			}
			*target = x
		}
	}
	duration := func(key string, target *Duration) {
		if s := os.Getenv(envPrefix + key); s != "" && err == nil {
			if err = target.UnmarshalText([]byte(s)); err != nil {
				err = errors.Wrapf(err, "env %s%s", envPrefix, key)
			}
		}
	}

	str("SOURCE", &c.Source)
	duration("STOP_TIMEOUT", &c.StopTimeout)

	integer("MAX_BATCH_SIZE", &c.Batch.MaxBatchSize)
	duration("FLUSH_INTERVAL", &c.Batch.FlushInterval)
	integer("MAX_WEIGHT", &c.Batch.MaxWeight)

	integer("MAX_RETRIES", &c.Dispatch.MaxRetries)
	duration("RETRY_BACKOFF", &c.Dispatch.RetryBackoff)
	duration("RETRY_BACKOFF_MAX", &c.Dispatch.RetryBackoffMax)
	integer("QUEUE_SIZE", &c.Dispatch.QueueSize)
	integer("WORKERS", &c.Dispatch.Workers)
	str("BACKPRESSURE", &c.Dispatch.Backpressure)
	duration("OFFER_TIMEOUT", &c.Dispatch.OfferTimeout)
	integer("SENDS_PER_SECOND", &c.Dispatch.SendsPerSecond)
	duration("SEND_TIMEOUT", &c.Dispatch.SendTimeout)

	str("TRANSPORT_TYPE", &c.Transport.Type)
	str("ENDPOINT", &c.Transport.Endpoint)
	duration("TRANSPORT_TIMEOUT", &c.Transport.Timeout)

	str("LOG_DIR", &c.Log.Dir)
	boolean("LOG_CONSOLE", &c.Log.Console)
	boolean("DEBUG", &c.Log.Debug)

	str("METRICS_ADDR", &c.Metrics.Addr)

	boolean("STDIN", &c.Input.Stdin)
	boolean("EXIT_ON_EOF", &c.Input.ExitOnEOF)
	return err
}

// Validate checks the pipeline knobs.
func (c *Config) Validate() error {
	if c.Batch.MaxBatchSize < 1 {
		return errors.Errorf("batch.maxBatchSize must be > 0, got %d", c.Batch.MaxBatchSize)
	}
	if c.Batch.MaxWeight < 0 {
		return errors.Errorf("batch.maxWeight must be >= 0, got %d", c.Batch.MaxWeight)
	}
	if c.Dispatch.MaxRetries < 0 {
		return errors.Errorf("dispatch.maxRetries must be >= 0, got %d", c.Dispatch.MaxRetries)
	}
	if c.Dispatch.QueueSize < 0 || c.Dispatch.Workers < 0 || c.Dispatch.SendsPerSecond < 0 {
		return errors.New("dispatch.queueSize, dispatch.workers and dispatch.sendsPerSecond must be >= 0")
	}
	switch c.Dispatch.Backpressure {
	case "", BackpressureDrop, BackpressureBlock:
	default:
		return errors.Errorf("unsupported dispatch.backpressure %s", c.Dispatch.Backpressure)
	}
	if c.Transport.Type == "http" && c.Transport.Endpoint == "" {
		return errors.New("transport.endpoint is required for http transport")
	}
	return nil
}

func Version() string {
	return version
}

// Redacted returns a copy of c without header values, which may carry credentials.
func (c *Config) Redacted() Config {
	cp := *c
	if len(c.Transport.Headers) > 0 {
		cp.Transport.Headers = make(map[string]string, len(c.Transport.Headers))
		for k := range c.Transport.Headers {
			cp.Transport.Headers[k] = "******"
		}
	}
	return cp
}
