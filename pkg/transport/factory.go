/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

// Package transport contains the transports a dispatch sink sends payloads with.
package transport

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/dispatch"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/logger"
)

const (
	ConsoleType = "console"
	HTTPType    = "http"
)

type (
	Config struct {
		Type     string            `yaml:"type" toml:"type" json:"type"`
		Endpoint string            `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
		Timeout  time.Duration     `yaml:"-" toml:"-" json:"timeout"`
		Headers  map[string]string `yaml:"headers" toml:"headers" json:"headers"`
	}
	Factory func(Config) (dispatch.Transport, error)
)

var (
	mutex     sync.RWMutex
	factories = make(map[string]Factory)
)

func init() {
	Register(ConsoleType, func(Config) (dispatch.Transport, error) {
		return &Console{}, nil
	})
	Register(HTTPType, func(cfg Config) (dispatch.Transport, error) {
		return NewHTTP(cfg)
	})
}

func Register(transportType string, factory Factory) {
	mutex.Lock()
	defer mutex.Unlock()
	if _, exist := factories[transportType]; exist {
		logger.Warnf("[transport] register factory %+v already exist, cover it", transportType)
	}
	factories[transportType] = factory
}

// Parse creates a transport of cfg.Type. An empty type means console.
func Parse(cfg Config) (dispatch.Transport, error) {
	transportType := cfg.Type
	if transportType == "" {
		transportType = ConsoleType
	}
	mutex.RLock()
	f, ok := factories[transportType]
	mutex.RUnlock()
	if !ok {
		return nil, errors.Errorf("unsupported transport type %s", transportType)
	}
	return f(cfg)
}
