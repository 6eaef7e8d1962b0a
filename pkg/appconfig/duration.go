/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package appconfig

import (
	"time"

	"github.com/traas-stack/holoinsight-eventprocessor/pkg/util"
	"gopkg.in/yaml.v3"
)

// Duration accepts a go duration string ("1.5s") or a number of milliseconds.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	return d.set(string(b))
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.set(value.Value)
}

// UnmarshalTOML receives a string or an int64 from the toml decoder.
func (d *Duration) UnmarshalTOML(data interface{}) error {
	return d.set(data)
}

func (d *Duration) set(v interface{}) error {
	x, err := util.ParseDuration(v)
	if err != nil {
		return err
	}
	*d = Duration(x)
	return nil
}
