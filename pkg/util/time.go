/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package util

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

func CurrentMS() int64 {
	return time.Now().UnixNano() / 1000000
}

// ParseDuration parse any object that like a duration str to duration
// for example:
// "100ms" -> 100ms
// 100 -> 100ms
// 100.0 -> 100ms
func ParseDuration(d interface{}) (time.Duration, error) {
	if x, ok := d.(time.Duration); ok {
		if x < 0 {
			return 0, errors.New("duration < 0")
		}
		return x, nil
	}
	if s, ok := d.(string); ok {
		if p, err := time.ParseDuration(s); err == nil {
			if p < 0 {
				return 0, errors.New("duration < 0")
			}
			return p, nil
		}
	}

	f64, err := cast.ToFloat64E(d)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %v", d)
	}
	i64 := int64(f64)
	if i64 < 0 {
		return 0, errors.New("duration < 0")
	}
	return time.Duration(i64) * time.Millisecond, nil
}

// Remaining returns the time left until deadline, never negative.
func Remaining(deadline time.Time) time.Duration {
	d := time.Until(deadline)
	if d < 0 {
		return 0
	}
	return d
}
