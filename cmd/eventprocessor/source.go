/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package main

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/event"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/logger"
	"go.uber.org/zap"
)

const maxLineSize = 1024 * 1024

// readEvents submits one JSON event per line of r until EOF or ctx is done. Lines that fail to decode are logged
// and skipped. It returns the number of submitted events.
func readEvents(ctx context.Context, r io.Reader, submit func(event.Event) error) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	n := 0
	line := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return n, nil
		}
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		e, err := event.Decode(b)
		if err != nil {
			logger.Warnz("[source] skip invalid line", zap.Int("line", line), zap.Error(err))
			continue
		}
		if err := submit(e.WithDefaults()); err != nil {
			return n, err
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrap(err, "read events")
	}
	return n, nil
}
