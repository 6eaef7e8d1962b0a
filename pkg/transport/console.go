/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package transport

import (
	"context"

	"github.com/traas-stack/holoinsight-eventprocessor/pkg/dispatch"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/logger"
	"go.uber.org/zap"
)

// Console logs every payload and never fails.
type Console struct{}

func (c *Console) Send(ctx context.Context, payload []byte) dispatch.DeliveryResult {
	logger.Infoz("[transport] [console] payload", zap.Int("bytes", len(payload)), zap.ByteString("payload", payload))
	return dispatch.Success()
}
