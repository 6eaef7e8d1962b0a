/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/dispatch"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/util"
)

const (
	defaultTimeout  = 5 * time.Second
	maxErrorBodyLen = 512
)

// HTTP posts every payload as application/json to an endpoint.
type HTTP struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

func NewHTTP(cfg Config) (*HTTP, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("http transport requires an endpoint")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid endpoint %s", cfg.Endpoint)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid endpoint scheme %s", u.Scheme)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTP{
		endpoint: cfg.Endpoint,
		headers:  cfg.Headers,
		client:   util.NewHttpClient(timeout, 0),
	}, nil
}

func (h *HTTP) Send(ctx context.Context, payload []byte) dispatch.DeliveryResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return dispatch.Permanent(errors.Wrap(err, "build request"))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return dispatch.Retryable(errors.Wrap(err, "post"))
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	io.Copy(io.Discard, resp.Body)

	return classify(resp.StatusCode, body)
}

// classify maps a status code: 2xx delivered, 408/429/5xx retryable, anything else permanent.
func classify(code int, body []byte) dispatch.DeliveryResult {
	switch {
	case code >= 200 && code < 300:
		return dispatch.Success()
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return dispatch.Retryable(errors.Errorf("server error %d: %s", code, body))
	default:
		return dispatch.Permanent(errors.Errorf("rejected %d: %s", code, body))
	}
}
