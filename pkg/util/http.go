/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package util

import (
	"net/http"
	"time"
)

// NewHttpClient creates a http client that does not follow redirects.
func NewHttpClient(timeout time.Duration, maxIdleConnsPerHost int) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if maxIdleConnsPerHost > 0 {
		t.MaxIdleConnsPerHost = maxIdleConnsPerHost
	}
	return &http.Client{
		Transport: t,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
