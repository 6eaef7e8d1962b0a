/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package appconfig

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"
)

var uptime = time.Now()

// RegisterHTTPHandler serves build info at /version and the effective config at /config.
func RegisterHTTPHandler(mux *http.ServeMux, c *Config) {
	mux.HandleFunc("/version", func(writer http.ResponseWriter, request *http.Request) {
		r := map[string]interface{}{
			"goversion": runtime.Version(),
			"version":   version,
			"buildTime": buildTime,
			"commit":    gitcommit,
			"uptime":    uptime.Format(time.RFC3339),
		}
		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(r)
	})
	mux.HandleFunc("/config", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(c.Redacted())
	})
}
