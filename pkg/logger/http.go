/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package logger

import (
	"net/http"
	"time"
)

// debugAutoOff turns debug logs off again if someone forgets to stop them.
const debugAutoOff = 10 * time.Hour

// RegisterHTTPHandler registers handlers that toggle debug logs at runtime.
func RegisterHTTPHandler(mux *http.ServeMux) {
	var timer *time.Timer
	mux.HandleFunc("/api/log/debug/start", func(writer http.ResponseWriter, request *http.Request) {
		mutex.Lock()
		DebugEnabled = true
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debugAutoOff, func() {
			DebugEnabled = false
		})
		mutex.Unlock()
		writer.Write([]byte("OK"))
	})
	mux.HandleFunc("/api/log/debug/stop", func(writer http.ResponseWriter, request *http.Request) {
		mutex.Lock()
		DebugEnabled = false
		if timer != nil {
			timer.Stop()
			timer = nil
		}
		mutex.Unlock()
		writer.Write([]byte("OK"))
	})
}
