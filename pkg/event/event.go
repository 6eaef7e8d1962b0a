/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

// Package event defines the application events carried by the pipeline and their wire envelope.
package event

import (
	"github.com/google/uuid"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/util"
)

const (
	TypeImpression = "impression"
	TypeConversion = "conversion"
	TypeCustom     = "custom"
)

type (
	// Event is one recorded application event. Timestamp is in milliseconds.
	Event struct {
		UUID      string            `json:"uuid"`
		Type      string            `json:"type"`
		Key       string            `json:"key"`
		UserID    string            `json:"userId,omitempty"`
		Timestamp int64             `json:"timestamp"`
		Value     float64           `json:"value,omitempty"`
		Tags      map[string]string `json:"tags,omitempty"`
	}

	// EventBatch is the payload sent to the collector.
	EventBatch struct {
		BatchID       string  `json:"batchId"`
		SendTimestamp int64   `json:"sendTimestamp"`
		Source        string  `json:"source,omitempty"`
		Events        []Event `json:"events"`
	}
)

func New(eventType, key, userID string) Event {
	return Event{
		UUID:      uuid.New().String(),
		Type:      eventType,
		Key:       key,
		UserID:    userID,
		Timestamp: util.CurrentMS(),
	}
}

// Valid reports whether e has the fields the collector requires.
func (e Event) Valid() bool {
	return e.Type != "" && e.Key != "" && e.Timestamp >= 0
}

// WithDefaults returns e with a generated UUID and the current time filled in where missing.
func (e Event) WithDefaults() Event {
	if e.UUID == "" {
		e.UUID = uuid.New().String()
	}
	if e.Timestamp == 0 {
		e.Timestamp = util.CurrentMS()
	}
	return e
}
