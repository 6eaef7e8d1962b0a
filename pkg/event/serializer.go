/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package event

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/util"
)

// JSONSerializer encodes a batch as one EventBatch JSON document.
type JSONSerializer struct {
	Source string
}

func (s JSONSerializer) Serialize(batch []Event) ([]byte, error) {
	b, err := json.Marshal(&EventBatch{
		BatchID:       uuid.New().String(),
		SendTimestamp: util.CurrentMS(),
		Source:        s.Source,
		Events:        batch,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "marshal batch of %d events", len(batch))
	}
	return b, nil
}

// Decode parses one JSON encoded event.
func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, errors.Wrap(err, "decode event")
	}
	return e, nil
}
