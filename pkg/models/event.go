/**
 * Copyright (c) 2020-present Snowplow Analytics Ltd.
 * All rights reserved.
 *
 * This software is made available by Snowplow Analytics, Ltd.,
 * under the terms of the Snowplow Limited Use License Agreement, Version 1.1
 * located at https://docs.snowplow.io/limited-use-license-1.1
 * BY INSTALLING, DOWNLOADING, ACCESSING, USING OR DISTRIBUTING ANY PORTION
 * OF THE SOFTWARE, YOU AGREE TO THE TERMS OF SUCH LICENSE AGREEMENT.
 */

package models

import (
	"github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// rawEventKeys are the top-level keys which have a named field on RawEvent.
// Everything else lands in RawEvent.Extra.
var rawEventKeys = []string{
	"type",
	"event",
	"messageId",
	"anonymousId",
	"userId",
	"timestamp",
	"context",
	"properties",
}

// RawEvent is an analytics event as handed to us by the upstream framework.
// It is read-only once parsed.
type RawEvent struct {
	Type        string                 `json:"type,omitempty"`
	Event       string                 `json:"event,omitempty"`
	MessageID   string                 `json:"messageId,omitempty"`
	AnonymousID string                 `json:"anonymousId,omitempty"`
	UserID      string                 `json:"userId,omitempty"`
	Timestamp   string                 `json:"timestamp,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Properties  map[string]interface{} `json:"properties,omitempty"`

	// Extra holds every top-level key without a named field
	Extra map[string]interface{} `json:"-"`

	raw []byte
}

// ParseRawEvent decodes a single JSON event
func ParseRawEvent(data []byte) (*RawEvent, error) {
	var e RawEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(err, "Failed to parse event")
	}
	return &e, nil
}

// UnmarshalJSON populates the named fields and collects the rest into Extra.
// Named fields are decoded weakly, so a numeric userId or an epoch timestamp
// becomes its string form. A named value of the wrong shape, such as an array
// for userId, is left unset but still reachable through the retained bytes.
// Only a document which is not a JSON object fails.
func (e *RawEvent) UnmarshalJSON(data []byte) error {
	var all map[string]interface{}
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	if all == nil {
		return errors.New("event must be a JSON object")
	}

	named := make(map[string]interface{}, len(rawEventKeys))
	for _, key := range rawEventKeys {
		value, ok := all[key]
		if !ok {
			continue
		}
		delete(all, key)

		switch value.(type) {
		case map[string]interface{}:
			if key == "context" || key == "properties" {
				named[key] = value
			}
		case string, float64, bool:
			if key != "context" && key != "properties" {
				named[key] = value
			}
		}
	}

	var decoded RawEvent
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           &decoded,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(named); err != nil {
		return err
	}

	if len(all) > 0 {
		decoded.Extra = all
	}
	decoded.raw = append([]byte(nil), data...)
	*e = decoded
	return nil
}

// MarshalJSON flattens Extra back into the top level of the document
func (e *RawEvent) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Extra)+len(rawEventKeys))
	for key, value := range e.Extra {
		out[key] = value
	}

	setIfNotEmpty := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}
	setIfNotEmpty("type", e.Type)
	setIfNotEmpty("event", e.Event)
	setIfNotEmpty("messageId", e.MessageID)
	setIfNotEmpty("anonymousId", e.AnonymousID)
	setIfNotEmpty("userId", e.UserID)
	setIfNotEmpty("timestamp", e.Timestamp)
	if e.Context != nil {
		out["context"] = e.Context
	}
	if e.Properties != nil {
		out["properties"] = e.Properties
	}

	return json.Marshal(out)
}

// JSON returns the document which mapping paths are resolved against
func (e *RawEvent) JSON() ([]byte, error) {
	if e.raw != nil {
		return e.raw, nil
	}
	return e.MarshalJSON()
}
