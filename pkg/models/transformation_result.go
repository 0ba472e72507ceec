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

// InvalidEvent is an event dropped by the batch reducer along with the reason
type InvalidEvent struct {
	Event *RawEvent
	Err   error
}

// IdentifierGroup holds mapped events sharing the same user identity
type IdentifierGroup struct {
	Key    string
	Events []*CustomEvent
}

// ReduceResult is the outcome of mapping a batch of events
type ReduceResult struct {
	ResultCount  int64
	InvalidCount int64

	// Result holds all the events that were successfully mapped, in input
	// order, and are ready to be dispatched
	Result []*CustomEvent

	// Invalid contains all the events that failed validation. They are never
	// dispatched and never surfaced as an error.
	Invalid []*InvalidEvent
}

// NewReduceResult contains slices of successfully and unsuccessfully mapped events, and their lengths.
func NewReduceResult(result []*CustomEvent, invalid []*InvalidEvent) *ReduceResult {
	r := ReduceResult{
		int64(len(result)),
		int64(len(invalid)),
		result,
		invalid,
	}
	return &r
}

// Groups buckets the mapped events by user identity. Groups appear in the
// order their first event appeared, and events keep their relative order
// within a group. Events with no identity share the group with an empty key.
func (r *ReduceResult) Groups() []IdentifierGroup {
	var groups []IdentifierGroup
	index := make(map[string]int)

	for _, evt := range r.Result {
		key := evt.UserIdentifiers.Key()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, IdentifierGroup{Key: key})
		}
		groups[i].Events = append(groups[i].Events, evt)
	}
	return groups
}
