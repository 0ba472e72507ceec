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
	"time"
)

// TargetWriteResult contains the results from a single action invocation
type TargetWriteResult struct {
	// Sent and Failed count events included in the outbound request
	Sent   int64
	Failed int64

	// Invalid counts events dropped before dispatch because they failed validation
	Invalid int64

	// Requests is the number of HTTP calls made, either zero or one
	Requests int64

	// RequestLatency is how long the HTTP call took
	RequestLatency time.Duration
}

// NewTargetWriteResult builds a result structure to report an action invocation
func NewTargetWriteResult(sent int64, failed int64, invalid int64, requests int64, requestLatency time.Duration) *TargetWriteResult {
	return &TargetWriteResult{
		Sent:           sent,
		Failed:         failed,
		Invalid:        invalid,
		Requests:       requests,
		RequestLatency: requestLatency,
	}
}

// Total returns the sum of Sent + Failed + Invalid events
func (wr *TargetWriteResult) Total() int64 {
	return wr.Sent + wr.Failed + wr.Invalid
}
