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
	"fmt"
	"time"
)

// ObserverBuffer contains all the metrics we are processing
type ObserverBuffer struct {
	TargetResults int64
	Requests      int64
	MsgSent       int64
	MsgFailed     int64
	MsgInvalid    int64
	MsgTotal      int64

	MaxRequestLatency time.Duration
	MinRequestLatency time.Duration
	SumRequestLatency time.Duration
}

// AppendWrite adds a TargetWriteResult onto the buffer and stores the result
func (b *ObserverBuffer) AppendWrite(res *TargetWriteResult) {
	if res == nil {
		return
	}

	b.TargetResults++
	b.Requests += res.Requests
	b.MsgSent += res.Sent
	b.MsgFailed += res.Failed
	b.MsgInvalid += res.Invalid
	b.MsgTotal += res.Total()

	// Invocations without a request have no latency worth recording
	if res.Requests == 0 {
		return
	}
	if b.MaxRequestLatency < res.RequestLatency {
		b.MaxRequestLatency = res.RequestLatency
	}
	if b.MinRequestLatency > res.RequestLatency || b.MinRequestLatency == time.Duration(0) {
		b.MinRequestLatency = res.RequestLatency
	}
	b.SumRequestLatency += res.RequestLatency
}

// GetAvgRequestLatency calculates average request latency
func (b *ObserverBuffer) GetAvgRequestLatency() time.Duration {
	if b.Requests == 0 {
		return time.Duration(0)
	}
	return time.Duration(int64(b.SumRequestLatency) / b.Requests)
}

func (b *ObserverBuffer) String() string {
	return fmt.Sprintf(
		"TargetResults:%d,Requests:%d,MsgSent:%d,MsgFailed:%d,MsgInvalid:%d,MaxRequestLatency:%d,MinRequestLatency:%d,AvgRequestLatency:%d",
		b.TargetResults,
		b.Requests,
		b.MsgSent,
		b.MsgFailed,
		b.MsgInvalid,
		b.MaxRequestLatency.Milliseconds(),
		b.MinRequestLatency.Milliseconds(),
		b.GetAvgRequestLatency().Milliseconds(),
	)
}
