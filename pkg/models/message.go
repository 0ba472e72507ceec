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

// Message holds a raw, still encoded event as pulled from a source
type Message struct {
	// ID is a unique identifier assigned by the source
	ID   string
	Data []byte

	// TimeCreated is when the message was created originally
	TimeCreated time.Time

	// TimePulled is when the message was pulled from the source
	TimePulled time.Time

	// AckFunc must be called once the message has been handled, successfully
	// or not, to ensure any cleanup process for the source is actioned
	AckFunc func()
}

func (m *Message) String() string {
	return fmt.Sprintf(
		"ID:%s,TimeCreated:%v,TimePulled:%v,Data:%s",
		m.ID,
		m.TimeCreated,
		m.TimePulled,
		string(m.Data),
	)
}

// GetChunkedMessages returns an array of chunked message arrays from the original slice
// by taking into account two variables:
//
// 1. How many messages can be in a chunk
// 2. How many bytes can be in a chunk
//
// A single message larger than maxChunkByteSize is placed in a chunk of its own.
func GetChunkedMessages(messages []*Message, chunkSize int, maxChunkByteSize int) (divided [][]*Message) {
	var chunkBuffer []*Message
	var chunkBufferByteLen int

	for _, msg := range messages {
		msgByteLen := len(msg.Data)

		if len(chunkBuffer) == chunkSize || (chunkBufferByteLen > 0 && chunkBufferByteLen+msgByteLen > maxChunkByteSize) {
			divided = append(divided, chunkBuffer)

			chunkBuffer = []*Message{msg}
			chunkBufferByteLen = msgByteLen
		} else {
			chunkBuffer = append(chunkBuffer, msg)
			chunkBufferByteLen += msgByteLen
		}
	}

	if len(chunkBuffer) > 0 {
		divided = append(divided, chunkBuffer)
	}
	return divided
}
