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

// RequestOptions echoes the request which produced a DispatchResult
type RequestOptions struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// DispatchResult is the outcome of a single successful call to ODP.
// A batched call fans many events into one DispatchResult.
type DispatchResult struct {
	Status  int
	Options RequestOptions
}
