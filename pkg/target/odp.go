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

package target

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/odp-forwarder/pkg/models"
)

// HTTPClient is the transport used to reach ODP. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ODPTarget dispatches mapped custom events to the ODP batch endpoint.
// It holds no per-call state and is safe for concurrent use.
type ODPTarget struct {
	client HTTPClient

	// urlOverride replaces the region resolved endpoint
	urlOverride string

	log *log.Entry
}

// NewODPTarget creates a target backed by an *http.Client with the given timeout
func NewODPTarget(requestTimeout time.Duration) *ODPTarget {
	return NewODPTargetWithClient(&http.Client{Timeout: requestTimeout})
}

// NewODPTargetWithClient creates a target backed by a caller supplied client
func NewODPTargetWithClient(client HTTPClient) *ODPTarget {
	return &ODPTarget{
		client: client,
		log:    log.WithFields(log.Fields{"target": "odp"}),
	}
}

// NewODPTargetWithEndpoint pins the endpoint regardless of region. An empty
// url keeps region resolution.
func NewODPTargetWithEndpoint(client HTTPClient, url string) *ODPTarget {
	t := NewODPTargetWithClient(client)
	t.urlOverride = url
	return t
}

func (ot *ODPTarget) endpoint(settings Settings) (string, error) {
	if ot.urlOverride != "" {
		return ot.urlOverride, nil
	}
	return settings.BatchCustomEventURL()
}

// Dispatch serialises events into a single request. An empty input makes no
// request and returns an empty result. A non-2xx answer is returned as an
// error; 429 is wrapped in models.ThrottleWriteError and 401/403 in
// models.SetupWriteError so a host can choose how to retry.
func (ot *ODPTarget) Dispatch(ctx context.Context, events []*models.CustomEvent, settings Settings) ([]*models.DispatchResult, error) {
	if len(events) == 0 {
		return []*models.DispatchResult{}, nil
	}

	if err := settings.Validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid ODP settings")
	}
	url, err := ot.endpoint(settings)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(events)
	if err != nil {
		return nil, errors.Wrap(err, "Error serialising custom events")
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"x-api-key":    settings.APIKey,
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "Error creating request")
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	ot.log.Debugf("Dispatching %d events to %s ...", len(events), url)

	resp, err := ot.client.Do(request)
	if err != nil {
		return nil, errors.Wrap(err, "Error sending http request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Any error reading the body of the response is ignored, since the important thing is to surface the failing status.
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyResponse(&models.ApiError{
			StatusCode:   resp.StatusCode,
			HttpStatus:   resp.Status,
			ResponseBody: string(responseBody),
		})
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	ot.log.Debugf("Successfully dispatched %d events (status %d)", len(events), resp.StatusCode)
	return []*models.DispatchResult{
		{
			Status: resp.StatusCode,
			Options: models.RequestOptions{
				Method:  http.MethodPost,
				URL:     url,
				Headers: headers,
				Body:    string(body),
			},
		},
	}, nil
}

func classifyResponse(apiErr *models.ApiError) error {
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		return models.ThrottleWriteError{Err: apiErr}
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.SetupWriteError{Err: apiErr}
	}
	return apiErr
}

// GetID returns an identifier for this target
func (ot *ODPTarget) GetID() string {
	return "odp"
}
