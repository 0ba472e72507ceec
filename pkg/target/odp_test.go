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
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/odp-forwarder/pkg/models"
)

var testSettings = Settings{APIKey: "abc", Region: "US"}

type recordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Body    string
}

func createTestServer(status int, respBody string, requests chan<- recordedRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if requests != nil {
			requests <- recordedRequest{Method: r.Method, Path: r.URL.Path, Headers: r.Header, Body: string(body)}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
}

func testEvents() []*models.CustomEvent {
	return []*models.CustomEvent{
		{
			UserIdentifiers: &models.UserIdentifiers{UserID: "u1"},
			EventType:       "Order Completed",
			EventAction:     "purchase",
		},
		{
			EventAction: "view",
		},
	}
}

func TestODPTarget_Dispatch(t *testing.T) {
	assert := assert.New(t)

	requests := make(chan recordedRequest, 1)
	server := createTestServer(http.StatusCreated, `{"ok":true}`, requests)
	defer server.Close()

	target := NewODPTargetWithEndpoint(server.Client(), server.URL+"/twilio_segment/batch_custom_event")
	results, err := target.Dispatch(context.Background(), testEvents(), testSettings)
	assert.Nil(err)

	expectedBody := `[{"user_identifiers":{"userId":"u1"},"event_type":"Order Completed","event_action":"purchase"},{"event_action":"view"}]`

	req := <-requests
	assert.Equal(http.MethodPost, req.Method)
	assert.Equal("/twilio_segment/batch_custom_event", req.Path)
	assert.Equal("abc", req.Headers.Get("x-api-key"))
	assert.Equal("application/json", req.Headers.Get("Content-Type"))
	assert.JSONEq(expectedBody, req.Body)

	if assert.Len(results, 1) {
		assert.Equal(http.StatusCreated, results[0].Status)
		assert.Equal(http.MethodPost, results[0].Options.Method)
		assert.Equal(server.URL+"/twilio_segment/batch_custom_event", results[0].Options.URL)
		assert.Equal("abc", results[0].Options.Headers["x-api-key"])
		assert.JSONEq(expectedBody, results[0].Options.Body)
	}
}

func TestODPTarget_Dispatch_ReusesConnection(t *testing.T) {
	assert := assert.New(t)

	var opened int64
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"title":"Accepted","status":200,"timestamp":"2024-01-01T00:00:00Z"}`))
	}))
	server.Config.ConnState = func(c net.Conn, state http.ConnState) {
		if state == http.StateNew {
			atomic.AddInt64(&opened, 1)
		}
	}
	server.Start()
	defer server.Close()

	target := NewODPTargetWithEndpoint(server.Client(), server.URL)
	for i := 0; i < 2; i++ {
		_, err := target.Dispatch(context.Background(), testEvents(), testSettings)
		assert.Nil(err)
	}
	assert.Equal(int64(1), atomic.LoadInt64(&opened))
}

func TestODPTarget_Dispatch_Empty(t *testing.T) {
	assert := assert.New(t)

	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
	}))
	defer server.Close()

	target := NewODPTargetWithEndpoint(server.Client(), server.URL)
	results, err := target.Dispatch(context.Background(), nil, Settings{})
	assert.Nil(err)
	assert.NotNil(results)
	assert.Empty(results)
	assert.Equal(int64(0), atomic.LoadInt64(&calls))
}

func TestODPTarget_Dispatch_InvalidSettings(t *testing.T) {
	assert := assert.New(t)

	target := NewODPTarget(time.Second)
	results, err := target.Dispatch(context.Background(), testEvents(), Settings{Region: "US"})
	assert.Nil(results)
	if assert.NotNil(err) {
		assert.Contains(err.Error(), "Invalid ODP settings")
		assert.Contains(err.Error(), "missing required setting 'api_key'")
	}
}

func TestODPTarget_Dispatch_Non2xx(t *testing.T) {
	testCases := []struct {
		Scenario   string
		Status     int
		IsThrottle bool
		IsSetup    bool
	}{
		{Scenario: "bad_request", Status: http.StatusBadRequest},
		{Scenario: "unauthorized", Status: http.StatusUnauthorized, IsSetup: true},
		{Scenario: "forbidden", Status: http.StatusForbidden, IsSetup: true},
		{Scenario: "too_many_requests", Status: http.StatusTooManyRequests, IsThrottle: true},
		{Scenario: "server_error", Status: http.StatusInternalServerError},
		{Scenario: "redirect_like", Status: http.StatusNotModified},
	}

	for _, tt := range testCases {
		t.Run(tt.Scenario, func(t *testing.T) {
			assert := assert.New(t)

			server := createTestServer(tt.Status, "nope", nil)
			defer server.Close()

			target := NewODPTargetWithEndpoint(server.Client(), server.URL)
			results, err := target.Dispatch(context.Background(), testEvents(), testSettings)
			assert.Nil(results)
			if !assert.NotNil(err) {
				return
			}

			var apiErr *models.ApiError
			if assert.True(errors.As(err, &apiErr)) {
				assert.Equal(tt.Status, apiErr.StatusCode)
				if tt.Status != http.StatusNotModified {
					assert.Equal("nope", apiErr.ResponseBody)
				}
			}

			var throttleErr models.ThrottleWriteError
			assert.Equal(tt.IsThrottle, errors.As(err, &throttleErr))

			var setupErr models.SetupWriteError
			assert.Equal(tt.IsSetup, errors.As(err, &setupErr))
		})
	}
}

func TestODPTarget_Dispatch_RegionEndpoint(t *testing.T) {
	assert := assert.New(t)

	var gotURL string
	client := clientFunc(func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(http.NoBody)}, nil
	})

	target := NewODPTargetWithClient(client)
	results, err := target.Dispatch(context.Background(), testEvents(), Settings{APIKey: "abc", Region: "EU"})
	assert.Nil(err)
	assert.Len(results, 1)
	assert.Equal("https://function.eu1.ocp.optimizely.com/twilio_segment/batch_custom_event", gotURL)
}

func TestODPTarget_Dispatch_TransportError(t *testing.T) {
	assert := assert.New(t)

	client := clientFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	target := NewODPTargetWithClient(client)
	results, err := target.Dispatch(context.Background(), testEvents(), testSettings)
	assert.Nil(results)
	if assert.NotNil(err) {
		assert.Equal("Error sending http request: connection refused", err.Error())
	}
}

func TestODPTarget_GetID(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("odp", NewODPTarget(time.Second).GetID())
}

type clientFunc func(req *http.Request) (*http.Response, error)

func (f clientFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}
