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

package action

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/odp-forwarder/pkg/mapping"
	"github.com/snowplow-devops/odp-forwarder/pkg/models"
	"github.com/snowplow-devops/odp-forwarder/pkg/target"
)

var testSettings = target.Settings{APIKey: "abc", Region: "US"}

const trackEvent = `{
  "type": "track",
  "event": "Order Completed",
  "userId": "user1234",
  "anonymousId": "anon-1",
  "timestamp": "2023-05-01T10:00:00.000Z",
  "context": {"traits": {"email": "test@example.com"}},
  "properties": {
    "order_id": "1234",
    "total": 20,
    "products": [
      {"product_id": 12345, "quantity": 2},
      {"product_id": 67890, "quantity": 5}
    ]
  }
}`

// purchaseSpec is the default mapping with a fixed event_action
func purchaseSpec() mapping.Spec {
	spec := mapping.DefaultSpec()
	spec["event_action"] = "purchase"
	return spec
}

type odpServer struct {
	*httptest.Server

	mu     sync.Mutex
	bodies []string
}

func (s *odpServer) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bodies...)
}

func newODPServer(status int) *odpServer {
	s := &odpServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.bodies = append(s.bodies, string(body))
		s.mu.Unlock()
		w.WriteHeader(status)
	}))
	return s
}

func newTestAction(s *odpServer, reporter Reporter) *CustomEventAction {
	return NewCustomEventAction(target.NewODPTargetWithEndpoint(s.Client(), s.URL), mapping.NewPathResolver(), reporter)
}

func parseEvent(t *testing.T, data string) *models.RawEvent {
	t.Helper()
	event, err := models.ParseRawEvent([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	return event
}

type recordingReporter struct {
	results []*models.TargetWriteResult
}

func (r *recordingReporter) TargetWrite(res *models.TargetWriteResult) {
	r.results = append(r.results, res)
}

func TestPerform_Created(t *testing.T) {
	assert := assert.New(t)

	server := newODPServer(http.StatusCreated)
	defer server.Close()

	reporter := &recordingReporter{}
	results, err := newTestAction(server, reporter).Perform(context.Background(), parseEvent(t, trackEvent), Input{Settings: testSettings, Mapping: purchaseSpec()})
	assert.Nil(err)

	expectedBody := `[{
  "user_identifiers": {"anonymousId": "anon-1", "userId": "user1234", "email": "test@example.com"},
  "event_type": "Order Completed",
  "event_action": "purchase",
  "products": [{"product_id": "12345", "qty": 2}, {"product_id": "67890", "qty": 5}],
  "order_id": "1234",
  "total": 20,
  "timestamp": "2023-05-01T10:00:00.000Z"
}]`

	if assert.Len(results, 1) {
		assert.Equal(http.StatusCreated, results[0].Status)
		assert.JSONEq(expectedBody, results[0].Options.Body)
	}
	if requests := server.requests(); assert.Len(requests, 1) {
		assert.JSONEq(expectedBody, requests[0])
	}

	if assert.Len(reporter.results, 1) {
		assert.Equal(int64(1), reporter.results[0].Sent)
		assert.Equal(int64(1), reporter.results[0].Requests)
	}
}

func TestPerform_MissingEventAction(t *testing.T) {
	assert := assert.New(t)

	server := newODPServer(http.StatusCreated)
	defer server.Close()

	reporter := &recordingReporter{}
	results, err := newTestAction(server, reporter).Perform(context.Background(), parseEvent(t, trackEvent), Input{Settings: testSettings})
	assert.Nil(results)
	if assert.NotNil(err) {
		assert.Equal("The root value is missing the required field 'event_action'.", err.Error())
	}
	assert.Empty(server.requests())

	if assert.Len(reporter.results, 1) {
		assert.Equal(int64(1), reporter.results[0].Invalid)
		assert.Equal(int64(0), reporter.results[0].Requests)
	}
}

func TestPerform_Non2xx(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			assert := assert.New(t)

			server := newODPServer(status)
			defer server.Close()

			reporter := &recordingReporter{}
			results, err := newTestAction(server, reporter).Perform(context.Background(), parseEvent(t, trackEvent), Input{Settings: testSettings, Mapping: purchaseSpec()})
			assert.Nil(results)
			assert.NotNil(err)
			assert.Len(server.requests(), 1)

			if assert.Len(reporter.results, 1) {
				assert.Equal(int64(1), reporter.results[0].Failed)
			}
		})
	}
}

func TestPerformBatch_OneCallPerBatch(t *testing.T) {
	assert := assert.New(t)

	server := newODPServer(http.StatusCreated)
	defer server.Close()

	events := []*models.RawEvent{
		parseEvent(t, `{"userId":"u1","event":"Product Viewed","properties":{"event_action":"view"}}`),
		parseEvent(t, `{"userId":"u2","event":"Order Completed","properties":{"event_action":"purchase"}}`),
	}

	results, err := newTestAction(server, nil).PerformBatch(context.Background(), events, Input{Settings: testSettings})
	assert.Nil(err)
	if assert.Len(results, 1) {
		assert.Equal(http.StatusCreated, results[0].Status)
	}

	if requests := server.requests(); assert.Len(requests, 1) {
		assert.JSONEq(`[
  {"user_identifiers": {"userId": "u1"}, "event_type": "Product Viewed", "event_action": "view"},
  {"user_identifiers": {"userId": "u2"}, "event_type": "Order Completed", "event_action": "purchase"}
]`, requests[0])
	}
}

func TestPerformBatch_GroupsByIdentity(t *testing.T) {
	assert := assert.New(t)

	server := newODPServer(http.StatusCreated)
	defer server.Close()

	events := []*models.RawEvent{
		parseEvent(t, `{"userId":"u1","event":"first","properties":{"event_action":"view"}}`),
		parseEvent(t, `{"anonymousId":"a1","event":"second","properties":{"event_action":"view"}}`),
		parseEvent(t, `{"userId":"u1","event":"third","properties":{"event_action":"purchase"}}`),
		parseEvent(t, `{"event":"dropped"}`),
		parseEvent(t, `{"anonymousId":"a1","event":"fourth","properties":{"event_action":"purchase"}}`),
	}

	reporter := &recordingReporter{}
	results, err := newTestAction(server, reporter).PerformBatch(context.Background(), events, Input{Settings: testSettings})
	assert.Nil(err)
	assert.Len(results, 1)

	if requests := server.requests(); assert.Len(requests, 1) {
		assert.JSONEq(`[
  {"user_identifiers": {"userId": "u1"}, "event_type": "first", "event_action": "view"},
  {"user_identifiers": {"userId": "u1"}, "event_type": "third", "event_action": "purchase"},
  {"user_identifiers": {"anonymousId": "a1"}, "event_type": "second", "event_action": "view"},
  {"user_identifiers": {"anonymousId": "a1"}, "event_type": "fourth", "event_action": "purchase"}
]`, requests[0])
	}

	if assert.Len(reporter.results, 1) {
		assert.Equal(int64(4), reporter.results[0].Sent)
		assert.Equal(int64(1), reporter.results[0].Invalid)
	}
}

func TestPerformBatch_AllInvalid(t *testing.T) {
	assert := assert.New(t)

	server := newODPServer(http.StatusCreated)
	defer server.Close()

	events := []*models.RawEvent{
		parseEvent(t, `{"event":"a"}`),
		parseEvent(t, `{"event":"b","properties":{"event_action":""}}`),
	}

	reporter := &recordingReporter{}
	results, err := newTestAction(server, reporter).PerformBatch(context.Background(), events, Input{Settings: testSettings})
	assert.Nil(err)
	assert.NotNil(results)
	assert.Empty(results)
	assert.Empty(server.requests())

	if assert.Len(reporter.results, 1) {
		assert.Equal(int64(2), reporter.results[0].Invalid)
		assert.Equal(int64(0), reporter.results[0].Requests)
	}
}

func TestPerformBatch_PartiallyInvalid(t *testing.T) {
	assert := assert.New(t)

	server := newODPServer(http.StatusOK)
	defer server.Close()

	events := []*models.RawEvent{
		parseEvent(t, `{"event":"a"}`),
		parseEvent(t, `{"event":"b","properties":{"event_action":"purchase"}}`),
	}

	reporter := &recordingReporter{}
	results, err := newTestAction(server, reporter).PerformBatch(context.Background(), events, Input{Settings: testSettings})
	assert.Nil(err)
	if assert.Len(results, 1) {
		assert.Equal(http.StatusOK, results[0].Status)
	}
	if requests := server.requests(); assert.Len(requests, 1) {
		assert.JSONEq(`[{"event_type":"b","event_action":"purchase"}]`, requests[0])
	}

	if assert.Len(reporter.results, 1) {
		assert.Equal(int64(1), reporter.results[0].Sent)
		assert.Equal(int64(1), reporter.results[0].Invalid)
	}
}

func TestPerformBatch_Non2xx(t *testing.T) {
	assert := assert.New(t)

	server := newODPServer(http.StatusInternalServerError)
	defer server.Close()

	events := []*models.RawEvent{
		parseEvent(t, `{"event":"a","properties":{"event_action":"x"}}`),
	}

	results, err := newTestAction(server, nil).PerformBatch(context.Background(), events, Input{Settings: testSettings})
	assert.Nil(results)
	if assert.NotNil(err) {
		var apiErr *models.ApiError
		assert.ErrorAs(err, &apiErr)
	}
}

func TestPerformBatch_Empty(t *testing.T) {
	assert := assert.New(t)

	server := newODPServer(http.StatusCreated)
	defer server.Close()

	results, err := newTestAction(server, nil).PerformBatch(context.Background(), nil, Input{Settings: testSettings})
	assert.Nil(err)
	assert.Empty(results)
	assert.Empty(server.requests())
}
