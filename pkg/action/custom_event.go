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
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/odp-forwarder/pkg/mapping"
	"github.com/snowplow-devops/odp-forwarder/pkg/models"
	"github.com/snowplow-devops/odp-forwarder/pkg/target"
	"github.com/snowplow-devops/odp-forwarder/pkg/transform"
)

// Dispatcher sends mapped events in a single request
type Dispatcher interface {
	Dispatch(ctx context.Context, events []*models.CustomEvent, settings target.Settings) ([]*models.DispatchResult, error)
}

// Reporter receives the outcome of every invocation
type Reporter interface {
	TargetWrite(r *models.TargetWriteResult)
}

// Input carries the per-call settings and mapping. A nil Mapping selects
// mapping.DefaultSpec.
type Input struct {
	Settings target.Settings
	Mapping  mapping.Spec
}

func (in Input) spec() mapping.Spec {
	if in.Mapping == nil {
		return mapping.DefaultSpec()
	}
	return in.Mapping
}

// CustomEventAction maps analytics events to ODP custom events and sends them
type CustomEventAction struct {
	dispatcher Dispatcher
	resolver   mapping.Resolver
	reporter   Reporter

	log *log.Entry
}

// NewCustomEventAction builds the action. reporter may be nil.
func NewCustomEventAction(dispatcher Dispatcher, resolver mapping.Resolver, reporter Reporter) *CustomEventAction {
	return &CustomEventAction{
		dispatcher: dispatcher,
		resolver:   resolver,
		reporter:   reporter,
		log:        log.WithFields(log.Fields{"action": "customEvent"}),
	}
}

// Perform maps and sends a single event. Unlike PerformBatch, a validation
// failure is returned to the caller.
func (a *CustomEventAction) Perform(ctx context.Context, event *models.RawEvent, in Input) ([]*models.DispatchResult, error) {
	mapped, err := transform.MapEvent(event, in.spec(), a.resolver)
	if err != nil {
		a.report(models.NewTargetWriteResult(0, 0, 1, 0, 0))
		return nil, err
	}

	return a.dispatch(ctx, []*models.CustomEvent{mapped}, 0, in.Settings)
}

// PerformBatch maps every event and sends the valid ones in one request,
// grouped by identity in first-seen order. Invalid events are dropped; when
// none are valid the result is empty and no request is made.
func (a *CustomEventAction) PerformBatch(ctx context.Context, events []*models.RawEvent, in Input) ([]*models.DispatchResult, error) {
	reduced := transform.ReduceBatch(events, in.spec(), a.resolver)
	if reduced.InvalidCount > 0 {
		a.log.Debugf("Dropped %d/%d invalid events from batch", reduced.InvalidCount, len(events))
	}

	groups := reduced.Groups()
	payload := make([]*models.CustomEvent, 0, int(reduced.ResultCount))
	for _, group := range groups {
		payload = append(payload, group.Events...)
	}
	if len(groups) > 0 {
		a.log.Debugf("Batch of %d events spans %d identifier groups", len(payload), len(groups))
	}

	return a.dispatch(ctx, payload, reduced.InvalidCount, in.Settings)
}

func (a *CustomEventAction) dispatch(ctx context.Context, mapped []*models.CustomEvent, invalid int64, settings target.Settings) ([]*models.DispatchResult, error) {
	if len(mapped) == 0 {
		a.report(models.NewTargetWriteResult(0, 0, invalid, 0, 0))
		return []*models.DispatchResult{}, nil
	}

	start := time.Now()
	results, err := a.dispatcher.Dispatch(ctx, mapped, settings)
	latency := time.Since(start)

	if err != nil {
		fields := log.Fields{"events": len(mapped)}
		var meta models.ErrorMetadata
		if errors.As(err, &meta) {
			fields["error_type"] = meta.ReportableType()
			fields["error_code"] = meta.ReportableCode()
		}
		a.log.WithFields(fields).Warnf("Dispatch failed: %s", err)

		a.report(models.NewTargetWriteResult(0, int64(len(mapped)), invalid, 1, latency))
		return nil, err
	}

	a.report(models.NewTargetWriteResult(int64(len(mapped)), 0, invalid, 1, latency))
	return results, nil
}

func (a *CustomEventAction) report(r *models.TargetWriteResult) {
	if a.reporter != nil {
		a.reporter.TargetWrite(r)
	}
}
