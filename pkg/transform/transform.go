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

package transform

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/odp-forwarder/pkg/mapping"
	"github.com/snowplow-devops/odp-forwarder/pkg/models"
)

// BatchReduceFunction maps a batch of events, dropping the ones which fail
type BatchReduceFunction func([]*models.RawEvent) *models.ReduceResult

// NewBatchReducer constructs a function which applies mapFn to every event in a batch.
// Failures never abort the batch: the failed event is moved to the Invalid list
// and the remaining events are still mapped. Successful events keep their input order.
func NewBatchReducer(mapFn MapFunction) BatchReduceFunction {
	logger := log.WithFields(log.Fields{"name": "BatchReducer"})

	return func(events []*models.RawEvent) *models.ReduceResult {
		successList := make([]*models.CustomEvent, 0, len(events))
		invalidList := make([]*models.InvalidEvent, 0)

		for _, event := range events {
			mapped, err := mapFn(event)
			if err != nil {
				var meta models.ErrorMetadata
				if errors.As(err, &meta) && meta.ReportableType() == models.ErrorTypeValidation {
					logger.Debugf("Dropping event from batch: %s", meta.ReportableDescription())
				} else {
					logger.WithFields(log.Fields{"error": err}).Warn("Dropping event from batch, mapping failed")
				}
				invalidList = append(invalidList, &models.InvalidEvent{Event: event, Err: err})
				continue
			}
			successList = append(successList, mapped)
		}

		return models.NewReduceResult(successList, invalidList)
	}
}

// ReduceBatch maps every event in events with spec. Events which fail
// validation are dropped; if all of them fail the Result is empty.
func ReduceBatch(events []*models.RawEvent, spec mapping.Spec, resolver mapping.Resolver) *models.ReduceResult {
	return NewBatchReducer(NewEventMapper(spec, resolver))(events)
}
