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
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/snowplow-devops/odp-forwarder/pkg/mapping"
	"github.com/snowplow-devops/odp-forwarder/pkg/models"
)

// requiredFields lists the fields every CustomEvent must carry
var requiredFields = []string{"event_action"}

// MapFunction maps a single raw event into a validated CustomEvent
type MapFunction func(*models.RawEvent) (*models.CustomEvent, error)

// NewEventMapper closes over a mapping spec and resolver and returns a MapFunction
func NewEventMapper(spec mapping.Spec, resolver mapping.Resolver) MapFunction {
	return func(event *models.RawEvent) (*models.CustomEvent, error) {
		return MapEvent(event, spec, resolver)
	}
}

// MapEvent resolves spec against event and validates the result.
// A missing event_action returns a *models.ValidationError.
func MapEvent(event *models.RawEvent, spec mapping.Spec, resolver mapping.Resolver) (*models.CustomEvent, error) {
	fields, err := resolver.Resolve(spec, event)
	if err != nil {
		return nil, err
	}

	for _, field := range requiredFields {
		if isMissing(fields[field]) {
			return nil, models.NewMissingFieldError(field)
		}
	}

	normaliseProducts(fields)

	var evt models.CustomEvent
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &evt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to build event decoder")
	}
	if err := decoder.Decode(map[string]interface{}(fields)); err != nil {
		return nil, errors.Wrap(err, "Failed to decode mapped event")
	}

	// Weak typing can turn values like `[]` into an empty string
	if strings.TrimSpace(evt.EventAction) == "" {
		return nil, models.NewMissingFieldError("event_action")
	}

	return &evt, nil
}

func isMissing(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}
	return false
}

// normaliseProducts sources each line item's qty from `qty`, falling back to
// `quantity`. Line items are copied so literal values in a Spec are never
// modified.
func normaliseProducts(fields mapping.ResolvedFields) {
	var items []interface{}
	switch v := fields["products"].(type) {
	case []interface{}:
		items = v
	case []map[string]interface{}:
		items = make([]interface{}, 0, len(v))
		for _, item := range v {
			items = append(items, item)
		}
	default:
		return
	}

	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		product, ok := item.(map[string]interface{})
		if !ok {
			out = append(out, item)
			continue
		}

		normalised := make(map[string]interface{}, len(product))
		for key, value := range product {
			if key == "quantity" {
				continue
			}
			normalised[key] = value
		}
		if isMissing(normalised["qty"]) {
			delete(normalised, "qty")
			if quantity, ok := product["quantity"]; ok && quantity != nil {
				normalised["qty"] = quantity
			}
		}
		out = append(out, normalised)
	}
	fields["products"] = out
}
