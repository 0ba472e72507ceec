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

package mapping

import (
	"os"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

const (
	// PathDirective resolves a single value, eg: `{"@path": "$.properties.total"}`
	PathDirective = "@path"

	// ArrayPathDirective resolves an array and applies a template relative to
	// each element, eg: `{"@arrayPath": ["$.properties.products", {"product_id": {"@path": "$.product_id"}}]}`
	ArrayPathDirective = "@arrayPath"
)

// Spec maps output field names to directives. A directive is either a
// literal value, a @path or @arrayPath object, or a nested object of
// directives.
type Spec map[string]interface{}

// ResolvedFields are the output fields of a Spec evaluated against one event.
// Fields whose directive did not resolve are absent.
type ResolvedFields map[string]interface{}

func path(p string) map[string]interface{} {
	return map[string]interface{}{PathDirective: p}
}

// DefaultSpec returns the mapping used when a caller supplies none
func DefaultSpec() Spec {
	return Spec{
		"user_identifiers": map[string]interface{}{
			"anonymousId": path("$.anonymousId"),
			"userId":      path("$.userId"),
			"email":       path("$.context.traits.email"),
		},
		"event_type":   path("$.event"),
		"event_action": path("$.properties.event_action"),
		"products": map[string]interface{}{
			ArrayPathDirective: []interface{}{
				"$.properties.products",
				map[string]interface{}{
					"product_id": path("$.product_id"),
					"qty":        path("$.qty"),
					"quantity":   path("$.quantity"),
				},
			},
		},
		"order_id":  path("$.properties.order_id"),
		"total":     path("$.properties.total"),
		"timestamp": path("$.timestamp"),
	}
}

// ParseSpec decodes a JSON mapping document
func ParseSpec(data []byte) (Spec, error) {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, errors.Wrap(err, "Error parsing mapping. Ensure that the mapping is provided as a JSON object")
	}
	if spec == nil {
		return nil, errors.New("Error parsing mapping: mapping must be a JSON object")
	}
	return spec, nil
}

// LoadSpec reads a JSON mapping document from disk. An empty filename
// returns the default mapping.
func LoadSpec(filename string) (Spec, error) {
	if filename == "" {
		return DefaultSpec(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to read mapping file")
	}
	return ParseSpec(data)
}
