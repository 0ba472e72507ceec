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
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/snowplow-devops/odp-forwarder/pkg/models"
)

// Resolver evaluates a mapping Spec against an event
type Resolver interface {
	Resolve(spec Spec, event *models.RawEvent) (ResolvedFields, error)
}

// PathResolver resolves @path and @arrayPath directives with gjson.
// It holds no state and is safe for concurrent use.
type PathResolver struct{}

// NewPathResolver returns a PathResolver
func NewPathResolver() *PathResolver {
	return &PathResolver{}
}

// Resolve implements Resolver
func (r *PathResolver) Resolve(spec Spec, event *models.RawEvent) (ResolvedFields, error) {
	if event == nil {
		return nil, errors.New("cannot resolve mapping against a nil event")
	}

	doc, err := event.JSON()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to encode event")
	}
	if !gjson.ValidBytes(doc) {
		return nil, errors.New("cannot resolve mapping against invalid JSON")
	}
	root := gjson.ParseBytes(doc)

	out := make(ResolvedFields, len(spec))
	for field, directive := range spec {
		value, ok, err := resolveDirective(root, directive)
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to resolve field '%s'", field)
		}
		if ok {
			out[field] = value
		}
	}
	return out, nil
}

func resolveDirective(ctx gjson.Result, directive interface{}) (interface{}, bool, error) {
	switch d := directive.(type) {
	case nil:
		return nil, false, nil
	case map[string]interface{}:
		if p, ok := d[PathDirective]; ok {
			str, ok := p.(string)
			if !ok {
				return nil, false, fmt.Errorf("%s must be a string, got %T", PathDirective, p)
			}
			return lookup(ctx, str)
		}
		if arr, ok := d[ArrayPathDirective]; ok {
			return resolveArrayPath(ctx, arr)
		}

		out := make(map[string]interface{}, len(d))
		for key, nested := range d {
			value, ok, err := resolveDirective(ctx, nested)
			if err != nil {
				return nil, false, errors.Wrapf(err, "in '%s'", key)
			}
			if ok {
				out[key] = value
			}
		}
		if len(out) == 0 {
			return nil, false, nil
		}
		return out, true, nil
	case []interface{}:
		out := make([]interface{}, 0, len(d))
		for _, nested := range d {
			value, ok, err := resolveDirective(ctx, nested)
			if err != nil {
				return nil, false, err
			}
			if ok {
				out = append(out, value)
			}
		}
		return out, true, nil
	default:
		// Literal
		return d, true, nil
	}
}

// resolveArrayPath handles `["$.path", {template}]`. Every element of the
// source array yields exactly one output element.
func resolveArrayPath(ctx gjson.Result, arg interface{}) (interface{}, bool, error) {
	args, ok := arg.([]interface{})
	if !ok || len(args) == 0 || len(args) > 2 {
		return nil, false, fmt.Errorf("%s expects [path] or [path, template]", ArrayPathDirective)
	}
	p, ok := args[0].(string)
	if !ok {
		return nil, false, fmt.Errorf("%s path must be a string, got %T", ArrayPathDirective, args[0])
	}

	found := ctx.Get(toGJSONPath(p))
	if !found.Exists() || found.Type == gjson.Null {
		return nil, false, nil
	}

	var elements []gjson.Result
	if found.IsArray() {
		elements = found.Array()
	} else {
		elements = []gjson.Result{found}
	}

	out := make([]interface{}, 0, len(elements))
	for _, element := range elements {
		if len(args) == 1 {
			out = append(out, element.Value())
			continue
		}
		value, ok, err := resolveDirective(element, args[1])
		if err != nil {
			return nil, false, err
		}
		if !ok {
			value = map[string]interface{}{}
		}
		out = append(out, value)
	}
	return out, true, nil
}

func lookup(ctx gjson.Result, p string) (interface{}, bool, error) {
	gp := toGJSONPath(p)
	if gp == "" {
		return ctx.Value(), ctx.Exists(), nil
	}

	result := ctx.Get(gp)
	if !result.Exists() || result.Type == gjson.Null {
		return nil, false, nil
	}
	return result.Value(), true, nil
}

// toGJSONPath converts a JSONPath style reference such as
// `$.properties.products[0].id` into gjson syntax: `properties.products.0.id`
func toGJSONPath(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(p), "$")
	p = strings.TrimPrefix(p, ".")
	p = strings.ReplaceAll(p, "[", ".")
	p = strings.ReplaceAll(p, "]", "")
	return strings.TrimPrefix(p, ".")
}
