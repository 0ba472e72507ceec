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
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// regionHosts maps an ODP region to its ingestion host
var regionHosts = map[string]string{
	"US": "https://function.zaius.app/twilio_segment",
	"EU": "https://function.eu1.ocp.optimizely.com/twilio_segment",
	"AU": "https://function.au1.ocp.optimizely.com/twilio_segment",
}

const batchCustomEventPath = "/batch_custom_event"

// Settings are constant for the life of a destination
type Settings struct {
	APIKey string
	Region string
}

// Validate checks that both settings are present and the region is known
func (s Settings) Validate() error {
	var result error
	if s.APIKey == "" {
		result = multierror.Append(result, errors.New("missing required setting 'api_key'"))
	}
	if s.Region == "" {
		result = multierror.Append(result, errors.New("missing required setting 'region'"))
	} else if _, ok := regionHosts[strings.ToUpper(s.Region)]; !ok {
		result = multierror.Append(result, fmt.Errorf("unsupported region '%s', expected one of %s", s.Region, strings.Join(SupportedRegions(), ", ")))
	}
	return result
}

// BatchCustomEventURL resolves the region specific endpoint
func (s Settings) BatchCustomEventURL() (string, error) {
	host, ok := regionHosts[strings.ToUpper(s.Region)]
	if !ok {
		return "", fmt.Errorf("unsupported region '%s'", s.Region)
	}
	return host + batchCustomEventPath, nil
}

// SupportedRegions lists the regions which have a known ingestion host
func SupportedRegions() []string {
	regions := make([]string, 0, len(regionHosts))
	for region := range regionHosts {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}
