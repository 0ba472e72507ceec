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

package statsreceiver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	statsd "github.com/smira/go-statsd"

	"github.com/snowplow-devops/odp-forwarder/pkg/models"
)

// StatsDStatsReceiverConfig configures the stats metrics receiver
type StatsDStatsReceiverConfig struct {
	Address string `hcl:"address,optional" env:"STATS_RECEIVER_STATSD_ADDRESS"`
	Prefix  string `hcl:"prefix,optional" env:"STATS_RECEIVER_STATSD_PREFIX"`
	Tags    string `hcl:"tags,optional" env:"STATS_RECEIVER_STATSD_TAGS"`
}

// statsDStatsReceiver holds a new client for writing statistics to a StatsD server
type statsDStatsReceiver struct {
	client *statsd.Client
}

// newStatsDStatsReceiver creates a new client for writing metrics to StatsD
func newStatsDStatsReceiver(address string, prefix string, tagsRaw string, tagsMapClient map[string]string) (*statsDStatsReceiver, error) {
	tagsMap := map[string]string{}
	if tagsRaw != "" {
		err := json.Unmarshal([]byte(tagsRaw), &tagsMap)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to unmarshall STATSD_TAGS to map")
		}
	}

	var tags []statsd.Tag
	for key, value := range tagsMap {
		tags = append(tags, statsd.StringTag(key, value))
	}
	for key, value := range tagsMapClient {
		tags = append(tags, statsd.StringTag(key, value))
	}

	client := statsd.NewClient(address,
		statsd.MaxPacketSize(1400),
		statsd.MetricPrefix(fmt.Sprintf("%s.", prefix)),
		statsd.TagStyle(statsd.TagFormatDatadog),
		statsd.DefaultTags(tags...),
		statsd.ReconnectInterval(60*time.Second),
	)

	return &statsDStatsReceiver{
		client: client,
	}, nil
}

// NewStatsDReceiverWithTags closes over a given tags map and returns a function
// that creates a statsDStatsReceiver given a StatsDStatsReceiverConfig.
func NewStatsDReceiverWithTags(tags map[string]string) func(c *StatsDStatsReceiverConfig) (*statsDStatsReceiver, error) {
	return func(c *StatsDStatsReceiverConfig) (*statsDStatsReceiver, error) {
		return newStatsDStatsReceiver(
			c.Address,
			c.Prefix,
			c.Tags,
			tags,
		)
	}
}

// Send emits the bufferred metrics to the receiver
func (s *statsDStatsReceiver) Send(b *models.ObserverBuffer) {
	s.client.Incr("target_results", b.TargetResults)
	s.client.Incr("requests", b.Requests)
	s.client.Incr("message_sent", b.MsgSent)
	s.client.Incr("message_failed", b.MsgFailed)
	s.client.Incr("message_invalid", b.MsgInvalid)
	s.client.PrecisionTiming("latency_request_max", b.MaxRequestLatency)
	s.client.PrecisionTiming("latency_request_min", b.MinRequestLatency)
	s.client.PrecisionTiming("latency_request_avg", b.GetAvgRequestLatency())
}

// Close flushes and closes the underlying client
func (s *statsDStatsReceiver) Close() error {
	return s.client.Close()
}
