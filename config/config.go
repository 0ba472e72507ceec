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

package config

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"

	"github.com/snowplow-devops/odp-forwarder/pkg/mapping"
	"github.com/snowplow-devops/odp-forwarder/pkg/observer"
	stdinsource "github.com/snowplow-devops/odp-forwarder/pkg/source/stdin"
	"github.com/snowplow-devops/odp-forwarder/pkg/source/sourceiface"
	"github.com/snowplow-devops/odp-forwarder/pkg/statsreceiver"
	"github.com/snowplow-devops/odp-forwarder/pkg/statsreceiver/statsreceiveriface"
	"github.com/snowplow-devops/odp-forwarder/pkg/target"
)

// ConfigFileEnvVar names the environment variable pointing at an HCL config file
const ConfigFileEnvVar = "ODP_FORWARDER_CONFIG_FILE"

// Config holds the configuration data along with the decoder to decode them
type Config struct {
	Data    *ConfigurationData
	Decoder Decoder
}

// ConfigurationData for holding all configuration options
type ConfigurationData struct {
	ODP           *ODPConfig                     `hcl:"odp,block"`
	Source        *stdinsource.StdinSourceConfig `hcl:"source,block"`
	Sentry        *SentryConfig                  `hcl:"sentry,block"`
	StatsReceiver *StatsConfig                   `hcl:"stats_receiver,block"`
	Retry         *RetryConfig                   `hcl:"retry,block"`
	MappingFile   string                         `hcl:"mapping_file,optional" env:"MAPPING_FILE"`
	LogLevel      string                         `hcl:"log_level,optional" env:"LOG_LEVEL"`
}

// ODPConfig holds the destination settings and transport options
type ODPConfig struct {
	APIKey            string `hcl:"api_key,optional" env:"ODP_API_KEY"`
	Region            string `hcl:"region,optional" env:"ODP_REGION"`
	Endpoint          string `hcl:"endpoint,optional" env:"ODP_ENDPOINT"`
	RequestTimeoutSec int    `hcl:"request_timeout_sec,optional" env:"ODP_REQUEST_TIMEOUT_SEC"`
}

// SentryConfig configures the Sentry error tracker.
type SentryConfig struct {
	Dsn   string `hcl:"dsn,optional" env:"SENTRY_DSN"`
	Tags  string `hcl:"tags,optional" env:"SENTRY_TAGS"`
	Debug bool   `hcl:"debug,optional" env:"SENTRY_DEBUG"`
}

// StatsConfig holds configuration for stats receivers.
type StatsConfig struct {
	StatsD     *statsreceiver.StatsDStatsReceiverConfig `hcl:"statsd,block"`
	TimeoutSec int                                      `hcl:"timeout_sec,optional" env:"STATS_RECEIVER_TIMEOUT_SEC"`
	BufferSec  int                                      `hcl:"buffer_sec,optional" env:"STATS_RECEIVER_BUFFER_SEC"`
}

// RetryConfig configures how the CLI retries throttled or misconfigured dispatches.
// Retrying is a concern of the host, never of the action itself.
type RetryConfig struct {
	MaxAttempts int `hcl:"max_attempts,optional" env:"RETRY_MAX_ATTEMPTS"`
	DelayMs     int `hcl:"delay_ms,optional" env:"RETRY_DELAY_MS"`
}

// defaultConfigData returns the initial main configuration target.
func defaultConfigData() *ConfigurationData {
	return &ConfigurationData{
		ODP: &ODPConfig{
			Region:            "US",
			RequestTimeoutSec: 5,
		},
		Source: &stdinsource.StdinSourceConfig{
			ConcurrentWrites: 10,
			BatchSize:        100,
			BatchByteLimit:   5242880,
		},
		Sentry: &SentryConfig{
			Tags: "{}",
		},
		StatsReceiver: &StatsConfig{
			StatsD: &statsreceiver.StatsDStatsReceiverConfig{
				Prefix: "snowplow.odp-forwarder",
				Tags:   "{}",
			},
			TimeoutSec: 1,
			BufferSec:  15,
		},
		Retry: &RetryConfig{
			MaxAttempts: 5,
			DelayMs:     1000,
		},
		LogLevel: "info",
	}
}

// fillDefaults restores defaults for any block or value left empty by decoding
func fillDefaults(c *ConfigurationData) {
	d := defaultConfigData()

	if c.ODP == nil {
		c.ODP = d.ODP
	}
	if c.ODP.Region == "" {
		c.ODP.Region = d.ODP.Region
	}
	if c.ODP.RequestTimeoutSec == 0 {
		c.ODP.RequestTimeoutSec = d.ODP.RequestTimeoutSec
	}

	if c.Source == nil {
		c.Source = d.Source
	}
	if c.Source.ConcurrentWrites == 0 {
		c.Source.ConcurrentWrites = d.Source.ConcurrentWrites
	}
	if c.Source.BatchSize == 0 {
		c.Source.BatchSize = d.Source.BatchSize
	}
	if c.Source.BatchByteLimit == 0 {
		c.Source.BatchByteLimit = d.Source.BatchByteLimit
	}

	if c.Sentry == nil {
		c.Sentry = d.Sentry
	}
	if c.Sentry.Tags == "" {
		c.Sentry.Tags = d.Sentry.Tags
	}

	if c.StatsReceiver == nil {
		c.StatsReceiver = d.StatsReceiver
	}
	if c.StatsReceiver.StatsD == nil {
		c.StatsReceiver.StatsD = d.StatsReceiver.StatsD
	}
	if c.StatsReceiver.StatsD.Prefix == "" {
		c.StatsReceiver.StatsD.Prefix = d.StatsReceiver.StatsD.Prefix
	}
	if c.StatsReceiver.StatsD.Tags == "" {
		c.StatsReceiver.StatsD.Tags = d.StatsReceiver.StatsD.Tags
	}
	if c.StatsReceiver.TimeoutSec == 0 {
		c.StatsReceiver.TimeoutSec = d.StatsReceiver.TimeoutSec
	}
	if c.StatsReceiver.BufferSec == 0 {
		c.StatsReceiver.BufferSec = d.StatsReceiver.BufferSec
	}

	if c.Retry == nil {
		c.Retry = d.Retry
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if c.Retry.DelayMs == 0 {
		c.Retry.DelayMs = d.Retry.DelayMs
	}

	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// validate rejects values that no default can repair
func validate(c *ConfigurationData) error {
	if c.Retry.MaxAttempts < 1 {
		return errors.Errorf("retry max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.DelayMs < 0 {
		return errors.Errorf("retry delay_ms must not be negative, got %d", c.Retry.DelayMs)
	}
	return nil
}

// NewConfig returns a configuration
func NewConfig() (*Config, error) {
	filename := os.Getenv(ConfigFileEnvVar)
	if filename == "" {
		return newEnvConfig()
	}

	switch suffix := strings.ToLower(filepath.Ext(filename)); suffix {
	case ".hcl":
		src, err := os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		return NewHclConfig(src, filename)
	default:
		return nil, errors.New("invalid extension for the configuration file")
	}
}

func newEnvConfig() (*Config, error) {
	decoderOpts := &DecoderOptions{}
	envDecoder := &envDecoder{}

	configData := defaultConfigData()

	err := envDecoder.Decode(decoderOpts, configData)
	if err != nil {
		return nil, err
	}
	fillDefaults(configData)
	if err := validate(configData); err != nil {
		return nil, err
	}

	mainConfig := Config{
		Data:    configData,
		Decoder: envDecoder,
	}

	return &mainConfig, nil
}

// NewHclConfig parses and decodes an HCL configuration document
func NewHclConfig(src []byte, filename string) (*Config, error) {
	// Parsing
	parser := hclparse.NewParser()
	fileHCL, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	// Creating EvalContext
	evalContext := CreateHclContext() // ptr

	// Decoding
	configData := defaultConfigData()
	decoderOpts := &DecoderOptions{Input: fileHCL.Body}
	hclDecoder := &hclDecoder{EvalContext: evalContext}

	err := hclDecoder.Decode(decoderOpts, configData)
	if err != nil {
		return nil, err
	}
	fillDefaults(configData)
	if err := validate(configData); err != nil {
		return nil, err
	}

	mainConfig := Config{
		Data:    configData,
		Decoder: hclDecoder,
	}

	return &mainConfig, nil
}

// GetSettings returns the ODP settings configured
func (c *Config) GetSettings() target.Settings {
	return target.Settings{
		APIKey: c.Data.ODP.APIKey,
		Region: c.Data.ODP.Region,
	}
}

// GetTarget builds and returns the ODP target that is configured
func (c *Config) GetTarget() *target.ODPTarget {
	timeout := time.Duration(c.Data.ODP.RequestTimeoutSec) * time.Second
	return target.NewODPTargetWithEndpoint(&http.Client{Timeout: timeout}, c.Data.ODP.Endpoint)
}

// GetMapping loads the configured mapping, or the default mapping when none is set
func (c *Config) GetMapping() (mapping.Spec, error) {
	return mapping.LoadSpec(c.Data.MappingFile)
}

// GetSource builds and returns the stdin source
func (c *Config) GetSource() (sourceiface.Source, error) {
	return stdinsource.NewStdinSource(c.Data.Source)
}

// GetObserver builds and returns the observer with the embedded
// optional stats receiver
func (c *Config) GetObserver(tags map[string]string) (*observer.Observer, error) {
	sr, err := c.getStatsReceiver(tags)
	if err != nil {
		return nil, err
	}
	return observer.New(sr, time.Duration(c.Data.StatsReceiver.TimeoutSec)*time.Second, time.Duration(c.Data.StatsReceiver.BufferSec)*time.Second), nil
}

// getStatsReceiver builds and returns the stats receiver, or nil when no
// StatsD address is configured
func (c *Config) getStatsReceiver(tags map[string]string) (statsreceiveriface.StatsReceiver, error) {
	statsdConfig := c.Data.StatsReceiver.StatsD
	if statsdConfig == nil || statsdConfig.Address == "" {
		return nil, nil
	}

	receiver, err := statsreceiver.NewStatsDReceiverWithTags(tags)(statsdConfig)
	if err != nil {
		return nil, err
	}
	return receiver, nil
}
