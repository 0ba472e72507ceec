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

package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// pprof imported for the side effect of registering its HTTP handlers
	_ "net/http/pprof"

	retry "github.com/avast/retry-go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/snowplow-devops/odp-forwarder/cmd"
	"github.com/snowplow-devops/odp-forwarder/config"
	"github.com/snowplow-devops/odp-forwarder/pkg/action"
	"github.com/snowplow-devops/odp-forwarder/pkg/mapping"
	"github.com/snowplow-devops/odp-forwarder/pkg/models"
	"github.com/snowplow-devops/odp-forwarder/pkg/observer"
	"github.com/snowplow-devops/odp-forwarder/pkg/source/sourceiface"
)

const (
	appVersion   = cmd.AppVersion
	appName      = cmd.AppName
	appUsage     = "Forwards analytics events to Optimizely Data Platform as custom events"
	appCopyright = "(c) 2020-present Snowplow Analytics Ltd. All rights reserved."
)

// RunCli allows running application from cli
func RunCli() {
	config, sentryEnabled, err := cmd.Init()
	if err != nil {
		exitWithError(err, sentryEnabled)
	}
	app := cli.NewApp()
	app.Name = appName
	app.Usage = appUsage
	app.Version = appVersion
	app.Copyright = appCopyright
	app.Compiled = time.Now().UTC()
	app.Authors = []cli.Author{
		{
			Name:  "Snowplow Analytics",
			Email: "support@snowplow.io",
		},
	}

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "profile, p",
			Usage: "Enable application profiling endpoint on port 8080",
		},
	}

	app.Action = func(c *cli.Context) error {
		profile := c.Bool("profile")
		if profile {
			go func() {
				if err := http.ListenAndServe("localhost:8080", nil); err != nil {
					log.WithError(err).Fatal("failed to start up the server")
				}
			}()
		}
		return RunApp(config)
	}

	app.ExitErrHandler = func(context *cli.Context, err error) {
		if err != nil {
			exitWithError(err, sentryEnabled)
		}
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("failed to run cli")
	}
}

// RunApp runs application (without cli stuff)
func RunApp(cfg *config.Config) error {
	source, err := cfg.GetSource()
	if err != nil {
		return err
	}

	spec, err := cfg.GetMapping()
	if err != nil {
		return err
	}

	settings := cfg.GetSettings()
	if err := settings.Validate(); err != nil {
		return errors.Wrap(err, "Invalid ODP settings")
	}

	obs, err := cfg.GetObserver(map[string]string{})
	if err != nil {
		return err
	}
	obs.Start()

	act := action.NewCustomEventAction(cfg.GetTarget(), mapping.NewPathResolver(), obs)
	in := action.Input{Settings: settings, Mapping: spec}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGTERM
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Warn("SIGTERM called, cleaning up and closing application ...")

		stop := make(chan struct{}, 1)
		go func() {
			source.Stop()
			stop <- struct{}{}
		}()

		select {
		case <-stop:
			log.Debug("source.Stop() finished successfully!")
		case <-time.After(5 * time.Second):
			log.Error("source.Stop() took more than 5 seconds, forcing shutdown ...")

			cancel()
			obs.Stop()

			os.Exit(1)
		}
	}()

	// Callback functions for the source to leverage when writing data
	sf := sourceiface.SourceFunctions{
		WriteToTarget: sourceWriteFunc(ctx, act, in, obs, cfg),
	}

	// Read is a long running process and will only return when the source
	// is exhausted or if an error occurs
	err = source.Read(&sf)
	if err != nil {
		obs.Stop()
		return err
	}

	obs.Stop()
	return nil
}

// sourceWriteFunc builds the function which wraps the different objects together to handle:
//
// 1. Parsing messages into events
// 2. Mapping and sending the batch
// 3. Observing results
//
// All with retry logic baked in to remove any of this handling from the action
func sourceWriteFunc(ctx context.Context, act *action.CustomEventAction, in action.Input, o *observer.Observer, cfg *config.Config) func(messages []*models.Message) error {
	return func(messages []*models.Message) error {
		events, unparseable := parseMessages(messages)
		if unparseable > 0 {
			o.TargetWrite(models.NewTargetWriteResult(0, 0, unparseable, 0, 0))
		}

		if len(events) > 0 {
			write := func() error {
				results, err := act.PerformBatch(ctx, events, in)
				for _, res := range results {
					log.Debugf("ODP responded with status %d", res.Status)
				}
				return err
			}

			if err := handleWrite(ctx, cfg, write); err != nil {
				return err
			}
		}

		for _, msg := range messages {
			if msg.AckFunc != nil {
				msg.AckFunc()
			}
		}
		return nil
	}
}

// parseMessages decodes every message into an event, dropping those which are not valid JSON
func parseMessages(messages []*models.Message) ([]*models.RawEvent, int64) {
	events := make([]*models.RawEvent, 0, len(messages))
	var unparseable int64

	for _, msg := range messages {
		event, err := models.ParseRawEvent(msg.Data)
		if err != nil {
			log.WithFields(log.Fields{"message_id": msg.ID}).Warnf("Dropping message that is not a valid event: %s", err)
			unparseable++
			continue
		}
		events = append(events, event)
	}
	return events, unparseable
}

// isRetryable reports whether a failed dispatch is worth another attempt.
// Setup errors need operator action and other 4xx answers will not change.
// Throttling, 5xx and transport failures are retried.
func isRetryable(err error) bool {
	var setupErr models.SetupWriteError
	if errors.As(err, &setupErr) {
		return false
	}
	var throttleErr models.ThrottleWriteError
	if errors.As(err, &throttleErr) {
		return true
	}
	var apiErr *models.ApiError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return true
}

// handleWrite wraps each dispatch with a bounded retry. Throttled attempts
// back off exponentially; other retryable errors use a fixed delay.
func handleWrite(ctx context.Context, cfg *config.Config, write func() error) error {
	delay := time.Duration(cfg.Data.Retry.DelayMs) * time.Millisecond

	onRetry := retry.OnRetry(func(attempt uint, err error) {
		if _, isThrottle := err.(models.ThrottleWriteError); isThrottle {
			log.Warnf("Throttle write error. Retry counter: %d, error: %s", attempt+1, err)
			return
		}
		log.Warnf("Transient write error. Retry counter: %d, error: %s", attempt+1, err)
	})

	delayType := retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
		if _, isThrottle := err.(models.ThrottleWriteError); isThrottle {
			return retry.BackOffDelay(n, err, config)
		}
		return retry.FixedDelay(n, err, config)
	})

	err := retry.Do(
		write,
		retry.Context(ctx),
		retry.RetryIf(isRetryable),
		onRetry,
		delayType,
		retry.Delay(delay),
		retry.Attempts(uint(cfg.Data.Retry.MaxAttempts)),
		retry.LastErrorOnly(true),
	)

	if _, isSetup := err.(models.SetupWriteError); isSetup {
		log.Error("ODP rejected the API key, check the 'api_key' setting")
	}
	return err
}

// exitWithError will ensure we log the error and leave time for Sentry to flush
func exitWithError(err error, flushSentry bool) {
	log.WithFields(log.Fields{"error": err}).Error(err)
	if flushSentry {
		sentry.Flush(2 * time.Second)
	}
	os.Exit(1)
}
