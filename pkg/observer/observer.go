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

package observer

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/odp-forwarder/pkg/models"
	"github.com/snowplow-devops/odp-forwarder/pkg/statsreceiver/statsreceiveriface"
)

// Observer holds the channels and settings for aggregating telemetry from
// action invocations and emitting them to downstream destinations
type Observer struct {
	statsClient     statsreceiveriface.StatsReceiver
	exitSignal      chan struct{}
	stopDone        chan struct{}
	targetWriteChan chan *models.TargetWriteResult
	timeout         time.Duration
	reportInterval  time.Duration

	mu        sync.Mutex
	isRunning bool

	log *log.Entry
}

// New builds a new observer to be used to gather telemetry
// about dispatches
func New(statsClient statsreceiveriface.StatsReceiver, timeout time.Duration, reportInterval time.Duration) *Observer {
	return &Observer{
		statsClient:     statsClient,
		exitSignal:      make(chan struct{}),
		stopDone:        make(chan struct{}),
		targetWriteChan: make(chan *models.TargetWriteResult, 1000),
		timeout:         timeout,
		reportInterval:  reportInterval,
		log:             log.WithFields(log.Fields{"name": "Observer"}),
	}
}

// Start launches a goroutine which processes results from dispatches
func (o *Observer) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.isRunning {
		o.log.Warn("Observer is already running")
		return
	}
	o.isRunning = true

	go func() {
		reportTime := time.Now().UTC().Add(o.reportInterval)
		buffer := models.ObserverBuffer{}

	ObserverLoop:
		for {
			select {
			case <-o.exitSignal:
				o.log.Warn("Received exit signal, shutting down Observer ...")

				// Drain anything still queued before the final flush
				for len(o.targetWriteChan) > 0 {
					buffer.AppendWrite(<-o.targetWriteChan)
				}
				o.flush(&buffer)
				break ObserverLoop
			case res := <-o.targetWriteChan:
				buffer.AppendWrite(res)
			case <-time.After(o.timeout):
				o.log.Debugf("Observer timed out after (%v) waiting for result", o.timeout)
			}

			if time.Now().UTC().After(reportTime) {
				o.flush(&buffer)

				reportTime = time.Now().UTC().Add(o.reportInterval)
				buffer = models.ObserverBuffer{}
			}
		}
		o.stopDone <- struct{}{}
	}()
}

func (o *Observer) flush(buffer *models.ObserverBuffer) {
	o.log.Info(buffer.String())
	if o.statsClient != nil {
		o.statsClient.Send(buffer)
	}
}

// Stop issues a signal to halt observer processing
func (o *Observer) Stop() {
	o.log.Info("Observer Stop() called")

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.isRunning {
		o.exitSignal <- struct{}{}
		<-o.stopDone
		o.isRunning = false
	}
}

// --- Functions called to push information to observer

// TargetWrite pushes an action result onto a channel for processing
// by the observer
func (o *Observer) TargetWrite(r *models.TargetWriteResult) {
	o.targetWriteChan <- r
}
