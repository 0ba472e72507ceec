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

package stdinsource

import (
	"bufio"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/twinj/uuid"

	"github.com/snowplow-devops/odp-forwarder/pkg/models"
	"github.com/snowplow-devops/odp-forwarder/pkg/source/sourceiface"
)

// maxLineBytes bounds a single event read from stdin
const maxLineBytes = 1024 * 1024

// StdinSourceConfig configures the source for records pulled
type StdinSourceConfig struct {
	ConcurrentWrites int `hcl:"concurrent_writes,optional" env:"CONCURRENT_WRITES"`
	BatchSize        int `hcl:"batch_size,optional" env:"BATCH_SIZE"`
	BatchByteLimit   int `hcl:"batch_byte_limit,optional" env:"BATCH_BYTE_LIMIT"`
}

// stdinSource holds a new client for reading events from stdin
type stdinSource struct {
	concurrentWrites int
	batchSize        int
	batchByteLimit   int

	log *log.Entry
}

// NewStdinSource creates a new client for reading newline delimited events from stdin
func NewStdinSource(c *StdinSourceConfig) (sourceiface.Source, error) {
	source, err := newStdinSource(c.ConcurrentWrites, c.BatchSize, c.BatchByteLimit)
	if err != nil {
		return nil, err
	}
	return source, nil
}

func newStdinSource(concurrentWrites int, batchSize int, batchByteLimit int) (*stdinSource, error) {
	if concurrentWrites < 1 {
		return nil, errors.New("concurrent writes must be at least 1")
	}
	if batchSize < 1 {
		return nil, errors.New("batch size must be at least 1")
	}
	if batchByteLimit < 1 {
		return nil, errors.New("batch byte limit must be at least 1")
	}

	return &stdinSource{
		concurrentWrites: concurrentWrites,
		batchSize:        batchSize,
		batchByteLimit:   batchByteLimit,
		log:              log.WithFields(log.Fields{"source": "stdin"}),
	}, nil
}

// Read will execute until CTRL + D is pressed or until EOF is passed.
// Lines are grouped into batches which are written concurrently; errors from
// every batch are collected and returned once reading has finished.
func (ss *stdinSource) Read(sf *sourceiface.SourceFunctions) error {
	ss.log.Infof("Reading messages from 'stdin', scanning until EOF detected (Note: Press 'CTRL + D' to exit)")

	throttle := make(chan struct{}, ss.concurrentWrites)
	wg := sync.WaitGroup{}

	var mu sync.Mutex
	var errResult error

	write := func(messages []*models.Message) {
		throttle <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sf.WriteToTarget(messages)
			if err != nil {
				ss.log.WithFields(log.Fields{"error": err}).Error(err)
				mu.Lock()
				errResult = multierror.Append(errResult, err)
				mu.Unlock()
			}
			<-throttle
		}()
	}

	var pending []*models.Message
	flush := func() {
		for _, chunk := range models.GetChunkedMessages(pending, ss.batchSize, ss.batchByteLimit) {
			write(chunk)
		}
		pending = nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		timeNow := time.Now().UTC()
		pending = append(pending, &models.Message{
			ID:          uuid.NewV4().String(),
			Data:        append([]byte(nil), line...),
			TimeCreated: timeNow,
			TimePulled:  timeNow,
		})
		if len(pending) == ss.batchSize {
			flush()
		}
	}
	flush()
	wg.Wait()

	if scanner.Err() != nil {
		return errors.Wrap(scanner.Err(), "Failed to read from stdin scanner")
	}
	if errResult != nil {
		return errors.Wrap(errResult, "Failed to write batches read from stdin")
	}
	return nil
}

// Stop will halt the reader processing more events
func (ss *stdinSource) Stop() {
	ss.log.Warn("Press CTRL + D to exit!")
}

// GetID returns the identifier for this source
func (ss *stdinSource) GetID() string {
	return "stdin"
}
