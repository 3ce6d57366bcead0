// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package telemetry carries verdict and infrastructure-failure records from
// the dispatcher to the outward consumer. Delivery is best-effort and FIFO
// within the queue; no acknowledgment protocol exists at this layer.
package telemetry

import (
	"sync"
	"time"

	"github.com/DataDog/process-guard/pkg/util/log"
)

// RecordType discriminates outward records.
type RecordType string

const (
	// RecordVerdict reports a check that positively detected tampering.
	RecordVerdict RecordType = "verdict"
	// RecordCheckFailure reports an infrastructure failure on a single check.
	RecordCheckFailure RecordType = "check_failure"
	// RecordChannelFailure reports the kernel channel being declared unhealthy.
	RecordChannelFailure RecordType = "channel_failure"
)

// Record is one outward telemetry item. Payload is opaque at this layer.
type Record struct {
	Type    RecordType
	Check   string
	Pid     int32
	Message string
	Payload []byte
	Time    time.Time
}

// Queue accumulates records and flushes them in batches, either when
// maxBatchSize records piled up or when the oldest record has been retained
// for maxRetention.
type Queue struct {
	in    chan *Record
	done  chan struct{}
	flush func([]*Record)

	m      sync.Mutex
	closed bool
}

// NewQueue starts a queue flushing through cb.
func NewQueue(maxBatchSize int, maxRetention time.Duration, cb func([]*Record)) *Queue {
	q := &Queue{
		in:    make(chan *Record, maxBatchSize*4),
		done:  make(chan struct{}),
		flush: cb,
	}
	go q.run(maxBatchSize, maxRetention)
	return q
}

func (q *Queue) run(maxBatchSize int, maxRetention time.Duration) {
	defer close(q.done)

	var batch []*Record
	timer := time.NewTimer(maxRetention)
	defer timer.Stop()

	flushBatch := func() {
		if len(batch) == 0 {
			return
		}
		q.flush(batch)
		batch = nil
	}

	for {
		select {
		case record, ok := <-q.in:
			if !ok {
				flushBatch()
				return
			}
			batch = append(batch, record)
			if len(batch) == 1 {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(maxRetention)
			}
			if len(batch) >= maxBatchSize {
				flushBatch()
			}
		case <-timer.C:
			flushBatch()
			timer.Reset(maxRetention)
		}
	}
}

// Add enqueues one record. It never blocks the caller: when the queue is
// saturated the record is dropped and counted against us in the logs, the
// dispatcher must not stall on a slow consumer. A worker outliving the
// shutdown grace period can still report after Stop; those records are
// dropped, never a panic on the closed channel.
func (q *Queue) Add(record *Record) {
	q.m.Lock()
	defer q.m.Unlock()

	if q.closed {
		log.Debugf("telemetry queue stopped, dropping %s record for %s", record.Type, record.Check)
		return
	}

	select {
	case q.in <- record:
	default:
		log.Warnf("telemetry queue full, dropping %s record for %s", record.Type, record.Check)
	}
}

// Stop flushes what is buffered and stops the queue. Records added after
// Stop are dropped. Idempotent.
func (q *Queue) Stop() {
	q.m.Lock()
	if !q.closed {
		q.closed = true
		close(q.in)
	}
	q.m.Unlock()
	<-q.done
}
