// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dispatcher

import (
	"sync"
	"time"

	"github.com/DataDog/process-guard/pkg/util/log"
)

// workerPool runs dispatch jobs on a fixed set of workers draining one FIFO
// queue. The queue is unbounded: submission pressure is bounded upstream by
// the timer set, not here, so Submit never blocks the scheduling loop.
type workerPool struct {
	workers int
	run     func(*DispatchJob)

	m       sync.Mutex
	cond    *sync.Cond
	queue   []*DispatchJob
	stopped bool

	wg sync.WaitGroup
}

func newWorkerPool(workers int, run func(*DispatchJob)) *workerPool {
	p := &workerPool{
		workers: workers,
		run:     run,
	}
	p.cond = sync.NewCond(&p.m)
	return p
}

// Start launches the workers.
func (p *workerPool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	log.Infof("worker pool started with %d workers", p.workers)
}

// Submit enqueues a job and returns immediately. Jobs submitted after Stop
// are rejected.
func (p *workerPool) Submit(job *DispatchJob) bool {
	p.m.Lock()
	defer p.m.Unlock()

	if p.stopped {
		return false
	}
	p.queue = append(p.queue, job)
	p.cond.Signal()
	return true
}

func (p *workerPool) work(id int) {
	defer p.wg.Done()
	log.Debugf("worker %d: ready to process checks", id)

	for {
		p.m.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.stopped {
			p.m.Unlock()
			break
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		p.m.Unlock()

		p.execute(id, job)
	}

	log.Debugf("worker %d: finished processing checks", id)
}

// execute isolates one job: a failure, even a panic, never takes down the
// worker or stalls the queue.
func (p *workerPool) execute(id int, job *DispatchJob) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("worker %d: panic running check %s: %v", id, job.Desc.Kind, r)
		}
	}()

	p.run(job)
}

// Stop drains queued and in-flight jobs within the grace period, then
// detaches whatever is left running.
func (p *workerPool) Stop(grace time.Duration) {
	p.m.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.m.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug("worker pool drained")
	case <-time.After(grace):
		log.Warnf("worker pool did not drain within %s, detaching workers", grace)
	}
}
