// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package dispatcher is the agent's scheduling engine. It drives the fixed
// catalog of kernel integrity checks over a worker pool, reacts to driver
// notifications, and turns a positive verdict into the termination of the
// protected process.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/DataDog/process-guard/pkg/config"
	"github.com/DataDog/process-guard/pkg/guard"
	"github.com/DataDog/process-guard/pkg/kernel"
	"github.com/DataDog/process-guard/pkg/telemetry"
	"github.com/DataDog/process-guard/pkg/util/log"
)

// State is the dispatcher lifecycle state.
type State int32

// Dispatcher states. Transitions only move forward.
const (
	StateConstructed State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DispatchJob binds one check descriptor to the protected-process id
// observed when the job was issued. Transient: created by the scheduling
// loop, consumed by one worker.
type DispatchJob struct {
	Desc kernel.Descriptor
	Pid  int32
}

// Config tunes the dispatcher. Zero values are replaced by the configured
// (or default) settings.
type Config struct {
	Catalog    []kernel.Descriptor
	NumWorkers int
	LoopSleep  time.Duration
	// JitterFraction bounds the random spread applied to jittered timers as
	// a fraction of the base interval. Nil means the configured default;
	// pointing at zero disables jitter outright.
	JitterFraction      *float64
	GracePeriod         time.Duration
	EscalationThreshold int
	Clock               clock.Clock
	NewProcessRef       func(pid int32) (guard.ProcessRef, error)
}

func (c *Config) fillDefaults() {
	if c.Catalog == nil {
		c.Catalog = kernel.Catalog()
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = config.Agent.GetInt("num_workers")
	}
	if c.LoopSleep <= 0 {
		c.LoopSleep = time.Duration(config.Agent.GetInt("dispatch_loop_sleep_ms")) * time.Millisecond
	}
	if c.JitterFraction == nil {
		f := config.Agent.GetFloat64("timer_jitter_fraction")
		c.JitterFraction = &f
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = time.Duration(config.Agent.GetInt("shutdown_grace_period_secs")) * time.Second
	}
	if c.EscalationThreshold <= 0 {
		c.EscalationThreshold = config.Agent.GetInt("kernel_failure_escalation_threshold")
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.NewProcessRef == nil {
		c.NewProcessRef = guard.NewProcessRef
	}
}

// Dispatcher owns the timer set, the worker pool and the kernel interface
// handle, and runs the scheduling and completion loops.
type Dispatcher struct {
	cfg        Config
	clk        clock.Clock
	iface      *kernel.Interface
	events     kernel.EventSource
	processCfg *guard.ProcessConfig
	queue      *telemetry.Queue

	timers  *timerSet
	pool    *workerPool
	tracker *runningTracker
	stats   *dispatcherCheckStats
	byName  map[string]kernel.Descriptor

	state     *atomic.Int32
	stopOnce  sync.Once
	drainCh   chan struct{}
	stoppedCh chan struct{}
	loopsWg   sync.WaitGroup

	failM  sync.Mutex
	failed map[kernel.CheckKind]error
}

// New builds a dispatcher in the Constructed state: timers registered but
// disabled, pool created but idle.
func New(cfg Config, iface *kernel.Interface, events kernel.EventSource, processCfg *guard.ProcessConfig, queue *telemetry.Queue) (*Dispatcher, error) {
	cfg.fillDefaults()

	d := &Dispatcher{
		cfg:        cfg,
		clk:        cfg.Clock,
		iface:      iface,
		events:     events,
		processCfg: processCfg,
		queue:      queue,
		tracker:    newRunningTracker(),
		stats:      newDispatcherCheckStats(),
		byName:     make(map[string]kernel.Descriptor, len(cfg.Catalog)),
		state:      atomic.NewInt32(int32(StateConstructed)),
		drainCh:    make(chan struct{}),
		stoppedCh:  make(chan struct{}),
		failed:     make(map[kernel.CheckKind]error),
	}

	d.timers = newTimerSet(d.clk, *cfg.JitterFraction)
	for _, desc := range cfg.Catalog {
		name := desc.Kind.String()
		if err := d.timers.Register(name, desc.Interval, desc.Jitter); err != nil {
			return nil, errors.Wrap(err, "registering check timers")
		}
		d.byName[name] = desc
	}
	d.pool = newWorkerPool(cfg.NumWorkers, d.runJob)

	return d, nil
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Stats returns a snapshot of per-check run statistics.
func (d *Dispatcher) Stats() map[string]CheckStats {
	return d.stats.Snapshot()
}

// Run starts the worker pool, the scheduling loop and the completion loop.
// It returns once everything is started; Wait blocks until shutdown.
func (d *Dispatcher) Run() error {
	if !d.state.CompareAndSwap(int32(StateConstructed), int32(StateRunning)) {
		return errors.Errorf("dispatcher cannot run from state %s", d.State())
	}

	d.pool.Start()
	d.timers.EnableAll()

	d.loopsWg.Add(2)
	go d.schedulingLoop()
	go d.completionLoop()

	log.Infof("dispatcher running: %d checks, %d workers, %s loop period",
		len(d.cfg.Catalog), d.cfg.NumWorkers, d.cfg.LoopSleep)
	return nil
}

// schedulingLoop wakes on a fixed short period and services due timers. It
// performs no kernel call itself; blocking work is the pool's job.
func (d *Dispatcher) schedulingLoop() {
	defer d.loopsWg.Done()

	ticker := d.clk.Ticker(d.cfg.LoopSleep)
	defer ticker.Stop()

	for {
		select {
		case <-d.drainCh:
			return
		case now := <-ticker.C:
			for _, name := range d.timers.Service(now) {
				d.issueJob(name)
			}
		}
	}
}

// issueJob submits one job for the fired timer and re-arms it. The timer is
// re-armed in every path: a skipped submission must not silence the check
// forever.
func (d *Dispatcher) issueJob(name string) {
	defer d.timers.Rearm(name)

	desc := d.byName[name]

	pid, err := d.processCfg.GetProtectedProcessID()
	if err != nil {
		// Nothing protected right now; the check fires again later.
		return
	}

	if !d.tracker.Add(desc.Kind) {
		log.Debugf("check %s still in flight, skipping this firing", desc.Kind)
		return
	}

	if !d.pool.Submit(&DispatchJob{Desc: desc, Pid: pid}) {
		d.tracker.Delete(desc.Kind)
		expDropped.Inc()
	}
}

// completionLoop consumes asynchronous driver notifications and feeds them
// into the protection state.
func (d *Dispatcher) completionLoop() {
	defer d.loopsWg.Done()

	for evt := range d.events.Events() {
		switch evt.Type {
		case kernel.EventProcessLaunch:
			ref, err := d.cfg.NewProcessRef(evt.Pid)
			if err != nil {
				log.Errorf("launch notification for pid %d: %v", evt.Pid, err)
				continue
			}
			if err := d.processCfg.OnProcessLaunch(evt.Pid, ref); err != nil {
				log.Errorf("cannot protect pid %d: %v", evt.Pid, err)
				continue
			}
			log.Infof("now protecting process %d", evt.Pid)
		case kernel.EventProcessExit:
			log.Infof("protected process %d exited", evt.Pid)
			d.processCfg.OnProcessTermination()
		}
	}

	if d.State() == StateRunning {
		log.Warn("driver event channel closed, draining") //nolint:errcheck
		go d.Stop()
	}
}

// runJob is the worker-side execution of one dispatch job: the only place a
// blocking kernel call happens.
func (d *Dispatcher) runJob(job *DispatchJob) {
	defer d.tracker.Delete(job.Desc.Kind)

	expRunningJobs.Inc()
	defer expRunningJobs.Dec()

	start := time.Now()
	resp, err := d.iface.Invoke(context.Background(), job.Desc, job.Pid)
	execTime := time.Since(start)

	timeout := errors.Is(err, kernel.ErrTimeout)
	violation := err == nil && resp.TamperDetected

	d.stats.get(job.Desc.Kind).Add(execTime, err, timeout, violation)
	expRuns.Inc()

	switch {
	case timeout:
		// Infrastructure failure: reported, retried on the next interval,
		// never a reason to touch the protected process.
		expTimeouts.Inc()
		log.Warnf("check %s timed out after %s", job.Desc.Kind, execTime) //nolint:errcheck
		d.queue.Add(&telemetry.Record{
			Type:    telemetry.RecordCheckFailure,
			Check:   job.Desc.Kind.String(),
			Pid:     job.Pid,
			Message: err.Error(),
			Time:    time.Now(),
		})
	case err != nil:
		expErrors.Inc()
		log.Errorf("check %s failed: %v", job.Desc.Kind, err) //nolint:errcheck
		d.queue.Add(&telemetry.Record{
			Type:    telemetry.RecordCheckFailure,
			Check:   job.Desc.Kind.String(),
			Pid:     job.Pid,
			Message: err.Error(),
			Time:    time.Now(),
		})
		if errors.Is(err, kernel.ErrKernelCallFailed) {
			d.recordChannelFailure(job.Desc.Kind, err)
		}
	case violation:
		expViolations.Inc()
		d.onViolation(job, resp)
	default:
		d.clearChannelFailure(job.Desc.Kind)
		if doLog, lastLog := d.stats.shouldLog(job.Desc.Kind); doLog {
			log.Infof("check %s completed in %s", job.Desc.Kind, execTime)
			if lastLog {
				log.Infof("check %s settled, logging less frequently from now on", job.Desc.Kind)
			}
		}
	}
}

// onViolation escalates a positive verdict: record it outward, then
// terminate. TerminateOnViolation clears the protection state, so repeated
// verdicts for the same lifetime degrade to no-ops.
func (d *Dispatcher) onViolation(job *DispatchJob, resp *kernel.Response) {
	log.Warnf("check %s detected tampering on process %d, terminating", job.Desc.Kind, job.Pid) //nolint:errcheck

	d.queue.Add(&telemetry.Record{
		Type:    telemetry.RecordVerdict,
		Check:   job.Desc.Kind.String(),
		Pid:     job.Pid,
		Payload: resp.Payload,
		Time:    time.Now(),
	})

	d.processCfg.TerminateOnViolation()
}

// recordChannelFailure tracks transport failures per check. One failing
// check is that check's problem; failures across several distinct checks
// mean the kernel channel itself is unhealthy and the dispatcher drains.
func (d *Dispatcher) recordChannelFailure(kind kernel.CheckKind, err error) {
	d.failM.Lock()
	d.failed[kind] = err
	count := len(d.failed)
	var merr error
	if count >= d.cfg.EscalationThreshold {
		for k, e := range d.failed {
			merr = multierror.Append(merr, errors.Wrap(e, k.String()))
		}
	}
	d.failM.Unlock()

	if merr == nil || d.State() != StateRunning {
		return
	}

	log.Errorf("kernel channel unhealthy across %d checks, draining: %v", count, merr) //nolint:errcheck
	d.queue.Add(&telemetry.Record{
		Type:    telemetry.RecordChannelFailure,
		Message: merr.Error(),
		Time:    time.Now(),
	})
	go d.Stop()
}

func (d *Dispatcher) clearChannelFailure(kind kernel.CheckKind) {
	d.failM.Lock()
	delete(d.failed, kind)
	d.failM.Unlock()
}

// Stop drains and stops the dispatcher: timers disabled, no new jobs,
// in-flight jobs completed within the grace period, all loops joined, the
// kernel handle closed. Safe to call from any context, including a worker
// escalating a channel failure; idempotent.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		prev := State(d.state.Swap(int32(StateDraining)))
		if prev == StateRunning {
			log.Info("dispatcher draining")
		}

		d.timers.DisableAll()
		close(d.drainCh)
		d.pool.Stop(d.cfg.GracePeriod)
		d.events.Close() //nolint:errcheck
		d.loopsWg.Wait()
		if err := d.iface.Close(); err != nil {
			log.Warnf("closing kernel interface: %v", err) //nolint:errcheck
		}

		d.state.Store(int32(StateStopped))
		close(d.stoppedCh)
		log.Info("dispatcher stopped")
	})
	<-d.stoppedCh
}

// Wait blocks until the dispatcher reached the Stopped state.
func (d *Dispatcher) Wait() {
	<-d.stoppedCh
}
