// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dispatcher

import (
	"sync"
	"time"

	"github.com/DataDog/process-guard/pkg/config"
	"github.com/DataDog/process-guard/pkg/kernel"
)

// How long is the first series of check runs we want to log
const firstRunSeries uint64 = 5

// CheckStats holds the stats of one catalog check.
type CheckStats struct {
	CheckName            string
	TotalRuns            uint64
	TotalErrors          uint64
	TotalTimeouts        uint64
	TotalViolations      uint64
	LastExecutionTime    time.Duration
	AverageExecutionTime time.Duration
	LastError            string
	LastRun              time.Time
}

// checkStats guards one check's stats behind its own lock.
type checkStats struct {
	m sync.Mutex
	s CheckStats
}

func newCheckStats(kind kernel.CheckKind) *checkStats {
	return &checkStats{
		s: CheckStats{CheckName: kind.String()},
	}
}

// Add updates the stats after one run of the check.
func (c *checkStats) Add(execTime time.Duration, err error, timeout bool, violation bool) {
	c.m.Lock()
	defer c.m.Unlock()

	s := &c.s
	s.TotalRuns++
	s.LastRun = time.Now()
	s.LastExecutionTime = execTime

	// Cumulative moving average over all runs.
	prev := float64(s.AverageExecutionTime) * float64(s.TotalRuns-1)
	s.AverageExecutionTime = time.Duration((prev + float64(execTime)) / float64(s.TotalRuns))

	if err != nil {
		s.TotalErrors++
		s.LastError = err.Error()
	}
	if timeout {
		s.TotalTimeouts++
	}
	if violation {
		s.TotalViolations++
	}
}

// Snapshot returns a copy safe to serialize.
func (c *checkStats) Snapshot() CheckStats {
	c.m.Lock()
	defer c.m.Unlock()
	return c.s
}

// dispatcherCheckStats holds the stats of all catalog checks.
type dispatcherCheckStats struct {
	m     sync.RWMutex
	stats map[kernel.CheckKind]*checkStats
}

func newDispatcherCheckStats() *dispatcherCheckStats {
	return &dispatcherCheckStats{
		stats: make(map[kernel.CheckKind]*checkStats),
	}
}

func (c *dispatcherCheckStats) get(kind kernel.CheckKind) *checkStats {
	c.m.Lock()
	defer c.m.Unlock()

	s, found := c.stats[kind]
	if !found {
		s = newCheckStats(kind)
		c.stats[kind] = s
	}
	return s
}

// Snapshot returns copies of every check's stats, keyed by check name.
func (c *dispatcherCheckStats) Snapshot() map[string]CheckStats {
	c.m.RLock()
	defer c.m.RUnlock()

	out := make(map[string]CheckStats, len(c.stats))
	for _, s := range c.stats {
		snap := s.Snapshot()
		out[snap.CheckName] = snap
	}
	return out
}

// shouldLog reports whether this run of the check deserves a log line: the
// first firstRunSeries runs always do, then one in logging_frequency.
// lastLog flags the run where we switch to the lower frequency. Called after
// Add, so TotalRuns already counts the current run.
func (c *dispatcherCheckStats) shouldLog(kind kernel.CheckKind) (doLog bool, lastLog bool) {
	s := c.get(kind)

	s.m.Lock()
	runs := s.s.TotalRuns
	s.m.Unlock()

	loggingFrequency := uint64(config.Agent.GetInt64("logging_frequency"))
	if loggingFrequency == 0 {
		loggingFrequency = 20
	}

	doLog = runs <= firstRunSeries || runs%loggingFrequency == 0
	lastLog = runs == firstRunSeries
	return
}
