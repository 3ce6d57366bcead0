// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/DataDog/process-guard/pkg/kernel"
)

func TestCheckStatsAccumulate(t *testing.T) {
	stats := newDispatcherCheckStats()
	s := stats.get(kernel.CheckProcessModules)

	s.Add(10*time.Millisecond, nil, false, false)
	s.Add(30*time.Millisecond, nil, false, false)

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.TotalRuns)
	assert.Equal(t, 30*time.Millisecond, snap.LastExecutionTime)
	assert.Equal(t, 20*time.Millisecond, snap.AverageExecutionTime)
	assert.Zero(t, snap.TotalErrors)
}

func TestShouldLogFirstRunSeriesThenThrottles(t *testing.T) {
	stats := newDispatcherCheckStats()
	kind := kernel.CheckHandleTable

	// Every run of the initial series is logged; the last one of the series
	// announces the switch to the lower frequency.
	for run := uint64(1); run <= firstRunSeries; run++ {
		stats.get(kind).Add(time.Millisecond, nil, false, false)
		doLog, lastLog := stats.shouldLog(kind)
		assert.True(t, doLog, "run %d", run)
		assert.Equal(t, run == firstRunSeries, lastLog, "run %d", run)
	}

	// Past the series, runs stay quiet until the logging_frequency multiple.
	for run := firstRunSeries + 1; run < 20; run++ {
		stats.get(kind).Add(time.Millisecond, nil, false, false)
		doLog, lastLog := stats.shouldLog(kind)
		assert.False(t, doLog, "run %d", run)
		assert.False(t, lastLog, "run %d", run)
	}

	stats.get(kind).Add(time.Millisecond, nil, false, false)
	doLog, lastLog := stats.shouldLog(kind)
	assert.True(t, doLog, "run 20")
	assert.False(t, lastLog, "run 20")
}
