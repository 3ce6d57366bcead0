// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dispatcher

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerRegistration(t *testing.T) {
	ts := newTimerSet(clock.NewMock(), 0)

	require.NoError(t, ts.Register("a", time.Second, false))
	assert.Error(t, ts.Register("a", time.Second, false), "duplicate name")
	assert.Error(t, ts.Register("b", 0, false), "non-positive interval")
}

func TestTimersStartDisabled(t *testing.T) {
	clk := clock.NewMock()
	ts := newTimerSet(clk, 0)
	require.NoError(t, ts.Register("a", time.Second, false))

	assert.Empty(t, ts.Service(clk.Now()))
}

func TestTimerFiresOnceUntilRearmed(t *testing.T) {
	clk := clock.NewMock()
	ts := newTimerSet(clk, 0)
	require.NoError(t, ts.Register("a", time.Second, false))
	require.NoError(t, ts.Enable("a"))

	// First firing is immediate.
	due := ts.Service(clk.Now())
	require.Equal(t, []string{"a"}, due)

	// Not re-armed yet: later passes see nothing, however far time goes.
	clk.Add(time.Minute)
	assert.Empty(t, ts.Service(clk.Now()))

	ts.Rearm("a")
	assert.Empty(t, ts.Service(clk.Now()), "interval not elapsed yet")

	clk.Add(time.Second)
	assert.Equal(t, []string{"a"}, ts.Service(clk.Now()))
}

func TestTimerServiceOrderIsRegistrationOrder(t *testing.T) {
	clk := clock.NewMock()
	ts := newTimerSet(clk, 0)
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, ts.Register(name, time.Second, false))
	}
	ts.EnableAll()

	assert.Equal(t, []string{"c", "a", "b"}, ts.Service(clk.Now()))
}

func TestDisableAllCancelsFiredEntry(t *testing.T) {
	clk := clock.NewMock()
	ts := newTimerSet(clk, 0)
	require.NoError(t, ts.Register("a", time.Second, false))
	require.NoError(t, ts.Enable("a"))

	require.Equal(t, []string{"a"}, ts.Service(clk.Now()))

	// Shutdown between firing and re-arm: the entry must stay quiet.
	ts.DisableAll()
	ts.Rearm("a")
	clk.Add(time.Hour)
	assert.Empty(t, ts.Service(clk.Now()))
}

func TestJitteredRearmStaysInBounds(t *testing.T) {
	clk := clock.NewMock()
	ts := newTimerSet(clk, 0.5)
	require.NoError(t, ts.Register("a", 10*time.Second, true))
	require.NoError(t, ts.Enable("a"))

	low := 5 * time.Second
	high := 15 * time.Second

	seen := map[time.Duration]struct{}{}
	for i := 0; i < 200; i++ {
		require.Len(t, ts.Service(clk.Now()), 1)
		ts.Rearm("a")

		ts.m.Lock()
		next := ts.entries["a"].nextFire.Sub(clk.Now())
		ts.m.Unlock()

		assert.GreaterOrEqual(t, next, low)
		assert.LessOrEqual(t, next, high)
		seen[next] = struct{}{}

		clk.Add(next)
	}

	// A jittered timer that always picks the same delay isn't jittered.
	assert.Greater(t, len(seen), 1)
}

func TestUnjitteredRearmIsExact(t *testing.T) {
	clk := clock.NewMock()
	ts := newTimerSet(clk, 0.5)
	require.NoError(t, ts.Register("a", 10*time.Second, false))
	require.NoError(t, ts.Enable("a"))

	require.Len(t, ts.Service(clk.Now()), 1)
	ts.Rearm("a")

	ts.m.Lock()
	next := ts.entries["a"].nextFire.Sub(clk.Now())
	ts.m.Unlock()
	assert.Equal(t, 10*time.Second, next)
}
