// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dispatcher

import (
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// timerEntry is one named, independently scheduled timer. Entries are owned
// by the timerSet and mutated only through it.
type timerEntry struct {
	name     string
	interval time.Duration
	jitter   bool
	enabled  bool
	// armed is dropped when the entry fires and restored by Rearm once the
	// resulting job was submitted, which bounds in-flight work per timer.
	armed    bool
	nextFire time.Time
}

// timerSet maintains the dispatcher's timers. It never executes work itself:
// due entries are reported to the caller, which posts the work elsewhere.
type timerSet struct {
	m              sync.Mutex
	clk            clock.Clock
	rng            *rand.Rand
	jitterFraction float64
	entries        map[string]*timerEntry
	order          []string // registration order, for deterministic service
}

func newTimerSet(clk clock.Clock, jitterFraction float64) *timerSet {
	return &timerSet{
		clk:            clk,
		rng:            rand.New(rand.NewSource(clk.Now().UnixNano())),
		jitterFraction: jitterFraction,
		entries:        make(map[string]*timerEntry),
	}
}

// Register adds a disabled timer. Interval must be positive.
func (t *timerSet) Register(name string, interval time.Duration, jitter bool) error {
	t.m.Lock()
	defer t.m.Unlock()

	if interval <= 0 {
		return errors.Errorf("timer %s: non-positive interval", name)
	}
	if _, ok := t.entries[name]; ok {
		return errors.Errorf("timer %s already registered", name)
	}

	t.entries[name] = &timerEntry{
		name:     name,
		interval: interval,
		jitter:   jitter,
	}
	t.order = append(t.order, name)
	return nil
}

// Enable arms the timer to fire on the next service pass. The first firing
// is immediate: every check runs one initial sweep when protection starts.
func (t *timerSet) Enable(name string) error {
	t.m.Lock()
	defer t.m.Unlock()

	entry, ok := t.entries[name]
	if !ok {
		return errors.Errorf("unknown timer %s", name)
	}
	entry.enabled = true
	entry.armed = true
	entry.nextFire = t.clk.Now()
	return nil
}

// EnableAll arms every registered timer.
func (t *timerSet) EnableAll() {
	t.m.Lock()
	defer t.m.Unlock()

	now := t.clk.Now()
	for _, entry := range t.entries {
		entry.enabled = true
		entry.armed = true
		entry.nextFire = now
	}
}

// DisableAll disarms every timer. A fired entry whose job was not yet picked
// up stays disarmed, so shutdown cannot leak a re-armed work item.
func (t *timerSet) DisableAll() {
	t.m.Lock()
	defer t.m.Unlock()

	for _, entry := range t.entries {
		entry.enabled = false
		entry.armed = false
	}
}

// Service returns the names of timers due at now, in registration order.
// Returned entries are disarmed until the caller re-arms them.
func (t *timerSet) Service(now time.Time) []string {
	t.m.Lock()
	defer t.m.Unlock()

	var due []string
	for _, name := range t.order {
		entry := t.entries[name]
		if !entry.enabled || !entry.armed {
			continue
		}
		if entry.nextFire.After(now) {
			continue
		}
		entry.armed = false
		due = append(due, name)
	}
	return due
}

// Rearm schedules the timer's next firing, applying jitter when the entry
// asks for it. Called once the fired entry's job has been submitted.
func (t *timerSet) Rearm(name string) {
	t.m.Lock()
	defer t.m.Unlock()

	entry, ok := t.entries[name]
	if !ok || !entry.enabled {
		return
	}
	entry.armed = true
	entry.nextFire = t.clk.Now().Add(t.nextInterval(entry))
}

// nextInterval must be called with t.m held.
func (t *timerSet) nextInterval(entry *timerEntry) time.Duration {
	if !entry.jitter || t.jitterFraction <= 0 {
		return entry.interval
	}
	// Uniform in [interval*(1-f), interval*(1+f)]: the firing pattern must
	// not be predictable enough to schedule tampering between audits.
	f := t.jitterFraction
	scale := 1 - f + 2*f*t.rng.Float64()
	return time.Duration(float64(entry.interval) * scale)
}
