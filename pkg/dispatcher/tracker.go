// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dispatcher

import (
	"sync"

	"github.com/DataDog/process-guard/pkg/kernel"
)

// runningTracker tracks which checks currently have a job in flight. Adding
// happens at submission time and removal at completion, so no two jobs for
// the same check can ever execute concurrently.
type runningTracker struct {
	m       sync.Mutex
	running map[kernel.CheckKind]struct{}
}

func newRunningTracker() *runningTracker {
	return &runningTracker{
		running: make(map[kernel.CheckKind]struct{}),
	}
}

// Add marks the check in flight. Returns false if it already was.
func (t *runningTracker) Add(kind kernel.CheckKind) bool {
	t.m.Lock()
	defer t.m.Unlock()

	if _, found := t.running[kind]; found {
		return false
	}
	t.running[kind] = struct{}{}
	return true
}

// Delete clears the in-flight mark for the check.
func (t *runningTracker) Delete(kind kernel.CheckKind) {
	t.m.Lock()
	defer t.m.Unlock()

	delete(t.running, kind)
}

// Len returns the number of checks currently in flight.
func (t *runningTracker) Len() int {
	t.m.Lock()
	defer t.m.Unlock()

	return len(t.running)
}
