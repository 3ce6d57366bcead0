// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package guard

import (
	"sync"

	"github.com/DataDog/process-guard/pkg/util/log"
)

// ProcessRef is an ownership-counted reference to a live process object.
// The protection state retains it when a launch is recorded and releases it
// when the state is cleared; holders must not use a ref after releasing it.
type ProcessRef interface {
	Pid() int32
	Retain()
	Release()
	Terminate() error
}

// ProcessConfig records which process is currently protected. It is read and
// written from the scheduling loop, the completion thread and the workers, so
// every operation is a single critical section on one mutex. At most one
// process is protected at a time: a second launch while one is protected is
// an error, never an overwrite.
type ProcessConfig struct {
	m           sync.Mutex
	initialised bool
	pid         int32
	ref         ProcessRef
}

// NewProcessConfig returns an empty protection state.
func NewProcessConfig() *ProcessConfig {
	return &ProcessConfig{}
}

// OnProcessLaunch records the protected process. Fails with
// ErrAlreadyProtected if a process is already protected, leaving the existing
// state untouched. Retains ref on success.
func (c *ProcessConfig) OnProcessLaunch(pid int32, ref ProcessRef) error {
	c.m.Lock()
	defer c.m.Unlock()

	if c.initialised {
		return ErrAlreadyProtected
	}

	ref.Retain()
	c.pid = pid
	c.ref = ref
	c.initialised = true
	return nil
}

// OnProcessTermination clears the protection state and releases the owned
// process reference. Calling it with no active protection is a no-op:
// termination notifications can race with an explicit detach.
func (c *ProcessConfig) OnProcessTermination() {
	c.m.Lock()
	defer c.m.Unlock()

	c.clearLocked()
}

// clearLocked must be called with c.m held.
func (c *ProcessConfig) clearLocked() {
	if !c.initialised {
		return
	}

	c.ref.Release()
	c.ref = nil
	c.pid = 0
	c.initialised = false
}

// GetProtectedProcessID returns the protected process id.
func (c *ProcessConfig) GetProtectedProcessID() (int32, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if !c.initialised {
		return 0, ErrNotInitialized
	}
	return c.pid, nil
}

// GetProtectedProcessRef returns the current process reference. The snapshot
// is only guaranteed valid at the time of the call: callers intending to use
// the ref must Retain it themselves before the state can be cleared under
// them.
func (c *ProcessConfig) GetProtectedProcessRef() (ProcessRef, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if !c.initialised {
		return nil, ErrNotInitialized
	}
	return c.ref, nil
}

// IsInitialised reports whether a process is currently protected.
func (c *ProcessConfig) IsInitialised() bool {
	c.m.Lock()
	defer c.m.Unlock()

	return c.initialised
}

// TerminateOnViolation forcibly terminates the protected process and clears
// the state as if its termination had been observed. This is the single path
// by which a verdict becomes an action. With no active protection it is a
// no-op, which makes repeated verdicts for an already-cleared state harmless.
func (c *ProcessConfig) TerminateOnViolation() {
	c.m.Lock()
	defer c.m.Unlock()

	if !c.initialised {
		return
	}

	pid := c.pid
	if err := c.ref.Terminate(); err != nil {
		// The process may already be gone; the state is cleared either way.
		log.Warnf("failed to terminate protected process %d: %v", pid, err)
	} else {
		log.Infof("terminated protected process %d on violation", pid)
	}
	c.clearLocked()
}
