// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package guard

import (
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/atomic"
)

// osProcessRef is the ProcessRef implementation backed by a real OS process.
type osProcessRef struct {
	pid  int32
	proc *process.Process
	refs *atomic.Int32
}

// NewProcessRef resolves pid to a live process and returns a reference with
// a zero ownership count.
func NewProcessRef(pid int32) (ProcessRef, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, errors.Wrapf(err, "process %d not found", pid)
	}

	return &osProcessRef{
		pid:  pid,
		proc: proc,
		refs: atomic.NewInt32(0),
	}, nil
}

func (r *osProcessRef) Pid() int32 {
	return r.pid
}

func (r *osProcessRef) Retain() {
	r.refs.Inc()
}

func (r *osProcessRef) Release() {
	r.refs.Dec()
}

// Terminate issues a forced kill against the referenced process.
func (r *osProcessRef) Terminate() error {
	if r.refs.Load() <= 0 {
		return errors.New("terminate on a released process reference")
	}
	return r.proc.Kill()
}
