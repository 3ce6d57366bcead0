// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dispatcher

import (
	"expvar"

	"go.uber.org/atomic"
)

var (
	dispatcherExpvars *expvar.Map

	expRuns        = atomic.NewInt64(0)
	expErrors      = atomic.NewInt64(0)
	expTimeouts    = atomic.NewInt64(0)
	expViolations  = atomic.NewInt64(0)
	expRunningJobs = atomic.NewInt64(0)
	expDropped     = atomic.NewInt64(0)
)

func init() {
	dispatcherExpvars = expvar.NewMap("dispatcher")
	dispatcherExpvars.Set("Runs", expvar.Func(func() interface{} { return expRuns.Load() }))
	dispatcherExpvars.Set("Errors", expvar.Func(func() interface{} { return expErrors.Load() }))
	dispatcherExpvars.Set("Timeouts", expvar.Func(func() interface{} { return expTimeouts.Load() }))
	dispatcherExpvars.Set("Violations", expvar.Func(func() interface{} { return expViolations.Load() }))
	dispatcherExpvars.Set("RunningJobs", expvar.Func(func() interface{} { return expRunningJobs.Load() }))
	dispatcherExpvars.Set("DroppedJobs", expvar.Func(func() interface{} { return expDropped.Load() }))
}
