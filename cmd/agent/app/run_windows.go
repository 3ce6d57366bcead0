// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

//go:build windows

package app

import (
	"github.com/pkg/errors"

	"github.com/DataDog/process-guard/pkg/config"
	"github.com/DataDog/process-guard/pkg/kernel"
)

// openKernelChannel opens both halves of the driver channel: the ioctl device
// for check invocations and the event pipe for process notifications.
func openKernelChannel() (kernel.Transport, kernel.EventSource, error) {
	transport, err := kernel.OpenDevice(config.Agent.GetString("driver.device_path"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening driver device")
	}

	events, err := kernel.DialEventPipe(config.Agent.GetString("driver.event_pipe"))
	if err != nil {
		transport.Close() //nolint:errcheck
		return nil, nil, errors.Wrap(err, "dialing driver event pipe")
	}

	return transport, events, nil
}
