// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kernel

import "errors"

var (
	// ErrTimeout marks a single check exchange that exceeded its
	// descriptor's deadline. Infrastructure failure: the check is retried on
	// its next scheduled interval, it is never a verdict by itself.
	ErrTimeout = errors.New("kernel check timed out")

	// ErrKernelCallFailed marks a transport-level failure on the device
	// channel. Recurring occurrences across distinct checks mean the channel
	// itself is unhealthy.
	ErrKernelCallFailed = errors.New("kernel call failed")

	// ErrInsufficientResources is the status a device-configuration-space
	// query propagates when the bus driver could not build the request.
	ErrInsufficientResources = errors.New("insufficient resources")

	// ErrTransportClosed is returned by calls made after Close.
	ErrTransportClosed = errors.New("kernel transport closed")
)
