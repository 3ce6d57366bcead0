// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kernel

// EventType discriminates asynchronous driver notifications.
type EventType uint32

const (
	// EventProcessLaunch signals that the process the driver watches for has
	// started; Pid identifies it.
	EventProcessLaunch EventType = iota + 1
	// EventProcessExit signals that the protected process terminated on its own.
	EventProcessExit
)

func (t EventType) String() string {
	switch t {
	case EventProcessLaunch:
		return "process_launch"
	case EventProcessExit:
		return "process_exit"
	default:
		return "unknown"
	}
}

// ProcessEvent is one asynchronous notification from the kernel component.
type ProcessEvent struct {
	Type EventType
	Pid  int32
}

// EventSource delivers driver notifications to the dispatcher's completion
// thread. Events is closed when the source shuts down; Close unblocks a
// pending read.
type EventSource interface {
	Events() <-chan ProcessEvent
	Close() error
}
