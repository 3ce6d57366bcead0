// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

//go:build windows

package kernel

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
	"github.com/pkg/errors"

	"github.com/DataDog/process-guard/pkg/util/log"
)

const eventRecordSize = 8 // Type uint32 + Pid int32

// pipeEventSource reads fixed-size notification records from the driver's
// broker pipe and fans them out on a channel.
type pipeEventSource struct {
	conn   net.Conn
	events chan ProcessEvent
	done   chan struct{}
}

// DialEventPipe connects to the named pipe carrying driver notifications,
// e.g. `\\.\pipe\procguard-events`.
func DialEventPipe(pipeName string) (EventSource, error) {
	timeout := 10 * time.Second
	conn, err := winio.DialPipe(pipeName, &timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing event pipe %q", pipeName)
	}

	s := &pipeEventSource{
		conn:   conn,
		events: make(chan ProcessEvent, 16),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *pipeEventSource) readLoop() {
	defer close(s.events)

	buf := make([]byte, eventRecordSize)
	for {
		if _, err := io.ReadFull(s.conn, buf); err != nil {
			select {
			case <-s.done:
			default:
				log.Errorf("event pipe read failed: %v", err)
			}
			return
		}

		var rec struct {
			Type uint32
			Pid  int32
		}
		binary.Read(bytes.NewReader(buf), binary.LittleEndian, &rec) //nolint:errcheck

		evt := ProcessEvent{Type: EventType(rec.Type), Pid: rec.Pid}
		if evt.Type != EventProcessLaunch && evt.Type != EventProcessExit {
			log.Warnf("dropping unknown driver event type %d", rec.Type)
			continue
		}
		s.events <- evt
	}
}

func (s *pipeEventSource) Events() <-chan ProcessEvent {
	return s.events
}

func (s *pipeEventSource) Close() error {
	close(s.done)
	return s.conn.Close()
}
