// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package kerneltest provides a scriptable in-memory kernel transport and
// event source for tests.
package kerneltest

import (
	"context"
	"encoding/binary"
	"sync"

	"go.uber.org/atomic"

	"github.com/DataDog/process-guard/pkg/kernel"
)

// Handler scripts the driver's reply for one control code. It receives the
// raw request buffer and the response buffer size the caller allotted.
type Handler func(in []byte, outSize uint32) ([]byte, error)

// FakeTransport is an in-memory kernel.Transport. Unscripted codes answer
// with a clean, non-verdict response.
type FakeTransport struct {
	mu       sync.Mutex
	handlers map[uint32]Handler
	closed   bool

	// Invocations counts completed Invoke calls.
	Invocations *atomic.Int64
}

// NewFakeTransport returns an empty fake transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		handlers:    make(map[uint32]Handler),
		Invocations: atomic.NewInt64(0),
	}
}

// Script installs a handler for the given control code.
func (t *FakeTransport) Script(code uint32, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[code] = h
}

// Invoke runs the scripted handler on its own goroutine so a blocking script
// exercises the caller's deadline handling.
func (t *FakeTransport) Invoke(ctx context.Context, code uint32, in []byte, outSize uint32) ([]byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, kernel.ErrTransportClosed
	}
	h, ok := t.handlers[code]
	t.mu.Unlock()

	if !ok {
		h = func(in []byte, outSize uint32) ([]byte, error) {
			return OKResponse(in, false, nil), nil
		}
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h(in, outSize)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		t.Invocations.Inc()
		return r.out, r.err
	}
}

// Close marks the transport closed; later Invokes fail.
func (t *FakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// OKResponse builds a well-formed driver response echoing the request
// identity from in, with the given verdict flag and payload.
func OKResponse(in []byte, verdict bool, payload []byte) []byte {
	return response(in, 0, verdict, payload)
}

// FailedResponse builds a driver response carrying a non-zero status.
func FailedResponse(in []byte, status uint32) []byte {
	return response(in, status, false, nil)
}

func response(in []byte, status uint32, verdict bool, payload []byte) []byte {
	out := make([]byte, 24+len(payload))
	// Echo request id and kind from the request header.
	copy(out[0:8], in[0:8])
	copy(out[8:12], in[12:16])
	binary.LittleEndian.PutUint32(out[12:16], status)
	if verdict {
		binary.LittleEndian.PutUint32(out[16:20], 1)
	}
	binary.LittleEndian.PutUint32(out[20:24], uint32(len(payload)))
	copy(out[24:], payload)
	return out
}

// RequestPid extracts the protected process id stamped on a request buffer.
func RequestPid(in []byte) int32 {
	return int32(binary.LittleEndian.Uint32(in[8:12]))
}

// Block returns a handler that never completes; the caller's deadline wins.
func Block() Handler {
	return func(in []byte, outSize uint32) ([]byte, error) {
		select {}
	}
}

// FakeEventSource is an in-memory kernel.EventSource tests push events into.
type FakeEventSource struct {
	events chan kernel.ProcessEvent
	once   sync.Once
}

// NewFakeEventSource returns a buffered fake event source.
func NewFakeEventSource() *FakeEventSource {
	return &FakeEventSource{
		events: make(chan kernel.ProcessEvent, 32),
	}
}

// Emit delivers one event to the consumer.
func (s *FakeEventSource) Emit(evt kernel.ProcessEvent) {
	s.events <- evt
}

// Events implements kernel.EventSource.
func (s *FakeEventSource) Events() <-chan kernel.ProcessEvent {
	return s.events
}

// Close implements kernel.EventSource.
func (s *FakeEventSource) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}
