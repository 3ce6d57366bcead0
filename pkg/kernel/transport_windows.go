// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

//go:build windows

package kernel

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// deviceTransport talks to the driver's control device through buffered
// DeviceIoControl exchanges.
type deviceTransport struct {
	mu     sync.Mutex
	handle windows.Handle
	open   bool
}

// OpenDevice opens the driver's control device, e.g. `\\.\ProcGuard`.
func OpenDevice(devicePath string) (Transport, error) {
	pathPtr, err := windows.UTF16PtrFromString(devicePath)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid device path %q", devicePath)
	}

	handle, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "opening device %q", devicePath)
	}

	return &deviceTransport{handle: handle, open: true}, nil
}

func (t *deviceTransport) Invoke(ctx context.Context, code uint32, in []byte, outSize uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	handle := t.handle
	t.mu.Unlock()

	type ioResult struct {
		out []byte
		err error
	}

	// The exchange is a synchronous ioctl and cannot be cancelled once
	// issued; run it off-thread so the caller's deadline still applies. On
	// timeout the orphaned call completes against the buffered channel.
	resultCh := make(chan ioResult, 1)
	go func() {
		var inPtr *byte
		if len(in) > 0 {
			inPtr = &in[0]
		}

		out := make([]byte, outSize)
		var outPtr *byte
		if outSize > 0 {
			outPtr = &out[0]
		}

		var returned uint32
		err := windows.DeviceIoControl(
			handle,
			code,
			inPtr,
			uint32(len(in)),
			outPtr,
			outSize,
			&returned,
			nil,
		)
		if err != nil {
			resultCh <- ioResult{err: errors.Wrapf(err, "DeviceIoControl 0x%x", code)}
			return
		}
		resultCh <- ioResult{out: out[:returned]}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		return r.out, r.err
	}
}

func (t *deviceTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return nil
	}
	t.open = false
	return windows.CloseHandle(t.handle)
}
