// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kernel_test

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/process-guard/pkg/kernel"
	"github.com/DataDog/process-guard/pkg/kernel/kerneltest"
)

func fastDescriptor(kind kernel.CheckKind) kernel.Descriptor {
	desc, _ := kernel.Describe(kind)
	desc.Timeout = 100 * time.Millisecond
	return desc
}

func TestInvokeStampsProtectedPid(t *testing.T) {
	transport := kerneltest.NewFakeTransport()
	desc := fastDescriptor(kernel.CheckProcessModules)

	var stamped int32
	transport.Script(desc.Code, func(in []byte, outSize uint32) ([]byte, error) {
		stamped = kerneltest.RequestPid(in)
		return kerneltest.OKResponse(in, false, nil), nil
	})

	iface := kernel.New(transport)
	resp, err := iface.Invoke(context.Background(), desc, 4242)
	require.NoError(t, err)

	assert.Equal(t, int32(4242), stamped)
	assert.Equal(t, desc.Kind, resp.Kind)
	assert.False(t, resp.TamperDetected)
}

func TestInvokeReportsVerdict(t *testing.T) {
	transport := kerneltest.NewFakeTransport()
	desc := fastDescriptor(kernel.CheckHandleTable)
	transport.Script(desc.Code, func(in []byte, outSize uint32) ([]byte, error) {
		return kerneltest.OKResponse(in, true, []byte("stripped handle access")), nil
	})

	iface := kernel.New(transport)
	resp, err := iface.Invoke(context.Background(), desc, 7)
	require.NoError(t, err)
	assert.True(t, resp.TamperDetected)
	assert.Equal(t, []byte("stripped handle access"), resp.Payload)
}

func TestInvokeTimeout(t *testing.T) {
	transport := kerneltest.NewFakeTransport()
	desc := fastDescriptor(kernel.CheckNmiStackWalk)
	transport.Script(desc.Code, kerneltest.Block())

	iface := kernel.New(transport)
	start := time.Now()
	_, err := iface.Invoke(context.Background(), desc, 7)

	assert.ErrorIs(t, err, kernel.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInvokeTransportFailure(t *testing.T) {
	transport := kerneltest.NewFakeTransport()
	desc := fastDescriptor(kernel.CheckDriverObjects)
	transport.Script(desc.Code, func(in []byte, outSize uint32) ([]byte, error) {
		return kerneltest.FailedResponse(in, 0xC0000001), nil
	})

	iface := kernel.New(transport)
	_, err := iface.Invoke(context.Background(), desc, 7)
	assert.ErrorIs(t, err, kernel.ErrKernelCallFailed)
}

func TestInvokeRejectsStaleCompletion(t *testing.T) {
	transport := kerneltest.NewFakeTransport()
	desc := fastDescriptor(kernel.CheckIdtIntegrity)
	transport.Script(desc.Code, func(in []byte, outSize uint32) ([]byte, error) {
		out := kerneltest.OKResponse(in, false, nil)
		binary.LittleEndian.PutUint64(out[0:8], 9999)
		return out, nil
	})

	iface := kernel.New(transport)
	_, err := iface.Invoke(context.Background(), desc, 7)
	assert.ErrorIs(t, err, kernel.ErrKernelCallFailed)
}

func TestInvokeAfterClose(t *testing.T) {
	transport := kerneltest.NewFakeTransport()
	iface := kernel.New(transport)
	require.NoError(t, iface.Close())

	desc := fastDescriptor(kernel.CheckProcessThreads)
	_, err := iface.Invoke(context.Background(), desc, 7)
	assert.ErrorIs(t, err, kernel.ErrKernelCallFailed)
}
