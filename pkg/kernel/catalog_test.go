// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogIsComplete(t *testing.T) {
	catalog := Catalog()
	require.Len(t, catalog, 11)

	codes := map[uint32]CheckKind{}
	for i, desc := range catalog {
		assert.Equal(t, CheckKind(i), desc.Kind)
		assert.NotEqual(t, "unknown", desc.Kind.String())
		assert.Positive(t, desc.ResponseSize)
		assert.Positive(t, desc.Timeout)
		assert.Positive(t, desc.Interval)

		prev, dup := codes[desc.Code]
		require.False(t, dup, "control code collision between %s and %s", prev, desc.Kind)
		codes[desc.Code] = desc.Kind
	}
}

func TestHandleTableCheckIsJittered(t *testing.T) {
	desc, err := Describe(CheckHandleTable)
	require.NoError(t, err)
	assert.True(t, desc.Jitter)
}

func TestCatalogReturnsCopies(t *testing.T) {
	first := Catalog()
	first[0].Timeout = time.Nanosecond

	second := Catalog()
	assert.NotEqual(t, time.Nanosecond, second[0].Timeout)
}

func TestDescribeRejectsUnknownKind(t *testing.T) {
	_, err := Describe(CheckKind(99))
	assert.Error(t, err)

	_, err = Describe(CheckKind(-1))
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	catalog := Catalog()

	data := []byte("handle_table:\n  interval_secs: 7\n  timeout_secs: 3\n")
	require.NoError(t, ApplyOverrides(catalog, data))

	assert.Equal(t, 7*time.Second, catalog[CheckHandleTable].Interval)
	assert.Equal(t, 3*time.Second, catalog[CheckHandleTable].Timeout)

	// Untouched entries keep their defaults.
	assert.Equal(t, defaultCatalog[CheckIdtIntegrity].Interval, catalog[CheckIdtIntegrity].Interval)
}

func TestApplyOverridesRejectsUnknownCheck(t *testing.T) {
	catalog := Catalog()
	err := ApplyOverrides(catalog, []byte("not_a_check:\n  interval_secs: 7\n"))
	assert.Error(t, err)
}

func TestRequestResponseRoundTrip(t *testing.T) {
	req := encodeRequest(42, 4242, CheckProcessMemory)
	require.Len(t, req, requestHeaderSize)

	// Hand-build the matching response the way the driver would.
	resp := make([]byte, responseHeaderSize+3)
	copy(resp[0:8], req[0:8])
	copy(resp[8:12], req[12:16])
	resp[16] = 1 // verdict
	resp[20] = 3 // payload size
	copy(resp[24:], []byte{0xde, 0xad, 0xbe})

	decoded, err := decodeResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), decoded.RequestID)
	assert.Equal(t, CheckProcessMemory, decoded.Kind)
	assert.True(t, decoded.TamperDetected)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe}, decoded.Payload)
}

func TestDecodeResponseErrors(t *testing.T) {
	_, err := decodeResponse([]byte{1, 2, 3})
	assert.Error(t, err)

	// Non-zero driver status maps to a failed kernel call.
	req := encodeRequest(1, 1, CheckIdtIntegrity)
	resp := make([]byte, responseHeaderSize)
	copy(resp[0:8], req[0:8])
	copy(resp[8:12], req[12:16])
	resp[12] = 0xff // status
	_, err = decodeResponse(resp)
	assert.ErrorIs(t, err, ErrKernelCallFailed)
}
