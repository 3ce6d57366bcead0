// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kernel

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Request and response headers exchanged with the driver. Fixed-size little
// endian layout, matching the driver's packed structs.
//
// The request stamps the protected process id observed at issue time so the
// driver can reject a check raced by a process swap.
type requestHeader struct {
	RequestID uint64
	Pid       int32
	Kind      uint32
}

type responseHeader struct {
	RequestID uint64
	Kind      uint32
	Status    uint32
	Verdict   uint32
	PayloadSz uint32
}

const (
	requestHeaderSize  = 16
	responseHeaderSize = 24

	statusOK uint32 = 0
)

// Response is one completed check exchange.
type Response struct {
	RequestID      uint64
	Kind           CheckKind
	TamperDetected bool
	Payload        []byte
}

func encodeRequest(id uint64, pid int32, kind CheckKind) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, requestHeaderSize))
	binary.Write(buf, binary.LittleEndian, requestHeader{ //nolint:errcheck
		RequestID: id,
		Pid:       pid,
		Kind:      uint32(kind),
	})
	return buf.Bytes()
}

func decodeResponse(data []byte) (*Response, error) {
	if len(data) < responseHeaderSize {
		return nil, errors.Errorf("short kernel response: %d bytes", len(data))
	}

	var hdr responseHeader
	if err := binary.Read(bytes.NewReader(data[:responseHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "unreadable kernel response header")
	}

	if hdr.Status != statusOK {
		return nil, errors.Wrapf(ErrKernelCallFailed, "driver status 0x%x", hdr.Status)
	}

	if hdr.Kind >= uint32(checkKindCount) {
		return nil, errors.Errorf("kernel response for unknown check kind %d", hdr.Kind)
	}

	payload := data[responseHeaderSize:]
	if int(hdr.PayloadSz) < len(payload) {
		payload = payload[:hdr.PayloadSz]
	}

	return &Response{
		RequestID:      hdr.RequestID,
		Kind:           CheckKind(hdr.Kind),
		TamperDetected: hdr.Verdict != 0,
		Payload:        payload,
	}, nil
}
